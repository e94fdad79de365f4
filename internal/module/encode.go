package module

import (
	"fmt"
	"io"
	"os"

	"github.com/vmihailenco/msgpack/v5"
)

// Encode writes the interchange document to w. The schema field is stamped
// with the current version.
func Encode(w io.Writer, fm *FileModule) error {
	fm.Schema = Schema
	if err := msgpack.NewEncoder(w).Encode(fm); err != nil {
		return fmt.Errorf("encode module: %w", err)
	}
	return nil
}

// EncodeFile writes the interchange document to path, truncating any
// previous content.
func EncodeFile(path string, fm *FileModule) error {
	f, err := os.Create(path)
	if err != nil {
		return err
	}
	if err := Encode(f, fm); err != nil {
		f.Close()
		return err
	}
	return f.Close()
}
