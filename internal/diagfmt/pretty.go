package diagfmt

import (
	"fmt"
	"io"
	"strings"

	"github.com/fatih/color"
	"github.com/mattn/go-runewidth"

	"borrowck/internal/diag"
	"borrowck/internal/source"
)

// Pretty formats diagnostics for a terminal. Walks bag.Items() (the bag is
// expected to be sorted already) and prints for each diagnostic
//
//	<path>:<line>:<col>: <SEV> <CODE>: <message>
//
// followed by the offending source line with a ^~~~ underline when the file
// content is available, then the notes in the same format.
func Pretty(w io.Writer, bag *diag.Bag, fs *source.FileSet, opts PrettyOpts) {
	p := prettyPrinter{w: w, fs: fs, opts: opts}
	for _, d := range bag.Items() {
		p.diagnostic(d)
	}
}

type prettyPrinter struct {
	w    io.Writer
	fs   *source.FileSet
	opts PrettyOpts
}

func (p *prettyPrinter) diagnostic(d diag.Diagnostic) {
	p.header(d.Severity, d.Code.ID(), d.Message, d.Primary)
	if p.opts.ShowSource {
		p.sourceLine(d.Primary, p.severityColor(d.Severity))
	}
	if !p.opts.ShowNotes {
		return
	}
	for _, n := range d.Notes {
		fmt.Fprintf(p.w, "  %s: %s at %s\n", p.paint(color.FgCyan, "note"), n.Msg, p.position(n.Span))
		if p.opts.ShowSource {
			p.sourceLine(n.Span, color.FgCyan)
		}
	}
}

func (p *prettyPrinter) header(sev diag.Severity, code, msg string, span source.Span) {
	fmt.Fprintf(p.w, "%s: %s %s: %s\n",
		p.position(span),
		p.paint(p.severityColor(sev), sev.Label()),
		p.paint(color.Bold, code),
		msg)
}

func (p *prettyPrinter) position(span source.Span) string {
	path := displayPath(p.fs, span.File, p.opts.PathMode)
	if path == "" {
		path = "<input>"
	}
	if p.fs == nil {
		return path
	}
	start, _ := p.fs.Resolve(span)
	return fmt.Sprintf("%s:%d:%d", path, start.Line, start.Col)
}

// sourceLine prints the first line the span touches with an underline. Wide
// runes and tabs in the prefix are measured so the carets land under the
// spanned text.
func (p *prettyPrinter) sourceLine(span source.Span, attr color.Attribute) {
	if p.fs == nil {
		return
	}
	file := p.fs.Get(span.File)
	if file == nil || len(file.Content) == 0 {
		return
	}
	start, end := p.fs.Resolve(span)
	line := file.GetLine(start.Line)
	if line == "" {
		return
	}
	line = strings.ReplaceAll(line, "\t", "    ")
	fmt.Fprintf(p.w, "    %s\n", line)

	prefixCols := 0
	spanCols := 1
	runes := []rune(line)
	startCol := int(start.Col) - 1
	endCol := len(runes)
	if end.Line == start.Line {
		endCol = int(end.Col) - 1
	}
	for i, r := range runes {
		w := runewidth.RuneWidth(r)
		if i < startCol {
			prefixCols += w
		} else if i < endCol {
			if i == startCol {
				spanCols = w
			} else {
				spanCols += w
			}
		}
	}
	underline := "^"
	if spanCols > 1 {
		underline += strings.Repeat("~", spanCols-1)
	}
	fmt.Fprintf(p.w, "    %s%s\n", strings.Repeat(" ", prefixCols), p.paint(attr, underline))
}

func (p *prettyPrinter) severityColor(sev diag.Severity) color.Attribute {
	switch sev {
	case diag.SevError:
		return color.FgRed
	case diag.SevWarning:
		return color.FgYellow
	}
	return color.FgBlue
}

func (p *prettyPrinter) paint(attr color.Attribute, s string) string {
	if !p.opts.Color {
		return s
	}
	return color.New(attr).Sprint(s)
}
