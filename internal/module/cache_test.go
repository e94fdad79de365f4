package module

import (
	"testing"

	"borrowck/internal/analysis"
	"borrowck/internal/diag"
	"borrowck/internal/source"
)

func TestCacheRoundTrip(t *testing.T) {
	cache, err := OpenCacheAt(t.TempDir())
	if err != nil {
		t.Fatalf("OpenCacheAt: %v", err)
	}
	key := DigestOf([]byte("input"), analysis.DefaultConfig())

	if _, hit, err := cache.Get(key); err != nil || hit {
		t.Fatalf("empty cache: hit=%v err=%v", hit, err)
	}

	want := &Payload{
		Diags: []diag.Diagnostic{
			diag.NewError(diag.BckAliasingConflict, source.Span{Start: 3, End: 9}, "conflict").
				WithNote(source.Span{Start: 1, End: 2}, "created here"),
		},
		HasErrors: true,
		FilePaths: []string{"main.src"},
	}
	if err := cache.Put(key, want); err != nil {
		t.Fatalf("Put: %v", err)
	}

	got, hit, err := cache.Get(key)
	if err != nil || !hit {
		t.Fatalf("Get: hit=%v err=%v", hit, err)
	}
	if len(got.Diags) != 1 || got.Diags[0].Code != diag.BckAliasingConflict {
		t.Fatalf("payload = %+v", got)
	}
	if len(got.Diags[0].Notes) != 1 || got.Diags[0].Notes[0].Msg != "created here" {
		t.Fatalf("notes lost: %+v", got.Diags[0])
	}
	if !got.HasErrors || len(got.FilePaths) != 1 {
		t.Fatalf("metadata lost: %+v", got)
	}
}

func TestDigestSeparatesPolicies(t *testing.T) {
	base := analysis.DefaultConfig()
	strict := base
	strict.PartialMoveOfWholeIsError = false

	if DigestOf([]byte("x"), base) == DigestOf([]byte("x"), strict) {
		t.Fatal("different policies must not share a cache key")
	}
	if DigestOf([]byte("x"), base) == DigestOf([]byte("y"), base) {
		t.Fatal("different inputs must not share a cache key")
	}

	jobs := base
	jobs.Jobs = 7
	if DigestOf([]byte("x"), base) != DigestOf([]byte("x"), jobs) {
		t.Fatal("worker count must not affect the cache key")
	}
}
