package diag

import (
	"testing"

	"borrowck/internal/source"
)

func TestBagCapAndErrors(t *testing.T) {
	bag := NewBag(2)
	if !bag.Add(NewError(BckAliasingConflict, source.Span{}, "first")) {
		t.Fatal("first add must succeed")
	}
	if !bag.Add(New(SevWarning, BckInfo, source.Span{}, "second")) {
		t.Fatal("second add must succeed")
	}
	if bag.Add(NewError(BckUseOfMovedValue, source.Span{}, "third")) {
		t.Fatal("add past cap must fail")
	}
	if !bag.HasErrors() {
		t.Fatal("bag contains an error")
	}
	if bag.Len() != 2 {
		t.Fatalf("len = %d", bag.Len())
	}
}

func TestBagSortIsDeterministic(t *testing.T) {
	mk := func() *Bag {
		bag := NewBag(8)
		bag.Add(NewError(BckUseOfMovedValue, source.Span{File: 1, Start: 30, End: 31}, "b"))
		bag.Add(NewError(BckAliasingConflict, source.Span{File: 1, Start: 10, End: 12}, "a"))
		bag.Add(New(SevWarning, BckInfo, source.Span{File: 1, Start: 10, End: 12}, "w"))
		bag.Sort()
		return bag
	}
	first, second := mk(), mk()
	for i := range first.Items() {
		if first.Items()[i].Code != second.Items()[i].Code {
			t.Fatalf("sorting is not deterministic at %d", i)
		}
	}
	items := first.Items()
	if items[0].Primary.Start != 10 || items[0].Severity != SevError {
		t.Fatalf("expected error at offset 10 first, got %+v", items[0])
	}
}

func TestBagMergeGrowsCapMonotonically(t *testing.T) {
	const big = 70000
	other := NewBag(big)
	for i := 0; i < big; i++ {
		other.Add(NewError(BckAliasingConflict, source.Span{File: 1, Start: uint32(i)}, "x"))
	}
	bag := NewBag(2)
	bag.Add(NewError(BckUseOfMovedValue, source.Span{}, "a"))
	bag.Merge(other)
	if bag.Len() != big+1 {
		t.Fatalf("len = %d, want %d", bag.Len(), big+1)
	}
	if bag.Cap() < bag.Len() {
		t.Fatalf("cap %d shrank below len %d", bag.Cap(), bag.Len())
	}
	if bag.Add(NewError(BckUseOfMovedValue, source.Span{}, "b")) {
		t.Fatal("merge must not grow the cap past the merged total")
	}
}

func TestDedupReporter(t *testing.T) {
	bag := NewBag(8)
	rep := NewDedupReporter(BagReporter{Bag: bag})
	span := source.Span{File: 1, Start: 5, End: 6}
	rep.Report(BckAliasingConflict, SevError, span, "dup", nil)
	rep.Report(BckAliasingConflict, SevError, span, "dup", nil)
	rep.Report(BckAliasingConflict, SevError, span, "other msg", nil)
	if bag.Len() != 2 {
		t.Fatalf("len = %d, want 2", bag.Len())
	}
}

func TestCodeID(t *testing.T) {
	if got := BckAliasingConflict.ID(); got != "BCK2001" {
		t.Fatalf("ID = %q", got)
	}
	if got := CfgInvalidOp.ID(); got != "CFG1001" {
		t.Fatalf("ID = %q", got)
	}
}
