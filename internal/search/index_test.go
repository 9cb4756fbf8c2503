package search

import (
	"reflect"
	"testing"
)

func testEntries() []Entry {
	return []Entry{
		{Ref: "1", Text: "Matrix filme de ficção científica"},
		{Ref: "2", Text: "Matrix Reloaded"},
		{Ref: "3", Text: "receita de bolo de cenoura"},
		{Ref: "4", Text: "Duna parte dois"},
	}
}

func TestTopK_Ranking(t *testing.T) {
	idx := NewIndex(testEntries())

	got := idx.TopK("matrix", 5)
	if len(got) != 2 {
		t.Fatalf("expected 2 matches, got %+v", got)
	}
	// "Matrix Reloaded" has the smaller token set, so the shared token weighs
	// more under Jaccard.
	if got[0].Ref != "2" || got[1].Ref != "1" {
		t.Fatalf("unexpected order: %+v", got)
	}
	if got[0].Score <= got[1].Score {
		t.Fatalf("scores must be descending: %+v", got)
	}
}

func TestTopK_Deterministic(t *testing.T) {
	entries := []Entry{
		{Ref: "b", Text: "bolo de uvas"},
		{Ref: "a", Text: "bolo de fubá"},
	}
	idx := NewIndex(entries)

	first := idx.TopK("bolo", 5)
	for i := 0; i < 10; i++ {
		if again := idx.TopK("bolo", 5); !reflect.DeepEqual(first, again) {
			t.Fatalf("order must be stable across calls: %+v vs %+v", first, again)
		}
	}
	// Equal score and length: ties break lexicographically on the text.
	if first[0].Snippet != "bolo de fubá" {
		t.Fatalf("unexpected tie-break: %+v", first)
	}
}

func TestTopK_StopwordsIgnored(t *testing.T) {
	idx := NewIndex(testEntries())

	// The query is pure filler after stop-word removal.
	if got := idx.TopK("de o a para", 5); got != nil {
		t.Fatalf("stop-word-only query must match nothing: %+v", got)
	}

	// Filler around a real token does not change the match set.
	with := idx.TopK("a receita de bolo", 5)
	without := idx.TopK("receita bolo", 5)
	if !reflect.DeepEqual(with, without) {
		t.Fatalf("stop-words must not affect ranking: %+v vs %+v", with, without)
	}
}

func TestTopK_AccentInsensitive(t *testing.T) {
	idx := NewIndex(testEntries())

	got := idx.TopK("ficcao cientifica", 5)
	if len(got) != 1 || got[0].Ref != "1" {
		t.Fatalf("unaccented query must match accented text: %+v", got)
	}

	// And the other way around.
	idx = NewIndex([]Entry{{Ref: "1", Text: "musica para relaxar"}})
	if got := idx.TopK("música", 5); len(got) != 1 {
		t.Fatalf("accented query must match unaccented text: %+v", got)
	}
}

func TestTopK_KClampAndEmpty(t *testing.T) {
	idx := NewIndex(testEntries())

	if got := idx.TopK("matrix", 1); len(got) != 1 {
		t.Fatalf("k must cap results: %+v", got)
	}
	if got := idx.TopK("matrix", 0); len(got) != 2 {
		t.Fatalf("non-positive k falls back to the default: %+v", got)
	}
	if got := idx.TopK("", 5); got != nil {
		t.Fatalf("empty query must return nil: %+v", got)
	}
	if got := idx.TopK("zzz-sem-match", 5); got != nil {
		t.Fatalf("no-overlap query must return nil: %+v", got)
	}

	empty := NewIndex(nil)
	if got := empty.TopK("matrix", 5); got != nil {
		t.Fatalf("empty index must return nil: %+v", got)
	}
}

func TestNewIndex_Options(t *testing.T) {
	capped := NewIndex(testEntries(), WithMaxDocs(2))
	if got := capped.TopK("duna", 5); got != nil {
		t.Fatalf("entries past the cap must not be indexed: %+v", got)
	}

	custom := NewIndex([]Entry{{Ref: "1", Text: "matrix reloaded"}}, WithStopwords([]string{"matrix"}))
	if got := custom.TopK("matrix", 5); got != nil {
		t.Fatalf("custom stop-word must be dropped: %+v", got)
	}
	if got := custom.TopK("reloaded", 5); len(got) != 1 {
		t.Fatalf("remaining tokens must still match: %+v", got)
	}
}
