package fewshot

import (
	"context"
	"testing"
)

func bankEntries() []Entry {
	return []Entry{
		{Question: "How many singers are there?", SQL: "SELECT COUNT(*) FROM singer", DBID: "concert"},
		{Question: "How many stadiums are there?", SQL: "SELECT COUNT(*) FROM stadium", DBID: "concert"},
		{Question: "List the names of all singers", SQL: "SELECT name FROM singer", DBID: "concert"},
		{Question: "What is the average age of singers?", SQL: "SELECT AVG(age) FROM singer", DBID: "concert"},
		{Question: "Show flight numbers", SQL: "SELECT flno FROM flights", DBID: "flight"},
		{Question: "", SQL: "SELECT 1", DBID: "concert"},
		{Question: "no sql here", SQL: "", DBID: "concert"},
	}
}

func TestNewIndexFiltersPool(t *testing.T) {
	idx := NewIndex(context.Background(), bankEntries(), Options{DBID: "concert"})
	if !idx.Lexical() {
		t.Fatal("nil embedder should select lexical scoring")
	}
	if idx.Size() != 4 {
		t.Fatalf("pool size = %d, want 4", idx.Size())
	}
}

func TestSearchLexical(t *testing.T) {
	idx := NewIndex(context.Background(), bankEntries(), Options{DBID: "concert"})

	got := idx.Search(context.Background(), "How many concerts are there?", 3)
	if len(got) != 3 {
		t.Fatalf("len = %d, want 3", len(got))
	}
	// Both count questions share four words with the query; the singer one
	// is first in the pool so stable sorting keeps it ahead.
	if got[0].Question != "How many singers are there?" {
		t.Fatalf("top hit = %q", got[0].Question)
	}
	if got[1].Question != "How many stadiums are there?" {
		t.Fatalf("second hit = %q", got[1].Question)
	}
}

func TestSearchExcludesSelfMatch(t *testing.T) {
	idx := NewIndex(context.Background(), bankEntries(), Options{DBID: "concert"})

	got := idx.Search(context.Background(), "  how many singers are there?  ", 2)
	for _, e := range got {
		if e.Question == "How many singers are there?" {
			t.Fatal("self match not excluded")
		}
	}
}

func TestSearchEmptyPool(t *testing.T) {
	idx := NewIndex(context.Background(), nil, Options{})
	if got := idx.Search(context.Background(), "anything", 3); len(got) != 0 {
		t.Fatalf("len = %d, want 0", len(got))
	}
}

// fakeEmbedder maps known texts to fixed vectors; unknown texts embed to the
// zero-overlap axis.
type fakeEmbedder struct {
	vectors map[string][]float64
	fail    bool
}

func (f *fakeEmbedder) EmbedTexts(_ context.Context, _ string, texts []string) [][]float64 {
	if f.fail {
		return [][]float64{}
	}
	out := make([][]float64, len(texts))
	for i, t := range texts {
		if v, ok := f.vectors[t]; ok {
			out[i] = v
		} else {
			out[i] = []float64{0, 0, 1}
		}
	}
	return out
}

func TestSearchVector(t *testing.T) {
	entries := []Entry{
		{Question: "count singers", SQL: "SELECT COUNT(*) FROM singer"},
		{Question: "average singer age", SQL: "SELECT AVG(age) FROM singer"},
		{Question: "list flights", SQL: "SELECT * FROM flights"},
	}
	emb := &fakeEmbedder{vectors: map[string][]float64{
		"count singers":      {1, 0, 0},
		"average singer age": {0.5, 0.5, 0},
		"list flights":       {0, 1, 0},
		"how many singers":   {0.9, 0.1, 0},
	}}

	idx := NewIndex(context.Background(), entries, Options{Embedder: emb, Model: "test-embed"})
	if idx.Lexical() {
		t.Fatal("embedding index fell back to lexical")
	}

	got := idx.Search(context.Background(), "how many singers", 2)
	if len(got) != 2 {
		t.Fatalf("len = %d, want 2", len(got))
	}
	if got[0].Question != "count singers" || got[1].Question != "average singer age" {
		t.Fatalf("order = %q, %q", got[0].Question, got[1].Question)
	}
}

func TestFailedEmbeddingFallsBackToLexical(t *testing.T) {
	entries := []Entry{
		{Question: "count singers", SQL: "SELECT COUNT(*) FROM singer"},
		{Question: "list flights", SQL: "SELECT * FROM flights"},
	}
	idx := NewIndex(context.Background(), entries, Options{Embedder: &fakeEmbedder{fail: true}})
	if !idx.Lexical() {
		t.Fatal("failed batch should force lexical mode")
	}

	got := idx.Search(context.Background(), "singers count", 1)
	if len(got) != 1 || got[0].Question != "count singers" {
		t.Fatalf("got %+v", got)
	}
}

func TestMaxDocsAndBatching(t *testing.T) {
	var entries []Entry
	for i := 0; i < 10; i++ {
		entries = append(entries, Entry{Question: "q" + string(rune('a'+i)), SQL: "SELECT 1"})
	}
	emb := &fakeEmbedder{vectors: map[string][]float64{}}
	idx := NewIndex(context.Background(), entries, Options{Embedder: emb, MaxDocs: 6, BatchSize: 4})
	if idx.Size() != 6 {
		t.Fatalf("pool size = %d, want 6", idx.Size())
	}
	if idx.Lexical() {
		t.Fatal("unexpected lexical fallback")
	}
}
