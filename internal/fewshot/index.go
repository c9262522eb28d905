package fewshot

import (
	"context"
	"log/slog"
	"math"
	"sort"
	"strings"
)

// Entry is one question-bank exemplar: a past natural-language question with
// its known-good SQL and optional clarification feedback.
type Entry struct {
	Question string `json:"question"`
	SQL      string `json:"sql"`
	Feedback string `json:"feedback,omitempty"`
	DBID     string `json:"db_id,omitempty"`
}

// Embedder turns texts into embedding vectors. A failed call returns an
// empty slice rather than an error.
type Embedder interface {
	EmbedTexts(ctx context.Context, model string, texts []string) [][]float64
}

// Options configures index construction.
type Options struct {
	// DBID restricts the pool to exemplars for one database. Empty keeps all.
	DBID string

	// Embedder enables vector search. Nil selects lexical overlap scoring.
	Embedder Embedder

	// Model is the embedding model name passed to the Embedder.
	Model string

	// MaxDocs caps how many exemplars get embedded. Zero means defaultMaxDocs.
	MaxDocs int

	// BatchSize bounds each embedding request. Zero means defaultBatchSize.
	BatchSize int

	Logger *slog.Logger
}

const (
	defaultMaxDocs   = 1000
	defaultBatchSize = 100
)

// Index holds a filtered exemplar pool and serves top-K similarity lookups.
// Once any embedding batch fails the index degrades to lexical scoring for
// the rest of its lifetime.
type Index struct {
	pool    []Entry
	vectors [][]float64
	lexical bool

	embedder Embedder
	model    string
	logger   *slog.Logger
}

// NewIndex filters entries by options and builds the search index. Entries
// missing a question or SQL are discarded. Construction never fails: when
// embedding is unavailable the index falls back to lexical scoring.
func NewIndex(ctx context.Context, entries []Entry, opts Options) *Index {
	logger := opts.Logger
	if logger == nil {
		logger = slog.Default()
	}

	idx := &Index{
		embedder: opts.Embedder,
		model:    opts.Model,
		logger:   logger,
	}
	for _, e := range entries {
		if strings.TrimSpace(e.Question) == "" || strings.TrimSpace(e.SQL) == "" {
			continue
		}
		if opts.DBID != "" && e.DBID != "" && e.DBID != opts.DBID {
			continue
		}
		idx.pool = append(idx.pool, e)
	}

	if idx.embedder == nil {
		idx.lexical = true
		return idx
	}
	idx.embedPool(ctx, opts)
	return idx
}

func (idx *Index) embedPool(ctx context.Context, opts Options) {
	maxDocs := opts.MaxDocs
	if maxDocs <= 0 {
		maxDocs = defaultMaxDocs
	}
	batchSize := opts.BatchSize
	if batchSize <= 0 {
		batchSize = defaultBatchSize
	}
	if len(idx.pool) > maxDocs {
		idx.pool = idx.pool[:maxDocs]
	}

	for start := 0; start < len(idx.pool); start += batchSize {
		end := start + batchSize
		if end > len(idx.pool) {
			end = len(idx.pool)
		}
		texts := make([]string, 0, end-start)
		for _, e := range idx.pool[start:end] {
			texts = append(texts, e.Question)
		}

		vecs := idx.embedder.EmbedTexts(ctx, idx.model, texts)
		if len(vecs) != len(texts) {
			idx.logger.Warn("embedding batch failed, using lexical scoring",
				"batch_start", start, "pool_size", len(idx.pool))
			idx.lexical = true
			idx.vectors = nil
			return
		}
		idx.vectors = append(idx.vectors, vecs...)
	}
}

// Size reports how many exemplars the index holds.
func (idx *Index) Size() int { return len(idx.pool) }

// Lexical reports whether the index scores by word overlap instead of vectors.
func (idx *Index) Lexical() bool { return idx.lexical }

// Search returns the top-K exemplars most similar to question, excluding an
// exemplar whose question equals it (the sample being solved is usually in
// the bank). Returns an empty slice when the pool is empty or k <= 0.
func (idx *Index) Search(ctx context.Context, question string, k int) []Entry {
	if len(idx.pool) == 0 || k <= 0 {
		return []Entry{}
	}

	var scores []float64
	if idx.lexical {
		scores = idx.lexicalScores(question)
	} else {
		scores = idx.vectorScores(ctx, question)
		if scores == nil {
			scores = idx.lexicalScores(question)
		}
	}

	order := make([]int, len(idx.pool))
	for i := range order {
		order[i] = i
	}
	sort.SliceStable(order, func(a, b int) bool {
		return scores[order[a]] > scores[order[b]]
	})

	needle := strings.ToLower(strings.TrimSpace(question))
	out := make([]Entry, 0, k)
	for _, i := range order {
		if strings.ToLower(strings.TrimSpace(idx.pool[i].Question)) == needle {
			continue
		}
		out = append(out, idx.pool[i])
		if len(out) == k {
			break
		}
	}
	return out
}

func (idx *Index) vectorScores(ctx context.Context, question string) []float64 {
	vecs := idx.embedder.EmbedTexts(ctx, idx.model, []string{question})
	if len(vecs) != 1 {
		idx.logger.Warn("query embedding failed, using lexical scoring")
		return nil
	}
	query := vecs[0]
	scores := make([]float64, len(idx.pool))
	for i, v := range idx.vectors {
		scores[i] = cosine(query, v)
	}
	return scores
}

func (idx *Index) lexicalScores(question string) []float64 {
	qWords := wordSet(question)
	scores := make([]float64, len(idx.pool))
	for i, e := range idx.pool {
		scores[i] = overlap(qWords, wordSet(e.Question))
	}
	return scores
}

// cosine computes cosine similarity between two vectors of equal length.
func cosine(a, b []float64) float64 {
	if len(a) != len(b) {
		return 0
	}
	var dot, aNormSq, bNormSq float64
	for i := range a {
		dot += a[i] * b[i]
		aNormSq += a[i] * a[i]
		bNormSq += b[i] * b[i]
	}
	if aNormSq == 0 || bNormSq == 0 {
		return 0
	}
	return dot / (math.Sqrt(aNormSq) * math.Sqrt(bNormSq))
}

func wordSet(text string) map[string]struct{} {
	set := make(map[string]struct{})
	for _, w := range strings.Fields(strings.ToLower(text)) {
		w = strings.Trim(w, ".,;:!?\"'()")
		if w != "" {
			set[w] = struct{}{}
		}
	}
	return set
}

func overlap(a, b map[string]struct{}) float64 {
	var n int
	for w := range a {
		if _, ok := b[w]; ok {
			n++
		}
	}
	return float64(n)
}
