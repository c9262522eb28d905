// Package refine drives the multi-round SQL refinement loop: generate,
// execute against the reference, then either self-debug or clarify until the
// candidate matches or the round budget runs out.
package refine

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/kalambet/clarisql/internal/fewshot"
	"github.com/kalambet/clarisql/internal/gateway"
	"github.com/kalambet/clarisql/internal/prompt"
	"github.com/kalambet/clarisql/internal/sanitize"
)

// Strategy selects how failed rounds are spent.
type Strategy string

const (
	// StrategySelfDebug regenerates from the history of incorrect SQL.
	StrategySelfDebug Strategy = "self_debug"
	// StrategyClarify asks a clarification question, answers it from the
	// gold query, and regenerates with the exchange folded in.
	StrategyClarify Strategy = "clarify"
)

// Sample is one benchmark item to solve.
type Sample struct {
	ID       string
	Question string
	GoldSQL  string
	DBID     string
}

// Options tunes a single refinement run.
type Options struct {
	Strategy Strategy

	// MaxRounds bounds refinement rounds after the initial attempt.
	// Zero disables rounds entirely (generate once, optionally repair).
	MaxRounds int

	// Shots is the number of few-shot examples per generation prompt.
	Shots int

	Model          string
	FallbackModels []string
	Temperature    float64

	// Retries and RetryDelay pass through to the gateway; zero keeps its
	// defaults.
	Retries    int
	RetryDelay time.Duration
}

// Outcome records how one sample ended.
type Outcome struct {
	SampleID  string  `json:"id"`
	Question  string  `json:"nlq"`
	FinalSQL  string  `json:"final_sql"`
	Rounds    int     `json:"rounds"`
	IsCorrect bool    `json:"is_correct"`
	SyntaxFix bool    `json:"syntax_fix"`
	Cost      float64 `json:"cost"`
}

// Generator produces a completion for a prompt; gateway.Client implements it.
type Generator interface {
	Generate(ctx context.Context, req gateway.GenerateRequest) (string, float64)
}

// Evaluator compares a candidate against the reference query on a database.
type Evaluator interface {
	Evaluate(ctx context.Context, candidateSQL, referenceSQL, dbPath string) (bool, []string)
}

// SchemaSource resolves database paths and schema text by database id.
type SchemaSource interface {
	DBPath(dbID string) (string, bool)
	Schema(ctx context.Context, dbID string) string
}

// ExemplarSearcher returns the exemplars most similar to a question.
type ExemplarSearcher interface {
	Search(ctx context.Context, question string, k int) []fewshot.Entry
}

// Runner executes refinement runs. Exemplars may be nil, which disables
// few-shot retrieval for generation prompts.
type Runner struct {
	gen       Generator
	eval      Evaluator
	schemas   SchemaSource
	exemplars ExemplarSearcher
	logger    *slog.Logger
}

// NewRunner wires a refinement runner from its collaborators.
func NewRunner(gen Generator, eval Evaluator, schemas SchemaSource, exemplars ExemplarSearcher) *Runner {
	return &Runner{
		gen:       gen,
		eval:      eval,
		schemas:   schemas,
		exemplars: exemplars,
		logger:    slog.Default(),
	}
}

// SetLogger replaces the default logger.
func (r *Runner) SetLogger(logger *slog.Logger) {
	if logger != nil {
		r.logger = logger
	}
}

// Run refines one sample to its outcome. It fails only when the sample's
// database or schema cannot be resolved; generation and execution failures
// are absorbed into the outcome.
func (r *Runner) Run(ctx context.Context, sample Sample, opts Options) (Outcome, error) {
	out := Outcome{SampleID: sample.ID, Question: sample.Question}

	dbPath, ok := r.schemas.DBPath(sample.DBID)
	if !ok {
		return out, fmt.Errorf("database %q not found", sample.DBID)
	}
	schemaText := r.schemas.Schema(ctx, sample.DBID)
	if schemaText == "" {
		return out, fmt.Errorf("no schema for database %q", sample.DBID)
	}

	complete := func(req prompt.Request) string {
		text, cost := r.gen.Generate(ctx, gateway.GenerateRequest{
			Prompt:         req.Text,
			Model:          opts.Model,
			Temperature:    opts.Temperature,
			FallbackModels: opts.FallbackModels,
			Retries:        opts.Retries,
			RetryDelay:     opts.RetryDelay,
		})
		out.Cost += cost
		r.logger.Debug("completion", "sample", sample.ID, "kind", req.Kind.String())
		return text
	}

	examples := r.fewShotBlock(ctx, sample.Question, opts.Shots)
	sql := sanitize.CleanQuery(complete(prompt.Initial(sample.Question, schemaText, examples)))
	out.FinalSQL = sql

	correct, errs := r.eval.Evaluate(ctx, sql, sample.GoldSQL, dbPath)
	if correct {
		out.IsCorrect = true
		return out, nil
	}

	history := newOrderedSet()
	history.add(sql)

	// One repair attempt when the initial answer does not even execute.
	// SyntaxFix marks only a repair whose re-evaluation came back correct.
	if len(errs) > 0 {
		repaired := sanitize.CleanQuery(complete(prompt.FixInvalid(schemaText, sql, errs[0])))
		if repaired != "" && repaired != sql {
			history.replaceLast(repaired)
			out.FinalSQL = repaired
			if ok, _ := r.eval.Evaluate(ctx, repaired, sample.GoldSQL, dbPath); ok {
				out.IsCorrect = true
				out.SyntaxFix = true
				return out, nil
			}
		}
	}

	var exchanges []prompt.Exchange
	for round := 1; round <= opts.MaxRounds; round++ {
		if ctx.Err() != nil {
			return out, ctx.Err()
		}

		var req prompt.Request
		if opts.Strategy == StrategyClarify {
			cq := prompt.ParseClarificationQuestion(
				complete(prompt.ClarifyAsk(sample.Question, schemaText, history.items(), exchanges)))
			if cq == "" {
				// No ambiguity left to resolve: regenerate from the history
				// alone, without spending a clarification exchange.
				r.logger.Debug("no ambiguity left", "sample", sample.ID, "round", round)
			} else {
				answer := prompt.ParseClarificationAnswer(
					complete(prompt.ClarifyAnswer(sample.Question, sample.GoldSQL, cq)))
				exchanges = append(exchanges, prompt.Exchange{Question: cq, Answer: answer})
			}
			req = prompt.Feedback(sample.Question, schemaText, history.items(), exchanges)
		} else {
			req = prompt.SelfDebug(sample.Question, schemaText, history.items(), selfDebugExamples(opts.Shots))
		}

		sql = sanitize.CleanQuery(complete(req))
		out.FinalSQL = sql
		out.Rounds = round

		correct, errs = r.eval.Evaluate(ctx, sql, sample.GoldSQL, dbPath)
		if correct {
			out.IsCorrect = true
			return out, nil
		}
		history.add(sql)

		if len(errs) > 0 {
			repaired := sanitize.CleanQuery(complete(prompt.FixInvalid(schemaText, sql, errs[0])))
			if repaired != "" && repaired != sql {
				history.replaceLast(repaired)
				out.FinalSQL = repaired
				if ok, _ := r.eval.Evaluate(ctx, repaired, sample.GoldSQL, dbPath); ok {
					out.IsCorrect = true
					out.SyntaxFix = true
					return out, nil
				}
			}
		}
	}

	return out, nil
}

// IsAmbiguous classifies a question as ambiguous for its schema. Returns the
// verdict and the generation cost.
func (r *Runner) IsAmbiguous(ctx context.Context, question, schemaText, model string) (bool, float64) {
	text, cost := r.gen.Generate(ctx, gateway.GenerateRequest{
		Prompt: prompt.AmbiguityCheck(question, schemaText).Text,
		Model:  model,
	})
	return prompt.ParseYesNo(text), cost
}

func (r *Runner) fewShotBlock(ctx context.Context, question string, shots int) string {
	if r.exemplars == nil || shots <= 0 {
		return ""
	}
	entries := r.exemplars.Search(ctx, question, shots)
	examples := make([]prompt.Example, 0, len(entries))
	for _, e := range entries {
		examples = append(examples, prompt.Example{Question: e.Question, SQL: e.SQL})
	}
	return prompt.FormatExamples(examples)
}

func selfDebugExamples(shots int) string {
	if shots <= 0 {
		return ""
	}
	all := prompt.SelfDebugShots()
	if shots > len(all) {
		shots = len(all)
	}
	return all[shots-1]
}

// orderedSet keeps unique SQL strings in first-seen order.
type orderedSet struct {
	seen  map[string]struct{}
	order []string
}

func newOrderedSet() *orderedSet {
	return &orderedSet{seen: make(map[string]struct{})}
}

func (s *orderedSet) add(v string) {
	if v == "" {
		return
	}
	if _, ok := s.seen[v]; ok {
		return
	}
	s.seen[v] = struct{}{}
	s.order = append(s.order, v)
}

// replaceLast swaps the most recent entry for v, keeping the set unique.
func (s *orderedSet) replaceLast(v string) {
	if len(s.order) == 0 || v == "" {
		s.add(v)
		return
	}
	if _, ok := s.seen[v]; ok {
		return
	}
	last := s.order[len(s.order)-1]
	delete(s.seen, last)
	s.order[len(s.order)-1] = v
	s.seen[v] = struct{}{}
}

func (s *orderedSet) items() []string { return s.order }
