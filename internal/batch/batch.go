// Package batch fans refinement runs out over a bounded worker pool and
// aggregates their outcomes.
package batch

import (
	"context"
	"log/slog"
	"sync"

	"github.com/google/uuid"
	"golang.org/x/sync/errgroup"

	"github.com/kalambet/clarisql/internal/refine"
)

const defaultConcurrency = 20

// SampleRunner runs one sample to its outcome; *refine.Runner implements it.
type SampleRunner interface {
	Run(ctx context.Context, sample refine.Sample, opts refine.Options) (refine.Outcome, error)
}

// Options configures a batch run.
type Options struct {
	// Concurrency bounds in-flight samples. Zero means 20.
	Concurrency int

	// Refine is applied to every sample.
	Refine refine.Options

	Logger *slog.Logger
}

// Result is the aggregate of a batch run. Outcomes arrive in completion
// order; Failed counts samples dropped because of resolution errors or
// panics.
type Result struct {
	RunID    string
	Outcomes []refine.Outcome
	Failed   int
}

// Run processes all samples through the runner. Individual sample failures
// are logged and dropped; the batch itself only stops on context
// cancellation.
func Run(ctx context.Context, runner SampleRunner, samples []refine.Sample, opts Options) Result {
	logger := opts.Logger
	if logger == nil {
		logger = slog.Default()
	}
	concurrency := opts.Concurrency
	if concurrency <= 0 {
		concurrency = defaultConcurrency
	}

	res := Result{RunID: uuid.NewString()}
	logger.Info("batch started", "run_id", res.RunID, "samples", len(samples), "concurrency", concurrency)

	var mu sync.Mutex
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(concurrency)

	for _, sample := range samples {
		g.Go(func() error {
			if gctx.Err() != nil {
				return nil
			}
			out, err := runOne(gctx, runner, sample, opts.Refine, logger)
			mu.Lock()
			defer mu.Unlock()
			if err != nil {
				res.Failed++
				return nil
			}
			res.Outcomes = append(res.Outcomes, out)
			return nil
		})
	}
	_ = g.Wait() // workers never return errors; failures are counted

	logger.Info("batch finished", "run_id", res.RunID, "completed", len(res.Outcomes), "failed", res.Failed)
	return res
}

// runOne shields the pool from a panicking sample.
func runOne(ctx context.Context, runner SampleRunner, sample refine.Sample, opts refine.Options, logger *slog.Logger) (out refine.Outcome, err error) {
	defer func() {
		if r := recover(); r != nil {
			logger.Error("sample panicked", "sample", sample.ID, "panic", r)
			err = context.Canceled
		}
	}()

	out, err = runner.Run(ctx, sample, opts)
	if err != nil {
		logger.Warn("sample dropped", "sample", sample.ID, "error", err)
	}
	return out, err
}

// Stats summarizes a batch result.
type Stats struct {
	Total   int
	Correct int

	// InitOK counts samples solved on the first attempt, FixOK those solved
	// by the one-shot syntax repair, RoundOK those needing refinement rounds.
	InitOK  int
	FixOK   int
	RoundOK int

	// AvgRounds is the mean round count over samples that needed rounds.
	AvgRounds float64

	TotalCost float64
}

// Summarize derives run statistics from outcomes.
func Summarize(outcomes []refine.Outcome) Stats {
	var s Stats
	var roundSum int
	var rounded int
	s.Total = len(outcomes)
	for _, o := range outcomes {
		s.TotalCost += o.Cost
		if o.Rounds > 0 {
			roundSum += o.Rounds
			rounded++
		}
		if !o.IsCorrect {
			continue
		}
		s.Correct++
		switch {
		case o.Rounds > 0:
			s.RoundOK++
		case o.SyntaxFix:
			s.FixOK++
		default:
			s.InitOK++
		}
	}
	if rounded > 0 {
		s.AvgRounds = float64(roundSum) / float64(rounded)
	}
	return s
}
