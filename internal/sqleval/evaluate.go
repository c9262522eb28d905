package sqleval

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"sort"
	"strings"
	"time"
)

// DefaultTimeout bounds candidate execution. The reference query runs
// without a dedicated deadline; it is trusted and bounded by dataset
// construction.
const DefaultTimeout = 30 * time.Second

// Evaluator judges whether a candidate query is semantically equivalent to
// a reference query on one database.
type Evaluator struct {
	runner  CandidateRunner
	timeout time.Duration
	logger  *slog.Logger
}

// New creates an Evaluator. A nil runner selects the process-isolated
// default.
func New(runner CandidateRunner) *Evaluator {
	if runner == nil {
		runner = NewProcessRunner()
	}
	return &Evaluator{
		runner:  runner,
		timeout: DefaultTimeout,
		logger:  slog.Default(),
	}
}

// SetTimeout replaces the candidate execution deadline. Non-positive
// values are ignored.
func (e *Evaluator) SetTimeout(d time.Duration) {
	if d > 0 {
		e.timeout = d
	}
}

// Evaluate runs candidateSQL (isolated, with timeout) and referenceSQL
// (in-process) against the database at dbPath and reports equivalence.
//
// The error list is non-empty only when execution itself failed: a missing
// database, a candidate that errored, timed out, or crashed its worker, or
// a reference that failed to run. Result sets that merely differ in content
// yield (false, nil).
func (e *Evaluator) Evaluate(ctx context.Context, candidateSQL, referenceSQL, dbPath string) (bool, []string) {
	if _, err := os.Stat(dbPath); err != nil {
		return false, []string{fmt.Sprintf("database not found: %s", dbPath)}
	}

	runCtx, cancel := context.WithTimeout(ctx, e.timeout)
	defer cancel()

	candidate, err := e.runner.Run(runCtx, dbPath, candidateSQL)
	if err != nil {
		e.logger.Debug("candidate execution failed", "db", dbPath, "error", err)
		return false, []string{err.Error()}
	}

	reference, err := ExecQuery(ctx, dbPath, referenceSQL)
	if err != nil {
		return false, []string{fmt.Sprintf("reference query failed: %v", err)}
	}

	return equivalent(candidate, reference, referenceSQL), nil
}

// equivalent applies the order-sensitivity rule derived from the reference
// query text: an explicit ORDER BY demands exact row sequence, anything
// else is compared as a canonicalized set.
func equivalent(candidate, reference []Row, referenceSQL string) bool {
	if len(candidate) != len(reference) {
		return false
	}
	if strings.Contains(strings.ToUpper(referenceSQL), "ORDER BY") {
		return rowsEqual(candidate, reference)
	}
	return rowsEqual(canonicalize(candidate), canonicalize(reference))
}

// canonicalize sorts rows by their textual representation so that
// incidental row order does not affect comparison.
func canonicalize(rows []Row) []Row {
	sorted := make([]Row, len(rows))
	copy(sorted, rows)
	sort.SliceStable(sorted, func(i, j int) bool {
		return rowKey(sorted[i]) < rowKey(sorted[j])
	})
	return sorted
}

func rowKey(r Row) string {
	return strings.Join(r, "\x1f")
}

func rowsEqual(a, b []Row) bool {
	if len(a) != len(b) {
		return false
	}
	for i := range a {
		if len(a[i]) != len(b[i]) {
			return false
		}
		for j := range a[i] {
			if a[i][j] != b[i][j] {
				return false
			}
		}
	}
	return true
}
