package sqleval

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"os/exec"
	"strings"
)

// CandidateRunner executes untrusted candidate SQL and returns its rows.
// Implementations decide the isolation boundary; the production runner uses
// a separate OS process so a hung or destructive query cannot affect the
// caller.
type CandidateRunner interface {
	Run(ctx context.Context, dbPath, query string) ([]Row, error)
}

// ProcessRunner executes candidates by spawning this binary's hidden
// exec-query subcommand, one process per call.
type ProcessRunner struct {
	// Argv is the worker command line; the database path is appended and the
	// query is written to stdin. Empty means "this executable, exec-query".
	Argv []string
}

// NewProcessRunner returns a ProcessRunner that re-executes the current
// binary as its worker.
func NewProcessRunner() *ProcessRunner {
	return &ProcessRunner{}
}

func (r *ProcessRunner) Run(ctx context.Context, dbPath, query string) ([]Row, error) {
	argv := r.Argv
	if len(argv) == 0 {
		exe, err := os.Executable()
		if err != nil {
			return nil, fmt.Errorf("locating worker binary: %w", err)
		}
		argv = []string{exe, "exec-query"}
	}

	cmd := exec.CommandContext(ctx, argv[0], append(argv[1:], dbPath)...)
	cmd.Stdin = strings.NewReader(query)
	var stdout, stderr bytes.Buffer
	cmd.Stdout = &stdout
	cmd.Stderr = &stderr

	if err := cmd.Run(); err != nil {
		if errors.Is(ctx.Err(), context.DeadlineExceeded) {
			return nil, fmt.Errorf("candidate query timed out")
		}
		return nil, fmt.Errorf("worker process failed: %v: %s", err, strings.TrimSpace(stderr.String()))
	}

	var result workerResult
	if err := json.Unmarshal(stdout.Bytes(), &result); err != nil {
		return nil, fmt.Errorf("decoding worker output: %w", err)
	}
	if result.Error != "" {
		return nil, errors.New(result.Error)
	}
	return result.Rows, nil
}

// InProcessRunner executes candidates in the calling process. It backs the
// worker subcommand itself and evaluator tests; it provides no isolation and
// must not be used for untrusted SQL in the orchestrating process.
type InProcessRunner struct{}

func (InProcessRunner) Run(ctx context.Context, dbPath, query string) ([]Row, error) {
	return ExecQuery(ctx, dbPath, query)
}
