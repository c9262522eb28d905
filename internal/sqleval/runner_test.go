package sqleval

import (
	"context"
	"strings"
	"testing"
	"time"
)

// The worker command line is swapped via Argv so the isolation boundary can
// be exercised without building a second binary.

func TestProcessRunnerTimesOut(t *testing.T) {
	r := &ProcessRunner{Argv: []string{"sh", "-c", "sleep 60"}}

	ctx, cancel := context.WithTimeout(context.Background(), 50*time.Millisecond)
	defer cancel()

	_, err := r.Run(ctx, "/tmp/ignored.sqlite", "SELECT 1")
	if err == nil {
		t.Fatal("expected error from hung worker")
	}
	if !strings.Contains(err.Error(), "timed out") {
		t.Fatalf("err = %v, want timeout", err)
	}
}

func TestProcessRunnerWorkerCrash(t *testing.T) {
	r := &ProcessRunner{Argv: []string{"sh", "-c", "echo boom >&2; exit 3"}}

	_, err := r.Run(context.Background(), "/tmp/ignored.sqlite", "SELECT 1")
	if err == nil {
		t.Fatal("expected error from crashed worker")
	}
	if !strings.Contains(err.Error(), "worker process failed") || !strings.Contains(err.Error(), "boom") {
		t.Fatalf("err = %v, want crash with stderr", err)
	}
}

func TestProcessRunnerDecodesWorkerOutput(t *testing.T) {
	r := &ProcessRunner{Argv: []string{"sh", "-c", `cat >/dev/null; echo '{"rows":[["Lisbon","550000"]]}'`}}

	rows, err := r.Run(context.Background(), "/tmp/ignored.sqlite", "SELECT 1")
	if err != nil {
		t.Fatalf("Run: %v", err)
	}
	if len(rows) != 1 || rows[0][0] != "Lisbon" || rows[0][1] != "550000" {
		t.Fatalf("rows = %v", rows)
	}
}

func TestProcessRunnerSurfacesWorkerError(t *testing.T) {
	r := &ProcessRunner{Argv: []string{"sh", "-c", `cat >/dev/null; echo '{"error":"no such table: cities"}'`}}

	_, err := r.Run(context.Background(), "/tmp/ignored.sqlite", "SELECT 1")
	if err == nil || !strings.Contains(err.Error(), "no such table") {
		t.Fatalf("err = %v, want worker-reported query error", err)
	}
}

func TestEvaluateHungCandidate(t *testing.T) {
	db := testDB(t)
	e := New(&ProcessRunner{Argv: []string{"sh", "-c", "sleep 60"}})
	e.SetTimeout(50 * time.Millisecond)

	ok, errs := e.Evaluate(context.Background(), "SELECT name FROM cities", "SELECT name FROM cities", db)
	if ok {
		t.Fatal("Evaluate = true, want false")
	}
	if len(errs) != 1 || !strings.Contains(errs[0], "timed out") {
		t.Fatalf("errs = %v, want timeout", errs)
	}
}

func TestEvaluateCrashedCandidate(t *testing.T) {
	db := testDB(t)
	e := New(&ProcessRunner{Argv: []string{"sh", "-c", "exit 3"}})

	ok, errs := e.Evaluate(context.Background(), "SELECT name FROM cities", "SELECT name FROM cities", db)
	if ok {
		t.Fatal("Evaluate = true, want false")
	}
	if len(errs) != 1 || !strings.Contains(errs[0], "worker process failed") {
		t.Fatalf("errs = %v, want worker failure", errs)
	}
}
