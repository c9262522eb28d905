// Package sqleval executes candidate and reference SQL against a SQLite
// database and decides semantic equivalence. Candidate SQL is untrusted and
// always runs in an isolated worker process.
package sqleval

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"io"
	"strconv"

	_ "modernc.org/sqlite"
)

// Row is one result row with every cell rendered to text.
type Row []string

// ExecQuery opens the database read-only, runs the query, and returns all
// rows with cells rendered to text. It is used directly for trusted
// reference queries and inside the worker process for candidates.
func ExecQuery(ctx context.Context, dbPath, query string) ([]Row, error) {
	db, err := sql.Open("sqlite", "file:"+dbPath+"?mode=ro")
	if err != nil {
		return nil, fmt.Errorf("opening database: %w", err)
	}
	defer db.Close()

	rows, err := db.QueryContext(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("executing query: %w", err)
	}
	defer rows.Close()

	cols, err := rows.Columns()
	if err != nil {
		return nil, fmt.Errorf("reading columns: %w", err)
	}

	var out []Row
	for rows.Next() {
		raw := make([]any, len(cols))
		ptrs := make([]any, len(cols))
		for i := range raw {
			ptrs[i] = &raw[i]
		}
		if err := rows.Scan(ptrs...); err != nil {
			return nil, fmt.Errorf("scanning row: %w", err)
		}

		row := make(Row, len(cols))
		for i, v := range raw {
			row[i] = renderCell(v)
		}
		out = append(out, row)
	}
	return out, rows.Err()
}

func renderCell(v any) string {
	switch c := v.(type) {
	case nil:
		return "NULL"
	case []byte:
		return string(c)
	case string:
		return c
	case int64:
		return strconv.FormatInt(c, 10)
	case float64:
		return strconv.FormatFloat(c, 'g', -1, 64)
	case bool:
		return strconv.FormatBool(c)
	default:
		return fmt.Sprint(c)
	}
}

// workerResult is the JSON envelope the worker process writes on stdout.
// SQL execution errors travel inside the envelope with a zero exit status;
// only transport-level problems surface as process failures.
type workerResult struct {
	Rows  []Row  `json:"rows"`
	Error string `json:"error,omitempty"`
}

// RunWorker executes one candidate query read from in against dbPath and
// writes a workerResult to out. It backs the hidden exec-query subcommand.
func RunWorker(ctx context.Context, dbPath string, in io.Reader, out io.Writer) error {
	query, err := io.ReadAll(in)
	if err != nil {
		return fmt.Errorf("reading query: %w", err)
	}

	var result workerResult
	rows, execErr := ExecQuery(ctx, dbPath, string(query))
	if execErr != nil {
		result.Error = execErr.Error()
	} else {
		result.Rows = rows
	}

	if err := json.NewEncoder(out).Encode(result); err != nil {
		return fmt.Errorf("encoding result: %w", err)
	}
	return nil
}
