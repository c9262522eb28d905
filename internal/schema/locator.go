// Package schema resolves database identifiers to SQLite files and serves
// their CREATE TABLE text, cached for the process lifetime.
package schema

import (
	"context"
	"database/sql"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"sync"

	_ "modernc.org/sqlite"
)

// Locator maps database identifiers to files under a root directory and
// caches generated schema text. Schema entries are filled lazily and never
// evicted; a first-access race may compute an entry twice, both computations
// produce the same value.
type Locator struct {
	root   string
	cache  sync.Map // db id -> schema text (possibly empty)
	logger *slog.Logger
}

// NewLocator creates a Locator rooted at the given databases directory.
func NewLocator(root string) *Locator {
	return &Locator{root: root, logger: slog.Default()}
}

// DBPath resolves a database identifier to a file path, probing the
// conventional layouts under the root. The second result is false when no
// candidate exists.
func (l *Locator) DBPath(dbID string) (string, bool) {
	candidates := []string{
		filepath.Join(l.root, dbID, dbID+".sqlite"),
		filepath.Join(l.root, dbID+".sqlite"),
	}
	for _, p := range candidates {
		if info, err := os.Stat(p); err == nil && !info.IsDir() {
			return p, true
		}
	}
	return "", false
}

// Schema returns the cached CREATE TABLE text for a database identifier.
// An unresolvable identifier caches and returns the empty string; callers
// treat that as "skip this sample".
func (l *Locator) Schema(ctx context.Context, dbID string) string {
	if v, ok := l.cache.Load(dbID); ok {
		return v.(string)
	}

	text := ""
	if path, ok := l.DBPath(dbID); ok {
		generated, err := GenerateSchema(ctx, path)
		if err != nil {
			l.logger.Warn("schema generation failed", "db", dbID, "error", err)
		} else {
			text = generated
		}
	}

	l.cache.Store(dbID, text)
	return text
}

// GenerateSchema reads sqlite_master and returns the database's CREATE
// TABLE statements joined by blank lines, skipping SQLite's internal
// sqlite_sequence table.
func GenerateSchema(ctx context.Context, dbPath string) (string, error) {
	db, err := sql.Open("sqlite", "file:"+dbPath+"?mode=ro")
	if err != nil {
		return "", fmt.Errorf("opening database: %w", err)
	}
	defer db.Close()

	rows, err := db.QueryContext(ctx,
		`SELECT name, sql FROM sqlite_master WHERE type = 'table' ORDER BY rowid`)
	if err != nil {
		return "", fmt.Errorf("reading sqlite_master: %w", err)
	}
	defer rows.Close()

	var stmts []string
	for rows.Next() {
		var name string
		var create sql.NullString
		if err := rows.Scan(&name, &create); err != nil {
			return "", fmt.Errorf("scanning table row: %w", err)
		}
		if name == "sqlite_sequence" || !create.Valid {
			continue
		}
		stmts = append(stmts, create.String)
	}
	if err := rows.Err(); err != nil {
		return "", err
	}
	return strings.Join(stmts, "\n\n"), nil
}
