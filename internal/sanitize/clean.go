// Package sanitize turns raw model output into a single executable SQL
// statement.
package sanitize

import (
	"regexp"
	"strings"
)

var (
	fencedBlockRe = regexp.MustCompile(`(?is)` + "```sql(.*?)```")
	selectRe      = regexp.MustCompile(`(?i)\bSELECT\b`)
	withRe        = regexp.MustCompile(`(?i)\bWITH\b`)
)

// CleanQuery extracts the SQL statement from a raw completion. It unwraps a
// fenced ```sql block when one is present, strips fence markers, statement
// separators and triple quotes, and slices from the first WITH or SELECT
// keyword. Output that contains neither keyword gets a SELECT prefix so the
// result is always a single delimited statement. CleanQuery is idempotent.
func CleanQuery(raw string) string {
	sql := raw
	if m := fencedBlockRe.FindStringSubmatch(sql); m != nil {
		sql = m[1]
	} else {
		sql = strings.ReplaceAll(sql, "```sql", "")
		sql = strings.ReplaceAll(sql, "```", "")
	}

	sql = strings.ReplaceAll(sql, ";", "")
	sql = strings.ReplaceAll(sql, `"""`, "")

	selLoc := selectRe.FindStringIndex(sql)
	withLoc := withRe.FindStringIndex(sql)

	start := -1
	switch {
	case selLoc != nil && withLoc != nil:
		start = min(selLoc[0], withLoc[0])
	case withLoc != nil:
		start = withLoc[0]
	case selLoc != nil:
		start = selLoc[0]
	}

	if start != -1 {
		sql = sql[start:]
	} else {
		sql = "SELECT " + sql
	}
	return strings.TrimSpace(sql)
}
