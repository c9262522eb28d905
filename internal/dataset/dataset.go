// Package dataset loads benchmark samples and question-bank exemplars from
// disk.
package dataset

import (
	"encoding/csv"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"strconv"
	"strings"

	"github.com/kalambet/clarisql/internal/fewshot"
	"github.com/kalambet/clarisql/internal/refine"
)

// Column aliases accepted in sample CSV headers, checked in order.
var (
	idColumns       = []string{"id", "sample_id", "question_id"}
	questionColumns = []string{"nl", "question", "text", "nlq"}
	sqlColumns      = []string{"sql", "gold", "gold_sql", "query"}
	dbColumns       = []string{"db_id", "db", "target_db"}
)

// LoadSamples reads benchmark samples from a CSV file. The header row maps
// columns by alias; rows missing a question, gold SQL, or database id are
// logged and skipped. It fails only when the file cannot be read or no
// usable columns exist.
func LoadSamples(path string, logger *slog.Logger) ([]refine.Sample, error) {
	if logger == nil {
		logger = slog.Default()
	}

	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("opening samples file: %w", err)
	}
	defer f.Close()

	r := csv.NewReader(f)
	r.FieldsPerRecord = -1

	header, err := r.Read()
	if err != nil {
		return nil, fmt.Errorf("reading samples header: %w", err)
	}
	cols := indexColumns(header)
	if cols.question < 0 || cols.sql < 0 || cols.db < 0 {
		return nil, fmt.Errorf("samples file %s lacks question, sql, or db_id columns", path)
	}

	var samples []refine.Sample
	for line := 2; ; line++ {
		row, err := r.Read()
		if err == io.EOF {
			break
		}
		if err != nil {
			logger.Warn("skipping malformed row", "path", path, "line", line, "error", err)
			continue
		}

		s := refine.Sample{
			ID:       field(row, cols.id),
			Question: field(row, cols.question),
			GoldSQL:  field(row, cols.sql),
			DBID:     field(row, cols.db),
		}
		if s.ID == "" {
			s.ID = strconv.Itoa(line - 2)
		}
		if s.Question == "" || s.GoldSQL == "" || s.DBID == "" {
			logger.Warn("skipping incomplete row", "path", path, "line", line)
			continue
		}
		samples = append(samples, s)
	}
	return samples, nil
}

type columnIndex struct {
	id, question, sql, db int
}

func indexColumns(header []string) columnIndex {
	cols := columnIndex{id: -1, question: -1, sql: -1, db: -1}
	for i, h := range header {
		name := strings.ToLower(strings.TrimSpace(h))
		switch {
		case cols.id < 0 && contains(idColumns, name):
			cols.id = i
		case cols.question < 0 && contains(questionColumns, name):
			cols.question = i
		case cols.sql < 0 && contains(sqlColumns, name):
			cols.sql = i
		case cols.db < 0 && contains(dbColumns, name):
			cols.db = i
		}
	}
	return cols
}

func contains(list []string, v string) bool {
	for _, s := range list {
		if s == v {
			return true
		}
	}
	return false
}

func field(row []string, i int) string {
	if i < 0 || i >= len(row) {
		return ""
	}
	return strings.TrimSpace(row[i])
}

// exemplarRecord tolerates the key variants found across question-bank
// exports.
type exemplarRecord struct {
	Question string `json:"question"`
	NL       string `json:"nl"`
	SQL      string `json:"sql"`
	Query    string `json:"query"`
	DBID     string `json:"db_id"`
	DB       string `json:"db"`
	Feedback string `json:"feedback"`
}

// LoadExemplars reads every *.json file in dir; each file holds an array of
// exemplar records. Files that fail to parse are logged and skipped; a
// missing directory is an error.
func LoadExemplars(dir string, logger *slog.Logger) ([]fewshot.Entry, error) {
	if logger == nil {
		logger = slog.Default()
	}

	paths, err := filepath.Glob(filepath.Join(dir, "*.json"))
	if err != nil {
		return nil, fmt.Errorf("listing exemplar files: %w", err)
	}
	if _, err := os.Stat(dir); err != nil {
		return nil, fmt.Errorf("exemplar directory: %w", err)
	}

	var entries []fewshot.Entry
	for _, path := range paths {
		data, err := os.ReadFile(path)
		if err != nil {
			logger.Warn("skipping unreadable exemplar file", "path", path, "error", err)
			continue
		}
		var records []exemplarRecord
		if err := json.Unmarshal(data, &records); err != nil {
			logger.Warn("skipping malformed exemplar file", "path", path, "error", err)
			continue
		}
		for _, rec := range records {
			entries = append(entries, fewshot.Entry{
				Question: firstOf(rec.Question, rec.NL),
				SQL:      firstOf(rec.SQL, rec.Query),
				DBID:     firstOf(rec.DBID, rec.DB),
				Feedback: rec.Feedback,
			})
		}
	}
	return entries, nil
}

func firstOf(values ...string) string {
	for _, v := range values {
		if v = strings.TrimSpace(v); v != "" {
			return v
		}
	}
	return ""
}
