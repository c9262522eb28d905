package api

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/kalambet/clarisql/internal/gateway"
)

// --- mocks ---

type mockGenerator struct {
	reply   string
	prompts []string
	models  []string
}

func (m *mockGenerator) Generate(_ context.Context, req gateway.GenerateRequest) (string, float64) {
	m.prompts = append(m.prompts, req.Prompt)
	m.models = append(m.models, req.Model)
	return m.reply, 0.01
}

type mockSchemas struct{ known map[string]string }

func (m *mockSchemas) Schema(_ context.Context, dbID string) string {
	return m.known[dbID]
}

type mockExemplars struct{ block string }

func (m *mockExemplars) FewShot(context.Context, string, int) string { return m.block }

func testDeps(gen *mockGenerator) Deps {
	return Deps{
		Generator: gen,
		Schemas:   &mockSchemas{known: map[string]string{"concert": "CREATE TABLE singer (name text)"}},
		Model:     "gpt-4o",
	}
}

func doJSON(t *testing.T, handler http.Handler, method, path string, body any) *httptest.ResponseRecorder {
	t.Helper()
	var buf bytes.Buffer
	if body != nil {
		if err := json.NewEncoder(&buf).Encode(body); err != nil {
			t.Fatal(err)
		}
	}
	req := httptest.NewRequest(method, path, &buf)
	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, req)
	return rec
}

// --- tests ---

func TestHealth(t *testing.T) {
	h := NewHandler(testDeps(&mockGenerator{}))
	rec := doJSON(t, h, http.MethodGet, "/health", nil)
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d", rec.Code)
	}
}

func TestSchemaEndpoint(t *testing.T) {
	h := NewHandler(testDeps(&mockGenerator{}))

	rec := doJSON(t, h, http.MethodGet, "/schema/concert", nil)
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d", rec.Code)
	}
	var body map[string]string
	if err := json.Unmarshal(rec.Body.Bytes(), &body); err != nil {
		t.Fatal(err)
	}
	if !strings.Contains(body["schema"], "CREATE TABLE singer") {
		t.Fatalf("schema = %q", body["schema"])
	}

	rec = doJSON(t, h, http.MethodGet, "/schema/unknown", nil)
	if rec.Code != http.StatusNotFound {
		t.Fatalf("status = %d, want 404", rec.Code)
	}
}

func TestAmbiguityCheck(t *testing.T) {
	gen := &mockGenerator{reply: "Answer: Yes, the output columns are unclear."}
	deps := testDeps(gen)
	deps.AmbiguityModel = "gpt-4o-mini"
	h := NewHandler(deps)

	rec := doJSON(t, h, http.MethodPost, "/ambiguity/check", map[string]string{
		"question": "How many singers?",
		"db_id":    "concert",
	})
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d: %s", rec.Code, rec.Body.String())
	}
	var body struct {
		Ambiguous bool    `json:"ambiguous"`
		Cost      float64 `json:"cost"`
	}
	if err := json.Unmarshal(rec.Body.Bytes(), &body); err != nil {
		t.Fatal(err)
	}
	if !body.Ambiguous || body.Cost == 0 {
		t.Fatalf("body = %+v", body)
	}
	if gen.models[0] != "gpt-4o-mini" {
		t.Fatalf("model = %q, want classifier model", gen.models[0])
	}
}

func TestGenerateSQL(t *testing.T) {
	gen := &mockGenerator{reply: "```sql\nSELECT COUNT(*) FROM singer;\n```"}
	deps := testDeps(gen)
	deps.Exemplars = &mockExemplars{block: "/* Example */\n/* Question: How many stadiums? */\n/* SQL: */\nSELECT COUNT(*) FROM stadium\n\n"}
	deps.Shots = 3
	h := NewHandler(deps)

	rec := doJSON(t, h, http.MethodPost, "/generate/sql", map[string]string{
		"question": "How many singers?",
		"db_id":    "concert",
	})
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d: %s", rec.Code, rec.Body.String())
	}
	var body struct {
		SQL string `json:"sql"`
	}
	if err := json.Unmarshal(rec.Body.Bytes(), &body); err != nil {
		t.Fatal(err)
	}
	if body.SQL != "SELECT COUNT(*) FROM singer" {
		t.Fatalf("sql = %q", body.SQL)
	}
	if !strings.Contains(gen.prompts[0], "How many stadiums?") {
		t.Fatal("few-shot block missing from prompt")
	}
}

func TestGenerateSQLValidation(t *testing.T) {
	h := NewHandler(testDeps(&mockGenerator{}))

	rec := doJSON(t, h, http.MethodPost, "/generate/sql", map[string]string{"question": "q"})
	if rec.Code != http.StatusBadRequest {
		t.Fatalf("status = %d, want 400", rec.Code)
	}

	rec = doJSON(t, h, http.MethodPost, "/generate/sql", map[string]string{
		"question": "q", "db_id": "absent",
	})
	if rec.Code != http.StatusNotFound {
		t.Fatalf("status = %d, want 404", rec.Code)
	}
}

func TestGenerateFix(t *testing.T) {
	gen := &mockGenerator{reply: "SELECT COUNT(*) FROM singer"}
	h := NewHandler(testDeps(gen))

	rec := doJSON(t, h, http.MethodPost, "/generate/fix", map[string]string{
		"db_id": "concert",
		"sql":   "SELECT COUNT(* FROM singer",
		"error": "near \"FROM\": syntax error",
	})
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d: %s", rec.Code, rec.Body.String())
	}
	if !strings.Contains(gen.prompts[0], "syntax error") {
		t.Fatal("error message missing from repair prompt")
	}
}

func TestGenerateClarify(t *testing.T) {
	gen := &mockGenerator{reply: `mul_choice_cq = "Which column? a) name, b) id, c) other (please specify)."`}
	h := NewHandler(testDeps(gen))

	rec := doJSON(t, h, http.MethodPost, "/generate/clarify", map[string]any{
		"question":  "How many singers?",
		"db_id":     "concert",
		"prior_sql": []string{"SELECT name FROM singer"},
		"exchanges": []map[string]string{{"question": "prior cq", "answer": "prior answer"}},
	})
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d: %s", rec.Code, rec.Body.String())
	}
	var body struct {
		Question    string `json:"question"`
		NoAmbiguity bool   `json:"no_ambiguity"`
	}
	if err := json.Unmarshal(rec.Body.Bytes(), &body); err != nil {
		t.Fatal(err)
	}
	if body.NoAmbiguity || !strings.HasPrefix(body.Question, "Which column?") {
		t.Fatalf("body = %+v", body)
	}
	if !strings.Contains(gen.prompts[0], "user: prior answer") {
		t.Fatal("prior exchange missing from prompt")
	}
}

func TestGenerateClarifyNoAmbiguity(t *testing.T) {
	gen := &mockGenerator{reply: "Everything is resolved. NO AMBIGUITY"}
	h := NewHandler(testDeps(gen))

	rec := doJSON(t, h, http.MethodPost, "/generate/clarify", map[string]any{
		"question": "q",
		"db_id":    "concert",
	})
	var body struct {
		NoAmbiguity bool `json:"no_ambiguity"`
	}
	if err := json.Unmarshal(rec.Body.Bytes(), &body); err != nil {
		t.Fatal(err)
	}
	if !body.NoAmbiguity {
		t.Fatalf("body = %s", rec.Body.String())
	}
}

func TestGenerateAnswer(t *testing.T) {
	gen := &mockGenerator{reply: `answer_to_cq = "a) one column of names"`}
	h := NewHandler(testDeps(gen))

	rec := doJSON(t, h, http.MethodPost, "/generate/answer", map[string]string{
		"question":      "List singers",
		"gold_sql":      "SELECT name FROM singer",
		"clarification": "What columns? a) names, b) ids",
	})
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d: %s", rec.Code, rec.Body.String())
	}
	var body struct {
		Answer string `json:"answer"`
	}
	if err := json.Unmarshal(rec.Body.Bytes(), &body); err != nil {
		t.Fatal(err)
	}
	if body.Answer != "a) one column of names" {
		t.Fatalf("answer = %q", body.Answer)
	}
}

func TestBearerAuth(t *testing.T) {
	deps := testDeps(&mockGenerator{})
	deps.Token = "secret"
	h := NewHandler(deps)

	rec := doJSON(t, h, http.MethodGet, "/health", nil)
	if rec.Code != http.StatusUnauthorized {
		t.Fatalf("status = %d, want 401", rec.Code)
	}

	req := httptest.NewRequest(http.MethodGet, "/health", nil)
	req.Header.Set("Authorization", "Bearer secret")
	ok := httptest.NewRecorder()
	h.ServeHTTP(ok, req)
	if ok.Code != http.StatusOK {
		t.Fatalf("status = %d, want 200", ok.Code)
	}
}

func TestInvalidBody(t *testing.T) {
	h := NewHandler(testDeps(&mockGenerator{}))
	req := httptest.NewRequest(http.MethodPost, "/generate/sql", strings.NewReader("{not json"))
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)
	if rec.Code != http.StatusBadRequest {
		t.Fatalf("status = %d, want 400", rec.Code)
	}
}
