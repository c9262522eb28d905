// Package api exposes the refinement primitives over HTTP and MCP.
package api

import (
	"context"
	"crypto/subtle"
	"encoding/json"
	"fmt"
	"net/http"
	"strings"

	"github.com/go-chi/chi/v5"

	"github.com/kalambet/clarisql/internal/gateway"
	"github.com/kalambet/clarisql/internal/prompt"
	"github.com/kalambet/clarisql/internal/sanitize"
)

const maxRequestBodySize = 1 << 20 // 1MB

// Generator produces a completion for a prompt; gateway.Client implements it.
type Generator interface {
	Generate(ctx context.Context, req gateway.GenerateRequest) (string, float64)
}

// SchemaSource resolves schema text by database id.
type SchemaSource interface {
	Schema(ctx context.Context, dbID string) string
}

// ExemplarSource renders a few-shot block for a question. Optional.
type ExemplarSource interface {
	FewShot(ctx context.Context, question string, shots int) string
}

// Deps holds the handler dependencies.
type Deps struct {
	Generator Generator
	Schemas   SchemaSource
	Exemplars ExemplarSource // optional; nil disables few-shot retrieval

	// Model is the default generation model; AmbiguityModel the classifier
	// model (falls back to Model when empty).
	Model          string
	AmbiguityModel string
	Shots          int

	// Token enables bearer auth on all routes when non-empty.
	Token string
}

// NewHandler builds the HTTP API.
func NewHandler(deps Deps) http.Handler {
	r := chi.NewRouter()
	if deps.Token != "" {
		r.Use(bearerAuth(deps.Token))
	}

	r.Get("/health", handleHealth)
	r.Get("/schema/{dbID}", handleSchema(deps))
	r.Post("/ambiguity/check", handleAmbiguity(deps))
	r.Post("/generate/sql", handleGenerateSQL(deps))
	r.Post("/generate/fix", handleGenerateFix(deps))
	r.Post("/generate/clarify", handleGenerateClarify(deps))
	r.Post("/generate/answer", handleGenerateAnswer(deps))

	return r
}

func bearerAuth(token string) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			auth := r.Header.Get("Authorization")
			const prefix = "Bearer "
			if !strings.HasPrefix(auth, prefix) || subtle.ConstantTimeCompare([]byte(auth[len(prefix):]), []byte(token)) != 1 {
				httpError(w, http.StatusUnauthorized, "authentication_error", "invalid or missing bearer token")
				return
			}
			next.ServeHTTP(w, r)
		})
	}
}

func handleHealth(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "application/json")
	w.Write([]byte(`{"status":"ok"}`))
}

func handleSchema(deps Deps) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		dbID := chi.URLParam(r, "dbID")
		schemaText := deps.Schemas.Schema(r.Context(), dbID)
		if schemaText == "" {
			httpError(w, http.StatusNotFound, "not_found", "unknown database %q", dbID)
			return
		}

		w.Header().Set("Content-Type", "application/json")
		json.NewEncoder(w).Encode(map[string]string{
			"db_id":  dbID,
			"schema": schemaText,
		})
	}
}

type ambiguityRequest struct {
	Question string `json:"question"`
	DBID     string `json:"db_id"`
}

func handleAmbiguity(deps Deps) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var req ambiguityRequest
		if !decodeBody(w, r, &req) {
			return
		}
		if req.Question == "" || req.DBID == "" {
			httpError(w, http.StatusBadRequest, "invalid_request_error", "question and db_id are required")
			return
		}

		schemaText, ok := resolveSchema(w, r, deps, req.DBID)
		if !ok {
			return
		}

		model := deps.AmbiguityModel
		if model == "" {
			model = deps.Model
		}
		text, cost := deps.Generator.Generate(r.Context(), gateway.GenerateRequest{
			Prompt: prompt.AmbiguityCheck(req.Question, schemaText).Text,
			Model:  model,
		})

		w.Header().Set("Content-Type", "application/json")
		json.NewEncoder(w).Encode(map[string]any{
			"ambiguous": prompt.ParseYesNo(text),
			"cost":      cost,
		})
	}
}

type generateSQLRequest struct {
	Question string `json:"question"`
	DBID     string `json:"db_id"`
	Model    string `json:"model,omitempty"`
	Shots    *int   `json:"shots,omitempty"`
}

func handleGenerateSQL(deps Deps) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var req generateSQLRequest
		if !decodeBody(w, r, &req) {
			return
		}
		if req.Question == "" || req.DBID == "" {
			httpError(w, http.StatusBadRequest, "invalid_request_error", "question and db_id are required")
			return
		}

		schemaText, ok := resolveSchema(w, r, deps, req.DBID)
		if !ok {
			return
		}

		shots := deps.Shots
		if req.Shots != nil {
			shots = *req.Shots
		}
		var examples string
		if deps.Exemplars != nil && shots > 0 {
			examples = deps.Exemplars.FewShot(r.Context(), req.Question, shots)
		}

		text, cost := deps.Generator.Generate(r.Context(), gateway.GenerateRequest{
			Prompt: prompt.Initial(req.Question, schemaText, examples).Text,
			Model:  pickModel(req.Model, deps.Model),
		})
		writeSQL(w, sanitize.CleanQuery(text), cost)
	}
}

type generateFixRequest struct {
	DBID  string `json:"db_id"`
	SQL   string `json:"sql"`
	Error string `json:"error"`
	Model string `json:"model,omitempty"`
}

func handleGenerateFix(deps Deps) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var req generateFixRequest
		if !decodeBody(w, r, &req) {
			return
		}
		if req.DBID == "" || req.SQL == "" {
			httpError(w, http.StatusBadRequest, "invalid_request_error", "db_id and sql are required")
			return
		}

		schemaText, ok := resolveSchema(w, r, deps, req.DBID)
		if !ok {
			return
		}

		text, cost := deps.Generator.Generate(r.Context(), gateway.GenerateRequest{
			Prompt: prompt.FixInvalid(schemaText, req.SQL, req.Error).Text,
			Model:  pickModel(req.Model, deps.Model),
		})
		writeSQL(w, sanitize.CleanQuery(text), cost)
	}
}

type exchangePayload struct {
	Question string `json:"question"`
	Answer   string `json:"answer"`
}

type generateClarifyRequest struct {
	Question  string            `json:"question"`
	DBID      string            `json:"db_id"`
	PriorSQL  []string          `json:"prior_sql"`
	Exchanges []exchangePayload `json:"exchanges"`
	Model     string            `json:"model,omitempty"`
}

func handleGenerateClarify(deps Deps) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var req generateClarifyRequest
		if !decodeBody(w, r, &req) {
			return
		}
		if req.Question == "" || req.DBID == "" {
			httpError(w, http.StatusBadRequest, "invalid_request_error", "question and db_id are required")
			return
		}

		schemaText, ok := resolveSchema(w, r, deps, req.DBID)
		if !ok {
			return
		}

		exchanges := make([]prompt.Exchange, len(req.Exchanges))
		for i, e := range req.Exchanges {
			exchanges[i] = prompt.Exchange{Question: e.Question, Answer: e.Answer}
		}

		text, cost := deps.Generator.Generate(r.Context(), gateway.GenerateRequest{
			Prompt: prompt.ClarifyAsk(req.Question, schemaText, req.PriorSQL, exchanges).Text,
			Model:  pickModel(req.Model, deps.Model),
		})
		cq := prompt.ParseClarificationQuestion(text)

		w.Header().Set("Content-Type", "application/json")
		json.NewEncoder(w).Encode(map[string]any{
			"question":     cq,
			"no_ambiguity": cq == "",
			"cost":         cost,
		})
	}
}

type generateAnswerRequest struct {
	Question      string `json:"question"`
	GoldSQL       string `json:"gold_sql"`
	Clarification string `json:"clarification"`
	Model         string `json:"model,omitempty"`
}

func handleGenerateAnswer(deps Deps) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var req generateAnswerRequest
		if !decodeBody(w, r, &req) {
			return
		}
		if req.Question == "" || req.GoldSQL == "" || req.Clarification == "" {
			httpError(w, http.StatusBadRequest, "invalid_request_error", "question, gold_sql, and clarification are required")
			return
		}

		text, cost := deps.Generator.Generate(r.Context(), gateway.GenerateRequest{
			Prompt: prompt.ClarifyAnswer(req.Question, req.GoldSQL, req.Clarification).Text,
			Model:  pickModel(req.Model, deps.Model),
		})

		w.Header().Set("Content-Type", "application/json")
		json.NewEncoder(w).Encode(map[string]any{
			"answer": prompt.ParseClarificationAnswer(text),
			"cost":   cost,
		})
	}
}

func decodeBody(w http.ResponseWriter, r *http.Request, dst any) bool {
	r.Body = http.MaxBytesReader(w, r.Body, maxRequestBodySize)
	defer r.Body.Close()

	if err := json.NewDecoder(r.Body).Decode(dst); err != nil {
		httpError(w, http.StatusBadRequest, "invalid_request_error", "invalid request body: %v", err)
		return false
	}
	return true
}

func resolveSchema(w http.ResponseWriter, r *http.Request, deps Deps, dbID string) (string, bool) {
	schemaText := deps.Schemas.Schema(r.Context(), dbID)
	if schemaText == "" {
		httpError(w, http.StatusNotFound, "not_found", "unknown database %q", dbID)
		return "", false
	}
	return schemaText, true
}

func pickModel(requested, fallback string) string {
	if requested != "" {
		return requested
	}
	return fallback
}

func writeSQL(w http.ResponseWriter, sql string, cost float64) {
	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(map[string]any{
		"sql":  sql,
		"cost": cost,
	})
}

func httpError(w http.ResponseWriter, code int, errType string, format string, args ...any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	msg := fmt.Sprintf(format, args...)
	json.NewEncoder(w).Encode(map[string]any{
		"error": map[string]any{
			"message": msg,
			"type":    errType,
		},
	})
}
