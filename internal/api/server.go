// Package api exposes the chatbot over HTTP and MCP.
package api

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"net/http"
	"strconv"
	"strings"

	"github.com/go-chi/chi/v5"

	"github.com/kalambet/uniguide/internal/answer"
	"github.com/kalambet/uniguide/internal/corpus"
	"github.com/kalambet/uniguide/internal/ingest"
	"github.com/kalambet/uniguide/internal/storage"
)

const maxRequestBodySize = 1 << 20 // 1MB

// Answerer turns a chat request into a response envelope.
type Answerer interface {
	Handle(ctx context.Context, req answer.Request) answer.Envelope
}

// Indexer rebuilds or drops the semantic index.
type Indexer interface {
	ReindexCorpus(ctx context.Context) (ingest.Report, error)
	Clear() error
}

// Deps holds what the HTTP handlers need.
type Deps struct {
	Router  Answerer
	Store   *storage.Store
	Library *corpus.Library
	Indexer Indexer
	Token   string

	// IndexReady reports whether the semantic index is serving. Optional.
	IndexReady func() bool
}

// NewHandler returns the HTTP API: public chat and health routes plus the
// bearer-protected admin routes under /api/admin.
func NewHandler(deps Deps) http.Handler {
	r := chi.NewRouter()

	r.Get("/health", handleHealth(deps))
	r.Post("/api/chat", handleChat(deps))
	r.Mount("/api/admin", newAdminHandler(deps))

	return r
}

// HealthResponse is the body of GET /health.
type HealthResponse struct {
	Status     string `json:"status"`
	IndexReady bool   `json:"index_ready"`
}

func handleHealth(deps Deps) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		resp := HealthResponse{Status: "ok"}
		if deps.IndexReady != nil {
			resp.IndexReady = deps.IndexReady()
		}
		writeJSON(w, http.StatusOK, resp)
	}
}

func handleChat(deps Deps) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		r.Body = http.MaxBytesReader(w, r.Body, maxRequestBodySize)
		defer r.Body.Close()

		var req answer.Request
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			httpError(w, http.StatusBadRequest, "invalid_request_error", "invalid request body: %v", err)
			return
		}
		req.Message = strings.TrimSpace(req.Message)
		if req.Message == "" {
			httpError(w, http.StatusBadRequest, "invalid_request_error", "message is required")
			return
		}

		env := deps.Router.Handle(r.Context(), req)
		slog.Debug("chat answered", "success", env.Success, "lang", req.Lang())
		writeJSON(w, http.StatusOK, env)
	}
}

func writeJSON(w http.ResponseWriter, code int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	json.NewEncoder(w).Encode(v)
}

func httpError(w http.ResponseWriter, code int, errType string, format string, args ...any) {
	msg := fmt.Sprintf(format, args...)
	writeJSON(w, code, map[string]any{
		"error": map[string]any{
			"message": msg,
			"type":    errType,
		},
	})
}

func parseIntParam(r *http.Request, key string, defaultVal, maxVal int) int {
	s := r.URL.Query().Get(key)
	if s == "" {
		return defaultVal
	}
	v, err := strconv.Atoi(s)
	if err != nil || v <= 0 {
		return defaultVal
	}
	if maxVal > 0 && v > maxVal {
		return maxVal
	}
	return v
}
