package api

import (
	"bytes"
	"encoding/base64"
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"net/url"
	"os"
	"path/filepath"
	"strings"

	"github.com/go-chi/chi/v5"

	"github.com/kalambet/uniguide/internal/corpus"
	"github.com/kalambet/uniguide/internal/ingest"
	"github.com/kalambet/uniguide/internal/storage"
)

const maxUploadBodySize = 20 << 20 // 20MB, base64 of a 15MB file

// UploadRequest carries a base64-encoded file.
type UploadRequest struct {
	Filename string `json:"filename"`
	Content  string `json:"content"`
}

// FetchRequest asks the server to scrape a page into the corpus.
type FetchRequest struct {
	URL         string `json:"url"`
	KeepOldData bool   `json:"keep_old_data"`
}

// ReindexResponse is the result of a synchronous reindex.
type ReindexResponse struct {
	Success bool   `json:"success"`
	Message string `json:"message"`
	Chunks  int    `json:"chunks"`
	Files   int    `json:"files"`
}

// JobResponse is returned for work queued in the background.
type JobResponse struct {
	Status string `json:"status"`
	JobID  string `json:"job_id,omitempty"`
}

func newAdminHandler(deps Deps) http.Handler {
	r := chi.NewRouter()
	r.Use(BearerAuth(deps.Token))

	r.Post("/reindex", handleReindex(deps))
	r.Get("/files", handleListFiles(deps))
	r.Post("/files", handleUpload(deps))
	r.Delete("/files/*", handleDeleteFile(deps))
	r.Post("/fetch", handleFetch(deps))
	r.Post("/records", handleAddRecord(deps))
	r.Post("/clear", handleClear(deps))
	r.Get("/analytics/top-queries", handleTopQueries(deps))

	return r
}

func handleReindex(deps Deps) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Query().Get("async") == "true" {
			queueReindex(w, deps)
			return
		}

		report, err := deps.Indexer.ReindexCorpus(r.Context())
		if err != nil {
			httpError(w, http.StatusInternalServerError, "api_error", "reindex failed: %v", err)
			return
		}
		writeJSON(w, http.StatusOK, ReindexResponse{
			Success: true,
			Message: report.Message(),
			Chunks:  report.ChunkCount,
			Files:   report.FilesProcessed,
		})
	}
}

func queueReindex(w http.ResponseWriter, deps Deps) {
	id, err := ingest.EnqueueReindex(deps.Store)
	if err != nil {
		httpError(w, http.StatusInternalServerError, "api_error", "failed to enqueue reindex: %v", err)
		return
	}
	if id == "" {
		writeJSON(w, http.StatusAccepted, JobResponse{Status: "already_queued"})
		return
	}
	writeJSON(w, http.StatusAccepted, JobResponse{Status: "queued", JobID: id})
}

func handleListFiles(deps Deps) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		files, err := deps.Library.List()
		if err != nil {
			httpError(w, http.StatusInternalServerError, "api_error", "failed to list files: %v", err)
			return
		}
		if files == nil {
			files = []corpus.FileInfo{}
		}
		writeJSON(w, http.StatusOK, files)
	}
}

func handleUpload(deps Deps) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		r.Body = http.MaxBytesReader(w, r.Body, maxUploadBodySize)
		defer r.Body.Close()

		var req UploadRequest
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			httpError(w, http.StatusBadRequest, "invalid_request_error", "invalid request body: %v", err)
			return
		}
		if strings.TrimSpace(req.Filename) == "" {
			httpError(w, http.StatusBadRequest, "invalid_request_error", "filename is required")
			return
		}
		data, err := base64.StdEncoding.DecodeString(req.Content)
		if err != nil {
			httpError(w, http.StatusBadRequest, "invalid_request_error", "invalid base64 content")
			return
		}

		if strings.EqualFold(filepath.Ext(req.Filename), ".csv") {
			uploadRecords(w, r, deps, data)
			return
		}

		name, err := deps.Library.SaveUpload(req.Filename, data)
		switch {
		case errors.Is(err, corpus.ErrUnsupportedType),
			errors.Is(err, corpus.ErrInvalidName),
			errors.Is(err, corpus.ErrEmptyDocument):
			httpError(w, http.StatusBadRequest, "invalid_request_error", "%v", err)
			return
		case err != nil:
			httpError(w, http.StatusInternalServerError, "api_error", "failed to save file: %v", err)
			return
		}

		jobID, err := ingest.EnqueueReindex(deps.Store)
		if err != nil {
			slog.Warn("file saved but reindex not queued", "name", name, "error", err)
		}
		writeJSON(w, http.StatusOK, map[string]any{
			"success": true,
			"name":    name,
			"job_id":  jobID,
		})
	}
}

func uploadRecords(w http.ResponseWriter, r *http.Request, deps Deps, data []byte) {
	records, err := storage.ParseRecordsCSV(bytes.NewReader(data))
	if err != nil {
		httpError(w, http.StatusBadRequest, "invalid_request_error", "invalid csv: %v", err)
		return
	}
	n, err := deps.Store.InsertRecords(r.Context(), records)
	if errors.Is(err, storage.ErrInvalidRecord) {
		httpError(w, http.StatusBadRequest, "invalid_request_error", "%v", err)
		return
	}
	if err != nil {
		httpError(w, http.StatusInternalServerError, "api_error", "failed to insert records: %v", err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"success": true,
		"records": n,
	})
}

func handleDeleteFile(deps Deps) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		name := chi.URLParam(r, "*")
		if unescaped, err := url.PathUnescape(name); err == nil {
			name = unescaped
		}

		err := deps.Library.Delete(name)
		switch {
		case errors.Is(err, corpus.ErrInvalidName):
			httpError(w, http.StatusBadRequest, "invalid_request_error", "%v", err)
			return
		case errors.Is(err, os.ErrNotExist):
			httpError(w, http.StatusNotFound, "not_found", "file not found")
			return
		case err != nil:
			httpError(w, http.StatusInternalServerError, "api_error", "failed to delete file: %v", err)
			return
		}

		if _, err := ingest.EnqueueReindex(deps.Store); err != nil {
			slog.Warn("file deleted but reindex not queued", "name", name, "error", err)
		}
		writeJSON(w, http.StatusOK, map[string]string{"status": "deleted"})
	}
}

func handleFetch(deps Deps) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		r.Body = http.MaxBytesReader(w, r.Body, maxRequestBodySize)
		defer r.Body.Close()

		var req FetchRequest
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			httpError(w, http.StatusBadRequest, "invalid_request_error", "invalid request body: %v", err)
			return
		}
		u, err := url.Parse(strings.TrimSpace(req.URL))
		if err != nil || (u.Scheme != "http" && u.Scheme != "https") || u.Host == "" {
			httpError(w, http.StatusBadRequest, "invalid_request_error", "url must be an absolute http(s) URL")
			return
		}

		id, err := ingest.EnqueueFetch(deps.Store, ingest.FetchPayload{URL: u.String(), KeepOldData: req.KeepOldData})
		if err != nil {
			httpError(w, http.StatusInternalServerError, "api_error", "failed to enqueue fetch: %v", err)
			return
		}
		writeJSON(w, http.StatusAccepted, JobResponse{Status: "queued", JobID: id})
	}
}

func handleAddRecord(deps Deps) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		r.Body = http.MaxBytesReader(w, r.Body, maxRequestBodySize)
		defer r.Body.Close()

		var rec storage.Record
		if err := json.NewDecoder(r.Body).Decode(&rec); err != nil {
			httpError(w, http.StatusBadRequest, "invalid_request_error", "invalid request body: %v", err)
			return
		}
		err := deps.Store.InsertRecord(r.Context(), rec)
		if errors.Is(err, storage.ErrInvalidRecord) {
			httpError(w, http.StatusBadRequest, "invalid_request_error", "%v", err)
			return
		}
		if err != nil {
			httpError(w, http.StatusInternalServerError, "api_error", "failed to insert record: %v", err)
			return
		}
		writeJSON(w, http.StatusCreated, map[string]string{"status": "created"})
	}
}

func handleClear(deps Deps) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if err := deps.Store.ClearAll(r.Context()); err != nil {
			httpError(w, http.StatusInternalServerError, "api_error", "failed to clear tables: %v", err)
			return
		}
		removed, err := deps.Library.ClearScraped()
		if err != nil {
			httpError(w, http.StatusInternalServerError, "api_error", "failed to clear scraped files: %v", err)
			return
		}
		if err := deps.Indexer.Clear(); err != nil {
			httpError(w, http.StatusInternalServerError, "api_error", "failed to clear index: %v", err)
			return
		}
		writeJSON(w, http.StatusOK, map[string]any{
			"success":       true,
			"message":       "All data cleared",
			"scraped_files": removed,
		})
	}
}

func handleTopQueries(deps Deps) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		limit := parseIntParam(r, "limit", 10, 100)
		top, err := deps.Store.TopQueries(r.Context(), limit)
		if err != nil {
			httpError(w, http.StatusInternalServerError, "api_error", "failed to load analytics: %v", err)
			return
		}
		writeJSON(w, http.StatusOK, top)
	}
}
