package engine

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
)

func newOpenAITestServer(t *testing.T) *httptest.Server {
	t.Helper()
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		switch r.URL.Path {
		case "/v1/chat/completions":
			json.NewEncoder(w).Encode(map[string]any{
				"id":      "chatcmpl-1",
				"object":  "chat.completion",
				"choices": []map[string]any{{"index": 0, "message": map[string]string{"role": "assistant", "content": "hello from openai"}}},
			})
		case "/v1/embeddings":
			// Deliberately out of order.
			json.NewEncoder(w).Encode(map[string]any{
				"object": "list",
				"data": []map[string]any{
					{"object": "embedding", "index": 1, "embedding": []float32{2, 2}},
					{"object": "embedding", "index": 0, "embedding": []float32{1, 1}},
				},
			})
		case "/v1/models":
			json.NewEncoder(w).Encode(map[string]any{"object": "list", "data": []any{}})
		default:
			http.NotFound(w, r)
		}
	}))
	t.Cleanup(srv.Close)
	return srv
}

func TestOpenAIEngine_Chat(t *testing.T) {
	srv := newOpenAITestServer(t)
	e := NewOpenAIEngine("sk-test", srv.URL+"/v1")

	out, err := e.Chat(context.Background(), "gpt-4o-mini", []Message{{Role: "user", Content: "hi"}})
	if err != nil {
		t.Fatalf("Chat: %v", err)
	}
	if out != "hello from openai" {
		t.Errorf("got %q, want %q", out, "hello from openai")
	}
}

func TestOpenAIEngine_EmbedUsesIndex(t *testing.T) {
	srv := newOpenAITestServer(t)
	e := NewOpenAIEngine("sk-test", srv.URL+"/v1")

	vecs, err := e.Embed(context.Background(), "text-embedding-3-small", []string{"a", "b"})
	if err != nil {
		t.Fatalf("Embed: %v", err)
	}
	if vecs[0][0] != 1 || vecs[1][0] != 2 {
		t.Errorf("vectors not placed by index: %v", vecs)
	}
}

func TestOpenAIEngine_IsRunning(t *testing.T) {
	srv := newOpenAITestServer(t)
	e := NewOpenAIEngine("sk-test", srv.URL+"/v1")
	if !e.IsRunning(context.Background()) {
		t.Error("IsRunning() = false, want true")
	}
}

func TestOpenAIEngine_ServerErrorIsUnavailable(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, `{"error":{"message":"boom"}}`, http.StatusInternalServerError)
	}))
	defer srv.Close()

	e := NewOpenAIEngine("sk-test", srv.URL+"/v1")
	_, err := e.Chat(context.Background(), "gpt-4o-mini", []Message{{Role: "user", Content: "hi"}})
	if !errors.Is(err, ErrUnavailable) {
		t.Fatalf("err = %v, want ErrUnavailable", err)
	}
}
