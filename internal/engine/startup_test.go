package engine

import (
	"context"
	"errors"
	"io"
	"testing"
)

type mockEngine struct {
	isRunning bool
	models    map[string]bool
	pulled    []string
}

func (m *mockEngine) Chat(_ context.Context, _ string, _ []Message) (string, error) {
	return "", nil
}
func (m *mockEngine) Embed(_ context.Context, _ string, _ []string) ([][]float32, error) {
	return nil, nil
}
func (m *mockEngine) IsRunning(_ context.Context) bool { return m.isRunning }
func (m *mockEngine) Name() string                    { return "mock" }
func (m *mockEngine) HasModel(_ context.Context, name string) bool {
	return m.models[name]
}
func (m *mockEngine) PullModel(_ context.Context, name string, cb func(PullProgress)) error {
	m.pulled = append(m.pulled, name)
	if cb != nil {
		cb(PullProgress{Status: "success"})
	}
	return nil
}

// noPull is an Engine without ModelPuller support.
type noPull struct{ running bool }

func (n noPull) Chat(context.Context, string, []Message) (string, error)        { return "", nil }
func (n noPull) Embed(context.Context, string, []string) ([][]float32, error) { return nil, nil }
func (n noPull) IsRunning(context.Context) bool                                { return n.running }
func (n noPull) Name() string                                                  { return "nopull" }

func TestEnsureReady_AllModelsPresent(t *testing.T) {
	m := &mockEngine{
		isRunning: true,
		models:    map[string]bool{"llama3.2": true, "nomic-embed-text": true},
	}
	if err := EnsureReady(context.Background(), m, io.Discard, "llama3.2", "nomic-embed-text"); err != nil {
		t.Fatalf("EnsureReady: %v", err)
	}
	if len(m.pulled) != 0 {
		t.Errorf("expected no pulls, got %v", m.pulled)
	}
}

func TestEnsureReady_PullsMissingOnce(t *testing.T) {
	m := &mockEngine{
		isRunning: true,
		models:    map[string]bool{"llama3.2": true},
	}
	err := EnsureReady(context.Background(), m, io.Discard, "llama3.2", "nomic-embed-text", "nomic-embed-text")
	if err != nil {
		t.Fatalf("EnsureReady: %v", err)
	}
	if len(m.pulled) != 1 || m.pulled[0] != "nomic-embed-text" {
		t.Errorf("pulled = %v, want [nomic-embed-text]", m.pulled)
	}
}

func TestEnsureReady_NotRunning(t *testing.T) {
	m := &mockEngine{isRunning: false}
	err := EnsureReady(context.Background(), m, io.Discard, "llama3.2")
	if !errors.Is(err, ErrUnavailable) {
		t.Fatalf("err = %v, want ErrUnavailable", err)
	}
}

func TestEnsureReady_NoPuller(t *testing.T) {
	if err := EnsureReady(context.Background(), noPull{running: true}, io.Discard, "gpt-4o-mini"); err != nil {
		t.Fatalf("EnsureReady: %v", err)
	}
}
