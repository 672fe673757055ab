package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net"
	"net/http"
	"os"
	"os/signal"
	"path/filepath"
	"strconv"
	"strings"
	"syscall"
	"time"

	"github.com/mark3labs/mcp-go/server"
	"github.com/spf13/cobra"

	"github.com/kalambet/uniguide/internal/answer"
	"github.com/kalambet/uniguide/internal/api"
	"github.com/kalambet/uniguide/internal/chunker"
	"github.com/kalambet/uniguide/internal/composer"
	"github.com/kalambet/uniguide/internal/config"
	"github.com/kalambet/uniguide/internal/corpus"
	"github.com/kalambet/uniguide/internal/engine"
	"github.com/kalambet/uniguide/internal/ingest"
	"github.com/kalambet/uniguide/internal/llm"
	"github.com/kalambet/uniguide/internal/retrieval"
	"github.com/kalambet/uniguide/internal/router"
	"github.com/kalambet/uniguide/internal/semantic"
	"github.com/kalambet/uniguide/internal/storage"
	"github.com/kalambet/uniguide/internal/structured"
)

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Start the uniguide server (foreground)",
	RunE: func(cmd *cobra.Command, args []string) error {
		withMCP, _ := cmd.Flags().GetBool("mcp")
		return runServer(withMCP)
	},
}

var stopCmd = &cobra.Command{
	Use:   "stop",
	Short: "Stop the running uniguide server",
	RunE: func(cmd *cobra.Command, args []string) error {
		return stopServer()
	},
}

var statusCmd = &cobra.Command{
	Use:   "status",
	Short: "Show uniguide system status",
	RunE: func(cmd *cobra.Command, args []string) error {
		return showStatus(cmd.Context())
	},
}

func init() {
	serveCmd.Flags().Bool("mcp", false, "also serve MCP over stdio")
}

func pidFilePath(dataDir string) string {
	return filepath.Join(dataDir, "uniguide.pid")
}

func writePIDFile(path string) error {
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return err
	}
	return os.WriteFile(path, []byte(strconv.Itoa(os.Getpid())), 0o644)
}

func readPIDFile(path string) (int, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return 0, err
	}
	return strconv.Atoi(strings.TrimSpace(string(data)))
}

func removePIDFile(path string) {
	os.Remove(path)
}

func setupLogging(level string) {
	logLevel := slog.LevelInfo
	switch strings.ToLower(level) {
	case "debug":
		logLevel = slog.LevelDebug
	case "warn", "warning":
		logLevel = slog.LevelWarn
	case "error":
		logLevel = slog.LevelError
	}
	slog.SetDefault(slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: logLevel})))
}

// app is the fully wired server.
type app struct {
	store    *storage.Store
	library  *corpus.Library
	holder   *retrieval.Holder
	pipeline *ingest.Pipeline
	worker   *ingest.Worker
	router   *router.Router
}

func buildApp(ctx context.Context, cfg config.Config) (*app, error) {
	eng, err := engine.Detect(engine.DetectConfig{
		Backend:       cfg.Engine.Backend,
		OllamaBaseURL: cfg.Ollama.BaseURL,
		OpenAIAPIKey:  cfg.OpenAI.APIKey,
		OpenAIBaseURL: cfg.OpenAI.BaseURL,
	})
	if err != nil {
		return nil, fmt.Errorf("detecting inference engine: %w", err)
	}
	if err := engine.EnsureReady(ctx, eng, os.Stderr, cfg.ChatModel(), cfg.EmbedModel()); err != nil {
		// Answers degrade to canned text until the backend comes up.
		slog.Warn("inference backend not ready", "backend", eng.Name(), "error", err)
	}

	store, err := storage.Open(cfg.Storage.DataDir)
	if err != nil {
		return nil, fmt.Errorf("opening storage: %w", err)
	}

	gen := llm.NewGenerator(eng, cfg.ChatModel(),
		llm.WithRateLimit(cfg.Generation.RequestsPerSecond, 1),
		llm.WithMaxAttempts(cfg.Generation.MaxAttempts),
	)
	var tr llm.Translator = llm.Disabled{}
	if cfg.Translate.Enabled {
		tr = llm.NewTranslator(gen)
	}

	lib := corpus.NewLibrary(cfg.Corpus.Dir)
	embedder := retrieval.NewEmbedder(eng, cfg.EmbedModel(), cfg.Index.BatchSize)
	holder := &retrieval.Holder{}
	if err := holder.LoadFile(cfg.IndexPath()); err != nil {
		slog.Warn("stored index unusable, reindex required", "path", cfg.IndexPath(), "error", err)
	}
	slog.Info("semantic index", "ready", holder.Ready(), "chunks", holder.Current().Len())

	ch := chunker.New(chunker.WithChunkSize(cfg.Index.ChunkSize), chunker.WithOverlap(cfg.Index.ChunkOverlap))
	pipeline := ingest.NewPipeline(ch, embedder, holder, cfg.IndexPath(), lib)

	fetcher := corpus.NewFetcher(nil)
	fetch := func(ctx context.Context, url string, keepOld bool) (string, error) {
		return corpus.FetchInto(ctx, fetcher, lib, url, keepOld)
	}
	worker := ingest.NewWorker(store, pipeline, fetch, 500*time.Millisecond)

	rt := router.New(
		structured.New(gen, tr, store, slog.Default()),
		semantic.New(retrieval.NewRetriever(embedder, holder), gen, tr,
			semantic.WithTopK(cfg.Retrieval.TopK),
			semantic.WithComposer(composer.New(composer.BudgetFor(cfg.Index.ChunkSize, cfg.Retrieval.TopK))),
		),
		router.WithRecorder(store),
		router.WithHistory(store),
		router.WithSampler(answer.NewSampler(answer.FollowUpPool(), nil)),
	)

	return &app{
		store:    store,
		library:  lib,
		holder:   holder,
		pipeline: pipeline,
		worker:   worker,
		router:   rt,
	}, nil
}

func runServer(withMCP bool) error {
	fmt.Fprintf(os.Stderr, "uniguide version %s\n", version)

	cfg, err := config.Load()
	if err != nil {
		return err
	}
	setupLogging(cfg.Log.Level)

	apiToken, err := config.APIToken(cfg)
	if err != nil {
		return fmt.Errorf("initializing API token: %w", err)
	}

	pidPath := pidFilePath(cfg.Storage.DataDir)
	addr := net.JoinHostPort(cfg.Server.BindAddr, strconv.Itoa(cfg.Server.Port))
	healthClient := &http.Client{Timeout: 2 * time.Second}
	if resp, err := healthClient.Get("http://" + addr + "/health"); err == nil {
		resp.Body.Close()
		if pid, pidErr := readPIDFile(pidPath); pidErr == nil {
			return fmt.Errorf("server already running (PID %d)", pid)
		}
		return fmt.Errorf("server already running on %s", addr)
	}
	if err := writePIDFile(pidPath); err != nil {
		return fmt.Errorf("writing PID file: %w", err)
	}
	defer removePIDFile(pidPath)

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	a, err := buildApp(ctx, cfg)
	if err != nil {
		return err
	}
	defer func() {
		if err := a.store.Close(); err != nil {
			slog.Warn("closing storage", "error", err)
		}
	}()

	go a.worker.Run(ctx)

	if !a.holder.Ready() {
		if id, err := ingest.EnqueueReindex(a.store); err != nil {
			slog.Warn("queueing initial reindex", "error", err)
		} else if id != "" {
			slog.Info("no index on disk, reindex queued", "job_id", id)
		}
	}

	if cfg.Corpus.Watch {
		w := corpus.NewWatcher(a.library, corpus.DefaultDebounce, func() {
			if _, err := ingest.EnqueueReindex(a.store); err != nil {
				slog.Warn("queueing reindex after corpus change", "error", err)
			}
		}, slog.Default())
		go func() {
			if err := w.Run(ctx); err != nil && !errors.Is(err, context.Canceled) {
				slog.Error("corpus watcher stopped", "error", err)
			}
		}()
	}

	handler := api.NewHandler(api.Deps{
		Router:     a.router,
		Store:      a.store,
		Library:    a.library,
		Indexer:    a.pipeline,
		Token:      apiToken,
		IndexReady: a.holder.Ready,
	})
	srv := &http.Server{
		Addr:              addr,
		Handler:           handler,
		ReadHeaderTimeout: 10 * time.Second,
		BaseContext: func(_ net.Listener) context.Context {
			return ctx
		},
	}

	if withMCP {
		mcpSrv := api.NewMCPServer(api.MCPDeps{
			Router:    a.router,
			Indexer:   a.pipeline,
			Analytics: a.store,
			Version:   version,
		})
		stdioSrv := server.NewStdioServer(mcpSrv)
		go func() {
			if err := stdioSrv.Listen(ctx, os.Stdin, os.Stdout); err != nil && !errors.Is(err, context.Canceled) {
				slog.Error("MCP stdio server error", "error", err)
			}
		}()
		slog.Info("MCP server started (stdio transport)")
	}

	errCh := make(chan error, 1)
	go func() {
		slog.Info("uniguide listening", "addr", addr)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
		close(errCh)
	}()

	select {
	case <-ctx.Done():
		slog.Info("shutting down")
	case err := <-errCh:
		if err != nil {
			return fmt.Errorf("server error: %w", err)
		}
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	return srv.Shutdown(shutdownCtx)
}

func stopServer() error {
	cfg, err := config.Load()
	if err != nil {
		return fmt.Errorf("could not load config: %w", err)
	}

	pidPath := pidFilePath(cfg.Storage.DataDir)
	pid, err := readPIDFile(pidPath)
	if err != nil {
		return fmt.Errorf("uniguide is not running (no PID file): %w", err)
	}

	process, err := os.FindProcess(pid)
	if err != nil {
		return fmt.Errorf("could not find process %d: %w", pid, err)
	}
	if err := process.Signal(syscall.SIGTERM); err != nil {
		removePIDFile(pidPath)
		return fmt.Errorf("could not stop uniguide (PID %d): %w", pid, err)
	}

	printSuccess("Sent stop signal to uniguide (PID %d)", pid)
	return nil
}

func showStatus(ctx context.Context) error {
	cfg, err := config.Load()
	if err != nil {
		printError("config error: %v", err)
		return nil
	}
	if ctx == nil {
		ctx = context.Background()
	}

	client := &http.Client{Timeout: 2 * time.Second}
	baseURL := fmt.Sprintf("http://%s", net.JoinHostPort(cfg.Server.BindAddr, strconv.Itoa(cfg.Server.Port)))

	var health api.HealthResponse
	if err := getJSON(ctx, client, baseURL+"/health", &health); err != nil {
		printStatus("Server", "stopped")
	} else {
		printStatus("Server", "running on %s", baseURL)
		if health.IndexReady {
			printStatus("Index", "ready")
		} else {
			printStatus("Index", "not built")
		}
	}

	eng, err := engine.Detect(engine.DetectConfig{
		Backend:       cfg.Engine.Backend,
		OllamaBaseURL: cfg.Ollama.BaseURL,
		OpenAIAPIKey:  cfg.OpenAI.APIKey,
		OpenAIBaseURL: cfg.OpenAI.BaseURL,
	})
	if err == nil {
		checkCtx, cancel := context.WithTimeout(ctx, 3*time.Second)
		running := eng.IsRunning(checkCtx)
		cancel()
		if running {
			printStatus("Backend", "%s (reachable)", eng.Name())
		} else {
			printStatus("Backend", "%s (not reachable)", eng.Name())
		}
	}

	printStatus("Chat model", "%s", cfg.ChatModel())
	printStatus("Embed model", "%s", cfg.EmbedModel())
	printStatus("Corpus dir", "%s", cfg.Corpus.Dir)
	printStatus("Data dir", "%s", cfg.Storage.DataDir)
	return nil
}
