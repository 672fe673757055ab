package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"
)

type Config struct {
	Server     ServerConfig
	Engine     EngineConfig
	Ollama     OllamaConfig
	OpenAI     OpenAIConfig
	Storage    StorageConfig
	Corpus     CorpusConfig
	Index      IndexConfig
	Retrieval  RetrievalConfig
	Translate  TranslateConfig
	Generation GenerationConfig
	API        APIConfig
	Log        LogConfig
}

type ServerConfig struct {
	Port     int
	BindAddr string
}

// EngineConfig selects the inference backend: "ollama" or "openai".
type EngineConfig struct {
	Backend string
}

type OllamaConfig struct {
	BaseURL    string
	ChatModel  string
	EmbedModel string
}

type OpenAIConfig struct {
	APIKey     string
	BaseURL    string
	ChatModel  string
	EmbedModel string
}

type StorageConfig struct {
	DataDir string
}

type CorpusConfig struct {
	Dir   string
	Watch bool
}

type IndexConfig struct {
	ChunkSize    int
	ChunkOverlap int
	BatchSize    int
}

type RetrievalConfig struct {
	TopK int
}

type TranslateConfig struct {
	Enabled bool
}

type GenerationConfig struct {
	RequestsPerSecond float64
	MaxAttempts       int
}

type APIConfig struct {
	Token string
}

type LogConfig struct {
	Level string
}

func defaults() Config {
	return Config{
		Server: ServerConfig{
			Port:     4100,
			BindAddr: "127.0.0.1",
		},
		Engine: EngineConfig{
			Backend: "ollama",
		},
		Ollama: OllamaConfig{
			BaseURL:    "http://localhost:11434",
			ChatModel:  "llama3.2",
			EmbedModel: "nomic-embed-text",
		},
		OpenAI: OpenAIConfig{
			ChatModel:  "gpt-4o-mini",
			EmbedModel: "text-embedding-3-small",
		},
		Storage: StorageConfig{
			DataDir: defaultDataDir(),
		},
		Index: IndexConfig{
			ChunkSize:    1000,
			ChunkOverlap: 200,
			BatchSize:    32,
		},
		Retrieval: RetrievalConfig{
			TopK: 3,
		},
		Translate: TranslateConfig{
			Enabled: true,
		},
		Generation: GenerationConfig{
			RequestsPerSecond: 5,
			MaxAttempts:       2,
		},
		Log: LogConfig{
			Level: "info",
		},
	}
}

// Load reads configuration from the TOML config file and UNIGUIDE_*
// environment variables. Environment variables win over file values.
//
// The file lives at $XDG_CONFIG_HOME/uniguide/config.toml. A missing file
// is not an error.
func Load() (Config, error) {
	return loadFromPath(configFilePath())
}

func loadFromPath(path string) (Config, error) {
	cfg := defaults()

	b, err := openFileBackend(path)
	if err != nil {
		return Config{}, err
	}
	if err := applyBackend(&cfg, b); err != nil {
		return Config{}, err
	}

	applyEnvOverrides(&cfg)

	if err := finalize(&cfg); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

// finalize fills derived defaults and rejects combinations that cannot work.
func finalize(cfg *Config) error {
	if cfg.Corpus.Dir == "" {
		cfg.Corpus.Dir = filepath.Join(cfg.Storage.DataDir, "corpus")
	}
	cfg.Engine.Backend = strings.ToLower(strings.TrimSpace(cfg.Engine.Backend))

	switch cfg.Engine.Backend {
	case "ollama":
	case "openai":
		if cfg.OpenAI.APIKey == "" {
			return fmt.Errorf("missing required config: OpenAI API key. " +
				"Set it via environment variable UNIGUIDE_OPENAI_API_KEY or openai.api_key in the config file")
		}
	default:
		return fmt.Errorf("invalid engine.backend %q: want \"ollama\" or \"openai\"", cfg.Engine.Backend)
	}

	if cfg.Index.ChunkSize <= 0 {
		return fmt.Errorf("index.chunk_size must be positive, got %d", cfg.Index.ChunkSize)
	}
	if cfg.Index.ChunkOverlap < 0 || cfg.Index.ChunkOverlap >= cfg.Index.ChunkSize {
		return fmt.Errorf("index.chunk_overlap must be in [0, %d), got %d", cfg.Index.ChunkSize, cfg.Index.ChunkOverlap)
	}
	if cfg.Retrieval.TopK <= 0 {
		cfg.Retrieval.TopK = 3
	}
	return nil
}

// IndexPath is the location of the persisted vector index file.
func (c Config) IndexPath() string {
	return filepath.Join(c.Storage.DataDir, "index", "uniguide.idx")
}

// ChatModel returns the generation model for the configured backend.
func (c Config) ChatModel() string {
	if c.Engine.Backend == "openai" {
		return c.OpenAI.ChatModel
	}
	return c.Ollama.ChatModel
}

// EmbedModel returns the embedding model for the configured backend.
func (c Config) EmbedModel() string {
	if c.Engine.Backend == "openai" {
		return c.OpenAI.EmbedModel
	}
	return c.Ollama.EmbedModel
}

func defaultDataDir() string {
	dir := os.Getenv("XDG_DATA_HOME")
	if dir == "" {
		if home, err := os.UserHomeDir(); err == nil {
			dir = filepath.Join(home, ".local", "share")
		} else {
			return "uniguide-data"
		}
	}
	return filepath.Join(dir, "uniguide")
}

func configFilePath() string {
	dir := os.Getenv("XDG_CONFIG_HOME")
	if dir == "" {
		if home, err := os.UserHomeDir(); err == nil {
			dir = filepath.Join(home, ".config")
		} else {
			dir = "."
		}
	}
	return filepath.Join(dir, "uniguide", "config.toml")
}
