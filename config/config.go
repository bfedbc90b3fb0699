// Package config loads application settings from an optional YAML file, a .env
// file and the process environment, in that order of precedence (env wins).
package config

import (
	"errors"
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"
)

type ServerConfig struct {
	Addr string `yaml:"addr"`
}

type PostgresConfig struct {
	Host     string `yaml:"host"`
	Port     int    `yaml:"port"`
	User     string `yaml:"user"`
	Password string `yaml:"password"`
	DBName   string `yaml:"db_name"`
	SSLMode  string `yaml:"ssl_mode"`
}

// ConnString builds a key/value DSN accepted by pgxpool.
func (p PostgresConfig) ConnString() string {
	return fmt.Sprintf("host=%s port=%d user=%s password=%s dbname=%s sslmode=%s",
		p.Host, p.Port, p.User, p.Password, p.DBName, p.SSLMode)
}

type StoreConfig struct {
	// Backend is one of postgres, sqlite, memory.
	Backend    string `yaml:"backend"`
	Path       string `yaml:"path"`
	Collection string `yaml:"collection"`
}

type EmbeddingConfig struct {
	// Provider is ollama or openai.
	Provider  string        `yaml:"provider"`
	URL       string        `yaml:"url"`
	Model     string        `yaml:"model"`
	APIKey    string        `yaml:"api_key"`
	Dimension int           `yaml:"dimension"`
	Timeout   time.Duration `yaml:"timeout"`
}

type LLMConfig struct {
	Provider string        `yaml:"provider"`
	URL      string        `yaml:"url"`
	Model    string        `yaml:"model"`
	APIKey   string        `yaml:"api_key"`
	System   string        `yaml:"system"`
	Timeout  time.Duration `yaml:"timeout"`
	Retries  int           `yaml:"retries"`
}

type EngineConfig struct {
	TopK             int     `yaml:"top_k"`
	SynthesisMode    string  `yaml:"synthesis_mode"`
	ContextTokens    int     `yaml:"context_tokens"`
	SimilarityCutoff float64 `yaml:"similarity_cutoff"`
	MaxSources       int     `yaml:"max_sources"`
	ShowSources      bool    `yaml:"show_sources"`
}

type LoaderConfig struct {
	DataDir        string        `yaml:"data_dir"`
	SourceDir      string        `yaml:"source_dir"`
	ArchiveDir     string        `yaml:"archive_dir"`
	BadDir         string        `yaml:"bad_dir"`
	MonitoringTime time.Duration `yaml:"monitoring_time"`
	ChunkSize      int           `yaml:"chunk_size"`
	ChunkOverlap   int           `yaml:"chunk_overlap"`
	DoclingURL     string        `yaml:"docling_url"`
	CropTop        float64       `yaml:"crop_top"`
	CropBottom     float64       `yaml:"crop_bottom"`
}

type LogConfig struct {
	Level  string `yaml:"level"`
	Format string `yaml:"format"`
}

type Config struct {
	Server    ServerConfig    `yaml:"server"`
	Postgres  PostgresConfig  `yaml:"postgres"`
	Store     StoreConfig     `yaml:"store"`
	Embedding EmbeddingConfig `yaml:"embedding"`
	LLM       LLMConfig       `yaml:"llm"`
	Engine    EngineConfig    `yaml:"engine"`
	Loader    LoaderConfig    `yaml:"loader"`
	Log       LogConfig       `yaml:"log"`
}

// Load reads yamlPath (optional, missing file is not an error), then envFile
// (optional, same rule), then overlays environment variables.
func Load(envFile, yamlPath string) (*Config, error) {
	cfg := Default()

	if yamlPath != "" {
		data, err := os.ReadFile(yamlPath)
		switch {
		case err == nil:
			if err := yaml.Unmarshal(data, cfg); err != nil {
				return nil, fmt.Errorf("parse %s: %w", yamlPath, err)
			}
		case !errors.Is(err, os.ErrNotExist):
			return nil, fmt.Errorf("read %s: %w", yamlPath, err)
		}
	}

	if envFile != "" {
		if err := godotenv.Load(envFile); err != nil && !errors.Is(err, os.ErrNotExist) {
			return nil, fmt.Errorf("failed to load .env file: %w", err)
		}
	}

	if err := applyEnv(cfg); err != nil {
		return nil, err
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

func Default() *Config {
	return &Config{
		Server: ServerConfig{Addr: ":3000"},
		Postgres: PostgresConfig{
			Host:    "localhost",
			Port:    5432,
			User:    "postgres",
			DBName:  "ustawy",
			SSLMode: "disable",
		},
		Store: StoreConfig{
			Backend:    "sqlite",
			Path:       "./ustawy",
			Collection: "pomoc_ukrainie",
		},
		Embedding: EmbeddingConfig{
			Provider:  "ollama",
			URL:       "http://localhost:11434/api/embeddings",
			Model:     "nomic-embed-text",
			Dimension: 768,
			Timeout:   30 * time.Second,
		},
		LLM: LLMConfig{
			Provider: "ollama",
			URL:      "http://localhost:11434/api/generate",
			Model:    "qwen2:7b",
			Timeout:  5 * time.Minute,
			Retries:  2,
		},
		Engine: EngineConfig{
			TopK:          3,
			SynthesisMode: "compact",
			ContextTokens: 3000,
			MaxSources:    3,
			ShowSources:   true,
		},
		Loader: LoaderConfig{
			DataDir:        "./data",
			SourceDir:      "./inbox",
			ArchiveDir:     "./archive",
			BadDir:         "./bad",
			MonitoringTime: 5 * time.Second,
			ChunkSize:      512,
			ChunkOverlap:   64,
			DoclingURL:     "http://localhost:5001/v1/convert/file",
		},
		Log: LogConfig{Level: "info", Format: "text"},
	}
}

func (c *Config) Validate() error {
	var errs []error
	switch c.Store.Backend {
	case "postgres", "sqlite", "memory":
	default:
		errs = append(errs, fmt.Errorf("unknown store backend %q", c.Store.Backend))
	}
	if strings.TrimSpace(c.Store.Collection) == "" {
		errs = append(errs, errors.New("store collection is required"))
	}
	for _, p := range []string{c.Embedding.Provider, c.LLM.Provider} {
		if p != "ollama" && p != "openai" {
			errs = append(errs, fmt.Errorf("unknown model provider %q", p))
		}
	}
	if c.Embedding.Dimension <= 0 {
		errs = append(errs, errors.New("embedding dimension must be positive"))
	}
	if c.Engine.SynthesisMode != "compact" && c.Engine.SynthesisMode != "tree_summarize" {
		errs = append(errs, fmt.Errorf("unknown synthesis mode %q", c.Engine.SynthesisMode))
	}
	if c.Engine.TopK <= 0 {
		errs = append(errs, errors.New("engine top_k must be positive"))
	}
	if c.Loader.ChunkSize <= 0 || c.Loader.ChunkOverlap < 0 || c.Loader.ChunkOverlap >= c.Loader.ChunkSize {
		errs = append(errs, fmt.Errorf("invalid chunking: size=%d overlap=%d", c.Loader.ChunkSize, c.Loader.ChunkOverlap))
	}
	return errors.Join(errs...)
}

func applyEnv(c *Config) error {
	var errs []error
	str := func(key string, dst *string) {
		if v, ok := os.LookupEnv(key); ok {
			*dst = v
		}
	}
	num := func(key string, dst *int) {
		if v, ok := os.LookupEnv(key); ok {
			n, err := strconv.Atoi(v)
			if err != nil {
				errs = append(errs, fmt.Errorf("%s: %w", key, err))
				return
			}
			*dst = n
		}
	}
	float := func(key string, dst *float64) {
		if v, ok := os.LookupEnv(key); ok {
			f, err := strconv.ParseFloat(v, 64)
			if err != nil {
				errs = append(errs, fmt.Errorf("%s: %w", key, err))
				return
			}
			*dst = f
		}
	}
	boolean := func(key string, dst *bool) {
		if v, ok := os.LookupEnv(key); ok {
			b, err := strconv.ParseBool(v)
			if err != nil {
				errs = append(errs, fmt.Errorf("%s: %w", key, err))
				return
			}
			*dst = b
		}
	}
	duration := func(key string, dst *time.Duration) {
		if v, ok := os.LookupEnv(key); ok {
			d, err := time.ParseDuration(v)
			if err != nil {
				errs = append(errs, fmt.Errorf("%s: %w", key, err))
				return
			}
			*dst = d
		}
	}

	str("SERVER_ADDR", &c.Server.Addr)

	str("PG_HOST", &c.Postgres.Host)
	num("PG_PORT", &c.Postgres.Port)
	str("PG_USER", &c.Postgres.User)
	str("PG_PASS", &c.Postgres.Password)
	str("PG_DB_NAME", &c.Postgres.DBName)
	str("PG_SSLMODE", &c.Postgres.SSLMode)

	str("STORE_BACKEND", &c.Store.Backend)
	str("STORE_PATH", &c.Store.Path)
	str("STORE_COLLECTION", &c.Store.Collection)

	str("EMBEDDING_PROVIDER", &c.Embedding.Provider)
	str("OLLAMA_EMBEDDING_URL", &c.Embedding.URL)
	str("OLLAMA_EMBEDDING_MODEL", &c.Embedding.Model)
	str("EMBEDDING_API_KEY", &c.Embedding.APIKey)
	num("EMBEDDING_DIM", &c.Embedding.Dimension)
	duration("EMBEDDING_TIMEOUT", &c.Embedding.Timeout)

	str("LLM_PROVIDER", &c.LLM.Provider)
	str("LLM_URL", &c.LLM.URL)
	str("LLM_MODEL", &c.LLM.Model)
	str("LLM_API_KEY", &c.LLM.APIKey)
	str("LLM_SYSTEM_PROMPT", &c.LLM.System)
	duration("LLM_TIMEOUT", &c.LLM.Timeout)
	num("LLM_RETRIES", &c.LLM.Retries)

	num("TOP_K", &c.Engine.TopK)
	str("SYNTHESIS_MODE", &c.Engine.SynthesisMode)
	num("CONTEXT_TOKENS", &c.Engine.ContextTokens)
	float("SIMILARITY_CUTOFF", &c.Engine.SimilarityCutoff)
	num("MAX_SOURCES", &c.Engine.MaxSources)
	boolean("SHOW_SOURCES", &c.Engine.ShowSources)

	str("LOADER_DATA_DIR", &c.Loader.DataDir)
	str("LOADER_SOURCE_DIR", &c.Loader.SourceDir)
	str("LOADER_ARCHIVE_DIR", &c.Loader.ArchiveDir)
	str("LOADER_BAD_DIR", &c.Loader.BadDir)
	duration("LOADER_MONITORING_TIME", &c.Loader.MonitoringTime)
	num("CHUNK_SIZE", &c.Loader.ChunkSize)
	num("CHUNK_OVERLAP", &c.Loader.ChunkOverlap)
	str("DOCLING_URL", &c.Loader.DoclingURL)
	float("PDF_CROP_TOP", &c.Loader.CropTop)
	float("PDF_CROP_BOTTOM", &c.Loader.CropBottom)

	str("LOG_LEVEL", &c.Log.Level)
	str("LOG_FORMAT", &c.Log.Format)

	return errors.Join(errs...)
}
