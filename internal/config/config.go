package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"gopkg.in/yaml.v3"
)

// IndexConfig selects and configures the remote index service.
type IndexConfig struct {
	Type             string `yaml:"type"`
	BaseURL          string `yaml:"base_url"`
	Auth             string `yaml:"auth"`
	APIKeyEnv        string `yaml:"api_key_env"`
	TimeoutSecs      int    `yaml:"timeout_secs"`
	PageSize         int    `yaml:"page_size"`
	StoreDisplayName string `yaml:"store_display_name"`
	StateFile        string `yaml:"state_file"`
}

// CorpusConfig describes where documents are discovered.
type CorpusConfig struct {
	Root        string   `yaml:"root"`
	Extensions  []string `yaml:"extensions"`
	OnDuplicate string   `yaml:"on_duplicate"`
	SkipHidden  bool     `yaml:"skip_hidden"`
}

// MetadataConfig points at the metadata side table.
type MetadataConfig struct {
	Path string `yaml:"path"`
}

// UploadConfig holds per-document upload options.
type UploadConfig struct {
	MaxTokensPerChunk int `yaml:"max_tokens_per_chunk"`
	MaxOverlapTokens  int `yaml:"max_overlap_tokens"`
}

// TrackerConfig controls import operation polling.
type TrackerConfig struct {
	PollIntervalMillis   int `yaml:"poll_interval_ms"`
	OperationTimeoutSecs int `yaml:"operation_timeout_secs"`
	Concurrency          int `yaml:"concurrency"`
}

// RetryConfig controls backoff for idempotent remote reads.
type RetryConfig struct {
	MaxAttempts       int     `yaml:"max_attempts"`
	InitialWaitMillis int     `yaml:"initial_wait_ms"`
	MaxWaitMillis     int     `yaml:"max_wait_ms"`
	Multiplier        float64 `yaml:"multiplier"`
	Jitter            float64 `yaml:"jitter"`
}

// LoggingConfig configures the structured logger.
type LoggingConfig struct {
	Level  string `yaml:"level"`
	Format string `yaml:"format"`
	File   string `yaml:"file"`
}

// JournalConfig configures the local run journal. An empty path disables it.
type JournalConfig struct {
	Path string `yaml:"path"`
}

// AppConfig is the root application configuration structure.
type AppConfig struct {
	Index    IndexConfig    `yaml:"index"`
	Corpus   CorpusConfig   `yaml:"corpus"`
	Metadata MetadataConfig `yaml:"metadata"`
	Upload   UploadConfig   `yaml:"upload"`
	Tracker  TrackerConfig  `yaml:"tracker"`
	Retry    RetryConfig    `yaml:"retry"`
	Logging  LoggingConfig  `yaml:"logging"`
	Journal  JournalConfig  `yaml:"journal"`
}

// PollInterval returns the tracker poll interval.
func (c TrackerConfig) PollInterval() time.Duration {
	return time.Duration(c.PollIntervalMillis) * time.Millisecond
}

// OperationTimeout returns the per-operation polling deadline.
func (c TrackerConfig) OperationTimeout() time.Duration {
	return time.Duration(c.OperationTimeoutSecs) * time.Second
}

// Timeout returns the HTTP timeout for index requests.
func (c IndexConfig) Timeout() time.Duration {
	return time.Duration(c.TimeoutSecs) * time.Second
}

// Load reads a config from a specified path. If the file does not exist, returns defaults.
func Load(path string) (*AppConfig, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			cfg := defaultConfig()
			return cfg, nil
		}
		return nil, err
	}
	var cfg AppConfig
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return nil, fmt.Errorf("parse %s: %w", path, err)
	}
	applyConfigDefaults(&cfg)
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("%s: %w", path, err)
	}
	return &cfg, nil
}

// LoadDefault tries ./docqa.yaml first, then ~/.config/docqa/config.yaml.
// If neither exists, it writes defaults to ~/.config/docqa/config.yaml and returns them.
func LoadDefault() (*AppConfig, string, error) {
	cwdPath := "docqa.yaml"
	if _, err := os.Stat(cwdPath); err == nil {
		cfg, err := Load(cwdPath)
		return cfg, cwdPath, err
	}
	userPath, err := defaultUserConfigPath()
	if err != nil {
		return nil, "", err
	}
	if _, err := os.Stat(userPath); err == nil {
		cfg, err := Load(userPath)
		return cfg, userPath, err
	}
	cfg := defaultConfig()
	if err := Save(userPath, cfg); err != nil {
		return nil, "", err
	}
	return cfg, userPath, nil
}

// Save writes the config to the given path, creating directories as needed.
func Save(path string, cfg *AppConfig) error {
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return err
	}
	data, err := yaml.Marshal(cfg)
	if err != nil {
		return err
	}
	return os.WriteFile(path, data, 0o644)
}

// Validate rejects settings no component can act on.
func (c *AppConfig) Validate() error {
	switch c.Index.Type {
	case "gemini", "memory":
	default:
		return fmt.Errorf("unknown index type %q", c.Index.Type)
	}
	switch c.Index.Auth {
	case "api_key", "adc":
	default:
		return fmt.Errorf("unknown index auth %q", c.Index.Auth)
	}
	switch c.Corpus.OnDuplicate {
	case "warn", "fail":
	default:
		return fmt.Errorf("unknown corpus.on_duplicate policy %q", c.Corpus.OnDuplicate)
	}
	if c.Retry.MaxAttempts < 1 {
		return errors.New("retry.max_attempts must be at least 1")
	}
	if c.Retry.InitialWaitMillis < 0 || c.Retry.MaxWaitMillis < 0 {
		return errors.New("retry waits must not be negative")
	}
	if c.Retry.Multiplier < 1 {
		return errors.New("retry.multiplier must be at least 1")
	}
	if c.Retry.Jitter < 0 || c.Retry.Jitter > 1 {
		return errors.New("retry.jitter must be between 0 and 1")
	}
	if c.Tracker.Concurrency < 1 {
		return errors.New("tracker.concurrency must be at least 1")
	}
	if c.Index.StateFile == "" {
		return errors.New("index.state_file is required")
	}
	return nil
}

func defaultUserConfigPath() (string, error) {
	home, err := os.UserHomeDir()
	if err != nil {
		return "", err
	}
	return filepath.Join(home, ".config", "docqa", "config.yaml"), nil
}

// MemoryStateFile records in-memory stores apart from real ones, whose names
// would not resolve against each other.
const MemoryStateFile = "file_search_store_name.memory.txt"

// DefaultExtensions are the document types picked up by the corpus scanner.
var DefaultExtensions = []string{".md", ".txt", ".pdf", ".doc", ".docx"}

func defaultConfig() *AppConfig {
	cfg := &AppConfig{
		Index: IndexConfig{
			Type:             "gemini",
			BaseURL:          "https://generativelanguage.googleapis.com",
			Auth:             "api_key",
			APIKeyEnv:        "GEMINI_API_KEY",
			TimeoutSecs:      120,
			PageSize:         20,
			StoreDisplayName: "docqa-docs",
			StateFile:        "file_search_store_name.txt",
		},
		Corpus: CorpusConfig{
			Root:        "source_files",
			Extensions:  append([]string(nil), DefaultExtensions...),
			OnDuplicate: "warn",
		},
		Metadata: MetadataConfig{Path: "files_metadata.csv"},
		Tracker: TrackerConfig{
			PollIntervalMillis:   1000,
			OperationTimeoutSecs: 600,
			Concurrency:          8,
		},
		Retry: RetryConfig{
			MaxAttempts:       4,
			InitialWaitMillis: 200,
			MaxWaitMillis:     5000,
			Multiplier:        2,
			Jitter:            0.1,
		},
		Logging: LoggingConfig{Level: "info", Format: "console"},
		Journal: JournalConfig{Path: ".docqa/journal.db"},
	}
	return cfg
}

func applyConfigDefaults(cfg *AppConfig) {
	def := defaultConfig()
	if cfg.Index.Type == "" {
		cfg.Index.Type = def.Index.Type
	}
	if cfg.Index.Type == "gemini" {
		if cfg.Index.BaseURL == "" {
			cfg.Index.BaseURL = def.Index.BaseURL
		}
		if cfg.Index.APIKeyEnv == "" {
			cfg.Index.APIKeyEnv = def.Index.APIKeyEnv
		}
	}
	if cfg.Index.Auth == "" {
		cfg.Index.Auth = def.Index.Auth
	}
	if cfg.Index.TimeoutSecs == 0 {
		cfg.Index.TimeoutSecs = def.Index.TimeoutSecs
	}
	if cfg.Index.PageSize == 0 {
		cfg.Index.PageSize = def.Index.PageSize
	}
	if cfg.Index.StoreDisplayName == "" {
		cfg.Index.StoreDisplayName = def.Index.StoreDisplayName
	}
	if cfg.Index.StateFile == "" {
		cfg.Index.StateFile = def.Index.StateFile
		if cfg.Index.Type == "memory" {
			cfg.Index.StateFile = MemoryStateFile
		}
	}
	if cfg.Corpus.Root == "" {
		cfg.Corpus.Root = def.Corpus.Root
	}
	if len(cfg.Corpus.Extensions) == 0 {
		cfg.Corpus.Extensions = def.Corpus.Extensions
	}
	if cfg.Corpus.OnDuplicate == "" {
		cfg.Corpus.OnDuplicate = def.Corpus.OnDuplicate
	}
	if cfg.Tracker.PollIntervalMillis == 0 {
		cfg.Tracker.PollIntervalMillis = def.Tracker.PollIntervalMillis
	}
	if cfg.Tracker.OperationTimeoutSecs == 0 {
		cfg.Tracker.OperationTimeoutSecs = def.Tracker.OperationTimeoutSecs
	}
	if cfg.Tracker.Concurrency == 0 {
		cfg.Tracker.Concurrency = def.Tracker.Concurrency
	}
	if cfg.Retry == (RetryConfig{}) {
		cfg.Retry = def.Retry
	}
	if cfg.Retry.MaxAttempts == 0 {
		cfg.Retry.MaxAttempts = def.Retry.MaxAttempts
	}
	if cfg.Retry.InitialWaitMillis == 0 {
		cfg.Retry.InitialWaitMillis = def.Retry.InitialWaitMillis
	}
	if cfg.Retry.MaxWaitMillis == 0 {
		cfg.Retry.MaxWaitMillis = def.Retry.MaxWaitMillis
	}
	if cfg.Retry.Multiplier == 0 {
		cfg.Retry.Multiplier = def.Retry.Multiplier
	}
	if cfg.Logging.Level == "" {
		cfg.Logging.Level = def.Logging.Level
	}
	if cfg.Logging.Format == "" {
		cfg.Logging.Format = def.Logging.Format
	}
}
