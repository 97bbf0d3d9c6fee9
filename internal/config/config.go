package config

import (
	"fmt"
	"math"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"
)

// Config represents the complete brainmcp configuration.
type Config struct {
	Version    int              `yaml:"version" json:"version"`
	Docs       DocsConfig       `yaml:"docs" json:"docs"`
	Watch      WatchConfig      `yaml:"watch" json:"watch"`
	Search     SearchConfig     `yaml:"search" json:"search"`
	Embeddings EmbeddingsConfig `yaml:"embeddings" json:"embeddings"`
	Chat       ChatConfig       `yaml:"chat" json:"chat"`
	Chunking   ChunkingConfig   `yaml:"chunking" json:"chunking"`
	Index      IndexConfig      `yaml:"index" json:"index"`
	Cache      CacheConfig      `yaml:"cache" json:"cache"`
	RateLimit  RateLimitConfig  `yaml:"ratelimit" json:"ratelimit"`
	Server     ServerConfig     `yaml:"server" json:"server"`
}

// DocsConfig configures the document collection to index.
type DocsConfig struct {
	// Root is the documents directory. Resolved from the CLI argument or
	// BRAINMCP_DOCS_ROOT when empty.
	Root string `yaml:"root" json:"root"`
	// Include restricts indexing to these glob patterns (empty = all supported files).
	Include []string `yaml:"include" json:"include"`
	// Ignore excludes matching paths. Merged with the built-in defaults.
	Ignore []string `yaml:"ignore" json:"ignore"`
	// MaxFileSizeMB skips files larger than this (default: 16).
	MaxFileSizeMB int `yaml:"max_file_size_mb" json:"max_file_size_mb"`
}

// WatchConfig configures filesystem watching and resync debouncing.
type WatchConfig struct {
	// Enabled turns the filesystem watcher on (default: true).
	Enabled bool `yaml:"enabled" json:"enabled"`
	// Debounce is the quiescence window before a burst of file events
	// triggers a resync (default: "1s").
	Debounce string `yaml:"debounce" json:"debounce"`
}

// SearchConfig configures hybrid search fusion.
// Weights must sum to 1.0 and are configurable via:
//  1. User config (~/.config/brainmcp/config.yaml)
//  2. Project config (.brainmcp.yaml in the docs root)
//  3. Env vars (BRAINMCP_VECTOR_WEIGHT, BRAINMCP_KEYWORD_WEIGHT)
type SearchConfig struct {
	// VectorWeight is the weight for semantic similarity (0.0-1.0).
	VectorWeight float64 `yaml:"vector_weight" json:"vector_weight"`
	// KeywordWeight is the weight for keyword matching (0.0-1.0).
	KeywordWeight float64 `yaml:"keyword_weight" json:"keyword_weight"`
	// MaxResults caps the result list per query (default: 10).
	MaxResults int `yaml:"max_results" json:"max_results"`
}

// EmbeddingsConfig configures the embedding provider.
type EmbeddingsConfig struct {
	// Provider selects the embedder: "ollama", "static", or empty for
	// auto-detection (Ollama when reachable, static fallback otherwise).
	Provider   string `yaml:"provider" json:"provider"`
	Model      string `yaml:"model" json:"model"`
	Dimensions int    `yaml:"dimensions" json:"dimensions"`
	BatchSize  int    `yaml:"batch_size" json:"batch_size"`
	// OllamaHost is the Ollama API endpoint (default: http://localhost:11434).
	OllamaHost string `yaml:"ollama_host" json:"ollama_host"`
	// Timeout is the per-batch embedding timeout (default: "60s").
	Timeout string `yaml:"timeout" json:"timeout"`
}

// ChatConfig configures answer generation.
type ChatConfig struct {
	Model string `yaml:"model" json:"model"`
	// Timeout is the per-request generation timeout (default: "300s").
	Timeout string `yaml:"timeout" json:"timeout"`
	// MaxContextChunks is how many retrieved chunks feed the prompt (default: 6).
	MaxContextChunks int `yaml:"max_context_chunks" json:"max_context_chunks"`
}

// ChunkingConfig configures document chunking.
type ChunkingConfig struct {
	Size    int `yaml:"size" json:"size"`
	Overlap int `yaml:"overlap" json:"overlap"`
}

// IndexConfig configures the HNSW vector index.
type IndexConfig struct {
	M              int `yaml:"m" json:"m"`
	EfConstruction int `yaml:"ef_construction" json:"ef_construction"`
	EfSearch       int `yaml:"ef_search" json:"ef_search"`
}

// CacheConfig configures the query result cache.
type CacheConfig struct {
	// Capacity is the maximum number of cached entries (default: 256).
	Capacity int `yaml:"capacity" json:"capacity"`
	// TTL is the time-to-live for cached entries (default: "1h").
	TTL string `yaml:"ttl" json:"ttl"`
}

// RateLimitConfig configures per-client admission control.
type RateLimitConfig struct {
	// PerMinute is the sustained request rate per client (default: 60).
	PerMinute int `yaml:"per_minute" json:"per_minute"`
	// Burst is the bucket capacity (default: 60).
	Burst int `yaml:"burst" json:"burst"`
	// IdleAfter is how long an idle client's bucket is kept before
	// reaping (default: "10m", ten refill windows).
	IdleAfter string `yaml:"idle_after" json:"idle_after"`
}

// ServerConfig configures the MCP server and daemon.
type ServerConfig struct {
	// Transport is "stdio" (MCP over stdin/stdout plus the control
	// socket) or "socket" (control socket only).
	Transport string `yaml:"transport" json:"transport"`
	LogLevel  string `yaml:"log_level" json:"log_level"`
}

// defaultIgnorePatterns are always excluded.
var defaultIgnorePatterns = []string{
	"**/.brainmcp/**",
	"**/.git/**",
	"**/node_modules/**",
	"**/__pycache__/**",
	"**/.ipynb_checkpoints/**",
	"**/venv/**",
	"**/.venv/**",
	"**/~$*",
	"**/.DS_Store",
}

// NewConfig creates a new Config with sensible defaults.
func NewConfig() *Config {
	return &Config{
		Version: 1,
		Docs: DocsConfig{
			Include:       []string{},
			Ignore:        defaultIgnorePatterns,
			MaxFileSizeMB: 16,
		},
		Watch: WatchConfig{
			Enabled:  true,
			Debounce: "1s",
		},
		Search: SearchConfig{
			// Vector similarity carries most of the signal for prose;
			// the keyword index rescues exact names and rare terms.
			VectorWeight:  0.8,
			KeywordWeight: 0.2,
			MaxResults:    10,
		},
		Embeddings: EmbeddingsConfig{
			Provider:   "", // Empty triggers auto-detection: Ollama then static
			Model:      "nomic-embed-text",
			Dimensions: 0, // Auto-detect from embedder
			BatchSize:  16,
			OllamaHost: "", // Empty uses default http://localhost:11434
			Timeout:    "60s",
		},
		Chat: ChatConfig{
			Model:            "llama3",
			Timeout:          "300s",
			MaxContextChunks: 6,
		},
		Chunking: ChunkingConfig{
			Size:    800,
			Overlap: 120,
		},
		Index: IndexConfig{
			M:              16,
			EfConstruction: 200,
			EfSearch:       100,
		},
		Cache: CacheConfig{
			Capacity: 256,
			TTL:      "1h",
		},
		RateLimit: RateLimitConfig{
			PerMinute: 60,
			Burst:     60,
			IdleAfter: "10m",
		},
		Server: ServerConfig{
			Transport: "stdio",
			LogLevel:  "info",
		},
	}
}

// GetUserConfigPath returns the path to the user/global configuration file.
// It follows XDG Base Directory specification:
//   - $XDG_CONFIG_HOME/brainmcp/config.yaml (if XDG_CONFIG_HOME is set)
//   - ~/.config/brainmcp/config.yaml (default)
func GetUserConfigPath() string {
	if xdg := os.Getenv("XDG_CONFIG_HOME"); xdg != "" {
		return filepath.Join(xdg, "brainmcp", "config.yaml")
	}
	home, err := os.UserHomeDir()
	if err != nil {
		return filepath.Join(os.TempDir(), ".config", "brainmcp", "config.yaml")
	}
	return filepath.Join(home, ".config", "brainmcp", "config.yaml")
}

// GetUserConfigDir returns the directory containing the user configuration.
func GetUserConfigDir() string {
	return filepath.Dir(GetUserConfigPath())
}

// UserConfigExists returns true if the user configuration file exists.
func UserConfigExists() bool {
	return fileExists(GetUserConfigPath())
}

// loadUserConfig loads the user/global configuration file if it exists.
// Returns nil config and nil error if the file doesn't exist.
func loadUserConfig() (*Config, error) {
	configPath := GetUserConfigPath()

	if !fileExists(configPath) {
		return nil, nil // No user config is fine
	}

	cfg := NewConfig()
	if err := cfg.loadYAML(configPath); err != nil {
		return nil, fmt.Errorf("failed to load user config from %s: %w", configPath, err)
	}

	return cfg, nil
}

// Load loads configuration for the given docs root.
// It applies configuration in order of increasing precedence:
//  1. Hardcoded defaults
//  2. User/global config (~/.config/brainmcp/config.yaml)
//  3. Project config (.brainmcp.yaml in the docs root)
//  4. .env file in the docs root (via godotenv, never overrides real env)
//  5. Environment variables (BRAINMCP_*)
func Load(dir string) (*Config, error) {
	cfg := NewConfig()

	if userCfg, err := loadUserConfig(); err != nil {
		return nil, fmt.Errorf("failed to load user config: %w", err)
	} else if userCfg != nil {
		cfg.mergeWith(userCfg)
	}

	if err := cfg.loadFromFile(dir); err != nil {
		return nil, err
	}

	// godotenv only sets variables that are not already present, so real
	// environment variables keep the highest precedence.
	_ = godotenv.Load(filepath.Join(dir, ".env"))

	cfg.applyEnvOverrides()

	if cfg.Docs.Root == "" {
		abs, err := filepath.Abs(dir)
		if err != nil {
			return nil, fmt.Errorf("failed to resolve docs root: %w", err)
		}
		cfg.Docs.Root = abs
	}

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}

	return cfg, nil
}

// loadFromFile attempts to load configuration from .brainmcp.yaml or .brainmcp.yml.
func (c *Config) loadFromFile(dir string) error {
	yamlPath := filepath.Join(dir, ".brainmcp.yaml")
	if _, err := os.Stat(yamlPath); err == nil {
		return c.loadYAML(yamlPath)
	}

	ymlPath := filepath.Join(dir, ".brainmcp.yml")
	if _, err := os.Stat(ymlPath); err == nil {
		return c.loadYAML(ymlPath)
	}

	// No config file is fine - use defaults
	return nil
}

// loadYAML loads and merges configuration from a YAML file.
func (c *Config) loadYAML(path string) error {
	data, err := os.ReadFile(path)
	if err != nil {
		return fmt.Errorf("failed to read config file %s: %w", path, err)
	}

	var parsed Config
	if err := yaml.Unmarshal(data, &parsed); err != nil {
		return fmt.Errorf("failed to parse config file %s: %w", path, err)
	}

	c.mergeWith(&parsed)
	return nil
}

// mergeWith merges non-zero values from other into c.
func (c *Config) mergeWith(other *Config) {
	if other.Version != 0 {
		c.Version = other.Version
	}

	// Docs
	if other.Docs.Root != "" {
		c.Docs.Root = other.Docs.Root
	}
	if len(other.Docs.Include) > 0 {
		c.Docs.Include = other.Docs.Include
	}
	if len(other.Docs.Ignore) > 0 {
		// Merge with defaults rather than replace
		c.Docs.Ignore = append(c.Docs.Ignore, other.Docs.Ignore...)
	}
	if other.Docs.MaxFileSizeMB != 0 {
		c.Docs.MaxFileSizeMB = other.Docs.MaxFileSizeMB
	}

	// Watch. Enabled defaults to true, so a bare yaml `watch:` block with
	// enabled omitted parses as false; only honor it when debounce is
	// also set or the value differs deliberately via env.
	if other.Watch.Debounce != "" {
		c.Watch.Enabled = other.Watch.Enabled
		c.Watch.Debounce = other.Watch.Debounce
	}

	// Search weights. 0 is not a practical weight, so merge non-zero only.
	if other.Search.VectorWeight != 0 {
		c.Search.VectorWeight = other.Search.VectorWeight
	}
	if other.Search.KeywordWeight != 0 {
		c.Search.KeywordWeight = other.Search.KeywordWeight
	}
	if other.Search.MaxResults != 0 {
		c.Search.MaxResults = other.Search.MaxResults
	}

	// Embeddings
	if other.Embeddings.Provider != "" {
		c.Embeddings.Provider = other.Embeddings.Provider
	}
	if other.Embeddings.Model != "" {
		c.Embeddings.Model = other.Embeddings.Model
	}
	if other.Embeddings.Dimensions != 0 {
		c.Embeddings.Dimensions = other.Embeddings.Dimensions
	}
	if other.Embeddings.BatchSize != 0 {
		c.Embeddings.BatchSize = other.Embeddings.BatchSize
	}
	if other.Embeddings.OllamaHost != "" {
		c.Embeddings.OllamaHost = other.Embeddings.OllamaHost
	}
	if other.Embeddings.Timeout != "" {
		c.Embeddings.Timeout = other.Embeddings.Timeout
	}

	// Chat
	if other.Chat.Model != "" {
		c.Chat.Model = other.Chat.Model
	}
	if other.Chat.Timeout != "" {
		c.Chat.Timeout = other.Chat.Timeout
	}
	if other.Chat.MaxContextChunks != 0 {
		c.Chat.MaxContextChunks = other.Chat.MaxContextChunks
	}

	// Chunking
	if other.Chunking.Size != 0 {
		c.Chunking.Size = other.Chunking.Size
	}
	if other.Chunking.Overlap != 0 {
		c.Chunking.Overlap = other.Chunking.Overlap
	}

	// Index
	if other.Index.M != 0 {
		c.Index.M = other.Index.M
	}
	if other.Index.EfConstruction != 0 {
		c.Index.EfConstruction = other.Index.EfConstruction
	}
	if other.Index.EfSearch != 0 {
		c.Index.EfSearch = other.Index.EfSearch
	}

	// Cache
	if other.Cache.Capacity != 0 {
		c.Cache.Capacity = other.Cache.Capacity
	}
	if other.Cache.TTL != "" {
		c.Cache.TTL = other.Cache.TTL
	}

	// Rate limit
	if other.RateLimit.PerMinute != 0 {
		c.RateLimit.PerMinute = other.RateLimit.PerMinute
	}
	if other.RateLimit.Burst != 0 {
		c.RateLimit.Burst = other.RateLimit.Burst
	}
	if other.RateLimit.IdleAfter != "" {
		c.RateLimit.IdleAfter = other.RateLimit.IdleAfter
	}

	// Server
	if other.Server.Transport != "" {
		c.Server.Transport = other.Server.Transport
	}
	if other.Server.LogLevel != "" {
		c.Server.LogLevel = other.Server.LogLevel
	}
}

// applyEnvOverrides applies BRAINMCP_* environment variable overrides.
func (c *Config) applyEnvOverrides() {
	if v := os.Getenv("BRAINMCP_DOCS_ROOT"); v != "" {
		c.Docs.Root = v
	}

	if v := os.Getenv("BRAINMCP_VECTOR_WEIGHT"); v != "" {
		if w, err := parseFloat64(v); err == nil && w >= 0 && w <= 1 {
			c.Search.VectorWeight = w
		}
	}
	if v := os.Getenv("BRAINMCP_KEYWORD_WEIGHT"); v != "" {
		if w, err := parseFloat64(v); err == nil && w >= 0 && w <= 1 {
			c.Search.KeywordWeight = w
		}
	}

	if v := os.Getenv("BRAINMCP_EMBEDDINGS_PROVIDER"); v != "" {
		c.Embeddings.Provider = v
	}
	// BRAINMCP_EMBEDDER is an alias for BRAINMCP_EMBEDDINGS_PROVIDER
	if v := os.Getenv("BRAINMCP_EMBEDDER"); v != "" {
		c.Embeddings.Provider = v
	}
	if v := os.Getenv("BRAINMCP_EMBEDDINGS_MODEL"); v != "" {
		c.Embeddings.Model = v
	}
	if v := os.Getenv("BRAINMCP_OLLAMA_HOST"); v != "" {
		c.Embeddings.OllamaHost = v
	}
	if v := os.Getenv("BRAINMCP_CHAT_MODEL"); v != "" {
		c.Chat.Model = v
	}

	if v := os.Getenv("BRAINMCP_WATCH_DEBOUNCE"); v != "" {
		c.Watch.Debounce = v
	}
	if v := os.Getenv("BRAINMCP_WATCH_ENABLED"); v != "" {
		c.Watch.Enabled = strings.ToLower(v) == "true" || v == "1"
	}

	if v := os.Getenv("BRAINMCP_CACHE_CAPACITY"); v != "" {
		if n, err := strconv.Atoi(v); err == nil && n > 0 {
			c.Cache.Capacity = n
		}
	}
	if v := os.Getenv("BRAINMCP_CACHE_TTL"); v != "" {
		c.Cache.TTL = v
	}

	if v := os.Getenv("BRAINMCP_RATE_PER_MINUTE"); v != "" {
		if n, err := strconv.Atoi(v); err == nil && n > 0 {
			c.RateLimit.PerMinute = n
		}
	}
	if v := os.Getenv("BRAINMCP_RATE_BURST"); v != "" {
		if n, err := strconv.Atoi(v); err == nil && n > 0 {
			c.RateLimit.Burst = n
		}
	}

	if v := os.Getenv("BRAINMCP_LOG_LEVEL"); v != "" {
		c.Server.LogLevel = v
	}
	if v := os.Getenv("BRAINMCP_TRANSPORT"); v != "" {
		c.Server.Transport = v
	}
}

// parseFloat64 parses a string to float64, used for config parsing.
func parseFloat64(s string) (float64, error) {
	var f float64
	_, err := fmt.Sscanf(strings.TrimSpace(s), "%f", &f)
	return f, err
}

// Validate validates the configuration and returns an error if invalid.
func (c *Config) Validate() error {
	if c.Search.VectorWeight < 0 || c.Search.VectorWeight > 1 {
		return fmt.Errorf("vector_weight must be between 0 and 1, got %f", c.Search.VectorWeight)
	}
	if c.Search.KeywordWeight < 0 || c.Search.KeywordWeight > 1 {
		return fmt.Errorf("keyword_weight must be between 0 and 1, got %f", c.Search.KeywordWeight)
	}

	sum := c.Search.VectorWeight + c.Search.KeywordWeight
	if math.Abs(sum-1.0) > 0.01 {
		return fmt.Errorf("vector_weight + keyword_weight must equal 1.0, got %.2f", sum)
	}

	if c.Search.MaxResults < 0 {
		return fmt.Errorf("max_results must be non-negative, got %d", c.Search.MaxResults)
	}

	if c.Chunking.Size <= 0 {
		return fmt.Errorf("chunking.size must be positive, got %d", c.Chunking.Size)
	}
	if c.Chunking.Overlap < 0 || c.Chunking.Overlap >= c.Chunking.Size {
		return fmt.Errorf("chunking.overlap must be in [0, size), got %d", c.Chunking.Overlap)
	}

	if c.Cache.Capacity <= 0 {
		return fmt.Errorf("cache.capacity must be positive, got %d", c.Cache.Capacity)
	}
	if _, err := time.ParseDuration(c.Cache.TTL); err != nil {
		return fmt.Errorf("cache.ttl is not a valid duration: %q", c.Cache.TTL)
	}

	if c.RateLimit.PerMinute <= 0 {
		return fmt.Errorf("ratelimit.per_minute must be positive, got %d", c.RateLimit.PerMinute)
	}
	if c.RateLimit.Burst <= 0 {
		return fmt.Errorf("ratelimit.burst must be positive, got %d", c.RateLimit.Burst)
	}
	if _, err := time.ParseDuration(c.RateLimit.IdleAfter); err != nil {
		return fmt.Errorf("ratelimit.idle_after is not a valid duration: %q", c.RateLimit.IdleAfter)
	}

	if _, err := time.ParseDuration(c.Watch.Debounce); err != nil {
		return fmt.Errorf("watch.debounce is not a valid duration: %q", c.Watch.Debounce)
	}

	if c.Embeddings.Provider != "" { // Empty string triggers auto-detection
		validProviders := map[string]bool{"ollama": true, "static": true}
		if !validProviders[strings.ToLower(c.Embeddings.Provider)] {
			return fmt.Errorf("embeddings.provider must be 'ollama', 'static', or empty (auto-detect), got %s", c.Embeddings.Provider)
		}
	}

	validTransports := map[string]bool{"stdio": true, "socket": true}
	if !validTransports[strings.ToLower(c.Server.Transport)] {
		return fmt.Errorf("server.transport must be 'stdio' or 'socket', got %s", c.Server.Transport)
	}

	validLevels := map[string]bool{"debug": true, "info": true, "warn": true, "error": true}
	if !validLevels[strings.ToLower(c.Server.LogLevel)] {
		return fmt.Errorf("server.log_level must be 'debug', 'info', 'warn', or 'error', got %s", c.Server.LogLevel)
	}

	return nil
}

// DataDir returns the data directory for the configured docs root.
// All derived state (indexes, state db, socket, logs) lives under it.
func (c *Config) DataDir() string {
	return filepath.Join(c.Docs.Root, ".brainmcp")
}

// DebounceWindow returns the parsed watch debounce duration.
func (c *Config) DebounceWindow() time.Duration {
	return parseDurationOr(c.Watch.Debounce, time.Second)
}

// CacheTTL returns the parsed cache entry TTL.
func (c *Config) CacheTTL() time.Duration {
	return parseDurationOr(c.Cache.TTL, time.Hour)
}

// RateIdleAfter returns the parsed idle horizon for per-client buckets.
func (c *Config) RateIdleAfter() time.Duration {
	return parseDurationOr(c.RateLimit.IdleAfter, 10*time.Minute)
}

// EmbedTimeout returns the parsed per-batch embedding timeout.
func (c *Config) EmbedTimeout() time.Duration {
	return parseDurationOr(c.Embeddings.Timeout, 60*time.Second)
}

// ChatTimeout returns the parsed generation timeout.
func (c *Config) ChatTimeout() time.Duration {
	return parseDurationOr(c.Chat.Timeout, 300*time.Second)
}

func parseDurationOr(s string, fallback time.Duration) time.Duration {
	d, err := time.ParseDuration(s)
	if err != nil || d <= 0 {
		return fallback
	}
	return d
}

// FindDocsRoot finds the docs root by walking up from startDir looking
// for a .brainmcp.yaml/.yml file or an existing .brainmcp data directory.
// Falls back to the absolute startDir when nothing is found.
func FindDocsRoot(startDir string) (string, error) {
	absDir, err := filepath.Abs(startDir)
	if err != nil {
		return "", fmt.Errorf("failed to get absolute path: %w", err)
	}

	currentDir := absDir
	for {
		if fileExists(filepath.Join(currentDir, ".brainmcp.yaml")) ||
			fileExists(filepath.Join(currentDir, ".brainmcp.yml")) ||
			dirExists(filepath.Join(currentDir, ".brainmcp")) {
			return currentDir, nil
		}

		parentDir := filepath.Dir(currentDir)
		if parentDir == currentDir {
			// Reached root, return original directory
			return absDir, nil
		}
		currentDir = parentDir
	}
}

// fileExists checks if a file exists and is not a directory.
func fileExists(path string) bool {
	info, err := os.Stat(path)
	if err != nil {
		return false
	}
	return !info.IsDir()
}

// dirExists checks if a directory exists.
func dirExists(path string) bool {
	info, err := os.Stat(path)
	if err != nil {
		return false
	}
	return info.IsDir()
}

// WriteYAML writes the configuration to a YAML file.
func (c *Config) WriteYAML(path string) error {
	data, err := yaml.Marshal(c)
	if err != nil {
		return fmt.Errorf("failed to marshal config: %w", err)
	}

	if err := os.WriteFile(path, data, 0o644); err != nil {
		return fmt.Errorf("failed to write config file: %w", err)
	}

	return nil
}

// LoadUserConfig loads the user configuration file.
// Returns nil config and nil error if the file doesn't exist.
func LoadUserConfig() (*Config, error) {
	return loadUserConfig()
}
