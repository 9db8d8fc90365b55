package config

import (
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"regexp"
	"time"
)

// Config is the top-level configuration structure.
type Config struct {
	Server     ServerConfig     `json:"server"`
	Logging    LoggingConfig    `json:"logging"`
	CORS       CORSConfig       `json:"cors"`
	Assistant  AssistantConfig  `json:"assistant"`
	Providers  []ProviderConfig `json:"providers"`
	Generation GenerationConfig `json:"generation"`
	Embedding  EmbeddingConfig  `json:"embedding"`
	VectorDB   VectorDBConfig   `json:"vectordb"`
	Cache      CacheConfig      `json:"cache"`
	Classifier ClassifierConfig `json:"classifier"`
	Retrieval  RetrievalConfig  `json:"retrieval"`
	Knowledge  KnowledgeConfig  `json:"knowledge"`
	History    HistoryConfig    `json:"history"`
}

type ServerConfig struct {
	Port           int      `json:"port"`
	RequestTimeout Duration `json:"request_timeout"`
}

type LoggingConfig struct {
	Level       string `json:"level"`
	Development bool   `json:"development"`
	File        string `json:"file"`
	MaxSizeMB   int    `json:"max_size_mb"`
	MaxBackups  int    `json:"max_backups"`
}

type CORSConfig struct {
	AllowedOrigins []string `json:"allowed_origins"`
}

type AssistantConfig struct {
	Owner string `json:"owner"`
}

type ProviderConfig struct {
	ID       string            `json:"id"`
	Type     string            `json:"type"`
	Name     string            `json:"name"`
	Endpoint string            `json:"endpoint"`
	APIKey   string            `json:"api_key"`
	Models   []string          `json:"models,omitempty"`
	Extra    map[string]string `json:"extra,omitempty"`
}

type GenerationConfig struct {
	Timeout     Duration `json:"timeout"`
	Temperature float64  `json:"temperature"`
}

type EmbeddingConfig struct {
	Provider  string   `json:"provider"`
	Endpoint  string   `json:"endpoint"`
	Model     string   `json:"model"`
	APIKey    string   `json:"api_key"`
	Dimension int      `json:"dimension"`
	Timeout   Duration `json:"timeout"`
}

type VectorDBConfig struct {
	Mode                string       `json:"mode"`
	Qdrant              QdrantConfig `json:"qdrant"`
	KnowledgeCollection string       `json:"knowledge_collection"`
	CacheCollection     string       `json:"cache_collection"`
}

type QdrantConfig struct {
	Host string `json:"host"`
	Port int    `json:"port"`
}

// Thresholds are pointers so an explicit 0 is kept by ApplyDefaults.
type CacheConfig struct {
	MaxSize   int      `json:"max_size"`
	Threshold *float64 `json:"threshold"`
}

type ClassifierConfig struct {
	Threshold     *float64 `json:"threshold"`
	CentroidsPath string   `json:"centroids_path"`
}

type RetrievalConfig struct {
	TopK int `json:"top_k"`
}

type KnowledgeConfig struct {
	Path        string `json:"path"`
	Watch       bool   `json:"watch"`
	Concurrency int    `json:"concurrency"`
}

type HistoryConfig struct {
	Backend  string         `json:"backend"` // memory, redis or postgres
	Length   int            `json:"length"`
	Redis    RedisConfig    `json:"redis"`
	Postgres PostgresConfig `json:"postgres"`
}

type RedisConfig struct {
	URL string   `json:"url"`
	TTL Duration `json:"ttl"`
}

type PostgresConfig struct {
	DSN           string `json:"dsn"`
	MigrationsDir string `json:"migrations_dir"`
}

// Duration accepts "90s"-style strings or a number of seconds.
type Duration time.Duration

func (d Duration) Std() time.Duration { return time.Duration(d) }

func (d Duration) MarshalJSON() ([]byte, error) {
	return json.Marshal(time.Duration(d).String())
}

func (d *Duration) UnmarshalJSON(b []byte) error {
	var v interface{}
	if err := json.Unmarshal(b, &v); err != nil {
		return err
	}
	switch x := v.(type) {
	case float64:
		*d = Duration(time.Duration(x * float64(time.Second)))
	case string:
		if x == "" {
			*d = 0
			return nil
		}
		p, err := time.ParseDuration(x)
		if err != nil {
			return fmt.Errorf("parse duration %q: %w", x, err)
		}
		*d = Duration(p)
	default:
		return fmt.Errorf("invalid duration %s", b)
	}
	return nil
}

// DefaultOrigins are the browser origins allowed when none are configured.
var DefaultOrigins = []string{
	"http://localhost:4000",
	"http://127.0.0.1:4000",
	"https://akshayrpatel.github.io",
}

// ApplyDefaults fills every unset field with its default.
func (c *Config) ApplyDefaults() {
	if c.Server.Port == 0 {
		c.Server.Port = 8000
	}
	if c.Server.RequestTimeout == 0 {
		c.Server.RequestTimeout = Duration(5 * time.Minute)
	}
	if c.Logging.Level == "" {
		c.Logging.Level = "info"
	}
	if c.Logging.MaxSizeMB == 0 {
		c.Logging.MaxSizeMB = 5
	}
	if c.Logging.MaxBackups == 0 {
		c.Logging.MaxBackups = 2
	}
	if len(c.CORS.AllowedOrigins) == 0 {
		c.CORS.AllowedOrigins = append([]string(nil), DefaultOrigins...)
	}
	if c.Generation.Timeout == 0 {
		c.Generation.Timeout = Duration(60 * time.Second)
	}
	if c.VectorDB.Mode == "" {
		c.VectorDB.Mode = "memory"
	}
	if c.VectorDB.KnowledgeCollection == "" {
		c.VectorDB.KnowledgeCollection = "knowledge"
	}
	if c.VectorDB.CacheCollection == "" {
		c.VectorDB.CacheCollection = "semantic_cache"
	}
	if c.Cache.MaxSize == 0 {
		c.Cache.MaxSize = 100
	}
	if c.Cache.Threshold == nil {
		c.Cache.Threshold = Float(0.9)
	}
	if c.Classifier.Threshold == nil {
		c.Classifier.Threshold = Float(0.6)
	}
	if c.Retrieval.TopK == 0 {
		c.Retrieval.TopK = 10
	}
	if c.Knowledge.Concurrency == 0 {
		c.Knowledge.Concurrency = 4
	}
	if c.History.Backend == "" {
		c.History.Backend = "memory"
	}
	if c.History.Length == 0 {
		c.History.Length = 5
	}
	if c.History.Postgres.MigrationsDir == "" {
		c.History.Postgres.MigrationsDir = "migrations"
	}
}

// Validate reports every setting that would stop the service from working.
func (c *Config) Validate() error {
	var errs []error
	switch c.VectorDB.Mode {
	case "memory":
	case "qdrant":
		if c.VectorDB.Qdrant.Host == "" {
			errs = append(errs, errors.New("vectordb.qdrant.host is required in qdrant mode"))
		}
		if c.VectorDB.Qdrant.Port <= 0 {
			errs = append(errs, fmt.Errorf("vectordb.qdrant.port must be positive, got %d", c.VectorDB.Qdrant.Port))
		}
	default:
		errs = append(errs, fmt.Errorf("vectordb.mode must be memory or qdrant, got %q", c.VectorDB.Mode))
	}
	if err := checkUnit("cache.threshold", c.Cache.Threshold); err != nil {
		errs = append(errs, err)
	}
	if err := checkUnit("classifier.threshold", c.Classifier.Threshold); err != nil {
		errs = append(errs, err)
	}
	if c.Cache.MaxSize <= 0 {
		errs = append(errs, fmt.Errorf("cache.max_size must be positive, got %d", c.Cache.MaxSize))
	}
	switch c.History.Backend {
	case "memory":
	case "redis":
		if c.History.Redis.URL == "" {
			errs = append(errs, errors.New("history.redis.url is required for the redis backend"))
		}
	case "postgres":
		if c.History.Postgres.DSN == "" {
			errs = append(errs, errors.New("history.postgres.dsn is required for the postgres backend"))
		}
	default:
		errs = append(errs, fmt.Errorf("history.backend must be memory, redis or postgres, got %q", c.History.Backend))
	}
	if len(c.Providers) == 0 {
		errs = append(errs, errors.New("at least one provider is required"))
	}
	return errors.Join(errs...)
}

func checkUnit(name string, v *float64) error {
	if v == nil {
		return fmt.Errorf("%s is not set", name)
	}
	if *v < 0 || *v > 1 {
		return fmt.Errorf("%s must be in [0,1], got %v", name, *v)
	}
	return nil
}

// Float returns a pointer to v.
func Float(v float64) *float64 { return &v }

// envVarRe matches ${VAR} and ${VAR:default} patterns.
var envVarRe = regexp.MustCompile(`\$\{(\w+)(?::([^}]*))?\}`)

// Load reads a JSON config file, substitutes environment variable references
// and applies defaults. It does not validate.
func Load(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read config %s: %w", path, err)
	}

	// Substitute ${VAR} and ${VAR:default} with environment values.
	resolved := envVarRe.ReplaceAllStringFunc(string(data), func(match string) string {
		parts := envVarRe.FindStringSubmatch(match)
		name := parts[1]
		defaultVal := parts[2]
		if v := os.Getenv(name); v != "" {
			return v
		}
		return defaultVal
	})

	var cfg Config
	if err := json.Unmarshal([]byte(resolved), &cfg); err != nil {
		return nil, fmt.Errorf("parse config %s: %w", path, err)
	}
	cfg.ApplyDefaults()
	return &cfg, nil
}
