// Package config loads and validates docsearch configuration from YAML files
// with environment-variable overrides. It provides typed structs for every
// subsystem (Server, Postgres, Kafka, Redis, Index, Search, Sources, etc.).
package config

import (
	"fmt"
	"math"
	"os"
	"strconv"
	"strings"
	"time"

	"gopkg.in/yaml.v3"
)

// Config is the top-level application configuration.
type Config struct {
	Server   ServerConfig   `yaml:"server"`
	Postgres PostgresConfig `yaml:"postgres"`
	Kafka    KafkaConfig    `yaml:"kafka"`
	Redis    RedisConfig    `yaml:"redis"`
	Index    IndexConfig    `yaml:"index"`
	Search   SearchConfig   `yaml:"search"`
	Sources  SourcesConfig  `yaml:"sources"`
	Logging  LoggingConfig  `yaml:"logging"`
	Metrics  MetricsConfig  `yaml:"metrics"`
	MCP      MCPConfig      `yaml:"mcp"`
}

// ServerConfig holds HTTP server settings.
type ServerConfig struct {
	Port            int           `yaml:"port"`
	ReadTimeout     time.Duration `yaml:"readTimeout"`
	WriteTimeout    time.Duration `yaml:"writeTimeout"`
	ShutdownTimeout time.Duration `yaml:"shutdownTimeout"`
	// RateLimit is requests per minute per client; 0 disables limiting.
	RateLimit   int      `yaml:"rateLimit"`
	CORSOrigins []string `yaml:"corsOrigins"`
}

// PostgresConfig holds PostgreSQL connection parameters.
type PostgresConfig struct {
	Enabled         bool          `yaml:"enabled"`
	Host            string        `yaml:"host"`
	Port            int           `yaml:"port"`
	Database        string        `yaml:"database"`
	User            string        `yaml:"user"`
	Password        string        `yaml:"password"`
	SSLMode         string        `yaml:"sslMode"`
	MaxOpenConns    int           `yaml:"maxOpenConns"`
	MaxIdleConns    int           `yaml:"maxIdleConns"`
	ConnMaxLifetime time.Duration `yaml:"connMaxLifetime"`
}

// DSN returns a lib/pq-compatible data source name.
func (p PostgresConfig) DSN() string {
	return fmt.Sprintf(
		"host=%s port=%d user=%s password=%s dbname=%s sslmode=%s",
		p.Host, p.Port, p.User, p.Password, p.Database, p.SSLMode,
	)
}

// KafkaConfig holds Kafka broker and topic settings.
type KafkaConfig struct {
	Enabled       bool        `yaml:"enabled"`
	Brokers       []string    `yaml:"brokers"`
	ConsumerGroup string      `yaml:"consumerGroup"`
	Topics        KafkaTopics `yaml:"topics"`
}

// KafkaTopics maps logical topic names to their Kafka topic strings.
type KafkaTopics struct {
	AnalyticsEvents string `yaml:"analyticsEvents"`
}

// RedisConfig holds Redis connection and caching parameters.
type RedisConfig struct {
	Enabled  bool          `yaml:"enabled"`
	Addr     string        `yaml:"addr"`
	Password string        `yaml:"password"`
	DB       int           `yaml:"db"`
	PoolSize int           `yaml:"poolSize"`
	CacheTTL time.Duration `yaml:"cacheTTL"`
}

// IndexConfig declares the index schema and the normalization applied to
// both documents and queries.
type IndexConfig struct {
	TextFields             []string `yaml:"textFields"`
	KeywordFields          []string `yaml:"keywordFields"`
	StopWords              bool     `yaml:"stopWords"`
	Stem                   bool     `yaml:"stem"`
	MinTermLength          int      `yaml:"minTermLength"`
	KeywordMatchWeight     float64  `yaml:"keywordMatchWeight"`
	KeywordCaseInsensitive bool     `yaml:"keywordCaseInsensitive"`
}

// SearchConfig controls query limits and the default per-field boosts.
type SearchConfig struct {
	DefaultLimit int                `yaml:"defaultLimit"`
	MaxResults   int                `yaml:"maxResults"`
	Boosts       map[string]float64 `yaml:"boosts"`
}

// SourcesConfig lists where the corpus is loaded from. Sources are loaded
// in the order archive, fetch, postgres.
type SourcesConfig struct {
	Archive  ArchiveSourceConfig  `yaml:"archive"`
	Fetch    FetchSourceConfig    `yaml:"fetch"`
	Postgres PostgresSourceConfig `yaml:"postgres"`
}

// ArchiveSourceConfig points at a zip archive of markdown files.
type ArchiveSourceConfig struct {
	Path       string   `yaml:"path"`
	Extensions []string `yaml:"extensions"`
	StripRoot  bool     `yaml:"stripRoot"`
}

// FetchSourceConfig controls the markdown-conversion fetch client.
type FetchSourceConfig struct {
	BaseURL     string        `yaml:"baseURL"`
	URLs        []string      `yaml:"urls"`
	Timeout     time.Duration `yaml:"timeout"`
	MaxAttempts int           `yaml:"maxAttempts"`
}

// PostgresSourceConfig holds the query that yields (filename, content) rows.
type PostgresSourceConfig struct {
	Enabled bool          `yaml:"enabled"`
	Query   string        `yaml:"query"`
	Timeout time.Duration `yaml:"timeout"`
}

// LoggingConfig controls structured logging level and output format.
type LoggingConfig struct {
	Level  string `yaml:"level"`
	Format string `yaml:"format"`
}

// MetricsConfig controls the Prometheus metrics server.
type MetricsConfig struct {
	Enabled bool `yaml:"enabled"`
	Port    int  `yaml:"port"`
}

// MCPConfig identifies the MCP server to clients.
type MCPConfig struct {
	Name    string `yaml:"name"`
	Version string `yaml:"version"`
}

// Load reads a YAML config file (if provided) and applies environment-variable
// overrides. It returns a Config populated with defaults for any missing
// values.
func Load(path string) (*Config, error) {
	cfg := defaultConfig()
	if path != "" {
		data, err := os.ReadFile(path)
		if err != nil {
			return nil, fmt.Errorf("reading config file %s: %w", path, err)
		}
		// yaml.v3 merges into non-nil maps; a file's boosts replace the defaults.
		defaultBoosts := cfg.Search.Boosts
		cfg.Search.Boosts = nil
		if err := yaml.Unmarshal(data, cfg); err != nil {
			return nil, fmt.Errorf("parsing config file %s: %w", path, err)
		}
		if cfg.Search.Boosts == nil {
			cfg.Search.Boosts = defaultBoosts
		}
	}
	applyEnvOverrides(cfg)
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// Validate checks the index schema and search limits.
func (c *Config) Validate() error {
	if len(c.Index.TextFields)+len(c.Index.KeywordFields) == 0 {
		return fmt.Errorf("index: at least one text or keyword field is required")
	}
	seen := make(map[string]struct{})
	for _, name := range append(append([]string{}, c.Index.TextFields...), c.Index.KeywordFields...) {
		if strings.TrimSpace(name) == "" {
			return fmt.Errorf("index: field names must not be empty")
		}
		if _, dup := seen[name]; dup {
			return fmt.Errorf("index: field %q declared more than once", name)
		}
		seen[name] = struct{}{}
	}
	for name, weight := range c.Search.Boosts {
		if _, ok := seen[name]; !ok {
			return fmt.Errorf("search: boost for undeclared field %q", name)
		}
		if math.IsNaN(weight) || math.IsInf(weight, 0) {
			return fmt.Errorf("search: boost for %q must be finite", name)
		}
		if weight < 0 {
			return fmt.Errorf("search: boost for %q must not be negative", name)
		}
	}
	if c.Search.DefaultLimit <= 0 {
		return fmt.Errorf("search: defaultLimit must be positive")
	}
	if c.Search.MaxResults < c.Search.DefaultLimit {
		return fmt.Errorf("search: maxResults must be >= defaultLimit")
	}
	return nil
}

// defaultConfig returns a Config with defaults for local development. The
// schema and boosts mirror the documentation-search call site: content and
// filename as text fields, filename boosted twice.
func defaultConfig() *Config {
	return &Config{
		Server: ServerConfig{
			Port:            8080,
			ReadTimeout:     30 * time.Second,
			WriteTimeout:    30 * time.Second,
			ShutdownTimeout: 15 * time.Second,
		},
		Postgres: PostgresConfig{
			Host:            "localhost",
			Port:            5432,
			Database:        "docsearch",
			User:            "docsearch",
			Password:        "localdev",
			SSLMode:         "disable",
			MaxOpenConns:    10,
			MaxIdleConns:    2,
			ConnMaxLifetime: 5 * time.Minute,
		},
		Kafka: KafkaConfig{
			Brokers:       []string{"localhost:9092"},
			ConsumerGroup: "docsearch-group",
			Topics: KafkaTopics{
				AnalyticsEvents: "docsearch-analytics",
			},
		},
		Redis: RedisConfig{
			Addr:     "localhost:6379",
			PoolSize: 10,
			CacheTTL: 60 * time.Second,
		},
		Index: IndexConfig{
			TextFields:         []string{"content", "filename", "title"},
			KeywordFields:      []string{"section"},
			KeywordMatchWeight: 1.0,
		},
		Search: SearchConfig{
			DefaultLimit: 5,
			MaxResults:   100,
			Boosts: map[string]float64{
				"content":  1,
				"filename": 2,
			},
		},
		Sources: SourcesConfig{
			Archive: ArchiveSourceConfig{
				Extensions: []string{".md", ".mdx"},
				StripRoot:  true,
			},
			Fetch: FetchSourceConfig{
				BaseURL:     "https://r.jina.ai/",
				Timeout:     30 * time.Second,
				MaxAttempts: 3,
			},
			Postgres: PostgresSourceConfig{
				Query:   "SELECT filename, content FROM documents ORDER BY id",
				Timeout: 30 * time.Second,
			},
		},
		Logging: LoggingConfig{
			Level:  "info",
			Format: "json",
		},
		Metrics: MetricsConfig{
			Enabled: true,
			Port:    9090,
		},
		MCP: MCPConfig{
			Name:    "docsearch",
			Version: "0.1.0",
		},
	}
}

// applyEnvOverrides reads DS_* environment variables and overrides the
// corresponding config fields.
func applyEnvOverrides(cfg *Config) {
	if v := os.Getenv("DS_SERVER_PORT"); v != "" {
		if port, err := strconv.Atoi(v); err == nil {
			cfg.Server.Port = port
		}
	}
	if v := os.Getenv("DS_POSTGRES_HOST"); v != "" {
		cfg.Postgres.Host = v
	}
	if v := os.Getenv("DS_POSTGRES_PORT"); v != "" {
		if port, err := strconv.Atoi(v); err == nil {
			cfg.Postgres.Port = port
		}
	}
	if v := os.Getenv("DS_POSTGRES_DATABASE"); v != "" {
		cfg.Postgres.Database = v
	}
	if v := os.Getenv("DS_POSTGRES_USER"); v != "" {
		cfg.Postgres.User = v
	}
	if v := os.Getenv("DS_POSTGRES_PASSWORD"); v != "" {
		cfg.Postgres.Password = v
	}
	if v := os.Getenv("DS_KAFKA_BROKERS"); v != "" {
		cfg.Kafka.Brokers = strings.Split(v, ",")
	}
	if v := os.Getenv("DS_REDIS_ADDR"); v != "" {
		cfg.Redis.Addr = v
	}
	if v := os.Getenv("DS_REDIS_PASSWORD"); v != "" {
		cfg.Redis.Password = v
	}
	if v := os.Getenv("DS_ARCHIVE_PATH"); v != "" {
		cfg.Sources.Archive.Path = v
	}
	if v := os.Getenv("DS_FETCH_BASE_URL"); v != "" {
		cfg.Sources.Fetch.BaseURL = v
	}
	if v := os.Getenv("DS_LOGGING_LEVEL"); v != "" {
		cfg.Logging.Level = v
	}
	if v := os.Getenv("DS_LOGGING_FORMAT"); v != "" {
		cfg.Logging.Format = v
	}
}
