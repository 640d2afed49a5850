// Package config loads and validates application configuration from YAML files
// with environment-variable overrides. It provides typed structs for every
// subsystem (Server, Cluster, Postgres, Kafka, Redis, Search, Cache, Summary,
// etc.).
package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"gopkg.in/yaml.v3"
)

// Config is the top-level application configuration.
type Config struct {
	Server    ServerConfig    `yaml:"server"`
	Cluster   ClusterConfig   `yaml:"cluster"`
	Postgres  PostgresConfig  `yaml:"postgres"`
	Kafka     KafkaConfig     `yaml:"kafka"`
	Redis     RedisConfig     `yaml:"redis"`
	Search    SearchConfig    `yaml:"search"`
	Cache     CacheConfig     `yaml:"cache"`
	Summary   SummaryConfig   `yaml:"summary"`
	Storage   StorageConfig   `yaml:"storage"`
	Logging   LoggingConfig   `yaml:"logging"`
	Tracing   TracingConfig   `yaml:"tracing"`
	Metrics   MetricsConfig   `yaml:"metrics"`
	Analytics AnalyticsConfig `yaml:"analytics"`
}

// ServerConfig holds the peer RPC listener settings.
type ServerConfig struct {
	RPCAddr         string        `yaml:"rpcAddr"`
	ShutdownTimeout time.Duration `yaml:"shutdownTimeout"`
}

// ClusterConfig describes this machine and the peers holding other parts of
// the index. A query fans out to the network only when Peers has more than
// one entry.
type ClusterConfig struct {
	MachineID      int           `yaml:"machineId"`
	Peers          []string      `yaml:"peers"`
	PeerTimeout    time.Duration `yaml:"peerTimeout"`
	RetryAttempts  int           `yaml:"retryAttempts"`
	BreakerFailure int           `yaml:"breakerFailureThreshold"`
	BreakerReset   time.Duration `yaml:"breakerResetTimeout"`
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
	FilterEdits     string `yaml:"filterEdits"`
	CacheInvalidate string `yaml:"cacheInvalidate"`
	QueryEvents     string `yaml:"queryEvents"`
	Documents       string `yaml:"documents"`
}

// RedisConfig holds Redis connection parameters. When Addr is empty the
// searcher keeps its caches in process memory.
type RedisConfig struct {
	Addr     string `yaml:"addr"`
	Password string `yaml:"password"`
	DB       int    `yaml:"db"`
	PoolSize int    `yaml:"poolSize"`
}

// SearchConfig controls query execution limits.
type SearchConfig struct {
	DefaultIndex      string `yaml:"defaultIndex"`
	DefaultLocale     string `yaml:"defaultLocale"`
	DefaultNum        int    `yaml:"defaultNum"`
	MaxNum            int    `yaml:"maxNum"`
	MinResultsToFetch int    `yaml:"minResultsToFetch"`
	MaxResultsToFetch int    `yaml:"maxResultsToFetch"`
	MaxDescriptionLen int    `yaml:"maxDescriptionLen"`
	MaxQueryLength    int    `yaml:"maxQueryLength"`
}

// CacheConfig controls the parse cache, result cache and save points.
type CacheConfig struct {
	Enabled      bool          `yaml:"enabled"`
	ParseTTL     time.Duration `yaml:"parseTTL"`
	MaxTTL       time.Duration `yaml:"maxTTL"`
	MinTTL       time.Duration `yaml:"minTTL"`
	SavePointTTL time.Duration `yaml:"savePointTTL"`
}

// SummaryConfig controls summary resolution batching.
type SummaryConfig struct {
	MinGroupingSize int `yaml:"minGroupingSize"`
}

// StorageConfig holds paths for local stores. SeedFile, when set, is a
// JSON-lines document file loaded at startup.
type StorageConfig struct {
	SummaryDBPath string `yaml:"summaryDbPath"`
	SeedFile      string `yaml:"seedFile"`
}

// AnalyticsConfig controls query event batching and statistics snapshots.
type AnalyticsConfig struct {
	BatchSize        int           `yaml:"batchSize"`
	FlushInterval    time.Duration `yaml:"flushInterval"`
	SnapshotInterval time.Duration `yaml:"snapshotInterval"`
}

// LoggingConfig controls structured logging level and output format.
type LoggingConfig struct {
	Level  string `yaml:"level"`
	Format string `yaml:"format"`
}

// TracingConfig controls span logging.
type TracingConfig struct {
	Enabled bool `yaml:"enabled"`
}

// MetricsConfig controls the Prometheus metrics server.
type MetricsConfig struct {
	Enabled bool `yaml:"enabled"`
	Port    int  `yaml:"port"`
}

// Load reads a YAML config file (if provided) and applies environment-variable
// overrides. It returns a Config populated with sensible defaults for any
// missing values.
func Load(path string) (*Config, error) {
	cfg := Default()
	if path != "" {
		data, err := os.ReadFile(path)
		if err != nil {
			return nil, fmt.Errorf("reading config file %s: %w", path, err)
		}
		if err := yaml.Unmarshal(data, cfg); err != nil {
			return nil, fmt.Errorf("parsing config file %s: %w", path, err)
		}
	}
	applyEnvOverrides(cfg)
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// Default returns a Config with defaults suitable for a single local machine.
func Default() *Config {
	return &Config{
		Server: ServerConfig{
			RPCAddr:         ":9400",
			ShutdownTimeout: 15 * time.Second,
		},
		Cluster: ClusterConfig{
			MachineID:      0,
			PeerTimeout:    5 * time.Second,
			RetryAttempts:  2,
			BreakerFailure: 5,
			BreakerReset:   30 * time.Second,
		},
		Postgres: PostgresConfig{
			Host:            "localhost",
			Port:            5432,
			Database:        "searchplatform",
			User:            "searchplatform",
			Password:        "localdev",
			SSLMode:         "disable",
			MaxOpenConns:    10,
			MaxIdleConns:    2,
			ConnMaxLifetime: 5 * time.Minute,
		},
		Kafka: KafkaConfig{
			Brokers:       []string{"localhost:9092"},
			ConsumerGroup: "query-engine",
			Topics: KafkaTopics{
				FilterEdits:     "result-filter-edits",
				CacheInvalidate: "cache-invalidate",
				QueryEvents:     "query-events",
				Documents:       "documents",
			},
		},
		Redis: RedisConfig{
			PoolSize: 10,
		},
		Search: SearchConfig{
			DefaultIndex:      "main",
			DefaultLocale:     "en-US",
			DefaultNum:        10,
			MaxNum:            100,
			MinResultsToFetch: 200,
			MaxResultsToFetch: 2000,
			MaxDescriptionLen: 2000,
			MaxQueryLength:    1024,
		},
		Cache: CacheConfig{
			Enabled:      true,
			ParseTTL:     time.Hour,
			MaxTTL:       time.Hour,
			MinTTL:       2 * time.Minute,
			SavePointTTL: 24 * time.Hour,
		},
		Summary: SummaryConfig{
			MinGroupingSize: 200,
		},
		Storage: StorageConfig{
			SummaryDBPath: "data/summaries.db",
		},
		Logging: LoggingConfig{
			Level:  "info",
			Format: "json",
		},
		Metrics: MetricsConfig{
			Enabled: true,
			Port:    9090,
		},
		Analytics: AnalyticsConfig{
			BatchSize:        100,
			FlushInterval:    5 * time.Second,
			SnapshotInterval: 5 * time.Minute,
		},
	}
}

// Validate rejects settings the engine cannot run with.
func (c *Config) Validate() error {
	if c.Search.DefaultIndex == "" {
		return fmt.Errorf("search.defaultIndex must not be empty")
	}
	if c.Search.DefaultNum <= 0 || c.Search.MaxNum < c.Search.DefaultNum {
		return fmt.Errorf("search.defaultNum must be positive and <= search.maxNum")
	}
	if c.Cache.MinTTL > c.Cache.MaxTTL {
		return fmt.Errorf("cache.minTTL (%v) exceeds cache.maxTTL (%v)", c.Cache.MinTTL, c.Cache.MaxTTL)
	}
	if c.Cluster.MachineID < 0 || (len(c.Cluster.Peers) > 0 && c.Cluster.MachineID >= len(c.Cluster.Peers)) {
		return fmt.Errorf("cluster.machineId %d does not index into cluster.peers", c.Cluster.MachineID)
	}
	if c.Analytics.BatchSize <= 0 {
		return fmt.Errorf("analytics.batchSize must be positive")
	}
	if c.Summary.MinGroupingSize <= 0 {
		return fmt.Errorf("summary.minGroupingSize must be positive")
	}
	return nil
}

// applyEnvOverrides reads SP_* environment variables and overrides the
// corresponding config fields.
func applyEnvOverrides(cfg *Config) {
	if v := os.Getenv("SP_RPC_ADDR"); v != "" {
		cfg.Server.RPCAddr = v
	}
	if v := os.Getenv("SP_MACHINE_ID"); v != "" {
		if id, err := strconv.Atoi(v); err == nil {
			cfg.Cluster.MachineID = id
		}
	}
	if v := os.Getenv("SP_PEERS"); v != "" {
		cfg.Cluster.Peers = strings.Split(v, ",")
	}
	if v := os.Getenv("SP_POSTGRES_HOST"); v != "" {
		cfg.Postgres.Host = v
	}
	if v := os.Getenv("SP_POSTGRES_PORT"); v != "" {
		if port, err := strconv.Atoi(v); err == nil {
			cfg.Postgres.Port = port
		}
	}
	if v := os.Getenv("SP_POSTGRES_DATABASE"); v != "" {
		cfg.Postgres.Database = v
	}
	if v := os.Getenv("SP_POSTGRES_USER"); v != "" {
		cfg.Postgres.User = v
	}
	if v := os.Getenv("SP_POSTGRES_PASSWORD"); v != "" {
		cfg.Postgres.Password = v
	}
	if v := os.Getenv("SP_KAFKA_BROKERS"); v != "" {
		cfg.Kafka.Brokers = strings.Split(v, ",")
	}
	if v := os.Getenv("SP_REDIS_ADDR"); v != "" {
		cfg.Redis.Addr = v
	}
	if v := os.Getenv("SP_REDIS_PASSWORD"); v != "" {
		cfg.Redis.Password = v
	}
	if v := os.Getenv("SP_SEARCH_DEFAULT_INDEX"); v != "" {
		cfg.Search.DefaultIndex = v
	}
	if v := os.Getenv("SP_SUMMARY_DB_PATH"); v != "" {
		cfg.Storage.SummaryDBPath = v
	}
	if v := os.Getenv("SP_SEED_FILE"); v != "" {
		cfg.Storage.SeedFile = v
	}
	if v := os.Getenv("SP_KAFKA_ENABLED"); v != "" {
		cfg.Kafka.Enabled = v == "true"
	}
	if v := os.Getenv("SP_POSTGRES_ENABLED"); v != "" {
		cfg.Postgres.Enabled = v == "true"
	}
	if v := os.Getenv("SP_LOGGING_LEVEL"); v != "" {
		cfg.Logging.Level = v
	}
	if v := os.Getenv("SP_LOGGING_FORMAT"); v != "" {
		cfg.Logging.Format = v
	}
}
