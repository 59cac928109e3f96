// Package config loads the importer configuration from environment
// variables. Every setting has a default except the credentials of optional
// backends; Validate reports all problems at once so a misconfigured
// deployment fails on startup.
package config

import (
	"net"
	"strconv"
	"time"
)

// Config holds all application configuration.
type Config struct {
	Server    ServerConfig
	Security  SecurityConfig
	Database  DatabaseConfig
	Import    ImportConfig
	Mutations MutationsConfig
	Storage   StorageConfig
	Elastic   ElasticConfig
	Mongo     MongoConfig
	Logging   LoggingConfig
}

// ServerConfig holds HTTP API settings.
type ServerConfig struct {
	Host string `env:"SERVER_HOST" default:"0.0.0.0"`
	Port int    `env:"SERVER_PORT" default:"8080"`

	ReadTimeout  time.Duration `env:"SERVER_READ_TIMEOUT" default:"15s"`
	WriteTimeout time.Duration `env:"SERVER_WRITE_TIMEOUT" default:"30s"`
	IdleTimeout  time.Duration `env:"SERVER_IDLE_TIMEOUT" default:"60s"`

	// ShutdownTimeout also bounds the wait for running imports.
	ShutdownTimeout time.Duration `env:"SERVER_SHUTDOWN_TIMEOUT" default:"30s"`
	RequestTimeout  time.Duration `env:"SERVER_REQUEST_TIMEOUT" default:"60s"`
}

// SecurityConfig holds API access settings.
type SecurityConfig struct {
	// RequireAPIKey rejects API requests without a valid X-API-Key header.
	RequireAPIKey bool     `env:"REQUIRE_API_KEY" default:"false"`
	APIKeys       []string `env:"API_KEYS"`

	// TrustedProxies lists CIDRs whose X-Real-IP and X-Forwarded-For
	// headers are believed.
	TrustedProxies []string `env:"TRUSTED_PROXIES"`
}

// DatabaseConfig holds the PostgreSQL settings. The database stores the
// mutation import history and serves database sources; without URL the
// history is kept in memory.
type DatabaseConfig struct {
	// Supports both DATABASE_URL and DB_URL.
	URL string `env:"DATABASE_URL" envAlt:"DB_URL"`

	MaxConns        int           `env:"DB_MAX_CONNS" default:"10"`
	MinConns        int           `env:"DB_MIN_CONNS" default:"1"`
	MaxConnLifetime time.Duration `env:"DB_MAX_CONN_LIFETIME" default:"1h"`
	MaxConnIdleTime time.Duration `env:"DB_MAX_CONN_IDLE_TIME" default:"30m"`
}

// ImportConfig holds import run settings.
type ImportConfig struct {
	// DataDir holds dataset definitions and local source files.
	DataDir string `env:"IMPORT_DATA_DIR" default:"data"`

	// OutputDir receives contents files and result messages.
	OutputDir string `env:"IMPORT_OUTPUT_DIR" default:"output"`

	// QAChecks is an optional YAML file replacing the built-in checks.
	QAChecks string `env:"IMPORT_QA_CHECKS"`

	MaxConcurrent int           `env:"IMPORT_MAX_CONCURRENT" default:"2"`
	MaxWaitTime   time.Duration `env:"IMPORT_MAX_WAIT_TIME" default:"30s"`
	Timeout       time.Duration `env:"IMPORT_TIMEOUT" default:"2h"`
}

// MutationsConfig holds the settings of mutation fed imports.
type MutationsConfig struct {
	BaseURL  string `env:"BAG_EXTRACT_BASE_URL" default:"https://extracts.bag.example.com/bag"`
	Gemeente string `env:"BAG_GEMEENTE" default:"0363"`

	// WaitMax bounds how long "import --wait" waits for the next file.
	WaitMax time.Duration `env:"MUTATIONS_WAIT_MAX" default:"6h"`

	HTTPTimeout time.Duration `env:"MUTATIONS_HTTP_TIMEOUT" default:"5m"`
}

// StorageConfig holds the S3 settings of object store sources.
type StorageConfig struct {
	Region          string `env:"S3_REGION" default:"eu-west-1"`
	Endpoint        string `env:"S3_ENDPOINT"`
	Bucket          string `env:"S3_BUCKET"`
	AccessKeyID     string `env:"S3_ACCESS_KEY_ID" envAlt:"AWS_ACCESS_KEY_ID"`
	SecretAccessKey string `env:"S3_SECRET_ACCESS_KEY" envAlt:"AWS_SECRET_ACCESS_KEY"`
	ForcePathStyle  bool   `env:"S3_FORCE_PATH_STYLE" default:"false"`
}

// Enabled reports whether object store sources can be read.
func (c *StorageConfig) Enabled() bool {
	return c.Bucket != "" || c.Endpoint != ""
}

// ElasticConfig holds the Elasticsearch settings of search index sources.
type ElasticConfig struct {
	// URLs is a comma-separated list of cluster addresses.
	URLs     []string `env:"ELASTIC_URLS"`
	Username string   `env:"ELASTIC_USERNAME"`
	Password string   `env:"ELASTIC_PASSWORD"`
}

// MongoConfig holds the settings of the MongoDB contents sink. Without URI
// contents are written to files.
type MongoConfig struct {
	URI      string `env:"MONGO_URI"`
	Database string `env:"MONGO_DATABASE" default:"gobimport"`
}

// LoggingConfig holds logging settings.
type LoggingConfig struct {
	// Level is one of debug, info, warn, error.
	Level string `env:"LOG_LEVEL" default:"info"`

	// Format is text or json.
	Format string `env:"LOG_FORMAT" default:"text"`
}

// Addr returns the server listen address in host:port format.
func (c *ServerConfig) Addr() string {
	return net.JoinHostPort(c.Host, strconv.Itoa(c.Port))
}
