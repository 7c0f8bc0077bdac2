package config

import (
	"fmt"
	"time"

	"github.com/joho/godotenv"
	"github.com/spf13/viper"
	"github.com/wb-go/wbf/zlog"
)

// Config holds the main configuration for the application.
type Config struct {
	Server   Server   `mapstructure:"server"`
	Database Database `mapstructure:"database"`
	Storage  Storage  `mapstructure:"storage"`
	Domains  []Domain `mapstructure:"domains"`
	Kafka    Kafka    `mapstructure:"kafka"`
	Retry    Retry    `mapstructure:"retry"`
}

// Server holds HTTP server-related configuration.
type Server struct {
	HTTPPort string `mapstructure:"http_port"` // HTTP address to listen on

	ReadTimeout       time.Duration `mapstructure:"read_timeout"`
	ReadHeaderTimeout time.Duration `mapstructure:"read_header_timeout"`
	WriteTimeout      time.Duration `mapstructure:"write_timeout"` // bounds raw image streaming too
	IdleTimeout       time.Duration `mapstructure:"idle_timeout"`
	ShutdownTimeout   time.Duration `mapstructure:"shutdown_timeout"`
}

// Database holds database master and slave configuration.
type Database struct {
	Master DatabaseNode   `mapstructure:"master"`
	Slaves []DatabaseNode `mapstructure:"slaves"`

	MaxOpenConns    int           `mapstructure:"max_open_conns"`
	MaxIdleConns    int           `mapstructure:"max_idle_conns"`
	ConnMaxLifetime time.Duration `mapstructure:"conn_max_lifetime"`
}

// DatabaseNode holds connection parameters for a single database node.
type DatabaseNode struct {
	Host    string `mapstructure:"host"`
	Port    string `mapstructure:"port"`
	User    string `mapstructure:"user"`
	Pass    string `mapstructure:"pass"`
	Name    string `mapstructure:"name"`
	SSLMode string `mapstructure:"ssl_mode"`
}

// Storage holds configuration for the object store client pair.
type Storage struct {
	Endpoint         string        `mapstructure:"endpoint"`          // internal endpoint, server network only
	ExternalEndpoint string        `mapstructure:"external_endpoint"` // embedded in presigned URLs
	ExternalUseSSL   bool          `mapstructure:"external_use_ssl"`
	Region           string        `mapstructure:"region"`
	AccessKey        string        `mapstructure:"access_key"`
	SecretKey        string        `mapstructure:"secret_key"`
	UseSSL           bool          `mapstructure:"use_ssl"`
	BucketPrefix     string        `mapstructure:"bucket_prefix"` // prepended to every domain's container
	PresignTTL       time.Duration `mapstructure:"presign_ttl"`
}

// Domain describes one image domain and its transformation policy.
type Domain struct {
	Name    string `mapstructure:"name"`
	Format  string `mapstructure:"format"` // png, jpeg, gif, bmp, webp; empty means jpeg
	Width   int    `mapstructure:"width"`  // zero width and height: no resize
	Height  int    `mapstructure:"height"`
	Filter  string `mapstructure:"filter"`  // lanczos (default), catmullrom, linear, gaussian, nearest
	Tracked bool   `mapstructure:"tracked"` // reference images by metadata record id
}

// Kafka holds configuration for the orphan event topic.
type Kafka struct {
	Enabled bool     `mapstructure:"enabled"`
	GroupID string   `mapstructure:"group_id"` // Consumer group ID
	Topic   string   `mapstructure:"topic"`    // Kafka topic name
	Brokers []string `mapstructure:"brokers"`  // List of Kafka broker addresses
}

// Retry defines retry policy configuration.
type Retry struct {
	Attempts int           `mapstructure:"attempts"` // Number of retry attempts
	Delay    time.Duration `mapstructure:"delay"`    // Initial delay between retries
	Backoff  float64       `mapstructure:"backoff"`  // Backoff multiplier for delays
}

// DefaultDomains are the domains served when the configuration lists none.
func DefaultDomains() []Domain {
	return []Domain{
		{Name: "avatar", Format: "jpeg", Width: 128, Height: 128},
		{Name: "person-photo", Format: "jpeg", Width: 768, Height: 1024},
		{Name: "test", Format: "jpeg", Width: 200, Height: 128},
	}
}

// DSN returns the PostgreSQL DSN string for connecting to this database node.
func (n DatabaseNode) DSN() string {
	return fmt.Sprintf(
		"postgres://%s:%s@%s:%s/%s?sslmode=%s",
		n.User, n.Pass, n.Host, n.Port, n.Name, n.SSLMode,
	)
}

// mustBindEnv binds critical environment variables to Viper keys.
//
// It panics if any environment variable cannot be bound.
func mustBindEnv(v *viper.Viper) {
	bindings := map[string]string{
		"database.master.host":      "DB_HOST",
		"database.master.port":      "DB_PORT",
		"database.master.user":      "DB_USER",
		"database.master.pass":      "DB_PASSWORD",
		"database.master.name":      "DB_NAME",
		"storage.endpoint":          "MINIO_ENDPOINT",
		"storage.external_endpoint": "MINIO_EXTERNAL_ENDPOINT",
		"storage.region":            "MINIO_REGION",
		"storage.access_key":        "MINIO_ACCESS_KEY",
		"storage.secret_key":        "MINIO_SECRET_KEY",
		"storage.bucket_prefix":     "MINIO_BUCKET_PREFIX",
	}

	for key, env := range bindings {
		if err := v.BindEnv(key, env); err != nil {
			zlog.Logger.Panic().Err(err).Msgf("failed to bind env %s", env)
		}
	}
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("server.http_port", ":8080")
	v.SetDefault("server.read_timeout", 15*time.Second)
	v.SetDefault("server.read_header_timeout", 5*time.Second)
	v.SetDefault("server.write_timeout", 30*time.Second)
	v.SetDefault("server.idle_timeout", 120*time.Second)
	v.SetDefault("server.shutdown_timeout", 5*time.Second)
	v.SetDefault("storage.region", "us-east-1")
	v.SetDefault("storage.presign_ttl", time.Hour)
	v.SetDefault("retry.attempts", 3)
	v.SetDefault("retry.delay", 100*time.Millisecond)
	v.SetDefault("retry.backoff", 2.0)
}

// Load reads the YAML file at path, a .env file if present, and the
// environment.
func Load(path string) (*Config, error) {
	// A missing .env is the normal case outside local development.
	_ = godotenv.Load()

	v := viper.New()
	v.SetConfigFile(path)
	v.SetConfigType("yaml")
	v.AutomaticEnv()
	setDefaults(v)

	if err := v.ReadInConfig(); err != nil {
		return nil, fmt.Errorf("failed to read config: %w", err)
	}

	mustBindEnv(v)

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("failed to unmarshal config: %w", err)
	}

	if len(cfg.Domains) == 0 {
		cfg.Domains = DefaultDomains()
	}

	return &cfg, nil
}

// MustLoad loads the configuration from the specified file path.
// It panics if the configuration file cannot be loaded or unmarshaled.
func MustLoad(path string) *Config {
	cfg, err := Load(path)
	if err != nil {
		zlog.Logger.Panic().Err(err).Msg("failed to load config")
	}

	return cfg
}
