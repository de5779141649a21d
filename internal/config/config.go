package config

import (
	"fmt"
	"time"

	"github.com/spf13/viper"
	"github.com/wb-go/wbf/zlog"
)

// Config holds the main configuration for the platform.
type Config struct {
	Server   Server   `mapstructure:"server"`
	Database Database `mapstructure:"database"`
	Storage  Storage  `mapstructure:"storage"`
	Kafka    Kafka    `mapstructure:"kafka"`
	Worker   Worker   `mapstructure:"worker"`
	Pipeline Pipeline `mapstructure:"pipeline"`
	Archive  Archive  `mapstructure:"archive"`
	Retry    Retry    `mapstructure:"retry"`
}

// Server holds HTTP server-related configuration.
type Server struct {
	HTTPPort    string `mapstructure:"http_port"`    // coordinator API port
	MetricsPort string `mapstructure:"metrics_port"` // prometheus /metrics port
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

// Storage holds configuration for the staging directory and the optional
// S3-compatible archive backend.
type Storage struct {
	BaseDir string `mapstructure:"base_dir"` // staging dir shared with the worker

	S3Enabled  bool   `mapstructure:"s3_enabled"`
	Endpoint   string `mapstructure:"endpoint"`
	AccessKey  string `mapstructure:"access_key"`
	SecretKey  string `mapstructure:"secret_key"`
	BucketName string `mapstructure:"bucket_name"`
	UseSSL     bool   `mapstructure:"use_ssl"`
}

// Kafka holds configuration for the optional job event topics.
type Kafka struct {
	Enabled     bool     `mapstructure:"enabled"`
	GroupID     string   `mapstructure:"group_id"`     // consumer group ID
	JobsTopic   string   `mapstructure:"jobs_topic"`   // externally produced job-created events
	StatusTopic string   `mapstructure:"status_topic"` // terminal job status events
	Brokers     []string `mapstructure:"brokers"`      // list of broker addresses
}

// Worker holds the RPC endpoint address and dispatch policy, read once per
// dispatcher startup.
type Worker struct {
	Endpoint       string        `mapstructure:"endpoint"`         // worker base URL
	ListenAddr     string        `mapstructure:"listen_addr"`      // worker-side RPC listen address
	CallTimeout    time.Duration `mapstructure:"call_timeout"`     // per-call RPC timeout
	RetryCount     int           `mapstructure:"retry_count"`      // max delivery attempts
	RetryBaseDelay time.Duration `mapstructure:"retry_base_delay"` // backoff base delay
}

// Pipeline holds image pipeline configuration.
type Pipeline struct {
	MaxParallelism int    `mapstructure:"max_parallelism"` // batch bound, 0 = NumCPU
	FontPath       string `mapstructure:"font_path"`       // TTF face for watermarks
}

// Archive holds janitor configuration.
type Archive struct {
	Enabled  bool          `mapstructure:"enabled"`
	Schedule string        `mapstructure:"schedule"` // cron expression
	MaxAge   time.Duration `mapstructure:"max_age"`  // minimum age before archiving
}

// Retry defines the retry policy for Kafka and other external calls.
type Retry struct {
	Attempts int           `mapstructure:"attempts"` // number of retry attempts
	Delay    time.Duration `mapstructure:"delay"`    // initial delay between retries
	Backoff  float64       `mapstructure:"backoff"`  // backoff multiplier for delays
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
func mustBindEnv() {
	bindings := map[string]string{
		"database.master.host": "DB_HOST",
		"database.master.port": "DB_PORT",
		"database.master.user": "DB_USER",
		"database.master.pass": "DB_PASSWORD",
		"database.master.name": "DB_NAME",
		"storage.access_key":   "S3_ACCESS_KEY",
		"storage.secret_key":   "S3_SECRET_KEY",
	}

	for key, env := range bindings {
		if err := viper.BindEnv(key, env); err != nil {
			zlog.Logger.Panic().Err(err).Msgf("failed to bind env %s", env)
		}
	}
}

func setDefaults() {
	viper.SetDefault("server.http_port", ":8080")
	viper.SetDefault("server.metrics_port", ":9090")
	viper.SetDefault("worker.listen_addr", ":8090")
	viper.SetDefault("worker.call_timeout", "30s")
	viper.SetDefault("worker.retry_count", 3)
	viper.SetDefault("worker.retry_base_delay", "200ms")
	viper.SetDefault("archive.schedule", "0 * * * *")
	viper.SetDefault("archive.max_age", "168h")
	viper.SetDefault("retry.attempts", 3)
	viper.SetDefault("retry.delay", "500ms")
	viper.SetDefault("retry.backoff", 2.0)
}

// MustLoad loads the configuration from the ./config directory.
// It panics if the configuration file cannot be loaded or unmarshaled.
func MustLoad() *Config {
	viper.SetConfigName("config")
	viper.SetConfigType("yaml")
	viper.AddConfigPath("./config")
	viper.AddConfigPath(".")
	viper.AutomaticEnv()

	setDefaults()

	if err := viper.ReadInConfig(); err != nil {
		zlog.Logger.Panic().Err(err).Msg("failed to read config")
	}

	mustBindEnv()

	var cfg Config
	if err := viper.Unmarshal(&cfg); err != nil {
		zlog.Logger.Panic().Err(err).Msgf("failed to unmarshal config: %v", err)
	}

	return &cfg
}
