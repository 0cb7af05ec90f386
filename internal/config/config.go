package config

import (
	"errors"
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
)

// Config aggregates all runtime settings required by the application.
type Config struct {
	AppName       string
	Environment   string
	HTTP          HTTPConfig
	Database      DatabaseConfig
	Redis         RedisConfig
	NATS          NATSConfig
	JWT           JWTConfig
	Outbox        OutboxConfig
	Context       ContextConfig
	Timeouts      TimeoutsConfig
	Cache         CacheConfig
	Observability ObservabilityConfig
	Logger        LoggerConfig
	Migrations    MigrationsConfig
	Consumer      ConsumerConfig
	Notification  NotificationConfig
}

type HTTPConfig struct {
	Host          string
	Port          string
	ReadTimeout   time.Duration
	WriteTimeout  time.Duration
	IdleTimeout   time.Duration
	MaxConn       int
	EnablePprof   bool
	EnableMetrics bool
}

type DatabaseConfig struct {
	URL             string
	Host            string
	Port            string
	Name            string
	User            string
	Password        string
	MaxOpenConns    int
	MaxIdleConns    int
	MaxConnLifetime time.Duration
	SSLMode         string
}

type RedisConfig struct {
	URL      string
	Password string
	DB       int
}

// NATSConfig describes the event bus. Stream is the exchange name and
// Subjects are the routing keys it captures.
type NATSConfig struct {
	URL             string
	ClientName      string
	Stream          string
	Subjects        []string
	MaxAge          time.Duration
	DuplicateWindow time.Duration
	MaxReconnects   int
	ReconnectWait   time.Duration
	ConnectTimeout  time.Duration
}

type JWTConfig struct {
	Secret string
	Issuer string
	TTL    time.Duration
}

// OutboxConfig controls the on-disk queue of events that failed to publish.
type OutboxConfig struct {
	Path           string
	Interval       time.Duration
	BatchSize      int
	MaxRetry       int
	RetentionHours int
}

type ContextConfig struct {
	RequestTimeout  time.Duration
	ShutdownTimeout time.Duration
}

// TimeoutsConfig bounds each external call made while serving a request.
type TimeoutsConfig struct {
	Persistence time.Duration
	Cache       time.Duration
	Publish     time.Duration
}

type CacheConfig struct {
	TTL    time.Duration
	Prefix string
}

// ObservabilityConfig is read once at start-up and never changes afterwards.
type ObservabilityConfig struct {
	Enabled bool
}

type LoggerConfig struct {
	Level    string
	Encoding string
}

type MigrationsConfig struct {
	Enabled bool
	Path    string
}

type ConsumerConfig struct {
	Enabled        bool
	Queue          string
	Subjects       []string
	AckWait        time.Duration
	MaxDeliver     int
	MaxAckPending  int
	HandlerTimeout time.Duration
}

type NotificationConfig struct {
	Timeout time.Duration
	From    string
}

// Load reads configuration from environment variables (optionally .env)
// and applies sane defaults so the service can boot in any environment.
func Load() (*Config, error) {
	_ = godotenv.Load(".env")

	cfg := &Config{
		AppName:     getString("APP_NAME", "tasktracker"),
		Environment: getString("APP_ENV", "development"),
		HTTP: HTTPConfig{
			Host:          getString("SERVER_HOST", "0.0.0.0"),
			Port:          getString("SERVER_PORT", "8080"),
			ReadTimeout:   getDuration("SERVER_READ_TIMEOUT", 10*time.Second),
			WriteTimeout:  getDuration("SERVER_WRITE_TIMEOUT", 10*time.Second),
			IdleTimeout:   getDuration("SERVER_IDLE_TIMEOUT", 120*time.Second),
			MaxConn:       getInt("SERVER_MAX_CONN", 0),
			EnablePprof:   getBool("SERVER_ENABLE_PPROF", false),
			EnableMetrics: getBool("SERVER_ENABLE_METRICS", false),
		},
		Database: DatabaseConfig{
			URL:             os.Getenv("DATABASE_URL"),
			Host:            getString("DB_HOST", "localhost"),
			Port:            getString("DB_PORT", "5432"),
			Name:            getString("DB_NAME", "tasktracker"),
			User:            getString("DB_USER", "tasktracker"),
			Password:        os.Getenv("DB_PASSWORD"),
			MaxOpenConns:    getInt("DB_MAX_OPEN_CONNS", 25),
			MaxIdleConns:    getInt("DB_MAX_IDLE_CONNS", 10),
			MaxConnLifetime: getDuration("DB_CONN_LIFETIME", time.Hour),
			SSLMode:         getString("DB_SSLMODE", "disable"),
		},
		Redis: RedisConfig{
			URL:      getString("REDIS_URL", "redis://localhost:6379"),
			Password: os.Getenv("REDIS_PASSWORD"),
			DB:       getInt("REDIS_DB", 0),
		},
		NATS: NATSConfig{
			URL:             getString("NATS_URL", "nats://localhost:4222"),
			ClientName:      getString("NATS_CLIENT_NAME", "tasktracker"),
			Stream:          getString("NATS_STREAM", "TASKS"),
			Subjects:        getStrings("NATS_SUBJECTS", []string{"task.*"}),
			MaxAge:          getDuration("NATS_MAX_AGE", 7*24*time.Hour),
			DuplicateWindow: getDuration("NATS_DUPLICATE_WINDOW", 2*time.Minute),
			MaxReconnects:   getInt("NATS_MAX_RECONNECTS", 60),
			ReconnectWait:   getDuration("NATS_RECONNECT_WAIT", 2*time.Second),
			ConnectTimeout:  getDuration("NATS_CONNECT_TIMEOUT", 5*time.Second),
		},
		JWT: JWTConfig{
			Secret: os.Getenv("JWT_SECRET"),
			Issuer: getString("JWT_ISSUER", "tasktracker"),
			TTL:    getDuration("JWT_TTL", 24*time.Hour),
		},
		Outbox: OutboxConfig{
			Path:           getString("OUTBOX_PATH", "./data/outbox.db"),
			Interval:       getDuration("OUTBOX_INTERVAL", 30*time.Second),
			BatchSize:      getInt("OUTBOX_BATCH_SIZE", 50),
			MaxRetry:       getInt("OUTBOX_MAX_RETRY", 10),
			RetentionHours: getInt("OUTBOX_RETENTION_HOURS", 72),
		},
		Context: ContextConfig{
			RequestTimeout:  getDuration("REQUEST_TIMEOUT_SECONDS", 5*time.Second),
			ShutdownTimeout: getDuration("SHUTDOWN_TIMEOUT_SECONDS", 15*time.Second),
		},
		Timeouts: TimeoutsConfig{
			Persistence: getDuration("PERSISTENCE_TIMEOUT", 3*time.Second),
			Cache:       getDuration("CACHE_TIMEOUT", 500*time.Millisecond),
			Publish:     getDuration("PUBLISH_TIMEOUT", time.Second),
		},
		Cache: CacheConfig{
			TTL:    getDuration("CACHE_TTL", 300*time.Second),
			Prefix: getString("CACHE_PREFIX", ""),
		},
		Observability: ObservabilityConfig{
			Enabled: getBool("OBSERVABILITY_ENABLED", false),
		},
		Logger: LoggerConfig{
			Level:    getString("LOG_LEVEL", "info"),
			Encoding: getString("LOG_ENCODING", "json"),
		},
		Migrations: MigrationsConfig{
			Enabled: getBool("RUN_MIGRATIONS", true),
			Path:    getString("MIGRATIONS_PATH", "./assets/migrations"),
		},
		Consumer: ConsumerConfig{
			Enabled:        getBool("CONSUMER_ENABLED", true),
			Queue:          getString("CONSUMER_QUEUE", "task-events"),
			Subjects:       getStrings("CONSUMER_SUBJECTS", []string{"task.*"}),
			AckWait:        getDuration("CONSUMER_ACK_WAIT", 30*time.Second),
			MaxDeliver:     getInt("CONSUMER_MAX_DELIVER", 5),
			MaxAckPending:  getInt("CONSUMER_MAX_ACK_PENDING", 256),
			HandlerTimeout: getDuration("CONSUMER_HANDLER_TIMEOUT", 10*time.Second),
		},
		Notification: NotificationConfig{
			Timeout: getDuration("NOTIFICATION_TIMEOUT", 5*time.Second),
			From:    getString("NOTIFICATION_FROM", "no-reply@tasktracker.local"),
		},
	}

	if cfg.Database.URL == "" {
		cfg.Database.URL = cfg.Database.DSN()
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// MustLoad panics if configuration cannot be loaded.
func MustLoad() *Config {
	cfg, err := Load()
	if err != nil {
		panic(err)
	}
	return cfg
}

// IsDevelopment reports whether the service runs in a local environment.
func (c *Config) IsDevelopment() bool {
	return c.Environment == "development" || c.Environment == "test"
}

// Validate rejects settings the service cannot run with.
func (c *Config) Validate() error {
	var errs []error
	if c.JWT.Secret == "" && !c.IsDevelopment() {
		errs = append(errs, errors.New("JWT_SECRET is required outside development"))
	}
	for _, d := range []struct {
		key   string
		value time.Duration
	}{
		{"PERSISTENCE_TIMEOUT", c.Timeouts.Persistence},
		{"CACHE_TIMEOUT", c.Timeouts.Cache},
		{"PUBLISH_TIMEOUT", c.Timeouts.Publish},
		{"CACHE_TTL", c.Cache.TTL},
		{"NOTIFICATION_TIMEOUT", c.Notification.Timeout},
		{"CONSUMER_HANDLER_TIMEOUT", c.Consumer.HandlerTimeout},
	} {
		if d.value <= 0 {
			errs = append(errs, fmt.Errorf("%s must be positive", d.key))
		}
	}
	if c.NATS.Stream == "" {
		errs = append(errs, errors.New("NATS_STREAM is required"))
	}
	if len(c.NATS.Subjects) == 0 {
		errs = append(errs, errors.New("NATS_SUBJECTS is required"))
	}
	return errors.Join(errs...)
}

func getString(key, fallback string) string {
	if val := os.Getenv(key); val != "" {
		return val
	}
	return fallback
}

// getStrings splits a comma separated value, dropping empty entries.
func getStrings(key string, fallback []string) []string {
	val := os.Getenv(key)
	if val == "" {
		return fallback
	}
	var out []string
	for _, part := range strings.Split(val, ",") {
		if part = strings.TrimSpace(part); part != "" {
			out = append(out, part)
		}
	}
	if len(out) == 0 {
		return fallback
	}
	return out
}

func getInt(key string, fallback int) int {
	if val := os.Getenv(key); val != "" {
		if parsed, err := strconv.Atoi(val); err == nil {
			return parsed
		}
	}
	return fallback
}

func getBool(key string, fallback bool) bool {
	if val := os.Getenv(key); val != "" {
		if parsed, err := strconv.ParseBool(val); err == nil {
			return parsed
		}
	}
	return fallback
}

func getDuration(key string, fallback time.Duration) time.Duration {
	if val := os.Getenv(key); val != "" {
		if parsed, err := time.ParseDuration(val); err == nil {
			return parsed
		}
		if seconds, err := strconv.Atoi(val); err == nil {
			return time.Duration(seconds) * time.Second
		}
	}
	return fallback
}

// Address returns the HTTP listen address for the fasthttp server.
func (c *Config) Address() string {
	return fmt.Sprintf("%s:%s", c.HTTP.Host, c.HTTP.Port)
}

// DSN returns URL when set, otherwise a connection string built from the parts.
func (d DatabaseConfig) DSN() string {
	if d.URL != "" {
		return d.URL
	}
	return fmt.Sprintf(
		"postgres://%s:%s@%s:%s/%s?sslmode=%s",
		d.User,
		d.Password,
		d.Host,
		d.Port,
		d.Name,
		d.SSLMode,
	)
}
