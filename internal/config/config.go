package config

import (
	"errors"
	"fmt"
	"log"
	"strings"
	"time"

	"github.com/caarlos0/env/v11"
	"github.com/joho/godotenv"
)

// Provider is the read-only view of the configuration handed to services.
type Provider interface {
	GetHTTPAddr() string
	GetLogFormat() string
	GetLogLevel() string

	GetStoreDriver() string
	GetSQLitePath() string
	GetJSONLPath() string
	GetSurrealURL() string
	GetDBNs() string
	GetDBDb() string
	GetDBUser() string
	GetDBPass() string
	GetDBQueryTimeout() time.Duration
	GetDBExecuteTimeout() time.Duration

	GetEphemeralDriver() string
	GetRedisAddr() string
	GetRedisPassword() string
	GetRedisDB() int
	GetRedisPrefix() string

	GetAuthMode() string
	GetJWTSecret() string
	GetSessionSecret() string
	GetSessionName() string
	GetDirectRoomPrefix() string

	GetHeartbeatInterval() time.Duration
	GetSendBuffer() int
	GetInboundBuffer() int
	GetEventsPerSecond() float64
	GetEventBurst() int
	GetAPIRatePerMinute() int

	GetTracingEnabled() bool
	GetTracingServiceName() string
	GetTracingZipkinURL() string
}

// Store drivers.
const (
	StoreMemory  = "memory"
	StoreSQLite  = "sqlite"
	StoreSurreal = "surreal"
	StoreJSONL   = "jsonl"
)

// Ephemeral state drivers.
const (
	EphemeralMemory = "memory"
	EphemeralRedis  = "redis"
)

// Identity binding modes.
const (
	AuthJWT     = "jwt"
	AuthSession = "session"
	AuthHeader  = "header"
)

// Config holds all configuration for the application.
type Config struct {
	HTTPAddr  string `env:"HTTP_ADDR" envDefault:":8080"`
	LogFormat string `env:"LOG_FORMAT" envDefault:"text"`
	LogLevel  string `env:"LOG_LEVEL" envDefault:"info"`

	StoreDriver      string        `env:"STORE_DRIVER" envDefault:"sqlite"`
	SQLitePath       string        `env:"SQLITE_PATH" envDefault:"hackchat.db"`
	JSONLPath        string        `env:"JSONL_PATH" envDefault:"messages.jsonl"`
	SurrealURL       string        `env:"SURREAL_URL"`
	DBNs             string        `env:"SURREAL_NS" envDefault:"hackchat"`
	DBDb             string        `env:"SURREAL_DB" envDefault:"chat"`
	DBUser           string        `env:"SURREAL_USER"`
	DBPass           string        `env:"SURREAL_PASS"`
	DBQueryTimeout   time.Duration `env:"DB_QUERY_TIMEOUT" envDefault:"5s"`
	DBExecuteTimeout time.Duration `env:"DB_EXECUTE_TIMEOUT" envDefault:"10s"`

	EphemeralDriver string `env:"EPHEMERAL_DRIVER" envDefault:"memory"`
	RedisAddr       string `env:"REDIS_ADDR" envDefault:"localhost:6379"`
	RedisPassword   string `env:"REDIS_PASSWORD"`
	RedisDB         int    `env:"REDIS_DB" envDefault:"0"`
	RedisPrefix     string `env:"REDIS_PREFIX" envDefault:"hackchat"`

	AuthMode         string `env:"AUTH_MODE" envDefault:"jwt"`
	JWTSecret        string `env:"JWT_SECRET"`
	SessionSecret    string `env:"SESSION_SECRET"`
	SessionName      string `env:"SESSION_NAME" envDefault:"session"`
	DirectRoomPrefix string `env:"DIRECT_ROOM_PREFIX" envDefault:"dm:"`

	HeartbeatInterval time.Duration `env:"HEARTBEAT_INTERVAL" envDefault:"25s"`
	SendBuffer        int           `env:"WS_SEND_BUFFER" envDefault:"256"`
	InboundBuffer     int           `env:"WS_INBOUND_BUFFER" envDefault:"64"`
	EventsPerSecond   float64       `env:"WS_EVENTS_PER_SECOND" envDefault:"20"`
	EventBurst        int           `env:"WS_EVENT_BURST" envDefault:"40"`
	APIRatePerMinute  int           `env:"API_RATE_PER_MINUTE" envDefault:"600"`

	TracingEnabled     bool   `env:"PUBSUB_TRACING_ENABLED" envDefault:"false"`
	TracingServiceName string `env:"PUBSUB_TRACING_SERVICE_NAME" envDefault:"hackchat"`
	TracingZipkinURL   string `env:"PUBSUB_TRACING_ZIPKIN_URL" envDefault:"http://localhost:9411/api/v2/spans"`
}

// New loads configuration from the environment, reading a .env file first
// when one is present.
func New() (*Config, error) {
	if err := godotenv.Load(); err != nil {
		log.Println("No .env file found, relying on environment variables")
	}
	return Parse()
}

// Parse reads configuration from environment variables without touching .env files.
func Parse() (*Config, error) {
	cfg := &Config{}
	if err := env.Parse(cfg); err != nil {
		return nil, fmt.Errorf("parse env: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// Validate rejects configurations that cannot start.
func (c *Config) Validate() error {
	var errs []error

	switch c.StoreDriver {
	case StoreMemory, StoreJSONL, StoreSQLite:
	case StoreSurreal:
		if strings.TrimSpace(c.SurrealURL) == "" {
			errs = append(errs, errors.New("SURREAL_URL is required when STORE_DRIVER=surreal"))
		}
	default:
		errs = append(errs, fmt.Errorf("unknown STORE_DRIVER %q", c.StoreDriver))
	}

	switch c.EphemeralDriver {
	case EphemeralMemory, EphemeralRedis:
	default:
		errs = append(errs, fmt.Errorf("unknown EPHEMERAL_DRIVER %q", c.EphemeralDriver))
	}

	switch c.AuthMode {
	case AuthJWT:
		if c.JWTSecret == "" {
			errs = append(errs, errors.New("JWT_SECRET is required when AUTH_MODE=jwt"))
		}
	case AuthSession:
		if c.SessionSecret == "" {
			errs = append(errs, errors.New("SESSION_SECRET is required when AUTH_MODE=session"))
		}
	case AuthHeader:
	default:
		errs = append(errs, fmt.Errorf("unknown AUTH_MODE %q", c.AuthMode))
	}

	if c.HeartbeatInterval <= 0 {
		errs = append(errs, errors.New("HEARTBEAT_INTERVAL must be a positive duration"))
	}
	if c.DBQueryTimeout <= 0 || c.DBExecuteTimeout <= 0 {
		errs = append(errs, errors.New("DB_QUERY_TIMEOUT and DB_EXECUTE_TIMEOUT must be positive durations"))
	}
	if c.SendBuffer <= 0 || c.InboundBuffer <= 0 {
		errs = append(errs, errors.New("WS_SEND_BUFFER and WS_INBOUND_BUFFER must be positive"))
	}

	return errors.Join(errs...)
}

func (c *Config) GetHTTPAddr() string  { return c.HTTPAddr }
func (c *Config) GetLogFormat() string { return c.LogFormat }
func (c *Config) GetLogLevel() string  { return c.LogLevel }

func (c *Config) GetStoreDriver() string             { return c.StoreDriver }
func (c *Config) GetSQLitePath() string              { return c.SQLitePath }
func (c *Config) GetJSONLPath() string               { return c.JSONLPath }
func (c *Config) GetSurrealURL() string              { return c.SurrealURL }
func (c *Config) GetDBNs() string                    { return c.DBNs }
func (c *Config) GetDBDb() string                    { return c.DBDb }
func (c *Config) GetDBUser() string                  { return c.DBUser }
func (c *Config) GetDBPass() string                  { return c.DBPass }
func (c *Config) GetDBQueryTimeout() time.Duration   { return c.DBQueryTimeout }
func (c *Config) GetDBExecuteTimeout() time.Duration { return c.DBExecuteTimeout }

func (c *Config) GetEphemeralDriver() string { return c.EphemeralDriver }
func (c *Config) GetRedisAddr() string       { return c.RedisAddr }
func (c *Config) GetRedisPassword() string   { return c.RedisPassword }
func (c *Config) GetRedisDB() int            { return c.RedisDB }
func (c *Config) GetRedisPrefix() string     { return c.RedisPrefix }

func (c *Config) GetAuthMode() string         { return c.AuthMode }
func (c *Config) GetJWTSecret() string        { return c.JWTSecret }
func (c *Config) GetSessionSecret() string    { return c.SessionSecret }
func (c *Config) GetSessionName() string      { return c.SessionName }
func (c *Config) GetDirectRoomPrefix() string { return c.DirectRoomPrefix }

// GetHeartbeatInterval returns how often the server pings each connection.
// A connection is reclaimed after four missed intervals.
func (c *Config) GetHeartbeatInterval() time.Duration { return c.HeartbeatInterval }
func (c *Config) GetSendBuffer() int                  { return c.SendBuffer }
func (c *Config) GetInboundBuffer() int               { return c.InboundBuffer }
func (c *Config) GetEventsPerSecond() float64         { return c.EventsPerSecond }
func (c *Config) GetEventBurst() int                  { return c.EventBurst }
func (c *Config) GetAPIRatePerMinute() int            { return c.APIRatePerMinute }

func (c *Config) GetTracingEnabled() bool       { return c.TracingEnabled }
func (c *Config) GetTracingServiceName() string { return c.TracingServiceName }
func (c *Config) GetTracingZipkinURL() string   { return c.TracingZipkinURL }
