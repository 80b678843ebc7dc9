package config

import (
	"fmt"
	"os"
	"time"

	"github.com/caarlos0/env/v11"
	"github.com/joho/godotenv"

	pkgenv "commhub-backend/pkg/env"
)

// Config holds the configuration shared by every service binary.
// Sections a binary does not use are parsed anyway and simply ignored.
type Config struct {
	Server    ServerConfig
	Database  DatabaseConfig
	Redis     RedisConfig
	Cassandra CassandraConfig
	JWT       JWTConfig
	Log       LogConfig
	SMS       SMSConfig
	Call      CallConfig
	Softphone SoftphoneConfig
}

// ServerConfig holds server configuration
type ServerConfig struct {
	Port           int      `env:"PORT" envDefault:"8080"`
	Environment    string   `env:"ENV" envDefault:"development"` // development, staging, production
	ServiceName    string   `env:"SERVICE_NAME" envDefault:"commhub"`
	AllowedOrigins []string `env:"CORS_ALLOWED_ORIGINS" envSeparator:"," envDefault:"http://localhost:3000,http://localhost:8080"`
}

// DatabaseConfig holds CockroachDB configuration
type DatabaseConfig struct {
	Host     string `env:"DB_HOST" envDefault:"localhost"`
	Port     int    `env:"DB_PORT" envDefault:"26257"`
	User     string `env:"DB_USER" envDefault:"root"`
	Password string `env:"DB_PASSWORD"`
	Database string `env:"DB_NAME" envDefault:"commhub"`
	SSLMode  string `env:"DB_SSL_MODE" envDefault:"disable"`
	MaxConns int32  `env:"DB_MAX_CONNS" envDefault:"25"`
	MinConns int32  `env:"DB_MIN_CONNS" envDefault:"5"`
}

// RedisConfig holds Redis configuration
type RedisConfig struct {
	Host     string        `env:"REDIS_HOST" envDefault:"localhost"`
	Port     int           `env:"REDIS_PORT" envDefault:"6379"`
	Password string        `env:"REDIS_PASSWORD"`
	DB       int           `env:"REDIS_DB" envDefault:"0"`
	PoolSize int           `env:"REDIS_POOL_SIZE" envDefault:"10"`
	Timeout  time.Duration `env:"REDIS_TIMEOUT" envDefault:"5s"`
}

// CassandraConfig holds Cassandra configuration
type CassandraConfig struct {
	Hosts    []string      `env:"CASSANDRA_HOSTS" envSeparator:"," envDefault:"localhost"`
	Keyspace string        `env:"CASSANDRA_KEYSPACE" envDefault:"commhub"`
	Username string        `env:"CASSANDRA_USER"`
	Password string        `env:"CASSANDRA_PASSWORD"`
	Timeout  time.Duration `env:"CASSANDRA_TIMEOUT" envDefault:"10s"`
}

// JWTConfig holds JWT configuration
type JWTConfig struct {
	Secret             string        `env:"JWT_SECRET"`
	AccessTokenExpiry  time.Duration `env:"JWT_ACCESS_EXPIRY" envDefault:"15m"`
	RefreshTokenExpiry time.Duration `env:"JWT_REFRESH_EXPIRY" envDefault:"720h"`
}

// LogConfig holds logging configuration
type LogConfig struct {
	Level    string `env:"LOG_LEVEL" envDefault:"info"`    // debug, info, warn, error
	Format   string `env:"LOG_FORMAT" envDefault:"json"`   // json, text
	Output   string `env:"LOG_OUTPUT" envDefault:"stdout"` // stdout, file
	FilePath string `env:"LOG_FILE_PATH" envDefault:"/logs/app.log"`
}

// SMSConfig holds the Semaphore gateway settings
type SMSConfig struct {
	APIKey     string        `env:"SEMAPHORE_API_KEY"`
	SenderName string        `env:"SEMAPHORE_SENDER_NAME"`
	Endpoint   string        `env:"SEMAPHORE_ENDPOINT" envDefault:"https://api.semaphore.co/api/v4/messages"`
	Timeout    time.Duration `env:"SEMAPHORE_TIMEOUT" envDefault:"10s"`
}

// CallConfig holds call session settings
type CallConfig struct {
	ICEServers       []string      `env:"CALL_ICE_SERVERS" envSeparator:"," envDefault:"stun:stun.l.google.com:19302,stun:stun1.l.google.com:19302"`
	CallTimeout      time.Duration `env:"CALL_TIMEOUT" envDefault:"45s"`
	TickInterval     time.Duration `env:"CALL_TICK_INTERVAL" envDefault:"1s"`
	IncludeLoopback  bool          `env:"CALL_INCLUDE_LOOPBACK" envDefault:"false"`
	MediaSource      string        `env:"CALL_MEDIA_SOURCE" envDefault:"synthetic"` // synthetic, device
	SignalingBackend string        `env:"CALL_SIGNALING" envDefault:"ws"`           // ws, redis
	SignalingURL     string        `env:"CALL_SIGNALING_URL" envDefault:"ws://localhost:8083/v1/signaling/ws"`
	MaxConnections   int           `env:"WS_MAX_SIGNALING_CONNECTIONS" envDefault:"1000"`
}

// SoftphoneConfig holds the credentials and endpoints of the calling agent
type SoftphoneConfig struct {
	APIURL      string `env:"SOFTPHONE_API_URL" envDefault:"http://localhost:8080"`
	Email       string `env:"SOFTPHONE_EMAIL"`
	Password    string `env:"SOFTPHONE_PASSWORD"`
	ControlAddr string `env:"SOFTPHONE_CONTROL_ADDR" envDefault:"127.0.0.1:8090"`
}

// LoadEnv loads the content of ENV_FILE (or .env) into the process environment.
// A missing file is not an error.
func LoadEnv() error {
	envfile := os.Getenv("ENV_FILE")
	if envfile == "" {
		if _, err := os.Stat(".env"); err != nil {
			return nil
		}
		return godotenv.Load()
	}
	return godotenv.Load(envfile)
}

// New parses environment variables into any config struct type
func New[T any]() (*T, error) {
	cfg := new(T)
	if err := env.Parse(cfg); err != nil {
		return nil, err
	}
	return cfg, nil
}

// Load loads configuration from environment variables
func Load() (*Config, error) {
	cfg, err := New[Config]()
	if err != nil {
		return nil, fmt.Errorf("failed to parse configuration: %w", err)
	}

	// Docker secrets override plain variables
	cfg.JWT.Secret = pkgenv.GetStringFromFile("JWT_SECRET", cfg.JWT.Secret)
	cfg.Database.Password = pkgenv.GetStringFromFile("DB_PASSWORD", cfg.Database.Password)
	cfg.Redis.Password = pkgenv.GetStringFromFile("REDIS_PASSWORD", cfg.Redis.Password)
	cfg.Cassandra.Password = pkgenv.GetStringFromFile("CASSANDRA_PASSWORD", cfg.Cassandra.Password)
	cfg.SMS.APIKey = pkgenv.GetStringFromFile("SEMAPHORE_API_KEY", cfg.SMS.APIKey)
	cfg.Softphone.Password = pkgenv.GetStringFromFile("SOFTPHONE_PASSWORD", cfg.Softphone.Password)

	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	return cfg, nil
}

// IsProduction reports whether the service runs in production mode
func (c *Config) IsProduction() bool {
	return c.Server.Environment == "production"
}

// Validate validates the configuration
func (c *Config) Validate() error {
	if c.IsProduction() {
		if c.JWT.Secret == "" {
			return fmt.Errorf("JWT_SECRET must be set in production")
		}
		if len(c.JWT.Secret) < 32 {
			return fmt.Errorf("JWT_SECRET must be at least 32 characters in production")
		}
	}

	if c.Call.CallTimeout < 0 {
		return fmt.Errorf("CALL_TIMEOUT must not be negative")
	}
	if c.Call.TickInterval <= 0 {
		return fmt.Errorf("CALL_TICK_INTERVAL must be positive")
	}
	switch c.Call.SignalingBackend {
	case "ws", "redis":
	default:
		return fmt.Errorf("CALL_SIGNALING must be ws or redis, got %q", c.Call.SignalingBackend)
	}
	switch c.Call.MediaSource {
	case "synthetic", "device":
	default:
		return fmt.Errorf("CALL_MEDIA_SOURCE must be synthetic or device, got %q", c.Call.MediaSource)
	}

	return nil
}
