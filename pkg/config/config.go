package config

import (
	"errors"
	"fmt"
	"io/fs"
	"net/url"
	"os"
	"strings"

	"github.com/joho/godotenv"
	"github.com/kelseyhightower/envconfig"
	"gopkg.in/yaml.v3"
)

// Config represents the application configuration
type Config struct {
	Server    ServerConfig    `yaml:"server" split_words:"true"`
	Storage   StorageConfig   `yaml:"storage" split_words:"true"`
	Logging   LoggingConfig   `yaml:"logging" split_words:"true"`
	JWT       JWTConfig       `yaml:"jwt" split_words:"true"`
	Cookie    CookieConfig    `yaml:"cookie" split_words:"true"`
	Realtime  RealtimeConfig  `yaml:"realtime" split_words:"true"`
	Delivery  DeliveryConfig  `yaml:"delivery" split_words:"true"`
	RateLimit RateLimitConfig `yaml:"rate_limit" split_words:"true"`
}

// ServerConfig contains HTTP server configuration
type ServerConfig struct {
	Host string `yaml:"host" split_words:"true"`
	// Port falls back to the unprefixed PORT variable set by most hosting platforms.
	Port int `yaml:"port" envconfig:"PORT"`
	// AllowedOrigins is the exact-match origin allow-list shared by HTTP and realtime traffic.
	AllowedOrigins []string   `yaml:"allowed_origins" envconfig:"ALLOWED_ORIGINS"`
	CORS           CORSConfig `yaml:"cors" split_words:"true"`
}

// CORSConfig holds the non-origin parts of the CORS policy
type CORSConfig struct {
	AllowedMethods []string `yaml:"allowed_methods" split_words:"true"`
	AllowedHeaders []string `yaml:"allowed_headers" split_words:"true"`
	ExposedHeaders []string `yaml:"exposed_headers" split_words:"true"`
	MaxAge         int      `yaml:"max_age" split_words:"true"` // seconds
}

// StorageConfig contains storage configuration
type StorageConfig struct {
	Type    string        `yaml:"type" split_words:"true"` // memory, mongodb
	MongoDB MongoDBConfig `yaml:"mongodb" split_words:"true"`
}

// MongoDBConfig contains MongoDB-specific configuration
type MongoDBConfig struct {
	URI      string `yaml:"uri" split_words:"true"`
	Database string `yaml:"database" split_words:"true"`
	Timeout  int    `yaml:"timeout" split_words:"true"` // seconds
}

// LoggingConfig contains logging configuration
type LoggingConfig struct {
	Level  string `yaml:"level" split_words:"true"`   // debug, info, warn, error
	Format string `yaml:"format" split_words:"true"` // json, text
}

// JWTConfig contains JWT configuration
type JWTConfig struct {
	Secret      string `yaml:"secret" split_words:"true"`
	ExpiryHours int    `yaml:"expiry_hours" split_words:"true"`
	Issuer      string `yaml:"issuer" split_words:"true"`
	// RevocationCleanupSeconds is how often revoked tokens past their expiry are purged
	RevocationCleanupSeconds int `yaml:"revocation_cleanup_seconds" split_words:"true"`
}

// CookieConfig controls the session cookie carrying the JWT
type CookieConfig struct {
	Name       string `yaml:"name" split_words:"true"`
	Secure     bool   `yaml:"secure" split_words:"true"`
	SameSite   string `yaml:"same_site" split_words:"true"` // lax, strict, none
	MaxAgeDays int    `yaml:"max_age_days" split_words:"true"`
}

// RealtimeConfig contains realtime endpoint configuration
type RealtimeConfig struct {
	Path string `yaml:"path" split_words:"true"`
	// Presence is the presence store type: "memory" or "redis"
	Presence            string      `yaml:"presence" split_words:"true"`
	Redis               RedisConfig `yaml:"redis" split_words:"true"`
	SendBuffer          int         `yaml:"send_buffer" split_words:"true"`
	WriteTimeoutSeconds int         `yaml:"write_timeout_seconds" split_words:"true"`
	PingIntervalSeconds int         `yaml:"ping_interval_seconds" split_words:"true"`
}

// RedisConfig contains Redis connection configuration
type RedisConfig struct {
	Address    string `yaml:"address" split_words:"true"`
	Password   string `yaml:"password" split_words:"true"`
	DB         int    `yaml:"db" split_words:"true"`
	KeyPrefix  string `yaml:"key_prefix" split_words:"true"`
	TTLMinutes int    `yaml:"ttl_minutes" split_words:"true"`
}

// DeliveryConfig tunes delivery assignment
type DeliveryConfig struct {
	// SearchRadiusMeters bounds which delivery boys receive an assignment broadcast.
	SearchRadiusMeters float64 `yaml:"search_radius_meters" split_words:"true"`
}

// RateLimitConfig configures rate limiting for the auth endpoints
type RateLimitConfig struct {
	Enabled        bool `yaml:"enabled" split_words:"true"`
	MaxAttempts    int  `yaml:"max_attempts" split_words:"true"`
	WindowSeconds  int  `yaml:"window_seconds" split_words:"true"`
	LockoutSeconds int  `yaml:"lockout_seconds" split_words:"true"`
}

// SetDefaults fills zero values with defaults
func (c *RateLimitConfig) SetDefaults() {
	if c.MaxAttempts <= 0 {
		c.MaxAttempts = 10
	}
	if c.WindowSeconds <= 0 {
		c.WindowSeconds = 60
	}
	if c.LockoutSeconds <= 0 {
		c.LockoutSeconds = 300
	}
}

// LoadDotEnv loads KEY=VALUE files into the process environment.
// Variables already present in the environment are not overridden and
// missing files are ignored.
func LoadDotEnv(files ...string) error {
	if len(files) == 0 {
		files = []string{".env"}
	}
	for _, f := range files {
		if err := godotenv.Load(f); err != nil {
			if errors.Is(err, fs.ErrNotExist) {
				continue
			}
			return fmt.Errorf("failed to load %s: %w", f, err)
		}
	}
	return nil
}

// Load loads configuration from file and environment variables
func Load(configFile string) (*Config, error) {
	cfg := defaultConfig()

	if configFile != "" {
		data, err := os.ReadFile(configFile)
		if err != nil {
			if !os.IsNotExist(err) {
				return nil, fmt.Errorf("failed to read config file: %w", err)
			}
		} else {
			if err := yaml.Unmarshal(data, cfg); err != nil {
				return nil, fmt.Errorf("failed to parse config file: %w", err)
			}
		}
	}

	// Environment has the highest priority. Keys are VINGO_<SECTION>_<FIELD>;
	// fields tagged with envconfig also accept the bare tag (PORT, ALLOWED_ORIGINS).
	if err := envconfig.Process("VINGO", cfg); err != nil {
		return nil, fmt.Errorf("failed to process environment variables: %w", err)
	}
	applyPlatformEnv(cfg)

	cfg.Server.AllowedOrigins = cleanOrigins(cfg.Server.AllowedOrigins)

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}

	return cfg, nil
}

func defaultConfig() *Config {
	return &Config{
		Server: ServerConfig{
			Host: "0.0.0.0",
			Port: 8000,
			CORS: CORSConfig{
				AllowedMethods: []string{"GET", "POST", "PUT", "PATCH", "DELETE", "OPTIONS"},
				AllowedHeaders: []string{"Origin", "Content-Type", "Authorization"},
				MaxAge:         12 * 60 * 60,
			},
		},
		Storage: StorageConfig{
			Type: "memory",
			MongoDB: MongoDBConfig{
				URI:      "mongodb://localhost:27017",
				Database: "vingo",
				Timeout:  10,
			},
		},
		Logging: LoggingConfig{
			Level:  "info",
			Format: "json",
		},
		JWT: JWTConfig{
			ExpiryHours:              7 * 24,
			Issuer:                   "vingo-backend",
			RevocationCleanupSeconds: 300,
		},
		Cookie: CookieConfig{
			Name:       "token",
			SameSite:   "lax",
			MaxAgeDays: 7,
		},
		Realtime: RealtimeConfig{
			Path:                "/ws",
			Presence:            "memory",
			SendBuffer:          64,
			WriteTimeoutSeconds: 10,
			PingIntervalSeconds: 30,
			Redis: RedisConfig{
				Address:    "localhost:6379",
				KeyPrefix:  "vingo:presence:",
				TTLMinutes: 60,
			},
		},
		Delivery: DeliveryConfig{
			SearchRadiusMeters: 5000,
		},
		RateLimit: RateLimitConfig{
			Enabled:        true,
			MaxAttempts:    10,
			WindowSeconds:  60,
			LockoutSeconds: 300,
		},
	}
}

// applyPlatformEnv honours the unprefixed variables used by existing .env files
// when the prefixed ones are absent.
func applyPlatformEnv(cfg *Config) {
	if _, ok := os.LookupEnv("VINGO_JWT_SECRET"); !ok {
		if v := os.Getenv("JWT_SECRET"); v != "" {
			cfg.JWT.Secret = v
		}
	}
	if _, ok := os.LookupEnv("VINGO_STORAGE_MONGO_DB_URI"); !ok {
		if v := os.Getenv("MONGODB_URL"); v != "" {
			cfg.Storage.MongoDB.URI = v
			if _, typed := os.LookupEnv("VINGO_STORAGE_TYPE"); !typed {
				cfg.Storage.Type = "mongodb"
			}
		}
	}
}

func cleanOrigins(origins []string) []string {
	out := make([]string, 0, len(origins))
	for _, o := range origins {
		o = strings.TrimRight(strings.TrimSpace(o), "/")
		if o != "" {
			out = append(out, o)
		}
	}
	return out
}

// Validate validates the configuration
func (c *Config) Validate() error {
	if c.Server.Port < 1 || c.Server.Port > 65535 {
		return fmt.Errorf("invalid server port: %d", c.Server.Port)
	}

	for _, origin := range c.Server.AllowedOrigins {
		if err := validateOrigin(origin); err != nil {
			return err
		}
	}

	if c.Storage.Type != "memory" && c.Storage.Type != "mongodb" {
		return fmt.Errorf("invalid storage type: %s (must be memory or mongodb)", c.Storage.Type)
	}

	if c.Storage.Type == "mongodb" && c.Storage.MongoDB.URI == "" {
		return fmt.Errorf("mongodb uri is required when using mongodb storage")
	}

	if c.JWT.Secret == "" {
		return fmt.Errorf("jwt secret is required")
	}

	if c.Realtime.Presence != "memory" && c.Realtime.Presence != "redis" {
		return fmt.Errorf("invalid realtime presence store: %s (must be memory or redis)", c.Realtime.Presence)
	}

	if c.Realtime.Presence == "redis" && c.Realtime.Redis.Address == "" {
		return fmt.Errorf("redis address is required when using redis presence")
	}

	if !strings.HasPrefix(c.Realtime.Path, "/") || c.Realtime.Path == "/" {
		return fmt.Errorf("invalid realtime path: %q", c.Realtime.Path)
	}

	switch strings.ToLower(c.Cookie.SameSite) {
	case "", "lax", "strict", "none":
	default:
		return fmt.Errorf("invalid cookie same_site: %s", c.Cookie.SameSite)
	}

	return nil
}

func validateOrigin(origin string) error {
	if origin == "*" {
		return fmt.Errorf("wildcard origin is not allowed with credentials")
	}
	u, err := url.Parse(origin)
	if err != nil || u.Scheme == "" || u.Host == "" {
		return fmt.Errorf("invalid allowed origin: %q", origin)
	}
	if u.Path != "" || u.RawQuery != "" || u.Fragment != "" {
		return fmt.Errorf("allowed origin must not contain a path: %q", origin)
	}
	return nil
}

// Address returns the server address
func (c *ServerConfig) Address() string {
	return fmt.Sprintf("%s:%d", c.Host, c.Port)
}
