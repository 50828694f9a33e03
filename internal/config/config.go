package config

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"
)

const (
	// DefaultServerPort is the port the API listens on when PORT is not set
	DefaultServerPort = "5000"
	// DefaultMongoDBURI is the data store used when MONGODB_URI is not set
	DefaultMongoDBURI = "mongodb://localhost:27017/food-delivery"
	// DefaultRateLimitWindow is the fixed window for per-client request counting
	DefaultRateLimitWindow = 15 * time.Minute
	// DefaultRateLimitMax is the number of requests a client may issue per window
	DefaultRateLimitMax int64 = 100
	// DefaultMaxBodyBytes caps JSON and URL-encoded request bodies (10MB)
	DefaultMaxBodyBytes int64 = 10 << 20
)

// DefaultAllowedOrigins are the browser origins allowed to make credentialed requests
var DefaultAllowedOrigins = []string{"http://localhost:3000", "http://localhost:5173"}

// Config holds application configuration
type Config struct {
	ServerPort       string        `yaml:"server_port" validate:"required,numeric"`
	MongoDBURI       string        `yaml:"mongodb_uri" validate:"required"`
	DBConnectTimeout time.Duration `yaml:"db_connect_timeout" validate:"gt=0"`

	AllowedOrigins []string `yaml:"allowed_origins" validate:"min=1,dive,url"`

	RateLimitWindow       time.Duration `yaml:"rate_limit_window" validate:"gt=0"`
	RateLimitMax          int64         `yaml:"rate_limit_max" validate:"gt=0"`
	RateLimitExemptHealth bool          `yaml:"rate_limit_exempt_health"`
	RedisURL              string        `yaml:"redis_url" validate:"omitempty,url"`
	TrustProxy            bool          `yaml:"trust_proxy"`

	MaxJSONBodyBytes int64 `yaml:"max_json_body_bytes" validate:"gt=0"`
	MaxFormBodyBytes int64 `yaml:"max_form_body_bytes" validate:"gt=0"`

	EnableHSTS      bool          `yaml:"enable_hsts"`
	RequestTimeout  time.Duration `yaml:"request_timeout" validate:"gt=0"`
	ReadTimeout     time.Duration `yaml:"read_timeout" validate:"gt=0"`
	WriteTimeout    time.Duration `yaml:"write_timeout" validate:"gt=0"`
	IdleTimeout     time.Duration `yaml:"idle_timeout" validate:"gt=0"`
	ShutdownTimeout time.Duration `yaml:"shutdown_timeout" validate:"gt=0"`

	ServerDebugMode bool   `yaml:"server_debug_mode"`
	OTELEnabled     bool   `yaml:"otel_enabled"`
	OTELEndpoint    string `yaml:"otel_endpoint"`
	MetricsPort     string `yaml:"metrics_port" validate:"omitempty,numeric"`
}

// Defaults returns the configuration used when nothing else is provided
func Defaults() *Config {
	return &Config{
		ServerPort:       DefaultServerPort,
		MongoDBURI:       DefaultMongoDBURI,
		DBConnectTimeout: 10 * time.Second,
		AllowedOrigins:   append([]string(nil), DefaultAllowedOrigins...),
		RateLimitWindow:  DefaultRateLimitWindow,
		RateLimitMax:     DefaultRateLimitMax,
		MaxJSONBodyBytes: DefaultMaxBodyBytes,
		MaxFormBodyBytes: DefaultMaxBodyBytes,
		EnableHSTS:       true,
		RequestTimeout:   30 * time.Second,
		ReadTimeout:      15 * time.Second,
		WriteTimeout:     15 * time.Second,
		IdleTimeout:      60 * time.Second,
		ShutdownTimeout:  30 * time.Second,
	}
}

// Load loads configuration from defaults, an optional YAML file and environment variables.
// A .env file in the working directory is loaded first when present; variables already
// set in the environment win over it. configFile overrides CONFIG_FILE when non-empty.
func Load(configFile string) (*Config, error) {
	if err := godotenv.Load(); err != nil && !errors.Is(err, fs.ErrNotExist) {
		return nil, fmt.Errorf("failed to load .env file: %w", err)
	}

	cfg := Defaults()

	if configFile == "" {
		configFile = os.Getenv("CONFIG_FILE")
	}
	if configFile != "" {
		if err := cfg.mergeFile(configFile); err != nil {
			return nil, err
		}
	}

	cfg.mergeEnv()

	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	return cfg, nil
}

func (c *Config) mergeFile(path string) error {
	data, err := os.ReadFile(path)
	if err != nil {
		return fmt.Errorf("failed to read config file: %w", err)
	}
	if err := yaml.Unmarshal(data, c); err != nil {
		return fmt.Errorf("failed to parse config file %s: %w", path, err)
	}
	return nil
}

func (c *Config) mergeEnv() {
	c.ServerPort = getEnv("PORT", c.ServerPort)
	c.MongoDBURI = getEnv("MONGODB_URI", c.MongoDBURI)
	c.DBConnectTimeout = getEnvDuration("DB_CONNECT_TIMEOUT", c.DBConnectTimeout)
	c.AllowedOrigins = getEnvList("CORS_ALLOWED_ORIGINS", c.AllowedOrigins)
	c.RateLimitWindow = getEnvDuration("RATE_LIMIT_WINDOW", c.RateLimitWindow)
	c.RateLimitMax = getEnvInt64("RATE_LIMIT_MAX", c.RateLimitMax)
	c.RateLimitExemptHealth = getEnvBool("RATE_LIMIT_EXEMPT_HEALTH", c.RateLimitExemptHealth)
	c.RedisURL = getEnv("REDIS_URL", c.RedisURL)
	c.TrustProxy = getEnvBool("TRUST_PROXY", c.TrustProxy)
	c.MaxJSONBodyBytes = getEnvInt64("MAX_JSON_BODY_BYTES", c.MaxJSONBodyBytes)
	c.MaxFormBodyBytes = getEnvInt64("MAX_FORM_BODY_BYTES", c.MaxFormBodyBytes)
	c.EnableHSTS = getEnvBool("ENABLE_HSTS", c.EnableHSTS)
	c.RequestTimeout = getEnvDuration("REQUEST_TIMEOUT", c.RequestTimeout)
	c.ReadTimeout = getEnvDuration("READ_TIMEOUT", c.ReadTimeout)
	c.WriteTimeout = getEnvDuration("WRITE_TIMEOUT", c.WriteTimeout)
	c.IdleTimeout = getEnvDuration("IDLE_TIMEOUT", c.IdleTimeout)
	c.ShutdownTimeout = getEnvDuration("SHUTDOWN_TIMEOUT", c.ShutdownTimeout)
	c.ServerDebugMode = getEnvBool("SERVER_DEBUG_MODE", c.ServerDebugMode)
	c.OTELEnabled = getEnvBool("OTEL_ENABLED", c.OTELEnabled)
	c.OTELEndpoint = getEnv("OTEL_EXPORTER_OTLP_ENDPOINT", c.OTELEndpoint)
	c.MetricsPort = getEnv("METRICS_PORT", c.MetricsPort)
}

// Validate checks that the configuration is usable
func (c *Config) Validate() error {
	if err := validate.Struct(c); err != nil {
		var verrs validator.ValidationErrors
		if errors.As(err, &verrs) && len(verrs) > 0 {
			fe := verrs[0]
			return fmt.Errorf("invalid configuration: %s failed %q validation", fe.Namespace(), fe.Tag())
		}
		return fmt.Errorf("invalid configuration: %w", err)
	}
	return nil
}

var validate = validator.New()

func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func getEnvBool(key string, defaultValue bool) bool {
	if value := os.Getenv(key); value != "" {
		return value == "true" || value == "1" || value == "yes"
	}
	return defaultValue
}

func getEnvInt64(key string, defaultValue int64) int64 {
	if value := os.Getenv(key); value != "" {
		if intValue, err := strconv.ParseInt(value, 10, 64); err == nil {
			return intValue
		}
	}
	return defaultValue
}

func getEnvDuration(key string, defaultValue time.Duration) time.Duration {
	if value := os.Getenv(key); value != "" {
		if d, err := time.ParseDuration(value); err == nil {
			return d
		}
	}
	return defaultValue
}

// getEnvList parses a comma-separated list, trimming whitespace and dropping duplicates
func getEnvList(key string, defaultValue []string) []string {
	value := os.Getenv(key)
	if value == "" {
		return defaultValue
	}
	var out []string
	seen := make(map[string]bool)
	for _, part := range strings.Split(value, ",") {
		s := strings.TrimSpace(part)
		if s != "" && !seen[s] {
			seen[s] = true
			out = append(out, s)
		}
	}
	if len(out) == 0 {
		return defaultValue
	}
	return out
}
