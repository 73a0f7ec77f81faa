// Package config loads process settings from the environment.
//
// Values are parsed by github.com/caarlos0/env from struct tags; Load then
// normalizes and validates the result.
package config

import (
	"errors"
	"fmt"
	"reflect"
	"slices"
	"strings"
	"time"

	"github.com/caarlos0/env/v6"
)

// Store backends selectable with STORE_BACKEND.
const (
	BackendSQL   = "sql"
	BackendTable = "table"
)

// Table drivers selectable with TABLE_DRIVER.
const (
	TableDriverRedis  = "redis"
	TableDriverMemory = "memory"
)

// CORSConfig defines Cross-Origin Resource Sharing settings. An empty
// allowlist allows every origin.
type CORSConfig struct {
	AllowedOrigins []string `env:"CORS_ALLOWED_ORIGINS" envSeparator:","`
}

// SecurityConfig defines security-related settings such as HSTS.
type SecurityConfig struct {
	EnableHSTS bool          `env:"ENABLE_HSTS" envDefault:"false"`
	HSTSMaxAge time.Duration `env:"HSTS_MAX_AGE" envDefault:"4320h"`
}

// OTELConfig defines OpenTelemetry observability settings.
type OTELConfig struct {
	Enabled     bool    `env:"OTEL_ENABLED" envDefault:"false"`
	Endpoint    string  `env:"OTEL_EXPORTER_OTLP_ENDPOINT" envDefault:"localhost:4317"`
	Insecure    bool    `env:"OTEL_EXPORTER_OTLP_INSECURE" envDefault:"true"`
	ServiceName string  `env:"OTEL_SERVICE_NAME" envDefault:"go-complaint-backend"`
	SampleRatio float64 `env:"OTEL_TRACES_SAMPLER_ARG" envDefault:"1.0"`
}

// SQLConfig selects the relational backing.
type SQLConfig struct {
	Driver string `env:"DB_DRIVER" envDefault:"sqlite"` // sqlite|postgres
	Path   string `env:"DB_PATH" envDefault:"complaints.db"`
	URL    string `env:"DATABASE_URL"` // postgres only
}

// TableConfig selects the flat table backing.
type TableConfig struct {
	Driver     string `env:"TABLE_DRIVER" envDefault:"redis"` // redis|memory
	Name       string `env:"TABLE_NAME" envDefault:"Complaints"`
	Partition  string `env:"TABLE_PARTITION" envDefault:"Complaint"`
	StrictETag bool   `env:"TABLE_STRICT_ETAG" envDefault:"false"`
}

// RedisConfig is used by the redis table driver.
type RedisConfig struct {
	Addr     string `env:"REDIS_ADDR" envDefault:"localhost:6379"`
	Password string `env:"REDIS_PASSWORD"`
	DB       int    `env:"REDIS_DB" envDefault:"0"`
}

// StoreConfig picks one complaint store backing for the process.
type StoreConfig struct {
	Backend string `env:"STORE_BACKEND" envDefault:"sql"` // sql|table
	SQL     SQLConfig
	Table   TableConfig
	Redis   RedisConfig
}

// Config holds all configuration values for the application.
type Config struct {
	// Server
	Port              string        `env:"PORT" envDefault:"8080"`
	ReadTimeout       time.Duration `env:"READ_TIMEOUT" envDefault:"15s"`
	ReadHeaderTimeout time.Duration `env:"READ_HEADER_TIMEOUT" envDefault:"10s"`
	WriteTimeout      time.Duration `env:"WRITE_TIMEOUT" envDefault:"20s"`
	IdleTimeout       time.Duration `env:"IDLE_TIMEOUT" envDefault:"60s"`
	MaxHeaderBytes    int           `env:"MAX_HEADER_BYTES" envDefault:"1048576"`
	GinMode           string        `env:"GIN_MODE" envDefault:"release"` // debug|release|test

	// Logging / Docs
	LogLevel       string `env:"LOG_LEVEL" envDefault:"info"`
	LogPretty      bool   `env:"LOG_PRETTY" envDefault:"false"`
	SwaggerEnabled bool   `env:"SWAGGER_ENABLED" envDefault:"false"`
	APIBasePath    string `env:"API_BASE_PATH" envDefault:"/api"`

	// Storage
	Store StoreConfig

	// Rate limiting
	RateRPS   float64 `env:"RATE_RPS" envDefault:"5"`
	RateBurst int     `env:"RATE_BURST" envDefault:"10"`

	// Web protection
	CORS     CORSConfig
	Security SecurityConfig

	// Idempotency
	IdempotencyTTL time.Duration `env:"IDEMPOTENCY_TTL" envDefault:"24h"`

	// Observability
	OTEL OTELConfig
}

// boolParsers lets boolean settings accept yes/no and on/off besides what
// strconv.ParseBool understands.
var boolParsers = map[reflect.Type]env.ParserFunc{
	reflect.TypeOf(false): func(v string) (interface{}, error) {
		switch strings.ToLower(strings.TrimSpace(v)) {
		case "1", "t", "true", "yes", "y", "on":
			return true, nil
		case "0", "f", "false", "no", "n", "off", "":
			return false, nil
		}
		return nil, fmt.Errorf("invalid boolean %q", v)
	},
}

var (
	logLevels = []string{"trace", "debug", "info", "warn", "error", "fatal", "panic"}
	ginModes  = []string{"debug", "release", "test"}
)

// Load parses the environment into a Config, normalizes it, and reports
// every invalid setting at once. A malformed value (a duration that does not
// parse, say) is an error rather than a silent default.
func Load() (Config, error) {
	var cfg Config
	if err := env.ParseWithFuncs(&cfg, boolParsers); err != nil {
		return cfg, err
	}
	cfg.normalize()
	return cfg, cfg.validate()
}

func (c *Config) normalize() {
	c.LogLevel = lower(c.LogLevel)
	if c.LogLevel == "warning" {
		c.LogLevel = "warn"
	}
	if c.GinMode = lower(c.GinMode); !slices.Contains(ginModes, c.GinMode) {
		c.GinMode = "release"
	}
	c.APIBasePath = normalizeBasePath(c.APIBasePath)
	c.CORS.AllowedOrigins = trimAll(c.CORS.AllowedOrigins)
	c.Store.Backend = lower(c.Store.Backend)
	c.Store.SQL.Driver = lower(c.Store.SQL.Driver)
	c.Store.Table.Driver = lower(c.Store.Table.Driver)
}

func (c Config) validate() error {
	var errs []error
	check := func(ok bool, msg string) {
		if !ok {
			errs = append(errs, errors.New(msg))
		}
	}

	check(slices.Contains(logLevels, c.LogLevel), "LOG_LEVEL must be one of: "+strings.Join(logLevels, ", "))
	check(!blank(c.Port), "PORT must not be empty")
	check(c.ReadTimeout > 0 && c.ReadHeaderTimeout > 0 && c.WriteTimeout > 0 && c.IdleTimeout > 0,
		"timeouts must be positive durations")
	check(c.MaxHeaderBytes > 0, "MAX_HEADER_BYTES must be > 0")
	check(c.RateRPS >= 0, "RATE_RPS must be >= 0")
	check(c.RateBurst >= 1, "RATE_BURST must be >= 1")
	check(c.Security.HSTSMaxAge >= 0, "HSTS_MAX_AGE must be >= 0")
	check(c.IdempotencyTTL > 0, "IDEMPOTENCY_TTL must be > 0")
	check(c.OTEL.SampleRatio >= 0 && c.OTEL.SampleRatio <= 1, "OTEL_TRACES_SAMPLER_ARG must be in [0,1]")
	errs = append(errs, c.Store.problems()...)

	return errors.Join(errs...)
}

// problems lists what is wrong with the selected backing. Settings of the
// backing that is not selected are ignored.
func (s StoreConfig) problems() []error {
	var errs []error
	require := func(v, name string) {
		if blank(v) {
			errs = append(errs, fmt.Errorf("%s must not be empty", name))
		}
	}

	switch s.Backend {
	case BackendSQL:
		switch s.SQL.Driver {
		case "sqlite":
			require(s.SQL.Path, "DB_PATH")
		case "postgres":
			if blank(s.SQL.URL) {
				errs = append(errs, errors.New("DATABASE_URL is required when DB_DRIVER=postgres"))
			}
		default:
			errs = append(errs, errors.New("DB_DRIVER must be one of: sqlite, postgres"))
		}
	case BackendTable:
		switch s.Table.Driver {
		case TableDriverMemory:
		case TableDriverRedis:
			require(s.Redis.Addr, "REDIS_ADDR")
			if s.Redis.DB < 0 {
				errs = append(errs, errors.New("REDIS_DB must be >= 0"))
			}
		default:
			errs = append(errs, errors.New("TABLE_DRIVER must be one of: redis, memory"))
		}
		require(s.Table.Name, "TABLE_NAME")
		require(s.Table.Partition, "TABLE_PARTITION")
	default:
		errs = append(errs, errors.New("STORE_BACKEND must be one of: sql, table"))
	}
	return errs
}

func lower(s string) string { return strings.ToLower(strings.TrimSpace(s)) }

func blank(s string) bool { return strings.TrimSpace(s) == "" }

func trimAll(in []string) []string {
	if len(in) == 0 {
		return nil
	}
	out := make([]string, 0, len(in))
	for _, p := range in {
		if t := strings.TrimSpace(p); t != "" {
			out = append(out, t)
		}
	}
	if len(out) == 0 {
		return nil
	}
	return out
}

// normalizeBasePath ensures leading '/' and strips trailing '/' (except root).
func normalizeBasePath(p string) string {
	p = strings.TrimSpace(p)
	if p == "" {
		return "/"
	}
	if !strings.HasPrefix(p, "/") {
		p = "/" + p
	}
	if len(p) > 1 && strings.HasSuffix(p, "/") {
		p = strings.TrimRight(p, "/")
	}
	return p
}
