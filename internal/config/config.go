package config

import (
	"errors"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/caarlos0/env/v11"
)

const (
	defaultAccessSecret  = "change-me-access"
	defaultRefreshSecret = "change-me-refresh"
	defaultAdminPassword = "change-me"
)

type Config struct {
	Port     string `env:"PORT" envDefault:"8080"`
	Env      string `env:"ENV"`
	LogLevel string `env:"LOG_LEVEL" envDefault:"info"`

	DBAdapter      string        `env:"DB_ADAPTER" envDefault:"postgres"`
	SQLiteFile     string        `env:"SQLITE_FILE" envDefault:"./data/authcore.db"`
	DBQueryTimeout time.Duration `env:"DB_QUERY_TIMEOUT" envDefault:"5s"`

	// PostgreSQL connection settings
	PostgresDSN      string `env:"POSTGRES_DSN"`
	PostgresHost     string `env:"POSTGRES_HOST" envDefault:"localhost"`
	PostgresPort     string `env:"POSTGRES_PORT" envDefault:"5432"`
	PostgresUser     string `env:"POSTGRES_USER" envDefault:"authcore"`
	PostgresPassword string `env:"POSTGRES_PASSWORD"`
	PostgresDB       string `env:"POSTGRES_DB" envDefault:"authcore"`
	PostgresSSLMode  string `env:"POSTGRES_SSLMODE" envDefault:"disable"`
	PostgresDriver   string `env:"POSTGRES_DRIVER" envDefault:"postgres"`

	LedgerBackend string `env:"LEDGER_BACKEND" envDefault:"sql"`
	RedisAddr     string `env:"REDIS_ADDR" envDefault:"localhost:6379"`
	RedisPassword string `env:"REDIS_PASSWORD"`
	RedisDB       int    `env:"REDIS_DB" envDefault:"0"`

	AccessTokenSecret  string        `env:"ACCESS_TOKEN_SECRET" envDefault:"change-me-access"`
	RefreshTokenSecret string        `env:"REFRESH_TOKEN_SECRET" envDefault:"change-me-refresh"`
	AccessTokenTTL     time.Duration `env:"ACCESS_TOKEN_TTL" envDefault:"15m"`
	RefreshTokenTTL    time.Duration `env:"REFRESH_TOKEN_TTL" envDefault:"168h"`
	RefreshLedgerTTL   time.Duration `env:"REFRESH_LEDGER_TTL" envDefault:"168h"`
	TokenIssuer        string        `env:"TOKEN_ISSUER" envDefault:"authcore"`

	MaxFailedAttempts int           `env:"MAX_FAILED_ATTEMPTS" envDefault:"5"`
	LockoutDuration   time.Duration `env:"LOCKOUT_DURATION" envDefault:"15m"`
	BcryptCost        int           `env:"BCRYPT_COST" envDefault:"12"`

	AdminEmail     string `env:"ADMIN_EMAIL" envDefault:"admin@example.com"`
	AdminPassword  string `env:"ADMIN_PASSWORD" envDefault:"change-me"`
	AdminFirstName string `env:"ADMIN_FIRST_NAME" envDefault:"Admin"`
	AdminLastName  string `env:"ADMIN_LAST_NAME" envDefault:"User"`

	MirrorFile          string `env:"MIRROR_FILE"`
	MirrorRequireHashed bool   `env:"MIRROR_REQUIRE_HASHED" envDefault:"true"`

	LoginRatePerMinute  int           `env:"LOGIN_RATE_PER_MINUTE" envDefault:"30"`
	LedgerPruneInterval time.Duration `env:"LEDGER_PRUNE_INTERVAL" envDefault:"1h"`
	ShutdownTimeout     time.Duration `env:"SHUTDOWN_TIMEOUT" envDefault:"10s"`
}

// IsProduction reports whether ENV names a production deployment.
func (c *Config) IsProduction() bool {
	e := strings.ToLower(c.Env)
	return e == "production" || e == "prod"
}

// BuildPostgresDSN returns POSTGRES_DSN when set, otherwise a keyword/value
// DSN built from the individual settings.
func (c *Config) BuildPostgresDSN() (string, error) {
	if c.PostgresDSN != "" {
		return c.PostgresDSN, nil
	}

	if c.PostgresHost == "" {
		return "", errors.New("POSTGRES_HOST or POSTGRES_DSN must be set")
	}
	if c.PostgresUser == "" {
		return "", errors.New("POSTGRES_USER must be set")
	}
	if c.PostgresDB == "" {
		return "", errors.New("POSTGRES_DB must be set")
	}

	port := c.PostgresPort
	if port == "" {
		port = "5432"
	}
	sslMode := c.PostgresSSLMode
	if sslMode == "" {
		sslMode = "disable"
	}

	dsn := fmt.Sprintf("host=%s port=%s user=%s dbname=%s sslmode=%s",
		c.PostgresHost, port, c.PostgresUser, c.PostgresDB, sslMode)
	if c.PostgresPassword != "" {
		dsn += " password=" + c.PostgresPassword
	}
	return dsn, nil
}

// New loads the configuration from the process environment.
func New() (*Config, error) {
	return load(env.Options{})
}

// LoadFrom loads the configuration from vars instead of the process
// environment.
func LoadFrom(vars map[string]string) (*Config, error) {
	return load(env.Options{Environment: vars})
}

func load(opts env.Options) (*Config, error) {
	c := &Config{}
	if err := env.ParseWithOptions(c, opts); err != nil {
		return nil, fmt.Errorf("parse env: %w", err)
	}
	if err := c.validate(); err != nil {
		return nil, err
	}
	return c, nil
}

func (c *Config) validate() error {
	switch c.DBAdapter {
	case "postgres":
		dsn, err := c.BuildPostgresDSN()
		if err != nil {
			return fmt.Errorf("postgres configuration error: %w", err)
		}
		c.PostgresDSN = dsn
		if c.PostgresDriver != "postgres" && c.PostgresDriver != "pgx" {
			return fmt.Errorf("unsupported POSTGRES_DRIVER: %s (supported: postgres, pgx)", c.PostgresDriver)
		}
	case "sqlite":
		if c.SQLiteFile == "" {
			return errors.New("SQLITE_FILE must be set when DB_ADAPTER=sqlite")
		}
	case "memory":
	default:
		return fmt.Errorf("unsupported DB_ADAPTER: %s (supported: postgres, sqlite, memory)", c.DBAdapter)
	}

	switch c.LedgerBackend {
	case "sql":
	case "redis":
		if c.RedisAddr == "" {
			return errors.New("REDIS_ADDR must be set when LEDGER_BACKEND=redis")
		}
	default:
		return fmt.Errorf("unsupported LEDGER_BACKEND: %s (supported: sql, redis)", c.LedgerBackend)
	}

	if c.AccessTokenSecret == "" || c.RefreshTokenSecret == "" {
		return errors.New("ACCESS_TOKEN_SECRET and REFRESH_TOKEN_SECRET must be set")
	}
	if c.AccessTokenSecret == c.RefreshTokenSecret {
		return errors.New("ACCESS_TOKEN_SECRET and REFRESH_TOKEN_SECRET must differ")
	}
	if c.IsProduction() {
		if c.AccessTokenSecret == defaultAccessSecret || c.RefreshTokenSecret == defaultRefreshSecret {
			return errors.New("token secrets must be set in production")
		}
		if c.AdminPassword == defaultAdminPassword {
			return errors.New("ADMIN_PASSWORD must be set in production")
		}
	}
	if c.AccessTokenTTL <= 0 || c.RefreshTokenTTL <= 0 || c.RefreshLedgerTTL <= 0 {
		return errors.New("token TTLs must be positive")
	}

	if c.MaxFailedAttempts < 1 {
		return fmt.Errorf("invalid MAX_FAILED_ATTEMPTS: %d", c.MaxFailedAttempts)
	}
	if c.LockoutDuration <= 0 {
		return fmt.Errorf("invalid LOCKOUT_DURATION: %s", c.LockoutDuration)
	}
	if c.LoginRatePerMinute < 1 {
		return fmt.Errorf("invalid LOGIN_RATE_PER_MINUTE: %d", c.LoginRatePerMinute)
	}

	if _, err := strconv.Atoi(c.Port); err != nil {
		return fmt.Errorf("invalid PORT: %s", c.Port)
	}
	return nil
}
