package config

import (
	"errors"
	"fmt"
	"net"
	"os"
	"strconv"
	"strings"

	"github.com/joho/godotenv"
)

const (
	DriverMySQL    = "mysql"
	DriverPostgres = "postgres"
	DriverSQLite   = "sqlite"
)

const (
	ParallelEscalationKeepVotes     = "keep_votes"
	ParallelEscalationRestartQuorum = "restart_quorum"
)

type Config struct {
	AppPort     string
	Environment string
	LogLevel    string

	DBDriver   string
	DBHost     string
	DBPort     string
	DBName     string
	DBUser     string
	DBPass     string
	DBSSLMode  string
	SQLitePath string
	DBLogSQL   bool

	AutoMigrate bool

	RedisAddr     string
	RedisPassword string
	RedisDB       int

	IdempTTLSecs int

	JWTSecret string
	SkipAuth  bool

	DefinitionsFile string
	DirectoryFile   string

	ScannerSchedule    string
	ScannerEscalate    bool
	ScannerBatchSize   int
	ParallelEscalation string

	NotifyChannel   string
	ApprovableTypes []string
}

func getenv(k, d string) string {
	if v := os.Getenv(k); v != "" {
		return v
	}
	return d
}

func getint(k string, d int) int {
	if v := os.Getenv(k); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			return n
		}
	}
	return d
}

func getbool(k string, d bool) bool {
	if v := os.Getenv(k); v != "" {
		if b, err := strconv.ParseBool(v); err == nil {
			return b
		}
	}
	return d
}

func getlist(k string) []string {
	var out []string
	for _, s := range strings.Split(os.Getenv(k), ",") {
		if s = strings.TrimSpace(s); s != "" {
			out = append(out, s)
		}
	}
	return out
}

// LoadFile reads an optional dotenv file, then Load. Existing environment
// variables win over the file.
func LoadFile(path string) (*Config, error) {
	if path != "" {
		if err := godotenv.Load(path); err != nil && !errors.Is(err, os.ErrNotExist) {
			return nil, fmt.Errorf("load %s: %w", path, err)
		}
	}
	return Load(), nil
}

func Load() *Config {
	c := &Config{
		AppPort:     getenv("APP_PORT", "8080"),
		Environment: getenv("ENVIRONMENT", "development"),
		LogLevel:    getenv("LOG_LEVEL", "info"),

		DBDriver:    getenv("DB_DRIVER", DriverMySQL),
		DBHost:      getenv("DB_HOST", "mysql"),
		DBPort:      getenv("DB_PORT", "3306"),
		DBName:      getenv("DB_NAME", "approvals"),
		DBUser:      getenv("DB_USER", "approvals"),
		DBPass:      getenv("DB_PASS", "approvals"),
		DBSSLMode:   getenv("DB_SSLMODE", "disable"),
		SQLitePath:  getenv("SQLITE_PATH", "approvals.db"),
		DBLogSQL:    getbool("DB_LOG_SQL", false),
		AutoMigrate: getbool("AUTO_MIGRATE", true),

		RedisAddr:     getenv("REDIS_ADDR", "redis:6379"),
		RedisPassword: os.Getenv("REDIS_PASSWORD"),
		RedisDB:       getint("REDIS_DB", 0),
		IdempTTLSecs:  getint("IDEMPOTENCY_TTL_SECONDS", 300),

		JWTSecret: os.Getenv("JWT_SECRET"),
		SkipAuth:  getbool("SKIP_AUTH", false),

		DefinitionsFile: os.Getenv("DEFINITIONS_FILE"),
		DirectoryFile:   os.Getenv("DIRECTORY_FILE"),

		ScannerSchedule:    getenv("SCANNER_SCHEDULE", "@daily"),
		ScannerEscalate:    getbool("SCANNER_ESCALATE", true),
		ScannerBatchSize:   getint("SCANNER_BATCH_SIZE", 200),
		ParallelEscalation: getenv("PARALLEL_ESCALATION", ParallelEscalationKeepVotes),

		NotifyChannel:   getenv("NOTIFY_CHANNEL", "approvals.events"),
		ApprovableTypes: getlist("APPROVABLE_TYPES"),
	}
	return c
}

func (c *Config) IsProduction() bool { return c.Environment == "production" }

func (c *Config) Validate() error {
	if c.AppPort == "" {
		return errors.New("missing APP_PORT")
	}
	switch c.DBDriver {
	case DriverMySQL, DriverPostgres:
		if c.DBHost == "" || c.DBPort == "" || c.DBName == "" || c.DBUser == "" {
			return errors.New("missing database config (DB_HOST/PORT/NAME/USER)")
		}
		// ensure port is valid
		if _, err := net.LookupPort("tcp", c.DBPort); err != nil {
			return fmt.Errorf("invalid DB_PORT %q: %w", c.DBPort, err)
		}
	case DriverSQLite:
		if c.SQLitePath == "" {
			return errors.New("missing SQLITE_PATH")
		}
	default:
		return fmt.Errorf("unsupported DB_DRIVER %q", c.DBDriver)
	}
	if !c.SkipAuth && c.JWTSecret == "" {
		return errors.New("missing JWT_SECRET (or set SKIP_AUTH=true for local use)")
	}
	if c.SkipAuth && c.IsProduction() {
		return errors.New("SKIP_AUTH is not allowed in production")
	}
	switch c.ParallelEscalation {
	case ParallelEscalationKeepVotes, ParallelEscalationRestartQuorum:
	default:
		return fmt.Errorf("invalid PARALLEL_ESCALATION %q", c.ParallelEscalation)
	}
	if c.ScannerBatchSize <= 0 {
		return fmt.Errorf("invalid SCANNER_BATCH_SIZE %d", c.ScannerBatchSize)
	}
	return nil
}

func (c *Config) dbAddr() string { return net.JoinHostPort(c.DBHost, c.DBPort) }

func (c *Config) MySQLDSN() string {
	// parseTime needed for DATETIME
	return fmt.Sprintf("%s:%s@tcp(%s)/%s?parseTime=true&loc=UTC&charset=utf8mb4,utf8",
		c.DBUser, c.DBPass, c.dbAddr(), c.DBName)
}

func (c *Config) PostgresDSN() string {
	return fmt.Sprintf("host=%s port=%s user=%s password=%s dbname=%s sslmode=%s TimeZone=UTC",
		c.DBHost, c.DBPort, c.DBUser, c.DBPass, c.DBName, c.DBSSLMode)
}
