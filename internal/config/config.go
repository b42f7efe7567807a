package config

import (
	"errors"
	"fmt"
	"net"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/shopspring/decimal"
)

type Config struct {
	AppPort  string
	LogLevel string

	StoragePath       string
	LedgerFile        string
	HashRecordBackend string // file | redis

	// Remote ledger. Chain mode needs both ContractAddress and PrivateKey.
	RPCURL          string
	ChainID         int64
	PrivateKey      string
	ContractAddress string
	ContractABIPath string
	ConfirmTimeout  time.Duration
	ReceiptPoll     time.Duration
	DialTimeout     time.Duration
	NonceLockRedis  bool

	StrictDisburse bool
	MinLoanAmount  decimal.Decimal
	MaxLoanAmount  decimal.Decimal

	RedisAddr string
	RedisDB   int

	IdempTTLSecs int

	// Audit journal: "" disables it, otherwise mysql or sqlite.
	AuditDBDriver string
	MySQLHost     string
	MySQLPort     string
	MySQLDB       string
	MySQLUser     string
	MySQLPass     string
	SQLitePath    string
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

func getbool(k string) bool {
	v, _ := strconv.ParseBool(os.Getenv(k))
	return v
}

func getdec(k, d string) decimal.Decimal {
	if v, err := decimal.NewFromString(getenv(k, d)); err == nil {
		return v
	}
	return decimal.RequireFromString(d)
}

// Load reads the environment, after merging a .env file when present.
func Load() *Config {
	_ = godotenv.Load()

	storage := getenv("STORAGE_PATH", "./storage")
	c := &Config{
		AppPort:           getenv("APP_PORT", "8000"),
		LogLevel:          strings.ToLower(getenv("LOG_LEVEL", "info")),
		StoragePath:       storage,
		LedgerFile:        getenv("LEDGER_FILE", filepath.Join(storage, "loans.json")),
		HashRecordBackend: strings.ToLower(getenv("HASH_RECORD_BACKEND", "file")),

		RPCURL:          getenv("ETHEREUM_RPC_URL", "http://localhost:8545"),
		ChainID:         int64(getint("CHAIN_ID", 1337)),
		PrivateKey:      strings.TrimSpace(os.Getenv("PRIVATE_KEY")),
		ContractAddress: strings.TrimSpace(os.Getenv("CONTRACT_ADDRESS")),
		ContractABIPath: os.Getenv("CONTRACT_ABI_PATH"),
		ConfirmTimeout:  time.Duration(getint("CONFIRM_TIMEOUT_SECONDS", 300)) * time.Second,
		ReceiptPoll:     time.Duration(getint("RECEIPT_POLL_MILLIS", 1000)) * time.Millisecond,
		DialTimeout:     time.Duration(getint("RPC_DIAL_TIMEOUT_SECONDS", 5)) * time.Second,
		NonceLockRedis:  getbool("NONCE_LOCK_REDIS"),

		StrictDisburse: getbool("STRICT_DISBURSE"),
		MinLoanAmount:  getdec("MIN_LOAN_AMOUNT", "0.01"),
		MaxLoanAmount:  getdec("MAX_LOAN_AMOUNT", "1000"),

		RedisAddr:    os.Getenv("REDIS_ADDR"),
		RedisDB:      getint("REDIS_DB", 0),
		IdempTTLSecs: getint("IDEMPOTENCY_TTL_SECONDS", 300),

		AuditDBDriver: strings.ToLower(os.Getenv("AUDIT_DB_DRIVER")),
		MySQLHost:     getenv("MYSQL_HOST", "mysql"),
		MySQLPort:     getenv("MYSQL_PORT", "3306"),
		MySQLDB:       getenv("MYSQL_DB", "loans"),
		MySQLUser:     getenv("MYSQL_USER", "loans"),
		MySQLPass:     getenv("MYSQL_PASS", "loans"),
		SQLitePath:    getenv("SQLITE_PATH", filepath.Join(storage, "audit.db")),
	}
	return c
}

// ChainConfigured reports whether a contract and signing key are both set.
// Reachability is checked separately at startup.
func (c *Config) ChainConfigured() bool {
	return c.ContractAddress != "" && c.PrivateKey != ""
}

func (c *Config) Validate() error {
	if c.AppPort == "" {
		return errors.New("missing APP_PORT")
	}
	if c.LedgerFile == "" {
		return errors.New("missing LEDGER_FILE")
	}
	if !c.MinLoanAmount.IsPositive() || c.MinLoanAmount.GreaterThan(c.MaxLoanAmount) {
		return fmt.Errorf("invalid loan bounds [%s, %s]", c.MinLoanAmount, c.MaxLoanAmount)
	}
	if c.ConfirmTimeout <= 0 || c.ReceiptPoll <= 0 {
		return errors.New("CONFIRM_TIMEOUT_SECONDS and RECEIPT_POLL_MILLIS must be positive")
	}
	switch c.HashRecordBackend {
	case "file":
	case "redis":
		if c.RedisAddr == "" {
			return errors.New("HASH_RECORD_BACKEND=redis requires REDIS_ADDR")
		}
	default:
		return fmt.Errorf("unknown HASH_RECORD_BACKEND %q", c.HashRecordBackend)
	}
	if c.NonceLockRedis && c.RedisAddr == "" {
		return errors.New("NONCE_LOCK_REDIS requires REDIS_ADDR")
	}
	switch c.AuditDBDriver {
	case "", "sqlite":
	case "mysql":
		if c.MySQLHost == "" || c.MySQLPort == "" || c.MySQLDB == "" || c.MySQLUser == "" {
			return errors.New("missing MySQL config (MYSQL_HOST/PORT/DB/USER)")
		}
		// ensure port is valid
		if _, err := net.LookupPort("tcp", c.MySQLPort); err != nil {
			return fmt.Errorf("invalid MYSQL_PORT %q: %w", c.MySQLPort, err)
		}
	default:
		return fmt.Errorf("unknown AUDIT_DB_DRIVER %q", c.AuditDBDriver)
	}
	return nil
}

func (c *Config) mysqlAddr() string { return net.JoinHostPort(c.MySQLHost, c.MySQLPort) }

func (c *Config) MySQLDSN() string {
	// parseTime needed for DATETIME
	return fmt.Sprintf("%s:%s@tcp(%s)/%s?parseTime=true&charset=utf8mb4,utf8",
		c.MySQLUser, c.MySQLPass, c.mysqlAddr(), c.MySQLDB)
}

// AuditDSN returns the DSN for the configured audit driver.
func (c *Config) AuditDSN() string {
	if c.AuditDBDriver == "mysql" {
		return c.MySQLDSN()
	}
	return c.SQLitePath
}
