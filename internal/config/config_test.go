package config

import (
	"strings"
	"testing"
	"time"
)

func TestLoad_Defaults(t *testing.T) {
	t.Setenv("STORAGE_PATH", "/tmp/ledger-test")
	t.Setenv("PRIVATE_KEY", "")
	t.Setenv("CONTRACT_ADDRESS", "")

	c := Load()
	if c.LedgerFile != "/tmp/ledger-test/loans.json" {
		t.Fatalf("LedgerFile = %q", c.LedgerFile)
	}
	if c.ConfirmTimeout != 300*time.Second {
		t.Fatalf("ConfirmTimeout = %s", c.ConfirmTimeout)
	}
	if c.ChainID != 1337 {
		t.Fatalf("ChainID = %d", c.ChainID)
	}
	if c.ChainConfigured() {
		t.Fatal("chain must not be configured without key and contract")
	}
	if c.MinLoanAmount.String() != "0.01" || c.MaxLoanAmount.String() != "1000" {
		t.Fatalf("bounds = %s..%s", c.MinLoanAmount, c.MaxLoanAmount)
	}
	if err := c.Validate(); err != nil {
		t.Fatalf("defaults must validate: %v", err)
	}
}

func TestLoad_Overrides(t *testing.T) {
	t.Setenv("CONTRACT_ADDRESS", " 0x5FbDB2315678afecb367f032d93F642f64180aa3 ")
	t.Setenv("PRIVATE_KEY", "0xabc")
	t.Setenv("CONFIRM_TIMEOUT_SECONDS", "12")
	t.Setenv("STRICT_DISBURSE", "true")
	t.Setenv("MAX_LOAN_AMOUNT", "50.5")
	t.Setenv("REDIS_DB", "notanumber")

	c := Load()
	if !c.ChainConfigured() {
		t.Fatal("expected chain configured")
	}
	if c.ContractAddress != "0x5FbDB2315678afecb367f032d93F642f64180aa3" {
		t.Fatalf("contract not trimmed: %q", c.ContractAddress)
	}
	if c.ConfirmTimeout != 12*time.Second || !c.StrictDisburse {
		t.Fatalf("unexpected: %+v", c)
	}
	if c.MaxLoanAmount.String() != "50.5" {
		t.Fatalf("MaxLoanAmount = %s", c.MaxLoanAmount)
	}
	if c.RedisDB != 0 {
		t.Fatalf("bad REDIS_DB must fall back to default, got %d", c.RedisDB)
	}
}

func TestValidate_Errors(t *testing.T) {
	cases := map[string]func(c *Config){
		"missing APP_PORT":        func(c *Config) { c.AppPort = "" },
		"invalid loan bounds":     func(c *Config) { c.MinLoanAmount = c.MaxLoanAmount.Add(c.MaxLoanAmount) },
		"requires REDIS_ADDR":     func(c *Config) { c.HashRecordBackend = "redis"; c.RedisAddr = "" },
		"unknown HASH_RECORD":     func(c *Config) { c.HashRecordBackend = "s3" },
		"unknown AUDIT_DB_DRIVER": func(c *Config) { c.AuditDBDriver = "postgres" },
		"invalid MYSQL_PORT":      func(c *Config) { c.AuditDBDriver = "mysql"; c.MySQLPort = "not-a-port" },
		"NONCE_LOCK_REDIS":        func(c *Config) { c.NonceLockRedis = true; c.RedisAddr = "" },
	}
	for want, mutate := range cases {
		c := Load()
		mutate(c)
		err := c.Validate()
		if err == nil || !strings.Contains(err.Error(), want) {
			t.Fatalf("want error containing %q, got %v", want, err)
		}
	}
}

func TestMySQLDSN(t *testing.T) {
	c := &Config{MySQLUser: "u", MySQLPass: "p", MySQLHost: "db", MySQLPort: "3306", MySQLDB: "loans", AuditDBDriver: "mysql"}
	want := "u:p@tcp(db:3306)/loans?parseTime=true&charset=utf8mb4,utf8"
	if got := c.AuditDSN(); got != want {
		t.Fatalf("dsn = %q, want %q", got, want)
	}
}
