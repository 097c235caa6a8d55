package config

import (
	"fmt"
	"os"
	"time"

	"github.com/shopspring/decimal"
	"gopkg.in/yaml.v3"
)

const (
	DefaultPath = "config/config.yaml"

	ModeDev     = "dev"
	ModeRelease = "release"

	DriverMySQL  = "mysql"
	DriverSQLite = "sqlite3"
	DriverMemory = "memory"

	jwtSecretEnv = "LIBRA_JWT_SECRET"
)

type DatabaseConfig struct {
	Driver   string `yaml:"driver"`
	Host     string `yaml:"host"`
	Port     int    `yaml:"port"`
	Username string `yaml:"user"`
	Password string `yaml:"password"`
	DBName   string `yaml:"dbname"`
	Path     string `yaml:"path"` // sqlite3 のみ
}

type Certs struct {
	Cert string `yaml:"cert"`
	Key  string `yaml:"key"`
}

type AuthConfig struct {
	JWTSecret string        `yaml:"jwt_secret"`
	TokenTTL  time.Duration `yaml:"token_ttl"`
}

type LendingConfig struct {
	LoanPeriodDays int    `yaml:"loan_period_days"`
	FinePerDay     string `yaml:"fine_per_day"`
	MaxRenewals    *int   `yaml:"max_renewals"` // nil なら 1 回まで、0 で延長不可
}

type CORSConfig struct {
	AllowOrigins []string `yaml:"allow_origins"`
}

type Config struct {
	Version     string         `yaml:"version"`
	Mode        string         `yaml:"mode"`
	Listen      string         `yaml:"listen"`
	DB          DatabaseConfig `yaml:"database"`
	Certificate Certs          `yaml:"certificate"`
	Auth        AuthConfig     `yaml:"auth"`
	Lending     LendingConfig  `yaml:"lending"`
	CORS        CORSConfig     `yaml:"cors"`
}

func Load(path string) (*Config, error) {
	buf, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("設定ファイルの読み込み失敗: %w", err)
	}
	return Parse(buf)
}

func Parse(buf []byte) (*Config, error) {
	var cfg Config
	if err := yaml.Unmarshal(buf, &cfg); err != nil {
		return nil, fmt.Errorf("設定ファイルのパース失敗: %w", err)
	}
	cfg.applyDefaults()
	if v := os.Getenv(jwtSecretEnv); v != "" {
		cfg.Auth.JWTSecret = v
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

func (c *Config) applyDefaults() {
	if c.Mode == "" {
		c.Mode = ModeDev
	}
	if c.Listen == "" {
		c.Listen = ":8443"
	}
	if c.DB.Driver == "" {
		c.DB.Driver = DriverMySQL
	}
	if c.DB.Port == 0 {
		c.DB.Port = 3306
	}
	if c.DB.Path == "" {
		c.DB.Path = "data/libra.db"
	}
	if c.Auth.TokenTTL == 0 {
		c.Auth.TokenTTL = 24 * time.Hour
	}
	if c.Lending.LoanPeriodDays == 0 {
		c.Lending.LoanPeriodDays = 14
	}
	if c.Lending.FinePerDay == "" {
		c.Lending.FinePerDay = "0.50"
	}
	if c.Lending.MaxRenewals == nil {
		one := 1
		c.Lending.MaxRenewals = &one
	}
	if len(c.CORS.AllowOrigins) == 0 {
		c.CORS.AllowOrigins = []string{"http://localhost:3000"}
	}
}

func (c *Config) Validate() error {
	if c.Mode != ModeDev && c.Mode != ModeRelease {
		return fmt.Errorf("mode must be %q or %q, got %q", ModeDev, ModeRelease, c.Mode)
	}
	switch c.DB.Driver {
	case DriverMySQL, DriverSQLite, DriverMemory:
	default:
		return fmt.Errorf("unknown database driver %q", c.DB.Driver)
	}
	if c.Lending.LoanPeriodDays < 0 || c.Lending.Renewals() < 0 {
		return fmt.Errorf("lending.loan_period_days and lending.max_renewals must be >= 0")
	}
	fine, err := c.Lending.FinePerDayAmount()
	if err != nil {
		return err
	}
	if fine.IsNegative() {
		return fmt.Errorf("lending.fine_per_day must be >= 0")
	}
	if c.Mode == ModeRelease && c.Auth.JWTSecret == "" {
		return fmt.Errorf("auth.jwt_secret (or %s) is required in release mode", jwtSecretEnv)
	}
	return nil
}

func (l LendingConfig) FinePerDayAmount() (decimal.Decimal, error) {
	d, err := decimal.NewFromString(l.FinePerDay)
	if err != nil {
		return decimal.Zero, fmt.Errorf("lending.fine_per_day %q: %w", l.FinePerDay, err)
	}
	return d, nil
}

func (l LendingConfig) Renewals() int {
	if l.MaxRenewals == nil {
		return 1
	}
	return *l.MaxRenewals
}

func (l LendingConfig) LoanPeriod() time.Duration {
	return time.Duration(l.LoanPeriodDays) * 24 * time.Hour
}
