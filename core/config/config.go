// Package config loads node configuration from a dotenv file, an optional
// YAML file and AIDLEDGER_* environment variables, in increasing precedence.
package config

import (
	"errors"
	"fmt"
	"net/netip"
	"os"
	"strconv"
	"strings"

	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"

	"aidledger/types/ids"
)

const (
	DefaultEnvFile    = ".env"
	DefaultListenAddr = ":8080"
	DefaultDBPath     = "aidledger_db"
	DefaultProgramID  = "4wcEn4cPenW3GM1eYfNoAHsmnN1SPNLnLqSCtBruaobD"
	DefaultRateLimit  = 600
)

// Config holds node settings.
type Config struct {
	ProgramID       string `yaml:"program_id"`
	DBPath          string `yaml:"db_path"`
	Ephemeral       bool   `yaml:"ephemeral"`
	ListenAddr      string `yaml:"listen_addr"`
	LogLevel        string `yaml:"log_level"`
	LogFormat       string `yaml:"log_format"` // json or console
	JWTSecret       string `yaml:"jwt_secret,omitempty"`
	RateLimitPerMin int    `yaml:"rate_limit_per_min"` // 0 disables
	TLSCertPath     string `yaml:"tls_cert_path,omitempty"`
	TLSKeyPath      string `yaml:"tls_key_path,omitempty"`
	EventBuffer     int    `yaml:"event_buffer"`

	// TrustedProxies are IPs or CIDRs allowed to set X-Forwarded-For.
	TrustedProxies []string `yaml:"trusted_proxies,omitempty"`
}

// Default returns the settings used when nothing is configured.
func Default() *Config {
	return &Config{
		ProgramID:       DefaultProgramID,
		DBPath:          DefaultDBPath,
		ListenAddr:      DefaultListenAddr,
		LogLevel:        "info",
		LogFormat:       "json",
		RateLimitPerMin: DefaultRateLimit,
		EventBuffer:     64,
	}
}

// Load reads envFile (missing is fine), then the YAML file named by
// AIDLEDGER_CONFIG if set, then AIDLEDGER_* overrides.
func Load(envFile string) (*Config, error) {
	if envFile != "" {
		if err := godotenv.Load(envFile); err != nil && !errors.Is(err, os.ErrNotExist) {
			return nil, fmt.Errorf("load %s: %w", envFile, err)
		}
	}

	cfg := Default()
	if path := os.Getenv("AIDLEDGER_CONFIG"); path != "" {
		if err := cfg.loadFile(path); err != nil {
			return nil, err
		}
	}
	cfg.applyEnv()

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

func (c *Config) loadFile(path string) error {
	data, err := os.ReadFile(path)
	if err != nil {
		return fmt.Errorf("read config file: %w", err)
	}
	if err := yaml.Unmarshal(data, c); err != nil {
		return fmt.Errorf("parse config file: %w", err)
	}
	return nil
}

func (c *Config) applyEnv() {
	setString(&c.ProgramID, "AIDLEDGER_PROGRAM_ID")
	setString(&c.DBPath, "AIDLEDGER_DB_PATH")
	setString(&c.ListenAddr, "AIDLEDGER_LISTEN_ADDR")
	setString(&c.LogLevel, "AIDLEDGER_LOG_LEVEL")
	setString(&c.LogFormat, "AIDLEDGER_LOG_FORMAT")
	setString(&c.JWTSecret, "AIDLEDGER_JWT_SECRET")
	setString(&c.TLSCertPath, "AIDLEDGER_TLS_CERT_PATH")
	setString(&c.TLSKeyPath, "AIDLEDGER_TLS_KEY_PATH")
	c.Ephemeral = getEnvBool("AIDLEDGER_EPHEMERAL", c.Ephemeral)
	c.RateLimitPerMin = getEnvInt("AIDLEDGER_RATE_LIMIT_PER_MIN", c.RateLimitPerMin)
	c.EventBuffer = getEnvInt("AIDLEDGER_EVENT_BUFFER", c.EventBuffer)
	c.TrustedProxies = getEnvList("AIDLEDGER_TRUSTED_PROXIES", c.TrustedProxies)
}

// Validate checks the settings are usable.
func (c *Config) Validate() error {
	if _, err := ids.FromBase58(c.ProgramID); err != nil {
		return fmt.Errorf("program_id: %w", err)
	}
	if c.ListenAddr == "" {
		return errors.New("listen_addr is required")
	}
	if !c.Ephemeral && c.DBPath == "" {
		return errors.New("db_path is required unless ephemeral")
	}
	switch c.LogFormat {
	case "json", "console":
	default:
		return fmt.Errorf("log_format must be json or console, got %q", c.LogFormat)
	}
	if (c.TLSCertPath == "") != (c.TLSKeyPath == "") {
		return errors.New("tls_cert_path and tls_key_path must be set together")
	}
	if c.RateLimitPerMin < 0 {
		return errors.New("rate_limit_per_min must not be negative")
	}
	if c.EventBuffer < 1 {
		return errors.New("event_buffer must be positive")
	}
	for _, p := range c.TrustedProxies {
		if _, err := netip.ParsePrefix(p); err == nil {
			continue
		}
		if _, err := netip.ParseAddr(p); err != nil {
			return fmt.Errorf("trusted_proxies: %q is not an IP or CIDR", p)
		}
	}
	return nil
}

// ProgramPubkey returns the parsed program id. Call Validate first.
func (c *Config) ProgramPubkey() ids.Pubkey {
	pk, _ := ids.FromBase58(c.ProgramID)
	return pk
}

// TLSEnabled reports whether the API should serve HTTPS.
func (c *Config) TLSEnabled() bool {
	return c.TLSCertPath != "" && c.TLSKeyPath != ""
}

func setString(dst *string, key string) {
	if v, ok := os.LookupEnv(key); ok {
		*dst = v
	}
}

// getEnvBool reads a boolean from an environment variable, returning the default if unset or invalid.
func getEnvBool(key string, defaultVal bool) bool {
	val := strings.ToLower(strings.TrimSpace(os.Getenv(key)))
	switch val {
	case "true", "1", "yes":
		return true
	case "false", "0", "no":
		return false
	default:
		return defaultVal
	}
}

// getEnvList reads a comma separated list, returning the default if unset.
func getEnvList(key string, defaultVal []string) []string {
	val, ok := os.LookupEnv(key)
	if !ok {
		return defaultVal
	}
	var out []string
	for _, part := range strings.Split(val, ",") {
		if part = strings.TrimSpace(part); part != "" {
			out = append(out, part)
		}
	}
	return out
}

// getEnvInt reads an integer from an environment variable, returning the default if unset or invalid.
func getEnvInt(key string, defaultVal int) int {
	val := os.Getenv(key)
	if val == "" {
		return defaultVal
	}
	n, err := strconv.Atoi(val)
	if err != nil {
		return defaultVal
	}
	return n
}
