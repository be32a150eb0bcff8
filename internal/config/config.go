// Package config provides application configuration loaded from environment
// variables and an optional .env file.
package config

import (
	"fmt"
	"os"
	"path/filepath"

	"github.com/allisson/go-env"
	"github.com/joho/godotenv"
)

// Storage backends selectable with HEALTHSEAL_STORE.
const (
	StoreBBolt    = "bbolt"
	StoreBadger   = "badger"
	StoreMemory   = "memory"
	StorePostgres = "postgres"
)

// Config holds all application configuration.
type Config struct {
	// DataDir holds the keychain file and the embedded field database.
	DataDir string
	// Store selects the field repository backend.
	Store       string
	PostgresDSN string

	// Scheme is the envelope format new writes use (v1, aesgcm, chacha20).
	Scheme string

	// Passphrase unlocks the file keychain. When empty the CLI prompts.
	Passphrase string
	// KDFProfile selects the Argon2id cost used when a keychain is created.
	KDFProfile string
	// KeeperURL, when set, seals keychain values with a gocloud.dev secrets
	// keeper (base64key://, awskms://, gcpkms://, azurekeyvault://, hashivault://).
	KeeperURL string

	LogLevel string

	// MetricsFile receives a Prometheus text dump after each command. Empty
	// disables metrics.
	MetricsFile      string
	MetricsNamespace string
}

// Load loads configuration from environment variables.
func Load() *Config {
	loadDotEnv()

	return &Config{
		DataDir:     env.GetString("HEALTHSEAL_DATA_DIR", "./data"),
		Store:       env.GetString("HEALTHSEAL_STORE", StoreBBolt),
		PostgresDSN: env.GetString("HEALTHSEAL_POSTGRES_DSN", ""),

		Scheme: env.GetString("HEALTHSEAL_SCHEME", "v1"),

		Passphrase: env.GetString("HEALTHSEAL_PASSPHRASE", ""),
		KDFProfile: env.GetString("HEALTHSEAL_KDF_PROFILE", "moderate"),
		KeeperURL:  env.GetString("HEALTHSEAL_KEEPER_URL", ""),

		LogLevel: env.GetString("LOG_LEVEL", "info"),

		MetricsFile:      env.GetString("HEALTHSEAL_METRICS_FILE", ""),
		MetricsNamespace: env.GetString("HEALTHSEAL_METRICS_NAMESPACE", "healthseal"),
	}
}

// Validate reports the first setting that cannot work.
func (c *Config) Validate() error {
	switch c.Store {
	case StoreBBolt, StoreBadger, StoreMemory:
	case StorePostgres:
		if c.PostgresDSN == "" {
			return fmt.Errorf("HEALTHSEAL_POSTGRES_DSN is required for the %s store", StorePostgres)
		}
	default:
		return fmt.Errorf("unknown store %q", c.Store)
	}
	switch c.LogLevel {
	case "debug", "info", "warn", "error":
	default:
		return fmt.Errorf("unknown log level %q", c.LogLevel)
	}
	return nil
}

// KeychainPath is the file keychain location inside DataDir.
func (c *Config) KeychainPath() string {
	return filepath.Join(c.DataDir, "keychain.db")
}

// StorePath is the embedded field database location inside DataDir.
func (c *Config) StorePath() string {
	if c.Store == StoreBadger {
		return filepath.Join(c.DataDir, "badger")
	}
	return filepath.Join(c.DataDir, "fields.db")
}

// loadDotEnv loads the nearest .env file found walking up from the working
// directory. Existing environment variables take precedence.
func loadDotEnv() {
	cwd, err := os.Getwd()
	if err != nil {
		return
	}

	dir := cwd
	for {
		envPath := filepath.Join(dir, ".env")
		if _, err := os.Stat(envPath); err == nil {
			_ = godotenv.Load(envPath)
			return
		}

		parent := filepath.Dir(dir)
		if parent == dir {
			break
		}
		dir = parent
	}
}
