package cmd

import (
	"fmt"
	"log/slog"
	"os"

	"github.com/spf13/cobra"

	"github.com/jmcleod/healthseal/internal/config"
)

// settings holds the persistent flag values. Defaults come from the
// environment and the nearest .env file.
type settings struct {
	dataDir     string
	store       string
	postgresDSN string
	scheme      string
	passphrase  string
	kdfProfile  string
	keeperURL   string
	logLevel    string
	metricsFile string
	metricsNS   string
}

var flags settings

var rootCmd = &cobra.Command{
	Use:   "healthseal",
	Short: "healthseal encrypts health records at rest",
	Long: `Field-level authenticated encryption for locally stored health data.
Conditions, medications, supplements and allergies are encrypted with a data
key kept in a passphrase-protected keychain.`,
	SilenceUsage:  true,
	SilenceErrors: true,
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		return flags.config().Validate()
	},
}

// Execute runs the command tree and exits non-zero on failure.
func Execute() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "error: %v\n", err)
		os.Exit(1)
	}
}

func (s settings) config() *config.Config {
	return &config.Config{
		DataDir:          s.dataDir,
		Store:            s.store,
		PostgresDSN:      s.postgresDSN,
		Scheme:           s.scheme,
		Passphrase:       s.passphrase,
		KDFProfile:       s.kdfProfile,
		KeeperURL:        s.keeperURL,
		LogLevel:         s.logLevel,
		MetricsFile:      s.metricsFile,
		MetricsNamespace: s.metricsNS,
	}
}

func newLogger(level string) *slog.Logger {
	var l slog.Level
	switch level {
	case "debug":
		l = slog.LevelDebug
	case "warn":
		l = slog.LevelWarn
	case "error":
		l = slog.LevelError
	default:
		l = slog.LevelInfo
	}
	return slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: l}))
}

func init() {
	cfg := config.Load()
	pf := rootCmd.PersistentFlags()
	pf.StringVar(&flags.dataDir, "data-dir", cfg.DataDir, "Directory for the keychain and field database")
	pf.StringVar(&flags.store, "store", cfg.Store, "Field store backend: bbolt, badger, memory or postgres")
	pf.StringVar(&flags.postgresDSN, "postgres-dsn", cfg.PostgresDSN, "PostgreSQL DSN for the postgres store")
	pf.StringVar(&flags.scheme, "scheme", cfg.Scheme, "Envelope scheme for new writes: v1, aesgcm or chacha20")
	pf.StringVar(&flags.passphrase, "passphrase", cfg.Passphrase, "Keychain passphrase (prompted when empty)")
	pf.StringVar(&flags.kdfProfile, "kdf-profile", cfg.KDFProfile, "Argon2id profile for a new keychain: interactive, moderate or sensitive")
	pf.StringVar(&flags.keeperURL, "keeper-url", cfg.KeeperURL, "Seal keychain values with this gocloud.dev secrets keeper")
	pf.StringVar(&flags.logLevel, "log-level", cfg.LogLevel, "Log level: debug, info, warn or error")
	pf.StringVar(&flags.metricsFile, "metrics-file", cfg.MetricsFile, "Write Prometheus metrics to this file on exit")
	pf.StringVar(&flags.metricsNS, "metrics-namespace", cfg.MetricsNamespace, "Prefix for metric names")
}
