package cmd

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"

	"golang.org/x/term"

	"github.com/jmcleod/healthseal/crypto"
	"github.com/jmcleod/healthseal/internal/config"
	"github.com/jmcleod/healthseal/internal/metrics"
	"github.com/jmcleod/healthseal/internal/util"
	"github.com/jmcleod/healthseal/key"
	"github.com/jmcleod/healthseal/keychain"
	kcbbolt "github.com/jmcleod/healthseal/keychain/bbolt"
	"github.com/jmcleod/healthseal/keychain/keeper"
	kcmemory "github.com/jmcleod/healthseal/keychain/memory"
	"github.com/jmcleod/healthseal/record"
	"github.com/jmcleod/healthseal/storage"
	badgerstorage "github.com/jmcleod/healthseal/storage/badger"
	bboltstorage "github.com/jmcleod/healthseal/storage/bbolt"
	memorystorage "github.com/jmcleod/healthseal/storage/memory"
	pgstorage "github.com/jmcleod/healthseal/storage/postgres"
)

// app is the set of components a command runs against.
type app struct {
	cfg     *config.Config
	logger  *slog.Logger
	keys    *key.Store
	cipher  *crypto.Cipher
	repo    storage.Repository
	metrics *metrics.Provider
	closers []func() error
}

// openApp unlocks the keychain and builds the cipher. The field store is
// opened only when withStore is set.
func openApp(ctx context.Context, withStore bool) (*app, error) {
	cfg := flags.config()
	a := &app{cfg: cfg, logger: newLogger(cfg.LogLevel)}
	ok := false
	defer func() {
		if !ok {
			a.close()
		}
	}()

	scheme, err := crypto.ParseScheme(cfg.Scheme)
	if err != nil {
		return nil, err
	}
	if cfg.Store != config.StoreMemory && cfg.Store != config.StorePostgres {
		if err := os.MkdirAll(cfg.DataDir, 0o700); err != nil {
			return nil, fmt.Errorf("failed to create data directory: %w", err)
		}
	}

	kc, err := a.openKeychain(ctx)
	if err != nil {
		return nil, err
	}
	a.keys = key.NewStore(kc, key.WithLogger(a.logger))

	recorder, err := a.openMetrics()
	if err != nil {
		return nil, err
	}
	a.cipher = crypto.New(a.keys,
		crypto.WithScheme(scheme),
		crypto.WithLogger(a.logger),
		crypto.WithRecorder(recorder),
	)

	if withStore {
		if a.repo, err = a.openStore(ctx); err != nil {
			return nil, err
		}
	}
	ok = true
	return a, nil
}

func (a *app) openKeychain(ctx context.Context) (keychain.Keychain, error) {
	var kc keychain.Keychain
	if a.cfg.Store == config.StoreMemory {
		kc = kcmemory.New()
	} else {
		params, err := util.Argon2idProfile(a.cfg.KDFProfile)
		if err != nil {
			return nil, err
		}
		fkc, err := kcbbolt.NewFromFile(a.cfg.KeychainPath(), kcbbolt.WithKDFParams(params))
		if err != nil {
			return nil, fmt.Errorf("failed to open keychain: %w", err)
		}
		a.closers = append(a.closers, fkc.Close)

		passphrase, err := a.passphrase()
		if err != nil {
			return nil, err
		}
		if err := fkc.Unlock(passphrase); err != nil {
			if errors.Is(err, keychain.ErrBadPassphrase) {
				return nil, errors.New("wrong keychain passphrase")
			}
			return nil, fmt.Errorf("failed to unlock keychain: %w", err)
		}
		kc = fkc
	}

	if a.cfg.KeeperURL != "" {
		kk, err := keeper.Open(ctx, kc, a.cfg.KeeperURL)
		if err != nil {
			return nil, err
		}
		a.closers = append(a.closers, kk.Close)
		kc = kk
	}
	return kc, nil
}

func (a *app) passphrase() (string, error) {
	if a.cfg.Passphrase != "" {
		return a.cfg.Passphrase, nil
	}
	fd := int(os.Stdin.Fd())
	if !term.IsTerminal(fd) {
		return "", errors.New("keychain passphrase required: set HEALTHSEAL_PASSPHRASE or --passphrase")
	}
	fmt.Fprint(os.Stderr, "Keychain passphrase: ")
	pw, err := term.ReadPassword(fd)
	fmt.Fprintln(os.Stderr)
	if err != nil {
		return "", fmt.Errorf("reading passphrase: %w", err)
	}
	if len(pw) == 0 {
		return "", errors.New("empty passphrase")
	}
	return string(pw), nil
}

func (a *app) openMetrics() (crypto.Recorder, error) {
	var next crypto.Recorder = metrics.NoOp{}
	if a.cfg.MetricsFile != "" {
		provider, err := metrics.NewProvider()
		if err != nil {
			return nil, err
		}
		cm, err := metrics.NewCryptoMetrics(provider.MeterProvider(), a.cfg.MetricsNamespace)
		if err != nil {
			return nil, err
		}
		a.metrics = provider
		next = cm
	}
	return metrics.NewRejectionMonitor(next, 0, 0, func(e metrics.AlertEvent) {
		a.logger.Warn(e.Message,
			slog.Int("count", e.Count),
			slog.Int("threshold", e.Threshold),
			slog.Duration("window", e.Window))
	}), nil
}

func (a *app) openStore(ctx context.Context) (storage.Repository, error) {
	switch a.cfg.Store {
	case config.StoreMemory:
		return memorystorage.NewRepository(), nil
	case config.StoreBBolt:
		s, err := bboltstorage.NewRepositoryFromFile(a.cfg.StorePath(), nil)
		if err != nil {
			return nil, fmt.Errorf("failed to open field storage: %w", err)
		}
		a.closers = append(a.closers, s.Close)
		return s, nil
	case config.StoreBadger:
		s, err := badgerstorage.Open(a.cfg.StorePath(), a.logger)
		if err != nil {
			return nil, fmt.Errorf("failed to open field storage: %w", err)
		}
		a.closers = append(a.closers, s.Close)
		return s, nil
	case config.StorePostgres:
		s, err := pgstorage.NewRepositoryFromDSN(ctx, a.cfg.PostgresDSN)
		if err != nil {
			return nil, err
		}
		a.closers = append(a.closers, func() error { s.Close(); return nil })
		return s, nil
	default:
		return nil, fmt.Errorf("unknown store %q", a.cfg.Store)
	}
}

func (a *app) records() *record.Store {
	return record.NewStore(a.repo, a.cipher, record.WithLogger(a.logger))
}

// close writes the metrics file and releases everything in reverse order.
func (a *app) close() {
	if a.metrics != nil {
		if err := a.metrics.WriteTextfile(a.cfg.MetricsFile); err != nil {
			a.logger.Error("writing metrics failed", slog.Any("error", err))
		}
		_ = a.metrics.Shutdown(context.Background())
	}
	for i := len(a.closers) - 1; i >= 0; i-- {
		if err := a.closers[i](); err != nil {
			a.logger.Warn("close failed", slog.Any("error", err))
		}
	}
	a.closers = nil
}
