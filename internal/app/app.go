// Package app wires configuration into a running ledger: storage, event
// publishing, encryption and rate limiting. The binaries under cmd/ share it.
package app

import (
	"context"
	"errors"
	"fmt"
	"time"

	"saldo/internal/auth"
	"saldo/internal/backend"
	"saldo/internal/cache"
	"saldo/internal/config"
	"saldo/internal/crypto"
	"saldo/internal/ledger"
	"saldo/internal/log"
	"saldo/internal/middleware/ratelimit"
)

// CacheSweepInterval is how often expired identity cache entries are dropped.
const CacheSweepInterval = 10 * time.Minute

type App struct {
	Config *config.Config
	Logger *log.Logger

	Store  *backend.StoreResult
	Events *backend.EventsResult
	Ledger *ledger.Service

	// Caches collects caches that need periodic expiry.
	Caches *cache.Manager

	limiter *ratelimit.Limiter
}

// NewLogger builds the process logger from LOG_LEVEL and LOG_FORMAT.
func NewLogger(cfg *config.Config) *log.Logger {
	lc := log.DefaultConfig()
	lc.Level = log.ParseLevel(cfg.LogLevel)
	lc.Format = cfg.LogFormat
	return log.New(lc)
}

// New opens the configured backends and builds the ledger service.
func New(ctx context.Context, cfg *config.Config, logger *log.Logger) (*App, error) {
	bcfg, err := backend.FromAppConfig(cfg)
	if err != nil {
		return nil, fmt.Errorf("backend config: %w", err)
	}

	factory := backend.NewFactory(logger)
	store, err := factory.CreateStore(ctx, bcfg)
	if err != nil {
		return nil, err
	}
	evts, err := factory.CreatePublisher(ctx, bcfg)
	if err != nil {
		_ = store.Cleanup()
		return nil, err
	}

	var sealer ledger.Sealer = crypto.Nop{}
	if cfg.DataEncryptionKey != "" {
		s, err := crypto.NewAESGCM(cfg.DataEncryptionKey)
		if err != nil {
			_ = evts.Cleanup()
			_ = store.Cleanup()
			return nil, err
		}
		sealer = s
		logger.Info("Description sealing enabled")
	}

	limiter := ratelimit.NewLimiter(ratelimit.Config{
		RequestsPerMinute: cfg.WriteLimitPerMinute,
		CleanupInterval:   ratelimit.DefaultConfig().CleanupInterval,
	})

	svc := ledger.New(store.Store, ledger.Options{
		MaxRetries: cfg.MaxCommitRetries,
		Limiter:    limiter,
		Sealer:     sealer,
		Publisher:  evts.Publisher,
		Logger:     logger,
	})

	return &App{
		Config: cfg,
		Logger: logger,
		Store:  store,
		Events: evts,
		Ledger: svc,
		Caches: cache.NewManager(func(removed int) {
			logger.Debug("Cache cleanup completed", "entries_removed", removed)
		}),
		limiter: limiter,
	}, nil
}

// Verifier builds the identity verifier chain from configuration. Static
// tokens are tried before Google ID tokens.
func (a *App) Verifier() (auth.Verifier, error) {
	var chain auth.Chain
	if a.Config.AuthStaticTokens != "" {
		static, err := auth.ParseStaticTokens(a.Config.AuthStaticTokens)
		if err != nil {
			return nil, err
		}
		chain = append(chain, static)
		a.Logger.Warn("Static bearer tokens enabled", "count", static.Len())
	}
	if a.Config.GoogleClientID != "" {
		google := auth.NewGoogleVerifier(a.Config.GoogleClientID, nil)
		a.Caches.Register(google.Cache())
		chain = append(chain, google)
		a.Logger.Info("Google ID token verification enabled")
	}
	if len(chain) == 0 {
		return nil, errors.New("no identity verifier configured")
	}
	if len(chain) == 1 {
		return chain[0], nil
	}
	return chain, nil
}

// Close stops the limiter, then releases the publisher and the store.
func (a *App) Close() error {
	a.limiter.Stop()
	return errors.Join(a.Events.Cleanup(), a.Store.Cleanup())
}
