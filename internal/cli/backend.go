package cli

import (
	"context"
	"fmt"
	"os"

	"github.com/charmbracelet/log"

	"github.com/idilsaglam/tada/internal/config"
	"github.com/idilsaglam/tada/internal/logging"
	"github.com/idilsaglam/tada/internal/store"
	"github.com/idilsaglam/tada/internal/store/fsstore"
	"github.com/idilsaglam/tada/internal/store/jsonstore"
	"github.com/idilsaglam/tada/internal/store/redisstore"
	"github.com/idilsaglam/tada/internal/ui"
)

// openStore is the composition root: it builds the one store this process
// uses, which is then injected into whatever needs it.
func openStore(ctx context.Context, cfg *config.Config) (store.Store, error) {
	switch cfg.Backend {
	case config.BackendFirestore:
		st, err := fsstore.Acquire(ctx, cfg.Firebase)
		if err != nil {
			return nil, err
		}
		return st, nil
	case config.BackendRedis:
		st, err := redisstore.New(ctx, redisstore.Options{
			Addr:     cfg.Redis.Addr,
			Password: cfg.Redis.Password,
			DB:       cfg.Redis.DB,
			Prefix:   cfg.Redis.Prefix,
		})
		if err != nil {
			return nil, err
		}
		return st, nil
	case config.BackendJSON:
		st, err := jsonstore.Open(cfg.JSONPath)
		if err != nil {
			return nil, err
		}
		return st, nil
	case config.BackendMemory:
		return jsonstore.NewMemory(), nil
	}
	return nil, fmt.Errorf("%w: %q", config.ErrUnknownBackend, cfg.Backend)
}

// withStore validates the config, opens the store with a request timeout and
// runs fn. Configuration errors exit with 2.
func withStore(ctx context.Context, cfg *config.Config, fn func(context.Context, store.Store, *log.Logger) int) int {
	logger := logging.NewFromConfig(os.Stderr, cfg.LogLevel, cfg.LogFormat)
	if err := cfg.Validate(); err != nil {
		ui.Fail(fatalMessage(err))
		return 2
	}
	ctx, cancel := context.WithTimeout(ctx, requestTimeout)
	defer cancel()
	st, err := openStore(ctx, cfg)
	if err != nil {
		logger.Error("open store", "backend", cfg.Backend, "err", err)
		ui.Fail("open store: " + err.Error())
		return 1
	}
	defer st.Close()
	return fn(ctx, st, logger)
}
