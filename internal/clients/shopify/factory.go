package shopify

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/sirupsen/logrus"

	"quantity-sync-service/internal/clients"
	"quantity-sync-service/internal/config"
	"quantity-sync-service/internal/models"
)

// TokenResolver returns the access token of a configured store
type TokenResolver interface {
	ResolveToken(ctx context.Context, store config.StoreConfig) (string, error)
}

// FactoryOptions holds settings shared by every store client
type FactoryOptions struct {
	RateLimit  int
	Timeout    time.Duration
	MaxRetries int
	RetryDelay time.Duration
}

// Factory builds one Client per store and caches it by store ID
type Factory struct {
	registry *config.StoreRegistry
	tokens   TokenResolver
	opts     FactoryOptions
	log      *logrus.Entry

	mu      sync.Mutex
	clients map[string]*Client
}

var _ clients.GatewayProvider = (*Factory)(nil)

// NewFactory creates a new client factory
func NewFactory(registry *config.StoreRegistry, tokens TokenResolver, opts FactoryOptions, log *logrus.Entry) *Factory {
	return &Factory{
		registry: registry,
		tokens:   tokens,
		opts:     opts,
		log:      log,
		clients:  make(map[string]*Client),
	}
}

// ForStore returns the cached client for a store, creating it on first use
func (f *Factory) ForStore(ctx context.Context, store models.StoreContext) (clients.Gateway, error) {
	f.mu.Lock()
	defer f.mu.Unlock()

	if client, ok := f.clients[store.ID]; ok {
		return client, nil
	}

	cfg, ok := f.registry.Get(store.ID)
	if !ok {
		return nil, fmt.Errorf("%w: %s", models.ErrUnknownStore, store.ID)
	}
	token, err := f.tokens.ResolveToken(ctx, cfg)
	if err != nil {
		return nil, fmt.Errorf("failed to resolve token for store %s: %w", store.ID, err)
	}

	log := f.log.WithField("store", store.ID)
	retry := clients.DefaultRetryConfig()
	retry.MaxRetries = f.opts.MaxRetries
	if f.opts.RetryDelay > 0 {
		retry.BaseDelay = f.opts.RetryDelay
	}
	retry.OnRetry = func(operation string, attempt int, wait time.Duration, err error) {
		log.WithError(err).WithFields(logrus.Fields{
			"operation": operation,
			"attempt":   attempt,
			"wait":      wait.String(),
		}).Warn("Retrying catalog call")
	}

	client, err := NewClient(Options{
		ShopDomain:  cfg.ShopDomain(),
		APIVersion:  cfg.APIVersion,
		AccessToken: token,
		RateLimit:   f.opts.RateLimit,
		Timeout:     f.opts.Timeout,
		Retry:       retry,
		Logger:      log,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to create client for store %s: %w", store.ID, err)
	}

	f.clients[store.ID] = client
	return client, nil
}
