package secrets

import (
	"context"
	"errors"
	"fmt"

	"quantity-sync-service/internal/config"
)

// ErrNoSecretManager is returned when a store token lives in Secret Manager
// but no manager is configured
var ErrNoSecretManager = errors.New("store token requires secret manager but GCP_PROJECT_ID is not set")

// TokenResolver returns the Admin API access token of a store
type TokenResolver struct {
	manager *Manager
}

// NewTokenResolver creates a resolver. manager may be nil when every store
// carries its token inline.
func NewTokenResolver(manager *Manager) *TokenResolver {
	return &TokenResolver{manager: manager}
}

// ResolveToken prefers ACCESS_TOKEN and falls back to ACCESS_TOKEN_SECRET
func (r *TokenResolver) ResolveToken(ctx context.Context, store config.StoreConfig) (string, error) {
	if store.AccessToken != "" {
		return store.AccessToken, nil
	}
	if store.AccessTokenSecret == "" {
		return "", fmt.Errorf("store %s has no access token configured", store.ID)
	}
	if r.manager == nil {
		return "", ErrNoSecretManager
	}
	token, err := r.manager.GetSecret(ctx, store.AccessTokenSecret)
	if err != nil {
		return "", err
	}
	if token == "" {
		return "", fmt.Errorf("store %s: secret %s is empty", store.ID, store.AccessTokenSecret)
	}
	return token, nil
}
