package secrets

import (
	"context"
	"fmt"
	"strings"
	"sync"
	"time"

	secretmanager "cloud.google.com/go/secretmanager/apiv1"
	secretmanagerpb "cloud.google.com/go/secretmanager/apiv1/secretmanagerpb"
)

// Source reads the latest payload of a secret
type Source interface {
	AccessSecret(ctx context.Context, name string) ([]byte, error)
}

// gcpSource reads secrets from Google Cloud Secret Manager
type gcpSource struct {
	client *secretmanager.Client
}

func (s *gcpSource) AccessSecret(ctx context.Context, name string) ([]byte, error) {
	result, err := s.client.AccessSecretVersion(ctx, &secretmanagerpb.AccessSecretVersionRequest{
		Name: name + "/versions/latest",
	})
	if err != nil {
		return nil, err
	}
	return result.Payload.Data, nil
}

// cacheEntry represents a cached secret with expiration
type cacheEntry struct {
	value     string
	expiresAt time.Time
}

// Manager resolves secrets through a Source with a TTL cache
type Manager struct {
	source    Source
	closer    func() error
	projectID string
	cache     map[string]*cacheEntry
	cacheMu   sync.RWMutex
	cacheTTL  time.Duration
}

// NewGCPSecretManager creates a Manager backed by GCP Secret Manager
func NewGCPSecretManager(ctx context.Context, projectID string) (*Manager, error) {
	client, err := secretmanager.NewClient(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to create secret manager client: %w", err)
	}

	m := NewManager(&gcpSource{client: client}, projectID, 5*time.Minute)
	m.closer = client.Close
	return m, nil
}

// NewManager creates a Manager over any Source
func NewManager(source Source, projectID string, cacheTTL time.Duration) *Manager {
	return &Manager{
		source:    source,
		projectID: projectID,
		cache:     make(map[string]*cacheEntry),
		cacheTTL:  cacheTTL,
	}
}

// Close closes the underlying client
func (m *Manager) Close() error {
	if m.closer != nil {
		return m.closer()
	}
	return nil
}

// BuildSecretName expands a bare secret ID into its full resource name.
// Full names (projects/...) are returned unchanged.
func (m *Manager) BuildSecretName(secretID string) string {
	if strings.HasPrefix(secretID, "projects/") {
		return secretID
	}
	return fmt.Sprintf("projects/%s/secrets/%s", m.projectID, sanitizeSecretID(secretID))
}

// GetSecret retrieves a secret value, serving from cache when fresh
func (m *Manager) GetSecret(ctx context.Context, secretID string) (string, error) {
	name := m.BuildSecretName(secretID)

	m.cacheMu.RLock()
	if entry, ok := m.cache[name]; ok && time.Now().Before(entry.expiresAt) {
		m.cacheMu.RUnlock()
		return entry.value, nil
	}
	m.cacheMu.RUnlock()

	data, err := m.source.AccessSecret(ctx, name)
	if err != nil {
		return "", fmt.Errorf("failed to access secret %s: %w", name, err)
	}
	value := strings.TrimSpace(string(data))

	m.cacheMu.Lock()
	m.cache[name] = &cacheEntry{value: value, expiresAt: time.Now().Add(m.cacheTTL)}
	m.cacheMu.Unlock()

	return value, nil
}

// InvalidateCache removes a secret from the cache
func (m *Manager) InvalidateCache(secretID string) {
	m.cacheMu.Lock()
	delete(m.cache, m.BuildSecretName(secretID))
	m.cacheMu.Unlock()
}

// sanitizeSecretID replaces characters GCP does not allow in secret IDs
func sanitizeSecretID(input string) string {
	var result strings.Builder
	for _, r := range input {
		if (r >= 'a' && r <= 'z') || (r >= 'A' && r <= 'Z') || (r >= '0' && r <= '9') || r == '-' || r == '_' {
			result.WriteRune(r)
		} else {
			result.WriteRune('-')
		}
	}
	return result.String()
}
