package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoadDefaults(t *testing.T) {
	for _, key := range []string{"DATABASE_URL", "DB_HOST", "SYNC_BATCH_SIZE", "SYNC_BATCH_TIMEOUT", "CORS_ALLOWED_ORIGINS"} {
		t.Setenv(key, "")
	}

	cfg := Load()
	assert.Equal(t, 250, cfg.SyncBatchSize)
	assert.Equal(t, 60*time.Second, cfg.SyncBatchTimeout)
	assert.Empty(t, cfg.DatabaseURL)
	assert.Equal(t, []string{"http://localhost:3000"}, cfg.CORSAllowedOrigins)
}

func TestLoadFromEnvironment(t *testing.T) {
	t.Setenv("DATABASE_URL", "")
	t.Setenv("DB_HOST", "db")
	t.Setenv("DB_PASSWORD", "secret")
	t.Setenv("SYNC_BATCH_SIZE", "0")
	t.Setenv("SYNC_SUBMIT_CONCURRENCY", "3")
	t.Setenv("SYNC_BATCH_TIMEOUT", "5s")
	t.Setenv("CORS_ALLOWED_ORIGINS", "https://a.example, https://b.example")
	t.Setenv("ENVIRONMENT", "production")

	cfg := Load()
	assert.Equal(t, "postgres://postgres:secret@db:5432/quantity_sync?sslmode=disable", cfg.DatabaseURL)
	assert.Equal(t, 250, cfg.SyncBatchSize, "non-positive batch size falls back to default")
	assert.Equal(t, 3, cfg.SyncSubmitConcurrency)
	assert.Equal(t, 5*time.Second, cfg.SyncBatchTimeout)
	assert.Equal(t, []string{"https://a.example", "https://b.example"}, cfg.CORSAllowedOrigins)
	assert.True(t, cfg.IsProduction())
}

const storesTOML = `
[stores]

[stores.murphy]
TITLE = "Murphy"
STORE_NAME = "af-murphy"
API_VERSION = '2025-10'
ACCESS_TOKEN = "shpat_123"

[stores.outlet]
STORE_NAME = "af-big-outlet"
ACCESS_TOKEN_SECRET = "projects/p/secrets/outlet-token"
`

func TestParseStores(t *testing.T) {
	registry, err := ParseStores([]byte(storesTOML), "2024-07")
	require.NoError(t, err)

	stores := registry.List()
	require.Len(t, stores, 2)
	assert.Equal(t, "murphy", stores[0].ID)
	assert.Equal(t, "outlet", stores[1].ID)

	murphy, ok := registry.Get("murphy")
	require.True(t, ok)
	assert.Equal(t, "2025-10", murphy.APIVersion)
	assert.Equal(t, "af-murphy.myshopify.com", murphy.ShopDomain())
	assert.Equal(t, "af-murphy", murphy.Context().Name)

	outlet, _ := registry.Get("outlet")
	assert.Equal(t, "Big Outlet", outlet.Title)
	assert.Equal(t, "2024-07", outlet.APIVersion)

	_, ok = registry.Get("missing")
	assert.False(t, ok)
}

func TestParseStoresRejectsIncompleteStores(t *testing.T) {
	_, err := ParseStores([]byte("[stores.x]\nSTORE_NAME = \"x\"\n"), "")
	assert.ErrorContains(t, err, "ACCESS_TOKEN")

	_, err = ParseStores([]byte("[stores.x]\nACCESS_TOKEN = \"t\"\n"), "")
	assert.ErrorContains(t, err, "STORE_NAME")

	_, err = ParseStores([]byte("not toml ["), "")
	assert.Error(t, err)
}

func TestLoadStoresFromFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config_stores.toml")
	require.NoError(t, os.WriteFile(path, []byte(storesTOML), 0o600))

	registry, err := LoadStores(path, "2025-10")
	require.NoError(t, err)
	assert.Len(t, registry.List(), 2)

	_, err = LoadStores(filepath.Join(t.TempDir(), "nope.toml"), "")
	assert.Error(t, err)
}
