package config

import (
	"fmt"
	"os"
	"sort"
	"strings"

	"github.com/pelletier/go-toml/v2"

	"quantity-sync-service/internal/models"
)

// StoreConfig is one [stores.<id>] table of the store registry
type StoreConfig struct {
	ID                string `toml:"-" json:"id"`
	Title             string `toml:"TITLE" json:"title"`
	StoreName         string `toml:"STORE_NAME" json:"storeName"`
	APIVersion        string `toml:"API_VERSION" json:"apiVersion"`
	AccessToken       string `toml:"ACCESS_TOKEN" json:"-"`
	AccessTokenSecret string `toml:"ACCESS_TOKEN_SECRET" json:"-"`
}

// Context returns the store identity passed through the pipeline
func (s StoreConfig) Context() models.StoreContext {
	return models.StoreContext{ID: s.ID, Name: s.StoreName}
}

// ShopDomain returns the myshopify domain of the store
func (s StoreConfig) ShopDomain() string {
	if strings.Contains(s.StoreName, ".") {
		return s.StoreName
	}
	return s.StoreName + ".myshopify.com"
}

type storesFile struct {
	Stores map[string]StoreConfig `toml:"stores"`
}

// StoreRegistry holds the configured stores keyed by ID
type StoreRegistry struct {
	stores map[string]StoreConfig
}

// LoadStores reads the store registry from a TOML file
func LoadStores(path, defaultAPIVersion string) (*StoreRegistry, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read stores config %s: %w", path, err)
	}
	return ParseStores(data, defaultAPIVersion)
}

// ParseStores decodes a store registry. Stores without API_VERSION get
// defaultAPIVersion.
func ParseStores(data []byte, defaultAPIVersion string) (*StoreRegistry, error) {
	var file storesFile
	if err := toml.Unmarshal(data, &file); err != nil {
		return nil, fmt.Errorf("failed to parse stores config: %w", err)
	}

	registry := &StoreRegistry{stores: make(map[string]StoreConfig, len(file.Stores))}
	for id, store := range file.Stores {
		if store.StoreName == "" {
			return nil, fmt.Errorf("store %s: STORE_NAME is required", id)
		}
		if store.AccessToken == "" && store.AccessTokenSecret == "" {
			return nil, fmt.Errorf("store %s: ACCESS_TOKEN or ACCESS_TOKEN_SECRET is required", id)
		}
		store.ID = id
		if store.Title == "" {
			store.Title = titleFromName(store.StoreName)
		}
		if store.APIVersion == "" {
			store.APIVersion = defaultAPIVersion
		}
		registry.stores[id] = store
	}
	return registry, nil
}

// NewStoreRegistry builds a registry from already decoded stores
func NewStoreRegistry(stores ...StoreConfig) *StoreRegistry {
	registry := &StoreRegistry{stores: make(map[string]StoreConfig, len(stores))}
	for _, s := range stores {
		registry.stores[s.ID] = s
	}
	return registry
}

// Get returns the store with the given ID
func (r *StoreRegistry) Get(id string) (StoreConfig, bool) {
	store, ok := r.stores[id]
	return store, ok
}

// List returns every store ordered by ID
func (r *StoreRegistry) List() []StoreConfig {
	out := make([]StoreConfig, 0, len(r.stores))
	for _, s := range r.stores {
		out = append(out, s)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out
}

// titleFromName turns "af-murphy-shop" into "Murphy Shop"
func titleFromName(name string) string {
	name = strings.TrimPrefix(name, "af-")
	words := strings.Fields(strings.ReplaceAll(name, "-", " "))
	for i, w := range words {
		words[i] = strings.ToUpper(w[:1]) + w[1:]
	}
	return strings.Join(words, " ")
}
