package services

import (
	"context"
	"encoding/json"
	"io"
	"strings"
	"sync"

	"github.com/sirupsen/logrus"

	"quantity-sync-service/internal/clients"
	"quantity-sync-service/internal/models"
)

func testLogger() *logrus.Entry {
	logger := logrus.New()
	logger.SetOutput(io.Discard)
	return logrus.NewEntry(logger)
}

// fakeGateway is an in-memory catalog that applies submitted deltas
type fakeGateway struct {
	mu sync.Mutex

	variants   map[string][]models.CatalogVariant
	lookupErr  map[string]error
	submitFn   func(batch models.Batch) (json.RawMessage, error)
	holdFn     func(ctx context.Context, batch models.Batch) error
	publishErr error

	lookups   []string
	submitted []models.Batch
	published map[string][]string
}

func newFakeGateway(variants ...models.CatalogVariant) *fakeGateway {
	g := &fakeGateway{
		variants:  make(map[string][]models.CatalogVariant),
		lookupErr: make(map[string]error),
		published: make(map[string][]string),
	}
	for _, v := range variants {
		g.variants[v.SKU] = append(g.variants[v.SKU], v)
	}
	return g
}

func (g *fakeGateway) LookupVariants(_ context.Context, _ models.StoreContext, sku string) ([]models.CatalogVariant, error) {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.lookups = append(g.lookups, sku)
	if err := g.lookupErr[sku]; err != nil {
		return nil, err
	}
	out := make([]models.CatalogVariant, len(g.variants[sku]))
	for i, v := range g.variants[sku] {
		v.InventoryLevels = append([]models.InventoryLevel(nil), v.InventoryLevels...)
		out[i] = v
	}
	return out, nil
}

func (g *fakeGateway) SubmitBatch(ctx context.Context, _ models.StoreContext, batch models.Batch) (json.RawMessage, error) {
	// holdFn runs unlocked so a stalled batch does not block its siblings
	if g.holdFn != nil {
		if err := g.holdFn(ctx, batch); err != nil {
			return nil, err
		}
	}
	g.mu.Lock()
	defer g.mu.Unlock()
	g.submitted = append(g.submitted, batch)
	if g.submitFn != nil {
		return g.submitFn(batch)
	}
	if len(batch.Input.Changes) == 0 {
		return clients.EmptyAdjustPayload, nil
	}

	changes := make([]map[string]interface{}, 0, len(batch.Input.Changes))
	for _, ch := range batch.Input.Changes {
		v, level := g.applyLocked(ch)
		changes = append(changes, map[string]interface{}{
			"name":     "available",
			"delta":    ch.Delta,
			"location": map[string]interface{}{"id": level.LocationID, "name": level.LocationName},
			"item": map[string]interface{}{
				"id": v.InventoryItemID,
				"inventoryLevels": map[string]interface{}{
					"nodes": []map[string]interface{}{{
						"location":   map[string]interface{}{"id": level.LocationID, "name": level.LocationName},
						"quantities": []map[string]interface{}{{"name": "available", "quantity": level.Available}},
					}},
				},
				"variant": map[string]interface{}{
					"sku":         v.SKU,
					"displayName": v.DisplayName,
					"product":     map[string]interface{}{"id": v.ProductID, "handle": v.ProductHandle},
				},
			},
		})
	}
	return json.Marshal(map[string]interface{}{
		"inventoryAdjustQuantities": map[string]interface{}{
			"inventoryAdjustmentGroup": map[string]interface{}{
				"reason":  batch.Input.Reason,
				"changes": changes,
			},
			"userErrors": []interface{}{},
		},
	})
}

// applyLocked adds a change to the stored level and returns the new state
func (g *fakeGateway) applyLocked(ch models.InventoryChangeInput) (models.CatalogVariant, models.InventoryLevel) {
	for sku := range g.variants {
		for vi := range g.variants[sku] {
			v := &g.variants[sku][vi]
			if v.InventoryItemID != ch.InventoryItemID {
				continue
			}
			for li := range v.InventoryLevels {
				if models.ShortID(v.InventoryLevels[li].LocationID) == models.ShortID(ch.LocationID) {
					v.InventoryLevels[li].Available += ch.Delta
					return *v, v.InventoryLevels[li]
				}
			}
		}
	}
	return models.CatalogVariant{InventoryItemID: ch.InventoryItemID}, models.InventoryLevel{LocationID: ch.LocationID}
}

func (g *fakeGateway) PublishToChannels(_ context.Context, _ models.StoreContext, productID string, channelIDs []string) error {
	g.mu.Lock()
	defer g.mu.Unlock()
	if g.publishErr != nil {
		return g.publishErr
	}
	g.published[productID] = append(g.published[productID], channelIDs...)
	return nil
}

func (g *fakeGateway) available(sku, locationID string) int {
	g.mu.Lock()
	defer g.mu.Unlock()
	for _, v := range g.variants[sku] {
		if level, ok := v.Level(locationID); ok {
			return level.Available
		}
	}
	return 0
}

type fakeProvider struct {
	gateway clients.Gateway
	err     error
}

func (p fakeProvider) ForStore(context.Context, models.StoreContext) (clients.Gateway, error) {
	return p.gateway, p.err
}

// memFiles is an in-memory FileSource
type memFiles map[string]string

func (m memFiles) Open(name string) (io.ReadCloser, error) {
	content, ok := m[name]
	if !ok {
		return nil, models.ErrFileNotFound
	}
	return io.NopCloser(strings.NewReader(content)), nil
}

// variant builds a catalog variant with levels given as location/available pairs
func variant(sku, item string, levels ...models.InventoryLevel) models.CatalogVariant {
	return models.CatalogVariant{
		VariantID:       "gid://shopify/ProductVariant/" + item,
		InventoryItemID: "gid://shopify/InventoryItem/" + item,
		ProductID:       "gid://shopify/Product/p" + item,
		ProductHandle:   strings.ToLower(sku),
		DisplayName:     sku,
		SKU:             sku,
		InventoryLevels: levels,
	}
}

func level(id string, available int) models.InventoryLevel {
	return models.InventoryLevel{
		LocationID:   "gid://shopify/Location/" + id,
		LocationName: "Location " + id,
		Available:    available,
	}
}

func resolved(rec models.SourceRecord, v models.CatalogVariant) ResolvedRecord {
	return ResolvedRecord{Record: rec, Variant: v}
}

func record(row int, sku, qty, location string) models.SourceRecord {
	return models.SourceRecord{Row: row, SKU: sku, Quantity: qty, LocationID: location}
}
