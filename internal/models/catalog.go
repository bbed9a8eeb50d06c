package models

import "strings"

// StoreContext identifies the catalog a call operates on.
// It is passed explicitly through every call and is part of every lookup key.
type StoreContext struct {
	ID   string `json:"id"`
	Name string `json:"name"`
}

// CatalogVariant is a snapshot of one variant and its inventory levels
type CatalogVariant struct {
	VariantID       string           `json:"variantId"`
	InventoryItemID string           `json:"inventoryItemId"`
	ProductID       string           `json:"productId"`
	ProductHandle   string           `json:"productHandle"`
	DisplayName     string           `json:"displayName"`
	SKU             string           `json:"sku"`
	InventoryLevels []InventoryLevel `json:"inventoryLevels"`
}

// Level returns the inventory level for a location, matching either the
// full global ID or its trailing numeric part
func (v *CatalogVariant) Level(locationID string) (InventoryLevel, bool) {
	want := ShortID(locationID)
	for _, level := range v.InventoryLevels {
		if ShortID(level.LocationID) == want {
			return level, true
		}
	}
	return InventoryLevel{}, false
}

// InventoryLevel is the available quantity of a variant at one location
type InventoryLevel struct {
	LocationID   string `json:"locationId"`
	LocationName string `json:"locationName"`
	Available    int    `json:"available"`
}

// ShortID strips a global ID prefix such as gid://shopify/Location/
func ShortID(id string) string {
	id = strings.TrimSpace(id)
	if i := strings.LastIndex(id, "/"); i >= 0 {
		return id[i+1:]
	}
	return id
}
