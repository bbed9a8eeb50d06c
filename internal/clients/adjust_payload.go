package clients

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"

	"quantity-sync-service/internal/models"
)

// Location is a location reference inside GraphQL payloads
type Location struct {
	ID   string `json:"id"`
	Name string `json:"name"`
}

// NamedQuantity is one entry of an inventory level quantities list
type NamedQuantity struct {
	Name     string `json:"name"`
	Quantity int    `json:"quantity"`
}

// LevelNode is one inventory level inside GraphQL payloads
type LevelNode struct {
	Location   Location        `json:"location"`
	Quantities []NamedQuantity `json:"quantities"`
}

// Available returns the "available" quantity of the level
func (l LevelNode) Available() int {
	for _, q := range l.Quantities {
		if q.Name == "available" {
			return q.Quantity
		}
	}
	return 0
}

// AdjustmentChange is one decoded entry of inventoryAdjustmentGroup.changes
type AdjustmentChange struct {
	Name     string   `json:"name"`
	Delta    int      `json:"delta"`
	Location Location `json:"location"`
	Item     struct {
		ID              string `json:"id"`
		InventoryLevels struct {
			Nodes []LevelNode `json:"nodes"`
		} `json:"inventoryLevels"`
		Variant *struct {
			SKU         string `json:"sku"`
			DisplayName string `json:"displayName"`
			Product     struct {
				ID     string `json:"id"`
				Handle string `json:"handle"`
			} `json:"product"`
		} `json:"variant"`
	} `json:"item"`
}

// QuantityAt returns the available quantity the item reports at a location
func (c AdjustmentChange) QuantityAt(locationID string) (int, bool) {
	for _, level := range c.Item.InventoryLevels.Nodes {
		if models.ShortID(level.Location.ID) == models.ShortID(locationID) {
			return level.Available(), true
		}
	}
	return 0, false
}

// AdjustmentGroup is the inventoryAdjustmentGroup of a mutation payload
type AdjustmentGroup struct {
	CreatedAt            string            `json:"createdAt"`
	Reason               string            `json:"reason"`
	ReferenceDocumentURI string            `json:"referenceDocumentUri"`
	Changes              []json.RawMessage `json:"changes"`
}

// AdjustQuantitiesResult is the inventoryAdjustQuantities object
type AdjustQuantitiesResult struct {
	InventoryAdjustmentGroup *AdjustmentGroup `json:"inventoryAdjustmentGroup"`
	UserErrors               []UserError      `json:"userErrors"`
}

// AdjustPayload is a decoded inventoryAdjustQuantities response
type AdjustPayload struct {
	Result     AdjustQuantitiesResult
	RawChanges []json.RawMessage
	Changes    []AdjustmentChange
}

// ErrUnexpectedShape is wrapped by DecodeAdjustPayload when the payload does
// not follow the inventoryAdjustQuantities contract
var ErrUnexpectedShape = errors.New("unexpected inventoryAdjustQuantities shape")

// DecodeAdjustPayload validates and decodes a mutation payload
func DecodeAdjustPayload(raw json.RawMessage) (*AdjustPayload, error) {
	if len(bytes.TrimSpace(raw)) == 0 {
		return nil, fmt.Errorf("%w: empty payload", ErrUnexpectedShape)
	}

	var envelope map[string]json.RawMessage
	if err := json.Unmarshal(raw, &envelope); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrUnexpectedShape, err)
	}
	body, ok := envelope["inventoryAdjustQuantities"]
	if !ok || bytes.Equal(bytes.TrimSpace(body), []byte("null")) {
		return nil, fmt.Errorf("%w: missing inventoryAdjustQuantities", ErrUnexpectedShape)
	}

	payload := &AdjustPayload{}
	if err := json.Unmarshal(body, &payload.Result); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrUnexpectedShape, err)
	}

	group := payload.Result.InventoryAdjustmentGroup
	if group == nil {
		return payload, nil
	}
	payload.RawChanges = group.Changes
	payload.Changes = make([]AdjustmentChange, 0, len(group.Changes))
	for i, rawChange := range group.Changes {
		var change AdjustmentChange
		if err := json.Unmarshal(rawChange, &change); err != nil {
			return nil, fmt.Errorf("%w: change %d: %v", ErrUnexpectedShape, i, err)
		}
		payload.Changes = append(payload.Changes, change)
	}
	return payload, nil
}
