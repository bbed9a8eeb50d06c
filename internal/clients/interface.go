package clients

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"quantity-sync-service/internal/models"
)

// InventoryGateway is the boundary to the remote catalog
type InventoryGateway interface {
	// LookupVariants returns every variant whose SKU equals sku exactly
	LookupVariants(ctx context.Context, store models.StoreContext, sku string) ([]models.CatalogVariant, error)

	// SubmitBatch applies one batch of inventory adjustments and returns the
	// raw mutation payload
	SubmitBatch(ctx context.Context, store models.StoreContext, batch models.Batch) (json.RawMessage, error)
}

// ChannelPublisher publishes products to sale channels
type ChannelPublisher interface {
	PublishToChannels(ctx context.Context, store models.StoreContext, productID string, channelIDs []string) error
}

// Gateway combines the inventory and channel operations of one store
type Gateway interface {
	InventoryGateway
	ChannelPublisher
}

// EmptyAdjustPayload is returned for batches without non-zero changes.
// It has the inventoryAdjustQuantities shape with no adjustment group.
var EmptyAdjustPayload = json.RawMessage(`{"inventoryAdjustQuantities":{"inventoryAdjustmentGroup":null,"userErrors":[]}}`)

// APIError is a non-2xx response from the remote API
type APIError struct {
	StatusCode int
	Body       string
	RetryAfter time.Duration
}

func (e *APIError) Error() string {
	return fmt.Sprintf("API error (status %d): %s", e.StatusCode, e.Body)
}

// GraphQLError is one entry of a GraphQL errors array
type GraphQLError struct {
	Message    string                 `json:"message"`
	Extensions map[string]interface{} `json:"extensions,omitempty"`
}

// Code returns the extensions.code value, if any
func (e GraphQLError) Code() string {
	if code, ok := e.Extensions["code"].(string); ok {
		return code
	}
	return ""
}

// GraphQLErrors is returned when a response carries top-level errors
type GraphQLErrors struct {
	Errors []GraphQLError
}

func (e *GraphQLErrors) Error() string {
	messages := make([]string, len(e.Errors))
	for i, err := range e.Errors {
		messages[i] = err.Message
	}
	return "graphql errors: " + strings.Join(messages, "; ")
}

// Throttled reports whether the API rejected the query for cost reasons
func (e *GraphQLErrors) Throttled() bool {
	for _, err := range e.Errors {
		if err.Code() == "THROTTLED" {
			return true
		}
	}
	return false
}

// UserError is one entry of a mutation userErrors array
type UserError struct {
	Field   []string `json:"field"`
	Message string   `json:"message"`
	Code    string   `json:"code,omitempty"`
}

// UserErrorsError is returned when a mutation reports userErrors
type UserErrorsError struct {
	Operation string
	Errors    []UserError
}

func (e *UserErrorsError) Error() string {
	messages := make([]string, len(e.Errors))
	for i, err := range e.Errors {
		if len(err.Field) > 0 {
			messages[i] = strings.Join(err.Field, ".") + ": " + err.Message
		} else {
			messages[i] = err.Message
		}
	}
	return fmt.Sprintf("%s failed: %s", e.Operation, strings.Join(messages, "; "))
}
