package shopify

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/sirupsen/logrus"
	"github.com/sony/gobreaker"
	"golang.org/x/time/rate"

	"quantity-sync-service/internal/clients"
	"quantity-sync-service/internal/models"
)

const publicationGIDPrefix = "gid://shopify/Publication/"

// Options configures a Client
type Options struct {
	ShopDomain  string
	APIVersion  string
	AccessToken string
	RateLimit   int // requests per second
	Timeout     time.Duration
	Retry       *clients.RetryConfig
	Breaker     clients.BreakerSettings
	Logger      *logrus.Entry
	HTTPClient  *http.Client
	// BaseURL overrides https://<ShopDomain>
	BaseURL string
}

// Client implements clients.Gateway against the Shopify Admin GraphQL API
type Client struct {
	httpClient  *http.Client
	endpoint    string
	accessToken string
	rateLimiter *rate.Limiter
	retrier     *clients.Retrier
	breaker     *gobreaker.CircuitBreaker
	log         *logrus.Entry
}

var _ clients.Gateway = (*Client)(nil)

// NewClient creates a new Shopify Admin API client
func NewClient(opts Options) (*Client, error) {
	if opts.AccessToken == "" {
		return nil, fmt.Errorf("missing access token")
	}
	baseURL := strings.TrimRight(opts.BaseURL, "/")
	if baseURL == "" {
		if opts.ShopDomain == "" {
			return nil, fmt.Errorf("missing shop domain")
		}
		baseURL = "https://" + opts.ShopDomain
	}
	if opts.APIVersion == "" {
		return nil, fmt.Errorf("missing API version")
	}
	if opts.RateLimit <= 0 {
		opts.RateLimit = 2
	}
	if opts.Timeout <= 0 {
		opts.Timeout = 30 * time.Second
	}
	if opts.Logger == nil {
		opts.Logger = logrus.NewEntry(logrus.StandardLogger())
	}
	if opts.Breaker.FailureThreshold == 0 {
		opts.Breaker = clients.DefaultBreakerSettings()
	}
	httpClient := opts.HTTPClient
	if httpClient == nil {
		httpClient = &http.Client{Timeout: opts.Timeout}
	}

	log := opts.Logger.WithField("shop", opts.ShopDomain)
	return &Client{
		httpClient:  httpClient,
		endpoint:    fmt.Sprintf("%s/admin/api/%s/graphql.json", baseURL, opts.APIVersion),
		accessToken: opts.AccessToken,
		rateLimiter: rate.NewLimiter(rate.Limit(opts.RateLimit), 1),
		retrier:     clients.NewRetrier(opts.Retry),
		breaker:     clients.NewBreaker("shopify:"+opts.ShopDomain, opts.Breaker, log),
		log:         log,
	}, nil
}

type variantNode struct {
	ID          string `json:"id"`
	SKU         string `json:"sku"`
	DisplayName string `json:"displayName"`
	Product     struct {
		ID     string `json:"id"`
		Handle string `json:"handle"`
	} `json:"product"`
	InventoryItem struct {
		ID              string `json:"id"`
		InventoryLevels struct {
			Nodes []clients.LevelNode `json:"nodes"`
		} `json:"inventoryLevels"`
	} `json:"inventoryItem"`
}

// LookupVariants fetches the variants whose SKU equals sku exactly,
// with their inventory levels
func (c *Client) LookupVariants(ctx context.Context, store models.StoreContext, sku string) ([]models.CatalogVariant, error) {
	sku = strings.TrimSpace(sku)
	variables := map[string]interface{}{"query": skuSearch(sku)}

	data, err := c.graphQL(ctx, "LookupVariantsBySku", lookupVariantsQuery, variables, clients.RetryIdempotent)
	if err != nil {
		return nil, err
	}

	var response struct {
		ProductVariants *struct {
			Nodes []variantNode `json:"nodes"`
		} `json:"productVariants"`
	}
	if err := json.Unmarshal(data, &response); err != nil {
		return nil, fmt.Errorf("failed to parse variants response: %w", err)
	}
	if response.ProductVariants == nil {
		return nil, fmt.Errorf("variants response has no productVariants")
	}

	// the search syntax is a prefix/token match, so equality is enforced here
	variants := make([]models.CatalogVariant, 0, len(response.ProductVariants.Nodes))
	for _, node := range response.ProductVariants.Nodes {
		if strings.TrimSpace(node.SKU) != sku {
			continue
		}
		variants = append(variants, convertVariant(node))
	}

	c.log.WithFields(logrus.Fields{
		"store":   store.ID,
		"sku":     sku,
		"matches": len(variants),
	}).Debug("Looked up variants")
	return variants, nil
}

// SubmitBatch sends one inventoryAdjustQuantities mutation
func (c *Client) SubmitBatch(ctx context.Context, store models.StoreContext, batch models.Batch) (json.RawMessage, error) {
	if len(batch.Input.Changes) == 0 {
		return clients.EmptyAdjustPayload, nil
	}

	variables := map[string]interface{}{"input": batch.Input}
	data, err := c.graphQL(ctx, "inventoryAdjustQuantities", inventoryAdjustMutation, variables, clients.RetryThrottledOnly)
	if err != nil {
		return nil, err
	}

	var result struct {
		InventoryAdjustQuantities *struct {
			UserErrors []clients.UserError `json:"userErrors"`
		} `json:"inventoryAdjustQuantities"`
	}
	if err := json.Unmarshal(data, &result); err == nil &&
		result.InventoryAdjustQuantities != nil && len(result.InventoryAdjustQuantities.UserErrors) > 0 {
		return data, &clients.UserErrorsError{
			Operation: "inventoryAdjustQuantities",
			Errors:    result.InventoryAdjustQuantities.UserErrors,
		}
	}

	c.log.WithFields(logrus.Fields{
		"store":   store.ID,
		"batch":   batch.Index,
		"changes": len(batch.Input.Changes),
	}).Info("Submitted inventory adjustment batch")
	return data, nil
}

// PublishToChannels publishes a product to the given publications
func (c *Client) PublishToChannels(ctx context.Context, store models.StoreContext, productID string, channelIDs []string) error {
	if len(channelIDs) == 0 {
		return nil
	}

	input := make([]map[string]string, 0, len(channelIDs))
	for _, id := range channelIDs {
		input = append(input, map[string]string{"publicationId": publicationGID(id)})
	}
	variables := map[string]interface{}{"id": productID, "input": input}

	data, err := c.graphQL(ctx, "publishablePublish", publishMutation, variables, clients.RetryIdempotent)
	if err != nil {
		return err
	}

	var result struct {
		PublishablePublish *struct {
			UserErrors []clients.UserError `json:"userErrors"`
		} `json:"publishablePublish"`
	}
	if err := json.Unmarshal(data, &result); err != nil {
		return fmt.Errorf("failed to parse publish response: %w", err)
	}
	if result.PublishablePublish != nil && len(result.PublishablePublish.UserErrors) > 0 {
		return &clients.UserErrorsError{Operation: "publishablePublish", Errors: result.PublishablePublish.UserErrors}
	}

	c.log.WithFields(logrus.Fields{
		"store":    store.ID,
		"product":  productID,
		"channels": channelIDs,
	}).Info("Published product to sale channels")
	return nil
}

// graphQL runs one operation through the breaker and the retrier and
// returns the data member of the response
func (c *Client) graphQL(ctx context.Context, operation, query string, variables map[string]interface{}, policy clients.RetryPolicy) (json.RawMessage, error) {
	body, err := json.Marshal(map[string]interface{}{
		"query":         query,
		"operationName": operation,
		"variables":     variables,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to encode %s request: %w", operation, err)
	}

	out, err := c.breaker.Execute(func() (interface{}, error) {
		var data json.RawMessage
		attempts, err := c.retrier.Do(ctx, operation, policy, func(ctx context.Context) error {
			var attemptErr error
			data, attemptErr = c.doRequest(ctx, body)
			return attemptErr
		})
		if err != nil {
			return nil, err
		}
		if attempts > 1 {
			c.log.WithFields(logrus.Fields{"operation": operation, "attempts": attempts}).Debug("Catalog call succeeded after retry")
		}
		return data, nil
	})
	if err != nil {
		if errors.Is(err, gobreaker.ErrOpenState) || errors.Is(err, gobreaker.ErrTooManyRequests) {
			return nil, fmt.Errorf("%s: catalog circuit open: %w", operation, err)
		}
		return nil, err
	}
	return out.(json.RawMessage), nil
}

// doRequest performs one authenticated GraphQL request
func (c *Client) doRequest(ctx context.Context, body []byte) (json.RawMessage, error) {
	if err := c.rateLimiter.Wait(ctx); err != nil {
		return nil, err
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.endpoint, bytes.NewReader(body))
	if err != nil {
		return nil, err
	}
	req.Header.Set("X-Shopify-Access-Token", c.accessToken)
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	respBody, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, err
	}

	if resp.StatusCode >= 400 {
		return nil, &clients.APIError{
			StatusCode: resp.StatusCode,
			Body:       string(respBody),
			RetryAfter: clients.RetryAfter(resp.Header),
		}
	}

	var envelope struct {
		Data   json.RawMessage        `json:"data"`
		Errors []clients.GraphQLError `json:"errors"`
	}
	if err := json.Unmarshal(respBody, &envelope); err != nil {
		return nil, fmt.Errorf("failed to parse GraphQL response: %w", err)
	}
	if len(envelope.Errors) > 0 {
		return nil, &clients.GraphQLErrors{Errors: envelope.Errors}
	}
	return envelope.Data, nil
}

func convertVariant(node variantNode) models.CatalogVariant {
	levels := make([]models.InventoryLevel, 0, len(node.InventoryItem.InventoryLevels.Nodes))
	for _, level := range node.InventoryItem.InventoryLevels.Nodes {
		levels = append(levels, models.InventoryLevel{
			LocationID:   level.Location.ID,
			LocationName: level.Location.Name,
			Available:    level.Available(),
		})
	}
	return models.CatalogVariant{
		VariantID:       node.ID,
		InventoryItemID: node.InventoryItem.ID,
		ProductID:       node.Product.ID,
		ProductHandle:   node.Product.Handle,
		DisplayName:     node.DisplayName,
		SKU:             strings.TrimSpace(node.SKU),
		InventoryLevels: levels,
	}
}

// skuSearch builds a search query matching one SKU
func skuSearch(sku string) string {
	escaped := strings.NewReplacer(`\`, `\\`, `"`, `\"`).Replace(sku)
	return fmt.Sprintf(`sku:"%s"`, escaped)
}

func publicationGID(id string) string {
	id = strings.TrimSpace(id)
	if strings.HasPrefix(id, "gid://") {
		return id
	}
	return publicationGIDPrefix + id
}
