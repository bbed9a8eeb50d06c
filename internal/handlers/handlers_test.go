package handlers

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"io"
	"mime/multipart"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/gin-gonic/gin"
	"github.com/sirupsen/logrus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"quantity-sync-service/internal/clients"
	"quantity-sync-service/internal/config"
	"quantity-sync-service/internal/models"
	"quantity-sync-service/internal/repository"
	"quantity-sync-service/internal/services"
	"quantity-sync-service/internal/storage"
)

const storeID = "af-milano"

type stubGateway struct {
	variants  map[string][]models.CatalogVariant
	lookupErr error
	raw       json.RawMessage
}

func (g *stubGateway) LookupVariants(_ context.Context, _ models.StoreContext, sku string) ([]models.CatalogVariant, error) {
	if g.lookupErr != nil {
		return nil, g.lookupErr
	}
	return g.variants[sku], nil
}

func (g *stubGateway) SubmitBatch(_ context.Context, _ models.StoreContext, batch models.Batch) (json.RawMessage, error) {
	if g.raw != nil {
		return g.raw, nil
	}
	return clients.EmptyAdjustPayload, nil
}

func (g *stubGateway) PublishToChannels(context.Context, models.StoreContext, string, []string) error {
	return nil
}

type stubProvider struct{ gateway clients.Gateway }

func (p stubProvider) ForStore(context.Context, models.StoreContext) (clients.Gateway, error) {
	return p.gateway, nil
}

type testEnv struct {
	router  *gin.Engine
	store   *storage.LocalStore
	gateway *stubGateway
	locker  *services.StoreSemaphore
}

func newTestEnv(t *testing.T) *testEnv {
	t.Helper()
	gin.SetMode(gin.TestMode)

	logger := logrus.New()
	logger.SetOutput(io.Discard)
	log := logrus.NewEntry(logger)

	files, err := storage.NewLocalStore(t.TempDir())
	require.NoError(t, err)

	gateway := &stubGateway{variants: map[string][]models.CatalogVariant{
		"A": {{
			VariantID:       "gid://shopify/ProductVariant/1",
			InventoryItemID: "gid://shopify/InventoryItem/1",
			ProductID:       "gid://shopify/Product/1",
			SKU:             "A",
			InventoryLevels: []models.InventoryLevel{{LocationID: "gid://shopify/Location/L1", Available: 10}},
		}},
	}}

	defaults := repository.NewMemorySourceFileRepository()
	locker := services.NewStoreSemaphore(0)
	syncService := services.NewSyncService(
		files,
		defaults,
		repository.NewMemorySyncRunRepository(100),
		stubProvider{gateway: gateway},
		services.NewCatalogResolver(2, log),
		locker,
		services.SyncServiceConfig{BatchSize: 250, SubmitConcurrency: 1},
		log,
	)

	registry := config.NewStoreRegistry(config.StoreConfig{ID: storeID, Title: "Milano", StoreName: storeID, APIVersion: "2025-10"})
	router := NewRouter(RouterDeps{
		Stores:         registry,
		Files:          services.NewFileService(files, defaults, log),
		Sync:           syncService,
		AllowedOrigins: []string{"http://localhost:3000"},
		Log:            log,
	})
	return &testEnv{router: router, store: files, gateway: gateway, locker: locker}
}

func (e *testEnv) do(method, target string, body io.Reader, contentType string) *httptest.ResponseRecorder {
	req := httptest.NewRequest(method, target, body)
	req.Header.Set("X-Selected-Store", storeID)
	if contentType != "" {
		req.Header.Set("Content-Type", contentType)
	}
	w := httptest.NewRecorder()
	e.router.ServeHTTP(w, req)
	return w
}

func decode(t *testing.T, w *httptest.ResponseRecorder) map[string]interface{} {
	t.Helper()
	var body map[string]interface{}
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &body), w.Body.String())
	return body
}

func TestHealth(t *testing.T) {
	env := newTestEnv(t)
	req := httptest.NewRequest(http.MethodGet, "/health", nil)
	w := httptest.NewRecorder()
	env.router.ServeHTTP(w, req)
	assert.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, "healthy", decode(t, w)["status"])
}

func TestReadyReportsFailingChecks(t *testing.T) {
	gin.SetMode(gin.TestMode)
	h := NewHealthHandler(map[string]Pinger{
		"database": func(context.Context) error { return errors.New("connection refused") },
	})
	router := gin.New()
	router.GET("/ready", h.Ready)

	w := httptest.NewRecorder()
	router.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/ready", nil))
	assert.Equal(t, http.StatusServiceUnavailable, w.Code)
}

func TestSwaggerUIServed(t *testing.T) {
	env := newTestEnv(t)
	req := httptest.NewRequest(http.MethodGet, "/swagger/index.html", nil)
	w := httptest.NewRecorder()
	env.router.ServeHTTP(w, req)
	assert.Equal(t, http.StatusOK, w.Code)
	assert.Contains(t, w.Body.String(), "swagger-ui")
}

func TestStoresListOmitsSecrets(t *testing.T) {
	env := newTestEnv(t)
	w := env.do(http.MethodGet, "/api/v1/stores", nil, "")
	require.Equal(t, http.StatusOK, w.Code)
	assert.NotContains(t, w.Body.String(), "ACCESS_TOKEN")
	assert.Contains(t, w.Body.String(), "af-milano.myshopify.com")
}

func TestRequiresStore(t *testing.T) {
	env := newTestEnv(t)
	w := httptest.NewRecorder()
	env.router.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/api/v1/resources", nil))
	assert.Equal(t, http.StatusBadRequest, w.Code)
}

func uploadBody(t *testing.T, name, content string) (*bytes.Buffer, string) {
	t.Helper()
	var buf bytes.Buffer
	mw := multipart.NewWriter(&buf)
	part, err := mw.CreateFormFile("file", name)
	require.NoError(t, err)
	_, err = part.Write([]byte(content))
	require.NoError(t, err)
	require.NoError(t, mw.Close())
	return &buf, mw.FormDataContentType()
}

func TestFileLifecycle(t *testing.T) {
	env := newTestEnv(t)

	body, contentType := uploadBody(t, "Stock.csv", "sku,quantity\nA,5\nB,-3\n")
	w := env.do(http.MethodPost, "/api/v1/uploadFile", body, contentType)
	require.Equal(t, http.StatusCreated, w.Code, w.Body.String())
	name := decode(t, w)["filename"].(string)
	assert.True(t, strings.HasPrefix(name, "stock_"))

	w = env.do(http.MethodGet, "/api/v1/resources", nil, "")
	require.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, float64(1), decode(t, w)["total"])

	w = env.do(http.MethodGet, "/api/v1/check/"+name, nil, "")
	require.Equal(t, http.StatusOK, w.Code)
	check := decode(t, w)
	assert.Equal(t, false, check["ready_to_sync"])
	assert.ElementsMatch(t, []interface{}{"location_id", "sale_channel"}, check["missing_fields"])

	w = env.do(http.MethodPatch, "/api/v1/resources/"+name+"/defaults", strings.NewReader(`{"location_id":"L1"}`), "application/json")
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())

	w = env.do(http.MethodPatch, "/api/v1/resources/"+name+"/defaults", strings.NewReader(`{"sku":"X"}`), "application/json")
	assert.Equal(t, http.StatusBadRequest, w.Code)

	w = env.do(http.MethodDelete, "/api/v1/resources/"+name, nil, "")
	require.Equal(t, http.StatusOK, w.Code)

	w = env.do(http.MethodDelete, "/api/v1/resources/"+name, nil, "")
	assert.Equal(t, http.StatusNotFound, w.Code)
}

func TestUploadRejectsUnsupportedType(t *testing.T) {
	env := newTestEnv(t)
	body, contentType := uploadBody(t, "stock.txt", "hello")
	w := env.do(http.MethodPost, "/api/v1/uploadFile", body, contentType)
	assert.Equal(t, http.StatusUnprocessableEntity, w.Code)
}

func TestTemplateFormats(t *testing.T) {
	env := newTestEnv(t)

	w := env.do(http.MethodGet, "/api/v1/resources/template?format=csv", nil, "")
	require.Equal(t, http.StatusOK, w.Code)
	assert.True(t, strings.HasPrefix(w.Body.String(), "sku,quantity,location_id,sale_channel\n"), w.Body.String())

	w = env.do(http.MethodGet, "/api/v1/resources/template?format=xlsx", nil, "")
	require.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, "PK", w.Body.String()[:2])

	w = env.do(http.MethodGet, "/api/v1/resources/template?format=json", nil, "")
	require.Equal(t, http.StatusOK, w.Code)

	w = env.do(http.MethodGet, "/api/v1/resources/template?format=pdf", nil, "")
	assert.Equal(t, http.StatusBadRequest, w.Code)
}

func TestSyncEndpoint(t *testing.T) {
	env := newTestEnv(t)
	require.NoError(t, env.store.Save("stock.csv", strings.NewReader("sku,quantity\nA,5\nB,-3\n")))

	w := env.do(http.MethodPost, "/api/v1/sync/stock.csv?mode=replace&dry_run=true", nil, "")
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())
	body := decode(t, w)
	assert.Equal(t, "replace", body["mode"])
	assert.Equal(t, true, body["dry_run"])
	assert.Equal(t, []interface{}{"B"}, body["missing_rows"])
	assert.Equal(t, float64(2), body["total_records"])
	plans := body["plans"].([]interface{})
	require.Len(t, plans, 1)
	assert.Equal(t, float64(-5), plans[0].(map[string]interface{})["delta"])

	w = env.do(http.MethodPost, "/api/v1/sync/stock.csv", nil, "")
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())
	body = decode(t, w)
	assert.Equal(t, "adjust", body["mode"])
	assert.Contains(t, body["detail"], "missing")
	runID := body["run_id"].(string)

	w = env.do(http.MethodGet, "/api/v1/runs", nil, "")
	require.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, float64(2), decode(t, w)["total"])

	w = env.do(http.MethodGet, "/api/v1/runs/"+runID, nil, "")
	require.Equal(t, http.StatusOK, w.Code)

	w = env.do(http.MethodGet, "/api/v1/runs/not-a-uuid", nil, "")
	assert.Equal(t, http.StatusBadRequest, w.Code)
}

func TestSyncStatusMapping(t *testing.T) {
	t.Run("unknown mode", func(t *testing.T) {
		env := newTestEnv(t)
		w := env.do(http.MethodPost, "/api/v1/sync/stock.csv?mode=wipe", nil, "")
		assert.Equal(t, http.StatusBadRequest, w.Code)
	})

	t.Run("file not found", func(t *testing.T) {
		env := newTestEnv(t)
		w := env.do(http.MethodPost, "/api/v1/sync/missing.csv", nil, "")
		assert.Equal(t, http.StatusNotFound, w.Code)
	})

	t.Run("schema not ready", func(t *testing.T) {
		env := newTestEnv(t)
		require.NoError(t, env.store.Save("stock.csv", strings.NewReader("sku\nA\n")))
		w := env.do(http.MethodPost, "/api/v1/sync/stock.csv", nil, "")
		assert.Equal(t, http.StatusUnprocessableEntity, w.Code)
		assert.Equal(t, []interface{}{"quantity"}, decode(t, w)["missing_fields"])
	})

	t.Run("locked", func(t *testing.T) {
		env := newTestEnv(t)
		require.NoError(t, env.store.Save("stock.csv", strings.NewReader("sku,quantity\nA,1\n")))
		release, err := env.locker.Acquire(context.Background(), storeID)
		require.NoError(t, err)
		defer release()

		w := env.do(http.MethodPost, "/api/v1/sync/stock.csv", nil, "")
		assert.Equal(t, http.StatusConflict, w.Code)
	})

	t.Run("catalog unreachable", func(t *testing.T) {
		env := newTestEnv(t)
		require.NoError(t, env.store.Save("stock.csv", strings.NewReader("sku,quantity\nA,1\n")))
		env.gateway.lookupErr = errors.New("dial tcp: refused")

		w := env.do(http.MethodPost, "/api/v1/sync/stock.csv", nil, "")
		assert.Equal(t, http.StatusBadGateway, w.Code)
	})

	t.Run("unrecognized response keeps report", func(t *testing.T) {
		env := newTestEnv(t)
		require.NoError(t, env.store.Save("stock.csv", strings.NewReader("sku,quantity\nA,1\n")))
		env.gateway.raw = json.RawMessage(`{"weird":true}`)

		w := env.do(http.MethodPost, "/api/v1/sync/stock.csv", nil, "")
		assert.Equal(t, http.StatusBadGateway, w.Code)
		body := decode(t, w)
		assert.Equal(t, map[string]interface{}{"weird": true}, body["data"])
		assert.Equal(t, float64(1), body["total_records"])
	})
}
