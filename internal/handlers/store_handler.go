package handlers

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"quantity-sync-service/internal/config"
)

// StoreHandler lists the configured stores
type StoreHandler struct {
	registry *config.StoreRegistry
}

// NewStoreHandler creates a new store handler
func NewStoreHandler(registry *config.StoreRegistry) *StoreHandler {
	return &StoreHandler{registry: registry}
}

type storeView struct {
	ID         string `json:"id"`
	Title      string `json:"title"`
	StoreName  string `json:"storeName"`
	ShopDomain string `json:"shopDomain"`
	APIVersion string `json:"apiVersion"`
}

// List returns every configured store without credentials
func (h *StoreHandler) List(c *gin.Context) {
	stores := h.registry.List()
	views := make([]storeView, 0, len(stores))
	for _, s := range stores {
		views = append(views, storeView{
			ID:         s.ID,
			Title:      s.Title,
			StoreName:  s.StoreName,
			ShopDomain: s.ShopDomain(),
			APIVersion: s.APIVersion,
		})
	}
	c.JSON(http.StatusOK, gin.H{
		"data":  views,
		"total": len(views),
	})
}
