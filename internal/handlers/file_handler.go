package handlers

import (
	"bytes"
	"fmt"
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"

	"quantity-sync-service/internal/middleware"
	"quantity-sync-service/internal/services"
	"quantity-sync-service/internal/spreadsheet"
)

// FileHandler handles quantity file endpoints
type FileHandler struct {
	files *services.FileService
	sync  *services.SyncService
}

// NewFileHandler creates a new file handler
func NewFileHandler(files *services.FileService, sync *services.SyncService) *FileHandler {
	return &FileHandler{files: files, sync: sync}
}

// List returns the uploaded files
// @Summary List uploaded quantity files
// @Tags files
// @Produce json
// @Param X-Selected-Store header string true "Store ID"
// @Success 200 {object} map[string]interface{}
// @Failure 400 {object} map[string]string
// @Failure 500 {object} map[string]string
// @Router /resources [get]
func (h *FileHandler) List(c *gin.Context) {
	files, err := h.files.List()
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{
		"data":  files,
		"total": len(files),
	})
}

// Upload stores a multipart file field named "file"
// @Summary Upload a quantity file
// @Description Upload a csv or xlsx file of SKU quantities
// @Tags files
// @Accept multipart/form-data
// @Produce json
// @Param X-Selected-Store header string true "Store ID"
// @Param file formData file true "Quantity file"
// @Success 201 {object} map[string]interface{}
// @Failure 400 {object} map[string]string
// @Failure 500 {object} map[string]string
// @Router /uploadFile [post]
func (h *FileHandler) Upload(c *gin.Context) {
	header, err := c.FormFile("file")
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "file is required"})
		return
	}

	f, err := header.Open()
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "failed to read uploaded file"})
		return
	}
	defer f.Close()

	name, err := h.files.Upload(c.Request.Context(), header.Filename, f)
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusCreated, gin.H{
		"detail":   fmt.Sprintf("File '%s' uploaded", name),
		"filename": name,
	})
}

// Delete removes an uploaded file
// @Summary Delete an uploaded file
// @Tags files
// @Produce json
// @Param X-Selected-Store header string true "Store ID"
// @Param filename path string true "File name"
// @Success 200 {object} map[string]string
// @Failure 404 {object} map[string]string
// @Router /resources/{filename} [delete]
func (h *FileHandler) Delete(c *gin.Context) {
	name := c.Param("filename")
	if err := h.files.Delete(c.Request.Context(), name); err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"detail": fmt.Sprintf("File '%s' deleted", name)})
}

// Template returns the import template as csv, xlsx or json
// @Summary Download the import template
// @Tags files
// @Produce json,text/csv,application/vnd.openxmlformats-officedocument.spreadsheetml.sheet
// @Param X-Selected-Store header string true "Store ID"
// @Param format query string false "csv, xlsx or json" default(csv)
// @Success 200 {file} file
// @Failure 400 {object} map[string]string
// @Router /resources/template [get]
func (h *FileHandler) Template(c *gin.Context) {
	template := spreadsheet.QuantityTemplate()
	format := strings.ToLower(c.DefaultQuery("format", "csv"))

	switch format {
	case "json":
		c.JSON(http.StatusOK, gin.H{"data": template})
	case "csv":
		var buf bytes.Buffer
		if err := spreadsheet.WriteCSV(&buf, template); err != nil {
			respondError(c, err)
			return
		}
		c.Header("Content-Disposition", "attachment; filename=quantities_template.csv")
		c.Data(http.StatusOK, "text/csv", buf.Bytes())
	case "xlsx":
		var buf bytes.Buffer
		if err := spreadsheet.WriteXLSX(&buf, template, "Quantities"); err != nil {
			respondError(c, err)
			return
		}
		c.Header("Content-Disposition", "attachment; filename=quantities_template.xlsx")
		c.Data(http.StatusOK, "application/vnd.openxmlformats-officedocument.spreadsheetml.sheet", buf.Bytes())
	default:
		c.JSON(http.StatusBadRequest, gin.H{"error": "format must be csv, xlsx or json"})
	}
}

// Check reports whether a file is ready to sync
// @Summary Check a file against the sync schema
// @Description Reports present and missing columns and whether the file can be synced
// @Tags files
// @Produce json
// @Param X-Selected-Store header string true "Store ID"
// @Param filename path string true "File name"
// @Success 200 {object} models.SchemaCheckResult
// @Failure 404 {object} map[string]string
// @Failure 422 {object} map[string]string
// @Router /check/{filename} [get]
func (h *FileHandler) Check(c *gin.Context) {
	store, _ := middleware.GetStore(c)
	result, err := h.sync.Check(c.Request.Context(), store.Context(), c.Param("filename"))
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, result)
}

// UpdateDefaults sets file-level location_id and sale_channel values
// @Summary Set file-level defaults
// @Tags files
// @Accept json
// @Produce json
// @Param X-Selected-Store header string true "Store ID"
// @Param filename path string true "File name"
// @Param defaults body map[string]string true "location_id and sale_channel"
// @Success 200 {object} map[string]interface{}
// @Failure 400 {object} map[string]string
// @Failure 404 {object} map[string]string
// @Router /resources/{filename}/defaults [patch]
func (h *FileHandler) UpdateDefaults(c *gin.Context) {
	name := c.Param("filename")
	if !h.files.Exists(name) {
		c.JSON(http.StatusNotFound, gin.H{"error": fmt.Sprintf("file '%s' not found", name)})
		return
	}

	var fields map[string]string
	if err := c.ShouldBindJSON(&fields); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	defaults, err := h.sync.UpdateDefaults(c.Request.Context(), name, fields)
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"data": defaults})
}
