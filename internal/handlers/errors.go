package handlers

import (
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"

	"quantity-sync-service/internal/models"
	"quantity-sync-service/internal/services"
	"quantity-sync-service/internal/storage"
)

// statusFor maps service errors to HTTP status codes
func statusFor(err error) int {
	var (
		malformed *models.MalformedInputError
		notReady  *models.SchemaNotReadyError
	)
	switch {
	case errors.Is(err, models.ErrRunInProgress):
		return http.StatusConflict
	case errors.Is(err, models.ErrFileNotFound), errors.Is(err, models.ErrRunNotFound):
		return http.StatusNotFound
	case errors.Is(err, models.ErrUnknownStore), errors.Is(err, storage.ErrInvalidName),
		errors.Is(err, models.ErrUnsupportedField):
		return http.StatusBadRequest
	case errors.As(err, &malformed), errors.As(err, &notReady):
		return http.StatusUnprocessableEntity
	case errors.Is(err, models.ErrCatalogUnreachable), services.IsResponseShapeError(err):
		return http.StatusBadGateway
	}
	return http.StatusInternalServerError
}

func respondError(c *gin.Context, err error) {
	body := gin.H{"error": err.Error()}
	var notReady *models.SchemaNotReadyError
	if errors.As(err, &notReady) {
		body["missing_fields"] = notReady.MissingFields
	}
	_ = c.Error(err)
	c.JSON(statusFor(err), body)
}
