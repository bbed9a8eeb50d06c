package models

import (
	"encoding/json"
	"errors"
	"fmt"
	"strings"
)

var (
	// ErrCatalogUnreachable is returned when no catalog lookup succeeded
	ErrCatalogUnreachable = errors.New("catalog unreachable")
	// ErrRunInProgress is returned when another run holds the store lock
	ErrRunInProgress = errors.New("a sync run is already in progress for this store")
	ErrFileNotFound  = errors.New("file not found")
	ErrUnknownStore  = errors.New("unknown store")
	ErrRunNotFound   = errors.New("sync run not found")
	// ErrUnsupportedField is returned for defaults outside location_id and sale_channel
	ErrUnsupportedField = errors.New("field does not accept a file default")
)

// MalformedInputError is returned when a file cannot be turned into records
type MalformedInputError struct {
	Reason string
	Err    error
}

func (e *MalformedInputError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("malformed input: %s: %v", e.Reason, e.Err)
	}
	return "malformed input: " + e.Reason
}

func (e *MalformedInputError) Unwrap() error {
	return e.Err
}

// ValueConversionError rejects a record whose quantity is not a 32-bit integer
type ValueConversionError struct {
	Row   int
	SKU   string
	Value string
}

func (e *ValueConversionError) Error() string {
	return fmt.Sprintf("row %d (sku %s): quantity %q is not a 32-bit integer", e.Row, e.SKU, e.Value)
}

// CatalogAmbiguityError is raised when a SKU matches more than one variant
type CatalogAmbiguityError struct {
	SKU        string
	VariantIDs []string
}

func (e *CatalogAmbiguityError) Error() string {
	return fmt.Sprintf("sku %s matches %d variants: %s", e.SKU, len(e.VariantIDs), strings.Join(e.VariantIDs, ", "))
}

// ResponseShapeError is raised when a gateway payload does not match the
// inventoryAdjustQuantities contract
type ResponseShapeError struct {
	BatchIndex int
	Reason     string
	Raw        json.RawMessage
}

func (e *ResponseShapeError) Error() string {
	if e.BatchIndex < 0 {
		return "unrecognized response shape: " + e.Reason
	}
	return fmt.Sprintf("batch %d: unrecognized response shape: %s", e.BatchIndex, e.Reason)
}

// SchemaNotReadyError is returned when a sync is requested for a file that
// lacks columns the engine cannot work without
type SchemaNotReadyError struct {
	MissingFields []string
	Hint          string
}

func (e *SchemaNotReadyError) Error() string {
	msg := "file is missing required fields: " + strings.Join(e.MissingFields, ", ")
	if e.Hint != "" {
		msg += " (" + e.Hint + ")"
	}
	return msg
}
