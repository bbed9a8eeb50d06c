package services

import (
	"strings"

	"quantity-sync-service/internal/models"
)

// RequiredFields lists the fields a quantity file must provide, in report order
var RequiredFields = []string{
	models.FieldSKU,
	models.FieldQuantity,
	models.FieldLocationID,
	models.FieldSaleChannel,
}

// SyncRequiredFields are the fields without which no plan can be computed
var SyncRequiredFields = []string{models.FieldSKU, models.FieldQuantity}

// Files keyed by barcode are reported, never matched
const (
	barcodeColumn = "barcode"
	barcodeHint   = "barcode files are not supported, add a sku column"
)

// CheckSchema reports which required fields the record set lacks. A field is
// present when at least one record carries a non-blank value for it.
func CheckSchema(set *models.RecordSet) (*models.SchemaCheckResult, error) {
	if set == nil {
		return nil, &models.MalformedInputError{Reason: "no records could be parsed"}
	}

	present := make(map[string]bool, len(RequiredFields))
	for _, r := range set.Records {
		if strings.TrimSpace(r.SKU) != "" {
			present[models.FieldSKU] = true
		}
		if strings.TrimSpace(r.Quantity) != "" {
			present[models.FieldQuantity] = true
		}
		if strings.TrimSpace(r.LocationID) != "" {
			present[models.FieldLocationID] = true
		}
		if strings.TrimSpace(r.SaleChannel) != "" {
			present[models.FieldSaleChannel] = true
		}
	}

	missing := make([]string, 0)
	for _, field := range RequiredFields {
		if !present[field] {
			missing = append(missing, field)
		}
	}

	columns := make([]string, len(set.Columns))
	copy(columns, set.Columns)

	return &models.SchemaCheckResult{
		Columns:       columns,
		MissingFields: missing,
		ReadyToSync:   len(missing) == 0,
		Message:       schemaMessage(present, columns),
	}, nil
}

func schemaMessage(present map[string]bool, columns []string) string {
	if !present[models.FieldSKU] && containsString(columns, barcodeColumn) {
		return barcodeHint
	}
	return ""
}

// missingSyncFields returns the sync-blocking subset of a check result
func missingSyncFields(check *models.SchemaCheckResult) []string {
	var blocking []string
	for _, missing := range check.MissingFields {
		for _, required := range SyncRequiredFields {
			if missing == required {
				blocking = append(blocking, missing)
			}
		}
	}
	return blocking
}
