package models

import (
	"encoding/json"
	"fmt"
	"math"
	"strconv"
	"strings"
)

// SyncMode selects the delta formula used by a sync run
type SyncMode string

const (
	SyncModeTabulaRasa SyncMode = "tabula_rasa"
	SyncModeAdjust     SyncMode = "adjust"
	SyncModeReplace    SyncMode = "replace"
)

// ParseSyncMode converts a request parameter into a SyncMode.
// An empty value selects adjust.
func ParseSyncMode(value string) (SyncMode, error) {
	switch SyncMode(strings.ToLower(strings.TrimSpace(value))) {
	case "", SyncModeAdjust:
		return SyncModeAdjust, nil
	case SyncModeReplace:
		return SyncModeReplace, nil
	case SyncModeTabulaRasa:
		return SyncModeTabulaRasa, nil
	}
	return "", fmt.Errorf("unsupported sync mode %q", value)
}

// Canonical field names of a quantity file
const (
	FieldSKU         = "sku"
	FieldQuantity    = "quantity"
	FieldLocationID  = "location_id"
	FieldSaleChannel = "sale_channel"
)

// SourceRecord is one spreadsheet row
type SourceRecord struct {
	Row         int    `json:"row"`
	SKU         string `json:"sku"`
	Quantity    string `json:"quantity"`
	LocationID  string `json:"location_id,omitempty"`
	SaleChannel string `json:"sale_channel,omitempty"`
}

// IsBlank reports whether the row has no SKU
func (r SourceRecord) IsBlank() bool {
	return strings.TrimSpace(r.SKU) == ""
}

// FitsQuantity reports whether n is representable as a catalog quantity,
// which the Admin API carries as a 32-bit Int
func FitsQuantity(n int) bool {
	return n >= math.MinInt32 && n <= math.MaxInt32
}

// IntQuantity converts the raw quantity cell into an integer.
// Integral floats such as "5.0" are accepted; values outside int32 are not.
func (r SourceRecord) IntQuantity() (int, error) {
	raw := strings.TrimSpace(r.Quantity)
	if raw == "" {
		return 0, &ValueConversionError{Row: r.Row, SKU: r.SKU, Value: r.Quantity}
	}
	if n, err := strconv.ParseInt(raw, 10, 64); err == nil {
		if !FitsQuantity(int(n)) {
			return 0, &ValueConversionError{Row: r.Row, SKU: r.SKU, Value: r.Quantity}
		}
		return int(n), nil
	}
	f, err := strconv.ParseFloat(raw, 64)
	if err != nil || math.IsNaN(f) || math.IsInf(f, 0) || f != math.Trunc(f) ||
		f > math.MaxInt32 || f < math.MinInt32 {
		return 0, &ValueConversionError{Row: r.Row, SKU: r.SKU, Value: r.Quantity}
	}
	return int(f), nil
}

// SaleChannels splits the comma separated sale channel cell
func (r SourceRecord) SaleChannels() []string {
	var channels []string
	for _, part := range strings.Split(r.SaleChannel, ",") {
		if part = strings.TrimSpace(part); part != "" {
			channels = append(channels, part)
		}
	}
	return channels
}

// RecordSet is a parsed quantity file
type RecordSet struct {
	Columns []string       `json:"columns"`
	Records []SourceRecord `json:"records"`
}

// NonBlank returns the records that carry a SKU
func (s *RecordSet) NonBlank() []SourceRecord {
	out := make([]SourceRecord, 0, len(s.Records))
	for _, r := range s.Records {
		if !r.IsBlank() {
			out = append(out, r)
		}
	}
	return out
}

// SchemaCheckResult is the readiness verdict for a file
type SchemaCheckResult struct {
	Columns       []string `json:"columns"`
	MissingFields []string `json:"missing_fields"`
	ReadyToSync   bool     `json:"ready_to_sync"`
	Message       string   `json:"message,omitempty"`
}

// PlanPhase distinguishes the two tabula_rasa phases
type PlanPhase string

const (
	PhaseZeroing PlanPhase = "zeroing"
	PhaseSetting PlanPhase = "setting"
)

// AdjustmentPlan is one signed delta at one location
type AdjustmentPlan struct {
	Row               int       `json:"row"`
	SKU               string    `json:"sku"`
	VariantID         string    `json:"variant_id"`
	InventoryItemID   string    `json:"inventory_item_id"`
	LocationID        string    `json:"location_id"`
	LocationName      string    `json:"location_name,omitempty"`
	Phase             PlanPhase `json:"phase,omitempty"`
	Delta             int       `json:"delta"`
	ResultingQuantity int       `json:"resulting_quantity"`
}

// IssueReason classifies records that produced no plan
type IssueReason string

const (
	ReasonSKUNotFound          IssueReason = "SKU_NOT_FOUND"
	ReasonSKUAmbiguous         IssueReason = "SKU_AMBIGUOUS"
	ReasonLookupFailed         IssueReason = "LOOKUP_FAILED"
	ReasonLocationNotFound     IssueReason = "LOCATION_NOT_FOUND"
	ReasonInvalidQuantity      IssueReason = "INVALID_QUANTITY"
	ReasonSuperseded           IssueReason = "SUPERSEDED"
	ReasonChannelPublishFailed IssueReason = "CHANNEL_PUBLISH_FAILED"
)

// RecordIssue explains why a record, or part of it, was not applied
type RecordIssue struct {
	Row        int         `json:"row"`
	SKU        string      `json:"sku"`
	LocationID string      `json:"location_id,omitempty"`
	Reason     IssueReason `json:"reason"`
	Message    string      `json:"message,omitempty"`
}

// InventoryChangeInput is one entry of an inventory adjustment mutation
type InventoryChangeInput struct {
	Delta           int    `json:"delta"`
	InventoryItemID string `json:"inventoryItemId"`
	LocationID      string `json:"locationId"`
}

// InventoryAdjustInput is the rendered payload of one batch
type InventoryAdjustInput struct {
	Reason               string                 `json:"reason"`
	Name                 string                 `json:"name"`
	ReferenceDocumentURI string                 `json:"referenceDocumentUri,omitempty"`
	Changes              []InventoryChangeInput `json:"changes"`
}

// Batch is an independently submittable group of plans
type Batch struct {
	Index int                  `json:"index"`
	Plans []AdjustmentPlan     `json:"plans"`
	Input InventoryAdjustInput `json:"input"`
}

// BatchResponse is the gateway outcome for one batch
type BatchResponse struct {
	Index int
	Plans []AdjustmentPlan
	Raw   json.RawMessage
	Err   error
}

// Change statuses
const (
	ChangeApplied          = "APPLIED"
	ChangeLocationNotFound = "LOCATION_NOT_FOUND"
)

// AppliedChange is one entry of the reconciliation report
type AppliedChange struct {
	Row                int    `json:"row,omitempty"`
	SKU                string `json:"sku,omitempty"`
	ProductID          string `json:"product_id,omitempty"`
	ProductHandle      string `json:"product_handle,omitempty"`
	VariantDisplayName string `json:"variant_display_name,omitempty"`
	LocationID         string `json:"location_id"`
	LocationName       string `json:"location_name,omitempty"`
	Delta              int    `json:"delta"`
	FinalQuantity      *int   `json:"final_quantity"`
	Status             string `json:"status"`
}

// FailedBatch marks a batch that did not apply
type FailedBatch struct {
	Index      int             `json:"index"`
	PlanCount  int             `json:"plan_count"`
	Error      string          `json:"error"`
	RawPayload json.RawMessage `json:"raw_payload,omitempty"`
}

// SyncStats carries record counts and ratios of one run
type SyncStats struct {
	NonBlankRecords     int     `json:"non_blank_records"`
	MatchedRecords      int     `json:"matched_records"`
	UnmatchedRecords    int     `json:"unmatched_records"`
	AmbiguousRecords    int     `json:"ambiguous_records"`
	LookupFailedRecords int     `json:"lookup_failed_records"`
	RejectedRecords     int     `json:"rejected_records"`
	PlannedChanges      int     `json:"planned_changes"`
	AppliedChanges      int     `json:"applied_changes"`
	Batches             int     `json:"batches"`
	FailedBatches       int     `json:"failed_batches"`
	MatchRatio          float64 `json:"match_ratio"`
	AppliedRatio        float64 `json:"applied_ratio"`
}

// SyncResult is the terminal report of a sync run
type SyncResult struct {
	RunID         string           `json:"run_id,omitempty"`
	Mode          SyncMode         `json:"mode"`
	DryRun        bool             `json:"dry_run"`
	Data          json.RawMessage  `json:"data"`
	Changes       []AppliedChange  `json:"changes"`
	Plans         []AdjustmentPlan `json:"plans,omitempty"`
	MissingRows   []string         `json:"missing_rows"`
	DuplicateRows []string         `json:"duplicate_rows"`
	AmbiguousRows []string         `json:"ambiguous_rows"`
	Issues        []RecordIssue    `json:"issues"`
	FailedBatches []FailedBatch    `json:"failed_batches"`
	TotalRecords  int              `json:"total_records"`
	Stats         SyncStats        `json:"stats"`
}

// HasFailedBatches reports whether any batch did not apply
func (r *SyncResult) HasFailedBatches() bool {
	return len(r.FailedBatches) > 0
}
