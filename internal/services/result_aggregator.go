package services

import (
	"encoding/json"
	"errors"
	"fmt"
	"sort"

	"quantity-sync-service/internal/clients"
	"quantity-sync-service/internal/models"
)

var emptyData = json.RawMessage(`{}`)

// Aggregate merges batch responses into one report. Failed batches are
// listed, never retried. The returned error is a *models.ResponseShapeError
// only when no batch produced a recognizable payload; the result is
// complete in every case.
func Aggregate(responses []models.BatchResponse, res *Resolution, plan *PlanResult, totalRecords int) (*models.SyncResult, error) {
	if res == nil {
		res = &Resolution{}
	}
	if plan == nil {
		plan = &PlanResult{}
	}

	result := &models.SyncResult{
		Mode:          plan.Mode,
		Data:          emptyData,
		Changes:       make([]models.AppliedChange, 0),
		MissingRows:   append(make([]string, 0, len(res.MissingSKUs)), res.MissingSKUs...),
		AmbiguousRows: append(make([]string, 0, len(res.AmbiguousSKUs)), res.AmbiguousSKUs...),
		Issues:        mergeIssues(res.Issues, plan.Issues),
		FailedBatches: make([]models.FailedBatch, 0),
		TotalRecords:  totalRecords,
	}

	ordered := make([]models.BatchResponse, len(responses))
	copy(ordered, responses)
	sort.SliceStable(ordered, func(i, j int) bool { return ordered[i].Index < ordered[j].Index })

	var (
		rawChanges   []json.RawMessage
		unrecognized []json.RawMessage
		recognized   int
		shapeErrors  int
		applied      int
	)

	for _, resp := range ordered {
		if resp.Err != nil {
			result.FailedBatches = append(result.FailedBatches, models.FailedBatch{
				Index:      resp.Index,
				PlanCount:  len(resp.Plans),
				Error:      resp.Err.Error(),
				RawPayload: passthrough(resp.Raw),
			})
			continue
		}

		payload, err := clients.DecodeAdjustPayload(resp.Raw)
		if err != nil {
			shapeErrors++
			shapeErr := &models.ResponseShapeError{BatchIndex: resp.Index, Reason: err.Error(), Raw: passthrough(resp.Raw)}
			unrecognized = append(unrecognized, shapeErr.Raw)
			result.FailedBatches = append(result.FailedBatches, models.FailedBatch{
				Index:      resp.Index,
				PlanCount:  len(resp.Plans),
				Error:      shapeErr.Error(),
				RawPayload: shapeErr.Raw,
			})
			continue
		}

		recognized++
		applied += len(resp.Plans)
		rawChanges = append(rawChanges, payload.RawChanges...)
		result.Changes = append(result.Changes, matchChanges(payload.Changes, resp.Plans)...)
	}

	result.Changes = append(result.Changes, plan.Unresolved...)

	var aggErr error
	switch {
	case recognized > 0:
		data, err := adjustData(rawChanges)
		if err != nil {
			return nil, fmt.Errorf("failed to encode aggregated changes: %w", err)
		}
		result.Data = data
	case shapeErrors > 0:
		result.Data = verbatim(unrecognized)
		aggErr = &models.ResponseShapeError{
			BatchIndex: -1,
			Reason:     fmt.Sprintf("none of %d batch responses matched inventoryAdjustQuantities", len(ordered)),
			Raw:        result.Data,
		}
	}

	result.Stats = buildStats(res, plan, len(ordered), len(result.FailedBatches), applied)
	return result, aggErr
}

// matchChanges turns decoded changes into report entries, joining each to
// the batch plan for the same inventory item and location
func matchChanges(changes []clients.AdjustmentChange, plans []models.AdjustmentPlan) []models.AppliedChange {
	pending := make(map[string][]models.AdjustmentPlan)
	lastMatch := make(map[string]models.AdjustmentPlan)
	for _, p := range plans {
		if p.Delta == 0 {
			continue
		}
		key := planKey(p.InventoryItemID, p.LocationID)
		pending[key] = append(pending[key], p)
	}

	out := make([]models.AppliedChange, 0, len(changes))
	for _, c := range changes {
		entry := models.AppliedChange{
			LocationID:   c.Location.ID,
			LocationName: c.Location.Name,
			Delta:        c.Delta,
			Status:       models.ChangeApplied,
		}
		if c.Item.Variant != nil {
			entry.SKU = c.Item.Variant.SKU
			entry.VariantDisplayName = c.Item.Variant.DisplayName
			entry.ProductID = c.Item.Variant.Product.ID
			entry.ProductHandle = c.Item.Variant.Product.Handle
		}
		if qty, ok := c.QuantityAt(c.Location.ID); ok {
			entry.FinalQuantity = &qty
		}

		key := planKey(c.Item.ID, c.Location.ID)
		p, ok := lastMatch[key]
		if queue := pending[key]; len(queue) > 0 {
			p, ok = queue[0], true
			pending[key] = queue[1:]
			lastMatch[key] = p
		}
		if ok {
			entry.Row = p.Row
			if entry.SKU == "" {
				entry.SKU = p.SKU
			}
			if entry.LocationName == "" {
				entry.LocationName = p.LocationName
			}
		}
		out = append(out, entry)
	}
	return out
}

func planKey(itemID, locationID string) string {
	return models.ShortID(itemID) + "|" + models.ShortID(locationID)
}

func adjustData(rawChanges []json.RawMessage) (json.RawMessage, error) {
	if rawChanges == nil {
		rawChanges = make([]json.RawMessage, 0)
	}
	return json.Marshal(map[string]interface{}{
		"inventoryAdjustQuantities": map[string]interface{}{
			"inventoryAdjustmentGroup": map[string]interface{}{
				"changes": rawChanges,
			},
			"userErrors": make([]clients.UserError, 0),
		},
	})
}

// verbatim returns a single payload unchanged, or several as a JSON array
func verbatim(payloads []json.RawMessage) json.RawMessage {
	if len(payloads) == 1 {
		return payloads[0]
	}
	data, err := json.Marshal(payloads)
	if err != nil {
		return emptyData
	}
	return data
}

// passthrough keeps valid JSON as is and quotes anything else
func passthrough(raw json.RawMessage) json.RawMessage {
	if len(raw) == 0 {
		return nil
	}
	if json.Valid(raw) {
		return raw
	}
	quoted, _ := json.Marshal(string(raw))
	return quoted
}

func mergeIssues(groups ...[]models.RecordIssue) []models.RecordIssue {
	merged := make([]models.RecordIssue, 0)
	for _, g := range groups {
		merged = append(merged, g...)
	}
	sort.SliceStable(merged, func(i, j int) bool { return merged[i].Row < merged[j].Row })
	return merged
}

func buildStats(res *Resolution, plan *PlanResult, batches, failed, applied int) models.SyncStats {
	stats := models.SyncStats{
		NonBlankRecords:     res.NonBlankRecords,
		MatchedRecords:      res.MatchedRecords,
		UnmatchedRecords:    res.UnmatchedRecords,
		AmbiguousRecords:    res.AmbiguousRecords,
		LookupFailedRecords: res.LookupFailedRecords,
		RejectedRecords:     plan.RejectedRecords,
		PlannedChanges:      len(plan.Plans),
		AppliedChanges:      applied,
		Batches:             batches,
		FailedBatches:       failed,
	}
	if stats.NonBlankRecords > 0 {
		stats.MatchRatio = float64(stats.MatchedRecords) / float64(stats.NonBlankRecords)
	}
	if stats.PlannedChanges > 0 {
		stats.AppliedRatio = float64(stats.AppliedChanges) / float64(stats.PlannedChanges)
	}
	return stats
}

// IsResponseShapeError reports whether err marks an unrecognizable run
func IsResponseShapeError(err error) bool {
	var shapeErr *models.ResponseShapeError
	return errors.As(err, &shapeErr)
}
