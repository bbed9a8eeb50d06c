package services

import (
	"quantity-sync-service/internal/models"
)

// DefaultBatchSize is the number of plans per mutation when none is configured
const DefaultBatchSize = 250

// BatchOptions controls how plans are rendered into mutations
type BatchOptions struct {
	MaxSize      int
	Reason       string
	ReferenceURI string
}

// BuildBatches splits plans into ceil(n/MaxSize) batches preserving order.
// Zero-delta plans stay in Plans but are left out of the mutation input.
func BuildBatches(plans []models.AdjustmentPlan, opts BatchOptions) []models.Batch {
	size := opts.MaxSize
	if size <= 0 {
		size = DefaultBatchSize
	}
	reason := opts.Reason
	if reason == "" {
		reason = "other"
	}

	batches := make([]models.Batch, 0, (len(plans)+size-1)/size)
	for start := 0; start < len(plans); start += size {
		end := start + size
		if end > len(plans) {
			end = len(plans)
		}
		chunk := plans[start:end:end]

		changes := make([]models.InventoryChangeInput, 0, len(chunk))
		for _, p := range chunk {
			if p.Delta == 0 {
				continue
			}
			changes = append(changes, models.InventoryChangeInput{
				Delta:           p.Delta,
				InventoryItemID: p.InventoryItemID,
				LocationID:      p.LocationID,
			})
		}

		batches = append(batches, models.Batch{
			Index: len(batches),
			Plans: chunk,
			Input: models.InventoryAdjustInput{
				Reason:               reason,
				Name:                 "available",
				ReferenceDocumentURI: opts.ReferenceURI,
				Changes:              changes,
			},
		})
	}
	return batches
}
