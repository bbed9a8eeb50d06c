package services

import (
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"quantity-sync-service/internal/models"
)

func makePlans(n int) []models.AdjustmentPlan {
	plans := make([]models.AdjustmentPlan, n)
	for i := range plans {
		plans[i] = models.AdjustmentPlan{
			Row:             i + 2,
			SKU:             fmt.Sprintf("SKU-%d", i),
			InventoryItemID: fmt.Sprintf("gid://shopify/InventoryItem/%d", i),
			LocationID:      "gid://shopify/Location/1",
			Delta:           i + 1,
		}
	}
	return plans
}

func TestBuildBatchesPartitioning(t *testing.T) {
	tests := []struct {
		n, k    int
		batches int
	}{
		{n: 0, k: 3, batches: 0},
		{n: 1, k: 3, batches: 1},
		{n: 3, k: 3, batches: 1},
		{n: 7, k: 3, batches: 3},
		{n: 9, k: 3, batches: 3},
		{n: 251, k: 0, batches: 2},
	}

	for _, tt := range tests {
		t.Run(fmt.Sprintf("n=%d,k=%d", tt.n, tt.k), func(t *testing.T) {
			plans := makePlans(tt.n)
			batches := BuildBatches(plans, BatchOptions{MaxSize: tt.k})
			require.Len(t, batches, tt.batches)

			size := tt.k
			if size <= 0 {
				size = DefaultBatchSize
			}
			var joined []models.AdjustmentPlan
			for i, b := range batches {
				assert.Equal(t, i, b.Index)
				if i < len(batches)-1 {
					assert.Len(t, b.Plans, size)
				} else {
					assert.LessOrEqual(t, len(b.Plans), size)
					assert.NotEmpty(t, b.Plans)
				}
				joined = append(joined, b.Plans...)
			}
			if tt.n == 0 {
				assert.Empty(t, joined)
				return
			}
			assert.Equal(t, plans, joined)
		})
	}
}

func TestBuildBatchesRendersInput(t *testing.T) {
	plans := makePlans(3)
	plans[1].Delta = 0

	batches := BuildBatches(plans, BatchOptions{
		MaxSize:      10,
		Reason:       "correction",
		ReferenceURI: "logistics://quantity-sync/run-1",
	})
	require.Len(t, batches, 1)

	input := batches[0].Input
	assert.Equal(t, "correction", input.Reason)
	assert.Equal(t, "available", input.Name)
	assert.Equal(t, "logistics://quantity-sync/run-1", input.ReferenceDocumentURI)
	require.Len(t, input.Changes, 2, "zero deltas are not sent")
	assert.Equal(t, 1, input.Changes[0].Delta)
	assert.Equal(t, 3, input.Changes[1].Delta)
	assert.Len(t, batches[0].Plans, 3)
}

func TestBuildBatchesDefaultReason(t *testing.T) {
	batches := BuildBatches(makePlans(1), BatchOptions{})
	require.Len(t, batches, 1)
	assert.Equal(t, "other", batches[0].Input.Reason)
}
