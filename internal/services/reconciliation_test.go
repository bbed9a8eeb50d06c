package services

import (
	"context"
	"math"
	"strconv"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"quantity-sync-service/internal/models"
)

func TestPlanSingleRecordPerMode(t *testing.T) {
	a := variant("A", "1", level("L1", 10))
	input := []ResolvedRecord{resolved(record(2, "A", "5", ""), a)}

	tests := []struct {
		mode   models.SyncMode
		deltas []int
		result []int
		phases []models.PlanPhase
	}{
		{mode: models.SyncModeAdjust, deltas: []int{5}, result: []int{15}, phases: []models.PlanPhase{""}},
		{mode: models.SyncModeReplace, deltas: []int{-5}, result: []int{5}, phases: []models.PlanPhase{""}},
		{
			mode:   models.SyncModeTabulaRasa,
			deltas: []int{-10, 5},
			result: []int{0, 5},
			phases: []models.PlanPhase{models.PhaseZeroing, models.PhaseSetting},
		},
	}

	for _, tt := range tests {
		t.Run(string(tt.mode), func(t *testing.T) {
			result := Plan(input, tt.mode)
			require.Len(t, result.Plans, len(tt.deltas))
			for i, p := range result.Plans {
				assert.Equal(t, "A", p.SKU)
				assert.Equal(t, "gid://shopify/Location/L1", p.LocationID)
				assert.Equal(t, tt.deltas[i], p.Delta, "delta %d", i)
				assert.Equal(t, tt.result[i], p.ResultingQuantity, "resulting %d", i)
				assert.Equal(t, tt.phases[i], p.Phase)
			}
			assert.Empty(t, result.Issues)
		})
	}
}

func TestPlanAdjustIsAdditive(t *testing.T) {
	a := variant("A", "1", level("L1", 10))
	input := []ResolvedRecord{
		resolved(record(2, "A", "3", "L1"), a),
		resolved(record(3, "A", "-1", "L1"), a),
		resolved(record(4, "A", "4", "L1"), a),
	}

	result := Plan(input, models.SyncModeAdjust)
	require.Len(t, result.Plans, 3)

	total := 0
	for _, p := range result.Plans {
		total += p.Delta
	}
	assert.Equal(t, 6, total)
	assert.Equal(t, []int{13, 12, 16}, resultingOf(result.Plans))
}

func TestPlanReplaceIsSnapshotStable(t *testing.T) {
	a := variant("A", "1", level("L1", 10))
	input := []ResolvedRecord{
		resolved(record(2, "A", "7", "L1"), a),
		resolved(record(3, "A", "7", "L1"), a),
	}

	result := Plan(input, models.SyncModeReplace)
	require.Len(t, result.Plans, 1)
	assert.Equal(t, -3, result.Plans[0].Delta)
	assert.Equal(t, 7, result.Plans[0].ResultingQuantity)
	assert.Equal(t, 3, result.Plans[0].Row, "the last record wins")

	require.Len(t, result.Issues, 1)
	assert.Equal(t, models.ReasonSuperseded, result.Issues[0].Reason)
	assert.Equal(t, 2, result.Issues[0].Row)
}

func TestPlanReplaceMatchesFullAndShortLocationIDs(t *testing.T) {
	a := variant("A", "1", level("L1", 10))
	input := []ResolvedRecord{
		resolved(record(2, "A", "1", "gid://shopify/Location/L1"), a),
		resolved(record(3, "A", "4", "L1"), a),
	}

	result := Plan(input, models.SyncModeReplace)
	require.Len(t, result.Plans, 1)
	assert.Equal(t, -6, result.Plans[0].Delta)
}

func TestPlanTabulaRasaZeroesEveryLocationFirst(t *testing.T) {
	a := variant("A", "1", level("L1", 10), level("L2", 3))
	b := variant("B", "2", level("L1", 0), level("L3", -2))
	input := []ResolvedRecord{
		resolved(record(2, "A", "5", "L1"), a),
		resolved(record(3, "B", "2", "L3"), b),
		resolved(record(4, "A", "1", "L1"), a),
	}

	result := Plan(input, models.SyncModeTabulaRasa)
	require.Len(t, result.Plans, 7)

	zeroing := result.Plans[:4]
	for _, p := range zeroing {
		assert.Equal(t, models.PhaseZeroing, p.Phase)
		assert.Equal(t, 0, p.ResultingQuantity)
	}
	assert.Equal(t, []int{-10, -3, 0, 2}, deltasOf(zeroing))

	setting := result.Plans[4:]
	for _, p := range setting {
		assert.Equal(t, models.PhaseSetting, p.Phase)
	}
	assert.Equal(t, []int{5, 2, 1}, deltasOf(setting))
	assert.Equal(t, []int{5, 2, 6}, resultingOf(setting))

	// ordering invariant per variant
	lastZero := map[string]int{}
	firstSet := map[string]int{}
	for i, p := range result.Plans {
		if p.Phase == models.PhaseZeroing {
			lastZero[p.VariantID] = i
		} else if _, ok := firstSet[p.VariantID]; !ok {
			firstSet[p.VariantID] = i
		}
	}
	for id, first := range firstSet {
		assert.Less(t, lastZero[id], first)
	}
}

func TestPlanFansOutWithoutLocation(t *testing.T) {
	a := variant("A", "1", level("L1", 10), level("L2", 1))
	result := Plan([]ResolvedRecord{resolved(record(2, "A", "2", ""), a)}, models.SyncModeReplace)

	require.Len(t, result.Plans, 2)
	assert.Equal(t, []int{-8, 1}, deltasOf(result.Plans))
}

func TestPlanLocationNotFound(t *testing.T) {
	a := variant("A", "1", level("L1", 10))
	bare := variant("B", "2")
	input := []ResolvedRecord{
		resolved(record(2, "A", "5", "L9"), a),
		resolved(record(3, "B", "5", ""), bare),
	}

	for _, mode := range []models.SyncMode{models.SyncModeAdjust, models.SyncModeReplace, models.SyncModeTabulaRasa} {
		result := Plan(input, mode)
		assert.Empty(t, result.Plans, mode)
		require.Len(t, result.Unresolved, 2)
		assert.Equal(t, "L9", result.Unresolved[0].LocationID)
		assert.Nil(t, result.Unresolved[0].FinalQuantity)
		assert.Equal(t, models.ChangeLocationNotFound, result.Unresolved[1].Status)
		require.Len(t, result.Issues, 2)
		assert.Equal(t, models.ReasonLocationNotFound, result.Issues[0].Reason)
	}
}

func TestPlanRejectsInvalidQuantities(t *testing.T) {
	a := variant("A", "1", level("L1", 10))
	input := []ResolvedRecord{
		resolved(record(2, "A", "five", ""), a),
		resolved(record(3, "A", "2.5", ""), a),
		resolved(record(4, "A", "3.0", ""), a),
	}

	result := Plan(input, models.SyncModeAdjust)
	assert.Equal(t, 2, result.RejectedRecords)
	require.Len(t, result.Plans, 1)
	assert.Equal(t, 3, result.Plans[0].Delta)
	for _, issue := range result.Issues {
		assert.Equal(t, models.ReasonInvalidQuantity, issue.Reason)
	}
}

func TestPlanRejectsQuantitiesOutsideInt32(t *testing.T) {
	t.Run("cell out of range", func(t *testing.T) {
		a := variant("A", "1", level("L1", 10))
		input := []ResolvedRecord{
			resolved(record(2, "A", "3000000000", "L1"), a),
			resolved(record(3, "A", "4", "L1"), a),
		}

		result := Plan(input, models.SyncModeAdjust)
		assert.Equal(t, 1, result.RejectedRecords)
		require.Len(t, result.Plans, 1)
		assert.Equal(t, 3, result.Plans[0].Row)
		assert.Equal(t, []int{14}, resultingOf(result.Plans))
	})

	t.Run("adjust running total overflows", func(t *testing.T) {
		a := variant("A", "1", level("L1", math.MaxInt32-1))
		input := []ResolvedRecord{
			resolved(record(2, "A", "5", "L1"), a),
			resolved(record(3, "A", "-1", "L1"), a),
		}

		result := Plan(input, models.SyncModeAdjust)
		require.Len(t, result.Plans, 1)
		assert.Equal(t, 3, result.Plans[0].Row)
		assert.Equal(t, math.MaxInt32-2, result.Plans[0].ResultingQuantity)
		require.Len(t, result.Issues, 1)
		assert.Equal(t, models.ReasonInvalidQuantity, result.Issues[0].Reason)
		assert.Equal(t, 2, result.Issues[0].Row)
	})

	t.Run("replace delta overflows", func(t *testing.T) {
		a := variant("A", "1", level("L1", -10), level("L2", 0))
		input := []ResolvedRecord{resolved(record(2, "A", strconv.Itoa(math.MaxInt32), ""), a)}

		result := Plan(input, models.SyncModeReplace)
		require.Len(t, result.Plans, 1)
		assert.Equal(t, "gid://shopify/Location/L2", result.Plans[0].LocationID)
		assert.Equal(t, math.MaxInt32, result.Plans[0].Delta)
		require.Len(t, result.Issues, 1)
		assert.Equal(t, "gid://shopify/Location/L1", result.Issues[0].LocationID)
	})
}

func TestPlanReplaceIsIdempotent(t *testing.T) {
	gateway := newFakeGateway(variant("A", "1", level("L1", 10), level("L2", 4)))
	records := []models.SourceRecord{record(2, "A", "6", "L1"), record(3, "A", "9", "L2")}
	resolver := NewCatalogResolver(2, testLogger())
	store := models.StoreContext{ID: "af-milano"}

	first, err := resolver.Resolve(context.Background(), gateway, store, records)
	require.NoError(t, err)
	plan := Plan(first.Resolved, models.SyncModeReplace)
	for _, batch := range BuildBatches(plan.Plans, BatchOptions{}) {
		_, err := gateway.SubmitBatch(context.Background(), store, batch)
		require.NoError(t, err)
	}

	second, err := resolver.Resolve(context.Background(), gateway, store, records)
	require.NoError(t, err)
	again := Plan(second.Resolved, models.SyncModeReplace)
	require.Len(t, again.Plans, 2)
	for _, p := range again.Plans {
		assert.Zero(t, p.Delta)
	}
}

func deltasOf(plans []models.AdjustmentPlan) []int {
	out := make([]int, len(plans))
	for i, p := range plans {
		out[i] = p.Delta
	}
	return out
}

func resultingOf(plans []models.AdjustmentPlan) []int {
	out := make([]int, len(plans))
	for i, p := range plans {
		out[i] = p.ResultingQuantity
	}
	return out
}
