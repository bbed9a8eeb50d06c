package services

import (
	"fmt"
	"strings"

	"quantity-sync-service/internal/models"
)

// PlanResult is the output of the reconciliation engine
type PlanResult struct {
	Mode  models.SyncMode
	Plans []models.AdjustmentPlan
	// Unresolved holds one change per record whose location is not in the
	// snapshot, in record order
	Unresolved      []models.AppliedChange
	Issues          []models.RecordIssue
	RejectedRecords int
}

// target is one (record, inventory level) pair with a parsed quantity
type target struct {
	record   models.SourceRecord
	variant  models.CatalogVariant
	level    models.InventoryLevel
	quantity int
}

func (t target) key() string {
	return t.variant.VariantID + "|" + models.ShortID(t.level.LocationID)
}

func (t target) plan(phase models.PlanPhase, delta, resulting int) models.AdjustmentPlan {
	return models.AdjustmentPlan{
		Row:               t.record.Row,
		SKU:               t.record.SKU,
		VariantID:         t.variant.VariantID,
		InventoryItemID:   t.variant.InventoryItemID,
		LocationID:        t.level.LocationID,
		LocationName:      t.level.LocationName,
		Phase:             phase,
		Delta:             delta,
		ResultingQuantity: resulting,
	}
}

// Plan computes the per-location deltas for the resolved records. Plans
// follow record order; tabula_rasa emits its whole zeroing phase first.
func Plan(resolved []ResolvedRecord, mode models.SyncMode) *PlanResult {
	result := &PlanResult{Mode: mode}
	targets := expandTargets(resolved, result)

	switch mode {
	case models.SyncModeReplace:
		result.Plans = planReplace(targets, result)
	case models.SyncModeTabulaRasa:
		result.Plans = planTabulaRasa(targets, result)
	default:
		result.Plans = planAdjust(targets, result)
	}
	return result
}

// overflow records a target whose delta or resulting quantity does not fit
// the catalog's 32-bit quantities
func (r *PlanResult) overflow(t target, delta, resulting int) {
	r.Issues = append(r.Issues, models.RecordIssue{
		Row:        t.record.Row,
		SKU:        t.record.SKU,
		LocationID: t.level.LocationID,
		Reason:     models.ReasonInvalidQuantity,
		Message:    fmt.Sprintf("delta %d to %d is out of range", delta, resulting),
	})
}

// expandTargets converts quantities and fans each record out to its
// target locations. Rejected and unlocatable records are recorded on result.
func expandTargets(resolved []ResolvedRecord, result *PlanResult) []target {
	var targets []target
	for _, rr := range resolved {
		rec := rr.Record
		qty, err := rec.IntQuantity()
		if err != nil {
			result.RejectedRecords++
			result.Issues = append(result.Issues, models.RecordIssue{
				Row: rec.Row, SKU: rec.SKU, Reason: models.ReasonInvalidQuantity, Message: err.Error(),
			})
			continue
		}

		location := strings.TrimSpace(rec.LocationID)
		if location != "" {
			level, ok := rr.Variant.Level(location)
			if !ok {
				result.unresolved(rr, location, fmt.Sprintf("location %s is not stocked for this variant", location))
				continue
			}
			targets = append(targets, target{record: rec, variant: rr.Variant, level: level, quantity: qty})
			continue
		}

		if len(rr.Variant.InventoryLevels) == 0 {
			result.unresolved(rr, "", "variant is not stocked at any location")
			continue
		}
		for _, level := range rr.Variant.InventoryLevels {
			targets = append(targets, target{record: rec, variant: rr.Variant, level: level, quantity: qty})
		}
	}
	return targets
}

func (r *PlanResult) unresolved(rr ResolvedRecord, location, message string) {
	r.Issues = append(r.Issues, models.RecordIssue{
		Row:        rr.Record.Row,
		SKU:        rr.Record.SKU,
		LocationID: location,
		Reason:     models.ReasonLocationNotFound,
		Message:    message,
	})
	r.Unresolved = append(r.Unresolved, models.AppliedChange{
		Row:                rr.Record.Row,
		SKU:                rr.Record.SKU,
		ProductID:          rr.Variant.ProductID,
		ProductHandle:      rr.Variant.ProductHandle,
		VariantDisplayName: rr.Variant.DisplayName,
		LocationID:         location,
		Status:             models.ChangeLocationNotFound,
	})
}

// planAdjust adds each quantity to a running total seeded from the snapshot.
// A record that would push the total out of range is skipped.
func planAdjust(targets []target, result *PlanResult) []models.AdjustmentPlan {
	running := make(map[string]int)
	plans := make([]models.AdjustmentPlan, 0, len(targets))
	for _, t := range targets {
		current, ok := running[t.key()]
		if !ok {
			current = t.level.Available
		}
		if !models.FitsQuantity(current + t.quantity) {
			result.overflow(t, t.quantity, current+t.quantity)
			running[t.key()] = current
			continue
		}
		current += t.quantity
		running[t.key()] = current
		plans = append(plans, t.plan("", t.quantity, current))
	}
	return plans
}

// planReplace measures every delta against the original snapshot; only the
// last record per (variant, location) produces a plan
func planReplace(targets []target, result *PlanResult) []models.AdjustmentPlan {
	last := make(map[string]int, len(targets))
	for i, t := range targets {
		last[t.key()] = i
	}

	plans := make([]models.AdjustmentPlan, 0, len(last))
	for i, t := range targets {
		if last[t.key()] != i {
			winner := targets[last[t.key()]]
			result.Issues = append(result.Issues, models.RecordIssue{
				Row:        t.record.Row,
				SKU:        t.record.SKU,
				LocationID: t.level.LocationID,
				Reason:     models.ReasonSuperseded,
				Message:    fmt.Sprintf("superseded by row %d", winner.record.Row),
			})
			continue
		}
		delta := t.quantity - t.level.Available
		if !models.FitsQuantity(delta) {
			result.overflow(t, delta, t.quantity)
			continue
		}
		plans = append(plans, t.plan("", delta, t.quantity))
	}
	return plans
}

// planTabulaRasa zeroes every known location of every variant in scope,
// then adds each record's quantity on top of zero
func planTabulaRasa(targets []target, result *PlanResult) []models.AdjustmentPlan {
	var plans []models.AdjustmentPlan

	zeroed := make(map[string]bool)
	for _, t := range targets {
		if zeroed[t.variant.VariantID] {
			continue
		}
		zeroed[t.variant.VariantID] = true
		for _, level := range t.variant.InventoryLevels {
			z := target{record: t.record, variant: t.variant, level: level}
			plans = append(plans, z.plan(models.PhaseZeroing, -level.Available, 0))
		}
	}

	running := make(map[string]int)
	for _, t := range targets {
		if !models.FitsQuantity(running[t.key()] + t.quantity) {
			result.overflow(t, t.quantity, running[t.key()]+t.quantity)
			continue
		}
		running[t.key()] += t.quantity
		plans = append(plans, t.plan(models.PhaseSetting, t.quantity, running[t.key()]))
	}
	return plans
}
