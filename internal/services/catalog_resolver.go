package services

import (
	"context"
	"fmt"
	"strings"

	"github.com/sirupsen/logrus"
	"golang.org/x/sync/errgroup"

	"quantity-sync-service/internal/clients"
	"quantity-sync-service/internal/models"
)

// ResolvedRecord pairs a record with the single variant its SKU matched
type ResolvedRecord struct {
	Record  models.SourceRecord
	Variant models.CatalogVariant
}

// Resolution is the catalog snapshot for one run
type Resolution struct {
	Store         models.StoreContext
	Resolved      []ResolvedRecord
	MissingSKUs   []string
	AmbiguousSKUs []string
	Issues        []models.RecordIssue

	NonBlankRecords     int
	MatchedRecords      int
	UnmatchedRecords    int
	AmbiguousRecords    int
	LookupFailedRecords int
}

type lookupOutcome struct {
	variants []models.CatalogVariant
	err      error
}

// CatalogResolver maps SKUs to catalog variants and their inventory levels
type CatalogResolver struct {
	concurrency int
	log         *logrus.Entry
}

// NewCatalogResolver creates a resolver issuing at most concurrency lookups
// at a time
func NewCatalogResolver(concurrency int, log *logrus.Entry) *CatalogResolver {
	if concurrency <= 0 {
		concurrency = 1
	}
	return &CatalogResolver{concurrency: concurrency, log: log}
}

// Resolve looks up every distinct SKU of the non-blank records. Records keep
// their input order in the resolution.
func (r *CatalogResolver) Resolve(ctx context.Context, gateway clients.InventoryGateway, store models.StoreContext, records []models.SourceRecord) (*Resolution, error) {
	var skus []string
	index := make(map[string]int)
	for _, rec := range records {
		sku := strings.TrimSpace(rec.SKU)
		if sku == "" {
			continue
		}
		if _, seen := index[sku]; !seen {
			index[sku] = len(skus)
			skus = append(skus, sku)
		}
	}

	outcomes := make([]lookupOutcome, len(skus))
	var g errgroup.Group
	g.SetLimit(r.concurrency)
	for i, sku := range skus {
		i, sku := i, sku
		g.Go(func() error {
			if err := ctx.Err(); err != nil {
				outcomes[i] = lookupOutcome{err: err}
				return nil
			}
			variants, err := gateway.LookupVariants(ctx, store, sku)
			outcomes[i] = lookupOutcome{variants: variants, err: err}
			return nil
		})
	}
	_ = g.Wait()

	if err := ctx.Err(); err != nil {
		return nil, err
	}

	failed := 0
	var firstErr error
	for i, o := range outcomes {
		if o.err != nil {
			failed++
			if firstErr == nil {
				firstErr = o.err
			}
			r.log.WithError(o.err).WithFields(logrus.Fields{
				"store": store.ID,
				"sku":   skus[i],
			}).Warn("Catalog lookup failed")
		}
	}
	if len(skus) > 0 && failed == len(skus) {
		return nil, fmt.Errorf("%w: %d lookups failed: %v", models.ErrCatalogUnreachable, failed, firstErr)
	}

	res := &Resolution{Store: store}
	missingSeen := make(map[string]bool)
	ambiguousSeen := make(map[string]bool)

	for _, rec := range records {
		sku := strings.TrimSpace(rec.SKU)
		if sku == "" {
			continue
		}
		rec.SKU = sku
		res.NonBlankRecords++
		o := outcomes[index[sku]]

		switch {
		case o.err != nil:
			res.LookupFailedRecords++
			res.Issues = append(res.Issues, models.RecordIssue{
				Row: rec.Row, SKU: sku, Reason: models.ReasonLookupFailed, Message: o.err.Error(),
			})
		case len(o.variants) == 0:
			res.UnmatchedRecords++
			if !missingSeen[sku] {
				missingSeen[sku] = true
				res.MissingSKUs = append(res.MissingSKUs, sku)
			}
			res.Issues = append(res.Issues, models.RecordIssue{
				Row: rec.Row, SKU: sku, Reason: models.ReasonSKUNotFound,
			})
		case len(o.variants) > 1:
			ambErr := ambiguityError(sku, o.variants)
			res.AmbiguousRecords++
			if !ambiguousSeen[sku] {
				ambiguousSeen[sku] = true
				res.AmbiguousSKUs = append(res.AmbiguousSKUs, sku)
			}
			res.Issues = append(res.Issues, models.RecordIssue{
				Row: rec.Row, SKU: sku, Reason: models.ReasonSKUAmbiguous, Message: ambErr.Error(),
			})
		default:
			res.MatchedRecords++
			res.Resolved = append(res.Resolved, ResolvedRecord{Record: rec, Variant: o.variants[0]})
		}
	}

	r.log.WithFields(logrus.Fields{
		"store":         store.ID,
		"distinct_skus": len(skus),
		"matched":       res.MatchedRecords,
		"missing":       res.UnmatchedRecords,
		"ambiguous":     res.AmbiguousRecords,
		"lookup_failed": res.LookupFailedRecords,
	}).Info("Catalog resolution complete")
	return res, nil
}

func ambiguityError(sku string, variants []models.CatalogVariant) *models.CatalogAmbiguityError {
	ids := make([]string, len(variants))
	for i, v := range variants {
		ids[i] = v.VariantID
	}
	return &models.CatalogAmbiguityError{SKU: sku, VariantIDs: ids}
}

