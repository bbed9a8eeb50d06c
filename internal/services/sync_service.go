package services

import (
	"context"
	"errors"
	"fmt"
	"io"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/sirupsen/logrus"
	"golang.org/x/sync/errgroup"

	"quantity-sync-service/internal/clients"
	"quantity-sync-service/internal/models"
	"quantity-sync-service/internal/spreadsheet"
)

// FileSource opens stored quantity files by name
type FileSource interface {
	Open(name string) (io.ReadCloser, error)
}

// SourceFileRepository persists file-level defaults
type SourceFileRepository interface {
	GetDefaults(ctx context.Context, fileName string) (models.JSONB, error)
	SaveDefaults(ctx context.Context, fileName string, defaults models.JSONB) error
	DeleteByName(ctx context.Context, fileName string) error
}

// RunRepository persists sync run records
type RunRepository interface {
	Create(ctx context.Context, run *models.SyncRun) error
	Update(ctx context.Context, run *models.SyncRun) error
	ListByStore(ctx context.Context, storeID string, limit int) ([]models.SyncRun, error)
	GetByID(ctx context.Context, storeID string, id uuid.UUID) (*models.SyncRun, error)
}

// RunEventPublisher announces finished runs
type RunEventPublisher interface {
	PublishRunCompleted(ctx context.Context, run *models.SyncRun) error
}

// ChangeLogWriter stores the applied changes of a run and returns where
type ChangeLogWriter interface {
	Write(store models.StoreContext, run *models.SyncRun, changes []models.AppliedChange) (string, error)
}

// SyncMetrics records run outcomes
type SyncMetrics interface {
	RunCompleted(store string, mode models.SyncMode, status models.RunStatus, duration time.Duration)
	BatchSubmitted(store string, failed bool, duration time.Duration)
	RecordsProcessed(store string, stats models.SyncStats)
}

type nopMetrics struct{}

func (nopMetrics) RunCompleted(string, models.SyncMode, models.RunStatus, time.Duration) {}
func (nopMetrics) BatchSubmitted(string, bool, time.Duration)                            {}
func (nopMetrics) RecordsProcessed(string, models.SyncStats)                             {}

// SyncServiceConfig tunes the sync pipeline
type SyncServiceConfig struct {
	BatchSize          int
	SubmitConcurrency  int
	BatchTimeout       time.Duration
	Reason             string
	ReferenceURIPrefix string
}

// SyncOptions are the per-request parameters of a sync run
type SyncOptions struct {
	Mode   models.SyncMode
	DryRun bool
}

// SyncService runs the check and sync pipelines for stored files
type SyncService struct {
	files     FileSource
	defaults  SourceFileRepository
	runs      RunRepository
	gateways  clients.GatewayProvider
	resolver  *CatalogResolver
	locker    RunLocker
	events    RunEventPublisher
	changeLog ChangeLogWriter
	metrics   SyncMetrics
	config    SyncServiceConfig
	log       *logrus.Entry
}

// NewSyncService creates a new sync service. Events, change log and metrics
// are optional and can be set afterwards.
func NewSyncService(
	files FileSource,
	defaults SourceFileRepository,
	runs RunRepository,
	gateways clients.GatewayProvider,
	resolver *CatalogResolver,
	locker RunLocker,
	cfg SyncServiceConfig,
	log *logrus.Entry,
) *SyncService {
	if cfg.SubmitConcurrency <= 0 {
		cfg.SubmitConcurrency = 1
	}
	return &SyncService{
		files:    files,
		defaults: defaults,
		runs:     runs,
		gateways: gateways,
		resolver: resolver,
		locker:   locker,
		metrics:  nopMetrics{},
		config:   cfg,
		log:      log,
	}
}

// SetEventPublisher sets the run completion publisher
func (s *SyncService) SetEventPublisher(events RunEventPublisher) {
	s.events = events
}

// SetChangeLogWriter sets the change log writer
func (s *SyncService) SetChangeLogWriter(w ChangeLogWriter) {
	s.changeLog = w
}

// SetMetrics sets the metrics recorder
func (s *SyncService) SetMetrics(m SyncMetrics) {
	if m == nil {
		m = nopMetrics{}
	}
	s.metrics = m
}

// Load parses a stored file and applies its saved defaults
func (s *SyncService) Load(ctx context.Context, fileName string) (*models.RecordSet, error) {
	rc, err := s.files.Open(fileName)
	if err != nil {
		return nil, err
	}
	defer rc.Close()

	set, err := spreadsheet.Parse(rc, fileName)
	if err != nil {
		return nil, err
	}

	if s.defaults != nil {
		defaults, err := s.defaults.GetDefaults(ctx, fileName)
		if err != nil {
			return nil, fmt.Errorf("failed to load defaults for %s: %w", fileName, err)
		}
		applyDefaults(set, defaults)
	}
	return set, nil
}

// Check reports whether a stored file carries the fields a sync needs
func (s *SyncService) Check(ctx context.Context, store models.StoreContext, fileName string) (*models.SchemaCheckResult, error) {
	set, err := s.Load(ctx, fileName)
	if err != nil {
		return nil, err
	}
	check, err := CheckSchema(set)
	if err != nil {
		return nil, err
	}
	s.log.WithFields(logrus.Fields{
		"store":   store.ID,
		"file":    fileName,
		"missing": check.MissingFields,
	}).Debug("Schema checked")
	return check, nil
}

// UpdateDefaults stores file-level values for location_id and sale_channel.
// An empty value removes the default.
func (s *SyncService) UpdateDefaults(ctx context.Context, fileName string, fields map[string]string) (models.JSONB, error) {
	if s.defaults == nil {
		return nil, errors.New("defaults storage is not configured")
	}

	current, err := s.defaults.GetDefaults(ctx, fileName)
	if err != nil {
		return nil, err
	}
	updated := models.JSONB{}
	for k, v := range current {
		updated[k] = v
	}

	for field, value := range fields {
		name := spreadsheet.NormalizeHeader(field)
		if name != models.FieldLocationID && name != models.FieldSaleChannel {
			return nil, fmt.Errorf("%w: %s", models.ErrUnsupportedField, field)
		}
		if value = strings.TrimSpace(value); value == "" {
			delete(updated, name)
			continue
		}
		updated[name] = value
	}

	if err := s.defaults.SaveDefaults(ctx, fileName, updated); err != nil {
		return nil, err
	}
	return updated, nil
}

// ListRuns returns the latest runs of a store
func (s *SyncService) ListRuns(ctx context.Context, storeID string, limit int) ([]models.SyncRun, error) {
	if s.runs == nil {
		return []models.SyncRun{}, nil
	}
	return s.runs.ListByStore(ctx, storeID, limit)
}

// GetRun returns one run of a store
func (s *SyncService) GetRun(ctx context.Context, storeID string, id uuid.UUID) (*models.SyncRun, error) {
	if s.runs == nil {
		return nil, models.ErrRunNotFound
	}
	return s.runs.GetByID(ctx, storeID, id)
}

// Sync reconciles the catalog of one store against a stored file
func (s *SyncService) Sync(ctx context.Context, store models.StoreContext, fileName string, opts SyncOptions) (*models.SyncResult, error) {
	if opts.Mode == "" {
		opts.Mode = models.SyncModeAdjust
	}
	started := time.Now()
	log := s.log.WithFields(logrus.Fields{
		"store":   store.ID,
		"file":    fileName,
		"mode":    opts.Mode,
		"dry_run": opts.DryRun,
	})

	release, err := s.locker.Acquire(ctx, store.ID)
	if err != nil {
		return nil, err
	}
	defer release()

	gateway, err := s.gateways.ForStore(ctx, store)
	if err != nil {
		return nil, err
	}

	set, err := s.Load(ctx, fileName)
	if err != nil {
		return nil, err
	}

	check, err := CheckSchema(set)
	if err != nil {
		return nil, err
	}
	if blocking := missingSyncFields(check); len(blocking) > 0 {
		return nil, &models.SchemaNotReadyError{MissingFields: blocking, Hint: check.Message}
	}

	records := set.NonBlank()
	if err := validateQuantities(records); err != nil {
		return nil, err
	}
	duplicates := duplicateRows(log, records)
	log = log.WithField("duplicates", len(duplicates))

	run := &models.SyncRun{
		ID:           uuid.New(),
		StoreID:      store.ID,
		FileName:     fileName,
		Mode:         opts.Mode,
		Status:       models.RunStatusRunning,
		DryRun:       opts.DryRun,
		TotalRecords: len(set.Records),
		StartedAt:    started,
	}
	if s.runs != nil {
		if err := s.runs.Create(ctx, run); err != nil {
			log.WithError(err).Warn("Failed to record sync run")
		}
	}
	log = log.WithField("run_id", run.ID.String())

	res, err := s.resolver.Resolve(ctx, gateway, store, records)
	if err != nil {
		s.finish(ctx, log, run, nil, err, started)
		return nil, err
	}

	plan := Plan(res.Resolved, opts.Mode)
	if !opts.DryRun {
		plan.Issues = append(plan.Issues, s.publishChannels(ctx, log, gateway, store, res.Resolved)...)
	}

	batches := BuildBatches(plan.Plans, BatchOptions{
		MaxSize:      s.config.BatchSize,
		Reason:       s.config.Reason,
		ReferenceURI: s.config.ReferenceURIPrefix + run.ID.String(),
	})

	if opts.DryRun {
		result, _ := Aggregate(nil, res, plan, len(set.Records))
		result.RunID = run.ID.String()
		result.DuplicateRows = withoutMissing(duplicates, result.MissingRows)
		result.DryRun = true
		result.Plans = plan.Plans
		result.Stats.Batches = len(batches)
		s.finish(ctx, log, run, result, nil, started)
		return result, nil
	}

	responses := s.submit(ctx, log, gateway, store, batches)
	if err := ctx.Err(); err != nil {
		s.finish(ctx, log, run, nil, err, started)
		return nil, err
	}

	result, aggErr := Aggregate(responses, res, plan, len(set.Records))
	if result == nil {
		s.finish(ctx, log, run, nil, aggErr, started)
		return nil, aggErr
	}
	result.RunID = run.ID.String()
	result.DuplicateRows = withoutMissing(duplicates, result.MissingRows)
	result.Plans = plan.Plans

	if s.changeLog != nil && len(result.Changes) > 0 {
		path, err := s.changeLog.Write(store, run, result.Changes)
		if err != nil {
			log.WithError(err).Warn("Failed to write change log")
		}
		run.ChangeLog = path
	}

	s.finish(ctx, log, run, result, aggErr, started)
	return result, aggErr
}

// submit sends every batch and returns the responses in batch order.
// A failing batch never stops the others.
func (s *SyncService) submit(ctx context.Context, log *logrus.Entry, gateway clients.InventoryGateway, store models.StoreContext, batches []models.Batch) []models.BatchResponse {
	responses := make([]models.BatchResponse, len(batches))

	var g errgroup.Group
	g.SetLimit(s.config.SubmitConcurrency)
	for i, batch := range batches {
		i, batch := i, batch
		g.Go(func() error {
			resp := models.BatchResponse{Index: batch.Index, Plans: batch.Plans}
			if err := ctx.Err(); err != nil {
				resp.Err = err
				responses[i] = resp
				return nil
			}

			batchCtx := ctx
			if s.config.BatchTimeout > 0 {
				var cancel context.CancelFunc
				batchCtx, cancel = context.WithTimeout(ctx, s.config.BatchTimeout)
				defer cancel()
			}

			start := time.Now()
			resp.Raw, resp.Err = gateway.SubmitBatch(batchCtx, store, batch)
			s.metrics.BatchSubmitted(store.ID, resp.Err != nil, time.Since(start))

			if resp.Err != nil {
				log.WithError(resp.Err).WithFields(logrus.Fields{
					"batch":   batch.Index,
					"changes": len(batch.Input.Changes),
				}).Error("Batch submission failed")
			} else {
				log.WithFields(logrus.Fields{
					"batch":    batch.Index,
					"changes":  len(batch.Input.Changes),
					"duration": time.Since(start).String(),
				}).Debug("Batch submitted")
			}
			responses[i] = resp
			return nil
		})
	}
	_ = g.Wait()
	return responses
}

// publishChannels publishes each product once to the sale channels its
// records name. Failures become record issues.
func (s *SyncService) publishChannels(ctx context.Context, log *logrus.Entry, publisher clients.ChannelPublisher, store models.StoreContext, resolved []ResolvedRecord) []models.RecordIssue {
	type pending struct {
		record   models.SourceRecord
		channels []string
	}

	var order []string
	byProduct := make(map[string]*pending)
	for _, rr := range resolved {
		channels := rr.Record.SaleChannels()
		if len(channels) == 0 || rr.Variant.ProductID == "" {
			continue
		}
		p, ok := byProduct[rr.Variant.ProductID]
		if !ok {
			p = &pending{record: rr.Record}
			byProduct[rr.Variant.ProductID] = p
			order = append(order, rr.Variant.ProductID)
		}
		for _, ch := range channels {
			if !containsString(p.channels, ch) {
				p.channels = append(p.channels, ch)
			}
		}
	}

	var issues []models.RecordIssue
	for _, productID := range order {
		p := byProduct[productID]
		if err := publisher.PublishToChannels(ctx, store, productID, p.channels); err != nil {
			log.WithError(err).WithFields(logrus.Fields{
				"product":  productID,
				"channels": p.channels,
			}).Warn("Failed to publish product to sale channels")
			issues = append(issues, models.RecordIssue{
				Row:     p.record.Row,
				SKU:     p.record.SKU,
				Reason:  models.ReasonChannelPublishFailed,
				Message: err.Error(),
			})
		}
	}
	return issues
}

// finish persists the run outcome, publishes it and records metrics
func (s *SyncService) finish(ctx context.Context, log *logrus.Entry, run *models.SyncRun, result *models.SyncResult, runErr error, started time.Time) {
	completed := time.Now()
	run.CompletedAt = &completed

	switch {
	case result == nil:
		run.Status = models.RunStatusFailed
	case runErr != nil:
		run.Status = models.RunStatusFailed
	case result.HasFailedBatches():
		run.Status = models.RunStatusPartial
	default:
		run.Status = models.RunStatusCompleted
	}
	if runErr != nil {
		run.ErrorMessage = runErr.Error()
	}
	if result != nil {
		run.Applied = result.Stats.AppliedChanges
		run.Missing = len(result.MissingRows)
		run.FailedBatches = len(result.FailedBatches)
		run.Report = runReport(result)
		s.metrics.RecordsProcessed(run.StoreID, result.Stats)
	}

	// the request may have been cancelled; the record still has to land
	persistCtx := context.WithoutCancel(ctx)
	if s.runs != nil {
		if err := s.runs.Update(persistCtx, run); err != nil {
			log.WithError(err).Warn("Failed to update sync run")
		}
	}
	if s.events != nil && !run.DryRun {
		if err := s.events.PublishRunCompleted(persistCtx, run); err != nil {
			log.WithError(err).Warn("Failed to publish run event")
		}
	}
	s.metrics.RunCompleted(run.StoreID, run.Mode, run.Status, completed.Sub(started))

	entry := log.WithFields(logrus.Fields{
		"status":   run.Status,
		"duration": completed.Sub(started).String(),
	})
	if result != nil {
		entry = entry.WithFields(logrus.Fields{
			"total_records":  result.TotalRecords,
			"planned":        result.Stats.PlannedChanges,
			"applied":        result.Stats.AppliedChanges,
			"missing":        len(result.MissingRows),
			"failed_batches": len(result.FailedBatches),
		})
	}
	if runErr != nil {
		entry.WithError(runErr).Error("Sync run failed")
		return
	}
	entry.Info("Sync run finished")
}

func runReport(result *models.SyncResult) models.JSONB {
	failed := make([]map[string]interface{}, 0, len(result.FailedBatches))
	for _, fb := range result.FailedBatches {
		failed = append(failed, map[string]interface{}{
			"index":      fb.Index,
			"plan_count": fb.PlanCount,
			"error":      fb.Error,
		})
	}
	return models.JSONB{
		"stats":          result.Stats,
		"missing_rows":   result.MissingRows,
		"duplicate_rows": result.DuplicateRows,
		"ambiguous_rows": result.AmbiguousRows,
		"failed_batches": failed,
		"issues":         result.Issues,
	}
}

// applyDefaults fills blank location and channel cells with the file defaults
func applyDefaults(set *models.RecordSet, defaults models.JSONB) {
	location := strings.TrimSpace(defaults.String(models.FieldLocationID))
	channel := strings.TrimSpace(defaults.String(models.FieldSaleChannel))
	if location == "" && channel == "" {
		return
	}

	for i := range set.Records {
		r := &set.Records[i]
		if r.IsBlank() {
			continue
		}
		if location != "" && strings.TrimSpace(r.LocationID) == "" {
			r.LocationID = location
		}
		if channel != "" && strings.TrimSpace(r.SaleChannel) == "" {
			r.SaleChannel = channel
		}
	}
	if location != "" && !containsString(set.Columns, models.FieldLocationID) {
		set.Columns = append(set.Columns, models.FieldLocationID)
	}
	if channel != "" && !containsString(set.Columns, models.FieldSaleChannel) {
		set.Columns = append(set.Columns, models.FieldSaleChannel)
	}
}

// validateQuantities fails the run when no record carries a usable quantity
func validateQuantities(records []models.SourceRecord) error {
	if len(records) == 0 {
		return nil
	}
	var firstErr error
	for _, r := range records {
		_, err := r.IntQuantity()
		if err == nil {
			return nil
		}
		if firstErr == nil {
			firstErr = err
		}
	}
	return &models.MalformedInputError{Reason: "no record has an integer quantity", Err: firstErr}
}

// duplicateRows returns the SKUs that repeat a (sku, location) pair, in the
// order of their first repeat, and logs each repeated row
func duplicateRows(log *logrus.Entry, records []models.SourceRecord) []string {
	duplicates := make([]string, 0)
	reported := make(map[string]bool)
	seen := make(map[string]int)
	for _, r := range records {
		sku := strings.TrimSpace(r.SKU)
		key := sku + "|" + strings.TrimSpace(r.LocationID)
		first, ok := seen[key]
		if !ok {
			seen[key] = r.Row
			continue
		}
		log.WithFields(logrus.Fields{
			"sku":       sku,
			"row":       r.Row,
			"first_row": first,
		}).Debug("Duplicate SKU and location in file")
		if !reported[sku] {
			reported[sku] = true
			duplicates = append(duplicates, sku)
		}
	}
	return duplicates
}

// withoutMissing drops SKUs already reported as missing from the catalog
func withoutMissing(skus, missing []string) []string {
	out := make([]string, 0, len(skus))
	for _, sku := range skus {
		if !containsString(missing, sku) {
			out = append(out, sku)
		}
	}
	return out
}

func containsString(values []string, v string) bool {
	for _, existing := range values {
		if existing == v {
			return true
		}
	}
	return false
}
