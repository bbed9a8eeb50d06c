// Package report writes per-store change logs of sync runs.
package report

import (
	"encoding/csv"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"time"

	"github.com/sirupsen/logrus"

	"quantity-sync-service/internal/models"
)

var changeLogHeader = []string{
	"timestamp",
	"run_id",
	"sync_mode",
	"row",
	"sku",
	"product_id",
	"product_handle",
	"variant_display",
	"location_id",
	"location_name",
	"delta",
	"final_quantity",
	"status",
}

// ChangeLog writes one CSV per run under <dir>/<store>/
type ChangeLog struct {
	dir string
	now func() time.Time
	log *logrus.Entry
}

// NewChangeLog creates a change log rooted at dir
func NewChangeLog(dir string, log *logrus.Entry) *ChangeLog {
	return &ChangeLog{dir: dir, now: time.Now, log: log}
}

// Write stores changes as logs/<store>/quantity_changes_<timestamp>.csv and
// returns the file path
func (c *ChangeLog) Write(store models.StoreContext, run *models.SyncRun, changes []models.AppliedChange) (string, error) {
	storeDir := filepath.Join(c.dir, filepath.Base(store.ID))
	if err := os.MkdirAll(storeDir, 0o755); err != nil {
		return "", fmt.Errorf("failed to create log dir: %w", err)
	}

	timestamp := c.now().Format("2006-01-02_15-04-05")
	path := filepath.Join(storeDir, fmt.Sprintf("quantity_changes_%s.csv", timestamp))
	f, err := os.Create(path)
	if err != nil {
		return "", fmt.Errorf("failed to create change log: %w", err)
	}
	defer f.Close()

	w := csv.NewWriter(f)
	if err := w.Write(changeLogHeader); err != nil {
		return "", err
	}

	totalDelta := 0
	products := make(map[string]bool)
	locations := make(map[string]bool)
	for _, ch := range changes {
		final := ""
		if ch.FinalQuantity != nil {
			final = strconv.Itoa(*ch.FinalQuantity)
		}
		row := ""
		if ch.Row > 0 {
			row = strconv.Itoa(ch.Row)
		}
		err := w.Write([]string{
			timestamp,
			run.ID.String(),
			string(run.Mode),
			row,
			ch.SKU,
			models.ShortID(ch.ProductID),
			ch.ProductHandle,
			ch.VariantDisplayName,
			models.ShortID(ch.LocationID),
			ch.LocationName,
			strconv.Itoa(ch.Delta),
			final,
			ch.Status,
		})
		if err != nil {
			return "", err
		}
		totalDelta += ch.Delta
		if ch.ProductID != "" {
			products[ch.ProductID] = true
		}
		if ch.LocationID != "" {
			locations[ch.LocationID] = true
		}
	}
	w.Flush()
	if err := w.Error(); err != nil {
		return "", fmt.Errorf("failed to write change log: %w", err)
	}

	c.log.WithFields(logrus.Fields{
		"store":     store.ID,
		"run_id":    run.ID.String(),
		"path":      path,
		"changes":   len(changes),
		"delta":     totalDelta,
		"products":  len(products),
		"locations": len(locations),
	}).Info("Saved quantity changes")
	return path, nil
}
