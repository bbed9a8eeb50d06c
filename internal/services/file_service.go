package services

import (
	"context"
	"fmt"
	"io"
	"path/filepath"
	"time"

	"github.com/sirupsen/logrus"

	"quantity-sync-service/internal/models"
	"quantity-sync-service/internal/spreadsheet"
	"quantity-sync-service/internal/storage"
)

// FileStore is the storage behind uploaded quantity files
type FileStore interface {
	FileSource
	Save(name string, r io.Reader) error
	List() ([]storage.FileInfo, error)
	Delete(name string) error
	Exists(name string) bool
}

// FileService manages uploaded quantity files
type FileService struct {
	store    FileStore
	defaults SourceFileRepository
	now      func() time.Time
	log      *logrus.Entry
}

// NewFileService creates a new file service
func NewFileService(store FileStore, defaults SourceFileRepository, log *logrus.Entry) *FileService {
	return &FileService{
		store:    store,
		defaults: defaults,
		now:      time.Now,
		log:      log,
	}
}

// List returns the uploaded files
func (s *FileService) List() ([]storage.FileInfo, error) {
	return s.store.List()
}

// Upload stores r under a timestamped name derived from originalName and
// returns that name
func (s *FileService) Upload(ctx context.Context, originalName string, r io.Reader) (string, error) {
	if !spreadsheet.IsSupported(originalName) {
		return "", &models.MalformedInputError{
			Reason: fmt.Sprintf("unsupported file type %q, expected .csv or .xlsx", filepath.Ext(originalName)),
		}
	}

	name := storage.UploadName(originalName, s.now())
	if err := s.store.Save(name, r); err != nil {
		return "", fmt.Errorf("failed to store %s: %w", originalName, err)
	}

	s.log.WithFields(logrus.Fields{
		"original": originalName,
		"file":     name,
	}).Info("Quantity file uploaded")
	return name, nil
}

// Delete removes a file together with its saved defaults
func (s *FileService) Delete(ctx context.Context, name string) error {
	if err := s.store.Delete(name); err != nil {
		return err
	}
	if s.defaults != nil {
		if err := s.defaults.DeleteByName(ctx, name); err != nil {
			s.log.WithError(err).WithField("file", name).Warn("Failed to delete file defaults")
		}
	}
	s.log.WithField("file", name).Info("Quantity file deleted")
	return nil
}

// Exists reports whether a file has been uploaded
func (s *FileService) Exists(name string) bool {
	return s.store.Exists(name)
}
