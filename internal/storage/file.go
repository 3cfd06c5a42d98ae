// Package storage persists scan results and derived artifacts on disk.
package storage

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/bobmcallan/capscan/internal/common"
	"github.com/bobmcallan/capscan/internal/export"
	"github.com/bobmcallan/capscan/internal/interfaces"
	"github.com/bobmcallan/capscan/internal/models"
)

// FileStore keeps the result CSV at a fixed path with optional versioning.
type FileStore struct {
	path     string
	versions int
	logger   *common.Logger
}

// NewFileStore creates a FileStore and ensures the parent directory exists.
func NewFileStore(logger *common.Logger, config *common.OutputConfig) (*FileStore, error) {
	if logger == nil {
		logger = common.NewSilentLogger()
	}
	versions := config.Versions
	if versions < 0 {
		versions = 0
	}

	fs := &FileStore{
		path:     config.CSVPath,
		versions: versions,
		logger:   logger,
	}

	dir := filepath.Dir(fs.path)
	if err := os.MkdirAll(dir, 0755); err != nil {
		return nil, fmt.Errorf("failed to create directory %s: %w", dir, err)
	}

	logger.Debug().Str("path", fs.path).Int("versions", versions).Msg("FileStore opened")
	return fs, nil
}

// Path returns the result file path.
func (fs *FileStore) Path() string {
	return fs.path
}

// Save rotates previous versions and writes records atomically.
func (fs *FileStore) Save(records []models.MarketRecord) error {
	if fs.versions > 0 {
		fs.rotateVersions(fs.path)
	}
	if err := export.WriteFile(fs.path, records); err != nil {
		return err
	}
	if err := os.Remove(fs.PartialPath()); err == nil {
		fs.logger.Debug().Str("path", fs.PartialPath()).Msg("Stale partial results removed")
	}
	fs.logger.Info().Str("path", fs.path).Int("rows", len(records)).Msg("Results saved")
	return nil
}

// PartialPath returns where SavePartial writes ("<path>.partial").
func (fs *FileStore) PartialPath() string {
	return fs.path + ".partial"
}

// SavePartial writes the records of a failed run to PartialPath without
// rotating or replacing the result file.
func (fs *FileStore) SavePartial(records []models.MarketRecord) (string, error) {
	target := fs.PartialPath()
	if err := export.WriteFile(target, records); err != nil {
		return "", err
	}
	fs.logger.Warn().Str("path", target).Int("rows", len(records)).Msg("Partial results saved")
	return target, nil
}

// Load reads the current result file. A missing file yields no records.
func (fs *FileStore) Load() ([]models.MarketRecord, error) {
	records, err := export.ReadFile(fs.path)
	if errors.Is(err, os.ErrNotExist) {
		return []models.MarketRecord{}, nil
	}
	return records, err
}

// Stat returns the size and modification time of the result file.
func (fs *FileStore) Stat() (int64, time.Time, bool) {
	info, err := os.Stat(fs.path)
	if err != nil {
		return 0, time.Time{}, false
	}
	return info.Size(), info.ModTime(), true
}

// rotateVersions shifts existing versions up and moves current to v1.
// v{N} -> deleted, v{N-1} -> v{N}, ..., v1 -> v2, current -> v1
func (fs *FileStore) rotateVersions(target string) {
	os.Remove(fmt.Sprintf("%s.v%d", target, fs.versions))

	for i := fs.versions; i > 1; i-- {
		src := fmt.Sprintf("%s.v%d", target, i-1)
		dst := fmt.Sprintf("%s.v%d", target, i)
		os.Rename(src, dst) // may not exist yet
	}

	if _, err := os.Stat(target); err == nil {
		os.Rename(target, target+".v1")
	}
}

// Versions lists the existing previous result files, newest first.
func (fs *FileStore) Versions() []string {
	var out []string
	for i := 1; i <= fs.versions; i++ {
		p := fmt.Sprintf("%s.v%d", fs.path, i)
		if _, err := os.Stat(p); err == nil {
			out = append(out, p)
		}
	}
	return out
}

// WriteRaw writes an artifact next to the result file atomically using
// temp file + rename. The name is sanitized ("category-1m.png").
func (fs *FileStore) WriteRaw(name string, data []byte) (string, error) {
	dir := filepath.Dir(fs.path)
	target := filepath.Join(dir, sanitizeName(name))

	tmpFile, err := os.CreateTemp(dir, ".tmp-*")
	if err != nil {
		return "", fmt.Errorf("failed to create temp file: %w", err)
	}
	tmpPath := tmpFile.Name()

	if _, err := tmpFile.Write(data); err != nil {
		tmpFile.Close()
		os.Remove(tmpPath)
		return "", fmt.Errorf("failed to write temp file: %w", err)
	}
	if err := tmpFile.Close(); err != nil {
		os.Remove(tmpPath)
		return "", fmt.Errorf("failed to close temp file: %w", err)
	}
	if err := os.Rename(tmpPath, target); err != nil {
		os.Remove(tmpPath)
		return "", fmt.Errorf("failed to rename temp file: %w", err)
	}
	return target, nil
}

// sanitizeName replaces path separators and collapses ".." to prevent traversal.
func sanitizeName(name string) string {
	r := strings.NewReplacer("/", "_", "\\", "_", ":", "_", "..", "_")
	return r.Replace(name)
}

var _ interfaces.ResultStore = (*FileStore)(nil)
