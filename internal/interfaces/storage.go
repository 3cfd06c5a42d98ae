package interfaces

import (
	"time"

	"github.com/bobmcallan/capscan/internal/models"
)

// ResultStore persists the tabular result artifact consumed by the viewers.
type ResultStore interface {
	// Save replaces the stored records atomically
	Save(records []models.MarketRecord) error

	// SavePartial writes the records of an interrupted run beside the artifact,
	// leaving the artifact itself untouched; returns the written path
	SavePartial(records []models.MarketRecord) (string, error)

	// Load returns the stored records; a missing artifact yields no records and no error
	Load() ([]models.MarketRecord, error)

	// Stat reports the artifact size and modification time; ok is false when absent
	Stat() (size int64, modified time.Time, ok bool)

	// Path returns the location of the artifact
	Path() string
}
