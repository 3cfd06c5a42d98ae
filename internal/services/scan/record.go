package scan

import (
	"strings"

	"github.com/bobmcallan/capscan/internal/models"
)

// BuildRecord merges a listing entry, its details and its performance into one
// output row. The current price is the snapshot bid.
func BuildRecord(category models.Category, inst models.Instrument, details *models.MarketDetails, perf models.PerformanceResult) models.MarketRecord {
	rec := models.MarketRecord{
		Category: category.Title(),
		Symbol:   inst.Epic,
		Name:     inst.Name,
		Perf:     perf,
		Type:     strings.ToUpper(string(category)),
	}
	if details == nil {
		if rec.Name == "" {
			rec.Name = inst.Epic
		}
		return rec
	}

	if rec.Name == "" {
		rec.Name = details.Instrument.Name
	}
	if rec.Name == "" {
		rec.Name = inst.Epic
	}
	if rec.Symbol == "" {
		rec.Symbol = details.Instrument.Epic
	}
	rec.CurrentPrice = details.Snapshot.Bid
	rec.Currency = details.Instrument.Currency
	rec.PriceChange = details.Snapshot.PercentageChange
	rec.MarketStatus = details.Snapshot.MarketStatus
	if details.Instrument.Type != "" {
		rec.Type = details.Instrument.Type
	}
	return rec
}
