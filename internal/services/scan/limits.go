package scan

import (
	"github.com/bobmcallan/capscan/internal/models"
)

// Limits caps how many instruments of each category a run processes.
// A negative or missing entry means no cap.
type Limits map[models.Category]int

// DefaultLimits returns the standard per-category caps.
func DefaultLimits() Limits {
	return Limits{
		models.CategoryForex:            20,
		models.CategoryCommodities:      -1,
		models.CategoryShares:           50,
		models.CategoryIndices:          20,
		models.CategoryETF:              20,
		models.CategoryCryptocurrencies: 20,
	}
}

// LimitsFromConfig converts the [scan.limits] table. Unknown category keys
// are ignored.
func LimitsFromConfig(raw map[string]int) Limits {
	l := make(Limits, len(raw))
	for k, v := range raw {
		c, err := models.ParseCategory(k)
		if err != nil {
			continue
		}
		l[c] = v
	}
	return l
}

// Cap returns the cap for c and whether one applies.
func (l Limits) Cap(c models.Category) (int, bool) {
	n, ok := l[c]
	if !ok || n < 0 {
		return 0, false
	}
	return n, true
}

// Apply truncates instruments to the first K entries for c, preserving order.
func (l Limits) Apply(c models.Category, instruments []models.Instrument) []models.Instrument {
	n, ok := l.Cap(c)
	if !ok || len(instruments) <= n {
		return instruments
	}
	return instruments[:n]
}
