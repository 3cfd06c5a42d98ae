package capital

import (
	"encoding/json"
	"fmt"
	"math"
	"strconv"
	"strings"
	"time"
)

// optFloat decodes a JSON number, numeric string, or null. Empty strings,
// "N/A", null and non-finite values ("NaN", "Inf") leave it unset; the API is
// not consistent about which it sends.
type optFloat struct {
	value float64
	set   bool
}

func (f *optFloat) UnmarshalJSON(data []byte) error {
	*f = optFloat{}
	if string(data) == "null" {
		return nil
	}
	var num float64
	if err := json.Unmarshal(data, &num); err == nil {
		*f = optFloat{value: num, set: true}
		return nil
	}
	var s string
	if err := json.Unmarshal(data, &s); err == nil {
		s = strings.TrimSpace(strings.TrimSuffix(strings.TrimSpace(s), "%"))
		if s == "" || s == "N/A" {
			return nil
		}
		num, err := strconv.ParseFloat(s, 64)
		if err != nil || math.IsNaN(num) || math.IsInf(num, 0) {
			return nil
		}
		*f = optFloat{value: num, set: true}
		return nil
	}
	return fmt.Errorf("cannot unmarshal %s into float64", string(data))
}

// ptr returns the value as a pointer, nil when unset.
func (f optFloat) ptr() *float64 {
	if !f.set {
		return nil
	}
	v := f.value
	return &v
}

// apiTimeLayouts are the timestamp shapes returned by the API; all are UTC.
var apiTimeLayouts = []string{
	"2006-01-02T15:04:05.000",
	"2006-01-02T15:04:05",
	"2006/01/02 15:04:05",
	time.RFC3339,
}

func parseAPITime(s string) (time.Time, bool) {
	s = strings.TrimSpace(s)
	if s == "" {
		return time.Time{}, false
	}
	for _, layout := range apiTimeLayouts {
		if t, err := time.ParseInLocation(layout, s, time.UTC); err == nil {
			return t.UTC(), true
		}
	}
	return time.Time{}, false
}

// formatAPITime renders a query timestamp in the API's expected form.
func formatAPITime(t time.Time) string {
	return t.UTC().Format("2006-01-02T15:04:05")
}
