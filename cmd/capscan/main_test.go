package main

import (
	"bytes"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"

	"github.com/bobmcallan/capscan/internal/common"
	"github.com/bobmcallan/capscan/internal/interfaces"
	"github.com/bobmcallan/capscan/internal/models"
	"github.com/bobmcallan/capscan/internal/services/scan"
)

func TestFetchOverrides(t *testing.T) {
	cfg := common.NewDefaultConfig()
	c := &fetchCmd{out: "/tmp/x.csv", categories: " Forex, ,ETF "}
	c.overrides(cfg)
	assert.Equal(t, "/tmp/x.csv", cfg.Output.CSVPath)
	assert.Equal(t, []string{"forex", "etf"}, cfg.Scan.Categories)

	cfg = common.NewDefaultConfig()
	(&fetchCmd{}).overrides(cfg)
	assert.Equal(t, common.NewDefaultConfig().Scan.Categories, cfg.Scan.Categories)
}

func TestProgressPrinter(t *testing.T) {
	var buf bytes.Buffer
	p := progressPrinter(&buf)
	p(scan.Progress{Category: models.CategoryForex, Index: 1, Total: 2, Epic: "EURUSD", Name: "EUR/USD"})
	p(scan.Progress{Category: models.CategoryForex, Index: 2, Total: 2, Epic: "GBPUSD", Skipped: true})
	p(scan.Progress{Category: models.CategoryIndices, Index: 1, Total: 1, Epic: "US500", Name: "US 500"})

	out := buf.String()
	assert.Equal(t, 1, bytes.Count(buf.Bytes(), []byte("Processing category: FOREX")))
	assert.Contains(t, out, "  [1/2] EUR/USD (EURUSD)\n")
	assert.Contains(t, out, "  [2/2] GBPUSD (GBPUSD)  ⚠ skipped\n")
	assert.Contains(t, out, "Processing category: INDICES")
}

func TestPrintSummary(t *testing.T) {
	result := &interfaces.ScanResult{
		Records: make([]models.MarketRecord, 3),
		Summary: models.RunSummary{
			RunID:            "abc",
			Elapsed:          1234 * time.Millisecond,
			Categories:       2,
			Processed:        3,
			Skipped:          1,
			FailedCategories: []string{"shares"},
		},
	}

	var buf bytes.Buffer
	printSummary(&buf, result, nil, "out.csv", "")
	out := buf.String()
	assert.Contains(t, out, "Total time:        1.23 seconds")
	assert.Contains(t, out, "Markets processed: 3")
	assert.Contains(t, out, "Failed categories: shares")
	assert.Contains(t, out, "Output:            out.csv (3 rows)")

	buf.Reset()
	printSummary(&buf, result, errors.New("session expired"), "out.csv", "out.csv.partial")
	assert.Contains(t, buf.String(), "failed (session expired); previous results kept")
	assert.Contains(t, buf.String(), "Partial results:   out.csv.partial")
	assert.NotContains(t, buf.String(), "Output:")

	buf.Reset()
	printSummary(&buf, &interfaces.ScanResult{Records: []models.MarketRecord{}}, nil, "out.csv", "")
	assert.Contains(t, buf.String(), "no records; previous results kept")
	assert.NotContains(t, buf.String(), "Output:")
}
