// Package viewer summarises scan results for terminals and dashboards.
package viewer

import (
	"fmt"
	"sort"
	"strings"

	"github.com/bobmcallan/capscan/internal/models"
)

// Ranked is one record with the value it was ranked by.
type Ranked struct {
	Record models.MarketRecord
	Value  float64
}

// Rank returns up to n records with a value for column, best first, or worst
// first when ascending. Records with N/A are excluded. Ties keep file order.
func Rank(records []models.MarketRecord, column string, n int, ascending bool) []Ranked {
	var valid []Ranked
	for _, r := range records {
		p, ok := r.Value(column)
		if !ok || !p.Valid {
			continue
		}
		valid = append(valid, Ranked{Record: r, Value: p.Value})
	}
	sort.SliceStable(valid, func(i, j int) bool {
		if ascending {
			return valid[i].Value < valid[j].Value
		}
		return valid[i].Value > valid[j].Value
	})
	if n >= 0 && len(valid) > n {
		valid = valid[:n]
	}
	return valid
}

// CategoryCount is the number of records in one category.
type CategoryCount struct {
	Category string `json:"category"`
	Count    int    `json:"count"`
}

// CountByCategory returns per-category counts sorted by category name.
func CountByCategory(records []models.MarketRecord) []CategoryCount {
	counts := map[string]int{}
	for _, r := range records {
		counts[categoryOf(r)]++
	}
	out := make([]CategoryCount, 0, len(counts))
	for c, n := range counts {
		out = append(out, CategoryCount{Category: c, Count: n})
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Category < out[j].Category })
	return out
}

// Categories returns the distinct category names, sorted.
func Categories(records []models.MarketRecord) []string {
	counts := CountByCategory(records)
	out := make([]string, len(counts))
	for i, c := range counts {
		out[i] = c.Category
	}
	return out
}

// CategoryAverage is the mean of one column over a category's records.
type CategoryAverage struct {
	Category string  `json:"category"`
	Average  float64 `json:"average"`
	Samples  int     `json:"samples"`
}

// AverageByCategory averages column per category over records that have a
// value, highest average first. Categories with no values are omitted.
func AverageByCategory(records []models.MarketRecord, column string) []CategoryAverage {
	sums := map[string]float64{}
	samples := map[string]int{}
	for _, r := range records {
		p, ok := r.Value(column)
		if !ok || !p.Valid {
			continue
		}
		c := categoryOf(r)
		sums[c] += p.Value
		samples[c]++
	}
	out := make([]CategoryAverage, 0, len(sums))
	for c, sum := range sums {
		out = append(out, CategoryAverage{Category: c, Average: sum / float64(samples[c]), Samples: samples[c]})
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].Average != out[j].Average {
			return out[i].Average > out[j].Average
		}
		return out[i].Category < out[j].Category
	})
	return out
}

// Filter keeps the records in category (any category when empty or "All")
// whose symbol or name contains query, case-insensitively. File order is kept.
func Filter(records []models.MarketRecord, category, query string) []models.MarketRecord {
	category = strings.TrimSpace(category)
	if strings.EqualFold(category, "all") {
		category = ""
	}
	query = strings.ToLower(strings.TrimSpace(query))

	out := make([]models.MarketRecord, 0, len(records))
	for _, r := range records {
		if category != "" && !strings.EqualFold(categoryOf(r), category) {
			continue
		}
		if query != "" &&
			!strings.Contains(strings.ToLower(r.Symbol), query) &&
			!strings.Contains(strings.ToLower(r.Name), query) {
			continue
		}
		out = append(out, r)
	}
	return out
}

func categoryOf(r models.MarketRecord) string {
	if r.Category == "" {
		return "Unknown"
	}
	return r.Category
}

// SummaryOptions controls SummaryMarkdown.
type SummaryOptions struct {
	Source  string   // file the records came from, shown in the footer
	Metrics []string // percentage columns to rank by
	TopN    int
}

// SummaryMarkdown renders totals, the category breakdown and the top and
// bottom performers for each metric.
func SummaryMarkdown(records []models.MarketRecord, opts SummaryOptions) string {
	var b strings.Builder

	fmt.Fprint(&b, "# Capital.com Markets Analysis\n\n")
	if len(records) == 0 {
		fmt.Fprint(&b, "No data found.\n")
		return b.String()
	}

	fmt.Fprintf(&b, "Total markets: **%d**\n\n", len(records))

	fmt.Fprint(&b, "## Breakdown by Category\n\n")
	fmt.Fprintln(&b, "| Category | Markets |")
	fmt.Fprintln(&b, "|:---|---:|")
	for _, c := range CountByCategory(records) {
		fmt.Fprintf(&b, "| %s | %d |\n", c.Category, c.Count)
	}
	fmt.Fprintln(&b)

	for _, metric := range opts.Metrics {
		top := Rank(records, metric, opts.TopN, false)
		if len(top) == 0 {
			fmt.Fprintf(&b, "No valid data for %s.\n\n", metric)
			continue
		}
		writeRanking(&b, fmt.Sprintf("Top %d Performers: %s", opts.TopN, metric), metric, top)
		writeRanking(&b, fmt.Sprintf("Bottom %d Performers: %s", opts.TopN, metric), metric, Rank(records, metric, opts.TopN, true))
	}

	if opts.Source != "" {
		fmt.Fprintf(&b, "Full data available in `%s`.\n", opts.Source)
	}
	return b.String()
}

func writeRanking(b *strings.Builder, title, metric string, rows []Ranked) {
	fmt.Fprintf(b, "## %s\n\n", title)
	fmt.Fprintf(b, "| Rank | Symbol | Name | %s |\n", metric)
	fmt.Fprintln(b, "|---:|:---|:---|---:|")
	for i, r := range rows {
		fmt.Fprintf(b, "| %d | %s | %s | %s |\n",
			i+1,
			escapeCell(r.Record.Symbol),
			escapeCell(r.Record.Name),
			models.PercentOf(r.Value),
		)
	}
	fmt.Fprintln(b)
}

// escapeCell keeps a value from breaking a markdown table row.
func escapeCell(s string) string {
	return strings.ReplaceAll(s, "|", `\|`)
}
