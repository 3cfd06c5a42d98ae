package viewer

import (
	"bytes"
	"fmt"

	"github.com/wcharczuk/go-chart/v2"
	"github.com/wcharczuk/go-chart/v2/drawing"

	"github.com/bobmcallan/capscan/internal/models"
)

// ChartColumn is the metric plotted by the dashboard chart.
const ChartColumn = "Perf % 1M"

var (
	gainColor = drawing.ColorFromHex("16a34a") // green-600
	lossColor = drawing.ColorFromHex("dc2626") // red-600
)

// RenderCategoryChart renders a PNG bar chart of the average of column per
// category. Returns raw PNG bytes.
func RenderCategoryChart(records []models.MarketRecord, column string) ([]byte, error) {
	averages := AverageByCategory(records, column)
	if len(averages) == 0 {
		return nil, fmt.Errorf("no %s values to chart", column)
	}

	bars := make([]chart.Value, len(averages))
	for i, a := range averages {
		color := gainColor
		if a.Average < 0 {
			color = lossColor
		}
		bars[i] = chart.Value{
			Label: a.Category,
			Value: a.Average,
			Style: chart.Style{
				FillColor:   color,
				StrokeColor: color,
				StrokeWidth: 1,
			},
		}
	}

	graph := chart.BarChart{
		Title:  "Average " + column + " by Category",
		Width:  900,
		Height: 400,
		Background: chart.Style{
			Padding: chart.Box{Top: 40, Left: 10, Right: 20, Bottom: 10},
		},
		BarWidth:     60,
		UseBaseValue: true,
		BaseValue:    0,
		YAxis: chart.YAxis{
			ValueFormatter: func(v interface{}) string {
				if f, ok := v.(float64); ok {
					return fmt.Sprintf("%.1f%%", f)
				}
				return ""
			},
		},
		Bars: bars,
	}

	var buf bytes.Buffer
	if err := graph.Render(chart.PNG, &buf); err != nil {
		return nil, fmt.Errorf("chart render failed: %w", err)
	}

	return buf.Bytes(), nil
}

// RenderCategoryPie renders a PNG pie chart of the number of markets per
// category.
func RenderCategoryPie(records []models.MarketRecord) ([]byte, error) {
	counts := CountByCategory(records)
	if len(counts) == 0 {
		return nil, fmt.Errorf("no markets to chart")
	}

	values := make([]chart.Value, len(counts))
	for i, c := range counts {
		values[i] = chart.Value{
			Label: fmt.Sprintf("%s (%d)", c.Category, c.Count),
			Value: float64(c.Count),
		}
	}

	graph := chart.PieChart{
		Title:  "Markets by Category",
		Width:  500,
		Height: 500,
		Values: values,
	}

	var buf bytes.Buffer
	if err := graph.Render(chart.PNG, &buf); err != nil {
		return nil, fmt.Errorf("chart render failed: %w", err)
	}
	return buf.Bytes(), nil
}
