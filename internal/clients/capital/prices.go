package capital

import (
	"context"
	"fmt"
	"net/url"
	"sort"
	"strconv"

	"github.com/bobmcallan/capscan/internal/interfaces"
	"github.com/bobmcallan/capscan/internal/models"
)

// MaxBars is the largest page the prices endpoint returns.
const MaxBars = 1000

type pricePoint struct {
	Bid optFloat `json:"bid"`
	Ask optFloat `json:"ask"`
}

type priceBarResponse struct {
	SnapshotTime    string     `json:"snapshotTime"`
	SnapshotTimeUTC string     `json:"snapshotTimeUTC"`
	ClosePrice      pricePoint `json:"closePrice"`
}

type pricesResponse struct {
	Prices []priceBarResponse `json:"prices"`
}

// GetPrices returns historical bars for an epic, oldest first.
//
// Each bar's close is the bid close, falling back to the ask close. Bars with
// no usable close or timestamp are dropped rather than failing the request.
func (c *Client) GetPrices(ctx context.Context, sess *models.Session, epic string, opts ...interfaces.PriceOption) ([]models.PriceBar, error) {
	params := &interfaces.PriceParams{
		Resolution: models.ResolutionDay,
		Max:        MaxBars,
	}
	for _, opt := range opts {
		opt(params)
	}
	if params.Max <= 0 || params.Max > MaxBars {
		params.Max = MaxBars
	}

	query := url.Values{}
	query.Set("resolution", string(params.Resolution))
	query.Set("max", strconv.Itoa(params.Max))
	if !params.From.IsZero() {
		query.Set("from", formatAPITime(params.From))
	}
	if !params.To.IsZero() {
		query.Set("to", formatAPITime(params.To))
	}

	var resp pricesResponse
	if err := c.get(ctx, sess, "/prices/"+url.PathEscape(epic), query, &resp); err != nil {
		return nil, fmt.Errorf("get prices %s %s: %w", epic, params.Resolution, err)
	}

	bars := make([]models.PriceBar, 0, len(resp.Prices))
	dropped := 0
	for _, p := range resp.Prices {
		ts, ok := parseAPITime(p.SnapshotTimeUTC)
		if !ok {
			ts, ok = parseAPITime(p.SnapshotTime)
		}
		closeP := p.ClosePrice.Bid
		if !closeP.set {
			closeP = p.ClosePrice.Ask
		}
		if !ok || !closeP.set {
			dropped++
			continue
		}
		bars = append(bars, models.PriceBar{Time: ts, Close: closeP.value})
	}

	sort.SliceStable(bars, func(i, j int) bool {
		return bars[i].Time.Before(bars[j].Time)
	})

	if dropped > 0 {
		c.logger.Debug().Str("epic", epic).Int("dropped", dropped).Msg("Dropped unusable price bars")
	}

	return bars, nil
}
