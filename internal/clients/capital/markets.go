package capital

import (
	"context"
	"errors"
	"net/url"

	"github.com/bobmcallan/capscan/internal/interfaces"
	"github.com/bobmcallan/capscan/internal/models"
)

type marketDetailsResponse struct {
	Instrument *struct {
		Epic     string `json:"epic"`
		Name     string `json:"name"`
		Type     string `json:"type"`
		Currency string `json:"currency"`
	} `json:"instrument"`
	Snapshot *struct {
		MarketStatus     string   `json:"marketStatus"`
		PercentageChange optFloat `json:"percentageChange"`
		UpdateTime       string   `json:"updateTime"`
		Bid              optFloat `json:"bid"`
		Offer            optFloat `json:"offer"`
	} `json:"snapshot"`
}

// GetDetails returns the snapshot and static metadata of one instrument.
// Transport failures and malformed payloads are *interfaces.DetailFetchError;
// an expired session additionally matches ErrSessionExpired. No retries.
func (c *Client) GetDetails(ctx context.Context, sess *models.Session, epic string) (*models.MarketDetails, error) {
	if epic == "" {
		return nil, &interfaces.DetailFetchError{Epic: epic, Err: errors.New("empty epic")}
	}

	var resp marketDetailsResponse
	if err := c.get(ctx, sess, "/markets/"+url.PathEscape(epic), nil, &resp); err != nil {
		return nil, &interfaces.DetailFetchError{Epic: epic, Err: err}
	}

	if resp.Snapshot == nil {
		return nil, &interfaces.DetailFetchError{Epic: epic, Err: errors.New("response has no snapshot")}
	}
	if resp.Instrument == nil {
		return nil, &interfaces.DetailFetchError{Epic: epic, Err: errors.New("response has no instrument")}
	}

	details := &models.MarketDetails{
		Snapshot: models.Snapshot{
			Bid:          resp.Snapshot.Bid.ptr(),
			Offer:        resp.Snapshot.Offer.ptr(),
			MarketStatus: resp.Snapshot.MarketStatus,
		},
		Instrument: models.InstrumentMeta{
			Epic:     resp.Instrument.Epic,
			Name:     resp.Instrument.Name,
			Currency: resp.Instrument.Currency,
			Type:     resp.Instrument.Type,
		},
	}
	if resp.Snapshot.PercentageChange.set {
		details.Snapshot.PercentageChange = models.PercentOf(resp.Snapshot.PercentageChange.value)
	}
	if t, ok := parseAPITime(resp.Snapshot.UpdateTime); ok {
		details.Snapshot.UpdateTime = t
	}
	if details.Instrument.Epic == "" {
		details.Instrument.Epic = epic
	}

	return details, nil
}
