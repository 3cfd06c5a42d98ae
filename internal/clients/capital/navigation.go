package capital

import (
	"context"
	"net/url"
	"strconv"
	"strings"

	"github.com/bobmcallan/capscan/internal/interfaces"
	"github.com/bobmcallan/capscan/internal/models"
)

type navigationNode struct {
	ID   string `json:"id"`
	Name string `json:"name"`
}

type navigationMarket struct {
	Epic           string `json:"epic"`
	InstrumentName string `json:"instrumentName"`
	InstrumentType string `json:"instrumentType"`
}

type navigationResponse struct {
	Nodes   []navigationNode   `json:"nodes"`
	Markets []navigationMarket `json:"markets"`
}

// nodeName returns the navigation node name for a category.
func (c *Client) nodeName(category models.Category) string {
	if name, ok := c.nodeNames[category]; ok && name != "" {
		return name
	}
	return category.Title()
}

// ListInstruments returns the instruments of a category in upstream order.
//
// The category's top-level navigation node is walked depth-first: markets of a
// node come first, then each child node in listed order, down to the configured
// depth. An epic seen earlier in the walk is not repeated. A category with no
// matching node or no markets yields an empty slice and no error.
func (c *Client) ListInstruments(ctx context.Context, sess *models.Session, category models.Category, opts ...interfaces.ListOption) ([]models.Instrument, error) {
	params := &interfaces.ListParams{}
	for _, opt := range opts {
		opt(params)
	}

	var root navigationResponse
	if err := c.get(ctx, sess, "/marketnavigation", nil, &root); err != nil {
		return nil, &interfaces.CategoryFetchError{Category: category, Err: err}
	}

	want := c.nodeName(category)
	var node *navigationNode
	for i := range root.Nodes {
		n := &root.Nodes[i]
		if strings.EqualFold(n.Name, want) || strings.EqualFold(n.ID, want) {
			node = n
			break
		}
	}
	if node == nil {
		c.logger.Warn().Str("category", string(category)).Str("node", want).Msg("No navigation node for category")
		return []models.Instrument{}, nil
	}

	w := &walker{
		client:    c,
		sess:      sess,
		seen:      make(map[string]bool),
		stopAfter: params.StopAfter,
		out:       []models.Instrument{},
	}
	if err := w.walk(ctx, node.ID, 0); err != nil {
		return nil, &interfaces.CategoryFetchError{Category: category, Err: err}
	}

	c.logger.Debug().
		Str("category", string(category)).
		Str("node", node.ID).
		Int("instruments", len(w.out)).
		Int("pages", w.pages).
		Msg("Category listed")

	return w.out, nil
}

// walker carries the state of one depth-first navigation walk.
type walker struct {
	client    *Client
	sess      *models.Session
	seen      map[string]bool
	stopAfter int
	out       []models.Instrument
	pages     int
}

func (w *walker) done() bool {
	return w.stopAfter > 0 && len(w.out) >= w.stopAfter
}

func (w *walker) walk(ctx context.Context, nodeID string, depth int) error {
	if w.done() {
		return nil
	}

	query := url.Values{}
	query.Set("limit", strconv.Itoa(w.client.pageSize))

	var page navigationResponse
	if err := w.client.get(ctx, w.sess, "/marketnavigation/"+url.PathEscape(nodeID), query, &page); err != nil {
		return err
	}
	w.pages++

	for _, m := range page.Markets {
		if m.Epic == "" || w.seen[m.Epic] {
			continue
		}
		w.seen[m.Epic] = true
		w.out = append(w.out, models.Instrument{
			Epic: m.Epic,
			Name: m.InstrumentName,
			Type: m.InstrumentType,
		})
		if w.done() {
			return nil
		}
	}

	if depth >= w.client.maxDepth {
		return nil
	}
	for _, child := range page.Nodes {
		if err := w.walk(ctx, child.ID, depth+1); err != nil {
			return err
		}
		if w.done() {
			return nil
		}
	}
	return nil
}
