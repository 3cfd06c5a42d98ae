package server

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/bobmcallan/capscan/internal/app"
	"github.com/bobmcallan/capscan/internal/common"
	"github.com/bobmcallan/capscan/internal/interfaces"
	"github.com/bobmcallan/capscan/internal/models"
)

// stubClient fails every session request, optionally after blocking on gate.
type stubClient struct {
	gate    chan struct{}
	entered chan struct{}
}

func (c *stubClient) CreateSession(ctx context.Context, creds models.Credentials, env models.Environment) (*models.Session, error) {
	if c.entered != nil {
		c.entered <- struct{}{}
	}
	if c.gate != nil {
		<-c.gate
	}
	return nil, &interfaces.AuthError{Op: "create session"}
}

func (c *stubClient) KeepAlive(ctx context.Context, sess *models.Session) error { return nil }

func (c *stubClient) ListInstruments(ctx context.Context, sess *models.Session, category models.Category, opts ...interfaces.ListOption) ([]models.Instrument, error) {
	return nil, nil
}

func (c *stubClient) GetDetails(ctx context.Context, sess *models.Session, epic string) (*models.MarketDetails, error) {
	return nil, nil
}

func (c *stubClient) GetPrices(ctx context.Context, sess *models.Session, epic string, opts ...interfaces.PriceOption) ([]models.PriceBar, error) {
	return nil, nil
}

func newTestServer(t *testing.T, client interfaces.CapitalClient) *Server {
	t.Helper()
	cfg := common.NewDefaultConfig()
	cfg.Output.CSVPath = filepath.Join(t.TempDir(), "markets.csv")
	a, err := app.New(cfg, common.NewSilentLogger(), app.WithClient(client))
	require.NoError(t, err)
	t.Cleanup(a.Close)
	return NewServer(a)
}

func seed(t *testing.T, s *Server) {
	t.Helper()
	price := 1.0845
	var perf models.PerformanceResult
	perf[models.Window1M] = models.PercentOf(2.5)
	gold := models.MarketRecord{Category: "Commodities", Symbol: "GOLD", Name: "Gold", Currency: "USD", PriceChange: models.PercentOf(-0.3), Perf: perf, MarketStatus: "TRADEABLE", Type: "COMMODITIES"}
	perf[models.Window1M] = models.PercentOf(-1.25)
	eur := models.MarketRecord{Category: "Forex", Symbol: "EURUSD", Name: "EUR/USD", CurrentPrice: &price, Currency: "USD", PriceChange: models.PercentOf(0.1), Perf: perf, MarketStatus: "TRADEABLE", Type: "CURRENCIES"}
	require.NoError(t, s.app.Store.Save([]models.MarketRecord{gold, eur}))
}

func do(s *Server, method, path string) *httptest.ResponseRecorder {
	rr := httptest.NewRecorder()
	s.Handler().ServeHTTP(rr, httptest.NewRequest(method, path, nil))
	return rr
}

func TestHealthAndVersion(t *testing.T) {
	s := newTestServer(t, &stubClient{})

	rr := do(s, http.MethodGet, "/api/health")
	assert.Equal(t, http.StatusOK, rr.Code)
	assert.JSONEq(t, `{"status":"ok"}`, rr.Body.String())

	rr = do(s, http.MethodGet, "/api/version")
	assert.Equal(t, http.StatusOK, rr.Code)
	var v map[string]string
	require.NoError(t, json.Unmarshal(rr.Body.Bytes(), &v))
	assert.Equal(t, common.GetVersion(), v["version"])

	rr = do(s, http.MethodPost, "/api/health")
	assert.Equal(t, http.StatusMethodNotAllowed, rr.Code)
	assert.Equal(t, "GET, HEAD", rr.Header().Get("Allow"))
}

func TestMarkets_NoData(t *testing.T) {
	s := newTestServer(t, &stubClient{})

	rr := do(s, http.MethodGet, "/api/markets")
	require.Equal(t, http.StatusOK, rr.Code)
	assert.JSONEq(t, `{"markets":[],"stats":null,"count":0,"total":0}`, rr.Body.String())

	rr = do(s, http.MethodGet, "/api/categories")
	require.Equal(t, http.StatusOK, rr.Code)
	assert.JSONEq(t, `{"categories":[],"count":0}`, rr.Body.String())

	rr = do(s, http.MethodGet, "/api/charts/category-1m.png")
	assert.Equal(t, http.StatusNotFound, rr.Code)

	rr = do(s, http.MethodGet, "/api/charts/categories.png")
	assert.Equal(t, http.StatusNotFound, rr.Code)
}

func TestMarkets_ServesCSVRows(t *testing.T) {
	s := newTestServer(t, &stubClient{})
	seed(t, s)

	rr := do(s, http.MethodGet, "/api/markets")
	require.Equal(t, http.StatusOK, rr.Code)

	var resp MarketsResponse
	require.NoError(t, json.Unmarshal(rr.Body.Bytes(), &resp))
	assert.Equal(t, 2, resp.Count)
	require.Len(t, resp.Markets, 2)
	assert.Equal(t, "GOLD", resp.Markets[0]["Symbol"])
	assert.Equal(t, "N/A", resp.Markets[0]["Current Price"])
	assert.Equal(t, "2.50%", resp.Markets[0]["Perf % 1M"])
	assert.Equal(t, "1.0845", resp.Markets[1]["Current Price"])
	assert.Equal(t, "N/A", resp.Markets[1]["Perf % 10Y"])
	assert.Len(t, resp.Markets[1], len(models.Columns))

	require.NotNil(t, resp.Stats)
	assert.True(t, resp.Stats.Exists)
	assert.True(t, resp.Stats.Fresh)
	assert.Positive(t, resp.Stats.FileSize)
	assert.Len(t, resp.Stats.ModifiedTime, len(statsTimeFormat))
}

func TestMarkets_Filters(t *testing.T) {
	s := newTestServer(t, &stubClient{})
	seed(t, s)

	get := func(path string) MarketsResponse {
		t.Helper()
		rr := do(s, http.MethodGet, path)
		require.Equal(t, http.StatusOK, rr.Code)
		var resp MarketsResponse
		require.NoError(t, json.Unmarshal(rr.Body.Bytes(), &resp))
		return resp
	}

	resp := get("/api/markets?category=forex")
	assert.Equal(t, 1, resp.Count)
	assert.Equal(t, 2, resp.Total)
	assert.Equal(t, "EURUSD", resp.Markets[0]["Symbol"])

	resp = get("/api/markets?search=gol")
	require.Equal(t, 1, resp.Count)
	assert.Equal(t, "GOLD", resp.Markets[0]["Symbol"])

	resp = get("/api/markets?q=eur%2Fusd&category=All")
	require.Equal(t, 1, resp.Count)
	assert.Equal(t, "EURUSD", resp.Markets[0]["Symbol"])

	resp = get("/api/markets?category=Forex&search=gold")
	assert.Equal(t, 0, resp.Count)
	assert.NotNil(t, resp.Markets)
	assert.Equal(t, 2, resp.Total)
}

func TestCategories(t *testing.T) {
	s := newTestServer(t, &stubClient{})
	seed(t, s)

	rr := do(s, http.MethodGet, "/api/categories")
	require.Equal(t, http.StatusOK, rr.Code)
	assert.JSONEq(t, `{"categories":["Commodities","Forex"],"count":2}`, rr.Body.String())
}

func TestCategoryChart(t *testing.T) {
	s := newTestServer(t, &stubClient{})
	seed(t, s)

	rr := do(s, http.MethodGet, "/api/charts/category-1m.png")
	require.Equal(t, http.StatusOK, rr.Code)
	assert.Equal(t, "image/png", rr.Header().Get("Content-Type"))
	assert.True(t, bytes.HasPrefix(rr.Body.Bytes(), []byte("\x89PNG")))

	rr = do(s, http.MethodGet, "/api/charts/categories.png")
	require.Equal(t, http.StatusOK, rr.Code)
	assert.Equal(t, "image/png", rr.Header().Get("Content-Type"))
	assert.True(t, bytes.HasPrefix(rr.Body.Bytes(), []byte("\x89PNG")))
}

func TestIndex(t *testing.T) {
	s := newTestServer(t, &stubClient{})

	rr := do(s, http.MethodGet, "/")
	require.Equal(t, http.StatusOK, rr.Code)
	assert.Contains(t, rr.Body.String(), "No market data found")

	seed(t, s)
	rr = do(s, http.MethodGet, "/")
	require.Equal(t, http.StatusOK, rr.Code)
	body := rr.Body.String()
	assert.Contains(t, body, "<th>Perf % 10Y</th>")
	assert.Contains(t, body, `<td class="neg">-1.25%</td>`)
	assert.Contains(t, body, `<td class="pos">2.50%</td>`)
	assert.Contains(t, body, "EUR/USD")

	assert.Contains(t, body, "Top 5 Performers (1M)")
	assert.Contains(t, body, "Bottom 5 Performers (1M)")
	assert.Contains(t, body, "Showing 2 of 2 markets")
	assert.Contains(t, body, `src="/api/charts/categories.png"`)

	rr = do(s, http.MethodGet, "/nope")
	assert.Equal(t, http.StatusNotFound, rr.Code)
}

func TestIndex_Filters(t *testing.T) {
	s := newTestServer(t, &stubClient{})
	seed(t, s)

	rr := do(s, http.MethodGet, "/?category=Commodities")
	require.Equal(t, http.StatusOK, rr.Code)
	body := rr.Body.String()
	assert.Contains(t, body, "Showing 1 of 2 markets")
	assert.Contains(t, body, `<option value="Commodities" selected>`)
	assert.NotContains(t, body, "EUR/USD")

	rr = do(s, http.MethodGet, "/?search=zzz")
	require.Equal(t, http.StatusOK, rr.Code)
	body = rr.Body.String()
	assert.Contains(t, body, "No markets match the current filter.")
	assert.Contains(t, body, `value="zzz"`)
	assert.NotContains(t, body, "No market data found")
}

func TestRefresh_AcceptedThenConflict(t *testing.T) {
	client := &stubClient{gate: make(chan struct{}), entered: make(chan struct{}, 1)}
	s := newTestServer(t, client)
	seed(t, s)

	rr := do(s, http.MethodPost, "/api/refresh")
	require.Equal(t, http.StatusAccepted, rr.Code)
	<-client.entered

	rr = do(s, http.MethodPost, "/api/refresh")
	assert.Equal(t, http.StatusConflict, rr.Code)
	var errResp ErrorResponse
	require.NoError(t, json.Unmarshal(rr.Body.Bytes(), &errResp))
	assert.Equal(t, "refresh_in_progress", errResp.Code)

	rr = do(s, http.MethodGet, "/api/refresh")
	require.Equal(t, http.StatusOK, rr.Code)
	assert.Contains(t, rr.Body.String(), `"running":true`)

	// The failed run leaves the served data untouched.
	close(client.gate)
	s.app.Refresher.Wait()

	rr = do(s, http.MethodGet, "/api/refresh")
	assert.Contains(t, rr.Body.String(), `"running":false`)
	assert.Contains(t, rr.Body.String(), "authentication failed")

	rr = do(s, http.MethodGet, "/api/markets")
	assert.Contains(t, rr.Body.String(), `"count":2`)

	rr = do(s, http.MethodDelete, "/api/refresh")
	assert.Equal(t, http.StatusMethodNotAllowed, rr.Code)
}

func TestMiddleware_CorrelationAndCORS(t *testing.T) {
	s := newTestServer(t, &stubClient{})

	rr := do(s, http.MethodGet, "/api/health")
	assert.Len(t, rr.Header().Get("X-Correlation-ID"), 8)
	assert.Equal(t, "*", rr.Header().Get("Access-Control-Allow-Origin"))

	req := httptest.NewRequest(http.MethodGet, "/api/health", nil)
	req.Header.Set("X-Request-ID", "abc123")
	rr = httptest.NewRecorder()
	s.Handler().ServeHTTP(rr, req)
	assert.Equal(t, "abc123", rr.Header().Get("X-Correlation-ID"))

	rr = do(s, http.MethodOptions, "/api/markets")
	assert.Equal(t, http.StatusNoContent, rr.Code)
}

func TestRecoveryMiddleware(t *testing.T) {
	h := recoveryMiddleware(common.NewSilentLogger())(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		panic("boom")
	}))
	rr := httptest.NewRecorder()
	h.ServeHTTP(rr, httptest.NewRequest(http.MethodGet, "/", nil))
	assert.Equal(t, http.StatusInternalServerError, rr.Code)
}
