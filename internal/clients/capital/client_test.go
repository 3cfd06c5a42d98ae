package capital

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/bobmcallan/capscan/internal/interfaces"
	"github.com/bobmcallan/capscan/internal/models"
)

func testSession() *models.Session {
	return &models.Session{CST: "cst-token", SecurityToken: "sec-token", Environment: models.EnvironmentDemo}
}

func testCreds() models.Credentials {
	return models.Credentials{APIKey: "api-key", Identifier: "me@example.com", Password: "secret"}
}

func newTestClient(t *testing.T, h http.Handler, opts ...ClientOption) *Client {
	t.Helper()
	srv := httptest.NewServer(h)
	t.Cleanup(srv.Close)
	return NewClient(append([]ClientOption{WithBaseURL(srv.URL), WithRateLimit(1000)}, opts...)...)
}

func writeJSON(w http.ResponseWriter, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(v)
}

func requireSessionHeaders(t *testing.T, r *http.Request) bool {
	if r.Header.Get("CST") != "cst-token" || r.Header.Get("X-SECURITY-TOKEN") != "sec-token" {
		t.Errorf("missing session headers on %s", r.URL.Path)
		return false
	}
	return true
}

func TestNewClient_Defaults(t *testing.T) {
	c := NewClient()
	assert.Equal(t, DefaultDemoURL, c.baseURLs[models.EnvironmentDemo])
	assert.Equal(t, DefaultLiveURL, c.baseURLs[models.EnvironmentLive])
	assert.Equal(t, DefaultTimeout, c.httpClient.Timeout)
	assert.Equal(t, DefaultPageSize, c.pageSize)
	assert.Equal(t, DefaultMaxDepth, c.maxDepth)
	assert.NotNil(t, c.limiter)
	assert.NotNil(t, c.logger)
}

func TestNewClient_Options(t *testing.T) {
	hc := &http.Client{}
	c := NewClient(
		WithEnvironmentURLs("http://demo", "http://live"),
		WithHTTPClient(hc),
		WithTimeout(5*time.Second),
		WithNavigation(100, 1),
		WithNodeNames(map[models.Category]string{models.CategoryETF: "Exchange Traded Funds"}),
	)
	assert.Equal(t, "http://demo", c.baseURLs[models.EnvironmentDemo])
	assert.Equal(t, "http://live", c.baseURLs[models.EnvironmentLive])
	assert.Same(t, hc, c.httpClient)
	assert.Equal(t, 5*time.Second, hc.Timeout)
	assert.Equal(t, 100, c.pageSize)
	assert.Equal(t, 1, c.maxDepth)
	assert.Equal(t, "Exchange Traded Funds", c.nodeName(models.CategoryETF))
	assert.Equal(t, "Forex", c.nodeName(models.CategoryForex))
}

func TestAPIError(t *testing.T) {
	err := &APIError{StatusCode: 400, Code: "error.invalid.details", Endpoint: "/session"}
	assert.Equal(t, "Capital API error: error.invalid.details (status: 400, endpoint: /session)", err.Error())
	assert.False(t, err.Unauthorized())
	assert.True(t, (&APIError{StatusCode: 401}).Unauthorized())
	assert.True(t, (&APIError{StatusCode: 403}).Unauthorized())
	assert.Contains(t, (&APIError{StatusCode: 500, Endpoint: "/ping"}).Error(), "Internal Server Error")
}

// --- session ---

func TestCreateSession_Success(t *testing.T) {
	fixed := time.Date(2026, 3, 2, 9, 0, 0, 0, time.UTC)
	c := newTestClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, http.MethodPost, r.Method)
		assert.Equal(t, "/api/v1/session", r.URL.Path)
		assert.Equal(t, "api-key", r.Header.Get("X-CAP-API-KEY"))
		assert.Equal(t, "application/json", r.Header.Get("Content-Type"))

		var body map[string]interface{}
		require.NoError(t, json.NewDecoder(r.Body).Decode(&body))
		assert.Equal(t, "me@example.com", body["identifier"])
		assert.Equal(t, "secret", body["password"])
		assert.Equal(t, false, body["encryptedPassword"])

		w.Header().Set("CST", "cst-token")
		w.Header().Set("X-SECURITY-TOKEN", "sec-token")
		writeJSON(w, map[string]string{"currentAccountId": "ACC-1"})
	}), WithClock(func() time.Time { return fixed }))

	sess, err := c.CreateSession(context.Background(), testCreds(), models.EnvironmentDemo)
	require.NoError(t, err)
	assert.Equal(t, "cst-token", sess.CST)
	assert.Equal(t, "sec-token", sess.SecurityToken)
	assert.Equal(t, "ACC-1", sess.AccountID)
	assert.Equal(t, models.EnvironmentDemo, sess.Environment)
	assert.Equal(t, fixed, sess.CreatedAt)
}

func TestCreateSession_InvalidCredentials(t *testing.T) {
	c := newTestClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusUnauthorized)
		writeJSON(w, map[string]string{"errorCode": "error.invalid.details"})
	}))

	_, err := c.CreateSession(context.Background(), testCreds(), models.EnvironmentDemo)
	require.Error(t, err)
	assert.True(t, errors.Is(err, interfaces.ErrAuth))
	assert.False(t, errors.Is(err, interfaces.ErrSessionExpired), "bad credentials are not an expired session")

	var authErr *interfaces.AuthError
	require.True(t, errors.As(err, &authErr))
	var apiErr *APIError
	require.True(t, errors.As(err, &apiErr))
	assert.Equal(t, "error.invalid.details", apiErr.Code)
}

func TestCreateSession_MissingTokens(t *testing.T) {
	c := newTestClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		writeJSON(w, map[string]string{})
	}))

	_, err := c.CreateSession(context.Background(), testCreds(), models.EnvironmentDemo)
	assert.True(t, errors.Is(err, interfaces.ErrAuth))
}

func TestCreateSession_MissingCredentials(t *testing.T) {
	called := false
	c := newTestClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		called = true
	}))

	_, err := c.CreateSession(context.Background(), models.Credentials{APIKey: "k"}, models.EnvironmentDemo)
	assert.True(t, errors.Is(err, interfaces.ErrAuth))
	assert.False(t, called)
}

func TestCreateSession_Unreachable(t *testing.T) {
	srv := httptest.NewServer(http.NotFoundHandler())
	url := srv.URL
	srv.Close()

	c := NewClient(WithBaseURL(url))
	_, err := c.CreateSession(context.Background(), testCreds(), models.EnvironmentLive)
	assert.True(t, errors.Is(err, interfaces.ErrAuth))
}

func TestKeepAlive(t *testing.T) {
	t.Run("ok", func(t *testing.T) {
		c := newTestClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			assert.Equal(t, "/api/v1/ping", r.URL.Path)
			requireSessionHeaders(t, r)
			writeJSON(w, map[string]string{"status": "OK"})
		}))
		assert.NoError(t, c.KeepAlive(context.Background(), testSession()))
	})

	t.Run("expired", func(t *testing.T) {
		c := newTestClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			w.WriteHeader(http.StatusUnauthorized)
			writeJSON(w, map[string]string{"errorCode": "error.invalid.session.token"})
		}))
		err := c.KeepAlive(context.Background(), testSession())
		assert.True(t, errors.Is(err, interfaces.ErrSessionExpired))
	})

	t.Run("server error", func(t *testing.T) {
		c := newTestClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			w.WriteHeader(http.StatusBadGateway)
		}))
		err := c.KeepAlive(context.Background(), testSession())
		assert.True(t, errors.Is(err, interfaces.ErrAuth))
		assert.False(t, errors.Is(err, interfaces.ErrSessionExpired))
	})

	t.Run("no session", func(t *testing.T) {
		c := NewClient()
		err := c.KeepAlive(context.Background(), &models.Session{})
		assert.True(t, errors.Is(err, interfaces.ErrSessionExpired))
	})
}

// --- navigation ---

// navigationTree serves a small market-navigation hierarchy:
//
//	commodities (markets GOLD, SILVER)
//	  ├─ metals (markets SILVER, COPPER)
//	  └─ energy (markets OIL_CRUDE)
//	       └─ gas (markets NATURALGAS)
func navigationTree(t *testing.T, requests *[]string) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		requireSessionHeaders(t, r)
		*requests = append(*requests, r.URL.Path)
		switch r.URL.Path {
		case "/api/v1/marketnavigation":
			writeJSON(w, map[string]interface{}{
				"nodes": []map[string]string{
					{"id": "hierarchy_v1.forex", "name": "Forex"},
					{"id": "hierarchy_v1.commodities", "name": "Commodities"},
				},
			})
		case "/api/v1/marketnavigation/hierarchy_v1.commodities":
			assert.Equal(t, "500", r.URL.Query().Get("limit"))
			writeJSON(w, map[string]interface{}{
				"nodes": []map[string]string{
					{"id": "metals", "name": "Metals"},
					{"id": "energy", "name": "Energy"},
				},
				"markets": []map[string]string{
					{"epic": "GOLD", "instrumentName": "Gold", "instrumentType": "COMMODITIES"},
					{"epic": "SILVER", "instrumentName": "Silver", "instrumentType": "COMMODITIES"},
				},
			})
		case "/api/v1/marketnavigation/metals":
			writeJSON(w, map[string]interface{}{
				"markets": []map[string]string{
					{"epic": "SILVER", "instrumentName": "Silver"},
					{"epic": "COPPER", "instrumentName": "Copper"},
				},
			})
		case "/api/v1/marketnavigation/energy":
			writeJSON(w, map[string]interface{}{
				"nodes":   []map[string]string{{"id": "gas", "name": "Gas"}},
				"markets": []map[string]string{{"epic": "OIL_CRUDE", "instrumentName": "US Crude Oil"}},
			})
		case "/api/v1/marketnavigation/gas":
			writeJSON(w, map[string]interface{}{
				"markets": []map[string]string{{"epic": "NATURALGAS", "instrumentName": "Natural Gas"}},
			})
		case "/api/v1/marketnavigation/hierarchy_v1.forex":
			writeJSON(w, map[string]interface{}{})
		default:
			w.WriteHeader(http.StatusNotFound)
		}
	})
}

func epics(instruments []models.Instrument) []string {
	out := make([]string, len(instruments))
	for i, in := range instruments {
		out[i] = in.Epic
	}
	return out
}

func TestListInstruments_WalksInUpstreamOrder(t *testing.T) {
	var requests []string
	c := newTestClient(t, navigationTree(t, &requests))

	got, err := c.ListInstruments(context.Background(), testSession(), models.CategoryCommodities)
	require.NoError(t, err)
	assert.Equal(t, []string{"GOLD", "SILVER", "COPPER", "OIL_CRUDE", "NATURALGAS"}, epics(got))
	assert.Equal(t, "Gold", got[0].Name)
	assert.Equal(t, "COMMODITIES", got[0].Type)
}

func TestListInstruments_MaxDepth(t *testing.T) {
	var requests []string
	c := newTestClient(t, navigationTree(t, &requests), WithNavigation(0, 1))

	got, err := c.ListInstruments(context.Background(), testSession(), models.CategoryCommodities)
	require.NoError(t, err)
	assert.Equal(t, []string{"GOLD", "SILVER", "COPPER", "OIL_CRUDE"}, epics(got))
	assert.NotContains(t, requests, "/api/v1/marketnavigation/gas")
}

func TestListInstruments_StopAfter(t *testing.T) {
	var requests []string
	c := newTestClient(t, navigationTree(t, &requests))

	got, err := c.ListInstruments(context.Background(), testSession(), models.CategoryCommodities, interfaces.WithStopAfter(3))
	require.NoError(t, err)
	assert.Equal(t, []string{"GOLD", "SILVER", "COPPER"}, epics(got))
	assert.NotContains(t, requests, "/api/v1/marketnavigation/energy")
}

func TestListInstruments_EmptyCategory(t *testing.T) {
	var requests []string
	c := newTestClient(t, navigationTree(t, &requests))

	got, err := c.ListInstruments(context.Background(), testSession(), models.CategoryForex)
	require.NoError(t, err)
	assert.NotNil(t, got)
	assert.Empty(t, got)

	got, err = c.ListInstruments(context.Background(), testSession(), models.CategoryShares)
	require.NoError(t, err, "missing node is an empty category")
	assert.Empty(t, got)
}

func TestListInstruments_TransportFailure(t *testing.T) {
	c := newTestClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path == "/api/v1/marketnavigation" {
			writeJSON(w, map[string]interface{}{
				"nodes": []map[string]string{{"id": "idx", "name": "Indices"}},
			})
			return
		}
		w.WriteHeader(http.StatusInternalServerError)
	}))

	_, err := c.ListInstruments(context.Background(), testSession(), models.CategoryIndices)
	require.Error(t, err)
	assert.True(t, errors.Is(err, interfaces.ErrCategoryFetch))
	assert.False(t, errors.Is(err, interfaces.ErrSessionExpired))

	var catErr *interfaces.CategoryFetchError
	require.True(t, errors.As(err, &catErr))
	assert.Equal(t, models.CategoryIndices, catErr.Category)
}

func TestListInstruments_SessionExpired(t *testing.T) {
	c := newTestClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusUnauthorized)
	}))

	_, err := c.ListInstruments(context.Background(), testSession(), models.CategoryIndices)
	assert.True(t, errors.Is(err, interfaces.ErrCategoryFetch))
	assert.True(t, errors.Is(err, interfaces.ErrSessionExpired))
}

// --- details ---

func TestGetDetails_ParsesResponse(t *testing.T) {
	c := newTestClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/api/v1/markets/GOLD", r.URL.Path)
		requireSessionHeaders(t, r)
		w.Write([]byte(`{
			"instrument": {"epic": "GOLD", "name": "Gold", "type": "COMMODITIES", "currency": "USD"},
			"dealingRules": {},
			"snapshot": {"marketStatus": "TRADEABLE", "percentageChange": 0.85, "updateTime": "2026-03-02T10:15:30.123", "bid": 2345.6, "offer": 2346.1}
		}`))
	}))

	d, err := c.GetDetails(context.Background(), testSession(), "GOLD")
	require.NoError(t, err)
	require.NotNil(t, d.Snapshot.Bid)
	assert.Equal(t, 2345.6, *d.Snapshot.Bid)
	assert.Equal(t, 2346.1, *d.Snapshot.Offer)
	assert.Equal(t, models.PercentOf(0.85), d.Snapshot.PercentageChange)
	assert.Equal(t, "TRADEABLE", d.Snapshot.MarketStatus)
	assert.Equal(t, time.Date(2026, 3, 2, 10, 15, 30, 123000000, time.UTC), d.Snapshot.UpdateTime)
	assert.Equal(t, "USD", d.Instrument.Currency)
	assert.Equal(t, "COMMODITIES", d.Instrument.Type)
}

func TestGetDetails_StringAndNullNumbers(t *testing.T) {
	c := newTestClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(`{
			"instrument": {"name": "Odd"},
			"snapshot": {"marketStatus": "CLOSED", "percentageChange": "-1.25%", "bid": null}
		}`))
	}))

	d, err := c.GetDetails(context.Background(), testSession(), "ODD")
	require.NoError(t, err)
	assert.Nil(t, d.Snapshot.Bid)
	assert.Equal(t, models.PercentOf(-1.25), d.Snapshot.PercentageChange)
	assert.Equal(t, "ODD", d.Instrument.Epic)
}

func TestGetDetails_NonFiniteNumbers(t *testing.T) {
	c := newTestClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(`{
			"instrument": {"epic": "BAD", "currency": "USD"},
			"snapshot": {"bid": "NaN", "offer": "+Inf", "percentageChange": "NaN"}
		}`))
	}))

	d, err := c.GetDetails(context.Background(), testSession(), "BAD")
	require.NoError(t, err)
	assert.Nil(t, d.Snapshot.Bid)
	assert.Nil(t, d.Snapshot.Offer)
	assert.False(t, d.Snapshot.PercentageChange.Valid)
}

func TestGetDetails_Malformed(t *testing.T) {
	tests := []struct {
		name string
		body string
		code int
	}{
		{"no snapshot", `{"instrument": {"epic": "X"}}`, http.StatusOK},
		{"no instrument", `{"snapshot": {"bid": 1}}`, http.StatusOK},
		{"not json", `<html>`, http.StatusOK},
		{"not found", `{"errorCode": "error.not-found.epic"}`, http.StatusNotFound},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			c := newTestClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
				w.WriteHeader(tt.code)
				w.Write([]byte(tt.body))
			}))
			_, err := c.GetDetails(context.Background(), testSession(), "X")
			require.Error(t, err)
			assert.True(t, errors.Is(err, interfaces.ErrDetailFetch))
			var dErr *interfaces.DetailFetchError
			require.True(t, errors.As(err, &dErr))
			assert.Equal(t, "X", dErr.Epic)
		})
	}
}

// --- prices ---

func TestGetPrices_QueryAndOrdering(t *testing.T) {
	from := time.Date(2025, 1, 1, 0, 0, 0, 0, time.UTC)
	to := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)

	c := newTestClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/api/v1/prices/GOLD", r.URL.Path)
		q := r.URL.Query()
		assert.Equal(t, "WEEK", q.Get("resolution"))
		assert.Equal(t, "1000", q.Get("max"))
		assert.Equal(t, "2025-01-01T00:00:00", q.Get("from"))
		assert.Equal(t, "2026-01-01T00:00:00", q.Get("to"))
		w.Write([]byte(`{"prices": [
			{"snapshotTimeUTC": "2025-12-29T00:00:00", "closePrice": {"bid": 110.5, "ask": 111}},
			{"snapshotTimeUTC": "2025-12-22T00:00:00", "closePrice": {"bid": null, "ask": 105}},
			{"snapshotTimeUTC": "", "closePrice": {"bid": 1}},
			{"snapshotTime": "2025-12-15T00:00:00", "closePrice": {}}
		]}`))
	}))

	bars, err := c.GetPrices(context.Background(), testSession(), "GOLD",
		interfaces.WithResolution(models.ResolutionWeek),
		interfaces.WithDateRange(from, to),
		interfaces.WithMax(5000),
	)
	require.NoError(t, err)
	require.Len(t, bars, 2)
	assert.Equal(t, time.Date(2025, 12, 22, 0, 0, 0, 0, time.UTC), bars[0].Time)
	assert.Equal(t, 105.0, bars[0].Close, "falls back to ask close")
	assert.Equal(t, 110.5, bars[1].Close)
}

func TestGetPrices_Errors(t *testing.T) {
	c := newTestClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path == "/api/v1/prices/EXPIRED" {
			w.WriteHeader(http.StatusUnauthorized)
			return
		}
		w.WriteHeader(http.StatusNotFound)
		writeJSON(w, map[string]string{"errorCode": "error.prices.not-found"})
	}))

	_, err := c.GetPrices(context.Background(), testSession(), "NEWLISTING")
	require.Error(t, err)
	var apiErr *APIError
	require.True(t, errors.As(err, &apiErr))
	assert.Equal(t, "error.prices.not-found", apiErr.Code)
	assert.False(t, errors.Is(err, interfaces.ErrSessionExpired))

	_, err = c.GetPrices(context.Background(), testSession(), "EXPIRED")
	assert.True(t, errors.Is(err, interfaces.ErrSessionExpired))
}

func TestOptFloat(t *testing.T) {
	tests := []struct {
		in    string
		set   bool
		value float64
	}{
		{`1.5`, true, 1.5},
		{`"2.25"`, true, 2.25},
		{`"-0.4%"`, true, -0.4},
		{`"N/A"`, false, 0},
		{`""`, false, 0},
		{`null`, false, 0},
		{`"abc"`, false, 0},
		{`"NaN"`, false, 0},
		{`"Inf"`, false, 0},
		{`"-Infinity"`, false, 0},
	}
	for _, tt := range tests {
		var f optFloat
		require.NoError(t, json.Unmarshal([]byte(tt.in), &f), tt.in)
		assert.Equal(t, tt.set, f.set, tt.in)
		assert.Equal(t, tt.value, f.value, tt.in)
	}

	var f optFloat
	assert.Error(t, json.Unmarshal([]byte(`{}`), &f))
}
