package web

import (
	"bytes"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/rs/zerolog"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestRouter() http.Handler {
	return NewRouter(nil, zerolog.Nop(), NewMetrics())
}

const taxBundle = `{
	"year": 2024,
	"broker": "schwab",
	"holdings": {
		"year": 2023,
		"broker": "schwab",
		"stocks": [{
			"symbol": "CSCO",
			"date": "2022-06-01",
			"qty": 400,
			"purchase_price": {"currency": "USD", "value": 20, "nok_exchange_rate": 10.5},
			"tax_deduction": 0
		}],
		"cash": []
	},
	"transactions": [{
		"type": "SELL",
		"date": "2024-06-01",
		"symbol": "CSCO",
		"qty": 400,
		"amount": {"currency": "USD", "value": 12000}
	}],
	"rates": {
		"exchange": {"USD": {"2024-06-01": 10.5, "2024-12-31": 10.5}},
		"fmv": {"CSCO": {"2024-12-31": 30}}
	}
}`

func TestTaxHandler_Compute(t *testing.T) {
	router := newTestRouter()

	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, httptest.NewRequest(http.MethodPost, "/api/v1/tax", bytes.NewReader([]byte(taxBundle))))
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	assert.NotEmpty(t, rec.Header().Get("X-Request-Id"))

	var resp TaxResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	require.NotNil(t, resp.Report)
	assert.True(t, resp.Report.Totals.GainNOK.Equal(decimal.NewFromInt(42000)),
		"GainNOK = %s", resp.Report.Totals.GainNOK)
	require.NotNil(t, resp.Holdings)
	assert.Equal(t, 2024, resp.Holdings.Year)
	assert.Empty(t, resp.Holdings.Stocks)
}

func TestTaxHandler_BadRequest(t *testing.T) {
	router := newTestRouter()

	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, httptest.NewRequest(http.MethodPost, "/api/v1/tax", bytes.NewReader([]byte(`{not json`))))
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	rec = httptest.NewRecorder()
	router.ServeHTTP(rec, httptest.NewRequest(http.MethodPost, "/api/v1/tax", bytes.NewReader([]byte(`{"transactions": []}`))))
	assert.Equal(t, http.StatusBadRequest, rec.Code, "missing year must be rejected")
}

func TestTaxHandler_InconsistentBundle(t *testing.T) {
	router := newTestRouter()

	// selling shares that were never deposited
	bundle := `{
		"year": 2024,
		"transactions": [{
			"type": "SELL", "date": "2024-06-01", "symbol": "CSCO", "qty": 10,
			"amount": {"currency": "USD", "value": 300}
		}],
		"rates": {"exchange": {"USD": {"2024-06-01": 10.5}}, "fmv": {}}
	}`
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, httptest.NewRequest(http.MethodPost, "/api/v1/tax", bytes.NewReader([]byte(bundle))))
	require.Equal(t, http.StatusUnprocessableEntity, rec.Code, rec.Body.String())

	var resp TaxResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	assert.Contains(t, resp.Error, "only 0 held")
	assert.NotNil(t, resp.Report, "the partial report comes back with the error")
}

func TestHealthz(t *testing.T) {
	router := newTestRouter()
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/healthz", nil))
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.JSONEq(t, `{"status":"ok"}`, rec.Body.String())
}

func TestMetricsEndpoint(t *testing.T) {
	router := newTestRouter()

	// one run to move the counters
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, httptest.NewRequest(http.MethodPost, "/api/v1/tax", bytes.NewReader([]byte(taxBundle))))
	require.Equal(t, http.StatusOK, rec.Code)

	rec = httptest.NewRecorder()
	router.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/metrics", nil))
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), `espp_tax_runs_total{outcome="ok"} 1`)
}

func TestConfigDefaults(t *testing.T) {
	cfg, err := LoadConfig()
	require.NoError(t, err)
	assert.Equal(t, ":8080", cfg.Addr)
	assert.Equal(t, "espp-rates.db", cfg.CachePath)
}
