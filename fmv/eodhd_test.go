package fmv

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/rs/zerolog"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestEODHD_Fetch(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/CSCO.US", r.URL.Path)
		assert.Equal(t, "secret", r.URL.Query().Get("api_token"))
		w.Write([]byte(`[
			{"date": "2024-05-02", "open": 47.0, "close": 47.31},
			{"date": "2024-05-03", "open": 47.3, "close": 47.80}
		]`))
	}))
	defer srv.Close()

	e := &EODHD{APIKey: "secret", BaseURL: srv.URL, Log: zerolog.Nop()}
	series, err := e.Fetch(context.Background(), "CSCO")
	require.NoError(t, err)
	require.Len(t, series, 2)
	assert.True(t, series["2024-05-02"].Equal(decimal.NewFromFloat(47.31)), "got %s", series["2024-05-02"])
}

func TestEODHD_FetchWithoutKey(t *testing.T) {
	e := &EODHD{Log: zerolog.Nop()}
	_, err := e.Fetch(context.Background(), "CSCO")
	require.ErrorContains(t, err, "API key")
}
