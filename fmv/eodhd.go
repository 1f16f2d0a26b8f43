package fmv

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"

	"github.com/rs/zerolog"
	"github.com/shopspring/decimal"
)

// EODHD fetches end-of-day stock quotes from eodhd.com. Symbols are
// looked up on the US composite exchange, which covers the brokers this
// tool deals with.
type EODHD struct {
	APIKey  string
	Client  *http.Client
	BaseURL string // overrides the API endpoint, for tests
	Log     zerolog.Logger
}

const eodhdURL = "https://eodhd.com/api/eod"

func (e *EODHD) Fetch(ctx context.Context, symbol string) (map[string]decimal.Decimal, error) {
	if e.APIKey == "" {
		return nil, fmt.Errorf("fetching %s quotes: no EODHD API key configured", symbol)
	}
	base := e.BaseURL
	if base == "" {
		base = eodhdURL
	}
	addr := fmt.Sprintf("%s/%s.US?api_token=%s&fmt=json", base, symbol, e.APIKey)

	client := e.Client
	if client == nil {
		client = http.DefaultClient
	}
	body, err := getJSON(ctx, client, addr)
	if err != nil {
		return nil, fmt.Errorf("fetching %s quotes: %w", symbol, err)
	}

	var rows []struct {
		Date  string          `json:"date"`
		Close decimal.Decimal `json:"close"`
	}
	if err := json.Unmarshal(body, &rows); err != nil {
		return nil, fmt.Errorf("parsing %s quotes: %w", symbol, err)
	}
	series := make(map[string]decimal.Decimal, len(rows))
	for _, r := range rows {
		series[r.Date] = r.Close
	}
	e.Log.Info().Str("symbol", symbol).Int("days", len(series)).Msg("fetched quotes")
	return series, nil
}
