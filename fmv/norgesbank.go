package fmv

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"

	"github.com/PaesslerAG/jsonpath"
	"github.com/rs/zerolog"
	"github.com/shopspring/decimal"
)

// Fetcher retrieves a (date -> value) series for one key. Implementations
// fetch whole series; the cache decides what to keep.
type Fetcher interface {
	Fetch(ctx context.Context, key string) (map[string]decimal.Decimal, error)
}

// NorgesBank fetches official NOK exchange rates from the central bank's
// open EXR dataset. One request returns the full daily history of a
// currency pair since startPeriod.
type NorgesBank struct {
	Client *http.Client
	// BaseURL overrides the API endpoint, for tests.
	BaseURL     string
	StartPeriod string // first year to request, default "2006"
	Log         zerolog.Logger
}

const norgesBankURL = "https://data.norges-bank.no/api/data/EXR"

func (n *NorgesBank) Fetch(ctx context.Context, currency string) (map[string]decimal.Decimal, error) {
	base := n.BaseURL
	if base == "" {
		base = norgesBankURL
	}
	start := n.StartPeriod
	if start == "" {
		start = "2006"
	}
	// B = business-day frequency, SP = spot rate
	addr := fmt.Sprintf("%s/B.%s.NOK.SP?format=sdmx-json&startPeriod=%s", base, currency, start)

	body, err := getJSON(ctx, n.client(), addr)
	if err != nil {
		return nil, fmt.Errorf("fetching %s/NOK rates: %w", currency, err)
	}
	series, err := parseSDMX(body)
	if err != nil {
		return nil, fmt.Errorf("parsing %s/NOK rates: %w", currency, err)
	}
	n.Log.Info().Str("currency", currency).Int("days", len(series)).Msg("fetched exchange rates")
	return series, nil
}

func (n *NorgesBank) client() *http.Client {
	if n.Client != nil {
		return n.Client
	}
	return http.DefaultClient
}

// parseSDMX extracts the observation series from an SDMX-JSON document.
// The shape is deeply nested and the series key is dimension-dependent,
// so the values are picked with jsonpath instead of a typed struct.
func parseSDMX(body []byte) (map[string]decimal.Decimal, error) {
	var doc any
	if err := json.Unmarshal(body, &doc); err != nil {
		return nil, err
	}

	jdates, err := jsonpath.Get(`$.data.structure.dimensions.observation[0].values`, doc)
	if err != nil {
		return nil, fmt.Errorf("no observation dates: %w", err)
	}
	dates, ok := jdates.([]any)
	if !ok {
		return nil, fmt.Errorf("observation dates are not a list")
	}

	jobs, err := jsonpath.Get(`$.data.dataSets[0].series.*.observations`, doc)
	if err != nil {
		return nil, fmt.Errorf("no observations: %w", err)
	}
	// jsonpath wraps wildcard results in a list
	if jlist, ok := jobs.([]any); ok && len(jlist) > 0 {
		jobs = jlist[0]
	}
	observations, ok := jobs.(map[string]any)
	if !ok {
		return nil, fmt.Errorf("observations are not an object")
	}

	series := make(map[string]decimal.Decimal, len(observations))
	for idx, jval := range observations {
		var i int
		if _, err := fmt.Sscanf(idx, "%d", &i); err != nil || i < 0 || i >= len(dates) {
			return nil, fmt.Errorf("observation index %q out of range", idx)
		}
		dateObj, ok := dates[i].(map[string]any)
		if !ok {
			return nil, fmt.Errorf("observation date %d is not an object", i)
		}
		dateStr, _ := dateObj["id"].(string)

		values, ok := jval.([]any)
		if !ok || len(values) == 0 {
			return nil, fmt.Errorf("observation %q has no value", idx)
		}
		text, ok := values[0].(string)
		if !ok {
			// some series carry numbers instead of strings
			if f, isFloat := values[0].(float64); isFloat {
				series[dateStr] = decimal.NewFromFloat(f)
				continue
			}
			return nil, fmt.Errorf("observation %q value is neither string nor number", idx)
		}
		value, err := decimal.NewFromString(text)
		if err != nil {
			return nil, fmt.Errorf("observation %q: %w", idx, err)
		}
		series[dateStr] = value
	}
	return series, nil
}

// getJSON performs a GET and returns the body, failing on any non-200.
func getJSON(ctx context.Context, client *http.Client, addr string) ([]byte, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, addr, nil)
	if err != nil {
		return nil, err
	}
	req.Header.Set("Accept", "application/json")
	resp, err := client.Do(req)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return nil, &httpStatusError{URL: addr, Status: resp.StatusCode}
	}
	return io.ReadAll(resp.Body)
}

// httpStatusError marks a non-200 response; 4xx ones are permanent and
// must not be retried.
type httpStatusError struct {
	URL    string
	Status int
}

func (e *httpStatusError) Error() string {
	return fmt.Sprintf("GET %s: status %d", e.URL, e.Status)
}
