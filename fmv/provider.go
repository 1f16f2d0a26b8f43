package fmv

import (
	"context"
	"errors"
	"time"

	"github.com/cenkalti/backoff/v4"
	"github.com/rs/zerolog"
	"github.com/shopspring/decimal"

	"github.com/nordtax/espp"
)

// maxWalkBack is how many days before the requested date a quote may be
// reused: weekends and holidays have no rate, so the preceding trading
// day's value applies.
const maxWalkBack = 5

// Provider implements espp.RateProvider on top of the cache, fetching a
// key's full series on first miss. Lookups after the first are pure
// cache reads, so a tax run after warm-up needs no network at all.
type Provider struct {
	store      *Store
	currencies Fetcher
	quotes     Fetcher
	log        zerolog.Logger

	fetched map[string]bool // keys already fetched this process
}

func NewProvider(store *Store, currencies, quotes Fetcher, log zerolog.Logger) *Provider {
	return &Provider{
		store:      store,
		currencies: currencies,
		quotes:     quotes,
		log:        log,
		fetched:    make(map[string]bool),
	}
}

// ExchangeRate implements espp.RateProvider.
func (p *Provider) ExchangeRate(currency string, on espp.Date) (decimal.Decimal, error) {
	if currency == "NOK" {
		return decimal.NewFromInt(1), nil
	}
	return p.lookup("currency:"+currency, currency, p.currencies, on)
}

// MarketValue implements espp.RateProvider.
func (p *Provider) MarketValue(symbol string, on espp.Date) (decimal.Decimal, error) {
	return p.lookup("stock:"+symbol, symbol, p.quotes, on)
}

func (p *Provider) lookup(cacheKey, fetchKey string, fetcher Fetcher, on espp.Date) (decimal.Decimal, error) {
	for attempt := 0; attempt < 2; attempt++ {
		value, ok, err := p.walkBack(cacheKey, on)
		if err != nil {
			return decimal.Decimal{}, err
		}
		if ok {
			return value, nil
		}
		if p.fetched[cacheKey] || fetcher == nil {
			break
		}
		if err := p.fill(cacheKey, fetchKey, fetcher); err != nil {
			return decimal.Decimal{}, err
		}
	}
	return decimal.Decimal{}, &espp.MissingRateError{Key: fetchKey, Date: on}
}

// walkBack reads the cache at the date, then up to maxWalkBack earlier
// days for non-trading dates.
func (p *Provider) walkBack(cacheKey string, on espp.Date) (decimal.Decimal, bool, error) {
	for i := 0; i <= maxWalkBack; i++ {
		value, ok, err := p.store.Get(cacheKey, on.Add(-i))
		if err != nil || ok {
			return value, ok, err
		}
	}
	return decimal.Decimal{}, false, nil
}

// fill fetches the key's whole series with retry and caches it. 4xx
// responses are permanent; everything else backs off exponentially.
func (p *Provider) fill(cacheKey, fetchKey string, fetcher Fetcher) error {
	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Minute)
	defer cancel()

	var series map[string]decimal.Decimal
	operation := func() error {
		var err error
		series, err = fetcher.Fetch(ctx, fetchKey)
		if err == nil {
			return nil
		}
		var status *httpStatusError
		if errors.As(err, &status) && status.Status >= 400 && status.Status < 500 {
			return backoff.Permanent(err)
		}
		p.log.Warn().Err(err).Str("key", fetchKey).Msg("fetch failed, retrying")
		return err
	}

	b := backoff.NewExponentialBackOff()
	b.InitialInterval = 500 * time.Millisecond
	b.MaxElapsedTime = 30 * time.Second
	if err := backoff.Retry(operation, backoff.WithContext(b, ctx)); err != nil {
		return err
	}

	p.fetched[cacheKey] = true
	return p.store.PutAll(cacheKey, series)
}

var _ espp.RateProvider = (*Provider)(nil)
