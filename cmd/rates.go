package cmd

import (
	"context"
	"flag"
	"fmt"
	"os"
	"strings"

	"github.com/google/subcommands"

	"github.com/nordtax/espp"
)

// ratesCmd holds the flags for the 'rates' subcommand.
type ratesCmd struct {
	currencies string
	symbols    string
	date       string
}

func (*ratesCmd) Name() string     { return "rates" }
func (*ratesCmd) Synopsis() string { return "pre-populate the exchange rate and quote cache" }
func (*ratesCmd) Usage() string {
	return `esk rates [-currencies USD,EUR] [-symbols CSCO,AAPL] [-date <date>]

  Fetches the full history for the given currencies (Norges Bank) and
  symbols (EODHD) into the local cache, so tax runs work offline. With
  -date the fetched values for that day are printed as a check.
`
}

func (c *ratesCmd) SetFlags(f *flag.FlagSet) {
	f.StringVar(&c.currencies, "currencies", "USD", "Comma-separated currencies to fetch")
	f.StringVar(&c.symbols, "symbols", "", "Comma-separated stock symbols to fetch")
	f.StringVar(&c.date, "date", espp.Today().String(), "Date to print fetched values for")
}

func (c *ratesCmd) Execute(_ context.Context, f *flag.FlagSet, _ ...interface{}) subcommands.ExitStatus {
	on, err := espp.ParseDate(c.date)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error parsing date: %v\n", err)
		return subcommands.ExitUsageError
	}

	log := logger()
	rates, store, err := openProvider(log)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error opening rate cache: %v\n", err)
		return subcommands.ExitFailure
	}
	defer store.Close()

	status := subcommands.ExitSuccess
	for _, currency := range split(c.currencies) {
		rate, err := rates.ExchangeRate(currency, on)
		if err != nil {
			fmt.Fprintf(os.Stderr, "Error fetching %s: %v\n", currency, err)
			status = subcommands.ExitFailure
			continue
		}
		fmt.Printf("%s/NOK %s: %s\n", currency, on, rate)
	}
	for _, symbol := range split(c.symbols) {
		fmv, err := rates.MarketValue(symbol, on)
		if err != nil {
			fmt.Fprintf(os.Stderr, "Error fetching %s: %v\n", symbol, err)
			status = subcommands.ExitFailure
			continue
		}
		fmt.Printf("%s %s: %s\n", symbol, on, fmv)
	}
	return status
}

func split(s string) []string {
	var out []string
	for _, part := range strings.Split(s, ",") {
		if part = strings.TrimSpace(part); part != "" {
			out = append(out, part)
		}
	}
	return out
}
