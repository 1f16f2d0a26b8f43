package cmd

import (
	"context"
	"encoding/json"
	"flag"
	"fmt"
	"os"

	"github.com/google/subcommands"

	"github.com/nordtax/espp"
	"github.com/nordtax/espp/renderer"
)

// taxCmd holds the flags for the 'tax' subcommand.
type taxCmd struct {
	year         int
	broker       string
	window       int
	transactions string
	holdings     string
	wires        string
	outHoldings  string
	jsonOut      bool
}

func (*taxCmd) Name() string     { return "tax" }
func (*taxCmd) Synopsis() string { return "compute the tax report for one year" }
func (*taxCmd) Usage() string {
	return `esk tax -year <year> -t <transactions.json> [-i <holdings.json>] [-w <wires.json>] [-o <holdings-out.json>]

  Replays one year of broker transactions against the opening holdings and
  prints the tax report: capital gains, dividends, source tax, currency
  gains on transfers and the year-end wealth basis. With -o the year-end
  holdings snapshot is written for next year's run.
`
}

func (c *taxCmd) SetFlags(f *flag.FlagSet) {
	f.IntVar(&c.year, "year", espp.Today().Year()-1, "Tax year to compute")
	f.StringVar(&c.broker, "broker", "", "Broker name recorded in the report and snapshot")
	f.IntVar(&c.window, "window", espp.DefaultAggregationWindow, "Days between receipt and wire under which currency gains aggregate")
	f.StringVar(&c.transactions, "t", "", "Normalized transactions file (required)")
	f.StringVar(&c.holdings, "i", "", "Opening holdings snapshot from the previous year")
	f.StringVar(&c.wires, "w", "", "Bank transfer records file")
	f.StringVar(&c.outHoldings, "o", "", "Write the year-end holdings snapshot here")
	f.BoolVar(&c.jsonOut, "json", false, "Print the report as JSON instead of markdown")
}

func (c *taxCmd) Execute(_ context.Context, f *flag.FlagSet, _ ...interface{}) subcommands.ExitStatus {
	if c.transactions == "" {
		fmt.Fprintln(os.Stderr, "the -t transactions file is required")
		return subcommands.ExitUsageError
	}
	txs, err := loadTransactions(c.transactions)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error loading transactions: %v\n", err)
		return subcommands.ExitFailure
	}
	opening, err := loadHoldings(c.holdings)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error loading holdings: %v\n", err)
		return subcommands.ExitFailure
	}
	wires, err := loadWires(c.wires)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error loading wires: %v\n", err)
		return subcommands.ExitFailure
	}

	log := logger()
	rates, store, err := openProvider(log)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error opening rate cache: %v\n", err)
		return subcommands.ExitFailure
	}
	defer store.Close()

	report, holdings, err := espp.Replay(c.year, opening, txs, wires, rates, espp.Options{
		Broker:            c.broker,
		AggregationWindow: c.window,
	})
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		if report != nil && len(report.Warnings) > 0 {
			fmt.Fprintln(os.Stderr, "Warnings so far:")
			for _, w := range report.Warnings {
				fmt.Fprintf(os.Stderr, "  %s\n", w)
			}
		}
		return subcommands.ExitFailure
	}

	if c.jsonOut {
		enc := json.NewEncoder(os.Stdout)
		enc.SetIndent("", "  ")
		if err := enc.Encode(report); err != nil {
			fmt.Fprintf(os.Stderr, "Error encoding report: %v\n", err)
			return subcommands.ExitFailure
		}
	} else {
		printMarkdown(renderer.ReportMarkdown(report))
	}

	if c.outHoldings != "" {
		if err := writeHoldings(c.outHoldings, holdings); err != nil {
			fmt.Fprintf(os.Stderr, "Error writing holdings: %v\n", err)
			return subcommands.ExitFailure
		}
		fmt.Fprintf(os.Stderr, "Wrote %d holdings to %s\n", len(holdings.Stocks), c.outHoldings)
	}
	return subcommands.ExitSuccess
}
