package cmd

import (
	"context"
	"flag"
	"fmt"
	"os"

	"github.com/google/subcommands"

	"github.com/nordtax/espp"
	"github.com/nordtax/espp/renderer"
)

// holdingsCmd holds the flags for the 'holdings' subcommand.
type holdingsCmd struct {
	year         int
	broker       string
	transactions string
	wires        string
	out          string
}

func (*holdingsCmd) Name() string { return "holdings" }
func (*holdingsCmd) Synopsis() string {
	return "reconstruct a holdings snapshot from the full transaction history"
}
func (*holdingsCmd) Usage() string {
	return `esk holdings -year <year> -t <transactions.json> [-o <holdings.json>]

  Replays the complete multi-year transaction history and produces the
  year-end holdings snapshot, for accounts that never had one. Tax-free
  deduction balances on lots older than the last known dividend are
  conservatively reset to zero.
`
}

func (c *holdingsCmd) SetFlags(f *flag.FlagSet) {
	f.IntVar(&c.year, "year", espp.Today().Year()-1, "Last year to include")
	f.StringVar(&c.broker, "broker", "", "Broker name recorded in the snapshot")
	f.StringVar(&c.transactions, "t", "", "Full transaction history file (required)")
	f.StringVar(&c.wires, "w", "", "Bank transfer records file")
	f.StringVar(&c.out, "o", "", "Write the snapshot here instead of printing it")
}

func (c *holdingsCmd) Execute(_ context.Context, f *flag.FlagSet, _ ...interface{}) subcommands.ExitStatus {
	if c.transactions == "" {
		fmt.Fprintln(os.Stderr, "the -t transactions file is required")
		return subcommands.ExitUsageError
	}
	txs, err := loadTransactions(c.transactions)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error loading transactions: %v\n", err)
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

	holdings, warnings, err := espp.ReconstructHoldings(txs, wires, rates, c.year, espp.Options{Broker: c.broker})
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		return subcommands.ExitFailure
	}
	for _, w := range warnings {
		fmt.Fprintf(os.Stderr, "warning: %s\n", w)
	}

	if c.out != "" {
		if err := writeHoldings(c.out, holdings); err != nil {
			fmt.Fprintf(os.Stderr, "Error writing holdings: %v\n", err)
			return subcommands.ExitFailure
		}
		fmt.Fprintf(os.Stderr, "Wrote %d holdings to %s\n", len(holdings.Stocks), c.out)
		return subcommands.ExitSuccess
	}
	printMarkdown(renderer.HoldingsMarkdown(holdings))
	return subcommands.ExitSuccess
}
