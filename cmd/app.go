// Package cmd implements the esk CLI: annual tax computation, holdings
// reconstruction, rate-cache maintenance and the API server.
package cmd

import (
	"flag"
	"fmt"
	"os"

	"github.com/charmbracelet/glamour"
	"github.com/google/subcommands"
	"github.com/rs/zerolog"

	"github.com/nordtax/espp"
	"github.com/nordtax/espp/fmv"
)

// Register the subcommands. A main package calls Register() and then
// Execute() on the user-selected one.
func Register(c *subcommands.Commander) {
	c.Register(&taxCmd{}, "tax")
	c.Register(&holdingsCmd{}, "tax")
	c.Register(&ratesCmd{}, "rates")
	c.Register(&serveCmd{}, "server")
}

// as a CLI application it is short lived, so global flags are fine.

var cachePath = flag.String("cache", defaultCachePath(), "Path to the rate cache database")
var eodhdKey = flag.String("eodhd-api-key", "", "EODHD API key for stock quotes.\n If missing it is read from the ESPP_EODHD_API_KEY environment variable. Get one at https://eodhd.com/")
var verbose = flag.Bool("v", false, "Verbose logging")

func defaultCachePath() string {
	if dir, err := os.UserCacheDir(); err == nil {
		return dir + "/esk/rates.db"
	}
	return "esk-rates.db"
}

func logger() zerolog.Logger {
	level := zerolog.WarnLevel
	if *verbose {
		level = zerolog.DebugLevel
	}
	return zerolog.New(zerolog.ConsoleWriter{Out: os.Stderr}).Level(level).With().Timestamp().Logger()
}

func apiKey() string {
	if *eodhdKey == "" {
		*eodhdKey = os.Getenv("ESPP_EODHD_API_KEY")
	}
	return *eodhdKey
}

// openProvider opens the rate cache with its remote fetchers attached.
func openProvider(log zerolog.Logger) (*fmv.Provider, *fmv.Store, error) {
	if dir := *cachePath; dir != ":memory:" {
		if i := lastSlash(dir); i >= 0 {
			os.MkdirAll(dir[:i], 0o755)
		}
	}
	store, err := fmv.OpenStore(*cachePath, log)
	if err != nil {
		return nil, nil, err
	}
	currencies := &fmv.NorgesBank{Log: log}
	quotes := &fmv.EODHD{APIKey: apiKey(), Log: log}
	return fmv.NewProvider(store, currencies, quotes, log), store, nil
}

func lastSlash(s string) int {
	for i := len(s) - 1; i >= 0; i-- {
		if s[i] == '/' {
			return i
		}
	}
	return -1
}

// loadTransactions reads a normalized transaction document.
func loadTransactions(path string) ([]espp.Transaction, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer f.Close()
	return espp.DecodeTransactions(f)
}

// loadHoldings reads the opening snapshot; a missing path means none.
func loadHoldings(path string) (*espp.Holdings, error) {
	if path == "" {
		return nil, nil
	}
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer f.Close()
	return espp.DecodeHoldings(f)
}

// loadWires reads bank transfer records; a missing path means none.
func loadWires(path string) (espp.Wires, error) {
	if path == "" {
		return nil, nil
	}
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer f.Close()
	return espp.DecodeWires(f)
}

// printMarkdown renders markdown for the terminal; when the renderer
// cannot be set up (no TTY, unknown TERM) the raw markdown is printed.
func printMarkdown(md string) {
	r, err := glamour.NewTermRenderer(glamour.WithAutoStyle(), glamour.WithWordWrap(0))
	if err == nil {
		if out, err := r.Render(md); err == nil {
			fmt.Print(out)
			return
		}
	}
	fmt.Print(md)
}

// writeHoldings writes the produced snapshot.
func writeHoldings(path string, h *espp.Holdings) error {
	f, err := os.Create(path)
	if err != nil {
		return err
	}
	defer f.Close()
	return h.Encode(f)
}
