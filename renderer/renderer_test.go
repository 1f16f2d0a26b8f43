package renderer

import (
	"strings"
	"testing"

	"github.com/shopspring/decimal"
	"github.com/yuin/goldmark"
	"github.com/yuin/goldmark/ast"
	"github.com/yuin/goldmark/text"

	"github.com/nordtax/espp"
)

func sampleReport() *espp.TaxReport {
	sale := &espp.SaleReport{
		Date:   espp.MustParse("2024-06-01"),
		Symbol: "CSCO",
		Qty:    espp.Q(400),
		Amount: espp.A(12000, "USD").WithRate(decimal.NewFromFloat(10.5)),
		From: []espp.SaleFragment{{
			Symbol:        "CSCO",
			Qty:           espp.Q(400),
			PurchaseDate:  espp.MustParse("2022-06-01"),
			PurchasePrice: espp.A(20, "USD").WithRate(decimal.NewFromFloat(10.5)),
			SalePrice:     espp.A(30, "USD").WithRate(decimal.NewFromFloat(10.5)),
			GainNOK:       decimal.NewFromInt(42000),
			GainNative:    decimal.NewFromInt(4000),
		}},
		GainNOK: decimal.NewFromInt(42000),
	}
	return &espp.TaxReport{
		Year:   2024,
		Broker: "schwab",
		Sales:  []*espp.SaleReport{sale},
		Dividends: []*espp.DividendReport{{
			Symbol:       "CSCO",
			GrossNOK:     decimal.NewFromInt(1000),
			NetNOK:       decimal.NewFromInt(800),
			SourceTaxNOK: decimal.NewFromInt(150),
		}},
		Warnings: []espp.Warning{{Symbol: "CSCO", Message: "something to review"}},
		Totals: espp.Totals{
			GainNOK:      decimal.NewFromInt(42000),
			DividendNOK:  decimal.NewFromInt(800),
			SourceTaxNOK: decimal.NewFromInt(150),
		},
	}
}

// headings parses the markdown and returns the text of every heading, a
// structural check that the output is well-formed markdown and carries
// the expected sections.
func headings(t *testing.T, source string) []string {
	t.Helper()
	src := []byte(source)
	doc := goldmark.DefaultParser().Parse(text.NewReader(src))

	var out []string
	ast.Walk(doc, func(n ast.Node, entering bool) (ast.WalkStatus, error) {
		if h, ok := n.(*ast.Heading); ok && entering {
			var b strings.Builder
			for c := h.FirstChild(); c != nil; c = c.NextSibling() {
				if txt, ok := c.(*ast.Text); ok {
					b.Write(txt.Segment.Value(src))
				}
			}
			out = append(out, b.String())
		}
		return ast.WalkContinue, nil
	})
	return out
}

func TestReportMarkdown(t *testing.T) {
	out := ReportMarkdown(sampleReport())

	got := headings(t, out)
	want := []string{"Tax Report 2024 (schwab)", "Sales", "Dividends", "Totals", "Warnings"}
	if len(got) != len(want) {
		t.Fatalf("headings = %v, want %v", got, want)
	}
	for i := range want {
		if got[i] != want[i] {
			t.Errorf("heading %d = %q, want %q", i, got[i], want[i])
		}
	}

	for _, cell := range []string{"| CSCO |", "+42000.00", "| Source tax withheld | 150.00 |", "something to review"} {
		if !strings.Contains(out, cell) {
			t.Errorf("output is missing %q:\n%s", cell, out)
		}
	}
}

func TestReportMarkdown_EmptySectionsOmitted(t *testing.T) {
	out := ReportMarkdown(&espp.TaxReport{Year: 2024})
	for _, section := range []string{"## Sales", "## Dividends", "## Warnings", "## Currency"} {
		if strings.Contains(out, section) {
			t.Errorf("empty report must not contain %q", section)
		}
	}
	if !strings.Contains(out, "## Totals") {
		t.Error("totals are always rendered")
	}
}

func TestHoldingsMarkdown(t *testing.T) {
	h := &espp.Holdings{
		Year:   2024,
		Broker: "schwab",
		Stocks: []espp.Stock{{
			Symbol:        "CSCO",
			Date:          espp.MustParse("2023-06-01"),
			Qty:           espp.Q(100),
			PurchasePrice: espp.A(20, "USD").WithRate(decimal.NewFromInt(10)),
			TaxDeduction:  decimal.NewFromFloat(7.8),
			Source:        espp.SourceESPP,
		}},
	}
	out := HoldingsMarkdown(h)
	for _, cell := range []string{"# Holdings 2024", "| CSCO |", "7.80", "ESPP"} {
		if !strings.Contains(out, cell) {
			t.Errorf("output is missing %q:\n%s", cell, out)
		}
	}
}
