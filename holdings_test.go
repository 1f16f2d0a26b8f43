package espp

import (
	"bytes"
	"strings"
	"testing"

	"github.com/shopspring/decimal"
)

func TestHoldings_RoundTrip(t *testing.T) {
	g := NewLotLedger()
	g.Open(Lot{
		Symbol:       "CSCO",
		Date:         day("2023-06-01"),
		Qty:          Q(100),
		Price:        usd(20).WithRate(decimal.NewFromFloat(10.5)),
		TaxDeduction: decimal.NewFromFloat(7.8),
		Source:       SourceESPP,
	})
	g.Open(Lot{Symbol: "TSLA", Date: day("2023-08-01"), Qty: Q(5), Price: UnknownAmount("USD")})
	cash := []CashEntry{{Date: day("2023-12-01"), Amount: usd(400).WithRate(decimal.NewFromInt(10))}}

	h := NewHoldings(g, cash, 2023, "schwab")

	var buf bytes.Buffer
	if err := h.Encode(&buf); err != nil {
		t.Fatalf("Encode() error = %v", err)
	}
	back, err := DecodeHoldings(&buf)
	if err != nil {
		t.Fatalf("DecodeHoldings() error = %v", err)
	}

	if back.Year != 2023 || back.Broker != "schwab" || len(back.Stocks) != 2 {
		t.Fatalf("round trip = year %d broker %q with %d stocks", back.Year, back.Broker, len(back.Stocks))
	}
	s := back.Stocks[0]
	if s.Symbol != "CSCO" || !s.Qty.Equal(Q(100)) || s.Source != SourceESPP {
		t.Errorf("stock = %+v", s)
	}
	if !s.PurchasePrice.NOKValue().Equal(decimal.NewFromInt(210)) {
		t.Errorf("NOK cost basis = %s, want 210", s.PurchasePrice.NOKValue())
	}
	if !s.TaxDeduction.Equal(decimal.NewFromFloat(7.8)) {
		t.Errorf("deduction = %s, want 7.8", s.TaxDeduction)
	}
	// the placeholder survives untouched
	if !back.Stocks[1].PurchasePrice.IsUnknown() {
		t.Errorf("placeholder cost lost: %+v", back.Stocks[1])
	}
	if len(back.Cash) != 1 || !back.Cash[0].Amount.NOKValue().Equal(decimal.NewFromInt(4000)) {
		t.Errorf("cash = %+v", back.Cash)
	}
}

func TestHoldings_ZeroLotsOmitted(t *testing.T) {
	g := NewLotLedger()
	g.Open(Lot{Symbol: "CSCO", Date: day("2023-06-01"), Qty: Q(10), Price: usd(20)})
	if _, err := g.Consume("CSCO", Q(10), day("2023-07-01")); err != nil {
		t.Fatal(err)
	}
	h := NewHoldings(g, nil, 2023, "schwab")
	if len(h.Stocks) != 0 {
		t.Errorf("emptied lots must not serialize, got %+v", h.Stocks)
	}
}

func TestHoldings_DeterministicEncoding(t *testing.T) {
	g := NewLotLedger()
	g.Open(Lot{Symbol: "CSCO", Date: day("2023-06-01"), Qty: Q(10), Price: usd(20).WithRate(decimal.NewFromInt(10))})
	h := NewHoldings(g, nil, 2023, "schwab")

	var buf bytes.Buffer
	if err := h.Encode(&buf); err != nil {
		t.Fatal(err)
	}
	out := buf.String()
	// field order is part of the format
	if strings.Index(out, `"year"`) > strings.Index(out, `"stocks"`) {
		t.Errorf("year must precede stocks:\n%s", out)
	}
	if strings.Index(out, `"symbol"`) > strings.Index(out, `"qty"`) {
		t.Errorf("symbol must precede qty:\n%s", out)
	}
}
