package espp

import (
	"strings"
	"testing"
)

func TestDecodeTransactions(t *testing.T) {
	doc := `{"transactions": [
		{"type": "SELL", "date": "2024-06-01", "symbol": "CSCO", "qty": -50, "amount": {"currency": "USD", "value": 1500}},
		{"type": "DEPOSIT", "date": "2024-06-01", "symbol": "CSCO", "qty": 50, "description": "ESPP purchase",
		 "purchase_date": "2024-05-28", "purchase_price": {"currency": "USD", "value": 17}},
		{"type": "WIRE", "date": "2024-06-01", "amount": {"currency": "USD", "value": -1500}}
	]}`
	txs, err := DecodeTransactions(strings.NewReader(doc))
	if err != nil {
		t.Fatalf("DecodeTransactions() error = %v", err)
	}
	if len(txs) != 3 {
		t.Fatalf("decoded %d transactions, want 3", len(txs))
	}

	// same-day order: shares arrive before they are sold, cash before it is wired
	if txs[0].What() != EntryDeposit || txs[1].What() != EntrySell || txs[2].What() != EntryWire {
		t.Errorf("same-day order = %s %s %s, want DEPOSIT SELL WIRE", txs[0].What(), txs[1].What(), txs[2].What())
	}

	dep := txs[0].(*Deposit)
	if dep.Source != SourceESPP {
		t.Errorf("source = %q, want inferred ESPP from the description", dep.Source)
	}
	sell := txs[1].(*Sell)
	if !sell.Qty.Equal(Q(50)) {
		t.Errorf("sell qty = %s, want the absolute 50", sell.Qty)
	}
}

func TestDecodeTransactions_BareArray(t *testing.T) {
	doc := `[{"type": "DIVIDEND", "date": "2024-05-10", "symbol": "CSCO", "amount": {"currency": "USD", "value": 100}, "exdate": "2024-05-01"}]`
	txs, err := DecodeTransactions(strings.NewReader(doc))
	if err != nil {
		t.Fatalf("DecodeTransactions() error = %v", err)
	}
	d := txs[0].(*Dividend)
	if d.ExDate != day("2024-05-01") {
		t.Errorf("exdate = %s, want 2024-05-01", d.ExDate)
	}
}

func TestDecodeTransactions_UnknownType(t *testing.T) {
	if _, err := DecodeTransactions(strings.NewReader(`[{"type": "SPLIT", "date": "2024-01-01"}]`)); err == nil {
		t.Fatal("unknown record type must fail, not skip")
	}
}

func TestSortTransactions_Stable(t *testing.T) {
	txs := []Transaction{
		&Sell{baseEntry: baseEntry{Type: EntrySell, Date: day("2024-03-02"), Symbol: "B"}},
		&Sell{baseEntry: baseEntry{Type: EntrySell, Date: day("2024-03-01"), Symbol: "A"}},
		&Sell{baseEntry: baseEntry{Type: EntrySell, Date: day("2024-03-01"), Symbol: "Z"}},
	}
	SortTransactions(txs)
	if txs[0].(*Sell).Symbol != "A" || txs[1].(*Sell).Symbol != "Z" || txs[2].(*Sell).Symbol != "B" {
		t.Errorf("sort must be by date and keep ingestion order within a day")
	}
}
