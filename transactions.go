package espp

import (
	"encoding/json"
	"fmt"
	"io"
	"sort"
	"strings"

	"github.com/shopspring/decimal"
)

// EntryType is a typed string identifying a normalized transaction record.
type EntryType string

// Normalized transaction types. Importers translate broker statements
// into exactly these; the engine never sees broker-specific records.
const (
	EntryBuy           EntryType = "BUY"
	EntryDeposit       EntryType = "DEPOSIT"
	EntrySell          EntryType = "SELL"
	EntryTransfer      EntryType = "TRANSFER"
	EntryDividend      EntryType = "DIVIDEND"
	EntryDividendReinv EntryType = "DIVIDEND_REINV"
	EntryTax           EntryType = "TAX"
	EntryTaxSub        EntryType = "TAXSUB"
	EntryWire          EntryType = "WIRE"
	EntryFee           EntryType = "FEE"
	EntryCashAdjust    EntryType = "CASHADJUST"
)

// LotSource tells how a lot entered the portfolio.
type LotSource string

const (
	SourceESPP     LotSource = "ESPP"
	SourceRSU      LotSource = "RSU"
	SourceReinvest LotSource = "DIVIDEND_REINVEST"
	SourceManual   LotSource = "MANUAL"
)

// Transaction is the common interface of all normalized records.
type Transaction interface {
	What() EntryType // What returns the record type (e.g. "BUY").
	When() Date      // When returns the date the event occurred.
}

type baseEntry struct {
	Type        EntryType `json:"type"`
	Date        Date      `json:"date"`
	Symbol      string    `json:"symbol,omitempty"`
	Description string    `json:"description,omitempty"`
}

func (t baseEntry) What() EntryType { return t.Type }
func (t baseEntry) When() Date      { return t.Date }

// Deposit records shares arriving in the broker account: ESPP purchases,
// RSU vests and incoming transfers. PurchaseDate may precede Date when
// shares bought at year end arrive in January.
type Deposit struct {
	baseEntry
	Qty           Quantity  `json:"qty"`
	PurchaseDate  Date      `json:"purchase_date,omitzero"`
	PurchasePrice Amount    `json:"purchase_price"` // per share
	Source        LotSource `json:"source,omitempty"`
}

// Buy records an outright market purchase paid from the cash account.
type Buy struct {
	baseEntry
	Qty           Quantity `json:"qty"`
	PurchasePrice Amount   `json:"purchase_price"` // per share
}

// Sell records a disposal. Qty is positive; Amount is total proceeds
// after fees.
type Sell struct {
	baseEntry
	Qty    Quantity `json:"qty"`
	Amount Amount   `json:"amount"`
	Fee    *Amount  `json:"fee,omitempty"`
}

// Transfer records shares leaving the account without a sale (e.g. moved
// to another broker). Consumes lots FIFO but realizes no gain.
type Transfer struct {
	baseEntry
	Qty Quantity `json:"qty"`
	Fee *Amount  `json:"fee,omitempty"`
}

// Dividend records a cash dividend for a symbol.
type Dividend struct {
	baseEntry
	Amount          Amount          `json:"amount"`
	ExDate          Date            `json:"exdate,omitzero"`
	DeclarationDate Date            `json:"declarationdate,omitzero"`
	DPS             decimal.Decimal `json:"dividend_dps"` // broker-reported dividend per share
}

// DividendReinv records dividend cash immediately reinvested; the
// matching share arrival is a separate Deposit.
type DividendReinv struct {
	baseEntry
	Amount Amount `json:"amount"`
}

// Tax records source tax withheld on a dividend (negative amount).
type Tax struct {
	baseEntry
	Amount Amount `json:"amount"`
}

// TaxSub records withheld source tax being refunded.
type TaxSub struct {
	baseEntry
	Amount Amount `json:"amount"`
}

// Wire records cash leaving the broker account by bank transfer.
type Wire struct {
	baseEntry
	Amount Amount  `json:"amount"`
	Fee    *Amount `json:"fee,omitempty"`
}

// Fee records a standalone broker fee.
type Fee struct {
	baseEntry
	Amount Amount `json:"amount"`
}

// CashAdjust records a manual correction of the cash balance.
type CashAdjust struct {
	baseEntry
	Amount Amount `json:"amount"`
}

// sameDayRank orders transactions within one day so that shares are
// received before they are sold, and cash exists before it is wired out.
func sameDayRank(t Transaction) int {
	switch t.What() {
	case EntryDeposit, EntryBuy:
		return 0
	case EntrySell, EntryTransfer:
		return 1
	case EntryDividend:
		return 2
	case EntryDividendReinv:
		return 3
	case EntryTax, EntryTaxSub:
		return 4
	case EntryFee, EntryCashAdjust:
		return 5
	case EntryWire:
		return 6
	default:
		return 7
	}
}

// SortTransactions sorts records by date, with a deterministic same-day
// order (buys before sells before dividends before wires). The sort is
// stable so records keep their ingestion order otherwise.
func SortTransactions(txs []Transaction) {
	sort.SliceStable(txs, func(i, j int) bool {
		if !txs[i].When().Before(txs[j].When()) && !txs[j].When().Before(txs[i].When()) {
			return sameDayRank(txs[i]) < sameDayRank(txs[j])
		}
		return txs[i].When().Before(txs[j].When())
	})
}

// Normalizer converts one broker's raw export into normalized records.
// The engine never branches on broker identity; it only consumes the
// normalized stream.
type Normalizer interface {
	Normalize(r io.Reader) ([]Transaction, error)
}

// DecodeTransactions reads a normalized transaction document: either a
// bare JSON array of records or an object with a "transactions" field.
func DecodeTransactions(r io.Reader) ([]Transaction, error) {
	data, err := io.ReadAll(r)
	if err != nil {
		return nil, err
	}
	var doc struct {
		Transactions []json.RawMessage `json:"transactions"`
	}
	if err := json.Unmarshal(data, &doc); err != nil || doc.Transactions == nil {
		// fall back to a bare array
		var arr []json.RawMessage
		if err := json.Unmarshal(data, &arr); err != nil {
			return nil, fmt.Errorf("transactions document is neither an object nor an array: %w", err)
		}
		doc.Transactions = arr
	}

	txs := make([]Transaction, 0, len(doc.Transactions))
	for i, raw := range doc.Transactions {
		tx, err := decodeTransaction(raw)
		if err != nil {
			return nil, fmt.Errorf("transaction %d: %w", i, err)
		}
		txs = append(txs, tx)
	}
	SortTransactions(txs)
	return txs, nil
}

func decodeTransaction(raw json.RawMessage) (Transaction, error) {
	var head struct {
		Type EntryType `json:"type"`
	}
	if err := json.Unmarshal(raw, &head); err != nil {
		return nil, err
	}
	unmarshal := func(v Transaction) (Transaction, error) {
		if err := json.Unmarshal(raw, v); err != nil {
			return nil, err
		}
		return normalizeQty(v), nil
	}
	switch head.Type {
	case EntryBuy:
		return unmarshal(&Buy{})
	case EntryDeposit:
		return unmarshal(&Deposit{})
	case EntrySell:
		return unmarshal(&Sell{})
	case EntryTransfer:
		return unmarshal(&Transfer{})
	case EntryDividend:
		return unmarshal(&Dividend{})
	case EntryDividendReinv:
		return unmarshal(&DividendReinv{})
	case EntryTax:
		return unmarshal(&Tax{})
	case EntryTaxSub:
		return unmarshal(&TaxSub{})
	case EntryWire:
		return unmarshal(&Wire{})
	case EntryFee:
		return unmarshal(&Fee{})
	case EntryCashAdjust:
		return unmarshal(&CashAdjust{})
	default:
		return nil, fmt.Errorf("unknown transaction type %q", head.Type)
	}
}

// normalizeQty flips the negative sale/transfer quantities some brokers
// report into the positive form the engine works with, and infers the
// lot source from the description when the importer left it empty
// ("ESPP...", "RS..." are the descriptions the big US brokers use).
func normalizeQty(t Transaction) Transaction {
	switch v := t.(type) {
	case *Sell:
		v.Qty = v.Qty.Abs()
		return v
	case *Transfer:
		v.Qty = v.Qty.Abs()
		return v
	case *Deposit:
		if v.Source == "" {
			switch {
			case strings.HasPrefix(v.Description, "ESPP"):
				v.Source = SourceESPP
			case strings.HasPrefix(v.Description, "RS"):
				v.Source = SourceRSU
			}
		}
		return v
	}
	return t
}
