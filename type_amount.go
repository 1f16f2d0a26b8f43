package espp

import (
	"bytes"
	"encoding/json"
	"fmt"

	"github.com/Rhymond/go-money"
	"github.com/shopspring/decimal"
)

// Amount is a monetary value tagged with its currency, optionally
// carrying the NOK conversion captured at the moment the amount was
// denominated (the "witness"). Arithmetic between two amounts of
// different currencies is not allowed; conversion is always an explicit
// step through a rate.
type Amount struct {
	value decimal.Decimal
	cur   string

	nokValue  decimal.Decimal
	nokRate   decimal.Decimal
	converted bool // a NOK witness was captured

	unknown bool // value unknown, serialized as "NaN" in data files
}

// A creates an Amount without a NOK witness.
func A[T float32 | float64 | int | int32 | int64 | uint | uint32 | uint64 | decimal.Decimal](value T, currency string) Amount {
	a := Amount{value: newDecimal(value), cur: currency}
	if currency == "NOK" {
		a.nokValue, a.nokRate, a.converted = a.value, decimal.NewFromInt(1), true
	}
	return a
}

// NOK creates an Amount denominated in NOK.
func NOK[T float32 | float64 | int | int32 | int64 | uint | uint32 | uint64 | decimal.Decimal](value T) Amount {
	return A(value, "NOK")
}

// UnknownAmount is the "quantity known, cost unknown" placeholder found
// in reconstructed holdings. It survives serialization but refuses to
// take part in gain computation.
func UnknownAmount(currency string) Amount {
	return Amount{cur: currency, unknown: true}
}

// WithRate captures the NOK conversion witness at the given rate.
func (m Amount) WithRate(rate decimal.Decimal) Amount {
	m.nokRate = rate
	m.nokValue = m.value.Mul(rate)
	m.converted = true
	return m
}

// WithNOK captures the NOK conversion witness from a known NOK value
// (e.g. the bank's own statement of a received wire).
func (m Amount) WithNOK(nok decimal.Decimal) Amount {
	m.nokValue = nok
	if !m.value.IsZero() {
		m.nokRate = nok.Div(m.value)
	}
	m.converted = true
	return m
}

func (m Amount) Value() decimal.Decimal    { return m.value }
func (m Amount) Currency() string          { return m.cur }
func (m Amount) NOKValue() decimal.Decimal { return m.nokValue }
func (m Amount) NOKRate() decimal.Decimal  { return m.nokRate }
func (m Amount) HasNOK() bool              { return m.converted }
func (m Amount) IsUnknown() bool           { return m.unknown }

func (m Amount) IsZero() bool     { return m.value.IsZero() }
func (m Amount) IsPositive() bool { return m.value.IsPositive() }
func (m Amount) IsNegative() bool { return m.value.IsNegative() }

func (m Amount) Equal(n Amount) bool {
	return m.cur == n.cur && m.value.Equal(n.value) && m.unknown == n.unknown
}

func (m Amount) LessThan(n Amount) bool    { return m.value.LessThan(cur(m, n).value) }
func (m Amount) GreaterThan(n Amount) bool { return m.value.GreaterThan(cur(m, n).value) }

// Neg negates the amount, witness included.
func (m Amount) Neg() Amount {
	m.value = m.value.Neg()
	m.nokValue = m.nokValue.Neg()
	return m
}

// Abs returns the absolute amount, witness included.
func (m Amount) Abs() Amount {
	m.value = m.value.Abs()
	m.nokValue = m.nokValue.Abs()
	return m
}

// Mul scales the amount by a quantity of shares, witness included.
func (m Amount) Mul(q Quantity) Amount {
	m.value = m.value.Mul(q.value)
	m.nokValue = m.nokValue.Mul(q.value)
	return m
}

// Div divides the amount by a quantity of shares, witness included.
func (m Amount) Div(q Quantity) Amount {
	m.value = m.value.Div(q.value)
	m.nokValue = m.nokValue.Div(q.value)
	return m
}

// Add adds two amounts of the same currency. Witnesses are added when
// both sides carry one, and dropped otherwise.
func (m Amount) Add(n Amount) Amount {
	r := cur(m, n)
	r.value = m.value.Add(n.value)
	r.converted = m.converted && n.converted
	if r.converted {
		r.nokValue = m.nokValue.Add(n.nokValue)
		if !r.value.IsZero() {
			r.nokRate = r.nokValue.Div(r.value)
		}
	} else {
		r.nokValue, r.nokRate = decimal.Decimal{}, decimal.Decimal{}
	}
	return r
}

// Sub subtracts an amount of the same currency. See Add for the witness rule.
func (m Amount) Sub(n Amount) Amount { return m.Add(n.Neg()) }

// cur resolves the currency of a binary operation. The "" currency is weak.
func cur(a, b Amount) Amount {
	if a.unknown || b.unknown {
		panic("arithmetic on unknown amount")
	}
	switch {
	case a.cur == "":
		a.cur = b.cur
	case b.cur == "":
		// keep a.cur
	case a.cur != b.cur:
		panic("currency mismatch " + a.cur + "!=" + b.cur)
	}
	return a
}

// String returns the formatted value in its currency.
func (m Amount) String() string {
	if m.unknown {
		return "? " + m.cur
	}
	c := *money.New(0, m.cur).Currency()
	dec := m.value.Shift(int32(c.Fraction))
	return c.Formatter().Format(dec.IntPart())
}

// SignedString returns the string representation with an explicit sign;
// zero is rendered as "-".
func (m Amount) SignedString() string {
	if m.IsZero() {
		return "-"
	}
	if m.IsPositive() {
		return "+" + m.String()
	}
	return m.String()
}

// MarshalJSON keeps the normalized on-disk shape: currency first, then
// value, then the NOK witness when present. Unknown values are written
// as the string "NaN" like the upstream data files.
func (m Amount) MarshalJSON() ([]byte, error) {
	var w jsonObjectWriter
	w.Optional("currency", m.cur)
	if m.unknown {
		w.Append("value", "NaN")
	} else {
		w.Append("value", m.value)
	}
	if m.converted {
		w.Append("nok_exchange_rate", m.nokRate)
		w.Append("nok_value", m.nokValue)
	}
	return w.MarshalJSON()
}

// UnmarshalJSON accepts both JSON numbers and the "NaN" placeholder for
// value and nok_value.
func (m *Amount) UnmarshalJSON(data []byte) error {
	var raw struct {
		Currency string          `json:"currency"`
		Value    json.RawMessage `json:"value"`
		NOKRate  json.RawMessage `json:"nok_exchange_rate"`
		NOKValue json.RawMessage `json:"nok_value"`
	}
	if err := json.Unmarshal(data, &raw); err != nil {
		return err
	}
	*m = Amount{cur: raw.Currency}
	val, unknown, err := decodeMaybeNaN(raw.Value)
	if err != nil {
		return fmt.Errorf("amount value: %w", err)
	}
	m.value, m.unknown = val, unknown
	if len(raw.NOKValue) > 0 {
		nok, nokUnknown, err := decodeMaybeNaN(raw.NOKValue)
		if err != nil {
			return fmt.Errorf("amount nok_value: %w", err)
		}
		if !nokUnknown {
			m.nokValue, m.converted = nok, true
		}
	}
	if len(raw.NOKRate) > 0 {
		rate, rateUnknown, err := decodeMaybeNaN(raw.NOKRate)
		if err != nil {
			return fmt.Errorf("amount nok_exchange_rate: %w", err)
		}
		if !rateUnknown {
			m.nokRate = rate
			if !m.converted && !m.unknown {
				m.nokValue, m.converted = m.value.Mul(rate), true
			}
		}
	}
	if m.cur == "NOK" && !m.unknown && !m.converted {
		m.nokValue, m.nokRate, m.converted = m.value, decimal.NewFromInt(1), true
	}
	return nil
}

// decodeMaybeNaN reads a decimal that data files may spell as the string
// "NaN" (or the bare NaN literal emitted by lax JSON encoders).
func decodeMaybeNaN(raw json.RawMessage) (decimal.Decimal, bool, error) {
	trimmed := bytes.TrimSpace(raw)
	if len(trimmed) == 0 || bytes.Equal(trimmed, []byte("null")) {
		return decimal.Decimal{}, true, nil
	}
	if bytes.Equal(trimmed, []byte(`"NaN"`)) || bytes.Equal(trimmed, []byte("NaN")) {
		return decimal.Decimal{}, true, nil
	}
	var d decimal.Decimal
	if err := d.UnmarshalJSON(trimmed); err != nil {
		return decimal.Decimal{}, false, err
	}
	return d, false, nil
}

var _ json.Marshaler = Amount{}
var _ json.Unmarshaler = (*Amount)(nil)
