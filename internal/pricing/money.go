package pricing

import (
	"encoding/json"
	"errors"
	"fmt"
	"math"
	"strings"

	"github.com/shopspring/decimal"
)

// minorDigits is the number of minor-unit digits of the shop currency (kobo).
const minorDigits = 2

// Money is an amount in minor currency units. All invoice arithmetic is done
// on Money so sums are exact and independent of accumulation order.
type Money int64

// MaxMoney is the largest accepted price: 90 billion in major units.
// MaxMoney times MaxQuantity still fits in an int64.
const MaxMoney Money = 9_000_000_000_000

// ErrOutOfRange is returned for amounts above MaxMoney.
var ErrOutOfRange = errors.New("amount out of range")

var maxMoneyDecimal = decimal.New(int64(MaxMoney), -minorDigits)

// ParseMoney parses a price such as "1500", "1,500" or "11,500.50".
// Grouping separators and surrounding whitespace are ignored. Negative,
// empty and out of range values are rejected.
func ParseMoney(s string) (Money, error) {
	clean := strings.ReplaceAll(strings.TrimSpace(s), ",", "")
	clean = strings.ReplaceAll(clean, " ", "")
	if clean == "" {
		return 0, fmt.Errorf("empty price")
	}
	d, err := decimal.NewFromString(clean)
	if err != nil {
		return 0, fmt.Errorf("parsing price %q: %w", s, err)
	}
	if d.IsNegative() {
		return 0, fmt.Errorf("negative price %q", s)
	}
	m, err := fromDecimal(d)
	if err != nil {
		return 0, fmt.Errorf("price %q: %w", s, err)
	}
	return m, nil
}

// MoneyFromFloat converts a major-unit float (as decoded from JSON) to Money,
// rounding half away from zero to the nearest minor unit.
func MoneyFromFloat(f float64) (Money, error) {
	if math.IsNaN(f) || math.IsInf(f, 0) {
		return 0, ErrOutOfRange
	}
	return fromDecimal(decimal.NewFromFloat(f))
}

func fromDecimal(d decimal.Decimal) (Money, error) {
	d = d.Round(minorDigits)
	if d.Abs().GreaterThan(maxMoneyDecimal) {
		return 0, ErrOutOfRange
	}
	return Money(d.Shift(minorDigits).IntPart()), nil
}

// Decimal returns the amount in major units.
func (m Money) Decimal() decimal.Decimal {
	return decimal.New(int64(m), -minorDigits)
}

// Times multiplies the amount by a quantity, saturating at the int64 limits.
func (m Money) Times(qty int) Money {
	if m == 0 || qty == 0 {
		return 0
	}
	q := int64(qty)
	if hi, lo := int64(math.MaxInt64)/abs64(q), int64(m); lo > hi || lo < -hi {
		if (lo < 0) != (q < 0) {
			return math.MinInt64
		}
		return math.MaxInt64
	}
	return m * Money(q)
}

// Plus adds two amounts, saturating at the int64 limits.
func (m Money) Plus(o Money) Money {
	switch {
	case o > 0 && m > math.MaxInt64-o:
		return math.MaxInt64
	case o < 0 && m < math.MinInt64-o:
		return math.MinInt64
	}
	return m + o
}

func abs64(n int64) int64 {
	if n < 0 {
		return -n
	}
	return n
}

// String renders the amount in major units with thousands separators,
// omitting the fraction when it is zero: 150000 -> "1,500", 150050 -> "1,500.50".
func (m Money) String() string {
	d := m.Decimal()
	var s string
	if m%100 == 0 {
		s = d.StringFixed(0)
	} else {
		s = d.StringFixed(minorDigits)
	}

	sign := ""
	if strings.HasPrefix(s, "-") {
		sign, s = "-", s[1:]
	}
	whole, frac, hasFrac := strings.Cut(s, ".")
	var b strings.Builder
	for i, r := range whole {
		if i > 0 && (len(whole)-i)%3 == 0 {
			b.WriteByte(',')
		}
		b.WriteRune(r)
	}
	if hasFrac {
		b.WriteByte('.')
		b.WriteString(frac)
	}
	return sign + b.String()
}

// Format renders the amount prefixed with a currency symbol, e.g. "N1,500".
func (m Money) Format(symbol string) string {
	return symbol + m.String()
}

// MarshalJSON encodes the amount as a JSON number in major units.
func (m Money) MarshalJSON() ([]byte, error) {
	return []byte(m.Decimal().String()), nil
}

// UnmarshalJSON accepts a JSON number or a (possibly comma-grouped) string.
// null decodes as zero.
func (m *Money) UnmarshalJSON(data []byte) error {
	if strings.TrimSpace(string(data)) == "null" {
		*m = 0
		return nil
	}
	var s string
	if err := json.Unmarshal(data, &s); err != nil {
		s = string(data)
	}
	parsed, err := ParseMoney(s)
	if err != nil {
		return err
	}
	*m = parsed
	return nil
}
