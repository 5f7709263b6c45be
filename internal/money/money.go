// internal/money/money.go
package money

import (
	"database/sql/driver"
	"errors"
	"fmt"
	"math"
	"strconv"
	"strings"
)

// ErrInvalidAmount is returned when a textual amount cannot be parsed.
var ErrInvalidAmount = errors.New("invalid amount")

// Money is an amount in cents. There is a single implicit currency.
type Money int64

const (
	// Zero is the zero amount.
	Zero Money = 0

	// MaxStored is the largest amount a NUMERIC(12, 2) column holds.
	MaxStored Money = 999_999_999_999

	maxUnits = (math.MaxInt64 - 99) / 100
)

// Cents builds a Money from a raw cent count.
func Cents(c int64) Money { return Money(c) }

// FromFloat converts a decimal amount, rounding half away from zero to the cent.
func FromFloat(f float64) Money {
	return Money(math.Round(f * 100))
}

// Parse reads amounts such as "70", "70.5" or "70.00".
func Parse(s string) (Money, error) {
	s = strings.TrimSpace(s)
	if s == "" {
		return 0, fmt.Errorf("%w: empty", ErrInvalidAmount)
	}

	neg := false
	switch s[0] {
	case '-':
		neg = true
		s = s[1:]
	case '+':
		s = s[1:]
	}

	whole, frac, hasFrac := strings.Cut(s, ".")
	if whole == "" && (!hasFrac || frac == "") {
		return 0, fmt.Errorf("%w: %q", ErrInvalidAmount, s)
	}
	if len(frac) > 2 {
		return 0, fmt.Errorf("%w: more than two decimals in %q", ErrInvalidAmount, s)
	}
	if whole == "" {
		whole = "0"
	}
	for len(frac) < 2 {
		frac += "0"
	}

	units, err := strconv.ParseUint(whole, 10, 63)
	if err != nil || units > maxUnits {
		return 0, fmt.Errorf("%w: out of range %q", ErrInvalidAmount, s)
	}
	cents, err := strconv.ParseUint(frac, 10, 8)
	if err != nil {
		return 0, fmt.Errorf("%w: %q", ErrInvalidAmount, s)
	}

	m := Money(int64(units)*100 + int64(cents))
	if neg {
		m = -m
	}
	return m, nil
}

// Cents returns the raw cent count.
func (m Money) Cents() int64 { return int64(m) }

// Float returns the amount in currency units. Use only for presentation.
func (m Money) Float() float64 { return float64(m) / 100 }

// Add returns m+o, or ErrInvalidAmount when the sum leaves the int64 range.
func (m Money) Add(o Money) (Money, error) {
	sum := m + o
	if (o > 0 && sum < m) || (o < 0 && sum > m) {
		return 0, fmt.Errorf("%w: %s + %s overflows", ErrInvalidAmount, m, o)
	}
	return sum, nil
}

// Mul multiplies by an integer factor.
func (m Money) Mul(n int) Money { return m * Money(n) }

// ApplyBasisPoints scales the amount by bp/10000, rounding half away from zero
// on the cent boundary.
func (m Money) ApplyBasisPoints(bp int64) Money {
	p := int64(m) * bp
	if p < 0 {
		return -Money((-p + 5000) / 10000)
	}
	return Money((p + 5000) / 10000)
}

// String renders the amount with exactly two decimals.
func (m Money) String() string {
	sign := ""
	c := uint64(m)
	if m < 0 {
		sign = "-"
		c = -c
	}
	return fmt.Sprintf("%s%d.%02d", sign, c/100, c%100)
}

// MarshalJSON encodes the amount as a JSON number with two decimals.
func (m Money) MarshalJSON() ([]byte, error) {
	return []byte(m.String()), nil
}

// UnmarshalJSON accepts both JSON numbers and quoted strings.
func (m *Money) UnmarshalJSON(data []byte) error {
	s := string(data)
	if s == "null" {
		*m = 0
		return nil
	}
	if unq, err := strconv.Unquote(s); err == nil {
		s = unq
	}
	v, err := Parse(s)
	if err != nil {
		return err
	}
	*m = v
	return nil
}

// Value stores the amount as a NUMERIC literal.
func (m Money) Value() (driver.Value, error) {
	return m.String(), nil
}

// Scan reads NUMERIC columns as returned by lib/pq.
func (m *Money) Scan(src interface{}) error {
	switch v := src.(type) {
	case nil:
		*m = 0
	case []byte:
		p, err := Parse(string(v))
		if err != nil {
			return err
		}
		*m = p
	case string:
		p, err := Parse(v)
		if err != nil {
			return err
		}
		*m = p
	case float64:
		*m = FromFloat(v)
	case int64:
		*m = Money(v * 100)
	default:
		return fmt.Errorf("money: cannot scan %T", src)
	}
	return nil
}
