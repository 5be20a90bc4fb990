// Package money implements a fixed-point currency amount with two decimal
// places, stored as an integer count of hundredths.
package money

import (
	"bytes"
	"database/sql/driver"
	"fmt"
	"math/big"
	"strconv"
)

// Amount is a currency value in hundredths (1000.50 is Amount(100050)).
type Amount int64

// Max is the largest value a NUMERIC(10,2) column holds.
const Max Amount = 9_999_999_999

var hundred = big.NewRat(100, 1)

// Parse reads a decimal string such as "1000", "250.5" or "749.50". More than
// two fractional digits is an error rather than a silent rounding.
func Parse(s string) (Amount, error) {
	r, ok := new(big.Rat).SetString(s)
	if !ok {
		return 0, fmt.Errorf("money: invalid amount %q", s)
	}
	r.Mul(r, hundred)
	if !r.IsInt() {
		return 0, fmt.Errorf("money: amount %q has more than two decimal places", s)
	}
	n := r.Num()
	if !n.IsInt64() {
		return 0, fmt.Errorf("money: amount %q out of range", s)
	}
	return Amount(n.Int64()), nil
}

// MustParse is Parse for constants and tests.
func MustParse(s string) Amount {
	a, err := Parse(s)
	if err != nil {
		panic(err)
	}
	return a
}

func (a Amount) Sub(b Amount) Amount { return a - b }

func (a Amount) Add(b Amount) Amount { return a + b }

func (a Amount) IsNegative() bool { return a < 0 }

// String formats the amount with exactly two decimals.
func (a Amount) String() string {
	v := int64(a)
	sign := ""
	if v < 0 {
		sign = "-"
		v = -v
	}
	return fmt.Sprintf("%s%d.%02d", sign, v/100, v%100)
}

// MarshalJSON emits the amount as a JSON number with two decimals.
func (a Amount) MarshalJSON() ([]byte, error) {
	return []byte(a.String()), nil
}

// UnmarshalJSON accepts a JSON number or a numeric string.
func (a *Amount) UnmarshalJSON(data []byte) error {
	data = bytes.TrimSpace(data)
	if bytes.Equal(data, []byte("null")) {
		return nil
	}
	s := string(data)
	if len(data) > 0 && data[0] == '"' {
		unq, err := strconv.Unquote(s)
		if err != nil {
			return fmt.Errorf("money: invalid amount %s", s)
		}
		s = unq
	}
	v, err := Parse(s)
	if err != nil {
		return err
	}
	*a = v
	return nil
}

// Scan implements sql.Scanner for NUMERIC columns selected as text.
func (a *Amount) Scan(src interface{}) error {
	switch v := src.(type) {
	case nil:
		*a = 0
		return nil
	case string:
		p, err := Parse(v)
		if err != nil {
			return err
		}
		*a = p
		return nil
	case []byte:
		p, err := Parse(string(v))
		if err != nil {
			return err
		}
		*a = p
		return nil
	case int64:
		*a = Amount(v * 100)
		return nil
	default:
		return fmt.Errorf("money: cannot scan %T", src)
	}
}

// Value implements driver.Valuer; the text form casts cleanly to NUMERIC.
func (a Amount) Value() (driver.Value, error) {
	return a.String(), nil
}
