package ledger

import (
    "fmt"
    "strings"

    "github.com/govalues/decimal"
    "github.com/govalues/money"

    "github.com/tinoosan/payments/internal/errs"
)

// Currency is the single settlement currency of the service.
const Currency = "RUB"

// Scale is the number of fractional digits kept for amounts.
const Scale = 2

// ParseAmount parses an exact decimal amount such as "500", "500.5" or "500.00".
// Inputs with more than two significant fractional digits are rejected rather than rounded.
// The sign is preserved; callers decide whether negative values are allowed.
func ParseAmount(raw string) (money.Amount, error) {
    s := strings.TrimSpace(raw)
    if s == "" { return money.Amount{}, fmt.Errorf("%w: empty", errs.ErrInvalidAmount) }
    d, err := decimal.Parse(s)
    if err != nil { return money.Amount{}, fmt.Errorf("%w: %q", errs.ErrInvalidAmount, raw) }
    d = d.Trim(Scale)
    if d.Scale() > Scale { return money.Amount{}, fmt.Errorf("%w: %q has more than %d fractional digits", errs.ErrInvalidAmount, raw, Scale) }
    a, err := money.ParseAmount(Currency, d.String())
    if err != nil { return money.Amount{}, fmt.Errorf("%w: %v", errs.ErrInvalidAmount, err) }
    units, ok := a.MinorUnits()
    if !ok { return money.Amount{}, fmt.Errorf("%w: %q out of range", errs.ErrInvalidAmount, raw) }
    return FromMinor(units), nil
}

// MustParseAmount is ParseAmount for constants and tests.
func MustParseAmount(s string) money.Amount {
    a, err := ParseAmount(s)
    if err != nil { panic(err) }
    return a
}

// FromMinor builds an amount from kopecks.
func FromMinor(units int64) money.Amount {
    a, _ := money.NewAmountFromMinorUnits(Currency, units)
    return a
}

// Minor returns the amount in kopecks.
func Minor(a money.Amount) int64 {
    units, _ := a.MinorUnits()
    return units
}

// Zero is a zero balance in the settlement currency.
func Zero() money.Amount { return FromMinor(0) }

// FormatAmount renders an amount as a plain decimal string with two fractional digits.
func FormatAmount(a money.Amount) string {
    return FromMinor(Minor(a)).Decimal().String()
}
