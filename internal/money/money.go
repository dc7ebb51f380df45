// Package money converts minor currency units to and from the decimal major units
// spoken by external APIs. Nothing converted here is ever persisted.
package money

import (
	"encoding/json"
	"errors"
	"fmt"
	"strings"

	"github.com/shopspring/decimal"
)

// Exponent is the number of minor-unit digits of the store currency.
const Exponent = 2

func ToMajor(minor int64) decimal.Decimal {
	return decimal.New(minor, -Exponent)
}

// JSONNumber renders minor units as a JSON number in major units, e.g. 1050 -> 10.50.
func JSONNumber(minor int64) json.Number {
	return json.Number(ToMajor(minor).StringFixed(Exponent))
}

// FromMajor parses a major-unit amount and rounds it half-up to minor units. When both
// "," and "." appear, the last one is the decimal separator and the other groups
// thousands ("1,234.56", "1.234,56"). A lone "," is a decimal separator unless it is
// followed by exactly three digits, which is rejected as ambiguous.
func FromMajor(s string) (int64, error) {
	s = strings.TrimSpace(s)
	if s == "" {
		return 0, fmt.Errorf("money: empty amount")
	}
	norm, err := normalise(s)
	if err != nil {
		return 0, fmt.Errorf("money: parse %q: %w", s, err)
	}
	d, err := decimal.NewFromString(norm)
	if err != nil {
		return 0, fmt.Errorf("money: parse %q: %w", s, err)
	}
	return FromDecimal(d), nil
}

var (
	errAmbiguous = errors.New("ambiguous separator")
	errGrouping  = errors.New("malformed digit grouping")
)

func normalise(s string) (string, error) {
	comma, dot := strings.LastIndex(s, ","), strings.LastIndex(s, ".")
	switch {
	case comma < 0 && dot < 0:
		return s, nil
	case comma >= 0 && dot >= 0:
		dec, group := ",", "."
		if dot > comma {
			dec, group = ".", ","
		}
		if strings.Count(s, dec) > 1 {
			return "", errAmbiguous
		}
		i := strings.LastIndex(s, dec)
		whole, err := ungroup(s[:i], group)
		if err != nil {
			return "", err
		}
		return whole + "." + s[i+1:], nil
	}

	sep, i := ".", dot
	if comma >= 0 {
		sep, i = ",", comma
	}
	if strings.Count(s, sep) > 1 {
		return ungroup(s, sep)
	}
	if sep == "," {
		if len(s)-i-1 == 3 {
			return "", errAmbiguous
		}
		return strings.Replace(s, ",", ".", 1), nil
	}
	return s, nil
}

// ungroup strips thousands separators, requiring three-digit groups after the first.
func ungroup(s, sep string) (string, error) {
	parts := strings.Split(s, sep)
	if first := strings.TrimLeft(parts[0], "+-"); first == "" || (len(first) > 3 && len(parts) > 1) {
		return "", errGrouping
	}
	for _, p := range parts[1:] {
		if len(p) != 3 {
			return "", errGrouping
		}
	}
	return strings.Join(parts, ""), nil
}

func FromDecimal(d decimal.Decimal) int64 {
	return d.Shift(Exponent).Round(0).IntPart()
}
