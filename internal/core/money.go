// Package core provides the domain model shared by the scheduler,
// the statistics engine, and the write paths.
package core

import (
	"fmt"
	"strconv"
	"strings"
)

// ParseSignedCents converts a decimal amount string to signed cents.
//
// Both dot (12.34) and comma (12,34) decimal separators are accepted, and a
// leading minus marks an expense. Anything past the second decimal digit is
// rounded half-up. Zero amounts are rejected.
func ParseSignedCents(s string) (int64, error) {
	s = strings.TrimSpace(s)
	if s == "" {
		return 0, ErrInvalidAmount
	}

	negative := false
	if strings.HasPrefix(s, "-") {
		negative = true
		s = s[1:]
	}
	s = strings.ReplaceAll(s, ",", ".")

	parts := strings.SplitN(s, ".", 2)
	whole := parts[0]
	frac := ""
	if len(parts) == 2 {
		frac = parts[1]
	}
	if whole == "" {
		whole = "0"
	}

	units, err := strconv.ParseInt(whole, 10, 64)
	if err != nil {
		return 0, fmt.Errorf("%w: %q", ErrInvalidAmount, s)
	}

	cents := units * 100
	switch {
	case len(frac) == 0:
		// whole amount
	case len(frac) == 1:
		d, err := strconv.ParseInt(frac, 10, 64)
		if err != nil {
			return 0, fmt.Errorf("%w: %q", ErrInvalidAmount, s)
		}
		cents += d * 10
	default:
		d, err := strconv.ParseInt(frac[:2], 10, 64)
		if err != nil {
			return 0, fmt.Errorf("%w: %q", ErrInvalidAmount, s)
		}
		cents += d
		if len(frac) > 2 && frac[2] >= '5' && frac[2] <= '9' {
			cents++
		}
		for _, r := range frac[2:] {
			if r < '0' || r > '9' {
				return 0, fmt.Errorf("%w: %q", ErrInvalidAmount, s)
			}
		}
	}

	if cents == 0 {
		return 0, ErrInvalidAmount
	}
	if negative {
		cents = -cents
	}
	return cents, nil
}

// FormatCents renders cents as a decimal string with two fraction digits.
func FormatCents(cents int64) string {
	sign := ""
	if cents < 0 {
		sign = "-"
		cents = -cents
	}
	return fmt.Sprintf("%s%d.%02d", sign, cents/100, cents%100)
}
