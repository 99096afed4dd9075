// Package discount combines the stacked line discounts of a sales order line
// into the single effective percentage used for pricing.
package discount

import (
	"errors"
	"fmt"
)

// Mode selects how stacked discounts are combined.
type Mode string

const (
	// ModeAdditive sums the discounts before applying them.
	ModeAdditive Mode = "additive"
	// ModeMultiplicative applies each discount to the price left by the previous one.
	ModeMultiplicative Mode = "multiplicative"

	// DefaultMode is used when a line does not specify a mode.
	DefaultMode = ModeMultiplicative
)

// ErrUnknownDiscountingMode indicates a mode outside the supported set.
var ErrUnknownDiscountingMode = errors.New("unknown discounting mode")

// UnknownModeError reports the offending mode and, when known, the line it was found on.
type UnknownModeError struct {
	Line string
	Mode Mode
}

func (e *UnknownModeError) Error() string {
	if e.Line == "" {
		return fmt.Sprintf("unknown discounting mode %q", string(e.Mode))
	}
	return fmt.Sprintf("sales order line %s has unknown discounting mode %q", e.Line, string(e.Mode))
}

func (e *UnknownModeError) Unwrap() error {
	return ErrUnknownDiscountingMode
}

// Valid reports whether m is one of the supported modes.
func (m Mode) Valid() bool {
	return m == ModeAdditive || m == ModeMultiplicative
}

// ParseMode converts raw input into a Mode. Empty input yields DefaultMode.
func ParseMode(raw string) (Mode, error) {
	if raw == "" {
		return DefaultMode, nil
	}
	mode := Mode(raw)
	if !mode.Valid() {
		return "", &UnknownModeError{Mode: mode}
	}
	return mode, nil
}

// Combine applies mode to the given discount percentages.
func Combine(mode Mode, discounts ...float64) (float64, error) {
	switch mode {
	case ModeAdditive:
		return Additive(discounts...), nil
	case ModeMultiplicative:
		return Multiplicative(discounts...), nil
	default:
		return 0, &UnknownModeError{Mode: mode}
	}
}

// Additive sums the discounts and clamps the result to [0, 100].
func Additive(discounts ...float64) float64 {
	var total float64
	for _, d := range discounts {
		total += d
	}
	if total <= 0 {
		return 0
	}
	if total >= 100 {
		return 100
	}
	return total
}

// Multiplicative multiplies the retained fraction of every discount and returns
// the complement as a percentage. Inputs above 100 are not clamped, so the
// result may fall outside [0, 100].
func Multiplicative(discounts ...float64) float64 {
	retained := 1.0
	for _, d := range discounts {
		retained *= 1 - d/100
	}
	return 100 - retained*100
}
