package scale

import (
	"fmt"
	"math"
	"strconv"
	"strings"

	"codeberg.org/mutker/co2scale/internal/errors"
)

// ParseBaseline converts operator input into grams. Empty, non-numeric and
// non-finite input is a validation error.
func ParseBaseline(raw string) (float64, error) {
	errFactory := errors.New()

	trimmed := strings.TrimSpace(raw)
	if trimmed == "" {
		return 0, errFactory.WithMessage(errors.ErrEmptyInput, "contained CO2 must not be empty")
	}

	value, err := strconv.ParseFloat(trimmed, 64)
	if err != nil {
		return 0, errFactory.WithData(errors.ErrNotANumber, fmt.Sprintf("%q", raw))
	}

	if err := CheckFinite(value); err != nil {
		return 0, err
	}

	return value, nil
}

// CheckFinite rejects NaN and infinities.
func CheckFinite(value float64) error {
	if math.IsNaN(value) || math.IsInf(value, 0) {
		return errors.New().WithData(errors.ErrNonFiniteValue, value)
	}
	return nil
}
