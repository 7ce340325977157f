package poller

import (
	"strings"

	"codeberg.org/mutker/co2scale/internal/errors"
)

// Policy decides what happens when a tick fires while an earlier read is
// still in flight.
type Policy string

const (
	// LastResolvedWins issues every read regardless of earlier ones. Reads
	// may resolve out of order; whichever resolves last is delivered last.
	LastResolvedWins Policy = "last-resolved"
	// Coalesce skips a tick while a read is in flight.
	Coalesce Policy = "coalesce"
	// CancelStale cancels the in-flight read when the next tick fires.
	CancelStale Policy = "cancel-stale"
)

// ParsePolicy maps a configured name onto a Policy. The empty string selects
// LastResolvedWins.
func ParsePolicy(name string) (Policy, error) {
	switch p := Policy(strings.ToLower(strings.TrimSpace(name))); p {
	case "":
		return LastResolvedWins, nil
	case LastResolvedWins, Coalesce, CancelStale:
		return p, nil
	default:
		return "", errors.New().WithData(errors.ErrInvalidPolicy, name)
	}
}
