package models

import (
	"fmt"

	"github.com/tetherhq/tether-engine/pkg/apperrors"
)

// DateCertainty classifies how precisely a commitment's date is known.
// The levels form a total order from vaguest to most precise; callers use
// the order to decide whether a new observation refines what is already
// known.
type DateCertainty string

const (
	CertaintyUnknown       DateCertainty = "unknown"        // No usable date information yet
	CertaintyMonth         DateCertainty = "month"          // Narrowed to a month
	CertaintyWeek          DateCertainty = "week"           // Narrowed to a week
	CertaintyDay           DateCertainty = "day"            // Narrowed to a day
	CertaintyExact         DateCertainty = "exact"          // Exact date and time extracted
	CertaintyTimeConfirmed DateCertainty = "time_confirmed" // Confirmed by a calendar event
)

// certaintyRanks maps each level to its position in the order.
var certaintyRanks = map[DateCertainty]int{
	CertaintyUnknown:       0,
	CertaintyMonth:         1,
	CertaintyWeek:          2,
	CertaintyDay:           3,
	CertaintyExact:         4,
	CertaintyTimeConfirmed: 5,
}

// Rank returns the order position of a certainty level. Returns
// apperrors.ErrInvalidCertainty for an unrecognized label.
func (c DateCertainty) Rank() (int, error) {
	rank, ok := certaintyRanks[c]
	if !ok {
		return 0, fmt.Errorf("%w: %q", apperrors.ErrInvalidCertainty, string(c))
	}
	return rank, nil
}

// IsValid reports whether c is a recognized certainty level.
func (c DateCertainty) IsValid() bool {
	_, ok := certaintyRanks[c]
	return ok
}

// IsRefinement reports whether candidate is at least as precise as old.
// Equal rank counts as a refinement so that a corrected value of the same
// precision still applies. Errors if either label is unrecognized.
func IsRefinement(old, candidate DateCertainty) (bool, error) {
	oldRank, err := old.Rank()
	if err != nil {
		return false, err
	}
	candidateRank, err := candidate.Rank()
	if err != nil {
		return false, err
	}
	return candidateRank >= oldRank, nil
}
