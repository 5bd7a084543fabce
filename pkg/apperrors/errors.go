package apperrors

import (
	"errors"
	"fmt"
)

var (
	// ErrNotFound indicates the addressed commitment does not exist in the store.
	ErrNotFound = errors.New("not found")

	// ErrValidation indicates malformed input: empty title, inverted date
	// range, a label outside its enum, or an out-of-range confidence score.
	ErrValidation = errors.New("validation failed")

	// ErrDuplicateLink indicates a (commitment, source) pair is already
	// linked. Expected under duplicate webhook delivery and retried
	// extraction jobs; callers may treat it as "already linked" and move on.
	ErrDuplicateLink = errors.New("duplicate link")

	// ErrInvalidCertainty indicates a date-certainty label outside the
	// recognized ordering. It wraps ErrValidation so generic validation
	// checks match it, while lattice-aware callers can branch on it directly.
	ErrInvalidCertainty = fmt.Errorf("%w: invalid date certainty", ErrValidation)
)
