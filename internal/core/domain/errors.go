package domain

import "errors"

var (
	// ErrInvalidGeometry reports a polygon with too few vertices, zero area or
	// a self-intersecting ring.
	ErrInvalidGeometry = errors.New("invalid geometry")

	// ErrInsufficientData reports too few usable samples for a statistic.
	ErrInsufficientData = errors.New("insufficient data")

	// ErrDegenerateInput reports samples on which the KDE is undefined
	// (identical or collinear positions, non-positive weights).
	ErrDegenerateInput = errors.New("degenerate input")

	// ErrInvalidParams reports out-of-range detection parameters.
	ErrInvalidParams = errors.New("invalid parameters")

	// ErrNotFound is returned by providers for unknown orchards.
	ErrNotFound = errors.New("not found")

	// ErrRemote is returned by providers when the upstream call fails.
	ErrRemote = errors.New("remote error")
)
