package targetdecoy

import "errors"

var (
	// ErrNoHits is returned by operations that need at least one observed score.
	ErrNoHits = errors.New("score distribution has no hits")

	// ErrNotEstimated is returned when a series is requested from a map whose
	// probabilities are missing, stale or were interrupted.
	ErrNotEstimated = errors.New("score distribution probabilities not estimated")

	// ErrUnknownScore is returned when removing a hit at a score never put.
	ErrUnknownScore = errors.New("no hits recorded at score")
)
