package queue

import (
	"fmt"

	"roastmachine/internal/services"
)

var (
	// ErrRunNotFound is returned when a run id is unknown or already purged.
	ErrRunNotFound = fmt.Errorf("%w: run not found", services.ErrNotFound)
	// ErrInvalidTransition is returned when a status change is not allowed
	// from the run's current status, for example completing a terminated run.
	ErrInvalidTransition = fmt.Errorf("%w: invalid run status transition", services.ErrState)
)
