package health

import (
	"errors"
	"fmt"
)

// ErrCheckTimeout is reported when a check does not return in time.
var ErrCheckTimeout = errors.New("health check timeout")

type panicError struct {
	value any
}

func (e *panicError) Error() string {
	return fmt.Sprintf("health check panicked: %v", e.value)
}
