package engine

import (
	"errors"
	"fmt"
	"strings"
)

// ErrAlreadyProcessing rejects reentrant register/cancel calls while a
// previous action for the same (tournament, user) key is still in flight.
// Callers surface "already processing" instead of queueing the action.
var ErrAlreadyProcessing = errors.New("registration action already in progress")

// IneligibleError is the validation failure of a registration attempt. It
// carries every violated reason; callers show the first one to the user and
// keep the rest for diagnostics. It is never retried.
type IneligibleError struct {
	Reasons []string
}

func (e *IneligibleError) Error() string {
	if len(e.Reasons) == 0 {
		return "not eligible to register"
	}
	return "not eligible to register: " + strings.Join(e.Reasons, "; ")
}

// FirstReason is the user-facing message.
func (e *IneligibleError) FirstReason() string {
	if len(e.Reasons) == 0 {
		return "not eligible to register"
	}
	return e.Reasons[0]
}

// TransientError wraps an unexpected persistence or network failure. The
// operation that produced it has already been rolled back to its prior
// confirmed state and may be retried by the caller.
type TransientError struct {
	Op  string
	Err error
}

func (e *TransientError) Error() string {
	return fmt.Sprintf("%s failed: %v", e.Op, e.Err)
}

func (e *TransientError) Unwrap() error {
	return e.Err
}

// IsTransient reports whether err is retryable.
func IsTransient(err error) bool {
	var te *TransientError
	return errors.As(err, &te)
}
