package agent

import (
	"errors"
	"fmt"
)

// ErrUpstreamUnavailable marks failures of hosted dependencies (LLM provider,
// web search) after retries are exhausted. Handlers map it to 503 without
// leaking provider detail.
var ErrUpstreamUnavailable = errors.New("upstream service unavailable")

// RejectionError is a deliberate refusal by one of the filter gates, as
// opposed to an operational failure. Stage names which gate fired.
type RejectionError struct {
	Stage  State
	Reason string
}

func (e *RejectionError) Error() string {
	return fmt.Sprintf("query rejected at %s: %s", e.Stage, e.Reason)
}

// IsRejection reports whether err is a filter rejection and returns it.
func IsRejection(err error) (*RejectionError, bool) {
	var rej *RejectionError
	if errors.As(err, &rej) {
		return rej, true
	}
	return nil, false
}
