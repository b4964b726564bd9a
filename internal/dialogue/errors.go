package dialogue

import "fmt"

// ValidationError reports a request whose shape the engine cannot accept.
// It is always raised before slot extraction runs.
type ValidationError struct {
	Message string
}

func (e *ValidationError) Error() string {
	return "invalid transcript: " + e.Message
}

// InternalError wraps an unexpected fault raised while extracting, dispatching
// or rendering a reply.
type InternalError struct {
	Stage string
	Cause error
}

func (e *InternalError) Error() string {
	return fmt.Sprintf("dialogue %s failed: %v", e.Stage, e.Cause)
}

func (e *InternalError) Unwrap() error {
	return e.Cause
}
