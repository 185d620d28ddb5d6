package pipeline

import "fmt"

// ValidationError reports bad input rejected before any service call.
type ValidationError struct {
	Field  string
	Reason string
}

func (e *ValidationError) Error() string {
	return fmt.Sprintf("pipeline: invalid %s: %s", e.Field, e.Reason)
}

// EmptySelectionError reports a process call with no threads selected.
type EmptySelectionError struct{}

func (e *EmptySelectionError) Error() string {
	return "pipeline: no threads selected"
}

// AlreadyInProgressError reports re-entry of a stage whose previous
// invocation is still outstanding.
type AlreadyInProgressError struct {
	Stage Stage
}

func (e *AlreadyInProgressError) Error() string {
	return fmt.Sprintf("pipeline: stage %s already in progress", e.Stage)
}

// AuthRequiredError reports a lapsed session. The coordinator suspends
// but preserves all in-memory state so work resumes after re-auth.
type AuthRequiredError struct{}

func (e *AuthRequiredError) Error() string {
	return "pipeline: authentication required"
}

// UpstreamServiceError wraps a failed external call, scoped to the
// stage that issued it. Never retried automatically.
type UpstreamServiceError struct {
	Stage Stage
	Err   error
}

func (e *UpstreamServiceError) Error() string {
	return fmt.Sprintf("pipeline: stage %s failed: %v", e.Stage, e.Err)
}

func (e *UpstreamServiceError) Unwrap() error { return e.Err }
