package store

import "fmt"

// ValidationError rejects a malformed command: bad values or references to
// things that do not exist. The command is discarded; the run continues.
type ValidationError struct {
	Command string
	Reason  string
}

func (e *ValidationError) Error() string {
	return fmt.Sprintf("invalid command %s: %s", e.Command, e.Reason)
}

// ConflictError rejects a command that is well-formed but lost an ordering
// race against current state, such as an inventory adjustment that would
// drive stock negative. There is no automatic retry; callers may resubmit
// next tick.
type ConflictError struct {
	Command string
	Reason  string
}

func (e *ConflictError) Error() string {
	return fmt.Sprintf("command %s conflicts with current state: %s", e.Command, e.Reason)
}
