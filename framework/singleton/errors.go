package singleton

import (
	"errors"
	"fmt"
	"strings"
)

var (
	// ErrCurrentlyInCreation is returned when a call path re-enters the
	// construction of a name it is already constructing, and the name is not
	// exempt. It signals a cycle that early references cannot break.
	ErrCurrentlyInCreation = errors.New("singleton currently in creation")

	// ErrCreationNotAllowed is returned by GetOrCreate once the registry has
	// started draining.
	ErrCreationNotAllowed = errors.New("singleton creation not allowed while the registry is draining")

	// ErrAlreadyRegistered is returned by RegisterFinished when a different
	// instance is already bound to the name.
	ErrAlreadyRegistered = errors.New("singleton already registered")

	// ErrNotInCreation reports an end-of-creation for a name that was never
	// marked. It indicates a bug in the registry, not a runtime condition.
	ErrNotInCreation = errors.New("singleton is not currently in creation")
)

// CreationError is returned when a factory passed to GetOrCreate fails.
// Related holds errors recorded with RecordSuppressed during the same
// outermost construction.
type CreationError struct {
	Name    string
	Err     error
	Related []error
}

func (e *CreationError) Error() string {
	msg := fmt.Sprintf("creating singleton %q: %v", e.Name, e.Err)
	if len(e.Related) == 0 {
		return msg
	}

	related := make([]string, len(e.Related))
	for i, err := range e.Related {
		related[i] = err.Error()
	}
	return fmt.Sprintf("%s (related causes: %s)", msg, strings.Join(related, "; "))
}

// Unwrap exposes the primary cause followed by the related causes.
func (e *CreationError) Unwrap() []error {
	out := make([]error, 0, len(e.Related)+1)
	out = append(out, e.Err)
	return append(out, e.Related...)
}
