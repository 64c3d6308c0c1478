package pipeline

import (
	"errors"
	"fmt"
)

var (
	// ErrUnresolvedProject means the file maps to no known project. The
	// integration disables itself; this is a steady state, not a failure.
	ErrUnresolvedProject = errors.New("file does not belong to a known project")

	// ErrNeedsInteractiveChoice is the parent of every escalation that a human
	// has to settle through the chooser.
	ErrNeedsInteractiveChoice = errors.New("needs interactive choice")

	ErrAmbiguousEntity       = fmt.Errorf("%w: entity could not be derived from the file", ErrNeedsInteractiveChoice)
	ErrUnmappedEntityType    = fmt.Errorf("%w: entity type has no default step", ErrNeedsInteractiveChoice)
	ErrNoAssignableTask      = fmt.Errorf("%w: no task could be assigned automatically", ErrNeedsInteractiveChoice)
	ErrMultipleAssignedTasks = fmt.Errorf("%w: several tasks are assigned to the current user", ErrNeedsInteractiveChoice)

	// ErrUserCancelled is returned by choosers when the user dismisses them.
	ErrUserCancelled = errors.New("task selection cancelled by user")

	// ErrDirectoryQuery wraps failures of the remote directory.
	ErrDirectoryQuery = errors.New("directory query failed")

	// ErrSessionConstruction wraps failures while bringing up a new session.
	ErrSessionConstruction = errors.New("session construction failed")

	// ErrSceneHandling wraps a panic recovered while handling a scene event.
	ErrSceneHandling = errors.New("scene event handling failed")
)

// NeedsChoice reports whether err is an escalation to the interactive chooser.
func NeedsChoice(err error) bool {
	return errors.Is(err, ErrNeedsInteractiveChoice)
}
