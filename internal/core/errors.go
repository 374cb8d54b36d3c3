package core

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"strings"
)

// Sentinels for errors.Is matching against the typed errors below.
var (
	ErrNotFound   = errors.New("not found")
	ErrCycle      = errors.New("would create circular dependency")
	ErrValidation = errors.New("validation failed")
	ErrRemote     = errors.New("remote call failed")
)

// Entity names a remote table in error messages.
type Entity string

const (
	EntityTask    Entity = "task"
	EntityParent  Entity = "parent task"
	EntityProject Entity = "project"
)

// NotFoundError reports an ID that does not resolve in the remote store.
type NotFoundError struct {
	Entity Entity
	ID     int64
}

func (e *NotFoundError) Error() string {
	return fmt.Sprintf("%s with ID %d not found", e.Entity, e.ID)
}

func (e *NotFoundError) Is(target error) bool { return target == ErrNotFound }

// CycleError reports a move that would make a task its own ancestor. Path is
// the upward chain from the new parent that reached the task.
type CycleError struct {
	TaskID      int64
	NewParentID int64
	Path        []int64
}

func (e *CycleError) Error() string {
	if len(e.Path) == 0 {
		return fmt.Sprintf("cannot move task %d under %d: would create circular dependency", e.TaskID, e.NewParentID)
	}
	parts := make([]string, len(e.Path))
	for i, id := range e.Path {
		parts[i] = strconv.FormatInt(id, 10)
	}
	return fmt.Sprintf("cannot move task %d under %d: would create circular dependency (%s)",
		e.TaskID, e.NewParentID, strings.Join(parts, " → "))
}

func (e *CycleError) Is(target error) bool { return target == ErrCycle }

// ValidationError reports a request rejected before any remote lookup or write.
type ValidationError struct {
	TaskID int64
	Reason string
}

func (e *ValidationError) Error() string {
	if e.TaskID == 0 {
		return e.Reason
	}
	return fmt.Sprintf("task %d: %s", e.TaskID, e.Reason)
}

func (e *ValidationError) Is(target error) bool { return target == ErrValidation }

// RemoteError reports a failed adapter call (network, auth, timeout, refused write).
type RemoteError struct {
	Op  string
	Err error
}

func (e *RemoteError) Error() string {
	if e.Err == nil {
		return e.Op + ": remote call failed"
	}
	return e.Op + ": " + e.Err.Error()
}

func (e *RemoteError) Unwrap() error { return e.Err }

func (e *RemoteError) Is(target error) bool { return target == ErrRemote }

// asRemote wraps err as a RemoteError unless it is already one of the typed
// errors of this package.
func asRemote(op string, err error) error {
	if err == nil {
		return nil
	}
	var nf *NotFoundError
	var re *RemoteError
	if errors.As(err, &nf) || errors.As(err, &re) {
		return err
	}
	return &RemoteError{Op: op, Err: err}
}

// Error kinds as reported by ErrorKind.
const (
	KindNotFound   = "not_found"
	KindCycle      = "cycle"
	KindValidation = "validation"
	KindRemote     = "remote"
	KindCanceled   = "canceled"
	KindInternal   = "internal"
)

// ErrorKind classifies err into one of the Kind constants. A timeout inside
// a RemoteError is remote; a bare context error is canceled.
func ErrorKind(err error) string {
	switch {
	case err == nil:
		return ""
	case errors.Is(err, ErrNotFound):
		return KindNotFound
	case errors.Is(err, ErrCycle):
		return KindCycle
	case errors.Is(err, ErrValidation):
		return KindValidation
	case errors.Is(err, ErrRemote):
		return KindRemote
	case errors.Is(err, context.Canceled), errors.Is(err, context.DeadlineExceeded):
		return KindCanceled
	default:
		return KindInternal
	}
}
