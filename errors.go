package treefs

import (
	"errors"
	"fmt"
)

// Operation names carried by [OperationFailedError] and [OperationNotAllowedError]
const (
	OpRead   = "read"
	OpWrite  = "write"
	OpDelete = "delete"
	OpCreate = "create"
	OpList   = "list"
)

// NotFoundError reports that a node did not exist where content or children were required.
type NotFoundError struct {
	Path string
	Err  error // underlying cause, may be nil
}

func (e *NotFoundError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("%s: not found: %v", e.Path, e.Err)
	}
	return fmt.Sprintf("%s: not found", e.Path)
}

func (e *NotFoundError) Unwrap() error { return e.Err }

// OperationFailedError reports that a backing store rejected an operation for a
// reason other than absence.
type OperationFailedError struct {
	Op   string
	Path string
	Err  error
}

func (e *OperationFailedError) Error() string {
	return fmt.Sprintf("%s: failed to %s: %v", e.Path, e.Op, e.Err)
}

func (e *OperationFailedError) Unwrap() error { return e.Err }

// OperationNotAllowedError reports an operation a node does not support.
type OperationNotAllowedError struct {
	Op     string
	Path   string
	Reason string
}

func (e *OperationNotAllowedError) Error() string {
	return fmt.Sprintf("%s: %s not allowed: %s", e.Path, e.Op, e.Reason)
}

// MustDeleteRecursivelyError is returned by Delete on a non-empty directory when
// recurse was not requested.
type MustDeleteRecursivelyError struct {
	Path string
}

func (e *MustDeleteRecursivelyError) Error() string {
	return fmt.Sprintf("%s: must delete recursively", e.Path)
}

// NewNotFound returns a [NotFoundError] for n.
func NewNotFound(n Node, cause error) error {
	return &NotFoundError{Path: n.PrintablePath(), Err: cause}
}

// NewOperationFailed returns an [OperationFailedError] for n.
func NewOperationFailed(op string, n Node, cause error) error {
	return &OperationFailedError{Op: op, Path: n.PrintablePath(), Err: cause}
}

// NewOperationNotAllowed returns an [OperationNotAllowedError] for n.
func NewOperationNotAllowed(op string, n Node, reason string) error {
	return &OperationNotAllowedError{Op: op, Path: n.PrintablePath(), Reason: reason}
}

// IsNotFound reports whether any error in err's chain is a [NotFoundError].
func IsNotFound(err error) bool {
	var nf *NotFoundError
	return errors.As(err, &nf)
}

// IsMustDeleteRecursively reports whether any error in err's chain is a [MustDeleteRecursivelyError].
func IsMustDeleteRecursively(err error) bool {
	var md *MustDeleteRecursivelyError
	return errors.As(err, &md)
}
