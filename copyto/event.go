package copyto

import "fmt"

// Action is what a copy did, or would do, to one destination entry.
type Action string

const (
	ActionCreate   Action = "create"
	ActionUpdate   Action = "update"
	ActionDelete   Action = "delete"
	ActionSkip     Action = "skip"
	ActionConflict Action = "conflict"
)

// Event reports one action on the destination.
type Event struct {
	Action Action
	// Path is the logical path of the destination entry
	Path   string
	DryRun bool
	// SrcIsDir is set when the entry is, or is copied as, a directory
	SrcIsDir bool
	// Reason explains a skip
	Reason string
}

// String renders the event the way the copy commands print it.
func (e Event) String() string {
	switch e.Action {
	case ActionCreate:
		if e.DryRun {
			return "Would create " + e.Path
		}
		return "Created " + e.Path
	case ActionUpdate:
		if e.DryRun {
			return "Would update " + e.Path
		}
		return "Updated " + e.Path
	case ActionDelete:
		if e.DryRun {
			return fmt.Sprintf("Would delete extra entry %s (purge is on)", e.Path)
		}
		return fmt.Sprintf("Deleted extra entry %s (purge is on)", e.Path)
	case ActionSkip:
		return fmt.Sprintf("Skipped %s: %s", e.Path, e.Reason)
	case ActionConflict:
		if e.SrcIsDir {
			return fmt.Sprintf("%s is a directory in the source and a file in the destination", e.Path)
		}
		return fmt.Sprintf("%s is a file in the source and a directory in the destination", e.Path)
	default:
		return fmt.Sprintf("%s %s", e.Action, e.Path)
	}
}
