package diff

import (
	"context"
	"fmt"
	"strings"

	"github.com/brettbedarf/treefs"
)

// Status classifies a leaf pair difference.
type Status int

const (
	StatusModified Status = iota
	StatusAdded
	StatusDeleted
	StatusTypeChanged
	StatusCommonDir
)

// Code is the single letter shown by name-status output, "" for common directories.
func (s Status) Code() string {
	switch s {
	case StatusModified:
		return "M"
	case StatusAdded:
		return "A"
	case StatusDeleted:
		return "D"
	case StatusTypeChanged:
		return "T"
	default:
		return ""
	}
}

func (s Status) String() string {
	switch s {
	case StatusModified:
		return "modified"
	case StatusAdded:
		return "added"
	case StatusDeleted:
		return "deleted"
	case StatusTypeChanged:
		return "type-changed"
	case StatusCommonDir:
		return "common-dir"
	default:
		return fmt.Sprintf("Status(%d)", int(s))
	}
}

// Result describes how one leaf pair differs. Old is the node of the first tree
// and New the node of the second.
type Result struct {
	Status Status
	Path   string
	Old    treefs.Node
	New    treefs.Node
	// OldIsDir and NewIsDir are only meaningful for added, deleted and type-changed results
	OldIsDir bool
	NewIsDir bool
	// Patch is a unified diff for files, empty for directories
	Patch string
	// Messages lists the semantic differences of structured content
	Messages []string
	// Warnings are non fatal problems, e.g. structured content that failed to parse
	Warnings []string
}

// String renders the result the way diff prints it.
func (r *Result) String() string {
	var sb strings.Builder
	switch r.Status {
	case StatusCommonDir:
		fmt.Fprintf(&sb, "Common subdirectories: %s\n", r.Path)
	case StatusTypeChanged:
		if r.OldIsDir {
			fmt.Fprintf(&sb, "File %s is a directory while file %s is a regular file\n",
				r.Old.PrintablePath(), r.New.PrintablePath())
		} else {
			fmt.Fprintf(&sb, "File %s is a regular file while file %s is a directory\n",
				r.Old.PrintablePath(), r.New.PrintablePath())
		}
	case StatusDeleted, StatusAdded, StatusModified:
		if r.Status == StatusDeleted && r.OldIsDir {
			fmt.Fprintf(&sb, "Only in %s: %s\n", r.Old.Parent().PrintablePath(), r.Old.Name())
			break
		}
		if r.Status == StatusAdded && r.NewIsDir {
			fmt.Fprintf(&sb, "Only in %s: %s\n", r.New.Parent().PrintablePath(), r.New.Name())
			break
		}
		fmt.Fprintf(&sb, "diff --treefs %s %s\n", r.Old.PrintablePath(), r.New.PrintablePath())
		switch r.Status {
		case StatusAdded:
			sb.WriteString("new file\n")
		case StatusDeleted:
			sb.WriteString("deleted file\n")
		}
		sb.WriteString(r.Patch)
	}
	return sb.String()
}

// NameStatus renders "<code>\t<path>", or "" for common directories.
func (r *Result) NameStatus() string {
	if r.Status == StatusCommonDir {
		return ""
	}
	return r.Status.Code() + "\t" + r.Path + "\n"
}

// NameOnly renders the path alone, or "" for common directories.
func (r *Result) NameOnly() string {
	if r.Status == StatusCommonDir {
		return ""
	}
	return r.Path + "\n"
}

// DiffLeaves compares one leaf pair, returning nil when there is nothing to report.
// Directories are never descended into here; both being directories yields a
// common directory marker and a directory facing a file yields a type change
// without reading either side.
func DiffLeaves(ctx context.Context, a, b treefs.Node) (*Result, error) {
	r, _, err := diffLeaves(ctx, a, b)
	return r, err
}

// diffLeaves also reports whether either side exists.
func diffLeaves(ctx context.Context, a, b treefs.Node) (*Result, bool, error) {
	aDir, err := isDir(ctx, a)
	if err != nil {
		return nil, false, err
	}
	bDir, err := isDir(ctx, b)
	if err != nil {
		return nil, false, err
	}

	path := a.Path()
	switch {
	case aDir && bDir:
		return &Result{Status: StatusCommonDir, Path: path, Old: a, New: b, OldIsDir: true, NewIsDir: true}, true, nil

	case aDir:
		bExists, err := exists(ctx, b)
		if err != nil {
			return nil, true, err
		}
		status := StatusDeleted
		if bExists {
			status = StatusTypeChanged
		}
		return &Result{Status: status, Path: path, Old: a, New: b, OldIsDir: true}, true, nil

	case bDir:
		aExists, err := exists(ctx, a)
		if err != nil {
			return nil, true, err
		}
		status := StatusAdded
		if aExists {
			status = StatusTypeChanged
		}
		return &Result{Status: status, Path: path, Old: a, New: b, NewIsDir: true}, true, nil
	}

	fd, found, err := diffFiles(ctx, a, b)
	if err != nil {
		return nil, true, err
	}
	if fd == nil {
		return nil, found, nil
	}

	r := &Result{
		Status:   StatusModified,
		Path:     path,
		Old:      a,
		New:      b,
		Patch:    fd.Patch,
		Messages: fd.Messages,
		Warnings: fd.Warnings,
	}
	switch {
	case fd.OldMissing:
		r.Status = StatusAdded
	case fd.NewMissing:
		r.Status = StatusDeleted
	}
	return r, true, nil
}
