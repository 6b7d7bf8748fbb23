package treefs

import (
	"context"

	"github.com/brettbedarf/treefs/pathutil"
)

// Node is one addressable point in a tree: a file or a directory of some backing store.
//
// Nodes are cheap, transient values produced while walking. A node may memoize
// its existence and children once; that cache is never invalidated, so a fresh
// root must be built to observe later changes in the store.
type Node interface {
	// Name is the last path segment, "" for the root
	Name() string
	// Parent is nil for the root
	Parent() Node
	// Path is "/" for the root and "/a/b" below it
	Path() string
	// PrintablePath is the path as shown to users, prefixed with the root's label
	PrintablePath() string

	Exists(ctx context.Context) (bool, error)
	IsDir(ctx context.Context) (bool, error)

	// Children enumerates the directory. It fails with a [NotFoundError] when the
	// directory itself is absent.
	Children(ctx context.Context) ([]Node, error)
	// Child never fails. A missing name yields a node whose Exists reports false.
	Child(name string) Node

	Read(ctx context.Context) ([]byte, error)
	Write(ctx context.Context, content []byte) error
	Delete(ctx context.Context, recurse bool) error

	ContentType() ContentType
}

// Base carries the identity of a node and derives its paths from the parent chain.
// Adapters embed it.
type Base struct {
	name   string
	parent Node
	label  string
}

// NewBase returns the identity of a child named name under parent.
func NewBase(parent Node, name string) Base {
	return Base{name: name, parent: parent}
}

// NewRootBase returns the identity of a root. label prefixes printable paths,
// e.g. "remote/" or a local directory.
func NewRootBase(label string) Base {
	return Base{label: label}
}

func (b *Base) Name() string { return b.name }

func (b *Base) Parent() Node { return b.parent }

func (b *Base) Path() string {
	if b.parent == nil {
		return pathutil.Separator
	}
	return pathutil.Join(b.parent.Path(), b.name)
}

func (b *Base) PrintablePath() string {
	if b.parent == nil {
		if b.label == "" {
			return pathutil.Separator
		}
		return b.label
	}
	return pathutil.Join(b.parent.PrintablePath(), b.name)
}

// ContentType infers the content type from the name.
func (b *Base) ContentType() ContentType {
	return ContentTypeFor(b.name)
}

// Root walks up the parent chain of n.
func Root(n Node) Node {
	for n.Parent() != nil {
		n = n.Parent()
	}
	return n
}

// IsRoot reports whether n has no parent.
func IsRoot(n Node) bool {
	return n.Parent() == nil
}
