package treefs

import "context"

// nonexistent stands in for a name that does not exist in the store.
type nonexistent struct {
	Base
}

var _ Node = (*nonexistent)(nil)

// Nonexistent returns a node named name under parent that reports it does not exist.
// Navigation never fails; absence is represented by this node instead.
func Nonexistent(parent Node, name string) Node {
	return &nonexistent{Base: NewBase(parent, name)}
}

// IsNonexistent reports whether n is the sentinel returned by [Nonexistent].
func IsNonexistent(n Node) bool {
	_, ok := n.(*nonexistent)
	return ok
}

func (n *nonexistent) Exists(ctx context.Context) (bool, error) { return false, nil }

func (n *nonexistent) IsDir(ctx context.Context) (bool, error) { return false, nil }

func (n *nonexistent) Children(ctx context.Context) ([]Node, error) {
	return nil, NewNotFound(n, nil)
}

func (n *nonexistent) Child(name string) Node {
	return Nonexistent(n, name)
}

func (n *nonexistent) Read(ctx context.Context) ([]byte, error) {
	return nil, NewNotFound(n, nil)
}

func (n *nonexistent) Write(ctx context.Context, content []byte) error {
	return NewNotFound(n, nil)
}

func (n *nonexistent) Delete(ctx context.Context, recurse bool) error {
	return NewNotFound(n, nil)
}
