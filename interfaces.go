package treefs

import "context"

// Checksummer is implemented by nodes whose store publishes a content digest.
// Checksum returns a lowercase hex MD5 digest, or "" when none is known.
type Checksummer interface {
	Checksum(ctx context.Context) (string, error)
}

// Canonicalizer is implemented by nodes whose store rewrites content on write.
// Canonical returns content as it would read back after a Write.
type Canonicalizer interface {
	Canonical(content []byte) ([]byte, error)
}

// ChildValidator is implemented by directories that restrict what they may contain.
// Directories without it accept any child.
type ChildValidator interface {
	CanHaveChild(name string, isDir bool) bool
}

// ChildCreator is implemented by directories that can create new children.
type ChildCreator interface {
	CreateDir(ctx context.Context, name string) (Node, error)
	CreateFile(ctx context.Context, name string, content []byte) (Node, error)
}

// CanHaveChild asks dir whether a child with the given name and kind is legal.
func CanHaveChild(dir Node, name string, isDir bool) bool {
	if v, ok := dir.(ChildValidator); ok {
		return v.CanHaveChild(name, isDir)
	}
	return true
}

// ChecksumOf returns the digest published by n, or "" if n does not publish one.
func ChecksumOf(ctx context.Context, n Node) (string, error) {
	if c, ok := n.(Checksummer); ok {
		return c.Checksum(ctx)
	}
	return "", nil
}
