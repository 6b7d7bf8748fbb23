package treefs

import (
	"context"

	"github.com/brettbedarf/treefs/pathutil"
	"github.com/brettbedarf/treefs/pattern"
)

// List walks the tree under root depth first, calling visit for every node whose
// path matches p, the node itself before its descendants.
//
// Subtrees are pruned with [pattern.Pattern.CouldMatchChildren] before anything
// is asked of the store, and when the pattern fixes the next name only that child
// is resolved instead of enumerating the directory. A directory that turns out
// not to exist while enumerating is treated as empty. An exact pattern visits the
// resolved node even if it does not exist.
func List(ctx context.Context, root Node, p *pattern.Pattern, visit func(Node) error) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	path := root.Path()
	if p.Match(path) {
		if err := visit(root); err != nil {
			return err
		}
	}

	if !p.CouldMatchChildren(path) {
		return nil
	}
	isDir, err := root.IsDir(ctx)
	if err != nil {
		if IsNotFound(err) {
			return nil
		}
		return err
	}
	if !isDir {
		return nil
	}

	if name, ok := p.ExactChildNameUnder(path); ok {
		return List(ctx, root.Child(name), p, visit)
	}

	children, err := root.Children(ctx)
	if err != nil {
		if IsNotFound(err) {
			return nil
		}
		return err
	}
	for _, child := range children {
		if err := List(ctx, child, p, visit); err != nil {
			return err
		}
	}
	return nil
}

// ListAll returns every node under root matching p, in walk order.
func ListAll(ctx context.Context, root Node, p *pattern.Pattern) ([]Node, error) {
	var out []Node
	err := List(ctx, root, p, func(n Node) error {
		out = append(out, n)
		return nil
	})
	return out, err
}

// ResolvePath returns the node at path without listing anything.
// Absolute paths from a non-root node start over at its root, ".." moves to the
// parent and every other segment is resolved with Child, so the result exists
// only if every segment does.
func ResolvePath(node Node, path string) Node {
	if path == "" {
		return node
	}
	if pathutil.IsAbsolute(path) {
		node = Root(node)
	}
	for _, segment := range pathutil.Split(path) {
		switch segment {
		case ".":
		case "..":
			if parent := node.Parent(); parent != nil {
				node = parent
			}
		default:
			node = node.Child(segment)
		}
	}
	return node
}
