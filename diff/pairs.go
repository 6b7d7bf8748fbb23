package diff

import (
	"context"
	"errors"
	"sync"

	"github.com/brettbedarf/treefs"
	"github.com/brettbedarf/treefs/pathutil"
	"github.com/brettbedarf/treefs/pattern"
	"github.com/puzpuzpuz/xsync/v4"
	"golang.org/x/sync/errgroup"
)

// Unlimited recursion depth
const Unlimited = -1

// EmitFunc receives a leaf pair: two nodes at the same path of two trees, either
// of which may not exist.
type EmitFunc func(a, b treefs.Node) error

// Walker pairs the nodes of two trees.
// Parallelism above 1 walks sibling subtrees concurrently with at most that many
// extra goroutines; results are the same as a sequential walk up to ordering.
type Walker struct {
	Depth       int
	Parallelism int
}

// PairLeaves pairs a and b recursively with a sequential walk, see [Walker.PairLeaves].
func PairLeaves(ctx context.Context, a, b treefs.Node, depth int, emit EmitFunc) error {
	return Walker{Depth: depth}.PairLeaves(ctx, a, b, emit)
}

// PairLeavesFromPattern pairs every match of p with a sequential walk, see [Walker.PairLeavesFromPattern].
func PairLeavesFromPattern(ctx context.Context, p *pattern.Pattern, aRoot, bRoot treefs.Node, depth int, emit EmitFunc) error {
	return Walker{Depth: depth}.PairLeavesFromPattern(ctx, p, aRoot, bRoot, emit)
}

// PairLeaves descends into a and b while both are directories and at least one
// of them has children, pairing a's children with the same names in b, then b's
// remaining children with the same names in a. Every other pair is emitted as a
// leaf, as is every pair once the depth is exhausted.
//
// Errors from a subtree are collected and returned joined after the whole walk;
// they never stop sibling subtrees. emit calls are serialized.
func (w Walker) PairLeaves(ctx context.Context, a, b treefs.Node, emit EmitFunc) error {
	pw := w.start(ctx, serialized(emit))
	pw.spawn(a, b, w.Depth)
	return pw.wait()
}

// PairLeavesFromPattern lists both trees with p and pairs each match with the
// node at the same path of the other tree. Matches of b already found in a are
// skipped, as is any match lying inside a subtree that an earlier match already
// paired without a depth limit.
func (w Walker) PairLeavesFromPattern(ctx context.Context, p *pattern.Pattern, aRoot, bRoot treefs.Node, emit EmitFunc) error {
	return w.pairFromPattern(ctx, p, aRoot, bRoot, serialized(emit))
}

func (w Walker) pairFromPattern(ctx context.Context, p *pattern.Pattern, aRoot, bRoot treefs.Node, leaf EmitFunc) error {
	pw := w.start(ctx, leaf)
	found := xsync.NewMap[string, struct{}]()

	listErr := treefs.List(ctx, aRoot, p, func(a treefs.Node) error {
		path := a.Path()
		found.Store(path, struct{}{})
		if pw.isCovered(path) {
			return nil
		}
		pw.cover(path)
		pw.spawn(a, treefs.ResolvePath(bRoot, path), w.Depth)
		return nil
	})
	if listErr == nil {
		listErr = treefs.List(ctx, bRoot, p, func(b treefs.Node) error {
			path := b.Path()
			if _, ok := found.Load(path); ok || pw.isCovered(path) {
				return nil
			}
			pw.cover(path)
			pw.spawn(treefs.ResolvePath(aRoot, path), b, w.Depth)
			return nil
		})
	}

	err := pw.wait()
	return errors.Join(listErr, err)
}

func serialized(emit EmitFunc) EmitFunc {
	var mu sync.Mutex
	return func(a, b treefs.Node) error {
		mu.Lock()
		defer mu.Unlock()
		return emit(a, b)
	}
}

type pairWalker struct {
	ctx     context.Context
	depth   int
	leaf    EmitFunc
	group   *errgroup.Group
	covered *xsync.Map[string, struct{}]

	mu   sync.Mutex
	errs []error
}

func (w Walker) start(ctx context.Context, leaf EmitFunc) *pairWalker {
	pw := &pairWalker{
		ctx:     ctx,
		depth:   w.Depth,
		leaf:    leaf,
		covered: xsync.NewMap[string, struct{}](),
	}
	if w.Parallelism > 1 {
		pw.group = &errgroup.Group{}
		pw.group.SetLimit(w.Parallelism)
	}
	return pw
}

func (pw *pairWalker) wait() error {
	if pw.group != nil {
		_ = pw.group.Wait() // goroutines report through fail
	}
	pw.mu.Lock()
	defer pw.mu.Unlock()
	return errors.Join(pw.errs...)
}

func (pw *pairWalker) fail(err error) {
	pw.mu.Lock()
	pw.errs = append(pw.errs, err)
	pw.mu.Unlock()
}

// cover records path as fully handled when the walk has no depth limit.
func (pw *pairWalker) cover(path string) {
	if pw.depth == Unlimited {
		pw.covered.Store(path, struct{}{})
	}
}

func (pw *pairWalker) isCovered(path string) bool {
	for p := path; ; p = pathutil.Dir(p) {
		if _, ok := pw.covered.Load(p); ok {
			return true
		}
		if p == pathutil.Separator || p == "" {
			return false
		}
	}
}

// spawn pairs a and b on a free worker, or inline when none is free so that
// recursion never waits on its own descendants.
func (pw *pairWalker) spawn(a, b treefs.Node, depth int) {
	if pw.group != nil && pw.group.TryGo(func() error {
		pw.pair(a, b, depth)
		return nil
	}) {
		return
	}
	pw.pair(a, b, depth)
}

func (pw *pairWalker) pair(a, b treefs.Node, depth int) {
	if err := pw.ctx.Err(); err != nil {
		pw.fail(err)
		return
	}

	aChildren, bChildren, descend, err := pw.descend(a, b, depth)
	if err != nil {
		pw.fail(err)
		return
	}
	if !descend {
		if err := pw.leaf(a, b); err != nil {
			pw.fail(err)
		}
		return
	}

	next := depth
	if depth != Unlimited {
		next = depth - 1
	}
	seen := make(map[string]struct{}, len(aChildren))
	for _, ac := range aChildren {
		seen[ac.Name()] = struct{}{}
		pw.spawn(ac, b.Child(ac.Name()), next)
	}
	for _, bc := range bChildren {
		if _, ok := seen[bc.Name()]; !ok {
			pw.spawn(a.Child(bc.Name()), bc, next)
		}
	}
}

// descend decides whether a and b are descended into, returning their children if so.
func (pw *pairWalker) descend(a, b treefs.Node, depth int) ([]treefs.Node, []treefs.Node, bool, error) {
	if depth == 0 {
		return nil, nil, false, nil
	}
	if ok, err := isDir(pw.ctx, a); err != nil || !ok {
		return nil, nil, false, err
	}
	if ok, err := isDir(pw.ctx, b); err != nil || !ok {
		return nil, nil, false, err
	}
	aChildren, err := children(pw.ctx, a)
	if err != nil {
		return nil, nil, false, err
	}
	bChildren, err := children(pw.ctx, b)
	if err != nil {
		return nil, nil, false, err
	}
	if len(aChildren) == 0 && len(bChildren) == 0 {
		return nil, nil, false, nil
	}
	return aChildren, bChildren, true, nil
}

// isDir treats a node that turns out not to exist as a non-directory.
func isDir(ctx context.Context, n treefs.Node) (bool, error) {
	ok, err := n.IsDir(ctx)
	if treefs.IsNotFound(err) {
		return false, nil
	}
	return ok, err
}

// children treats a directory that turns out not to exist as empty.
func children(ctx context.Context, n treefs.Node) ([]treefs.Node, error) {
	out, err := n.Children(ctx)
	if treefs.IsNotFound(err) {
		return nil, nil
	}
	return out, err
}

func exists(ctx context.Context, n treefs.Node) (bool, error) {
	ok, err := n.Exists(ctx)
	if treefs.IsNotFound(err) {
		return false, nil
	}
	return ok, err
}
