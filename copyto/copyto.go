// Package copyto makes one tree match another under a pattern: it creates what
// the destination lacks, overwrites files whose content differs and, when asked
// to purge, deletes what the source lacks.
package copyto

import (
	"context"
	"errors"
	"fmt"
	"sync"

	"github.com/brettbedarf/treefs"
	"github.com/brettbedarf/treefs/diff"
	"github.com/brettbedarf/treefs/internal/metrics"
	"github.com/brettbedarf/treefs/internal/util"
	"github.com/brettbedarf/treefs/pathutil"
	"github.com/brettbedarf/treefs/pattern"
	"github.com/puzpuzpuz/xsync/v4"
	"github.com/rs/zerolog"
	"golang.org/x/sync/errgroup"
)

// Unlimited recursion depth
const Unlimited = diff.Unlimited

// Options configures [CopyTo].
type Options struct {
	// Depth limits recursion below each match, [Unlimited] for none
	Depth int
	// Purge deletes destination entries missing from the source
	Purge bool
	// DryRun reports what would change without changing anything
	DryRun bool
	// Force overwrites files without comparing their content
	Force bool
	// Parallelism above 1 copies sibling subtrees concurrently
	Parallelism int
}

// ConflictError reports a path that is a directory on one side and a file on the other.
type ConflictError struct {
	Path     string
	SrcIsDir bool
}

func (e *ConflictError) Error() string {
	if e.SrcIsDir {
		return fmt.Sprintf("%s: cannot copy a directory over a file", e.Path)
	}
	return fmt.Sprintf("%s: cannot copy a file over a directory", e.Path)
}

// CopyTo copies every match of p from src to dest, calling report for each change
// made (or, in a dry run, that would be made). report is never called
// concurrently and may be nil.
//
// A failure on one entry is logged and collected; the copy carries on with the
// other entries and returns the collected errors joined at the end.
func CopyTo(ctx context.Context, p *pattern.Pattern, src, dest treefs.Node, opts Options, report func(Event)) error {
	srcMatches, err := treefs.ListAll(ctx, src, p)
	if err != nil {
		return err
	}
	destMatches, err := treefs.ListAll(ctx, dest, p)
	if err != nil {
		return err
	}

	c := newCopier(ctx, opts, report)

	// pair every match with the other side, skipping matches already inside a
	// pair that is copied without a depth limit
	found := make(map[string]bool, len(srcMatches))
	var pairs [][2]treefs.Node
	for _, s := range srcMatches {
		found[s.Path()] = true
		if !c.covers(s.Path()) {
			pairs = append(pairs, [2]treefs.Node{s, treefs.ResolvePath(dest, s.Path())})
		}
	}
	for _, d := range destMatches {
		if !found[d.Path()] && !c.covers(d.Path()) {
			pairs = append(pairs, [2]treefs.Node{treefs.ResolvePath(src, d.Path()), d})
		}
	}

	if path, ok := p.ExactPath(); ok {
		if err := c.requireMatch(path, pairs); err != nil {
			return err
		}
	}

	for _, pair := range pairs {
		c.spawn(pair[0], pair[1], opts.Depth)
	}
	return c.wait()
}

type copier struct {
	ctx    context.Context
	opts   Options
	logger zerolog.Logger
	group  *errgroup.Group

	reportMu sync.Mutex
	report   func(Event)

	// covered holds the paths of top level pairs copied without a depth limit
	covered map[string]bool
	// planned holds directories a dry run pretends to have created
	planned *xsync.Map[string, struct{}]
	// parents serializes creation of missing parent directories
	parents sync.Mutex

	errMu sync.Mutex
	errs  []error
}

func newCopier(ctx context.Context, opts Options, report func(Event)) *copier {
	c := &copier{
		ctx:     ctx,
		opts:    opts,
		logger:  util.GetLogger("copyto"),
		report:  report,
		covered: map[string]bool{},
		planned: xsync.NewMap[string, struct{}](),
	}
	if opts.Parallelism > 1 {
		c.group = &errgroup.Group{}
		c.group.SetLimit(opts.Parallelism)
	}
	return c
}

// covers reports whether path lies inside a pair already selected, and
// otherwise records it.
func (c *copier) covers(path string) bool {
	for p := path; ; p = pathutil.Dir(p) {
		if c.covered[p] {
			return true
		}
		if p == pathutil.Separator || p == "" {
			break
		}
	}
	if c.opts.Depth == Unlimited {
		c.covered[path] = true
	}
	return false
}

func (c *copier) requireMatch(path string, pairs [][2]treefs.Node) error {
	for _, pair := range pairs {
		for _, n := range pair {
			ok, err := exists(c.ctx, n)
			if err != nil {
				return err
			}
			if ok {
				return nil
			}
		}
	}
	return &treefs.NotFoundError{Path: path, Err: diff.ErrNoMatch}
}

func (c *copier) emit(e Event) {
	if !e.DryRun && e.Action != ActionSkip {
		metrics.RecordCopyAction(string(e.Action))
	}
	c.logger.Info().Str("action", string(e.Action)).Bool("dry_run", e.DryRun).Msg(e.Path)
	if c.report == nil {
		return
	}
	c.reportMu.Lock()
	defer c.reportMu.Unlock()
	c.report(e)
}

func (c *copier) fail(err error) {
	c.logger.Error().Err(err).Msg("Copy failed")
	c.errMu.Lock()
	c.errs = append(c.errs, err)
	c.errMu.Unlock()
}

func (c *copier) wait() error {
	if c.group != nil {
		_ = c.group.Wait() // goroutines report through fail
	}
	c.errMu.Lock()
	defer c.errMu.Unlock()
	return errors.Join(c.errs...)
}

// spawn copies on a free worker, or inline when none is free.
func (c *copier) spawn(src, dest treefs.Node, depth int) {
	if c.group != nil && c.group.TryGo(func() error {
		c.copy(src, dest, depth)
		return nil
	}) {
		return
	}
	c.copy(src, dest, depth)
}

func (c *copier) copy(src, dest treefs.Node, depth int) {
	if err := c.ctx.Err(); err != nil {
		c.fail(err)
		return
	}

	srcExists, err := exists(c.ctx, src)
	if err != nil {
		c.fail(err)
		return
	}
	destExists, err := exists(c.ctx, dest)
	if err != nil {
		c.fail(err)
		return
	}

	switch {
	case !srcExists && !destExists:
		return
	case !srcExists:
		c.purge(dest)
	case !destExists:
		c.create(src, dest, depth)
	default:
		c.merge(src, dest, depth)
	}
}

func (c *copier) merge(src, dest treefs.Node, depth int) {
	srcDir, err := src.IsDir(c.ctx)
	if err != nil {
		c.fail(err)
		return
	}
	destDir, err := dest.IsDir(c.ctx)
	if err != nil {
		c.fail(err)
		return
	}

	switch {
	case srcDir != destDir:
		c.emit(Event{Action: ActionConflict, Path: dest.Path(), DryRun: c.opts.DryRun, SrcIsDir: srcDir})
		c.fail(&ConflictError{Path: dest.PrintablePath(), SrcIsDir: srcDir})
	case srcDir:
		c.copyChildren(src, dest, depth)
	default:
		c.update(src, dest)
	}
}

func (c *copier) copyChildren(src, dest treefs.Node, depth int) {
	if depth == 0 {
		return
	}
	next := depth
	if depth != Unlimited {
		next = depth - 1
	}

	srcChildren, err := src.Children(c.ctx)
	if err != nil {
		c.fail(err)
		return
	}
	seen := make(map[string]struct{}, len(srcChildren))
	for _, child := range srcChildren {
		seen[child.Name()] = struct{}{}
		c.spawn(child, dest.Child(child.Name()), next)
	}

	if !c.opts.Purge || c.isPlanned(dest) {
		return
	}
	destChildren, err := dest.Children(c.ctx)
	if err != nil {
		if !treefs.IsNotFound(err) {
			c.fail(err)
		}
		return
	}
	for _, child := range destChildren {
		if _, ok := seen[child.Name()]; !ok {
			c.spawn(src.Child(child.Name()), child, next)
		}
	}
}

func (c *copier) purge(dest treefs.Node) {
	if !c.opts.Purge {
		c.logger.Debug().Str("path", dest.Path()).Msg("Only in destination, purge is off")
		return
	}
	parent := dest.Parent()
	if parent == nil {
		c.emit(Event{Action: ActionSkip, Path: dest.Path(), DryRun: c.opts.DryRun, Reason: "cannot delete the root"})
		return
	}
	isDir, err := dest.IsDir(c.ctx)
	if err != nil {
		c.fail(err)
		return
	}
	if !treefs.CanHaveChild(parent, dest.Name(), isDir) {
		c.logger.Debug().Str("path", dest.Path()).Msg("Not a valid entry, leaving it")
		return
	}

	if !c.opts.DryRun {
		if err := dest.Delete(c.ctx, true); err != nil {
			if !treefs.IsNotFound(err) {
				c.fail(err)
			}
			return
		}
	}
	c.emit(Event{Action: ActionDelete, Path: dest.Path(), DryRun: c.opts.DryRun, SrcIsDir: isDir})
}

func (c *copier) create(src, dest treefs.Node, depth int) {
	isDir, err := src.IsDir(c.ctx)
	if err != nil {
		c.fail(err)
		return
	}

	parent, err := c.ensureDir(dest.Parent())
	if err != nil {
		c.fail(err)
		return
	}
	if !treefs.CanHaveChild(parent, dest.Name(), isDir) {
		c.emit(Event{Action: ActionSkip, Path: dest.Path(), DryRun: c.opts.DryRun, Reason: "not a valid entry here"})
		return
	}

	if c.opts.DryRun {
		if isDir {
			c.planned.Store(dest.Path(), struct{}{})
		}
		c.emit(Event{Action: ActionCreate, Path: dest.Path(), DryRun: true, SrcIsDir: isDir})
		if isDir {
			c.copyChildren(src, dest, depth)
		}
		return
	}

	creator, ok := parent.(treefs.ChildCreator)
	if !ok {
		c.fail(treefs.NewOperationNotAllowed(treefs.OpCreate, dest, "parent cannot create children"))
		return
	}

	if isDir {
		created, err := creator.CreateDir(c.ctx, dest.Name())
		if err != nil {
			c.fail(err)
			return
		}
		c.emit(Event{Action: ActionCreate, Path: dest.Path(), SrcIsDir: true})
		c.copyChildren(src, created, depth)
		return
	}

	content, err := src.Read(c.ctx)
	if err != nil {
		c.fail(err)
		return
	}
	if _, err := creator.CreateFile(c.ctx, dest.Name(), content); err != nil {
		c.fail(err)
		return
	}
	c.emit(Event{Action: ActionCreate, Path: dest.Path()})
}

func (c *copier) update(src, dest treefs.Node) {
	var content []byte
	if !c.opts.Force {
		same, data, err := diff.SameContent(c.ctx, src, dest)
		if err != nil {
			c.fail(err)
			return
		}
		if same {
			c.logger.Trace().Str("path", dest.Path()).Msg("Up to date")
			return
		}
		content = data
	}

	if c.opts.DryRun {
		c.emit(Event{Action: ActionUpdate, Path: dest.Path(), DryRun: true})
		return
	}
	if content == nil {
		data, err := src.Read(c.ctx)
		if err != nil {
			c.fail(err)
			return
		}
		content = data
	}
	if err := dest.Write(c.ctx, content); err != nil {
		c.fail(err)
		return
	}
	c.emit(Event{Action: ActionUpdate, Path: dest.Path()})
}

// ensureDir returns dir, creating it and any missing ancestors first.
// A dry run only records the directories it would create.
func (c *copier) ensureDir(dir treefs.Node) (treefs.Node, error) {
	c.parents.Lock()
	defer c.parents.Unlock()
	return c.ensureDirLocked(dir)
}

func (c *copier) ensureDirLocked(dir treefs.Node) (treefs.Node, error) {
	if c.isPlanned(dir) {
		return dir, nil
	}
	ok, err := exists(c.ctx, dir)
	if err != nil {
		return nil, err
	}
	if ok {
		isDir, err := dir.IsDir(c.ctx)
		if err != nil {
			return nil, err
		}
		if !isDir {
			return nil, &ConflictError{Path: dir.PrintablePath(), SrcIsDir: true}
		}
		return dir, nil
	}
	if dir.Parent() == nil {
		return nil, treefs.NewNotFound(dir, nil)
	}

	parent, err := c.ensureDirLocked(dir.Parent())
	if err != nil {
		return nil, err
	}
	if c.opts.DryRun {
		c.planned.Store(dir.Path(), struct{}{})
		c.emit(Event{Action: ActionCreate, Path: dir.Path(), DryRun: true, SrcIsDir: true})
		return dir, nil
	}
	creator, ok := parent.(treefs.ChildCreator)
	if !ok {
		return nil, treefs.NewOperationNotAllowed(treefs.OpCreate, dir, "parent cannot create children")
	}
	created, err := creator.CreateDir(c.ctx, dir.Name())
	if err != nil {
		return nil, err
	}
	c.emit(Event{Action: ActionCreate, Path: dir.Path(), SrcIsDir: true})
	return created, nil
}

func (c *copier) isPlanned(n treefs.Node) bool {
	if !c.opts.DryRun {
		return false
	}
	_, ok := c.planned.Load(n.Path())
	return ok
}

func exists(ctx context.Context, n treefs.Node) (bool, error) {
	ok, err := n.Exists(ctx)
	if treefs.IsNotFound(err) {
		return false, nil
	}
	return ok, err
}
