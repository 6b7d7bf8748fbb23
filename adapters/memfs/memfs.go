// Package memfs is an in-memory tree. Every node counts the calls made to it so
// tests can assert how much work a walk did.
package memfs

import (
	"context"
	"crypto/md5"
	"encoding/hex"
	"fmt"
	"sort"
	"sync"
	"sync/atomic"

	"github.com/brettbedarf/treefs"
	"github.com/puzpuzpuz/xsync/v4"
)

// Stats counts calls across a whole tree
type Stats struct {
	Reads         atomic.Int64
	Writes        atomic.Int64
	Deletes       atomic.Int64
	ChildrenCalls atomic.Int64
	ExistsCalls   atomic.Int64
	IsDirCalls    atomic.Int64
	Checksums     atomic.Int64
}

type options struct {
	checksums bool
}

// Option configures a tree built with [New].
type Option func(*options)

// WithChecksums makes every file publish an MD5 checksum through [treefs.Checksummer].
func WithChecksums() Option {
	return func(o *options) { o.checksums = true }
}

// New builds a tree labelled label from tree. Map values become directories, string
// and []byte values become files. Map keys are added in sorted order.
func New(label string, tree map[string]any, opts ...Option) (*Dir, error) {
	o := &options{}
	for _, opt := range opts {
		opt(o)
	}
	root := &Dir{
		Base:  treefs.NewRootBase(label),
		stats: &Stats{},
		opts:  o,
		index: xsync.NewMap[string, treefs.Node](),
	}
	if err := root.fill(tree); err != nil {
		return nil, err
	}
	return root, nil
}

// MustNew is like [New] but panics on error.
func MustNew(label string, tree map[string]any, opts ...Option) *Dir {
	d, err := New(label, tree, opts...)
	if err != nil {
		panic(err)
	}
	return d
}

// Dir is an in-memory directory.
type Dir struct {
	treefs.Base
	stats   *Stats
	opts    *options
	mu      sync.RWMutex
	entries []treefs.Node // insertion order
	index   *xsync.Map[string, treefs.Node]
	deleted atomic.Bool
}

var (
	_ treefs.Node         = (*Dir)(nil)
	_ treefs.ChildCreator = (*Dir)(nil)
)

func (d *Dir) fill(tree map[string]any) error {
	names := make([]string, 0, len(tree))
	for name := range tree {
		names = append(names, name)
	}
	sort.Strings(names)

	for _, name := range names {
		switch v := tree[name].(type) {
		case map[string]any:
			sub := d.newDir(name)
			if err := sub.fill(v); err != nil {
				return err
			}
			d.add(sub)
		case string:
			d.add(d.newFile(name, []byte(v)))
		case []byte:
			d.add(d.newFile(name, v))
		case nil:
			d.add(d.newFile(name, nil))
		default:
			return fmt.Errorf("memfs: unsupported value %T for %q", v, name)
		}
	}
	return nil
}

func (d *Dir) newDir(name string) *Dir {
	return &Dir{
		Base:  treefs.NewBase(d, name),
		stats: d.stats,
		opts:  d.opts,
		index: xsync.NewMap[string, treefs.Node](),
	}
}

func (d *Dir) newFile(name string, content []byte) treefs.Node {
	f := &File{Base: treefs.NewBase(d, name), stats: d.stats, content: content}
	if d.opts.checksums {
		return &ChecksumFile{File: f}
	}
	return f
}

func (d *Dir) add(n treefs.Node) {
	d.mu.Lock()
	defer d.mu.Unlock()
	if _, exists := d.index.Load(n.Name()); !exists {
		d.entries = append(d.entries, n)
	}
	d.index.Store(n.Name(), n)
}

func (d *Dir) remove(name string) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.index.Delete(name)
	for i, n := range d.entries {
		if n.Name() == name {
			d.entries = append(d.entries[:i], d.entries[i+1:]...)
			return
		}
	}
}

// Stats returns the counters shared by every node of the tree.
func (d *Dir) Stats() *Stats {
	return d.stats
}

func (d *Dir) Exists(ctx context.Context) (bool, error) {
	d.stats.ExistsCalls.Add(1)
	return !d.deleted.Load(), nil
}

func (d *Dir) IsDir(ctx context.Context) (bool, error) {
	d.stats.IsDirCalls.Add(1)
	return !d.deleted.Load(), nil
}

func (d *Dir) Children(ctx context.Context) ([]treefs.Node, error) {
	d.stats.ChildrenCalls.Add(1)
	if d.deleted.Load() {
		return nil, treefs.NewNotFound(d, nil)
	}
	d.mu.RLock()
	defer d.mu.RUnlock()
	out := make([]treefs.Node, len(d.entries))
	copy(out, d.entries)
	return out, nil
}

func (d *Dir) Child(name string) treefs.Node {
	if n, ok := d.index.Load(name); ok {
		return n
	}
	return treefs.Nonexistent(d, name)
}

func (d *Dir) Read(ctx context.Context) ([]byte, error) {
	return nil, treefs.NewOperationNotAllowed(treefs.OpRead, d, "is a directory")
}

func (d *Dir) Write(ctx context.Context, content []byte) error {
	return treefs.NewOperationNotAllowed(treefs.OpWrite, d, "is a directory")
}

func (d *Dir) Delete(ctx context.Context, recurse bool) error {
	d.stats.Deletes.Add(1)
	if d.deleted.Load() {
		return treefs.NewNotFound(d, nil)
	}
	d.mu.RLock()
	empty := len(d.entries) == 0
	d.mu.RUnlock()
	if !recurse && !empty {
		return &treefs.MustDeleteRecursivelyError{Path: d.PrintablePath()}
	}
	parent, ok := d.Parent().(*Dir)
	if !ok {
		return treefs.NewOperationNotAllowed(treefs.OpDelete, d, "cannot delete the root")
	}
	parent.remove(d.Name())
	d.deleted.Store(true)
	return nil
}

func (d *Dir) CreateDir(ctx context.Context, name string) (treefs.Node, error) {
	if existing, ok := d.index.Load(name); ok {
		if _, isDir := existing.(*Dir); isDir {
			return existing, nil
		}
		return nil, treefs.NewOperationFailed(treefs.OpCreate, existing, fmt.Errorf("a file already exists"))
	}
	sub := d.newDir(name)
	d.add(sub)
	return sub, nil
}

func (d *Dir) CreateFile(ctx context.Context, name string, content []byte) (treefs.Node, error) {
	if existing, ok := d.index.Load(name); ok {
		return nil, treefs.NewOperationFailed(treefs.OpCreate, existing, fmt.Errorf("already exists"))
	}
	d.stats.Writes.Add(1)
	f := d.newFile(name, append([]byte(nil), content...))
	d.add(f)
	return f, nil
}

// File is an in-memory file.
type File struct {
	treefs.Base
	stats   *Stats
	mu      sync.RWMutex
	content []byte
	deleted atomic.Bool
}

var _ treefs.Node = (*File)(nil)

func (f *File) Exists(ctx context.Context) (bool, error) {
	f.stats.ExistsCalls.Add(1)
	return !f.deleted.Load(), nil
}

func (f *File) IsDir(ctx context.Context) (bool, error) {
	f.stats.IsDirCalls.Add(1)
	return false, nil
}

func (f *File) Children(ctx context.Context) ([]treefs.Node, error) {
	f.stats.ChildrenCalls.Add(1)
	return nil, treefs.NewOperationNotAllowed(treefs.OpList, f, "not a directory")
}

func (f *File) Child(name string) treefs.Node {
	return treefs.Nonexistent(f, name)
}

func (f *File) Read(ctx context.Context) ([]byte, error) {
	f.stats.Reads.Add(1)
	if f.deleted.Load() {
		return nil, treefs.NewNotFound(f, nil)
	}
	f.mu.RLock()
	defer f.mu.RUnlock()
	return append([]byte(nil), f.content...), nil
}

func (f *File) Write(ctx context.Context, content []byte) error {
	f.stats.Writes.Add(1)
	if f.deleted.Load() {
		return treefs.NewNotFound(f, nil)
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	f.content = append([]byte(nil), content...)
	return nil
}

func (f *File) Delete(ctx context.Context, recurse bool) error {
	f.stats.Deletes.Add(1)
	if f.deleted.Load() {
		return treefs.NewNotFound(f, nil)
	}
	if parent, ok := f.Parent().(*Dir); ok {
		parent.remove(f.Name())
	}
	f.deleted.Store(true)
	return nil
}

// ChecksumFile is a [File] that publishes the MD5 digest of its content.
type ChecksumFile struct {
	*File
}

var _ treefs.Checksummer = (*ChecksumFile)(nil)

func (f *ChecksumFile) Checksum(ctx context.Context) (string, error) {
	f.stats.Checksums.Add(1)
	f.mu.RLock()
	defer f.mu.RUnlock()
	sum := md5.Sum(f.content)
	return hex.EncodeToString(sum[:]), nil
}
