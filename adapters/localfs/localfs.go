// Package localfs exposes a directory of a go-billy filesystem as a tree.
package localfs

import (
	"bufio"
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path"
	"sort"
	"strings"

	"github.com/brettbedarf/treefs"
	"github.com/brettbedarf/treefs/config"
	"github.com/brettbedarf/treefs/internal/util"
	"github.com/brettbedarf/treefs/pattern"
	"github.com/go-git/go-billy/v5"
	"github.com/go-git/go-billy/v5/osfs"
	billyutil "github.com/go-git/go-billy/v5/util"
)

// IgnoreFile lists extra ignore globs at the root of a local tree, one per line.
const IgnoreFile = ".treeignore"

const (
	dirPerm  os.FileMode = 0o755
	filePerm os.FileMode = 0o644
)

// Tree holds what every entry of one local tree shares.
type Tree struct {
	fs     billy.Filesystem
	ignore []*pattern.Pattern
}

// New roots a tree at the directory cfg.Path of the host filesystem.
func New(cfg config.Local) (*Entry, error) {
	p := cfg.Path
	if p == "" {
		p = config.DefaultLocalPath
	}
	return NewFromFilesystem(osfs.New(p), p, cfg.Ignore)
}

// NewFromFilesystem roots a tree at the base of fsys. label prefixes printable
// paths. ignore globs are combined with those of the tree's ignore file.
func NewFromFilesystem(fsys billy.Filesystem, label string, ignore []string) (*Entry, error) {
	globs := append([]string(nil), ignore...)
	fromFile, err := readIgnoreFile(fsys)
	if err != nil {
		return nil, err
	}
	globs = append(globs, fromFile...)

	t := &Tree{fs: fsys}
	for _, g := range globs {
		p, err := pattern.New(g)
		if err != nil {
			return nil, fmt.Errorf("localfs: invalid ignore pattern: %w", err)
		}
		t.ignore = append(t.ignore, p)
	}
	return &Entry{Base: treefs.NewRootBase(label), tree: t}, nil
}

func readIgnoreFile(fsys billy.Filesystem) ([]string, error) {
	data, err := billyutil.ReadFile(fsys, IgnoreFile)
	if errors.Is(err, os.ErrNotExist) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("localfs: read %s: %w", IgnoreFile, err)
	}
	var globs []string
	sc := bufio.NewScanner(bytes.NewReader(data))
	for sc.Scan() {
		line := strings.TrimSpace(sc.Text())
		if line == "" || strings.HasPrefix(line, "#") {
			continue
		}
		globs = append(globs, line)
	}
	return globs, sc.Err()
}

// ignored reports whether the entry at rel, relative to the tree root, is hidden.
// Absolute globs match "/"+rel, globs with a separator match rel and the others
// match the base name.
func (t *Tree) ignored(rel string) bool {
	name := path.Base(rel)
	if strings.HasPrefix(name, ".") {
		return true
	}
	for _, p := range t.ignore {
		switch {
		case p.IsAbsolute():
			if p.Match("/" + rel) {
				return true
			}
		case strings.Contains(p.String(), "/"):
			if p.Match(rel) {
				return true
			}
		default:
			if p.Match(name) {
				return true
			}
		}
	}
	return false
}

// Entry is a file or directory of a local tree.
type Entry struct {
	treefs.Base
	tree     *Tree
	rel      string
	info     treefs.Lazy[os.FileInfo]
	children treefs.Lazy[[]treefs.Node]
}

var (
	_ treefs.Node           = (*Entry)(nil)
	_ treefs.ChildCreator   = (*Entry)(nil)
	_ treefs.ChildValidator = (*Entry)(nil)
)

func (e *Entry) child(name string) *Entry {
	return &Entry{
		Base: treefs.NewBase(e, name),
		tree: e.tree,
		rel:  path.Join(e.rel, name),
	}
}

// fsPath is the billy path of the entry, "." for the root
func (e *Entry) fsPath() string {
	if e.rel == "" {
		return "."
	}
	return e.rel
}

// stat returns nil info for a missing entry.
func (e *Entry) stat() (os.FileInfo, error) {
	return e.info.Get(func() (os.FileInfo, error) {
		info, err := e.tree.fs.Stat(e.fsPath())
		if errors.Is(err, os.ErrNotExist) {
			return nil, nil
		}
		if err != nil {
			return nil, treefs.NewOperationFailed(treefs.OpRead, e, err)
		}
		return info, nil
	})
}

func (e *Entry) Exists(ctx context.Context) (bool, error) {
	info, err := e.stat()
	return info != nil, err
}

func (e *Entry) IsDir(ctx context.Context) (bool, error) {
	info, err := e.stat()
	if err != nil || info == nil {
		return false, err
	}
	return info.IsDir(), nil
}

func (e *Entry) Children(ctx context.Context) ([]treefs.Node, error) {
	return e.children.Get(func() ([]treefs.Node, error) {
		infos, err := e.tree.fs.ReadDir(e.fsPath())
		if errors.Is(err, os.ErrNotExist) {
			return nil, treefs.NewNotFound(e, err)
		}
		if err != nil {
			return nil, treefs.NewOperationFailed(treefs.OpList, e, err)
		}
		sort.Slice(infos, func(i, j int) bool { return infos[i].Name() < infos[j].Name() })

		out := make([]treefs.Node, 0, len(infos))
		for _, info := range infos {
			c := e.child(info.Name())
			if e.tree.ignored(c.rel) {
				continue
			}
			c.info.Set(info)
			out = append(out, c)
		}
		return out, nil
	})
}

func (e *Entry) Child(name string) treefs.Node {
	c := e.child(name)
	if e.tree.ignored(c.rel) {
		return treefs.Nonexistent(e, name)
	}
	return c
}

func (e *Entry) Read(ctx context.Context) ([]byte, error) {
	data, err := billyutil.ReadFile(e.tree.fs, e.fsPath())
	if errors.Is(err, os.ErrNotExist) {
		return nil, treefs.NewNotFound(e, err)
	}
	if err != nil {
		return nil, treefs.NewOperationFailed(treefs.OpRead, e, err)
	}
	return data, nil
}

func (e *Entry) Write(ctx context.Context, content []byte) error {
	if ok, err := e.Exists(ctx); err != nil {
		return err
	} else if !ok {
		return treefs.NewNotFound(e, nil)
	}
	if err := billyutil.WriteFile(e.tree.fs, e.fsPath(), content, filePerm); err != nil {
		return treefs.NewOperationFailed(treefs.OpWrite, e, err)
	}
	return nil
}

func (e *Entry) Delete(ctx context.Context, recurse bool) error {
	if treefs.IsRoot(e) {
		return treefs.NewOperationNotAllowed(treefs.OpDelete, e, "cannot delete the root")
	}
	info, err := e.stat()
	if err != nil {
		return err
	}
	if info == nil {
		return treefs.NewNotFound(e, nil)
	}

	logger := util.GetLogger("localfs")
	if info.IsDir() {
		if recurse {
			logger.Debug().Str("path", e.rel).Msg("Removing directory tree")
			if err := billyutil.RemoveAll(e.tree.fs, e.rel); err != nil {
				return treefs.NewOperationFailed(treefs.OpDelete, e, err)
			}
			return nil
		}
		infos, err := e.tree.fs.ReadDir(e.rel)
		if err != nil {
			return treefs.NewOperationFailed(treefs.OpDelete, e, err)
		}
		if len(infos) > 0 {
			return &treefs.MustDeleteRecursivelyError{Path: e.PrintablePath()}
		}
	}
	logger.Debug().Str("path", e.rel).Msg("Removing")
	if err := e.tree.fs.Remove(e.rel); err != nil {
		return treefs.NewOperationFailed(treefs.OpDelete, e, err)
	}
	return nil
}

func (e *Entry) CanHaveChild(name string, isDir bool) bool {
	return !e.tree.ignored(path.Join(e.rel, name))
}

func (e *Entry) CreateDir(ctx context.Context, name string) (treefs.Node, error) {
	c := e.child(name)
	if err := e.tree.fs.MkdirAll(c.rel, dirPerm); err != nil {
		return nil, treefs.NewOperationFailed(treefs.OpCreate, c, err)
	}
	return c, nil
}

func (e *Entry) CreateFile(ctx context.Context, name string, content []byte) (treefs.Node, error) {
	c := e.child(name)
	if err := billyutil.WriteFile(e.tree.fs, c.rel, content, filePerm); err != nil {
		return nil, treefs.NewOperationFailed(treefs.OpCreate, c, err)
	}
	return c, nil
}

// Provider builds local roots from "local" source definitions, which carry the
// fields of [config.Local].
type Provider struct{}

var _ treefs.RootProvider = Provider{}

func (Provider) NewRoot(raw []byte) (treefs.Node, error) {
	var cfg config.Local
	if err := json.Unmarshal(raw, &cfg); err != nil {
		return nil, fmt.Errorf("localfs: invalid source definition: %w", err)
	}
	return New(cfg)
}
