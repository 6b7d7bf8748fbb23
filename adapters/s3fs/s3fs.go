// Package s3fs exposes the objects below a key prefix of an S3 compatible bucket
// as a tree. Keys are split on "/"; a directory exists while any key lies below it.
package s3fs

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io/fs"
	"sort"
	"strings"

	"github.com/brettbedarf/treefs"
	"github.com/brettbedarf/treefs/config"
	"github.com/brettbedarf/treefs/internal/util"
	"github.com/brettbedarf/treefs/pathutil"
)

type kind int

const (
	kindMissing kind = iota
	kindFile
	kindDir
)

type resolved struct {
	kind kind
	etag string
}

// Entry is an object or a key prefix.
type Entry struct {
	treefs.Base
	store    Store
	key      string // full object key, "" for a root without prefix
	state    treefs.Lazy[resolved]
	children treefs.Lazy[[]treefs.Node]
}

var (
	_ treefs.Node         = (*Entry)(nil)
	_ treefs.ChildCreator = (*Entry)(nil)
	_ treefs.Checksummer  = (*Entry)(nil)
)

// New roots a tree at cfg.Prefix of the configured bucket.
func New(cfg config.ObjectStore) (*Entry, error) {
	store, err := NewMinioStore(cfg)
	if err != nil {
		return nil, err
	}
	label := "s3://" + pathutil.Join(cfg.Bucket, cfg.Prefix) + "/"
	return NewFromStore(store, label, cfg.Prefix), nil
}

// NewFromStore roots a tree at prefix of store.
func NewFromStore(store Store, label, prefix string) *Entry {
	e := &Entry{
		Base:  treefs.NewRootBase(label),
		store: store,
		key:   strings.Trim(prefix, "/"),
	}
	e.state.Set(resolved{kind: kindDir})
	return e
}

func (e *Entry) child(name string) *Entry {
	key := name
	if e.key != "" {
		key = e.key + "/" + name
	}
	return &Entry{Base: treefs.NewBase(e, name), store: e.store, key: key}
}

// dirPrefix is the listing prefix of the entry as a directory.
func (e *Entry) dirPrefix() string {
	if e.key == "" {
		return ""
	}
	return e.key + "/"
}

// resolve stats the key and falls back to listing it as a prefix.
func (e *Entry) resolve(ctx context.Context) (resolved, error) {
	return e.state.Get(func() (resolved, error) {
		info, err := e.store.Stat(ctx, e.key)
		if err == nil {
			return resolved{kind: kindFile, etag: info.ETag}, nil
		}
		if !errors.Is(err, fs.ErrNotExist) {
			return resolved{}, treefs.NewOperationFailed(treefs.OpRead, e, err)
		}
		children, err := e.Children(ctx)
		if treefs.IsNotFound(err) {
			return resolved{kind: kindMissing}, nil
		}
		if err != nil {
			return resolved{}, err
		}
		if len(children) == 0 {
			return resolved{kind: kindMissing}, nil
		}
		return resolved{kind: kindDir}, nil
	})
}

func (e *Entry) Exists(ctx context.Context) (bool, error) {
	r, err := e.resolve(ctx)
	return r.kind != kindMissing, err
}

func (e *Entry) IsDir(ctx context.Context) (bool, error) {
	r, err := e.resolve(ctx)
	return r.kind == kindDir, err
}

func (e *Entry) Children(ctx context.Context) ([]treefs.Node, error) {
	return e.children.Get(func() ([]treefs.Node, error) {
		prefix := e.dirPrefix()
		infos, err := e.store.List(ctx, prefix, false)
		if err != nil {
			return nil, treefs.NewOperationFailed(treefs.OpList, e, err)
		}
		if len(infos) == 0 && !treefs.IsRoot(e) {
			return nil, treefs.NewNotFound(e, nil)
		}

		out := make([]treefs.Node, 0, len(infos))
		for _, info := range infos {
			name := strings.TrimSuffix(strings.TrimPrefix(info.Key, prefix), "/")
			if name == "" || strings.Contains(name, "/") {
				continue
			}
			c := e.child(name)
			if info.IsPrefix {
				c.state.Set(resolved{kind: kindDir})
			} else {
				c.state.Set(resolved{kind: kindFile, etag: info.ETag})
			}
			out = append(out, c)
		}
		sort.Slice(out, func(i, j int) bool { return out[i].Name() < out[j].Name() })
		return out, nil
	})
}

func (e *Entry) Child(name string) treefs.Node {
	return e.child(name)
}

// Checksum returns the ETag when it is the MD5 of the content, which holds for
// objects uploaded in a single part.
func (e *Entry) Checksum(ctx context.Context) (string, error) {
	r, err := e.resolve(ctx)
	if err != nil || r.kind != kindFile {
		return "", err
	}
	return checksumFromETag(r.etag), nil
}

func checksumFromETag(etag string) string {
	etag = strings.ToLower(strings.Trim(etag, `"`))
	if len(etag) != 32 || strings.Contains(etag, "-") {
		return ""
	}
	return etag
}

func (e *Entry) Read(ctx context.Context) ([]byte, error) {
	data, err := e.store.Get(ctx, e.key)
	if errors.Is(err, fs.ErrNotExist) {
		if isDir, _ := e.IsDir(ctx); isDir {
			return nil, treefs.NewOperationNotAllowed(treefs.OpRead, e, "is a directory")
		}
		return nil, treefs.NewNotFound(e, err)
	}
	if err != nil {
		return nil, treefs.NewOperationFailed(treefs.OpRead, e, err)
	}
	return data, nil
}

func (e *Entry) Write(ctx context.Context, content []byte) error {
	r, err := e.resolve(ctx)
	if err != nil {
		return err
	}
	switch r.kind {
	case kindMissing:
		return treefs.NewNotFound(e, nil)
	case kindDir:
		return treefs.NewOperationNotAllowed(treefs.OpWrite, e, "is a directory")
	}
	if err := e.store.Put(ctx, e.key, content); err != nil {
		return treefs.NewOperationFailed(treefs.OpWrite, e, err)
	}
	return nil
}

func (e *Entry) Delete(ctx context.Context, recurse bool) error {
	if treefs.IsRoot(e) {
		return treefs.NewOperationNotAllowed(treefs.OpDelete, e, "cannot delete the root")
	}
	r, err := e.resolve(ctx)
	if err != nil {
		return err
	}
	switch r.kind {
	case kindMissing:
		return treefs.NewNotFound(e, nil)
	case kindFile:
		if err := e.store.Remove(ctx, e.key); err != nil {
			if errors.Is(err, fs.ErrNotExist) {
				return treefs.NewNotFound(e, err)
			}
			return treefs.NewOperationFailed(treefs.OpDelete, e, err)
		}
		return nil
	}

	// a prefix only exists while keys lie below it
	if !recurse {
		return &treefs.MustDeleteRecursivelyError{Path: e.PrintablePath()}
	}
	infos, err := e.store.List(ctx, e.dirPrefix(), true)
	if err != nil {
		return treefs.NewOperationFailed(treefs.OpDelete, e, err)
	}
	logger := util.GetLogger("s3fs")
	logger.Debug().Str("prefix", e.dirPrefix()).Int("objects", len(infos)).Msg("Removing prefix")
	var errs []error
	for _, info := range infos {
		if info.IsPrefix {
			continue
		}
		if err := e.store.Remove(ctx, info.Key); err != nil && !errors.Is(err, fs.ErrNotExist) {
			errs = append(errs, err)
		}
	}
	if err := errors.Join(errs...); err != nil {
		return treefs.NewOperationFailed(treefs.OpDelete, e, err)
	}
	return nil
}

// CreateDir returns the prefix for name. It exists once a file is created below it.
func (e *Entry) CreateDir(ctx context.Context, name string) (treefs.Node, error) {
	c := e.child(name)
	r, err := c.resolve(ctx)
	if err != nil {
		return nil, err
	}
	if r.kind == kindFile {
		return nil, treefs.NewOperationFailed(treefs.OpCreate, c, fmt.Errorf("a file already exists"))
	}
	return e.newDir(name), nil
}

// newDir is a child prefix that counts as a directory before any key is below it.
func (e *Entry) newDir(name string) *Entry {
	c := e.child(name)
	c.state.Set(resolved{kind: kindDir})
	c.children.Set(nil)
	return c
}

func (e *Entry) CreateFile(ctx context.Context, name string, content []byte) (treefs.Node, error) {
	c := e.child(name)
	if err := e.store.Put(ctx, c.key, content); err != nil {
		return nil, treefs.NewOperationFailed(treefs.OpCreate, c, err)
	}
	return c, nil
}

// Provider builds object store roots from "s3" source definitions, which carry
// the fields of [config.ObjectStore].
type Provider struct{}

var _ treefs.RootProvider = Provider{}

func (Provider) NewRoot(raw []byte) (treefs.Node, error) {
	cfg := config.ObjectStore{UseSSL: config.DefaultObjectStoreUseSSL}
	if err := json.Unmarshal(raw, &cfg); err != nil {
		return nil, fmt.Errorf("s3fs: invalid source definition: %w", err)
	}
	return New(cfg)
}
