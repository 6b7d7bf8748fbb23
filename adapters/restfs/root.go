package restfs

import (
	"context"
	"encoding/json"
	"fmt"
	"sort"

	"github.com/brettbedarf/treefs"
	"github.com/brettbedarf/treefs/config"
)

// Label prefixes the printable paths of a remote tree
const Label = "remote/"

// Root lists the configured collections of a repository.
type Root struct {
	treefs.Base
	client      *Client
	collections map[string]config.Collection
	names       []string
}

var (
	_ treefs.Node           = (*Root)(nil)
	_ treefs.ChildValidator = (*Root)(nil)
)

// New connects a tree to the repository described by cfg. Without configured
// collections the [config.DefaultCollections] layout is used.
func New(cfg config.Remote, opts ...ClientOption) (*Root, error) {
	client, err := NewClient(cfg, opts...)
	if err != nil {
		return nil, err
	}

	collections := cfg.Collections
	if len(collections) == 0 {
		collections = config.DefaultCollections()
	}
	r := &Root{
		Base:        treefs.NewRootBase(Label),
		client:      client,
		collections: make(map[string]config.Collection, len(collections)),
	}
	for _, c := range collections {
		switch c.Kind {
		case config.KindObjects, config.KindNested, config.KindPackages:
		default:
			return nil, fmt.Errorf("collection %q: unknown kind %q", c.Name, c.Kind)
		}
		if c.Name == "" {
			return nil, fmt.Errorf("collection with api path %q has no name", c.APIPath)
		}
		if _, dup := r.collections[c.Name]; dup {
			return nil, fmt.Errorf("collection %q configured twice", c.Name)
		}
		if c.APIPath == "" {
			c.APIPath = c.Name
		}
		r.collections[c.Name] = c
		r.names = append(r.names, c.Name)
	}
	sort.Strings(r.names)
	return r, nil
}

// Client returns the client shared by every node of the tree.
func (r *Root) Client() *Client {
	return r.client
}

func (r *Root) collection(name string) treefs.Node {
	c := r.collections[name]
	switch c.Kind {
	case config.KindNested:
		return newNestedDir(r, c)
	case config.KindPackages:
		return newPackagesDir(r, c)
	default:
		identity := c.Identity
		if identity == "" {
			identity = defaultIdentity
		}
		return newObjectsDir(r, c.Name, c.APIPath, identity, false)
	}
}

func (r *Root) Exists(ctx context.Context) (bool, error) { return true, nil }

func (r *Root) IsDir(ctx context.Context) (bool, error) { return true, nil }

func (r *Root) Children(ctx context.Context) ([]treefs.Node, error) {
	out := make([]treefs.Node, 0, len(r.names))
	for _, name := range r.names {
		out = append(out, r.collection(name))
	}
	return out, nil
}

func (r *Root) Child(name string) treefs.Node {
	if _, ok := r.collections[name]; !ok {
		return treefs.Nonexistent(r, name)
	}
	return r.collection(name)
}

func (r *Root) CanHaveChild(name string, isDir bool) bool {
	_, ok := r.collections[name]
	return isDir && ok
}

func (r *Root) Read(ctx context.Context) ([]byte, error) {
	return nil, treefs.NewOperationNotAllowed(treefs.OpRead, r, "is a directory")
}

func (r *Root) Write(ctx context.Context, content []byte) error {
	return treefs.NewOperationNotAllowed(treefs.OpWrite, r, "is a directory")
}

func (r *Root) Delete(ctx context.Context, recurse bool) error {
	return treefs.NewOperationNotAllowed(treefs.OpDelete, r, "cannot delete the root")
}

// Provider builds remote roots from "rest" source definitions, which carry the
// fields of [config.Remote].
type Provider struct{}

var _ treefs.RootProvider = Provider{}

func (Provider) NewRoot(raw []byte) (treefs.Node, error) {
	cfg := config.Remote{
		Timeout:    config.DefaultRemoteTimeout,
		MaxRetries: config.DefaultRemoteMaxRetries,
	}
	if err := json.Unmarshal(raw, &cfg); err != nil {
		return nil, fmt.Errorf("restfs: invalid source definition: %w", err)
	}
	return New(cfg)
}
