package restfs

import (
	"context"
	"encoding/json"
	"net/http"
	"net/url"
	"path"
	"sort"

	"github.com/brettbedarf/treefs"
	"github.com/brettbedarf/treefs/config"
)

// nestedDir is a collection of object collections, e.g. data bags.
type nestedDir struct {
	treefs.Base
	client   *Client
	apiPath  string
	identity string
	children treefs.Lazy[[]treefs.Node]
}

var (
	_ treefs.Node           = (*nestedDir)(nil)
	_ treefs.ChildCreator   = (*nestedDir)(nil)
	_ treefs.ChildValidator = (*nestedDir)(nil)
)

func newNestedDir(parent treefs.Node, c config.Collection) *nestedDir {
	identity := c.Identity
	if identity == "" {
		identity = "id"
	}
	return &nestedDir{
		Base:     treefs.NewBase(parent, c.Name),
		client:   clientOf(parent),
		apiPath:  c.APIPath,
		identity: identity,
	}
}

func (d *nestedDir) sub(name string) *objectsDir {
	return newObjectsDir(d, name, path.Join(d.apiPath, url.PathEscape(name)), d.identity, true)
}

func (d *nestedDir) Exists(ctx context.Context) (bool, error) { return true, nil }

func (d *nestedDir) IsDir(ctx context.Context) (bool, error) { return true, nil }

func (d *nestedDir) Children(ctx context.Context) ([]treefs.Node, error) {
	return d.children.Get(func() ([]treefs.Node, error) {
		var subs map[string]json.RawMessage
		if err := d.client.GetJSON(ctx, d.apiPath, &subs); err != nil {
			return nil, treefs.NewOperationFailed(treefs.OpList, d, err)
		}
		names := make([]string, 0, len(subs))
		for name := range subs {
			names = append(names, name)
		}
		sort.Strings(names)

		out := make([]treefs.Node, 0, len(names))
		for _, name := range names {
			s := d.sub(name)
			s.exists.Set(true)
			out = append(out, s)
		}
		return out, nil
	})
}

// Child probes the nested collection itself, so a missing one reports Exists false.
func (d *nestedDir) Child(name string) treefs.Node {
	return d.sub(name)
}

func (d *nestedDir) CanHaveChild(name string, isDir bool) bool {
	return isDir
}

func (d *nestedDir) Read(ctx context.Context) ([]byte, error) {
	return nil, treefs.NewOperationNotAllowed(treefs.OpRead, d, "is a directory")
}

func (d *nestedDir) Write(ctx context.Context, content []byte) error {
	return treefs.NewOperationNotAllowed(treefs.OpWrite, d, "is a directory")
}

func (d *nestedDir) Delete(ctx context.Context, recurse bool) error {
	return treefs.NewOperationNotAllowed(treefs.OpDelete, d, "collections cannot be deleted")
}

func (d *nestedDir) CreateDir(ctx context.Context, name string) (treefs.Node, error) {
	s := d.sub(name)
	body, err := json.Marshal(map[string]string{"name": name})
	if err != nil {
		return nil, err
	}
	if _, err := d.client.Post(ctx, d.apiPath, body); err != nil && !hasStatus(err, http.StatusConflict) {
		return nil, treefs.NewOperationFailed(treefs.OpCreate, s, err)
	}
	s.exists.Set(true)
	return s, nil
}

func (d *nestedDir) CreateFile(ctx context.Context, name string, content []byte) (treefs.Node, error) {
	return nil, treefs.NewOperationNotAllowed(treefs.OpCreate, d, "can only contain directories")
}
