package restfs

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/url"
	"path"
	"sort"
	"strings"

	"github.com/brettbedarf/treefs"
)

const (
	defaultIdentity = "name"
	jsonExt         = ".json"
)

// objectsDir is a collection of JSON objects. GET on its api path returns a map
// keyed by object name; each key is served as "<key>.json".
type objectsDir struct {
	treefs.Base
	client   *Client
	apiPath  string
	identity string
	// nested directories can be missing and deleted, top level collections cannot
	nested   bool
	exists   treefs.Lazy[bool]
	children treefs.Lazy[[]treefs.Node]
}

var (
	_ treefs.Node           = (*objectsDir)(nil)
	_ treefs.ChildCreator   = (*objectsDir)(nil)
	_ treefs.ChildValidator = (*objectsDir)(nil)
)

func newObjectsDir(parent treefs.Node, name, apiPath, identity string, nested bool) *objectsDir {
	return &objectsDir{
		Base:     treefs.NewBase(parent, name),
		client:   clientOf(parent),
		apiPath:  apiPath,
		identity: identity,
		nested:   nested,
	}
}

// listing fetches the keys of the collection once.
func (d *objectsDir) listing(ctx context.Context) ([]treefs.Node, error) {
	return d.children.Get(func() ([]treefs.Node, error) {
		var objects map[string]json.RawMessage
		if err := d.client.GetJSON(ctx, d.apiPath, &objects); err != nil {
			if IsNotFound(err) {
				return nil, treefs.NewNotFound(d, err)
			}
			return nil, treefs.NewOperationFailed(treefs.OpList, d, err)
		}
		keys := make([]string, 0, len(objects))
		for k := range objects {
			keys = append(keys, k)
		}
		sort.Strings(keys)

		out := make([]treefs.Node, 0, len(keys))
		for _, k := range keys {
			e := newEntry(d, k+jsonExt)
			e.exists.Set(true)
			out = append(out, e)
		}
		return out, nil
	})
}

func (d *objectsDir) Exists(ctx context.Context) (bool, error) {
	if !d.nested {
		return true, nil
	}
	return d.exists.Get(func() (bool, error) {
		_, err := d.listing(ctx)
		if treefs.IsNotFound(err) {
			return false, nil
		}
		return err == nil, err
	})
}

func (d *objectsDir) IsDir(ctx context.Context) (bool, error) {
	return d.Exists(ctx)
}

func (d *objectsDir) Children(ctx context.Context) ([]treefs.Node, error) {
	return d.listing(ctx)
}

func (d *objectsDir) Child(name string) treefs.Node {
	if !strings.HasSuffix(name, jsonExt) {
		return treefs.Nonexistent(d, name)
	}
	return newEntry(d, name)
}

func (d *objectsDir) CanHaveChild(name string, isDir bool) bool {
	return !isDir && strings.HasSuffix(name, jsonExt)
}

func (d *objectsDir) Read(ctx context.Context) ([]byte, error) {
	return nil, treefs.NewOperationNotAllowed(treefs.OpRead, d, "is a directory")
}

func (d *objectsDir) Write(ctx context.Context, content []byte) error {
	return treefs.NewOperationNotAllowed(treefs.OpWrite, d, "is a directory")
}

func (d *objectsDir) Delete(ctx context.Context, recurse bool) error {
	if !d.nested {
		return treefs.NewOperationNotAllowed(treefs.OpDelete, d, "collections cannot be deleted")
	}
	if !recurse {
		return &treefs.MustDeleteRecursivelyError{Path: d.PrintablePath()}
	}
	if _, err := d.client.Delete(ctx, d.apiPath); err != nil {
		if IsNotFound(err) {
			return treefs.NewNotFound(d, err)
		}
		return treefs.NewOperationFailed(treefs.OpDelete, d, err)
	}
	return nil
}

func (d *objectsDir) CreateDir(ctx context.Context, name string) (treefs.Node, error) {
	return nil, treefs.NewOperationNotAllowed(treefs.OpCreate, d, "cannot contain directories")
}

func (d *objectsDir) CreateFile(ctx context.Context, name string, content []byte) (treefs.Node, error) {
	e := newEntry(d, name)
	if !d.CanHaveChild(name, false) {
		return nil, treefs.NewOperationNotAllowed(treefs.OpCreate, e, "only .json files are allowed")
	}
	body, err := e.validate(content)
	if err != nil {
		return nil, err
	}
	if _, err := d.client.Post(ctx, d.apiPath, body); err != nil {
		if hasStatus(err, http.StatusConflict) {
			return nil, treefs.NewOperationFailed(treefs.OpCreate, e, fmt.Errorf("already exists"))
		}
		return nil, treefs.NewOperationFailed(treefs.OpCreate, e, err)
	}
	e.exists.Set(true)
	return e, nil
}

// entry is one JSON object of a collection.
type entry struct {
	treefs.Base
	dir    *objectsDir
	exists treefs.Lazy[bool]
}

var _ treefs.Node = (*entry)(nil)

func newEntry(dir *objectsDir, name string) *entry {
	return &entry{Base: treefs.NewBase(dir, name), dir: dir}
}

func (e *entry) key() string {
	return strings.TrimSuffix(e.Name(), jsonExt)
}

func (e *entry) apiPath() string {
	return path.Join(e.dir.apiPath, url.PathEscape(e.key()))
}

// Exists consults the listing of the collection rather than fetching the object.
func (e *entry) Exists(ctx context.Context) (bool, error) {
	return e.exists.Get(func() (bool, error) {
		siblings, err := e.dir.listing(ctx)
		if treefs.IsNotFound(err) {
			return false, nil
		}
		if err != nil {
			return false, err
		}
		for _, s := range siblings {
			if s.Name() == e.Name() {
				return true, nil
			}
		}
		return false, nil
	})
}

func (e *entry) IsDir(ctx context.Context) (bool, error) { return false, nil }

func (e *entry) Children(ctx context.Context) ([]treefs.Node, error) {
	return nil, treefs.NewOperationNotAllowed(treefs.OpList, e, "not a directory")
}

func (e *entry) Child(name string) treefs.Node {
	return treefs.Nonexistent(e, name)
}

// Read returns the object as indented JSON with sorted keys.
func (e *entry) Read(ctx context.Context) ([]byte, error) {
	data, err := e.dir.client.Get(ctx, e.apiPath())
	if err != nil {
		if IsNotFound(err) {
			return nil, treefs.NewNotFound(e, err)
		}
		return nil, treefs.NewOperationFailed(treefs.OpRead, e, err)
	}
	var obj any
	if err := json.Unmarshal(data, &obj); err != nil {
		return nil, treefs.NewOperationFailed(treefs.OpRead, e, err)
	}
	return prettyJSON(obj)
}

func (e *entry) Write(ctx context.Context, content []byte) error {
	body, err := e.validate(content)
	if err != nil {
		return err
	}
	if _, err := e.dir.client.Put(ctx, e.apiPath(), body); err != nil {
		if IsNotFound(err) {
			return treefs.NewNotFound(e, err)
		}
		return treefs.NewOperationFailed(treefs.OpWrite, e, err)
	}
	return nil
}

func (e *entry) Delete(ctx context.Context, recurse bool) error {
	if _, err := e.dir.client.Delete(ctx, e.apiPath()); err != nil {
		if IsNotFound(err) {
			return treefs.NewNotFound(e, err)
		}
		return treefs.NewOperationFailed(treefs.OpDelete, e, err)
	}
	return nil
}

// validate parses content as a JSON object whose identity field must match the
// entry name. A missing identity is filled in.
func (e *entry) validate(content []byte) ([]byte, error) {
	var obj map[string]any
	if err := json.Unmarshal(content, &obj); err != nil {
		return nil, treefs.NewOperationFailed(treefs.OpWrite, e, fmt.Errorf("parse JSON: %w", err))
	}
	if obj == nil {
		return nil, treefs.NewOperationFailed(treefs.OpWrite, e, fmt.Errorf("content is not a JSON object"))
	}
	id := e.dir.identity
	v, ok := obj[id]
	if !ok {
		obj[id] = e.key()
	} else if s, isString := v.(string); !isString || s != e.key() {
		return nil, treefs.NewOperationFailed(treefs.OpWrite, e,
			fmt.Errorf("Name in %s must be '%s' (is '%v')", e.PrintablePath(), e.key(), v))
	}
	return json.Marshal(obj)
}

// Canonical returns content the way Read returns it once written.
func (e *entry) Canonical(content []byte) ([]byte, error) {
	body, err := e.validate(content)
	if err != nil {
		return nil, err
	}
	var obj any
	if err := json.Unmarshal(body, &obj); err != nil {
		return nil, treefs.NewOperationFailed(treefs.OpWrite, e, err)
	}
	return prettyJSON(obj)
}

func prettyJSON(v any) ([]byte, error) {
	var buf bytes.Buffer
	enc := json.NewEncoder(&buf)
	enc.SetEscapeHTML(false)
	enc.SetIndent("", "  ")
	if err := enc.Encode(v); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}

// clientOf finds the client of the tree n belongs to.
func clientOf(n treefs.Node) *Client {
	if r, ok := treefs.Root(n).(*Root); ok {
		return r.client
	}
	return nil
}
