package restfs

import (
	"context"
	"fmt"
	"net/url"
	"path"
	"sort"
	"strings"

	"github.com/Masterminds/semver/v3"
	"github.com/brettbedarf/treefs"
	"github.com/brettbedarf/treefs/config"
	"github.com/brettbedarf/treefs/internal/util"
	"github.com/brettbedarf/treefs/pathutil"
)

// packageIndex is the response of GET on a packages collection
type packageIndex map[string]struct {
	Versions []struct {
		Version string `json:"version"`
	} `json:"versions"`
}

// manifest is the response of GET on one package version
type manifest struct {
	Files []manifestFile `json:"files"`
}

type manifestFile struct {
	Path     string `json:"path"`
	Checksum string `json:"checksum"`
	URL      string `json:"url"`
}

// packagesDir is a read only collection of versioned packages. Only the latest
// version of each package is shown.
type packagesDir struct {
	treefs.Base
	client  *Client
	apiPath string
	index   treefs.Lazy[packageIndex]
}

var (
	_ treefs.Node           = (*packagesDir)(nil)
	_ treefs.ChildValidator = (*packagesDir)(nil)
)

func newPackagesDir(parent treefs.Node, c config.Collection) *packagesDir {
	return &packagesDir{
		Base:    treefs.NewBase(parent, c.Name),
		client:  clientOf(parent),
		apiPath: c.APIPath,
	}
}

func (d *packagesDir) load(ctx context.Context) (packageIndex, error) {
	return d.index.Get(func() (packageIndex, error) {
		var idx packageIndex
		if err := d.client.GetJSON(ctx, d.apiPath, &idx); err != nil {
			return nil, treefs.NewOperationFailed(treefs.OpList, d, err)
		}
		return idx, nil
	})
}

func (d *packagesDir) Exists(ctx context.Context) (bool, error) { return true, nil }

func (d *packagesDir) IsDir(ctx context.Context) (bool, error) { return true, nil }

func (d *packagesDir) Children(ctx context.Context) ([]treefs.Node, error) {
	idx, err := d.load(ctx)
	if err != nil {
		return nil, err
	}
	names := make([]string, 0, len(idx))
	for name := range idx {
		names = append(names, name)
	}
	sort.Strings(names)

	out := make([]treefs.Node, 0, len(names))
	for _, name := range names {
		out = append(out, newPackageDir(d, name))
	}
	return out, nil
}

func (d *packagesDir) Child(name string) treefs.Node {
	return newPackageDir(d, name)
}

func (d *packagesDir) CanHaveChild(name string, isDir bool) bool { return false }

func (d *packagesDir) Read(ctx context.Context) ([]byte, error) {
	return nil, treefs.NewOperationNotAllowed(treefs.OpRead, d, "is a directory")
}

func (d *packagesDir) Write(ctx context.Context, content []byte) error {
	return treefs.NewOperationNotAllowed(treefs.OpWrite, d, "is a directory")
}

func (d *packagesDir) Delete(ctx context.Context, recurse bool) error {
	return treefs.NewOperationNotAllowed(treefs.OpDelete, d, "collections cannot be deleted")
}

// files of one package version, keyed by their path inside the package ("" is the package)
type packageFiles struct {
	version string
	files   map[string]manifestFile
	dirs    map[string][]string
}

// packageDir is the latest version of a package. Its contents come from the
// version's manifest.
type packageDir struct {
	treefs.Base
	dir   *packagesDir
	files treefs.Lazy[*packageFiles]
}

var (
	_ treefs.Node           = (*packageDir)(nil)
	_ treefs.ChildValidator = (*packageDir)(nil)
)

func newPackageDir(dir *packagesDir, name string) *packageDir {
	return &packageDir{Base: treefs.NewBase(dir, name), dir: dir}
}

func (p *packageDir) apiPath() string {
	return path.Join(p.dir.apiPath, url.PathEscape(p.Name()))
}

// latest picks the highest semantic version listed for the package, "" if none.
func (p *packageDir) latest(ctx context.Context) (string, error) {
	idx, err := p.dir.load(ctx)
	if err != nil {
		return "", err
	}
	pkg, ok := idx[p.Name()]
	if !ok {
		return "", nil
	}

	logger := util.GetLogger("restfs")
	var best *semver.Version
	var bestRaw string
	for _, v := range pkg.Versions {
		parsed, err := semver.NewVersion(v.Version)
		if err != nil {
			logger.Warn().Str("package", p.Name()).Str("version", v.Version).Err(err).Msg("Skipping invalid version")
			continue
		}
		if best == nil || parsed.GreaterThan(best) {
			best, bestRaw = parsed, v.Version
		}
	}
	return bestRaw, nil
}

// load fetches the manifest of the latest version. A package without versions
// yields nil.
func (p *packageDir) load(ctx context.Context) (*packageFiles, error) {
	return p.files.Get(func() (*packageFiles, error) {
		version, err := p.latest(ctx)
		if err != nil || version == "" {
			return nil, err
		}
		var m manifest
		if err := p.dir.client.GetJSON(ctx, path.Join(p.apiPath(), url.PathEscape(version)), &m); err != nil {
			if IsNotFound(err) {
				return nil, nil
			}
			return nil, treefs.NewOperationFailed(treefs.OpList, p, err)
		}
		return indexManifest(version, m), nil
	})
}

func indexManifest(version string, m manifest) *packageFiles {
	pf := &packageFiles{
		version: version,
		files:   map[string]manifestFile{},
		dirs:    map[string][]string{"": nil},
	}
	seen := map[string]bool{}
	add := func(dir, name string) {
		key := dir + "/" + name
		if seen[key] {
			return
		}
		seen[key] = true
		pf.dirs[dir] = append(pf.dirs[dir], name)
	}
	for _, f := range m.Files {
		parts := pathutil.Split(f.Path)
		if len(parts) == 0 {
			continue
		}
		dir := ""
		for _, part := range parts[:len(parts)-1] {
			add(dir, part)
			dir = path.Join(dir, part)
			if _, ok := pf.dirs[dir]; !ok {
				pf.dirs[dir] = nil
			}
		}
		add(dir, parts[len(parts)-1])
		pf.files[strings.Join(parts, "/")] = f
	}
	for dir := range pf.dirs {
		sort.Strings(pf.dirs[dir])
	}
	return pf
}

func (p *packageDir) Exists(ctx context.Context) (bool, error) {
	pf, err := p.load(ctx)
	return pf != nil, err
}

func (p *packageDir) IsDir(ctx context.Context) (bool, error) {
	return p.Exists(ctx)
}

func (p *packageDir) Children(ctx context.Context) ([]treefs.Node, error) {
	return (&packageNode{Base: p.Base, pkg: p}).Children(ctx)
}

func (p *packageDir) Child(name string) treefs.Node {
	return newPackageNode(p, p, name)
}

func (p *packageDir) CanHaveChild(name string, isDir bool) bool { return false }

func (p *packageDir) Read(ctx context.Context) ([]byte, error) {
	return nil, treefs.NewOperationNotAllowed(treefs.OpRead, p, "is a directory")
}

func (p *packageDir) Write(ctx context.Context, content []byte) error {
	return treefs.NewOperationNotAllowed(treefs.OpWrite, p, "is a directory")
}

// Delete removes the shown version of the package.
func (p *packageDir) Delete(ctx context.Context, recurse bool) error {
	if !recurse {
		return &treefs.MustDeleteRecursivelyError{Path: p.PrintablePath()}
	}
	pf, err := p.load(ctx)
	if err != nil {
		return err
	}
	if pf == nil {
		return treefs.NewNotFound(p, nil)
	}
	if _, err := p.dir.client.Delete(ctx, path.Join(p.apiPath(), url.PathEscape(pf.version))); err != nil {
		if IsNotFound(err) {
			return treefs.NewNotFound(p, err)
		}
		return treefs.NewOperationFailed(treefs.OpDelete, p, err)
	}
	return nil
}

// packageNode is a file or directory inside a package.
type packageNode struct {
	treefs.Base
	pkg *packageDir
	rel string
}

var (
	_ treefs.Node           = (*packageNode)(nil)
	_ treefs.Checksummer    = (*packageNode)(nil)
	_ treefs.ChildValidator = (*packageNode)(nil)
)

func newPackageNode(pkg *packageDir, parent treefs.Node, name string) *packageNode {
	rel := name
	if n, ok := parent.(*packageNode); ok {
		rel = path.Join(n.rel, name)
	}
	return &packageNode{Base: treefs.NewBase(parent, name), pkg: pkg, rel: rel}
}

func (n *packageNode) lookup(ctx context.Context) (pf *packageFiles, isFile, isDir bool, err error) {
	pf, err = n.pkg.load(ctx)
	if err != nil || pf == nil {
		return nil, false, false, err
	}
	_, isFile = pf.files[n.rel]
	_, isDir = pf.dirs[n.rel]
	return pf, isFile, isDir, nil
}

func (n *packageNode) Exists(ctx context.Context) (bool, error) {
	_, isFile, isDir, err := n.lookup(ctx)
	return isFile || isDir, err
}

func (n *packageNode) IsDir(ctx context.Context) (bool, error) {
	_, _, isDir, err := n.lookup(ctx)
	return isDir, err
}

func (n *packageNode) Children(ctx context.Context) ([]treefs.Node, error) {
	pf, _, isDir, err := n.lookup(ctx)
	if err != nil {
		return nil, err
	}
	if !isDir {
		return nil, treefs.NewNotFound(n, nil)
	}
	var parent treefs.Node = n
	if n.rel == "" {
		parent = n.pkg
	}
	out := make([]treefs.Node, 0, len(pf.dirs[n.rel]))
	for _, name := range pf.dirs[n.rel] {
		out = append(out, newPackageNode(n.pkg, parent, name))
	}
	return out, nil
}

func (n *packageNode) Child(name string) treefs.Node {
	return newPackageNode(n.pkg, n, name)
}

func (n *packageNode) CanHaveChild(name string, isDir bool) bool { return false }

func (n *packageNode) Checksum(ctx context.Context) (string, error) {
	pf, isFile, _, err := n.lookup(ctx)
	if err != nil || !isFile {
		return "", err
	}
	return strings.ToLower(pf.files[n.rel].Checksum), nil
}

func (n *packageNode) Read(ctx context.Context) ([]byte, error) {
	pf, isFile, isDir, err := n.lookup(ctx)
	if err != nil {
		return nil, err
	}
	if isDir {
		return nil, treefs.NewOperationNotAllowed(treefs.OpRead, n, "is a directory")
	}
	if !isFile {
		return nil, treefs.NewNotFound(n, nil)
	}
	f := pf.files[n.rel]
	if f.URL == "" {
		return nil, treefs.NewOperationFailed(treefs.OpRead, n, fmt.Errorf("manifest has no url"))
	}
	data, err := n.pkg.dir.client.GetURL(ctx, f.URL)
	if err != nil {
		if IsNotFound(err) {
			return nil, treefs.NewNotFound(n, err)
		}
		return nil, treefs.NewOperationFailed(treefs.OpRead, n, err)
	}
	return data, nil
}

func (n *packageNode) Write(ctx context.Context, content []byte) error {
	return treefs.NewOperationNotAllowed(treefs.OpWrite, n, "packages are read only")
}

func (n *packageNode) Delete(ctx context.Context, recurse bool) error {
	return treefs.NewOperationNotAllowed(treefs.OpDelete, n, "packages are read only")
}
