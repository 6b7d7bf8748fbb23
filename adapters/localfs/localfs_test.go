package localfs

import (
	"context"
	"testing"

	"github.com/brettbedarf/treefs"
	"github.com/brettbedarf/treefs/config"
	"github.com/brettbedarf/treefs/copyto"
	"github.com/brettbedarf/treefs/pattern"
	"github.com/go-git/go-billy/v5"
	"github.com/go-git/go-billy/v5/memfs"
	billyutil "github.com/go-git/go-billy/v5/util"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newFS(t *testing.T, files map[string]string) billy.Filesystem {
	t.Helper()
	fsys := memfs.New()
	require.NoError(t, fsys.MkdirAll(".", dirPerm))
	for name, content := range files {
		require.NoError(t, billyutil.WriteFile(fsys, name, []byte(content), filePerm))
	}
	return fsys
}

func newRoot(t *testing.T, fsys billy.Filesystem, ignore ...string) *Entry {
	t.Helper()
	root, err := NewFromFilesystem(fsys, "local/", ignore)
	require.NoError(t, err)
	return root
}

func names(t *testing.T, n treefs.Node) []string {
	t.Helper()
	children, err := n.Children(context.Background())
	require.NoError(t, err)
	out := make([]string, 0, len(children))
	for _, c := range children {
		out = append(out, c.Name())
	}
	return out
}

func TestChildren_SortedWithoutDotfiles(t *testing.T) {
	t.Parallel()

	fsys := newFS(t, map[string]string{
		"b.json":      "{}",
		"a/x.json":    "{}",
		".git/config": "",
		".hidden":     "",
	})
	root := newRoot(t, fsys)

	assert.Equal(t, []string{"a", "b.json"}, names(t, root))
	assert.Equal(t, "local/", root.PrintablePath())
	assert.Equal(t, "local/a/x.json", root.Child("a").Child("x.json").PrintablePath())

	hidden := root.Child(".hidden")
	assert.True(t, treefs.IsNonexistent(hidden))
	assert.False(t, root.CanHaveChild(".hidden", false))
}

func TestExistsAndIsDir(t *testing.T) {
	t.Parallel()

	root := newRoot(t, newFS(t, map[string]string{"d/f": "x"}))
	ctx := context.Background()

	tests := []struct {
		path   string
		exists bool
		isDir  bool
	}{
		{"/", true, true},
		{"/d", true, true},
		{"/d/f", true, false},
		{"/d/missing", false, false},
		{"/nope/deeper", false, false},
	}
	for _, tt := range tests {
		n := treefs.ResolvePath(root, tt.path)
		exists, err := n.Exists(ctx)
		require.NoError(t, err, tt.path)
		assert.Equal(t, tt.exists, exists, tt.path)
		isDir, err := n.IsDir(ctx)
		require.NoError(t, err, tt.path)
		assert.Equal(t, tt.isDir, isDir, tt.path)
	}
}

func TestChildren_MissingDirectory(t *testing.T) {
	t.Parallel()

	root := newRoot(t, newFS(t, nil))
	_, err := root.Child("nope").Children(context.Background())
	assert.True(t, treefs.IsNotFound(err))
}

func TestIgnorePatterns(t *testing.T) {
	t.Parallel()

	fsys := newFS(t, map[string]string{
		IgnoreFile:          "# generated\n\n*.tmp\n",
		"keep.json":         "{}",
		"scratch.tmp":       "",
		"cache/data":        "",
		"nested/cache/data": "",
		"nested/deep/x.bak": "",
		"nested/deep/y":     "",
	})
	root := newRoot(t, fsys, "/cache", "nested/deep/*.bak")

	assert.Equal(t, []string{"keep.json", "nested"}, names(t, root))
	assert.Equal(t, []string{"cache", "deep"}, names(t, root.Child("nested")), "absolute globs only match from the root")
	assert.Equal(t, []string{"y"}, names(t, root.Child("nested").Child("deep")))

	assert.False(t, root.CanHaveChild("other.tmp", false))
	assert.False(t, root.CanHaveChild("cache", true))
	assert.True(t, root.CanHaveChild("fresh.json", false))
}

func TestInvalidIgnorePattern(t *testing.T) {
	t.Parallel()

	_, err := NewFromFilesystem(newFS(t, nil), "local/", []string{"**/../x"})
	assert.ErrorIs(t, err, pattern.ErrDotDotAfterDoubleStar)
}

func TestReadWrite(t *testing.T) {
	t.Parallel()

	fsys := newFS(t, map[string]string{"f.txt": "old"})
	root := newRoot(t, fsys)
	ctx := context.Background()

	data, err := root.Child("f.txt").Read(ctx)
	require.NoError(t, err)
	assert.Equal(t, "old", string(data))

	require.NoError(t, root.Child("f.txt").Write(ctx, []byte("new")))
	data, err = billyutil.ReadFile(fsys, "f.txt")
	require.NoError(t, err)
	assert.Equal(t, "new", string(data))

	_, err = root.Child("missing").Read(ctx)
	assert.True(t, treefs.IsNotFound(err))
	err = root.Child("missing").Write(ctx, []byte("x"))
	assert.True(t, treefs.IsNotFound(err))
}

func TestCreate(t *testing.T) {
	t.Parallel()

	fsys := newFS(t, nil)
	root := newRoot(t, fsys)
	ctx := context.Background()

	dir, err := root.CreateDir(ctx, "d")
	require.NoError(t, err)
	isDir, err := dir.IsDir(ctx)
	require.NoError(t, err)
	assert.True(t, isDir)

	f, err := dir.(treefs.ChildCreator).CreateFile(ctx, "f.json", []byte(`{"a":1}`))
	require.NoError(t, err)
	assert.Equal(t, "/d/f.json", f.Path())

	data, err := billyutil.ReadFile(fsys, "d/f.json")
	require.NoError(t, err)
	assert.Equal(t, `{"a":1}`, string(data))
}

func TestDelete(t *testing.T) {
	t.Parallel()

	fsys := newFS(t, map[string]string{"d/sub/f": "x", "g": "y"})
	ctx := context.Background()

	err := newRoot(t, fsys).Child("d").Delete(ctx, false)
	assert.True(t, treefs.IsMustDeleteRecursively(err))

	require.NoError(t, newRoot(t, fsys).Child("g").Delete(ctx, false))
	require.NoError(t, newRoot(t, fsys).Child("d").Delete(ctx, true))
	assert.Empty(t, names(t, newRoot(t, fsys)))

	err = newRoot(t, fsys).Child("g").Delete(ctx, false)
	assert.True(t, treefs.IsNotFound(err))

	var notAllowed *treefs.OperationNotAllowedError
	assert.ErrorAs(t, newRoot(t, fsys).Delete(ctx, true), &notAllowed)
}

func TestCopyIntoLocalIsIdempotent(t *testing.T) {
	t.Parallel()

	srcFS := newFS(t, map[string]string{"a/x.json": "1", "b.json": "2"})
	destFS := newFS(t, map[string]string{"b.json": "old", "stale/z": "z"})
	opts := copyto.Options{Depth: copyto.Unlimited, Purge: true}
	ctx := context.Background()

	var events []string
	report := func(e copyto.Event) { events = append(events, e.String()) }
	err := copyto.CopyTo(ctx, pattern.MustNew("/"), newRoot(t, srcFS), newRoot(t, destFS), opts, report)
	require.NoError(t, err)
	assert.ElementsMatch(t, []string{
		"Created /a",
		"Created /a/x.json",
		"Updated /b.json",
		"Deleted extra entry /stale (purge is on)",
	}, events)

	data, err := billyutil.ReadFile(destFS, "a/x.json")
	require.NoError(t, err)
	assert.Equal(t, "1", string(data))

	events = nil
	err = copyto.CopyTo(ctx, pattern.MustNew("/"), newRoot(t, srcFS), newRoot(t, destFS), opts, report)
	require.NoError(t, err)
	assert.Empty(t, events)
}

func TestProvider(t *testing.T) {
	t.Parallel()

	dir := t.TempDir()
	root, err := Provider{}.NewRoot([]byte(`{"type":"local","path":"` + dir + `","ignore":["*.bak"]}`))
	require.NoError(t, err)
	assert.Equal(t, dir, root.PrintablePath())

	ctx := context.Background()
	_, err = root.(treefs.ChildCreator).CreateFile(ctx, "f.json", []byte("{}"))
	require.NoError(t, err)
	assert.Equal(t, []string{"f.json"}, names(t, root))
	assert.False(t, root.(treefs.ChildValidator).CanHaveChild("x.bak", false))

	_, err = New(config.Local{Path: dir})
	assert.NoError(t, err)
}
