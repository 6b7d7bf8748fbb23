package filesystem

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"sort"
	"syscall"
	"testing"

	"github.com/brettbedarf/treefs"
	"github.com/brettbedarf/treefs/adapters/memfs"
	"github.com/hanwen/go-fuse/v2/fuse"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func testTree() *memfs.Dir {
	return memfs.MustNew("memory/", map[string]any{
		"roles": map[string]any{
			"web.json": "{\n  \"name\": \"web\"\n}\n",
			"db.json":  "{}\n",
		},
		"README": "hello world",
	})
}

func testRoot(directIO bool) *treeNode {
	return newDirNode(testTree(), &Options{DirectIO: directIO})
}

func TestToErrno(t *testing.T) {
	n := testTree()
	tests := []struct {
		name string
		err  error
		want syscall.Errno
	}{
		{"nil", nil, 0},
		{"not found", treefs.NewNotFound(n, nil), syscall.ENOENT},
		{"not allowed", treefs.NewOperationNotAllowed(treefs.OpRead, n, "no"), syscall.EPERM},
		{"recursive", &treefs.MustDeleteRecursivelyError{Path: "x"}, syscall.ENOTEMPTY},
		{"canceled", context.Canceled, syscall.EINTR},
		{"failed", treefs.NewOperationFailed(treefs.OpRead, n, errors.New("boom")), syscall.EIO},
		{"other", errors.New("boom"), syscall.EIO},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, toErrno(tt.err))
		})
	}
}

func TestGetattr(t *testing.T) {
	ctx := context.Background()
	root := testRoot(false)

	var out fuse.AttrOut
	require.Equal(t, syscall.Errno(0), root.Getattr(ctx, nil, &out))
	assert.Equal(t, uint32(syscall.S_IFDIR|0o555), out.Mode)

	readme, errno := root.lookupChild(ctx, "README")
	require.Equal(t, syscall.Errno(0), errno)
	out = fuse.AttrOut{}
	require.Equal(t, syscall.Errno(0), readme.Getattr(ctx, nil, &out))
	assert.Equal(t, uint32(syscall.S_IFREG|0o444), out.Mode)
	assert.Equal(t, uint64(len("hello world")), out.Size)
}

func TestGetattrDirectIOSkipsRead(t *testing.T) {
	ctx := context.Background()
	tree := testTree()
	root := newDirNode(tree, &Options{DirectIO: true})

	readme, errno := root.lookupChild(ctx, "README")
	require.Equal(t, syscall.Errno(0), errno)
	var out fuse.AttrOut
	require.Equal(t, syscall.Errno(0), readme.Getattr(ctx, nil, &out))
	assert.Equal(t, uint64(0), out.Size)
	assert.Equal(t, int64(0), tree.Stats().Reads.Load())
}

func TestLookupChild(t *testing.T) {
	ctx := context.Background()
	root := testRoot(false)

	roles, errno := root.lookupChild(ctx, "roles")
	require.Equal(t, syscall.Errno(0), errno)
	assert.True(t, roles.isDir)
	assert.Equal(t, "memory/roles", roles.node.PrintablePath())

	web, errno := roles.lookupChild(ctx, "web.json")
	require.Equal(t, syscall.Errno(0), errno)
	assert.False(t, web.isDir)

	_, errno = root.lookupChild(ctx, "missing")
	assert.Equal(t, syscall.ENOENT, errno)

	_, errno = web.lookupChild(ctx, "x")
	assert.Equal(t, syscall.ENOTDIR, errno)
}

func TestEntries(t *testing.T) {
	ctx := context.Background()
	root := testRoot(false)

	entries, errno := root.entries(ctx)
	require.Equal(t, syscall.Errno(0), errno)
	modes := map[string]uint32{}
	for _, e := range entries {
		modes[e.Name] = e.Mode
	}
	assert.Equal(t, map[string]uint32{
		"README": syscall.S_IFREG,
		"roles":  syscall.S_IFDIR,
	}, modes)

	roles, _ := root.lookupChild(ctx, "roles")
	entries, errno = roles.entries(ctx)
	require.Equal(t, syscall.Errno(0), errno)
	var names []string
	for _, e := range entries {
		names = append(names, e.Name)
	}
	sort.Strings(names)
	assert.Equal(t, []string{"db.json", "web.json"}, names)
}

func TestOpenAndRead(t *testing.T) {
	ctx := context.Background()

	for _, directIO := range []bool{false, true} {
		root := testRoot(directIO)
		readme, errno := root.lookupChild(ctx, "README")
		require.Equal(t, syscall.Errno(0), errno)

		fh, flags, errno := readme.Open(ctx, syscall.O_RDONLY)
		require.Equal(t, syscall.Errno(0), errno)
		if directIO {
			assert.Equal(t, uint32(fuse.FOPEN_DIRECT_IO), flags)
		} else {
			assert.Equal(t, uint32(fuse.FOPEN_KEEP_CACHE), flags)
		}

		res, errno := readme.Read(ctx, fh, make([]byte, 5), 6)
		require.Equal(t, syscall.Errno(0), errno)
		data, status := res.Bytes(nil)
		require.Equal(t, fuse.OK, status)
		assert.Equal(t, "world", string(data))

		res, errno = readme.Read(ctx, fh, make([]byte, 5), 100)
		require.Equal(t, syscall.Errno(0), errno)
		data, _ = res.Bytes(nil)
		assert.Empty(t, data)
	}
}

func TestReadOnly(t *testing.T) {
	ctx := context.Background()
	root := testRoot(false)
	readme, _ := root.lookupChild(ctx, "README")

	_, _, errno := readme.Open(ctx, syscall.O_WRONLY)
	assert.Equal(t, syscall.EROFS, errno)
	_, _, errno = readme.Open(ctx, syscall.O_RDWR)
	assert.Equal(t, syscall.EROFS, errno)
	_, _, errno = root.Open(ctx, syscall.O_RDONLY)
	assert.Equal(t, syscall.EISDIR, errno)

	_, _, _, errno = root.Create(ctx, "new", 0, 0o644, &fuse.EntryOut{})
	assert.Equal(t, syscall.EROFS, errno)
	_, errno = root.Mkdir(ctx, "new", 0o755, &fuse.EntryOut{})
	assert.Equal(t, syscall.EROFS, errno)
	assert.Equal(t, syscall.EROFS, root.Unlink(ctx, "README"))
	assert.Equal(t, syscall.EROFS, root.Rmdir(ctx, "roles"))
	assert.Equal(t, syscall.EROFS, root.Rename(ctx, "README", root, "README2", 0))
	assert.Equal(t, syscall.EROFS, readme.Setattr(ctx, nil, &fuse.SetAttrIn{}, &fuse.AttrOut{}))
}

// TestMount needs a working FUSE setup and is only run when TREEFS_TEST_FUSE is set.
func TestMount(t *testing.T) {
	if os.Getenv("TREEFS_TEST_FUSE") == "" {
		t.Skip("TREEFS_TEST_FUSE not set")
	}
	if _, err := os.Stat("/dev/fuse"); err != nil {
		t.Skip("/dev/fuse not available")
	}

	mnt := t.TempDir()
	server, err := Mount(mnt, testTree(), Options{})
	require.NoError(t, err)
	t.Cleanup(func() {
		_ = server.Unmount()
	})

	data, err := os.ReadFile(filepath.Join(mnt, "roles", "web.json"))
	require.NoError(t, err)
	assert.Equal(t, "{\n  \"name\": \"web\"\n}\n", string(data))

	entries, err := os.ReadDir(mnt)
	require.NoError(t, err)
	var names []string
	for _, e := range entries {
		names = append(names, e.Name())
	}
	assert.ElementsMatch(t, []string{"README", "roles"}, names)

	_, err = os.Stat(filepath.Join(mnt, "missing"))
	assert.True(t, os.IsNotExist(err))

	err = os.WriteFile(filepath.Join(mnt, "README"), []byte("x"), 0o644)
	assert.Error(t, err)
}
