package filesystem

import (
	"context"
	"os"
	"syscall"
	"time"

	"github.com/brettbedarf/treefs"
	"github.com/brettbedarf/treefs/internal/metrics"
	"github.com/brettbedarf/treefs/internal/util"
	"github.com/hanwen/go-fuse/v2/fs"
	"github.com/hanwen/go-fuse/v2/fuse"
)

const (
	dirMode  = syscall.S_IFDIR | 0o555
	fileMode = syscall.S_IFREG | 0o444
)

// treeNode exposes one tree node to the kernel.
type treeNode struct {
	fs.Inode

	node    treefs.Node
	isDir   bool
	opts    *Options
	mtime   time.Time
	content treefs.Lazy[[]byte]
}

var (
	_ fs.InodeEmbedder  = (*treeNode)(nil)
	_ fs.NodeGetattrer  = (*treeNode)(nil)
	_ fs.NodeLookuper   = (*treeNode)(nil)
	_ fs.NodeReaddirer  = (*treeNode)(nil)
	_ fs.NodeOpener     = (*treeNode)(nil)
	_ fs.NodeReader     = (*treeNode)(nil)
	_ fs.NodeSetattrer  = (*treeNode)(nil)
	_ fs.NodeCreater    = (*treeNode)(nil)
	_ fs.NodeMkdirer    = (*treeNode)(nil)
	_ fs.NodeUnlinker   = (*treeNode)(nil)
	_ fs.NodeRmdirer    = (*treeNode)(nil)
	_ fs.NodeRenamer    = (*treeNode)(nil)
)

func newDirNode(n treefs.Node, opts *Options) *treeNode {
	return &treeNode{node: n, isDir: true, opts: opts, mtime: time.Now()}
}

func (n *treeNode) newChild(child treefs.Node, isDir bool) *treeNode {
	return &treeNode{node: child, isDir: isDir, opts: n.opts, mtime: n.mtime}
}

func (n *treeNode) read(ctx context.Context) ([]byte, error) {
	return n.content.Get(func() ([]byte, error) {
		return n.node.Read(ctx)
	})
}

// fill sets the attributes of the node. File sizes are only known once the
// content was read, which happens here unless direct IO is on.
func (n *treeNode) fill(ctx context.Context, out *fuse.Attr) syscall.Errno {
	out.Mode = fileMode
	if n.isDir {
		out.Mode = dirMode
	} else if !n.opts.DirectIO {
		data, err := n.read(ctx)
		if err != nil {
			return toErrno(err)
		}
		out.Size = uint64(len(data))
	}
	out.Nlink = 1
	out.Mtime = uint64(n.mtime.Unix())
	out.Atime = out.Mtime
	out.Ctime = out.Mtime
	out.Uid = uint32(os.Getuid())
	out.Gid = uint32(os.Getgid())
	out.Blksize = 4096
	return 0
}

func (n *treeNode) Getattr(ctx context.Context, fh fs.FileHandle, out *fuse.AttrOut) syscall.Errno {
	return n.fill(ctx, &out.Attr)
}

// lookupChild resolves name without registering an inode.
func (n *treeNode) lookupChild(ctx context.Context, name string) (*treeNode, syscall.Errno) {
	if !n.isDir {
		return nil, syscall.ENOTDIR
	}
	child := n.node.Child(name)
	exists, err := child.Exists(ctx)
	if err != nil {
		return nil, toErrno(err)
	}
	if !exists {
		return nil, syscall.ENOENT
	}
	isDir, err := child.IsDir(ctx)
	if err != nil {
		return nil, toErrno(err)
	}
	return n.newChild(child, isDir), 0
}

func (n *treeNode) Lookup(ctx context.Context, name string, out *fuse.EntryOut) (*fs.Inode, syscall.Errno) {
	logger := util.GetLogger("filesystem")
	child, errno := n.lookupChild(ctx, name)
	if errno != 0 {
		logger.Trace().Str("path", n.node.Path()).Str("name", name).Err(errno).Msg("Lookup failed")
		return nil, errno
	}
	if errno := child.fill(ctx, &out.Attr); errno != 0 {
		return nil, errno
	}
	return n.NewInode(ctx, child, fs.StableAttr{Mode: out.Mode & syscall.S_IFMT}), 0
}

// entries lists the directory for Readdir.
func (n *treeNode) entries(ctx context.Context) ([]fuse.DirEntry, syscall.Errno) {
	if !n.isDir {
		return nil, syscall.ENOTDIR
	}
	children, err := n.node.Children(ctx)
	if err != nil {
		return nil, toErrno(err)
	}
	out := make([]fuse.DirEntry, 0, len(children))
	for _, c := range children {
		isDir, err := c.IsDir(ctx)
		if err != nil {
			return nil, toErrno(err)
		}
		mode := uint32(syscall.S_IFREG)
		if isDir {
			mode = syscall.S_IFDIR
		}
		out = append(out, fuse.DirEntry{Name: c.Name(), Mode: mode})
	}
	return out, 0
}

func (n *treeNode) Readdir(ctx context.Context) (fs.DirStream, syscall.Errno) {
	entries, errno := n.entries(ctx)
	if errno != 0 {
		return nil, errno
	}
	return fs.NewListDirStream(entries), 0
}

// fileHandle holds the content read on open.
type fileHandle struct {
	data []byte
}

func (n *treeNode) Open(ctx context.Context, flags uint32) (fs.FileHandle, uint32, syscall.Errno) {
	if n.isDir {
		return nil, 0, syscall.EISDIR
	}
	if flags&(syscall.O_WRONLY|syscall.O_RDWR|syscall.O_TRUNC|syscall.O_APPEND) != 0 {
		return nil, 0, syscall.EROFS
	}
	data, err := n.read(ctx)
	if err != nil {
		metrics.RecordMountRead(false, 0)
		logger := util.GetLogger("filesystem")
		logger.Error().Err(err).Str("path", n.node.PrintablePath()).Msg("Read failed")
		return nil, 0, toErrno(err)
	}
	var fuseFlags uint32 = fuse.FOPEN_KEEP_CACHE
	if n.opts.DirectIO {
		fuseFlags = fuse.FOPEN_DIRECT_IO
	}
	return &fileHandle{data: data}, fuseFlags, 0
}

func (n *treeNode) Read(ctx context.Context, fh fs.FileHandle, dest []byte, off int64) (fuse.ReadResult, syscall.Errno) {
	h, ok := fh.(*fileHandle)
	if !ok {
		return nil, syscall.EIO
	}
	if off >= int64(len(h.data)) {
		return fuse.ReadResultData(nil), 0
	}
	end := min(off+int64(len(dest)), int64(len(h.data)))
	chunk := h.data[off:end]
	metrics.RecordMountRead(true, len(chunk))
	return fuse.ReadResultData(chunk), 0
}

func (n *treeNode) Setattr(ctx context.Context, fh fs.FileHandle, in *fuse.SetAttrIn, out *fuse.AttrOut) syscall.Errno {
	return syscall.EROFS
}

func (n *treeNode) Create(ctx context.Context, name string, flags uint32, mode uint32, out *fuse.EntryOut) (*fs.Inode, fs.FileHandle, uint32, syscall.Errno) {
	return nil, nil, 0, syscall.EROFS
}

func (n *treeNode) Mkdir(ctx context.Context, name string, mode uint32, out *fuse.EntryOut) (*fs.Inode, syscall.Errno) {
	return nil, syscall.EROFS
}

func (n *treeNode) Unlink(ctx context.Context, name string) syscall.Errno {
	return syscall.EROFS
}

func (n *treeNode) Rmdir(ctx context.Context, name string) syscall.Errno {
	return syscall.EROFS
}

func (n *treeNode) Rename(ctx context.Context, name string, newParent fs.InodeEmbedder, newName string, flags uint32) syscall.Errno {
	return syscall.EROFS
}
