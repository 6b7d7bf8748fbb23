// Package filesystem serves a tree as a read only FUSE file system.
package filesystem

import (
	"context"
	"errors"
	"fmt"
	"os"
	"syscall"
	"time"

	"github.com/brettbedarf/treefs"
	"github.com/brettbedarf/treefs/config"
	"github.com/brettbedarf/treefs/internal/util"
	"github.com/hanwen/go-fuse/v2/fs"
	"github.com/hanwen/go-fuse/v2/fuse"
)

// Options controls how a tree is mounted.
type Options struct {
	config.MountOptions
	AttrTimeout  time.Duration
	EntryTimeout time.Duration
	// DirectIO bypasses the page cache. Without it file sizes are reported
	// exactly, which means reading every file that is stat'ed.
	DirectIO bool
	LogLvl   util.LogLevel
}

// OptionsFromConfig takes the mount settings of cfg.
func OptionsFromConfig(cfg *config.Config) Options {
	return Options{
		MountOptions: cfg.MountOptions,
		AttrTimeout:  seconds(cfg.AttrTimeout),
		EntryTimeout: seconds(cfg.EntryTimeout),
		DirectIO:     cfg.DirectIO,
		LogLvl:       cfg.LogLvl,
	}
}

func seconds(s float64) time.Duration {
	return time.Duration(s * float64(time.Second))
}

// Server wraps the underlying fuse.Server.
type Server struct {
	server *fuse.Server
}

// Mount serves root at mountPoint and returns once the mount is ready.
func Mount(mountPoint string, root treefs.Node, opts Options) (*Server, error) {
	logger := util.GetLogger("filesystem")

	if opts.FsName == "" {
		opts.FsName = config.DefaultFsName
	}
	if opts.Name == "" {
		opts.Name = config.DefaultName
	}
	if err := os.MkdirAll(mountPoint, 0o755); err != nil {
		return nil, fmt.Errorf("create mount point: %w", err)
	}

	attrTimeout, entryTimeout := opts.AttrTimeout, opts.EntryTimeout
	fsOpts := &fs.Options{
		MountOptions: fuse.MountOptions{
			FsName:  opts.FsName,
			Name:    opts.Name,
			Debug:   opts.Debug,
			Options: []string{"ro"},
			Logger:  util.NewLogLogger("fuse", opts.LogLvl),
		},
		AttrTimeout:  &attrTimeout,
		EntryTimeout: &entryTimeout,
		UID:          uint32(os.Getuid()),
		GID:          uint32(os.Getgid()),
	}

	server, err := fs.Mount(mountPoint, newDirNode(root, &opts), fsOpts)
	if err != nil {
		return nil, fmt.Errorf("mount: %w", err)
	}
	logger.Info().Str("mountpoint", mountPoint).Str("root", root.PrintablePath()).Msg("Mounted")
	return &Server{server: server}, nil
}

// Wait blocks until the file system is unmounted.
func (s *Server) Wait() {
	s.server.Wait()
}

// Unmount cleanly unmounts the filesystem.
func (s *Server) Unmount() error {
	return s.server.Unmount()
}

// toErrno maps tree errors onto the errno reported to the kernel.
func toErrno(err error) syscall.Errno {
	var notAllowed *treefs.OperationNotAllowedError
	switch {
	case err == nil:
		return 0
	case treefs.IsNotFound(err):
		return syscall.ENOENT
	case errors.As(err, &notAllowed):
		return syscall.EPERM
	case treefs.IsMustDeleteRecursively(err):
		return syscall.ENOTEMPTY
	case errors.Is(err, context.Canceled):
		return syscall.EINTR
	default:
		return syscall.EIO
	}
}
