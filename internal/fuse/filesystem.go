// Package fuse exposes a single remote file handle as a mounted local
// file. It is read-only: the mounted file reflects a closed rfile.Handle
// and never accepts writes.
package fuse

import (
	"context"
	"log/slog"
	"sync"
	"syscall"
	"time"

	"github.com/hanwen/go-fuse/v2/fs"
	"github.com/hanwen/go-fuse/v2/fuse"

	"github.com/objstore/rfile/rfile"
)

// safeInt64ToUint64 prevents a negative size from wrapping into a huge
// unsigned file length.
func safeInt64ToUint64(i int64) uint64 {
	if i < 0 {
		return 0
	}
	return uint64(i)
}

// Config controls the mounted file's reported attributes.
type Config struct {
	UID  uint32
	GID  uint32
	Mode uint32
}

// Root is the filesystem's single directory entry; it adds the mounted
// file as its only child on mount.
type Root struct {
	fs.Inode
	name string
	file *FileNode
}

var _ fs.NodeOnAdder = (*Root)(nil)

// OnAdd attaches the single mounted file under the root directory.
func (r *Root) OnAdd(ctx context.Context) {
	child := r.NewPersistentInode(ctx, r.file, fs.StableAttr{Mode: fuse.S_IFREG})
	r.AddChild(r.name, child, false)
}

// FileNode is the read-only FUSE node backing one rfile.Handle.
type FileNode struct {
	fs.Inode

	mu     sync.Mutex
	handle *rfile.Handle
	size   int64
	cfg    Config
	log    *slog.Logger
}

var (
	_ fs.NodeGetattrer = (*FileNode)(nil)
	_ fs.NodeOpener    = (*FileNode)(nil)
	_ fs.NodeReader    = (*FileNode)(nil)
)

// NewRoot builds the root node for a filesystem exposing a single closed
// remote file under name.
func NewRoot(handle *rfile.Handle, name string, size int64, cfg Config, log *slog.Logger) *Root {
	if log == nil {
		log = slog.Default()
	}
	if cfg.Mode == 0 {
		cfg.Mode = 0o444
	}
	return &Root{
		name: name,
		file: &FileNode{handle: handle, size: size, cfg: cfg, log: log},
	}
}

// Getattr reports the file's size and read-only permissions.
func (f *FileNode) Getattr(ctx context.Context, fh fs.FileHandle, out *fuse.AttrOut) syscall.Errno {
	out.Mode = f.cfg.Mode
	out.Size = safeInt64ToUint64(f.size)
	out.Owner = fuse.Owner{Uid: f.cfg.UID, Gid: f.cfg.GID}
	now := time.Now()
	out.SetTimes(&now, &now, &now)
	return 0
}

// Open rejects anything but read-only access.
func (f *FileNode) Open(ctx context.Context, flags uint32) (fs.FileHandle, uint32, syscall.Errno) {
	if flags&(syscall.O_WRONLY|syscall.O_RDWR) != 0 {
		return nil, 0, syscall.EROFS
	}
	return nil, fuse.FOPEN_KEEP_CACHE, 0
}

// Read seeks the backing handle to off and issues a single ranged read
// into dest. Concurrent reads are serialized because rfile.Handle is not
// safe for concurrent Seek/Read from multiple goroutines.
func (f *FileNode) Read(ctx context.Context, fh fs.FileHandle, dest []byte, off int64) (fuse.ReadResult, syscall.Errno) {
	f.mu.Lock()
	defer f.mu.Unlock()

	if err := f.handle.Seek(ctx, off); err != nil {
		f.log.Warn("fuse read seek failed", "offset", off, "error", err)
		return nil, syscall.EIO
	}
	n, err := f.handle.Read(ctx, dest)
	if err != nil {
		f.log.Warn("fuse read failed", "offset", off, "error", err)
		return nil, syscall.EIO
	}
	return fuse.ReadResultData(dest[:n]), 0
}
