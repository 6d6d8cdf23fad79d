package fuse

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"time"

	"github.com/hanwen/go-fuse/v2/fs"
	"github.com/hanwen/go-fuse/v2/fuse"
)

// MountOptions controls FUSE mount behavior.
type MountOptions struct {
	AllowOther   bool
	Debug        bool
	FSName       string
	AttrTimeout  time.Duration
	EntryTimeout time.Duration
}

// MountManager mounts and unmounts a single-file FUSE filesystem.
type MountManager struct {
	root       *Root
	mountPoint string
	opts       MountOptions
	log        *slog.Logger

	server  *fuse.Server
	mounted bool
}

// NewMountManager builds a manager for mounting root at mountPoint.
func NewMountManager(root *Root, mountPoint string, opts MountOptions, log *slog.Logger) *MountManager {
	if opts.FSName == "" {
		opts.FSName = "rfile"
	}
	if opts.AttrTimeout == 0 {
		opts.AttrTimeout = time.Second
	}
	if opts.EntryTimeout == 0 {
		opts.EntryTimeout = time.Second
	}
	if log == nil {
		log = slog.Default()
	}
	return &MountManager{root: root, mountPoint: mountPoint, opts: opts, log: log}
}

// Mount mounts the filesystem and serves it in the background.
func (m *MountManager) Mount(ctx context.Context) error {
	if m.mounted {
		return fmt.Errorf("fuse: %s is already mounted", m.mountPoint)
	}
	if info, err := os.Stat(m.mountPoint); err != nil || !info.IsDir() {
		return fmt.Errorf("fuse: invalid mount point %q: %w", m.mountPoint, err)
	}

	fuseOpts := &fs.Options{
		MountOptions: fuse.MountOptions{
			AllowOther: m.opts.AllowOther,
			Debug:      m.opts.Debug,
			FsName:     m.opts.FSName,
			Name:       m.opts.FSName,
		},
		EntryTimeout: &m.opts.EntryTimeout,
		AttrTimeout:  &m.opts.AttrTimeout,
	}

	server, err := fs.Mount(m.mountPoint, m.root, fuseOpts)
	if err != nil {
		return fmt.Errorf("fuse: mount failed: %w", err)
	}
	m.server = server
	m.mounted = true

	go func() {
		m.server.Wait()
		m.mounted = false
		m.log.Info("fuse filesystem unmounted", "mount_point", m.mountPoint)
	}()

	m.log.Info("fuse filesystem mounted", "mount_point", m.mountPoint)
	return nil
}

// Unmount unmounts the filesystem.
func (m *MountManager) Unmount() error {
	if !m.mounted || m.server == nil {
		return fmt.Errorf("fuse: %s is not mounted", m.mountPoint)
	}
	if err := m.server.Unmount(); err != nil {
		return fmt.Errorf("fuse: unmount failed: %w", err)
	}
	m.mounted = false
	return nil
}

// IsMounted reports whether the filesystem is currently mounted.
func (m *MountManager) IsMounted() bool { return m.mounted }
