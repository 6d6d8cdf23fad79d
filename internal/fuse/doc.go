/*
Package fuse mounts a single closed remote file as a read-only local file
using github.com/hanwen/go-fuse/v2.

It is deliberately thin: one mounted file, no directory tree, no writes,
no caching layer of its own beyond what the kernel keeps via
FOPEN_KEEP_CACHE. Reads are served by seeking and reading the backing
rfile.Handle, so every read goes through the ordinary single-range
download path; a linear query started on the same handle does not serve
these reads.

# Usage

	h := rfile.New(client, caller, cfg)
	if err := h.SetIDs(ctx, fileID, project); err != nil {
		log.Fatal(err)
	}
	desc, err := client.Describe(ctx, fileID)
	if err != nil {
		log.Fatal(err)
	}

	root := fuse.NewRoot(h, "data.bin", desc.Size, fuse.Config{}, nil)
	mgr := fuse.NewMountManager(root, "/mnt/rfile", fuse.MountOptions{}, nil)
	if err := mgr.Mount(ctx); err != nil {
		log.Fatal(err)
	}
	defer mgr.Unmount()

# Concurrency

FileNode serializes Seek+Read pairs under a mutex because rfile.Handle
itself is not safe for concurrent Seek/Read calls from multiple
goroutines. This bounds the mount to one in-flight kernel read at a time;
parallelism for bulk transfer is the job of StartLinearQuery, not this
package.
*/
package fuse
