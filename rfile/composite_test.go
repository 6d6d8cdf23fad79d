package rfile

import (
	"context"
	"os"
	"path/filepath"
	"testing"

	"github.com/objstore/rfile/internal/apiclient"
	"github.com/objstore/rfile/internal/config"
	"github.com/objstore/rfile/internal/httpcaller"
	"github.com/objstore/rfile/pkg/errors"
	"github.com/stretchr/testify/require"
)

func TestUploadLocalFile_DownloadDXFile_RoundTrip(t *testing.T) {
	store := newFakeStore()
	defer store.Close()
	client := &fakeClient{store: store}
	caller := httpcaller.New()
	cfg := config.NewDefault()
	cfg.Upload.MaxPartBytes = 32
	cfg.Upload.MaxWriteThreads = 2

	ctx := context.Background()
	dir := t.TempDir()
	src := filepath.Join(dir, "payload.bin")

	content := make([]byte, 777)
	for i := range content {
		content[i] = byte(i % 200)
	}
	require.NoError(t, os.WriteFile(src, content, 0600))

	h, err := UploadLocalFile(ctx, client, caller, *cfg, src, "application/octet-stream", nil, true)
	require.NoError(t, err)
	require.Equal(t, content, store.concat(h.ID()))

	dst := filepath.Join(dir, "downloaded.bin")
	require.NoError(t, DownloadDXFile(ctx, client, caller, *cfg, h.ID(), dst, 64))

	got, err := os.ReadFile(dst)
	require.NoError(t, err)
	require.Equal(t, content, got)
}

func TestDownloadDXFile_RejectsOpenFile(t *testing.T) {
	store := newFakeStore()
	defer store.Close()
	client := &fakeClient{store: store}
	caller := httpcaller.New()
	cfg := config.NewDefault()

	ctx := context.Background()
	result, err := client.FileNew(ctx, apiclient.FileNewParams{})
	require.NoError(t, err)

	dst := filepath.Join(t.TempDir(), "downloaded.bin")
	err = DownloadDXFile(ctx, client, caller, *cfg, result.ID, dst, 64)
	require.Error(t, err)

	var rfErr *errors.RemoteFileError
	require.ErrorAs(t, err, &rfErr)
	require.Equal(t, errors.ErrCodeInvalidState, rfErr.Code)
}

func TestUploadLocalFile_RejectsTraversalPath(t *testing.T) {
	store := newFakeStore()
	defer store.Close()
	client := &fakeClient{store: store}
	caller := httpcaller.New()
	cfg := config.NewDefault()

	_, err := UploadLocalFile(context.Background(), client, caller, *cfg, "../../etc/passwd", "application/octet-stream", nil, true)
	require.Error(t, err)
}
