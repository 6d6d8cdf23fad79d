package rfile

import (
	"context"
	"io"
	"os"
	"path/filepath"

	"github.com/objstore/rfile/internal/apiclient"
	"github.com/objstore/rfile/internal/config"
	"github.com/objstore/rfile/internal/httpcaller"
	"github.com/objstore/rfile/pkg/errors"
	"github.com/objstore/rfile/pkg/utils"
)

// localReadBufferBytes bounds how much of a local file UploadLocalFile
// holds in memory per Write call.
const localReadBufferBytes = 4 << 20

// UploadLocalFile creates a new remote file, streams the local file at
// path into it in localReadBufferBytes-sized chunks, tags it with its base
// name as a property, and closes it. The local file handle and its read
// buffer are released on every exit path.
func UploadLocalFile(ctx context.Context, client apiclient.Client, caller *httpcaller.Caller, cfg config.Configuration, path, media string, fields map[string]interface{}, waitForClose bool) (*Handle, error) {
	if err := utils.ValidatePath(path, true); err != nil {
		return nil, errors.NewError(errors.ErrCodeInternalError, "invalid local file path").
			WithComponent("rfile").WithOperation("upload_local_file").WithCause(err)
	}

	f, err := os.Open(path)
	if err != nil {
		return nil, errors.NewError(errors.ErrCodeInternalError, "failed to open local file").
			WithComponent("rfile").WithOperation("upload_local_file").WithCause(err)
	}
	defer f.Close()

	h := New(client, caller, cfg)
	if err := h.Create(ctx, media, fields); err != nil {
		return nil, err
	}

	buf := make([]byte, localReadBufferBytes)
	for {
		n, readErr := f.Read(buf)
		if n > 0 {
			if _, err := h.Write(ctx, buf[:n]); err != nil {
				return nil, err
			}
		}
		if readErr == io.EOF {
			break
		}
		if readErr != nil {
			return nil, errors.NewError(errors.ErrCodeInternalError, "failed to read local file").
				WithComponent("rfile").WithOperation("upload_local_file").WithCause(readErr)
		}
	}

	name := filepath.Base(path)
	if err := client.SetProperties(ctx, h.ID(), map[string]string{"name": name}); err != nil {
		return nil, errors.NewError(errors.ErrCodeAPIError, "failed to set name property").
			WithComponent("rfile").WithOperation("upload_local_file").WithCause(err)
	}

	if err := h.Close(ctx, waitForClose); err != nil {
		return nil, err
	}
	return h, nil
}

// DownloadDXFile opens id, requires it to be closed, and streams its
// contents to a local file using a linear query of the given chunk size.
func DownloadDXFile(ctx context.Context, client apiclient.Client, caller *httpcaller.Caller, cfg config.Configuration, id, path string, chunkSize int64) error {
	if err := utils.ValidatePath(path, true); err != nil {
		return errors.NewError(errors.ErrCodeInternalError, "invalid local file path").
			WithComponent("rfile").WithOperation("download_dx_file").WithCause(err)
	}

	h := New(client, caller, cfg)
	if err := h.SetIDs(ctx, id, ""); err != nil {
		return err
	}

	closed, err := h.IsClosed(ctx)
	if err != nil {
		return err
	}
	if !closed {
		return errors.NewError(errors.ErrCodeInvalidState, "remote file must be closed before it can be downloaded").
			WithComponent("rfile").WithOperation("download_dx_file")
	}

	out, err := os.Create(path)
	if err != nil {
		return errors.NewError(errors.ErrCodeInternalError, "failed to create local file").
			WithComponent("rfile").WithOperation("download_dx_file").WithCause(err)
	}
	defer out.Close()

	if err := h.StartLinearQuery(ctx, -1, -1, chunkSize, cfg.Download.DefaultMaxChunks, cfg.Download.DefaultThreadCount); err != nil {
		return err
	}
	defer h.StopLinearQuery()

	for {
		chunk, ok, err := h.GetNextChunk(ctx)
		if err != nil {
			return err
		}
		if !ok {
			break
		}
		if _, err := out.Write(chunk); err != nil {
			return errors.NewError(errors.ErrCodeInternalError, "failed to write local file").
				WithComponent("rfile").WithOperation("download_dx_file").WithCause(err)
		}
	}
	return nil
}

// Clone copies h's remote object into destProject/destFolder and returns a
// handle bound to the clone.
func (h *Handle) Clone(ctx context.Context, destProject, destFolder string) (*Handle, error) {
	result, err := h.client.Clone(ctx, h.id, destProject, destFolder)
	if err != nil {
		return nil, errors.NewError(errors.ErrCodeAPIError, "failed to clone remote file").
			WithComponent("rfile").WithOperation("clone").WithCause(err)
	}

	clone := New(h.client, h.caller, h.cfg)
	if err := clone.SetIDs(ctx, result.ID, result.Project); err != nil {
		return nil, err
	}
	return clone, nil
}
