// Package apiclient defines the external API client contract consumed by
// the remote file handle. The core never implements this contract itself:
// describing, creating, closing, and presigning URLs for file objects are
// the job of the surrounding object-model layer (see spec §6). This
// package exists only to give that boundary a concrete Go interface so the
// core can be built and tested against it.
package apiclient

import "context"

// FileNewParams carries the fields needed to allocate a new remote file.
type FileNewParams struct {
	Project string
	Media   string
	Fields  map[string]interface{}
}

// FileNewResult is the response of allocating a new remote file.
type FileNewResult struct {
	ID string
}

// FileDownloadResult carries a pre-signed GET URL for an entire file.
type FileDownloadResult struct {
	URL string
}

// FileUploadResult carries a pre-signed POST URL for one part.
type FileUploadResult struct {
	URL string
}

// DescribeResult carries the subset of remote file metadata the core needs.
type DescribeResult struct {
	Size  int64
	State string
}

// CloneResult carries the identity of a cloned file.
type CloneResult struct {
	ID      string
	Project string
}

// Client is the external API surface the remote file handle depends on.
// Every method is a synchronous round-trip to the object-model service;
// implementations are responsible for their own retry/backoff policy
// (independent of the core's C1 retrying HTTP caller, which only ever
// talks to pre-signed upload/download URLs, not this API).
type Client interface {
	// FileNew allocates a new remote file object and returns its id.
	FileNew(ctx context.Context, params FileNewParams) (FileNewResult, error)

	// FileDownload returns a pre-signed GET URL for the whole file.
	FileDownload(ctx context.Context, id string) (FileDownloadResult, error)

	// FileUpload returns a pre-signed POST URL for the given 1-based part index.
	FileUpload(ctx context.Context, id string, partIndex int) (FileUploadResult, error)

	// FileClose transitions the remote object toward the "closed" state.
	FileClose(ctx context.Context, id string) error

	// Describe inspects remote metadata (size, state, ...).
	Describe(ctx context.Context, id string) (DescribeResult, error)

	// WaitOnState blocks until the remote object reaches the target state.
	WaitOnState(ctx context.Context, id, target string) error

	// Clone copies a closed file into another project/folder.
	Clone(ctx context.Context, id, destProject, destFolder string) (CloneResult, error)

	// SetProperties attaches key/value properties to the file (used by
	// UploadLocalFile to record the uploaded file's name).
	SetProperties(ctx context.Context, id string, properties map[string]string) error
}
