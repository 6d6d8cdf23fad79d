package rfile

import (
	"context"
	"log/slog"
	"sync"

	"github.com/objstore/rfile/internal/apiclient"
	"github.com/objstore/rfile/internal/config"
	"github.com/objstore/rfile/internal/httpcaller"
	"github.com/objstore/rfile/internal/queue"
	"github.com/objstore/rfile/pkg/errors"
	"github.com/sourcegraph/conc/pool"
)

// uploadJob is a single part awaiting upload, owned by the queue until a
// worker consumes it. ctx is the context of the Write/Flush call that
// produced it; the worker passes it to uploadPart with its cancellation
// and deadline stripped (context.WithoutCancel), so the upload carries the
// call's values but is not aborted when that call's ctx ends.
type uploadJob struct {
	bytes     []byte
	partIndex int
	ctx       context.Context
}

// Handle is a client-side handle for one remote file. It is not safe for
// concurrent use by multiple caller goroutines: Write, Read, Seek, and the
// linear-query control operations assume a single driving goroutine. The
// upload and download worker pools it spawns internally are safe to run
// concurrently with each other and with the caller.
type Handle struct {
	client apiclient.Client
	caller *httpcaller.Caller
	cfg    config.Configuration
	log    *slog.Logger
	mtr    metricsSink

	id      string
	project string

	pos    int64
	length int64
	eof    bool
	closed bool
	closedCached bool

	writeBuf      []byte
	nextPartIndex int
	uploadQueue   *queue.Queue[uploadJob]
	uploadPool    *pool.ErrorPool

	// poolCtx/poolCancel scope the upload worker pool's own lifetime,
	// independent of any per-call ctx passed to Write. Workers block on
	// uploadQueue.Consume(poolCtx) for as long as the pool lives, which
	// can span many Write calls; a caller's own ctx expiring between
	// calls must never silently drain a worker out of the pool.
	poolCtx    context.Context
	poolCancel context.CancelFunc

	countMu              sync.Mutex
	waitingOnConsume     int
	notWaitingOnConsume  int
	workerCount          int

	// uploadFault is the first error a write-worker goroutine surfaced
	// for the in-progress upload; it is consumed and cleared by
	// joinAllWriteThreads so a past failure never poisons a later Flush
	// or Close once the workers that produced it have been torn down.
	uploadFaultOnce sync.Once
	uploadFault     error

	lq *linearQuery
}

// Option configures a new Handle.
type Option func(*Handle)

// WithLogger overrides the diagnostic sink.
func WithLogger(log *slog.Logger) Option {
	return func(h *Handle) { h.log = log }
}

// WithMetrics overrides the metrics sink.
func WithMetrics(m metricsSink) Option {
	return func(h *Handle) {
		if m != nil {
			h.mtr = m
		}
	}
}

// New creates a Handle bound to no remote object; call Create or SetIDs
// before Write/Read.
func New(client apiclient.Client, caller *httpcaller.Caller, cfg config.Configuration, opts ...Option) *Handle {
	h := &Handle{
		client: client,
		caller: caller,
		cfg:    cfg,
		log:    slog.Default(),
		mtr:    noopMetricsSink{},
		length: -1,
	}
	h.resetState()
	for _, opt := range opts {
		opt(h)
	}
	return h
}

// resetState restores per-object counters to their initial values. It does
// not touch the bound id/project.
func (h *Handle) resetState() {
	h.pos = 0
	h.length = -1
	h.eof = false
	h.closed = false
	h.closedCached = false
	h.writeBuf = h.writeBuf[:0]
	h.nextPartIndex = 1
	h.uploadQueue = nil
	h.uploadPool = nil
	h.poolCtx = nil
	h.poolCancel = nil
	h.waitingOnConsume = 0
	h.notWaitingOnConsume = 0
	h.workerCount = 0
	h.uploadFaultOnce = sync.Once{}
	h.uploadFault = nil
}

// Open binds a new Handle to an existing remote object outside any
// project. It is a thin convenience wrapper over New followed by SetIDs.
func Open(ctx context.Context, client apiclient.Client, caller *httpcaller.Caller, cfg config.Configuration, id string, opts ...Option) (*Handle, error) {
	return OpenInProject(ctx, client, caller, cfg, id, "", opts...)
}

// OpenInProject binds a new Handle to an existing remote object scoped to
// project. It is a thin convenience wrapper over New followed by SetIDs.
func OpenInProject(ctx context.Context, client apiclient.Client, caller *httpcaller.Caller, cfg config.Configuration, id, project string, opts ...Option) (*Handle, error) {
	h := New(client, caller, cfg, opts...)
	if err := h.SetIDs(ctx, id, project); err != nil {
		return nil, err
	}
	return h, nil
}

// Create allocates a new remote file and binds this handle to it.
func (h *Handle) Create(ctx context.Context, media string, fields map[string]interface{}) error {
	result, err := h.client.FileNew(ctx, apiclient.FileNewParams{
		Project: h.project,
		Media:   media,
		Fields:  fields,
	})
	if err != nil {
		return errors.NewError(errors.ErrCodeAPIError, "failed to create remote file").
			WithComponent("rfile").WithOperation("create").WithCause(err)
	}
	h.resetState()
	h.id = result.ID
	return nil
}

// SetIDs rebinds the handle to an existing remote object. It halts any
// linear query, flushes pending writes, then resets internal state.
func (h *Handle) SetIDs(ctx context.Context, id, project string) error {
	h.StopLinearQuery()
	if err := h.Flush(ctx); err != nil {
		return err
	}
	h.resetState()
	h.id = id
	h.project = project
	return nil
}

// ID returns the bound remote file id.
func (h *Handle) ID() string { return h.id }

// Project returns the bound project id.
func (h *Handle) Project() string { return h.project }

// Pos returns the current read position.
func (h *Handle) Pos() int64 { return h.pos }

// EOF reports whether the last read reached the end of the file.
func (h *Handle) EOF() bool { return h.eof }

// Seek requires the file to be closed and sets the read position. If the
// new position is before the known length, the eof flag is cleared.
func (h *Handle) Seek(ctx context.Context, pos int64) error {
	closed, err := h.IsClosed(ctx)
	if err != nil {
		return err
	}
	if !closed {
		return errors.NewError(errors.ErrCodePreconditionFailed, "seek requires a closed file").
			WithComponent("rfile").WithOperation("seek")
	}
	h.pos = pos
	if h.length < 0 || pos < h.length {
		h.eof = false
	}
	return nil
}

// IsOpen reports whether the remote object's state is "open". It
// short-circuits to false once IsClosed has cached a "closed" result,
// without a further describe call.
func (h *Handle) IsOpen(ctx context.Context) (bool, error) {
	if h.closedCached {
		return false, nil
	}
	result, err := h.client.Describe(ctx, h.id)
	if err != nil {
		return false, errors.NewError(errors.ErrCodeDescribeError, "describe failed").
			WithComponent("rfile").WithOperation("is_open").WithCause(err)
	}
	return result.State == "open", nil
}

// IsClosed reports whether the remote object's state is "closed". Once
// true, the result is cached and no further describe calls are made.
func (h *Handle) IsClosed(ctx context.Context) (bool, error) {
	if h.closedCached {
		return true, nil
	}
	result, err := h.client.Describe(ctx, h.id)
	if err != nil {
		return false, errors.NewError(errors.ErrCodeDescribeError, "describe failed").
			WithComponent("rfile").WithOperation("is_closed").WithCause(err)
	}
	closed := result.State == "closed"
	if closed {
		h.closedCached = true
	}
	return closed, nil
}
