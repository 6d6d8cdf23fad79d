package rfile

import (
	"context"
	"net/http"
	"strconv"
	"sync"
	"time"

	"github.com/objstore/rfile/internal/queue"
	"github.com/objstore/rfile/pkg/errors"
	"github.com/sourcegraph/conc/pool"
	"go.uber.org/multierr"
)

// spinDelay is the sleep used by the quiescence spin-waits. The design is
// intentionally simple; a condition-variable refactor would not change
// observable behavior.
const spinDelay = time.Millisecond

// Write appends b to the handle's part buffer. Whenever the buffer fills
// to MaxPartBytes, the full part is produced to the upload queue and the
// remainder of b is processed against the next part boundary.
func (h *Handle) Write(ctx context.Context, b []byte) (int, error) {
	if h.closed {
		return 0, errors.NewError(errors.ErrCodePreconditionFailed, "write on a closed file").
			WithComponent("rfile").WithOperation("write")
	}

	total := len(b)
	for len(b) > 0 {
		remaining := int(h.cfg.Upload.MaxPartBytes) - len(h.writeBuf)
		if len(b) < remaining {
			h.writeBuf = append(h.writeBuf, b...)
			return total, nil
		}

		h.writeBuf = append(h.writeBuf, b[:remaining]...)
		b = b[remaining:]

		if err := h.enqueuePart(ctx, h.writeBuf); err != nil {
			return total - len(b), err
		}
		h.writeBuf = make([]byte, 0, h.cfg.Upload.MaxPartBytes)
	}
	return total, nil
}

// enqueuePart spawns the worker pool on first use, then produces the given
// bytes as the next part and increments the part index.
func (h *Handle) enqueuePart(ctx context.Context, part []byte) error {
	h.ensureWorkerPool()

	job := uploadJob{bytes: append([]byte(nil), part...), partIndex: h.nextPartIndex, ctx: ctx}
	if err := h.uploadQueue.Produce(ctx, job); err != nil {
		return errors.NewError(errors.ErrCodeUploadFailed, "failed to enqueue part").
			WithComponent("rfile").WithOperation("write").
			WithDetail("part_index", job.partIndex).WithCause(err)
	}
	h.nextPartIndex++
	h.mtr.QueueDepth(h.uploadQueue.Size())
	return nil
}

// ensureWorkerPool lazily creates the upload queue and worker pool. The
// workers consume off a context scoped to the pool's own lifetime, not the
// ctx of whichever Write call happens to trigger pool creation: the pool
// persists across many Write calls until joinAllWriteThreads tears it
// down, so a single call's ctx expiring must never drain a worker out
// from under later calls still producing into the same queue.
func (h *Handle) ensureWorkerPool() {
	if h.uploadQueue != nil {
		return
	}

	workers := h.cfg.Upload.MaxWriteThreads
	h.uploadQueue = queue.New[uploadJob](workers)
	h.uploadPool = pool.New().WithErrors().WithMaxGoroutines(workers)
	h.workerCount = workers
	h.poolCtx, h.poolCancel = context.WithCancel(context.Background())

	poolCtx := h.poolCtx
	for i := 0; i < workers; i++ {
		h.uploadPool.Go(func() error {
			return h.writeWorkerLoop(poolCtx)
		})
	}
}

// writeWorkerLoop implements the upload worker's consume-upload cycle. It
// exits cleanly when the queue is canceled or the pool's own context is
// canceled by joinAllWriteThreads. Each uploadPart call runs under the
// per-job ctx with its cancellation and deadline removed, so a part that
// was accepted into the queue is uploaded even if the producing call's
// ctx ends first.
func (h *Handle) writeWorkerLoop(poolCtx context.Context) error {
	for {
		h.countMu.Lock()
		h.waitingOnConsume++
		h.countMu.Unlock()

		job, ok := h.uploadQueue.Consume(poolCtx)
		if !ok {
			return nil
		}

		h.countMu.Lock()
		h.waitingOnConsume--
		h.notWaitingOnConsume++
		h.countMu.Unlock()

		if err := h.uploadPart(context.WithoutCancel(job.ctx), job); err != nil {
			h.uploadFaultOnce.Do(func() { h.uploadFault = err })
			h.mtr.PartUploadFailed()
		} else {
			h.mtr.PartUploaded(int64(len(job.bytes)))
		}

		h.countMu.Lock()
		h.notWaitingOnConsume--
		h.countMu.Unlock()
	}
}

// uploadPart requests a pre-signed upload URL for the given part and POSTs
// its bytes through the retrying HTTP caller.
func (h *Handle) uploadPart(ctx context.Context, job uploadJob) error {
	result, err := h.client.FileUpload(ctx, h.id, job.partIndex)
	if err != nil {
		return errors.NewError(errors.ErrCodeAPIError, "failed to request part upload URL").
			WithComponent("rfile").WithOperation("write").
			WithDetail("part_index", job.partIndex).WithCause(err)
	}

	headers := map[string][]string{
		"Content-Length": {strconv.Itoa(len(job.bytes))},
	}
	if _, err := h.caller.Invoke(ctx, http.MethodPost, result.URL, headers, job.bytes); err != nil {
		return errors.NewError(errors.ErrCodeUploadFailed, "part upload failed").
			WithComponent("rfile").WithOperation("write").
			WithDetail("part_index", job.partIndex).WithCause(err)
	}
	return nil
}

// joinAllWriteThreads waits until the queue has been fully claimed, then
// cancels the workers and waits for them to return to a quiescent state
// before joining the pool. It is the only place that tears the pool down.
// The sticky upload fault, if any, is consumed and cleared here: once this
// call returns, a prior part-upload failure no longer affects any later
// Flush or Close on this handle.
func (h *Handle) joinAllWriteThreads() error {
	if h.workerCount == 0 {
		return nil
	}

	for h.uploadQueue.Size() > 0 {
		time.Sleep(spinDelay)
	}

	h.uploadQueue.Cancel()
	h.poolCancel()

	for {
		h.countMu.Lock()
		quiescent := h.notWaitingOnConsume == 0 && h.waitingOnConsume == h.workerCount
		h.countMu.Unlock()
		if quiescent {
			break
		}
		time.Sleep(spinDelay)
	}

	poolErr := h.uploadPool.Wait()

	h.uploadQueue = nil
	h.uploadPool = nil
	h.poolCtx = nil
	h.poolCancel = nil
	h.waitingOnConsume = 0
	h.notWaitingOnConsume = 0
	h.workerCount = 0

	fault := h.uploadFault
	h.uploadFault = nil
	h.uploadFaultOnce = sync.Once{}

	return multierr.Append(fault, poolErr)
}

// Flush produces any residual buffered bytes as a final (possibly short)
// part, then waits for every produced part to finish uploading.
func (h *Handle) Flush(ctx context.Context) error {
	if len(h.writeBuf) > 0 {
		part := h.writeBuf
		h.writeBuf = nil
		if err := h.enqueuePart(ctx, part); err != nil {
			return multierr.Append(err, h.joinAllWriteThreads())
		}
	}
	return h.joinAllWriteThreads()
}

// Close flushes pending writes, asks the API client to close the remote
// object, and optionally blocks until the remote state reaches "closed".
// Close is idempotent: calling it again after it has already succeeded is
// a no-op.
func (h *Handle) Close(ctx context.Context, block bool) error {
	if h.closed {
		return nil
	}

	if err := h.Flush(ctx); err != nil {
		return err
	}

	if err := h.client.FileClose(ctx, h.id); err != nil {
		return errors.NewError(errors.ErrCodeAPIError, "failed to close remote file").
			WithComponent("rfile").WithOperation("close").WithCause(err)
	}

	h.closed = true

	if block {
		if err := h.client.WaitOnState(ctx, h.id, "closed"); err != nil {
			return errors.NewError(errors.ErrCodeAPIError, "failed waiting for remote close").
				WithComponent("rfile").WithOperation("close").WithCause(err)
		}
		h.closedCached = true
	}

	return nil
}

// WaitOnClose blocks until the remote object's state reaches "closed".
func (h *Handle) WaitOnClose(ctx context.Context) error {
	if err := h.client.WaitOnState(ctx, h.id, "closed"); err != nil {
		return errors.NewError(errors.ErrCodeAPIError, "failed waiting for remote close").
			WithComponent("rfile").WithOperation("wait_on_close").WithCause(err)
	}
	h.closedCached = true
	return nil
}
