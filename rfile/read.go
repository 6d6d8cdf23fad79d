package rfile

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"sync"
	"time"

	"github.com/objstore/rfile/pkg/errors"
)

// Read performs a single ranged GET starting at h.Pos and copies up to
// len(dst) bytes into dst. It returns the number of bytes copied.
func (h *Handle) Read(ctx context.Context, dst []byte) (int, error) {
	download, err := h.client.FileDownload(ctx, h.id)
	if err != nil {
		return 0, errors.NewError(errors.ErrCodeAPIError, "failed to request download URL").
			WithComponent("rfile").WithOperation("read").WithCause(err)
	}

	if h.length < 0 {
		desc, err := h.client.Describe(ctx, h.id)
		if err != nil {
			return 0, errors.NewError(errors.ErrCodeDescribeError, "describe failed").
				WithComponent("rfile").WithOperation("read").WithCause(err)
		}
		h.length = desc.Size
	}

	if h.pos >= h.length {
		return 0, io.EOF
	}

	endByte := h.length - 1
	if h.pos+int64(len(dst))-1 < endByte {
		endByte = h.pos + int64(len(dst)) - 1
	}
	if endByte == h.length-1 {
		h.eof = true
	}

	headers := map[string][]string{
		"Range": {fmt.Sprintf("bytes=%d-%d", h.pos, endByte)},
	}
	resp, err := h.caller.Invoke(ctx, http.MethodGet, download.URL, headers, nil)
	if err != nil {
		return 0, errors.NewError(errors.ErrCodeDownloadFailed, "ranged read failed").
			WithComponent("rfile").WithOperation("read").WithCause(err)
	}

	n := copy(dst, resp.Body)
	h.pos += int64(n)
	h.mtr.ChunkDownloaded(int64(n))
	return n, nil
}

// linearQuery holds the state of an in-progress ordered parallel range
// download, valid between StartLinearQuery and StopLinearQuery.
type linearQuery struct {
	downloadURL string
	queryEnd    int64
	chunkLimit  int64
	maxChunks   int

	startMu    sync.Mutex
	queryStart int64

	// resultsMu also guards fault: a worker that hits a download error
	// sets it once under the same lock it uses to insert into results,
	// so GetNextChunk's check for fault is synchronized with every
	// insert instead of racing a bare field read.
	resultsMu  sync.Mutex
	nextResult int64
	results    map[int64][]byte
	fault      error

	cancel chan struct{}
	once   sync.Once
	wg     sync.WaitGroup
}

// StartLinearQuery requires the handle to be closed. It stops any prior
// query, then spawns threadCount workers that fetch disjoint byte ranges
// from [start, start+numBytes) and hold them in a bounded reorder buffer
// for delivery via GetNextChunk.
func (h *Handle) StartLinearQuery(ctx context.Context, start, numBytes, chunkSize int64, maxChunks, threadCount int) error {
	closed, err := h.IsClosed(ctx)
	if err != nil {
		return err
	}
	if !closed {
		return errors.NewError(errors.ErrCodePreconditionFailed, "linear query requires a closed file").
			WithComponent("rfile").WithOperation("start_linear_query")
	}

	h.StopLinearQuery()

	if start == -1 {
		start = 0
	}
	if numBytes == -1 && h.length < 0 {
		desc, err := h.client.Describe(ctx, h.id)
		if err != nil {
			return errors.NewError(errors.ErrCodeDescribeError, "describe failed").
				WithComponent("rfile").WithOperation("start_linear_query").WithCause(err)
		}
		h.length = desc.Size
	}
	end := h.length
	if numBytes != -1 {
		end = start + numBytes
	}

	download, err := h.client.FileDownload(ctx, h.id)
	if err != nil {
		return errors.NewError(errors.ErrCodeAPIError, "failed to request download URL").
			WithComponent("rfile").WithOperation("start_linear_query").WithCause(err)
	}

	lq := &linearQuery{
		downloadURL: download.URL,
		queryStart:  start,
		queryEnd:    end,
		chunkLimit:  chunkSize,
		maxChunks:   maxChunks,
		nextResult:  start,
		results:     make(map[int64][]byte),
		cancel:      make(chan struct{}),
	}
	h.lq = lq

	for i := 0; i < threadCount; i++ {
		lq.wg.Add(1)
		go func() {
			defer lq.wg.Done()
			h.linearQueryWorker(ctx, lq)
		}()
	}

	return nil
}

// linearQueryWorker claims disjoint ranges from lq.queryStart, fetches
// each one (re-GETting the unfilled suffix if the server returns a short
// body), and inserts the result into the reorder buffer, blocking under
// back-pressure if the buffer is full and the caller hasn't yet caught up.
func (h *Handle) linearQueryWorker(ctx context.Context, lq *linearQuery) {
	for {
		select {
		case <-lq.cancel:
			return
		default:
		}

		lq.startMu.Lock()
		if lq.queryStart >= lq.queryEnd {
			lq.startMu.Unlock()
			return
		}
		start := lq.queryStart
		lq.queryStart += lq.chunkLimit
		lq.startMu.Unlock()

		end := start + lq.chunkLimit - 1
		if end > lq.queryEnd-1 {
			end = lq.queryEnd - 1
		}

		data, err := h.fetchRange(ctx, lq.downloadURL, start, end)
		if err != nil {
			lq.resultsMu.Lock()
			if lq.fault == nil {
				lq.fault = err
			}
			lq.resultsMu.Unlock()
			return
		}

		for {
			lq.resultsMu.Lock()
			if lq.nextResult == start || len(lq.results) < lq.maxChunks {
				lq.results[start] = data
				lq.resultsMu.Unlock()
				break
			}
			lq.resultsMu.Unlock()
			select {
			case <-lq.cancel:
				return
			case <-time.After(spinDelay):
			}
		}

		select {
		case <-lq.cancel:
			return
		default:
		}
	}
}

// fetchRange fetches [start, end] inclusive, reissuing additional ranged
// GETs for any unfilled suffix if the server returns a short body.
func (h *Handle) fetchRange(ctx context.Context, url string, start, end int64) ([]byte, error) {
	want := end - start + 1
	result := make([]byte, 0, want)

	for int64(len(result)) < want {
		lo := start + int64(len(result))
		headers := map[string][]string{
			"Range": {fmt.Sprintf("bytes=%d-%d", lo, end)},
		}
		resp, err := h.caller.Invoke(ctx, http.MethodGet, url, headers, nil)
		if err != nil {
			return nil, errors.NewError(errors.ErrCodeDownloadFailed, "ranged read failed").
				WithComponent("rfile").WithOperation("linear_query").
				WithDetail("start", start).WithDetail("end", end).WithCause(err)
		}
		if len(resp.Body) == 0 {
			return nil, errors.NewError(errors.ErrCodeShortRead, "server returned an empty body for a non-empty range").
				WithComponent("rfile").WithOperation("linear_query").
				WithDetail("start", start).WithDetail("end", end)
		}
		result = append(result, resp.Body...)
		h.mtr.ChunkDownloaded(int64(len(resp.Body)))
	}

	if int64(len(result)) != want {
		return nil, errors.NewError(errors.ErrCodeRangeUnsatisfied, "range fetch returned an unexpected length").
			WithComponent("rfile").WithOperation("linear_query").
			WithDetail("start", start).WithDetail("end", end).WithDetail("got", len(result))
	}
	return result, nil
}

// GetNextChunk blocks until the next byte range in offset order is
// available and returns it. ok is false once the query is exhausted or no
// query is active.
func (h *Handle) GetNextChunk(ctx context.Context) ([]byte, bool, error) {
	lq := h.lq
	if lq == nil {
		return nil, false, nil
	}

	for {
		lq.resultsMu.Lock()
		if lq.nextResult >= lq.queryEnd {
			lq.resultsMu.Unlock()
			return nil, false, nil
		}
		if chunk, ok := lq.results[lq.nextResult]; ok {
			delete(lq.results, lq.nextResult)
			lq.nextResult += int64(len(chunk))
			lq.resultsMu.Unlock()
			return chunk, true, nil
		}
		fault := lq.fault
		lq.resultsMu.Unlock()

		if fault != nil {
			return nil, false, fault
		}

		select {
		case <-ctx.Done():
			return nil, false, ctx.Err()
		case <-time.After(spinDelay):
		}
	}
}

// StopLinearQuery cancels and joins all linear-query workers and discards
// the reorder buffer. It is safe to call when no query is active.
func (h *Handle) StopLinearQuery() {
	lq := h.lq
	if lq == nil {
		return
	}
	lq.once.Do(func() { close(lq.cancel) })
	lq.wg.Wait()
	h.lq = nil
}
