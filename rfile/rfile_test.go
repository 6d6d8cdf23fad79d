package rfile

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"net/http/httptest"
	"strconv"
	"strings"
	"sync"

	"github.com/objstore/rfile/internal/apiclient"
	"github.com/objstore/rfile/internal/config"
	"github.com/objstore/rfile/internal/httpcaller"
)

// fakeStore is an in-memory object store backing both the fake API client
// and the pre-signed URLs served over HTTP, used to exercise the handle
// end to end without a real object storage service.
type fakeStore struct {
	mu sync.Mutex

	srv *httptest.Server

	nextID int
	files  map[string]*fakeFile
}

type fakeFile struct {
	state      string // "open" or "closed"
	parts      map[int][]byte
	properties map[string]string
}

func newFakeStore() *fakeStore {
	s := &fakeStore{files: make(map[string]*fakeFile)}
	s.srv = httptest.NewServer(http.HandlerFunc(s.handle))
	return s
}

func (s *fakeStore) Close() { s.srv.Close() }

func (s *fakeStore) handle(w http.ResponseWriter, r *http.Request) {
	var id, kind string
	var idx int
	segments := strings.Split(strings.TrimPrefix(r.URL.Path, "/"), "/")
	switch {
	case len(segments) == 3 && segments[0] == "part":
		kind = "part"
		id = segments[1]
		idx, _ = strconv.Atoi(segments[2])
	case len(segments) == 2 && segments[0] == "object":
		kind = "object"
		id = segments[1]
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	f := s.files[id]
	if f == nil {
		w.WriteHeader(http.StatusNotFound)
		return
	}

	switch {
	case kind == "part" && r.Method == http.MethodPost:
		body, _ := io.ReadAll(r.Body)
		f.parts[idx] = body
		w.WriteHeader(http.StatusOK)

	case kind == "object" && r.Method == http.MethodGet:
		data := s.concatLocked(f)
		rng := r.Header.Get("Range")
		lo, hi := int64(0), int64(len(data))-1
		if rng != "" {
			fmt.Sscanf(rng, "bytes=%d-%d", &lo, &hi)
		}
		if hi >= int64(len(data)) {
			hi = int64(len(data)) - 1
		}
		if lo > hi || lo >= int64(len(data)) {
			w.WriteHeader(http.StatusOK)
			return
		}
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write(data[lo : hi+1])

	default:
		w.WriteHeader(http.StatusNotFound)
	}
}

func (s *fakeStore) concatLocked(f *fakeFile) []byte {
	var out []byte
	for i := 1; i <= len(f.parts); i++ {
		out = append(out, f.parts[i]...)
	}
	return out
}

func (s *fakeStore) concat(id string) []byte {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.concatLocked(s.files[id])
}

func (s *fakeStore) partIndices(id string) []int {
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []int
	for idx := range s.files[id].parts {
		out = append(out, idx)
	}
	return out
}

// fakeClient implements apiclient.Client against a fakeStore.
type fakeClient struct {
	store *fakeStore
}

func (c *fakeClient) FileNew(ctx context.Context, params apiclient.FileNewParams) (apiclient.FileNewResult, error) {
	c.store.mu.Lock()
	defer c.store.mu.Unlock()
	c.store.nextID++
	id := fmt.Sprintf("file-%d", c.store.nextID)
	c.store.files[id] = &fakeFile{state: "open", parts: make(map[int][]byte), properties: make(map[string]string)}
	return apiclient.FileNewResult{ID: id}, nil
}

func (c *fakeClient) FileDownload(ctx context.Context, id string) (apiclient.FileDownloadResult, error) {
	return apiclient.FileDownloadResult{URL: c.store.srv.URL + "/object/" + id}, nil
}

func (c *fakeClient) FileUpload(ctx context.Context, id string, partIndex int) (apiclient.FileUploadResult, error) {
	return apiclient.FileUploadResult{URL: fmt.Sprintf("%s/part/%s/%d", c.store.srv.URL, id, partIndex)}, nil
}

func (c *fakeClient) FileClose(ctx context.Context, id string) error {
	c.store.mu.Lock()
	defer c.store.mu.Unlock()
	c.store.files[id].state = "closed"
	return nil
}

func (c *fakeClient) Describe(ctx context.Context, id string) (apiclient.DescribeResult, error) {
	c.store.mu.Lock()
	defer c.store.mu.Unlock()
	f := c.store.files[id]
	return apiclient.DescribeResult{Size: int64(len(c.store.concatLocked(f))), State: f.state}, nil
}

func (c *fakeClient) WaitOnState(ctx context.Context, id, target string) error {
	return nil
}

func (c *fakeClient) Clone(ctx context.Context, id, destProject, destFolder string) (apiclient.CloneResult, error) {
	return apiclient.CloneResult{ID: id, Project: destProject}, nil
}

func (c *fakeClient) SetProperties(ctx context.Context, id string, properties map[string]string) error {
	c.store.mu.Lock()
	defer c.store.mu.Unlock()
	for k, v := range properties {
		c.store.files[id].properties[k] = v
	}
	return nil
}

// testHandle wires a Handle to a fresh fakeStore with small part sizes so
// boundary behavior is exercisable without megabyte-sized test fixtures.
func testHandle(maxPartBytes int64) (*Handle, *fakeStore) {
	store := newFakeStore()
	client := &fakeClient{store: store}
	caller := httpcaller.New()
	cfg := config.NewDefault()
	cfg.Upload.MaxPartBytes = maxPartBytes
	cfg.Upload.MaxWriteThreads = 2
	h := New(client, caller, *cfg)
	return h, store
}
