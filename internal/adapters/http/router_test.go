package httpadapter

import (
	"bufio"
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/kirillkom/extraction-tracker/internal/core/domain"
)

type fakeTracker struct {
	mu        sync.Mutex
	snap      domain.Snapshot
	started   []domain.ResourceRef
	aborted   [][2]string
	startOK   bool
	listeners []func(domain.Snapshot)
}

func newFakeTracker() *fakeTracker {
	return &fakeTracker{snap: domain.Snapshot{}, startOK: true}
}

func (f *fakeTracker) StartProcessing(_ context.Context, ref domain.ResourceRef) bool {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.started = append(f.started, ref)
	return f.startOK
}

func (f *fakeTracker) AbortProcessing(_ context.Context, ownerID, resourceID string) bool {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.aborted = append(f.aborted, [2]string{ownerID, resourceID})
	return true
}

func (f *fakeTracker) IsProcessing(resourceID string) bool {
	f.mu.Lock()
	defer f.mu.Unlock()
	entry, ok := f.snap[resourceID]
	return ok && !entry.Stage.Terminal()
}

func (f *fakeTracker) GetProgress(resourceID string) (domain.ProcessingProgress, bool) {
	f.mu.Lock()
	defer f.mu.Unlock()
	entry, ok := f.snap[resourceID]
	return entry, ok
}

func (f *fakeTracker) Snapshot() domain.Snapshot {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.snap.Clone()
}

func (f *fakeTracker) Subscribe(listener func(domain.Snapshot)) func() {
	f.mu.Lock()
	f.listeners = append(f.listeners, listener)
	snap := f.snap.Clone()
	f.mu.Unlock()
	listener(snap)
	return func() {}
}

func (f *fakeTracker) Cleanup() {}

func (f *fakeTracker) publish(snap domain.Snapshot) {
	f.mu.Lock()
	f.snap = snap
	listeners := append([]func(domain.Snapshot){}, f.listeners...)
	f.mu.Unlock()
	for _, listener := range listeners {
		listener(snap.Clone())
	}
}

func TestGetSnapshotReturnsTrackedEntries(t *testing.T) {
	tracker := newFakeTracker()
	tracker.snap = domain.Snapshot{
		"file-1": {ResourceID: "file-1", Stage: domain.StageParsing, Progress: 30},
	}
	handler := NewRouter(tracker, nil, nil).Handler()

	res := httptest.NewRecorder()
	handler.ServeHTTP(res, httptest.NewRequest(http.MethodGet, "/api/progress", nil))

	if res.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", res.Code)
	}
	var snap map[string]domain.ProcessingProgress
	if err := json.Unmarshal(res.Body.Bytes(), &snap); err != nil {
		t.Fatalf("decode snapshot: %v", err)
	}
	if snap["file-1"].Stage != domain.StageParsing {
		t.Fatalf("unexpected snapshot: %+v", snap)
	}
}

func TestGetProgressNotFound(t *testing.T) {
	handler := NewRouter(newFakeTracker(), nil, nil).Handler()

	res := httptest.NewRecorder()
	handler.ServeHTTP(res, httptest.NewRequest(http.MethodGet, "/api/progress/missing", nil))

	if res.Code != http.StatusNotFound {
		t.Fatalf("expected 404, got %d", res.Code)
	}
}

func TestStartProcessingPassesRefFields(t *testing.T) {
	tracker := newFakeTracker()
	handler := NewRouter(tracker, nil, nil).Handler()

	body := bytes.NewBufferString(`{"display_name":"contract.pdf","token":"tok-1"}`)
	req := httptest.NewRequest(http.MethodPost, "/api/process/owner-1/file-1/start", body)
	res := httptest.NewRecorder()
	handler.ServeHTTP(res, req)

	if res.Code != http.StatusAccepted {
		t.Fatalf("expected 202, got %d", res.Code)
	}
	if len(tracker.started) != 1 {
		t.Fatalf("expected one start call, got %d", len(tracker.started))
	}
	ref := tracker.started[0]
	if ref.OwnerID != "owner-1" || ref.ResourceID != "file-1" {
		t.Fatalf("unexpected ref %+v", ref)
	}
	if ref.DisplayName != "contract.pdf" || ref.Token != "tok-1" {
		t.Fatalf("body fields not passed through: %+v", ref)
	}
}

func TestStartProcessingReportsFailure(t *testing.T) {
	tracker := newFakeTracker()
	tracker.startOK = false
	handler := NewRouter(tracker, nil, nil).Handler()

	req := httptest.NewRequest(http.MethodPost, "/api/process/owner-1/file-1/start", nil)
	res := httptest.NewRecorder()
	handler.ServeHTTP(res, req)

	if res.Code != http.StatusBadGateway {
		t.Fatalf("expected 502 when start fails, got %d", res.Code)
	}
}

func TestAbortProcessingInvokesTracker(t *testing.T) {
	tracker := newFakeTracker()
	handler := NewRouter(tracker, nil, nil).Handler()

	req := httptest.NewRequest(http.MethodPost, "/api/process/owner-1/file-1/abort", nil)
	res := httptest.NewRecorder()
	handler.ServeHTTP(res, req)

	if res.Code != http.StatusAccepted {
		t.Fatalf("expected 202, got %d", res.Code)
	}
	if len(tracker.aborted) != 1 || tracker.aborted[0] != [2]string{"owner-1", "file-1"} {
		t.Fatalf("unexpected abort calls: %v", tracker.aborted)
	}
}

func TestRequestIDHeaderIsSet(t *testing.T) {
	handler := NewRouter(newFakeTracker(), nil, nil).Handler()

	res := httptest.NewRecorder()
	handler.ServeHTTP(res, httptest.NewRequest(http.MethodGet, "/healthz", nil))

	if res.Header().Get(requestIDHeader) == "" {
		t.Fatal("expected generated request id header")
	}
}

func TestStreamSnapshotsDeliversInitialAndUpdatedState(t *testing.T) {
	tracker := newFakeTracker()
	handler := NewRouter(tracker, nil, nil).Handler()
	server := httptest.NewServer(handler)
	defer server.Close()

	ctx, cancel := context.WithTimeout(context.Background(), 3*time.Second)
	defer cancel()
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, server.URL+"/api/progress/stream", nil)
	if err != nil {
		t.Fatalf("create request: %v", err)
	}
	resp, err := http.DefaultClient.Do(req)
	if err != nil {
		t.Fatalf("open stream: %v", err)
	}
	defer resp.Body.Close()

	if got := resp.Header.Get("Content-Type"); got != "text/event-stream" {
		t.Fatalf("expected event-stream content type, got %q", got)
	}

	reader := bufio.NewReader(resp.Body)
	readEvent := func() string {
		var data string
		for {
			line, err := reader.ReadString('\n')
			if err != nil {
				t.Fatalf("read stream: %v", err)
			}
			line = strings.TrimRight(line, "\n")
			if line == "" {
				return data
			}
			if strings.HasPrefix(line, "data: ") {
				data = strings.TrimPrefix(line, "data: ")
			}
		}
	}

	initial := readEvent()
	if initial != "{}" {
		t.Fatalf("expected empty initial snapshot, got %q", initial)
	}

	tracker.publish(domain.Snapshot{
		"file-1": {ResourceID: "file-1", Stage: domain.StageAnalyzing, Progress: 45},
	})

	var snap map[string]domain.ProcessingProgress
	if err := json.Unmarshal([]byte(readEvent()), &snap); err != nil {
		t.Fatalf("decode snapshot event: %v", err)
	}
	if snap["file-1"].Progress != 45 {
		t.Fatalf("unexpected snapshot event: %+v", snap)
	}
}
