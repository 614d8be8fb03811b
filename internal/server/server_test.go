package server

import (
	"bufio"
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/HandleConsolidated/xtool/internal/jpegenc"
	"github.com/HandleConsolidated/xtool/internal/producer"
	"github.com/HandleConsolidated/xtool/internal/status"
)

// fakeBackend always succeeds, yielding an incrementing payload so
// sequence numbers visibly advance across polls.
type fakeBackend struct {
	mu  sync.Mutex
	gen int
}

func (f *fakeBackend) Start(ctx context.Context) error { return nil }
func (f *fakeBackend) Stop() error                     { return nil }
func (f *fakeBackend) CaptureFrame(ctx context.Context) ([]byte, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.gen++
	return []byte{0xFF, 0xD8, byte(f.gen), 0xFF, 0xD9}, nil
}

// failingBackend never yields a frame: every capture attempt errors.
type failingBackend struct{}

func (failingBackend) Start(ctx context.Context) error { return nil }
func (failingBackend) Stop() error                     { return nil }
func (failingBackend) CaptureFrame(ctx context.Context) ([]byte, error) {
	return nil, errors.New("no device")
}

func newTestServer(t *testing.T) (*Server, *producer.Producer) {
	t.Helper()
	p := producer.New(&fakeBackend{}, jpegenc.New(nil), 100, 80, nil)
	broadcaster := status.New()
	device := DeviceInfo{Name: "Test Device", UDID: "fake-udid", ProductID: "iPhone15,2"}
	return New("127.0.0.1:0", p, broadcaster, device, 100, nil), p
}

func TestHandleIndexServesViewerPage(t *testing.T) {
	s, _ := newTestServer(t)

	req := httptest.NewRequest(http.MethodGet, "/", nil)
	rec := httptest.NewRecorder()
	s.handleIndex(rec, req)

	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d, want 200", rec.Code)
	}
	body := rec.Body.String()
	if !strings.Contains(body, "xtool-preview") {
		t.Error("viewer page missing expected bootstrap marker")
	}
	if !strings.Contains(body, "/ws") {
		t.Error("viewer page missing websocket endpoint reference")
	}
}

func TestHandleIndexUnknownPathIs404(t *testing.T) {
	s, _ := newTestServer(t)

	req := httptest.NewRequest(http.MethodGet, "/nope", nil)
	rec := httptest.NewRecorder()
	s.handleIndex(rec, req)

	if rec.Code != http.StatusNotFound {
		t.Fatalf("status = %d, want 404", rec.Code)
	}
}

func TestHandleInfoShape(t *testing.T) {
	s, _ := newTestServer(t)

	req := httptest.NewRequest(http.MethodGet, "/api/info", nil)
	rec := httptest.NewRecorder()
	s.handleInfo(rec, req)

	var payload struct {
		DeviceName string `json:"deviceName"`
		UDID       string `json:"udid"`
		FPS        int    `json:"fps"`
		Display    struct {
			Name         string `json:"name"`
			ScreenWidth  int    `json:"screenWidth"`
			ScreenHeight int    `json:"screenHeight"`
			DisplayStyle string `json:"displayStyle"`
			CornerRadius int    `json:"cornerRadius"`
		} `json:"display"`
	}
	if err := json.Unmarshal(rec.Body.Bytes(), &payload); err != nil {
		t.Fatalf("invalid JSON: %v\nbody: %s", err, rec.Body.String())
	}
	if payload.DeviceName != "Test Device" || payload.UDID != "fake-udid" {
		t.Fatalf("unexpected payload: %+v", payload)
	}
	if payload.Display.DisplayStyle != "dynamicIsland" {
		t.Fatalf("display style = %q, want dynamicIsland for iPhone15,2", payload.Display.DisplayStyle)
	}
}

func TestHandleFrameReturnsLatestFrame(t *testing.T) {
	s, p := newTestServer(t)
	if err := p.Start(context.Background()); err != nil {
		t.Fatal(err)
	}
	defer p.Stop()

	req := httptest.NewRequest(http.MethodGet, "/frame", nil)
	rec := httptest.NewRecorder()
	s.handleFrame(rec, req)

	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d, want 200, body=%s", rec.Code, rec.Body.String())
	}
	if rec.Body.Len() == 0 {
		t.Fatal("expected non-empty frame body")
	}
	if p.SubscriberCount() != 0 {
		t.Fatalf("subscriber count = %d after handler returned, want 0", p.SubscriberCount())
	}
}

func TestHandleFrameTimesOutWithoutACapture(t *testing.T) {
	// handleFrame's Subscribe starts the capture task, but every capture
	// fails, so LatestFrame never becomes non-nil and the handler must
	// time out.
	p := producer.New(failingBackend{}, jpegenc.New(nil), 100, 80, nil)
	s := New("127.0.0.1:0", p, status.New(), DeviceInfo{Name: "Test Device"}, 100, nil)

	origBudget := singleFrameWaitBudget
	singleFrameWaitBudget = 30 * time.Millisecond
	defer func() { singleFrameWaitBudget = origBudget }()

	req := httptest.NewRequest(http.MethodGet, "/frame", nil)
	rec := httptest.NewRecorder()
	s.handleFrame(rec, req)

	if rec.Code != http.StatusInternalServerError {
		t.Fatalf("status = %d, want 500", rec.Code)
	}
}

func TestHandleStreamEmitsMultipartFrames(t *testing.T) {
	s, p := newTestServer(t)
	if err := p.Start(context.Background()); err != nil {
		t.Fatal(err)
	}
	defer p.Stop()

	srv := httptest.NewServer(http.HandlerFunc(s.handleStream))
	defer srv.Close()

	client := &http.Client{Timeout: 2 * time.Second}
	resp, err := client.Get(srv.URL)
	if err != nil {
		t.Fatal(err)
	}
	defer resp.Body.Close()

	reader := bufio.NewReader(resp.Body)
	deadline := time.Now().Add(1500 * time.Millisecond)
	foundBoundary := false
	for time.Now().Before(deadline) {
		line, err := reader.ReadString('\n')
		if err != nil {
			break
		}
		if strings.Contains(line, MJPEGBoundary) {
			foundBoundary = true
			break
		}
	}
	if !foundBoundary {
		t.Fatal("did not observe the expected multipart boundary in the stream")
	}
}

func TestHandleEventsEmitsStatusUpdates(t *testing.T) {
	s, _ := newTestServer(t)

	srv := httptest.NewServer(http.HandlerFunc(s.handleEvents))
	defer srv.Close()

	client := &http.Client{Timeout: 2 * time.Second}
	req, _ := http.NewRequest(http.MethodGet, srv.URL, nil)
	resp, err := client.Do(req)
	if err != nil {
		t.Fatal(err)
	}
	defer resp.Body.Close()

	s.broadcaster.Update(status.StatusBuilding, "rebuilding now")

	reader := bufio.NewReader(resp.Body)
	deadline := time.Now().Add(1500 * time.Millisecond)
	found := false
	for time.Now().Before(deadline) {
		line, err := reader.ReadString('\n')
		if err != nil {
			break
		}
		if strings.Contains(line, "building") && strings.Contains(line, "rebuilding now") {
			found = true
			break
		}
	}
	if !found {
		t.Fatal("did not observe the expected SSE status event")
	}
}

func TestJSONStringEscaping(t *testing.T) {
	got := jsonString("line\nwith \"quotes\" and \\backslash")
	want := `"line\nwith \"quotes\" and \\backslash"`
	if got != want {
		t.Fatalf("jsonString() = %s, want %s", got, want)
	}
}
