// Package server implements the HTTP/WebSocket front door: the viewer
// page, MJPEG stream, single-frame endpoint, JSON info endpoint, SSE
// build-status channel, and WebSocket frame feed, all served from one
// listener.
package server

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"mime/multipart"
	"net/http"
	"net/textproto"
	"strings"
	"sync"
	"time"

	"github.com/coder/websocket"
	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/HandleConsolidated/xtool/internal/devicemodel"
	"github.com/HandleConsolidated/xtool/internal/producer"
	"github.com/HandleConsolidated/xtool/internal/status"
	"github.com/HandleConsolidated/xtool/internal/viewer"
)

// MJPEGBoundary is the literal multipart boundary used on /stream.
const MJPEGBoundary = "xtool-preview-frame"

// singleFrameWaitBudget is a var rather than a const so tests can shrink
// it; production callers never touch it.
var singleFrameWaitBudget = 2 * time.Second

const (
	singleFramePollEvery = 100 * time.Millisecond
	sseMessagePollEvery  = 250 * time.Millisecond
)

// DeviceInfo is the connected device's identity, supplied by the
// out-of-scope provisioning/CLI layer and surfaced on /api/info.
type DeviceInfo struct {
	Name      string
	UDID      string
	ProductID string
}

// Server routes HTTP/WebSocket requests to one Producer and one
// Broadcaster. It owns neither's lifecycle startup (the caller starts the
// Producer) but does own the listener.
type Server struct {
	addr        string
	producer    *producer.Producer
	broadcaster *status.Broadcaster
	device      DeviceInfo
	display     devicemodel.DisplayInfo
	fps         int
	logger      *zap.Logger
}

// New creates a Server. fps drives the MJPEG/WebSocket send-loop poll
// rate; it need not match the Producer's own capture fps, though in
// practice callers pass the same value.
func New(addr string, p *producer.Producer, broadcaster *status.Broadcaster, device DeviceInfo, fps int, logger *zap.Logger) *Server {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Server{
		addr:        addr,
		producer:    p,
		broadcaster: broadcaster,
		device:      device,
		display:     devicemodel.Lookup(device.ProductID),
		fps:         fps,
		logger:      logger,
	}
}

func (s *Server) mux() *http.ServeMux {
	mux := http.NewServeMux()
	mux.HandleFunc("/", s.handleIndex)
	mux.HandleFunc("/stream", s.handleStream)
	mux.HandleFunc("/frame", s.handleFrame)
	mux.HandleFunc("/api/info", s.handleInfo)
	mux.HandleFunc("/api/events", s.handleEvents)
	mux.HandleFunc("/ws", s.handleWS)
	return mux
}

// Run binds the listener and serves until ctx is cancelled, then shuts
// down gracefully.
func (s *Server) Run(ctx context.Context) error {
	ln, err := listen(ctx, s.addr)
	if err != nil {
		return fmt.Errorf("bind %s: %w", s.addr, err)
	}

	httpServer := &http.Server{Handler: s.mux()}

	errCh := make(chan error, 1)
	go func() {
		s.logger.Info("preview server listening", zap.String("addr", s.addr))
		if err := httpServer.Serve(ln); err != nil && err != http.ErrServerClosed {
			errCh <- err
		}
	}()

	select {
	case <-ctx.Done():
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		return httpServer.Shutdown(shutdownCtx)
	case err := <-errCh:
		return err
	}
}

func (s *Server) handleIndex(w http.ResponseWriter, r *http.Request) {
	if r.URL.Path != "/" {
		notFound(w)
		return
	}
	if r.Method != http.MethodGet {
		http.Error(w, "Method Not Allowed", http.StatusMethodNotAllowed)
		return
	}

	html, err := viewer.Generate(s.device.Name, s.display)
	if err != nil {
		s.logger.Error("failed to render viewer page", zap.Error(err))
		http.Error(w, "Internal Server Error", http.StatusInternalServerError)
		return
	}

	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	_, _ = io.WriteString(w, html)
}

func (s *Server) handleInfo(w http.ResponseWriter, r *http.Request) {
	type displayJSON struct {
		Name         string `json:"name"`
		ScreenWidth  int    `json:"screenWidth"`
		ScreenHeight int    `json:"screenHeight"`
		DisplayStyle string `json:"displayStyle"`
		CornerRadius int    `json:"cornerRadius"`
	}
	type infoJSON struct {
		DeviceName string      `json:"deviceName"`
		UDID       string      `json:"udid"`
		FPS        int         `json:"fps"`
		Display    displayJSON `json:"display"`
	}

	payload := infoJSON{
		DeviceName: s.device.Name,
		UDID:       s.device.UDID,
		FPS:        s.fps,
		Display: displayJSON{
			Name:         s.display.Name,
			ScreenWidth:  s.display.ScreenWidth,
			ScreenHeight: s.display.ScreenHeight,
			DisplayStyle: string(s.display.Style),
			CornerRadius: s.display.CornerRadius,
		},
	}

	w.Header().Set("Content-Type", "application/json")
	if err := json.NewEncoder(w).Encode(payload); err != nil {
		s.logger.Error("failed to encode /api/info response", zap.Error(err))
	}
}

// connGuard ensures a Producer subscription is released exactly once,
// regardless of which of (normal close, write failure, cancellation)
// tears the connection down first.
type connGuard struct {
	once sync.Once
	p    *producer.Producer
}

func (g *connGuard) release() {
	g.once.Do(g.p.Unsubscribe)
}

func (s *Server) handleStream(w http.ResponseWriter, r *http.Request) {
	connID := uuid.NewString()
	logger := s.logger.With(zap.String("conn", connID), zap.String("route", "stream"))

	flusher, ok := w.(http.Flusher)
	if !ok {
		http.Error(w, "streaming unsupported", http.StatusInternalServerError)
		return
	}

	s.producer.Subscribe()
	guard := &connGuard{p: s.producer}
	defer guard.release()

	w.Header().Set("Content-Type", "multipart/x-mixed-replace; boundary="+MJPEGBoundary)
	w.WriteHeader(http.StatusOK)
	flusher.Flush()

	mw := multipart.NewWriter(w)
	if err := mw.SetBoundary(MJPEGBoundary); err != nil {
		logger.Error("failed to set multipart boundary", zap.Error(err))
		return
	}

	interval := time.Second / time.Duration(maxInt(s.fps, 1))
	var lastSent uint64

	for {
		select {
		case <-r.Context().Done():
			return
		default:
		}

		frame := s.producer.LatestFrame()
		if frame != nil && frame.Sequence > lastSent {
			if err := writeMJPEGPart(mw, frame.MIME, frame.Bytes); err != nil {
				logger.Debug("mjpeg write failed, disconnecting", zap.Error(err))
				return
			}
			flusher.Flush()
			lastSent = frame.Sequence
		}

		if !sleepCtx(r.Context(), interval) {
			return
		}
	}
}

// writeMJPEGPart creates one multipart part carrying a single JPEG frame.
func writeMJPEGPart(mw *multipart.Writer, mime string, data []byte) error {
	header := textproto.MIMEHeader{}
	header.Set("Content-Type", mime)
	header.Set("Content-Length", fmt.Sprintf("%d", len(data)))

	part, err := mw.CreatePart(header)
	if err != nil {
		return err
	}
	_, err = part.Write(data)
	return err
}

func (s *Server) handleFrame(w http.ResponseWriter, r *http.Request) {
	s.producer.Subscribe()
	guard := &connGuard{p: s.producer}
	defer guard.release()

	deadline := time.Now().Add(singleFrameWaitBudget)
	for {
		frame := s.producer.LatestFrame()
		if frame != nil {
			w.Header().Set("Content-Type", frame.MIME)
			w.Header().Set("Content-Length", fmt.Sprintf("%d", len(frame.Bytes)))
			w.WriteHeader(http.StatusOK)
			_, _ = w.Write(frame.Bytes)
			return
		}

		if time.Now().After(deadline) {
			http.Error(w, "No frame available", http.StatusInternalServerError)
			return
		}

		if !sleepCtx(r.Context(), singleFramePollEvery) {
			return
		}
	}
}

func (s *Server) handleEvents(w http.ResponseWriter, r *http.Request) {
	flusher, ok := w.(http.Flusher)
	if !ok {
		http.Error(w, "streaming unsupported", http.StatusInternalServerError)
		return
	}

	w.Header().Set("Content-Type", "text/event-stream")
	w.Header().Set("Cache-Control", "no-cache")
	w.Header().Set("Connection", "keep-alive")
	w.WriteHeader(http.StatusOK)
	flusher.Flush()

	var lastSeq uint64
	for {
		select {
		case <-r.Context().Done():
			return
		default:
		}

		ev := s.broadcaster.Latest()
		if ev.Sequence > lastSeq {
			if _, err := fmt.Fprintf(w, "data: %s\n\n", encodeStatusJSON(ev.Status, ev.Message)); err != nil {
				return
			}
			flusher.Flush()
			lastSeq = ev.Sequence
		}

		if !sleepCtx(r.Context(), sseMessagePollEvery) {
			return
		}
	}
}

func encodeStatusJSON(statusVal status.BuildStatus, message string) string {
	return fmt.Sprintf(`{"status":%s,"message":%s}`, jsonString(string(statusVal)), jsonString(message))
}

// jsonString escapes a string for inline use in a hand-assembled JSON
// payload, handling backslash, double quote, and newline at minimum.
func jsonString(s string) string {
	var b strings.Builder
	b.WriteByte('"')
	for _, r := range s {
		switch r {
		case '\\':
			b.WriteString(`\\`)
		case '"':
			b.WriteString(`\"`)
		case '\n':
			b.WriteString(`\n`)
		default:
			b.WriteRune(r)
		}
	}
	b.WriteByte('"')
	return b.String()
}

func (s *Server) handleWS(w http.ResponseWriter, r *http.Request) {
	connID := uuid.NewString()
	logger := s.logger.With(zap.String("conn", connID), zap.String("route", "ws"))

	conn, err := websocket.Accept(w, r, nil)
	if err != nil {
		logger.Debug("websocket accept failed", zap.Error(err))
		return
	}
	defer conn.Close(websocket.StatusNormalClosure, "")

	s.producer.Subscribe()
	guard := &connGuard{p: s.producer}
	defer guard.release()

	ctx, cancel := context.WithCancel(r.Context())
	defer cancel()

	// Drain inbound control frames (coder/websocket auto-replies to PING
	// with PONG and surfaces CLOSE as a read error) so the connection
	// terminates promptly when the client goes away.
	go func() {
		defer cancel()
		for {
			if _, _, err := conn.Read(ctx); err != nil {
				return
			}
		}
	}()

	interval := time.Second / time.Duration(maxInt(s.fps, 1))
	var lastSent uint64

	for {
		select {
		case <-ctx.Done():
			return
		default:
		}

		frame := s.producer.LatestFrame()
		if frame != nil && frame.Sequence > lastSent {
			if err := conn.Write(ctx, websocket.MessageBinary, frame.Bytes); err != nil {
				logger.Debug("websocket write failed, disconnecting", zap.Error(err))
				return
			}
			lastSent = frame.Sequence
		}

		if !sleepCtx(ctx, interval) {
			return
		}
	}
}

func notFound(w http.ResponseWriter) {
	w.Header().Set("Content-Type", "text/plain")
	w.WriteHeader(http.StatusNotFound)
	_, _ = io.WriteString(w, "Not Found")
}

func sleepCtx(ctx context.Context, d time.Duration) bool {
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return false
	case <-timer.C:
		return true
	}
}

func maxInt(a, b int) int {
	if a > b {
		return a
	}
	return b
}
