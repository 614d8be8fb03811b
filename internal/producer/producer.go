// Package producer implements the single background capture task that
// feeds every connected client the latest encoded frame, refcounted by
// subscription.
package producer

import (
	"context"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/HandleConsolidated/xtool/internal/capture"
	"github.com/HandleConsolidated/xtool/internal/jpegenc"
)

const (
	minFPS              = 1
	captureErrorBackoff = 500 * time.Millisecond
)

// Frame is one published, already-compressed frame, stamped with a
// monotonically increasing sequence number.
type Frame struct {
	Bytes     []byte
	MIME      string
	Sequence  uint64
	CapturedAt time.Time
}

// Producer owns one capture Backend and fans its frames out to any number
// of subscribed clients. Only the capture task writes the latest-frame
// slot; everything else is a cheap snapshot read. Subscriber refcount,
// capture task handle, and the latest-frame slot are the only mutable
// cross-task state, all guarded by one mutex rather than a lock per field.
type Producer struct {
	backend capture.Backend
	encoder *jpegenc.Encoder
	quality int
	fps     int
	logger  *zap.Logger

	mu          sync.Mutex
	latest      *Frame
	seq         uint64
	subscribers uint32
	cancelTask  context.CancelFunc
	taskDone    chan struct{}

	// onCapture, if set, is invoked once per successful capture; test hook
	// for observing capture-task lifecycle without a timing-based sleep.
	onCapture func()
}

// New creates a Producer. fps is clamped to >=1 at construction.
func New(backend capture.Backend, encoder *jpegenc.Encoder, fps, quality int, logger *zap.Logger) *Producer {
	if fps < minFPS {
		fps = minFPS
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Producer{
		backend: backend,
		encoder: encoder,
		fps:     fps,
		quality: quality,
		logger:  logger,
	}
}

// SetCaptureHook installs a callback invoked after every successful
// capture. It exists for tests; production callers should not need it.
func (p *Producer) SetCaptureHook(fn func()) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.onCapture = fn
}

// Start prepares the capture backend. Callers are expected to call this
// once, before the first Subscribe.
func (p *Producer) Start(ctx context.Context) error {
	return p.backend.Start(ctx)
}

// Subscribe registers one client's interest in frames, starting the
// capture task if this is the first subscriber.
func (p *Producer) Subscribe() {
	p.mu.Lock()
	defer p.mu.Unlock()

	p.subscribers++
	if p.subscribers == 1 {
		p.startCaptureTaskLocked()
	}
}

// Unsubscribe releases one client's interest, stopping the capture task
// once the last subscriber leaves. The count never goes below zero.
func (p *Producer) Unsubscribe() {
	p.mu.Lock()
	defer p.mu.Unlock()

	if p.subscribers == 0 {
		return
	}
	p.subscribers--
	if p.subscribers == 0 {
		p.stopCaptureTaskLocked()
	}
}

// SubscriberCount returns the current refcount; mainly for tests.
func (p *Producer) SubscriberCount() uint32 {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.subscribers
}

// LatestFrame returns the most recently published frame, if any.
func (p *Producer) LatestFrame() *Frame {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.latest
}

// Stop cancels the capture task (if running) and releases the backend.
func (p *Producer) Stop() error {
	p.mu.Lock()
	p.stopCaptureTaskLocked()
	p.mu.Unlock()
	return p.backend.Stop()
}

func (p *Producer) startCaptureTaskLocked() {
	ctx, cancel := context.WithCancel(context.Background())
	p.cancelTask = cancel
	p.taskDone = make(chan struct{})
	go p.captureLoop(ctx, p.taskDone)
}

func (p *Producer) stopCaptureTaskLocked() {
	if p.cancelTask == nil {
		return
	}
	p.cancelTask()
	p.cancelTask = nil
	p.taskDone = nil
}

// captureLoop is the cooperative capture task body: capture, encode,
// publish, sleep; on capture failure, back off briefly and retry; on
// cancellation, exit immediately. At most one of these runs per Producer.
func (p *Producer) captureLoop(ctx context.Context, done chan struct{}) {
	defer close(done)

	interval := time.Second / time.Duration(p.fps)

	for {
		select {
		case <-ctx.Done():
			return
		default:
		}

		raw, err := p.backend.CaptureFrame(ctx)
		if err != nil {
			p.logger.Debug("capture error, backing off", zap.Error(err))
			if !sleepOrDone(ctx, captureErrorBackoff) {
				return
			}
			continue
		}

		compressed := p.encoder.Compress(raw, p.quality)

		p.mu.Lock()
		p.seq++
		p.latest = &Frame{
			Bytes:      compressed.Bytes,
			MIME:       compressed.MIME,
			Sequence:   p.seq,
			CapturedAt: time.Now(),
		}
		hook := p.onCapture
		p.mu.Unlock()

		if hook != nil {
			hook()
		}

		if !sleepOrDone(ctx, interval) {
			return
		}
	}
}

// sleepOrDone waits for d, returning false if ctx is cancelled first.
func sleepOrDone(ctx context.Context, d time.Duration) bool {
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return false
	case <-timer.C:
		return true
	}
}
