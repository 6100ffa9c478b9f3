// Package host runs the scan engine on an isolated background goroutine
// and exposes a request/response protocol over channels.
//
// One host serves one capture session. The engine loads asynchronously
// after New; one-shot requests submitted before loading settles wait their
// turn. At most one request is ever in flight: one-shot requests queue,
// live requests are dropped so a preview overlay can never back up behind
// slow frames. Every wait is bounded by a safety timeout, and teardown
// resolves all pending callers instead of leaving them hanging.
package host

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"doc-scanner/internal/frame"
	"doc-scanner/internal/scan"
	"doc-scanner/pkg/geometry"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
)

var (
	// ErrRuntimeUnavailable reports that the engine failed to load.
	// Permanent for the session; callers fall back to manual cropping.
	ErrRuntimeUnavailable = errors.New("scan runtime unavailable")
	// ErrTimeout reports no reply within the safety window. Callers treat
	// it like a failed detection.
	ErrTimeout = errors.New("request timed out")
	// ErrHostClosed reports a request against a torn-down host.
	ErrHostClosed = errors.New("host closed")
	// ErrHostBusy reports a live request dropped because another request
	// was in flight.
	ErrHostBusy = errors.New("host busy")
)

// State is the host lifecycle phase. The host owns it; callers observe it
// through State() as the single source of truth.
type State int

const (
	StateUnloaded State = iota
	StateLoading
	StateReady
	StateFailed
	StateClosed
)

// String implements fmt.Stringer for logs and diagnostics.
func (s State) String() string {
	switch s {
	case StateUnloaded:
		return "unloaded"
	case StateLoading:
		return "loading"
	case StateReady:
		return "ready"
	case StateFailed:
		return "failed"
	case StateClosed:
		return "closed"
	}
	return "unknown"
}

// Engine is the image-processing runtime the host isolates. scan.Pipeline
// is the production implementation.
type Engine interface {
	Load(ctx context.Context) error
	DetectAndCrop(f *frame.Frame) (*scan.Result, error)
	DetectQuad(f *frame.Frame) (*scan.LiveResult, error)
	Crop(f *frame.Frame, corners geometry.Quad) (*frame.Frame, error)
	Close()
}

// Config tunes the host protocol.
type Config struct {
	// RequestTimeout bounds how long a caller waits for any single reply,
	// queueing included. A request that overruns resolves to ErrTimeout
	// instead of hanging.
	RequestTimeout time.Duration
	// LoadTimeout bounds engine initialization.
	LoadTimeout time.Duration
}

// DefaultConfig returns the protocol timings used in production.
func DefaultConfig() Config {
	return Config{
		RequestTimeout: 5 * time.Second,
		LoadTimeout:    30 * time.Second,
	}
}

type requestKind int

const (
	kindDetect requestKind = iota
	kindDetectLive
	kindCrop
)

func (k requestKind) String() string {
	switch k {
	case kindDetect:
		return "detect"
	case kindDetectLive:
		return "detect-live"
	case kindCrop:
		return "crop"
	}
	return "unknown"
}

// request crosses the channel into the host goroutine. The frame transfers
// with it: once submitted, the host owns the buffer.
type request struct {
	id      uuid.UUID
	kind    requestKind
	frame   *frame.Frame
	corners geometry.Quad
}

// response carries exactly one payload back, or an error.
type response struct {
	result *scan.Result
	live   *scan.LiveResult
	crop   *frame.Frame
	err    error
}

// free releases payloads the caller never took delivery of.
func (r response) free() {
	if r.result != nil && r.result.Output != nil {
		r.result.Output.Close()
	}
	if r.crop != nil {
		r.crop.Close()
	}
}

// Host owns the engine and the goroutine that serializes access to it.
type Host struct {
	cfg    Config
	engine Engine
	log    zerolog.Logger

	requests chan request

	mu      sync.RWMutex
	state   State
	loadErr error

	pendingMu sync.Mutex
	pending   map[uuid.UUID]chan response

	ready     chan struct{}
	stop      chan struct{}
	done      chan struct{}
	closeOnce sync.Once
}

// New starts a host for one capture session. The engine loads in the
// background; Ready() is closed once loading settles either way.
func New(engine Engine, cfg Config, logger zerolog.Logger) *Host {
	def := DefaultConfig()
	if cfg.RequestTimeout <= 0 {
		cfg.RequestTimeout = def.RequestTimeout
	}
	if cfg.LoadTimeout <= 0 {
		cfg.LoadTimeout = def.LoadTimeout
	}

	h := &Host{
		cfg:      cfg,
		engine:   engine,
		log:      logger.With().Str("component", "host").Logger(),
		requests: make(chan request),
		state:    StateUnloaded,
		pending:  make(map[uuid.UUID]chan response),
		ready:    make(chan struct{}),
		stop:     make(chan struct{}),
		done:     make(chan struct{}),
	}
	go h.run()
	return h
}

// State reports the host's lifecycle phase.
func (h *Host) State() State {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return h.state
}

// Err returns the load error when the host is Failed, else nil.
func (h *Host) Err() error {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return h.loadErr
}

// Ready returns a channel closed once engine loading settles, whether it
// ended Ready or Failed. Callers check State afterward.
func (h *Host) Ready() <-chan struct{} {
	return h.ready
}

// Detect submits a one-shot detect-and-crop and blocks until the reply,
// the safety timeout, ctx cancellation, or session teardown. The host
// takes ownership of f in all cases.
func (h *Host) Detect(ctx context.Context, f *frame.Frame) (*scan.Result, error) {
	resp, err := h.submit(ctx, request{id: uuid.New(), kind: kindDetect, frame: f})
	if err != nil {
		return nil, err
	}
	return resp.result, nil
}

// Crop submits a one-shot crop with caller-adjusted corners. The host
// takes ownership of f in all cases.
func (h *Host) Crop(ctx context.Context, f *frame.Frame, corners geometry.Quad) (*frame.Frame, error) {
	resp, err := h.submit(ctx, request{id: uuid.New(), kind: kindCrop, frame: f, corners: corners})
	if err != nil {
		return nil, err
	}
	return resp.crop, nil
}

// DetectLive submits a detection-only request without queueing: if the
// host is mid-request the frame is dropped and ErrHostBusy returned, since
// a preview overlay only ever wants the freshest frame. The host takes
// ownership of f in all cases.
func (h *Host) DetectLive(ctx context.Context, f *frame.Frame) (*scan.LiveResult, error) {
	req := request{id: uuid.New(), kind: kindDetectLive, frame: f}
	ch, err := h.trySubmit(req)
	if err != nil {
		return nil, err
	}

	timer := time.NewTimer(h.cfg.RequestTimeout)
	defer timer.Stop()

	resp, err := h.await(ctx, req.id, ch, timer)
	if err != nil {
		return nil, err
	}
	return resp.live, nil
}

// Close tears the session down: the loop drains, every pending caller
// resolves to ErrHostClosed, and the engine releases its state. Safe to
// call more than once.
func (h *Host) Close() {
	h.closeOnce.Do(func() {
		close(h.stop)
		<-h.done
		h.setState(StateClosed, nil)

		// Resolve entries that raced the shutdown.
		h.pendingMu.Lock()
		for id, ch := range h.pending {
			delete(h.pending, id)
			ch <- response{err: ErrHostClosed}
		}
		h.pendingMu.Unlock()

		h.engine.Close()
		h.log.Info().Msg("host closed")
	})
}

// guard validates the frame and the host phase before a submit. On error
// the frame is already closed.
func (h *Host) guard(f *frame.Frame) error {
	if f == nil || f.Empty() {
		f.Close()
		return frame.ErrInvalidFrame
	}

	switch h.State() {
	case StateFailed:
		f.Close()
		return fmt.Errorf("%w: %v", ErrRuntimeUnavailable, h.Err())
	case StateClosed:
		f.Close()
		return ErrHostClosed
	}
	return nil
}

// submit queues one request and waits for its reply. The safety timer
// covers the queue wait too, so a host stuck loading still resolves.
func (h *Host) submit(ctx context.Context, req request) (response, error) {
	if err := h.guard(req.frame); err != nil {
		return response{}, err
	}

	ch := make(chan response, 1)
	h.pendingMu.Lock()
	h.pending[req.id] = ch
	h.pendingMu.Unlock()

	timer := time.NewTimer(h.cfg.RequestTimeout)
	defer timer.Stop()

	select {
	case h.requests <- req:
	case <-timer.C:
		h.unregister(req.id)
		req.frame.Close()
		return response{}, ErrTimeout
	case <-ctx.Done():
		h.unregister(req.id)
		req.frame.Close()
		return response{}, ctx.Err()
	case <-h.stop:
		h.unregister(req.id)
		req.frame.Close()
		return response{}, ErrHostClosed
	}

	return h.await(ctx, req.id, ch, timer)
}

// trySubmit hands the request over only if the host goroutine is idle and
// receiving right now.
func (h *Host) trySubmit(req request) (chan response, error) {
	if err := h.guard(req.frame); err != nil {
		return nil, err
	}

	ch := make(chan response, 1)
	h.pendingMu.Lock()
	h.pending[req.id] = ch
	h.pendingMu.Unlock()

	select {
	case h.requests <- req:
		return ch, nil
	default:
		h.unregister(req.id)
		req.frame.Close()
		return nil, ErrHostBusy
	}
}

// await blocks until the tagged reply or a failure condition. Replies that
// race a failure still win, so their payloads are never leaked.
func (h *Host) await(ctx context.Context, id uuid.UUID, ch chan response, timer *time.Timer) (response, error) {
	select {
	case resp := <-ch:
		return resp, resp.err
	case <-timer.C:
		h.unregister(id)
		return h.lastChance(ch, ErrTimeout)
	case <-ctx.Done():
		h.unregister(id)
		return h.lastChance(ch, ctx.Err())
	case <-h.done:
		h.unregister(id)
		return h.lastChance(ch, ErrHostClosed)
	}
}

func (h *Host) lastChance(ch chan response, fallback error) (response, error) {
	select {
	case resp := <-ch:
		return resp, resp.err
	default:
		return response{}, fallback
	}
}

func (h *Host) unregister(id uuid.UUID) {
	h.pendingMu.Lock()
	delete(h.pending, id)
	h.pendingMu.Unlock()
}

func (h *Host) setState(s State, err error) {
	h.mu.Lock()
	h.state = s
	if err != nil {
		h.loadErr = err
	}
	h.mu.Unlock()
}

func (h *Host) run() {
	defer close(h.done)

	if err := h.load(); err != nil {
		h.rejectUntilClosed(err)
		return
	}
	h.serve()
}

// load initializes the engine, moving the host to Ready or Failed.
func (h *Host) load() error {
	h.setState(StateLoading, nil)
	defer close(h.ready)

	ctx, cancel := context.WithTimeout(context.Background(), h.cfg.LoadTimeout)
	defer cancel()
	go func() {
		select {
		case <-h.stop:
			cancel()
		case <-ctx.Done():
		}
	}()

	if err := h.engine.Load(ctx); err != nil {
		h.setState(StateFailed, err)
		h.log.Error().Err(err).Msg("engine load failed")
		return err
	}

	h.setState(StateReady, nil)
	h.log.Info().Msg("engine ready")
	return nil
}

// rejectUntilClosed keeps the protocol responsive after a failed load:
// every request resolves to ErrRuntimeUnavailable until the session ends.
func (h *Host) rejectUntilClosed(loadErr error) {
	for {
		select {
		case req := <-h.requests:
			req.frame.Close()
			h.deliver(req.id, response{err: fmt.Errorf("%w: %v", ErrRuntimeUnavailable, loadErr)})
		case <-h.stop:
			return
		}
	}
}

func (h *Host) serve() {
	for {
		// Teardown wins over queued work: a request still waiting when
		// Close lands resolves to ErrHostClosed, not to a late result.
		select {
		case <-h.stop:
			return
		default:
		}

		select {
		case req := <-h.requests:
			h.handle(req)
		case <-h.stop:
			return
		}
	}
}

// handle runs one request through the engine and delivers the reply. A
// failed request leaves the host Ready so later requests can succeed.
func (h *Host) handle(req request) {
	start := time.Now()

	var resp response
	switch req.kind {
	case kindDetect:
		resp.result, resp.err = h.engine.DetectAndCrop(req.frame)
	case kindDetectLive:
		resp.live, resp.err = h.engine.DetectQuad(req.frame)
	case kindCrop:
		resp.crop, resp.err = h.engine.Crop(req.frame, req.corners)
	}
	req.frame.Close()

	h.log.Debug().
		Str("id", req.id.String()).
		Str("kind", req.kind.String()).
		Dur("elapsed", time.Since(start)).
		Err(resp.err).
		Msg("request handled")

	h.deliver(req.id, resp)
}

// deliver resolves the pending entry for id. When the caller already gave
// up, the entry is gone and the payload is freed here instead of leaking.
func (h *Host) deliver(id uuid.UUID, resp response) {
	h.pendingMu.Lock()
	ch, ok := h.pending[id]
	if ok {
		delete(h.pending, id)
	}
	h.pendingMu.Unlock()

	if !ok {
		resp.free()
		h.log.Debug().Str("id", id.String()).Msg("dropped reply for abandoned request")
		return
	}
	ch <- resp
}
