// Package live periodically runs detection against a camera feed and
// publishes the newest quad for overlay rendering.
//
// The scheduler throttles and drops: ticks that arrive while a detection is
// in flight are skipped, never queued, because an overlay only cares about
// the most recent result. At most one live request is outstanding at any
// moment.
package live

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"time"

	"doc-scanner/internal/frame"
	"doc-scanner/internal/host"
	"doc-scanner/internal/scan"
	"doc-scanner/pkg/geometry"

	"github.com/rs/zerolog"
)

// Source supplies raster snapshots of the camera feed.
type Source interface {
	Snapshot() (*frame.Frame, error)
	Dims() (width, height int)
}

// Detector is the slice of the background host the scheduler uses.
type Detector interface {
	State() host.State
	DetectLive(ctx context.Context, f *frame.Frame) (*scan.LiveResult, error)
}

// Update is one published overlay state. Quad is nil while no document is
// in view; coordinates are in source-frame space.
type Update struct {
	Seq    uint64         `json:"seq"`
	At     time.Time      `json:"at"`
	Width  int            `json:"width"`
	Height int            `json:"height"`
	Quad   *geometry.Quad `json:"quad,omitempty"`
}

// Config tunes the scheduler.
type Config struct {
	// Interval is the tick period.
	Interval time.Duration
	// MaxDim bounds the long edge of frames sent for live detection.
	MaxDim int
	// SmoothWindow is the per-corner median window damping overlay jitter;
	// 0 or 1 disables smoothing.
	SmoothWindow int
}

// DefaultConfig returns the cadence used in production.
func DefaultConfig() Config {
	return Config{
		Interval:     250 * time.Millisecond,
		MaxDim:       480,
		SmoothWindow: 5,
	}
}

// Scheduler drives throttled live detection. Create with New, halt with
// Stop.
type Scheduler struct {
	cfg    Config
	src    Source
	det    Detector
	log    zerolog.Logger
	smooth *smoother

	busy atomic.Bool

	mu     sync.RWMutex
	seq    uint64
	latest Update
	subs   map[chan Update]struct{}

	stop     chan struct{}
	done     chan struct{}
	stopOnce sync.Once
	wg       sync.WaitGroup
}

// New builds a scheduler and starts ticking immediately. A zero Interval
// or MaxDim falls back to the DefaultConfig value.
func New(src Source, det Detector, cfg Config, logger zerolog.Logger) *Scheduler {
	def := DefaultConfig()
	if cfg.Interval <= 0 {
		cfg.Interval = def.Interval
	}
	if cfg.MaxDim <= 0 {
		cfg.MaxDim = def.MaxDim
	}

	s := &Scheduler{
		cfg:  cfg,
		src:  src,
		det:  det,
		log:  logger.With().Str("component", "live").Logger(),
		subs: make(map[chan Update]struct{}),
		stop: make(chan struct{}),
		done: make(chan struct{}),
	}
	if cfg.SmoothWindow > 1 {
		s.smooth = newSmoother(cfg.SmoothWindow)
	}

	go s.run()
	return s
}

// Latest returns the most recent published update. A zero Seq means
// nothing has been published yet.
func (s *Scheduler) Latest() Update {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.latest
}

// Subscribe registers an overlay consumer. The channel holds one update:
// when the consumer lags, intermediate updates are replaced, not queued.
func (s *Scheduler) Subscribe() chan Update {
	ch := make(chan Update, 1)
	s.mu.Lock()
	s.subs[ch] = struct{}{}
	s.mu.Unlock()
	return ch
}

// Unsubscribe removes a subscriber channel.
func (s *Scheduler) Unsubscribe(ch chan Update) {
	s.mu.Lock()
	delete(s.subs, ch)
	s.mu.Unlock()
}

// Stop halts the ticker, waits out any in-flight detection, and publishes
// a final empty update so overlays clear. Safe to call more than once.
func (s *Scheduler) Stop() {
	s.stopOnce.Do(func() {
		close(s.stop)
		<-s.done
		s.wg.Wait()

		w, h := s.src.Dims()
		s.publish(w, h, nil)
		s.log.Debug().Msg("scheduler stopped")
	})
}

func (s *Scheduler) run() {
	defer close(s.done)

	ticker := time.NewTicker(s.cfg.Interval)
	defer ticker.Stop()

	for {
		select {
		case <-ticker.C:
			s.tick()
		case <-s.stop:
			return
		}
	}
}

// tick dispatches one detection when all three gates pass: host ready,
// source dimensions valid, no request in flight.
func (s *Scheduler) tick() {
	if s.det.State() != host.StateReady {
		return
	}
	width, height := s.src.Dims()
	if width <= 0 || height <= 0 {
		return
	}
	if !s.busy.CompareAndSwap(false, true) {
		return
	}

	s.wg.Add(1)
	go func() {
		defer s.wg.Done()
		defer s.busy.Store(false)
		s.detectOnce(width, height)
	}()
}

func (s *Scheduler) detectOnce(width, height int) {
	snap, err := s.src.Snapshot()
	if err != nil {
		s.log.Debug().Err(err).Msg("snapshot failed")
		return
	}

	working, err := snap.Downscale(s.cfg.MaxDim)
	snap.Close()
	if err != nil {
		s.log.Debug().Err(err).Msg("downscale failed")
		return
	}
	scale := working.Scale()

	// Ownership of working transfers to the host here.
	result, err := s.det.DetectLive(context.Background(), working)
	if err != nil {
		if errors.Is(err, host.ErrHostBusy) {
			return
		}
		s.log.Debug().Err(err).Msg("live detection failed")
		s.publishNone(width, height)
		return
	}

	if result.Quad == nil {
		s.publishNone(width, height)
		return
	}

	quad := result.Quad.Scale(1 / scale)
	if s.smooth != nil {
		quad = s.smooth.apply(quad)
	}
	s.publish(width, height, &quad)
}

func (s *Scheduler) publishNone(width, height int) {
	if s.smooth != nil {
		s.smooth.reset()
	}
	s.publish(width, height, nil)
}

// publish stores the newest update and fans it out without ever blocking:
// a full subscriber channel loses its stale value, then takes the new one.
func (s *Scheduler) publish(width, height int, quad *geometry.Quad) {
	s.mu.Lock()
	s.seq++
	u := Update{
		Seq:    s.seq,
		At:     time.Now(),
		Width:  width,
		Height: height,
		Quad:   quad,
	}
	s.latest = u
	subs := make([]chan Update, 0, len(s.subs))
	for ch := range s.subs {
		subs = append(subs, ch)
	}
	s.mu.Unlock()

	for _, ch := range subs {
		select {
		case ch <- u:
			continue
		default:
		}
		select {
		case <-ch:
		default:
		}
		select {
		case ch <- u:
		default:
		}
	}
}
