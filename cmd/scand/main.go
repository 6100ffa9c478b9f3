// Command scand serves the document scanner over HTTP: one-shot detect and
// crop endpoints, a live overlay feed over websocket, and health reporting.
package main

import (
	"context"
	"encoding/json"
	"errors"
	"flag"
	"fmt"
	"image"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"doc-scanner/internal/capture"
	"doc-scanner/internal/config"
	"doc-scanner/internal/detect"
	"doc-scanner/internal/frame"
	"doc-scanner/internal/host"
	"doc-scanner/internal/live"
	"doc-scanner/internal/rectify"
	"doc-scanner/internal/scan"
	"doc-scanner/internal/version"
	"doc-scanner/pkg/geometry"

	"github.com/go-chi/chi/v5"
	"github.com/gorilla/websocket"
	"github.com/rs/zerolog"
)

const (
	shutdownWait  = 5 * time.Second
	writeWait     = 5 * time.Second
	pingPeriod    = 30 * time.Second
	maxUploadSize = 32 << 20
)

func main() {
	configPath := flag.String("config", "", "Path to YAML config file")
	showVersion := flag.Bool("version", false, "Print version and exit")
	flag.Parse()

	if *showVersion {
		fmt.Println(version.String())
		return
	}

	cfg, err := config.Load(*configPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to load config: %v\n", err)
		os.Exit(1)
	}
	logger := cfg.Logger()

	if err := run(cfg, logger); err != nil {
		logger.Fatal().Err(err).Msg("scand failed")
	}
}

func run(cfg config.Config, logger zerolog.Logger) error {
	// Capture source: a still image when configured, else the camera.
	var source capture.Source
	var err error
	if cfg.Still != "" {
		source, err = capture.OpenStill(cfg.Still)
	} else {
		source, err = capture.OpenCamera(cfg.Camera)
	}
	if err != nil {
		return fmt.Errorf("opening capture source: %w", err)
	}
	defer source.Close()

	pipeline := scan.New(scan.Config{
		DetectMaxDim: cfg.Scan.DetectMaxDim,
		LiveMaxDim:   cfg.Scan.LiveMaxDim,
		MinOutputPx:  cfg.Scan.MinOutputPx,
	}, logger)

	h := host.New(pipeline, host.Config{
		RequestTimeout: cfg.Host.RequestTimeout.Std(),
		LoadTimeout:    cfg.Host.LoadTimeout.Std(),
	}, logger)
	defer h.Close()

	scheduler := live.New(source, h, live.Config{
		Interval:     cfg.Live.Interval.Std(),
		MaxDim:       cfg.Live.MaxDim,
		SmoothWindow: cfg.Live.SmoothWindow,
	}, logger)
	defer scheduler.Stop()

	srv := &server{
		log:    logger.With().Str("component", "http").Logger(),
		source: source,
		host:   h,
		live:   scheduler,
		upgrader: websocket.Upgrader{
			ReadBufferSize:  1024,
			WriteBufferSize: 4096,
			CheckOrigin:     func(*http.Request) bool { return true },
		},
	}

	httpSrv := &http.Server{
		Addr:              cfg.Listen,
		Handler:           srv.routes(),
		ReadHeaderTimeout: 10 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		logger.Info().Str("addr", cfg.Listen).Msg("scand listening")
		if err := httpSrv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
	}()

	sig := make(chan os.Signal, 1)
	signal.Notify(sig, syscall.SIGINT, syscall.SIGTERM)

	select {
	case err := <-errCh:
		return err
	case s := <-sig:
		logger.Info().Str("signal", s.String()).Msg("shutting down")
	}

	ctx, cancel := context.WithTimeout(context.Background(), shutdownWait)
	defer cancel()
	return httpSrv.Shutdown(ctx)
}

type server struct {
	log      zerolog.Logger
	source   capture.Source
	host     *host.Host
	live     *live.Scheduler
	upgrader websocket.Upgrader
}

func (s *server) routes() http.Handler {
	r := chi.NewRouter()

	r.Get("/healthz", s.handleHealth)
	r.Get("/api/version", s.handleVersion)
	r.Post("/api/detect", s.handleDetect)
	r.Post("/api/crop", s.handleCrop)
	r.Get("/api/live/latest", s.handleLiveLatest)
	r.Get("/live/ws", s.handleLiveWS)

	return r
}

func (s *server) handleHealth(w http.ResponseWriter, r *http.Request) {
	state := s.host.State()
	code := http.StatusOK
	if state == host.StateFailed || state == host.StateClosed {
		code = http.StatusServiceUnavailable
	}
	s.writeJSON(w, code, map[string]string{"status": state.String()})
}

func (s *server) handleVersion(w http.ResponseWriter, r *http.Request) {
	s.writeJSON(w, http.StatusOK, map[string]string{
		"version": version.Version,
		"commit":  version.GitCommit,
		"built":   version.BuildTime,
	})
}

type detectResponse struct {
	Quad   geometry.Quad `json:"quad"`
	Width  int           `json:"width"`
	Height int           `json:"height"`
	Score  float64       `json:"score"`
	Paper  string        `json:"paper,omitempty"`
}

// handleDetect scans one frame and returns the rectified page as PNG, or
// detection metadata when ?format=json. An image in the request body is
// scanned in place of the capture source.
func (s *server) handleDetect(w http.ResponseWriter, r *http.Request) {
	f, err := s.frameFromRequest(w, r)
	if err != nil {
		s.writeError(w, http.StatusBadRequest, err)
		return
	}

	result, err := s.host.Detect(r.Context(), f)
	if err != nil {
		s.writeError(w, statusFor(err), err)
		return
	}
	defer result.Output.Close()

	if r.URL.Query().Get("format") == "json" {
		s.writeJSON(w, http.StatusOK, detectResponse{
			Quad:   result.Quad,
			Width:  result.Output.Width(),
			Height: result.Output.Height(),
			Score:  result.Debug.Score.Total(),
			Paper:  result.Debug.Paper,
		})
		return
	}

	png, err := result.Output.EncodePNG()
	if err != nil {
		s.writeError(w, http.StatusInternalServerError, err)
		return
	}
	w.Header().Set("Content-Type", "image/png")
	w.Header().Set("X-Scan-Score", fmt.Sprintf("%.1f", result.Debug.Score.Total()))
	w.Write(png)
}

type cropRequest struct {
	Corners geometry.Quad `json:"corners"`
}

// handleCrop warps the current capture frame by caller-supplied corners and
// returns the page as PNG. Corners may arrive in any order.
func (s *server) handleCrop(w http.ResponseWriter, r *http.Request) {
	var req cropRequest
	if err := json.NewDecoder(http.MaxBytesReader(w, r.Body, maxUploadSize)).Decode(&req); err != nil {
		s.writeError(w, http.StatusBadRequest, fmt.Errorf("decoding corners: %w", err))
		return
	}

	f, err := s.source.Snapshot()
	if err != nil {
		s.writeError(w, http.StatusServiceUnavailable, err)
		return
	}

	out, err := s.host.Crop(r.Context(), f, req.Corners)
	if err != nil {
		s.writeError(w, statusFor(err), err)
		return
	}
	defer out.Close()

	png, err := out.EncodePNG()
	if err != nil {
		s.writeError(w, http.StatusInternalServerError, err)
		return
	}
	w.Header().Set("Content-Type", "image/png")
	w.Write(png)
}

func (s *server) handleLiveLatest(w http.ResponseWriter, r *http.Request) {
	s.writeJSON(w, http.StatusOK, s.live.Latest())
}

// handleLiveWS streams overlay updates to the client until it disconnects.
func (s *server) handleLiveWS(w http.ResponseWriter, r *http.Request) {
	conn, err := s.upgrader.Upgrade(w, r, nil)
	if err != nil {
		s.log.Warn().Err(err).Msg("websocket upgrade failed")
		return
	}
	defer conn.Close()

	ch := s.live.Subscribe()
	defer s.live.Unsubscribe(ch)

	// Read pump: discard client messages, unblock the writer on disconnect.
	done := make(chan struct{})
	go func() {
		defer close(done)
		for {
			if _, _, err := conn.ReadMessage(); err != nil {
				return
			}
		}
	}()

	// Push the current state so the overlay draws before the next tick.
	if u := s.live.Latest(); u.Seq > 0 {
		conn.SetWriteDeadline(time.Now().Add(writeWait))
		if err := conn.WriteJSON(u); err != nil {
			return
		}
	}

	ping := time.NewTicker(pingPeriod)
	defer ping.Stop()

	for {
		select {
		case u := <-ch:
			conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := conn.WriteJSON(u); err != nil {
				s.log.Debug().Err(err).Msg("live subscriber dropped")
				return
			}
		case <-ping.C:
			conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		case <-done:
			return
		}
	}
}

// frameFromRequest decodes an uploaded image when the request has a body,
// otherwise snapshots the capture source.
func (s *server) frameFromRequest(w http.ResponseWriter, r *http.Request) (*frame.Frame, error) {
	if r.ContentLength != 0 {
		img, _, err := image.Decode(http.MaxBytesReader(w, r.Body, maxUploadSize))
		if err != nil {
			return nil, fmt.Errorf("decoding upload: %w", err)
		}
		return frame.FromImage(img)
	}
	return s.source.Snapshot()
}

// statusFor maps pipeline errors onto HTTP status codes.
func statusFor(err error) int {
	switch {
	case errors.Is(err, detect.ErrNoDocument):
		return http.StatusNotFound
	case errors.Is(err, host.ErrTimeout):
		return http.StatusGatewayTimeout
	case errors.Is(err, host.ErrRuntimeUnavailable), errors.Is(err, host.ErrHostClosed):
		return http.StatusServiceUnavailable
	case errors.Is(err, host.ErrHostBusy):
		return http.StatusTooManyRequests
	case errors.Is(err, frame.ErrInvalidFrame), errors.Is(err, rectify.ErrOutputTooSmall):
		return http.StatusUnprocessableEntity
	default:
		return http.StatusInternalServerError
	}
}

func (s *server) writeJSON(w http.ResponseWriter, code int, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		s.log.Warn().Err(err).Msg("writing response")
	}
}

func (s *server) writeError(w http.ResponseWriter, code int, err error) {
	s.log.Debug().Err(err).Int("status", code).Msg("request failed")
	s.writeJSON(w, code, map[string]string{"error": err.Error()})
}
