package relay

import (
	"context"
	"crypto/tls"
	"errors"
	"fmt"
	"net"
	"net/http"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"
	"github.com/muurk/qcdiag/internal/discovery"
	"github.com/muurk/qcdiag/internal/logging"
	"github.com/muurk/qcdiag/internal/transport"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"
)

const (
	// Time allowed to write a message to the peer
	writeWait = 10 * time.Second

	// Largest request a client may send. Diag requests stay well under this.
	maxMessageSize = 64 * 1024

	shutdownTimeout = 5 * time.Second

	// websocket close reasons must fit in a control frame
	maxCloseReason = 120
)

// Config holds the relay configuration
type Config struct {
	Addr string // e.g. ":8765"
	Path string // websocket endpoint, default /diag

	// CertPath and KeyPath switch the listener to TLS when both are set.
	CertPath string
	KeyPath  string

	// CaptureDir enables JSONL capture of every request/response pair.
	CaptureDir string

	// Advertise publishes the relay over mDNS when set. Its Port is filled
	// in from the listener.
	Advertise *discovery.Advertisement
}

// Server exposes one local diag channel to a single websocket client at a
// time. The device is half-duplex, so a second client is refused with 409
// until the first disconnects.
type Server struct {
	config   Config
	ch       transport.Channel
	upgrader websocket.Upgrader
	registry *prometheus.Registry
	metrics  *Metrics
	capture  *Capture
	logger   *zap.Logger

	busy    atomic.Bool
	mu      sync.Mutex
	active  *websocket.Conn
	session string
}

// New creates a relay serving ch. ch is not closed by the server.
func New(config Config, ch transport.Channel) (*Server, error) {
	if config.Path == "" {
		config.Path = discovery.DefaultPath
	}

	registry := prometheus.NewRegistry()
	s := &Server{
		config:   config,
		ch:       ch,
		registry: registry,
		metrics:  NewMetrics(registry),
		logger:   logging.GetLogger(),
		upgrader: websocket.Upgrader{
			ReadBufferSize:  4096,
			WriteBufferSize: 4096,
			// clients are command line tools, not browsers
			CheckOrigin: func(*http.Request) bool { return true },
		},
	}

	if config.CaptureDir != "" {
		c, err := OpenCapture(config.CaptureDir)
		if err != nil {
			return nil, err
		}
		s.capture = c
		logging.Info("Capturing relay traffic", zap.String("file", c.Path()))
	}
	return s, nil
}

// Metrics returns the relay metrics.
func (s *Server) Metrics() *Metrics {
	return s.metrics
}

// Handler returns the HTTP routes: the websocket endpoint, /metrics and
// /healthz.
func (s *Server) Handler() http.Handler {
	mux := http.NewServeMux()
	mux.HandleFunc("GET "+s.config.Path, s.handleDiag)
	mux.Handle("GET /metrics", promhttp.HandlerFor(s.registry, promhttp.HandlerOpts{}))
	mux.HandleFunc("GET /healthz", func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "text/plain; charset=utf-8")
		if id := s.ActiveSession(); id != "" {
			fmt.Fprintf(w, "busy %s\n", id)
			return
		}
		fmt.Fprintln(w, "idle")
	})
	return mux
}

// ActiveSession returns the id of the connected client, or "".
func (s *Server) ActiveSession() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.session
}

// Run listens on Config.Addr and serves until ctx is cancelled.
func (s *Server) Run(ctx context.Context) error {
	ln, err := net.Listen("tcp", s.config.Addr)
	if err != nil {
		return fmt.Errorf("failed to listen on %s: %w", s.config.Addr, err)
	}
	return s.Serve(ctx, ln)
}

// Serve serves on ln until ctx is cancelled, then shuts down gracefully.
func (s *Server) Serve(ctx context.Context, ln net.Listener) error {
	useTLS := s.config.CertPath != "" && s.config.KeyPath != ""
	var tlsConfig *tls.Config
	if useTLS {
		c, err := NewTLSConfig(s.config.CertPath, s.config.KeyPath)
		if err != nil {
			_ = ln.Close()
			return err
		}
		tlsConfig = c
	}

	srv := &http.Server{
		Handler:           s.Handler(),
		ReadHeaderTimeout: 10 * time.Second,
		TLSConfig:         tlsConfig,
	}

	logging.Info("Relay listening",
		zap.String("addr", ln.Addr().String()),
		zap.String("path", s.config.Path),
		zap.Bool("tls", useTLS))

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		var err error
		if useTLS {
			err = srv.ServeTLS(ln, "", "")
		} else {
			err = srv.Serve(ln)
		}
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return err
	})
	g.Go(func() error {
		<-gctx.Done()
		logging.Info("Shutting down relay...")
		sctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), shutdownTimeout)
		defer cancel()
		s.closeActive()
		return srv.Shutdown(sctx)
	})
	if s.config.Advertise != nil {
		adv := *s.config.Advertise
		if tcp, ok := ln.Addr().(*net.TCPAddr); ok {
			adv.Port = tcp.Port
		}
		adv.Path = s.config.Path
		g.Go(func() error {
			return discovery.Advertise(gctx, adv)
		})
	}

	err := g.Wait()
	if cerr := s.capture.Close(); cerr != nil && err == nil {
		err = cerr
	}
	logging.Sync()
	return err
}

func (s *Server) handleDiag(w http.ResponseWriter, r *http.Request) {
	if !s.busy.CompareAndSwap(false, true) {
		s.metrics.rejected()
		logging.LogConnection(r.RemoteAddr, "rejected_busy")
		http.Error(w, "relay busy: another client holds the diag port", http.StatusConflict)
		return
	}
	defer s.busy.Store(false)

	conn, err := s.upgrader.Upgrade(w, r, nil)
	if err != nil {
		// Upgrade has already written the HTTP error
		s.logger.Warn("Websocket upgrade failed", zap.String("remote_addr", r.RemoteAddr), zap.Error(err))
		return
	}
	conn.SetReadLimit(maxMessageSize)

	id := uuid.NewString()
	s.setActive(conn, id)
	s.metrics.sessionStarted()
	logging.LogSession(id, "session_started",
		zap.String("remote_addr", r.RemoteAddr),
		zap.String("client", r.UserAgent()))

	defer func() {
		_ = conn.Close()
		s.setActive(nil, "")
		s.metrics.sessionEnded()
		logging.LogSession(id, "session_closed")
	}()

	s.serveSession(r.Context(), conn, id)
}

// serveSession forwards binary messages to the channel one at a time and
// writes each reply back, empty when the device stayed silent.
func (s *Server) serveSession(ctx context.Context, conn *websocket.Conn, id string) {
	seq := 0
	for {
		msgType, req, err := conn.ReadMessage()
		if err != nil {
			if !websocket.IsCloseError(err, websocket.CloseNormalClosure, websocket.CloseGoingAway) && !errors.Is(err, net.ErrClosed) {
				s.logger.Debug("Session read ended", zap.String("session_id", id), zap.Error(err))
			}
			return
		}
		if msgType != websocket.BinaryMessage || len(req) == 0 {
			continue
		}
		seq++

		start := time.Now()
		resp, sendErr := s.ch.Send(ctx, req)
		latency := time.Since(start)

		s.metrics.observe(req, latency, len(resp) == 0, sendErr)
		if err := s.capture.Write(NewRecord(id, seq, req, resp, latency, sendErr)); err != nil {
			s.logger.Warn("Capture write failed", zap.Error(err))
		}

		if sendErr != nil {
			s.logger.Error("Diag channel failed", zap.String("session_id", id), zap.Error(sendErr))
			reason := "diag port: " + sendErr.Error()
			if len(reason) > maxCloseReason {
				reason = reason[:maxCloseReason]
			}
			_ = conn.WriteControl(websocket.CloseMessage,
				websocket.FormatCloseMessage(websocket.CloseInternalServerErr, reason),
				time.Now().Add(writeWait))
			return
		}

		_ = conn.SetWriteDeadline(time.Now().Add(writeWait))
		if err := conn.WriteMessage(websocket.BinaryMessage, resp); err != nil {
			s.logger.Debug("Session write failed", zap.String("session_id", id), zap.Error(err))
			return
		}
	}
}

func (s *Server) setActive(conn *websocket.Conn, id string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.active = conn
	s.session = id
}

// closeActive drops the connected client. Hijacked connections are not
// closed by http.Server.Shutdown.
func (s *Server) closeActive() {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.active != nil {
		logging.LogSession(s.session, "session_closed_by_shutdown")
		_ = s.active.WriteControl(websocket.CloseMessage,
			websocket.FormatCloseMessage(websocket.CloseGoingAway, "relay shutting down"),
			time.Now().Add(time.Second))
		_ = s.active.Close()
	}
}
