package server

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"sync"
	"time"

	"github.com/gorilla/websocket"

	"github.com/fitnessquest/server/internal/checkin"
	"github.com/fitnessquest/server/internal/config"
	"github.com/fitnessquest/server/internal/logger"
	"github.com/fitnessquest/server/internal/notify"
)

// CodeRateLimited is sent for throttled commands and just before a
// locked-out client is disconnected.
const CodeRateLimited = "rate_limited"

// Server accepts websocket clients and runs their commands against the
// check-in service.
type Server struct {
	cfg           *config.Config
	service       *checkin.Service
	hub           *notify.Hub
	connLimiter   *ConnLimiter
	rejectLimiter *RejectLimiter
	httpServer    *http.Server
	now           func() time.Time
	StartTime     time.Time

	mu           sync.Mutex
	sessions     map[*session]struct{}
	baseCtx      context.Context
	cancel       context.CancelFunc
	shutdownOnce sync.Once
}

// session is one connected client.
type session struct {
	client   *WebSocketClient
	ip       string
	throttle *CommandThrottle

	mu  sync.Mutex
	sub *notify.Subscriber
	hub *notify.Hub
}

// subscribe moves the session's event subscription to partyID.
func (s *session) subscribe(hub *notify.Hub, partyID string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.sub != nil {
		s.hub.Unsubscribe(s.sub)
	}
	s.hub = hub
	s.sub = hub.Subscribe(partyID, s.client)
}

func (s *session) unsubscribe() {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.sub != nil {
		s.hub.Unsubscribe(s.sub)
		s.sub = nil
	}
}

// NewServer creates a server. The hub should be the same one passed to the
// service as its notifier.
func NewServer(cfg *config.Config, service *checkin.Service, hub *notify.Hub) *Server {
	ctx, cancel := context.WithCancel(context.Background())
	s := &Server{
		cfg:           cfg,
		service:       service,
		hub:           hub,
		connLimiter:   NewConnLimiter(cfg.Connections),
		rejectLimiter: NewRejectLimiter(cfg.RateLimit),
		now:           time.Now,
		StartTime:     time.Now(),
		sessions:      make(map[*session]struct{}),
		baseCtx:       ctx,
		cancel:        cancel,
	}
	s.httpServer = &http.Server{
		Addr:              cfg.ListenAddr,
		Handler:           s.Handler(),
		ReadHeaderTimeout: 10 * time.Second,
	}
	return s
}

// Handler returns the HTTP routes: /ws for clients and /health for probes.
func (s *Server) Handler() http.Handler {
	mux := http.NewServeMux()
	mux.HandleFunc("/ws", s.handleWebSocketUpgrade)
	mux.HandleFunc("/health", s.handleHealth)
	return mux
}

// ListenAndServe blocks until the server is shut down.
func (s *Server) ListenAndServe() error {
	logger.Info("Server listening", "address", s.cfg.ListenAddr)
	if err := s.httpServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return err
	}
	return nil
}

// GetUptime returns how long the server has been running.
func (s *Server) GetUptime() time.Duration {
	return time.Since(s.StartTime)
}

type healthStatus struct {
	Status        string `json:"status"`
	Connections   int    `json:"connections"`
	UniqueIPs     int    `json:"unique_ips"`
	UptimeSeconds int64  `json:"uptime_seconds"`
	DroppedEvents int64  `json:"dropped_events"`
}

func (s *Server) handleHealth(w http.ResponseWriter, _ *http.Request) {
	stats := s.connLimiter.Stats()
	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(healthStatus{
		Status:        "ok",
		Connections:   stats.Total,
		UniqueIPs:     stats.UniqueIPs,
		UptimeSeconds: int64(s.GetUptime().Seconds()),
		DroppedEvents: s.hub.Dropped(),
	})
}

// handleWebSocketUpgrade upgrades an HTTP connection to WebSocket.
func (s *Server) handleWebSocketUpgrade(w http.ResponseWriter, r *http.Request) {
	// Supports X-Forwarded-For from reverse proxies
	clientIP := getRealIP(r)

	if locked, remaining := s.rejectLimiter.Locked(clientIP); locked {
		logger.Warning("WebSocket connection rejected - locked out",
			"client_ip", clientIP,
			"remaining", remaining)
		http.Error(w, "Too many bad requests. Please try again later.", http.StatusTooManyRequests)
		return
	}

	release, ok := s.connLimiter.Acquire(clientIP)
	if !ok {
		logger.Warning("WebSocket connection rejected - limit exceeded",
			"remote_addr", r.RemoteAddr,
			"client_ip", clientIP)
		http.Error(w, "Too many connections. Please try again later.", http.StatusTooManyRequests)
		return
	}
	defer release()

	upgrader := websocket.Upgrader{
		ReadBufferSize:  1024,
		WriteBufferSize: 1024,
		CheckOrigin: func(r *http.Request) bool {
			origin := r.Header.Get("Origin")
			allowed := s.cfg.WebSocket.IsOriginAllowed(origin, r.Host)
			if !allowed {
				logger.Warning("WebSocket connection rejected - origin not allowed",
					"origin", origin,
					"host", r.Host,
					"remote_addr", r.RemoteAddr)
			}
			return allowed
		},
	}

	wsConn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		logger.Error("WebSocket upgrade failed", "error", err)
		return
	}
	if s.cfg.WebSocket.MaxMessageSize > 0 {
		wsConn.SetReadLimit(s.cfg.WebSocket.MaxMessageSize)
	}

	sess := &session{
		client:   NewWebSocketClient(wsConn),
		ip:       clientIP,
		throttle: NewCommandThrottle(s.cfg.RateLimit.CommandsPerWindow, time.Duration(s.cfg.RateLimit.WindowSeconds)*time.Second),
	}
	if !s.track(sess) {
		wsConn.Close()
		return
	}
	defer func() {
		s.untrack(sess)
		sess.unsubscribe()
		sess.client.Close()
	}()

	s.serve(sess)
}

func (s *Server) track(sess *session) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.sessions == nil {
		return false // shutting down
	}
	s.sessions[sess] = struct{}{}
	return true
}

func (s *Server) untrack(sess *session) {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.sessions, sess)
}

// serve reads commands until the client disconnects or is locked out.
func (s *Server) serve(sess *session) {
	logger.Info("Client connected", "remote_addr", sess.client.RemoteAddr(), "client_ip", sess.ip)
	defer logger.Info("Client disconnected", "client_ip", sess.ip)

	for {
		cmd, err := sess.client.ReadCommand()
		if err != nil {
			var malformed *malformedError
			if !errors.As(err, &malformed) {
				if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseNormalClosure) {
					logger.Debug("Client read failed", "client_ip", sess.ip, "error", err)
				}
				return
			}
			if !s.replyError(sess, "", err) {
				return
			}
			continue
		}

		if ok, wait := sess.throttle.Allow(); !ok {
			reply := Reply{Type: "error", ID: cmd.ID, Code: CodeRateLimited,
				Error: fmt.Sprintf("too many commands, retry in %ds", int(wait.Seconds())+1)}
			if err := sess.client.Send(reply); err != nil {
				return
			}
			continue
		}

		data, err := s.dispatch(s.baseCtx, sess, cmd)
		if err != nil {
			if !s.replyError(sess, cmd.ID, err) {
				return
			}
			continue
		}
		if err := sess.client.Send(Reply{Type: "result", ID: cmd.ID, Data: data}); err != nil {
			logger.Debug("Client write failed", "client_ip", sess.ip, "error", err)
			return
		}
	}
}

// replyError sends an error reply and counts protocol abuse toward a
// lockout. It returns false when the connection should be closed.
func (s *Server) replyError(sess *session, id string, err error) bool {
	code := errorCode(err)
	switch code {
	case CodeInternal:
		logger.Error("Command failed", "client_ip", sess.ip, "id", id, "error", err)
	case CodeMalformed, CodeUnknownCommand:
		if locked, d := s.rejectLimiter.Reject(sess.ip); locked {
			logger.Audit("Client locked out", "client_ip", sess.ip, "duration", d)
			sess.client.Send(Reply{Type: "error", ID: id, Code: CodeRateLimited, Error: "too many bad commands"})
			return false
		}
	}

	msg := err.Error()
	if code == CodeInternal {
		msg = "internal error"
	}
	if err := sess.client.Send(Reply{Type: "error", ID: id, Code: code, Error: msg}); err != nil {
		logger.Debug("Client write failed", "client_ip", sess.ip, "error", err)
		return false
	}
	return true
}

// Shutdown stops accepting clients, disconnects everyone and waits for
// background reward work to finish.
func (s *Server) Shutdown(ctx context.Context) error {
	var err error
	s.shutdownOnce.Do(func() {
		err = s.httpServer.Shutdown(ctx)

		// Hijacked websocket connections are not closed by http.Server.
		s.mu.Lock()
		sessions := s.sessions
		s.sessions = nil
		s.mu.Unlock()
		for sess := range sessions {
			sess.client.Close()
		}

		s.hub.Close()
		s.rejectLimiter.Stop()
		s.service.Wait()
		s.cancel()
		logger.Info("Server shutdown complete", "clients", len(sessions))
	})
	return err
}
