package main

import (
	"context"
	"crypto/tls"
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"net/http"
	"strconv"
	"time"
)

const (
	sessionCookie = "session"
	sessionTTL    = 24 * time.Hour
	maxBodyBytes  = 4 << 10
)

// StatusSource is the read side of the controller.
type StatusSource interface {
	Status() Status
}

// Server is the operator API.  Commands are decoded here and queued for the
// controller goroutine; nothing in this file touches the actuators.
type Server struct {
	cfgMgr   *ConfigManager
	sessions *SessionManager
	status   StatusSource
	inbox    *Inbox
	journal  *EventLogger
	ws       http.Handler
	logger   *slog.Logger
	srv      *http.Server
}

// NewServer builds the operator API.  ws may be nil, in which case /api/ws is
// not routed.
func NewServer(cfgMgr *ConfigManager, status StatusSource, inbox *Inbox, journal *EventLogger, ws http.Handler, logger *slog.Logger) *Server {
	s := &Server{
		cfgMgr:   cfgMgr,
		sessions: NewSessionManager(),
		status:   status,
		inbox:    inbox,
		journal:  journal,
		ws:       ws,
		logger:   logger.With("component", "http"),
	}
	s.srv = &http.Server{
		Addr:              cfgMgr.Get().HTTP.Addr,
		Handler:           s.Handler(),
		ReadHeaderTimeout: 10 * time.Second,
		TLSConfig:         &tls.Config{MinVersion: tls.VersionTLS12},
	}
	return s
}

// Handler returns the API routes.
func (s *Server) Handler() http.Handler {
	mux := http.NewServeMux()
	mux.HandleFunc("/api/login", s.handleLogin)
	mux.HandleFunc("/api/logout", s.handleLogout)
	mux.HandleFunc("/api/status", s.withAuth(s.handleStatus))
	mux.HandleFunc("/api/eyes", s.withAuth(s.handleEyes))
	mux.HandleFunc("/api/servo", s.withAuth(s.handleServo))
	mux.HandleFunc("/api/events", s.withAuth(s.handleEvents))
	mux.HandleFunc("/api/logs", s.withAuth(s.handleLogs))
	if s.ws != nil {
		mux.HandleFunc("/api/ws", s.withAuth(func(w http.ResponseWriter, r *http.Request, _ User) {
			s.ws.ServeHTTP(w, r)
		}))
	}
	return mux
}

// Start serves until Shutdown.  TLS is used when a certificate is configured.
func (s *Server) Start() error {
	cfg := s.cfgMgr.Get().HTTP
	var err error
	if cfg.CertFile != "" {
		s.logger.Info("listening", "addr", s.srv.Addr, "tls", true)
		err = s.srv.ListenAndServeTLS(cfg.CertFile, cfg.KeyFile)
	} else {
		s.logger.Info("listening", "addr", s.srv.Addr, "tls", false)
		err = s.srv.ListenAndServe()
	}
	if errors.Is(err, http.ErrServerClosed) {
		return nil
	}
	return err
}

// Shutdown stops accepting requests and waits for active ones until ctx ends.
func (s *Server) Shutdown(ctx context.Context) error {
	return s.srv.Shutdown(ctx)
}

// withAuth wraps handlers that require a valid session.  If the request
// contains a valid "session" cookie, it calls the underlying handler with
// the user; otherwise it responds with 401.
func (s *Server) withAuth(handler func(http.ResponseWriter, *http.Request, User)) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		cookie, err := r.Cookie(sessionCookie)
		if err != nil {
			http.Error(w, "unauthenticated", http.StatusUnauthorized)
			return
		}
		sess, ok := s.sessions.Get(cookie.Value)
		if !ok {
			http.Error(w, "session expired", http.StatusUnauthorized)
			return
		}
		user, ok := s.cfgMgr.FindUser(sess.Username)
		if !ok {
			http.Error(w, "unknown user", http.StatusUnauthorized)
			return
		}
		handler(w, r, user)
	}
}

// handleLogin authenticates an operator and sets a session cookie.  Expected
// JSON: {"username":"...","password":"..."}
func (s *Server) handleLogin(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
		return
	}
	var creds struct {
		Username string `json:"username"`
		Password string `json:"password"`
	}
	if err := json.NewDecoder(http.MaxBytesReader(w, r.Body, maxBodyBytes)).Decode(&creds); err != nil {
		http.Error(w, "invalid JSON", http.StatusBadRequest)
		return
	}
	user, err := s.cfgMgr.Authenticate(creds.Username, creds.Password)
	if err != nil {
		s.logger.Warn("login failed", "username", creds.Username)
		http.Error(w, "invalid credentials", http.StatusUnauthorized)
		return
	}
	s.sessions.Purge()
	id, sess := s.sessions.Create(user.Username, sessionTTL)
	http.SetCookie(w, &http.Cookie{
		Name:     sessionCookie,
		Value:    id,
		Path:     "/",
		HttpOnly: true,
		Secure:   r.TLS != nil,
		SameSite: http.SameSiteStrictMode,
		Expires:  sess.Expires,
	})
	s.journal.Log("login %s", user.Username)
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

// handleLogout deletes the session and its cookie.
func (s *Server) handleLogout(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
		return
	}
	if cookie, err := r.Cookie(sessionCookie); err == nil {
		s.sessions.Delete(cookie.Value)
	}
	http.SetCookie(w, &http.Cookie{
		Name:     sessionCookie,
		Value:    "",
		Path:     "/",
		HttpOnly: true,
		Secure:   r.TLS != nil,
		Expires:  time.Unix(0, 0),
	})
	w.WriteHeader(http.StatusNoContent)
}

func (s *Server) handleStatus(w http.ResponseWriter, r *http.Request, _ User) {
	if r.Method != http.MethodGet {
		http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
		return
	}
	writeJSON(w, http.StatusOK, s.status.Status())
}

// handleEyes queues a SetEyes command.  Body JSON: {"expression":"welcome"}
func (s *Server) handleEyes(w http.ResponseWriter, r *http.Request, user User) {
	var req struct {
		Expression string `json:"expression"`
	}
	if !s.decodeBody(w, r, &req) {
		return
	}
	s.enqueue(w, user, func() (Command, error) { return DecodeEyes([]byte(req.Expression)) })
}

// handleServo queues a SetServo command.  The body uses the same format as the
// servo topic: {"channel":0,"angle":90}
func (s *Server) handleServo(w http.ResponseWriter, r *http.Request, user User) {
	if r.Method != http.MethodPost {
		http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
		return
	}
	body, err := io.ReadAll(http.MaxBytesReader(w, r.Body, maxBodyBytes))
	if err != nil {
		http.Error(w, "unreadable body", http.StatusBadRequest)
		return
	}
	s.enqueue(w, user, func() (Command, error) { return DecodeServo(body) })
}

// handleEvents queues an event.  Body JSON: {"name":"dance"}
func (s *Server) handleEvents(w http.ResponseWriter, r *http.Request, user User) {
	var req struct {
		Name string `json:"name"`
	}
	if !s.decodeBody(w, r, &req) {
		return
	}
	s.enqueue(w, user, func() (Command, error) { return DecodeEvent([]byte(req.Name)) })
}

// handleLogs returns the tail of the event journal.  Accepts optional query
// parameter `lines=n`, default 200.
func (s *Server) handleLogs(w http.ResponseWriter, r *http.Request, _ User) {
	limit := 200
	if v := r.URL.Query().Get("lines"); v != "" {
		if n, err := strconv.Atoi(v); err == nil && n > 0 {
			limit = n
		}
	}
	lines, err := s.journal.Tail(limit)
	if err != nil {
		http.Error(w, "log not found", http.StatusNotFound)
		return
	}
	writeJSON(w, http.StatusOK, lines)
}

func (s *Server) decodeBody(w http.ResponseWriter, r *http.Request, v any) bool {
	if r.Method != http.MethodPost {
		http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
		return false
	}
	if err := json.NewDecoder(http.MaxBytesReader(w, r.Body, maxBodyBytes)).Decode(v); err != nil {
		http.Error(w, "invalid JSON", http.StatusBadRequest)
		return false
	}
	return true
}

func (s *Server) enqueue(w http.ResponseWriter, user User, decode func() (Command, error)) {
	cmd, err := decode()
	if err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}
	if !s.inbox.Push(cmd) {
		s.logger.Warn("inbox full, dropping command", "command", cmd.String())
		http.Error(w, "controller busy", http.StatusServiceUnavailable)
		return
	}
	s.journal.Log("%s by %s", cmd, user.Username)
	w.WriteHeader(http.StatusAccepted)
}

func writeJSON(w http.ResponseWriter, code int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		slog.Debug("write response", "err", err)
	}
}
