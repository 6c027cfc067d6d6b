// Package server exposes the engine over HTTP: cookie-gated /query,
// /login, and prometheus /metrics, plus periodic maintenance jobs.
package server

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"time"

	"github.com/google/uuid"
	"github.com/robfig/cron/v3"
	"github.com/rs/zerolog"

	"pagedb/internal/engine"
	"pagedb/internal/log"
	"pagedb/internal/metrics"
	"pagedb/internal/query"
	"pagedb/internal/sql"
	"pagedb/internal/txn"
)

const (
	sessionCookie = "session_token"
	sessionValue  = "secret-token"

	adminUser = "admin"
	adminPass = "password"
)

// Config holds the HTTP server configuration.
type Config struct {
	Addr          string
	DeadlockSweep string // cron spec, e.g. "@every 1s"
	Checkpoint    string // cron spec, e.g. "@every 30s"
}

// Server is the HTTP surface over one engine.
type Server struct {
	eng     *engine.Engine
	cfg     Config
	mux     *http.ServeMux
	httpSrv *http.Server
	cron    *cron.Cron
	log     zerolog.Logger
}

// New builds the server, its routes, and its maintenance schedule.
func New(eng *engine.Engine, cfg Config) *Server {
	s := &Server{
		eng:  eng,
		cfg:  cfg,
		mux:  http.NewServeMux(),
		cron: cron.New(),
		log:  log.WithComponent("server"),
	}

	s.mux.HandleFunc("/login", s.handleLogin)
	s.mux.HandleFunc("/query", s.handleQuery)
	s.mux.Handle("/metrics", metrics.Handler())

	if cfg.DeadlockSweep != "" {
		if _, err := s.cron.AddFunc(cfg.DeadlockSweep, eng.SweepDeadlocks); err != nil {
			s.log.Warn().Err(err).Msg("invalid deadlock sweep schedule")
		}
	}
	if cfg.Checkpoint != "" {
		if _, err := s.cron.AddFunc(cfg.Checkpoint, func() {
			if err := eng.Checkpoint(); err != nil {
				s.log.Error().Err(err).Msg("checkpoint failed")
			}
		}); err != nil {
			s.log.Warn().Err(err).Msg("invalid checkpoint schedule")
		}
	}

	s.httpSrv = &http.Server{
		Addr:    cfg.Addr,
		Handler: s.mux,
	}
	return s
}

// Handler returns the route table (used by tests).
func (s *Server) Handler() http.Handler {
	return s.mux
}

// Run starts the maintenance jobs and serves until Shutdown.
func (s *Server) Run() error {
	s.cron.Start()
	s.log.Info().Str("addr", s.cfg.Addr).Msg("listening")
	err := s.httpSrv.ListenAndServe()
	if errors.Is(err, http.ErrServerClosed) {
		return nil
	}
	return err
}

// Shutdown stops the maintenance jobs and the listener.
func (s *Server) Shutdown(ctx context.Context) error {
	s.cron.Stop()
	return s.httpSrv.Shutdown(ctx)
}

type loginRequest struct {
	User string `json:"user"`
	Pass string `json:"pass"`
}

type queryRequest struct {
	SQL string `json:"sql"`
}

type queryResponse struct {
	Rows [][]string `json:"rows"`
}

func (s *Server) handleLogin(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		http.NotFound(w, r)
		return
	}

	var req loginRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, "bad request body", http.StatusBadRequest)
		return
	}

	// Stub authentication: one built-in account, one fixed token.
	if req.User != adminUser || req.Pass != adminPass {
		s.log.Info().Str("user", req.User).Msg("login rejected")
		http.Error(w, "invalid credentials", http.StatusUnauthorized)
		return
	}

	http.SetCookie(w, &http.Cookie{
		Name:     sessionCookie,
		Value:    sessionValue,
		HttpOnly: true,
		Path:     "/",
	})
	w.WriteHeader(http.StatusOK)
}

func (s *Server) handleQuery(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		http.NotFound(w, r)
		return
	}

	cookie, err := r.Cookie(sessionCookie)
	if err != nil || cookie.Value != sessionValue {
		http.Error(w, "not authenticated", http.StatusUnauthorized)
		return
	}

	var req queryRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, "bad request body", http.StatusBadRequest)
		return
	}

	reqID := uuid.NewString()
	start := time.Now()
	rows, err := s.eng.Execute(req.SQL)
	logger := s.log.With().
		Str("request_id", reqID).
		Dur("elapsed", time.Since(start)).
		Logger()

	if err != nil {
		status := classify(err)
		logger.Info().Int("status", status).Err(err).Msg("query failed")
		http.Error(w, err.Error(), status)
		return
	}

	logger.Info().Int("rows", len(rows)).Msg("query ok")
	if rows == nil {
		rows = [][]string{}
	}
	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(queryResponse{Rows: rows})
}

// classify maps the error taxonomy onto HTTP statuses: syntax, bind,
// and plan failures are the client's fault; lock, storage, WAL, and
// recovery failures are the server's.
func classify(err error) int {
	var syntaxErr *sql.SyntaxError
	var bindErr *query.BindError
	var planErr *query.PlanError
	switch {
	case errors.As(err, &syntaxErr), errors.As(err, &bindErr), errors.As(err, &planErr):
		return http.StatusBadRequest
	case errors.Is(err, txn.ErrDeadlock):
		return http.StatusInternalServerError
	default:
		return http.StatusInternalServerError
	}
}
