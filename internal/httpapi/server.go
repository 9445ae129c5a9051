// Package httpapi is the worker's operational HTTP surface: health probes,
// metrics, a join-token mint and a read-only view of the running session and
// the tool audit trail. It never carries conversation media.
package httpapi

import (
	"encoding/json"
	"errors"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/svaddadi/roomagent/internal/audit"
	"github.com/svaddadi/roomagent/internal/config"
	"github.com/svaddadi/roomagent/internal/observability"
	"github.com/svaddadi/roomagent/internal/session"
	"github.com/svaddadi/roomagent/internal/token"
)

type Server struct {
	cfg      config.Config
	sessions *session.Manager
	audits   audit.Store
	// sessionID resolves the worker's current session, "" before the room
	// join has succeeded.
	sessionID func() string
}

func New(cfg config.Config, sessions *session.Manager, audits audit.Store, sessionID func() string) *Server {
	if sessionID == nil {
		sessionID = func() string { return "" }
	}
	return &Server{
		cfg:       cfg,
		sessions:  sessions,
		audits:    audits,
		sessionID: sessionID,
	}
}

func (s *Server) Router() http.Handler {
	r := chi.NewRouter()

	r.Get("/healthz", s.handleHealth)
	r.Get("/readyz", s.handleReady)
	r.Get("/metrics", func(w http.ResponseWriter, r *http.Request) {
		observability.MetricsHandler().ServeHTTP(w, r)
	})

	r.Post("/v1/token", s.handleIssueToken)
	r.Get("/v1/session", s.handleGetSession)
	r.Get("/v1/audit/recent", s.handleRecentAudit)

	return r
}

func (s *Server) handleHealth(w http.ResponseWriter, _ *http.Request) {
	respondJSON(w, http.StatusOK, map[string]any{
		"status": "ok",
		"room":   s.cfg.RoomName,
	})
}

func (s *Server) handleReady(w http.ResponseWriter, _ *http.Request) {
	respondJSON(w, http.StatusOK, map[string]any{
		"status":          "ready",
		"active_sessions": s.sessions.ActiveCount(),
	})
}

type issueTokenRequest struct {
	Identity   string `json:"identity"`
	Name       string `json:"name"`
	Room       string `json:"room"`
	TTLSeconds int64  `json:"ttl_seconds"`
}

type issueTokenResponse struct {
	Token     string    `json:"token"`
	Identity  string    `json:"identity"`
	Room      string    `json:"room"`
	ExpiresAt time.Time `json:"expires_at"`
}

func (s *Server) handleIssueToken(w http.ResponseWriter, r *http.Request) {
	var req issueTokenRequest
	if err := decodeJSON(r, &req); err != nil && !errors.Is(err, errEmptyBody) {
		respondError(w, http.StatusBadRequest, "invalid_request", err.Error())
		return
	}
	if strings.TrimSpace(req.Identity) == "" {
		respondError(w, http.StatusBadRequest, "missing_identity", "identity is required")
		return
	}
	roomName := strings.TrimSpace(req.Room)
	if roomName == "" {
		roomName = s.cfg.RoomName
	}
	ttl := s.cfg.TokenTTL
	if req.TTLSeconds > 0 {
		ttl = time.Duration(req.TTLSeconds) * time.Second
	}

	signed, err := token.Issue(req.Identity, req.Name, roomName,
		token.Grants{RoomJoin: true}, s.cfg.RoomAPIKey, s.cfg.RoomAPISecret, ttl)
	if err != nil {
		if errors.Is(err, token.ErrMissingCredentials) {
			respondError(w, http.StatusServiceUnavailable, "signing_unavailable", "signing credentials are not configured")
			return
		}
		respondError(w, http.StatusBadRequest, "invalid_request", err.Error())
		return
	}

	respondJSON(w, http.StatusCreated, issueTokenResponse{
		Token:     signed,
		Identity:  req.Identity,
		Room:      roomName,
		ExpiresAt: time.Now().Add(ttl).UTC(),
	})
}

func (s *Server) handleGetSession(w http.ResponseWriter, _ *http.Request) {
	id := s.sessionID()
	if id == "" {
		respondError(w, http.StatusNotFound, "no_session", "no session is running")
		return
	}
	sess, err := s.sessions.Get(id)
	if err != nil {
		respondError(w, http.StatusNotFound, "session_not_found", err.Error())
		return
	}
	respondJSON(w, http.StatusOK, sess)
}

func (s *Server) handleRecentAudit(w http.ResponseWriter, r *http.Request) {
	limit := 50
	if v := strings.TrimSpace(r.URL.Query().Get("limit")); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil || n <= 0 {
			respondError(w, http.StatusBadRequest, "invalid_limit", "limit must be a positive integer")
			return
		}
		limit = n
	}
	records, err := s.audits.Recent(r.Context(), limit)
	if err != nil {
		respondError(w, http.StatusInternalServerError, "audit_unavailable", err.Error())
		return
	}
	if records == nil {
		records = []audit.Record{}
	}
	respondJSON(w, http.StatusOK, map[string]any{"records": records})
}

type errorResponse struct {
	Error string `json:"error"`
	Code  string `json:"code"`
}

var errEmptyBody = errors.New("empty body")

func decodeJSON(r *http.Request, out any) error {
	if r.Body == nil {
		return errEmptyBody
	}
	defer r.Body.Close()
	dec := json.NewDecoder(r.Body)
	if err := dec.Decode(out); err != nil {
		if strings.Contains(strings.ToLower(err.Error()), "eof") {
			return errEmptyBody
		}
		return err
	}
	return nil
}

func respondJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func respondError(w http.ResponseWriter, status int, code, message string) {
	respondJSON(w, status, errorResponse{Error: message, Code: code})
}
