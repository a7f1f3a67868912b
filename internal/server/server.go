// Package server exposes the HTTP API: user registry, drive ledger, chat,
// and the reconciliation endpoint. Handlers decode the wire payload, call
// the domain core, and translate domain errors to status codes.
package server

import (
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"strings"

	"ridelink/internal/app"
	"ridelink/internal/ratelimit"
	"ridelink/internal/util"
	"ridelink/pkg/domain"
)

// Config wires the HTTP layer.
type Config struct {
	App *app.App
	// Limiter throttles write endpoints per client IP; nil disables.
	Limiter *ratelimit.FixedWindowLimiter
	// TrustProxy honors X-Forwarded-For when resolving the client IP.
	TrustProxy bool
	Logger     *slog.Logger
}

// Server is the HTTP front of the service.
type Server struct {
	app        *app.App
	limiter    *ratelimit.FixedWindowLimiter
	trustProxy bool
	logger     *slog.Logger
}

// New builds the server.
func New(cfg Config) (*Server, error) {
	if cfg.App == nil {
		return nil, errors.New("server: app required")
	}
	logger := cfg.Logger
	if logger == nil {
		logger = slog.Default()
	}
	return &Server{
		app:        cfg.App,
		limiter:    cfg.Limiter,
		trustProxy: cfg.TrustProxy,
		logger:     logger,
	}, nil
}

// Router builds the full handler chain: routes wrapped with request id,
// request logging, CORS, and security headers.
func (s *Server) Router() http.Handler {
	mux := http.NewServeMux()

	mux.HandleFunc("GET /healthz", s.handleHealth)

	mux.HandleFunc("POST /user", s.limited(s.handleRegisterUser))
	mux.HandleFunc("GET /user/{username}", s.handleGetUser)
	mux.HandleFunc("DELETE /user/{username}", s.limited(s.handleRemoveUser))
	mux.HandleFunc("PUT /user/{username}/device", s.limited(s.handleAttachDevice))
	mux.HandleFunc("GET /users", s.handleListUsers)

	mux.HandleFunc("POST /drive", s.limited(s.handlePostDrive))
	mux.HandleFunc("PUT /drive/{id}/cancel", s.limited(s.handleCancelDrive))
	mux.HandleFunc("GET /drive/{id}", s.handleGetDrive)
	mux.HandleFunc("GET /drives", s.handleListDrives)
	mux.HandleFunc("GET /drives/{username}", s.handleListDrivesByUsername)

	mux.HandleFunc("POST /chat/{driveId}", s.limited(s.handleOpenChat))
	mux.HandleFunc("POST /chat/{chatId}/message", s.limited(s.handlePostMessage))
	mux.HandleFunc("GET /chat/{chatId}", s.handleGetChat)
	mux.HandleFunc("GET /chat/{chatId}/message/{messageId}", s.handleGetMessage)

	mux.HandleFunc("POST /reconcile", s.handleReconcile)

	var handler http.Handler = mux
	handler = util.WithRequestLog(handler)
	handler = util.WithRequestID(handler)
	handler = util.WithCORS(handler)
	handler = util.WithSecurityHeaders(handler)
	return handler
}

// limited applies the per-IP write quota. Rejections carry 429.
func (s *Server) limited(next http.HandlerFunc) http.HandlerFunc {
	if s.limiter == nil {
		return next
	}
	return func(w http.ResponseWriter, r *http.Request) {
		if !s.limiter.Allow(util.ClientIP(r, s.trustProxy)) {
			writeError(w, http.StatusTooManyRequests, "rate limit exceeded")
			return
		}
		next(w, r)
	}
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

type registerUserRequest struct {
	Username string `json:"username"`
	Number   string `json:"number"`
	Location string `json:"location"`
}

func (s *Server) handleRegisterUser(w http.ResponseWriter, r *http.Request) {
	var req registerUserRequest
	if !decodeBody(w, r, &req) {
		return
	}
	user, err := s.app.RegisterUser(r.Context(), req.Username, req.Number, req.Location)
	if err != nil {
		s.writeDomainError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, user)
}

func (s *Server) handleGetUser(w http.ResponseWriter, r *http.Request) {
	user, ok, err := s.app.GetUser(r.Context(), r.PathValue("username"))
	if err != nil {
		s.writeDomainError(w, r, err)
		return
	}
	if !ok {
		writeError(w, http.StatusNotFound, "user not found")
		return
	}
	writeJSON(w, http.StatusOK, user)
}

func (s *Server) handleRemoveUser(w http.ResponseWriter, r *http.Request) {
	if err := s.app.RemoveUser(r.Context(), r.PathValue("username")); err != nil {
		s.writeDomainError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]bool{"deleted": true})
}

type attachDeviceRequest struct {
	DeviceToken string `json:"deviceToken"`
}

func (s *Server) handleAttachDevice(w http.ResponseWriter, r *http.Request) {
	var req attachDeviceRequest
	if !decodeBody(w, r, &req) {
		return
	}
	user, err := s.app.AttachDevice(r.Context(), r.PathValue("username"), req.DeviceToken)
	if err != nil {
		s.writeDomainError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, user)
}

func (s *Server) handleListUsers(w http.ResponseWriter, r *http.Request) {
	users, err := s.app.ListUsers(r.Context())
	if err != nil {
		s.writeDomainError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, users)
}

type postDriveRequest struct {
	Username string `json:"username"`
	From     string `json:"from"`
	To       string `json:"to"`
}

func (s *Server) handlePostDrive(w http.ResponseWriter, r *http.Request) {
	var req postDriveRequest
	if !decodeBody(w, r, &req) {
		return
	}
	drive, err := s.app.PostDrive(r.Context(), req.Username, req.From, req.To)
	if err != nil {
		s.writeDomainError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, drive)
}

func (s *Server) handleCancelDrive(w http.ResponseWriter, r *http.Request) {
	drive, err := s.app.CancelDrive(r.Context(), r.PathValue("id"))
	if err != nil {
		s.writeDomainError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, drive)
}

func (s *Server) handleGetDrive(w http.ResponseWriter, r *http.Request) {
	drive, ok, err := s.app.GetDrive(r.Context(), r.PathValue("id"))
	if err != nil {
		s.writeDomainError(w, r, err)
		return
	}
	if !ok {
		writeError(w, http.StatusNotFound, "drive not found")
		return
	}
	writeJSON(w, http.StatusOK, drive)
}

func (s *Server) handleListDrives(w http.ResponseWriter, r *http.Request) {
	drives, err := s.app.ListDrives(r.Context())
	if err != nil {
		s.writeDomainError(w, r, err)
		return
	}
	if drives == nil {
		drives = []domain.Drive{}
	}
	writeJSON(w, http.StatusOK, drives)
}

func (s *Server) handleListDrivesByUsername(w http.ResponseWriter, r *http.Request) {
	drives, err := s.app.ListDrivesByUsername(r.Context(), r.PathValue("username"))
	if err != nil {
		s.writeDomainError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, drives)
}

type openChatRequest struct {
	Username string `json:"username"`
}

func (s *Server) handleOpenChat(w http.ResponseWriter, r *http.Request) {
	var req openChatRequest
	if !decodeBody(w, r, &req) {
		return
	}
	chat, err := s.app.OpenChat(r.Context(), r.PathValue("driveId"), req.Username)
	if err != nil {
		s.writeDomainError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, chat)
}

type postMessageRequest struct {
	Username string `json:"username"`
	Message  string `json:"message"`
}

func (s *Server) handlePostMessage(w http.ResponseWriter, r *http.Request) {
	var req postMessageRequest
	if !decodeBody(w, r, &req) {
		return
	}
	msg, err := s.app.PostMessage(r.Context(), r.PathValue("chatId"), req.Username, req.Message)
	if err != nil {
		s.writeDomainError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, msg)
}

func (s *Server) handleGetChat(w http.ResponseWriter, r *http.Request) {
	chat, ok, err := s.app.GetChat(r.Context(), r.PathValue("chatId"))
	if err != nil {
		s.writeDomainError(w, r, err)
		return
	}
	if !ok {
		writeError(w, http.StatusNotFound, "chat not found")
		return
	}
	writeJSON(w, http.StatusOK, chat)
}

func (s *Server) handleGetMessage(w http.ResponseWriter, r *http.Request) {
	msg, ok, err := s.app.GetMessage(r.Context(), r.PathValue("chatId"), r.PathValue("messageId"))
	if err != nil {
		s.writeDomainError(w, r, err)
		return
	}
	if !ok {
		writeError(w, http.StatusNotFound, "message not found")
		return
	}
	writeJSON(w, http.StatusOK, msg)
}

func (s *Server) handleReconcile(w http.ResponseWriter, r *http.Request) {
	repair := strings.EqualFold(r.URL.Query().Get("repair"), "true")
	report, err := s.app.Reconcile(r.Context(), repair)
	if err != nil {
		s.writeDomainError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, report)
}

// writeDomainError maps domain errors onto the wire: invalid input is the
// caller's fault, absence is 404, anything else means the store or a
// downstream dependency misbehaved.
func (s *Server) writeDomainError(w http.ResponseWriter, r *http.Request, err error) {
	switch {
	case errors.Is(err, app.ErrInvalidInput):
		writeError(w, http.StatusBadRequest, err.Error())
	case errors.Is(err, app.ErrNotFound):
		writeError(w, http.StatusNotFound, err.Error())
	default:
		util.LoggerFromContext(r.Context()).Error("request failed",
			"method", r.Method, "path", r.URL.Path, "err", err)
		writeError(w, http.StatusBadGateway, "upstream store error")
	}
}

func decodeBody(w http.ResponseWriter, r *http.Request, dst any) bool {
	defer r.Body.Close()
	dec := json.NewDecoder(r.Body)
	if err := dec.Decode(dst); err != nil {
		writeError(w, http.StatusBadRequest, "invalid JSON body")
		return false
	}
	return true
}

func writeJSON(w http.ResponseWriter, status int, payload any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(payload)
}

func writeError(w http.ResponseWriter, status int, message string) {
	writeJSON(w, status, map[string]string{"error": message})
}
