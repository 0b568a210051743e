// Package api serves the relay's HTTP surface: the liveness endpoint and
// the admin delivery-log API.
package api

import (
	"crypto/subtle"
	"database/sql"
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"github.io/infrasutra/mailbridge/internal/auth"
	"github.io/infrasutra/mailbridge/internal/config"
	"github.io/infrasutra/mailbridge/internal/health"
	"github.io/infrasutra/mailbridge/internal/pagination"
	"github.io/infrasutra/mailbridge/internal/sse"
	"github.io/infrasutra/mailbridge/internal/store"
)

type Server struct {
	cfg    config.Config
	store  *store.Store
	auth   *auth.Manager
	hub    *sse.Hub
	prober *health.Prober
	logger *slog.Logger
	mux    *http.ServeMux
}

func NewServer(cfg config.Config, st *store.Store, authManager *auth.Manager, hub *sse.Hub, prober *health.Prober, logger *slog.Logger) *Server {
	server := &Server{
		cfg:    cfg,
		store:  st,
		auth:   authManager,
		hub:    hub,
		prober: prober,
		logger: logger,
	}
	mux := http.NewServeMux()
	mux.HandleFunc("/api/login", server.handleLogin)
	mux.HandleFunc("/api/deliveries", server.handleDeliveries)
	mux.HandleFunc("/api/deliveries/", server.handleDelivery)
	mux.HandleFunc("/api/stream", server.handleStream)
	server.mux = mux
	return server
}

func (s *Server) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	if strings.HasPrefix(r.URL.Path, "/api/") {
		if !s.cfg.AdminEnabled() {
			http.NotFound(w, r)
			return
		}
		s.mux.ServeHTTP(w, r)
		return
	}
	if r.URL.Path == "/" || r.URL.Path == "/health" {
		s.handleHealth(w, r)
		return
	}
	http.NotFound(w, r)
}

// handleHealth probes the relay's own SMTP listeners and reports aggregate
// liveness: 200 when every port accepts connections, 503 otherwise. Probe
// failures are data, never HTTP errors.
func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		http.NotFound(w, r)
		return
	}

	report := s.prober.Check(r.Context())

	ports := make(map[int]bool, len(report.Ports))
	for _, ph := range report.Ports {
		ports[ph.Port] = ph.Reachable
	}

	status := http.StatusOK
	if !report.OK() {
		status = http.StatusServiceUnavailable
	}
	s.respondJSON(w, status, struct {
		Status string       `json:"status"`
		SMTP   map[int]bool `json:"smtp"`
	}{
		Status: report.Status,
		SMTP:   ports,
	})
}

func (s *Server) handleLogin(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
		return
	}
	var payload struct {
		Token string `json:"token"`
	}
	if err := json.NewDecoder(r.Body).Decode(&payload); err != nil {
		http.Error(w, "invalid JSON", http.StatusBadRequest)
		return
	}
	if subtle.ConstantTimeCompare([]byte(payload.Token), []byte(s.cfg.AdminToken)) != 1 {
		http.Error(w, "unauthorized", http.StatusUnauthorized)
		return
	}

	now := time.Now()
	session := s.auth.Issue(now)
	http.SetCookie(w, &http.Cookie{
		Name:     s.auth.CookieName(),
		Value:    session,
		Path:     "/",
		MaxAge:   int(s.auth.MaxAge().Seconds()),
		Expires:  now.Add(s.auth.MaxAge()),
		HttpOnly: true,
		SameSite: http.SameSiteLaxMode,
	})
	w.WriteHeader(http.StatusNoContent)
}

func (s *Server) handleDeliveries(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
		return
	}
	if !s.authorized(r) {
		http.Error(w, "unauthorized", http.StatusUnauthorized)
		return
	}

	params := pagination.FromQuery(r.URL.Query())
	deliveries, total, err := s.store.ListDeliveries(r.Context(), params.Limit, params.Offset, params.Sort)
	if err != nil {
		s.logger.Error("list deliveries", "error", err)
		http.Error(w, "unable to list deliveries", http.StatusInternalServerError)
		return
	}

	response := struct {
		Deliveries []deliveryJSON `json:"deliveries"`
		Page       int32          `json:"page"`
		Limit      int32          `json:"limit"`
		Total      int32          `json:"total"`
		HasMore    bool           `json:"hasMore"`
	}{
		Deliveries: make([]deliveryJSON, 0, len(deliveries)),
		Page:       params.Page,
		Limit:      params.Limit,
		Total:      total,
		HasMore:    pagination.HasNext(params.Offset, params.Limit, total),
	}
	for _, d := range deliveries {
		response.Deliveries = append(response.Deliveries, toJSON(d))
	}
	s.respondJSON(w, http.StatusOK, response)
}

func (s *Server) handleDelivery(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
		return
	}
	if !s.authorized(r) {
		http.Error(w, "unauthorized", http.StatusUnauthorized)
		return
	}

	id := strings.TrimPrefix(r.URL.Path, "/api/deliveries/")
	if id == "" || strings.Contains(id, "/") {
		http.NotFound(w, r)
		return
	}

	delivery, err := s.store.GetDelivery(r.Context(), id)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			http.Error(w, "not found", http.StatusNotFound)
			return
		}
		s.logger.Error("get delivery", "error", err)
		http.Error(w, "unable to load delivery", http.StatusInternalServerError)
		return
	}
	s.respondJSON(w, http.StatusOK, toJSON(delivery))
}

func (s *Server) handleStream(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
		return
	}
	if !s.authorized(r) {
		http.Error(w, "unauthorized", http.StatusUnauthorized)
		return
	}
	flusher, ok := w.(http.Flusher)
	if !ok {
		http.Error(w, "streaming unsupported", http.StatusInternalServerError)
		return
	}
	w.Header().Set("Content-Type", "text/event-stream")
	w.Header().Set("Cache-Control", "no-cache")
	w.Header().Set("Connection", "keep-alive")

	ch, unsubscribe := s.hub.Subscribe()
	defer unsubscribe()

	_, _ = w.Write([]byte("event: ready\ndata: {}\n\n"))
	flusher.Flush()

	ticker := time.NewTicker(20 * time.Second)
	defer ticker.Stop()
	for {
		select {
		case <-r.Context().Done():
			return
		case payload, ok := <-ch:
			if !ok {
				return
			}
			_, _ = w.Write(payload)
			flusher.Flush()
		case <-ticker.C:
			_, _ = w.Write([]byte(": ping\n\n"))
			flusher.Flush()
		}
	}
}

func (s *Server) authorized(r *http.Request) bool {
	cookie, err := r.Cookie(s.auth.CookieName())
	if err != nil {
		return false
	}
	return s.auth.Validate(cookie.Value, time.Now()) == nil
}

func (s *Server) respondJSON(w http.ResponseWriter, status int, payload any) {
	w.Header().Set("Content-Type", "application/json; charset=utf-8")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(payload)
}

type deliveryJSON struct {
	ID        string   `json:"id"`
	Provider  string   `json:"provider"`
	From      string   `json:"from"`
	To        []string `json:"to"`
	Subject   string   `json:"subject"`
	Size      int64    `json:"size"`
	Status    string   `json:"status"`
	SMTPCode  int      `json:"smtpCode"`
	Detail    string   `json:"detail"`
	CreatedAt string   `json:"createdAt"`
}

func toJSON(d store.Delivery) deliveryJSON {
	to := d.To
	if to == nil {
		to = []string{}
	}
	return deliveryJSON{
		ID:        d.ID,
		Provider:  d.Provider,
		From:      d.From,
		To:        to,
		Subject:   d.Subject,
		Size:      d.Size,
		Status:    d.Status,
		SMTPCode:  d.SMTPCode,
		Detail:    d.Detail,
		CreatedAt: d.CreatedAt.UTC().Format(time.RFC3339),
	}
}
