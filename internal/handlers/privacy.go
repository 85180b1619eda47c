package handlers

import (
	"crypto/subtle"
	"encoding/json"
	"net/http"
	"strings"

	"github.com/cf-ai-ledger-go/internal/services/learning"
	"github.com/cf-ai-ledger-go/internal/services/memory"
	"github.com/gorilla/mux"
	"github.com/sirupsen/logrus"
)

// UserExport is everything held about one user across memory and learner
type UserExport struct {
	UserID   string               `json:"user_id"`
	Memory   memory.UserData      `json:"memory"`
	Learning learning.LearnerData `json:"learning"`
}

func exportUser(svc Services, userID string) UserExport {
	return UserExport{
		UserID:   userID,
		Memory:   svc.Memory.ExportUserData(userID),
		Learning: svc.Learner.ExportUserData(userID),
	}
}

func deleteUser(svc Services, userID string) {
	svc.Memory.DeleteUserData(userID)
	svc.Learner.DeleteUserData(userID)
}

// PrivacyHandler serves the data export and erasure endpoints
type PrivacyHandler struct {
	svc    Services
	token  string
	logger *logrus.Logger
}

// NewPrivacyHandler creates a privacy handler. Requests must carry
// "Authorization: Bearer <adminToken>".
func NewPrivacyHandler(svc Services, adminToken string, logger *logrus.Logger) *PrivacyHandler {
	return &PrivacyHandler{svc: svc, token: adminToken, logger: logger}
}

// Register mounts the privacy routes on router. Without an admin token the
// routes are not mounted at all.
func (h *PrivacyHandler) Register(router *mux.Router) {
	if h.token == "" {
		h.logger.Warn("No admin token configured; privacy endpoints disabled")
		return
	}

	var auth mux.MiddlewareFunc = h.requireToken
	router.Handle("/users/{id}/export", auth(http.HandlerFunc(h.handleExport))).Methods(http.MethodGet)
	router.Handle("/users/{id}", auth(http.HandlerFunc(h.handleDelete))).Methods(http.MethodDelete)
}

func (h *PrivacyHandler) requireToken(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		token, ok := strings.CutPrefix(r.Header.Get("Authorization"), "Bearer ")
		if !ok || subtle.ConstantTimeCompare([]byte(token), []byte(h.token)) != 1 {
			h.logger.WithField("remote", r.RemoteAddr).Warn("Rejected unauthenticated privacy request")
			w.Header().Set("WWW-Authenticate", "Bearer")
			http.Error(w, "unauthorized", http.StatusUnauthorized)
			return
		}
		next.ServeHTTP(w, r)
	})
}

func (h *PrivacyHandler) handleExport(w http.ResponseWriter, r *http.Request) {
	userID := strings.TrimSpace(mux.Vars(r)["id"])
	if userID == "" {
		http.Error(w, "missing user id", http.StatusBadRequest)
		return
	}

	w.Header().Set("Content-Type", "application/json")
	if err := json.NewEncoder(w).Encode(exportUser(h.svc, userID)); err != nil {
		h.logger.WithError(err).WithField("user_id", userID).Error("Failed to write export")
	}
}

func (h *PrivacyHandler) handleDelete(w http.ResponseWriter, r *http.Request) {
	userID := strings.TrimSpace(mux.Vars(r)["id"])
	if userID == "" {
		http.Error(w, "missing user id", http.StatusBadRequest)
		return
	}

	deleteUser(h.svc, userID)
	h.logger.WithField("user_id", userID).Info("User data deleted via API")
	w.WriteHeader(http.StatusNoContent)
}
