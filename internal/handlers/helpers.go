package handlers

import (
	"encoding/json"
	"net/http"
	"strings"

	"github.com/faiza-ijaz0/jambeautylounge-backend/internal/models"
	"github.com/faiza-ijaz0/jambeautylounge-backend/internal/services"
)

func writeJSON(w http.ResponseWriter, status int, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func respondError(w http.ResponseWriter, status int, message string) {
	writeJSON(w, status, map[string]interface{}{
		"success": false,
		"message": message,
	})
}

// extractBearerToken pulls the token out of an Authorization header.
func extractBearerToken(header string) string {
	if strings.HasPrefix(header, "Bearer ") {
		return strings.TrimSpace(strings.TrimPrefix(header, "Bearer "))
	}
	return ""
}

// requestToken finds the session token in the Authorization header, falling
// back to the `token` query parameter for browser WebSocket clients.
func requestToken(r *http.Request) string {
	if token := extractBearerToken(r.Header.Get("Authorization")); token != "" {
		return token
	}
	return r.URL.Query().Get("token")
}

// currentActor authenticates the request and resolves the acting identity.
func currentActor(r *http.Request) (models.Actor, bool) {
	token := requestToken(r)
	if token == "" {
		return models.Actor{}, false
	}
	adminID, ok, err := services.ValidateSession(token)
	if err != nil || !ok {
		return models.Actor{}, false
	}
	actor, err := services.ResolveActor(adminID)
	if err != nil {
		return models.Actor{}, false
	}
	return actor, true
}
