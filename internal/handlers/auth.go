package handlers

import (
	"encoding/json"
	"errors"
	"net/http"

	"github.com/faiza-ijaz0/jambeautylounge-backend/internal/models"
	"github.com/faiza-ijaz0/jambeautylounge-backend/internal/services"
	"github.com/google/uuid"
)

// SigninRequest represents the request to sign in as a branch or super admin
type SigninRequest struct {
	Username string `json:"username"`
	Password string `json:"password"`
}

// SigninResponse represents the response after signin
type SigninResponse struct {
	Success bool          `json:"success"`
	Message string        `json:"message"`
	Token   string        `json:"token,omitempty"`
	Actor   *models.Actor `json:"actor,omitempty"`
}

// Signin authenticates a branch admin or super admin account.
func Signin(w http.ResponseWriter, r *http.Request) {
	var req SigninRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		respondError(w, http.StatusBadRequest, "Invalid request body")
		return
	}
	if req.Username == "" || req.Password == "" {
		respondError(w, http.StatusBadRequest, "Username and password are required")
		return
	}

	admin, err := services.AuthenticateAdmin(req.Username, req.Password)
	if err != nil {
		if errors.Is(err, services.ErrInvalidCredentials) {
			respondError(w, http.StatusUnauthorized, "Invalid username or password")
			return
		}
		respondError(w, http.StatusInternalServerError, "Failed to sign in")
		return
	}

	adminID, err := uuid.Parse(admin.ID)
	if err != nil {
		respondError(w, http.StatusInternalServerError, "Failed to sign in")
		return
	}
	token, err := services.CreateSession(adminID)
	if err != nil {
		respondError(w, http.StatusInternalServerError, "Failed to create session")
		return
	}

	actor, err := services.ResolveActor(adminID)
	if err != nil {
		respondError(w, http.StatusInternalServerError, "Failed to resolve account")
		return
	}

	writeJSON(w, http.StatusOK, SigninResponse{
		Success: true,
		Message: "Signed in",
		Token:   token,
		Actor:   &actor,
	})
}

// Signout invalidates the current session.
func Signout(w http.ResponseWriter, r *http.Request) {
	token := requestToken(r)
	if token != "" {
		_ = services.InvalidateSession(token)
	}
	writeJSON(w, http.StatusOK, map[string]interface{}{
		"success": true,
		"message": "Signed out",
	})
}

// GetMe returns the acting identity for the current session.
func GetMe(w http.ResponseWriter, r *http.Request) {
	actor, ok := currentActor(r)
	if !ok {
		respondError(w, http.StatusUnauthorized, "Invalid session")
		return
	}
	writeJSON(w, http.StatusOK, map[string]interface{}{
		"success": true,
		"actor":   actor,
	})
}

// CreateAccountRequest represents the request to create a staff account
type CreateAccountRequest struct {
	Username string `json:"username"`
	Name     string `json:"name"`
	Password string `json:"password"`
	Role     string `json:"role"`
	BranchID string `json:"branch_id"`
}

// CreateAccount creates a branch admin or super admin account. Only super
// admins may call this.
func CreateAccount(w http.ResponseWriter, r *http.Request) {
	actor, ok := currentActor(r)
	if !ok {
		respondError(w, http.StatusUnauthorized, "Invalid session")
		return
	}
	if actor.Role != models.RoleSuperAdmin {
		respondError(w, http.StatusForbidden, "Only super admins can create accounts")
		return
	}

	var req CreateAccountRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		respondError(w, http.StatusBadRequest, "Invalid request body")
		return
	}
	if len(req.Password) < 8 {
		respondError(w, http.StatusBadRequest, "Password must be at least 8 characters long")
		return
	}

	admin, err := services.CreateBranchAdmin(req.Username, req.Name, req.Password, models.Role(req.Role), req.BranchID)
	if err != nil {
		switch {
		case errors.Is(err, services.ErrUsernameTaken):
			respondError(w, http.StatusConflict, "Username already in use")
		case errors.Is(err, services.ErrBranchNotFound):
			respondError(w, http.StatusBadRequest, "Branch does not exist")
		default:
			respondError(w, http.StatusBadRequest, err.Error())
		}
		return
	}

	writeJSON(w, http.StatusCreated, map[string]interface{}{
		"success": true,
		"admin":   admin,
	})
}
