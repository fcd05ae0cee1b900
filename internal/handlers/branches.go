package handlers

import (
	"encoding/json"
	"errors"
	"net/http"

	"github.com/faiza-ijaz0/jambeautylounge-backend/internal/models"
	"github.com/faiza-ijaz0/jambeautylounge-backend/internal/services"
	"github.com/go-chi/chi/v5"
)

// ListBranches returns every branch. Any authenticated admin may list them;
// branch admins need the list to label conversations.
func ListBranches(w http.ResponseWriter, r *http.Request) {
	if _, ok := currentActor(r); !ok {
		respondError(w, http.StatusUnauthorized, "Invalid session")
		return
	}
	branches, err := services.ListBranches()
	if err != nil {
		respondError(w, http.StatusInternalServerError, "Failed to load branches")
		return
	}
	writeJSON(w, http.StatusOK, map[string]interface{}{
		"success":  true,
		"branches": branches,
	})
}

// GetBranch returns one branch by id.
func GetBranch(w http.ResponseWriter, r *http.Request) {
	if _, ok := currentActor(r); !ok {
		respondError(w, http.StatusUnauthorized, "Invalid session")
		return
	}
	branch, err := services.GetBranch(chi.URLParam(r, "id"))
	if errors.Is(err, services.ErrBranchNotFound) {
		respondError(w, http.StatusNotFound, "Branch not found")
		return
	}
	if err != nil {
		respondError(w, http.StatusInternalServerError, "Failed to load branch")
		return
	}
	writeJSON(w, http.StatusOK, map[string]interface{}{
		"success": true,
		"branch":  branch,
	})
}

// CreateBranchRequest carries the fields for a new salon location.
type CreateBranchRequest struct {
	ID      string `json:"id"`
	Name    string `json:"name"`
	Address string `json:"address,omitempty"`
	Phone   string `json:"phone,omitempty"`
}

// CreateBranch registers a new salon location. Super admins only.
func CreateBranch(w http.ResponseWriter, r *http.Request) {
	actor, ok := currentActor(r)
	if !ok {
		respondError(w, http.StatusUnauthorized, "Invalid session")
		return
	}
	if actor.Role != models.RoleSuperAdmin {
		respondError(w, http.StatusForbidden, "Super admin access required")
		return
	}

	var req CreateBranchRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		respondError(w, http.StatusBadRequest, "Invalid request body")
		return
	}
	if req.ID == "" || req.Name == "" {
		respondError(w, http.StatusBadRequest, "id and name are required")
		return
	}

	branch, err := services.CreateBranch(models.Branch{
		ID:      req.ID,
		Name:    req.Name,
		Address: req.Address,
		Phone:   req.Phone,
	})
	if errors.Is(err, services.ErrBranchAlreadyExists) {
		respondError(w, http.StatusConflict, "A branch with that id already exists")
		return
	}
	if err != nil {
		respondError(w, http.StatusInternalServerError, "Failed to create branch")
		return
	}

	writeJSON(w, http.StatusCreated, map[string]interface{}{
		"success": true,
		"branch":  branch,
	})
}
