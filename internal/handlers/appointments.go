package handlers

import (
	"encoding/json"
	"errors"
	"net/http"
	"time"

	"github.com/faiza-ijaz0/jambeautylounge-backend/internal/models"
	"github.com/faiza-ijaz0/jambeautylounge-backend/internal/services"
)

// appointmentBranchID resolves which branch's calendar the actor may touch.
// Branch admins are pinned to their own branch; super admins choose.
func appointmentBranchID(actor models.Actor, requested string) (string, bool) {
	if actor.Role == models.RoleBranchAdmin {
		return actor.BranchID, true
	}
	if requested == "" {
		return "", false
	}
	return requested, true
}

// ListAppointments returns upcoming appointments for a branch. Pass ?from=
// (RFC 3339) to change the lower bound; it defaults to the start of today.
func ListAppointments(w http.ResponseWriter, r *http.Request) {
	actor, ok := currentActor(r)
	if !ok {
		respondError(w, http.StatusUnauthorized, "Invalid session")
		return
	}
	branchID, ok := appointmentBranchID(actor, r.URL.Query().Get("branch_id"))
	if !ok {
		respondError(w, http.StatusBadRequest, "branch_id is required")
		return
	}

	from := time.Now().Truncate(24 * time.Hour)
	if raw := r.URL.Query().Get("from"); raw != "" {
		parsed, err := time.Parse(time.RFC3339, raw)
		if err != nil {
			respondError(w, http.StatusBadRequest, "from must be RFC 3339")
			return
		}
		from = parsed
	}

	appointments, err := services.ListAppointments(branchID, from)
	if err != nil {
		respondError(w, http.StatusInternalServerError, "Failed to load appointments")
		return
	}
	writeJSON(w, http.StatusOK, map[string]interface{}{
		"success":      true,
		"appointments": appointments,
	})
}

// CreateAppointmentRequest carries the fields for a new booking.
type CreateAppointmentRequest struct {
	BranchID     string    `json:"branch_id,omitempty"`
	CustomerName string    `json:"customer_name"`
	Service      string    `json:"service"`
	StartsAt     time.Time `json:"starts_at"`
	DurationMin  int       `json:"duration_min,omitempty"`
	Notes        string    `json:"notes,omitempty"`
}

// CreateAppointment books a slot on a branch calendar.
func CreateAppointment(w http.ResponseWriter, r *http.Request) {
	actor, ok := currentActor(r)
	if !ok {
		respondError(w, http.StatusUnauthorized, "Invalid session")
		return
	}

	var req CreateAppointmentRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		respondError(w, http.StatusBadRequest, "Invalid request body")
		return
	}
	branchID, ok := appointmentBranchID(actor, req.BranchID)
	if !ok {
		respondError(w, http.StatusBadRequest, "branch_id is required")
		return
	}

	appointment, err := services.CreateAppointment(models.Appointment{
		BranchID:     branchID,
		CustomerName: req.CustomerName,
		Service:      req.Service,
		StartsAt:     req.StartsAt,
		DurationMin:  req.DurationMin,
		Notes:        req.Notes,
	})
	if err != nil {
		switch {
		case errors.Is(err, services.ErrAppointmentInPast):
			respondError(w, http.StatusBadRequest, "Appointment start must be in the future")
		case errors.Is(err, services.ErrInvalidAppointment):
			respondError(w, http.StatusBadRequest, "customer_name, service and starts_at are required")
		case errors.Is(err, services.ErrBranchNotFound):
			respondError(w, http.StatusNotFound, "Branch not found")
		default:
			respondError(w, http.StatusInternalServerError, "Failed to create appointment")
		}
		return
	}

	writeJSON(w, http.StatusCreated, map[string]interface{}{
		"success":     true,
		"appointment": appointment,
	})
}
