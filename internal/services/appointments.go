package services

import (
	"errors"
	"strings"
	"time"

	"github.com/faiza-ijaz0/jambeautylounge-backend/internal/database"
	"github.com/faiza-ijaz0/jambeautylounge-backend/internal/models"
)

var (
	ErrAppointmentInPast  = errors.New("appointment start must be in the future")
	ErrInvalidAppointment = errors.New("customer name, service and start time are required")
)

// CreateAppointment records a booking for a branch.
func CreateAppointment(a models.Appointment) (models.Appointment, error) {
	if strings.TrimSpace(a.CustomerName) == "" || strings.TrimSpace(a.Service) == "" || a.StartsAt.IsZero() {
		return models.Appointment{}, ErrInvalidAppointment
	}
	if a.StartsAt.Before(time.Now()) {
		return models.Appointment{}, ErrAppointmentInPast
	}
	if a.DurationMin <= 0 {
		a.DurationMin = 30
	}
	if _, err := GetBranch(a.BranchID); err != nil {
		return models.Appointment{}, err
	}

	err := database.PostgresDB.QueryRow(`
		INSERT INTO appointments (branch_id, customer_name, service, starts_at, duration_min, notes)
		VALUES ($1, $2, $3, $4, $5, $6)
		RETURNING id, created_at
	`, a.BranchID, a.CustomerName, a.Service, a.StartsAt.UTC(), a.DurationMin, a.Notes).Scan(&a.ID, &a.CreatedAt)
	if err != nil {
		return models.Appointment{}, err
	}
	return a, nil
}

// ListAppointments returns a branch's bookings from the given day onward,
// soonest first.
func ListAppointments(branchID string, from time.Time) ([]models.Appointment, error) {
	rows, err := database.PostgresDB.Query(`
		SELECT id, branch_id, customer_name, service, starts_at, duration_min, COALESCE(notes, ''), created_at
		FROM appointments
		WHERE branch_id = $1 AND starts_at >= $2
		ORDER BY starts_at
	`, branchID, from.UTC())
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []models.Appointment
	for rows.Next() {
		var a models.Appointment
		if err := rows.Scan(&a.ID, &a.BranchID, &a.CustomerName, &a.Service, &a.StartsAt, &a.DurationMin, &a.Notes, &a.CreatedAt); err != nil {
			return nil, err
		}
		out = append(out, a)
	}
	return out, rows.Err()
}
