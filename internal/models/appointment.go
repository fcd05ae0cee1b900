package models

import "time"

// Appointment is a booking record for a branch, stored in PostgreSQL.
// Calendar rendering and invoicing live in the frontend; the backend only
// keeps the records.
type Appointment struct {
	ID           string    `json:"id"`
	BranchID     string    `json:"branch_id"`
	CustomerName string    `json:"customer_name"`
	Service      string    `json:"service"`
	StartsAt     time.Time `json:"starts_at"`
	DurationMin  int       `json:"duration_min"`
	Notes        string    `json:"notes,omitempty"`
	CreatedAt    time.Time `json:"created_at"`
}
