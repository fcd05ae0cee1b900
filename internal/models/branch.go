package models

import "time"

// HeadOfficeBranchID is the sentinel branch id for the central head-office
// party. Super admins send and receive on behalf of this branch.
const HeadOfficeBranchID = "head-office"

// Branch is a salon location, stored in PostgreSQL.
type Branch struct {
	ID        string    `json:"id"`
	Name      string    `json:"name"`
	Address   string    `json:"address,omitempty"`
	Phone     string    `json:"phone,omitempty"`
	PhotoURL  string    `json:"photo_url,omitempty"`
	CreatedAt time.Time `json:"created_at"`
}

// BranchAdmin is a staff account bound to one branch. Super admins are bound
// to the head-office sentinel branch.
type BranchAdmin struct {
	ID        string    `json:"id"`
	Username  string    `json:"username"`
	Name      string    `json:"name"`
	Role      Role      `json:"role"`
	BranchID  string    `json:"branch_id"`
	CreatedAt time.Time `json:"created_at"`
}

// Actor is the authenticated identity the messaging core operates on behalf
// of: who is acting, in which role, and for which branch.
type Actor struct {
	ID         string `json:"id"`
	Name       string `json:"name"`
	Role       Role   `json:"role"`
	BranchID   string `json:"branch_id"`
	BranchName string `json:"branch_name"`
}
