package services

import (
	"database/sql"
	"errors"
	"fmt"
	"strings"

	"github.com/faiza-ijaz0/jambeautylounge-backend/internal/database"
	"github.com/faiza-ijaz0/jambeautylounge-backend/internal/models"
	"github.com/faiza-ijaz0/jambeautylounge-backend/pkg/utils"
	"github.com/google/uuid"
)

var (
	ErrBranchNotFound      = errors.New("branch not found")
	ErrAdminNotFound       = errors.New("branch admin not found")
	ErrInvalidCredentials  = errors.New("invalid username or password")
	ErrUsernameTaken       = errors.New("username already in use")
	ErrBranchAlreadyExists = errors.New("branch id already in use")
)

// CreateBranch registers a new salon branch.
func CreateBranch(b models.Branch) (models.Branch, error) {
	if strings.TrimSpace(b.ID) == "" || strings.TrimSpace(b.Name) == "" {
		return models.Branch{}, fmt.Errorf("branch id and name are required")
	}

	err := database.PostgresDB.QueryRow(`
		INSERT INTO branches (id, name, address, phone, photo_url)
		VALUES ($1, $2, $3, $4, $5)
		RETURNING created_at
	`, b.ID, b.Name, b.Address, b.Phone, b.PhotoURL).Scan(&b.CreatedAt)
	if err != nil {
		if strings.Contains(err.Error(), "duplicate key") {
			return models.Branch{}, ErrBranchAlreadyExists
		}
		return models.Branch{}, err
	}
	return b, nil
}

// GetBranch returns one branch by id.
func GetBranch(id string) (models.Branch, error) {
	var b models.Branch
	var address, phone, photoURL sql.NullString
	err := database.PostgresDB.QueryRow(`
		SELECT id, name, address, phone, photo_url, created_at
		FROM branches WHERE id = $1
	`, id).Scan(&b.ID, &b.Name, &address, &phone, &photoURL, &b.CreatedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return models.Branch{}, ErrBranchNotFound
	}
	if err != nil {
		return models.Branch{}, err
	}
	b.Address, b.Phone, b.PhotoURL = address.String, phone.String, photoURL.String
	return b, nil
}

// ListBranches returns all branches, head office included, name-ordered.
func ListBranches() ([]models.Branch, error) {
	rows, err := database.PostgresDB.Query(`
		SELECT id, name, address, phone, photo_url, created_at
		FROM branches ORDER BY name
	`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var branches []models.Branch
	for rows.Next() {
		var b models.Branch
		var address, phone, photoURL sql.NullString
		if err := rows.Scan(&b.ID, &b.Name, &address, &phone, &photoURL, &b.CreatedAt); err != nil {
			return nil, err
		}
		b.Address, b.Phone, b.PhotoURL = address.String, phone.String, photoURL.String
		branches = append(branches, b)
	}
	return branches, rows.Err()
}

// SetBranchPhoto updates the branch photo URL after an upload.
func SetBranchPhoto(branchID, photoURL string) error {
	res, err := database.PostgresDB.Exec(`UPDATE branches SET photo_url = $1 WHERE id = $2`, photoURL, branchID)
	if err != nil {
		return err
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return ErrBranchNotFound
	}
	return nil
}

// CreateBranchAdmin creates a staff account. Super admin accounts are bound
// to the head-office branch.
func CreateBranchAdmin(username, name, password string, role models.Role, branchID string) (models.BranchAdmin, error) {
	if username == "" || password == "" || !role.Valid() {
		return models.BranchAdmin{}, fmt.Errorf("username, password, and a valid role are required")
	}
	if role == models.RoleSuperAdmin {
		branchID = models.HeadOfficeBranchID
	}
	if _, err := GetBranch(branchID); err != nil {
		return models.BranchAdmin{}, err
	}

	hash, err := utils.HashPassword(password)
	if err != nil {
		return models.BranchAdmin{}, err
	}

	admin := models.BranchAdmin{Username: username, Name: name, Role: role, BranchID: branchID}
	err = database.PostgresDB.QueryRow(`
		INSERT INTO branch_admins (username, name, password_hash, role, branch_id)
		VALUES ($1, $2, $3, $4, $5)
		RETURNING id, created_at
	`, username, name, hash, string(role), branchID).Scan(&admin.ID, &admin.CreatedAt)
	if err != nil {
		if strings.Contains(err.Error(), "duplicate key") {
			return models.BranchAdmin{}, ErrUsernameTaken
		}
		return models.BranchAdmin{}, err
	}
	return admin, nil
}

// AuthenticateAdmin verifies credentials and returns the account.
func AuthenticateAdmin(username, password string) (models.BranchAdmin, error) {
	var admin models.BranchAdmin
	var hash string
	var role string
	err := database.PostgresDB.QueryRow(`
		SELECT id, username, name, password_hash, role, branch_id, created_at
		FROM branch_admins WHERE username = $1
	`, username).Scan(&admin.ID, &admin.Username, &admin.Name, &hash, &role, &admin.BranchID, &admin.CreatedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return models.BranchAdmin{}, ErrInvalidCredentials
	}
	if err != nil {
		return models.BranchAdmin{}, err
	}

	ok, err := utils.VerifyPassword(password, hash)
	if err != nil || !ok {
		return models.BranchAdmin{}, ErrInvalidCredentials
	}
	admin.Role = models.Role(role)
	return admin, nil
}

// ResolveActor loads the acting identity for a session's admin id: who they
// are, their role, and the branch they speak for. This is the context every
// messaging operation runs under.
func ResolveActor(adminID uuid.UUID) (models.Actor, error) {
	var actor models.Actor
	var role string
	err := database.PostgresDB.QueryRow(`
		SELECT a.id, a.name, a.role, a.branch_id, b.name
		FROM branch_admins a
		JOIN branches b ON b.id = a.branch_id
		WHERE a.id = $1
	`, adminID).Scan(&actor.ID, &actor.Name, &role, &actor.BranchID, &actor.BranchName)
	if errors.Is(err, sql.ErrNoRows) {
		return models.Actor{}, ErrAdminNotFound
	}
	if err != nil {
		return models.Actor{}, err
	}
	actor.Role = models.Role(role)
	return actor, nil
}
