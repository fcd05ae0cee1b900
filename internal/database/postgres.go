package database

import (
	"database/sql"
	"log"
	"time"

	_ "github.com/lib/pq"
)

var PostgresDB *sql.DB

// ConnectPostgres connects to PostgreSQL database
func ConnectPostgres(postgresURI string) error {
	var err error

	PostgresDB, err = sql.Open("postgres", postgresURI)
	if err != nil {
		return err
	}

	// Set connection pool settings
	PostgresDB.SetMaxOpenConns(25)
	PostgresDB.SetMaxIdleConns(5)
	PostgresDB.SetConnMaxLifetime(5 * time.Minute)

	// Test connection
	if err = PostgresDB.Ping(); err != nil {
		return err
	}

	log.Println("✅ Connected to PostgreSQL")

	// Initialize tables
	if err = InitPostgresTables(); err != nil {
		return err
	}

	return nil
}

// InitPostgresTables creates all necessary tables if they don't exist
func InitPostgresTables() error {
	queries := []string{
		// Branches table (salon locations; the head-office sentinel row is seeded below)
		`CREATE TABLE IF NOT EXISTS branches (
			id VARCHAR(64) PRIMARY KEY,
			name VARCHAR(100) NOT NULL,
			address TEXT,
			phone VARCHAR(32),
			photo_url TEXT,
			created_at TIMESTAMP NOT NULL DEFAULT NOW()
		)`,

		// Branch admin accounts (super admins belong to the head-office branch)
		`CREATE TABLE IF NOT EXISTS branch_admins (
			id UUID PRIMARY KEY DEFAULT gen_random_uuid(),
			username VARCHAR(40) NOT NULL UNIQUE,
			name VARCHAR(100) NOT NULL,
			password_hash VARCHAR(255) NOT NULL,
			role VARCHAR(20) NOT NULL DEFAULT 'branch_admin',
			branch_id VARCHAR(64) NOT NULL REFERENCES branches(id) ON DELETE CASCADE,
			created_at TIMESTAMP NOT NULL DEFAULT NOW()
		)`,

		// Appointments (booking records; calendar rendering happens in the frontend)
		`CREATE TABLE IF NOT EXISTS appointments (
			id UUID PRIMARY KEY DEFAULT gen_random_uuid(),
			branch_id VARCHAR(64) NOT NULL REFERENCES branches(id) ON DELETE CASCADE,
			customer_name VARCHAR(100) NOT NULL,
			service VARCHAR(100) NOT NULL,
			starts_at TIMESTAMP NOT NULL,
			duration_min INT NOT NULL DEFAULT 30,
			notes TEXT,
			created_at TIMESTAMP NOT NULL DEFAULT NOW()
		)`,

		`CREATE INDEX IF NOT EXISTS idx_appointments_branch_starts
			ON appointments (branch_id, starts_at)`,

		// The central/head-office party every branch converses with
		`INSERT INTO branches (id, name)
			VALUES ('head-office', 'Head Office')
			ON CONFLICT (id) DO NOTHING`,
	}

	for _, query := range queries {
		if _, err := PostgresDB.Exec(query); err != nil {
			return err
		}
	}

	log.Println("✅ PostgreSQL tables initialized")
	return nil
}

// DisconnectPostgres closes the PostgreSQL connection
func DisconnectPostgres() error {
	if PostgresDB != nil {
		return PostgresDB.Close()
	}
	return nil
}
