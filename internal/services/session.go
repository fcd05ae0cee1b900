package services

import (
	"context"
	"crypto/rand"
	"encoding/base64"
	"time"

	"github.com/faiza-ijaz0/jambeautylounge-backend/internal/database"
	"github.com/google/uuid"
)

const (
	// SessionDuration is 7 days
	SessionDuration = 7 * 24 * time.Hour
	// SessionKeyPrefix is the Redis key prefix for sessions
	SessionKeyPrefix = "session:"
	// AdminSessionKeyPrefix is the Redis key prefix for admin->session mapping
	AdminSessionKeyPrefix = "admin_session:"
)

// CreateSession creates a new session for a branch admin and stores it in
// Redis. An existing session for the same admin is invalidated first so the
// expiry timer always restarts from the latest login.
func CreateSession(adminID uuid.UUID) (string, error) {
	InvalidateAdminSessions(adminID)

	tokenBytes := make([]byte, 32)
	if _, err := rand.Read(tokenBytes); err != nil {
		return "", err
	}
	sessionToken := base64.URLEncoding.EncodeToString(tokenBytes)

	ctx := context.Background()
	sessionKey := SessionKeyPrefix + sessionToken
	adminSessionKey := AdminSessionKeyPrefix + adminID.String()

	if err := database.RedisClient.Set(ctx, sessionKey, adminID.String(), SessionDuration).Err(); err != nil {
		return "", err
	}
	if err := database.RedisClient.Set(ctx, adminSessionKey, sessionToken, SessionDuration).Err(); err != nil {
		return "", err
	}

	return sessionToken, nil
}

// ValidateSession checks if a session token is valid and returns the admin ID.
func ValidateSession(sessionToken string) (uuid.UUID, bool, error) {
	if sessionToken == "" {
		return uuid.Nil, false, nil
	}

	ctx := context.Background()
	adminIDStr, err := database.RedisClient.Get(ctx, SessionKeyPrefix+sessionToken).Result()
	if err != nil {
		return uuid.Nil, false, nil
	}

	adminID, err := uuid.Parse(adminIDStr)
	if err != nil {
		return uuid.Nil, false, err
	}

	return adminID, true, nil
}

// InvalidateSession removes a session from Redis.
func InvalidateSession(sessionToken string) error {
	if sessionToken == "" {
		return nil
	}

	ctx := context.Background()
	sessionKey := SessionKeyPrefix + sessionToken

	adminIDStr, err := database.RedisClient.Get(ctx, sessionKey).Result()
	if err == nil && adminIDStr != "" {
		database.RedisClient.Del(ctx, AdminSessionKeyPrefix+adminIDStr)
	}

	return database.RedisClient.Del(ctx, sessionKey).Err()
}

// InvalidateAdminSessions invalidates any session held by the admin (used on
// login and on password change).
func InvalidateAdminSessions(adminID uuid.UUID) error {
	ctx := context.Background()
	adminSessionKey := AdminSessionKeyPrefix + adminID.String()

	sessionToken, err := database.RedisClient.Get(ctx, adminSessionKey).Result()
	if err == nil && sessionToken != "" {
		database.RedisClient.Del(ctx, SessionKeyPrefix+sessionToken)
	}

	return database.RedisClient.Del(ctx, adminSessionKey).Err()
}
