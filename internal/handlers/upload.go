package handlers

import (
	"errors"
	"log"
	"net/http"

	"github.com/faiza-ijaz0/jambeautylounge-backend/internal/models"
	"github.com/faiza-ijaz0/jambeautylounge-backend/internal/services"
	"github.com/go-chi/chi/v5"
)

var cloudinaryService *services.CloudinaryService

// InitCloudinaryService wires the upload handlers to Cloudinary. Called once
// from main; uploads stay disabled when credentials are absent.
func InitCloudinaryService(cloudName, apiKey, apiSecret string) {
	if cloudName == "" || apiKey == "" || apiSecret == "" {
		log.Println("Cloudinary credentials not set, branch photo uploads disabled")
		return
	}
	svc, err := services.NewCloudinaryService(cloudName, apiKey, apiSecret)
	if err != nil {
		log.Printf("Failed to initialize Cloudinary: %v", err)
		return
	}
	cloudinaryService = svc
	log.Println("✅ Cloudinary service initialized")
}

// UploadBranchPhoto accepts a multipart image, stores it in Cloudinary and
// records the delivered URL on the branch. Super admins only. Message
// attachments do not pass through here; they travel inline as data URIs.
func UploadBranchPhoto(w http.ResponseWriter, r *http.Request) {
	actor, ok := currentActor(r)
	if !ok {
		respondError(w, http.StatusUnauthorized, "Invalid session")
		return
	}
	if actor.Role != models.RoleSuperAdmin {
		respondError(w, http.StatusForbidden, "Super admin access required")
		return
	}
	if cloudinaryService == nil {
		respondError(w, http.StatusServiceUnavailable, "Photo uploads are not configured")
		return
	}

	branchID := chi.URLParam(r, "id")
	if _, err := services.GetBranch(branchID); err != nil {
		if errors.Is(err, services.ErrBranchNotFound) {
			respondError(w, http.StatusNotFound, "Branch not found")
			return
		}
		respondError(w, http.StatusInternalServerError, "Failed to load branch")
		return
	}

	if err := r.ParseMultipartForm(10 << 20); err != nil {
		respondError(w, http.StatusBadRequest, "Invalid multipart form")
		return
	}
	_, header, err := r.FormFile("photo")
	if err != nil {
		respondError(w, http.StatusBadRequest, "photo file is required")
		return
	}

	url, err := cloudinaryService.UploadImageFromHeader(r.Context(), header, "branches")
	if err != nil {
		log.Printf("Branch photo upload failed: %v", err)
		respondError(w, http.StatusInternalServerError, "Failed to upload photo")
		return
	}
	if err := services.SetBranchPhoto(branchID, url); err != nil {
		respondError(w, http.StatusInternalServerError, "Failed to save photo URL")
		return
	}

	writeJSON(w, http.StatusOK, map[string]interface{}{
		"success":   true,
		"photo_url": url,
	})
}
