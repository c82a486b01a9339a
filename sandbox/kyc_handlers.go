package sandbox

import (
	"encoding/base64"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/jmcleod/kycagent/internal/uuid"
)

var requiredKYCFields = []string{"name", "login", "id_type", "id_number", "id_document_url", "proof_of_address_url", "selfie_url"}

// CreateKYC stores an application for the token's owner.
func (s *Server) CreateKYC(w http.ResponseWriter, r *http.Request) {
	var req map[string]any
	if err := decodeBody(w, r, &req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid_request", "Invalid request body.")
		return
	}
	for _, f := range requiredKYCFields {
		if v, _ := req[f].(string); v == "" {
			writeError(w, http.StatusOK, "invalid_request", fmt.Sprintf("Field %s is required.", f))
			return
		}
	}
	req["id"] = uuid.New()
	req["status"] = "pending"
	req["created_at"] = s.now().UTC().Format(time.RFC3339)

	owner := usernameFrom(r)
	s.mu.Lock()
	s.kycCreates++
	s.applications[owner] = append(s.applications[owner], req)
	s.mu.Unlock()

	s.logger.Info("sandbox kyc created", slog.String("owner", owner), slog.Any("id", req["id"]))
	writeJSON(w, http.StatusOK, map[string]any{
		"status":  true,
		"message": "KYC Application created successfully.",
		"id":      req["id"],
	})
}

// ListKYC returns the applications of the token's owner.
func (s *Server) ListKYC(w http.ResponseWriter, r *http.Request) {
	owner := usernameFrom(r)
	s.mu.Lock()
	apps := append([]map[string]any{}, s.applications[owner]...)
	s.mu.Unlock()
	writeJSON(w, http.StatusOK, map[string]any{"status": true, "kyc_applications": apps})
}

// Upload accepts the ImgBB form contract: key and base64 image.
func (s *Server) Upload(w http.ResponseWriter, r *http.Request) {
	fail := func(status int, msg string) {
		writeJSON(w, status, map[string]any{
			"success":     false,
			"status_code": status,
			"error":       map[string]string{"message": msg},
		})
	}
	if err := r.ParseForm(); err != nil {
		fail(http.StatusBadRequest, "Invalid form body.")
		return
	}

	s.mu.Lock()
	s.uploads++
	injected := s.failAfter > 0 && s.uploads >= s.failAfter
	s.mu.Unlock()
	if injected {
		fail(http.StatusServiceUnavailable, "Upload temporarily unavailable.")
		return
	}
	if s.uploadKey != "" && r.PostForm.Get("key") != s.uploadKey {
		fail(http.StatusBadRequest, "Invalid API v1 key.")
		return
	}
	img, err := base64.StdEncoding.DecodeString(r.PostForm.Get("image"))
	if err != nil || len(img) == 0 {
		fail(http.StatusBadRequest, "Invalid image.")
		return
	}

	id := uuid.New()
	s.mu.Lock()
	s.images[id] = img
	s.mu.Unlock()

	scheme := "http"
	if r.TLS != nil {
		scheme = "https"
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"success": true,
		"status":  http.StatusOK,
		"data": map[string]any{
			"id":   id,
			"size": len(img),
			"url":  fmt.Sprintf("%s://%s/images/%s", scheme, r.Host, id),
		},
	})
}

// Image serves an uploaded image.
func (s *Server) Image(w http.ResponseWriter, r *http.Request) {
	s.mu.Lock()
	img, ok := s.images[chi.URLParam(r, "imageID")]
	s.mu.Unlock()
	if !ok {
		http.NotFound(w, r)
		return
	}
	w.Header().Set("Content-Type", http.DetectContentType(img))
	w.Write(img)
}
