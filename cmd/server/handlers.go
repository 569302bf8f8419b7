package main

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/himanishpuri/SubPrint/pkg/logger"
	"github.com/himanishpuri/SubPrint/pkg/subprint"
	"github.com/himanishpuri/SubPrint/pkg/subprint/storage"
)

// Server encapsulates the HTTP server and its dependencies
type Server struct {
	service subprint.Service
	config  *ServerConfig
	log     subprint.Logger
}

// ServerConfig holds server configuration
type ServerConfig struct {
	Port           int
	Backend        string
	TempDir        string
	AllowedOrigins []string
	AccessLog      bool
}

// NewServer creates a new server instance
func NewServer(service subprint.Service, config *ServerConfig) *Server {
	return &Server{
		service: service,
		config:  config,
		log:     logger.GetLogger().WithPrefix("server"),
	}
}

// respondJSON writes a JSON response
func (s *Server) respondJSON(w http.ResponseWriter, statusCode int, data interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(statusCode)
	if err := json.NewEncoder(w).Encode(data); err != nil {
		s.log.Errorf("Failed to encode JSON response: %v", err)
	}
}

// respondError writes an error response
func (s *Server) respondError(w http.ResponseWriter, statusCode int, message string) {
	s.respondJSON(w, statusCode, ErrorResponse{
		Error:   http.StatusText(statusCode),
		Message: message,
		Code:    statusCode,
	})
}

// handleRoot handles GET /
func (s *Server) handleRoot(w http.ResponseWriter, r *http.Request) {
	if r.URL.Path != "/" {
		http.NotFound(w, r)
		return
	}

	s.respondJSON(w, http.StatusOK, map[string]interface{}{
		"service": "SubPrint API",
		"version": "1.0.0",
		"endpoints": map[string]string{
			"health":         "GET /health",
			"metrics":        "GET /api/health/metrics",
			"tracks":         "GET /api/tracks",
			"addTrack":       "POST /api/tracks",
			"getTrack":       "GET /api/tracks/{id}",
			"deleteTrack":    "DELETE /api/tracks/{id}",
			"matchSignature": "POST /api/match",
			"matchAudio":     "POST /api/match/audio",
		},
	})
}

// handleHealth handles GET /health
func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	s.respondJSON(w, http.StatusOK, map[string]string{
		"status": "healthy",
		"time":   time.Now().Format(time.RFC3339),
	})
}

// handleMetrics handles GET /api/health/metrics
func (s *Server) handleMetrics(w http.ResponseWriter, r *http.Request) {
	tracks, err := s.service.ListTracks(r.Context())
	if err != nil {
		s.log.Errorf("Failed to get track count: %v", err)
		s.respondError(w, http.StatusInternalServerError, "Failed to retrieve metrics")
		return
	}

	// Sum stored signature lengths
	var subFingerprints int64
	for _, t := range tracks {
		subFingerprints += int64(t.Length)
	}
	s.respondJSON(w, http.StatusOK, MetricsResponse{
		Status:              "healthy",
		Backend:             s.config.Backend,
		TrackCount:          len(tracks),
		SubFingerprintCount: subFingerprints,
	})
}

// handleListTracks handles GET /api/tracks
func (s *Server) handleListTracks(w http.ResponseWriter, r *http.Request) {
	tracks, err := s.service.ListTracks(r.Context())
	if err != nil {
		s.log.Errorf("Failed to list tracks: %v", err)
		s.respondError(w, http.StatusInternalServerError, "Failed to retrieve tracks")
		return
	}

	s.respondJSON(w, http.StatusOK, ListTracksResponse{
		Tracks: tracks,
		Count:  len(tracks),
	})
}

// handleGetTrack handles GET /api/tracks/{id}
func (s *Server) handleGetTrack(w http.ResponseWriter, r *http.Request, id string) {
	track, err := s.service.GetTrack(r.Context(), id)
	if err != nil {
		s.respondLookupError(w, id, err)
		return
	}
	s.respondJSON(w, http.StatusOK, track)
}

// handleDeleteTrack handles DELETE /api/tracks/{id}
func (s *Server) handleDeleteTrack(w http.ResponseWriter, r *http.Request, id string) {
	if err := s.service.DeleteTrack(r.Context(), id); err != nil {
		s.respondLookupError(w, id, err)
		return
	}

	s.respondJSON(w, http.StatusOK, DeleteTrackResponse{
		Message: "Track deleted successfully",
		ID:      id,
	})
}

func (s *Server) respondLookupError(w http.ResponseWriter, id string, err error) {
	if errors.Is(err, storage.ErrNotFound) {
		s.log.Warnf("Track not found: %s", id)
		s.respondError(w, http.StatusNotFound, fmt.Sprintf("Track with ID %s not found", id))
		return
	}
	s.log.Errorf("Track %s: %v", id, err)
	s.respondError(w, http.StatusInternalServerError, "Failed to access track")
}

// saveUpload copies the multipart "audio" field into TempDir and returns the
// path. The caller removes the file.
func (s *Server) saveUpload(r *http.Request, prefix string) (string, string, error) {
	file, header, err := r.FormFile("audio")
	if err != nil {
		return "", "", fmt.Errorf("audio file is required")
	}
	defer file.Close()

	// Keep only the base name of the client's file
	name := filepath.Base(header.Filename)
	tempFile := filepath.Join(s.config.TempDir, fmt.Sprintf("%s_%d_%s", prefix, time.Now().UnixNano(), name))
	out, err := os.Create(tempFile)
	if err != nil {
		return "", "", err
	}
	defer out.Close()

	if _, err := io.Copy(out, file); err != nil {
		os.Remove(tempFile)
		return "", "", err
	}
	return tempFile, name, nil
}

// handleAddTrackFile handles POST /api/tracks (multipart file upload)
func (s *Server) handleAddTrackFile(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), 5*time.Minute)
	defer cancel()

	// Parse multipart form (max 100MB)
	if err := r.ParseMultipartForm(100 << 20); err != nil {
		s.log.Errorf("Failed to parse form: %v", err)
		s.respondError(w, http.StatusBadRequest, "Failed to parse form data")
		return
	}

	// Get form fields
	title := r.FormValue("title")
	artist := r.FormValue("artist")
	if title == "" || artist == "" {
		s.respondError(w, http.StatusBadRequest, "title and artist are required")
		return
	}

	// Save to temporary file
	tempFile, _, err := s.saveUpload(r, "upload")
	if err != nil {
		s.log.Errorf("Failed to save upload: %v", err)
		s.respondError(w, http.StatusBadRequest, err.Error())
		return
	}
	defer os.Remove(tempFile)

	// Add track to database
	id, err := s.service.AddTrack(ctx, tempFile, title, artist)
	if err != nil {
		s.log.Errorf("Failed to add track: %v", err)
		s.respondError(w, http.StatusInternalServerError, fmt.Sprintf("Failed to add track: %v", err))
		return
	}

	s.respondJSON(w, http.StatusCreated, AddTrackResponse{
		Message: "Track added successfully",
		ID:      id,
		Title:   title,
		Artist:  artist,
	})
}

// handleMatchAudio handles POST /api/match/audio (multipart file upload)
func (s *Server) handleMatchAudio(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), 2*time.Minute)
	defer cancel()

	// Parse multipart form (max 50MB)
	if err := r.ParseMultipartForm(50 << 20); err != nil {
		s.log.Errorf("Failed to parse form: %v", err)
		s.respondError(w, http.StatusBadRequest, "Failed to parse form data")
		return
	}

	// Save to temporary file
	tempFile, name, err := s.saveUpload(r, "query")
	if err != nil {
		s.log.Errorf("Failed to save upload: %v", err)
		s.respondError(w, http.StatusBadRequest, err.Error())
		return
	}
	defer os.Remove(tempFile)

	// Match track
	s.log.Infof("Matching uploaded file: %s", name)
	report, err := s.service.Match(ctx, tempFile)
	if err != nil {
		s.log.Errorf("Failed to match audio: %v", err)
		s.respondError(w, http.StatusInternalServerError, fmt.Sprintf("Failed to match audio: %v", err))
		return
	}
	s.respondJSON(w, http.StatusOK, newMatchResponse(report))
}

// handleMatchSignature handles POST /api/match with a base64 signature
func (s *Server) handleMatchSignature(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), 30*time.Second)
	defer cancel()

	var req MatchSignatureRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		s.log.Errorf("Failed to decode request: %v", err)
		s.respondError(w, http.StatusBadRequest, "Invalid request body")
		return
	}
	// Validate request
	if err := req.Validate(); err != nil {
		s.respondError(w, http.StatusBadRequest, err.Error())
		return
	}

	// Log warning for large signatures
	if n := req.approxLen(); n >= SubFingerprintWarningThreshold {
		s.log.Warnf("Large signature received: ~%d sub-fingerprints", n)
	}

	// Decode and match the signature
	report, err := s.service.MatchEncoded(ctx, req.Hashes, req.Reliabilities)
	if errors.Is(err, subprint.ErrInvalidSignature) {
		s.respondError(w, http.StatusBadRequest, err.Error())
		return
	}
	if err != nil {
		s.log.Errorf("Failed to match signature: %v", err)
		s.respondError(w, http.StatusInternalServerError, fmt.Sprintf("Failed to match signature: %v", err))
		return
	}

	s.log.Infof("Signature match complete: found %d matches", len(report.Results))
	s.respondJSON(w, http.StatusOK, newMatchResponse(report))
}

// handleTracks routes requests to /api/tracks
func (s *Server) handleTracks(w http.ResponseWriter, r *http.Request) {
	switch r.Method {
	case http.MethodGet:
		s.handleListTracks(w, r)
	case http.MethodPost:
		s.handleAddTrackFile(w, r)
	default:
		s.respondError(w, http.StatusMethodNotAllowed, "Method not allowed")
	}
}

// handleTrack routes requests to /api/tracks/{id}
func (s *Server) handleTrack(w http.ResponseWriter, r *http.Request) {
	// Extract ID from path
	id := strings.TrimPrefix(r.URL.Path, "/api/tracks/")
	if id == "" || strings.Contains(id, "/") {
		s.respondError(w, http.StatusBadRequest, "Track ID required")
		return
	}

	switch r.Method {
	case http.MethodGet:
		s.handleGetTrack(w, r, id)
	case http.MethodDelete:
		s.handleDeleteTrack(w, r, id)
	default:
		s.respondError(w, http.StatusMethodNotAllowed, "Method not allowed")
	}
}

// handleMatch routes requests to /api/match
func (s *Server) handleMatch(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		s.respondError(w, http.StatusMethodNotAllowed, "Method not allowed")
		return
	}
	s.handleMatchSignature(w, r)
}

// handleMatchAudioRoute routes requests to /api/match/audio
func (s *Server) handleMatchAudioRoute(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		s.respondError(w, http.StatusMethodNotAllowed, "Method not allowed")
		return
	}
	s.handleMatchAudio(w, r)
}
