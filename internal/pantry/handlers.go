package pantry

import (
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"net/http"
	"path/filepath"
	"strconv"
	"strings"
)

// setCORSHeaders sets CORS headers on a response
func setCORSHeaders(w http.ResponseWriter) {
	w.Header().Set("Access-Control-Allow-Origin", "*")
	w.Header().Set("Access-Control-Allow-Methods", "GET, POST, DELETE, OPTIONS")
	w.Header().Set("Access-Control-Allow-Headers", "Content-Type, Authorization")
	w.Header().Set("Access-Control-Max-Age", "3600")
}

func writeJSON(w http.ResponseWriter, code int, v any) {
	setCORSHeaders(w)
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		slog.Error("Error encoding response", "error", err)
	}
}

// writeError maps the typed engine errors onto HTTP status codes:
// validation 400, not-found 404, conflict 409, everything else 500.
func writeError(w http.ResponseWriter, err error) {
	var (
		validation *ValidationError
		notFound   *NotFoundError
		conflict   *ConflictError
	)
	switch {
	case errors.As(err, &validation):
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": validation.Error()})
	case errors.As(err, &notFound):
		writeJSON(w, http.StatusNotFound, map[string]string{"error": notFound.Error()})
	case errors.As(err, &conflict):
		writeJSON(w, http.StatusConflict, map[string]string{"error": conflict.Error()})
	default:
		slog.Error("Internal error", "error", err)
		writeJSON(w, http.StatusInternalServerError, map[string]string{"error": "Internal server error"})
	}
}

// sessionResponse pairs a session with its annotated candidates.
type sessionResponse struct {
	Session    *ScanSession         `json:"session"`
	Candidates []*DetectedCandidate `json:"candidates"`
}

// handleUploadScan accepts a multipart storage-area photo and creates a
// scan session from it.
func (s *Server) handleUploadScan(w http.ResponseWriter, r *http.Request) {
	// 50MB to accommodate high-resolution phone photos
	maxFormSize := int64(50 << 20)
	if err := r.ParseMultipartForm(maxFormSize); err != nil {
		slog.Error("Error parsing multipart form", "error", err)
		msg := "Error parsing form"
		if err.Error() == "http: request body too large" {
			msg = "File is too large. Maximum size is 50MB."
		}
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": msg})
		return
	}

	f, header, err := r.FormFile("file")
	if err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "No file was provided. Please choose a photo to upload."})
		return
	}
	defer f.Close()

	if header.Size > maxFormSize {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "File is too large. Maximum size is 50MB."})
		return
	}

	data, err := io.ReadAll(f)
	if err != nil {
		slog.Error("Error reading file data", "error", err, "filename", header.Filename)
		writeJSON(w, http.StatusInternalServerError, map[string]string{"error": "Error reading file. Please try again."})
		return
	}

	contentType := header.Header.Get("Content-Type")
	if contentType == "" {
		switch strings.ToLower(filepath.Ext(header.Filename)) {
		case ".jpg", ".jpeg":
			contentType = "image/jpeg"
		case ".png":
			contentType = "image/png"
		case ".pdf":
			contentType = "application/pdf"
		case ".heic":
			contentType = "image/heic"
		case ".heif":
			contentType = "image/heif"
		default:
			contentType = "application/octet-stream"
		}
	}
	contentType = strings.ToLower(strings.TrimSpace(contentType))

	householdID := r.FormValue("household_id")
	context := StorageContext(r.FormValue("context"))

	session, candidates, err := s.service.ProcessScan(householdID, context, header.Filename, data, contentType)
	if err != nil {
		slog.Error("Error processing scan", "filename", header.Filename, "error", err)
		writeError(w, err)
		return
	}

	writeJSON(w, http.StatusCreated, sessionResponse{Session: session, Candidates: candidates})
}

// handleGetScan returns a session with its candidates
func (s *Server) handleGetScan(w http.ResponseWriter, r *http.Request) {
	session, candidates, err := s.service.GetSession(r.PathValue("id"))
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, sessionResponse{Session: session, Candidates: candidates})
}

// handleListScans returns sessions, optionally filtered by household
func (s *Server) handleListScans(w http.ResponseWriter, r *http.Request) {
	sessions, err := s.service.ListSessions(r.URL.Query().Get("household_id"))
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, sessions)
}

// handleGetScanImage returns the captured image for a session
func (s *Server) handleGetScanImage(w http.ResponseWriter, r *http.Request) {
	data, contentType, err := s.service.GetSessionImage(r.PathValue("id"))
	if err != nil {
		writeError(w, err)
		return
	}
	setCORSHeaders(w)
	w.Header().Set("Content-Type", contentType)
	w.Write(data)
}

// handleResolveCandidates applies a batch of confirmation decisions
func (s *Server) handleResolveCandidates(w http.ResponseWriter, r *http.Request) {
	var req struct {
		Resolutions []Resolution `json:"resolutions"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "Invalid request body"})
		return
	}

	summary, err := s.service.ResolveCandidates(r.PathValue("id"), req.Resolutions)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, summary)
}

// handleCancelScan abandons a processing session
func (s *Server) handleCancelScan(w http.ResponseWriter, r *http.Request) {
	session, err := s.service.CancelSession(r.PathValue("id"))
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, session)
}

// handleReconcile runs the mark-missing pass for a completed full scan
func (s *Server) handleReconcile(w http.ResponseWriter, r *http.Request) {
	var req struct {
		HouseholdID string         `json:"household_id"`
		Context     StorageContext `json:"context"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "Invalid request body"})
		return
	}

	marked, err := s.service.ReconcileContext(req.HouseholdID, req.Context, r.PathValue("id"))
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]int{"marked_missing": marked})
}

// handleListPantry returns a household's inventory
func (s *Server) handleListPantry(w http.ResponseWriter, r *http.Request) {
	includePast := r.URL.Query().Get("include_past") == "true"
	items, err := s.service.ListPantry(r.URL.Query().Get("household_id"), includePast)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, items)
}

// handleAddPantryItem upserts a manually entered item
func (s *Server) handleAddPantryItem(w http.ResponseWriter, r *http.Request) {
	var req struct {
		HouseholdID string `json:"household_id"`
		ManualItem
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "Invalid request body"})
		return
	}

	item, err := s.service.AddPantryItem(req.HouseholdID, req.ManualItem)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, item)
}

// handleCreateRecipe stores a recipe for sufficiency checks
func (s *Server) handleCreateRecipe(w http.ResponseWriter, r *http.Request) {
	var req struct {
		Name         string             `json:"name"`
		BaseServings int                `json:"base_servings"`
		Ingredients  []RecipeIngredient `json:"ingredients"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "Invalid request body"})
		return
	}

	recipe, err := s.service.CreateRecipe(req.Name, req.BaseServings, req.Ingredients)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, recipe)
}

// handleGetRecipe returns a single recipe
func (s *Server) handleGetRecipe(w http.ResponseWriter, r *http.Request) {
	recipe, err := s.service.GetRecipe(r.PathValue("id"))
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, recipe)
}

// handleListRecipes returns all recipes
func (s *Server) handleListRecipes(w http.ResponseWriter, r *http.Request) {
	recipes, err := s.service.ListRecipes()
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, recipes)
}

// handleRecipeSufficiency checks a stored recipe against the pantry
func (s *Server) handleRecipeSufficiency(w http.ResponseWriter, r *http.Request) {
	servings, err := strconv.Atoi(r.URL.Query().Get("servings"))
	if err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "servings must be an integer"})
		return
	}

	report, err := s.service.CheckRecipeSufficiency(r.PathValue("id"), r.URL.Query().Get("household_id"), servings)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, report)
}

// handleInlineSufficiency checks an ad-hoc ingredient list
func (s *Server) handleInlineSufficiency(w http.ResponseWriter, r *http.Request) {
	var req struct {
		HouseholdID  string             `json:"household_id"`
		Servings     int                `json:"servings"`
		BaseServings int                `json:"base_servings"`
		Ingredients  []RecipeIngredient `json:"ingredients"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "Invalid request body"})
		return
	}

	report, err := s.service.CheckInlineSufficiency(req.HouseholdID, req.Ingredients, req.Servings, req.BaseServings)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, report)
}
