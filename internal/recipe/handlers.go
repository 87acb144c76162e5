package recipe

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"mime/multipart"
	"net"
	"net/http"
	"strconv"

	"github.com/zombor/recipescan/internal/capture"
	"github.com/zombor/recipescan/internal/ocr"
	"github.com/zombor/recipescan/internal/structuring"
)

const (
	// maxUploadSize bounds multipart uploads and import bodies (50MB)
	maxUploadSize = int64(50 << 20)
	// maxJSONBodySize bounds recipe, structure and shopping list bodies (1MB)
	maxJSONBodySize = int64(1 << 20)
)

// corsError writes a plain text error response with CORS headers set
func corsError(w http.ResponseWriter, message string, code int) {
	setCORSHeaders(w)
	http.Error(w, message, code)
}

// jsonError writes {"error": message} with CORS headers set
func jsonError(w http.ResponseWriter, message string, code int) {
	writeJSON(w, code, map[string]string{"error": message})
}

func writeJSON(w http.ResponseWriter, code int, v any) {
	setCORSHeaders(w)
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		slog.Error("Error encoding response", "error", err)
	}
}

// setCORSHeaders sets CORS headers on a response
func setCORSHeaders(w http.ResponseWriter) {
	w.Header().Set("Access-Control-Allow-Origin", "*")
	w.Header().Set("Access-Control-Allow-Methods", "GET, POST, PUT, DELETE, OPTIONS")
	w.Header().Set("Access-Control-Allow-Headers", "Content-Type, Authorization")
	w.Header().Set("Access-Control-Max-Age", "3600")
}

// errorStatus maps service errors to HTTP status codes
func errorStatus(err error) int {
	var (
		apiErr *structuring.APIError
		netErr net.Error
	)
	switch {
	case errors.Is(err, ErrEmptyTitle),
		errors.Is(err, ErrInvalidImportFormat),
		errors.Is(err, ErrInvalidImportMode),
		errors.Is(err, structuring.ErrMissingAPIKey),
		errors.Is(err, structuring.ErrUnknownProvider),
		errors.Is(err, ocr.ErrNoImages),
		errors.Is(err, capture.ErrNormalize),
		errors.Is(err, capture.ErrUnsupportedFormat):
		return http.StatusBadRequest
	case errors.Is(err, ErrDuplicateTitle):
		return http.StatusConflict
	case errors.Is(err, ErrNotFound):
		return http.StatusNotFound
	case errors.Is(err, structuring.ErrUnparseableResponse):
		return http.StatusUnprocessableEntity
	case errors.As(err, &apiErr), errors.As(err, &netErr), errors.Is(err, structuring.ErrEmptyResponse):
		return http.StatusBadGateway
	}
	return http.StatusInternalServerError
}

// errorMessage returns the status for err and the message safe to show.
// Internal errors are logged and replaced with a generic message.
func errorMessage(err error) (int, string) {
	code := errorStatus(err)
	if code == http.StatusInternalServerError {
		slog.Error("Internal error", "error", err)
		return code, "Internal server error"
	}
	return code, err.Error()
}

func serviceError(w http.ResponseWriter, err error) {
	code, msg := errorMessage(err)
	jsonError(w, msg, code)
}

// decodeJSONBody decodes a size-limited JSON request body into v and
// writes the error response itself when that fails.
func decodeJSONBody(w http.ResponseWriter, r *http.Request, v any) bool {
	err := json.NewDecoder(http.MaxBytesReader(w, r.Body, maxJSONBodySize)).Decode(v)
	if err == nil {
		return true
	}

	var tooLarge *http.MaxBytesError
	if errors.As(err, &tooLarge) {
		jsonError(w, "Request body is too large. Maximum size is 1MB.", http.StatusRequestEntityTooLarge)
		return false
	}
	jsonError(w, "Invalid request body", http.StatusBadRequest)
	return false
}

func recipeID(r *http.Request) (uint64, error) {
	id, err := strconv.ParseUint(r.PathValue("id"), 10, 64)
	if err != nil {
		return 0, fmt.Errorf("invalid recipe id %q", r.PathValue("id"))
	}
	return id, nil
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

// readUpload reads one multipart file into pending images. PDFs expand
// into one image per page starting at index next.
func readUpload(fh *multipart.FileHeader, next int) ([]capture.PendingImage, error) {
	f, err := fh.Open()
	if err != nil {
		return nil, fmt.Errorf("opening %s: %w", fh.Filename, err)
	}
	defer f.Close()

	data, err := io.ReadAll(f)
	if err != nil {
		return nil, fmt.Errorf("reading %s: %w", fh.Filename, err)
	}

	contentType := capture.DetectContentType(fh.Filename, fh.Header.Get("Content-Type"))
	return capture.NewPendingImages(fh.Filename, contentType, data, next)
}

func parseUploadForm(w http.ResponseWriter, r *http.Request) bool {
	r.Body = http.MaxBytesReader(w, r.Body, maxUploadSize)
	if err := r.ParseMultipartForm(maxUploadSize); err != nil {
		slog.Error("Error parsing multipart form", "error", err)
		errorMsg := "Error parsing form"
		var tooLarge *http.MaxBytesError
		if errors.As(err, &tooLarge) {
			errorMsg = "Upload is too large. Maximum size is 50MB."
		}
		jsonError(w, errorMsg, http.StatusBadRequest)
		return false
	}
	return true
}

// handleScan runs the scan pipeline over the uploaded images in form order
func (s *Server) handleScan(w http.ResponseWriter, r *http.Request) {
	if !parseUploadForm(w, r) {
		return
	}

	files := r.MultipartForm.File["images"]
	if len(files) == 0 {
		jsonError(w, "No images were provided. Please capture or choose at least one image.", http.StatusBadRequest)
		return
	}

	var pending []capture.PendingImage
	for _, fh := range files {
		imgs, err := readUpload(fh, len(pending))
		if err != nil {
			slog.Error("Error reading upload", "filename", fh.Filename, "error", err)
			jsonError(w, err.Error(), http.StatusBadRequest)
			return
		}
		pending = append(pending, imgs...)
	}

	result, err := s.service.Scan(r.Context(), pending)
	if err != nil {
		slog.Error("Error scanning recipe", "images", len(pending), "error", err)
		code, msg := errorMessage(err)
		body := map[string]any{"error": msg}
		if result != nil {
			body["raw_text"] = result.RawText
		}
		writeJSON(w, code, body)
		return
	}

	writeJSON(w, http.StatusOK, result)
}

// handleRotateImage rotates one uploaded image 90 degrees clockwise
func (s *Server) handleRotateImage(w http.ResponseWriter, r *http.Request) {
	if !parseUploadForm(w, r) {
		return
	}

	f, header, err := r.FormFile("image")
	if err != nil {
		jsonError(w, "No image provided", http.StatusBadRequest)
		return
	}
	defer f.Close()

	data, err := io.ReadAll(f)
	if err != nil {
		jsonError(w, "Error reading image. Please try again.", http.StatusInternalServerError)
		return
	}

	img := capture.PendingImage{
		Name:        header.Filename,
		ContentType: capture.DetectContentType(header.Filename, header.Header.Get("Content-Type")),
		Data:        data,
	}
	rotated, err := capture.Rotate90(img)
	if err != nil {
		slog.Error("Error rotating image", "filename", header.Filename, "error", err)
		serviceError(w, err)
		return
	}

	setCORSHeaders(w)
	w.Header().Set("Content-Type", rotated.ContentType)
	w.Write(rotated.Data)
}

// handleStructure re-runs AI structuring on text edited by the user
func (s *Server) handleStructure(w http.ResponseWriter, r *http.Request) {
	var req struct {
		Text string `json:"text"`
	}
	if !decodeJSONBody(w, r, &req) {
		return
	}

	candidate, err := s.service.Structure(r.Context(), req.Text)
	if err != nil {
		slog.Error("Error structuring recipe", "error", err)
		serviceError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, candidate)
}

// handleListRecipes lists all recipes, or those matching ?q=
func (s *Server) handleListRecipes(w http.ResponseWriter, r *http.Request) {
	recipes, err := s.service.SearchRecipes(r.URL.Query().Get("q"))
	if err != nil {
		serviceError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, recipes)
}

func (s *Server) handleCreateRecipe(w http.ResponseWriter, r *http.Request) {
	var rec Recipe
	if !decodeJSONBody(w, r, &rec) {
		return
	}
	rec.ID = 0

	created, err := s.service.CreateRecipe(&rec)
	if err != nil {
		var dup *DuplicateTitleError
		if errors.As(err, &dup) {
			writeJSON(w, http.StatusConflict, map[string]any{
				"error":       err.Error(),
				"existing_id": dup.ExistingID,
			})
			return
		}
		serviceError(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, created)
}

func (s *Server) handleGetRecipe(w http.ResponseWriter, r *http.Request) {
	id, err := recipeID(r)
	if err != nil {
		jsonError(w, err.Error(), http.StatusBadRequest)
		return
	}

	rec, found, err := s.service.GetRecipe(id)
	if err != nil {
		serviceError(w, err)
		return
	}
	if !found {
		jsonError(w, "Recipe not found", http.StatusNotFound)
		return
	}
	writeJSON(w, http.StatusOK, rec)
}

func (s *Server) handleUpdateRecipe(w http.ResponseWriter, r *http.Request) {
	id, err := recipeID(r)
	if err != nil {
		jsonError(w, err.Error(), http.StatusBadRequest)
		return
	}

	var rec Recipe
	if !decodeJSONBody(w, r, &rec) {
		return
	}
	rec.ID = id

	updated, err := s.service.UpdateRecipe(&rec)
	if err != nil {
		serviceError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, updated)
}

func (s *Server) handleDeleteRecipe(w http.ResponseWriter, r *http.Request) {
	id, err := recipeID(r)
	if err != nil {
		jsonError(w, err.Error(), http.StatusBadRequest)
		return
	}
	if err := s.service.DeleteRecipe(id); err != nil {
		serviceError(w, err)
		return
	}

	setCORSHeaders(w)
	w.WriteHeader(http.StatusNoContent)
}

func (s *Server) handleShoppingList(w http.ResponseWriter, r *http.Request) {
	var req struct {
		RecipeIDs []uint64 `json:"recipe_ids"`
	}
	if !decodeJSONBody(w, r, &req) {
		return
	}

	list, err := s.service.ShoppingList(req.RecipeIDs)
	if err != nil {
		serviceError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string][]string{"ingredients": list})
}

// handleExport downloads every recipe as an export file
func (s *Server) handleExport(w http.ResponseWriter, r *http.Request) {
	var buf bytes.Buffer
	if err := s.service.Export(&buf); err != nil {
		slog.Error("Error exporting recipes", "error", err)
		serviceError(w, err)
		return
	}

	setCORSHeaders(w)
	w.Header().Set("Content-Type", "application/json")
	w.Header().Set("Content-Disposition", fmt.Sprintf("attachment; filename=%q", ExportFilename))
	w.Write(buf.Bytes())
}

// handleImport imports an export file or recipe array from the request body
func (s *Server) handleImport(w http.ResponseWriter, r *http.Request) {
	mode, err := ParseImportMode(r.URL.Query().Get("mode"))
	if err != nil {
		jsonError(w, err.Error(), http.StatusBadRequest)
		return
	}

	data, err := io.ReadAll(http.MaxBytesReader(w, r.Body, maxUploadSize))
	if err != nil {
		jsonError(w, "Import file is too large. Maximum size is 50MB.", http.StatusBadRequest)
		return
	}

	result, err := s.service.Import(data, mode)
	if err != nil {
		serviceError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, result)
}
