package receipt

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"mime/multipart"
	"net/http"
	"path/filepath"
	"strings"
)

// maxUploadSize allows high-resolution phone photos
const maxUploadSize = int64(50 << 20)

const fileTooLargeMsg = "File is too large. Maximum size is 50MB. Please compress or resize your image."

// writeJSON encodes v with the given status
func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		slog.Error("Error encoding response", "error", err)
	}
}

// writeError writes a JSON error body
func writeError(w http.ResponseWriter, status int, message string) {
	writeJSON(w, status, map[string]string{"error": message})
}

// statusFor maps service errors to HTTP status codes
func statusFor(err error) int {
	switch {
	case errors.Is(err, ErrNotFound):
		return http.StatusNotFound
	case errors.Is(err, ErrInvalidUpdate), errors.Is(err, ErrInvalidPath):
		return http.StatusBadRequest
	}
	return http.StatusInternalServerError
}

// detectContentType prefers the part header and falls back to the extension
func detectContentType(header *multipart.FileHeader) string {
	contentType := header.Header.Get("Content-Type")
	if contentType == "" || contentType == "application/octet-stream" {
		switch strings.ToLower(filepath.Ext(header.Filename)) {
		case ".jpg", ".jpeg":
			contentType = "image/jpeg"
		case ".png":
			contentType = "image/png"
		case ".gif":
			contentType = "image/gif"
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
	// HEIC/HEIF types are kept so conversion can detect them
	return strings.ToLower(strings.TrimSpace(contentType))
}

func readUpload(header *multipart.FileHeader) (Upload, error) {
	if header.Size > maxUploadSize {
		return Upload{}, errors.New(fileTooLargeMsg)
	}
	f, err := header.Open()
	if err != nil {
		return Upload{}, fmt.Errorf("opening upload: %w", err)
	}
	defer f.Close()

	data, err := io.ReadAll(f)
	if err != nil {
		return Upload{}, fmt.Errorf("reading upload: %w", err)
	}
	return Upload{Filename: header.Filename, Data: data, ContentType: detectContentType(header)}, nil
}

// parseMultipart parses the request body, writing an error response on failure
func parseMultipart(w http.ResponseWriter, r *http.Request) bool {
	r.Body = http.MaxBytesReader(w, r.Body, maxUploadSize)
	if err := r.ParseMultipartForm(maxUploadSize); err != nil {
		slog.Error("Error parsing multipart form", "request_id", RequestID(r.Context()), "error", err)
		var tooLarge *http.MaxBytesError
		if errors.As(err, &tooLarge) {
			writeError(w, http.StatusRequestEntityTooLarge, fileTooLargeMsg)
			return false
		}
		writeError(w, http.StatusBadRequest, "Error parsing form")
		return false
	}
	return true
}

// handleHealth reports liveness
func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

// handleExtract runs the engine on a data URI and returns the raw result
func (s *Server) handleExtract(w http.ResponseWriter, r *http.Request) {
	var req struct {
		Image            string `json:"image"`
		PreferGenerative *bool  `json:"preferGenerative"`
	}
	if err := json.NewDecoder(io.LimitReader(r.Body, maxUploadSize)).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "Invalid request body")
		return
	}
	if req.Image == "" {
		writeError(w, http.StatusBadRequest, "No image provided")
		return
	}

	writeJSON(w, http.StatusOK, s.service.Extract(r.Context(), req.Image, req.PreferGenerative))
}

// handleListReceipts returns a list of all receipts
func (s *Server) handleListReceipts(w http.ResponseWriter, r *http.Request) {
	receipts, err := s.service.ListReceipts()
	if err != nil {
		slog.Error("Error listing receipts", "request_id", RequestID(r.Context()), "error", err)
		writeError(w, http.StatusInternalServerError, "Internal server error")
		return
	}
	writeJSON(w, http.StatusOK, receipts)
}

// handleUploadReceipt handles a single receipt upload
func (s *Server) handleUploadReceipt(w http.ResponseWriter, r *http.Request) {
	if !parseMultipart(w, r) {
		return
	}

	_, header, err := r.FormFile("file")
	if err != nil {
		slog.Error("Error getting file from form", "request_id", RequestID(r.Context()), "error", err)
		errorMsg := "No file provided"
		if errors.Is(err, http.ErrMissingFile) {
			errorMsg = "No file was selected. Please choose a file to upload."
		}
		writeError(w, http.StatusBadRequest, errorMsg)
		return
	}

	upload, err := readUpload(header)
	if err != nil {
		slog.Error("Error reading upload", "request_id", RequestID(r.Context()), "filename", header.Filename, "error", err)
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}

	receipt, err := s.service.ProcessReceipt(r.Context(), upload.Filename, upload.Data, upload.ContentType)
	if err != nil {
		slog.Error("Error processing receipt", "request_id", RequestID(r.Context()), "filename", upload.Filename, "error", err)
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	writeJSON(w, http.StatusCreated, receipt)
}

// handleBatchUpload processes every file in the "files" field in order
func (s *Server) handleBatchUpload(w http.ResponseWriter, r *http.Request) {
	if !parseMultipart(w, r) {
		return
	}

	headers := r.MultipartForm.File["files"]
	if len(headers) == 0 {
		writeError(w, http.StatusBadRequest, "No files provided")
		return
	}

	uploads := make([]Upload, 0, len(headers))
	var failures []BatchFailure
	for _, header := range headers {
		upload, err := readUpload(header)
		if err != nil {
			failures = append(failures, BatchFailure{Filename: header.Filename, Error: err.Error()})
			continue
		}
		uploads = append(uploads, upload)
	}

	result, err := s.service.ProcessBatch(r.Context(), uploads)
	if err != nil {
		slog.Error("Batch processing stopped", "request_id", RequestID(r.Context()), "error", err, "processed", len(result.Receipts))
	}
	result.Failures = append(failures, result.Failures...)
	writeJSON(w, http.StatusCreated, result)
}

// handleExportReceipts streams an Excel workbook of every receipt
func (s *Server) handleExportReceipts(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "application/vnd.openxmlformats-officedocument.spreadsheetml.sheet")
	w.Header().Set("Content-Disposition", `attachment; filename="receipts.xlsx"`)
	if err := s.service.ExportXLSX(w); err != nil {
		slog.Error("Error exporting receipts", "request_id", RequestID(r.Context()), "error", err)
		w.Header().Del("Content-Disposition")
		writeError(w, http.StatusInternalServerError, "Internal server error")
	}
}

// handleGetReceipt returns a single receipt
func (s *Server) handleGetReceipt(w http.ResponseWriter, r *http.Request) {
	receipt, err := s.service.GetReceipt(r.PathValue("id"))
	if err != nil {
		writeError(w, statusFor(err), "Receipt not found")
		return
	}
	writeJSON(w, http.StatusOK, receipt)
}

// handleUpdateReceipt applies manual corrections
func (s *Server) handleUpdateReceipt(w http.ResponseWriter, r *http.Request) {
	var update ReceiptUpdate
	if err := json.NewDecoder(r.Body).Decode(&update); err != nil {
		writeError(w, http.StatusBadRequest, "Invalid request body")
		return
	}

	receipt, err := s.service.UpdateReceipt(r.PathValue("id"), update)
	if err != nil {
		slog.Error("Error updating receipt", "request_id", RequestID(r.Context()), "id", r.PathValue("id"), "error", err)
		writeError(w, statusFor(err), err.Error())
		return
	}
	writeJSON(w, http.StatusOK, receipt)
}

// handleGetReceiptFile returns the file for a receipt
func (s *Server) handleGetReceiptFile(w http.ResponseWriter, r *http.Request) {
	data, contentType, err := s.service.GetReceiptFile(r.PathValue("id"))
	if err != nil {
		writeError(w, http.StatusNotFound, "File not found")
		return
	}

	w.Header().Set("Content-Type", contentType)
	w.Write(data)
}

// handleDeleteReceipt deletes a receipt
func (s *Server) handleDeleteReceipt(w http.ResponseWriter, r *http.Request) {
	if err := s.service.DeleteReceipt(r.PathValue("id")); err != nil {
		writeError(w, statusFor(err), "Error deleting receipt")
		return
	}
	w.WriteHeader(http.StatusNoContent)
}
