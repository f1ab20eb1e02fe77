// Package handlers provides HTTP handlers for the extraction API.
package handlers

import (
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"strconv"
	"strings"

	"github.com/doculens/extraction-engine/internal/domain"
	"github.com/doculens/extraction-engine/internal/extraction"
	"github.com/doculens/extraction-engine/internal/observability"
)

// ExtractHandler handles synchronous extraction requests.
type ExtractHandler struct {
	logger   *observability.Logger
	engine   *extraction.Engine
	maxBytes int64
}

// NewExtractHandler creates an extract handler.
func NewExtractHandler(logger *observability.Logger, engine *extraction.Engine, maxBytes int64) *ExtractHandler {
	return &ExtractHandler{logger: logger, engine: engine, maxBytes: maxBytes}
}

// Extract runs one extraction synchronously and returns the full result.
// The document arrives as the raw request body; options ride in query
// parameters so the body stays opaque bytes.
func (h *ExtractHandler) Extract(w http.ResponseWriter, r *http.Request) {
	doc, opts, ok := readDocument(w, r, h.maxBytes)
	if !ok {
		return
	}

	result, err := h.engine.Extract(r.Context(), doc, opts)
	if err != nil {
		writeError(w, h.logger, err)
		return
	}

	writeJSON(w, http.StatusOK, result)
}

// readDocument reads the uploaded document and parses options from the
// query string or form fields. Multipart uploads carry the document in a
// "document" (or "file") part; otherwise the raw body is the document. On
// failure it writes the error response and returns ok=false.
func readDocument(w http.ResponseWriter, r *http.Request, maxBytes int64) (domain.Document, domain.Options, bool) {
	if strings.HasPrefix(r.Header.Get("Content-Type"), "multipart/form-data") {
		return readMultipartDocument(w, r, maxBytes)
	}

	body, err := io.ReadAll(http.MaxBytesReader(w, r.Body, maxBytes))
	if err != nil {
		writeJSON(w, http.StatusRequestEntityTooLarge, map[string]string{"error": "document exceeds upload limit"})
		return domain.Document{}, domain.Options{}, false
	}
	if len(body) == 0 {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "request body is empty"})
		return domain.Document{}, domain.Options{}, false
	}

	doc := domain.Document{
		Content:   body,
		MediaType: r.Header.Get("Content-Type"),
		Size:      int64(len(body)),
	}
	// A generic content type defers to magic-byte sniffing.
	if doc.MediaType == "" || strings.HasPrefix(doc.MediaType, "application/octet-stream") {
		doc.MediaType = ""
	}

	return doc, parseOptions(r), true
}

// readMultipartDocument extracts the document from a multipart form. Options
// may ride as form fields alongside the file part.
func readMultipartDocument(w http.ResponseWriter, r *http.Request, maxBytes int64) (domain.Document, domain.Options, bool) {
	r.Body = http.MaxBytesReader(w, r.Body, maxBytes)
	if err := r.ParseMultipartForm(maxBytes); err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "invalid multipart form"})
		return domain.Document{}, domain.Options{}, false
	}

	file, header, err := r.FormFile("document")
	if err != nil {
		file, header, err = r.FormFile("file")
	}
	if err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "multipart form is missing a document part"})
		return domain.Document{}, domain.Options{}, false
	}
	defer file.Close()

	body, err := io.ReadAll(file)
	if err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "failed to read document part"})
		return domain.Document{}, domain.Options{}, false
	}
	if len(body) == 0 {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "document part is empty"})
		return domain.Document{}, domain.Options{}, false
	}

	doc := domain.Document{
		Content:   body,
		MediaType: header.Header.Get("Content-Type"),
		SourceURI: header.Filename,
		Size:      int64(len(body)),
	}
	if doc.MediaType == "" || strings.HasPrefix(doc.MediaType, "application/octet-stream") {
		doc.MediaType = ""
	}

	return doc, parseOptions(r), true
}

// parseOptions maps query parameters and form fields onto extraction
// options. FormValue covers both so multipart uploads can carry options
// inline.
func parseOptions(r *http.Request) domain.Options {
	opts := domain.DefaultOptions()

	if v := r.FormValue("tables"); v != "" {
		opts.EnableTables = v == "true" || v == "1"
	}
	if v := r.FormValue("entities"); v != "" {
		opts.EnableEntities = v == "true" || v == "1"
	}
	if v := r.FormValue("cache"); v != "" {
		opts.UseCache = v == "true" || v == "1"
	}
	if v := r.FormValue("confidence_floor"); v != "" {
		if floor, err := strconv.ParseFloat(v, 64); err == nil {
			opts.ConfidenceFloor = floor
		}
	}
	if v := r.FormValue("engines"); v != "" {
		opts.EngineAllowlist = strings.Split(v, ",")
	}
	if v := r.FormValue("include_low_confidence"); v != "" {
		opts.IncludeLowConfidence = v == "true" || v == "1"
	}

	return opts
}

func writeJSON(w http.ResponseWriter, status int, body interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(body)
}

// writeError maps domain error kinds onto HTTP status codes.
func writeError(w http.ResponseWriter, logger *observability.Logger, err error) {
	status := http.StatusInternalServerError
	var derr *domain.DomainError
	if errors.As(err, &derr) {
		switch derr.Kind {
		case domain.ErrorKindInput:
			status = http.StatusBadRequest
		case domain.ErrorKindTimeout:
			status = http.StatusGatewayTimeout
		}
	}

	logger.Error().Err(err).Int("status", status).Msg("request failed")
	writeJSON(w, status, map[string]string{"error": err.Error()})
}
