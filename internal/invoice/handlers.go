package invoice

import (
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"net/http"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"github.com/zombor/shoplist-invoicer/internal/pricing"
	"github.com/zombor/shoplist-invoicer/internal/render"
	"github.com/zombor/shoplist-invoicer/internal/sales"
	"github.com/zombor/shoplist-invoicer/internal/scanning"
)

const (
	// maxUploadSize fits high-resolution phone photos.
	maxUploadSize = int64(50 << 20)
	// maxJSONBody bounds invoice and item list payloads.
	maxJSONBody = int64(1 << 20)
	// defaultRetryAfter is sent when the model gave no retry hint.
	defaultRetryAfter = 30 * time.Second
	errTooLarge       = "File is too large. Maximum size is 50MB. Please compress or resize your image."
	errBodyTooLarge   = "Request body is too large."
)

func writeJSON(w http.ResponseWriter, code int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		slog.Error("Error encoding response", "error", err)
	}
}

func writeError(w http.ResponseWriter, code int, message string) {
	writeJSON(w, code, map[string]string{"error": message})
}

// decodeJSONBody decodes a size-limited JSON body into v. On failure it
// writes the error response and returns false.
func decodeJSONBody(w http.ResponseWriter, r *http.Request, v any, invalid string) bool {
	r.Body = http.MaxBytesReader(w, r.Body, maxJSONBody)
	err := json.NewDecoder(r.Body).Decode(v)
	if err == nil {
		return true
	}
	var tooLarge *http.MaxBytesError
	if errors.As(err, &tooLarge) {
		writeError(w, http.StatusRequestEntityTooLarge, errBodyTooLarge)
		return false
	}
	writeError(w, http.StatusBadRequest, invalid)
	return false
}

func (s *Server) handleIndex(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	w.Write(indexHTML)
}

// uploadContentType prefers the declared part type and falls back to the
// file extension.
func uploadContentType(declared, filename string) string {
	contentType := strings.ToLower(strings.TrimSpace(declared))
	if contentType != "" && contentType != "application/octet-stream" {
		return contentType
	}
	switch strings.ToLower(filepath.Ext(filename)) {
	case ".jpg", ".jpeg":
		return "image/jpeg"
	case ".png":
		return "image/png"
	case ".pdf":
		return "application/pdf"
	case ".heic":
		return "image/heic"
	case ".heif":
		return "image/heif"
	}
	return "application/octet-stream"
}

func (s *Server) handleScan(w http.ResponseWriter, r *http.Request) {
	r.Body = http.MaxBytesReader(w, r.Body, maxUploadSize)
	if err := r.ParseMultipartForm(maxUploadSize); err != nil {
		slog.Error("Error parsing multipart form", "error", err)
		var tooLarge *http.MaxBytesError
		if errors.As(err, &tooLarge) {
			writeError(w, http.StatusRequestEntityTooLarge, errTooLarge)
			return
		}
		writeError(w, http.StatusBadRequest, "Error parsing form")
		return
	}

	f, header, err := r.FormFile("file")
	if err != nil {
		slog.Error("Error getting file from form", "error", err)
		writeError(w, http.StatusBadRequest, "No file was selected. Please choose a photo of the list.")
		return
	}
	defer f.Close()

	data, err := io.ReadAll(f)
	if err != nil {
		slog.Error("Error reading file data", "error", err, "filename", header.Filename)
		writeError(w, http.StatusInternalServerError, "Error reading file. Please try again.")
		return
	}

	contentType := uploadContentType(header.Header.Get("Content-Type"), header.Filename)
	result, err := s.service.Scan(r.Context(), header.Filename, data, contentType)
	if err != nil {
		writeScanError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, result)
}

func writeScanError(w http.ResponseWriter, err error) {
	var rateLimit *scanning.RateLimitError
	switch {
	case errors.As(err, &rateLimit):
		retry := rateLimit.RetryAfter
		if retry <= 0 {
			retry = defaultRetryAfter
		}
		w.Header().Set("Retry-After", strconv.Itoa(int((retry+time.Second-1)/time.Second)))
		writeError(w, http.StatusTooManyRequests, "The AI is busy. Please wait a moment and try again.")
	case errors.Is(err, ErrNoExtractor):
		writeError(w, http.StatusServiceUnavailable, "Scanning is not configured.")
	default:
		writeError(w, http.StatusBadGateway, err.Error())
	}
}

// resolveRequest keeps items raw so one malformed element becomes an
// Unknown line instead of rejecting the whole list.
type resolveRequest struct {
	Items []json.RawMessage `json:"items"`
}

func (s *Server) handleResolve(w http.ResponseWriter, r *http.Request) {
	var req resolveRequest
	if !decodeJSONBody(w, r, &req, "Invalid request body") {
		return
	}
	writeJSON(w, http.StatusOK, s.service.Resolve(pricing.DecodeLineItems(req.Items)))
}

func (s *Server) handleRenderReceipt(w http.ResponseWriter, r *http.Request) {
	format, err := render.ParseFormat(r.URL.Query().Get("format"))
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}

	var inv pricing.Invoice
	if !decodeJSONBody(w, r, &inv, "Invalid invoice") {
		return
	}

	data, contentType, err := s.service.RenderReceipt(inv, format)
	if err != nil {
		slog.Error("Error rendering receipt", "error", err)
		writeError(w, http.StatusInternalServerError, "Error rendering receipt")
		return
	}
	writeFile(w, data, contentType, "receipt"+format.Extension())
}

func writeFile(w http.ResponseWriter, data []byte, contentType, filename string) {
	w.Header().Set("Content-Type", contentType)
	w.Header().Set("Content-Disposition", `inline; filename="`+filename+`"`)
	w.Write(data)
}

func (s *Server) handleRecordSale(w http.ResponseWriter, r *http.Request) {
	var inv pricing.Invoice
	if !decodeJSONBody(w, r, &inv, "Invalid invoice") {
		return
	}

	sale, err := s.service.RecordSale(inv)
	if errors.Is(err, ErrEmptyInvoice) {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	if err != nil {
		slog.Error("Error recording sale", "error", err)
		writeError(w, http.StatusInternalServerError, "Error recording sale")
		return
	}
	writeJSON(w, http.StatusCreated, sale)
}

func (s *Server) handleListSales(w http.ResponseWriter, r *http.Request) {
	list, err := s.service.ListSales()
	if err != nil {
		slog.Error("Error listing sales", "error", err)
		writeError(w, http.StatusInternalServerError, "Internal server error")
		return
	}
	if list == nil {
		list = []*sales.Sale{}
	}
	writeJSON(w, http.StatusOK, list)
}

func (s *Server) handleSalesSummary(w http.ResponseWriter, r *http.Request) {
	day := s.service.Today()
	if v := r.URL.Query().Get("day"); v != "" {
		parsed, err := time.ParseInLocation("2006-01-02", v, day.Location())
		if err != nil {
			writeError(w, http.StatusBadRequest, "day must be YYYY-MM-DD")
			return
		}
		day = parsed
	}

	summary, err := s.service.SalesSummary(day)
	if err != nil {
		slog.Error("Error summarizing sales", "error", err)
		writeError(w, http.StatusInternalServerError, "Internal server error")
		return
	}
	writeJSON(w, http.StatusOK, summary)
}

func (s *Server) handleGetSaleReceipt(w http.ResponseWriter, r *http.Request) {
	id := r.PathValue("id")
	format, err := render.ParseFormat(r.URL.Query().Get("format"))
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}

	data, contentType, err := s.service.GetSaleReceipt(id, format)
	if errors.Is(err, sales.ErrNotFound) {
		writeError(w, http.StatusNotFound, "Sale not found")
		return
	}
	if err != nil {
		slog.Error("Error getting sale receipt", "id", id, "error", err)
		writeError(w, http.StatusInternalServerError, "Internal server error")
		return
	}
	writeFile(w, data, contentType, "receipt-"+id+format.Extension())
}

func (s *Server) handleCatalog(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, s.service.CatalogStatus())
}
