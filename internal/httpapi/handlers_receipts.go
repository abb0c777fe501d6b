package httpapi

import (
	"io"
	"net/http"
)

const maxReceiptBytes = 8 << 20

// handleReceiptScan forwards an uploaded receipt image to the OCR
// service. The breaker inside the client guarantees a pending result
// instead of an error when OCR is down.
func (s *Server) handleReceiptScan(w http.ResponseWriter, r *http.Request) {
	if s.ocr == nil {
		writeError(w, http.StatusServiceUnavailable, "ocr_disabled", "receipt scanning is not configured")
		return
	}

	contentType := r.Header.Get("Content-Type")
	if contentType != "image/jpeg" && contentType != "image/png" {
		writeError(w, http.StatusUnsupportedMediaType, "invalid_request", "receipt must be a JPEG or PNG image")
		return
	}

	image, err := io.ReadAll(http.MaxBytesReader(w, r.Body, maxReceiptBytes))
	if err != nil {
		writeError(w, http.StatusRequestEntityTooLarge, "invalid_request", "receipt image is too large")
		return
	}
	if len(image) == 0 {
		writeError(w, http.StatusBadRequest, "invalid_request", "receipt image is empty")
		return
	}

	result, err := s.ocr.Scan(r.Context(), image, contentType)
	if err != nil {
		writeEngineError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, result)
}
