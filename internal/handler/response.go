package handler

import (
	"encoding/json"
	"errors"
	"net/http"
	"strings"
	"time"

	"github.com/ethereum/go-ethereum/common"

	"github.com/dvpsettle/dvpd/internal/service"
)

// timeFormat is the wire format of every timestamp in a response.
const timeFormat = "2006-01-02T15:04:05Z"

// WriteJSON writes a JSON response with the given status code and data.
// Sets Content-Type to application/json before writing the status code.
func WriteJSON(w http.ResponseWriter, status int, data any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(data) // Write error intentionally ignored in response helper
}

// errorResponse is the standard error response format.
type errorResponse struct {
	Error   string `json:"error"`
	Message string `json:"message"`
}

// WriteError writes a standard error response with the given status code,
// error code, and human-readable message.
func WriteError(w http.ResponseWriter, status int, errorCode, message string) {
	WriteJSON(w, status, errorResponse{
		Error:   errorCode,
		Message: message,
	})
}

var errInvalidBody = errors.New("Request body must be valid JSON with Content-Type: application/json")

// ParseJSON decodes the request body as JSON into v. Unknown fields and
// trailing data are rejected.
func ParseJSON(r *http.Request, v any) error {
	ct := r.Header.Get("Content-Type")
	if ct == "" || !strings.HasPrefix(ct, "application/json") {
		return errInvalidBody
	}

	dec := json.NewDecoder(r.Body)
	dec.DisallowUnknownFields()
	if err := dec.Decode(v); err != nil {
		return errInvalidBody
	}
	if dec.More() {
		return errInvalidBody
	}

	return nil
}

// addressParam parses an address taken from the URL and writes a 400 when
// it is malformed.
func addressParam(w http.ResponseWriter, field, value string) (common.Address, bool) {
	addr, err := service.ParseAddress(field, value)
	if err != nil {
		WriteError(w, http.StatusBadRequest, "validation_error", err.Error())
		return common.Address{}, false
	}
	return addr, true
}

func formatTime(t time.Time) string {
	return t.UTC().Format(timeFormat)
}

func invalidRequest(w http.ResponseWriter, err error) {
	WriteError(w, http.StatusBadRequest, "invalid_request", err.Error())
}
