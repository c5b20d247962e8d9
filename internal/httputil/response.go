package httputil

import (
	"encoding/json"
	"errors"
	"io"
	"net/http"

	svcerrors "github.com/R3E-Network/compliance_layer/internal/errors"
)

const maxRequestBodyBytes = 1 << 20

// Envelope is the JSON body of every non-health API response.
type Envelope struct {
	Success bool           `json:"success"`
	Data    any            `json:"data,omitempty"`
	Error   string         `json:"error,omitempty"`
	Code    string         `json:"code,omitempty"`
	Details map[string]any `json:"details,omitempty"`
}

// WriteJSON writes v as JSON with the given status.
func WriteJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

// WriteSuccess writes {success:true, data}.
func WriteSuccess(w http.ResponseWriter, status int, data any) {
	WriteJSON(w, status, Envelope{Success: true, Data: data})
}

// WriteError renders err as {success:false, error, code}. The message is the
// ServiceError message; wrapped causes are not exposed.
func WriteError(w http.ResponseWriter, err error) {
	se := svcerrors.As(err)
	status := se.HTTPStatus
	if status == 0 {
		status = http.StatusInternalServerError
	}
	WriteJSON(w, status, Envelope{
		Success: false,
		Error:   se.Message,
		Code:    string(se.Code),
		Details: se.Details,
	})
}

// BadRequest writes a 400 validation error.
func BadRequest(w http.ResponseWriter, message string) {
	WriteError(w, svcerrors.Validation(message))
}

// DecodeJSON decodes the request body into v, writing a 400 and returning
// false on failure.
func DecodeJSON(w http.ResponseWriter, r *http.Request, v any) bool {
	dec := json.NewDecoder(io.LimitReader(r.Body, maxRequestBodyBytes))
	dec.DisallowUnknownFields()
	if err := dec.Decode(v); err != nil {
		if errors.Is(err, io.EOF) {
			BadRequest(w, "request body required")
		} else {
			BadRequest(w, "invalid JSON body: "+err.Error())
		}
		return false
	}
	return true
}
