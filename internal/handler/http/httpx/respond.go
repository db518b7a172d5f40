package httpx

import (
	"encoding/json"
	"errors"
	"net/http"

	"go.uber.org/zap"

	"negotiations/internal/domain"
)

type ErrorBody struct {
	Code    string `json:"code"`
	Message string `json:"message"`
	Status  string `json:"status,omitempty"`
}

type ErrorResponse struct {
	Error ErrorBody `json:"error"`
}

func WriteJSON(w http.ResponseWriter, status int, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func WriteErrorCode(w http.ResponseWriter, status int, code, message string) {
	WriteJSON(w, status, ErrorResponse{Error: ErrorBody{Code: code, Message: message}})
}

// WriteError maps domain errors onto status codes. Anything it does not recognise is
// reported as a 500 without details.
func WriteError(w http.ResponseWriter, l *zap.Logger, err error) {
	status, code := http.StatusInternalServerError, "internal"
	switch {
	case errors.Is(err, domain.ErrValidation):
		status, code = http.StatusBadRequest, "validation_error"
	case errors.Is(err, domain.ErrNotFound):
		status, code = http.StatusNotFound, "not_found"
	case errors.Is(err, domain.ErrForbidden):
		status, code = http.StatusForbidden, "forbidden"
	case errors.Is(err, domain.ErrInvalidTransition):
		status, code = http.StatusConflict, "invalid_transition"
	}

	if status == http.StatusInternalServerError {
		if !errors.Is(err, domain.ErrInternal) {
			l.Error("Unhandled error", zap.Error(err))
		}
		WriteErrorCode(w, status, code, domain.ErrInternal.Error())
		return
	}

	body := ErrorBody{Code: code, Message: err.Error()}
	var ae *domain.ActionError
	if errors.As(err, &ae) {
		if ae.Reason != "" {
			body.Message = ae.Reason
		}
		body.Status = string(ae.Status)
	}
	WriteJSON(w, status, ErrorResponse{Error: body})
}

// DecodeJSON rejects unknown fields and trailing data.
func DecodeJSON(r *http.Request, v interface{}) error {
	dec := json.NewDecoder(r.Body)
	dec.DisallowUnknownFields()
	if err := dec.Decode(v); err != nil {
		return domain.Validationf("invalid request body: %v", err)
	}
	if dec.More() {
		return domain.Validationf("invalid request body: unexpected data after JSON object")
	}
	return nil
}
