package ops

import (
	"encoding/json"
	"errors"
	"io"
	"net/http"

	"salespulse/internal/types"
)

// maxRequestBodySize caps request bodies at 1 MB.
const maxRequestBodySize = 1 << 20

// envelope is the standard wrapper for successful responses.
type envelope struct {
	Data any `json:"data,omitempty"`
}

// errorEnvelope is the standard wrapper for error responses.
type errorEnvelope struct {
	Error errorDetail `json:"error"`
}

type errorDetail struct {
	Code    string `json:"code"`
	Message string `json:"message"`
	TraceID string `json:"trace_id,omitempty"`
}

// writeJSON writes data inside the standard envelope with the given status.
func writeJSON(w http.ResponseWriter, status int, data any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(envelope{Data: data})
}

// writeError maps err onto the error envelope. AppErrors carry their own
// status and client-safe message; anything else becomes an opaque 500 so
// internal details never leak.
func writeError(w http.ResponseWriter, r *http.Request, err error) {
	traceID := types.GetTraceID(r.Context())

	var appErr *types.AppError
	if errors.As(err, &appErr) {
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(appErr.HTTPStatus())
		_ = json.NewEncoder(w).Encode(errorEnvelope{Error: errorDetail{
			Code:    string(appErr.Code),
			Message: appErr.Message,
			TraceID: traceID,
		}})
		return
	}

	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusInternalServerError)
	_ = json.NewEncoder(w).Encode(errorEnvelope{Error: errorDetail{
		Code:    string(types.ErrCodeInternalUnexpected),
		Message: "an unexpected error occurred",
		TraceID: traceID,
	}})
}

// decodeJSON reads the request body into dst with a size cap and strict
// field checking. An empty body leaves dst at its zero value, which lets
// optional request bodies default cleanly.
func decodeJSON(w http.ResponseWriter, r *http.Request, dst any) error {
	r.Body = http.MaxBytesReader(w, r.Body, maxRequestBodySize)

	dec := json.NewDecoder(r.Body)
	dec.DisallowUnknownFields()

	if err := dec.Decode(dst); err != nil {
		if errors.Is(err, io.EOF) {
			return nil
		}
		return types.NewAppError(types.ErrCodeValidationBadMessage, "invalid request body", err)
	}
	return nil
}
