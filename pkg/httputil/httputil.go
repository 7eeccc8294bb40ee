// Package httputil has the shared JSON response and decoding helpers for
// HTTP handlers.
package httputil

import (
	"encoding/json"
	"errors"
	"net/http"

	"terrarun/pkg/gameerrors"
)

// ErrorResponse is the wire shape for every error the API returns.
type ErrorResponse struct {
	Code    string `json:"code"`
	Message string `json:"message"`
}

// WriteJSON writes a JSON body with the given status.
func WriteJSON(w http.ResponseWriter, status int, body any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(body)
}

// WriteError maps a domain error to its HTTP status and writes the coded
// body. Unknown errors become an opaque 500.
func WriteError(w http.ResponseWriter, err error) {
	var gameErr *gameerrors.Error
	if errors.As(err, &gameErr) {
		WriteJSON(w, gameerrors.ToHTTPStatus(gameErr.Code), ErrorResponse{
			Code:    string(gameErr.Code),
			Message: gameErr.Message,
		})
		return
	}
	WriteJSON(w, http.StatusInternalServerError, ErrorResponse{
		Code:    string(gameerrors.CodeInternal),
		Message: "internal error",
	})
}

// DecodeJSON decodes the request body into T.
func DecodeJSON[T any](r *http.Request) (T, error) {
	var req T
	dec := json.NewDecoder(r.Body)
	if err := dec.Decode(&req); err != nil {
		return req, gameerrors.New(gameerrors.CodeBadRequest, "invalid JSON body")
	}
	return req, nil
}
