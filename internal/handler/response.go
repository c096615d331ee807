package handler

import (
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"

	"go-request-shield/internal/model"
	"go-request-shield/pkg/apierror"
)

func writeSuccess(w http.ResponseWriter, status int, data any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(model.APIResponse{
		Success: true,
		Data:    data,
	})
}

// writeError maps domain errors onto the flat failure envelope. Unknown
// errors become an opaque 500; their detail goes to the log, never the wire.
func writeError(w http.ResponseWriter, err error) {
	status := http.StatusInternalServerError
	message := "unexpected server error"

	var apiErr *apierror.APIError
	switch {
	case errors.As(err, &apiErr):
		status = apiErr.HTTPStatus
		message = apiErr.Message
	case errors.Is(err, model.ErrUserNotFound):
		status = http.StatusNotFound
		message = "user not found"
	case errors.Is(err, model.ErrUserAlreadyExists):
		status = http.StatusConflict
		message = "an account with that email already exists"
	case errors.Is(err, model.ErrInvalidCredentials):
		status = http.StatusUnauthorized
		message = "invalid credentials"
	case errors.Is(err, model.ErrWeakPassword):
		status = http.StatusUnprocessableEntity
		message = err.Error()
	case errors.Is(err, model.ErrTokenExpired):
		status = http.StatusUnauthorized
		message = "token expired"
	case errors.Is(err, model.ErrTokenMalformed),
		errors.Is(err, model.ErrTokenInvalid),
		errors.Is(err, model.ErrTokenVerification):
		status = http.StatusUnauthorized
		message = "invalid token"
	case errors.Is(err, model.ErrSessionNotFound),
		errors.Is(err, model.ErrSessionExpired),
		errors.Is(err, model.ErrSessionRevoked):
		status = http.StatusUnauthorized
		message = "session is no longer valid"
	case errors.Is(err, model.ErrUnauthorized):
		status = http.StatusUnauthorized
		message = "authentication required"
	case errors.Is(err, model.ErrForbidden):
		status = http.StatusForbidden
		message = "access denied"
	}

	if status >= 500 {
		slog.Error("request failed", "error", err)
	}

	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(model.APIResponse{
		Success: false,
		Error:   message,
	})
}
