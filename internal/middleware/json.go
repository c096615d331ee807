package middleware

import (
	"encoding/json"
	"net/http"

	"go-request-shield/internal/model"
)

func writeFailure(w http.ResponseWriter, status int, message string) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(model.APIResponse{
		Success: false,
		Error:   message,
	})
}
