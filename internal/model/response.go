package model

// APIResponse is the JSON envelope for every API route. Failure bodies carry
// a flat error string so clients never see internal error structure.
type APIResponse struct {
	Success bool   `json:"success"`
	Data    any    `json:"data,omitempty"`
	Error   string `json:"error,omitempty"`
}
