package model

type LoginRequest struct {
	Email    string `json:"email"`
	Password string `json:"password"`
}

type RegisterRequest struct {
	Email    string `json:"email"`
	Username string `json:"username"`
	Password string `json:"password"`
	Role     string `json:"role"`
}

type RefreshRequest struct {
	RefreshToken string `json:"refresh_token"`
}

type BlockIPRequest struct {
	IP       string `json:"ip"`
	Reason   string `json:"reason"`
	Duration string `json:"duration,omitempty"`
}
