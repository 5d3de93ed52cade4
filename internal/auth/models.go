package auth

import "memorialqr/internal/session"

// LoginRequest is the login payload, accepted as JSON or form data
type LoginRequest struct {
	Email    string `json:"email" form:"email" binding:"required,email"`
	Password string `json:"password" form:"password" binding:"required"`
	From     string `json:"from" form:"from"`
}

// LoginResponse tells the client where to go after logging in
type LoginResponse struct {
	Account  session.Identity `json:"account"`
	Redirect string           `json:"redirect"`
}

// SessionResponse describes the current caller
type SessionResponse struct {
	Account session.Identity `json:"account"`
}
