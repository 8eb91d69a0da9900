package model

import "time"

// Session is a logged-in browser session. AccessToken holds the upstream
// bearer token sealed by the vault, never the plaintext.
type Session struct {
	ID          int64     `json:"id"`
	Token       string    `json:"token"`
	AccessToken string    `json:"-"`
	UserName    string    `json:"user_name"`
	Email       string    `json:"email"`
	ExpiresAt   time.Time `json:"expires_at"`
	CreatedAt   time.Time `json:"created_at"`
}
