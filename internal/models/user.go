package models

import "time"

// User represents a registered CMS author
type User struct {
	UserID       string    `json:"_id" dynamodbav:"user_id"`       // Primary Key
	Username     string    `json:"username" dynamodbav:"username"` // Unique, case-sensitive
	PasswordHash string    `json:"-" dynamodbav:"password_hash"`   // bcrypt hash (never in JSON)
	DisplayName  string    `json:"display_name,omitempty" dynamodbav:"display_name,omitempty"`
	CreatedAt    time.Time `json:"created_at" dynamodbav:"created_at"`
}

// LoginRequest represents login request payload
type LoginRequest struct {
	Username string `json:"username"`
	Password string `json:"password"`
}

// RegisterRequest represents registration request payload
type RegisterRequest struct {
	Username    string `json:"username"`
	Password    string `json:"password"`
	DisplayName string `json:"display_name,omitempty"`
}

// AuthResponse is returned by register and login
type AuthResponse struct {
	Token       string `json:"token"`
	TokenType   string `json:"token_type"`
	ExpiresIn   int    `json:"expires_in"` // seconds
	UserID      string `json:"_id"`
	Username    string `json:"username"`
	DisplayName string `json:"display_name,omitempty"`
}

// MeResponse is the "who am I" payload: subject id and username only
type MeResponse struct {
	UserID   string `json:"_id"`
	Username string `json:"username"`
}
