package domain

import (
	"errors"
	"net/mail"
	"strings"
	"time"
)

type Role string

const (
	RoleCustomer Role = "customer"
	RoleAdmin    Role = "admin"
)

// MinPasswordLength applies to signup only; existing hashes are accepted
// as they are.
const MinPasswordLength = 8

var (
	ErrUserExists         = errors.New("identity: username or email already taken")
	ErrUserNotFound       = errors.New("identity: user not found")
	ErrInvalidCredentials = errors.New("identity: invalid username or password")
)

type User struct {
	ID           int64     `json:"id"`
	Username     string    `json:"username"`
	Email        string    `json:"email"`
	PasswordHash string    `json:"-"`
	Role         Role      `json:"role"`
	CreatedAt    time.Time `json:"created_at"`
}

type SignupRequest struct {
	Username string `json:"username"`
	Email    string `json:"email"`
	Password string `json:"password"`
}

type ValidationError struct {
	Fields []string
}

func (e *ValidationError) Error() string {
	return "identity: invalid fields: " + strings.Join(e.Fields, ", ")
}

// Normalize trims the username and lower-cases the email.
func (r SignupRequest) Normalize() SignupRequest {
	r.Username = strings.TrimSpace(r.Username)
	r.Email = strings.ToLower(strings.TrimSpace(r.Email))
	return r
}

func (r SignupRequest) Validate() error {
	var fields []string
	if n := len(r.Username); n < 3 || n > 50 {
		fields = append(fields, "username")
	}
	if addr, err := mail.ParseAddress(r.Email); err != nil || addr.Address != r.Email || len(r.Email) > 100 {
		fields = append(fields, "email")
	}
	if len(r.Password) < MinPasswordLength || len(r.Password) > 72 {
		fields = append(fields, "password")
	}
	if len(fields) > 0 {
		return &ValidationError{Fields: fields}
	}
	return nil
}
