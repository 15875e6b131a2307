package dto

import (
	"time"

	"github.com/kmun/registration-service/internal/domain"
)

// LoginRequest payload for POST /api/auth/login.
type LoginRequest struct {
	Email    string `json:"email"`
	Password string `json:"password"`
}

// AuthResponse standard response for auth endpoints.
type AuthResponse struct {
	Token     string    `json:"token"`
	ExpiresAt time.Time `json:"expiresAt"`
}

// AccountResponse is the public view of an account. The password hash never leaves the service.
type AccountResponse struct {
	ID          string     `json:"id"`
	ExternalID  string     `json:"externalId"`
	FirstName   string     `json:"firstName"`
	LastName    string     `json:"lastName"`
	Email       string     `json:"email"`
	Phone       string     `json:"phone,omitempty"`
	Institution string     `json:"institution,omitempty"`
	Grade       string     `json:"grade,omitempty"`
	Role        string     `json:"role"`
	IsActive    bool       `json:"isActive"`
	LastLoginAt *time.Time `json:"lastLoginAt,omitempty"`
	CreatedAt   time.Time  `json:"createdAt"`
	UpdatedAt   time.Time  `json:"updatedAt"`
}

// NewAccountResponse maps a domain account.
func NewAccountResponse(a *domain.Account) AccountResponse {
	return AccountResponse{
		ID:          a.ID,
		ExternalID:  a.ExternalID,
		FirstName:   a.FirstName,
		LastName:    a.LastName,
		Email:       a.Email,
		Phone:       a.Phone,
		Institution: a.Institution,
		Grade:       a.Grade,
		Role:        string(a.Role),
		IsActive:    a.Active,
		LastLoginAt: a.LastLoginAt,
		CreatedAt:   a.CreatedAt,
		UpdatedAt:   a.UpdatedAt,
	}
}
