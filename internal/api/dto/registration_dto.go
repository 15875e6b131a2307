package dto

import (
	"time"

	"github.com/kmun/registration-service/internal/domain"
)

// RegistrationResponse is the admin view of a registration.
type RegistrationResponse struct {
	ID                    string              `json:"id"`
	AccountID             string              `json:"accountId"`
	FirstName             string              `json:"firstName"`
	LastName              string              `json:"lastName"`
	Email                 string              `json:"email"`
	Phone                 string              `json:"phone"`
	Gender                string              `json:"gender"`
	IsKumaraguru          bool                `json:"isKumaraguru"`
	RollNumber            string              `json:"rollNumber,omitempty"`
	InstitutionType       string              `json:"institutionType,omitempty"`
	Institution           string              `json:"institution,omitempty"`
	City                  string              `json:"cityOfInstitution,omitempty"`
	State                 string              `json:"stateOfInstitution,omitempty"`
	Grade                 string              `json:"grade,omitempty"`
	TotalMUNs             int                 `json:"totalMuns"`
	RequiresAccommodation bool                `json:"requiresAccommodation"`
	Preferences           []domain.Preference `json:"preferences"`
	IDDocument            string              `json:"idDocument"`
	Resume                *string             `json:"munResume,omitempty"`
	Status                string              `json:"status"`
	AllocatedCommittee    *string             `json:"allocatedCommittee,omitempty"`
	AllocatedPortfolio    *string             `json:"allocatedPortfolio,omitempty"`
	SubmittedAt           time.Time           `json:"submittedAt"`
	UpdatedAt             time.Time           `json:"updatedAt"`
}

// NewRegistrationResponse maps a domain registration. Empty preference slots are omitted.
func NewRegistrationResponse(r *domain.Registration) RegistrationResponse {
	prefs := make([]domain.Preference, 0, domain.MaxPreferences)
	for _, p := range r.Preferences {
		if p.Committee != "" {
			prefs = append(prefs, p)
		}
	}
	return RegistrationResponse{
		ID:                    r.ID,
		AccountID:             r.AccountID,
		FirstName:             r.FirstName,
		LastName:              r.LastName,
		Email:                 r.Email,
		Phone:                 r.Phone,
		Gender:                r.Gender,
		IsKumaraguru:          r.IsKumaraguru,
		RollNumber:            r.RollNumber,
		InstitutionType:       r.InstitutionType,
		Institution:           r.Institution,
		City:                  r.City,
		State:                 r.State,
		Grade:                 r.Grade,
		TotalMUNs:             r.TotalMUNs,
		RequiresAccommodation: r.RequiresAccommodation,
		Preferences:           prefs,
		IDDocument:            r.IDDocument,
		Resume:                r.Resume,
		Status:                string(r.Status),
		AllocatedCommittee:    r.AllocatedCommittee,
		AllocatedPortfolio:    r.AllocatedPortfolio,
		SubmittedAt:           r.SubmittedAt,
		UpdatedAt:             r.UpdatedAt,
	}
}

// SubmissionResponse acknowledges a public registration.
type SubmissionResponse struct {
	ExternalID     string `json:"userId"`
	RegistrationID string `json:"registrationId"`
	Email          string `json:"email"`
	Status         string `json:"status"`
	IsNewAccount   bool   `json:"isNewAccount"`
}

// Pagination describes a listing page.
type Pagination struct {
	Page       int `json:"page"`
	Limit      int `json:"limit"`
	Total      int `json:"total"`
	TotalPages int `json:"totalPages"`
}

// NewPagination computes the page count.
func NewPagination(page, limit, total int) Pagination {
	pages := 0
	if limit > 0 {
		pages = (total + limit - 1) / limit
	}
	return Pagination{Page: page, Limit: limit, Total: total, TotalPages: pages}
}
