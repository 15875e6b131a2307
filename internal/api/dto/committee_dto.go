package dto

import (
	"time"

	"github.com/kmun/registration-service/internal/domain"
)

// PortfolioResponse is a committee seat.
type PortfolioResponse struct {
	ID          string `json:"id"`
	Name        string `json:"name"`
	IsAvailable bool   `json:"isAvailable"`
}

// CommitteeResponse is the public view of a committee.
type CommitteeResponse struct {
	ID              string              `json:"id"`
	Name            string              `json:"name"`
	Description     string              `json:"description,omitempty"`
	Type            string              `json:"type"`
	InstitutionType string              `json:"institutionType,omitempty"`
	Capacity        int                 `json:"capacity"`
	Logo            *string             `json:"logo,omitempty"`
	IsActive        bool                `json:"isActive"`
	Portfolios      []PortfolioResponse `json:"portfolios"`
	CreatedAt       time.Time           `json:"createdAt"`
	UpdatedAt       time.Time           `json:"updatedAt"`
}

// NewCommitteeResponse maps a domain committee.
func NewCommitteeResponse(c *domain.Committee) CommitteeResponse {
	portfolios := make([]PortfolioResponse, 0, len(c.Portfolios))
	for _, p := range c.Portfolios {
		portfolios = append(portfolios, PortfolioResponse{ID: p.ID, Name: p.Name, IsAvailable: p.IsAvailable})
	}
	return CommitteeResponse{
		ID:              c.ID,
		Name:            c.Name,
		Description:     c.Description,
		Type:            c.Type,
		InstitutionType: c.InstitutionType,
		Capacity:        c.Capacity,
		Logo:            c.Logo,
		IsActive:        c.IsActive,
		Portfolios:      portfolios,
		CreatedAt:       c.CreatedAt,
		UpdatedAt:       c.UpdatedAt,
	}
}
