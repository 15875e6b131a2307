package domain

import "time"

// Committee is a simulated body delegates can be allocated to.
type Committee struct {
	ID              string
	Name            string
	Description     string
	Type            string
	InstitutionType string
	Capacity        int
	Logo            *string
	IsActive        bool
	Portfolios      []Portfolio
	CreatedAt       time.Time
	UpdatedAt       time.Time
}

// Portfolio is a seat within a committee.
type Portfolio struct {
	ID          string
	CommitteeID string
	Name        string
	IsAvailable bool
	CreatedAt   time.Time
}
