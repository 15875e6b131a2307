package domain

import "time"

// RegistrationStatus represents the review state of a submission.
type RegistrationStatus string

const (
	RegistrationStatusPending   RegistrationStatus = "PENDING"
	RegistrationStatusConfirmed RegistrationStatus = "CONFIRMED"
	RegistrationStatusRejected  RegistrationStatus = "REJECTED"
)

// Valid reports whether s is a known status.
func (s RegistrationStatus) Valid() bool {
	switch s {
	case RegistrationStatusPending, RegistrationStatusConfirmed, RegistrationStatusRejected:
		return true
	}
	return false
}

// MaxPreferences is the number of ranked committee choices a submission holds.
const MaxPreferences = 3

// Preference pairs a committee choice with a portfolio choice.
type Preference struct {
	Committee string `json:"committee"`
	Portfolio string `json:"portfolio,omitempty"`
}

// Registration is the single current submission owned by an account.
type Registration struct {
	ID                    string
	AccountID             string
	FirstName             string
	LastName              string
	Email                 string
	Phone                 string
	Gender                string
	IsKumaraguru          bool
	RollNumber            string
	InstitutionType       string
	Institution           string
	City                  string
	State                 string
	Grade                 string
	TotalMUNs             int
	RequiresAccommodation bool
	Preferences           [MaxPreferences]Preference
	IDDocument            string
	Resume                *string
	Status                RegistrationStatus
	AllocatedCommittee    *string
	AllocatedPortfolio    *string
	SubmittedAt           time.Time
	UpdatedAt             time.Time
}

// IsAllocated reports whether a committee and portfolio have been assigned.
func (r *Registration) IsAllocated() bool {
	return r.AllocatedCommittee != nil && r.AllocatedPortfolio != nil
}

// PrefersCommittee reports whether committee appears in any preference slot.
func (r *Registration) PrefersCommittee(committee string) bool {
	for _, p := range r.Preferences {
		if p.Committee != "" && p.Committee == committee {
			return true
		}
	}
	return false
}
