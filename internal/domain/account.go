package domain

import "time"

// Role enumerates account roles.
type Role string

const (
	RoleParticipant       Role = "PARTICIPANT"
	RoleDelegate          Role = "DELEGATE"
	RoleDevAdmin          Role = "DEV_ADMIN"
	RoleSoftwareAdmin     Role = "SOFTWARE_ADMIN"
	RoleDelegateAffairs   Role = "DELEGATE_AFFAIRS"
	RoleFrontDeskAdmin    Role = "FRONT_DESK_ADMIN"
	RoleCommitteeDirector Role = "COMMITTEE_DIRECTOR"
	RoleHospitalityAdmin  Role = "HOSPITALITY_ADMIN"
)

var knownRoles = map[Role]struct{}{
	RoleParticipant:       {},
	RoleDelegate:          {},
	RoleDevAdmin:          {},
	RoleSoftwareAdmin:     {},
	RoleDelegateAffairs:   {},
	RoleFrontDeskAdmin:    {},
	RoleCommitteeDirector: {},
	RoleHospitalityAdmin:  {},
}

// Valid reports whether r is a known role.
func (r Role) Valid() bool {
	_, ok := knownRoles[r]
	return ok
}

// Account is a participant or staff identity.
type Account struct {
	ID           string
	ExternalID   string
	FirstName    string
	LastName     string
	Email        string
	Phone        string
	Institution  string
	Grade        string
	PasswordHash string
	Role         Role
	Active       bool
	LastLoginAt  *time.Time
	CreatedAt    time.Time
	UpdatedAt    time.Time
}

// FullName joins first and last name.
func (a *Account) FullName() string {
	if a.LastName == "" {
		return a.FirstName
	}
	return a.FirstName + " " + a.LastName
}
