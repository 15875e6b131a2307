package domain

import "time"

// NotificationKind selects the template used for delivery.
type NotificationKind string

const (
	NotificationCredentialDisclosure NotificationKind = "credential_disclosure"
	NotificationRegistrationReceived NotificationKind = "registration_received"
	NotificationCommitteeAllocated   NotificationKind = "committee_allocated"
	NotificationWelcome              NotificationKind = "welcome"
	NotificationBulk                 NotificationKind = "bulk"
)

// Notification is a pending outbound message, emitted as data and delivered later.
type Notification struct {
	ID        string            `json:"id"`
	Kind      NotificationKind  `json:"kind"`
	To        string            `json:"to"`
	Provider  string            `json:"provider,omitempty"`
	Data      map[string]string `json:"data"`
	Attempts  int               `json:"attempts"`
	CreatedAt time.Time         `json:"created_at"`
	// NotBefore holds a retry back until the given time.
	NotBefore time.Time `json:"not_before"`
	// Sealed carries encrypted Data entries while the notification is queued.
	Sealed map[string]string `json:"sealed,omitempty"`
}

// Due reports whether n may be delivered at now.
func (n Notification) Due(now time.Time) bool {
	return !now.Before(n.NotBefore)
}
