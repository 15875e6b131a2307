package dto

// TestEmailRequest payload for POST /api/mailer/test.
type TestEmailRequest struct {
	Email    string `json:"email"`
	Subject  string `json:"subject"`
	Message  string `json:"message"`
	Provider string `json:"provider"`
}
