package notify

import "time"

const KindPasswordReset = "password_reset"

// PasswordReset is the payload consumed by the mailer for reset links.
type PasswordReset struct {
	To        string    `json:"to"`
	FirstName string    `json:"first_name,omitempty"`
	Subject   string    `json:"subject"`
	ResetURL  string    `json:"reset_url"`
	SiteName  string    `json:"site_name"`
	ExpiresAt time.Time `json:"expires_at"`
}
