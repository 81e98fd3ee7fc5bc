package models

import "time"

// OtpChallenge is one pending second-factor verification issued after a
// successful password check. Email and Username are captured at creation so
// resends never re-read the user store mid-flow. Code and ExpiresAt are
// replaced and Attempts is reset whenever the code is regenerated.
type OtpChallenge struct {
	ChallengeID string    `json:"challenge_id"`
	UserID      string    `json:"user_id"`
	Username    string    `json:"username"`
	Email       string    `json:"email"`
	Code        string    `json:"code"`
	ExpiresAt   time.Time `json:"expires_at"`
	Attempts    int       `json:"attempts"`
}
