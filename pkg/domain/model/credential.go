package model

import "time"

// Credential is the destination OAuth token pair
type Credential struct {
	AccessToken  string    `json:"access_token" firestore:"access_token"`
	RefreshToken string    `json:"refresh_token" firestore:"refresh_token"`
	UpdatedAt    time.Time `json:"updated_at" firestore:"updated_at"`
}

// IsValid checks that both tokens are present
func (c *Credential) IsValid() bool {
	return c != nil && c.AccessToken != "" && c.RefreshToken != ""
}
