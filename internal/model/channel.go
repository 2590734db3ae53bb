package model

import "time"

// Channel is an externally owned connection to one platform account. The
// pipeline reads credentials and metadata; it never mutates a channel
// beyond reporting an expired token upward.
type Channel struct {
	ID           string            `json:"id"`
	Platform     string            `json:"platform"`
	AccessToken  string            `json:"accessToken"`
	RefreshToken string            `json:"refreshToken,omitempty"`
	TokenExpiry  *time.Time        `json:"tokenExpiry,omitempty"`
	Metadata     map[string]string `json:"metadata,omitempty"`
}

// Meta returns a metadata value such as an account, page or organization id.
func (c *Channel) Meta(key string) string {
	if c.Metadata == nil {
		return ""
	}
	return c.Metadata[key]
}
