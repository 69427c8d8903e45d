package domain

import "time"

// HandshakeTTL is the validity window of an OAuth handshake.
const HandshakeTTL = 15 * time.Minute

// OAuthState is an in-flight PKCE handshake.
type OAuthState struct {
	State          string    `json:"state"`
	CodeVerifier   string    `json:"codeVerifier"`
	CodeChallenge  string    `json:"codeChallenge"`
	ConversationID string    `json:"conversationId,omitempty"`
	Timestamp      time.Time `json:"timestamp"`
	ExpiresAt      time.Time `json:"expiresAt"`
}

// Expired reports whether the handshake can no longer be completed.
func (s OAuthState) Expired(now time.Time) bool {
	return now.After(s.ExpiresAt)
}

// HandshakeRecord is the state-indexed view of a handshake.
type HandshakeRecord struct {
	UserID string     `json:"userId"`
	State  OAuthState `json:"oauthState"`
}
