package auth

import (
	"crypto/rand"
	"encoding/hex"
	"fmt"

	"golang.org/x/oauth2"
)

const stateBytes = 32

// PKCEPair is a code verifier and its S256 challenge.
type PKCEPair struct {
	Verifier  string
	Challenge string
}

// NewPKCEPair generates a 32-byte base64url verifier and its S256 challenge.
func NewPKCEPair() PKCEPair {
	verifier := oauth2.GenerateVerifier()
	return PKCEPair{Verifier: verifier, Challenge: oauth2.S256ChallengeFromVerifier(verifier)}
}

// NewStateToken returns an unguessable hex-encoded 32-byte token.
func NewStateToken() (string, error) {
	buf := make([]byte, stateBytes)
	if _, err := rand.Read(buf); err != nil {
		return "", fmt.Errorf("generate state: %w", err)
	}
	return hex.EncodeToString(buf), nil
}
