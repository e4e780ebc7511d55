package security

import "time"

// NewTestTokenProvider returns an ES256 TokenProvider over a freshly generated key.
// For tests only.
func NewTestTokenProvider() (*TokenProvider, error) {
	signer, err := GenerateSigningKey()
	if err != nil {
		return nil, err
	}
	return NewTokenProvider(signer, "test-issuer", "test-audience", 15*time.Minute, 24*time.Hour)
}
