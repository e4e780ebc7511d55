package security

import (
	"crypto"
	"crypto/rand"
	"encoding/hex"
	"errors"
	"time"

	"github.com/golang-jwt/jwt/v5"
)

var (
	// ErrInvalidToken is returned when a token is malformed, expired, of the wrong kind or
	// issued for another issuer or audience.
	ErrInvalidToken = errors.New("invalid token")
)

const (
	kindAccess  = "access"
	kindRefresh = "refresh"
)

// CustomerClaims are the claims on both token kinds. Family groups the refresh tokens of one
// login so reuse of a rotated token can revoke them all.
type CustomerClaims struct {
	jwt.RegisteredClaims
	Kind   string `json:"typ"`
	Family string `json:"fam,omitempty"`
}

// TokenProvider issues and validates customer JWTs signed with RS256 or ES256.
type TokenProvider struct {
	signer     crypto.Signer
	method     jwt.SigningMethod
	issuer     string
	audience   string
	accessTTL  time.Duration
	refreshTTL time.Duration
	now        func() time.Time
}

// NewTokenProvider returns a TokenProvider signing with signer. The algorithm follows the key type.
func NewTokenProvider(signer crypto.Signer, issuer, audience string, accessTTL, refreshTTL time.Duration) (*TokenProvider, error) {
	var method jwt.SigningMethod
	switch KeyAlg(signer.Public()) {
	case "RS256":
		method = jwt.SigningMethodRS256
	case "ES256":
		method = jwt.SigningMethodES256
	default:
		return nil, ErrInvalidKey
	}
	return &TokenProvider{
		signer:     signer,
		method:     method,
		issuer:     issuer,
		audience:   audience,
		accessTTL:  accessTTL,
		refreshTTL: refreshTTL,
		now:        time.Now,
	}, nil
}

// Alg returns the JWS algorithm in use.
func (p *TokenProvider) Alg() string { return p.method.Alg() }

// IssueAccess issues a short-lived access token for the customer.
func (p *TokenProvider) IssueAccess(customerID string) (token string, expiresAt time.Time, err error) {
	token, _, expiresAt, err = p.issue(customerID, kindAccess, "", p.accessTTL)
	return token, expiresAt, err
}

// IssueRefresh issues a refresh token in family and returns its jti for rotation tracking.
func (p *TokenProvider) IssueRefresh(customerID, family string) (token, jti string, expiresAt time.Time, err error) {
	return p.issue(customerID, kindRefresh, family, p.refreshTTL)
}

func (p *TokenProvider) issue(subject, kind, family string, ttl time.Duration) (string, string, time.Time, error) {
	jti, err := generateJTI()
	if err != nil {
		return "", "", time.Time{}, err
	}
	now := p.now().UTC()
	expiresAt := now.Add(ttl)
	claims := CustomerClaims{
		RegisteredClaims: jwt.RegisteredClaims{
			ID:        jti,
			Subject:   subject,
			Issuer:    p.issuer,
			Audience:  jwt.ClaimStrings{p.audience},
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(expiresAt),
		},
		Kind:   kind,
		Family: family,
	}
	token, err := jwt.NewWithClaims(p.method, claims).SignedString(p.signer)
	if err != nil {
		return "", "", time.Time{}, err
	}
	return token, jti, expiresAt, nil
}

// ValidateAccess checks an access token and returns the customer ID.
func (p *TokenProvider) ValidateAccess(token string) (customerID string, err error) {
	c, err := p.parse(token, kindAccess)
	if err != nil {
		return "", err
	}
	return c.Subject, nil
}

// ValidateRefresh checks a refresh token and returns the customer ID, family and jti.
func (p *TokenProvider) ValidateRefresh(token string) (customerID, family, jti string, err error) {
	c, err := p.parse(token, kindRefresh)
	if err != nil {
		return "", "", "", err
	}
	return c.Subject, c.Family, c.ID, nil
}

func (p *TokenProvider) parse(token, kind string) (*CustomerClaims, error) {
	parser := jwt.NewParser(
		jwt.WithValidMethods([]string{p.method.Alg()}),
		jwt.WithIssuer(p.issuer),
		jwt.WithAudience(p.audience),
		jwt.WithExpirationRequired(),
		jwt.WithTimeFunc(p.now),
	)
	var claims CustomerClaims
	parsed, err := parser.ParseWithClaims(token, &claims, func(*jwt.Token) (interface{}, error) {
		return p.signer.Public(), nil
	})
	if err != nil || !parsed.Valid || claims.Kind != kind || claims.Subject == "" {
		return nil, ErrInvalidToken
	}
	return &claims, nil
}

func generateJTI() (string, error) {
	b := make([]byte, 16)
	if _, err := rand.Read(b); err != nil {
		return "", err
	}
	return hex.EncodeToString(b), nil
}
