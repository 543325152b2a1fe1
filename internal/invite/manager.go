package invite

import (
	"errors"
	"fmt"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"
)

var (
	ErrLinkExpired = errors.New("invite: link expired")
	ErrLinkInvalid = errors.New("invite: link invalid")
)

const issuer = "voiceref"

// Manager issues and verifies signed candidate/reference links.
type Manager struct {
	secret []byte
	ttl    time.Duration
}

func NewManager(secret string, ttl time.Duration) (*Manager, error) {
	if secret == "" {
		return nil, errors.New("INVITE_SECRET is required")
	}
	if ttl <= 0 {
		ttl = 14 * 24 * time.Hour
	}
	return &Manager{secret: []byte(secret), ttl: ttl}, nil
}

func (m *Manager) TTL() time.Duration { return m.ttl }

// Issue signs a link token for subjectID valid from now for the configured TTL.
func (m *Manager) Issue(now time.Time, kind Kind, subjectID string) (string, error) {
	if subjectID == "" {
		return "", errors.New("invite: subject id is required")
	}
	claims := Claims{
		RegisteredClaims: jwt.RegisteredClaims{
			Issuer:    issuer,
			Subject:   subjectID,
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(now.Add(m.ttl)),
			ID:        uuid.NewString(),
		},
		Kind: kind,
	}
	return jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString(m.secret)
}

// Verify checks signature, expiry at now and kind. It returns the subject id.
func (m *Manager) Verify(token string, expected Kind, now time.Time) (string, error) {
	var claims Claims

	// Time-based claims are validated below against the injected clock.
	parser := jwt.NewParser(
		jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}),
		jwt.WithoutClaimsValidation(),
	)
	if _, err := parser.ParseWithClaims(token, &claims, func(t *jwt.Token) (any, error) {
		return m.secret, nil
	}); err != nil {
		return "", fmt.Errorf("%w: %v", ErrLinkInvalid, err)
	}

	validator := jwt.NewValidator(
		jwt.WithTimeFunc(func() time.Time { return now }),
		jwt.WithLeeway(30*time.Second),
		jwt.WithIssuedAt(),
		jwt.WithExpirationRequired(),
		jwt.WithIssuer(issuer),
	)
	if err := validator.Validate(claims.RegisteredClaims); err != nil {
		if errors.Is(err, jwt.ErrTokenExpired) {
			return "", ErrLinkExpired
		}
		return "", fmt.Errorf("%w: %v", ErrLinkInvalid, err)
	}

	if claims.Kind != expected {
		return "", fmt.Errorf("%w: kind mismatch", ErrLinkInvalid)
	}
	if claims.Subject == "" {
		return "", fmt.Errorf("%w: subject missing", ErrLinkInvalid)
	}
	return claims.Subject, nil
}
