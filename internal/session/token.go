// Package session issues the signed tokens that bind a browser to its study
// session on the server.
package session

import (
	"errors"
	"fmt"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"
)

const issuer = "mindengage-study"

var ErrInvalidToken = errors.New("invalid session token")

type Claims struct {
	SessionID string `json:"sid"`
	Subject   string `json:"subj"` // study subject the session works on
	jwt.RegisteredClaims
}

type Issuer struct {
	hmac []byte
	ttl  time.Duration
	now  func() time.Time
}

func NewIssuer(secret string, ttl time.Duration) *Issuer {
	if ttl <= 0 {
		ttl = 12 * time.Hour
	}
	return &Issuer{hmac: []byte(secret), ttl: ttl, now: time.Now}
}

// Issue starts a new session for subject and returns its id and token.
func (s *Issuer) Issue(subject string) (string, string, error) {
	sid := uuid.NewString()
	now := s.now()
	claims := &Claims{
		SessionID: sid,
		Subject:   subject,
		RegisteredClaims: jwt.RegisteredClaims{
			Issuer:    issuer,
			ID:        sid,
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(now.Add(s.ttl)),
		},
	}
	tok, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString(s.hmac)
	if err != nil {
		return "", "", fmt.Errorf("sign session token: %w", err)
	}
	return sid, tok, nil
}

func (s *Issuer) Parse(tokenStr string) (*Claims, error) {
	token, err := jwt.ParseWithClaims(tokenStr, &Claims{}, func(t *jwt.Token) (interface{}, error) {
		return s.hmac, nil
	},
		jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}),
		jwt.WithIssuer(issuer),
		jwt.WithExpirationRequired(),
		jwt.WithTimeFunc(s.now),
	)
	if err != nil || !token.Valid {
		return nil, fmt.Errorf("%w: %v", ErrInvalidToken, err)
	}
	c, _ := token.Claims.(*Claims)
	if c == nil || c.SessionID == "" {
		return nil, ErrInvalidToken
	}
	return c, nil
}
