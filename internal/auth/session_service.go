package auth

import (
	"errors"
	"fmt"
	"time"

	"github.com/golang-jwt/jwt/v5"

	apperrors "github.com/verygoodsaas/backoffice/pkg/errors"
	"github.com/verygoodsaas/backoffice/pkg/metrics"
)

// DefaultSessionTTL is applied when no session TTL is configured.
const DefaultSessionTTL = 24 * time.Hour

const defaultIssuer = "backoffice"

// SessionConfig contains the settings required to mint and verify session tokens.
type SessionConfig struct {
	Secret string
	Issuer string
	TTL    time.Duration
}

// SessionClaims is the payload carried inside a session token.
type SessionClaims struct {
	UserID       string `json:"uid"`
	ActiveTeamID string `json:"tid,omitempty"`
	jwt.RegisteredClaims
}

// Session is the verified, decoded form of a session token handed to callers.
type Session struct {
	UserID       string
	ActiveTeamID string
	ExpiresAt    time.Time
}

// SessionService mints, verifies and rotates signed session tokens.
type SessionService struct {
	secret []byte
	issuer string
	ttl    time.Duration
	parser *jwt.Parser

	// Clock is injectable for tests.
	Clock func() time.Time
}

// NewSessionService validates the configuration and returns a ready service.
func NewSessionService(cfg SessionConfig) (*SessionService, error) {
	if cfg.Secret == "" {
		return nil, errors.New("session secret is required")
	}

	ttl := cfg.TTL
	if ttl <= 0 {
		ttl = DefaultSessionTTL
	}

	issuer := cfg.Issuer
	if issuer == "" {
		issuer = defaultIssuer
	}

	svc := &SessionService{
		secret: []byte(cfg.Secret),
		issuer: issuer,
		ttl:    ttl,
		Clock:  time.Now,
	}

	svc.parser = jwt.NewParser(
		jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}),
		jwt.WithIssuer(issuer),
		jwt.WithTimeFunc(func() time.Time { return svc.now() }),
	)

	return svc, nil
}

// TTL reports the configured session lifetime.
func (s *SessionService) TTL() time.Duration {
	return s.ttl
}

// Issue mints a session token for the given user. An empty activeTeamID is
// omitted from the payload entirely.
func (s *SessionService) Issue(userID, activeTeamID string) (string, error) {
	if userID == "" {
		return "", errors.New("user id is required")
	}

	now := s.now()
	claims := SessionClaims{
		UserID:       userID,
		ActiveTeamID: activeTeamID,
		RegisteredClaims: jwt.RegisteredClaims{
			Issuer:    s.issuer,
			Subject:   userID,
			IssuedAt:  jwt.NewNumericDate(now),
			NotBefore: jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(now.Add(s.ttl)),
		},
	}

	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	signed, err := token.SignedString(s.secret)
	if err != nil {
		return "", fmt.Errorf("sign session token: %w", err)
	}

	return signed, nil
}

// Verify checks the token signature and expiry and returns the decoded
// session. Every failure mode, including expiry, malformed input and a bad
// signature, collapses into ErrUnauthorized.
func (s *SessionService) Verify(tokenString string) (*Session, error) {
	if tokenString == "" {
		metrics.AuthAttempts.WithLabelValues("missing").Inc()
		return nil, apperrors.ErrUnauthorized
	}

	claims := &SessionClaims{}
	token, err := s.parser.ParseWithClaims(tokenString, claims, func(token *jwt.Token) (interface{}, error) {
		return s.secret, nil
	})
	if err != nil || !token.Valid {
		metrics.AuthAttempts.WithLabelValues("invalid").Inc()
		return nil, apperrors.ErrUnauthorized
	}

	if claims.UserID == "" {
		metrics.AuthAttempts.WithLabelValues("invalid").Inc()
		return nil, apperrors.ErrUnauthorized
	}

	session := &Session{
		UserID:       claims.UserID,
		ActiveTeamID: claims.ActiveTeamID,
	}
	if claims.ExpiresAt != nil {
		session.ExpiresAt = claims.ExpiresAt.Time
	}

	metrics.AuthAttempts.WithLabelValues("ok").Inc()
	return session, nil
}

// Refresh re-issues a token for the same user with a fresh expiry, keeping the
// active team selection intact.
func (s *SessionService) Refresh(tokenString string) (string, error) {
	session, err := s.Verify(tokenString)
	if err != nil {
		return "", err
	}
	return s.Issue(session.UserID, session.ActiveTeamID)
}

// SwitchActiveTeam re-issues the session with a different active team. The
// caller is responsible for authorising the switch first.
func (s *SessionService) SwitchActiveTeam(tokenString, teamID string) (string, error) {
	session, err := s.Verify(tokenString)
	if err != nil {
		return "", err
	}
	return s.Issue(session.UserID, teamID)
}

func (s *SessionService) now() time.Time {
	if s.Clock != nil {
		return s.Clock()
	}
	return time.Now()
}
