// Package authtoken signs and verifies the short-lived handoff tokens this
// core issues when the session manager hands a session off to the
// external gateway (§1 scope boundary) — the only place this core touches
// authentication, since the gateway itself is out of scope.
//
// Grounded on the teacher's internal/auth.JWTService (jwt.go): an
// HS256-signed jwt.RegisteredClaims wrapper with a nil-secret "disabled"
// guard and an explicit signing-method check on verify. Generalized from
// the teacher's user-identity claims (email, name) to this core's
// session-identity claims (session_id, kind, agent_id).
package authtoken

import (
	"strings"
	"time"

	"github.com/golang-jwt/jwt/v5"

	"github.com/Najia-afk/aria-core/pkg/errs"
	"github.com/Najia-afk/aria-core/pkg/types"
)

// ErrDisabled is returned by Issue/Verify when no secret is configured.
var ErrDisabled = errs.Configuration("auth token signing is disabled: no secret configured")

// Service signs and verifies session handoff tokens.
type Service struct {
	secret []byte
	expiry time.Duration
}

// New builds a Service. An empty secret disables signing/verification
// (Issue and Verify both return ErrDisabled), matching the teacher's
// "auth is optional" posture for deployments that don't need a gateway
// handoff.
func New(secret string, expiry time.Duration) *Service {
	return &Service{secret: []byte(secret), expiry: expiry}
}

// Claims embeds the session identity handed to the gateway.
type Claims struct {
	SessionID string            `json:"session_id"`
	Kind      types.SessionKind `json:"kind"`
	AgentID   string            `json:"agent_id,omitempty"`
	jwt.RegisteredClaims
}

// Issue signs a handoff token for sess.
func (s *Service) Issue(sess *types.Session) (string, error) {
	if s == nil || len(s.secret) == 0 {
		return "", ErrDisabled
	}
	if sess == nil || strings.TrimSpace(sess.SessionID) == "" {
		return "", errs.Validation("session id is required to issue a handoff token")
	}

	claims := Claims{
		SessionID: sess.SessionID,
		Kind:      sess.Kind,
		AgentID:   sess.AgentID,
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:  sess.SessionID,
			IssuedAt: jwt.NewNumericDate(time.Now()),
		},
	}
	if s.expiry != 0 {
		claims.ExpiresAt = jwt.NewNumericDate(time.Now().Add(s.expiry))
	}

	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	return token.SignedString(s.secret)
}

// Verify parses and validates a handoff token, returning the embedded
// claims.
func (s *Service) Verify(token string) (*Claims, error) {
	if s == nil || len(s.secret) == 0 {
		return nil, ErrDisabled
	}

	parsed, err := jwt.ParseWithClaims(token, &Claims{}, func(t *jwt.Token) (any, error) {
		if _, ok := t.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, errs.Validation("unexpected signing method %v", t.Header["alg"])
		}
		return s.secret, nil
	})
	if err != nil {
		return nil, errs.Wrap(errs.KindValidation, "invalid handoff token", err)
	}

	claims, ok := parsed.Claims.(*Claims)
	if !ok || !parsed.Valid || strings.TrimSpace(claims.SessionID) == "" {
		return nil, errs.Validation("invalid handoff token")
	}
	return claims, nil
}
