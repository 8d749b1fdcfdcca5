// Package identity tracks the effective acting identity. A teacher can
// switch onto an owned student; the switch is carried in a signed,
// short-lived client-side token. The token only names which user to act
// as; it is never proof of authorization. Ownership is checked once at
// switch time, and every later action still runs through the access
// evaluator under the active identity.
package identity

import (
	"fmt"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"go.uber.org/zap"
)

// HomePath is where clients are sent after a switch so that every
// identity-dependent view is rebuilt from scratch.
const HomePath = "/"

// Carrier abstracts the client-side token slot (a cookie in production).
type Carrier interface {
	Token() string
	SetToken(value string, ttl time.Duration)
	ClearToken()
}

// SwitchResult tells the caller what happened and where to send the client.
type SwitchResult struct {
	ActiveID string `json:"active_user_id"`
	Cleared  bool   `json:"cleared"`
	Redirect string `json:"redirect"`
}

// Resolver derives the effective acting identity from the carrier token and
// issues or clears that token on switches.
type Resolver struct {
	signer *TokenSigner
	ttl    time.Duration
	logger *zap.Logger
}

// NewResolver constructs a resolver. TTL defaults to one hour.
func NewResolver(signer *TokenSigner, ttl time.Duration, logger *zap.Logger) *Resolver {
	if ttl <= 0 {
		ttl = time.Hour
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Resolver{signer: signer, ttl: ttl, logger: logger}
}

// Active returns the effective acting identity for the request: the user
// named by a well-formed token, otherwise the actor. Ownership is not
// re-validated here; that happens wherever the identity is used.
func (r *Resolver) Active(carrier Carrier, actorID string) string {
	raw := carrier.Token()
	if raw == "" {
		return actorID
	}
	id, err := r.signer.Parse(raw)
	if err != nil || id == "" {
		r.logger.Debug("identity token rejected", zap.Error(err))
		return actorID
	}
	return id
}

// Switch updates the carrier token. Switching to the actor themselves
// clears the token; any other target (ownership already verified by the
// caller) gets a fresh token with a full TTL. Both paths redirect to the
// home view to force identity-dependent state to reload.
func (r *Resolver) Switch(carrier Carrier, actorID, targetID string) (SwitchResult, error) {
	if targetID == actorID {
		carrier.ClearToken()
		return SwitchResult{ActiveID: actorID, Cleared: true, Redirect: HomePath}, nil
	}

	token, err := r.signer.Issue(targetID, r.ttl)
	if err != nil {
		return SwitchResult{}, fmt.Errorf("issue identity token: %w", err)
	}
	carrier.SetToken(token, r.ttl)
	return SwitchResult{ActiveID: targetID, Redirect: HomePath}, nil
}

// TokenSigner issues and validates the switch token as an HS256 JWT whose
// subject is the target user id.
type TokenSigner struct {
	secret []byte
	now    func() time.Time
}

// NewTokenSigner constructs a signer with the provided secret.
func NewTokenSigner(secret string) *TokenSigner {
	return &TokenSigner{secret: []byte(secret), now: time.Now}
}

// Issue returns a signed token naming userID, valid for ttl.
func (s *TokenSigner) Issue(userID string, ttl time.Duration) (string, error) {
	if userID == "" {
		return "", fmt.Errorf("user id required")
	}
	if len(s.secret) == 0 {
		return "", fmt.Errorf("signing secret missing")
	}
	issuedAt := s.now().UTC()
	claims := jwt.RegisteredClaims{
		Subject:   userID,
		IssuedAt:  jwt.NewNumericDate(issuedAt),
		NotBefore: jwt.NewNumericDate(issuedAt),
		ExpiresAt: jwt.NewNumericDate(issuedAt.Add(ttl)),
	}
	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	return token.SignedString(s.secret)
}

// Parse validates the token and returns the user id it names.
func (s *TokenSigner) Parse(raw string) (string, error) {
	token, err := jwt.ParseWithClaims(raw, &jwt.RegisteredClaims{}, func(token *jwt.Token) (interface{}, error) {
		if token.Method != jwt.SigningMethodHS256 {
			return nil, fmt.Errorf("unexpected signing method: %v", token.Header["alg"])
		}
		return s.secret, nil
	}, jwt.WithTimeFunc(func() time.Time { return s.now() }))
	if err != nil {
		return "", fmt.Errorf("parse identity token: %w", err)
	}
	claims, ok := token.Claims.(*jwt.RegisteredClaims)
	if !ok || !token.Valid {
		return "", fmt.Errorf("invalid identity token claims")
	}
	return claims.Subject, nil
}
