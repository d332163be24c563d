// Package token issues and verifies stream resume tokens: short-lived
// HMAC JWTs binding a client to its session group and patch stream, with
// nonce tracking so a captured token cannot be replayed.
package token

import (
	"crypto/rand"
	"encoding/hex"
	"fmt"
	"sync"
	"time"

	"github.com/golang-jwt/jwt/v5"
)

// Service signs and verifies resume tokens for one server process. The
// signing key is generated at startup and never leaves the process, so a
// restart invalidates all outstanding tokens, which is the desired
// behavior for resume tokens tied to in-memory sessions.
type Service struct {
	signingKey []byte
	algorithm  jwt.SigningMethod
	nonceStore *NonceStore
	config     *Config
	mu         sync.RWMutex
}

// Config defines Service behavior.
type Config struct {
	TTL         time.Duration // token lifetime, default 1 hour
	NonceWindow time.Duration // replay detection window, default 5 minutes
}

// DefaultConfig returns the default configuration.
func DefaultConfig() *Config {
	return &Config{
		TTL:         time.Hour,
		NonceWindow: 5 * time.Minute,
	}
}

// ResumeToken is the JWT payload binding a client to a session group and
// the patch stream it was watching.
type ResumeToken struct {
	GroupID  string `json:"group_id"`
	StreamID string `json:"stream_id"`
	Nonce    string `json:"nonce"`
	jwt.RegisteredClaims
}

// NonceStore tracks seen nonces in memory for replay protection.
type NonceStore struct {
	nonces map[string]time.Time
	mu     sync.RWMutex
}

// NewNonceStore creates an empty nonce store.
func NewNonceStore() *NonceStore {
	return &NonceStore{nonces: make(map[string]time.Time)}
}

// Add stores a nonce with the current timestamp.
func (ns *NonceStore) Add(nonce string) {
	ns.mu.Lock()
	defer ns.mu.Unlock()
	ns.nonces[nonce] = time.Now()
}

// Exists reports whether a nonce was seen within the window.
func (ns *NonceStore) Exists(nonce string, window time.Duration) bool {
	ns.mu.RLock()
	defer ns.mu.RUnlock()
	if timestamp, exists := ns.nonces[nonce]; exists {
		return time.Since(timestamp) < window
	}
	return false
}

// Cleanup removes nonces older than maxAge and returns how many.
func (ns *NonceStore) Cleanup(maxAge time.Duration) int {
	ns.mu.Lock()
	defer ns.mu.Unlock()
	count := 0
	cutoff := time.Now().Add(-maxAge)
	for nonce, timestamp := range ns.nonces {
		if timestamp.Before(cutoff) {
			delete(ns.nonces, nonce)
			count++
		}
	}
	return count
}

// New creates a Service with a freshly generated signing key.
func New(config *Config) (*Service, error) {
	if config == nil {
		config = DefaultConfig()
	}

	signingKey := make([]byte, 32)
	if _, err := rand.Read(signingKey); err != nil {
		return nil, fmt.Errorf("failed to generate signing key: %w", err)
	}

	return &Service{
		signingKey: signingKey,
		// Always HS256 to prevent algorithm confusion.
		algorithm:  jwt.SigningMethodHS256,
		nonceStore: NewNonceStore(),
		config:     config,
	}, nil
}

// Issue creates a resume token for a session group and stream.
func (s *Service) Issue(groupID, streamID string) (string, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	now := time.Now()
	nonce, err := generateNonce()
	if err != nil {
		return "", fmt.Errorf("failed to generate nonce: %w", err)
	}

	claims := &ResumeToken{
		GroupID:  groupID,
		StreamID: streamID,
		Nonce:    nonce,
		RegisteredClaims: jwt.RegisteredClaims{
			ExpiresAt: jwt.NewNumericDate(now.Add(s.config.TTL)),
			IssuedAt:  jwt.NewNumericDate(now),
			NotBefore: jwt.NewNumericDate(now),
			Issuer:    "livespec",
			Subject:   groupID,
		},
	}

	token := jwt.NewWithClaims(s.algorithm, claims)
	signed, err := token.SignedString(s.signingKey)
	if err != nil {
		return "", fmt.Errorf("failed to sign token: %w", err)
	}
	return signed, nil
}

// Verify validates a resume token and returns its claims. Each token
// verifies at most once within the nonce window: a second presentation is
// a replay and fails.
func (s *Service) Verify(tokenString string) (*ResumeToken, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	token, err := jwt.ParseWithClaims(tokenString, &ResumeToken{}, func(token *jwt.Token) (interface{}, error) {
		if token.Method != s.algorithm {
			return nil, fmt.Errorf("unexpected signing method: %v", token.Header["alg"])
		}
		return s.signingKey, nil
	})
	if err != nil {
		return nil, fmt.Errorf("failed to parse token: %w", err)
	}

	claims, ok := token.Claims.(*ResumeToken)
	if !ok || !token.Valid {
		return nil, fmt.Errorf("invalid token claims")
	}

	if s.nonceStore.Exists(claims.Nonce, s.config.NonceWindow) {
		return nil, fmt.Errorf("token replay detected")
	}
	s.nonceStore.Add(claims.Nonce)

	return claims, nil
}

// RotateSigningKey replaces the signing key, invalidating all
// outstanding tokens.
func (s *Service) RotateSigningKey() error {
	s.mu.Lock()
	defer s.mu.Unlock()

	newKey := make([]byte, 32)
	if _, err := rand.Read(newKey); err != nil {
		return fmt.Errorf("failed to generate new signing key: %w", err)
	}
	s.signingKey = newKey
	return nil
}

// CleanupExpiredNonces removes old nonces and returns how many. Nonces
// live twice the window so clock skew at the boundary never re-admits a
// replayed token.
func (s *Service) CleanupExpiredNonces() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.nonceStore.Cleanup(s.config.NonceWindow * 2)
}

func generateNonce() (string, error) {
	bytes := make([]byte, 16)
	if _, err := rand.Read(bytes); err != nil {
		return "", err
	}
	return hex.EncodeToString(bytes), nil
}
