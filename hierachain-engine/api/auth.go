package api

import (
	"crypto/rand"
	"crypto/subtle"
	"encoding/hex"
	"encoding/json"
	"errors"
	"fmt"
	"sync"

	"github.com/rs/zerolog"
)

// Authentication errors
var (
	ErrAuthRequired      = errors.New("authentication required")
	ErrAuthFailed        = errors.New("authentication failed")
	ErrAuthTokenInvalid  = errors.New("invalid auth token format")
	ErrAuthTokenMismatch = errors.New("auth token mismatch")
)

// AuthMessageType is the Type of an authentication handshake.
const AuthMessageType = "auth"

// AuthConfig holds authentication configuration.
type AuthConfig struct {
	// Enabled determines if authentication is required
	Enabled bool `mapstructure:"enabled"`
	// Token is the secret token that clients must provide
	Token string `mapstructure:"token"`
}

// Authenticator handles connection authentication.
type Authenticator struct {
	config AuthConfig
	mu     sync.RWMutex
}

// NewAuthenticator creates a new Authenticator with the given config.
// If auth is enabled without a token, a random one is generated and logged
// once so an operator can hand it to clients.
func NewAuthenticator(config AuthConfig, logger zerolog.Logger) *Authenticator {
	if config.Enabled && config.Token == "" {
		config.Token = GenerateToken()
		logger.Warn().Str("token", config.Token).Msg("auth enabled without token, generated one")
	}
	return &Authenticator{config: config}
}

// IsEnabled returns true if authentication is enabled.
func (a *Authenticator) IsEnabled() bool {
	a.mu.RLock()
	defer a.mu.RUnlock()
	return a.config.Enabled
}

// GetToken returns the current auth token (for displaying to admin).
func (a *Authenticator) GetToken() string {
	a.mu.RLock()
	defer a.mu.RUnlock()
	return a.config.Token
}

// ValidateToken checks if the provided token matches the configured token.
// Uses constant-time comparison.
func (a *Authenticator) ValidateToken(providedToken string) error {
	a.mu.RLock()
	defer a.mu.RUnlock()

	if !a.config.Enabled {
		return nil
	}

	if providedToken == "" {
		return ErrAuthRequired
	}

	if subtle.ConstantTimeCompare([]byte(a.config.Token), []byte(providedToken)) != 1 {
		return ErrAuthTokenMismatch
	}

	return nil
}

// Handshake validates a raw handshake frame and returns the encoded
// AuthResponse to send back. The error is non-nil when the client must be
// disconnected.
func (a *Authenticator) Handshake(frame []byte) ([]byte, error) {
	var msg AuthMessage
	err := json.Unmarshal(frame, &msg)
	switch {
	case err != nil:
		err = fmt.Errorf("%w: %v", ErrAuthTokenInvalid, err)
	case msg.Type != AuthMessageType:
		err = fmt.Errorf("%w: first frame must be %q", ErrAuthRequired, AuthMessageType)
	default:
		err = a.ValidateToken(msg.Token)
	}

	resp := AuthResponse{Success: err == nil}
	if err != nil {
		resp.Error = ErrAuthFailed.Error()
	}
	out, mErr := json.Marshal(resp)
	if mErr != nil {
		return nil, mErr
	}
	return out, err
}

// GenerateToken generates a cryptographically secure random token.
func GenerateToken() string {
	bytes := make([]byte, 32) // 256 bits
	if _, err := rand.Read(bytes); err != nil {
		return "hierachain-default-token-change-me"
	}
	return hex.EncodeToString(bytes)
}

// AuthMessage represents an authentication handshake message.
// This is the first message a client must send when auth is enabled.
type AuthMessage struct {
	Type  string `json:"type"`  // Must be "auth"
	Token string `json:"token"` // The authentication token
}

// AuthResponse is sent back to the client after auth attempt.
type AuthResponse struct {
	Success bool   `json:"success"`
	Error   string `json:"error,omitempty"`
}
