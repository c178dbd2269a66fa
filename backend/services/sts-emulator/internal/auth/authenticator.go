package auth

import (
	"crypto/subtle"
	"errors"
	"fmt"
)

// ErrInvalidCredentials is returned for a wrong username or password.
var ErrInvalidCredentials = errors.New("auth: invalid credentials")

// Authenticator checks the single control account and issues tokens for it. Only the
// bcrypt hash of the password is kept.
type Authenticator struct {
	username string
	hash     string
	hasher   Hasher
	tokens   *TokenService
}

// NewAuthenticator hashes password once and returns the authenticator.
func NewAuthenticator(username, password string, hasher Hasher, tokens *TokenService) (*Authenticator, error) {
	if username == "" {
		return nil, errors.New("auth: control username is required")
	}
	hash, err := hasher.Hash(password)
	if err != nil {
		return nil, fmt.Errorf("auth: hash control password: %w", err)
	}
	return &Authenticator{username: username, hash: hash, hasher: hasher, tokens: tokens}, nil
}

// Login returns a token when username and password match the control account.
func (a *Authenticator) Login(username, password string) (string, error) {
	userOK := subtle.ConstantTimeCompare([]byte(username), []byte(a.username)) == 1
	passErr := a.hasher.Compare(a.hash, password)
	if !userOK || passErr != nil {
		return "", ErrInvalidCredentials
	}
	return a.tokens.GenerateToken(a.username, RoleOperator)
}

// Tokens returns the token service used to validate issued tokens.
func (a *Authenticator) Tokens() *TokenService {
	return a.tokens
}
