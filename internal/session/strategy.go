package session

import (
	"context"
	"strings"

	"reelup/internal/services"
)

// TokenPair is the identity a successful login yields.
type TokenPair struct {
	UserID string
	Token  string
}

func (p TokenPair) valid() bool {
	return strings.TrimSpace(p.UserID) != "" && strings.TrimSpace(p.Token) != ""
}

// Credentials are the plain values a credentials prompt produces. Password
// is ignored by the delegated strategy.
type Credentials struct {
	Email    string
	Password string
}

// LoginStrategy authenticates one set of credentials.
type LoginStrategy interface {
	Login(ctx context.Context, creds Credentials) (TokenPair, error)
}

// PasswordAuthenticator is the service call behind PasswordLogin.
type PasswordAuthenticator interface {
	Login(ctx context.Context, email, password string) (string, string, error)
}

// PasswordLogin performs a single email/password exchange.
type PasswordLogin struct {
	auth PasswordAuthenticator
}

// NewPasswordLogin wraps the service's password endpoint.
func NewPasswordLogin(auth PasswordAuthenticator) *PasswordLogin {
	return &PasswordLogin{auth: auth}
}

func (p *PasswordLogin) Login(ctx context.Context, creds Credentials) (TokenPair, error) {
	if creds.Password == "" {
		return TokenPair{}, services.Wrap(services.ErrInvalidCredentials, "session", "password login", "password required", nil)
	}
	userID, token, err := p.auth.Login(ctx, strings.TrimSpace(creds.Email), creds.Password)
	if err != nil {
		return TokenPair{}, err
	}
	return TokenPair{UserID: userID, Token: token}, nil
}

var _ LoginStrategy = (*PasswordLogin)(nil)
