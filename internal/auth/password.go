package auth

import (
	"context"
	"errors"

	"golang.org/x/crypto/bcrypt"
)

// DefaultBcryptCost is used when no cost is configured.
const DefaultBcryptCost = 12

// ErrAccountNotFound is returned by an AccountFinder for unknown usernames.
var ErrAccountNotFound = errors.New("account not found")

// Account is a stored user with its password hash.
type Account struct {
	UserID       string
	Username     string
	PasswordHash string
}

// AccountFinder looks accounts up by username.
type AccountFinder interface {
	FindAccount(ctx context.Context, username string) (Account, error)
}

// HashPassword hashes password with cost, or DefaultBcryptCost when cost is
// out of range.
func HashPassword(password string, cost int) (string, error) {
	if cost < bcrypt.MinCost || cost > bcrypt.MaxCost {
		cost = DefaultBcryptCost
	}
	hash, err := bcrypt.GenerateFromPassword([]byte(password), cost)
	if err != nil {
		return "", err
	}
	return string(hash), nil
}

// CheckPassword reports whether password matches hash.
func CheckPassword(hash, password string) bool {
	return bcrypt.CompareHashAndPassword([]byte(hash), []byte(password)) == nil
}

// PasswordLogin authenticates username and password pairs and issues a
// token on success.
type PasswordLogin struct {
	accounts AccountFinder
	tokens   *JWTManager
}

// NewPasswordLogin creates a PasswordLogin.
func NewPasswordLogin(accounts AccountFinder, tokens *JWTManager) *PasswordLogin {
	return &PasswordLogin{accounts: accounts, tokens: tokens}
}

// Login checks the credentials and returns the identity and a fresh token.
// Unknown users and wrong passwords both yield ErrInvalidCredentials.
func (l *PasswordLogin) Login(ctx context.Context, username, password string) (Identity, string, error) {
	acct, err := l.accounts.FindAccount(ctx, username)
	if errors.Is(err, ErrAccountNotFound) {
		return Identity{}, "", ErrInvalidCredentials
	}
	if err != nil {
		return Identity{}, "", err
	}
	if !CheckPassword(acct.PasswordHash, password) {
		return Identity{}, "", ErrInvalidCredentials
	}

	token, err := l.tokens.Issue(acct.UserID, acct.Username)
	if err != nil {
		return Identity{}, "", err
	}
	return Identity{UserID: acct.UserID, Username: acct.Username}, token, nil
}
