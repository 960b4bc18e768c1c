package store

import (
	"context"

	"github.com/omochice/framechat/internal/auth"
)

// AccountService registers users in the SQL store and logs them in with
// their password.
type AccountService struct {
	*auth.PasswordLogin
	users *SQLStore
	cost  int
}

// NewAccountService hashes new passwords with the given bcrypt cost.
func NewAccountService(users *SQLStore, tokens *auth.JWTManager, cost int) *AccountService {
	return &AccountService{
		PasswordLogin: auth.NewPasswordLogin(users, tokens),
		users:         users,
		cost:          cost,
	}
}

// Register creates a user. It returns ErrUserExists for a taken username.
func (s *AccountService) Register(ctx context.Context, username, password, avatar string) (User, error) {
	return s.users.CreateUser(ctx, username, password, avatar, s.cost)
}
