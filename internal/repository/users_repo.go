package repository

import (
	"context"

	"pneumodetect/internal/domain"
)

// UsersRepository persists user accounts. Accounts are soft-deactivated,
// never hard-deleted.
type UsersRepository interface {
	GetUser(ctx context.Context, userID int64) (*domain.User, error)
	GetUserByUsername(ctx context.Context, username string) (*domain.User, error)
	GetUserByEmail(ctx context.Context, email string) (*domain.User, error)
	ListUsers(ctx context.Context, filters UserFilters, page, size int) ([]*domain.User, int, error)
	CreateUser(ctx context.Context, user *domain.User) (int64, error)
	SetActive(ctx context.Context, userID int64, active bool) error
	UpdatePassword(ctx context.Context, userID int64, passwordHash string) error
	CountByRole(ctx context.Context) (map[domain.Role]int, error)
}

// UserFilters narrows ListUsers.
type UserFilters struct {
	Role   domain.Role // "" = any
	Search string      // substring match on username or email
}
