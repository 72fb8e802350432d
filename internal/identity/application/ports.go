package application

import (
	"context"

	"github.com/dmehra2102/shopeasy/internal/identity/domain"
)

type Repository interface {
	// Create inserts u and returns it with ID and CreatedAt set. A taken
	// username or email yields domain.ErrUserExists.
	Create(ctx context.Context, u domain.User) (domain.User, error)
	ByUsername(ctx context.Context, username string) (domain.User, error)
	SetRole(ctx context.Context, userID int64, role domain.Role) error
}
