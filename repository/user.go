package repository

import (
	"context"
	"time"

	"github.com/fastygo/tasktracker/domain"
)

type UserRepository interface {
	// Create inserts a user and assigns its id. A duplicate email yields domain.ErrEmailTaken.
	Create(ctx context.Context, user *domain.User) error
	GetByID(ctx context.Context, id string) (*domain.User, error)
	GetByEmail(ctx context.Context, email string) (*domain.User, error)
	TouchLastLogin(ctx context.Context, id string, at time.Time) error
}
