package repository

import (
	"context"

	"github.com/google/uuid"

	"referralhub/internal/model"
)

type UserRepository interface {
	Create(ctx context.Context, user *model.User) error
	GetByID(ctx context.Context, id uuid.UUID) (*model.User, error)
}
