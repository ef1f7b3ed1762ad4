package repository

import (
	"context"

	"github.com/google/uuid"

	"referralhub/internal/model"
)

type RedemptionRepository interface {
	Create(ctx context.Context, redemption *model.Redemption) error
	Update(ctx context.Context, redemption *model.Redemption) error
	// FindPending looks up the open redemption for a referee. email must already be lower-cased.
	FindPending(ctx context.Context, codeID uuid.UUID, email string) (*model.Redemption, error)
	FindCompletedByOrder(ctx context.Context, codeID uuid.UUID, orderID string) (*model.Redemption, error)
	CountByStatus(ctx context.Context, codeID uuid.UUID) (map[model.RedemptionStatus]int64, error)
}
