package service

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"referralhub/internal/model"
	"referralhub/internal/repository"
)

// TransitionOutcome tells the caller which side of a find-or-create a transition took.
type TransitionOutcome int

const (
	// OutcomeCreated means a new redemption row was inserted.
	OutcomeCreated TransitionOutcome = iota + 1
	// OutcomeUpdated means an existing PENDING redemption was advanced.
	OutcomeUpdated
	// OutcomeAlreadyCompleted means the purchase was tracked before; nothing changed.
	OutcomeAlreadyCompleted
)

func (o TransitionOutcome) String() string {
	switch o {
	case OutcomeCreated:
		return "created"
	case OutcomeUpdated:
		return "updated"
	case OutcomeAlreadyCompleted:
		return "already_completed"
	}
	return "unknown"
}

// Transition is the result of one redemption state change.
type Transition struct {
	Outcome    TransitionOutcome
	Redemption *model.Redemption
	// FirstSignup is set when this call stamped signedUpAt for the first time.
	FirstSignup bool
}

// IsReplay reports an idempotent replay of an already completed purchase.
func (t Transition) IsReplay() bool { return t.Outcome == OutcomeAlreadyCompleted }

type PurchaseInput struct {
	CodeID          uuid.UUID
	Email           string
	OrderID         string
	OrderValueCents *int64
	Now             time.Time
}

// RedemptionTracker drives NO_RECORD -> PENDING -> COMPLETED for one (code, referee) pair.
// It is built per transaction over transaction-bound repositories and keeps no state of its own.
type RedemptionTracker struct {
	redemptions repository.RedemptionRepository
	codes       repository.ReferralCodeRepository
}

func NewRedemptionTracker(redemptions repository.RedemptionRepository, codes repository.ReferralCodeRepository) *RedemptionTracker {
	return &RedemptionTracker{redemptions: redemptions, codes: codes}
}

// NormalizeEmail is the case-insensitive key used for referees.
func NormalizeEmail(email string) string {
	return strings.ToLower(strings.TrimSpace(email))
}

func (t *RedemptionTracker) findPending(ctx context.Context, codeID uuid.UUID, email string) (*model.Redemption, error) {
	r, err := t.redemptions.FindPending(ctx, codeID, email)
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, nil
		}
		return nil, fmt.Errorf("find pending redemption: %w", err)
	}
	return r, nil
}

// RecordClick stamps clickedAt on the open redemption, or opens one. Only a new row counts as a click.
func (t *RedemptionTracker) RecordClick(ctx context.Context, codeID uuid.UUID, email string, now time.Time) (Transition, error) {
	email = NormalizeEmail(email)
	existing, err := t.findPending(ctx, codeID, email)
	if err != nil {
		return Transition{}, err
	}

	if existing != nil {
		existing.ClickedAt = &now
		if err := t.redemptions.Update(ctx, existing); err != nil {
			return Transition{}, fmt.Errorf("update redemption click: %w", err)
		}
		return Transition{Outcome: OutcomeUpdated, Redemption: existing}, nil
	}

	created := &model.Redemption{
		ReferralCodeID: codeID,
		RefereeEmail:   email,
		Status:         model.RedemptionStatusPending,
		ClickedAt:      &now,
	}
	if err := t.redemptions.Create(ctx, created); err != nil {
		return Transition{}, fmt.Errorf("create redemption: %w", err)
	}
	if err := t.codes.IncrementCounters(ctx, codeID, repository.CounterDelta{Clicks: 1}); err != nil {
		return Transition{}, fmt.Errorf("increment clicks: %w", err)
	}
	return Transition{Outcome: OutcomeCreated, Redemption: created}, nil
}

// RecordSignup stamps signedUpAt (and the optional external referee id) without changing status.
// totalSignups moves only when signedUpAt is set for the first time, so repeated signup calls do not
// inflate the aggregate.
func (t *RedemptionTracker) RecordSignup(ctx context.Context, codeID uuid.UUID, email string, refereeID *string, now time.Time) (Transition, error) {
	email = NormalizeEmail(email)
	existing, err := t.findPending(ctx, codeID, email)
	if err != nil {
		return Transition{}, err
	}

	if existing != nil {
		first := existing.SignedUpAt == nil
		existing.SignedUpAt = &now
		if refereeID != nil {
			existing.RefereeID = refereeID
		}
		if err := t.redemptions.Update(ctx, existing); err != nil {
			return Transition{}, fmt.Errorf("update redemption signup: %w", err)
		}
		if first {
			if err := t.codes.IncrementCounters(ctx, codeID, repository.CounterDelta{Signups: 1}); err != nil {
				return Transition{}, fmt.Errorf("increment signups: %w", err)
			}
		}
		return Transition{Outcome: OutcomeUpdated, Redemption: existing, FirstSignup: first}, nil
	}

	created := &model.Redemption{
		ReferralCodeID: codeID,
		RefereeEmail:   email,
		RefereeID:      refereeID,
		Status:         model.RedemptionStatusPending,
		SignedUpAt:     &now,
	}
	if err := t.redemptions.Create(ctx, created); err != nil {
		return Transition{}, fmt.Errorf("create redemption: %w", err)
	}
	if err := t.codes.IncrementCounters(ctx, codeID, repository.CounterDelta{Signups: 1}); err != nil {
		return Transition{}, fmt.Errorf("increment signups: %w", err)
	}
	return Transition{Outcome: OutcomeCreated, Redemption: created, FirstSignup: true}, nil
}

// RecordPurchase completes the referee's redemption for an order. A (code, order) pair that already
// completed is returned untouched with OutcomeAlreadyCompleted.
func (t *RedemptionTracker) RecordPurchase(ctx context.Context, in PurchaseInput) (Transition, error) {
	orderID := strings.TrimSpace(in.OrderID)
	if orderID == "" {
		return Transition{}, invalidArgument("orderId is required for purchase tracking")
	}

	// 1. Safe replay
	done, err := t.redemptions.FindCompletedByOrder(ctx, in.CodeID, orderID)
	if err == nil {
		return Transition{Outcome: OutcomeAlreadyCompleted, Redemption: done}, nil
	}
	if !errors.Is(err, gorm.ErrRecordNotFound) {
		return Transition{}, fmt.Errorf("find completed redemption: %w", err)
	}

	// 2. Complete the open redemption
	email := NormalizeEmail(in.Email)
	existing, err := t.findPending(ctx, in.CodeID, email)
	if err != nil {
		return Transition{}, err
	}

	now := in.Now
	if existing != nil {
		completePurchase(existing, orderID, in.OrderValueCents, now)
		if err := t.redemptions.Update(ctx, existing); err != nil {
			return Transition{}, fmt.Errorf("complete redemption: %w", err)
		}
		return Transition{Outcome: OutcomeUpdated, Redemption: existing}, nil
	}

	// 3. Attribution that bypassed click/signup tracking
	created := &model.Redemption{
		ReferralCodeID: in.CodeID,
		RefereeEmail:   email,
	}
	completePurchase(created, orderID, in.OrderValueCents, now)
	if err := t.redemptions.Create(ctx, created); err != nil {
		return Transition{}, fmt.Errorf("create completed redemption: %w", err)
	}
	return Transition{Outcome: OutcomeCreated, Redemption: created}, nil
}

func completePurchase(r *model.Redemption, orderID string, orderValueCents *int64, now time.Time) {
	r.Status = model.RedemptionStatusCompleted
	r.PurchasedAt = &now
	r.RefereeOrderID = &orderID
	r.OrderValueCents = orderValueCents
	r.RewardIssuedAt = &now
}
