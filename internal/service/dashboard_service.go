package service

import (
	"context"
	"errors"
	"fmt"
	"math"
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"referralhub/internal/model"
	"referralhub/internal/pricing"
	"referralhub/internal/repository"
)

type RewardView struct {
	ID          uuid.UUID          `json:"id"`
	Type        model.RewardType   `json:"type"`
	Status      model.RewardStatus `json:"status"`
	AmountCents int64              `json:"amountCents"`
	Amount      string             `json:"amount"`
	Description string             `json:"description"`
	ExpiresAt   time.Time          `json:"expiresAt"`
	CreatedAt   time.Time          `json:"createdAt"`
}

type RewardSummary struct {
	CreditsHeld    int64        `json:"creditsHeld"`
	CreditCap      int          `json:"creditCap"`
	MilestonesHeld int64        `json:"milestonesHeld"`
	AvailableCents int64        `json:"availableCents"`
	Available      string       `json:"available"`
	Items          []RewardView `json:"items"`
}

type MilestoneProgress struct {
	Interval  int   `json:"interval"`
	Completed int64 `json:"completed"`
	NextAt    int64 `json:"nextAt"`
	Remaining int64 `json:"remaining"`
}

type ReferralStats struct {
	Code                 string            `json:"code"`
	IsActive             bool              `json:"isActive"`
	ExpiresAt            *time.Time        `json:"expiresAt,omitempty"`
	TotalClicks          int64             `json:"totalClicks"`
	TotalSignups         int64             `json:"totalSignups"`
	TotalOrders          int64             `json:"totalOrders"`
	TotalEarningsCents   int64             `json:"totalEarningsCents"`
	TotalEarnings        string            `json:"totalEarnings"`
	ConversionRate       float64           `json:"conversionRate"`
	PendingRedemptions   int64             `json:"pendingRedemptions"`
	CompletedRedemptions int64             `json:"completedRedemptions"`
	Rewards              RewardSummary     `json:"rewards"`
	NextMilestone        MilestoneProgress `json:"nextMilestone"`
}

type DashboardService interface {
	// Stats returns ErrCodeNotFound when the user has no referral code yet.
	Stats(ctx context.Context, userID uuid.UUID) (*ReferralStats, error)
}

type dashboardService struct {
	repos repository.Repositories
	cfg   LedgerConfig
	now   func() time.Time
}

func NewDashboardService(repos repository.Repositories, cfg LedgerConfig) DashboardService {
	return &dashboardService{
		repos: repos,
		cfg:   cfg,
		now:   func() time.Time { return time.Now().UTC() },
	}
}

func (s *dashboardService) Stats(ctx context.Context, userID uuid.UUID) (*ReferralStats, error) {
	code, err := s.repos.Codes.GetByOwner(ctx, userID)
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, ErrCodeNotFound
		}
		return nil, fmt.Errorf("failed to load referral code: %w", err)
	}

	counts, err := s.repos.Redemptions.CountByStatus(ctx, code.ID)
	if err != nil {
		return nil, fmt.Errorf("failed to count redemptions: %w", err)
	}

	rewards, err := s.repos.Rewards.ListByBeneficiary(ctx, userID)
	if err != nil {
		return nil, fmt.Errorf("failed to list rewards: %w", err)
	}

	stats := &ReferralStats{
		Code:                 code.Code,
		IsActive:             code.IsActive,
		ExpiresAt:            code.ExpiresAt,
		TotalClicks:          code.TotalClicks,
		TotalSignups:         code.TotalSignups,
		TotalOrders:          code.TotalOrders,
		TotalEarningsCents:   code.TotalEarningsCents,
		TotalEarnings:        pricing.FormatCents(code.TotalEarningsCents),
		ConversionRate:       conversionRate(code.TotalOrders, code.TotalClicks),
		PendingRedemptions:   counts[model.RedemptionStatusPending],
		CompletedRedemptions: counts[model.RedemptionStatusCompleted],
		Rewards:              s.summarize(rewards),
		NextMilestone:        milestoneProgress(code.TotalOrders, s.cfg.MilestoneInterval),
	}
	return stats, nil
}

func (s *dashboardService) summarize(rewards []model.Reward) RewardSummary {
	now := s.now()
	summary := RewardSummary{CreditCap: s.cfg.RewardCap, Items: make([]RewardView, 0, len(rewards))}
	for _, r := range rewards {
		status := r.Status
		// Expiry is not swept; an AVAILABLE reward past its date is shown as expired.
		if status == model.RewardStatusAvailable && !r.ExpiresAt.After(now) {
			status = model.RewardStatusExpired
		}
		held := r.Status == model.RewardStatusAvailable || r.Status == model.RewardStatusUsed
		switch {
		case held && r.Type == model.RewardTypeReferralCredit:
			summary.CreditsHeld++
		case held && r.Type == model.RewardTypeMilestoneBonus:
			summary.MilestonesHeld++
		}
		if status == model.RewardStatusAvailable {
			summary.AvailableCents += r.AmountCents
		}
		summary.Items = append(summary.Items, RewardView{
			ID:          r.ID,
			Type:        r.Type,
			Status:      status,
			AmountCents: r.AmountCents,
			Amount:      pricing.FormatCents(r.AmountCents),
			Description: r.Description,
			ExpiresAt:   r.ExpiresAt,
			CreatedAt:   r.CreatedAt,
		})
	}
	summary.Available = pricing.FormatCents(summary.AvailableCents)
	return summary
}

// conversionRate is orders per click as a percentage rounded to one decimal.
func conversionRate(orders, clicks int64) float64 {
	if clicks <= 0 {
		return 0
	}
	return math.Round(float64(orders)/float64(clicks)*1000) / 10
}

func milestoneProgress(completed int64, interval int) MilestoneProgress {
	p := MilestoneProgress{Interval: interval, Completed: completed}
	if interval <= 0 {
		return p
	}
	step := int64(interval)
	p.NextAt = (completed/step + 1) * step
	p.Remaining = p.NextAt - completed
	return p
}

var _ DashboardService = (*dashboardService)(nil)
