package service

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"

	"referralhub/internal/config"
	"referralhub/internal/model"
	"referralhub/internal/pricing"
	"referralhub/internal/repository"
)

// LedgerConfig holds the reward rules. Amounts always come from the pricing lookup, never from order value.
type LedgerConfig struct {
	RewardCap            int
	MilestoneInterval    int
	MilestoneCap         int
	CreditTier           string
	CreditAmountCents    int64 // overrides the credit tier price when > 0
	CreditExpiry         time.Duration
	MilestoneTier        string
	MilestoneExpiry      time.Duration
	RefereeIncentiveTier string
}

func DefaultLedgerConfig() LedgerConfig {
	return LedgerConfig{
		RewardCap:            5,
		MilestoneInterval:    3,
		MilestoneCap:         5,
		CreditTier:           "purrify-12g",
		CreditExpiry:         90 * 24 * time.Hour,
		MilestoneTier:        "purrify-50g",
		MilestoneExpiry:      180 * 24 * time.Hour,
		RefereeIncentiveTier: "purrify-12g",
	}
}

func LedgerConfigFrom(cfg config.ReferralConfig) LedgerConfig {
	return LedgerConfig{
		RewardCap:            cfg.RewardCap,
		MilestoneInterval:    cfg.MilestoneInterval,
		MilestoneCap:         cfg.MilestoneCap,
		CreditTier:           cfg.CreditTier,
		CreditAmountCents:    cfg.CreditAmountCents,
		CreditExpiry:         time.Duration(cfg.CreditExpiryDays) * 24 * time.Hour,
		MilestoneTier:        cfg.MilestoneTier,
		MilestoneExpiry:      time.Duration(cfg.MilestoneExpiryDays) * 24 * time.Hour,
		RefereeIncentiveTier: cfg.RefereeIncentiveTier,
	}
}

// RewardDescriptor is a created reward as rendered to callers and notifications.
type RewardDescriptor struct {
	ID          uuid.UUID        `json:"id"`
	Type        model.RewardType `json:"type"`
	AmountCents int64            `json:"amountCents"`
	Amount      string           `json:"amount"`
	Description string           `json:"description"`
	ExpiresAt   time.Time        `json:"expiresAt"`
}

// IncentiveDescriptor describes what the referee is offered for using a code.
type IncentiveDescriptor struct {
	ProductID   string `json:"productId"`
	ValueCents  int64  `json:"valueCents"`
	Description string `json:"description"`
}

type IssueResult struct {
	Issued           bool
	ReferrerCredit   *RewardDescriptor
	Milestone        *RewardDescriptor
	RefereeIncentive *IncentiveDescriptor
	CompletedCount   int64
}

// RewardLedger issues capped, time-boxed rewards for first-time purchase completions.
// Like RedemptionTracker it is built over transaction-bound repositories.
type RewardLedger struct {
	rewards repository.RewardRepository
	codes   repository.ReferralCodeRepository
	prices  pricing.Lookup
	cfg     LedgerConfig
}

func NewRewardLedger(rewards repository.RewardRepository, codes repository.ReferralCodeRepository, prices pricing.Lookup, cfg LedgerConfig) *RewardLedger {
	return &RewardLedger{rewards: rewards, codes: codes, prices: prices, cfg: cfg}
}

// IssuePurchaseRewards must run in the same transaction that completed the redemption, with code read
// under the row lock so code.TotalOrders is the prior completed count.
func (l *RewardLedger) IssuePurchaseRewards(ctx context.Context, code *model.ReferralCode, redemption *model.Redemption, now time.Time) (*IssueResult, error) {
	beneficiary := code.OwnerUserID
	if err := l.rewards.LockBeneficiary(ctx, beneficiary); err != nil {
		return nil, fmt.Errorf("lock beneficiary: %w", err)
	}

	result := &IssueResult{}
	incentive, err := l.RefereeIncentive()
	if err != nil {
		return nil, err
	}
	result.RefereeIncentive = incentive

	// 1. Credit cap
	held, err := l.rewards.CountHeld(ctx, beneficiary, model.RewardTypeReferralCredit)
	if err != nil {
		return nil, fmt.Errorf("count referral credits: %w", err)
	}

	// 2. Referral credit
	var earned int64
	if held < int64(l.cfg.RewardCap) {
		amount, err := l.creditAmount()
		if err != nil {
			return nil, err
		}
		credit := &model.Reward{
			BeneficiaryUserID: beneficiary,
			RedemptionID:      &redemption.ID,
			AmountCents:       amount,
			Type:              model.RewardTypeReferralCredit,
			Description:       fmt.Sprintf("Referral credit: %s made their first purchase", redemption.RefereeEmail),
			Status:            model.RewardStatusAvailable,
			ExpiresAt:         now.Add(l.cfg.CreditExpiry),
		}
		if err := l.rewards.Create(ctx, credit); err != nil {
			return nil, fmt.Errorf("create referral credit: %w", err)
		}
		result.Issued = true
		result.ReferrerCredit = describeReward(credit)
		earned = amount
	}

	// 3. Aggregates move in the same transaction as the rows they summarize
	if err := l.codes.IncrementCounters(ctx, code.ID, repository.CounterDelta{Orders: 1, EarningsCents: earned}); err != nil {
		return nil, fmt.Errorf("increment order aggregates: %w", err)
	}

	// 4. Milestone
	result.CompletedCount = code.TotalOrders + 1
	if l.cfg.MilestoneInterval > 0 && result.CompletedCount%int64(l.cfg.MilestoneInterval) == 0 {
		bonuses, err := l.rewards.CountHeld(ctx, beneficiary, model.RewardTypeMilestoneBonus)
		if err != nil {
			return nil, fmt.Errorf("count milestone bonuses: %w", err)
		}
		if bonuses < int64(l.cfg.MilestoneCap) {
			product, err := l.prices.Product(l.cfg.MilestoneTier)
			if err != nil {
				return nil, fmt.Errorf("price milestone bonus: %w", err)
			}
			bonus := &model.Reward{
				BeneficiaryUserID: beneficiary,
				RedemptionID:      &redemption.ID,
				AmountCents:       product.PriceCents,
				Type:              model.RewardTypeMilestoneBonus,
				Description:       fmt.Sprintf("Milestone bonus: free %s for %d successful referrals", product.Name, result.CompletedCount),
				Status:            model.RewardStatusAvailable,
				ExpiresAt:         now.Add(l.cfg.MilestoneExpiry),
			}
			if err := l.rewards.Create(ctx, bonus); err != nil {
				return nil, fmt.Errorf("create milestone bonus: %w", err)
			}
			result.Milestone = describeReward(bonus)
		}
	}

	return result, nil
}

// RefereeIncentive describes the free trial offered to referees.
func (l *RewardLedger) RefereeIncentive() (*IncentiveDescriptor, error) {
	return DescribeIncentive(l.prices, l.cfg.RefereeIncentiveTier)
}

func DescribeIncentive(prices pricing.Lookup, tier string) (*IncentiveDescriptor, error) {
	product, err := prices.Product(tier)
	if err != nil {
		return nil, fmt.Errorf("price referee incentive: %w", err)
	}
	return &IncentiveDescriptor{
		ProductID:   product.ID,
		ValueCents:  product.PriceCents,
		Description: fmt.Sprintf("FREE %s (a %s value)", product.Name, pricing.FormatCents(product.PriceCents)),
	}, nil
}

func (l *RewardLedger) creditAmount() (int64, error) {
	if l.cfg.CreditAmountCents > 0 {
		return l.cfg.CreditAmountCents, nil
	}
	amount, err := l.prices.Price(l.cfg.CreditTier)
	if err != nil {
		return 0, fmt.Errorf("price referral credit: %w", err)
	}
	return amount, nil
}

func describeReward(r *model.Reward) *RewardDescriptor {
	return &RewardDescriptor{
		ID:          r.ID,
		Type:        r.Type,
		AmountCents: r.AmountCents,
		Amount:      pricing.FormatCents(r.AmountCents),
		Description: r.Description,
		ExpiresAt:   r.ExpiresAt,
	}
}
