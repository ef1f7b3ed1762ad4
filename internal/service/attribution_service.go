package service

import (
	"context"
	"errors"
	"fmt"
	"math"
	"reflect"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/google/uuid"
	"go.uber.org/zap"
	"gorm.io/gorm"

	"referralhub/internal/metrics"
	"referralhub/internal/model"
	"referralhub/internal/pricing"
	"referralhub/internal/repository"
)

type TrackAction string

const (
	ActionClick    TrackAction = "click"
	ActionSignup   TrackAction = "signup"
	ActionPurchase TrackAction = "purchase"
)

// MaxOrderValue bounds orderValue so its cent amount fits an int64.
const MaxOrderValue = 1_000_000_000

// TrackInput is the body of a tracking call. OrderValue is in currency units and only audited.
// Length limits follow the redemption columns.
type TrackInput struct {
	Action       string   `json:"action" validate:"required,oneof=click signup purchase"`
	ReferralCode string   `json:"referralCode" validate:"required,max=64"`
	RefereeEmail string   `json:"refereeEmail" validate:"required,max=320,email"`
	RefereeID    *string  `json:"refereeId,omitempty" validate:"omitempty,max=128"`
	OrderID      string   `json:"orderId,omitempty" validate:"required_if=Action purchase,max=128"`
	OrderValue   *float64 `json:"orderValue,omitempty" validate:"omitempty,gte=0,lte=1000000000"`
}

func (in *TrackInput) normalize() {
	in.Action = strings.ToLower(strings.TrimSpace(in.Action))
	in.ReferralCode = NormalizeCode(in.ReferralCode)
	in.RefereeEmail = NormalizeEmail(in.RefereeEmail)
	in.OrderID = strings.TrimSpace(in.OrderID)
	if in.RefereeID != nil {
		id := strings.TrimSpace(*in.RefereeID)
		if id == "" {
			in.RefereeID = nil
		} else {
			in.RefereeID = &id
		}
	}
}

func (in *TrackInput) orderValueCents() *int64 {
	if in.OrderValue == nil {
		return nil
	}
	cents := int64(math.Round(*in.OrderValue * 100))
	return &cents
}

// RewardsBlock groups what a completed purchase earned.
type RewardsBlock struct {
	Referrer  *RewardDescriptor    `json:"referrer,omitempty"`
	Milestone *RewardDescriptor    `json:"milestone,omitempty"`
	Referee   *IncentiveDescriptor `json:"referee,omitempty"`
}

type TrackResult struct {
	Success        bool          `json:"success"`
	ReferralID     *uuid.UUID    `json:"referralId,omitempty"`
	RewardEligible *bool         `json:"rewardEligible,omitempty"`
	Rewards        *RewardsBlock `json:"rewards,omitempty"`
	Message        string        `json:"message,omitempty"`
	// Events are handed to the Notifier by the caller once the response is settled.
	Events []Event `json:"-"`

	replay bool
}

// Replay reports that the call matched an already completed purchase and changed nothing.
func (r *TrackResult) Replay() bool { return r != nil && r.replay }

type AttributionService interface {
	Track(ctx context.Context, in TrackInput) (*TrackResult, error)
}

type attributionService struct {
	codes     ReferralCodeService
	uow       repository.UnitOfWork
	prices    pricing.Lookup
	ledgerCfg LedgerConfig
	logger    *zap.Logger
	validate  *validator.Validate
	now       func() time.Time
}

type AttributionOption func(*attributionService)

// WithClock replaces the wall clock used for timestamps and expiry checks.
func WithClock(now func() time.Time) AttributionOption {
	return func(s *attributionService) { s.now = now }
}

func NewAttributionService(
	codes ReferralCodeService,
	uow repository.UnitOfWork,
	prices pricing.Lookup,
	ledgerCfg LedgerConfig,
	logger *zap.Logger,
	opts ...AttributionOption,
) AttributionService {
	s := &attributionService{
		codes:     codes,
		uow:       uow,
		prices:    prices,
		ledgerCfg: ledgerCfg,
		logger:    logger,
		validate:  newTrackValidator(),
		now:       func() time.Time { return time.Now().UTC() },
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

func newTrackValidator() *validator.Validate {
	v := validator.New()
	v.RegisterTagNameFunc(func(fld reflect.StructField) string {
		name := strings.SplitN(fld.Tag.Get("json"), ",", 2)[0]
		if name == "-" {
			return ""
		}
		return name
	})
	return v
}

func (s *attributionService) Track(ctx context.Context, in TrackInput) (*TrackResult, error) {
	in.normalize()
	action := in.Action
	now := s.now()

	result, err := s.track(ctx, in, now)
	metrics.TrackTotal.WithLabelValues(metricAction(action), trackOutcome(result, err)).Inc()
	if err != nil {
		if !isClientError(err) {
			s.logger.Error("referral tracking failed",
				zap.String("action", action),
				zap.String("code", in.ReferralCode),
				zap.Error(err),
			)
		}
		return nil, err
	}
	return result, nil
}

func (s *attributionService) track(ctx context.Context, in TrackInput, now time.Time) (*TrackResult, error) {
	// 1. Required fields
	if err := s.validateInput(&in); err != nil {
		return nil, err
	}

	// 2. Registry
	resolved, err := s.codes.Resolve(ctx, in.ReferralCode)
	if err != nil {
		return nil, err
	}
	if err := resolved.CheckUsable(now); err != nil {
		return nil, err
	}

	// 3. Self-referral
	if resolved.OwnerEmail != "" && resolved.OwnerEmail == in.RefereeEmail {
		return nil, ErrSelfReferral
	}

	// 4. Transition. A unique violation means a concurrent duplicate committed first; the retry
	// observes its row and takes the idempotent path.
	var result *TrackResult
	for attempt := 0; attempt < 2; attempt++ {
		result, err = s.transition(ctx, resolved, in, now)
		if err == nil || !errors.Is(err, gorm.ErrDuplicatedKey) {
			break
		}
		s.logger.Debug("tracking raced a concurrent duplicate, retrying",
			zap.String("code", resolved.Code),
			zap.Int("attempt", attempt+1),
		)
	}
	if err != nil {
		return nil, err
	}

	if result.Rewards != nil {
		if result.Rewards.Referrer != nil {
			metrics.RewardsIssuedTotal.WithLabelValues(string(model.RewardTypeReferralCredit)).Inc()
		}
		if result.Rewards.Milestone != nil {
			metrics.RewardsIssuedTotal.WithLabelValues(string(model.RewardTypeMilestoneBonus)).Inc()
		}
	}
	return result, nil
}

func (s *attributionService) validateInput(in *TrackInput) error {
	err := s.validate.Struct(in)
	if err == nil {
		return nil
	}
	var fieldErrs validator.ValidationErrors
	if !errors.As(err, &fieldErrs) || len(fieldErrs) == 0 {
		return invalidArgument("%v", err)
	}
	fe := fieldErrs[0]
	switch fe.Tag() {
	case "required":
		return invalidArgument("missing required field: %s", fe.Field())
	case "oneof":
		return invalidArgument("invalid action: must be one of click, signup, purchase")
	case "email":
		return invalidArgument("refereeEmail must be a valid email address")
	case "required_if":
		return invalidArgument("orderId is required for purchase tracking")
	case "gte":
		return invalidArgument("orderValue must not be negative")
	case "lte":
		return invalidArgument("orderValue must not exceed %d", MaxOrderValue)
	case "max":
		return invalidArgument("%s must be at most %s characters", fe.Field(), fe.Param())
	default:
		return invalidArgument("invalid field: %s", fe.Field())
	}
}

func (s *attributionService) transition(ctx context.Context, resolved *ResolvedCode, in TrackInput, now time.Time) (*TrackResult, error) {
	var result *TrackResult
	err := s.uow.Do(ctx, func(repos repository.Repositories) error {
		code, err := repos.Codes.LockByID(ctx, resolved.ID)
		if err != nil {
			if errors.Is(err, gorm.ErrRecordNotFound) {
				return ErrCodeNotFound
			}
			return fmt.Errorf("lock referral code: %w", err)
		}
		// The code may have been deactivated between resolution and the lock.
		locked := *resolved
		locked.IsActive = code.IsActive
		locked.ExpiresAt = code.ExpiresAt
		if err := locked.CheckUsable(now); err != nil {
			return err
		}

		tracker := NewRedemptionTracker(repos.Redemptions, repos.Codes)
		switch TrackAction(in.Action) {
		case ActionClick:
			tr, err := tracker.RecordClick(ctx, code.ID, in.RefereeEmail, now)
			if err != nil {
				return err
			}
			result = &TrackResult{Success: true, ReferralID: &tr.Redemption.ID, Message: "Click tracked"}

		case ActionSignup:
			tr, err := tracker.RecordSignup(ctx, code.ID, in.RefereeEmail, in.RefereeID, now)
			if err != nil {
				return err
			}
			result = &TrackResult{Success: true, ReferralID: &tr.Redemption.ID, Message: "Signup tracked"}
			if tr.FirstSignup {
				result.Events = append(result.Events, Event{
					Type:          EventRefereeSignup,
					To:            resolved.OwnerEmail,
					DedupeKey:     fmt.Sprintf("%s:%s", EventRefereeSignup, tr.Redemption.ID),
					RecipientName: resolved.OwnerName,
					ReferralCode:  resolved.Code,
					RefereeEmail:  in.RefereeEmail,
				})
			}

		case ActionPurchase:
			tr, err := tracker.RecordPurchase(ctx, PurchaseInput{
				CodeID:          code.ID,
				Email:           in.RefereeEmail,
				OrderID:         in.OrderID,
				OrderValueCents: in.orderValueCents(),
				Now:             now,
			})
			if err != nil {
				return err
			}
			if tr.IsReplay() {
				result = &TrackResult{Success: true, ReferralID: &tr.Redemption.ID, Message: "Purchase already tracked", replay: true}
				return nil
			}

			ledger := NewRewardLedger(repos.Rewards, repos.Codes, s.prices, s.ledgerCfg)
			issued, err := ledger.IssuePurchaseRewards(ctx, code, tr.Redemption, now)
			if err != nil {
				return err
			}
			result = purchaseResult(resolved, tr.Redemption, issued)

		default:
			return invalidArgument("invalid action: must be one of click, signup, purchase")
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return result, nil
}

func purchaseResult(resolved *ResolvedCode, redemption *model.Redemption, issued *IssueResult) *TrackResult {
	eligible := issued.Issued
	result := &TrackResult{
		Success:        true,
		ReferralID:     &redemption.ID,
		RewardEligible: &eligible,
		Message:        "Purchase tracked",
	}
	if !eligible {
		result.Message = "Purchase tracked; referral reward limit reached"
	}
	if issued.Issued || issued.Milestone != nil {
		result.Rewards = &RewardsBlock{
			Referrer:  issued.ReferrerCredit,
			Milestone: issued.Milestone,
			Referee:   issued.RefereeIncentive,
		}
	}

	base := Event{
		To:            resolved.OwnerEmail,
		RecipientName: resolved.OwnerName,
		ReferralCode:  resolved.Code,
		RefereeEmail:  redemption.RefereeEmail,
	}
	if credit := issued.ReferrerCredit; credit != nil {
		ev := base
		ev.Type = EventRewardEarned
		ev.DedupeKey = fmt.Sprintf("%s:%s", EventRewardEarned, credit.ID)
		ev.Amount = credit.Amount
		ev.Description = credit.Description
		result.Events = append(result.Events, ev)
	} else {
		ev := base
		ev.Type = EventRefereePurchase
		ev.DedupeKey = fmt.Sprintf("%s:%s", EventRefereePurchase, redemption.ID)
		result.Events = append(result.Events, ev)
	}
	if bonus := issued.Milestone; bonus != nil {
		ev := base
		ev.Type = EventMilestoneAchieved
		ev.DedupeKey = fmt.Sprintf("%s:%s", EventMilestoneAchieved, bonus.ID)
		ev.Amount = bonus.Amount
		ev.Description = bonus.Description
		ev.Count = issued.CompletedCount
		result.Events = append(result.Events, ev)
	}
	return result
}

func isClientError(err error) bool {
	return errors.Is(err, ErrInvalidArgument) ||
		errors.Is(err, ErrCodeNotFound) ||
		errors.Is(err, ErrCodeInactive) ||
		errors.Is(err, ErrCodeExpired)
}

func metricAction(action string) string {
	switch TrackAction(action) {
	case ActionClick, ActionSignup, ActionPurchase:
		return action
	}
	return "invalid"
}

func trackOutcome(result *TrackResult, err error) string {
	switch {
	case err == nil && result.Replay():
		return "replay"
	case err == nil:
		return "ok"
	case errors.Is(err, ErrSelfReferral):
		return "self_referral"
	case errors.Is(err, ErrInvalidArgument):
		return "invalid"
	case errors.Is(err, ErrCodeNotFound):
		return "not_found"
	case errors.Is(err, ErrCodeInactive):
		return "inactive"
	case errors.Is(err, ErrCodeExpired):
		return "expired"
	}
	return "error"
}

var _ AttributionService = (*attributionService)(nil)
