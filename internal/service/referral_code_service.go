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
	"referralhub/pkg/crypto"
)

const (
	referralCodeLength      = 8
	referralCodeMaxAttempts = 5
)

// ResolvedCode is the registry view of a referral code.
type ResolvedCode struct {
	ID          uuid.UUID  `json:"-"`
	Code        string     `json:"code"`
	OwnerUserID uuid.UUID  `json:"-"`
	OwnerEmail  string     `json:"-"`
	OwnerName   string     `json:"referrerName,omitempty"`
	IsActive    bool       `json:"isActive"`
	ExpiresAt   *time.Time `json:"expiresAt,omitempty"`
}

// CheckUsable distinguishes inactive from expired codes; each renders a different message.
func (c *ResolvedCode) CheckUsable(now time.Time) error {
	if !c.IsActive {
		return ErrCodeInactive
	}
	if c.ExpiresAt != nil && !c.ExpiresAt.After(now) {
		return ErrCodeExpired
	}
	return nil
}

type ReferralCodeService interface {
	// Resolve fails only with ErrCodeNotFound (or a store error); callers check usability themselves.
	Resolve(ctx context.Context, code string) (*ResolvedCode, error)
	// GetOrCreateForUser returns the user's code, creating it on first call. created reports a new code.
	GetOrCreateForUser(ctx context.Context, userID uuid.UUID) (code *model.ReferralCode, owner *model.User, created bool, err error)
	Deactivate(ctx context.Context, code string) error
}

type referralCodeService struct {
	codeRepo repository.ReferralCodeRepository
	userRepo repository.UserRepository
}

func NewReferralCodeService(codeRepo repository.ReferralCodeRepository, userRepo repository.UserRepository) ReferralCodeService {
	return &referralCodeService{
		codeRepo: codeRepo,
		userRepo: userRepo,
	}
}

// NormalizeCode trims and upper-cases a code as typed or linked by a visitor.
func NormalizeCode(code string) string {
	return strings.ToUpper(strings.TrimSpace(code))
}

func (s *referralCodeService) Resolve(ctx context.Context, code string) (*ResolvedCode, error) {
	code = NormalizeCode(code)
	if code == "" {
		return nil, invalidArgument("referral code is required")
	}

	rc, err := s.codeRepo.GetByCode(ctx, code)
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, ErrCodeNotFound
		}
		return nil, fmt.Errorf("failed to resolve referral code: %w", err)
	}

	return &ResolvedCode{
		ID:          rc.ID,
		Code:        rc.Code,
		OwnerUserID: rc.OwnerUserID,
		OwnerEmail:  strings.ToLower(strings.TrimSpace(rc.Owner.Email)),
		OwnerName:   rc.Owner.Name,
		IsActive:    rc.IsActive,
		ExpiresAt:   rc.ExpiresAt,
	}, nil
}

func (s *referralCodeService) GetOrCreateForUser(ctx context.Context, userID uuid.UUID) (*model.ReferralCode, *model.User, bool, error) {
	// 1. Check user exists and is active
	user, err := s.userRepo.GetByID(ctx, userID)
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, nil, false, ErrUserNotFound
		}
		return nil, nil, false, fmt.Errorf("failed to find user: %w", err)
	}
	if user.Status != model.UserStatusActive {
		return nil, nil, false, ErrUserDisabled
	}

	// 2. Existing code wins
	existing, err := s.codeRepo.GetByOwner(ctx, userID)
	if err == nil {
		return existing, user, false, nil
	}
	if !errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, nil, false, fmt.Errorf("failed to check referral code: %w", err)
	}

	// 3. Create, retrying on code collisions. A duplicate on the owner index means a concurrent
	// request created the code first.
	for attempt := 0; attempt < referralCodeMaxAttempts; attempt++ {
		value, err := crypto.GenerateReferralCode(referralCodeLength)
		if err != nil {
			return nil, nil, false, fmt.Errorf("generate referral code: %w", err)
		}
		rc := &model.ReferralCode{
			Code:        value,
			OwnerUserID: userID,
			IsActive:    true,
		}
		err = s.codeRepo.Create(ctx, rc)
		if err == nil {
			return rc, user, true, nil
		}
		if !errors.Is(err, gorm.ErrDuplicatedKey) {
			return nil, nil, false, fmt.Errorf("create referral code: %w", err)
		}
		if existing, getErr := s.codeRepo.GetByOwner(ctx, userID); getErr == nil {
			return existing, user, false, nil
		}
	}
	return nil, nil, false, fmt.Errorf("create referral code: no unique code after %d attempts", referralCodeMaxAttempts)
}

func (s *referralCodeService) Deactivate(ctx context.Context, code string) error {
	code = NormalizeCode(code)
	if code == "" {
		return invalidArgument("referral code is required")
	}
	if err := s.codeRepo.SetActive(ctx, code, false); err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return ErrCodeNotFound
		}
		return fmt.Errorf("deactivate referral code: %w", err)
	}
	return nil
}

var _ ReferralCodeService = (*referralCodeService)(nil)
