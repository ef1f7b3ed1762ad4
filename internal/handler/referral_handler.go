package handler

import (
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"

	"referralhub/internal/service"
	"referralhub/pkg/response"
)

type ReferralHandler struct {
	codeService        service.ReferralCodeService
	attributionService service.AttributionService
	dashboardService   service.DashboardService
	notifier           service.Notifier
	incentive          *service.IncentiveDescriptor
	now                func() time.Time
}

type ReferralHandlerOption func(*ReferralHandler)

// WithHandlerClock sets the clock used for code expiry checks.
func WithHandlerClock(now func() time.Time) ReferralHandlerOption {
	return func(h *ReferralHandler) { h.now = now }
}

func NewReferralHandler(
	codeService service.ReferralCodeService,
	attributionService service.AttributionService,
	dashboardService service.DashboardService,
	notifier service.Notifier,
	incentive *service.IncentiveDescriptor,
	opts ...ReferralHandlerOption,
) *ReferralHandler {
	h := &ReferralHandler{
		codeService:        codeService,
		attributionService: attributionService,
		dashboardService:   dashboardService,
		notifier:           notifier,
		incentive:          incentive,
		now:                func() time.Time { return time.Now().UTC() },
	}
	for _, opt := range opts {
		opt(h)
	}
	return h
}

// Track records a click, signup or purchase against a referral code.
func (h *ReferralHandler) Track(c *gin.Context) {
	var req service.TrackInput
	if err := c.ShouldBindJSON(&req); err != nil {
		response.BadRequest(c, "invalid request body")
		return
	}

	result, err := h.attributionService.Track(c.Request.Context(), req)
	if err != nil {
		switch {
		case errors.Is(err, service.ErrInvalidArgument):
			response.BadRequest(c, invalidArgumentMessage(err))
		case errors.Is(err, service.ErrCodeNotFound):
			response.NotFound(c, "Invalid referral code")
		case errors.Is(err, service.ErrCodeInactive):
			response.Gone(c, "This referral code is no longer active")
		case errors.Is(err, service.ErrCodeExpired):
			response.Gone(c, "This referral code has expired")
		default:
			response.InternalError(c, "Failed to track referral")
		}
		return
	}

	c.JSON(http.StatusOK, result)
	h.notifier.Dispatch(result.Events...)
}

type validateResponse struct {
	Success          bool                         `json:"success"`
	IsValid          bool                         `json:"isValid"`
	Code             string                       `json:"code"`
	Reason           string                       `json:"reason,omitempty"`
	ReferrerName     string                       `json:"referrerName,omitempty"`
	ExpiresAt        *time.Time                   `json:"expiresAt,omitempty"`
	RefereeIncentive *service.IncentiveDescriptor `json:"refereeIncentive,omitempty"`
}

// Validate tells a landing page whether a code can be used.
func (h *ReferralHandler) Validate(c *gin.Context) {
	resolved, err := h.codeService.Resolve(c.Request.Context(), c.Param("code"))
	if err != nil {
		switch {
		case errors.Is(err, service.ErrInvalidArgument):
			response.BadRequest(c, invalidArgumentMessage(err))
		case errors.Is(err, service.ErrCodeNotFound):
			response.NotFound(c, "Invalid referral code")
		default:
			response.InternalError(c, "Failed to validate referral code")
		}
		return
	}

	resp := validateResponse{
		Success:      true,
		IsValid:      true,
		Code:         resolved.Code,
		ReferrerName: firstName(resolved.OwnerName),
		ExpiresAt:    resolved.ExpiresAt,
	}
	switch err := resolved.CheckUsable(h.now()); {
	case errors.Is(err, service.ErrCodeInactive):
		resp.IsValid, resp.Reason = false, "inactive"
	case errors.Is(err, service.ErrCodeExpired):
		resp.IsValid, resp.Reason = false, "expired"
	default:
		resp.RefereeIncentive = h.incentive
	}
	c.JSON(http.StatusOK, resp)
}

// IssueCode returns the caller's referral code, creating it on first use.
func (h *ReferralHandler) IssueCode(c *gin.Context) {
	userID, err := referrerIDFromContext(c)
	if err != nil {
		response.Unauthorized(c, "invalid user context")
		return
	}

	code, owner, created, err := h.codeService.GetOrCreateForUser(c.Request.Context(), userID)
	if err != nil {
		switch {
		case errors.Is(err, service.ErrUserNotFound):
			response.NotFound(c, "user not found")
		case errors.Is(err, service.ErrUserDisabled):
			response.Forbidden(c, "user is disabled")
		default:
			response.InternalError(c, "failed to issue referral code")
		}
		return
	}

	response.Success(c, gin.H{
		"code":      code.Code,
		"isActive":  code.IsActive,
		"expiresAt": code.ExpiresAt,
		"created":   created,
	})

	if created {
		h.notifier.Dispatch(service.Event{
			Type:          service.EventWelcome,
			To:            owner.Email,
			DedupeKey:     fmt.Sprintf("%s:%s", service.EventWelcome, code.ID),
			RecipientName: owner.Name,
			ReferralCode:  code.Code,
		})
	}
}

// Stats returns the caller's referral dashboard.
func (h *ReferralHandler) Stats(c *gin.Context) {
	userID, err := referrerIDFromContext(c)
	if err != nil {
		response.Unauthorized(c, "invalid user context")
		return
	}

	stats, err := h.dashboardService.Stats(c.Request.Context(), userID)
	if err != nil {
		if errors.Is(err, service.ErrCodeNotFound) {
			response.NotFound(c, "no referral code issued yet")
			return
		}
		response.InternalError(c, "failed to load referral stats")
		return
	}

	response.Success(c, stats)
}
