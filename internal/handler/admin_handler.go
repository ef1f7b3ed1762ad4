package handler

import (
	"errors"

	"github.com/gin-gonic/gin"

	"referralhub/internal/service"
	"referralhub/pkg/response"
)

type AdminHandler struct {
	codeService service.ReferralCodeService
}

func NewAdminHandler(codeService service.ReferralCodeService) *AdminHandler {
	return &AdminHandler{codeService: codeService}
}

// DeactivateCode switches a referral code off. Codes are never deleted.
func (h *AdminHandler) DeactivateCode(c *gin.Context) {
	code := service.NormalizeCode(c.Param("code"))
	if err := h.codeService.Deactivate(c.Request.Context(), code); err != nil {
		switch {
		case errors.Is(err, service.ErrInvalidArgument):
			response.BadRequest(c, invalidArgumentMessage(err))
		case errors.Is(err, service.ErrCodeNotFound):
			response.NotFound(c, "referral code not found")
		default:
			response.InternalError(c, "failed to deactivate referral code")
		}
		return
	}

	response.Success(c, gin.H{"code": code, "isActive": false})
}
