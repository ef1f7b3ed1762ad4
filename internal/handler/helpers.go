package handler

import (
	"errors"
	"strings"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"

	"referralhub/internal/handler/middleware"
	"referralhub/internal/service"
)

var ErrNoReferrer = errors.New("referrer not found in context")

func referrerIDFromContext(c *gin.Context) (uuid.UUID, error) {
	id, ok := middleware.ReferrerID(c)
	if !ok {
		return uuid.Nil, ErrNoReferrer
	}
	return id, nil
}

func invalidArgumentMessage(err error) string {
	return strings.TrimPrefix(err.Error(), service.ErrInvalidArgument.Error()+": ")
}

// firstName keeps the referrer's surname off public landing pages.
func firstName(name string) string {
	fields := strings.Fields(name)
	if len(fields) == 0 {
		return ""
	}
	return fields[0]
}
