package service

import (
	"errors"
	"fmt"
)

var (
	ErrInvalidArgument = errors.New("invalid argument")
	ErrCodeNotFound    = errors.New("referral code not found")
	ErrCodeInactive    = errors.New("referral code is no longer active")
	ErrCodeExpired     = errors.New("referral code has expired")
	ErrSelfReferral    = fmt.Errorf("%w: you cannot use your own referral code", ErrInvalidArgument)
	ErrUserNotFound    = errors.New("user not found")
	ErrUserDisabled    = errors.New("user is disabled or banned")
)

func invalidArgument(format string, args ...interface{}) error {
	return fmt.Errorf("%w: %s", ErrInvalidArgument, fmt.Sprintf(format, args...))
}
