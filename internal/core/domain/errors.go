package domain

import "errors"

var (
	ErrValidation          = errors.New("invalid request")
	ErrDuplicateEmail      = errors.New("email is already registered")
	ErrInvalidCredentials  = errors.New("invalid email or password")
	ErrInvalidToken        = errors.New("invalid token")
	ErrInvalidRefreshToken = errors.New("invalid refresh token")
	ErrUserNotFound        = errors.New("user not found")
	ErrPaymentNotFound     = errors.New("payment not found")
	ErrGateway             = errors.New("payment gateway error")
	ErrGatewayAuth         = errors.New("payment gateway authentication failed")
	ErrConflict            = errors.New("conflicting update lost the race")
)
