package service

import "errors"

var (
	ErrNotFound = errors.New("not found")
	ErrConflict = errors.New("conflict")

	ErrInvalidSample   = errors.New("biometric sample is required")
	ErrInvalidIdentity = errors.New("customer_id or user_id is required")
	ErrInvalidMerchant = errors.New("merchant_id is required")
	ErrInvalidAmount   = errors.New("amount must be positive")
)
