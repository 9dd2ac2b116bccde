// Package store defines the persistence contracts used by the cloudpay
// services.  Implementations live in the memory, sqlite and graph
// subpackages.
package store

import "errors"

var (
	ErrNotFound  = errors.New("record not found")
	ErrDuplicate = errors.New("record conflicts with an active record")

	// ErrStatusFinal is returned when a late status would move a
	// transaction out of a settled state.
	ErrStatusFinal = errors.New("transaction status is final")
)
