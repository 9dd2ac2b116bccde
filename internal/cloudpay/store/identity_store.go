package store

import (
	"context"
	"fmt"
	"strings"
)

type IdentityKind string

const (
	IdentityCustomer IdentityKind = "customer"
	IdentityUser     IdentityKind = "user"
)

// ParseIdentityKind accepts "customer"/"customers" and "user"/"users".
func ParseIdentityKind(s string) (IdentityKind, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "customer", "customers":
		return IdentityCustomer, nil
	case "user", "users":
		return IdentityUser, nil
	}
	return "", fmt.Errorf("unknown identity kind %q", s)
}

type IdentityRef struct {
	Kind IdentityKind
	ID   string
}

func (r IdentityRef) String() string { return string(r.Kind) + ":" + r.ID }

// IdentityStore is the customer/user directory owned by another service.
// The authenticator only needs to know whether an identity may still pay.
type IdentityStore interface {
	IsActive(ctx context.Context, ref IdentityRef) (bool, error)
}
