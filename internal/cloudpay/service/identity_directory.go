package service

import (
	"context"
	"strings"

	"github.com/protega/cloudpay/server/internal/cloudpay/store"
)

type IdentityDirectory struct {
	store store.IdentityStore
}

func NewIdentityDirectory(st store.IdentityStore) *IdentityDirectory {
	return &IdentityDirectory{store: st}
}

func (d *IdentityDirectory) IsActive(ctx context.Context, ref store.IdentityRef) (bool, error) {
	ref.ID = strings.TrimSpace(ref.ID)
	if ref.ID == "" {
		return false, nil
	}
	return d.store.IsActive(ctx, ref)
}

// AllActive reports whether every identity bound to rec is active.
func (d *IdentityDirectory) AllActive(ctx context.Context, rec store.BiometricRecord) (bool, error) {
	refs := make([]store.IdentityRef, 0, 2)
	if rec.CustomerID != "" {
		refs = append(refs, store.IdentityRef{Kind: store.IdentityCustomer, ID: rec.CustomerID})
	}
	if rec.UserID != "" {
		refs = append(refs, store.IdentityRef{Kind: store.IdentityUser, ID: rec.UserID})
	}
	if len(refs) == 0 {
		return false, nil
	}

	for _, ref := range refs {
		ok, err := d.IsActive(ctx, ref)
		if err != nil || !ok {
			return false, err
		}
	}
	return true, nil
}
