// Package access implements flat role-based gating over the shared state.
// There is no role hierarchy; checks are plain set membership.
package access

import (
	"github.com/ethereum/go-ethereum/common"

	"github.com/agilemesh/ceremony-engine/internal/domain"
	"github.com/agilemesh/ceremony-engine/internal/store"
)

// Has reports whether an identity holds a role. Pure lookup, used as a guard
// by every facet.
func Has(st *store.State, role domain.Role, identity common.Address) bool {
	return st.HasRole(role, identity)
}

// Require fails with ErrNotAuthorized unless the identity holds the role.
func Require(st *store.State, role domain.Role, identity common.Address) error {
	if !st.HasRole(role, identity) {
		return domain.ErrNotAuthorized
	}
	return nil
}

// Grant adds an identity to a role set. Only an ADMIN holder may grant; the
// bootstrap grant during initialization bypasses this through the store
// directly.
func Grant(st *store.State, caller common.Address, role domain.Role, identity common.Address) error {
	if err := Require(st, domain.RoleAdmin, caller); err != nil {
		return err
	}
	if domain.IsZeroAddress(identity) {
		return domain.ErrZeroIdentity
	}
	st.GrantRole(role, identity)
	return nil
}

// Revoke removes an identity from a role set. ADMIN-only.
func Revoke(st *store.State, caller common.Address, role domain.Role, identity common.Address) error {
	if err := Require(st, domain.RoleAdmin, caller); err != nil {
		return err
	}
	if domain.IsZeroAddress(identity) {
		return domain.ErrZeroIdentity
	}
	st.RevokeRole(role, identity)
	return nil
}
