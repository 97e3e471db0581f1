// Package store owns the single shared state all facets operate on. Facets
// hold no private copies; every read and write goes through a *State, which
// is why schema versioning and canonical key hashing live here instead of
// being duplicated per facet.
package store

import (
	"math/big"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/crypto"

	"github.com/agilemesh/ceremony-engine/internal/domain"
	"github.com/agilemesh/ceremony-engine/internal/store/schema"
)

// State is the shared state blob, partitioned into logical regions. It must
// survive facet upgrades: the router keeps one State and passes it to every
// facet call.
type State struct {
	// Version is the schema version tag; zero means uninitialized
	Version uint64
	// InitializedAt is recorded once by InitializeIfEmpty
	InitializedAt time.Time

	// Config is the configuration region
	Config *schema.ConfigState
	// Treasury is the native-value treasury region
	Treasury *schema.TreasuryState
	// Roles is the flat (role, identity) membership set
	Roles map[domain.Role]map[common.Address]bool
	// Memberships is the one-record-per-identity badge region
	Memberships map[common.Address]*schema.Membership
	// Ceremonies is keyed by the canonical code hash
	Ceremonies map[common.Hash]*schema.Ceremony
	// CeremonyOrder preserves creation order for introspection
	CeremonyOrder []common.Hash
	// CodeIndex maps canonical hashes back to their display codes; populated
	// on the write path only
	CodeIndex map[common.Hash]string
}

// New returns an empty, uninitialized state.
func New() *State {
	return &State{
		Config:      &schema.ConfigState{},
		Treasury:    &schema.TreasuryState{Balance: new(big.Int)},
		Roles:       make(map[domain.Role]map[common.Address]bool),
		Memberships: make(map[common.Address]*schema.Membership),
		Ceremonies:  make(map[common.Hash]*schema.Ceremony),
		CodeIndex:   make(map[common.Hash]string),
	}
}

// InitializeIfEmpty tags the state with the current schema version and
// records the init timestamp. It is idempotent: an already-initialized state
// is left untouched.
func (s *State) InitializeIfEmpty(now time.Time) {
	if s.Version != 0 {
		return
	}
	s.Version = domain.CurrentSchemaVersion
	s.InitializedAt = now
}

// RequireCurrentVersion asserts that the stored version matches the version
// this build expects. Any mutating operation calls this first; a mismatch is
// fatal for the deployment, not caller-recoverable.
func (s *State) RequireCurrentVersion() error {
	if s.Version == 0 {
		return domain.ErrStorageNotInitialized
	}
	if s.Version != domain.CurrentSchemaVersion {
		return &domain.VersionMismatchError{
			Expected: domain.CurrentSchemaVersion,
			Actual:   s.Version,
		}
	}
	return nil
}

// HashCode derives the canonical fixed-size key for a string code without
// mutating state. Read paths use this so that view operations never incur a
// write.
func HashCode(code string) common.Hash {
	return crypto.Keccak256Hash([]byte(code))
}

// RegisterCode derives the canonical key for a code and records the
// code-to-hash association. Write paths use this so the display code can be
// recovered from the hash later.
func (s *State) RegisterCode(code string) common.Hash {
	key := HashCode(code)
	s.CodeIndex[key] = code
	return key
}

// CeremonyByCode resolves a display code to its ceremony via the canonical
// key, read path.
func (s *State) CeremonyByCode(code string) (*schema.Ceremony, bool) {
	c, ok := s.Ceremonies[HashCode(code)]
	return c, ok
}

// PutCeremony stores a ceremony under its canonical key and registers its
// display code.
func (s *State) PutCeremony(c *schema.Ceremony) {
	key := s.RegisterCode(c.Code)
	c.Key = key
	if _, exists := s.Ceremonies[key]; !exists {
		s.CeremonyOrder = append(s.CeremonyOrder, key)
	}
	s.Ceremonies[key] = c
}

// MembershipOf returns the membership record of an identity, or nil if the
// identity holds no unit.
func (s *State) MembershipOf(addr common.Address) *schema.Membership {
	return s.Memberships[addr]
}

// HasRole reports flat (role, identity) set membership.
func (s *State) HasRole(role domain.Role, addr common.Address) bool {
	return s.Roles[role][addr]
}

// GrantRole adds an identity to a role set.
func (s *State) GrantRole(role domain.Role, addr common.Address) {
	if s.Roles[role] == nil {
		s.Roles[role] = make(map[common.Address]bool)
	}
	s.Roles[role][addr] = true
}

// RevokeRole removes an identity from a role set.
func (s *State) RevokeRole(role domain.Role, addr common.Address) {
	delete(s.Roles[role], addr)
}

// Clone returns a deep copy of the whole state. The router dispatches every
// operation against a clone and swaps it in only on success, which is what
// makes failed operations all-or-nothing.
func (s *State) Clone() *State {
	out := &State{
		Version:       s.Version,
		InitializedAt: s.InitializedAt,
		Config:        s.Config.Clone(),
		Treasury:      s.Treasury.Clone(),
		Roles:         make(map[domain.Role]map[common.Address]bool, len(s.Roles)),
		Memberships:   make(map[common.Address]*schema.Membership, len(s.Memberships)),
		Ceremonies:    make(map[common.Hash]*schema.Ceremony, len(s.Ceremonies)),
		CeremonyOrder: append([]common.Hash(nil), s.CeremonyOrder...),
		CodeIndex:     make(map[common.Hash]string, len(s.CodeIndex)),
	}
	for role, members := range s.Roles {
		set := make(map[common.Address]bool, len(members))
		for addr, ok := range members {
			set[addr] = ok
		}
		out.Roles[role] = set
	}
	for addr, m := range s.Memberships {
		out.Memberships[addr] = m.Clone()
	}
	for key, c := range s.Ceremonies {
		out.Ceremonies[key] = c.Clone()
	}
	for key, code := range s.CodeIndex {
		out.CodeIndex[key] = code
	}
	return out
}
