// Package rbac maps wallet addresses to roles and enforces minimum-role
// checks.
package rbac

import (
	"context"
	"fmt"
	"strings"

	"github.com/blockvault/internal/apperr"
	"github.com/blockvault/internal/identity"
)

// Role is ordered: Viewer < Owner < Admin.
type Role int

const (
	RoleUnknown Role = 0
	RoleViewer  Role = 1
	RoleOwner   Role = 2
	RoleAdmin   Role = 3
)

func (r Role) String() string {
	switch r {
	case RoleViewer:
		return "viewer"
	case RoleOwner:
		return "owner"
	case RoleAdmin:
		return "admin"
	default:
		return "unknown"
	}
}

// ParseRole parses a role name (case-insensitive).
func ParseRole(name string) (Role, error) {
	switch strings.ToLower(strings.TrimSpace(name)) {
	case "viewer":
		return RoleViewer, nil
	case "owner":
		return RoleOwner, nil
	case "admin":
		return RoleAdmin, nil
	default:
		return RoleUnknown, fmt.Errorf("unknown role %q", name)
	}
}

var ErrInsufficientRole = apperr.New(apperr.Forbidden, "insufficient role")

// Resolver resolves the role of an address.
type Resolver interface {
	Resolve(address identity.Address) Role
}

// EnsureAtLeast fails with ErrInsufficientRole if address resolves below
// minimum.
func EnsureAtLeast(r Resolver, address identity.Address, minimum Role) error {
	if r.Resolve(address) < minimum {
		return ErrInsufficientRole
	}
	return nil
}

// StaticResolver resolves roles from fixed address lists. Addresses on
// neither list get the default role.
type StaticResolver struct {
	admins      map[identity.Address]struct{}
	viewers     map[identity.Address]struct{}
	defaultRole Role
}

// NewStaticResolver builds a resolver. Invalid addresses in the lists are
// reported instead of silently ignored.
func NewStaticResolver(defaultRole Role, admins, viewers []string) (*StaticResolver, error) {
	if defaultRole == RoleUnknown {
		defaultRole = RoleOwner
	}
	r := &StaticResolver{
		admins:      make(map[identity.Address]struct{}, len(admins)),
		viewers:     make(map[identity.Address]struct{}, len(viewers)),
		defaultRole: defaultRole,
	}
	for _, raw := range admins {
		addr, err := identity.Normalize(raw)
		if err != nil {
			return nil, fmt.Errorf("admin %q: %w", raw, err)
		}
		r.admins[addr] = struct{}{}
	}
	for _, raw := range viewers {
		addr, err := identity.Normalize(raw)
		if err != nil {
			return nil, fmt.Errorf("viewer %q: %w", raw, err)
		}
		r.viewers[addr] = struct{}{}
	}
	return r, nil
}

// Resolve returns admin before viewer before the default.
func (r *StaticResolver) Resolve(address identity.Address) Role {
	if _, ok := r.admins[address]; ok {
		return RoleAdmin
	}
	if _, ok := r.viewers[address]; ok {
		return RoleViewer
	}
	return r.defaultRole
}

// EnsureAtLeast fails with ErrInsufficientRole if address resolves below
// minimum.
func (r *StaticResolver) EnsureAtLeast(address identity.Address, minimum Role) error {
	return EnsureAtLeast(r, address, minimum)
}

// Principal is the authenticated caller of a request: the verified address
// and the role resolved for it once by the authentication gate.
type Principal struct {
	Address identity.Address
	Role    Role
}

// EnsureAtLeast fails with ErrInsufficientRole if the principal's role is
// below minimum.
func (p Principal) EnsureAtLeast(minimum Role) error {
	if p.Role < minimum {
		return ErrInsufficientRole
	}
	return nil
}

type principalKey struct{}

// WithPrincipal returns a context carrying p.
func WithPrincipal(ctx context.Context, p Principal) context.Context {
	return context.WithValue(ctx, principalKey{}, p)
}

// FromContext returns the principal bound by the authentication gate.
func FromContext(ctx context.Context) (Principal, bool) {
	p, ok := ctx.Value(principalKey{}).(Principal)
	return p, ok
}
