// Package scope derives the set of wards a principal may act on. Resolution
// reads only the authenticated principal, never request input.
package scope

import (
	"slices"

	sq "github.com/Masterminds/squirrel"
	"github.com/lib/pq"

	"github.com/ovaphlow/pitchfork/service-municipal/internal/apperr"
	"github.com/ovaphlow/pitchfork/service-municipal/internal/principal"
)

// Kind of a resolved scope.
type Kind int

const (
	Denied Kind = iota
	All
	Wards
)

func (k Kind) String() string {
	switch k {
	case All:
		return "all"
	case Wards:
		return "wards"
	default:
		return "denied"
	}
}

// Scope is an immutable ward visibility set. The zero value is Denied.
type Scope struct {
	kind  Kind
	wards []int64
}

func DenyAll() Scope { return Scope{kind: Denied} }
func AllWards() Scope { return Scope{kind: All} }

// ForWards builds a ward scope; an empty id list fails closed to Denied.
func ForWards(ids ...int64) Scope {
	if len(ids) == 0 {
		return DenyAll()
	}
	w := slices.Clone(ids)
	slices.Sort(w)
	return Scope{kind: Wards, wards: slices.Compact(w)}
}

func (s Scope) Kind() Kind { return s.kind }
func (s Scope) IsAll() bool { return s.kind == All }
func (s Scope) IsDenied() bool { return s.kind == Denied }
func (s Scope) WardIDs() []int64 { return slices.Clone(s.wards) }

// Allows reports whether wardID is inside the scope.
func (s Scope) Allows(wardID int64) bool {
	switch s.kind {
	case All:
		return true
	case Wards:
		_, found := slices.BinarySearch(s.wards, wardID)
		return found
	default:
		return false
	}
}

// Apply adds the ward filter on column to q. It must be called before any
// other Where clause is added. A Denied scope returns Forbidden.
func (s Scope) Apply(q sq.SelectBuilder, column string) (sq.SelectBuilder, error) {
	switch s.kind {
	case All:
		return q, nil
	case Wards:
		return q.Where(sq.Eq{column: s.wards}), nil
	default:
		return q, apperr.Forbidden("no ward scope")
	}
}

// ApplyOverlap is Apply for rows holding a ward array: a row matches when
// any of its wards is in scope.
func (s Scope) ApplyOverlap(q sq.SelectBuilder, column string) (sq.SelectBuilder, error) {
	switch s.kind {
	case All:
		return q, nil
	case Wards:
		return q.Where(column+" && ?", pq.Int64Array(s.wards)), nil
	default:
		return q, apperr.Forbidden("no ward scope")
	}
}

// Resolve maps a principal to its scope. Every role has a defined outcome;
// anything unrecognized is Denied.
func Resolve(p principal.Principal) Scope {
	switch v := p.(type) {
	case *principal.Generic:
		if v.Role == principal.RoleAdmin {
			return AllWards()
		}
		// citizens are authorized by property ownership, not wards
		return DenyAll()
	case *principal.Staff:
		switch v.Role {
		case principal.RoleCollector, principal.RoleOfficer, principal.RoleStaffAdmin:
			// officers keep ward ids for display; access is never ward-restricted
			return AllWards()
		case principal.RoleClerk, principal.RoleInspector, principal.RoleEO:
			return ForWards(v.WardIDs...)
		case principal.RoleSupervisor, principal.RoleFieldWorker, principal.RoleContractor:
			if v.WardID == nil {
				return DenyAll()
			}
			return ForWards(*v.WardID)
		}
	}
	return DenyAll()
}
