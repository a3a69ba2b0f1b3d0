// Package principal describes who is acting: a generic-store user or a staff
// member. The two variants are resolved once at authentication and carried as
// a single Principal value; downstream code switches on the concrete type.
package principal

import "time"

// Origin names the identity store a principal lives in.
type Origin string

const (
	OriginUser  Origin = "user"
	OriginStaff Origin = "staff"
)

// Other returns the store that is not o.
func (o Origin) Other() Origin {
	if o == OriginStaff {
		return OriginUser
	}
	return OriginStaff
}

// Role is shared by both stores. Generic roles are lower case, staff roles upper case.
type Role string

// generic store roles
const (
	RoleAdmin   Role = "admin"
	RoleCitizen Role = "citizen"
)

// staff store roles
const (
	RoleClerk       Role = "CLERK"
	RoleInspector   Role = "INSPECTOR"
	RoleOfficer     Role = "OFFICER"
	RoleCollector   Role = "COLLECTOR"
	RoleEO          Role = "EO"
	RoleSupervisor  Role = "SUPERVISOR"
	RoleFieldWorker Role = "FIELD_WORKER"
	RoleContractor  Role = "CONTRACTOR"
	RoleStaffAdmin  Role = "ADMIN"
)

// StaffRoles lists every role accepted in the staff store.
var StaffRoles = []Role{
	RoleClerk, RoleInspector, RoleOfficer, RoleCollector, RoleEO,
	RoleSupervisor, RoleFieldWorker, RoleContractor, RoleStaffAdmin,
}

// IsStaffRole reports whether r is a staff store role.
func (r Role) IsStaffRole() bool {
	for _, s := range StaffRoles {
		if r == s {
			return true
		}
	}
	return false
}

// Rank orders the supervision hierarchy ADMIN > EO > SUPERVISOR > FIELD_WORKER/CONTRACTOR.
// Roles outside the hierarchy rank 0 and can neither hold nor be parents.
func (r Role) Rank() int {
	switch r {
	case RoleStaffAdmin:
		return 4
	case RoleEO:
		return 3
	case RoleSupervisor:
		return 2
	case RoleFieldWorker, RoleContractor:
		return 1
	default:
		return 0
	}
}

// Status values shared by both stores.
const (
	StatusActive   = "active"
	StatusInactive = "inactive"
)

// Principal is implemented by *Generic and *Staff only.
type Principal interface {
	PrincipalID() int64
	PrincipalRole() Role
	Origin() Origin
	Active() bool
	sealed()
}

// Generic is a principal from the generic user store (admins, citizens).
type Generic struct {
	ID       int64   `json:"id"`
	Username *string `json:"username,omitempty"`
	Email    *string `json:"email,omitempty"`
	Role     Role    `json:"role"`
	Status   string  `json:"status"`
}

func (g *Generic) PrincipalID() int64  { return g.ID }
func (g *Generic) PrincipalRole() Role { return g.Role }
func (g *Generic) Origin() Origin      { return OriginUser }
func (g *Generic) Active() bool        { return g.Status == StatusActive }
func (g *Generic) sealed()             {}

// Staff is a principal from the staff store. It never carries the password hash.
type Staff struct {
	ID           int64      `json:"id"`
	EmployeeCode string     `json:"employeeCode"`
	Name         string     `json:"name"`
	Role         Role       `json:"role"`
	Status       string     `json:"status"`
	WardIDs      []int64    `json:"wardIds"`
	WardID       *int64     `json:"wardId,omitempty"`
	UlbID        *int64     `json:"ulbId,omitempty"`
	EOID         *int64     `json:"eoId,omitempty"`
	SupervisorID *int64     `json:"supervisorId,omitempty"`
	ContractorID *int64     `json:"contractorId,omitempty"`
	LastLoginAt  *time.Time `json:"lastLoginAt,omitempty"`
}

func (s *Staff) PrincipalID() int64  { return s.ID }
func (s *Staff) PrincipalRole() Role { return s.Role }
func (s *Staff) Origin() Origin      { return OriginStaff }
func (s *Staff) Active() bool        { return s.Status == StatusActive }
func (s *Staff) sealed()             {}
