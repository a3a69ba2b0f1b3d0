package entity

import (
	"slices"
	"time"

	"github.com/lib/pq"

	"github.com/ovaphlow/pitchfork/service-municipal/internal/principal"
)

// Staff is a row of the `staff` table.
type Staff struct {
	ID           int64         `db:"id" json:"id"`
	EmployeeCode string        `db:"employee_code" json:"employeeCode"`
	Name         string        `db:"name" json:"name"`
	Email        *string       `db:"email" json:"email,omitempty"`
	PhoneNumber  *string       `db:"phone_number" json:"phoneNumber,omitempty"`
	Username     *string       `db:"username" json:"username,omitempty"`
	PasswordHash string        `db:"password_hash" json:"-"`
	PasswordAlgo string        `db:"password_algo" json:"-"`
	Role         string        `db:"role" json:"role"`
	Status       string        `db:"status" json:"status"`
	WardIDs      pq.Int64Array `db:"ward_ids" json:"wardIds"`
	WardID       *int64        `db:"ward_id" json:"wardId,omitempty"`
	UlbID        *int64        `db:"ulb_id" json:"ulbId,omitempty"`
	EOID         *int64        `db:"eo_id" json:"eoId,omitempty"`
	SupervisorID *int64        `db:"supervisor_id" json:"supervisorId,omitempty"`
	ContractorID *int64        `db:"contractor_id" json:"contractorId,omitempty"`
	LastLoginAt  *time.Time    `db:"last_login_at" json:"lastLoginAt,omitempty"`
	CreatedAt    time.Time     `db:"created_at" json:"createdAt"`
	UpdatedAt    time.Time     `db:"updated_at" json:"updatedAt"`
}

func (s *Staff) RoleValue() principal.Role { return principal.Role(s.Role) }

func (s *Staff) IsActive() bool { return s.Status == principal.StatusActive }

// Wards returns every ward the record references, without duplicates.
func (s *Staff) Wards() []int64 {
	out := slices.Clone([]int64(s.WardIDs))
	if s.WardID != nil && !slices.Contains(out, *s.WardID) {
		out = append(out, *s.WardID)
	}
	return out
}

// Principal projects the row onto the descriptor carried by a request. The
// password hash is not copied.
func (s *Staff) Principal() *principal.Staff {
	return &principal.Staff{
		ID:           s.ID,
		EmployeeCode: s.EmployeeCode,
		Name:         s.Name,
		Role:         s.RoleValue(),
		Status:       s.Status,
		WardIDs:      slices.Clone([]int64(s.WardIDs)),
		WardID:       s.WardID,
		UlbID:        s.UlbID,
		EOID:         s.EOID,
		SupervisorID: s.SupervisorID,
		ContractorID: s.ContractorID,
		LastLoginAt:  s.LastLoginAt,
	}
}

// Contact is the set of globally unique contact fields.
type Contact struct {
	Email    *string
	Phone    *string
	Username *string
}

// Filter narrows staff listings.
type Filter struct {
	Role   string
	Status string
	UlbID  *int64
	Limit  int
	Offset int
}
