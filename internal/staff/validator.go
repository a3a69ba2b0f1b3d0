package staff

import (
	"context"
	"fmt"

	"github.com/lib/pq"

	"github.com/ovaphlow/pitchfork/service-municipal/internal/apperr"
	"github.com/ovaphlow/pitchfork/service-municipal/internal/principal"
	"github.com/ovaphlow/pitchfork/service-municipal/internal/staff/entity"
	wardentity "github.com/ovaphlow/pitchfork/service-municipal/internal/ward/entity"
)

// Directory is the read side of the staff store used during validation.
type Directory interface {
	GetByID(ctx context.Context, id int64) (*entity.Staff, error)
	FindContactConflicts(ctx context.Context, c entity.Contact, excludeID int64) ([]string, error)
	ListDependents(ctx context.Context, id int64) ([]entity.Staff, error)
}

// WardLookup resolves ward reference data.
type WardLookup interface {
	GetWard(ctx context.Context, id int64) (*wardentity.Ward, error)
}

// Validator checks staff records and task assignments against the role
// hierarchy and ward/ULB consistency rules. Rules run in a fixed order and the
// first failure is returned.
type Validator struct {
	dir   Directory
	wards WardLookup
}

func NewValidator(dir Directory, wards WardLookup) *Validator {
	return &Validator{dir: dir, wards: wards}
}

func singleWardRole(r principal.Role) bool {
	return r == principal.RoleSupervisor || r == principal.RoleFieldWorker || r == principal.RoleContractor
}

func sameID(a, b *int64) bool {
	return a != nil && b != nil && *a == *b
}

func refersTo(link *int64, id int64) bool {
	return link != nil && *link == id
}

// ValidateStaff validates cand before it is written. existing is the stored
// record on update and nil on create. On success cand carries the derived ULB
// and normalized ward fields.
func (v *Validator) ValidateStaff(ctx context.Context, cand, existing *entity.Staff) error {
	role := cand.RoleValue()
	if !role.IsStaffRole() {
		return apperr.Validation("", fmt.Sprintf("unknown staff role %q", cand.Role))
	}
	var selfID int64
	if existing != nil {
		selfID = existing.ID
	}

	// uniqueness
	conflicts, err := v.dir.FindContactConflicts(ctx, entity.Contact{
		Email: cand.Email, Phone: cand.PhoneNumber, Username: cand.Username,
	}, selfID)
	if err != nil {
		return err
	}
	if len(conflicts) > 0 {
		return apperr.Conflict("", "contact details already in use").WithDetail("fields", conflicts)
	}

	// ward derivation
	cache := map[int64]*wardentity.Ward{}
	ulbExplicit := cand.UlbID != nil
	if singleWardRole(role) {
		if cand.WardID == nil {
			return apperr.Validation(apperr.ReasonInvalidWard, fmt.Sprintf("%s requires a ward", role))
		}
		w, err := v.ward(ctx, cache, *cand.WardID)
		if err != nil {
			return err
		}
		if w.UlbID == nil {
			return apperr.Validation(apperr.ReasonInvalidWard, "ward has no ulb").WithDetail("wardId", w.ID)
		}
		if !ulbExplicit {
			ulb := *w.UlbID
			cand.UlbID = &ulb
		}
		cand.WardIDs = pq.Int64Array{*cand.WardID}
	} else {
		// multi-ward roles use ward_ids only; a clerk's ward_id is mirrored below
		cand.WardID = nil
	}
	if cand.WardIDs == nil {
		cand.WardIDs = pq.Int64Array{}
	}

	// ward ⊂ ulb
	if role == principal.RoleEO && cand.UlbID == nil {
		return apperr.Validation(apperr.ReasonInvalidWard, "EO requires a ulb")
	}
	checkULB := role == principal.RoleEO || ulbExplicit
	var mismatched []int64
	for _, id := range cand.Wards() {
		w, err := v.ward(ctx, cache, id)
		if err != nil {
			return err
		}
		if checkULB && !w.InULB(*cand.UlbID) {
			mismatched = append(mismatched, id)
		}
	}
	if len(mismatched) > 0 {
		return apperr.Validation(apperr.ReasonWardUlbMismatch, "wards do not belong to the ulb").
			WithDetail("wardIds", mismatched).WithDetail("ulbId", *cand.UlbID)
	}

	// parents
	if err := v.checkParents(ctx, cand, selfID); err != nil {
		return err
	}
	if existing != nil {
		if err := v.checkDependents(ctx, cand, existing); err != nil {
			return err
		}
	}

	// single-ward clerk
	if role == principal.RoleClerk {
		if len(cand.WardIDs) != 1 {
			return apperr.Validation("", "a clerk must hold exactly one ward").WithDetail("wardIds", []int64(cand.WardIDs))
		}
		id := cand.WardIDs[0]
		cand.WardID = &id
		if w := cache[id]; w.ClerkID != nil && *w.ClerkID != selfID {
			return apperr.Conflict(apperr.ReasonWardTaken, "ward already has a clerk").WithDetail("wardId", id)
		}
	}
	return nil
}

func (v *Validator) ward(ctx context.Context, cache map[int64]*wardentity.Ward, id int64) (*wardentity.Ward, error) {
	if w, ok := cache[id]; ok {
		return w, nil
	}
	w, err := v.wards.GetWard(ctx, id)
	if err != nil {
		if apperr.KindOf(err) == apperr.KindNotFound {
			return nil, apperr.Validation(apperr.ReasonInvalidWard, "ward does not exist").WithDetail("wardId", id)
		}
		return nil, err
	}
	cache[id] = w
	return w, nil
}

type parentLink struct {
	field string
	id    *int64
	role  principal.Role
}

func invalidParent(format string, args ...any) *apperr.Error {
	return apperr.New(apperr.KindValidation, apperr.ReasonInvalidParent, format, args...)
}

// checkParents enforces upward-only links. Ranks are strictly ordered, so a
// valid link set can never form a cycle.
func (v *Validator) checkParents(ctx context.Context, cand *entity.Staff, selfID int64) error {
	role := cand.RoleValue()
	links := []parentLink{
		{"eoId", cand.EOID, principal.RoleEO},
		{"supervisorId", cand.SupervisorID, principal.RoleSupervisor},
		{"contractorId", cand.ContractorID, principal.RoleContractor},
	}
	for _, l := range links {
		if l.id == nil {
			continue
		}
		if selfID != 0 && *l.id == selfID {
			return invalidParent("%s references the record itself", l.field)
		}
		if role.Rank() == 0 {
			return invalidParent("%s takes no hierarchy links", role)
		}
		if l.role == principal.RoleContractor && role != principal.RoleFieldWorker {
			return invalidParent("only field workers have a contractor")
		}
		parent, err := v.dir.GetByID(ctx, *l.id)
		if err != nil {
			if apperr.KindOf(err) == apperr.KindNotFound {
				return invalidParent("%s %d does not exist", l.field, *l.id)
			}
			return err
		}
		if parent.RoleValue() != l.role {
			return invalidParent("%s must reference a %s", l.field, l.role)
		}
		// contractor is an affiliation between equal ranks
		if l.role != principal.RoleContractor && parent.RoleValue().Rank() <= role.Rank() {
			return invalidParent("%s must rank above %s", l.field, role)
		}
		if !sameID(parent.UlbID, cand.UlbID) {
			return invalidParent("%s belongs to another ulb", l.field)
		}
		if l.role != principal.RoleEO && !sameID(parent.WardID, cand.WardID) {
			return invalidParent("%s belongs to another ward", l.field)
		}
	}
	return nil
}

// checkDependents rejects updates that would leave records pointing at
// existing with a link that no longer holds.
func (v *Validator) checkDependents(ctx context.Context, cand, existing *entity.Staff) error {
	if cand.Role == existing.Role && sameOrBothNil(cand.UlbID, existing.UlbID) && sameOrBothNil(cand.WardID, existing.WardID) {
		return nil
	}
	deps, err := v.dir.ListDependents(ctx, existing.ID)
	if err != nil {
		return err
	}
	role := cand.RoleValue()
	var stranded []int64
	for _, d := range deps {
		ok := true
		if refersTo(d.EOID, existing.ID) {
			ok = ok && role == principal.RoleEO && sameID(d.UlbID, cand.UlbID)
		}
		if refersTo(d.SupervisorID, existing.ID) {
			ok = ok && role == principal.RoleSupervisor && sameID(d.UlbID, cand.UlbID) && sameID(d.WardID, cand.WardID)
		}
		if refersTo(d.ContractorID, existing.ID) {
			ok = ok && role == principal.RoleContractor && sameID(d.UlbID, cand.UlbID) && sameID(d.WardID, cand.WardID)
		}
		if !ok {
			stranded = append(stranded, d.ID)
		}
	}
	if len(stranded) > 0 {
		return invalidParent("change would invalidate %d dependent records", len(stranded)).WithDetail("staffIds", stranded)
	}
	return nil
}

func sameOrBothNil(a, b *int64) bool {
	return (a == nil && b == nil) || sameID(a, b)
}

// ValidateAssignment checks that worker may be given a task by supervisor.
func (v *Validator) ValidateAssignment(supervisor, worker *entity.Staff) error {
	if supervisor.RoleValue() != principal.RoleSupervisor || !supervisor.IsActive() {
		return invalidParent("tasks are assigned through an active supervisor")
	}
	notEligible := func(msg string) error {
		return apperr.Validation(apperr.ReasonWorkerNotEligible, msg).WithDetail("workerId", worker.ID)
	}
	switch worker.RoleValue() {
	case principal.RoleFieldWorker, principal.RoleContractor:
	default:
		return notEligible("worker must be a field worker or contractor")
	}
	if !worker.IsActive() {
		return notEligible("worker is not active")
	}
	if !sameID(worker.WardID, supervisor.WardID) {
		return notEligible("worker is in another ward")
	}
	if !sameID(worker.UlbID, supervisor.UlbID) {
		return notEligible("worker is in another ulb")
	}
	return nil
}
