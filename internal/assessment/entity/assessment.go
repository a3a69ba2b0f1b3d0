package entity

import "time"

const (
	StatusDraft    = "draft"
	StatusPending  = "pending"
	StatusApproved = "approved"
	StatusRejected = "rejected"
)

// Assessment is a shop tax assessment for one period. At most one exists per
// (shop, period).
type Assessment struct {
	ID               int64      `db:"id" json:"id,string"`
	AssessmentNumber string     `db:"assessment_number" json:"assessmentNumber"`
	ShopID           int64      `db:"shop_id" json:"shopId,string"`
	WardID           int64      `db:"ward_id" json:"wardId"`
	Period           string     `db:"period" json:"period"`
	Amount           float64    `db:"amount" json:"amount"`
	Status           string     `db:"status" json:"status"`
	AssessorID       int64      `db:"assessor_id" json:"assessorId"`
	AssessorType     string     `db:"assessor_type" json:"assessorType"`
	ApproverID       *int64     `db:"approver_id" json:"approverId,omitempty"`
	ApproverType     *string    `db:"approver_type" json:"approverType,omitempty"`
	ApprovalDate     *time.Time `db:"approval_date" json:"approvalDate,omitempty"`
	Remarks          *string    `db:"remarks" json:"remarks,omitempty"`
	CreatedAt        time.Time  `db:"created_at" json:"createdAt"`
	UpdatedAt        time.Time  `db:"updated_at" json:"updatedAt"`
}

type Filter struct {
	Status string
	ShopID *int64
	Period string
	Limit  int
	Offset int
}

// Decision is what a transition writes besides the status.
type Decision struct {
	ApproverID   *int64
	ApproverType *string
	ApprovalDate *time.Time
	Remarks      *string
}
