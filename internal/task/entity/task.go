package entity

import "time"

// Task status values. Progression is forward only.
const (
	StatusAssigned   = "ASSIGNED"
	StatusInProgress = "IN_PROGRESS"
	StatusCompleted  = "COMPLETED"
)

// StatusRank orders statuses; unknown values rank -1.
func StatusRank(s string) int {
	switch s {
	case StatusAssigned:
		return 0
	case StatusInProgress:
		return 1
	case StatusCompleted:
		return 2
	default:
		return -1
	}
}

// Task is a row of `worker_tasks`. WardID and UlbID are copied from the
// supervisor when the task is assigned and never re-derived.
type Task struct {
	ID             int64      `db:"id" json:"id,string"`
	WorkerID       int64      `db:"worker_id" json:"workerId"`
	SupervisorID   int64      `db:"supervisor_id" json:"supervisorId"`
	WardID         int64      `db:"ward_id" json:"wardId"`
	UlbID          *int64     `db:"ulb_id" json:"ulbId,omitempty"`
	Title          string     `db:"title" json:"title"`
	Description    string     `db:"description" json:"description"`
	Status         string     `db:"status" json:"status"`
	AssignedDate   time.Time  `db:"assigned_date" json:"assignedDate"`
	BeforePhoto    *string    `db:"before_photo" json:"beforePhoto,omitempty"`
	AfterPhoto     *string    `db:"after_photo" json:"afterPhoto,omitempty"`
	EscalationFlag bool       `db:"escalation_flag" json:"escalationFlag"`
	CompletedAt    *time.Time `db:"completed_at" json:"completedAt,omitempty"`
	CreatedAt      time.Time  `db:"created_at" json:"createdAt"`
	UpdatedAt      time.Time  `db:"updated_at" json:"updatedAt"`
}

type Filter struct {
	Status       string
	WorkerID     *int64
	SupervisorID *int64
	Escalated    *bool
	Limit        int
	Offset       int
}
