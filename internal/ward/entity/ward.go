package entity

import "time"

// ULB is an urban local body, the top administrative unit.
type ULB struct {
	ID        int64     `db:"id" json:"id"`
	Name      string    `db:"name" json:"name"`
	Code      string    `db:"code" json:"code"`
	CreatedAt time.Time `db:"created_at" json:"createdAt"`
}

// Ward belongs to one ULB. ClerkID is the one-clerk-per-ward back-reference.
type Ward struct {
	ID        int64     `db:"id" json:"id"`
	UlbID     *int64    `db:"ulb_id" json:"ulbId"`
	Number    string    `db:"number" json:"number"`
	Name      string    `db:"name" json:"name"`
	ClerkID   *int64    `db:"clerk_id" json:"clerkId,omitempty"`
	CreatedAt time.Time `db:"created_at" json:"createdAt"`
}

// InULB reports whether the ward belongs to ulbID.
func (w *Ward) InULB(ulbID int64) bool {
	return w.UlbID != nil && *w.UlbID == ulbID
}
