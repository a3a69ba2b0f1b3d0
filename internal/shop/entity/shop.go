package entity

import "time"

const (
	StatusActive = "active"
	StatusClosed = "closed"
)

// Shop is the subject of tax assessments. Closed is terminal.
type Shop struct {
	ID         int64      `db:"id" json:"id,string"`
	ShopNumber string     `db:"shop_number" json:"shopNumber"`
	WardID     int64      `db:"ward_id" json:"wardId"`
	UlbID      *int64     `db:"ulb_id" json:"ulbId,omitempty"`
	OwnerName  string     `db:"owner_name" json:"ownerName"`
	OwnerID    *int64     `db:"owner_id" json:"ownerId,omitempty"`
	Address    *string    `db:"address" json:"address,omitempty"`
	Status     string     `db:"status" json:"status"`
	ClosedAt   *time.Time `db:"closed_at" json:"closedAt,omitempty"`
	CreatedAt  time.Time  `db:"created_at" json:"createdAt"`
	UpdatedAt  time.Time  `db:"updated_at" json:"updatedAt"`
}

func (s *Shop) Closed() bool { return s.Status == StatusClosed }

type Filter struct {
	Status string
	Limit  int
	Offset int
}
