package entity

import "time"

// Session is one attendance row. An open session has no LogoutAt.
type Session struct {
	ID                     int64      `db:"id" json:"id,string"`
	PrincipalID            int64      `db:"principal_id" json:"principalId"`
	UserType               string     `db:"user_type" json:"userType"`
	LoginAt                time.Time  `db:"login_at" json:"loginAt"`
	LogoutAt               *time.Time `db:"logout_at" json:"logoutAt,omitempty"`
	WorkingDurationMinutes *int       `db:"working_duration_minutes" json:"workingDurationMinutes,omitempty"`
	LoginLatitude          *float64   `db:"login_latitude" json:"loginLatitude,omitempty"`
	LoginLongitude         *float64   `db:"login_longitude" json:"loginLongitude,omitempty"`
	LoginAddress           *string    `db:"login_address" json:"loginAddress,omitempty"`
	DeviceInfo             string     `db:"device_info" json:"deviceInfo"`
	IsAutoMarked           bool       `db:"is_auto_marked" json:"isAutoMarked"`
}

func (s *Session) Open() bool { return s.LogoutAt == nil }

// Geo is the optional login location reported by the client.
type Geo struct {
	Latitude  *float64 `json:"latitude"`
	Longitude *float64 `json:"longitude"`
	Address   *string  `json:"address"`
}
