package model

import "time"

// Activity actions.
const (
	ActionCreated   = "created"
	ActionUpdated   = "updated"
	ActionCompleted = "completed"
)

// Activity records a successful mutation made through the dashboard.
type Activity struct {
	ID         int64     `json:"id"`
	Action     string    `json:"action"`
	MemberID   int64     `json:"member_id"`
	MemberName string    `json:"member_name"`
	Founder    string    `json:"founder"`
	Actor      string    `json:"actor"`
	CreatedAt  time.Time `json:"created_at"`
}
