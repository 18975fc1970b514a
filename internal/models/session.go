package models

import (
	"time"
)

// Recurrence is how often a session repeats.
type Recurrence string

const (
	RecurNone     Recurrence = "none"
	RecurDaily    Recurrence = "daily"
	RecurWeekdays Recurrence = "weekdays"
	RecurWeekly   Recurrence = "weekly"
)

// RecurrenceLimit is how a recurring session stops repeating.
type RecurrenceLimit string

const (
	LimitForever RecurrenceLimit = "forever"
	LimitUntil   RecurrenceLimit = "until"
	LimitCount   RecurrenceLimit = "count"
)

// Session is a scheduled time window attached to a room.
// At most one of Count and Until is set, and neither is set when Recur is RecurNone.
type Session struct {
	ID        int64      `json:"id"`
	RoomID    string     `json:"room_id"`
	Start     time.Time  `json:"start"`
	End       time.Time  `json:"end"`
	Recur     Recurrence `json:"recur"`
	Count     *int       `json:"count,omitempty"`
	Until     *time.Time `json:"until,omitempty"`
	CreatedAt time.Time  `json:"created_at"`
}

// Duration is the length of each occurrence.
func (s *Session) Duration() time.Duration {
	return s.End.Sub(s.Start)
}
