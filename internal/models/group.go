package models

import (
	"time"

	"github.com/google/uuid"
)

// Group is a society or other organisation owning rooms.
// It also hosts its own group-level meeting under MeetingKey.
type Group struct {
	ID          string  `json:"id"` // lowercase short name
	Name        string  `json:"name"`
	Description *string `json:"description,omitempty"`
	Website     *string `json:"website,omitempty"`
	Logo        string  `json:"logo"`
	MeetingKey  string  `json:"-"`
	AttendeePW  string  `json:"-"`
	ModeratorPW string  `json:"-"`
	DisplaySettings
	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

// MeetingID implements Conference.
func (g *Group) MeetingID() string { return g.MeetingKey }

// MeetingName implements Conference.
func (g *Group) MeetingName() string { return g.Name }

// AttendeePassword implements Conference.
func (g *Group) AttendeePassword() string { return g.AttendeePW }

// ModeratorPassword implements Conference.
func (g *Group) ModeratorPassword() string { return g.ModeratorPW }

// Display implements Conference.
func (g *Group) Display() DisplaySettings { return g.DisplaySettings }

// GroupOwner links a user to a group they manage.
type GroupOwner struct {
	GroupID string    `json:"group_id"`
	UserID  uuid.UUID `json:"user_id"`
	AddedAt time.Time `json:"added_at"`
}
