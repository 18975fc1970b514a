package models

import (
	"fmt"
	"time"

	"github.com/google/uuid"
)

// Authentication is how attendees are admitted to a room.
type Authentication string

const (
	AuthPublic    Authentication = "public"
	AuthRaven     Authentication = "raven"
	AuthPassword  Authentication = "password"
	AuthWhitelist Authentication = "whitelist"
)

// ParseAuthentication validates a submitted authentication mode.
func ParseAuthentication(s string) (Authentication, error) {
	switch a := Authentication(s); a {
	case AuthPublic, AuthRaven, AuthPassword, AuthWhitelist:
		return a, nil
	}
	return "", fmt.Errorf("unknown authentication mode %q", s)
}

// DisplaySettings customise the remote meeting's appearance.
type DisplaySettings struct {
	WelcomeText        *string `json:"welcome_text,omitempty"`
	BannerText         *string `json:"banner_text,omitempty"`
	BannerColor        *string `json:"banner_color,omitempty"`
	MuteOnStart        bool    `json:"mute_on_start"`
	DisablePrivateChat bool    `json:"disable_private_chat"`
}

// Room is a bookable space mapped 1:1 to a remote meeting.
// Exactly one of GroupID and UserID is set.
type Room struct {
	ID             string         `json:"id"`
	Name           string         `json:"name"`
	Alias          *string        `json:"alias,omitempty"`
	Description    *string        `json:"description,omitempty"`
	GroupID        *string        `json:"group_id,omitempty"`
	UserID         *uuid.UUID     `json:"user_id,omitempty"`
	Authentication Authentication `json:"authentication"`
	Password       *string        `json:"-"`
	AttendeePW     string         `json:"-"`
	ModeratorPW    string         `json:"-"`
	DisplaySettings
	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

// MeetingID implements Conference.
func (r *Room) MeetingID() string { return r.ID }

// MeetingName implements Conference.
func (r *Room) MeetingName() string { return r.Name }

// AttendeePassword implements Conference.
func (r *Room) AttendeePassword() string { return r.AttendeePW }

// ModeratorPassword implements Conference.
func (r *Room) ModeratorPassword() string { return r.ModeratorPW }

// Display implements Conference.
func (r *Room) Display() DisplaySettings { return r.DisplaySettings }

// PublicPath is the room's public page: /<alias> when set, else /r/<id>.
func (r *Room) PublicPath() string {
	if r.Alias != nil && *r.Alias != "" {
		return "/" + *r.Alias
	}
	return "/r/" + r.ID
}

// HasOwner reports whether exactly one of GroupID and UserID is set.
func (r *Room) HasOwner() bool {
	return (r.GroupID != nil) != (r.UserID != nil)
}

// Conference is anything that can be hosted as a remote meeting.
type Conference interface {
	MeetingID() string
	MeetingName() string
	AttendeePassword() string
	ModeratorPassword() string
	Display() DisplaySettings
}
