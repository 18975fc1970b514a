package models

import (
	"time"

	"github.com/google/uuid"
)

// User represents a portal user identified by their sign-on principal (CRSid).
// Visitors have only a CRSid; full_name and email are filled in on registration.
type User struct {
	ID        uuid.UUID `json:"id"`
	CRSid     string    `json:"crsid"`
	Email     *string   `json:"email,omitempty"`
	FullName  *string   `json:"full_name,omitempty"`
	RoleID    int       `json:"role_id"`
	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

// DisplayName returns the user's full name, or the CRSid for visitors.
func (u *User) DisplayName() string {
	if u.FullName != nil && *u.FullName != "" {
		return *u.FullName
	}
	return u.CRSid
}

// IsVisitor reports whether the user has never registered.
func (u *User) IsVisitor() bool {
	return u.Email == nil
}

// UserPublic is User without contact details for API responses.
type UserPublic struct {
	ID       uuid.UUID `json:"id"`
	CRSid    string    `json:"crsid"`
	FullName string    `json:"full_name"`
}

// ToPublic converts User to UserPublic.
func (u *User) ToPublic() UserPublic {
	return UserPublic{
		ID:       u.ID,
		CRSid:    u.CRSid,
		FullName: u.DisplayName(),
	}
}
