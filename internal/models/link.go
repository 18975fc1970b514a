package models

import "time"

// LinkType is the kind of site a link points at.
type LinkType string

const (
	LinkEmail     LinkType = "email"
	LinkFacebook  LinkType = "facebook"
	LinkTwitter   LinkType = "twitter"
	LinkInstagram LinkType = "instagram"
	LinkYoutube   LinkType = "youtube"
	LinkOther     LinkType = "other"
)

// Link is a social or web link shown on a group or room page.
// Exactly one of GroupID and RoomID is set; DisplayOrder is dense and zero-based per parent.
type Link struct {
	ID           int64     `json:"id"`
	GroupID      *string   `json:"group_id,omitempty"`
	RoomID       *string   `json:"room_id,omitempty"`
	Name         string    `json:"name"`
	URL          string    `json:"url"`
	Type         LinkType  `json:"type"`
	DisplayOrder int       `json:"display_order"`
	CreatedAt    time.Time `json:"created_at"`
}

// Asset is one stored variant of a logical image key.
// Variant is empty for the main image or a density marker such as "@2x".
type Asset struct {
	ID        int64     `json:"id"`
	Key       string    `json:"key"`
	Variant   string    `json:"variant"`
	Path      string    `json:"path"`
	CreatedAt time.Time `json:"created_at"`
}
