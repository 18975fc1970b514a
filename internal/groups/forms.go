package groups

import (
	"regexp"
	"strings"

	"github.com/srcf/lightbluetent/internal/models"
	"github.com/srcf/lightbluetent/internal/rooms"
	"github.com/srcf/lightbluetent/internal/validation"
)

var shortNameRe = regexp.MustCompile(`^[a-z0-9][a-z0-9_-]{1,19}$`)

const (
	shortNameMessage      = "Your short name must be one word less than 20 characters"
	shortNameTakenMessage = "That short name is already in use."
	nameMessage           = "Your group name must be longer than one character."
	maxDescription        = 2000
)

var profileMessages = validation.Messages{
	"name":        nameMessage,
	"description": "Your description is too long.",
	"website":     "Enter a full web address starting with https://.",
}

// RegisterForm is the body of POST /u/register_group.
type RegisterForm struct {
	Name        string `json:"name" form:"name" binding:"required,min=2"`
	ShortName   string `json:"short_name" form:"short_name"`
	Description string `json:"description" form:"description" binding:"max=2000"`
	Website     string `json:"website" form:"website" binding:"omitempty,url,startswith=http://|startswith=https://"`
}

func (RegisterForm) Messages() validation.Messages { return profileMessages }

// Validate trims the form in place and reports field problems.
func (f *RegisterForm) Validate() error {
	f.Name = strings.TrimSpace(f.Name)
	f.ShortName = strings.ToLower(strings.TrimSpace(f.ShortName))
	f.Website = strings.TrimSpace(f.Website)

	errs := validation.Struct(f)
	if !shortNameRe.MatchString(f.ShortName) {
		errs.Add("short_name", shortNameMessage)
	}
	if _, ok := reservedShortNames[f.ShortName]; ok {
		errs.Add("short_name", shortNameTakenMessage)
	}
	return errs.Err()
}

// reservedShortNames would shadow group sub-routes.
var reservedShortNames = map[string]struct{}{"rooms": {}, "new": {}}

func optional(s string) *string {
	s = strings.TrimSpace(s)
	if s == "" {
		return nil
	}
	return &s
}

// UpdateForm is the body of PATCH /g/:id.
type UpdateForm struct {
	Name        string `json:"name" form:"name" binding:"required,min=2"`
	Description string `json:"description" form:"description" binding:"max=2000"`
	Website     string `json:"website" form:"website" binding:"omitempty,url,startswith=http://|startswith=https://"`
	rooms.FeaturesForm
}

func (f UpdateForm) Messages() validation.Messages {
	m := f.FeaturesForm.Messages()
	for k, v := range profileMessages {
		m[k] = v
	}
	return m
}

// Apply validates the form and writes it onto g when it is clean.
func (f *UpdateForm) Apply(g *models.Group) error {
	f.Name = strings.TrimSpace(f.Name)
	f.Website = strings.TrimSpace(f.Website)
	f.BannerColor = strings.TrimSpace(f.BannerColor)
	if err := validation.Struct(f).Err(); err != nil {
		return err
	}
	d, err := f.Settings()
	if err != nil {
		return err
	}
	g.Name = f.Name
	g.Description = optional(f.Description)
	g.Website = optional(f.Website)
	g.DisplaySettings = d
	return nil
}

// JoinForm is an attendee joining the group-level meeting.
type JoinForm struct {
	FullName string `json:"full_name" form:"full_name"`
}

// CRSidForm names a person by CRSid.
type CRSidForm struct {
	CRSid string `json:"crsid" form:"crsid" binding:"required"`
}

func (CRSidForm) Messages() validation.Messages { return validation.Messages{"crsid": "Invalid CRSid."} }

// Normalize trims and lowercases the CRSid and checks it.
func (f *CRSidForm) Normalize() error {
	f.CRSid = strings.ToLower(strings.TrimSpace(f.CRSid))
	if !rooms.ValidCRSid(f.CRSid) {
		errs := &validation.Error{}
		errs.Add("crsid", "Invalid CRSid.")
		return errs
	}
	return nil
}
