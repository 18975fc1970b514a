package rooms

import (
	"regexp"
	"strings"

	"github.com/srcf/lightbluetent/internal/models"
	"github.com/srcf/lightbluetent/internal/validation"
)

const (
	maxWelcomeText = 500

	nameShortMessage  = "That name is too short."
	authMessage       = "Choose how attendees will join."
	aliasTakenMessage = "That URL is already in use. Choose a different one."
)

var (
	aliasRe = regexp.MustCompile(`^[a-z0-9][a-z0-9-]{1,99}$`)
	crsidRe = regexp.MustCompile(`^[a-z]{2,5}[0-9]{0,5}$`)
)

// reservedAliases collide with site routes. Single-letter prefixes such as /r and /g
// already fail the alias pattern.
var reservedAliases = map[string]struct{}{
	"auth": {}, "api": {}, "admin": {}, "static": {}, "health": {},
	"healthz": {}, "logout": {}, "log_in": {}, "calendar": {}, "directory": {},
}

// ValidateAlias returns a message when alias cannot be a room URL, or "".
func ValidateAlias(alias string) string {
	if alias == "" {
		return "You must specify the name of your alias."
	}
	if !aliasRe.MatchString(alias) {
		return "Invalid alias."
	}
	if _, ok := reservedAliases[alias]; ok {
		return "That URL is reserved. Choose a different one."
	}
	return ""
}

// ValidCRSid reports whether s looks like a university identifier.
func ValidCRSid(s string) bool {
	return crsidRe.MatchString(s)
}

func optional(s string) *string {
	s = strings.TrimSpace(s)
	if s == "" {
		return nil
	}
	return &s
}

// CreateForm is the body of a new-room request.
type CreateForm struct {
	Name           string `json:"name" form:"name" binding:"required,min=2"`
	Description    string `json:"description" form:"description"`
	Authentication string `json:"authentication" form:"authentication" binding:"omitempty,oneof=public raven password whitelist"`
}

func (CreateForm) Messages() validation.Messages {
	return validation.Messages{"name": nameShortMessage, "authentication": authMessage}
}

// Validate trims the form and reports field problems.
func (f *CreateForm) Validate() (models.Authentication, error) {
	f.Name = strings.TrimSpace(f.Name)
	if f.Authentication == "" {
		f.Authentication = string(models.AuthPublic)
	}
	if err := validation.Struct(f).Err(); err != nil {
		return "", err
	}
	return models.ParseAuthentication(f.Authentication)
}

// DetailsForm is the body of POST /r/:id/update/room_details.
type DetailsForm struct {
	Name           string `json:"name" form:"name" binding:"required,min=2"`
	Description    string `json:"description" form:"description"`
	Authentication string `json:"authentication" form:"authentication" binding:"required,oneof=public raven password whitelist"`
	Password       string `json:"password" form:"password"`
	AliasChecked   bool   `json:"alias_checked" form:"alias_checked"`
	Alias          string `json:"alias" form:"alias"`
	Whitelist      string `json:"whitelist" form:"whitelist"`
}

func (DetailsForm) Messages() validation.Messages {
	return validation.Messages{"name": nameShortMessage, "authentication": authMessage}
}

// Apply validates the form and, when it is clean, writes it onto room. Alias
// uniqueness is checked separately.
func (f *DetailsForm) Apply(room *models.Room) error {
	f.Name = strings.TrimSpace(f.Name)
	f.Alias = strings.ToLower(strings.TrimSpace(f.Alias))
	f.Whitelist = strings.ToLower(strings.TrimSpace(f.Whitelist))

	errs := validation.Struct(f)
	auth := models.Authentication(f.Authentication)
	if auth == models.AuthPassword && strings.TrimSpace(f.Password) == "" && room.Password == nil {
		errs.Add("password", "Set a password or generate one.")
	}
	if f.Whitelist != "" && !ValidCRSid(f.Whitelist) {
		errs.Add("whitelist", "Invalid CRSid.")
	}
	if f.AliasChecked {
		if msg := ValidateAlias(f.Alias); msg != "" {
			errs.Add("alias", msg)
		}
	}
	if err := errs.Err(); err != nil {
		return err
	}

	room.Name = f.Name
	room.Description = optional(f.Description)
	room.Authentication = auth
	if pw := strings.TrimSpace(f.Password); pw != "" {
		room.Password = &pw
	}
	room.Alias = nil
	if f.AliasChecked {
		room.Alias = &f.Alias
	}
	return nil
}

// FeaturesForm is the body of POST /r/:id/update/room_features.
type FeaturesForm struct {
	WelcomeText        string `json:"welcome_text" form:"welcome_text" binding:"max=500"`
	BannerText         string `json:"banner_text" form:"banner_text" binding:"max=200"`
	BannerColor        string `json:"banner_color" form:"banner_color" binding:"omitempty,hexcolor"`
	MuteOnStart        bool   `json:"mute_on_start" form:"mute_on_start"`
	DisablePrivateChat bool   `json:"disable_private_chat" form:"disable_private_chat"`
}

func (FeaturesForm) Messages() validation.Messages {
	return validation.Messages{
		"welcome_text": "Welcome text is too long.",
		"banner_text":  "Banner text is too long.",
	}
}

// Settings validates the form and returns the display settings it describes.
func (f *FeaturesForm) Settings() (models.DisplaySettings, error) {
	f.BannerColor = strings.TrimSpace(f.BannerColor)
	if err := validation.Struct(f).Err(); err != nil {
		return models.DisplaySettings{}, err
	}
	return models.DisplaySettings{
		WelcomeText:        optional(f.WelcomeText),
		BannerText:         optional(f.BannerText),
		BannerColor:        optional(f.BannerColor),
		MuteOnStart:        f.MuteOnStart,
		DisablePrivateChat: f.DisablePrivateChat,
	}, nil
}
