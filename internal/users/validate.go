// Package users handles registration, profiles and the signed-in home page.
package users

import (
	"strings"

	"github.com/srcf/lightbluetent/internal/validation"
)

const (
	nameMessage         = "A name is required."
	emailMissingMessage = "Enter your email address."
	emailInvalidMessage = "Enter a valid email address."
)

// universityDomains must carry the registering person's own CRSid.
var universityDomains = []string{
	"@cam.ac.uk",
	"@hermes.cam.ac.uk",
	"@o365.cam.ac.uk",
	"@universityofcambridgecloud.onmicrosoft.com",
}

// ValidateEmail returns a message describing what is wrong with email, or "".
func ValidateEmail(crsid, email string) string {
	email = strings.ToLower(email)
	switch {
	case email == "":
		return emailMissingMessage
	case !validation.Var(email, "email"):
		return emailInvalidMessage
	}
	return ownAddress(crsid, email)
}

// ownAddress rejects a university address that belongs to someone else.
func ownAddress(crsid, email string) string {
	for _, d := range universityDomains {
		if strings.HasSuffix(email, d) {
			local := strings.SplitN(strings.SplitN(email, "@", 2)[0], "+", 2)[0]
			if local != crsid {
				return "You should use your own university email address."
			}
			break
		}
	}
	return ""
}

// RegisterForm is the body of POST /u/register.
type RegisterForm struct {
	FullName string `json:"full_name" form:"full_name" binding:"required,min=2"`
	Email    string `json:"email" form:"email_address" binding:"required,email"`
	DPA      bool   `json:"dpa" form:"dpa" binding:"required"`
	TOS      bool   `json:"tos" form:"tos" binding:"required"`
}

func (RegisterForm) Messages() validation.Messages {
	return validation.Messages{
		"full_name":      nameMessage,
		"email.required": emailMissingMessage,
		"email.email":    emailInvalidMessage,
		"dpa":            "We need to store your information to register you.",
		"tos":            "You must accept the terms of service to register.",
	}
}

// Validate checks the form for crsid, trimming it in place.
func (f *RegisterForm) Validate(crsid string) error {
	f.FullName = strings.TrimSpace(f.FullName)
	f.Email = strings.ToLower(strings.TrimSpace(f.Email))

	errs := validation.Struct(f)
	if !errs.Has("email") {
		if msg := ownAddress(crsid, f.Email); msg != "" {
			errs.Add("email", msg)
		}
	}
	return errs.Err()
}

// ProfileUpdate is the body of PATCH /u/profile.
type ProfileUpdate struct {
	FullName *string `json:"full_name" binding:"omitempty,min=2"`
	Email    *string `json:"email"`
}

func (ProfileUpdate) Messages() validation.Messages {
	return validation.Messages{"full_name": nameMessage}
}

// Validate checks the fields that are present, trimming them in place.
func (p *ProfileUpdate) Validate(crsid string) error {
	if p.FullName != nil {
		name := strings.TrimSpace(*p.FullName)
		p.FullName = &name
	}
	errs := validation.Struct(p)
	if p.FullName == nil && p.Email == nil {
		errs.Add("full_name", "Nothing to update.")
	}
	if p.FullName != nil && *p.FullName == "" {
		errs.Add("full_name", nameMessage)
	}
	if p.Email != nil {
		email := strings.ToLower(strings.TrimSpace(*p.Email))
		p.Email = &email
		if msg := ValidateEmail(crsid, email); msg != "" {
			errs.Add("email", msg)
		}
	}
	return errs.Err()
}
