package links

import (
	"regexp"
	"strings"

	"github.com/srcf/lightbluetent/internal/models"
	"github.com/srcf/lightbluetent/internal/validation"
)

var nameRe = regexp.MustCompile(`^[\p{L}\p{N} .,:;'&()!?/+#@_-]+$`)

// Form is a link as submitted by an owner.
type Form struct {
	Name string `json:"name" form:"name" binding:"required,max=40"`
	URL  string `json:"url" form:"url" binding:"required"`
}

func (Form) Messages() validation.Messages {
	return validation.Messages{
		"name.required": "Give the link a name.",
		"name.max":      "Choose a shorter link name",
		"url":           "Enter the link address.",
	}
}

// Validate trims the form in place and reports field problems.
func (f *Form) Validate() error {
	f.Name = strings.TrimSpace(f.Name)
	f.URL = strings.TrimSpace(f.URL)

	errs := validation.Struct(f)
	if !errs.Has("name") && !nameRe.MatchString(f.Name) {
		errs.Add("name", "You must use valid characters")
	}
	if !errs.Has("url") && Classify(f.URL) != models.LinkEmail && hostOf(f.URL) == "" {
		errs.Add("url", "Enter a valid web address or email.")
	}
	return errs.Err()
}

// OrderForm is the body of a reorder request: link ids in their new order.
type OrderForm struct {
	Order []int64 `json:"order" binding:"required"`
}
