// Package links manages the social links shown on group and room pages.
package links

import (
	"net/url"
	"regexp"
	"strings"

	"github.com/srcf/lightbluetent/internal/models"
)

var emailRe = regexp.MustCompile(`^(mailto:)?[^@\s/]+@[^@\s/]+\.[^@\s/]+$`)

var hostTypes = []struct {
	suffixes []string
	typ      models.LinkType
}{
	{[]string{"facebook.com", "fb.me", "fb.com"}, models.LinkFacebook},
	{[]string{"twitter.com", "t.co", "x.com"}, models.LinkTwitter},
	{[]string{"instagram.com", "instagr.am"}, models.LinkInstagram},
	{[]string{"youtube.com", "youtu.be"}, models.LinkYoutube},
}

// Classify derives a link's type from its URL.
func Classify(raw string) models.LinkType {
	raw = strings.TrimSpace(raw)
	if emailRe.MatchString(raw) {
		return models.LinkEmail
	}
	host := hostOf(raw)
	if host == "" {
		return models.LinkOther
	}
	for _, ht := range hostTypes {
		for _, s := range ht.suffixes {
			if host == s || strings.HasSuffix(host, "."+s) {
				return ht.typ
			}
		}
	}
	return models.LinkOther
}

func hostOf(raw string) string {
	if !strings.Contains(raw, "://") {
		raw = "https://" + raw
	}
	u, err := url.Parse(raw)
	if err != nil {
		return ""
	}
	return strings.ToLower(u.Hostname())
}

// Href returns the URL to put in an anchor, adding mailto: or a scheme where missing.
func Href(l models.Link) string {
	u := strings.TrimSpace(l.URL)
	switch {
	case l.Type == models.LinkEmail && !strings.HasPrefix(u, "mailto:"):
		return "mailto:" + u
	case l.Type != models.LinkEmail && !strings.Contains(u, "://"):
		return "https://" + u
	}
	return u
}
