// Package recurrence validates session submissions and evaluates their repeat rules.
package recurrence

import (
	"strconv"
	"strings"
	"time"

	"github.com/srcf/lightbluetent/internal/models"
	"github.com/srcf/lightbluetent/internal/validation"
)

const dateLayout = "2006-01-02"

// SessionForm is a room_times submission as typed by the owner.
type SessionForm struct {
	StartDate string `form:"start_date" json:"start_date"`
	StartHour string `form:"start_hour" json:"start_hour"`
	StartMin  string `form:"start_min" json:"start_min"`
	EndDate   string `form:"end_date" json:"end_date"`
	EndHour   string `form:"end_hour" json:"end_hour"`
	EndMin    string `form:"end_min" json:"end_min"`

	Recurring  bool   `form:"recurring" json:"recurring"`
	Frequency  string `form:"frequency" json:"frequency"`
	Limit      string `form:"limit" json:"limit"`
	LimitCount string `form:"limit_count" json:"limit_count"`
	LimitUntil string `form:"limit_until" json:"limit_until"`
}

// Validator turns a SessionForm into a Session.
type Validator struct {
	// Location is the wall clock the form is entered in.
	Location *time.Location
	// Now is overridable in tests.
	Now func() time.Time
}

// NewValidator returns a Validator for times entered in loc.
func NewValidator(loc *time.Location) *Validator {
	if loc == nil {
		loc = time.UTC
	}
	return &Validator{Location: loc, Now: time.Now}
}

// Validate checks f and returns the session it describes. On failure the error is a
// *validation.Error holding every problem found, keyed by start, end, frequency, limit
// or limit_count. The returned session has no RoomID.
func (v *Validator) Validate(f SessionForm) (models.Session, error) {
	errs := &validation.Error{}

	start, startOK := v.parseDateTime(f.StartDate, f.StartHour, f.StartMin)
	if !startOK {
		errs.Add("start", "Invalid start date or time.")
	}
	end, endOK := v.parseDateTime(f.EndDate, f.EndHour, f.EndMin)
	if !endOK {
		errs.Add("end", "Invalid end date or time.")
	}
	if startOK && endOK && start.After(end) {
		errs.Add("end", "This event ends before it starts.")
	}

	s := models.Session{Start: start, End: end, Recur: models.RecurNone}
	if f.Recurring {
		v.validateRule(f, start, startOK, &s, errs)
	}

	if err := errs.Err(); err != nil {
		return models.Session{}, err
	}
	return s, nil
}

func (v *Validator) validateRule(f SessionForm, start time.Time, startOK bool, s *models.Session, errs *validation.Error) {
	switch freq := models.Recurrence(strings.TrimSpace(f.Frequency)); freq {
	case models.RecurDaily, models.RecurWeekdays, models.RecurWeekly:
		s.Recur = freq
	case "":
		errs.Add("frequency", "Select a frequency of recurrence.")
	default:
		errs.Add("frequency", "Invalid frequency of recurrence.")
	}

	switch models.RecurrenceLimit(strings.TrimSpace(f.Limit)) {
	case models.LimitForever:
	case models.LimitUntil:
		until, err := time.ParseInLocation(dateLayout, strings.TrimSpace(f.LimitUntil), v.Location)
		if err != nil {
			errs.Add("limit", "Invalid finishing date.")
			return
		}
		if until.Before(v.today()) {
			errs.Add("limit", "The finishing date must be today or later.")
			return
		}
		if startOK && until.Before(dateOf(start)) {
			errs.Add("limit", "The finishing date is before the event starts.")
			return
		}
		s.Until = &until
	case models.LimitCount:
		raw := strings.TrimSpace(f.LimitCount)
		if raw == "" {
			errs.Add("limit_count", "You must specify when the recurrence finishes.")
			return
		}
		n, err := strconv.Atoi(raw)
		if err != nil || n < 1 {
			errs.Add("limit_count", "The number of occurrences must be a positive whole number.")
			return
		}
		s.Count = &n
	case "":
		errs.Add("limit", "Select when the event will end.")
	default:
		errs.Add("limit", "Invalid recurrence limit.")
	}
}

func (v *Validator) parseDateTime(date, hour, minute string) (time.Time, bool) {
	d, err := time.ParseInLocation(dateLayout, strings.TrimSpace(date), v.Location)
	if err != nil {
		return time.Time{}, false
	}
	h, err := strconv.Atoi(strings.TrimSpace(hour))
	if err != nil || h < 0 || h > 23 {
		return time.Time{}, false
	}
	m, err := strconv.Atoi(strings.TrimSpace(minute))
	if err != nil || m < 0 || m > 59 {
		return time.Time{}, false
	}
	return time.Date(d.Year(), d.Month(), d.Day(), h, m, 0, 0, v.Location), true
}

func (v *Validator) today() time.Time {
	return dateOf(v.Now().In(v.Location))
}

func dateOf(t time.Time) time.Time {
	y, m, d := t.Date()
	return time.Date(y, m, d, 0, 0, 0, 0, t.Location())
}
