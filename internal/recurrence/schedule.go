package recurrence

import (
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/srcf/lightbluetent/internal/models"
	"github.com/teambition/rrule-go"
)

// Occurrence is one concrete window of a session.
type Occurrence struct {
	Start time.Time `json:"start"`
	End   time.Time `json:"end"`
}

// Schedule evaluates a stored session rule without materialising its occurrences.
type Schedule struct {
	session  models.Session
	duration time.Duration
	rule     *rrule.RRule // nil for one-off sessions
}

var weekdays = []rrule.Weekday{rrule.MO, rrule.TU, rrule.WE, rrule.TH, rrule.FR}

// NewSchedule builds the rule for s. Times are evaluated in s.Start's location.
func NewSchedule(s models.Session) (*Schedule, error) {
	sch := &Schedule{session: s, duration: s.Duration()}
	if s.Recur == models.RecurNone || s.Recur == "" {
		return sch, nil
	}
	opt, err := ruleOption(s)
	if err != nil {
		return nil, err
	}
	r, err := rrule.NewRRule(opt)
	if err != nil {
		return nil, fmt.Errorf("build rule for session %d: %w", s.ID, err)
	}
	sch.rule = r
	return sch, nil
}

func ruleOption(s models.Session) (rrule.ROption, error) {
	opt := rrule.ROption{Dtstart: s.Start}
	switch s.Recur {
	case models.RecurDaily:
		opt.Freq = rrule.DAILY
	case models.RecurWeekdays:
		opt.Freq = rrule.DAILY
		opt.Byweekday = weekdays
	case models.RecurWeekly:
		opt.Freq = rrule.WEEKLY
	default:
		return opt, fmt.Errorf("unknown recurrence %q", s.Recur)
	}
	if s.Count != nil {
		opt.Count = *s.Count
	}
	if until := untilInstant(s); !until.IsZero() {
		opt.Until = until
	}
	return opt, nil
}

// untilInstant is the last instant of the until day, in the session's location.
func untilInstant(s models.Session) time.Time {
	if s.Until == nil {
		return time.Time{}
	}
	y, m, d := s.Until.In(s.Start.Location()).Date()
	return time.Date(y, m, d, 23, 59, 59, 0, s.Start.Location())
}

// Recurring reports whether the session repeats.
func (s *Schedule) Recurring() bool { return s.rule != nil }

// ActiveAt reports whether t falls inside any occurrence.
func (s *Schedule) ActiveAt(t time.Time) bool {
	if s.rule == nil {
		return !t.Before(s.session.Start) && t.Before(s.session.End)
	}
	for _, start := range s.rule.Between(t.Add(-s.duration), t, true) {
		if !t.Before(start) && t.Before(start.Add(s.duration)) {
			return true
		}
	}
	return false
}

// NextAfter returns the first occurrence starting strictly after t.
func (s *Schedule) NextAfter(t time.Time) (Occurrence, bool) {
	if s.rule == nil {
		if s.session.Start.After(t) {
			return Occurrence{Start: s.session.Start, End: s.session.End}, true
		}
		return Occurrence{}, false
	}
	start := s.rule.After(t, false)
	if start.IsZero() {
		return Occurrence{}, false
	}
	return Occurrence{Start: start, End: start.Add(s.duration)}, true
}

// Between lists the occurrences starting within [from, to].
func (s *Schedule) Between(from, to time.Time) []Occurrence {
	if s.rule == nil {
		if s.session.Start.Before(from) || s.session.Start.After(to) {
			return nil
		}
		return []Occurrence{{Start: s.session.Start, End: s.session.End}}
	}
	starts := s.rule.Between(from, to, true)
	out := make([]Occurrence, 0, len(starts))
	for _, st := range starts {
		out = append(out, Occurrence{Start: st, End: st.Add(s.duration)})
	}
	return out
}

// RuleString is the RFC 5545 RRULE value for the session, or "" for one-off sessions.
// UNTIL is written in UTC as the format requires when DTSTART carries a zone.
func RuleString(s models.Session) string {
	var parts []string
	switch s.Recur {
	case models.RecurDaily:
		parts = append(parts, "FREQ=DAILY")
	case models.RecurWeekdays:
		parts = append(parts, "FREQ=DAILY", "BYDAY=MO,TU,WE,TH,FR")
	case models.RecurWeekly:
		parts = append(parts, "FREQ=WEEKLY")
	default:
		return ""
	}
	if s.Count != nil {
		parts = append(parts, "COUNT="+strconv.Itoa(*s.Count))
	} else if until := untilInstant(s); !until.IsZero() {
		parts = append(parts, "UNTIL="+until.UTC().Format("20060102T150405Z"))
	}
	return strings.Join(parts, ";")
}

// InSession reports whether any of sessions is active at t.
func InSession(sessions []models.Session, t time.Time) (bool, error) {
	for _, sess := range sessions {
		sch, err := NewSchedule(sess)
		if err != nil {
			return false, err
		}
		if sch.ActiveAt(t) {
			return true, nil
		}
	}
	return false, nil
}

// Next returns the earliest occurrence of any of sessions starting after t.
func Next(sessions []models.Session, t time.Time) (Occurrence, bool, error) {
	var best Occurrence
	found := false
	for _, sess := range sessions {
		sch, err := NewSchedule(sess)
		if err != nil {
			return Occurrence{}, false, err
		}
		if o, ok := sch.NextAfter(t); ok && (!found || o.Start.Before(best.Start)) {
			best, found = o, true
		}
	}
	return best, found, nil
}

// Localize moves stored sessions onto the wall clock of loc so weekday rules are evaluated
// there. Until is a calendar date and keeps its day.
func Localize(sessions []models.Session, loc *time.Location) []models.Session {
	out := make([]models.Session, len(sessions))
	for i, s := range sessions {
		s.Start = s.Start.In(loc)
		s.End = s.End.In(loc)
		if s.Until != nil {
			y, m, d := s.Until.Date()
			until := time.Date(y, m, d, 0, 0, 0, 0, loc)
			s.Until = &until
		}
		out[i] = s
	}
	return out
}
