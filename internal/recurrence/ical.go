package recurrence

import (
	"fmt"
	"io"
	"time"

	"github.com/emersion/go-ical"
	"github.com/srcf/lightbluetent/internal/models"
)

const productID = "-//SRCF//LightBlueTent//EN"

// CalendarRoom is what a feed needs to know about a room.
type CalendarRoom struct {
	Name        string
	Description string
	URL         string
	Sessions    []models.Session
}

// Calendar renders a room's sessions as an iCalendar feed, one VEVENT per session
// carrying its RRULE.
func Calendar(room CalendarRoom, stamp time.Time) *ical.Calendar {
	cal := ical.NewCalendar()
	cal.Props.SetText(ical.PropVersion, "2.0")
	cal.Props.SetText(ical.PropProductID, productID)
	cal.Props.SetText("X-WR-CALNAME", room.Name)

	for _, s := range room.Sessions {
		ev := ical.NewEvent()
		ev.Props.SetText(ical.PropUID, fmt.Sprintf("session-%d-%s@lightbluetent", s.ID, s.RoomID))
		ev.Props.SetDateTime(ical.PropDateTimeStamp, stamp.UTC())
		ev.Props.SetDateTime(ical.PropDateTimeStart, s.Start)
		ev.Props.SetDateTime(ical.PropDateTimeEnd, s.End)
		ev.Props.SetText(ical.PropSummary, room.Name)
		if room.Description != "" {
			ev.Props.SetText(ical.PropDescription, room.Description)
		}
		if room.URL != "" {
			ev.Props.SetText(ical.PropLocation, room.URL)
			ev.Props.SetText(ical.PropURL, room.URL)
		}
		if rule := RuleString(s); rule != "" {
			p := ical.NewProp(ical.PropRecurrenceRule)
			p.Value = rule
			ev.Props.Set(p)
		}
		cal.Children = append(cal.Children, ev.Component)
	}
	return cal
}

// WriteCalendar encodes the feed for room to w.
func WriteCalendar(w io.Writer, room CalendarRoom, stamp time.Time) error {
	if err := ical.NewEncoder(w).Encode(Calendar(room, stamp)); err != nil {
		return fmt.Errorf("encode calendar: %w", err)
	}
	return nil
}
