package caldav

import (
	"fmt"
	"strings"
	"time"
	"unicode/utf8"

	"barakah-tasks/internal/model"
)

const (
	prodID        = "-//Barakah Tasks//EN"
	maxLineOctets = 75
	stampLayout   = "20060102T150405Z"
	dateLayout    = "20060102"
)

// Event is a single VEVENT.
type Event struct {
	UID         string
	Summary     string
	Description string
	Categories  []string
	Start       time.Time
	End         time.Time
	AllDay      bool
	Stamp       time.Time
}

// PrayerEvent builds a fixed-length event for a prayer at a given time.
// The UID is stable per user, prayer and day so re-syncing overwrites it.
func PrayerEvent(userID, prayer string, at time.Time, length time.Duration) Event {
	if length <= 0 {
		length = 20 * time.Minute
	}
	name := strings.ToUpper(prayer[:1]) + prayer[1:]
	return Event{
		UID:        fmt.Sprintf("prayer-%s-%s-%s", prayer, at.Format("20060102"), userID),
		Summary:    "🕌 " + name,
		Categories: []string{"Prayer"},
		Start:      at,
		End:        at.Add(length),
	}
}

// TaskEvent builds an event for a task with a due date. Tasks without a due
// time become all-day events.
func TaskEvent(t model.Task, loc *time.Location) (Event, bool) {
	due, ok := t.Due(loc)
	if !ok {
		return Event{}, false
	}
	e := Event{
		UID:        "task-" + t.ID,
		Summary:    t.Title,
		Categories: []string{"Task", t.Priority},
		Start:      due,
	}
	if t.Description != nil {
		e.Description = *t.Description
	}
	if t.DueTime == nil {
		e.AllDay = true
		e.End = due.AddDate(0, 0, 1)
	} else {
		e.End = due.Add(30 * time.Minute)
	}
	return e, true
}

// Calendar renders events as a VCALENDAR object with CRLF line endings.
func Calendar(events ...Event) []byte {
	var b strings.Builder
	line := func(s string) {
		b.WriteString(fold(s))
		b.WriteString("\r\n")
	}

	line("BEGIN:VCALENDAR")
	line("VERSION:2.0")
	line("PRODID:" + prodID)
	line("CALSCALE:GREGORIAN")
	for _, e := range events {
		stamp := e.Stamp
		if stamp.IsZero() {
			stamp = time.Now()
		}
		line("BEGIN:VEVENT")
		line("UID:" + escapeText(e.UID))
		line("DTSTAMP:" + stamp.UTC().Format(stampLayout))
		if e.AllDay {
			line("DTSTART;VALUE=DATE:" + e.Start.Format(dateLayout))
			line("DTEND;VALUE=DATE:" + e.End.Format(dateLayout))
		} else {
			line("DTSTART:" + e.Start.UTC().Format(stampLayout))
			line("DTEND:" + e.End.UTC().Format(stampLayout))
		}
		line("SUMMARY:" + escapeText(e.Summary))
		if e.Description != "" {
			line("DESCRIPTION:" + escapeText(e.Description))
		}
		var cats []string
		for _, c := range e.Categories {
			if c != "" {
				cats = append(cats, escapeText(c))
			}
		}
		if len(cats) > 0 {
			line("CATEGORIES:" + strings.Join(cats, ","))
		}
		line("END:VEVENT")
	}
	line("END:VCALENDAR")
	return []byte(b.String())
}

func escapeText(s string) string {
	r := strings.NewReplacer(
		`\`, `\\`,
		";", `\;`,
		",", `\,`,
		"\r\n", `\n`,
		"\n", `\n`,
	)
	return r.Replace(s)
}

// fold splits a content line into 75-octet chunks joined by CRLF and a
// space, never inside a UTF-8 sequence.
func fold(s string) string {
	if len(s) <= maxLineOctets {
		return s
	}
	var b strings.Builder
	limit := maxLineOctets
	n := 0
	for _, r := range s {
		size := utf8.RuneLen(r)
		if n+size > limit {
			b.WriteString("\r\n ")
			n = 0
			limit = maxLineOctets - 1
		}
		b.WriteRune(r)
		n += size
	}
	return b.String()
}
