// Package ical builds the iCalendar attachment sent with booking
// notifications. An Exporter turns one booking option, its session dates and
// the sender/recipient identities into a VCALENDAR document with one VEVENT
// per session (or one for the option's course range), for either publishing
// or cancelling the booking.
package ical

import (
	"crypto/md5"
	"encoding/hex"
	"errors"
	"fmt"
	"net/mail"
	"net/url"
	"sort"
	"strconv"
	"strings"
	"time"
)

const (
	// AttachmentName is the file name suggested for the attachment.
	AttachmentName = "booking.ics"
	// ProductID identifies the producer of the document.
	ProductID = "-//Moodle//NONSGML Booking//EN"

	uidSalt         = "mod_booking_option"
	timestampFormat = "20060102T150405Z"
)

// Method is the VCALENDAR METHOD of an exported document.
type Method string

const (
	MethodPublish Method = "PUBLISH"
	MethodCancel  Method = "CANCEL"
)

const (
	roleRequired       = "REQ-PARTICIPANT"
	roleNonParticipant = "NON-PARTICIPANT"
)

// Site carries the installation wide settings used for identifiers and links.
type Site struct {
	// Identifier is the installation's unique identifier, part of every UID.
	Identifier string
	// RootURL is the public base URL, e.g. https://learn.example.org.
	RootURL string
}

// Host returns the host name of RootURL, or "" when it cannot be parsed.
func (s Site) Host() string {
	u, err := url.Parse(s.RootURL)
	if err != nil {
		return ""
	}
	return u.Hostname()
}

// CourseURL returns the link to a course's view page.
func (s Site) CourseURL(courseID int64) string {
	base := strings.TrimRight(s.RootURL, "/")
	return base + "/course/view.php?id=" + strconv.FormatInt(courseID, 10)
}

// Booking is the activity an option belongs to.
type Booking struct {
	ID   int64
	Name string
}

// Option is a bookable option. Timestamps are Unix seconds; zero means unset.
type Option struct {
	ID           int64
	BookingID    int64
	Title        string
	Description  string // may contain HTML
	CourseID     int64  // zero when the option is not linked to a course
	CourseStart  int64
	CourseEnd    int64
	TimeModified int64
}

// SessionDate is one dated session of an option.
type SessionDate struct {
	ID    int64
	Start int64
	End   int64
}

// Identity is a person taking part in the exchange.
type Identity struct {
	Email string
	Name  string
}

// Input is everything an Exporter needs, already resolved by the caller.
type Input struct {
	Site      Site
	Booking   Booking
	Option    Option
	Sessions  []SessionDate
	Sender    Identity
	Recipient Identity
}

// Exporter renders the calendar attachment for one option and recipient.
// It is safe for concurrent use: exports only read the precomputed fields.
type Exporter struct {
	in       Input
	sessions []SessionDate
	spool    *Spool

	datesSet      bool
	dtstamp       string
	summary       string
	description   string
	location      string
	host          string
	recipientName string
}

// NewExporter precomputes the fields shared by every VEVENT. Nothing is
// computed when the option has neither a course range nor session dates.
func NewExporter(in Input, spool *Spool) *Exporter {
	e := &Exporter{in: in, spool: spool}

	e.sessions = append([]SessionDate(nil), in.Sessions...)
	sort.SliceStable(e.sessions, func(i, j int) bool {
		if e.sessions[i].Start != e.sessions[j].Start {
			return e.sessions[i].Start < e.sessions[j].Start
		}
		return e.sessions[i].ID < e.sessions[j].ID
	})

	courseDates := in.Option.CourseStart != 0 && in.Option.CourseEnd != 0
	e.datesSet = courseDates || len(e.sessions) > 0
	if !e.datesSet {
		return e
	}

	// DTSTAMP follows the option's last change so re-exports are identical.
	e.dtstamp = FormatTimestamp(in.Option.TimeModified)

	title := in.Option.Title
	if strings.TrimSpace(title) == "" {
		title = in.Booking.Name
	}
	e.summary = escapeValue(title, false)
	e.description = escapeValue(in.Option.Description, true)
	if in.Option.CourseID != 0 {
		e.location = escapeValue(in.Site.CourseURL(in.Option.CourseID), false)
	}
	e.host = in.Site.Host()

	e.recipientName = strings.TrimSpace(in.Recipient.Name)
	if e.recipientName == "" {
		e.recipientName = strings.TrimSpace(in.Recipient.Email)
	}
	return e
}

// DatesSet reports whether the option has anything to export.
func (e *Exporter) DatesSet() bool {
	return e.datesSet
}

// Name returns the file name to use for the attachment.
func (e *Exporter) Name() string {
	return AttachmentName
}

// Calendar builds the VCALENDAR component. It returns nil without error when
// no dates are set.
func (e *Exporter) Calendar(cancel bool) (*Component, error) {
	if !e.datesSet {
		return nil, nil
	}

	organizer, err := mailbox(e.in.Sender.Email)
	if err != nil {
		return nil, fmt.Errorf("%w: sender: %w", ErrMissingIdentity, err)
	}
	attendee, err := mailbox(e.in.Recipient.Email)
	if err != nil {
		return nil, fmt.Errorf("%w: recipient: %w", ErrMissingIdentity, err)
	}

	method := MethodPublish
	role := roleRequired
	if cancel {
		method = MethodCancel
		role = roleNonParticipant
	}

	cal := Component{Name: "VCALENDAR"}
	cal.Add("VERSION", "2.0").
		Add("PRODID", ProductID).
		Add("CALSCALE", "GREGORIAN").
		Add("METHOD", string(method))

	v := veventFields{
		organizer: organizer,
		attendee:  attendee,
		role:      role,
		cancel:    cancel,
	}

	if len(e.sessions) > 0 {
		for _, s := range e.sessions {
			if s.Start == 0 || s.End == 0 || s.End < s.Start {
				return nil, fmt.Errorf("%w: session %d of option %d", ErrMalformedSessionDate, s.ID, e.in.Option.ID)
			}
			uid := e.uid(strconv.FormatInt(s.ID, 10), strconv.FormatInt(e.in.Option.ID, 10))
			cal.Components = append(cal.Components, e.vevent(uid, s.Start, s.End, v))
		}
		return &cal, nil
	}

	uid := e.uid(strconv.FormatInt(e.in.Option.ID, 10))
	cal.Components = append(cal.Components, e.vevent(uid, e.in.Option.CourseStart, e.in.Option.CourseEnd, v))
	return &cal, nil
}

// Export renders the document as CRLF terminated text, or "" when no dates are set.
func (e *Exporter) Export(cancel bool) (string, error) {
	cal, err := e.Calendar(cancel)
	if err != nil || cal == nil {
		return "", err
	}
	return Encode(*cal), nil
}

// Attachment writes the document to the spool and returns the file path, or
// "" when no dates are set. The caller owns the file.
func (e *Exporter) Attachment(cancel bool) (string, error) {
	doc, err := e.Export(cancel)
	if err != nil || doc == "" {
		return "", err
	}
	if e.spool == nil {
		return "", fmt.Errorf("%w: no spool configured", ErrStorage)
	}
	return e.spool.Write(doc)
}

type veventFields struct {
	organizer string
	attendee  string
	role      string
	cancel    bool
}

func (e *Exporter) vevent(uid string, start, end int64, v veventFields) Component {
	ev := Component{Name: "VEVENT"}
	ev.Add("UID", uid).
		Add("DTSTAMP", e.dtstamp).
		Add("DTSTART", FormatTimestamp(start)).
		Add("DTEND", FormatTimestamp(end)).
		Add("SUMMARY", e.summary).
		Add("LOCATION", e.location).
		Add("DESCRIPTION", e.description).
		Add("CLASS", "PRIVATE").
		Add("TRANSP", "OPAQUE")
	if v.cancel {
		ev.Add("STATUS", "CANCELLED")
	}
	ev.Add("ORGANIZER", "MAILTO:"+v.organizer, Param{"CN", v.organizer})
	ev.Add("ATTENDEE", "MAILTO:"+v.attendee,
		Param{"CUTYPE", "INDIVIDUAL"},
		Param{"ROLE", v.role},
		Param{"PARTSTAT", "NEEDS-ACTION"},
		Param{"RSVP", "false"},
		Param{"CN", e.recipientName},
		Param{"LANGUAGE", "en"},
	)
	return ev
}

// uid hashes the site identifier, the given ids and a fixed salt. The result
// only depends on its inputs so clients recognise updates to an event.
func (e *Exporter) uid(ids ...string) string {
	h := md5.New()
	h.Write([]byte(e.in.Site.Identifier))
	for _, id := range ids {
		h.Write([]byte(id))
	}
	h.Write([]byte(uidSalt))
	return hex.EncodeToString(h.Sum(nil)) + "@" + e.host
}

// FormatTimestamp renders Unix seconds as a UTC DATE-TIME (YYYYMMDDTHHMMSSZ).
func FormatTimestamp(ts int64) string {
	return time.Unix(ts, 0).UTC().Format(timestampFormat)
}

func mailbox(email string) (string, error) {
	email = strings.TrimSpace(email)
	if email == "" {
		return "", errors.New("email is empty")
	}
	addr, err := mail.ParseAddress(email)
	if err != nil {
		return "", err
	}
	return addr.Address, nil
}
