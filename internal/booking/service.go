// Package booking resolves booking records and turns them into calendar
// attachments.
package booking

import (
	"context"
	"errors"
	"fmt"

	"github.com/spf13/afero"
	"go.uber.org/zap"

	"gitea.jw6.us/james/bookingcal/internal/ical"
	"gitea.jw6.us/james/bookingcal/internal/metrics"
	"gitea.jw6.us/james/bookingcal/internal/store"
)

// Request selects the option and people for one attachment.
type Request struct {
	OptionID int64
	UserID   int64
	// FromUserID, when non-zero, replaces the configured sender.
	FromUserID int64
	Cancel     bool
}

// Attachment is a written calendar file. The caller must Remove it.
type Attachment struct {
	Path   string
	Name   string
	Method ical.Method
	Events int
}

// Service builds calendar attachments from stored bookings.
type Service struct {
	store  *store.Store
	site   ical.Site
	sender ical.Identity
	spool  *ical.Spool
	logger *zap.Logger
}

// NewService wires a Service. senderEmail is the organizer used when a
// request names no sending user.
func NewService(st *store.Store, site ical.Site, senderEmail string, spool *ical.Spool, logger *zap.Logger) *Service {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Service{
		store:  st,
		site:   site,
		sender: ical.Identity{Email: senderEmail},
		spool:  spool,
		logger: logger,
	}
}

// Attachment writes the calendar for req and returns it, or nil when the
// option has no dates to export.
func (s *Service) Attachment(ctx context.Context, req Request) (*Attachment, error) {
	att, err := s.attachment(ctx, req)
	if err != nil {
		metrics.ObserveExportFailure(FailureReason(err))
		return nil, err
	}
	if att == nil {
		return nil, nil
	}
	metrics.ObserveExport(string(att.Method), att.Events)
	s.logger.Info("calendar attachment written",
		zap.Int64("option_id", req.OptionID),
		zap.Int64("user_id", req.UserID),
		zap.String("method", string(att.Method)),
		zap.Int("events", att.Events),
	)
	return att, nil
}

func (s *Service) attachment(ctx context.Context, req Request) (*Attachment, error) {
	in, err := s.resolve(ctx, req)
	if err != nil {
		return nil, err
	}

	exporter := ical.NewExporter(*in, s.spool)
	if !exporter.DatesSet() {
		s.logger.Debug("option has no dates", zap.Int64("option_id", req.OptionID))
		return nil, nil
	}

	path, err := exporter.Attachment(req.Cancel)
	if err != nil {
		return nil, fmt.Errorf("export option %d: %w", req.OptionID, err)
	}

	method := ical.MethodPublish
	if req.Cancel {
		method = ical.MethodCancel
	}
	events := len(in.Sessions)
	if events == 0 {
		events = 1
	}
	return &Attachment{Path: path, Name: exporter.Name(), Method: method, Events: events}, nil
}

// resolve loads every record the exporter needs.
func (s *Service) resolve(ctx context.Context, req Request) (*ical.Input, error) {
	opt, err := s.store.Options.GetByID(ctx, req.OptionID)
	if err != nil {
		return nil, err
	}
	bk, err := s.store.Bookings.GetByID(ctx, opt.BookingID)
	if err != nil {
		return nil, err
	}
	dates, err := s.store.SessionDates.ListForOption(ctx, opt.ID)
	if err != nil {
		return nil, err
	}
	recipient, err := s.store.Users.GetByID(ctx, req.UserID)
	if err != nil {
		return nil, err
	}

	sender := s.sender
	if req.FromUserID != 0 {
		from, err := s.store.Users.GetByID(ctx, req.FromUserID)
		if err != nil {
			return nil, err
		}
		sender = ical.Identity{Email: from.Email, Name: from.FullName()}
	}

	in := &ical.Input{
		Site:    s.site,
		Booking: ical.Booking{ID: bk.ID, Name: bk.Name},
		Option: ical.Option{
			ID:           opt.ID,
			BookingID:    opt.BookingID,
			Title:        opt.Title,
			Description:  opt.Description,
			CourseStart:  opt.CourseStartTime,
			CourseEnd:    opt.CourseEndTime,
			TimeModified: opt.TimeModified,
		},
		Sender:    sender,
		Recipient: ical.Identity{Email: recipient.Email, Name: recipient.FullName()},
	}
	if opt.CourseID != nil {
		in.Option.CourseID = *opt.CourseID
	}
	for _, d := range dates {
		in.Sessions = append(in.Sessions, ical.SessionDate{ID: d.ID, Start: d.CourseStartTime, End: d.CourseEndTime})
	}
	return in, nil
}

// Open opens a written attachment for reading.
func (s *Service) Open(path string) (afero.File, error) {
	return s.spool.Open(path)
}

// Remove deletes a written attachment.
func (s *Service) Remove(path string) error {
	return s.spool.Remove(path)
}

// FailureReason classifies an Attachment error for metrics.
func FailureReason(err error) string {
	switch {
	case errors.Is(err, store.ErrNotFound):
		return "not_found"
	case errors.Is(err, ical.ErrMissingIdentity):
		return "missing_identity"
	case errors.Is(err, ical.ErrMalformedSessionDate):
		return "malformed_session_date"
	case errors.Is(err, ical.ErrStorage):
		return "storage"
	case errors.Is(err, context.Canceled), errors.Is(err, context.DeadlineExceeded):
		return "canceled"
	default:
		return "internal"
	}
}
