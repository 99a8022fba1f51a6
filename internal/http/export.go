package httpserver

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"
	"github.com/spf13/afero"

	"gitea.jw6.us/james/bookingcal/internal/booking"
	httperrors "gitea.jw6.us/james/bookingcal/internal/http/errors"
)

// ExportService produces calendar attachments.
type ExportService interface {
	Attachment(ctx context.Context, req booking.Request) (*booking.Attachment, error)
	Open(path string) (afero.File, error)
	Remove(path string) error
}

type exportHandler struct {
	svc    ExportService
	errors *httperrors.Responder
}

// ServeHTTP handles GET /api/options/{optionID}/booking.ics.
func (h *exportHandler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	req, err := parseExportRequest(r)
	if err != nil {
		h.errors.BadRequest(w, r, err, err.Error())
		return
	}

	att, err := h.svc.Attachment(r.Context(), req)
	if err != nil {
		h.errors.Error(w, r, err, "calendar export failed")
		return
	}
	if att == nil {
		w.WriteHeader(http.StatusNoContent)
		return
	}
	defer func() {
		if err := h.svc.Remove(att.Path); err != nil {
			h.errors.LogError(r, "remove attachment", err)
		}
	}()

	f, err := h.svc.Open(att.Path)
	if err != nil {
		h.errors.Internal(w, r, err, "open attachment")
		return
	}
	defer f.Close()

	w.Header().Set("Content-Type", "text/calendar; charset=utf-8")
	w.Header().Set("Content-Disposition", fmt.Sprintf("attachment; filename=%q", att.Name))
	w.Header().Set("Cache-Control", "no-store")
	if info, err := f.Stat(); err == nil {
		w.Header().Set("Content-Length", strconv.FormatInt(info.Size(), 10))
	}
	w.WriteHeader(http.StatusOK)
	if _, err := io.Copy(w, f); err != nil {
		h.errors.LogError(r, "stream attachment", err)
	}
}

func parseExportRequest(r *http.Request) (booking.Request, error) {
	var req booking.Request
	var err error

	if req.OptionID, err = parseID(chi.URLParam(r, "optionID")); err != nil {
		return req, fmt.Errorf("invalid option id: %w", err)
	}
	q := r.URL.Query()
	if req.UserID, err = parseID(q.Get("user")); err != nil {
		return req, fmt.Errorf("invalid user: %w", err)
	}
	if from := q.Get("from"); from != "" {
		if req.FromUserID, err = parseID(from); err != nil {
			return req, fmt.Errorf("invalid from: %w", err)
		}
	}
	if c := q.Get("cancel"); c != "" {
		if req.Cancel, err = strconv.ParseBool(c); err != nil {
			return req, fmt.Errorf("invalid cancel: %w", err)
		}
	}
	return req, nil
}

func parseID(s string) (int64, error) {
	if s == "" {
		return 0, fmt.Errorf("missing value")
	}
	id, err := strconv.ParseInt(s, 10, 64)
	if err != nil {
		return 0, err
	}
	if id <= 0 {
		return 0, fmt.Errorf("must be positive")
	}
	return id, nil
}
