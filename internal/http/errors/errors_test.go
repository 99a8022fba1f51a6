package errors

import (
	"context"
	stderrors "errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/go-chi/chi/v5/middleware"
	"go.uber.org/zap"
	"go.uber.org/zap/zaptest/observer"

	"gitea.jw6.us/james/bookingcal/internal/ical"
	"gitea.jw6.us/james/bookingcal/internal/store"
)

func TestStatus(t *testing.T) {
	tests := []struct {
		err  error
		want int
	}{
		{nil, http.StatusOK},
		{fmt.Errorf("user 4: %w", store.ErrNotFound), http.StatusNotFound},
		{fmt.Errorf("%w: recipient", ical.ErrMissingIdentity), http.StatusUnprocessableEntity},
		{fmt.Errorf("%w: session 3", ical.ErrMalformedSessionDate), http.StatusUnprocessableEntity},
		{fmt.Errorf("%w: disk full", ical.ErrStorage), http.StatusInternalServerError},
		{context.DeadlineExceeded, http.StatusGatewayTimeout},
		{stderrors.New("boom"), http.StatusInternalServerError},
	}
	for _, tt := range tests {
		if got := Status(tt.err); got != tt.want {
			t.Errorf("Status(%v) = %d, want %d", tt.err, got, tt.want)
		}
	}
}

func requestWithID(id string) *http.Request {
	r := httptest.NewRequest(http.MethodGet, "/", nil)
	ctx := context.WithValue(r.Context(), middleware.RequestIDKey, id)
	return r.WithContext(ctx)
}

func TestInternalHidesCause(t *testing.T) {
	core, logs := observer.New(zap.InfoLevel)
	e := NewResponder(zap.New(core))
	w := httptest.NewRecorder()

	e.Error(w, requestWithID("req-1"), stderrors.New("password=hunter2"), "export failed")

	if w.Code != http.StatusInternalServerError {
		t.Fatalf("status = %d", w.Code)
	}
	if strings.Contains(w.Body.String(), "hunter2") {
		t.Fatalf("cause leaked to client: %q", w.Body.String())
	}
	entries := logs.FilterMessage("export failed").All()
	if len(entries) != 1 {
		t.Fatalf("expected one log entry, got %d", len(entries))
	}
	if got := entries[0].ContextMap()["request_id"]; got != "req-1" {
		t.Fatalf("request_id = %v", got)
	}
}

func TestClientErrorEchoesCause(t *testing.T) {
	e := NewResponder(zap.NewNop())
	w := httptest.NewRecorder()

	e.Error(w, httptest.NewRequest(http.MethodGet, "/", nil), fmt.Errorf("user 9: %w", store.ErrNotFound), "export failed")

	if w.Code != http.StatusNotFound {
		t.Fatalf("status = %d", w.Code)
	}
	if !strings.Contains(w.Body.String(), "user 9") {
		t.Fatalf("body = %q", w.Body.String())
	}
}

func TestBadRequest(t *testing.T) {
	core, logs := observer.New(zap.InfoLevel)
	e := NewResponder(zap.New(core))
	w := httptest.NewRecorder()

	e.BadRequest(w, requestWithID("req-2"), stderrors.New("strconv: bad"), "invalid user id")

	if w.Code != http.StatusBadRequest || strings.TrimSpace(w.Body.String()) != "invalid user id" {
		t.Fatalf("got %d %q", w.Code, w.Body.String())
	}
	if logs.FilterField(zap.String("request_id", "req-2")).Len() != 1 {
		t.Fatal("expected warning with request id")
	}
}
