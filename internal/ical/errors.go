package ical

import "errors"

var (
	// ErrMissingIdentity is returned when the sender or recipient has no usable email address.
	ErrMissingIdentity = errors.New("missing identity")
	// ErrMalformedSessionDate is returned when a session date lacks a start or end, or ends before it starts.
	ErrMalformedSessionDate = errors.New("malformed session date")
	// ErrStorage wraps failures writing the attachment file.
	ErrStorage = errors.New("attachment storage failed")
)
