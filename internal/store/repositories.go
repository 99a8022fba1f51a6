package store

import (
	"context"
	"errors"
)

// ErrNotFound indicates a missing record.
var ErrNotFound = errors.New("record not found")

// BookingRepository reads booking activities.
type BookingRepository interface {
	GetByID(ctx context.Context, id int64) (*Booking, error)
}

// OptionRepository reads booking options.
type OptionRepository interface {
	GetByID(ctx context.Context, id int64) (*BookingOption, error)
}

// SessionDateRepository reads the sessions of an option.
type SessionDateRepository interface {
	// ListForOption returns the sessions ordered by start time ascending.
	ListForOption(ctx context.Context, optionID int64) ([]OptionDate, error)
}

// UserRepository reads users.
type UserRepository interface {
	GetByID(ctx context.Context, id int64) (*User, error)
}
