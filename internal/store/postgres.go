package store

import (
	"context"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"
)

// bookingRepo implements BookingRepository.
type bookingRepo struct {
	pool PgxPool
}

func (r *bookingRepo) GetByID(ctx context.Context, id int64) (*Booking, error) {
	defer observeDB(ctx, "bookings.get_by_id")()

	const q = `SELECT id, name FROM bookings WHERE id=$1`
	var b Booking
	if err := r.pool.QueryRow(ctx, q, id).Scan(&b.ID, &b.Name); err != nil {
		return nil, notFound(err, "booking", id)
	}
	return &b, nil
}

// optionRepo implements OptionRepository.
type optionRepo struct {
	pool PgxPool
}

func (r *optionRepo) GetByID(ctx context.Context, id int64) (*BookingOption, error) {
	defer observeDB(ctx, "booking_options.get_by_id")()

	const q = `SELECT id, booking_id, title, description, course_id,
        course_start_time, course_end_time, time_modified
FROM booking_options WHERE id=$1`
	var o BookingOption
	err := r.pool.QueryRow(ctx, q, id).Scan(
		&o.ID, &o.BookingID, &o.Title, &o.Description, &o.CourseID,
		&o.CourseStartTime, &o.CourseEndTime, &o.TimeModified,
	)
	if err != nil {
		return nil, notFound(err, "booking option", id)
	}
	return &o, nil
}

// sessionDateRepo implements SessionDateRepository.
type sessionDateRepo struct {
	pool PgxPool
}

func (r *sessionDateRepo) ListForOption(ctx context.Context, optionID int64) ([]OptionDate, error) {
	defer observeDB(ctx, "booking_option_dates.list_for_option")()

	const q = `SELECT id, option_id, course_start_time, course_end_time
FROM booking_option_dates WHERE option_id=$1
ORDER BY course_start_time ASC, id ASC`
	rows, err := r.pool.Query(ctx, q, optionID)
	if err != nil {
		return nil, fmt.Errorf("list session dates for option %d: %w", optionID, err)
	}
	defer rows.Close()

	var dates []OptionDate
	for rows.Next() {
		var d OptionDate
		if err := rows.Scan(&d.ID, &d.OptionID, &d.CourseStartTime, &d.CourseEndTime); err != nil {
			return nil, fmt.Errorf("scan session date for option %d: %w", optionID, err)
		}
		dates = append(dates, d)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("list session dates for option %d: %w", optionID, err)
	}
	return dates, nil
}

// userRepo implements UserRepository.
type userRepo struct {
	pool PgxPool
}

func (r *userRepo) GetByID(ctx context.Context, id int64) (*User, error) {
	defer observeDB(ctx, "users.get_by_id")()

	const q = `SELECT id, email, first_name, last_name FROM users WHERE id=$1`
	var u User
	if err := r.pool.QueryRow(ctx, q, id).Scan(&u.ID, &u.Email, &u.FirstName, &u.LastName); err != nil {
		return nil, notFound(err, "user", id)
	}
	return &u, nil
}

func notFound(err error, what string, id int64) error {
	if errors.Is(err, pgx.ErrNoRows) {
		return fmt.Errorf("%s %d: %w", what, id, ErrNotFound)
	}
	return fmt.Errorf("load %s %d: %w", what, id, err)
}
