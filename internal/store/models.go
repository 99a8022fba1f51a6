package store

import "strings"

// Booking is the activity that groups bookable options.
type Booking struct {
	ID   int64
	Name string
}

// BookingOption is a bookable option. Times are Unix seconds, zero when unset.
type BookingOption struct {
	ID              int64
	BookingID       int64
	Title           string
	Description     string
	CourseID        *int64
	CourseStartTime int64
	CourseEndTime   int64
	TimeModified    int64
}

// OptionDate is one session of a multi-session option.
type OptionDate struct {
	ID              int64
	OptionID        int64
	CourseStartTime int64
	CourseEndTime   int64
}

// User is a person who books options or sends notifications.
type User struct {
	ID        int64
	Email     string
	FirstName string
	LastName  string
}

// FullName joins first and last name.
func (u User) FullName() string {
	return strings.TrimSpace(strings.TrimSpace(u.FirstName) + " " + strings.TrimSpace(u.LastName))
}
