package models

import (
	"time"

	"gorm.io/gorm"
)

// BlockedDay marks a day of the month the practitioner is unavailable.
// Weekends are always unavailable regardless of this table.
type BlockedDay struct {
	gorm.Model
	Day int `gorm:"column:day;not null;uniqueIndex" json:"day"`
}

func (BlockedDay) TableName() string {
	return "blocked_days"
}

// BlockedSet collapses blocked-day rows into a membership set.
func BlockedSet(days []BlockedDay) map[int]bool {
	set := make(map[int]bool, len(days))
	for _, d := range days {
		set[d.Day] = true
	}
	return set
}

// BookingLookahead is how far ahead a first visit may be booked.
const BookingLookahead = 14

type CalendarDay struct {
	Day       int    `json:"day"`
	Dow       string `json:"dow"`
	Available bool   `json:"available"`
}

// BookingWindow lists the next BookingLookahead days starting tomorrow. A
// day is available iff it falls on a weekday and is not blocked.
func BookingWindow(today time.Time, blocked map[int]bool) []CalendarDay {
	dows := []string{"Sun", "Mon", "Tue", "Wed", "Thu", "Fri", "Sat"}
	window := make([]CalendarDay, 0, BookingLookahead)
	for i := 1; i <= BookingLookahead; i++ {
		d := today.AddDate(0, 0, i)
		weekend := d.Weekday() == time.Saturday || d.Weekday() == time.Sunday
		window = append(window, CalendarDay{
			Day:       d.Day(),
			Dow:       dows[int(d.Weekday())],
			Available: !weekend && !blocked[d.Day()],
		})
	}
	return window
}
