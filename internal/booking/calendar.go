package booking

import (
	"fmt"
	"time"
)

// Default calendar window: seven days ahead, hourly slots from 09:00 to 17:00,
// weekends closed.
const (
	DefaultWindowDays = 7
	DefaultStartHour  = 9
	DefaultEndHour    = 17
)

// SlotID is a pure function of date and hour, so regenerating the calendar
// against a non-empty store produces the same IDs and seeding stays
// idempotent.
func SlotID(date string, hour int) string {
	return fmt.Sprintf("slot-%s-%d", date, hour)
}

// GenerateSlots produces the bookable calendar for the window starting at
// `from`: one open slot per integer hour in [startHour, endHour] for each of
// windowDays days, skipping Saturday and Sunday when skipWeekends is set.
// The result is ordered by date, then hour.
func GenerateSlots(from time.Time, windowDays, startHour, endHour int, skipWeekends bool) []Slot {
	var slots []Slot
	for day := 0; day < windowDays; day++ {
		d := from.AddDate(0, 0, day)
		if skipWeekends && (d.Weekday() == time.Saturday || d.Weekday() == time.Sunday) {
			continue
		}
		date := d.Format("2006-01-02")
		for hour := startHour; hour <= endHour; hour++ {
			slots = append(slots, Slot{
				ID:        SlotID(date, hour),
				Date:      date,
				Time:      fmt.Sprintf("%02d:00", hour),
				Available: true,
			})
		}
	}
	return slots
}
