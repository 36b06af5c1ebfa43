package booking

// buildReport computes the read-only dashboard projections over the confirmed
// ledger: today's bookings, upcoming bookings and the distinct patient count.
// `today` is a "2006-01-02" date; slot dates sort lexicographically, so the
// string comparisons are chronological.
func buildReport(confirmed []Booking, today string) Report {
	r := Report{
		TotalBookings: len(confirmed),
		Today:         []Booking{},
		Upcoming:      []Booking{},
	}
	patients := make(map[string]struct{})
	for _, b := range confirmed {
		patients[b.PatientID] = struct{}{}
		switch {
		case b.Date == today:
			r.Today = append(r.Today, b)
		case b.Date > today:
			r.Upcoming = append(r.Upcoming, b)
		}
	}
	r.TodayCount = len(r.Today)
	r.UpcomingCount = len(r.Upcoming)
	r.DistinctPatients = len(patients)
	return r
}
