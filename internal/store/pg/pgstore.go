package pg

import (
	"context"
	"database/sql"
	"errors"
	"time"

	"github.com/jackc/pgx/v5/pgconn"
	_ "github.com/jackc/pgx/v5/stdlib"

	"clinicdesk.org/internal/accounts"
	"clinicdesk.org/internal/booking"
	"clinicdesk.org/internal/ids"
)

// Store is the durable implementation of both the reservation engine and the
// account store, backed by Postgres.
type Store struct {
	db *sql.DB
}

var (
	_ booking.Service = (*Store)(nil)
	_ accounts.Store  = (*Store)(nil)
)

const uniqueViolation = "23505"

func Open(dsn string) (*Store, error) {
	db, err := sql.Open("pgx", dsn)
	if err != nil {
		return nil, err
	}
	// Tuned pool defaults; adjust under load tests
	db.SetMaxOpenConns(50)
	db.SetMaxIdleConns(25)
	db.SetConnMaxLifetime(15 * time.Minute)
	db.SetConnMaxIdleTime(5 * time.Minute)
	return &Store{db: db}, nil
}

// NewWithDB wraps an existing handle. Used by tests.
func NewWithDB(db *sql.DB) *Store { return &Store{db: db} }

func (s *Store) Close() error { return s.db.Close() }

func (s *Store) DB() *sql.DB { return s.db }

// --- accounts.Store ---

func (s *Store) Create(ctx context.Context, u *accounts.User) error {
	_, err := s.db.ExecContext(ctx, `
		insert into users(id, email, name, role, password_hash, created_at)
		values ($1,$2,$3,$4,$5,$6)
	`, u.ID, u.Email, u.Name, string(u.Role), u.PasswordHash, u.CreatedAt)
	if isUniqueViolation(err) {
		return accounts.ErrDuplicateEmail
	}
	return err
}

func (s *Store) Find(ctx context.Context, id string) (*accounts.User, error) {
	return s.findUser(ctx, `where id=$1`, id)
}

func (s *Store) FindByEmail(ctx context.Context, email string) (*accounts.User, error) {
	return s.findUser(ctx, `where email=$1`, email)
}

func (s *Store) findUser(ctx context.Context, where string, arg any) (*accounts.User, error) {
	var u accounts.User
	var role string
	err := s.db.QueryRowContext(ctx, `
		select id, email, name, role, password_hash, created_at
		from users `+where, arg,
	).Scan(&u.ID, &u.Email, &u.Name, &role, &u.PasswordHash, &u.CreatedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, accounts.ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	u.Role = accounts.Role(role)
	return &u, nil
}

func (s *Store) Count(ctx context.Context) (int, error) {
	var n int
	err := s.db.QueryRowContext(ctx, `select count(*) from users`).Scan(&n)
	return n, err
}

// --- booking.Service ---

// SeedSlots installs the generated calendar. Already-present slot ids are left
// untouched, so reseeding on restart never clobbers live availability.
func (s *Store) SeedSlots(ctx context.Context, slots []booking.Slot) (int, error) {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return 0, err
	}
	defer func() { _ = tx.Rollback() }()

	inserted := 0
	for _, slot := range slots {
		res, err := tx.ExecContext(ctx, `
			insert into slots(id, date, time, available)
			values ($1,$2,$3,$4)
			on conflict (id) do nothing
		`, slot.ID, slot.Date, slot.Time, slot.Available)
		if err != nil {
			return 0, err
		}
		if n, err := res.RowsAffected(); err == nil {
			inserted += int(n)
		}
	}
	if err := tx.Commit(); err != nil {
		return 0, err
	}
	return inserted, nil
}

func (s *Store) ListAvailable(ctx context.Context) ([]booking.Slot, error) {
	rows, err := s.db.QueryContext(ctx, `
		select id, date, time, available, coalesce(patient_id,''), coalesce(patient_name,'')
		from slots
		where available
		order by date, time
	`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	out := []booking.Slot{}
	for rows.Next() {
		var sl booking.Slot
		if err := rows.Scan(&sl.ID, &sl.Date, &sl.Time, &sl.Available, &sl.PatientID, &sl.PatientName); err != nil {
			return nil, err
		}
		out = append(out, sl)
	}
	return out, rows.Err()
}

func (s *Store) Book(ctx context.Context, slotID, patientID string) (booking.Booking, error) {
	tx, err := s.db.BeginTx(ctx, &sql.TxOptions{Isolation: sql.LevelSerializable})
	if err != nil {
		return booking.Booking{}, err
	}
	defer func() { _ = tx.Rollback() }()

	var patient booking.Patient
	err = tx.QueryRowContext(ctx, `
		select id, name, email from users where id=$1
	`, patientID).Scan(&patient.ID, &patient.Name, &patient.Email)
	if errors.Is(err, sql.ErrNoRows) {
		return booking.Booking{}, booking.ErrPatientNotFound
	}
	if err != nil {
		return booking.Booking{}, err
	}

	// Row lock makes concurrent bookings of one slot serialize here; the
	// loser sees available=false and gets the conflict error.
	var sl booking.Slot
	err = tx.QueryRowContext(ctx, `
		select id, date, time, available from slots where id=$1 for update
	`, slotID).Scan(&sl.ID, &sl.Date, &sl.Time, &sl.Available)
	if errors.Is(err, sql.ErrNoRows) {
		return booking.Booking{}, booking.ErrSlotNotFound
	}
	if err != nil {
		return booking.Booking{}, err
	}
	if !sl.Available {
		return booking.Booking{}, booking.ErrSlotUnavailable
	}

	if _, err := tx.ExecContext(ctx, `
		update slots set available=false, patient_id=$2, patient_name=$3 where id=$1
	`, slotID, patient.ID, patient.Name); err != nil {
		return booking.Booking{}, err
	}

	b := booking.Booking{
		ID:           ids.New(),
		SlotID:       sl.ID,
		PatientID:    patient.ID,
		PatientName:  patient.Name,
		PatientEmail: patient.Email,
		Date:         sl.Date,
		Time:         sl.Time,
		Status:       booking.StatusConfirmed,
		CreatedAt:    time.Now().UTC(),
	}
	if _, err := tx.ExecContext(ctx, `
		insert into bookings(id, slot_id, patient_id, patient_name, patient_email, date, time, status, created_at)
		values ($1,$2,$3,$4,$5,$6,$7,$8,$9)
	`, b.ID, b.SlotID, b.PatientID, b.PatientName, b.PatientEmail, b.Date, b.Time, string(b.Status), b.CreatedAt); err != nil {
		return booking.Booking{}, err
	}

	if err := tx.Commit(); err != nil {
		return booking.Booking{}, err
	}
	return b, nil
}

func (s *Store) Cancel(ctx context.Context, bookingID string, actor booking.Actor) (booking.Booking, error) {
	tx, err := s.db.BeginTx(ctx, &sql.TxOptions{Isolation: sql.LevelSerializable})
	if err != nil {
		return booking.Booking{}, err
	}
	defer func() { _ = tx.Rollback() }()

	var b booking.Booking
	var status string
	err = tx.QueryRowContext(ctx, `
		select id, slot_id, patient_id, patient_name, patient_email, date, time, status, created_at
		from bookings where id=$1 for update
	`, bookingID).Scan(&b.ID, &b.SlotID, &b.PatientID, &b.PatientName, &b.PatientEmail, &b.Date, &b.Time, &status, &b.CreatedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return booking.Booking{}, booking.ErrBookingNotFound
	}
	if err != nil {
		return booking.Booking{}, err
	}
	b.Status = booking.BookingStatus(status)

	if !actor.Admin && b.PatientID != actor.ID {
		return booking.Booking{}, booking.ErrCancelForbidden
	}
	// Replayed cancel: the slot may have been rebooked since, so leave it
	// alone and return the record as-is.
	if b.Status == booking.StatusCancelled {
		return b, nil
	}

	if _, err := tx.ExecContext(ctx, `
		update bookings set status=$2 where id=$1
	`, b.ID, string(booking.StatusCancelled)); err != nil {
		return booking.Booking{}, err
	}
	if _, err := tx.ExecContext(ctx, `
		update slots set available=true, patient_id=null, patient_name=null where id=$1
	`, b.SlotID); err != nil {
		return booking.Booking{}, err
	}

	if err := tx.Commit(); err != nil {
		return booking.Booking{}, err
	}
	b.Status = booking.StatusCancelled
	return b, nil
}

func (s *Store) BookingsByPatient(ctx context.Context, patientID string) ([]booking.Booking, error) {
	return s.queryBookings(ctx, `where patient_id=$1 and status='confirmed' order by date, time`, patientID)
}

func (s *Store) AllBookings(ctx context.Context) ([]booking.Booking, error) {
	return s.queryBookings(ctx, `where status='confirmed' order by date, time`)
}

func (s *Store) queryBookings(ctx context.Context, tail string, args ...any) ([]booking.Booking, error) {
	rows, err := s.db.QueryContext(ctx, `
		select id, slot_id, patient_id, patient_name, patient_email, date, time, status, created_at
		from bookings `+tail, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	out := []booking.Booking{}
	for rows.Next() {
		var b booking.Booking
		var status string
		if err := rows.Scan(&b.ID, &b.SlotID, &b.PatientID, &b.PatientName, &b.PatientEmail, &b.Date, &b.Time, &status, &b.CreatedAt); err != nil {
			return nil, err
		}
		b.Status = booking.BookingStatus(status)
		out = append(out, b)
	}
	return out, rows.Err()
}

// Report aggregates in SQL rather than loading every row; the detail lists
// still come from queryBookings so their shape matches the in-memory engine.
func (s *Store) Report(ctx context.Context, today string) (booking.Report, error) {
	var rep booking.Report
	err := s.db.QueryRowContext(ctx, `
		select count(*),
		       count(*) filter (where date = $1),
		       count(*) filter (where date > $1),
		       count(distinct patient_id)
		from bookings
		where status='confirmed'
	`, today).Scan(&rep.TotalBookings, &rep.TodayCount, &rep.UpcomingCount, &rep.DistinctPatients)
	if err != nil {
		return booking.Report{}, err
	}

	rep.Today, err = s.queryBookings(ctx, `where status='confirmed' and date=$1 order by time`, today)
	if err != nil {
		return booking.Report{}, err
	}
	rep.Upcoming, err = s.queryBookings(ctx, `where status='confirmed' and date>$1 order by date, time`, today)
	if err != nil {
		return booking.Report{}, err
	}
	return rep, nil
}

func isUniqueViolation(err error) bool {
	var pgErr *pgconn.PgError
	return errors.As(err, &pgErr) && pgErr.Code == uniqueViolation
}
