package repository

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/Rafhael-Viana/geoproof/models"
)

type AttendanceRepository struct {
	pool *pgxpool.Pool
}

func NewAttendanceRepository(pool *pgxpool.Pool) *AttendanceRepository {
	return &AttendanceRepository{pool: pool}
}

const attendanceColumns = `
	a.id, a.user_id, a.check_in, a.check_out, a.latitude, a.longitude, a.accuracy_m, a.photo_ref,
	a.geofence_id, a.distance_m, a.inside_geofence, a.status, COALESCE(a.status_reason, ''),
	a.suspicious_flag, a.suspicious_reason, a.server_timestamp, a.client_timestamp,
	a.verified_by, a.verified_at, a.verification_note, a.created_at, a.updated_at,
	u.name, u.email, u.role
`

const attendanceFrom = `
	FROM attendance a
	LEFT JOIN users u ON u.user_id = a.user_id
`

func scanAttendance(row rowScanner) (*models.Attendance, error) {
	var (
		a                 models.Attendance
		name, email, role *string
	)
	err := row.Scan(
		&a.ID, &a.UserID, &a.CheckIn, &a.CheckOut, &a.Latitude, &a.Longitude, &a.AccuracyM, &a.PhotoRef,
		&a.GeofenceID, &a.DistanceM, &a.InsideGeofence, &a.Status, &a.StatusReason,
		&a.SuspiciousFlag, &a.SuspiciousReason, &a.ServerTimestamp, &a.ClientTimestamp,
		&a.VerifiedBy, &a.VerifiedAt, &a.VerificationNote, &a.CreatedAt, &a.UpdatedAt,
		&name, &email, &role,
	)
	if err != nil {
		return nil, notFound(err)
	}
	if name != nil {
		a.User = &models.UserRef{UserID: a.UserID, Name: *name}
		if email != nil {
			a.User.Email = *email
		}
		if role != nil {
			a.User.Role = models.Role(*role)
		}
	}
	return &a, nil
}

// Create inserts a check-in. A second open record for the same user violates
// attendance_single_open and comes back as ErrDuplicate.
func (r *AttendanceRepository) Create(ctx context.Context, a *models.Attendance) error {
	err := r.pool.QueryRow(ctx, `
		INSERT INTO attendance (
			user_id, check_in, latitude, longitude, accuracy_m, photo_ref, geofence_id,
			distance_m, inside_geofence, status, status_reason, suspicious_flag, suspicious_reason,
			server_timestamp, client_timestamp
		) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14, $15)
		RETURNING id, created_at, updated_at
	`,
		a.UserID, a.CheckIn, a.Latitude, a.Longitude, a.AccuracyM, a.PhotoRef, a.GeofenceID,
		a.DistanceM, a.InsideGeofence, a.Status.String(), a.StatusReason, a.SuspiciousFlag, a.SuspiciousReason,
		a.ServerTimestamp, a.ClientTimestamp,
	).Scan(&a.ID, &a.CreatedAt, &a.UpdatedAt)
	if isUniqueViolation(err, "attendance_single_open") {
		return ErrDuplicate
	}
	return err
}

// Open returns the user's record without a check-out.
func (r *AttendanceRepository) Open(ctx context.Context, userID string) (*models.Attendance, error) {
	return scanAttendance(r.pool.QueryRow(ctx,
		`SELECT `+attendanceColumns+attendanceFrom+` WHERE a.user_id = $1 AND a.check_out IS NULL LIMIT 1`, userID))
}

// LastFix returns the user's most recent record that has coordinates.
func (r *AttendanceRepository) LastFix(ctx context.Context, userID string) (*models.LastFix, error) {
	var f models.LastFix
	err := r.pool.QueryRow(ctx, `
		SELECT id, latitude, longitude, check_in
		FROM attendance
		WHERE user_id = $1 AND latitude IS NOT NULL AND longitude IS NOT NULL
		ORDER BY check_in DESC, id DESC
		LIMIT 1
	`, userID).Scan(&f.AttendanceID, &f.Latitude, &f.Longitude, &f.CheckIn)
	if err != nil {
		return nil, notFound(err)
	}
	return &f, nil
}

// CheckOut closes the user's open record at at.
func (r *AttendanceRepository) CheckOut(ctx context.Context, userID string, at time.Time) (*models.Attendance, error) {
	var id int64
	err := r.pool.QueryRow(ctx, `
		UPDATE attendance SET check_out = $2, updated_at = now()
		WHERE user_id = $1 AND check_out IS NULL
		RETURNING id
	`, userID, at).Scan(&id)
	if err != nil {
		return nil, notFound(err)
	}
	return r.Get(ctx, id)
}

func (r *AttendanceRepository) Get(ctx context.Context, id int64) (*models.Attendance, error) {
	return scanAttendance(r.pool.QueryRow(ctx, `SELECT `+attendanceColumns+attendanceFrom+` WHERE a.id = $1`, id))
}

func (r *AttendanceRepository) Delete(ctx context.Context, id int64) error {
	cmd, err := r.pool.Exec(ctx, `DELETE FROM attendance WHERE id = $1`, id)
	if err != nil {
		return err
	}
	if cmd.RowsAffected() == 0 {
		return ErrNotFound
	}
	return nil
}

// UpdateTimes rewrites check-in and check-out. A nil checkOut keeps the
// record open.
func (r *AttendanceRepository) UpdateTimes(ctx context.Context, id int64, checkIn time.Time, checkOut *time.Time) (*models.Attendance, error) {
	cmd, err := r.pool.Exec(ctx, `
		UPDATE attendance SET check_in = $2, check_out = $3, updated_at = now()
		WHERE id = $1
	`, id, checkIn, checkOut)
	if err != nil {
		if isUniqueViolation(err, "attendance_single_open") {
			return nil, ErrDuplicate
		}
		return nil, err
	}
	if cmd.RowsAffected() == 0 {
		return nil, ErrNotFound
	}
	return r.Get(ctx, id)
}

type Verification struct {
	ID   int64
	From models.Status
	To   models.Status
	By   string
	Note *string
	At   time.Time
}

// Verify applies an admin decision only if the record is still in v.From.
func (r *AttendanceRepository) Verify(ctx context.Context, v Verification) (*models.Attendance, error) {
	cmd, err := r.pool.Exec(ctx, `
		UPDATE attendance
		SET status = $3, verified_by = $4, verified_at = $5, verification_note = $6, updated_at = now()
		WHERE id = $1 AND status = $2
	`, v.ID, v.From.String(), v.To.String(), v.By, v.At, v.Note)
	if err != nil {
		return nil, err
	}
	if cmd.RowsAffected() == 0 {
		if _, err := r.Get(ctx, v.ID); err != nil {
			return nil, err
		}
		return nil, ErrStateChanged
	}
	return r.Get(ctx, v.ID)
}

func attendanceWhere(f models.AttendanceFilter) (string, []any) {
	where := []string{"1=1"}
	args := []any{}
	argN := 1

	if f.UserID != "" {
		where = append(where, fmt.Sprintf("a.user_id = $%d", argN))
		args = append(args, f.UserID)
		argN++
	}
	if f.Status != nil {
		where = append(where, fmt.Sprintf("a.status = $%d", argN))
		args = append(args, f.Status.String())
		argN++
	}
	if f.From != nil {
		where = append(where, fmt.Sprintf("a.check_in >= $%d", argN))
		args = append(args, *f.From)
		argN++
	}
	if f.To != nil {
		where = append(where, fmt.Sprintf("a.check_in < $%d", argN))
		args = append(args, *f.To)
		argN++
	}
	if f.Suspicious {
		where = append(where, "a.suspicious_flag")
	}
	if f.NameLike != "" {
		where = append(where, fmt.Sprintf("u.name ILIKE $%d", argN))
		args = append(args, "%"+f.NameLike+"%")
	}
	return strings.Join(where, " AND "), args
}

// List returns the records matching f, newest first, and the total count
// ignoring pagination. A non-positive f.Limit returns every match.
func (r *AttendanceRepository) List(ctx context.Context, f models.AttendanceFilter) ([]models.Attendance, int64, error) {
	where, args := attendanceWhere(f)

	var total int64
	if err := r.pool.QueryRow(ctx, `SELECT count(*)`+attendanceFrom+` WHERE `+where, args...).Scan(&total); err != nil {
		return nil, 0, fmt.Errorf("count attendance: %w", err)
	}

	order := ` ORDER BY a.check_in DESC, a.id DESC`
	if f.OldestFirst {
		order = ` ORDER BY a.check_in ASC, a.id ASC`
	}
	query := `SELECT ` + attendanceColumns + attendanceFrom + ` WHERE ` + where + order
	if f.Limit > 0 {
		query += fmt.Sprintf(" LIMIT $%d OFFSET $%d", len(args)+1, len(args)+2)
		args = append(args, f.Limit, f.Offset())
	}

	rows, err := r.pool.Query(ctx, query, args...)
	if err != nil {
		return nil, 0, fmt.Errorf("list attendance: %w", err)
	}
	defer rows.Close()

	out := []models.Attendance{}
	for rows.Next() {
		a, err := scanAttendance(rows)
		if err != nil {
			return nil, 0, err
		}
		out = append(out, *a)
	}
	return out, total, rows.Err()
}
