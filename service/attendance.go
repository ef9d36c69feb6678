package service

import (
	"context"
	"errors"
	"fmt"
	"io"
	"math"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/Rafhael-Viana/geoproof/attendance"
	"github.com/Rafhael-Viana/geoproof/cache"
	"github.com/Rafhael-Viana/geoproof/geo"
	"github.com/Rafhael-Viana/geoproof/models"
	"github.com/Rafhael-Viana/geoproof/repository"
	"github.com/Rafhael-Viana/geoproof/storage"
)

type AttendanceStore interface {
	Create(ctx context.Context, a *models.Attendance) error
	Open(ctx context.Context, userID string) (*models.Attendance, error)
	LastFix(ctx context.Context, userID string) (*models.LastFix, error)
	CheckOut(ctx context.Context, userID string, at time.Time) (*models.Attendance, error)
	Get(ctx context.Context, id int64) (*models.Attendance, error)
	Delete(ctx context.Context, id int64) error
	UpdateTimes(ctx context.Context, id int64, checkIn time.Time, checkOut *time.Time) (*models.Attendance, error)
	Verify(ctx context.Context, v repository.Verification) (*models.Attendance, error)
	List(ctx context.Context, f models.AttendanceFilter) ([]models.Attendance, int64, error)
}

type PhotoStore interface {
	Save(userID, originalName string, r io.Reader) (string, error)
	Remove(ref string) error
}

type CheckInLocker interface {
	Acquire(ctx context.Context, key string) (func(context.Context), error)
}

// Actor is the authenticated caller.
type Actor struct {
	UserID string
	Name   string
	Role   models.Role
}

func (a Actor) IsAdmin() bool { return a.Role == models.RoleAdmin }

const (
	DefaultPageSize = 10
	MaxPageSize     = 100

	// MaxAccuracyMeters keeps accuracy_m inside its DECIMAL(10,2) column.
	MaxAccuracyMeters = 1e6
)

type AttendanceService struct {
	store      AttendanceStore
	active     ActiveGeofenceSource
	photos     PhotoStore
	lock       CheckInLocker
	thresholds attendance.Thresholds
	loc        *time.Location
	logger     *zap.Logger
	now        func() time.Time
}

func NewAttendanceService(
	store AttendanceStore,
	active ActiveGeofenceSource,
	photos PhotoStore,
	lock CheckInLocker,
	thresholds attendance.Thresholds,
	loc *time.Location,
	logger *zap.Logger,
) *AttendanceService {
	return &AttendanceService{
		store:      store,
		active:     active,
		photos:     photos,
		lock:       lock,
		thresholds: thresholds,
		loc:        loc,
		logger:     logger,
		now:        time.Now,
	}
}

type Photo struct {
	Filename string
	Body     io.Reader
}

type CheckInInput struct {
	Point           geo.Coordinate
	Accuracy        *float64
	ClientTimestamp *time.Time
	Photo           *Photo
}

type CheckInResult struct {
	Record     *models.Attendance
	Evaluation attendance.Evaluation
	Message    string
}

func attendanceStoreErr(err error) error {
	if errors.Is(err, repository.ErrNotFound) {
		return fmt.Errorf("attendance %w", ErrNotFound)
	}
	return err
}

// CheckIn validates and stores a check-in for actor.
func (s *AttendanceService) CheckIn(ctx context.Context, actor Actor, in CheckInInput) (*CheckInResult, error) {
	if in.Accuracy != nil {
		acc := *in.Accuracy
		if math.IsNaN(acc) || math.IsInf(acc, 0) || acc < 0 {
			return nil, invalid("accuracy", "must be a non-negative number")
		}
		if acc > MaxAccuracyMeters {
			return nil, invalid("accuracy", "must not exceed %.0f meters", MaxAccuracyMeters)
		}
	}

	release, err := s.lock.Acquire(ctx, actor.UserID)
	switch {
	case errors.Is(err, cache.ErrLocked):
		return nil, ErrCheckInInProgress
	case err != nil:
		s.logger.Warn("check-in lock unavailable", zap.String("user_id", actor.UserID), zap.Error(err))
	default:
		defer release(context.WithoutCancel(ctx))
	}

	if _, err := s.store.Open(ctx, actor.UserID); err == nil {
		return nil, ErrAlreadyCheckedIn
	} else if !errors.Is(err, repository.ErrNotFound) {
		return nil, fmt.Errorf("find open attendance: %w", err)
	}

	fence, err := s.active.Get(ctx)
	if err != nil {
		return nil, fmt.Errorf("load active geofence: %w", err)
	}

	now := s.now()
	ev := attendance.Evaluate(attendance.Candidate{
		Point:    in.Point,
		Accuracy: in.Accuracy,
		At:       now,
		Geofence: fence,
		Prior:    s.priorFix(ctx, actor.UserID),
	}, s.thresholds)

	rec := newAttendanceRecord(actor.UserID, in, now, ev)

	if in.Photo != nil {
		ref, err := s.photos.Save(actor.UserID, in.Photo.Filename, in.Photo.Body)
		if errors.Is(err, storage.ErrNotImage) {
			return nil, invalid("buktiFoto", "%s", err.Error())
		}
		if err != nil {
			return nil, fmt.Errorf("save photo: %w", err)
		}
		rec.PhotoRef = &ref
	}

	if err := s.store.Create(ctx, rec); err != nil {
		if rec.PhotoRef != nil {
			if rmErr := s.photos.Remove(*rec.PhotoRef); rmErr != nil {
				s.logger.Warn("remove orphan photo", zap.String("ref", *rec.PhotoRef), zap.Error(rmErr))
			}
		}
		if errors.Is(err, repository.ErrDuplicate) {
			return nil, ErrAlreadyCheckedIn
		}
		return nil, fmt.Errorf("create attendance: %w", err)
	}

	if full, err := s.store.Get(ctx, rec.ID); err == nil {
		rec = full
	} else {
		s.logger.Warn("reload attendance", zap.Int64("attendance_id", rec.ID), zap.Error(err))
	}

	s.logger.Info("check-in",
		zap.String("user_id", actor.UserID),
		zap.Int64("attendance_id", rec.ID),
		zap.String("status", rec.Status.String()),
		zap.Bool("suspicious", rec.SuspiciousFlag),
		zap.Float64("distance_m", ev.Classification.DisplayDistance()),
		zap.Float64("speed_kmh", ev.Anomaly.DisplaySpeed()),
	)

	return &CheckInResult{
		Record:     rec,
		Evaluation: ev,
		Message: fmt.Sprintf("Hello %s, check-in recorded at %s",
			displayName(actor.Name), now.In(s.loc).Format("15:04:05 MST")),
	}, nil
}

// priorFix is best effort: a failed lookup is logged and treated as no prior.
func (s *AttendanceService) priorFix(ctx context.Context, userID string) *attendance.Fix {
	last, err := s.store.LastFix(ctx, userID)
	if errors.Is(err, repository.ErrNotFound) {
		return nil
	}
	if err != nil {
		s.logger.Warn("prior fix lookup failed, skipping anomaly check", zap.String("user_id", userID), zap.Error(err))
		return nil
	}
	c, err := geo.NewCoordinate(last.Latitude, last.Longitude)
	if err != nil {
		s.logger.Warn("prior fix has invalid coordinates", zap.Int64("attendance_id", last.AttendanceID), zap.Error(err))
		return nil
	}
	return &attendance.Fix{Coord: c, At: last.CheckIn}
}

func newAttendanceRecord(userID string, in CheckInInput, now time.Time, ev attendance.Evaluation) *models.Attendance {
	lat, lng := in.Point.Lat(), in.Point.Lng()
	rec := &models.Attendance{
		UserID:           userID,
		CheckIn:          now,
		Latitude:         &lat,
		Longitude:        &lng,
		AccuracyM:        in.Accuracy,
		Status:           ev.Resolution.Status,
		StatusReason:     ev.Resolution.StatusReason,
		SuspiciousFlag:   ev.Resolution.SuspiciousFlag,
		SuspiciousReason: ev.Resolution.SuspiciousReason,
		ServerTimestamp:  now,
		ClientTimestamp:  in.ClientTimestamp,
	}

	cls := ev.Classification
	if cls.HasGeofence {
		id := cls.GeofenceID
		rec.GeofenceID = &id
	}
	// a fence with a broken center has no measured distance
	if cls.HasGeofence && cls.RadiusMeters > 0 {
		d := cls.DisplayDistance()
		inside := cls.InsideGeofence
		rec.DistanceM = &d
		rec.InsideGeofence = &inside
	}
	return rec
}

func displayName(name string) string {
	if strings.TrimSpace(name) == "" {
		return "User"
	}
	return name
}

type CheckOutResult struct {
	Record  *models.Attendance
	Message string
}

// CheckOut closes the caller's open record.
func (s *AttendanceService) CheckOut(ctx context.Context, actor Actor) (*CheckOutResult, error) {
	now := s.now()
	rec, err := s.store.CheckOut(ctx, actor.UserID, now)
	if errors.Is(err, repository.ErrNotFound) {
		return nil, ErrNoOpenAttendance
	}
	if err != nil {
		return nil, fmt.Errorf("check out: %w", err)
	}

	s.logger.Info("check-out", zap.String("user_id", actor.UserID), zap.Int64("attendance_id", rec.ID))
	return &CheckOutResult{
		Record: rec,
		Message: fmt.Sprintf("Goodbye %s, check-out recorded at %s",
			displayName(actor.Name), now.In(s.loc).Format("15:04:05 MST")),
	}, nil
}

func clampPage(page, limit int) (int, int) {
	if page < 1 {
		page = 1
	}
	if limit < 1 {
		limit = DefaultPageSize
	}
	if limit > MaxPageSize {
		limit = MaxPageSize
	}
	return page, limit
}

// History lists the caller's own records, newest first.
func (s *AttendanceService) History(ctx context.Context, actor Actor, page, limit int) ([]models.Attendance, models.Pagination, error) {
	page, limit = clampPage(page, limit)
	items, total, err := s.store.List(ctx, models.AttendanceFilter{UserID: actor.UserID, Page: page, Limit: limit})
	if err != nil {
		return nil, models.Pagination{}, err
	}
	return items, models.NewPagination(page, limit, total), nil
}

// ListQuery carries the raw admin filters.
type ListQuery struct {
	Page       int
	Limit      int
	Status     string
	StartDate  string
	EndDate    string
	Suspicious bool
}

func (s *AttendanceService) ListAll(ctx context.Context, q ListQuery) ([]models.Attendance, models.Pagination, error) {
	page, limit := clampPage(q.Page, q.Limit)
	f := models.AttendanceFilter{Page: page, Limit: limit, Suspicious: q.Suspicious}

	if strings.TrimSpace(q.Status) != "" {
		st, err := models.ParseStatus(q.Status)
		if err != nil {
			return nil, models.Pagination{}, invalid("status", "must be one of VALID, INVALID, PENDING, APPROVED, REJECTED")
		}
		f.Status = &st
	}

	from, to, err := dayRange("startDate", q.StartDate, "endDate", q.EndDate, s.loc)
	if err != nil {
		return nil, models.Pagination{}, err
	}
	f.From, f.To = from, to

	items, total, err := s.store.List(ctx, f)
	if err != nil {
		return nil, models.Pagination{}, err
	}
	return items, models.NewPagination(page, limit, total), nil
}

// load returns the record if actor owns it or is an admin.
func (s *AttendanceService) load(ctx context.Context, actor Actor, id int64) (*models.Attendance, error) {
	rec, err := s.store.Get(ctx, id)
	if err != nil {
		return nil, attendanceStoreErr(err)
	}
	if rec.UserID != actor.UserID && !actor.IsAdmin() {
		return nil, fmt.Errorf("%w: not your attendance record", ErrForbidden)
	}
	return rec, nil
}

func (s *AttendanceService) Get(ctx context.Context, actor Actor, id int64) (*models.Attendance, error) {
	return s.load(ctx, actor, id)
}

func (s *AttendanceService) Delete(ctx context.Context, actor Actor, id int64) error {
	rec, err := s.load(ctx, actor, id)
	if err != nil {
		return err
	}
	if err := s.store.Delete(ctx, id); err != nil {
		return attendanceStoreErr(err)
	}
	if rec.PhotoRef != nil {
		if err := s.photos.Remove(*rec.PhotoRef); err != nil {
			s.logger.Warn("remove photo", zap.String("ref", *rec.PhotoRef), zap.Error(err))
		}
	}
	s.logger.Info("attendance deleted", zap.Int64("attendance_id", id), zap.String("by", actor.UserID))
	return nil
}

type UpdateTimesInput struct {
	CheckIn  *string `json:"checkIn"`
	CheckOut *string `json:"checkOut"`
}

// UpdateTimes corrects check-in/check-out. Date-only values are midnight in
// the report timezone.
func (s *AttendanceService) UpdateTimes(ctx context.Context, actor Actor, id int64, in UpdateTimesInput) (*models.Attendance, error) {
	if (in.CheckIn == nil || *in.CheckIn == "") && (in.CheckOut == nil || *in.CheckOut == "") {
		return nil, invalid("", "provide checkIn or checkOut")
	}

	rec, err := s.load(ctx, actor, id)
	if err != nil {
		return nil, err
	}

	checkIn := rec.CheckIn
	checkOut := rec.CheckOut
	if in.CheckIn != nil && *in.CheckIn != "" {
		if checkIn, err = parseTimestamp("checkIn", *in.CheckIn, s.loc); err != nil {
			return nil, err
		}
	}
	if in.CheckOut != nil && *in.CheckOut != "" {
		t, err := parseTimestamp("checkOut", *in.CheckOut, s.loc)
		if err != nil {
			return nil, err
		}
		checkOut = &t
	}
	if checkOut != nil && checkOut.Before(checkIn) {
		return nil, invalid("checkOut", "must not be before checkIn")
	}

	updated, err := s.store.UpdateTimes(ctx, id, checkIn, checkOut)
	if err != nil {
		return nil, attendanceStoreErr(err)
	}
	return updated, nil
}

type VerifyInput struct {
	Status models.Status `json:"status"`
	Note   *string       `json:"note"`
}

// Verify records an admin decision on a PENDING or INVALID record.
func (s *AttendanceService) Verify(ctx context.Context, admin Actor, id int64, in VerifyInput) (*models.Attendance, error) {
	if !in.Status.IsTerminal() {
		return nil, invalid("status", "must be APPROVED or REJECTED")
	}

	rec, err := s.store.Get(ctx, id)
	if err != nil {
		return nil, attendanceStoreErr(err)
	}
	if !rec.Status.CanVerifyTo(in.Status) {
		return nil, fmt.Errorf("%w: %s record cannot become %s", ErrInvalidTransition, rec.Status, in.Status)
	}

	var note *string
	if in.Note != nil && strings.TrimSpace(*in.Note) != "" {
		n := strings.TrimSpace(*in.Note)
		note = &n
	}

	updated, err := s.store.Verify(ctx, repository.Verification{
		ID:   id,
		From: rec.Status,
		To:   in.Status,
		By:   admin.UserID,
		Note: note,
		At:   s.now(),
	})
	if errors.Is(err, repository.ErrStateChanged) {
		return nil, fmt.Errorf("%w: record changed during verification", ErrInvalidTransition)
	}
	if err != nil {
		return nil, attendanceStoreErr(err)
	}

	s.logger.Info("attendance verified",
		zap.Int64("attendance_id", id),
		zap.String("from", rec.Status.String()),
		zap.String("to", in.Status.String()),
		zap.String("by", admin.UserID),
	)
	return updated, nil
}
