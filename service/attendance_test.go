package service

import (
	"context"
	"errors"
	"math"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"go.uber.org/zap/zaptest/observer"

	"github.com/Rafhael-Viana/geoproof/attendance"
	"github.com/Rafhael-Viana/geoproof/cache"
	"github.com/Rafhael-Viana/geoproof/geo"
	"github.com/Rafhael-Viana/geoproof/internal/memstore"
	"github.com/Rafhael-Viana/geoproof/models"
)

var wib = time.FixedZone("WIB", 7*60*60)

type attendanceFixture struct {
	svc    *AttendanceService
	store  *memstore.Attendance
	active *memstore.ActiveGeofence
	photos *memstore.Photos
	kv     *cache.MemoryKVStore
	logs   *observer.ObservedLogs
	clock  time.Time
}

func newAttendanceFixture(t *testing.T) *attendanceFixture {
	t.Helper()
	core, logs := observer.New(zap.DebugLevel)
	fx := &attendanceFixture{
		store:  memstore.NewAttendance(),
		active: &memstore.ActiveGeofence{},
		photos: memstore.NewPhotos(),
		kv:     cache.NewMemoryKVStore(),
		logs:   logs,
		clock:  time.Date(2026, 3, 2, 1, 0, 0, 0, time.UTC),
	}
	fx.svc = NewAttendanceService(
		fx.store,
		fx.active,
		fx.photos,
		cache.NewLocker(fx.kv, "lock:checkin:", 10*time.Second),
		attendance.DefaultThresholds(),
		wib,
		zap.New(core),
	)
	fx.svc.now = func() time.Time { return fx.clock }
	return fx
}

var (
	campus  = geo.MustCoordinate(-7.7956, 110.3695)
	student = Actor{UserID: "u-1", Name: "Budi", Role: models.RoleStudent}
	other   = Actor{UserID: "u-2", Name: "Siti", Role: models.RoleStudent}
	admin   = Actor{UserID: "a-1", Name: "Admin", Role: models.RoleAdmin}
)

func fence(radius int) *models.Geofence {
	return &models.Geofence{ID: 1, Name: "Campus", CenterLat: campus.Lat(), CenterLng: campus.Lng(), RadiusM: radius, IsActive: true}
}

func fptr(v float64) *float64 { return &v }

func TestCheckIn_InsideGeofenceIsValid(t *testing.T) {
	fx := newAttendanceFixture(t)
	fx.active.Fence = fence(100)

	res, err := fx.svc.CheckIn(context.Background(), student, CheckInInput{
		Point:    geo.Destination(campus, 90, 50),
		Accuracy: fptr(10),
	})
	require.NoError(t, err)

	rec := res.Record
	assert.Equal(t, models.StatusValid, rec.Status)
	assert.False(t, rec.SuspiciousFlag)
	require.NotNil(t, rec.GeofenceID)
	assert.Equal(t, int64(1), *rec.GeofenceID)
	require.NotNil(t, rec.DistanceM)
	assert.InDelta(t, 50, *rec.DistanceM, 0.01)
	require.NotNil(t, rec.InsideGeofence)
	assert.True(t, *rec.InsideGeofence)
	assert.True(t, rec.ServerTimestamp.Equal(fx.clock))
	assert.Equal(t, "Hello Budi, check-in recorded at 08:00:00 WIB", res.Message)
}

func TestCheckIn_OutsideGeofenceIsInvalid(t *testing.T) {
	fx := newAttendanceFixture(t)
	fx.active.Fence = fence(100)

	res, err := fx.svc.CheckIn(context.Background(), student, CheckInInput{Point: geo.Destination(campus, 0, 150)})
	require.NoError(t, err)
	assert.Equal(t, models.StatusInvalid, res.Record.Status)
	assert.False(t, *res.Record.InsideGeofence)
	assert.Contains(t, res.Record.StatusReason, "150.00 m")
}

func TestCheckIn_NoGeofenceIsPending(t *testing.T) {
	fx := newAttendanceFixture(t)

	res, err := fx.svc.CheckIn(context.Background(), student, CheckInInput{Point: campus})
	require.NoError(t, err)
	assert.Equal(t, models.StatusPending, res.Record.Status)
	assert.Nil(t, res.Record.GeofenceID)
	assert.Nil(t, res.Record.DistanceM)
	assert.Nil(t, res.Record.InsideGeofence)
}

func TestCheckIn_ImplausibleSpeedFlagsSuspicious(t *testing.T) {
	fx := newAttendanceFixture(t)
	fx.active.Fence = fence(100)
	ctx := context.Background()

	// prior fix 20 km away one minute earlier
	far := geo.Destination(campus, 45, 20000)
	lat, lng := far.Lat(), far.Lng()
	prior := fx.clock.Add(-time.Minute)
	out := prior.Add(30 * time.Second)
	fx.store.Records[99] = &models.Attendance{ID: 99, UserID: student.UserID, CheckIn: prior, CheckOut: &out, Latitude: &lat, Longitude: &lng, Status: models.StatusValid}

	res, err := fx.svc.CheckIn(ctx, student, CheckInInput{Point: campus, Accuracy: fptr(5)})
	require.NoError(t, err)

	rec := res.Record
	assert.Equal(t, models.StatusPending, rec.Status)
	assert.True(t, rec.SuspiciousFlag)
	require.NotNil(t, rec.SuspiciousReason)
	assert.True(t, strings.HasPrefix(rec.StatusReason, "Inside geofence"))
	assert.Contains(t, rec.StatusReason, "; "+*rec.SuspiciousReason)
	assert.True(t, res.Evaluation.Anomaly.IsAnomalous)
	assert.InDelta(t, 1200, res.Evaluation.Anomaly.SpeedKmh, 1)
}

func TestCheckIn_PriorFixSkipsRecordsWithoutCoordinates(t *testing.T) {
	fx := newAttendanceFixture(t)
	fx.active.Fence = fence(100)

	far := geo.Destination(campus, 45, 20000)
	lat, lng := far.Lat(), far.Lng()
	older := fx.clock.Add(-2 * time.Minute)
	newer := fx.clock.Add(-time.Minute)
	olderOut, newerOut := older.Add(10*time.Second), newer.Add(10*time.Second)
	fx.store.Records[10] = &models.Attendance{ID: 10, UserID: student.UserID, CheckIn: older, CheckOut: &olderOut, Latitude: &lat, Longitude: &lng, Status: models.StatusValid}
	fx.store.Records[11] = &models.Attendance{ID: 11, UserID: student.UserID, CheckIn: newer, CheckOut: &newerOut, Status: models.StatusPending}

	res, err := fx.svc.CheckIn(context.Background(), student, CheckInInput{Point: campus})
	require.NoError(t, err)

	an := res.Evaluation.Anomaly
	assert.Equal(t, 2*time.Minute, an.Elapsed)
	assert.InDelta(t, 20000, an.DistanceMeters, 1)
	assert.InDelta(t, 600, an.SpeedKmh, 1)
	assert.True(t, res.Record.SuspiciousFlag)
}

func TestCheckIn_PriorLookupFailureIsBestEffort(t *testing.T) {
	fx := newAttendanceFixture(t)
	fx.active.Fence = fence(100)
	fx.store.LastFixErr = errors.New("connection reset")

	res, err := fx.svc.CheckIn(context.Background(), student, CheckInInput{Point: campus})
	require.NoError(t, err)
	assert.Equal(t, models.StatusValid, res.Record.Status)
	assert.False(t, res.Record.SuspiciousFlag)
	assert.Equal(t, 1, fx.logs.FilterMessage("prior fix lookup failed, skipping anomaly check").Len())
}

func TestCheckIn_AlreadyOpen(t *testing.T) {
	fx := newAttendanceFixture(t)
	ctx := context.Background()

	_, err := fx.svc.CheckIn(ctx, student, CheckInInput{Point: campus})
	require.NoError(t, err)

	_, err = fx.svc.CheckIn(ctx, student, CheckInInput{Point: campus})
	assert.ErrorIs(t, err, ErrAlreadyCheckedIn)

	_, err = fx.svc.CheckIn(ctx, other, CheckInInput{Point: campus})
	assert.NoError(t, err)
}

func TestCheckIn_LockHeld(t *testing.T) {
	fx := newAttendanceFixture(t)
	ctx := context.Background()

	ok, err := fx.kv.SetNX(ctx, "lock:checkin:"+student.UserID, "someone", time.Minute)
	require.NoError(t, err)
	require.True(t, ok)

	_, err = fx.svc.CheckIn(ctx, student, CheckInInput{Point: campus})
	assert.ErrorIs(t, err, ErrCheckInInProgress)
}

func TestCheckIn_ReleasesLock(t *testing.T) {
	fx := newAttendanceFixture(t)
	ctx := context.Background()

	_, err := fx.svc.CheckIn(ctx, student, CheckInInput{Point: campus})
	require.NoError(t, err)

	_, err = fx.kv.Get(ctx, "lock:checkin:"+student.UserID)
	assert.ErrorIs(t, err, cache.ErrCacheMiss)
}

func TestCheckIn_RejectsBadAccuracy(t *testing.T) {
	for _, acc := range []float64{-1, math.NaN(), math.Inf(1), MaxAccuracyMeters + 0.01, 1e12} {
		fx := newAttendanceFixture(t)

		_, err := fx.svc.CheckIn(context.Background(), student, CheckInInput{Point: campus, Accuracy: fptr(acc)})
		var ve *ValidationError
		require.ErrorAs(t, err, &ve, "accuracy %v", acc)
		assert.Equal(t, "accuracy", ve.Field)
		assert.Empty(t, fx.store.Records)
	}

	fx := newAttendanceFixture(t)
	res, err := fx.svc.CheckIn(context.Background(), student, CheckInInput{Point: campus, Accuracy: fptr(MaxAccuracyMeters)})
	require.NoError(t, err)
	assert.Equal(t, MaxAccuracyMeters, *res.Record.AccuracyM)
}

func TestCheckIn_PhotoRemovedWhenInsertFails(t *testing.T) {
	fx := newAttendanceFixture(t)
	fx.store.CreateErr = errors.New("insert failed")

	_, err := fx.svc.CheckIn(context.Background(), student, CheckInInput{
		Point: campus,
		Photo: &Photo{Filename: "selfie.jpg", Body: strings.NewReader("jpeg")},
	})
	require.Error(t, err)
	assert.Equal(t, []string{"/uploads/u-1-selfie.jpg"}, fx.photos.Removed)
}

func TestCheckIn_StoresPhotoRefAndClientTimestamp(t *testing.T) {
	fx := newAttendanceFixture(t)
	client := fx.clock.Add(-3 * time.Second)

	res, err := fx.svc.CheckIn(context.Background(), student, CheckInInput{
		Point:           campus,
		ClientTimestamp: &client,
		Photo:           &Photo{Filename: "selfie.jpg", Body: strings.NewReader("jpeg")},
	})
	require.NoError(t, err)
	require.NotNil(t, res.Record.PhotoRef)
	assert.Equal(t, "/uploads/u-1-selfie.jpg", *res.Record.PhotoRef)
	require.NotNil(t, res.Record.ClientTimestamp)
	assert.True(t, res.Record.ClientTimestamp.Equal(client))
}

func TestCheckOut(t *testing.T) {
	fx := newAttendanceFixture(t)
	ctx := context.Background()

	_, err := fx.svc.CheckOut(ctx, student)
	assert.ErrorIs(t, err, ErrNoOpenAttendance)

	_, err = fx.svc.CheckIn(ctx, student, CheckInInput{Point: campus})
	require.NoError(t, err)

	fx.clock = fx.clock.Add(8 * time.Hour)
	res, err := fx.svc.CheckOut(ctx, student)
	require.NoError(t, err)
	require.NotNil(t, res.Record.CheckOut)
	assert.True(t, res.Record.CheckOut.Equal(fx.clock))
	assert.Equal(t, "Goodbye Budi, check-out recorded at 16:00:00 WIB", res.Message)

	_, err = fx.svc.CheckOut(ctx, student)
	assert.ErrorIs(t, err, ErrNoOpenAttendance)
}

func TestVerify_Transitions(t *testing.T) {
	ctx := context.Background()
	cases := []struct {
		from models.Status
		to   models.Status
		ok   bool
	}{
		{models.StatusPending, models.StatusApproved, true},
		{models.StatusPending, models.StatusRejected, true},
		{models.StatusInvalid, models.StatusApproved, true},
		{models.StatusInvalid, models.StatusRejected, true},
		{models.StatusValid, models.StatusApproved, false},
		{models.StatusApproved, models.StatusRejected, false},
		{models.StatusRejected, models.StatusApproved, false},
	}
	for _, tc := range cases {
		t.Run(tc.from.String()+"->"+tc.to.String(), func(t *testing.T) {
			fx := newAttendanceFixture(t)
			fx.store.Records[1] = &models.Attendance{ID: 1, UserID: student.UserID, CheckIn: fx.clock, Status: tc.from}

			rec, err := fx.svc.Verify(ctx, admin, 1, VerifyInput{Status: tc.to, Note: ptrString("  checked  ")})
			if !tc.ok {
				assert.ErrorIs(t, err, ErrInvalidTransition)
				assert.Equal(t, tc.from, fx.store.Records[1].Status)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tc.to, rec.Status)
			assert.Equal(t, admin.UserID, *rec.VerifiedBy)
			assert.Equal(t, "checked", *rec.VerificationNote)
			assert.True(t, rec.VerifiedAt.Equal(fx.clock))
		})
	}
}

func TestVerify_RejectsNonTerminalTarget(t *testing.T) {
	fx := newAttendanceFixture(t)
	fx.store.Records[1] = &models.Attendance{ID: 1, Status: models.StatusPending}

	_, err := fx.svc.Verify(context.Background(), admin, 1, VerifyInput{Status: models.StatusValid})
	var ve *ValidationError
	assert.ErrorAs(t, err, &ve)

	_, err = fx.svc.Verify(context.Background(), admin, 42, VerifyInput{Status: models.StatusApproved})
	assert.ErrorIs(t, err, ErrNotFound)
}

func ptrString(s string) *string { return &s }

func TestGetAndDelete_OwnerOrAdmin(t *testing.T) {
	fx := newAttendanceFixture(t)
	ctx := context.Background()
	ref := "/uploads/x.jpg"
	fx.store.Records[1] = &models.Attendance{ID: 1, UserID: student.UserID, CheckIn: fx.clock, Status: models.StatusValid, PhotoRef: &ref}

	_, err := fx.svc.Get(ctx, other, 1)
	assert.ErrorIs(t, err, ErrForbidden)

	_, err = fx.svc.Get(ctx, student, 1)
	assert.NoError(t, err)
	_, err = fx.svc.Get(ctx, admin, 1)
	assert.NoError(t, err)

	assert.ErrorIs(t, fx.svc.Delete(ctx, other, 1), ErrForbidden)
	require.NoError(t, fx.svc.Delete(ctx, admin, 1))
	assert.Equal(t, []string{ref}, fx.photos.Removed)
	assert.ErrorIs(t, fx.svc.Delete(ctx, admin, 1), ErrNotFound)
}

func TestUpdateTimes(t *testing.T) {
	fx := newAttendanceFixture(t)
	ctx := context.Background()
	fx.store.Records[1] = &models.Attendance{ID: 1, UserID: student.UserID, CheckIn: fx.clock, Status: models.StatusValid}

	_, err := fx.svc.UpdateTimes(ctx, student, 1, UpdateTimesInput{})
	var ve *ValidationError
	assert.ErrorAs(t, err, &ve)

	rec, err := fx.svc.UpdateTimes(ctx, student, 1, UpdateTimesInput{
		CheckIn:  ptrString("2026-03-02"),
		CheckOut: ptrString("2026-03-02T17:00:00+07:00"),
	})
	require.NoError(t, err)
	assert.True(t, rec.CheckIn.Equal(time.Date(2026, 3, 2, 0, 0, 0, 0, wib)))
	assert.True(t, rec.CheckOut.Equal(time.Date(2026, 3, 2, 10, 0, 0, 0, time.UTC)))

	_, err = fx.svc.UpdateTimes(ctx, student, 1, UpdateTimesInput{CheckOut: ptrString("2026-03-01T10:00:00Z")})
	require.ErrorAs(t, err, &ve)
	assert.Equal(t, "checkOut", ve.Field)

	_, err = fx.svc.UpdateTimes(ctx, student, 1, UpdateTimesInput{CheckIn: ptrString("yesterday")})
	assert.ErrorAs(t, err, &ve)

	_, err = fx.svc.UpdateTimes(ctx, other, 1, UpdateTimesInput{CheckIn: ptrString("2026-03-02")})
	assert.ErrorIs(t, err, ErrForbidden)
}

func TestHistoryAndListAll(t *testing.T) {
	fx := newAttendanceFixture(t)
	ctx := context.Background()
	for i := 0; i < 15; i++ {
		id := int64(i + 1)
		fx.store.Records[id] = &models.Attendance{
			ID:             id,
			UserID:         student.UserID,
			CheckIn:        time.Date(2026, 3, 1+i, 1, 0, 0, 0, time.UTC),
			Status:         models.StatusPending,
			SuspiciousFlag: i%5 == 0,
		}
	}
	fx.store.Records[100] = &models.Attendance{ID: 100, UserID: other.UserID, CheckIn: fx.clock, Status: models.StatusValid}

	items, page, err := fx.svc.History(ctx, student, 2, 10)
	require.NoError(t, err)
	assert.Len(t, items, 5)
	assert.Equal(t, models.Pagination{Page: 2, Limit: 10, Total: 15, TotalPages: 2}, page)

	_, page, err = fx.svc.History(ctx, student, 0, 1000)
	require.NoError(t, err)
	assert.Equal(t, 1, page.Page)
	assert.Equal(t, MaxPageSize, page.Limit)

	items, _, err = fx.svc.ListAll(ctx, ListQuery{Suspicious: true})
	require.NoError(t, err)
	assert.Len(t, items, 3)

	items, _, err = fx.svc.ListAll(ctx, ListQuery{Status: "valid"})
	require.NoError(t, err)
	require.Len(t, items, 1)
	assert.Equal(t, int64(100), items[0].ID)

	_, _, err = fx.svc.ListAll(ctx, ListQuery{StartDate: "2026-03-03", EndDate: "2026-03-04"})
	require.NoError(t, err)
	f := fx.store.LastFilter
	require.NotNil(t, f.From)
	require.NotNil(t, f.To)
	assert.True(t, f.From.Equal(time.Date(2026, 3, 3, 0, 0, 0, 0, wib)))
	assert.True(t, f.To.Equal(time.Date(2026, 3, 5, 0, 0, 0, 0, wib)))

	var ve *ValidationError
	_, _, err = fx.svc.ListAll(ctx, ListQuery{Status: "DONE"})
	assert.ErrorAs(t, err, &ve)
	_, _, err = fx.svc.ListAll(ctx, ListQuery{StartDate: "2026-03-05", EndDate: "2026-03-01"})
	assert.ErrorAs(t, err, &ve)
}
