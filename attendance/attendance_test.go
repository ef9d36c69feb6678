package attendance

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Rafhael-Viana/geoproof/geo"
	"github.com/Rafhael-Viana/geoproof/models"
)

var campus = geo.MustCoordinate(-7.7713, 110.3775)

func fence(radius int) *models.Geofence {
	return &models.Geofence{
		ID:        7,
		Name:      "Campus",
		CenterLat: campus.Lat(),
		CenterLng: campus.Lng(),
		RadiusM:   radius,
		IsActive:  true,
	}
}

func ptr(v float64) *float64 { return &v }

func TestClassify_NoGeofenceIsPending(t *testing.T) {
	for _, p := range []geo.Coordinate{campus, geo.MustCoordinate(0, 0), geo.MustCoordinate(89, -179)} {
		c := Classify(p, nil, nil, DefaultAccuracyThresholdMeters)
		assert.Equal(t, models.StatusPending, c.Status)
		assert.False(t, c.HasGeofence)
		assert.Contains(t, c.Reason, "No active geofence")
	}
}

func TestClassify_AtCenterIsValid(t *testing.T) {
	c := Classify(campus, nil, fence(100), DefaultAccuracyThresholdMeters)

	assert.Equal(t, models.StatusValid, c.Status)
	assert.True(t, c.InsideGeofence)
	assert.Equal(t, 0.0, c.DistanceMeters)
	assert.Equal(t, 100.0, c.MarginMeters)
	assert.Equal(t, int64(7), c.GeofenceID)
}

func TestClassify_JustOutsideIsInvalid(t *testing.T) {
	p := geo.Destination(campus, 30, 100.05)
	c := Classify(p, ptr(5), fence(100), DefaultAccuracyThresholdMeters)

	assert.Equal(t, models.StatusInvalid, c.Status)
	assert.False(t, c.InsideGeofence)
	assert.Less(t, c.MarginMeters, 0.0)
}

func TestClassify_ComparesUnroundedDistance(t *testing.T) {
	// 100.004 m rounds to 100.00 for display but is still outside
	p := geo.Destination(campus, 0, 100.004)
	c := Classify(p, nil, fence(100), DefaultAccuracyThresholdMeters)

	assert.Equal(t, models.StatusInvalid, c.Status)
	assert.Equal(t, 100.0, c.DisplayDistance())
}

func TestClassify_LowAccuracyIsPending(t *testing.T) {
	p := geo.Destination(campus, 90, 40)
	c := Classify(p, ptr(150), fence(100), 100)

	assert.Equal(t, models.StatusPending, c.Status)
	assert.True(t, c.InsideGeofence)
	assert.Contains(t, c.Reason, "Low GPS accuracy")
}

func TestClassify_AccuracyAtThresholdIsAccepted(t *testing.T) {
	p := geo.Destination(campus, 90, 40)
	c := Classify(p, ptr(100), fence(100), 100)

	assert.Equal(t, models.StatusValid, c.Status)
}

func TestClassify_OutsideWinsOverLowAccuracy(t *testing.T) {
	p := geo.Destination(campus, 90, 300)
	c := Classify(p, ptr(500), fence(100), 100)

	assert.Equal(t, models.StatusInvalid, c.Status)
}

func TestClassify_CorruptCenterIsPending(t *testing.T) {
	f := fence(100)
	f.CenterLat = 123
	c := Classify(campus, nil, f, 100)

	assert.Equal(t, models.StatusPending, c.Status)
	assert.True(t, c.HasGeofence)
}

func TestDetectAnomaly_NoPrior(t *testing.T) {
	a := DetectAnomaly(nil, Fix{Coord: campus, At: time.Now()}, DefaultMaxSpeedKmh)

	assert.False(t, a.IsAnomalous)
	assert.False(t, a.HasPrior)
}

func TestDetectAnomaly_ThousandKmInOneHour(t *testing.T) {
	now := time.Date(2026, 1, 13, 8, 0, 0, 0, time.UTC)
	prior := &Fix{Coord: campus, At: now.Add(-time.Hour)}
	current := Fix{Coord: geo.Destination(campus, 270, 1_000_000), At: now}

	a := DetectAnomaly(prior, current, DefaultMaxSpeedKmh)

	assert.True(t, a.IsAnomalous)
	assert.InDelta(t, 1000, a.SpeedKmh, 0.01)
	assert.Contains(t, a.Reason, "1000 km/h")
}

func TestDetectAnomaly_SameTimestamp(t *testing.T) {
	now := time.Now()
	prior := &Fix{Coord: campus, At: now}
	current := Fix{Coord: geo.Destination(campus, 0, 5000), At: now}

	a := DetectAnomaly(prior, current, DefaultMaxSpeedKmh)

	assert.False(t, a.IsAnomalous)
	assert.Equal(t, "same timestamp", a.Reason)
	assert.Equal(t, 0.0, a.SpeedKmh)
}

func TestDetectAnomaly_PlausibleWalk(t *testing.T) {
	now := time.Now()
	prior := &Fix{Coord: campus, At: now.Add(-30 * time.Minute)}
	current := Fix{Coord: geo.Destination(campus, 0, 2500), At: now}

	a := DetectAnomaly(prior, current, DefaultMaxSpeedKmh)

	assert.False(t, a.IsAnomalous)
	assert.InDelta(t, 5, a.SpeedKmh, 0.01)
	assert.Empty(t, a.Reason)
}

func TestDetectAnomaly_PriorAfterCurrentUsesAbsoluteElapsed(t *testing.T) {
	now := time.Now()
	prior := &Fix{Coord: campus, At: now.Add(time.Hour)}
	current := Fix{Coord: geo.Destination(campus, 0, 300_000), At: now}

	a := DetectAnomaly(prior, current, DefaultMaxSpeedKmh)

	assert.True(t, a.IsAnomalous)
	assert.InDelta(t, 300, a.SpeedKmh, 0.01)
}

func TestDetectAnomaly_ThresholdIsStrict(t *testing.T) {
	now := time.Now()
	prior := &Fix{Coord: campus, At: now.Add(-time.Hour)}
	current := Fix{Coord: geo.Destination(campus, 0, 199_000), At: now}

	a := DetectAnomaly(prior, current, 200)
	assert.False(t, a.IsAnomalous)

	a = DetectAnomaly(prior, current, 150)
	assert.True(t, a.IsAnomalous)
}

func TestResolve_AnomalyOverridesBaseline(t *testing.T) {
	anomalous := Anomaly{HasPrior: true, SpeedKmh: 300, IsAnomalous: true, Reason: "Implausible travel speed: 300 km/h"}

	for _, base := range []models.Status{models.StatusValid, models.StatusInvalid, models.StatusPending} {
		r := Resolve(Classification{Status: base, Reason: "baseline"}, anomalous)

		assert.Equal(t, models.StatusPending, r.Status)
		assert.True(t, r.SuspiciousFlag)
		require.NotNil(t, r.SuspiciousReason)
		assert.Equal(t, anomalous.Reason, *r.SuspiciousReason)
		assert.Equal(t, "baseline; Implausible travel speed: 300 km/h", r.StatusReason)
	}
}

func TestResolve_KeepsBaselineWithoutAnomaly(t *testing.T) {
	r := Resolve(Classification{Status: models.StatusInvalid, Reason: "outside"}, Anomaly{Reason: "same timestamp"})

	assert.Equal(t, models.StatusInvalid, r.Status)
	assert.Equal(t, "outside", r.StatusReason)
	assert.False(t, r.SuspiciousFlag)
	assert.Nil(t, r.SuspiciousReason)
}

func TestEvaluate_InsideNoPriorIsValid(t *testing.T) {
	ev := Evaluate(Candidate{
		Point:    geo.Destination(campus, 120, 50),
		Accuracy: ptr(20),
		At:       time.Now(),
		Geofence: fence(100),
	}, DefaultThresholds())

	assert.Equal(t, models.StatusValid, ev.Resolution.Status)
	assert.False(t, ev.Resolution.SuspiciousFlag)
	assert.InDelta(t, 50, ev.Classification.DistanceMeters, 0.01)
}

func TestEvaluate_OutsideReportsDistanceAndRadius(t *testing.T) {
	ev := Evaluate(Candidate{
		Point:    geo.Destination(campus, 200, 500),
		At:       time.Now(),
		Geofence: fence(100),
	}, DefaultThresholds())

	assert.Equal(t, models.StatusInvalid, ev.Resolution.Status)
	assert.Contains(t, ev.Resolution.StatusReason, "500")
	assert.Contains(t, ev.Resolution.StatusReason, "100")
}

func TestEvaluate_InsideButTooFastIsPending(t *testing.T) {
	now := time.Now()
	// 300 km away one hour ago
	prior := &Fix{Coord: geo.Destination(campus, 45, 300_000), At: now.Add(-time.Hour)}

	ev := Evaluate(Candidate{
		Point:    geo.Destination(campus, 0, 10),
		Accuracy: ptr(8),
		At:       now,
		Geofence: fence(100),
		Prior:    prior,
	}, DefaultThresholds())

	assert.Equal(t, models.StatusValid, ev.Classification.Status)
	assert.Equal(t, models.StatusPending, ev.Resolution.Status)
	assert.True(t, ev.Resolution.SuspiciousFlag)
	assert.InDelta(t, 300, ev.Anomaly.SpeedKmh, 0.1)
}
