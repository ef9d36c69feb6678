package attendance

import (
	"time"

	"github.com/Rafhael-Viana/geoproof/geo"
	"github.com/Rafhael-Viana/geoproof/models"
)

type Resolution struct {
	Status           models.Status
	StatusReason     string
	SuspiciousFlag   bool
	SuspiciousReason *string
}

// Resolve merges the classifier baseline with the anomaly verdict. An
// anomaly always downgrades to PENDING so a human looks at it.
func Resolve(c Classification, a Anomaly) Resolution {
	r := Resolution{Status: c.Status, StatusReason: c.Reason}
	if !a.IsAnomalous {
		return r
	}

	reason := a.Reason
	r.Status = models.StatusPending
	r.StatusReason = c.Reason + "; " + reason
	r.SuspiciousFlag = true
	r.SuspiciousReason = &reason
	return r
}

type Thresholds struct {
	AccuracyMeters float64
	MaxSpeedKmh    float64
}

func DefaultThresholds() Thresholds {
	return Thresholds{
		AccuracyMeters: DefaultAccuracyThresholdMeters,
		MaxSpeedKmh:    DefaultMaxSpeedKmh,
	}
}

// Candidate is a check-in attempt with everything the engine needs already fetched.
type Candidate struct {
	Point    geo.Coordinate
	Accuracy *float64
	At       time.Time
	Geofence *models.Geofence
	Prior    *Fix
}

type Evaluation struct {
	Classification Classification
	Anomaly        Anomaly
	Resolution     Resolution
}

// Evaluate runs classify, detect and resolve in order.
func Evaluate(c Candidate, th Thresholds) Evaluation {
	cls := Classify(c.Point, c.Accuracy, c.Geofence, th.AccuracyMeters)
	an := DetectAnomaly(c.Prior, Fix{Coord: c.Point, At: c.At}, th.MaxSpeedKmh)
	return Evaluation{
		Classification: cls,
		Anomaly:        an,
		Resolution:     Resolve(cls, an),
	}
}
