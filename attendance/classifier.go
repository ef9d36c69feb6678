// Package attendance decides the validation status of a check-in from its
// location, the active geofence and the user's previous location.
// Everything here is pure; callers fetch the geofence and prior fix.
package attendance

import (
	"fmt"

	"github.com/Rafhael-Viana/geoproof/geo"
	"github.com/Rafhael-Viana/geoproof/models"
)

const (
	DefaultAccuracyThresholdMeters = 100.0
	DefaultMaxSpeedKmh             = 200.0
)

const (
	reasonNoGeofence  = "No active geofence, requires manual verification"
	reasonBadGeofence = "Active geofence has an invalid center, requires manual verification"
)

type Classification struct {
	HasGeofence    bool
	GeofenceID     int64
	RadiusMeters   int
	DistanceMeters float64
	MarginMeters   float64
	InsideGeofence bool
	Status         models.Status
	Reason         string
}

// DisplayDistance is the distance rounded for storage and responses.
func (c Classification) DisplayDistance() float64 { return geo.Round2(c.DistanceMeters) }

func (c Classification) DisplayMargin() float64 { return geo.Round2(c.MarginMeters) }

// Classify checks point against fence. accuracy is the device-reported
// uncertainty radius and may be nil. fence nil means no geofence is active.
func Classify(point geo.Coordinate, accuracy *float64, fence *models.Geofence, accuracyThreshold float64) Classification {
	if fence == nil {
		return Classification{Status: models.StatusPending, Reason: reasonNoGeofence}
	}

	center, err := fence.Center()
	if err != nil {
		return Classification{
			HasGeofence: true,
			GeofenceID:  fence.ID,
			Status:      models.StatusPending,
			Reason:      reasonBadGeofence,
		}
	}

	radius := float64(fence.RadiusM)
	distance := geo.DistanceMeters(point, center)

	c := Classification{
		HasGeofence:    true,
		GeofenceID:     fence.ID,
		RadiusMeters:   fence.RadiusM,
		DistanceMeters: distance,
		MarginMeters:   radius - distance,
		InsideGeofence: distance <= radius,
	}

	switch {
	case !c.InsideGeofence:
		c.Status = models.StatusInvalid
		c.Reason = fmt.Sprintf("Outside geofence: %.2f m from center exceeds radius %d m", geo.Round2(distance), fence.RadiusM)
	case accuracy != nil && *accuracy > accuracyThreshold:
		c.Status = models.StatusPending
		c.Reason = fmt.Sprintf("Low GPS accuracy (%.2f m > %.0f m), requires verification", geo.Round2(*accuracy), accuracyThreshold)
	default:
		c.Status = models.StatusValid
		c.Reason = fmt.Sprintf("Inside geofence: %.2f m from center within radius %d m", geo.Round2(distance), fence.RadiusM)
	}
	return c
}
