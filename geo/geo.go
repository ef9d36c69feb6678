// Package geo holds the spherical-earth math used to validate attendance locations.
package geo

import (
	"fmt"
	"math"
	"strconv"
	"strings"
)

// EarthRadiusMeters is the mean radius used by the haversine model.
const EarthRadiusMeters = 6371000.0

// Coordinate is a point in decimal degrees. Build it with NewCoordinate or
// ParseCoordinate so the ranges are always checked.
type Coordinate struct {
	lat float64
	lng float64
}

func (c Coordinate) Lat() float64 { return c.lat }
func (c Coordinate) Lng() float64 { return c.lng }

func (c Coordinate) String() string {
	return fmt.Sprintf("%.8f,%.8f", c.lat, c.lng)
}

// InvalidCoordinateError is returned when a latitude/longitude pair is
// missing, not a number or out of range.
type InvalidCoordinateError struct {
	Field  string
	Reason string
}

func (e *InvalidCoordinateError) Error() string {
	if e.Field == "" {
		return "invalid coordinate: " + e.Reason
	}
	return fmt.Sprintf("invalid coordinate: %s %s", e.Field, e.Reason)
}

func NewCoordinate(lat, lng float64) (Coordinate, error) {
	if math.IsNaN(lat) || math.IsInf(lat, 0) {
		return Coordinate{}, &InvalidCoordinateError{Field: "latitude", Reason: "must be a number"}
	}
	if math.IsNaN(lng) || math.IsInf(lng, 0) {
		return Coordinate{}, &InvalidCoordinateError{Field: "longitude", Reason: "must be a number"}
	}
	if lat < -90 || lat > 90 {
		return Coordinate{}, &InvalidCoordinateError{Field: "latitude", Reason: "must be between -90 and 90"}
	}
	if lng < -180 || lng > 180 {
		return Coordinate{}, &InvalidCoordinateError{Field: "longitude", Reason: "must be between -180 and 180"}
	}
	return Coordinate{lat: lat, lng: lng}, nil
}

// ParseCoordinate validates raw request values (form fields, query params).
func ParseCoordinate(lat, lng string) (Coordinate, error) {
	lat = strings.TrimSpace(lat)
	lng = strings.TrimSpace(lng)
	if lat == "" || lng == "" {
		return Coordinate{}, &InvalidCoordinateError{Reason: "latitude and longitude are required"}
	}

	la, err := strconv.ParseFloat(lat, 64)
	if err != nil {
		return Coordinate{}, &InvalidCoordinateError{Field: "latitude", Reason: "must be a number"}
	}
	lo, err := strconv.ParseFloat(lng, 64)
	if err != nil {
		return Coordinate{}, &InvalidCoordinateError{Field: "longitude", Reason: "must be a number"}
	}
	return NewCoordinate(la, lo)
}

// MustCoordinate is for literals in tests and seed data.
func MustCoordinate(lat, lng float64) Coordinate {
	c, err := NewCoordinate(lat, lng)
	if err != nil {
		panic(err)
	}
	return c
}

func toRad(deg float64) float64 { return deg * math.Pi / 180 }
func toDeg(rad float64) float64 { return rad * 180 / math.Pi }

// DistanceMeters returns the great-circle distance between a and b.
func DistanceMeters(a, b Coordinate) float64 {
	dLat := toRad(b.lat - a.lat)
	dLng := toRad(b.lng - a.lng)

	h := math.Sin(dLat/2)*math.Sin(dLat/2) +
		math.Cos(toRad(a.lat))*math.Cos(toRad(b.lat))*math.Sin(dLng/2)*math.Sin(dLng/2)

	return EarthRadiusMeters * 2 * math.Atan2(math.Sqrt(h), math.Sqrt(1-h))
}

// Destination walks meters along the initial bearing (degrees clockwise from
// north) on the same sphere DistanceMeters uses.
func Destination(from Coordinate, bearingDeg, meters float64) Coordinate {
	delta := meters / EarthRadiusMeters
	theta := toRad(bearingDeg)
	phi1 := toRad(from.lat)
	lambda1 := toRad(from.lng)

	phi2 := math.Asin(math.Sin(phi1)*math.Cos(delta) + math.Cos(phi1)*math.Sin(delta)*math.Cos(theta))
	lambda2 := lambda1 + math.Atan2(
		math.Sin(theta)*math.Sin(delta)*math.Cos(phi1),
		math.Cos(delta)-math.Sin(phi1)*math.Sin(phi2),
	)

	lng := math.Mod(toDeg(lambda2)+540, 360) - 180
	return Coordinate{lat: toDeg(phi2), lng: lng}
}

// Round2 rounds for display; never compare on rounded values.
func Round2(v float64) float64 {
	return math.Round(v*100) / 100
}
