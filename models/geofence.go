package models

import (
	"time"

	"github.com/Rafhael-Viana/geoproof/geo"
)

const (
	MinRadiusMeters     = 10
	MaxRadiusMeters     = 10000
	DefaultRadiusMeters = 100
)

type Geofence struct {
	ID          int64      `json:"id"`
	Name        string     `json:"name"`
	Description *string    `json:"description"`
	CenterLat   float64    `json:"centerLat"`
	CenterLng   float64    `json:"centerLng"`
	RadiusM     int        `json:"radiusM"`
	IsActive    bool       `json:"isActive"`
	CreatedBy   *string    `json:"createdBy"`
	Creator     *UserRef   `json:"creator,omitempty"`
	CreatedAt   *time.Time `json:"createdAt,omitempty"`
	UpdatedAt   *time.Time `json:"updatedAt,omitempty"`
}

// Center returns the geofence center; stored rows are range-checked on write.
func (g *Geofence) Center() (geo.Coordinate, error) {
	return geo.NewCoordinate(g.CenterLat, g.CenterLng)
}

func ValidRadius(r int) bool {
	return r >= MinRadiusMeters && r <= MaxRadiusMeters
}
