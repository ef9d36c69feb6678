package service

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"go.uber.org/zap"

	"github.com/Rafhael-Viana/geoproof/geo"
	"github.com/Rafhael-Viana/geoproof/models"
	"github.com/Rafhael-Viana/geoproof/repository"
)

type GeofenceStore interface {
	List(ctx context.Context) ([]models.Geofence, error)
	Get(ctx context.Context, id int64) (*models.Geofence, error)
	Create(ctx context.Context, g *models.Geofence) (*models.Geofence, error)
	Update(ctx context.Context, g *models.Geofence) (*models.Geofence, error)
	Activate(ctx context.Context, id int64) (*models.Geofence, error)
	Delete(ctx context.Context, id int64) error
}

// ActiveGeofenceSource serves the active geofence, usually through a cache.
type ActiveGeofenceSource interface {
	Get(ctx context.Context) (*models.Geofence, error)
	Invalidate(ctx context.Context)
}

type GeofenceService struct {
	store  GeofenceStore
	active ActiveGeofenceSource
	logger *zap.Logger
}

func NewGeofenceService(store GeofenceStore, active ActiveGeofenceSource, logger *zap.Logger) *GeofenceService {
	return &GeofenceService{store: store, active: active, logger: logger}
}

// GeofenceInput is used for create and partial update; nil means unchanged.
type GeofenceInput struct {
	Name        *string  `json:"name"`
	Description *string  `json:"description"`
	CenterLat   *float64 `json:"centerLat"`
	CenterLng   *float64 `json:"centerLng"`
	RadiusM     *int     `json:"radiusM"`
	IsActive    *bool    `json:"isActive"`
}

func geofenceStoreErr(err error) error {
	switch {
	case errors.Is(err, repository.ErrNotFound):
		return fmt.Errorf("geofence %w", ErrNotFound)
	case errors.Is(err, repository.ErrStateChanged):
		return fmt.Errorf("%w: geofence activation raced, retry", ErrConflict)
	default:
		return err
	}
}

func (in GeofenceInput) apply(g *models.Geofence) error {
	if in.Name != nil {
		name := strings.TrimSpace(*in.Name)
		if len([]rune(name)) < 2 || len([]rune(name)) > 100 {
			return invalid("name", "must be between 2 and 100 characters")
		}
		g.Name = name
	}
	if in.Description != nil {
		d := strings.TrimSpace(*in.Description)
		if d == "" {
			g.Description = nil
		} else {
			g.Description = &d
		}
	}
	if in.CenterLat != nil {
		g.CenterLat = *in.CenterLat
	}
	if in.CenterLng != nil {
		g.CenterLng = *in.CenterLng
	}
	if _, err := geo.NewCoordinate(g.CenterLat, g.CenterLng); err != nil {
		return err
	}
	if in.RadiusM != nil {
		g.RadiusM = *in.RadiusM
	}
	if !models.ValidRadius(g.RadiusM) {
		return invalid("radiusM", "must be between %d and %d meters", models.MinRadiusMeters, models.MaxRadiusMeters)
	}
	if in.IsActive != nil {
		g.IsActive = *in.IsActive
	}
	return nil
}

func (s *GeofenceService) List(ctx context.Context) ([]models.Geofence, error) {
	return s.store.List(ctx)
}

func (s *GeofenceService) Get(ctx context.Context, id int64) (*models.Geofence, error) {
	g, err := s.store.Get(ctx, id)
	if err != nil {
		return nil, geofenceStoreErr(err)
	}
	return g, nil
}

// Active returns ErrNoActiveGeofence when no zone is active.
func (s *GeofenceService) Active(ctx context.Context) (*models.Geofence, error) {
	g, err := s.active.Get(ctx)
	if err != nil {
		return nil, err
	}
	if g == nil {
		return nil, ErrNoActiveGeofence
	}
	return g, nil
}

func (s *GeofenceService) Create(ctx context.Context, actorID string, in GeofenceInput) (*models.Geofence, error) {
	if in.Name == nil || in.CenterLat == nil || in.CenterLng == nil {
		return nil, invalid("", "name, centerLat and centerLng are required")
	}
	g := &models.Geofence{RadiusM: models.DefaultRadiusMeters, CreatedBy: &actorID}
	if err := in.apply(g); err != nil {
		return nil, err
	}

	created, err := s.store.Create(ctx, g)
	if err != nil {
		return nil, geofenceStoreErr(err)
	}
	if created.IsActive {
		s.active.Invalidate(ctx)
	}
	s.logger.Info("geofence created",
		zap.Int64("geofence_id", created.ID),
		zap.Bool("active", created.IsActive),
		zap.String("by", actorID),
	)
	return created, nil
}

func (s *GeofenceService) Update(ctx context.Context, id int64, in GeofenceInput) (*models.Geofence, error) {
	g, err := s.Get(ctx, id)
	if err != nil {
		return nil, err
	}
	if err := in.apply(g); err != nil {
		return nil, err
	}

	updated, err := s.store.Update(ctx, g)
	if err != nil {
		return nil, geofenceStoreErr(err)
	}
	s.active.Invalidate(ctx)
	return updated, nil
}

// Activate makes id the only active geofence.
func (s *GeofenceService) Activate(ctx context.Context, id int64) (*models.Geofence, error) {
	g, err := s.store.Activate(ctx, id)
	if err != nil {
		return nil, geofenceStoreErr(err)
	}
	s.active.Invalidate(ctx)
	s.logger.Info("geofence activated", zap.Int64("geofence_id", id))
	return g, nil
}

// Delete refuses to remove the active geofence.
func (s *GeofenceService) Delete(ctx context.Context, id int64) error {
	err := s.store.Delete(ctx, id)
	if errors.Is(err, repository.ErrStateChanged) {
		return fmt.Errorf("%w: %w", ErrConflict, ErrActiveGeofence)
	}
	if err != nil {
		return geofenceStoreErr(err)
	}
	s.active.Invalidate(ctx)
	return nil
}
