package service

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/Rafhael-Viana/geoproof/geo"
	"github.com/Rafhael-Viana/geoproof/internal/memstore"
	"github.com/Rafhael-Viana/geoproof/models"
)

func sptr(s string) *string { return &s }
func iptr(i int) *int       { return &i }
func bptr(b bool) *bool     { return &b }

func newGeofenceService() (*GeofenceService, *memstore.Geofences, *memstore.ActiveGeofence) {
	store := memstore.NewGeofences()
	active := &memstore.ActiveGeofence{}
	return NewGeofenceService(store, active, zap.NewNop()), store, active
}

func TestGeofenceCreate_Validation(t *testing.T) {
	svc, _, _ := newGeofenceService()
	ctx := context.Background()

	var ve *ValidationError
	_, err := svc.Create(ctx, "a-1", GeofenceInput{Name: sptr("Campus")})
	assert.ErrorAs(t, err, &ve)

	_, err = svc.Create(ctx, "a-1", GeofenceInput{Name: sptr("C"), CenterLat: fptr(0), CenterLng: fptr(0)})
	assert.ErrorAs(t, err, &ve)

	_, err = svc.Create(ctx, "a-1", GeofenceInput{Name: sptr("Campus"), CenterLat: fptr(0), CenterLng: fptr(0), RadiusM: iptr(5)})
	require.ErrorAs(t, err, &ve)
	assert.Equal(t, "radiusM", ve.Field)

	var ce *geo.InvalidCoordinateError
	_, err = svc.Create(ctx, "a-1", GeofenceInput{Name: sptr("Campus"), CenterLat: fptr(91), CenterLng: fptr(0)})
	assert.ErrorAs(t, err, &ce)

	g, err := svc.Create(ctx, "a-1", GeofenceInput{Name: sptr(" Campus "), Description: sptr("  "), CenterLat: fptr(-7.7956), CenterLng: fptr(110.3695)})
	require.NoError(t, err)
	assert.Equal(t, "Campus", g.Name)
	assert.Nil(t, g.Description)
	assert.Equal(t, models.DefaultRadiusMeters, g.RadiusM)
	assert.False(t, g.IsActive)
	assert.Equal(t, "a-1", *g.CreatedBy)
}

func TestGeofence_SingleActiveAndCacheInvalidation(t *testing.T) {
	svc, store, active := newGeofenceService()
	ctx := context.Background()

	a, err := svc.Create(ctx, "a-1", GeofenceInput{Name: sptr("AA"), CenterLat: fptr(1), CenterLng: fptr(1), IsActive: bptr(true)})
	require.NoError(t, err)
	assert.Equal(t, 1, active.Invalidated)

	b, err := svc.Create(ctx, "a-1", GeofenceInput{Name: sptr("BB"), CenterLat: fptr(2), CenterLng: fptr(2), IsActive: bptr(true)})
	require.NoError(t, err)
	assert.Equal(t, 2, active.Invalidated)

	current, _ := store.Active(ctx)
	assert.Equal(t, b.ID, current.ID)

	_, err = svc.Activate(ctx, a.ID)
	require.NoError(t, err)
	assert.Equal(t, 3, active.Invalidated)

	current, _ = store.Active(ctx)
	assert.Equal(t, a.ID, current.ID)

	err = svc.Delete(ctx, a.ID)
	assert.ErrorIs(t, err, ErrConflict)
	assert.ErrorIs(t, err, ErrActiveGeofence)

	require.NoError(t, svc.Delete(ctx, b.ID))
	assert.ErrorIs(t, svc.Delete(ctx, b.ID), ErrNotFound)

	updated, err := svc.Update(ctx, a.ID, GeofenceInput{RadiusM: iptr(250)})
	require.NoError(t, err)
	assert.Equal(t, 250, updated.RadiusM)
	assert.True(t, updated.IsActive)

	_, err = svc.Activate(ctx, 999)
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestGeofenceActive(t *testing.T) {
	svc, _, active := newGeofenceService()

	_, err := svc.Active(context.Background())
	assert.ErrorIs(t, err, ErrNoActiveGeofence)

	active.Fence = &models.Geofence{ID: 3, IsActive: true}
	g, err := svc.Active(context.Background())
	require.NoError(t, err)
	assert.Equal(t, int64(3), g.ID)
}
