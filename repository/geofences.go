package repository

import (
	"context"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/Rafhael-Viana/geoproof/models"
)

type GeofenceRepository struct {
	pool *pgxpool.Pool
}

func NewGeofenceRepository(pool *pgxpool.Pool) *GeofenceRepository {
	return &GeofenceRepository{pool: pool}
}

const geofenceSelect = `
	SELECT g.id, g.name, g.description, g.center_lat, g.center_lng, g.radius_m, g.is_active,
	       g.created_by, g.created_at, g.updated_at, u.name, u.email
	FROM geofences g
	LEFT JOIN users u ON u.user_id = g.created_by
`

func scanGeofence(row rowScanner) (*models.Geofence, error) {
	var (
		g            models.Geofence
		creatorName  *string
		creatorEmail *string
	)
	err := row.Scan(&g.ID, &g.Name, &g.Description, &g.CenterLat, &g.CenterLng, &g.RadiusM, &g.IsActive,
		&g.CreatedBy, &g.CreatedAt, &g.UpdatedAt, &creatorName, &creatorEmail)
	if err != nil {
		return nil, notFound(err)
	}
	if g.CreatedBy != nil && creatorName != nil {
		g.Creator = &models.UserRef{UserID: *g.CreatedBy, Name: *creatorName}
		if creatorEmail != nil {
			g.Creator.Email = *creatorEmail
		}
	}
	return &g, nil
}

func (r *GeofenceRepository) List(ctx context.Context) ([]models.Geofence, error) {
	rows, err := r.pool.Query(ctx, geofenceSelect+` ORDER BY g.is_active DESC, g.created_at DESC, g.id DESC`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	out := []models.Geofence{}
	for rows.Next() {
		g, err := scanGeofence(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, *g)
	}
	return out, rows.Err()
}

func (r *GeofenceRepository) Get(ctx context.Context, id int64) (*models.Geofence, error) {
	return scanGeofence(r.pool.QueryRow(ctx, geofenceSelect+` WHERE g.id = $1`, id))
}

// Active returns the single active geofence, or nil when there is none.
func (r *GeofenceRepository) Active(ctx context.Context) (*models.Geofence, error) {
	g, err := scanGeofence(r.pool.QueryRow(ctx, geofenceSelect+` WHERE g.is_active LIMIT 1`))
	if errors.Is(err, ErrNotFound) {
		return nil, nil
	}
	return g, err
}

// Create inserts g. When g.IsActive every other geofence is deactivated in
// the same transaction.
func (r *GeofenceRepository) Create(ctx context.Context, g *models.Geofence) (*models.Geofence, error) {
	var id int64
	err := pgx.BeginFunc(ctx, r.pool, func(tx pgx.Tx) error {
		if g.IsActive {
			if err := deactivateAll(ctx, tx, 0); err != nil {
				return err
			}
		}
		return tx.QueryRow(ctx, `
			INSERT INTO geofences (name, description, center_lat, center_lng, radius_m, is_active, created_by)
			VALUES ($1, $2, $3, $4, $5, $6, $7)
			RETURNING id
		`, g.Name, g.Description, g.CenterLat, g.CenterLng, g.RadiusM, g.IsActive, g.CreatedBy).Scan(&id)
	})
	if err != nil {
		if isUniqueViolation(err, "geofences_single_active") {
			return nil, ErrStateChanged
		}
		return nil, fmt.Errorf("create geofence: %w", err)
	}
	return r.Get(ctx, id)
}

// Update overwrites the editable columns of g.
func (r *GeofenceRepository) Update(ctx context.Context, g *models.Geofence) (*models.Geofence, error) {
	err := pgx.BeginFunc(ctx, r.pool, func(tx pgx.Tx) error {
		if g.IsActive {
			if err := deactivateAll(ctx, tx, g.ID); err != nil {
				return err
			}
		}
		cmd, err := tx.Exec(ctx, `
			UPDATE geofences
			SET name = $2, description = $3, center_lat = $4, center_lng = $5, radius_m = $6,
			    is_active = $7, updated_at = now()
			WHERE id = $1
		`, g.ID, g.Name, g.Description, g.CenterLat, g.CenterLng, g.RadiusM, g.IsActive)
		if err != nil {
			return err
		}
		if cmd.RowsAffected() == 0 {
			return ErrNotFound
		}
		return nil
	})
	if err != nil {
		if isUniqueViolation(err, "geofences_single_active") {
			return nil, ErrStateChanged
		}
		return nil, err
	}
	return r.Get(ctx, g.ID)
}

// Activate makes id the only active geofence.
func (r *GeofenceRepository) Activate(ctx context.Context, id int64) (*models.Geofence, error) {
	err := pgx.BeginFunc(ctx, r.pool, func(tx pgx.Tx) error {
		if err := deactivateAll(ctx, tx, id); err != nil {
			return err
		}
		cmd, err := tx.Exec(ctx, `UPDATE geofences SET is_active = true, updated_at = now() WHERE id = $1`, id)
		if err != nil {
			return err
		}
		if cmd.RowsAffected() == 0 {
			return ErrNotFound
		}
		return nil
	})
	if err != nil {
		if isUniqueViolation(err, "geofences_single_active") {
			return nil, ErrStateChanged
		}
		return nil, err
	}
	return r.Get(ctx, id)
}

// Delete removes an inactive geofence. Deleting the active one returns
// ErrStateChanged.
func (r *GeofenceRepository) Delete(ctx context.Context, id int64) error {
	cmd, err := r.pool.Exec(ctx, `DELETE FROM geofences WHERE id = $1 AND NOT is_active`, id)
	if err != nil {
		return err
	}
	if cmd.RowsAffected() > 0 {
		return nil
	}

	var active bool
	err = r.pool.QueryRow(ctx, `SELECT is_active FROM geofences WHERE id = $1`, id).Scan(&active)
	if err != nil {
		return notFound(err)
	}
	return ErrStateChanged
}

func deactivateAll(ctx context.Context, tx pgx.Tx, except int64) error {
	_, err := tx.Exec(ctx, `
		UPDATE geofences SET is_active = false, updated_at = now()
		WHERE is_active AND id <> $1
	`, except)
	return err
}
