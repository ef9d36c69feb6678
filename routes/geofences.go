package routes

import (
	"context"
	"net/http"

	"github.com/Rafhael-Viana/geoproof/service"
)

// ActiveGeofence is readable by every authenticated user so the client can
// draw the zone before checking in.
func (api *API) ActiveGeofence() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		ctx, cancel := context.WithTimeout(r.Context(), requestTimeout)
		defer cancel()

		g, err := api.Geofences.Active(ctx)
		if err != nil {
			writeError(w, r, api.Logger, err)
			return
		}
		writeData(w, http.StatusOK, "", g)
	}
}

func (api *API) ListGeofences() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		ctx, cancel := context.WithTimeout(r.Context(), requestTimeout)
		defer cancel()

		items, err := api.Geofences.List(ctx)
		if err != nil {
			writeError(w, r, api.Logger, err)
			return
		}
		n := len(items)
		writeJSON(w, http.StatusOK, envelope{Data: items, Count: &n})
	}
}

func (api *API) GetGeofence() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		id, ok := pathID(w, r)
		if !ok {
			return
		}

		ctx, cancel := context.WithTimeout(r.Context(), requestTimeout)
		defer cancel()

		g, err := api.Geofences.Get(ctx, id)
		if err != nil {
			writeError(w, r, api.Logger, err)
			return
		}
		writeData(w, http.StatusOK, "", g)
	}
}

func (api *API) CreateGeofence() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var in service.GeofenceInput
		if !decodeJSON(w, r, &in) {
			return
		}

		ctx, cancel := context.WithTimeout(r.Context(), requestTimeout)
		defer cancel()

		g, err := api.Geofences.Create(ctx, actorFrom(r).UserID, in)
		if err != nil {
			writeError(w, r, api.Logger, err)
			return
		}
		writeData(w, http.StatusCreated, "geofence created", g)
	}
}

// UpdateGeofence applies a partial update; omitted fields keep their value.
func (api *API) UpdateGeofence() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		id, ok := pathID(w, r)
		if !ok {
			return
		}
		var in service.GeofenceInput
		if !decodeJSON(w, r, &in) {
			return
		}

		ctx, cancel := context.WithTimeout(r.Context(), requestTimeout)
		defer cancel()

		g, err := api.Geofences.Update(ctx, id, in)
		if err != nil {
			writeError(w, r, api.Logger, err)
			return
		}
		writeData(w, http.StatusOK, "geofence updated", g)
	}
}

func (api *API) ActivateGeofence() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		id, ok := pathID(w, r)
		if !ok {
			return
		}

		ctx, cancel := context.WithTimeout(r.Context(), requestTimeout)
		defer cancel()

		g, err := api.Geofences.Activate(ctx, id)
		if err != nil {
			writeError(w, r, api.Logger, err)
			return
		}
		writeData(w, http.StatusOK, "geofence "+g.Name+" is now active", g)
	}
}

func (api *API) DeleteGeofence() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		id, ok := pathID(w, r)
		if !ok {
			return
		}

		ctx, cancel := context.WithTimeout(r.Context(), requestTimeout)
		defer cancel()

		if err := api.Geofences.Delete(ctx, id); err != nil {
			writeError(w, r, api.Logger, err)
			return
		}
		writeData(w, http.StatusOK, "geofence deleted", nil)
	}
}
