package routes

import (
	"context"
	"net/http"

	"github.com/google/uuid"

	"github.com/Rafhael-Viana/geoproof/service"
)

func pathUserID(w http.ResponseWriter, r *http.Request) (string, bool) {
	id, err := uuid.Parse(r.PathValue("id"))
	if err != nil {
		writeErrorMessage(w, http.StatusBadRequest, "invalid user id")
		return "", false
	}
	return id.String(), true
}

// --- LIST ---
func (api *API) ListUsers() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		ctx, cancel := context.WithTimeout(r.Context(), requestTimeout)
		defer cancel()

		users, err := api.Users.List(ctx)
		if err != nil {
			writeError(w, r, api.Logger, err)
			return
		}
		n := len(users)
		writeJSON(w, http.StatusOK, envelope{Data: users, Count: &n})
	}
}

func (api *API) UserStats() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		ctx, cancel := context.WithTimeout(r.Context(), requestTimeout)
		defer cancel()

		stats, err := api.Users.Stats(ctx)
		if err != nil {
			writeError(w, r, api.Logger, err)
			return
		}
		writeData(w, http.StatusOK, "", stats)
	}
}

// --- GET BY ID ---
func (api *API) GetUser() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		id, ok := pathUserID(w, r)
		if !ok {
			return
		}

		ctx, cancel := context.WithTimeout(r.Context(), requestTimeout)
		defer cancel()

		u, err := api.Users.Get(ctx, id)
		if err != nil {
			writeError(w, r, api.Logger, err)
			return
		}
		writeData(w, http.StatusOK, "", u)
	}
}

// --- CREATE ---
func (api *API) CreateUser() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var in service.NewUserInput
		if !decodeJSON(w, r, &in) {
			return
		}

		ctx, cancel := context.WithTimeout(r.Context(), requestTimeout)
		defer cancel()

		u, err := api.Users.Create(ctx, in)
		if err != nil {
			writeError(w, r, api.Logger, err)
			return
		}
		writeData(w, http.StatusCreated, "user "+string(u.Role)+" created", summarize(u))
	}
}

// --- UPDATE ---
func (api *API) UpdateUser() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		id, ok := pathUserID(w, r)
		if !ok {
			return
		}
		var in service.UpdateUserInput
		if !decodeJSON(w, r, &in) {
			return
		}

		ctx, cancel := context.WithTimeout(r.Context(), requestTimeout)
		defer cancel()

		u, err := api.Users.Update(ctx, actorFrom(r).UserID, id, in)
		if err != nil {
			writeError(w, r, api.Logger, err)
			return
		}
		writeData(w, http.StatusOK, "user updated", summarize(u))
	}
}

// --- DELETE ---
func (api *API) DeleteUser() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		id, ok := pathUserID(w, r)
		if !ok {
			return
		}

		ctx, cancel := context.WithTimeout(r.Context(), requestTimeout)
		defer cancel()

		u, err := api.Users.Delete(ctx, actorFrom(r).UserID, id)
		if err != nil {
			writeError(w, r, api.Logger, err)
			return
		}
		writeData(w, http.StatusOK, "user deleted", summarize(u))
	}
}

