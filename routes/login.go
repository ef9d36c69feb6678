package routes

import (
	"context"
	"net/http"

	"go.uber.org/zap"

	"github.com/Rafhael-Viana/geoproof/models"
	"github.com/Rafhael-Viana/geoproof/service"
)

type LoginRequest struct {
	Email    string `json:"email"`
	Password string `json:"password"`
}

type LoginResponse struct {
	Message string       `json:"message"`
	Token   string       `json:"token"`
	User    *userSummary `json:"user"`
}

type userSummary struct {
	UserID string      `json:"user_id"`
	Name   string      `json:"name"`
	Email  string      `json:"email"`
	Role   models.Role `json:"role"`
}

func summarize(u *models.User) *userSummary {
	return &userSummary{UserID: u.UserID, Name: u.Name, Email: u.Email, Role: u.Role}
}

// Register is the public sign-up; it always creates a student.
func (api *API) Register() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var in service.NewUserInput
		if !decodeJSON(w, r, &in) {
			return
		}

		ctx, cancel := context.WithTimeout(r.Context(), requestTimeout)
		defer cancel()

		u, err := api.Users.Register(ctx, in)
		if err != nil {
			writeError(w, r, api.Logger, err)
			return
		}
		writeData(w, http.StatusCreated, "registration successful", summarize(u))
	}
}

// Login authenticates a user and returns a signed token.
func (api *API) Login() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var in LoginRequest
		if !decodeJSON(w, r, &in) {
			return
		}

		ctx, cancel := context.WithTimeout(r.Context(), requestTimeout)
		defer cancel()

		token, u, err := api.Users.Login(ctx, in.Email, in.Password)
		if err != nil {
			writeError(w, r, api.Logger, err)
			return
		}

		api.Logger.Info("user logged in", zap.String("user_id", u.UserID))
		writeJSON(w, http.StatusOK, LoginResponse{Message: "login successful", Token: token, User: summarize(u)})
	}
}

// DeleteMe removes the caller's own account after a password check.
func (api *API) DeleteMe() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var in struct {
			Password string `json:"password"`
		}
		if !decodeJSON(w, r, &in) {
			return
		}

		ctx, cancel := context.WithTimeout(r.Context(), requestTimeout)
		defer cancel()

		u, err := api.Users.DeleteOwn(ctx, actorFrom(r).UserID, in.Password)
		if err != nil {
			writeError(w, r, api.Logger, err)
			return
		}
		writeData(w, http.StatusOK, "your account has been deleted", summarize(u))
	}
}
