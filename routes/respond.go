package routes

import (
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"strconv"

	"go.uber.org/zap"

	"github.com/Rafhael-Viana/geoproof/geo"
	"github.com/Rafhael-Viana/geoproof/service"
)

func writeJSON(w http.ResponseWriter, status int, payload any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(payload)
}

type envelope struct {
	Message    string `json:"message,omitempty"`
	Data       any    `json:"data,omitempty"`
	Count      *int   `json:"count,omitempty"`
	Pagination any    `json:"pagination,omitempty"`
}

func writeData(w http.ResponseWriter, status int, message string, data any) {
	writeJSON(w, status, envelope{Message: message, Data: data})
}

func writeErrorMessage(w http.ResponseWriter, status int, msg string) {
	writeJSON(w, status, map[string]string{"error": msg})
}

// writeError maps service errors to status codes; anything unknown is a 500
// and gets logged.
func writeError(w http.ResponseWriter, r *http.Request, logger *zap.Logger, err error) {
	var (
		ve  *service.ValidationError
		ice *geo.InvalidCoordinateError
		mbe *http.MaxBytesError
	)

	switch {
	case errors.As(err, &ve), errors.As(err, &ice):
		writeErrorMessage(w, http.StatusBadRequest, err.Error())
	case errors.As(err, &mbe):
		writeErrorMessage(w, http.StatusRequestEntityTooLarge, "request body too large")
	case errors.Is(err, service.ErrNoOpenAttendance):
		writeErrorMessage(w, http.StatusBadRequest, err.Error())
	case errors.Is(err, service.ErrInvalidCredentials):
		writeErrorMessage(w, http.StatusUnauthorized, err.Error())
	case errors.Is(err, service.ErrForbidden):
		writeErrorMessage(w, http.StatusForbidden, err.Error())
	case errors.Is(err, service.ErrNotFound), errors.Is(err, service.ErrNoActiveGeofence):
		writeErrorMessage(w, http.StatusNotFound, err.Error())
	case errors.Is(err, service.ErrConflict),
		errors.Is(err, service.ErrAlreadyCheckedIn),
		errors.Is(err, service.ErrCheckInInProgress),
		errors.Is(err, service.ErrInvalidTransition):
		writeErrorMessage(w, http.StatusConflict, err.Error())
	default:
		logger.Error("request failed",
			zap.String("method", r.Method),
			zap.String("path", r.URL.Path),
			zap.Error(err),
		)
		writeErrorMessage(w, http.StatusInternalServerError, "internal server error")
	}
}

// decodeJSON reads a single JSON object into dst.
func decodeJSON(w http.ResponseWriter, r *http.Request, dst any) bool {
	defer r.Body.Close()

	dec := json.NewDecoder(r.Body)
	if err := dec.Decode(dst); err != nil {
		var (
			syntaxErr        *json.SyntaxError
			unmarshalTypeErr *json.UnmarshalTypeError
			mbe              *http.MaxBytesError
		)
		switch {
		case errors.Is(err, io.EOF):
			writeErrorMessage(w, http.StatusBadRequest, "empty body")
		case errors.As(err, &syntaxErr):
			writeErrorMessage(w, http.StatusBadRequest, "malformed JSON")
		case errors.As(err, &unmarshalTypeErr):
			writeErrorMessage(w, http.StatusBadRequest, "wrong type for field "+unmarshalTypeErr.Field)
		case errors.As(err, &mbe):
			writeErrorMessage(w, http.StatusRequestEntityTooLarge, "request body too large")
		default:
			writeErrorMessage(w, http.StatusBadRequest, "invalid JSON: "+err.Error())
		}
		return false
	}
	return true
}

func pathID(w http.ResponseWriter, r *http.Request) (int64, bool) {
	id, err := strconv.ParseInt(r.PathValue("id"), 10, 64)
	if err != nil || id <= 0 {
		writeErrorMessage(w, http.StatusBadRequest, "id must be a positive integer")
		return 0, false
	}
	return id, true
}

func queryInt(r *http.Request, key string, fallback int) int {
	if v := r.URL.Query().Get(key); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			return n
		}
	}
	return fallback
}
