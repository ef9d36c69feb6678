package routes

import (
	"context"
	"encoding/json"
	"errors"
	"mime"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/Rafhael-Viana/geoproof/geo"
	"github.com/Rafhael-Viana/geoproof/service"
)

const multipartMemory = 8 << 20

// checkInBody is the JSON form of a check-in. Numbers may also arrive quoted.
type checkInBody struct {
	Latitude        json.Number  `json:"latitude"`
	Longitude       json.Number  `json:"longitude"`
	Accuracy        *json.Number `json:"accuracy"`
	ClientTimestamp string       `json:"clientTimestamp"`
}

type checkInFields struct {
	lat, lng, accuracy, clientTimestamp string
}

func (f checkInFields) input() (service.CheckInInput, string) {
	var in service.CheckInInput

	p, err := geo.ParseCoordinate(f.lat, f.lng)
	if err != nil {
		return in, err.Error()
	}
	in.Point = p

	if v := strings.TrimSpace(f.accuracy); v != "" {
		acc, err := strconv.ParseFloat(v, 64)
		if err != nil {
			return in, "accuracy must be a number"
		}
		in.Accuracy = &acc
	}
	if v := strings.TrimSpace(f.clientTimestamp); v != "" {
		ts, err := time.Parse(time.RFC3339, v)
		if err != nil {
			return in, "clientTimestamp must be RFC3339"
		}
		in.ClientTimestamp = &ts
	}
	return in, ""
}

func isMultipart(r *http.Request) bool {
	mt, _, err := mime.ParseMediaType(r.Header.Get("Content-Type"))
	return err == nil && mt == "multipart/form-data"
}

// CheckIn accepts multipart/form-data (with an optional buktiFoto file) or JSON.
func (api *API) CheckIn() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if api.MaxUploadBytes > 0 {
			r.Body = http.MaxBytesReader(w, r.Body, api.MaxUploadBytes)
		}

		var (
			fields checkInFields
			photo  *service.Photo
		)
		if isMultipart(r) {
			if err := r.ParseMultipartForm(multipartMemory); err != nil {
				var mbe *http.MaxBytesError
				if errors.As(err, &mbe) {
					writeError(w, r, api.Logger, err)
					return
				}
				writeErrorMessage(w, http.StatusBadRequest, "invalid multipart form")
				return
			}
			defer func() { _ = r.MultipartForm.RemoveAll() }()

			fields = checkInFields{
				lat:             r.FormValue("latitude"),
				lng:             r.FormValue("longitude"),
				accuracy:        r.FormValue("accuracy"),
				clientTimestamp: r.FormValue("clientTimestamp"),
			}

			file, header, err := r.FormFile("buktiFoto")
			switch {
			case errors.Is(err, http.ErrMissingFile):
			case err != nil:
				writeErrorMessage(w, http.StatusBadRequest, "invalid buktiFoto upload")
				return
			default:
				defer file.Close()
				photo = &service.Photo{Filename: header.Filename, Body: file}
			}
		} else {
			var body checkInBody
			if !decodeJSON(w, r, &body) {
				return
			}
			fields = checkInFields{
				lat:             body.Latitude.String(),
				lng:             body.Longitude.String(),
				clientTimestamp: body.ClientTimestamp,
			}
			if body.Accuracy != nil {
				fields.accuracy = body.Accuracy.String()
			}
		}

		in, msg := fields.input()
		if msg != "" {
			writeErrorMessage(w, http.StatusBadRequest, msg)
			return
		}
		in.Photo = photo

		ctx, cancel := context.WithTimeout(r.Context(), requestTimeout)
		defer cancel()

		res, err := api.Attendance.CheckIn(ctx, actorFrom(r), in)
		if err != nil {
			writeError(w, r, api.Logger, err)
			return
		}
		writeData(w, http.StatusCreated, res.Message, res.Record)
	}
}

func (api *API) CheckOut() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		ctx, cancel := context.WithTimeout(r.Context(), requestTimeout)
		defer cancel()

		res, err := api.Attendance.CheckOut(ctx, actorFrom(r))
		if err != nil {
			writeError(w, r, api.Logger, err)
			return
		}
		writeData(w, http.StatusOK, res.Message, res.Record)
	}
}

// GET /api/presensi/history?page&limit
func (api *API) History() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		page := queryInt(r, "page", 1)
		limit := queryInt(r, "limit", service.DefaultPageSize)

		ctx, cancel := context.WithTimeout(r.Context(), requestTimeout)
		defer cancel()

		items, pg, err := api.Attendance.History(ctx, actorFrom(r), page, limit)
		if err != nil {
			writeError(w, r, api.Logger, err)
			return
		}
		writeJSON(w, http.StatusOK, envelope{Data: items, Pagination: pg})
	}
}

// GET /api/presensi/admin/all?page&limit&status&startDate&endDate&suspicious
func (api *API) ListAllAttendance() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		q := r.URL.Query()
		suspicious, _ := strconv.ParseBool(q.Get("suspicious"))

		ctx, cancel := context.WithTimeout(r.Context(), requestTimeout)
		defer cancel()

		items, pg, err := api.Attendance.ListAll(ctx, service.ListQuery{
			Page:       queryInt(r, "page", 1),
			Limit:      queryInt(r, "limit", service.DefaultPageSize),
			Status:     q.Get("status"),
			StartDate:  q.Get("startDate"),
			EndDate:    q.Get("endDate"),
			Suspicious: suspicious,
		})
		if err != nil {
			writeError(w, r, api.Logger, err)
			return
		}
		writeJSON(w, http.StatusOK, envelope{Data: items, Pagination: pg})
	}
}

func (api *API) GetAttendance() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		id, ok := pathID(w, r)
		if !ok {
			return
		}

		ctx, cancel := context.WithTimeout(r.Context(), requestTimeout)
		defer cancel()

		rec, err := api.Attendance.Get(ctx, actorFrom(r), id)
		if err != nil {
			writeError(w, r, api.Logger, err)
			return
		}
		writeData(w, http.StatusOK, "", rec)
	}
}

func (api *API) UpdateAttendance() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		id, ok := pathID(w, r)
		if !ok {
			return
		}
		var in service.UpdateTimesInput
		if !decodeJSON(w, r, &in) {
			return
		}

		ctx, cancel := context.WithTimeout(r.Context(), requestTimeout)
		defer cancel()

		rec, err := api.Attendance.UpdateTimes(ctx, actorFrom(r), id, in)
		if err != nil {
			writeError(w, r, api.Logger, err)
			return
		}
		writeData(w, http.StatusOK, "attendance updated", rec)
	}
}

func (api *API) DeleteAttendance() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		id, ok := pathID(w, r)
		if !ok {
			return
		}

		ctx, cancel := context.WithTimeout(r.Context(), requestTimeout)
		defer cancel()

		if err := api.Attendance.Delete(ctx, actorFrom(r), id); err != nil {
			writeError(w, r, api.Logger, err)
			return
		}
		writeData(w, http.StatusOK, "attendance deleted", nil)
	}
}

// VerifyAttendance records an admin decision: {"status":"APPROVED|REJECTED","note":"..."}.
func (api *API) VerifyAttendance() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		id, ok := pathID(w, r)
		if !ok {
			return
		}
		var in service.VerifyInput
		if !decodeJSON(w, r, &in) {
			return
		}

		ctx, cancel := context.WithTimeout(r.Context(), requestTimeout)
		defer cancel()

		rec, err := api.Attendance.Verify(ctx, actorFrom(r), id, in)
		if err != nil {
			writeError(w, r, api.Logger, err)
			return
		}
		writeData(w, http.StatusOK, "attendance "+strings.ToLower(rec.Status.String()), rec)
	}
}
