package routes

import (
	"context"
	"net/http"
	"strconv"

	"go.uber.org/zap"

	"github.com/Rafhael-Viana/geoproof/service"
)

const xlsxContentType = "application/vnd.openxmlformats-officedocument.spreadsheetml.sheet"

func dailyQuery(r *http.Request) service.DailyQuery {
	q := r.URL.Query()
	return service.DailyQuery{
		FilterBy: q.Get("filterBy"),
		Name:     q.Get("nama"),
		Start:    q.Get("tanggalMulai"),
		End:      q.Get("tanggalSelesai"),
	}
}

// GET /api/reports/daily?filterBy=nama|tanggal&nama&tanggalMulai&tanggalSelesai
func (api *API) DailyReport() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		ctx, cancel := context.WithTimeout(r.Context(), requestTimeout)
		defer cancel()

		rep, err := api.Reports.Daily(ctx, dailyQuery(r))
		if err != nil {
			writeError(w, r, api.Logger, err)
			return
		}
		writeJSON(w, http.StatusOK, rep)
	}
}

// GET /api/reports/daily/export takes the same filters and returns an XLSX file.
func (api *API) ExportDailyReport() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		ctx, cancel := context.WithTimeout(r.Context(), requestTimeout)
		defer cancel()

		data, filename, err := api.Reports.DailyExport(ctx, dailyQuery(r))
		if err != nil {
			writeError(w, r, api.Logger, err)
			return
		}

		w.Header().Set("Content-Type", xlsxContentType)
		w.Header().Set("Content-Disposition", `attachment; filename="`+filename+`"`)
		w.Header().Set("Content-Length", strconv.Itoa(len(data)))
		w.WriteHeader(http.StatusOK)
		if _, err := w.Write(data); err != nil {
			api.Logger.Warn("write export", zap.String("file", filename), zap.Error(err))
		}
	}
}

// GET /api/reports/frequency?group_by=user|day&from=YYYY-MM-DD&to=YYYY-MM-DD
func (api *API) ReportFrequency() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		q := r.URL.Query()

		ctx, cancel := context.WithTimeout(r.Context(), requestTimeout)
		defer cancel()

		rep, err := api.Reports.Frequency(ctx, q.Get("group_by"), q.Get("from"), q.Get("to"))
		if err != nil {
			writeError(w, r, api.Logger, err)
			return
		}
		writeJSON(w, http.StatusOK, rep)
	}
}
