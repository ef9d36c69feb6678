package routes

import (
	"context"
	"net/http"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/Rafhael-Viana/geoproof/auth"
	"github.com/Rafhael-Viana/geoproof/cache"
	middleware "github.com/Rafhael-Viana/geoproof/middlewares"
	"github.com/Rafhael-Viana/geoproof/models"
	"github.com/Rafhael-Viana/geoproof/service"
)

const requestTimeout = 10 * time.Second

type Pinger interface {
	Ping(ctx context.Context) error
}

// API holds what the handlers need. Every field except the limiters is required.
type API struct {
	Users      *service.UserService
	Geofences  *service.GeofenceService
	Attendance *service.AttendanceService
	Reports    *service.ReportService
	Tokens     *auth.Tokens
	DB         Pinger
	Logger     *zap.Logger

	UploadDir      string
	MaxUploadBytes int64

	GeneralLimiter *cache.RateLimiter
	CheckInLimiter *cache.RateLimiter
	// Proxies decides when X-Forwarded-For names the client; nil trusts nobody.
	Proxies *middleware.TrustedProxies
}

func actorFrom(r *http.Request) service.Actor {
	c, _ := middleware.ClaimsFromContext(r.Context())
	if c == nil {
		return service.Actor{}
	}
	return service.Actor{UserID: c.UserID, Name: c.Name, Role: c.Role}
}

// Hello is the health check; it pings the database.
func (api *API) Hello() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		ctx, cancel := context.WithTimeout(r.Context(), 2*time.Second)
		defer cancel()

		if err := api.DB.Ping(ctx); err != nil {
			api.Logger.Error("health check failed", zap.Error(err))
			writeJSON(w, http.StatusServiceUnavailable, map[string]string{"status": "unavailable", "database": "down"})
			return
		}
		writeJSON(w, http.StatusOK, map[string]string{"status": "ok", "database": "up"})
	}
}

// uploads serves stored photos without directory listings. Browsers must
// not second-guess the stored type.
func uploads(dir string) http.Handler {
	fs := http.StripPrefix("/uploads/", http.FileServer(http.Dir(dir)))
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("X-Content-Type-Options", "nosniff")
		if strings.HasSuffix(r.URL.Path, "/") {
			http.NotFound(w, r)
			return
		}
		fs.ServeHTTP(w, r)
	})
}

// Handler builds the full route table wrapped in the shared middleware.
func (api *API) Handler() http.Handler {
	mux := http.NewServeMux()

	authn := middleware.AuthJWT(api.Tokens)
	user := func(h http.HandlerFunc) http.Handler { return middleware.Chain(h, authn) }
	admin := func(h http.HandlerFunc) http.Handler {
		return middleware.Chain(h, authn, middleware.RequireRoles(models.RoleAdmin))
	}

	// Health check
	mux.Handle("GET /api/hello", api.Hello())

	// Auth and account management
	mux.Handle("POST /api/auth/register", api.Register())
	mux.Handle("POST /api/auth/login", api.Login())
	mux.Handle("DELETE /api/auth/me", user(api.DeleteMe()))
	mux.Handle("GET /api/auth/users", admin(api.ListUsers()))
	mux.Handle("GET /api/auth/users/stats", admin(api.UserStats()))
	mux.Handle("GET /api/auth/users/{id}", admin(api.GetUser()))
	mux.Handle("POST /api/auth/users", admin(api.CreateUser()))
	mux.Handle("PUT /api/auth/users/{id}", admin(api.UpdateUser()))
	mux.Handle("DELETE /api/auth/users/{id}", admin(api.DeleteUser()))

	// Geofences
	mux.Handle("GET /api/geofences/active", user(api.ActiveGeofence()))
	mux.Handle("GET /api/geofences", admin(api.ListGeofences()))
	mux.Handle("GET /api/geofences/{id}", admin(api.GetGeofence()))
	mux.Handle("POST /api/geofences", admin(api.CreateGeofence()))
	mux.Handle("PATCH /api/geofences/{id}", admin(api.UpdateGeofence()))
	mux.Handle("PATCH /api/geofences/{id}/activate", admin(api.ActivateGeofence()))
	mux.Handle("DELETE /api/geofences/{id}", admin(api.DeleteGeofence()))

	// Attendance
	checkIn := []func(http.Handler) http.Handler{authn}
	if api.CheckInLimiter != nil {
		checkIn = append(checkIn, middleware.RateLimit(api.CheckInLimiter, api.Proxies.ByUser,
			"too many check-in attempts, try again later", api.Logger))
	}
	mux.Handle("POST /api/presensi/check-in", middleware.Chain(api.CheckIn(), checkIn...))
	mux.Handle("POST /api/presensi/check-out", user(api.CheckOut()))
	mux.Handle("GET /api/presensi/history", user(api.History()))
	mux.Handle("GET /api/presensi/admin/all", admin(api.ListAllAttendance()))
	mux.Handle("GET /api/presensi/{id}", user(api.GetAttendance()))
	mux.Handle("PUT /api/presensi/{id}", user(api.UpdateAttendance()))
	mux.Handle("DELETE /api/presensi/{id}", user(api.DeleteAttendance()))
	mux.Handle("PATCH /api/presensi/{id}/verify", admin(api.VerifyAttendance()))

	// Reports
	mux.Handle("GET /api/reports/daily", admin(api.DailyReport()))
	mux.Handle("GET /api/reports/daily/export", admin(api.ExportDailyReport()))
	mux.Handle("GET /api/reports/frequency", admin(api.ReportFrequency()))

	// Photos
	if api.UploadDir != "" {
		mux.Handle("GET /uploads/", uploads(api.UploadDir))
	}

	var h http.Handler = mux
	if api.GeneralLimiter != nil {
		limited := middleware.RateLimit(api.GeneralLimiter, api.Proxies.ByClientIP,
			"too many requests from this IP, try again later", api.Logger)(mux)
		h = http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if strings.HasPrefix(r.URL.Path, "/api/") {
				limited.ServeHTTP(w, r)
				return
			}
			mux.ServeHTTP(w, r)
		})
	}
	return middleware.RequestLogger(api.Logger)(h)
}
