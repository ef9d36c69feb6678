package cors

import (
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
)

func serve(opts Options, method, origin string) *httptest.ResponseRecorder {
	h := Cors(opts)(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusTeapot)
	}))
	req := httptest.NewRequest(method, "/api/hello", nil)
	if origin != "" {
		req.Header.Set("Origin", origin)
	}
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)
	return rec
}

func TestCors(t *testing.T) {
	opts := Options{AllowedOrigins: []string{"https://geoproof.example/"}, AllowCredentials: true}

	rec := serve(opts, http.MethodGet, "https://geoproof.example")
	assert.Equal(t, http.StatusTeapot, rec.Code)
	assert.Equal(t, "https://geoproof.example", rec.Header().Get("Access-Control-Allow-Origin"))
	assert.Equal(t, "true", rec.Header().Get("Access-Control-Allow-Credentials"))

	rec = serve(opts, http.MethodGet, "https://evil.example")
	assert.Empty(t, rec.Header().Get("Access-Control-Allow-Origin"))

	rec = serve(opts, http.MethodGet, "http://localhost:5173")
	assert.Empty(t, rec.Header().Get("Access-Control-Allow-Origin"))

	opts.AllowLocalhost = true
	rec = serve(opts, http.MethodGet, "http://localhost:5173")
	assert.Equal(t, "http://localhost:5173", rec.Header().Get("Access-Control-Allow-Origin"))

	rec = serve(opts, http.MethodOptions, "https://geoproof.example")
	assert.Equal(t, http.StatusNoContent, rec.Code)
}

func TestCors_Wildcard(t *testing.T) {
	rec := serve(Options{AllowedOrigins: []string{"*"}}, http.MethodGet, "https://any.example")
	assert.Equal(t, "https://any.example", rec.Header().Get("Access-Control-Allow-Origin"))
	assert.Empty(t, rec.Header().Get("Access-Control-Allow-Credentials"))
}
