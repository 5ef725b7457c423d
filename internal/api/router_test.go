package api

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// named returns a handler that echoes its name, so tests can see which
// route matched.
func named(name string) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		JSON(w, http.StatusOK, name)
	}
}

func headerGate(header string) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if r.Header.Get(header) == "" {
				HandleError(w, ErrUnauthorized)
				return
			}
			next.ServeHTTP(w, r)
		})
	}
}

func testRouter(rdb redis.Cmdable) http.Handler {
	return NewRouter(nil, rdb, nil, RouterConfig{}, HandlerSet{
		FreeTrialStatus:        named("free-trial-status"),
		RecordFreeTrialUsage:   named("free-trial-usage"),
		GetFreeTrialPolicy:     named("get-policy"),
		ReplaceFreeTrialPolicy: named("replace-policy"),
		ListFreeTrialPolicies:  named("list-policies"),
		GetRetakeLimit:         named("get-retake-limit"),
		SetRetakeLimit:         named("set-retake-limit"),
		ClearRetakeLimit:       named("clear-retake-limit"),
		ListRetakeLimits:       named("list-retake-limits"),
		Retake:                 named("retake"),
		AuthMiddleware:         headerGate("X-Test-User"),
		AdminMiddleware:        headerGate("X-Test-Admin"),
	})
}

func TestRouter_Routes(t *testing.T) {
	router := testRouter(nil)

	tests := []struct {
		method string
		path   string
		admin  bool
		want   string
	}{
		{"GET", "/api/v1/free-trial-status", false, "free-trial-status"},
		{"POST", "/api/v1/free-trial-usage", false, "free-trial-usage"},
		{"GET", "/api/v1/retake-limit", false, "get-retake-limit"},
		{"POST", "/api/v1/retake", false, "retake"},
		{"POST", "/api/v1/retake-limit", true, "set-retake-limit"},
		{"DELETE", "/api/v1/retake-limit", true, "clear-retake-limit"},
		{"GET", "/api/v1/retake-limits", true, "list-retake-limits"},
		{"GET", "/api/v1/free-trial-policy", true, "get-policy"},
		{"PUT", "/api/v1/free-trial-policy", true, "replace-policy"},
		{"GET", "/api/v1/free-trial-policies", true, "list-policies"},
	}

	for _, tt := range tests {
		t.Run(tt.method+" "+tt.path, func(t *testing.T) {
			req := httptest.NewRequest(tt.method, tt.path, nil)
			req.Header.Set("X-Test-User", "u1")
			if tt.admin {
				req.Header.Set("X-Test-Admin", "1")
			}
			rec := httptest.NewRecorder()
			router.ServeHTTP(rec, req)

			require.Equal(t, http.StatusOK, rec.Code)
			var body map[string]any
			require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
			assert.Equal(t, tt.want, body["data"])

			// Every API route sits behind authentication.
			req.Header.Del("X-Test-User")
			rec = httptest.NewRecorder()
			router.ServeHTTP(rec, req)
			assert.Equal(t, http.StatusUnauthorized, rec.Code)

			if tt.admin {
				req.Header.Set("X-Test-User", "u1")
				req.Header.Del("X-Test-Admin")
				rec = httptest.NewRecorder()
				router.ServeHTTP(rec, req)
				assert.Equal(t, http.StatusUnauthorized, rec.Code)
			}
		})
	}
}

func TestRouter_Health(t *testing.T) {
	mr := miniredis.RunT(t)
	rdb := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { rdb.Close() })
	router := testRouter(rdb)

	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, httptest.NewRequest("GET", "/health/live", nil))
	assert.Equal(t, http.StatusOK, rec.Code)

	rec = httptest.NewRecorder()
	router.ServeHTTP(rec, httptest.NewRequest("GET", "/health/ready", nil))
	require.Equal(t, http.StatusOK, rec.Code)
	var body struct {
		Data map[string]string `json:"data"`
	}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
	assert.Equal(t, "healthy", body.Data["redis"])
	assert.Equal(t, "not configured", body.Data["database"])
	assert.Equal(t, "not configured", body.Data["nats"])

	mr.Close()
	rec = httptest.NewRecorder()
	router.ServeHTTP(rec, httptest.NewRequest("GET", "/health/ready", nil))
	assert.Equal(t, http.StatusServiceUnavailable, rec.Code)
}

func TestRouter_Metrics(t *testing.T) {
	router := testRouter(nil)

	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, httptest.NewRequest("GET", "/health/live", nil))

	rec = httptest.NewRecorder()
	router.ServeHTTP(rec, httptest.NewRequest("GET", "/metrics", nil))
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), "examprep_http_requests_total")
}
