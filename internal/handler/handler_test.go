package handler

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"license-service/internal/model"
	"license-service/internal/ratelimit"
	"license-service/internal/repository/memory"
	"license-service/internal/service"
	"license-service/pkg/jwtutil"

	"github.com/labstack/echo/v4"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type testServer struct {
	e     *echo.Echo
	store *memory.Store
	svc   *service.LicenseService
	jwt   *jwtutil.JWTUtil
}

func newTestServer(t *testing.T, limiter ratelimit.Limiter) *testServer {
	t.Helper()
	store := memory.NewStore()
	jwt := jwtutil.NewJWTUtil(&jwtutil.JWTConfig{SigningKey: "test", ExpirationHours: 1})
	svc := service.NewLicenseService(store.Licenses, store.Activations, store.Usage, store.Users)
	auth := service.NewAuthService(store.Users, jwt, nil)

	e := echo.New()
	Setup(e)
	RegisterRoutes(e, Deps{
		ServiceName: "license-service",
		Licenses:    svc,
		Auth:        auth,
		JWT:         jwt,
		Limiter:     limiter,
		Store:       store,
	})
	return &testServer{e: e, store: store, svc: svc, jwt: jwt}
}

func (s *testServer) do(t *testing.T, method, path, body, token string) (*httptest.ResponseRecorder, map[string]interface{}) {
	t.Helper()
	req := httptest.NewRequest(method, path, strings.NewReader(body))
	if body != "" {
		req.Header.Set(echo.HeaderContentType, echo.MIMEApplicationJSON)
	}
	if token != "" {
		req.Header.Set(echo.HeaderAuthorization, "Bearer "+token)
	}
	rec := httptest.NewRecorder()
	s.e.ServeHTTP(rec, req)

	var out map[string]interface{}
	if rec.Body.Len() > 0 && strings.HasPrefix(rec.Header().Get(echo.HeaderContentType), echo.MIMEApplicationJSON) {
		require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &out), rec.Body.String())
	}
	return rec, out
}

func (s *testServer) token(t *testing.T, id uint, email, role string) string {
	t.Helper()
	tok, err := s.jwt.GenerateToken(email, id, role)
	require.NoError(t, err)
	return tok
}

func (s *testServer) license(t *testing.T, tier string) *model.License {
	t.Helper()
	l, err := s.svc.Create(context.Background(), "a@b.com", tier, 12, nil)
	require.NoError(t, err)
	return l
}

func TestProtocolFlow(t *testing.T) {
	s := newTestServer(t, nil)
	l := s.license(t, model.TierPro)

	rec, body := s.do(t, http.MethodPost, "/api/v1/license/activate",
		`{"license_key":"`+l.Key+`","domain":"https://www.Shop.example.com/","site_name":"Shop","plugin_version":"2.0"}`, "")
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	assert.Equal(t, true, body["success"])
	assert.Equal(t, "shop.example.com", body["domain"])
	assert.Equal(t, "pro", body["tier"])
	assert.EqualValues(t, 1, body["activations"])
	assert.EqualValues(t, 3, body["max_activations"])
	quota := body["quota"].(map[string]interface{})
	assert.EqualValues(t, 10000, quota["monthly_limit"])
	assert.NotEmpty(t, quota["reset_date"])
	assert.NotEmpty(t, body["features"])

	rec, body = s.do(t, http.MethodPost, "/api/v1/license/validate",
		`{"license_key":"`+l.Key+`","domain":"shop.example.com"}`, "")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, true, body["success"])
	assert.Equal(t, "active", body["status"])

	rec, body = s.do(t, http.MethodPost, "/api/v1/license/usage",
		`{"license_key":"`+l.Key+`","domain":"shop.example.com","count":3,"bytes_saved":2048}`, "")
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	assert.EqualValues(t, 3, body["quota"].(map[string]interface{})["used"])

	rec, body = s.do(t, http.MethodPost, "/api/v1/license/deactivate",
		`{"license_key":"`+l.Key+`","domain":"shop.example.com"}`, "")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.EqualValues(t, 0, body["activations"])

	rec, body = s.do(t, http.MethodPost, "/api/v1/license/deactivate",
		`{"license_key":"`+l.Key+`","domain":"shop.example.com"}`, "")
	assert.Equal(t, http.StatusNotFound, rec.Code)
	assert.Equal(t, service.CodeActivationNotFound, body["code"])
	assert.Equal(t, false, body["success"])
}

func TestValidate_StatusCodes(t *testing.T) {
	s := newTestServer(t, nil)
	l := s.license(t, model.TierPro)
	_, err := s.svc.Activate(context.Background(), service.ActivateInput{LicenseKey: l.Key, Domain: "example.com"})
	require.NoError(t, err)

	tests := []struct {
		name   string
		body   string
		status int
		token  string
	}{
		{"unknown key", `{"license_key":"ZZZZ-ZZZZ-ZZZZ-ZZZZ","domain":"example.com"}`, http.StatusNotFound, "invalid"},
		{"malformed key", `{"license_key":"abc","domain":"example.com"}`, http.StatusNotFound, "invalid"},
		{"not activated", `{"license_key":"` + l.Key + `","domain":"other.com"}`, http.StatusForbidden, "not_activated"},
		{"active", `{"license_key":"` + l.Key + `","domain":"www.example.com"}`, http.StatusOK, "active"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			rec, body := s.do(t, http.MethodPost, "/api/v1/license/validate", tt.body, "")
			assert.Equal(t, tt.status, rec.Code)
			assert.Equal(t, tt.token, body["status"])
			assert.Equal(t, tt.token == "active", body["success"])
		})
	}
}

func TestActivate_Errors(t *testing.T) {
	s := newTestServer(t, nil)
	l := s.license(t, model.TierStarter)
	_, _ = s.do(t, http.MethodPost, "/api/v1/license/activate", `{"license_key":"`+l.Key+`","domain":"one.com"}`, "")

	tests := []struct {
		name   string
		body   string
		status int
		code   string
	}{
		{"missing fields", `{}`, http.StatusBadRequest, service.CodeValidation},
		{"broken json", `{"license_key":`, http.StatusBadRequest, service.CodeValidation},
		{"malformed key", `{"license_key":"abc","domain":"x.com"}`, http.StatusBadRequest, service.CodeInvalidFormat},
		{"scheme without host", `{"license_key":"` + l.Key + `","domain":"http://"}`, http.StatusBadRequest, service.CodeValidation},
		{"unparsable domain", `{"license_key":"` + l.Key + `","domain":"a b.com"}`, http.StatusBadRequest, service.CodeValidation},
		{"unknown key", `{"license_key":"ZZZZ-ZZZZ-ZZZZ-ZZZZ","domain":"x.com"}`, http.StatusNotFound, service.CodeLicenseNotFound},
		{"limit reached", `{"license_key":"` + l.Key + `","domain":"two.com"}`, http.StatusForbidden, service.CodeActivationLimitReached},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			rec, body := s.do(t, http.MethodPost, "/api/v1/license/activate", tt.body, "")
			assert.Equal(t, tt.status, rec.Code, rec.Body.String())
			assert.Equal(t, tt.code, body["code"])
			assert.Equal(t, false, body["success"])
		})
	}

	_, body := s.do(t, http.MethodPost, "/api/v1/license/activate", `{"license_key":"`+l.Key+`","domain":"two.com"}`, "")
	assert.EqualValues(t, 1, body["max_activations"])

	_, body = s.do(t, http.MethodPost, "/api/v1/license/activate", `{}`, "")
	fields := body["fields"].(map[string]interface{})
	assert.Contains(t, fields, "license_key")
	assert.Contains(t, fields, "domain")
}

func TestTrackUsage_QuotaExceeded(t *testing.T) {
	s := newTestServer(t, nil)
	l := s.license(t, model.TierStarter)
	_, err := s.svc.Activate(context.Background(), service.ActivateInput{LicenseKey: l.Key, Domain: "example.com"})
	require.NoError(t, err)

	rec, _ := s.do(t, http.MethodPost, "/api/v1/license/usage", `{"license_key":"`+l.Key+`","domain":"example.com","count":1000}`, "")
	require.Equal(t, http.StatusOK, rec.Code)

	rec, body := s.do(t, http.MethodPost, "/api/v1/license/usage", `{"license_key":"`+l.Key+`","domain":"example.com"}`, "")
	assert.Equal(t, http.StatusTooManyRequests, rec.Code)
	assert.Equal(t, service.CodeQuotaExceeded, body["code"])
	quota := body["quota"].(map[string]interface{})
	assert.EqualValues(t, 1001, quota["used"])
	assert.EqualValues(t, 1000, quota["monthly_limit"])
}

func TestActivate_DomainSpellingsShareOneSlot(t *testing.T) {
	s := newTestServer(t, nil)
	l := s.license(t, model.TierPro)

	for _, domain := range []string{"example.com", "example.com..", "https://WWW.example.com../", "www.www.example.com."} {
		rec, body := s.do(t, http.MethodPost, "/api/v1/license/activate",
			`{"license_key":"`+l.Key+`","domain":"`+domain+`"}`, "")
		require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
		assert.Equal(t, "example.com", body["domain"], domain)
		assert.EqualValues(t, 1, body["activations"], domain)
	}
}

func TestRateLimit(t *testing.T) {
	s := newTestServer(t, ratelimit.NewLocalLimiter(0.001, 2))
	for i := 0; i < 2; i++ {
		rec, _ := s.do(t, http.MethodPost, "/api/v1/license/validate", `{"license_key":"ZZZZ-ZZZZ-ZZZZ-ZZZZ","domain":"x.com"}`, "")
		assert.Equal(t, http.StatusNotFound, rec.Code)
	}
	rec, body := s.do(t, http.MethodPost, "/api/v1/license/validate", `{"license_key":"ZZZZ-ZZZZ-ZZZZ-ZZZZ","domain":"x.com"}`, "")
	assert.Equal(t, http.StatusTooManyRequests, rec.Code)
	assert.Equal(t, service.CodeRateLimited, body["code"])

	// health sits outside the limited group
	rec, _ = s.do(t, http.MethodGet, "/health", "", "")
	assert.Equal(t, http.StatusOK, rec.Code)
}

func TestRateLimit_IgnoresForwardedForFromUntrustedPeers(t *testing.T) {
	s := newTestServer(t, ratelimit.NewLocalLimiter(0.001, 2))

	limited := 0
	for i := 0; i < 10; i++ {
		req := httptest.NewRequest(http.MethodPost, "/api/v1/license/validate",
			strings.NewReader(`{"license_key":"ZZZZ-ZZZZ-ZZZZ-ZZZZ","domain":"x.com"}`))
		req.Header.Set(echo.HeaderContentType, echo.MIMEApplicationJSON)
		req.Header.Set(echo.HeaderXForwardedFor, fmt.Sprintf("203.0.113.%d", i+1))
		req.Header.Set(echo.HeaderXRealIP, fmt.Sprintf("198.51.100.%d", i+1))
		rec := httptest.NewRecorder()
		s.e.ServeHTTP(rec, req)
		if rec.Code == http.StatusTooManyRequests {
			limited++
		}
	}
	assert.Equal(t, 8, limited)
}

func TestIPExtractor(t *testing.T) {
	request := func(remote, xff string) *http.Request {
		req := httptest.NewRequest(http.MethodGet, "/", nil)
		req.RemoteAddr = remote
		req.Header.Set(echo.HeaderXForwardedFor, xff)
		return req
	}

	direct, err := IPExtractor(nil)
	require.NoError(t, err)
	assert.Equal(t, "10.1.2.3", direct(request("10.1.2.3:5000", "203.0.113.7")))

	proxied, err := IPExtractor([]string{"10.0.0.0/8"})
	require.NoError(t, err)
	assert.Equal(t, "203.0.113.7", proxied(request("10.1.2.3:5000", "203.0.113.7")))
	// spoofed header from a peer outside the trusted range
	assert.Equal(t, "198.51.100.9", proxied(request("198.51.100.9:5000", "203.0.113.7")))
	// private ranges are not trusted unless listed
	assert.Equal(t, "192.168.0.5", proxied(request("192.168.0.5:5000", "203.0.113.7")))

	_, err = IPExtractor([]string{"10.0.0.1"})
	assert.Error(t, err)
}

func TestAuthAndSelfService(t *testing.T) {
	s := newTestServer(t, nil)

	rec, body := s.do(t, http.MethodPost, "/auth/register", `{"email":"me@example.com","password":"password123"}`, "")
	require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())
	token := body["token"].(string)
	user := body["user"].(map[string]interface{})
	assert.NotContains(t, user, "password")

	rec, body = s.do(t, http.MethodPost, "/auth/login", `{"email":"me@example.com","password":"wrong-pass"}`, "")
	assert.Equal(t, http.StatusUnauthorized, rec.Code)
	assert.Equal(t, service.CodeUnauthorized, body["code"])

	rec, body = s.do(t, http.MethodPost, "/api/licenses", `{"owner_email":"me@example.com","tier":"pro","duration_months":6}`, token)
	require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())
	key := body["license"].(map[string]interface{})["license_key"].(string)

	rec, _ = s.do(t, http.MethodPost, "/api/licenses", `{"owner_email":"other@example.com","tier":"pro"}`, token)
	assert.Equal(t, http.StatusForbidden, rec.Code)

	rec, body = s.do(t, http.MethodPost, "/api/licenses", `{"owner_email":"me@example.com","tier":"gold"}`, token)
	assert.Equal(t, http.StatusBadRequest, rec.Code)
	assert.Equal(t, service.CodeValidation, body["code"])

	rec, body = s.do(t, http.MethodGet, "/api/licenses", "", token)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.EqualValues(t, 1, body["count"])

	rec, body = s.do(t, http.MethodGet, "/api/licenses/"+key, "", token)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, body, "activations")
	assert.Contains(t, body, "quota")

	rec, body = s.do(t, http.MethodGet, "/api/licenses/"+key+"/usage?months=3", "", token)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.EqualValues(t, 3, body["months"])

	rec, _ = s.do(t, http.MethodGet, "/api/licenses/"+key+"/usage?months=abc", "", token)
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	stranger := s.token(t, 999, "x@example.com", model.RoleUser)
	rec, _ = s.do(t, http.MethodGet, "/api/licenses/"+key, "", stranger)
	assert.Equal(t, http.StatusNotFound, rec.Code)

	rec, _ = s.do(t, http.MethodPatch, "/api/licenses/"+key+"/status", `{"status":"suspended"}`, token)
	assert.Equal(t, http.StatusForbidden, rec.Code)
}

func TestAdminEndpoints(t *testing.T) {
	s := newTestServer(t, nil)
	l := s.license(t, model.TierPro)
	admin := s.token(t, 1, "admin@example.com", model.RoleAdmin)

	rec, _ := s.do(t, http.MethodGet, "/api/licenses", "", "")
	assert.Equal(t, http.StatusUnauthorized, rec.Code)

	rec, body := s.do(t, http.MethodPatch, "/api/licenses/"+l.Key+"/status", `{"status":"suspended"}`, admin)
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	assert.Equal(t, "suspended", body["license"].(map[string]interface{})["status"])

	rec, body = s.do(t, http.MethodPatch, "/api/licenses/"+l.Key+"/status", `{"status":"paused"}`, admin)
	assert.Equal(t, http.StatusBadRequest, rec.Code)
	assert.Equal(t, service.CodeInvalidStatus, body["code"])

	rec, _ = s.do(t, http.MethodPatch, "/api/licenses/ZZZZ-ZZZZ-ZZZZ-ZZZZ/status", `{"status":"active"}`, admin)
	assert.Equal(t, http.StatusNotFound, rec.Code)

	rec, body = s.do(t, http.MethodGet, "/api/licenses", "", admin)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.EqualValues(t, 1, body["count"])

	rec, body = s.do(t, http.MethodPost, "/api/licenses/sweep", "", admin)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.EqualValues(t, 0, body["expired"])

	user := s.token(t, 2, "u@example.com", model.RoleUser)
	rec, _ = s.do(t, http.MethodPost, "/api/licenses/sweep", "", user)
	assert.Equal(t, http.StatusForbidden, rec.Code)
}

type failingPinger struct{}

func (failingPinger) Ping(context.Context) error { return context.DeadlineExceeded }

func TestHealthCheck(t *testing.T) {
	s := newTestServer(t, nil)
	rec, body := s.do(t, http.MethodGet, "/health", "", "")
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "healthy", body["status"])

	e := echo.New()
	e.GET("/health", NewHealthHandler(failingPinger{}, "license-service").HealthCheck)
	rec = httptest.NewRecorder()
	e.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/health", nil))
	assert.Equal(t, http.StatusServiceUnavailable, rec.Code)
}

func TestErrorHandler_InternalErrorsAreGeneric(t *testing.T) {
	e := echo.New()
	Setup(e)
	e.GET("/boom", func(c echo.Context) error {
		return context.DeadlineExceeded
	})
	rec := httptest.NewRecorder()
	e.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/boom", nil))

	assert.Equal(t, http.StatusInternalServerError, rec.Code)
	var body map[string]interface{}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
	assert.Equal(t, service.CodeInternal, body["code"])
	assert.NotContains(t, body["error"], "deadline")

	rec = httptest.NewRecorder()
	e.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/missing", nil))
	assert.Equal(t, http.StatusNotFound, rec.Code)
}

func TestMetricsEndpoint(t *testing.T) {
	s := newTestServer(t, nil)
	l := s.license(t, model.TierPro)
	_, _ = s.do(t, http.MethodPost, "/api/v1/license/activate", `{"license_key":"`+l.Key+`","domain":"example.com"}`, "")

	req := httptest.NewRequest(http.MethodGet, "/metrics", nil)
	rec := httptest.NewRecorder()
	s.e.ServeHTTP(rec, req)
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), "license_activations_total")
}
