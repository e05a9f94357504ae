package middleware

import (
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"approval-engine/internal/usecase/approval"

	"github.com/labstack/echo/v4"
)

var secret = []byte("test-secret")

func authEcho(cfg AuthConfig, mws ...echo.MiddlewareFunc) *echo.Echo {
	e := echo.New()
	e.HideBanner = true
	mws = append([]echo.MiddlewareFunc{Auth(cfg)}, mws...)
	e.GET("/me", func(c echo.Context) error {
		a, _ := ActorFrom(c)
		return c.JSON(http.StatusOK, map[string]any{"id": a.ID, "perms": strings.Join(a.Permissions, ",")})
	}, mws...)
	return e
}

func get(e *echo.Echo, hdr map[string]string) *httptest.ResponseRecorder {
	req := httptest.NewRequest(http.MethodGet, "/me", nil)
	for k, v := range hdr {
		req.Header.Set(k, v)
	}
	rec := httptest.NewRecorder()
	e.ServeHTTP(rec, req)
	return rec
}

func TestAuth_Bearer(t *testing.T) {
	e := authEcho(AuthConfig{Secret: secret})

	token, err := IssueToken(secret, "u-mgr", []string{approval.PermAdmin}, time.Hour)
	if err != nil {
		t.Fatalf("IssueToken: %v", err)
	}
	rec := get(e, map[string]string{echo.HeaderAuthorization: "Bearer " + token})
	if rec.Code != http.StatusOK {
		t.Fatalf("want 200, got %d: %s", rec.Code, rec.Body.String())
	}
	if !strings.Contains(rec.Body.String(), `"id":"u-mgr"`) || !strings.Contains(rec.Body.String(), approval.PermAdmin) {
		t.Fatalf("actor not propagated: %s", rec.Body.String())
	}
}

func TestAuth_Rejects(t *testing.T) {
	e := authEcho(AuthConfig{Secret: secret})

	expired, _ := IssueToken(secret, "u-mgr", nil, -time.Minute)
	forged, _ := IssueToken([]byte("other"), "u-mgr", nil, time.Hour)

	for name, hdr := range map[string]map[string]string{
		"no header":    nil,
		"not bearer":   {echo.HeaderAuthorization: "Basic abc"},
		"garbage":      {echo.HeaderAuthorization: "Bearer abc.def.ghi"},
		"expired":      {echo.HeaderAuthorization: "Bearer " + expired},
		"wrong secret": {echo.HeaderAuthorization: "Bearer " + forged},
		"skip headers": {HeaderActorID: "u-mgr"},
	} {
		if rec := get(e, hdr); rec.Code != http.StatusUnauthorized {
			t.Errorf("%s: want 401, got %d", name, rec.Code)
		}
	}
}

func TestAuth_SkipAuthHeaders(t *testing.T) {
	e := authEcho(AuthConfig{SkipAuth: true})

	rec := get(e, map[string]string{HeaderActorID: "u-req", HeaderActorPermissions: "a, b"})
	if rec.Code != http.StatusOK || !strings.Contains(rec.Body.String(), `"perms":"a,b"`) {
		t.Fatalf("unexpected: %d %s", rec.Code, rec.Body.String())
	}
	if rec := get(e, nil); rec.Code != http.StatusUnauthorized {
		t.Fatalf("missing actor => want 401, got %d", rec.Code)
	}
}

func TestRequirePermission(t *testing.T) {
	e := authEcho(AuthConfig{SkipAuth: true}, RequirePermission(approval.PermAdmin))

	if rec := get(e, map[string]string{HeaderActorID: "u-req"}); rec.Code != http.StatusForbidden {
		t.Fatalf("no permission => want 403, got %d", rec.Code)
	}
	if rec := get(e, map[string]string{HeaderActorID: "u-adm", HeaderActorPermissions: approval.PermAdmin}); rec.Code != http.StatusOK {
		t.Fatalf("admin => want 200, got %d", rec.Code)
	}
	if rec := get(e, map[string]string{HeaderActorID: "u-root", HeaderActorPermissions: "*"}); rec.Code != http.StatusOK {
		t.Fatalf("wildcard => want 200, got %d", rec.Code)
	}
}
