package middleware

import (
	"bytes"
	"context"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/labstack/echo/v4"
	"github.com/redis/go-redis/v9"
)

const route = "/approvals/:id/approve"

func setupEcho(rdb *redis.Client, ttl time.Duration, handler echo.HandlerFunc) *echo.Echo {
	e := echo.New()
	e.HideBanner = true
	e.Use(Auth(AuthConfig{SkipAuth: true}), Idempotency(rdb, ttl, nil))
	e.POST(route, handler)
	e.GET(route, handler)
	return e
}

func doReq(e *echo.Echo, method, body string, hdr map[string]string) *httptest.ResponseRecorder {
	req := httptest.NewRequest(method, "/approvals/abc/approve", strings.NewReader(body))
	req.Header.Set(echo.HeaderContentType, echo.MIMEApplicationJSON)
	for k, v := range hdr {
		req.Header.Set(k, v)
	}
	rec := httptest.NewRecorder()
	e.ServeHTTP(rec, req)
	return rec
}

func headers(actor string) map[string]string {
	return map[string]string{
		HeaderRequestID: strings.Repeat("a", 32),
		HeaderRequestAt: time.Now().UTC().Format(time.RFC3339),
		HeaderActorID:   actor,
	}
}

func approved(c echo.Context) error {
	return c.JSON(http.StatusOK, map[string]any{"status": "approved"})
}

func Test_BypassOnGET(t *testing.T) {
	_, rdb := newMiniRedis(t)
	e := setupEcho(rdb, 30*time.Second, approved)
	rec := doReq(e, http.MethodGet, "", map[string]string{HeaderActorID: "u-mgr"})
	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", rec.Code)
	}
}

func Test_HeaderValidation(t *testing.T) {
	_, rdb := newMiniRedis(t)
	e := setupEcho(rdb, 30*time.Second, approved)

	tests := []struct {
		name   string
		mutate func(h map[string]string)
		code   int
	}{
		{"missing request id", func(h map[string]string) { delete(h, HeaderRequestID) }, http.StatusBadRequest},
		{"invalid request id", func(h map[string]string) { h[HeaderRequestID] = "NOT-VALID" }, http.StatusBadRequest},
		{"invalid request at", func(h map[string]string) { h[HeaderRequestAt] = "not-a-time" }, http.StatusBadRequest},
		{"request at too old", func(h map[string]string) {
			h[HeaderRequestAt] = time.Now().UTC().Add(-maxClockSkew - time.Minute).Format(time.RFC3339)
		}, http.StatusBadRequest},
		{"request at in the future", func(h map[string]string) {
			h[HeaderRequestAt] = time.Now().UTC().Add(maxClockSkew + time.Minute).Format(time.RFC3339)
		}, http.StatusBadRequest},
		{"missing actor", func(h map[string]string) { delete(h, HeaderActorID) }, http.StatusUnauthorized},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			h := headers("u-mgr")
			tt.mutate(h)
			if rec := doReq(e, http.MethodPost, `{}`, h); rec.Code != tt.code {
				t.Fatalf("want %d, got %d body=%s", tt.code, rec.Code, rec.Body.String())
			}
		})
	}
}

func Test_FirstResponseIsReplayed(t *testing.T) {
	_, rdb := newMiniRedis(t)
	calls := 0
	e := setupEcho(rdb, 2*time.Minute, func(c echo.Context) error {
		calls++
		return approved(c)
	})

	rec1 := doReq(e, http.MethodPost, `{"comments":"ok"}`, headers("u-mgr"))
	if rec1.Code != http.StatusOK {
		t.Fatalf("first request: %d %s", rec1.Code, rec1.Body.String())
	}
	if rec1.Header().Get(HeaderReplayed) != "" {
		t.Fatalf("first response must not be marked replayed")
	}

	rec2 := doReq(e, http.MethodPost, `{"comments":"ok"}`, headers("u-mgr"))
	if rec2.Code != http.StatusOK || rec2.Body.String() != rec1.Body.String() {
		t.Fatalf("replay mismatch: %d %q vs %q", rec2.Code, rec2.Body.String(), rec1.Body.String())
	}
	if rec2.Header().Get(HeaderReplayed) != "true" {
		t.Fatalf("replay header missing")
	}
	if !strings.HasPrefix(rec2.Header().Get(echo.HeaderContentType), echo.MIMEApplicationJSON) {
		t.Fatalf("replay content type = %q", rec2.Header().Get(echo.HeaderContentType))
	}
	if calls != 1 {
		t.Fatalf("handler calls = %d, want 1", calls)
	}
}

func Test_ValidationErrorsAreReplayed(t *testing.T) {
	_, rdb := newMiniRedis(t)
	calls := 0
	e := setupEcho(rdb, 2*time.Minute, func(c echo.Context) error {
		calls++
		return c.JSON(http.StatusUnprocessableEntity, map[string]string{"error": "rejection_reason is required"})
	})
	for i := 0; i < 2; i++ {
		if rec := doReq(e, http.MethodPost, `{}`, headers("u-mgr")); rec.Code != http.StatusUnprocessableEntity {
			t.Fatalf("call %d: %d", i, rec.Code)
		}
	}
	if calls != 1 {
		t.Fatalf("handler calls = %d, want 1", calls)
	}
}

func Test_RetryableOutcomesAreNotRemembered(t *testing.T) {
	for _, status := range []int{http.StatusConflict, http.StatusServiceUnavailable} {
		t.Run(http.StatusText(status), func(t *testing.T) {
			mr, rdb := newMiniRedis(t)
			calls := 0
			e := setupEcho(rdb, 2*time.Minute, func(c echo.Context) error {
				calls++
				if calls == 1 {
					return c.JSON(status, map[string]string{"error": "please retry"})
				}
				return approved(c)
			})

			if rec := doReq(e, http.MethodPost, `{}`, headers("u-mgr")); rec.Code != status {
				t.Fatalf("first call: %d", rec.Code)
			}
			if keys := mr.Keys(); len(keys) != 0 {
				t.Fatalf("retryable outcome left keys %v", keys)
			}
			if rec := doReq(e, http.MethodPost, `{}`, headers("u-mgr")); rec.Code != http.StatusOK {
				t.Fatalf("retry: %d", rec.Code)
			}
			if calls != 2 {
				t.Fatalf("handler calls = %d, want 2", calls)
			}
		})
	}
}

func Test_Conflict_WhenInProgress(t *testing.T) {
	_, rdb := newMiniRedis(t)
	e := setupEcho(rdb, 2*time.Minute, approved)

	body := `{"x":1}`
	store := replayStore{rdb: rdb, ttl: time.Minute}
	key := replayKey(http.MethodPost, route, "u-mgr", strings.Repeat("a", 32))
	if ok, err := store.reserve(context.Background(), key, storedResponse{Fingerprint: fingerprint([]byte(body))}); err != nil || !ok {
		t.Fatalf("seed pending: ok=%v err=%v", ok, err)
	}

	rec := doReq(e, http.MethodPost, body, headers("u-mgr"))
	if rec.Code != http.StatusConflict || !strings.Contains(rec.Body.String(), "in progress") {
		t.Fatalf("in-progress => want 409, got %d body=%s", rec.Code, rec.Body.String())
	}
}

func Test_Conflict_WhenBodyDiffers(t *testing.T) {
	_, rdb := newMiniRedis(t)
	e := setupEcho(rdb, 2*time.Minute, approved)

	store := replayStore{rdb: rdb, ttl: time.Minute}
	key := replayKey(http.MethodPost, route, "u-mgr", strings.Repeat("a", 32))
	err := store.commit(context.Background(), key, storedResponse{
		Status:      http.StatusOK,
		Body:        []byte(`{"status":"approved"}`),
		Fingerprint: fingerprint([]byte(`{"x":1}`)),
	})
	if err != nil {
		t.Fatalf("seed final: %v", err)
	}

	rec := doReq(e, http.MethodPost, `{"x":2}`, headers("u-mgr"))
	if rec.Code != http.StatusConflict || !strings.Contains(rec.Body.String(), "different body") {
		t.Fatalf("different body => want 409, got %d body=%s", rec.Code, rec.Body.String())
	}
}

func Test_StoreUnavailable(t *testing.T) {
	rdb := redis.NewClient(&redis.Options{Addr: "127.0.0.1:1"})
	e := setupEcho(rdb, time.Minute, approved)

	rec := doReq(e, http.MethodPost, `{}`, headers("u-mgr"))
	if rec.Code != http.StatusServiceUnavailable {
		t.Fatalf("store unavailable => want 503, got %d", rec.Code)
	}
}

func Test_SameRequestID_DifferentActors(t *testing.T) {
	_, rdb := newMiniRedis(t)
	calls := 0
	e := setupEcho(rdb, 2*time.Minute, func(c echo.Context) error {
		calls++
		a, _ := ActorFrom(c)
		return c.JSON(http.StatusOK, map[string]string{"actor": a.ID})
	})

	for _, actor := range []string{"u-one", "u-two"} {
		rec := doReq(e, http.MethodPost, `{}`, headers(actor))
		if rec.Code != http.StatusOK || !strings.Contains(rec.Body.String(), actor) {
			t.Fatalf("%s => %d %s", actor, rec.Code, rec.Body.String())
		}
	}
	if calls != 2 {
		t.Fatalf("handler calls = %d, want 2", calls)
	}
}

func Test_BodyIsRestoredForHandler(t *testing.T) {
	_, rdb := newMiniRedis(t)
	e := setupEcho(rdb, time.Minute, func(c echo.Context) error {
		var buf bytes.Buffer
		_, _ = buf.ReadFrom(c.Request().Body)
		return c.String(http.StatusOK, buf.String())
	})
	rec := doReq(e, http.MethodPost, `{"comments":"hi"}`, headers("u-mgr"))
	if rec.Body.String() != `{"comments":"hi"}` {
		t.Fatalf("handler saw %q", rec.Body.String())
	}
}
