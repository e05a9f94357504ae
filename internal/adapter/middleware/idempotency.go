package middleware

import (
	"bytes"
	"context"
	"io"
	"net/http"
	"time"

	"github.com/labstack/echo/v4"
	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"
)

const (
	HeaderRequestID = "X-Request-Id"
	HeaderRequestAt = "X-Request-At"
	// HeaderReplayed marks a response served from the replay store.
	HeaderReplayed = "Idempotent-Replayed"

	maxClockSkew = 10 * time.Minute
	storeTimeout = 2 * time.Second
)

// captureWriter tees the handler's response so it can be stored.
type captureWriter struct {
	http.ResponseWriter
	buf    bytes.Buffer
	status int
}

func (w *captureWriter) Write(b []byte) (int, error) {
	w.buf.Write(b)
	return w.ResponseWriter.Write(b)
}

func (w *captureWriter) WriteHeader(status int) {
	w.status = status
	w.ResponseWriter.WriteHeader(status)
}

// Idempotency makes approval writes safe to retry. A request carries
// X-Request-Id (UUID or 32 hex chars) and X-Request-At; the first response
// for (route, actor, request id) is stored for ttl and replayed verbatim.
// Reusing an id with a different body is a 409. Auth must run first.
func Idempotency(rdb *redis.Client, ttl time.Duration, log *zap.Logger) echo.MiddlewareFunc {
	if log == nil {
		log = zap.NewNop()
	}
	store := replayStore{rdb: rdb, ttl: ttl}
	return func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(c echo.Context) error {
			req := c.Request()
			switch req.Method {
			case http.MethodGet, http.MethodHead, http.MethodOptions:
				return next(c)
			}

			raw := req.Header.Get(HeaderRequestID)
			if raw == "" {
				return c.JSON(http.StatusBadRequest, map[string]string{"error": "missing " + HeaderRequestID})
			}
			reqID, ok := normalizeRequestID(raw)
			if !ok {
				return c.JSON(http.StatusBadRequest, map[string]string{"error": "invalid " + HeaderRequestID + " format"})
			}
			reqAt, err := parseRequestAt(req.Header.Get(HeaderRequestAt))
			if err != nil {
				return c.JSON(http.StatusBadRequest, map[string]string{"error": err.Error()})
			}
			now := time.Now().UTC()
			if reqAt.Before(now.Add(-maxClockSkew)) || reqAt.After(now.Add(maxClockSkew)) {
				return c.JSON(http.StatusBadRequest, map[string]string{"error": HeaderRequestAt + " too skewed"})
			}

			actor, ok := ActorFrom(c)
			if !ok || actor.ID == "" {
				return c.JSON(http.StatusUnauthorized, map[string]string{"error": "missing actor"})
			}

			var body []byte
			if req.Body != nil {
				body, _ = io.ReadAll(req.Body)
			}
			req.Body = io.NopCloser(bytes.NewReader(body))

			key := replayKey(req.Method, c.Path(), actor.ID, reqID)
			entry := storedResponse{
				Fingerprint: fingerprint(body),
				RequestAtMS: reqAt.UnixMilli(),
				StoredAt:    now,
			}

			ctx, cancel := context.WithTimeout(req.Context(), storeTimeout)
			defer cancel()
			claimed, err := store.reserve(ctx, key, entry)
			if err != nil {
				log.Warn("idempotency store unavailable", zap.Error(err))
				return c.JSON(http.StatusServiceUnavailable, map[string]string{"error": "idempotency store unavailable"})
			}
			if !claimed {
				return replay(c, store, key, entry.Fingerprint, log)
			}

			w := &captureWriter{ResponseWriter: c.Response().Writer, status: http.StatusOK}
			c.Response().Writer = w
			if err := next(c); err != nil {
				c.Error(err)
			}

			// the request context may already be cancelled here
			bg, cancelBg := context.WithTimeout(context.Background(), storeTimeout)
			defer cancelBg()
			if retryable(w.status) {
				if err := store.release(bg, key); err != nil {
					log.Warn("idempotency key not released", zap.String("key", key), zap.Error(err))
				}
				return nil
			}
			entry.Status = w.status
			entry.ContentType = w.Header().Get(echo.HeaderContentType)
			entry.Body = w.buf.Bytes()
			entry.StoredAt = time.Now().UTC()
			if err := store.commit(bg, key, entry); err != nil {
				log.Warn("idempotency entry not saved", zap.String("key", key), zap.Error(err))
			}
			return nil
		}
	}
}

func replay(c echo.Context, store replayStore, key, fp string, log *zap.Logger) error {
	ctx, cancel := context.WithTimeout(c.Request().Context(), storeTimeout)
	defer cancel()
	cur, err := store.load(ctx, key)
	if err != nil {
		log.Warn("idempotency entry unreadable", zap.String("key", key), zap.Error(err))
		return c.JSON(http.StatusConflict, map[string]string{"error": "request is already in progress"})
	}
	if cur.Fingerprint != fp {
		return c.JSON(http.StatusConflict, map[string]string{"error": HeaderRequestID + " reused with different body"})
	}
	if cur.Pending || cur.Status == 0 {
		return c.JSON(http.StatusConflict, map[string]string{"error": "request is already in progress"})
	}
	ct := cur.ContentType
	if ct == "" {
		ct = echo.MIMEApplicationJSON
	}
	c.Response().Header().Set(HeaderReplayed, "true")
	return c.Blob(cur.Status, ct, cur.Body)
}
