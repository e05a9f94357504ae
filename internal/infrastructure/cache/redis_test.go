package cache

import (
	"context"
	"testing"
	"time"

	"approval-engine/internal/config"

	"github.com/alicebob/miniredis/v2"
)

func TestOpen(t *testing.T) {
	s := miniredis.RunT(t)

	c, err := Open(context.Background(), Options{Addr: s.Addr(), DB: 2})
	if err != nil {
		t.Fatalf("Open: %v", err)
	}
	t.Cleanup(func() { _ = c.Close() })

	if got := c.Options().DB; got != 2 {
		t.Fatalf("client DB = %d, want 2", got)
	}
	ctx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()
	if err := c.Set(ctx, "k", "v", 0).Err(); err != nil {
		t.Fatalf("SET: %v", err)
	}
	if v, err := c.Get(ctx, "k").Result(); err != nil || v != "v" {
		t.Fatalf("GET = %q, %v", v, err)
	}
}

func TestOpen_Password(t *testing.T) {
	s := miniredis.RunT(t)
	s.RequireAuth("s3cret")

	if _, err := Open(context.Background(), Options{Addr: s.Addr()}); err == nil {
		t.Fatal("expected auth failure without password")
	}
	c, err := Open(context.Background(), Options{Addr: s.Addr(), Password: "s3cret"})
	if err != nil {
		t.Fatalf("Open with password: %v", err)
	}
	_ = c.Close()
}

func TestOpen_Unreachable(t *testing.T) {
	if _, err := Open(context.Background(), Options{Addr: "not-a-real-host:6379"}); err == nil {
		t.Fatal("expected error, got nil")
	}
}

func TestFromConfig(t *testing.T) {
	s := miniredis.RunT(t)

	c, err := FromConfig(&config.Config{RedisAddr: s.Addr(), RedisDB: 1})
	if err != nil {
		t.Fatalf("FromConfig: %v", err)
	}
	t.Cleanup(func() { _ = c.Close() })
	if got := c.Options().DB; got != 1 {
		t.Fatalf("client DB = %d, want 1", got)
	}
}
