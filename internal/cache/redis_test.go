package cache

import (
	"context"
	"errors"
	"testing"

	"github.com/adsboard-next/internal/config"
)

func TestPingReportsDisabled(t *testing.T) {
	if err := InitRedis(&config.RedisConfig{Enabled: false}); err != nil {
		t.Fatalf("disabled init should not fail: %v", err)
	}
	if err := Ping(context.Background()); !errors.Is(err, ErrDisabled) {
		t.Fatalf("want ErrDisabled got %v", err)
	}
}

func TestPingAndKeyPrefix(t *testing.T) {
	mr := setupMiniredis(t)
	if err := Ping(context.Background()); err != nil {
		t.Fatalf("ping failed: %v", err)
	}
	if err := SetJSON(context.Background(), " sample ", map[string]int{"n": 1}, 0); err != nil {
		t.Fatalf("set failed: %v", err)
	}
	if !mr.Exists("test:sample") {
		t.Fatalf("key should be trimmed and prefixed, keys=%v", mr.Keys())
	}
	if buildKey("") != "test" {
		t.Fatalf("empty key should map to prefix, got %s", buildKey(""))
	}
}
