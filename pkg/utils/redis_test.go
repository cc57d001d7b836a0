package utils

import (
	"context"
	"testing"
	"time"

	"github.com/redis/go-redis/v9"
)

func TestNewConcurrencyCap_Validates(t *testing.T) {
	rdb := redis.NewClient(&redis.Options{Addr: "127.0.0.1:0"})
	defer rdb.Close()

	if _, err := NewConcurrencyCap(nil, "p:", 1, time.Minute); err == nil {
		t.Fatalf("expected error for nil client")
	}
	if _, err := NewConcurrencyCap(rdb, "p:", 0, time.Minute); err == nil {
		t.Fatalf("expected error for zero limit")
	}
	if _, err := NewConcurrencyCap(rdb, "p:", 1, 0); err == nil {
		t.Fatalf("expected error for zero ttl")
	}
}

func TestConcurrencyCap_KeyAndEmptyID(t *testing.T) {
	rdb := redis.NewClient(&redis.Options{Addr: "127.0.0.1:0"})
	defer rdb.Close()

	c, err := NewConcurrencyCap(rdb, "upload:", 4, 2*time.Minute)
	if err != nil {
		t.Fatalf("new: %v", err)
	}
	if got := c.Key("10.0.0.1"); got != "upload:10.0.0.1" {
		t.Fatalf("unexpected key %q", got)
	}
	if _, err := c.Acquire(context.Background(), ""); err == nil {
		t.Fatalf("expected error for empty id")
	}
	if err := c.Release(context.Background(), ""); err == nil {
		t.Fatalf("expected error for empty id")
	}
}

func TestOpenRedis_RequiresAddr(t *testing.T) {
	if _, err := OpenRedis(context.Background(), RedisConfig{}); err == nil {
		t.Fatalf("expected error for empty addr")
	}
}
