package utils

import (
	"context"
	"testing"
)

func TestOpenRedis_RequiresAddr(t *testing.T) {
	if _, err := OpenRedis(context.Background(), RedisConfig{}); err == nil {
		t.Fatalf("expected error for empty addr")
	}
}

func TestRedisDefaults(t *testing.T) {
	c := RedisConfig{Addr: "localhost:6379"}.withDefaults()
	if c.PoolSize != 20 {
		t.Fatalf("expected default pool size, got %d", c.PoolSize)
	}
	if c.ReadTimeout <= 0 || c.WriteTimeout <= 0 {
		t.Fatalf("expected positive timeouts")
	}
}
