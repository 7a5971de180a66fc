package utils

import (
	"testing"
	"time"
)

func TestPostgresPoolConfigDefaults(t *testing.T) {
	got := PostgresPoolConfig{}.withDefaults()
	if got.MaxOpenConns <= 0 || got.MaxIdleConns <= 0 {
		t.Fatalf("expected positive pool sizes, got %+v", got)
	}
	if got.MaxIdleConns > got.MaxOpenConns {
		t.Fatalf("idle conns must not exceed open conns: %+v", got)
	}
	if got.PingTimeout <= 0 {
		t.Fatalf("expected a ping timeout, got %+v", got)
	}
}

func TestPostgresPoolConfigKeepsExplicitValues(t *testing.T) {
	in := PostgresPoolConfig{
		MaxOpenConns:    3,
		MaxIdleConns:    2,
		ConnMaxLifetime: time.Minute,
		ConnMaxIdleTime: 30 * time.Second,
		PingTimeout:     time.Second,
	}
	if got := in.withDefaults(); got != in {
		t.Fatalf("explicit values must be preserved, got %+v", got)
	}
}
