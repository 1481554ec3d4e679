package rediscache

import (
	"context"
	"testing"
	"time"

	"go.uber.org/zap"
)

func TestKey(t *testing.T) {
	if got := Key("TPS_2025"); got != "impots:constants:TPS_2025" {
		t.Errorf("unexpected key %q", got)
	}
}

func TestNewConstantsCache_DefaultTTL(t *testing.T) {
	c := NewConstantsCache(NewClient(Options{Addr: "127.0.0.1:1"}), 0, zap.NewNop())
	if c.ttl != defaultTTL {
		t.Errorf("expected default ttl, got %v", c.ttl)
	}
}

func TestConstantsCache_UnreachableServerIsAnError(t *testing.T) {
	client := NewClient(Options{Addr: "127.0.0.1:1"})
	defer client.Close()
	c := NewConstantsCache(client, time.Minute, zap.NewNop())

	ctx, cancel := context.WithTimeout(context.Background(), 3*time.Second)
	defer cancel()

	consts, hit, err := c.Get(ctx, "TPS_2025")
	if err == nil {
		t.Fatal("expected connection error")
	}
	if hit || consts != nil {
		t.Error("a failed lookup must not report a hit")
	}
	if err := NewBus(client, zap.NewNop()).Subscribe(ctx, func(string) {}); err == nil {
		t.Error("expected subscribe to fail")
	}
}
