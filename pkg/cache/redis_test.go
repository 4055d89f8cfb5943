package cache_test

import (
	"context"
	"testing"

	"github.com/alicebob/miniredis/v2"
	"github.com/wyfcoding/tradestream/pkg/cache"
)

func TestNewClient(t *testing.T) {
	mr := miniredis.RunT(t)

	client, cleanup, err := cache.NewClient(context.Background(), cache.Config{Addr: mr.Addr(), PoolSize: 2})
	if err != nil {
		t.Fatalf("new client: %v", err)
	}
	defer cleanup()

	if err := client.Set(context.Background(), "k", "v", 0).Err(); err != nil {
		t.Fatal(err)
	}
	if got, _ := mr.Get("k"); got != "v" {
		t.Errorf("value = %q", got)
	}
}

func TestNewClient_Unreachable(t *testing.T) {
	mr := miniredis.RunT(t)
	addr := mr.Addr()
	mr.Close()

	if _, _, err := cache.NewClient(context.Background(), cache.Config{Addr: addr}); err == nil {
		t.Error("expected ping failure")
	}
}
