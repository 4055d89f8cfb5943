package memory_test

import (
	"context"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/wyfcoding/tradestream/internal/marketdata/domain"
	"github.com/wyfcoding/tradestream/internal/marketdata/infrastructure/persistence/memory"
)

func TestSnapshotRepository(t *testing.T) {
	repo := memory.NewSnapshotRepository()
	ctx := context.Background()

	if snap, err := repo.FindBySymbol(ctx, "BTCUSDT"); err != nil || snap != nil {
		t.Fatalf("expected nil, nil; got %+v, %v", snap, err)
	}

	s := &domain.Snapshot{Symbol: "BTCUSDT", Price: decimal.NewFromInt(100), UpdatedAt: time.Now()}
	if err := repo.Upsert(ctx, s); err != nil {
		t.Fatal(err)
	}
	// 修改入参不影响已存储的快照
	s.Price = decimal.NewFromInt(1)

	got, err := repo.FindBySymbol(ctx, "BTCUSDT")
	if err != nil || got == nil || !got.Price.Equal(decimal.NewFromInt(100)) {
		t.Fatalf("got %+v, %v", got, err)
	}

	_ = repo.Upsert(ctx, &domain.Snapshot{Symbol: "BTCUSDT", Price: decimal.NewFromInt(105), UpdatedAt: time.Now()})
	if repo.Len() != 1 {
		t.Errorf("len = %d, want 1", repo.Len())
	}
}
