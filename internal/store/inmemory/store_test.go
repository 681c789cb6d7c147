package inmemory

import (
	"context"
	"sync"
	"testing"

	"github.com/dvloznov/txgroup/internal/store"
	"github.com/dvloznov/txgroup/internal/store/storetest"
)

func TestStore_Contract(t *testing.T) {
	storetest.Run(t, func(t *testing.T) store.Repository {
		return NewStore()
	})
}

func TestStore_ReturnsCopies(t *testing.T) {
	s := NewStore()
	ctx := context.Background()

	b := storetest.Batch("b1", 0)
	if err := s.CreateBatch(ctx, b); err != nil {
		t.Fatalf("CreateBatch() error: %v", err)
	}
	b.Headers[0] = "changed"

	got, err := s.GetBatch(ctx, "b1")
	if err != nil {
		t.Fatalf("GetBatch() error: %v", err)
	}
	if got.Headers[0] != "Date" {
		t.Error("store kept a reference to the caller's batch")
	}
	got.Headers[1] = "changed"

	again, _ := s.GetBatch(ctx, "b1")
	if again.Headers[1] != "Amount" {
		t.Error("GetBatch returned a reference to stored state")
	}
}

func TestStore_ConcurrentAccess(t *testing.T) {
	s := NewStore()
	ctx := context.Background()
	if err := s.CreateBatch(ctx, storetest.Batch("b1", 0)); err != nil {
		t.Fatalf("CreateBatch() error: %v", err)
	}

	var wg sync.WaitGroup
	for i := 0; i < 10; i++ {
		wg.Add(2)
		go func() {
			defer wg.Done()
			_, _ = s.ListRecords(ctx, "b1")
		}()
		go func() {
			defer wg.Done()
			_, _ = s.FindCategorized(ctx, "x", 5)
		}()
	}
	wg.Wait()
}
