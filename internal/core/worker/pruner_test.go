package worker

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"
)

type fakePruneStore struct {
	mu     sync.Mutex
	calls  int
	pruned int64
	err    error
}

func (f *fakePruneStore) PruneOlderThan(ctx context.Context, age time.Duration) (int64, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls++
	return f.pruned, f.err
}

func (f *fakePruneStore) callCount() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.calls
}

func TestPruner_InitialPrune(t *testing.T) {
	store := &fakePruneStore{pruned: 12}
	p := NewPruner(24*time.Hour, store)

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	go func() {
		p.Start(ctx)
		close(done)
	}()

	deadline := time.After(2 * time.Second)
	for store.callCount() == 0 {
		select {
		case <-deadline:
			t.Fatal("pruner never ran initial prune")
		case <-time.After(2 * time.Millisecond):
		}
	}

	cancel()
	select {
	case <-done:
	case <-time.After(2 * time.Second):
		t.Fatal("pruner did not stop after cancel")
	}
}

func TestPruner_DisabledWhenRetentionZero(t *testing.T) {
	store := &fakePruneStore{}
	p := NewPruner(0, store)

	// Must return immediately without touching the store.
	p.Start(context.Background())

	if got := store.callCount(); got != 0 {
		t.Fatalf("expected no prune calls, got %d", got)
	}
}

func TestPruner_SurvivesStoreError(t *testing.T) {
	store := &fakePruneStore{err: errors.New("connection refused")}
	p := NewPruner(time.Hour, store)

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	go func() {
		p.Start(ctx)
		close(done)
	}()

	deadline := time.After(2 * time.Second)
	for store.callCount() == 0 {
		select {
		case <-deadline:
			t.Fatal("pruner never attempted a prune")
		case <-time.After(2 * time.Millisecond):
		}
	}

	cancel()
	select {
	case <-done:
	case <-time.After(2 * time.Second):
		t.Fatal("pruner did not stop after store error")
	}
}
