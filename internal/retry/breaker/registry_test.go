package breaker

import (
	"sync"
	"testing"
	"time"

	"github.com/vietddude/bulwark/internal/core/domain"
)

// ===== Tripping =====

func TestRegistry_TripsAtThreshold(t *testing.T) {
	r := NewRegistry(3)

	r.RecordFailure("example.com")
	r.RecordFailure("example.com")
	if got := r.State("example.com").State; got != domain.BreakerClosed {
		t.Fatalf("state after 2 failures = %s, want closed", got)
	}

	r.RecordFailure("example.com")
	snap := r.State("example.com")
	if snap.State != domain.BreakerOpen {
		t.Fatalf("state after 3 failures = %s, want open", snap.State)
	}
	if snap.NextAttemptTime.IsZero() {
		t.Error("open circuit has no next attempt time")
	}
	if r.TripCount() != 1 {
		t.Errorf("trip count = %d, want 1", r.TripCount())
	}

	allowed, _ := r.Allow("example.com")
	if allowed {
		t.Error("open circuit admitted an invocation inside cooldown")
	}
}

func TestRegistry_DestinationsAreIndependent(t *testing.T) {
	r := NewRegistry(2)

	r.RecordFailure("a.example")
	r.RecordFailure("a.example")

	if got := r.State("a.example").State; got != domain.BreakerOpen {
		t.Fatalf("a.example = %s, want open", got)
	}
	if allowed, _ := r.Allow("b.example"); !allowed {
		t.Error("untouched destination was not admitted")
	}
}

// ===== Cooldown And Recovery =====

func TestRegistry_CooldownAdmitsHalfOpenProbe(t *testing.T) {
	r := NewRegistry(2)
	r.Cooldown = 20 * time.Millisecond

	r.RecordFailure("example.com")
	r.RecordFailure("example.com")
	if allowed, _ := r.Allow("example.com"); allowed {
		t.Fatal("open circuit admitted before cooldown")
	}

	time.Sleep(30 * time.Millisecond)

	allowed, snap := r.Allow("example.com")
	if !allowed {
		t.Fatal("circuit did not admit after cooldown")
	}
	if snap.State != domain.BreakerHalfOpen {
		t.Errorf("state = %s, want half_open", snap.State)
	}
}

func TestRegistry_SuccessesCloseHalfOpenCircuit(t *testing.T) {
	r := NewRegistry(2)
	r.Cooldown = time.Millisecond

	r.RecordFailure("example.com")
	r.RecordFailure("example.com")
	time.Sleep(5 * time.Millisecond)
	if allowed, _ := r.Allow("example.com"); !allowed {
		t.Fatal("probe not admitted")
	}

	// Two failures are on the books; each success decays one.
	r.RecordSuccess("example.com")
	if got := r.State("example.com").State; got != domain.BreakerHalfOpen {
		t.Fatalf("state after first success = %s, want half_open", got)
	}
	r.RecordSuccess("example.com")
	snap := r.State("example.com")
	if snap.State != domain.BreakerClosed {
		t.Fatalf("state after failures decayed = %s, want closed", snap.State)
	}
	if !snap.NextAttemptTime.IsZero() {
		t.Error("closed circuit kept a next attempt time")
	}
	if snap.SuccessCount != 2 {
		t.Errorf("success count = %d, want 2", snap.SuccessCount)
	}
}

func TestRegistry_HalfOpenAbsorbsFailures(t *testing.T) {
	r := NewRegistry(2)
	r.Cooldown = time.Millisecond

	r.RecordFailure("example.com")
	r.RecordFailure("example.com")
	time.Sleep(5 * time.Millisecond)
	r.Allow("example.com")

	// Failures past the threshold do not reopen a half_open circuit;
	// only a closed circuit trips.
	for i := 0; i < 5; i++ {
		r.RecordFailure("example.com")
	}
	if got := r.State("example.com").State; got != domain.BreakerHalfOpen {
		t.Errorf("state = %s, want half_open", got)
	}
	if r.TripCount() != 1 {
		t.Errorf("trip count = %d, want 1", r.TripCount())
	}

	if allowed, _ := r.Allow("example.com"); !allowed {
		t.Error("half_open circuit stopped admitting")
	}
}

func TestRegistry_FailureCountFloorsAtZero(t *testing.T) {
	r := NewRegistry(3)

	r.RecordSuccess("example.com")
	r.RecordSuccess("example.com")

	snap := r.State("example.com")
	if snap.FailureCount != 0 {
		t.Errorf("failure count = %d, want 0", snap.FailureCount)
	}
	if snap.SuccessCount != 2 {
		t.Errorf("success count = %d, want 2", snap.SuccessCount)
	}
}

// ===== Observers And Reset =====

func TestRegistry_StateChangeCallback(t *testing.T) {
	r := NewRegistry(1)

	var mu sync.Mutex
	var transitions [][2]domain.BreakerState
	r.SetStateChangeCallback(func(key string, from, to domain.BreakerState) {
		mu.Lock()
		transitions = append(transitions, [2]domain.BreakerState{from, to})
		mu.Unlock()
	})

	r.RecordFailure("example.com")
	r.RecordSuccess("example.com")

	mu.Lock()
	defer mu.Unlock()
	if len(transitions) != 2 {
		t.Fatalf("transitions = %d, want 2", len(transitions))
	}
	if transitions[0] != [2]domain.BreakerState{domain.BreakerClosed, domain.BreakerOpen} {
		t.Errorf("first transition = %v, want closed->open", transitions[0])
	}
	if transitions[1] != [2]domain.BreakerState{domain.BreakerOpen, domain.BreakerClosed} {
		t.Errorf("second transition = %v, want open->closed", transitions[1])
	}
}

func TestRegistry_Reset(t *testing.T) {
	r := NewRegistry(1)
	r.RecordFailure("example.com")

	r.Reset()

	if r.TripCount() != 0 {
		t.Errorf("trip count after reset = %d, want 0", r.TripCount())
	}
	if got := r.State("example.com").State; got != domain.BreakerClosed {
		t.Errorf("state after reset = %s, want closed", got)
	}
	if allowed, _ := r.Allow("example.com"); !allowed {
		t.Error("reset circuit did not admit")
	}
}

// ===== Concurrency =====

func TestRegistry_ConcurrentFailuresTripOnce(t *testing.T) {
	r := NewRegistry(50)

	var wg sync.WaitGroup
	for i := 0; i < 100; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			r.RecordFailure("example.com")
		}()
	}
	wg.Wait()

	snap := r.State("example.com")
	if snap.FailureCount != 100 {
		t.Errorf("failure count = %d, want 100", snap.FailureCount)
	}
	if snap.State != domain.BreakerOpen {
		t.Errorf("state = %s, want open", snap.State)
	}
	if r.TripCount() != 1 {
		t.Errorf("trip count = %d, want 1", r.TripCount())
	}
}

func TestRegistry_ConcurrentMixedTraffic(t *testing.T) {
	r := NewRegistry(1000)

	var wg sync.WaitGroup
	for i := 0; i < 50; i++ {
		wg.Add(2)
		go func() {
			defer wg.Done()
			r.RecordFailure("example.com")
		}()
		go func() {
			defer wg.Done()
			r.Allow("example.com")
			r.RecordSuccess("example.com")
		}()
	}
	wg.Wait()

	snap := r.State("example.com")
	if snap.SuccessCount != 50 {
		t.Errorf("success count = %d, want 50", snap.SuccessCount)
	}
	if snap.FailureCount < 0 {
		t.Errorf("failure count went negative: %d", snap.FailureCount)
	}
}
