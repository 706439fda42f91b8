package queue_test

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"shipflow/internal/queue"
	"shipflow/internal/testsupport"
)

func newQueue(t *testing.T, name string, maxAttempts int) (*queue.Queue, *testsupport.Clock) {
	t.Helper()
	cfg := testsupport.NewConfig(t)
	db := testsupport.MustOpenDB(t, cfg)
	clock := testsupport.NewClock()
	policy := queue.BackoffPolicy{Base: time.Second, Max: time.Minute, Factor: 2, MaxAttempts: maxAttempts}
	return queue.New(db, name, policy, queue.WithClock(clock.Now)), clock
}

func TestEnqueueIfAbsentDedupesPerReason(t *testing.T) {
	q, _ := newQueue(t, queue.NameEvents, 3)
	ctx := context.Background()

	inserted, err := q.EnqueueIfAbsent(ctx, "shp_1", "packaging", nil)
	if err != nil || !inserted {
		t.Fatalf("first enqueue: inserted=%v err=%v", inserted, err)
	}
	inserted, err = q.EnqueueIfAbsent(ctx, "shp_1", "packaging", []byte(`{"again":true}`))
	if err != nil || inserted {
		t.Fatalf("second enqueue should be a no-op: inserted=%v err=%v", inserted, err)
	}
	inserted, err = q.EnqueueIfAbsent(ctx, "shp_1", "shipment_sync", nil)
	if err != nil || !inserted {
		t.Fatalf("different reason must coexist: inserted=%v err=%v", inserted, err)
	}

	stats, err := q.Stats(ctx)
	if err != nil {
		t.Fatalf("Stats: %v", err)
	}
	if stats.Pending != 2 {
		t.Fatalf("expected 2 pending entries, got %+v", stats)
	}
}

func TestEnqueueIsScopedByQueueName(t *testing.T) {
	cfg := testsupport.NewConfig(t)
	db := testsupport.MustOpenDB(t, cfg)
	events := queue.New(db, queue.NameEvents, queue.BackoffPolicy{MaxAttempts: 1})
	writes := queue.New(db, queue.NameExternalWrite, queue.BackoffPolicy{MaxAttempts: 1})
	ctx := context.Background()

	if ok, err := events.EnqueueIfAbsent(ctx, "shp_1", "x", nil); err != nil || !ok {
		t.Fatalf("events enqueue: %v %v", ok, err)
	}
	if ok, err := writes.EnqueueIfAbsent(ctx, "shp_1", "x", nil); err != nil || !ok {
		t.Fatalf("external_write enqueue: %v %v", ok, err)
	}
	if _, err := events.EnqueueIfAbsent(ctx, "shp_1", "x", []byte("{not json")); err == nil {
		t.Fatal("expected invalid payload error")
	}
}

func TestLeaseAckRemovesEntry(t *testing.T) {
	q, _ := newQueue(t, queue.NameEvents, 3)
	ctx := context.Background()
	if _, err := q.EnqueueIfAbsent(ctx, "shp_1", "packaging", nil); err != nil {
		t.Fatalf("enqueue: %v", err)
	}

	leased, err := q.Lease(ctx, "worker-a", 10, time.Minute)
	if err != nil {
		t.Fatalf("Lease: %v", err)
	}
	if len(leased) != 1 || leased[0].State != queue.StateLeased || leased[0].LeaseOwner != "worker-a" {
		t.Fatalf("unexpected lease %+v", leased)
	}
	if leased[0].Key() != "shp_1:packaging" {
		t.Fatalf("unexpected key %q", leased[0].Key())
	}

	if again, _ := q.Lease(ctx, "worker-b", 10, time.Minute); len(again) != 0 {
		t.Fatalf("leased entry must not be leased twice, got %+v", again)
	}
	if err := q.Ack(ctx, leased[0].ID, "worker-b"); !errors.Is(err, queue.ErrLeaseLost) {
		t.Fatalf("ack by non-owner should fail with lease lost, got %v", err)
	}
	if err := q.Ack(ctx, leased[0].ID, "worker-a"); err != nil {
		t.Fatalf("Ack: %v", err)
	}
	if _, err := q.Get(ctx, leased[0].ID); !errors.Is(err, queue.ErrEntryNotFound) {
		t.Fatalf("expected entry gone, got %v", err)
	}
}

func TestRetryExhaustsIntoDeadLetter(t *testing.T) {
	q, clock := newQueue(t, queue.NameEvents, 3)
	ctx := context.Background()
	if _, err := q.EnqueueIfAbsent(ctx, "shp_1", "rate_check", nil); err != nil {
		t.Fatalf("enqueue: %v", err)
	}

	for attempt := 1; attempt <= 3; attempt++ {
		leased, err := q.Lease(ctx, "w", 1, time.Minute)
		if err != nil || len(leased) != 1 {
			t.Fatalf("attempt %d: lease=%v err=%v", attempt, leased, err)
		}
		entry, err := q.Retry(ctx, leased[0].ID, "w", errors.New("rates unavailable"))
		if err != nil {
			t.Fatalf("attempt %d: Retry: %v", attempt, err)
		}
		if entry.Attempts != attempt {
			t.Fatalf("attempts = %d, want %d", entry.Attempts, attempt)
		}
		if attempt < 3 {
			if entry.State != queue.StatePending {
				t.Fatalf("attempt %d: expected pending, got %s", attempt, entry.State)
			}
			if early, _ := q.Lease(ctx, "w", 1, time.Minute); len(early) != 0 {
				t.Fatalf("attempt %d: entry visible before backoff elapsed", attempt)
			}
			clock.Advance(time.Hour)
			continue
		}
		if entry.State != queue.StateDead || entry.DeadAt == nil || entry.LastError != "rates unavailable" {
			t.Fatalf("expected dead entry, got %+v", entry)
		}
	}

	clock.Advance(24 * time.Hour)
	if leased, _ := q.Lease(ctx, "w", 10, time.Minute); len(leased) != 0 {
		t.Fatalf("dead entry must never be leased, got %+v", leased)
	}
	dead, err := q.DeadLetters(ctx, queue.DeadLetterFilter{Reason: "rate_check"})
	if err != nil || len(dead) != 1 {
		t.Fatalf("DeadLetters = %v, %v", dead, err)
	}
}

func TestRetryThenSuccessLeavesNothing(t *testing.T) {
	q, clock := newQueue(t, queue.NameHydration, 3)
	ctx := context.Background()
	if _, err := q.EnqueueIfAbsent(ctx, "shp_1", "hydration", nil); err != nil {
		t.Fatalf("enqueue: %v", err)
	}
	for i := 0; i < 2; i++ {
		leased, _ := q.Lease(ctx, "w", 1, time.Minute)
		if len(leased) != 1 {
			t.Fatalf("round %d: expected a lease", i)
		}
		if _, err := q.Retry(ctx, leased[0].ID, "w", errors.New("not yet")); err != nil {
			t.Fatalf("Retry: %v", err)
		}
		clock.Advance(time.Hour)
	}
	leased, _ := q.Lease(ctx, "w", 1, time.Minute)
	if len(leased) != 1 {
		t.Fatal("expected third lease")
	}
	if err := q.Ack(ctx, leased[0].ID, "w"); err != nil {
		t.Fatalf("Ack: %v", err)
	}
	stats, err := q.Stats(ctx)
	if err != nil {
		t.Fatalf("Stats: %v", err)
	}
	if stats != (queue.Stats{}) {
		t.Fatalf("expected empty queue, got %+v", stats)
	}
}

func TestDeadLetterImmediately(t *testing.T) {
	q, _ := newQueue(t, queue.NameExternalWrite, 10)
	ctx := context.Background()
	if _, err := q.EnqueueIfAbsent(ctx, "shp_1", "shipment_sync", nil); err != nil {
		t.Fatalf("enqueue: %v", err)
	}
	leased, _ := q.Lease(ctx, "w", 1, time.Minute)
	entry, err := q.DeadLetter(ctx, leased[0].ID, "w", errors.New("400 bad request"))
	if err != nil {
		t.Fatalf("DeadLetter: %v", err)
	}
	if entry.State != queue.StateDead || entry.Attempts != 1 {
		t.Fatalf("unexpected entry %+v", entry)
	}
	if _, err := q.Retry(ctx, leased[0].ID, "w", nil); !errors.Is(err, queue.ErrLeaseLost) {
		t.Fatalf("retry of dead entry should report lease lost, got %v", err)
	}
}

func TestReplaySkipsLiveKeys(t *testing.T) {
	q, _ := newQueue(t, queue.NameEvents, 1)
	ctx := context.Background()

	kill := func(entity string) int64 {
		if _, err := q.EnqueueIfAbsent(ctx, entity, "packaging", nil); err != nil {
			t.Fatalf("enqueue: %v", err)
		}
		leased, _ := q.Lease(ctx, "w", 1, time.Minute)
		if len(leased) != 1 {
			t.Fatalf("expected lease for %s", entity)
		}
		if _, err := q.Retry(ctx, leased[0].ID, "w", errors.New("boom")); err != nil {
			t.Fatalf("Retry: %v", err)
		}
		return leased[0].ID
	}
	deadA := kill("shp_a")
	deadB := kill("shp_b")

	// shp_b already has a live entry again, so its dead entry stays dead.
	if _, err := q.EnqueueIfAbsent(ctx, "shp_b", "packaging", nil); err != nil {
		t.Fatalf("enqueue live: %v", err)
	}
	replayed, err := q.Replay(ctx, deadA, deadB)
	if err != nil {
		t.Fatalf("Replay: %v", err)
	}
	if replayed != 1 {
		t.Fatalf("replayed = %d, want 1", replayed)
	}
	entry, err := q.Get(ctx, deadA)
	if err != nil {
		t.Fatalf("Get: %v", err)
	}
	if entry.State != queue.StatePending || entry.Attempts != 0 || entry.DeadAt != nil {
		t.Fatalf("unexpected replayed entry %+v", entry)
	}
	if entry, _ := q.Get(ctx, deadB); entry.State != queue.StateDead {
		t.Fatalf("expected shp_b dead entry untouched, got %s", entry.State)
	}

	purged, err := q.Purge(ctx, queue.DeadLetterFilter{})
	if err != nil || purged != 1 {
		t.Fatalf("Purge = %d, %v", purged, err)
	}
}

func TestReclaimExpiredAndRelease(t *testing.T) {
	q, clock := newQueue(t, queue.NameEvents, 3)
	ctx := context.Background()
	for _, id := range []string{"a", "b"} {
		if _, err := q.EnqueueIfAbsent(ctx, id, "fingerprint", nil); err != nil {
			t.Fatalf("enqueue: %v", err)
		}
	}
	leased, _ := q.Lease(ctx, "crashed", 1, 30*time.Second)
	if len(leased) != 1 {
		t.Fatal("expected one lease")
	}
	other, _ := q.Lease(ctx, "draining", 1, time.Hour)
	if len(other) != 1 {
		t.Fatal("expected second lease")
	}

	if n, err := q.ReclaimExpired(ctx); err != nil || n != 0 {
		t.Fatalf("nothing should expire yet: %d %v", n, err)
	}
	clock.Advance(time.Minute)
	if n, err := q.ReclaimExpired(ctx); err != nil || n != 1 {
		t.Fatalf("ReclaimExpired = %d, %v", n, err)
	}
	if n, err := q.Release(ctx, "draining"); err != nil || n != 1 {
		t.Fatalf("Release = %d, %v", n, err)
	}

	entries, err := q.List(ctx, 0, queue.StatePending)
	if err != nil {
		t.Fatalf("List: %v", err)
	}
	if len(entries) != 2 {
		t.Fatalf("expected both entries pending, got %+v", entries)
	}
	for _, e := range entries {
		if e.Attempts != 0 || e.LeaseOwner != "" {
			t.Fatalf("release and reclaim must not count attempts: %+v", e)
		}
	}
}

func TestExtendRenewsOnlyForCurrentOwner(t *testing.T) {
	q, clock := newQueue(t, queue.NameEvents, 3)
	ctx := context.Background()
	if _, err := q.EnqueueIfAbsent(ctx, "shp_1", "session", nil); err != nil {
		t.Fatalf("enqueue: %v", err)
	}
	leased, err := q.Lease(ctx, "slow", 1, 30*time.Second)
	if err != nil || len(leased) != 1 {
		t.Fatalf("lease: %v %v", leased, err)
	}
	id := leased[0].ID

	clock.Advance(20 * time.Second)
	expires, err := q.Extend(ctx, id, "slow", 30*time.Second)
	if err != nil {
		t.Fatalf("Extend: %v", err)
	}
	if want := clock.Now().Add(30 * time.Second); !expires.Equal(want) {
		t.Fatalf("expires = %v, want %v", expires, want)
	}
	clock.Advance(20 * time.Second)
	if n, err := q.ReclaimExpired(ctx); err != nil || n != 0 {
		t.Fatalf("renewed lease must not be reclaimed: %d %v", n, err)
	}
	if _, err := q.Extend(ctx, id, "intruder", time.Minute); !errors.Is(err, queue.ErrLeaseLost) {
		t.Fatalf("Extend by non-owner = %v, want ErrLeaseLost", err)
	}

	clock.Advance(time.Minute)
	if n, err := q.ReclaimExpired(ctx); err != nil || n != 1 {
		t.Fatalf("ReclaimExpired = %d, %v", n, err)
	}
	if _, err := q.Lease(ctx, "other", 1, 30*time.Second); err != nil {
		t.Fatalf("re-lease: %v", err)
	}
	if _, err := q.Extend(ctx, id, "slow", 30*time.Second); !errors.Is(err, queue.ErrLeaseLost) {
		t.Fatalf("Extend after re-lease = %v, want ErrLeaseLost", err)
	}
	got, err := q.Get(ctx, id)
	if err != nil {
		t.Fatalf("Get: %v", err)
	}
	if got.LeaseOwner != "other" {
		t.Fatalf("lease owner = %q, want other", got.LeaseOwner)
	}
}

func TestConcurrentLeaseNeverDuplicates(t *testing.T) {
	q, _ := newQueue(t, queue.NameEvents, 3)
	ctx := context.Background()
	const total = 40
	for i := 0; i < total; i++ {
		if _, err := q.EnqueueIfAbsent(ctx, "shp_"+string(rune('A'+i)), "session", nil); err != nil {
			t.Fatalf("enqueue: %v", err)
		}
	}

	var (
		mu   sync.Mutex
		seen = map[int64]string{}
		wg   sync.WaitGroup
	)
	for w := 0; w < 4; w++ {
		owner := "worker-" + string(rune('0'+w))
		wg.Add(1)
		go func() {
			defer wg.Done()
			for {
				batch, err := q.Lease(ctx, owner, 3, time.Minute)
				if err != nil {
					t.Errorf("Lease: %v", err)
					return
				}
				if len(batch) == 0 {
					return
				}
				mu.Lock()
				for _, e := range batch {
					if prev, dup := seen[e.ID]; dup {
						t.Errorf("entry %d leased by %s and %s", e.ID, prev, owner)
					}
					seen[e.ID] = owner
				}
				mu.Unlock()
			}
		}()
	}
	wg.Wait()
	if len(seen) != total {
		t.Fatalf("leased %d entries, want %d", len(seen), total)
	}
}
