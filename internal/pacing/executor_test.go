package pacing

import (
	"context"
	"errors"
	"testing"
	"time"
)

func TestForEach_FailureIsolation(t *testing.T) {
	items := []string{"a", "b", "c"}
	cfg := Config{MaxAttempts: 1}

	results := ForEach(context.Background(), cfg, items, func(_ context.Context, item string) (string, error) {
		if item == "b" {
			return "", errors.New("account b rejected")
		}
		return "posted-" + item, nil
	})

	if len(results) != 3 {
		t.Fatalf("expected 3 results, got %d", len(results))
	}

	var failures, successes int
	for _, r := range results {
		if r.Err != nil {
			failures++
		} else {
			successes++
		}
	}
	if failures != 1 || successes != 2 {
		t.Errorf("expected 1 failure and 2 successes, got %d/%d", failures, successes)
	}
	if results[1].Item != "b" || results[1].Err == nil {
		t.Errorf("failure not attributed to item b: %+v", results[1])
	}
}

func TestForEach_PreservesOrder(t *testing.T) {
	items := []int{1, 2, 3, 4, 5}
	var seen []int

	ForEach(context.Background(), Config{MaxAttempts: 1}, items, func(_ context.Context, n int) (int, error) {
		seen = append(seen, n)
		return n, nil
	})

	for i, n := range seen {
		if n != items[i] {
			t.Fatalf("order violated at %d: got %v", i, seen)
		}
	}
}

func TestForEach_ItemDelayBetweenItems(t *testing.T) {
	cfg := Config{MaxAttempts: 1, ItemDelay: 20 * time.Millisecond}
	var stamps []time.Time

	ForEach(context.Background(), cfg, []int{1, 2, 3}, func(_ context.Context, n int) (int, error) {
		stamps = append(stamps, time.Now())
		return n, nil
	})

	if len(stamps) != 3 {
		t.Fatalf("expected 3 calls, got %d", len(stamps))
	}
	for i := 1; i < len(stamps); i++ {
		if gap := stamps[i].Sub(stamps[i-1]); gap < 15*time.Millisecond {
			t.Errorf("gap %d too short: %v", i, gap)
		}
	}
}

func TestForEach_CancellationStopsSequence(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cfg := Config{MaxAttempts: 1, ItemDelay: 10 * time.Millisecond}

	results := ForEach(ctx, cfg, []int{1, 2, 3, 4}, func(_ context.Context, n int) (int, error) {
		if n == 2 {
			cancel()
		}
		return n, nil
	})

	if len(results) >= 4 {
		t.Errorf("expected early stop, got %d results", len(results))
	}
}

func TestForEach_RetriesTransientPerItem(t *testing.T) {
	cfg := Config{MaxAttempts: 3, Backoff: time.Millisecond}
	attempts := map[int]int{}

	results := ForEach(context.Background(), cfg, []int{1, 2}, func(_ context.Context, n int) (int, error) {
		attempts[n]++
		if n == 1 && attempts[n] < 2 {
			return 0, NewTransientError(errors.New("503"), 503)
		}
		return n, nil
	})

	if attempts[1] != 2 {
		t.Errorf("item 1 attempts = %d, want 2", attempts[1])
	}
	if attempts[2] != 1 {
		t.Errorf("item 2 attempts = %d, want 1", attempts[2])
	}
	for _, r := range results {
		if r.Err != nil {
			t.Errorf("unexpected per-item error: %v", r.Err)
		}
	}
}
