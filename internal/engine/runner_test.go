package engine

import (
	"context"
	"errors"
	"sync/atomic"
	"testing"
	"time"
)

func TestRunAll(t *testing.T) {
	var running, peak int32
	job := func(fail bool) func(ctx context.Context) error {
		return func(ctx context.Context) error {
			n := atomic.AddInt32(&running, 1)
			for {
				p := atomic.LoadInt32(&peak)
				if n <= p || atomic.CompareAndSwapInt32(&peak, p, n) {
					break
				}
			}
			time.Sleep(10 * time.Millisecond)
			atomic.AddInt32(&running, -1)
			if fail {
				return errors.New("unreachable")
			}
			return nil
		}
	}

	jobs := []Job{
		{Name: "a", Run: job(false)},
		{Name: "b", Run: job(true)},
		{Name: "c", Run: job(false)},
		{Name: "d", Run: job(false)},
		{Name: "e", Run: job(false)},
	}
	results := RunAll(context.Background(), jobs, 2)

	if len(results) != len(jobs) {
		t.Fatalf("got %d results, want %d", len(results), len(jobs))
	}
	for i, r := range results {
		if r.Name != jobs[i].Name {
			t.Errorf("result %d is %q, want %q", i, r.Name, jobs[i].Name)
		}
		if (r.Err != nil) != (r.Name == "b") {
			t.Errorf("result %q: unexpected error %v", r.Name, r.Err)
		}
	}
	if peak > 2 {
		t.Errorf("peak concurrency = %d, want <= 2", peak)
	}
}

func TestRunAllCancelled(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	ran := false
	results := RunAll(ctx, []Job{{Name: "x", Run: func(context.Context) error {
		ran = true
		return nil
	}}}, 1)

	if ran {
		t.Error("job ran on a cancelled context")
	}
	if !errors.Is(results[0].Err, context.Canceled) {
		t.Errorf("err = %v, want context.Canceled", results[0].Err)
	}
}

func TestRunAllEmpty(t *testing.T) {
	if got := RunAll(context.Background(), nil, 4); len(got) != 0 {
		t.Errorf("got %d results for no jobs", len(got))
	}
}
