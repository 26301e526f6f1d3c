package stats

import (
	"sync"
	"testing"
)

func TestTrackOperation(t *testing.T) {
	c := NewCollector()

	c.TrackOperation(OpPut)
	c.TrackOperation(OpPut)
	c.TrackOperation(OpDelete)
	c.TrackOperationN(OpRows, 25)

	if got := c.OpCount(OpPut); got != 2 {
		t.Errorf("Expected 2 put ops, got %d", got)
	}
	if got := c.OpCount(OpDelete); got != 1 {
		t.Errorf("Expected 1 delete op, got %d", got)
	}
	if got := c.OpCount(OpRows); got != 25 {
		t.Errorf("Expected 25 rows, got %d", got)
	}
	if got := c.OpCount(OpCommit); got != 0 {
		t.Errorf("Expected 0 commits, got %d", got)
	}
}

func TestGetStats(t *testing.T) {
	c := NewCollector()

	c.TrackOperation(OpCommit)
	c.TrackError("decode_error")
	c.TrackError("decode_error")

	stats := c.GetStats()

	if stats["commit_ops"] != uint64(1) {
		t.Errorf("Expected commit_ops 1, got %v", stats["commit_ops"])
	}
	if stats["error_decode_error"] != uint64(2) {
		t.Errorf("Expected error_decode_error 2, got %v", stats["error_decode_error"])
	}
	if _, ok := stats["last_commit_time"]; !ok {
		t.Errorf("Expected last_commit_time to be present")
	}
}

func TestConcurrentTracking(t *testing.T) {
	c := NewCollector()

	const goroutines = 8
	const perGoroutine = 1000

	var wg sync.WaitGroup
	for i := 0; i < goroutines; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for j := 0; j < perGoroutine; j++ {
				c.TrackOperation(OpRows)
			}
		}()
	}
	wg.Wait()

	if got := c.OpCount(OpRows); got != goroutines*perGoroutine {
		t.Errorf("Expected %d rows ops, got %d", goroutines*perGoroutine, got)
	}
}
