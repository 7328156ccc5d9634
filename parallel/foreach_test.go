package parallel

import (
	"sync/atomic"
	"testing"
)

func TestForEachVisitsEveryIndexOnce(t *testing.T) {
	const n = 1000
	counts := make([]int32, n)
	ForEach(n, 8, func(i int) {
		atomic.AddInt32(&counts[i], 1)
	})
	for i, c := range counts {
		if c != 1 {
			t.Fatalf("index %d visited %d times, want 1", i, c)
		}
	}
}

func TestForEachBoundsConcurrency(t *testing.T) {
	const n = 200
	const limit = 4
	var inFlight, peak int32
	ForEach(n, limit, func(i int) {
		cur := atomic.AddInt32(&inFlight, 1)
		for {
			p := atomic.LoadInt32(&peak)
			if cur <= p || atomic.CompareAndSwapInt32(&peak, p, cur) {
				break
			}
		}
		atomic.AddInt32(&inFlight, -1)
	})
	if peak > limit {
		t.Errorf("observed %d concurrent iterations, limit was %d", peak, limit)
	}
}

func TestForEachEdgeCases(t *testing.T) {
	t.Run("zero_length", func(t *testing.T) {
		called := false
		ForEach(0, 4, func(i int) { called = true })
		if called {
			t.Error("body called for zero length")
		}
	})
	t.Run("negative_limit", func(t *testing.T) {
		var count int32
		ForEach(10, -1, func(i int) { atomic.AddInt32(&count, 1) })
		if count != 10 {
			t.Errorf("visited %d indices, want 10", count)
		}
	})
	t.Run("serial_limit", func(t *testing.T) {
		// limit 1 must preserve order
		var order []int
		ForEach(5, 1, func(i int) { order = append(order, i) })
		for i, v := range order {
			if v != i {
				t.Fatalf("order[%d] = %d, want %d", i, v, i)
			}
		}
	})
}
