// Package parallel provides the bounded worker loop the cpu compute backend
// dispatches its per-neuron layer phases on.
package parallel

import (
	"runtime"
	"sync"
)

// ForEach executes a for loop with a limited number of concurrent goroutines.
// Each goroutine processes one integer, from 0 to length. A limit of zero or
// less means one goroutine per logical CPU. ForEach returns only after every
// iteration has finished, so callers may treat it as a dispatch-and-await.
func ForEach(length, limit int, body func(i int)) {
	if limit <= 0 {
		limit = runtime.GOMAXPROCS(0)
	}
	if length <= 0 {
		return // No iterations to perform
	}
	if length == 1 || limit == 1 {
		for i := 0; i < length; i++ {
			body(i)
		}
		return
	}

	sem := make(chan struct{}, limit) // Semaphore with buffer size 'limit'
	var wg sync.WaitGroup
	wg.Add(length)

	for i := 0; i < length; i++ {
		sem <- struct{}{} // Acquire semaphore
		go func(i int) {
			defer wg.Done()
			defer func() { <-sem }() // Release semaphore after function exits

			body(i)
		}(i)
	}

	wg.Wait() // Wait for all goroutines to finish
}
