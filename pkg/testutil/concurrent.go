package testutil

import (
	"sync"
)

// CollectConcurrent executes fn in parallel and returns every value and error,
// indexed by goroutine number. All goroutines are released together to
// maximize contention on first access.
func CollectConcurrent[T any](goroutines int, fn func(idx int) (T, error)) ([]T, []error) {
	values := make([]T, goroutines)
	errs := make([]error, goroutines)

	var wg sync.WaitGroup
	start := make(chan struct{})
	for i := 0; i < goroutines; i++ {
		wg.Add(1)
		go func(idx int) {
			defer wg.Done()
			<-start
			values[idx], errs[idx] = fn(idx)
		}(i)
	}
	close(start)
	wg.Wait()

	return values, errs
}
