// Package pool runs a fixed list of work items with bounded concurrency.
package pool

import "sync"

// Run invokes fn on every item with at most limit units in flight at once.
// Results are indexed by the item's original position regardless of
// completion order. fn is responsible for containing its own errors; the
// result type usually carries an error field.
//
// When limit exceeds len(items) only len(items) workers are spawned, and an
// empty input returns an empty result slice.
func Run[T, R any](items []T, limit int, fn func(i int, item T) R) []R {
	results := make([]R, len(items))
	if len(items) == 0 {
		return results
	}
	if limit <= 0 {
		limit = 1
	}
	if limit > len(items) {
		limit = len(items)
	}

	indexes := make(chan int)
	var wg sync.WaitGroup
	for w := 0; w < limit; w++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for i := range indexes {
				results[i] = fn(i, items[i])
			}
		}()
	}

	for i := range items {
		indexes <- i
	}
	close(indexes)
	wg.Wait()

	return results
}
