// Package testutil provides helpers shared by the camstats tests.
package testutil

import (
	"fmt"
	"testing"
	"time"

	"golang.org/x/sync/errgroup"
)

// Concurrently calls fn(0) through fn(n-1) in parallel goroutines and fails
// t with the first error any of them returns. t.Fatal must not be called
// from inside fn.
func Concurrently(t testing.TB, n int, fn func(worker int) error) {
	t.Helper()

	var g errgroup.Group
	for w := 0; w < n; w++ {
		g.Go(func() error { return fn(w) })
	}
	if err := g.Wait(); err != nil {
		t.Fatalf("concurrent workers failed: %v", err)
	}
}

// WithTimeout returns the error of fn, or a timeout error if fn has not
// returned after d. fn keeps running after a timeout.
func WithTimeout(d time.Duration, fn func() error) error {
	done := make(chan error, 1)
	go func() { done <- fn() }()

	timer := time.NewTimer(d)
	defer timer.Stop()

	select {
	case err := <-done:
		return err
	case <-timer.C:
		return fmt.Errorf("timed out after %v", d)
	}
}

// Eventually checks cond every interval until it holds or timeout passes.
func Eventually(timeout, interval time.Duration, cond func() bool) error {
	timer := time.NewTimer(timeout)
	defer timer.Stop()
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		if cond() {
			return nil
		}
		select {
		case <-timer.C:
			return fmt.Errorf("condition not met within %v", timeout)
		case <-ticker.C:
		}
	}
}
