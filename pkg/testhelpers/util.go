package testhelpers

import (
	"fmt"
	"sync"
	"time"
)

// WaitForIt polls cb up to count times, sleeping delay between polls, until
// cb reports done. An error from cb stops the polling.
func WaitForIt(count int, delay time.Duration, cb func() (bool, error)) error {
	for i := 0; i < count; i++ {
		if i > 0 {
			time.Sleep(delay)
		}
		done, err := cb()
		if err != nil {
			return err
		}
		if done {
			return nil
		}
	}
	return fmt.Errorf("condition not met after %d attempts", count)
}

// WaitTimeout waits for wg and returns true if timeout elapsed first.
func WaitTimeout(wg *sync.WaitGroup, timeout time.Duration) bool {
	done := make(chan struct{})
	go func() {
		wg.Wait()
		close(done)
	}()

	timer := time.NewTimer(timeout)
	defer timer.Stop()
	select {
	case <-done:
		return false
	case <-timer.C:
		return true
	}
}
