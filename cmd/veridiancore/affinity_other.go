//go:build !linux

package main

// pinCurrentThread is a no-op outside Linux: sched_setaffinity has no
// portable equivalent, and the demo runs fine without a real pin.
func pinCurrentThread(cpu int) error {
	return nil
}
