//go:build linux

package main

import (
	"golang.org/x/sys/unix"
)

// pinCurrentThread restricts the calling OS thread to cpu (the caller,
// runPinned, locks its goroutine to that thread first), so the demo's per-CPU dispatch
// loops get a real affinity binding instead of just a logical label —
// grounded on the teacher's unix.CPUSet usage for epoll FD plumbing
// (poller_linux.go), here repurposed for sched_setaffinity(2).
func pinCurrentThread(cpu int) error {
	var set unix.CPUSet
	set.Zero()
	set.Set(cpu)
	return unix.SchedSetaffinity(0, &set)
}
