//go:build linux

package executor

import (
	"runtime"

	"golang.org/x/sys/unix"
)

// availableCPUs lists the CPUs this process may run on.
func availableCPUs() []int {
	var set unix.CPUSet
	if err := unix.SchedGetaffinity(0, &set); err != nil {
		return nil
	}
	n := set.Count()
	cpus := make([]int, 0, n)
	for id := 0; len(cpus) < n && id < len(set)*64; id++ {
		if set.IsSet(id) {
			cpus = append(cpus, id)
		}
	}
	return cpus
}

// pinThread locks the calling goroutine to its OS thread and binds that
// thread to cpu. The goroutine must not unlock: when it exits the runtime
// discards the pinned thread instead of reusing it.
func pinThread(cpu int) error {
	runtime.LockOSThread()
	var set unix.CPUSet
	set.Zero()
	set.Set(cpu)
	return unix.SchedSetaffinity(0, &set)
}
