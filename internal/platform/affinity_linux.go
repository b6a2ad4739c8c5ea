//go:build linux

package platform

import (
	"fmt"

	"golang.org/x/sys/unix"
)

// PinToCore binds the calling OS thread to one CPU. Callers lock the goroutine
// to its thread first.
func PinToCore(core int) error {
	var set unix.CPUSet
	set.Zero()
	set.Set(core)
	if err := unix.SchedSetaffinity(0, &set); err != nil {
		return fmt.Errorf("sched_setaffinity core %d: %w", core, err)
	}
	return nil
}

// CurrentCPUs lists the CPUs the calling thread may run on.
func CurrentCPUs() ([]int, error) {
	var set unix.CPUSet
	if err := unix.SchedGetaffinity(0, &set); err != nil {
		return nil, fmt.Errorf("sched_getaffinity: %w", err)
	}
	var cpus []int
	for i := 0; len(cpus) < set.Count(); i++ {
		if set.IsSet(i) {
			cpus = append(cpus, i)
		}
	}
	return cpus, nil
}
