//go:build linux

package segdist

import (
	"fmt"
	"runtime"

	"golang.org/x/sys/unix"
)

// SetCPUAffinity pins the calling OS thread to the given CPU cores, eg:
// []int{4,5,6,7}.  The goroutine is locked to its thread first so the frame
// analysis worker keeps running on the pinned cores.
func SetCPUAffinity(cores []int) error {

	if len(cores) == 0 {
		return fmt.Errorf("no CPU cores given")
	}

	var set unix.CPUSet
	set.Zero()

	for _, core := range cores {
		if core < 0 || core >= runtime.NumCPU() {
			return fmt.Errorf("invalid CPU core %d, have %d cores", core, runtime.NumCPU())
		}

		set.Set(core)
	}

	runtime.LockOSThread()

	if err := unix.SchedSetaffinity(0, &set); err != nil {
		runtime.UnlockOSThread()
		return fmt.Errorf("failed to set CPU affinity: %w", err)
	}

	return nil
}

// GetCPUAffinity returns the CPU cores the calling thread may run on
func GetCPUAffinity() ([]int, error) {

	var set unix.CPUSet

	if err := unix.SchedGetaffinity(0, &set); err != nil {
		return nil, fmt.Errorf("failed to get CPU affinity: %w", err)
	}

	var cores []int

	for i := 0; i < runtime.NumCPU(); i++ {
		if set.IsSet(i) {
			cores = append(cores, i)
		}
	}

	return cores, nil
}
