package scheduler

import (
	"runtime"

	"github.com/shirou/gopsutil/v4/cpu"
	"github.com/shirou/gopsutil/v4/load"
)

// DefaultJobs returns the default concurrency: the host's logical core
// count.
func DefaultJobs() int {
	count, err := cpu.Counts(true)
	if err != nil || count < 1 {
		return runtime.NumCPU()
	}
	return count
}

// recentLoadAverage samples the 1-minute load average. Platforms without
// the facility (and any sampling error) report 0, which disables
// throttling rather than guessing at system pressure.
func recentLoadAverage() float64 {
	avg, err := load.Avg()
	if err != nil {
		return 0
	}
	return avg.Load1
}
