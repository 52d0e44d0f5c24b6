package monitor

import (
	"github.com/shirou/gopsutil/v3/process"
)

// ProcessInfo is one row of the host process table.
type ProcessInfo struct {
	PID        int32
	Name       string
	CPUPercent float64
	MemoryMB   float64
	Threads    int32
}

// ProcessLister enumerates host processes. The sampler only depends on this
// interface so tests can supply synthetic process tables.
type ProcessLister interface {
	ListProcesses() ([]ProcessInfo, error)
}

type hostLister struct{}

// NewProcessLister returns a ProcessLister backed by the OS process table.
func NewProcessLister() ProcessLister {
	return hostLister{}
}

func (hostLister) ListProcesses() ([]ProcessInfo, error) {
	procs, err := process.Processes()
	if err != nil {
		return nil, err
	}

	out := make([]ProcessInfo, 0, len(procs))
	for _, p := range procs {
		// A process can exit between listing and inspection, or deny
		// access. Skip it and keep going.
		name, err := p.Name()
		if err != nil {
			continue
		}
		cpu, err := p.CPUPercent()
		if err != nil {
			continue
		}
		mi, err := p.MemoryInfo()
		if err != nil || mi == nil {
			continue
		}
		threads, err := p.NumThreads()
		if err != nil {
			continue
		}
		out = append(out, ProcessInfo{
			PID:        p.Pid,
			Name:       name,
			CPUPercent: cpu,
			MemoryMB:   float64(mi.RSS) / (1024 * 1024),
			Threads:    threads,
		})
	}
	return out, nil
}
