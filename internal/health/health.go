// Package health provides a point-in-time resource snapshot (CPU, memory,
// process uptime) using gopsutil, for an operator health check endpoint
// outside this engine's scope to expose.
package health

import (
	"context"
	"time"

	"github.com/shirou/gopsutil/v3/cpu"
	"github.com/shirou/gopsutil/v3/mem"
	"github.com/shirou/gopsutil/v3/process"
)

// Snapshot is a single resource reading.
type Snapshot struct {
	CPUPercent    float64
	MemoryPercent float64
	MemoryUsedMB  uint64
	ProcessUptime time.Duration
	Timestamp     time.Time
}

// Reader takes Snapshots of the current process and host.
type Reader struct {
	pid       int32
	startedAt time.Time
}

// NewReader constructs a Reader for the current process.
func NewReader(pid int32) *Reader {
	return &Reader{pid: pid, startedAt: time.Now()}
}

// Read takes a single snapshot. A failure on any individual metric yields
// a zero value for that field rather than aborting the whole snapshot.
func (r *Reader) Read(ctx context.Context) Snapshot {
	snap := Snapshot{Timestamp: time.Now(), ProcessUptime: time.Since(r.startedAt)}

	if percents, err := cpu.PercentWithContext(ctx, 0, false); err == nil && len(percents) > 0 {
		snap.CPUPercent = percents[0]
	}

	if vm, err := mem.VirtualMemoryWithContext(ctx); err == nil {
		snap.MemoryPercent = vm.UsedPercent
	}

	if proc, err := process.NewProcess(r.pid); err == nil {
		if info, err := proc.MemoryInfoWithContext(ctx); err == nil && info != nil {
			snap.MemoryUsedMB = info.RSS / (1024 * 1024)
		}
	}

	return snap
}
