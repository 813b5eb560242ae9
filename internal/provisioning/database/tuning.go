package database

import (
	"github.com/conway-vibehost/vibehost-setup/internal/templates"
)

// Tuning holds the memory-derived server settings.
type Tuning struct {
	MemoryMB                   int
	SharedBuffersMB            int
	EffectiveCacheSizeMB       int
	WorkMemMB                  int
	MaintenanceWorkMemMB       int
	WALBuffersMB               int
	MaxConnections             int
	ParallelWorkersPerGather   int
	ParallelWorkers            int
	ParallelMaintenanceWorkers int
}

// CalculateTuning derives settings from the memory available to the server:
// a quarter for shared buffers (at most 8GB), three quarters assumed to be
// page cache, and wal_buffers at 3% of shared buffers within 4..64MB.
func CalculateTuning(memoryMB int) Tuning {
	sharedBuffers := min(memoryMB/4, 8192)
	return Tuning{
		MemoryMB:                   memoryMB,
		SharedBuffersMB:            sharedBuffers,
		EffectiveCacheSizeMB:       memoryMB * 3 / 4,
		WorkMemMB:                  max(memoryMB/400, 16),
		MaintenanceWorkMemMB:       min(memoryMB/8, 2048),
		WALBuffersMB:               max(min(sharedBuffers*3/100, 64), 4),
		MaxConnections:             200,
		ParallelWorkersPerGather:   4,
		ParallelWorkers:            8,
		ParallelMaintenanceWorkers: 4,
	}
}

// Render returns the conf.d drop-in carrying the settings.
func (t Tuning) Render() ([]byte, error) {
	return templates.Render("database/99-vibehost-tuning.conf.tmpl", t)
}
