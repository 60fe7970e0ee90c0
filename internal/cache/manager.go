package cache

import (
	"log/slog"
	"time"
)

// Cleaner is implemented by caches that can physically drop dead entries.
type Cleaner interface {
	CleanExpired() int
}

// Manager periodically sweeps registered caches so that logically
// invalidated and TTL-expired entries do not pin memory until LRU
// pressure pushes them out.
type Manager struct {
	caches      []Cleaner
	stopCleanup chan struct{}
	cleanupDone chan struct{}
}

func NewManager() *Manager {
	return &Manager{
		stopCleanup: make(chan struct{}),
		cleanupDone: make(chan struct{}),
	}
}

// Register adds a cache to the sweep set. Not safe to call after
// StartCleanup.
func (m *Manager) Register(c Cleaner) {
	m.caches = append(m.caches, c)
}

// StartCleanup begins the periodic sweep in a background goroutine.
func (m *Manager) StartCleanup(interval time.Duration) {
	go m.cleanup(interval)
}

func (m *Manager) cleanup(interval time.Duration) {
	defer close(m.cleanupDone)

	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ticker.C:
			total := 0
			for _, c := range m.caches {
				total += c.CleanExpired()
			}
			if total > 0 {
				slog.Debug("Cache sweep completed", "entries_removed", total)
			}
		case <-m.stopCleanup:
			return
		}
	}
}

// Stop halts the sweep goroutine and waits for it to exit.
func (m *Manager) Stop() {
	close(m.stopCleanup)
	<-m.cleanupDone
}
