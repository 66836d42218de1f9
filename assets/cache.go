package assets

import (
	"fmt"
	"os"
	"sync"
	"time"
)

// StampLayout is the precision at which modification times are compared.
const StampLayout = "2006-01-02T15:04:05.000Z07:00"

// Stamp formats a modification time for the cache.
func Stamp(t time.Time) string {
	return t.UTC().Format(StampLayout)
}

// MtimeCache remembers the modification time each source had when it was
// last compiled successfully. Entries are keyed by absolute source path and
// never evicted.
type MtimeCache struct {
	mu     sync.RWMutex
	stamps map[string]string
}

// NewMtimeCache returns an empty cache.
func NewMtimeCache() *MtimeCache {
	return &MtimeCache{stamps: make(map[string]string)}
}

// ShouldRecompile reports whether the source changed since it was last
// recorded. The current stamp is returned so that the caller can record it
// once the compiled output is safely written.
func (c *MtimeCache) ShouldRecompile(sourcePath string) (bool, string, error) {
	info, err := os.Stat(sourcePath)
	if err != nil {
		return false, "", fmt.Errorf("stat source: %w", err)
	}
	stamp := Stamp(info.ModTime())

	c.mu.RLock()
	prev, ok := c.stamps[sourcePath]
	c.mu.RUnlock()
	return !ok || prev != stamp, stamp, nil
}

// Record stores the stamp for sourcePath.
func (c *MtimeCache) Record(sourcePath, stamp string) {
	c.mu.Lock()
	c.stamps[sourcePath] = stamp
	c.mu.Unlock()
}

// Len returns the number of recorded sources.
func (c *MtimeCache) Len() int {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return len(c.stamps)
}
