package engine

import (
	"os"
	"sync"
)

// globalTmpRegistry tracks in-progress temporary files so an interrupted
// extraction leaves none behind.
var globalTmpRegistry = &tmpRegistry{}

type tmpRegistry struct {
	mu    sync.Mutex
	paths map[string]struct{}
}

func (r *tmpRegistry) add(path string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.paths == nil {
		r.paths = make(map[string]struct{})
	}
	r.paths[path] = struct{}{}
}

func (r *tmpRegistry) remove(path string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	delete(r.paths, path)
}

func (r *tmpRegistry) drain() []string {
	r.mu.Lock()
	defer r.mu.Unlock()
	paths := make([]string, 0, len(r.paths))
	for p := range r.paths {
		paths = append(paths, p)
	}
	r.paths = nil
	return paths
}

// RegisterTmp adds a temporary file path to the global registry.
func RegisterTmp(path string) { globalTmpRegistry.add(path) }

// DeregisterTmp removes a temporary file path from the global registry.
func DeregisterTmp(path string) { globalTmpRegistry.remove(path) }

// CleanupTmpFiles removes all registered temporary files and reports how
// many were removed.
func CleanupTmpFiles() int {
	removed := 0
	for _, p := range globalTmpRegistry.drain() {
		if os.Remove(p) == nil {
			removed++
		}
	}
	return removed
}
