package utils

import "sync"

var mu sync.Mutex

// ExecuteWithMutex serializes GDAL raster IO: dataset handles are not safe
// for concurrent access from the tile workers.
func ExecuteWithMutex(fn func()) {
	mu.Lock()
	defer mu.Unlock()
	fn()
}
