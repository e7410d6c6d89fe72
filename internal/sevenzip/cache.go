package sevenzip

import (
	"errors"
	"sync"

	lru "github.com/hashicorp/golang-lru/v2"
)

// folderCache holds decoded folders. Concurrent readers of the same folder
// share one decode; readers of different folders decode in parallel. Failed
// decodes are not remembered.
type folderCache struct {
	mu       sync.Mutex
	decoded  *lru.Cache[int, []byte]
	inflight map[int]*folderCall
}

// errFolderLoadAborted is what concurrent readers see when the decode they
// waited on panicked.
var errFolderLoadAborted = errors.New("folder decode aborted")

type folderCall struct {
	done chan struct{}
	data []byte
	err  error
}

// newFolderCache returns a cache holding up to size folders.
func newFolderCache(size int) (*folderCache, error) {
	decoded, err := lru.New[int, []byte](max(size, 1))
	if err != nil {
		return nil, err
	}
	return &folderCache{
		decoded:  decoded,
		inflight: make(map[int]*folderCall),
	}, nil
}

// get returns folder i, calling load if it is neither cached nor being
// decoded by another goroutine.
func (c *folderCache) get(i int, load func() ([]byte, error)) ([]byte, error) {
	c.mu.Lock()
	if data, ok := c.decoded.Get(i); ok {
		c.mu.Unlock()
		return data, nil
	}
	if call, ok := c.inflight[i]; ok {
		c.mu.Unlock()
		<-call.done
		return call.data, call.err
	}
	call := &folderCall{done: make(chan struct{}), err: errFolderLoadAborted}
	c.inflight[i] = call
	c.mu.Unlock()

	// Waiters are released even if load panics.
	defer func() {
		c.mu.Lock()
		delete(c.inflight, i)
		if call.err == nil {
			c.decoded.Add(i, call.data)
		}
		c.mu.Unlock()
		close(call.done)
	}()

	call.data, call.err = load()
	return call.data, call.err
}

// Len is the number of folders currently held.
func (c *folderCache) Len() int {
	return c.decoded.Len()
}
