package rotation

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sync"

	"github.com/fsnotify/fsnotify"

	"herald/internal/logging"
	"herald/internal/model"
)

// Pool maps each bucket to its candidate messages.
type Pool map[model.Bucket][]string

// PoolSource provides the current message pool.
type PoolSource interface {
	Load() (Pool, error)
}

// StaticPool is an in-memory PoolSource.
type StaticPool Pool

func (p StaticPool) Load() (Pool, error) { return Pool(p), nil }

// FilePool reads the pool from a JSON document. Until Watch is running every
// Load rereads the file; once watching, the parsed pool is cached and dropped
// whenever the file changes.
type FilePool struct {
	path     string
	mu       sync.Mutex
	cached   Pool
	watching bool
}

func NewFilePool(path string) *FilePool {
	return &FilePool{path: filepath.Clean(path)}
}

func (p *FilePool) Load() (Pool, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.watching && p.cached != nil {
		return p.cached, nil
	}
	b, err := os.ReadFile(p.path)
	if err != nil {
		return nil, fmt.Errorf("read message pool: %w", err)
	}
	var pool Pool
	if err := json.Unmarshal(b, &pool); err != nil {
		return nil, fmt.Errorf("parse message pool %s: %w", p.path, err)
	}
	if p.watching {
		p.cached = pool
	}
	return pool, nil
}

func (p *FilePool) invalidate() {
	p.mu.Lock()
	p.cached = nil
	p.mu.Unlock()
}

// Watch starts caching and invalidates the cache on changes to the pool file
// until ctx is cancelled. It is non-blocking.
func (p *FilePool) Watch(ctx context.Context) error {
	w, err := fsnotify.NewWatcher()
	if err != nil {
		return err
	}
	// Editors often replace files by rename, so watch the directory.
	if err := w.Add(filepath.Dir(p.path)); err != nil {
		_ = w.Close()
		return err
	}
	p.mu.Lock()
	p.watching = true
	p.mu.Unlock()

	go func() {
		defer w.Close()
		for {
			select {
			case <-ctx.Done():
				return
			case ev, ok := <-w.Events:
				if !ok {
					return
				}
				if filepath.Clean(ev.Name) != p.path {
					continue
				}
				if ev.Op&(fsnotify.Write|fsnotify.Create|fsnotify.Rename|fsnotify.Remove) != 0 {
					p.invalidate()
					logging.Info("message_pool_changed", logging.Fields{"path": p.path, "op": ev.Op.String()})
				}
			case err, ok := <-w.Errors:
				if !ok {
					return
				}
				logging.Warn("message_pool_watch_error", logging.Fields{"error": err.Error()})
			}
		}
	}()
	return nil
}
