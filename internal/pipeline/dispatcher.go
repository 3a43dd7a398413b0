package pipeline

import (
	"context"
	"sync"

	"github.com/google/uuid"

	"github.com/sonsuzanime/stremio-deepl-translate/internal/persistence"
	"github.com/sonsuzanime/stremio-deepl-translate/pkg/log"
)

// Dispatcher detaches batch execution from the HTTP request that
// triggered it: the response is sent immediately while the batch keeps
// running in the background. It supervises the detached work (panics are
// logged, never propagated), suppresses duplicate dispatches for a key
// that is already running in this process, and lets shutdown drain
// in-flight batches instead of abandoning them.
type Dispatcher struct {
	mu      sync.Mutex
	active  map[string]string
	stopped bool
	wg      sync.WaitGroup
}

func NewDispatcher() *Dispatcher {
	return &Dispatcher{
		active: make(map[string]string),
	}
}

// Dispatch starts run in the background unless a batch for the same key
// is already in flight or the dispatcher is draining. It returns the run
// id and whether a new run was started. The run gets a fresh context:
// its lifetime is not tied to the request's.
func (d *Dispatcher) Dispatch(key persistence.BatchKey, run func(ctx context.Context)) (string, bool) {
	batchKey := key.String()

	d.mu.Lock()
	if d.stopped {
		d.mu.Unlock()
		log.Warn("Dispatcher is draining, rejecting batch %s", batchKey)
		return "", false
	}
	if id, ok := d.active[batchKey]; ok {
		d.mu.Unlock()
		log.Debug("Batch %s already in flight as run %s", batchKey, id)
		return id, false
	}
	id := uuid.NewString()
	d.active[batchKey] = id
	d.wg.Add(1)
	d.mu.Unlock()

	go func() {
		defer d.wg.Done()
		defer d.release(batchKey, id)
		defer func() {
			if r := recover(); r != nil {
				log.Error("Batch %s (run %s) panicked: %v", batchKey, id, r)
			}
		}()

		log.Info("Dispatching translation batch %s (run %s)", batchKey, id)
		run(context.Background())
	}()

	return id, true
}

// Running reports whether a batch for the key is currently in flight.
func (d *Dispatcher) Running(key persistence.BatchKey) bool {
	d.mu.Lock()
	defer d.mu.Unlock()
	_, ok := d.active[key.String()]
	return ok
}

// Drain stops accepting new batches and waits for in-flight ones to
// finish, or until the context expires.
func (d *Dispatcher) Drain(ctx context.Context) error {
	d.mu.Lock()
	d.stopped = true
	d.mu.Unlock()

	done := make(chan struct{})
	go func() {
		d.wg.Wait()
		close(done)
	}()

	select {
	case <-done:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

func (d *Dispatcher) release(batchKey, id string) {
	d.mu.Lock()
	defer d.mu.Unlock()
	if current, ok := d.active[batchKey]; ok && current == id {
		delete(d.active, batchKey)
	}
}
