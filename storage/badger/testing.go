package badger

import (
	"github.com/poiesic/vectorit/queue"
	"github.com/poiesic/vectorit/storage"
)

// NewMemoryStores creates an in-memory task queue and vector repository
// sharing one backend, for tests and ephemeral runs.
// Caller must close both stores and then the backend when done.
func NewMemoryStores() (queue.Provider, storage.VectorRepository, *Backend, error) {
	backend, err := OpenBackend("", true)
	if err != nil {
		return nil, nil, nil, err
	}

	tasks, err := NewTaskQueue(backend)
	if err != nil {
		backend.Close()
		return nil, nil, nil, err
	}

	return tasks, NewVectorRepository(backend), backend, nil
}
