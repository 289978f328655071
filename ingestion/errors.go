package ingestion

import "errors"

var (
	// ErrSchedulerRequired is returned when a scheduler is not provided.
	ErrSchedulerRequired = errors.New("scheduler required")

	// ErrVectorRepositoryRequired is returned when a vector repository is not provided.
	ErrVectorRepositoryRequired = errors.New("vector repository required")

	// ErrSourceRequired is returned by IngestObject when no object store is configured.
	ErrSourceRequired = errors.New("object store required")

	// ErrNoChunks is returned when a document produces no chunks.
	ErrNoChunks = errors.New("document produced no chunks")
)
