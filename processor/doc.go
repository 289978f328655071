// Package processor executes queued tasks in the background.
//
// A single polling loop dequeues up to the number of free slots per tick and
// hands each task to a bounded ants worker pool. Each execution marks the
// task processing, embeds its chunks with an embedding.ChunkProcessor raced
// against the task timeout, and ends in exactly one terminal status:
//
//	completed  at least one chunk was embedded
//	failed     timeout, provider error, or every chunk failed
//	cancelled  CancelTask, Stop, or the Start context ended
//
// Lifecycle notifications go to Observers; running statistics are kept in
// memory and exported as OpenTelemetry metrics.
package processor
