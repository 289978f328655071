// Package embedding computes embeddings for the chunks of a task.
//
// A ChunkProcessor sends chunks to an ai.Embedder in batches of BatchSize.
// When the embedder also implements ai.BatchEmbedder, each batch is one
// provider call; if that call fails, the batch is retried chunk by chunk.
// Chunk failures are recorded in the result and never abort a batch. After
// the last batch a retry pass re-attempts each retryable failure with
// exponential backoff until it succeeds or has been retried MaxRetries times.
//
// Before every batch the processor checks two limits. A cancelled context
// ends processing with ErrCancelled. Reaching MaxProcessingTime is a soft
// cutoff: the result is returned without error, IsComplete is false, and
// the chunks never attempted can be recovered with Unprocessed.
//
// Embeddings are appended in completion order. Consumers must use ChunkIndex
// to order them.
package embedding
