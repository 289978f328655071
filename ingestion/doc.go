// Package ingestion turns stored documents into scheduled embedding tasks and
// persists the vectors those tasks produce.
//
// The Pipeline type manages the ingestion workflow for a document:
//   - Fetching the raw bytes from an object store
//   - Extracting plain text
//   - Chunking the text
//   - Clearing previously stored vectors for the document
//   - Scheduling the chunks with the scheduler
//
// The Pipeline is also a processor.Observer. Register it with the processor so
// that completed tasks have their vectors stored exactly once, split documents
// keep their parent record in sync, and chunks left over by a soft time cutoff
// are rescheduled as a continuation task.
package ingestion
