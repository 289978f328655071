// Package queue defines the task queue contract shared by the scheduler and
// the background processor, and a volatile in-memory implementation.
//
// Durable implementations live in storage/badger (single process) and
// storage/redis (shared between workers). All implementations run the
// conformance suite in queue/queuetest.
package queue
