// Package events publishes task lifecycle events to NATS.
//
// A Publisher is a processor.Observer. Each notification becomes a JSON
// Event published on "<prefix>.<type>", for example "vectorit.tasks.completed".
// Publishing is fire-and-forget: failures are logged and never affect task
// processing.
package events
