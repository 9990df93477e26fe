// Package events carries observability events out of the dispatch pipeline.
//
// Producers and consumers report what happened to a message (sent, received,
// completion emitted, completion failed) as DispatchEvent values. Emitters fan
// those events out to registered handlers; AsyncEmitter does so on its own
// goroutine so that reporting never blocks a send or receive.
//
// The primary components are:
// - DispatchEvent: A record of one pipeline step for one message
// - EventHandler: Interface for components that consume events
// - EventEmitter: Interface for components that publish events
// - InMemoryEventEmitter: Synchronous fan-out to registered handlers
// - AsyncEmitter: Non-blocking, buffered wrapper around another emitter
package events
