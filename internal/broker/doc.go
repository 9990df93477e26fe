// Package broker defines the channel capability the dispatch core depends on:
// named at-least-once channels that can be written by a Sender, drained in
// bounded batches by a Receiver, or streamed continuously by a Processor.
//
// Implementations live in separate packages (broker/memory,
// platform/postgres, platform/pebble) and are injected into the dispatch
// components at construction time. Nothing in this package holds
// process-wide state.
//
// # Delivery semantics
//
// Delivery is at-least-once. A received message stays invisible to other
// receivers until its visibility timeout lapses; Complete removes it for good.
// A message that is never completed becomes visible again and is redelivered.
//
// # Errors
//
// Drivers report failures as *Error values carrying a Reason. IsTransient
// reports whether a failure is worth retrying (timeouts and temporary
// unavailability); everything else is permanent.
package broker
