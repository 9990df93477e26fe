// Package dispatch implements the message-dispatch core: publishing task
// snapshots, consuming them in bounded batches or continuously, and chaining a
// completion event for every acknowledged task.
//
// Every component takes its broker.Broker at construction; there is no
// package-level connection. Delivery is at-least-once: a message is only
// acknowledged after it decoded successfully (and, in push mode, after the
// handler returned nil), and anything left unacknowledged is redelivered by
// the broker once its visibility timeout lapses.
package dispatch
