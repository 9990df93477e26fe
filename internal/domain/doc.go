// Package domain contains the core entities that travel through the dispatch
// pipeline: task snapshots, their status, and the completion events recorded
// once a task message has been consumed. It has no knowledge of brokers,
// storage, or HTTP.
package domain
