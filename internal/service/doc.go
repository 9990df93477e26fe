// Package service contains the application use cases for site tasks.
//
// TaskService coordinates the task store with the dispatch core: new tasks
// are persisted and then enqueued, and tasks taken off the task channel,
// by pull or by push, are marked completed in the store. It depends only on
// the store and dispatch abstractions, never on a concrete broker driver or
// database.
package service
