// Package retry runs broker operations under a bounded exponential-backoff
// policy. Errors are classified by a caller-supplied predicate: transient
// errors are retried, everything else is returned at once.
package retry
