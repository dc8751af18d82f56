// Package clock provides the logical clock used to stamp field writes.
// Timestamps are Lamport counters: monotonic per node, advanced past every
// timestamp observed from other replicas, never derived from wall time.
package clock
