// Package quorum fans an operation out to a set of replicas in parallel,
// bounds each call with a timeout and reports whether enough replicas
// acknowledged it.
package quorum
