// Package ring places documents on nodes with consistent hashing over
// virtual nodes. The preference list of a document id names the replicas
// that exchange its state during anti-entropy.
package ring
