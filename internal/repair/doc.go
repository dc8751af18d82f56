// Package repair reconciles the snapshots of a document held by several
// replicas. It computes the joined state and identifies the replicas
// that lag behind it so they can be repaired.
package repair
