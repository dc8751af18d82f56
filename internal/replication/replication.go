package replication

import (
	"lwwdoc/internal/ring"
)

// DefaultReplicationFactor is used when no replication factor is set.
const DefaultReplicationFactor = 3

// ReplicasFor returns the nodes responsible for a document using the
// ring's preference list.
func ReplicasFor(r *ring.Ring, id string, replicationFactor int) []ring.Node {
	if replicationFactor <= 0 {
		replicationFactor = DefaultReplicationFactor
	}
	return r.PreferenceList(id, replicationFactor)
}
