package repair

import (
	"sort"

	"lwwdoc/internal/document"
	"lwwdoc/internal/register"
)

// ReconcileResult represents the result of reconciling several snapshots
// of the same document.
type ReconcileResult struct {
	// Merged is the join of every snapshot.
	Merged *document.Document

	// Stale maps replica identifier to the fields on which its snapshot
	// misses or loses against Merged, sorted.
	Stale map[string][]string
}

// Reconcile joins the given snapshots, keyed by replica identifier, into
// a document with the given id. A nil snapshot stands for a replica that
// does not hold the document at all.
func Reconcile(id string, snapshots map[string]*document.Document) ReconcileResult {
	merged := document.New(id)
	for _, snap := range snapshots {
		merged.Merge(snap)
	}

	stale := make(map[string][]string)
	for replica, snap := range snapshots {
		if fields := behind(snap, merged); len(fields) > 0 {
			stale[replica] = fields
		}
	}

	return ReconcileResult{
		Merged: merged,
		Stale:  stale,
	}
}

// behind returns the fields of merged that snap is missing or holds an
// older register for.
func behind(snap, merged *document.Document) []string {
	var fields []string
	for field, want := range merged.Registers() {
		var (
			have register.Register
			ok   bool
		)
		if snap != nil {
			have, ok = snap.Register(field)
		}
		if !ok || register.Compare(have, want) != register.Equal {
			fields = append(fields, field)
		}
	}
	sort.Strings(fields)
	return fields
}

// IsConverged returns true if every replica already holds the joined state.
func (r *ReconcileResult) IsConverged() bool {
	return len(r.Stale) == 0
}

// StaleReplicas returns the identifiers of the lagging replicas, sorted.
func (r *ReconcileResult) StaleReplicas() []string {
	out := make([]string, 0, len(r.Stale))
	for replica := range r.Stale {
		out = append(out, replica)
	}
	sort.Strings(out)
	return out
}
