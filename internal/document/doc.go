// Package document implements a per-field last-writer-wins document: a
// named mapping from field names to registers that converges under merge
// regardless of merge order, grouping or duplication.
//
// A Document is not safe for concurrent use; callers that share one must
// guard it (see package storage).
package document
