// Package storage provides the registry of documents hosted by a node and
// the backends that persist their snapshots. The registry serializes access
// to each document; backends merge on save so concurrent writers never
// drop each other's fields.
package storage
