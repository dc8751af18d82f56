// Package replication exchanges document snapshots between replicas over
// gRPC. Delivery may be duplicated, reordered or lost: every exchange ends
// in a merge, and merges commute, so replicas converge as long as they
// keep talking.
//
// The wire messages are protobuf Structs, so the service needs no
// generated code; the descriptor in service.go is written by hand.
package replication
