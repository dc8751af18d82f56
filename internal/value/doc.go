// Package value provides the opaque structured payload stored in document
// fields. A Value is one of a closed set of kinds (null, bool, number,
// string, list, struct) backed by the protobuf well-known struct types, so
// equality and encoding are total over every value that can be built.
package value
