// Package register implements the last-writer-wins field register and the
// total order used to pick a winner between two writes to the same field.
package register
