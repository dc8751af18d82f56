package register

import (
	"fmt"
	"strings"

	"lwwdoc/internal/value"
)

// Register is a single write to a field: the value together with the
// logical timestamp and identity of its writer. Registers are treated as
// immutable; a field's current register is replaced, never edited.
type Register struct {
	Value     value.Value
	Timestamp uint64
	WriterID  string
}

// New creates a register.
func New(v value.Value, ts uint64, writerID string) Register {
	return Register{Value: v, Timestamp: ts, WriterID: writerID}
}

// CompareResult represents the result of comparing two registers.
type CompareResult int

const (
	// Before indicates the register loses to the other.
	Before CompareResult = iota
	// After indicates the register wins over the other.
	After
	// Equal indicates both registers describe the same write.
	Equal
)

func (c CompareResult) String() string {
	switch c {
	case Before:
		return "before"
	case After:
		return "after"
	case Equal:
		return "equal"
	default:
		return fmt.Sprintf("CompareResult(%d)", int(c))
	}
}

// Compare orders a against b:
//   - the larger timestamp wins;
//   - on equal timestamps the byte-wise greater writer ID wins;
//   - on equal timestamp and writer the registers are Equal when their
//     values are, otherwise the greater canonical value encoding wins.
//
// The order is total, so Compare(a, b) is always the mirror of Compare(b, a).
func Compare(a, b Register) CompareResult {
	switch {
	case a.Timestamp > b.Timestamp:
		return After
	case a.Timestamp < b.Timestamp:
		return Before
	}

	if c := strings.Compare(a.WriterID, b.WriterID); c != 0 {
		return fromInt(c)
	}

	return fromInt(value.Compare(a.Value, b.Value))
}

// Wins reports whether a strictly beats b.
func Wins(a, b Register) bool {
	return Compare(a, b) == After
}

// Join returns the winner of a and b. It is commutative, associative and
// idempotent.
func Join(a, b Register) Register {
	if Wins(b, a) {
		return b
	}
	return a
}

// Collides reports whether a and b carry the same timestamp and writer but
// different values. Unique writer IDs per write make this impossible; when
// it does happen Compare still picks a deterministic winner.
func Collides(a, b Register) bool {
	return a.Timestamp == b.Timestamp && a.WriterID == b.WriterID && !a.Value.Equal(b.Value)
}

// Clone returns a deep copy of r.
func (r Register) Clone() Register {
	return Register{Value: r.Value.Clone(), Timestamp: r.Timestamp, WriterID: r.WriterID}
}

func (r Register) String() string {
	return fmt.Sprintf("%s@%d/%s", r.Value, r.Timestamp, r.WriterID)
}

func fromInt(c int) CompareResult {
	switch {
	case c > 0:
		return After
	case c < 0:
		return Before
	default:
		return Equal
	}
}
