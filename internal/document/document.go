package document

import (
	"sort"

	mapset "github.com/deckarep/golang-set/v2"
	"github.com/sanity-io/litter"

	"lwwdoc/internal/register"
	"lwwdoc/internal/value"
)

// Outcome describes what a write did to a field.
type Outcome int

const (
	// Superseded means the existing register won and nothing changed.
	Superseded Outcome = iota
	// Inserted means the field did not exist before.
	Inserted
	// Replaced means the incoming register won over the existing one.
	Replaced
	// Duplicate means the same write had already been applied.
	Duplicate
	// CollisionReplaced means both writes carried the same timestamp and
	// writer with different values, and the incoming value won.
	CollisionReplaced
	// CollisionKept is like CollisionReplaced but the existing value won.
	CollisionKept
)

// Applied reports whether the write changed the document.
func (o Outcome) Applied() bool {
	return o == Inserted || o == Replaced || o == CollisionReplaced
}

// IsCollision reports whether the write collided with an existing register.
func (o Outcome) IsCollision() bool {
	return o == CollisionReplaced || o == CollisionKept
}

func (o Outcome) String() string {
	switch o {
	case Superseded:
		return "superseded"
	case Inserted:
		return "inserted"
	case Replaced:
		return "replaced"
	case Duplicate:
		return "duplicate"
	case CollisionReplaced:
		return "collision-replaced"
	case CollisionKept:
		return "collision-kept"
	default:
		return "unknown"
	}
}

// MergeResult summarizes a merge.
type MergeResult struct {
	// Applied is the number of fields taken from the other document.
	Applied int
	// Collisions is the number of fields whose registers collided.
	Collisions int
	// Fields lists the fields taken from the other document, sorted.
	Fields []string
}

// Document is an identified mapping from field name to its current register.
type Document struct {
	id     string
	fields map[string]register.Register
}

// New creates an empty document.
func New(id string) *Document {
	return &Document{
		id:     id,
		fields: make(map[string]register.Register),
	}
}

// ID returns the document identifier.
func (d *Document) ID() string {
	return d.id
}

// Len returns the number of fields.
func (d *Document) Len() int {
	return len(d.fields)
}

// SetField applies a local write. The write takes effect when the field is
// absent or the new register wins against the current one; a superseded
// write is silently ignored. It reports whether the write took effect.
func (d *Document) SetField(field string, v value.Value, ts uint64, writerID string) bool {
	return d.Apply(field, register.New(v, ts, writerID)).Applied()
}

// Apply offers r as the register for field and reports the outcome.
func (d *Document) Apply(field string, r register.Register) Outcome {
	existing, ok := d.fields[field]
	if !ok {
		d.fields[field] = r
		return Inserted
	}

	collision := register.Collides(r, existing)
	switch register.Compare(r, existing) {
	case register.After:
		d.fields[field] = r
		if collision {
			return CollisionReplaced
		}
		return Replaced
	case register.Equal:
		return Duplicate
	default:
		if collision {
			return CollisionKept
		}
		return Superseded
	}
}

// GetField returns the current value of field, if present.
func (d *Document) GetField(field string) (value.Value, bool) {
	r, ok := d.fields[field]
	if !ok {
		return value.Value{}, false
	}
	return r.Value, true
}

// Register returns the current register of field, if present.
func (d *Document) Register(field string) (register.Register, bool) {
	r, ok := d.fields[field]
	return r, ok
}

// Registers returns a copy of the field mapping.
func (d *Document) Registers() map[string]register.Register {
	out := make(map[string]register.Register, len(d.fields))
	for k, r := range d.fields {
		out[k] = r
	}
	return out
}

// Fields returns the set of field names.
func (d *Document) Fields() mapset.Set[string] {
	set := mapset.NewThreadUnsafeSet[string]()
	for k := range d.fields {
		set.Add(k)
	}
	return set
}

// Merge folds the state of other into d. For every field of other the
// winning register is kept; fields only present in d are untouched. other
// is not modified and may carry a different id.
func (d *Document) Merge(other *Document) MergeResult {
	var res MergeResult
	if other == nil || other == d {
		return res
	}

	for field, r := range other.fields {
		o := d.Apply(field, r)
		if o.IsCollision() {
			res.Collisions++
		}
		if o.Applied() {
			res.Applied++
			res.Fields = append(res.Fields, field)
		}
	}
	sort.Strings(res.Fields)

	return res
}

// ToJSON returns a flat snapshot of field values without metadata.
func (d *Document) ToJSON() map[string]any {
	out := make(map[string]any, len(d.fields))
	for k, r := range d.fields {
		out[k] = r.Value.Interface()
	}
	return out
}

// Clone returns a deep, independent copy of d.
func (d *Document) Clone() *Document {
	c := &Document{
		id:     d.id,
		fields: make(map[string]register.Register, len(d.fields)),
	}
	for k, r := range d.fields {
		c.fields[k] = r.Clone()
	}
	return c
}

// MaxTimestamp returns the largest timestamp held by any field.
func (d *Document) MaxTimestamp() uint64 {
	var max uint64
	for _, r := range d.fields {
		if r.Timestamp > max {
			max = r.Timestamp
		}
	}
	return max
}

// Delta returns a document with the same id holding only the registers
// written after since. Merging the delta has the same effect on a replica
// that has already seen everything up to since as merging d itself.
func (d *Document) Delta(since uint64) *Document {
	delta := New(d.id)
	for k, r := range d.fields {
		if r.Timestamp > since {
			delta.fields[k] = r
		}
	}
	return delta
}

// Equal reports whether d and other hold the same registers. Ids are not
// compared.
func (d *Document) Equal(other *Document) bool {
	if len(d.fields) != len(other.fields) {
		return false
	}
	for k, r := range d.fields {
		o, ok := other.fields[k]
		if !ok || register.Compare(r, o) != register.Equal {
			return false
		}
	}
	return true
}

func (d *Document) String() string {
	return litter.Sdump(struct {
		ID     string
		Fields map[string]any
	}{d.id, d.ToJSON()})
}
