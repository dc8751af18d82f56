package document

import (
	"encoding/json"

	"github.com/pkg/errors"

	"lwwdoc/internal/register"
	"lwwdoc/internal/value"
)

type snapshot struct {
	ID     string                  `json:"id"`
	Fields map[string]snapshotItem `json:"fields"`
}

type snapshotItem struct {
	Value     value.Value `json:"value"`
	Timestamp uint64      `json:"timestamp"`
	Writer    string      `json:"writer"`
}

// MarshalJSON encodes the full state of d, metadata included.
func (d *Document) MarshalJSON() ([]byte, error) {
	s := snapshot{
		ID:     d.id,
		Fields: make(map[string]snapshotItem, len(d.fields)),
	}
	for k, r := range d.fields {
		s.Fields[k] = snapshotItem{Value: r.Value, Timestamp: r.Timestamp, Writer: r.WriterID}
	}
	return json.Marshal(s)
}

// UnmarshalJSON replaces the state of d with a snapshot produced by
// MarshalJSON.
func (d *Document) UnmarshalJSON(data []byte) error {
	var s snapshot
	if err := json.Unmarshal(data, &s); err != nil {
		return errors.Wrap(err, "decode document snapshot")
	}
	d.id = s.ID
	d.fields = make(map[string]register.Register, len(s.Fields))
	for k, item := range s.Fields {
		d.fields[k] = register.New(item.Value, item.Timestamp, item.Writer)
	}
	return nil
}

// FromJSON builds a document from a flat field mapping as produced by
// ToJSON, applying every entry as a write with the given timestamp and
// writer.
func FromJSON(id string, fields map[string]any, ts uint64, writerID string) (*Document, error) {
	d := New(id)
	for k, raw := range fields {
		v, err := value.Of(raw)
		if err != nil {
			return nil, errors.Wrapf(err, "field %q", k)
		}
		d.SetField(k, v, ts, writerID)
	}
	return d, nil
}
