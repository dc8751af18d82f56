package replication

import (
	"strconv"

	"github.com/pkg/errors"
	"google.golang.org/protobuf/types/known/structpb"

	"lwwdoc/internal/document"
	"lwwdoc/internal/register"
	"lwwdoc/internal/value"
)

// ErrMalformed is returned for snapshots that do not follow the wire format.
var ErrMalformed = errors.New("malformed snapshot")

// SnapshotToProto encodes the full state of doc. Timestamps travel as
// decimal strings because protobuf numbers are doubles.
func SnapshotToProto(doc *document.Document) *structpb.Struct {
	regs := doc.Registers()
	fields := make(map[string]*structpb.Value, len(regs))
	for name, r := range regs {
		fields[name] = structpb.NewStructValue(&structpb.Struct{
			Fields: map[string]*structpb.Value{
				"value":     r.Value.Proto(),
				"timestamp": structpb.NewStringValue(strconv.FormatUint(r.Timestamp, 10)),
				"writer":    structpb.NewStringValue(r.WriterID),
			},
		})
	}

	return &structpb.Struct{
		Fields: map[string]*structpb.Value{
			"id":     structpb.NewStringValue(doc.ID()),
			"fields": structpb.NewStructValue(&structpb.Struct{Fields: fields}),
		},
	}
}

// SnapshotFromProto decodes a snapshot produced by SnapshotToProto.
func SnapshotFromProto(pb *structpb.Struct) (*document.Document, error) {
	id, err := stringField(pb, "id")
	if err != nil {
		return nil, err
	}

	doc := document.New(id)
	fieldsVal, ok := pb.GetFields()["fields"]
	if !ok {
		return doc, nil
	}
	fields := fieldsVal.GetStructValue()
	if fields == nil {
		return nil, errors.Wrap(ErrMalformed, "fields is not an object")
	}

	for name, item := range fields.GetFields() {
		r, err := registerFromProto(item.GetStructValue())
		if err != nil {
			return nil, errors.Wrapf(err, "field %q", name)
		}
		doc.Apply(name, r)
	}
	return doc, nil
}

func registerFromProto(pb *structpb.Struct) (register.Register, error) {
	if pb == nil {
		return register.Register{}, errors.Wrap(ErrMalformed, "register is not an object")
	}

	raw, err := stringField(pb, "timestamp")
	if err != nil {
		return register.Register{}, err
	}
	ts, err := strconv.ParseUint(raw, 10, 64)
	if err != nil {
		return register.Register{}, errors.Wrapf(ErrMalformed, "timestamp %q", raw)
	}

	writer, err := stringField(pb, "writer")
	if err != nil {
		return register.Register{}, err
	}

	v, err := value.FromProto(pb.GetFields()["value"])
	if err != nil {
		return register.Register{}, errors.Wrap(ErrMalformed, err.Error())
	}

	return register.New(v, ts, writer), nil
}

// pullRequestToProto encodes a request for the registers of id written
// after since.
func pullRequestToProto(id string, since uint64) *structpb.Struct {
	return &structpb.Struct{
		Fields: map[string]*structpb.Value{
			"id":    structpb.NewStringValue(id),
			"since": structpb.NewStringValue(strconv.FormatUint(since, 10)),
		},
	}
}

func pullRequestFromProto(pb *structpb.Struct) (string, uint64, error) {
	id, err := stringField(pb, "id")
	if err != nil {
		return "", 0, err
	}
	if _, ok := pb.GetFields()["since"]; !ok {
		return id, 0, nil
	}
	raw, err := stringField(pb, "since")
	if err != nil {
		return "", 0, err
	}
	since, err := strconv.ParseUint(raw, 10, 64)
	if err != nil {
		return "", 0, errors.Wrapf(ErrMalformed, "since %q", raw)
	}
	return id, since, nil
}

func stringField(pb *structpb.Struct, name string) (string, error) {
	v, ok := pb.GetFields()[name]
	if !ok {
		return "", errors.Wrapf(ErrMalformed, "missing %s", name)
	}
	s, ok := v.GetKind().(*structpb.Value_StringValue)
	if !ok {
		return "", errors.Wrapf(ErrMalformed, "%s is not a string", name)
	}
	return s.StringValue, nil
}
