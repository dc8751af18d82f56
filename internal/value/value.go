package value

import (
	"bytes"
	"encoding/json"
	"fmt"
	"math"

	"github.com/pkg/errors"
	"google.golang.org/protobuf/encoding/protojson"
	"google.golang.org/protobuf/proto"
	"google.golang.org/protobuf/types/known/structpb"
)

// ErrInvalid is returned when Go data cannot be represented as a Value.
var ErrInvalid = errors.New("invalid value")

// Kind identifies which member of the closed kind set a Value holds.
type Kind int

const (
	Null Kind = iota
	Bool
	Number
	String
	List
	Struct
)

func (k Kind) String() string {
	switch k {
	case Null:
		return "null"
	case Bool:
		return "bool"
	case Number:
		return "number"
	case String:
		return "string"
	case List:
		return "list"
	case Struct:
		return "struct"
	default:
		return fmt.Sprintf("Kind(%d)", int(k))
	}
}

// Value is an immutable structured value. The zero Value is null.
type Value struct {
	pb *structpb.Value
}

// Of converts plain Go data into a Value. Supported inputs are nil, bool,
// integer and finite floating point numbers, json.Number, string,
// []any and map[string]any (recursively).
func Of(v any) (Value, error) {
	norm, err := normalize(v)
	if err != nil {
		return Value{}, err
	}
	pb, err := structpb.NewValue(norm)
	if err != nil {
		return Value{}, errors.Wrapf(ErrInvalid, "%v", err)
	}
	return Value{pb: pb}, nil
}

// MustOf is like Of but panics on error.
func MustOf(v any) Value {
	val, err := Of(v)
	if err != nil {
		panic(err)
	}
	return val
}

// NullValue returns the null value.
func NullValue() Value {
	return Value{pb: structpb.NewNullValue()}
}

// FromProto converts a protobuf value. The result does not share memory
// with pb; nil maps to null.
func FromProto(pb *structpb.Value) (Value, error) {
	if pb == nil {
		return NullValue(), nil
	}
	if err := check(pb); err != nil {
		return Value{}, err
	}
	return Of(pb.AsInterface())
}

// Proto returns a copy of the underlying protobuf value.
func (v Value) Proto() *structpb.Value {
	return proto.Clone(v.proto()).(*structpb.Value)
}

// Kind reports the kind of v.
func (v Value) Kind() Kind {
	switch v.proto().GetKind().(type) {
	case *structpb.Value_BoolValue:
		return Bool
	case *structpb.Value_NumberValue:
		return Number
	case *structpb.Value_StringValue:
		return String
	case *structpb.Value_ListValue:
		return List
	case *structpb.Value_StructValue:
		return Struct
	default:
		return Null
	}
}

// Equal reports deep equality.
func (v Value) Equal(other Value) bool {
	return proto.Equal(v.proto(), other.proto())
}

// Clone returns a deep copy of v.
func (v Value) Clone() Value {
	return Value{pb: v.Proto()}
}

// Interface converts v back into plain Go data (nil, bool, float64,
// string, []any, map[string]any).
func (v Value) Interface() any {
	return v.proto().AsInterface()
}

// Canonical returns a deterministic encoding of v. Values built by Of
// compare Equal exactly when their canonical encodings match.
func (v Value) Canonical() []byte {
	b, err := proto.MarshalOptions{Deterministic: true}.Marshal(v.proto())
	if err != nil {
		// Every constructor validates its input, so this is unreachable.
		panic(errors.Wrap(err, "canonical encoding"))
	}
	return b
}

// Compare orders values by canonical encoding.
func Compare(a, b Value) int {
	return bytes.Compare(a.Canonical(), b.Canonical())
}

// String returns the JSON form of v.
func (v Value) String() string {
	b, err := v.MarshalJSON()
	if err != nil {
		return fmt.Sprintf("<%v>", err)
	}
	return string(b)
}

func (v Value) MarshalJSON() ([]byte, error) {
	return protojson.Marshal(v.proto())
}

func (v *Value) UnmarshalJSON(data []byte) error {
	pb := &structpb.Value{}
	if err := protojson.Unmarshal(data, pb); err != nil {
		return errors.Wrapf(ErrInvalid, "%v", err)
	}
	val, err := FromProto(pb)
	if err != nil {
		return err
	}
	*v = val
	return nil
}

func (v Value) proto() *structpb.Value {
	if v.pb == nil {
		return structpb.NewNullValue()
	}
	return v.pb
}

func normalize(v any) (any, error) {
	switch t := v.(type) {
	case json.Number:
		f, err := t.Float64()
		if err != nil {
			return nil, errors.Wrapf(ErrInvalid, "number %q", t.String())
		}
		return normalize(f)
	case float64:
		if math.IsNaN(t) || math.IsInf(t, 0) {
			return nil, errors.Wrapf(ErrInvalid, "non-finite number %v", t)
		}
		if t == 0 {
			// fold -0 into 0
			return float64(0), nil
		}
		return t, nil
	case float32:
		return normalize(float64(t))
	case []any:
		out := make([]any, len(t))
		for i, e := range t {
			n, err := normalize(e)
			if err != nil {
				return nil, err
			}
			out[i] = n
		}
		return out, nil
	case map[string]any:
		out := make(map[string]any, len(t))
		for k, e := range t {
			n, err := normalize(e)
			if err != nil {
				return nil, err
			}
			out[k] = n
		}
		return out, nil
	case Value:
		return t.Interface(), nil
	default:
		return v, nil
	}
}

func check(pb *structpb.Value) error {
	switch k := pb.GetKind().(type) {
	case nil:
		return errors.Wrap(ErrInvalid, "value without kind")
	case *structpb.Value_NumberValue:
		if math.IsNaN(k.NumberValue) || math.IsInf(k.NumberValue, 0) {
			return errors.Wrapf(ErrInvalid, "non-finite number %v", k.NumberValue)
		}
	case *structpb.Value_ListValue:
		for _, e := range k.ListValue.GetValues() {
			if err := check(e); err != nil {
				return err
			}
		}
	case *structpb.Value_StructValue:
		for _, e := range k.StructValue.GetFields() {
			if err := check(e); err != nil {
				return err
			}
		}
	}
	return nil
}
