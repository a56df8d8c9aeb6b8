package wire

import (
	"bytes"
	"fmt"
	"strconv"

	"go.mongodb.org/mongo-driver/bson/bsonrw"
	"google.golang.org/protobuf/proto"
	"google.golang.org/protobuf/reflect/protoreflect"

	"github.com/anirudhraja/protobson/schema"
)

// Encoder renders protobuf messages as BSON token streams. An Encoder holds no
// per-call state and may be shared between goroutines.
type Encoder struct {
	opts  Options
	index *schema.Index
}

// NewEncoder creates an encoder with the given options and the default index.
func NewEncoder(opts Options) *Encoder {
	return &Encoder{
		opts:  opts,
		index: schema.DefaultIndex,
	}
}

// NewEncoderWithIndex creates an encoder that resolves fields through index.
func NewEncoderWithIndex(opts Options, index *schema.Index) *Encoder {
	return &Encoder{
		opts:  opts,
		index: index,
	}
}

// Options returns the options the encoder was built with.
func (e *Encoder) Options() Options {
	return e.opts
}

// Encode writes m to vw. Well-known types get their bespoke form; anything
// else becomes a document.
func (e *Encoder) Encode(vw bsonrw.ValueWriter, m protoreflect.Message) error {
	if m.Descriptor() == nil {
		return asFieldError(newFieldError(ErrNoDescriptor, "%T", m.Interface()), "encode")
	}
	return asFieldError(e.encodeMessage(vw, m), "encode")
}

// Marshal encodes msg as a BSON document. Messages whose bespoke form is not a
// document (wrappers, Value, FieldMask, ListValue) cannot be top-level BSON and
// fail here; embed them in another message or use Encode.
func (e *Encoder) Marshal(msg proto.Message) ([]byte, error) {
	var buf bytes.Buffer
	vw, err := bsonrw.NewBSONValueWriter(&buf)
	if err != nil {
		return nil, fmt.Errorf("failed to create bson writer: %w", err)
	}
	if err := e.Encode(vw, msg.ProtoReflect()); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}

// MarshalExtJSON renders msg as MongoDB Extended JSON.
func (e *Encoder) MarshalExtJSON(msg proto.Message, canonical bool) ([]byte, error) {
	var buf bytes.Buffer
	vw, err := bsonrw.NewExtJSONValueWriter(&buf, canonical, false)
	if err != nil {
		return nil, fmt.Errorf("failed to create extended json writer: %w", err)
	}
	if err := e.Encode(vw, msg.ProtoReflect()); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}

// EncodeMessage encodes a message with the given options - main entry point
func EncodeMessage(msg proto.Message, opts Options) ([]byte, error) {
	return NewEncoder(opts).Marshal(msg)
}

// encodeMessage is the full encode path for one message value, also used for
// every nested message so that nested well-known types get their own form.
func (e *Encoder) encodeMessage(vw bsonrw.ValueWriter, m protoreflect.Message) error {
	if wk := schema.WellKnownOf(m.Descriptor()); wk != schema.WellKnownNone {
		return e.encodeWellKnown(vw, m, wk)
	}

	dw, err := vw.WriteDocument()
	if err != nil {
		return err
	}
	for _, fd := range e.fieldsToWrite(m) {
		name := e.fieldName(fd)
		fvw, err := dw.WriteDocumentElement(name)
		if err != nil {
			return err
		}
		if err := e.encodeField(fvw, fd, m.Get(fd)); err != nil {
			return wrapWithField(err, "encode", name)
		}
	}
	return dw.WriteDocumentEnd()
}

// fieldsToWrite returns the populated fields of m plus, when defaults are
// included, every unset field that is neither a singular message nor a oneof
// member. The result is ordered by number.
func (e *Encoder) fieldsToWrite(m protoreflect.Message) []protoreflect.FieldDescriptor {
	ordered := e.index.Lookup(m.Descriptor()).Ordered()
	out := make([]protoreflect.FieldDescriptor, 0, len(ordered))
	for _, fd := range ordered {
		if m.Has(fd) {
			out = append(out, fd)
			continue
		}
		if !e.opts.IncludeDefaultValueFields {
			continue
		}
		if !fd.IsList() && !fd.IsMap() {
			if fd.Message() != nil || fd.ContainingOneof() != nil {
				continue
			}
		}
		out = append(out, fd)
	}
	return out
}

func (e *Encoder) fieldName(fd protoreflect.FieldDescriptor) string {
	if e.opts.PreserveOriginalFieldNames {
		return string(fd.Name())
	}
	return fd.JSONName()
}

// encodeField dispatches on the field's container kind.
func (e *Encoder) encodeField(vw bsonrw.ValueWriter, fd protoreflect.FieldDescriptor, v protoreflect.Value) error {
	switch {
	case fd.IsMap():
		return NewMapEncoder(e).EncodeMap(vw, fd, v.Map())
	case fd.IsList():
		return e.encodeList(vw, fd, v.List())
	default:
		return e.encodeSingle(vw, fd, v)
	}
}

// encodeList writes an array of single values, preserving order.
func (e *Encoder) encodeList(vw bsonrw.ValueWriter, fd protoreflect.FieldDescriptor, list protoreflect.List) error {
	aw, err := vw.WriteArray()
	if err != nil {
		return err
	}
	for i := 0; i < list.Len(); i++ {
		evw, err := aw.WriteArrayElement()
		if err != nil {
			return err
		}
		if err := e.encodeSingle(evw, fd, list.Get(i)); err != nil {
			return wrapWithField(err, "encode", strconv.Itoa(i))
		}
	}
	return aw.WriteArrayEnd()
}
