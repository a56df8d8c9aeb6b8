package wire

import (
	"bytes"
	"errors"
	"fmt"
	"strconv"

	"go.mongodb.org/mongo-driver/bson/bsonrw"
	"go.mongodb.org/mongo-driver/bson/bsontype"
	"google.golang.org/protobuf/proto"
	"google.golang.org/protobuf/reflect/protoreflect"
	"google.golang.org/protobuf/types/dynamicpb"

	"github.com/anirudhraja/protobson/schema"
)

// Decoder rebuilds protobuf messages from BSON token streams. Like Encoder it
// is stateless between calls.
type Decoder struct {
	index *schema.Index
}

// NewDecoder creates a decoder backed by the default index.
func NewDecoder() *Decoder {
	return &Decoder{index: schema.DefaultIndex}
}

// NewDecoderWithIndex creates a decoder that resolves names through index.
func NewDecoderWithIndex(index *schema.Index) *Decoder {
	return &Decoder{index: index}
}

// Decode merges the value under vr into m: repeated fields append, map
// entries are added and singular fields are overwritten. Unknown element
// names are skipped.
func (d *Decoder) Decode(vr bsonrw.ValueReader, m protoreflect.Message) error {
	if m.Descriptor() == nil {
		return asFieldError(newFieldError(ErrNoDescriptor, "%T", m.Interface()), "decode")
	}
	return asFieldError(d.decodeMessage(vr, m), "decode")
}

// Unmarshal resets msg and decodes a BSON document into it.
func (d *Decoder) Unmarshal(data []byte, msg proto.Message) error {
	return d.resetAndDecode(bsonrw.NewBSONDocumentReader(data), msg)
}

// UnmarshalExtJSON resets msg and decodes MongoDB Extended JSON into it.
func (d *Decoder) UnmarshalExtJSON(data []byte, msg proto.Message, canonical bool) error {
	vr, err := bsonrw.NewExtJSONValueReader(bytes.NewReader(data), canonical)
	if err != nil {
		return fmt.Errorf("failed to create extended json reader: %w", err)
	}
	return d.resetAndDecode(vr, msg)
}

func (d *Decoder) resetAndDecode(vr bsonrw.ValueReader, msg proto.Message) error {
	m := msg.ProtoReflect()
	if m.Descriptor() == nil {
		return asFieldError(newFieldError(ErrNoDescriptor, "%T", msg), "decode")
	}
	proto.Reset(msg)
	return d.Decode(vr, m)
}

// DecodeMessage decodes BSON bytes using schema - main entry point
func DecodeMessage(data []byte, md protoreflect.MessageDescriptor) (*dynamicpb.Message, error) {
	msg := dynamicpb.NewMessage(md)
	if err := NewDecoder().Unmarshal(data, msg); err != nil {
		return nil, err
	}
	return msg, nil
}

// decodeMessage is the full decode path for one message value. Well-known
// types read their bespoke form; other messages read a document, or an array
// whose element names are the decimal indexes.
func (d *Decoder) decodeMessage(vr bsonrw.ValueReader, m protoreflect.Message) error {
	if wk := schema.WellKnownOf(m.Descriptor()); wk != schema.WellKnownNone {
		return d.decodeWellKnown(vr, m, wk)
	}

	switch vr.Type() {
	case bsontype.EmbeddedDocument:
		dr, err := vr.ReadDocument()
		if err != nil {
			return err
		}
		for {
			name, evr, err := dr.ReadElement()
			if errors.Is(err, bsonrw.ErrEOD) {
				return nil
			}
			if err != nil {
				return err
			}
			if err := d.mergeField(evr, m, name); err != nil {
				return wrapWithField(err, "decode", name)
			}
		}
	case bsontype.Array:
		ar, err := vr.ReadArray()
		if err != nil {
			return err
		}
		for i := 0; ; i++ {
			evr, err := ar.ReadValue()
			if errors.Is(err, bsonrw.ErrEOA) {
				return nil
			}
			if err != nil {
				return err
			}
			name := strconv.Itoa(i)
			if err := d.mergeField(evr, m, name); err != nil {
				return wrapWithField(err, "decode", name)
			}
		}
	case bsontype.Null:
		return vr.ReadNull()
	default:
		return newFieldError(ErrUnexpectedToken, "%s cannot be a %s", vr.Type(), m.Descriptor().FullName())
	}
}

// mergeField decodes one element into the field it names.
func (d *Decoder) mergeField(vr bsonrw.ValueReader, m protoreflect.Message, name string) error {
	fd, ok := d.index.Resolve(m.Descriptor(), name)
	if !ok {
		return vr.Skip()
	}

	switch {
	case fd.IsMap():
		return NewMapDecoder(d).DecodeMap(vr, m, fd)
	case fd.IsList():
		return d.mergeList(vr, m, fd)
	}

	if vr.Type() == bsontype.Null && !acceptsNull(fd) {
		if err := vr.ReadNull(); err != nil {
			return err
		}
		m.Clear(fd)
		return nil
	}
	v, err := d.decodeSingle(vr, fd, func() protoreflect.Value { return m.NewField(fd) })
	if err != nil {
		return err
	}
	m.Set(fd, v)
	return nil
}

// acceptsNull reports whether null is a value of fd rather than an absence.
func acceptsNull(fd protoreflect.FieldDescriptor) bool {
	switch {
	case fd.Message() != nil:
		return schema.WellKnownOf(fd.Message()) == schema.WellKnownValue
	case fd.Enum() != nil:
		return schema.IsNullValue(fd.Enum())
	}
	return false
}

// mergeList appends the elements of an array to the repeated field fd.
func (d *Decoder) mergeList(vr bsonrw.ValueReader, m protoreflect.Message, fd protoreflect.FieldDescriptor) error {
	if vr.Type() != bsontype.Array {
		return newFieldError(ErrContainerMismatch, "repeated field %s expects an array, got %s", fd.Name(), vr.Type())
	}
	ar, err := vr.ReadArray()
	if err != nil {
		return err
	}
	list := m.Mutable(fd).List()
	for i := 0; ; i++ {
		evr, err := ar.ReadValue()
		if errors.Is(err, bsonrw.ErrEOA) {
			return nil
		}
		if err != nil {
			return err
		}
		v, err := d.decodeSingle(evr, fd, list.NewElement)
		if err != nil {
			return wrapWithField(err, "decode", strconv.Itoa(i))
		}
		list.Append(v)
	}
}
