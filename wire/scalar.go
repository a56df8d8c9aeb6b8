package wire

import (
	"go.mongodb.org/mongo-driver/bson/bsonrw"
	"go.mongodb.org/mongo-driver/bson/bsontype"
	"google.golang.org/protobuf/reflect/protoreflect"

	"github.com/anirudhraja/protobson/schema"
)

// ENCODER METHODS

// encodeSingle writes one value of fd's kind.
//
//	int32, sint32, sfixed32   -> int32
//	int64, sint64, sfixed64   -> int64
//	uint32, fixed32           -> int64
//	uint64, fixed64           -> int64 (two's complement)
//	float, double             -> double
//	bool, string, bytes       -> boolean, string, binary
//	enum                      -> name, or int32 when the number is undeclared
//	message, group            -> full message encode
func (e *Encoder) encodeSingle(vw bsonrw.ValueWriter, fd protoreflect.FieldDescriptor, v protoreflect.Value) error {
	switch fd.Kind() {
	case protoreflect.Int32Kind, protoreflect.Sint32Kind, protoreflect.Sfixed32Kind:
		return vw.WriteInt32(int32(v.Int()))
	case protoreflect.Int64Kind, protoreflect.Sint64Kind, protoreflect.Sfixed64Kind:
		return vw.WriteInt64(v.Int())
	case protoreflect.Uint32Kind, protoreflect.Fixed32Kind:
		return vw.WriteInt64(int64(v.Uint()))
	case protoreflect.Uint64Kind, protoreflect.Fixed64Kind:
		return vw.WriteInt64(int64(v.Uint()))
	case protoreflect.FloatKind, protoreflect.DoubleKind:
		return vw.WriteDouble(normalizeFloat(v.Float()))
	case protoreflect.BoolKind:
		return vw.WriteBoolean(v.Bool())
	case protoreflect.StringKind:
		return vw.WriteString(v.String())
	case protoreflect.BytesKind:
		return vw.WriteBinary(v.Bytes())
	case protoreflect.EnumKind:
		return e.encodeEnum(vw, fd.Enum(), v.Enum())
	case protoreflect.MessageKind, protoreflect.GroupKind:
		return e.encodeMessage(vw, v.Message())
	default:
		return newFieldError(ErrUnsupportedKind, "%v", fd.Kind())
	}
}

func (e *Encoder) encodeEnum(vw bsonrw.ValueWriter, ed protoreflect.EnumDescriptor, n protoreflect.EnumNumber) error {
	if schema.IsNullValue(ed) {
		return vw.WriteNull()
	}
	if ev := ed.Values().ByNumber(n); ev != nil {
		return vw.WriteString(string(ev.Name()))
	}
	// open enums may carry numbers the schema does not declare
	return vw.WriteInt32(int32(n))
}

// DECODER METHODS

// decodeSingle reads one value of fd's kind. newMessage supplies the mutable
// message that message kinds decode into; it is only called for those kinds.
func (d *Decoder) decodeSingle(vr bsonrw.ValueReader, fd protoreflect.FieldDescriptor, newMessage func() protoreflect.Value) (protoreflect.Value, error) {
	switch fd.Kind() {
	case protoreflect.Int32Kind, protoreflect.Sint32Kind, protoreflect.Sfixed32Kind:
		v, err := readInt32(vr)
		return protoreflect.ValueOfInt32(v), err
	case protoreflect.Int64Kind, protoreflect.Sint64Kind, protoreflect.Sfixed64Kind:
		v, err := readInteger(vr)
		return protoreflect.ValueOfInt64(v), err
	case protoreflect.Uint32Kind, protoreflect.Fixed32Kind:
		v, err := readUint32(vr)
		return protoreflect.ValueOfUint32(v), err
	case protoreflect.Uint64Kind, protoreflect.Fixed64Kind:
		v, err := readInteger(vr)
		return protoreflect.ValueOfUint64(uint64(v)), err
	case protoreflect.FloatKind:
		v, err := readDouble(vr)
		return protoreflect.ValueOfFloat32(float32(v)), err
	case protoreflect.DoubleKind:
		v, err := readDouble(vr)
		return protoreflect.ValueOfFloat64(v), err
	case protoreflect.BoolKind:
		if err := expectType(vr, bsontype.Boolean); err != nil {
			return protoreflect.Value{}, err
		}
		v, err := vr.ReadBoolean()
		return protoreflect.ValueOfBool(v), err
	case protoreflect.StringKind:
		if err := expectType(vr, bsontype.String); err != nil {
			return protoreflect.Value{}, err
		}
		v, err := vr.ReadString()
		return protoreflect.ValueOfString(v), err
	case protoreflect.BytesKind:
		if err := expectType(vr, bsontype.Binary); err != nil {
			return protoreflect.Value{}, err
		}
		b, _, err := vr.ReadBinary()
		if err != nil {
			return protoreflect.Value{}, err
		}
		return protoreflect.ValueOfBytes(append([]byte{}, b...)), nil
	case protoreflect.EnumKind:
		return d.decodeEnum(vr, fd.Enum())
	case protoreflect.MessageKind, protoreflect.GroupKind:
		v := newMessage()
		if err := d.decodeMessage(vr, v.Message()); err != nil {
			return protoreflect.Value{}, err
		}
		return v, nil
	default:
		return protoreflect.Value{}, newFieldError(ErrUnsupportedKind, "%v", fd.Kind())
	}
}

// decodeEnum resolves a string token by value name. Numbers are not accepted.
func (d *Decoder) decodeEnum(vr bsonrw.ValueReader, ed protoreflect.EnumDescriptor) (protoreflect.Value, error) {
	if schema.IsNullValue(ed) && vr.Type() == bsontype.Null {
		if err := vr.ReadNull(); err != nil {
			return protoreflect.Value{}, err
		}
		return protoreflect.ValueOfEnum(0), nil
	}
	if err := expectType(vr, bsontype.String); err != nil {
		return protoreflect.Value{}, err
	}
	name, err := vr.ReadString()
	if err != nil {
		return protoreflect.Value{}, err
	}
	ev := ed.Values().ByName(protoreflect.Name(name))
	if ev == nil {
		return protoreflect.Value{}, newFieldError(ErrUnknownEnumName, "%q is not a value of %s", name, ed.FullName())
	}
	return protoreflect.ValueOfEnum(ev.Number()), nil
}
