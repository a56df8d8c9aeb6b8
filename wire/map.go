package wire

import (
	"errors"
	"sort"
	"strconv"

	"go.mongodb.org/mongo-driver/bson/bsonrw"
	"go.mongodb.org/mongo-driver/bson/bsontype"
	"google.golang.org/protobuf/reflect/protoreflect"
)

// MapDecoder handles map decoding operations
type MapDecoder struct {
	decoder *Decoder
}

// MapEncoder handles map encoding operations
type MapEncoder struct {
	encoder *Encoder
}

// NewMapDecoder creates a new map decoder
func NewMapDecoder(d *Decoder) *MapDecoder {
	return &MapDecoder{decoder: d}
}

// NewMapEncoder creates a new map encoder
func NewMapEncoder(e *Encoder) *MapEncoder {
	return &MapEncoder{encoder: e}
}

// DECODER METHODS

// DecodeMap merges a document into the map field fd of m. Each element name is
// parsed as a key of fd's key kind; a key seen twice keeps the later value.
func (md *MapDecoder) DecodeMap(vr bsonrw.ValueReader, m protoreflect.Message, fd protoreflect.FieldDescriptor) error {
	if vr.Type() != bsontype.EmbeddedDocument {
		return newFieldError(ErrContainerMismatch, "map field %s expects a document, got %s", fd.Name(), vr.Type())
	}
	dr, err := vr.ReadDocument()
	if err != nil {
		return err
	}

	mp := m.Mutable(fd).Map()
	valueFd := fd.MapValue()
	for {
		name, evr, err := dr.ReadElement()
		if errors.Is(err, bsonrw.ErrEOD) {
			return nil
		}
		if err != nil {
			return err
		}

		key, err := parseMapKey(fd.MapKey(), name)
		if err != nil {
			return wrapWithField(err, "decode", name)
		}
		value, err := md.decoder.decodeSingle(evr, valueFd, mp.NewValue)
		if err != nil {
			return wrapWithField(err, "decode", name)
		}
		mp.Set(key, value)
	}
}

// parseMapKey turns a document element name into a key of kd's kind.
func parseMapKey(kd protoreflect.FieldDescriptor, s string) (protoreflect.MapKey, error) {
	switch kd.Kind() {
	case protoreflect.StringKind:
		return protoreflect.ValueOfString(s).MapKey(), nil
	case protoreflect.BoolKind:
		switch s {
		case "true":
			return protoreflect.ValueOfBool(true).MapKey(), nil
		case "false":
			return protoreflect.ValueOfBool(false).MapKey(), nil
		}
	case protoreflect.Int32Kind, protoreflect.Sint32Kind, protoreflect.Sfixed32Kind:
		if v, err := strconv.ParseInt(s, 10, 32); err == nil {
			return protoreflect.ValueOfInt32(int32(v)).MapKey(), nil
		}
	case protoreflect.Int64Kind, protoreflect.Sint64Kind, protoreflect.Sfixed64Kind:
		if v, err := strconv.ParseInt(s, 10, 64); err == nil {
			return protoreflect.ValueOfInt64(v).MapKey(), nil
		}
	case protoreflect.Uint32Kind, protoreflect.Fixed32Kind:
		if v, err := strconv.ParseUint(s, 10, 32); err == nil {
			return protoreflect.ValueOfUint32(uint32(v)).MapKey(), nil
		}
	case protoreflect.Uint64Kind, protoreflect.Fixed64Kind:
		if v, err := strconv.ParseUint(s, 10, 64); err == nil {
			return protoreflect.ValueOfUint64(v).MapKey(), nil
		}
	default:
		return protoreflect.MapKey{}, newFieldError(ErrInvalidMapKey, "kind %v cannot be a map key", kd.Kind())
	}
	return protoreflect.MapKey{}, newFieldError(ErrInvalidMapKey, "%q is not a valid %v key", s, kd.Kind())
}

// ENCODER METHODS

// EncodeMap writes a map as a document whose element names are the keys in
// text form. Entries are written in ascending key order.
func (me *MapEncoder) EncodeMap(vw bsonrw.ValueWriter, fd protoreflect.FieldDescriptor, mp protoreflect.Map) error {
	keys := make([]protoreflect.MapKey, 0, mp.Len())
	mp.Range(func(k protoreflect.MapKey, _ protoreflect.Value) bool {
		keys = append(keys, k)
		return true
	})
	sortMapKeys(fd.MapKey().Kind(), keys)

	dw, err := vw.WriteDocument()
	if err != nil {
		return err
	}
	valueFd := fd.MapValue()
	for _, k := range keys {
		name, err := formatMapKey(fd.MapKey(), k)
		if err != nil {
			return err
		}
		evw, err := dw.WriteDocumentElement(name)
		if err != nil {
			return err
		}
		if err := me.encoder.encodeSingle(evw, valueFd, mp.Get(k)); err != nil {
			return wrapWithField(err, "encode", name)
		}
	}
	return dw.WriteDocumentEnd()
}

// formatMapKey renders k as a document element name.
func formatMapKey(kd protoreflect.FieldDescriptor, k protoreflect.MapKey) (string, error) {
	switch kd.Kind() {
	case protoreflect.StringKind:
		return k.String(), nil
	case protoreflect.BoolKind:
		return strconv.FormatBool(k.Bool()), nil
	case protoreflect.Int32Kind, protoreflect.Sint32Kind, protoreflect.Sfixed32Kind,
		protoreflect.Int64Kind, protoreflect.Sint64Kind, protoreflect.Sfixed64Kind:
		return strconv.FormatInt(k.Int(), 10), nil
	case protoreflect.Uint32Kind, protoreflect.Fixed32Kind,
		protoreflect.Uint64Kind, protoreflect.Fixed64Kind:
		return strconv.FormatUint(k.Uint(), 10), nil
	default:
		return "", newFieldError(ErrInvalidMapKey, "kind %v cannot be a map key", kd.Kind())
	}
}

func sortMapKeys(kind protoreflect.Kind, keys []protoreflect.MapKey) {
	sort.Slice(keys, func(i, j int) bool {
		switch kind {
		case protoreflect.StringKind:
			return keys[i].String() < keys[j].String()
		case protoreflect.BoolKind:
			return !keys[i].Bool() && keys[j].Bool()
		case protoreflect.Uint32Kind, protoreflect.Fixed32Kind,
			protoreflect.Uint64Kind, protoreflect.Fixed64Kind:
			return keys[i].Uint() < keys[j].Uint()
		default:
			return keys[i].Int() < keys[j].Int()
		}
	})
}
