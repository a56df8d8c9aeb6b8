package wire

import (
	"errors"

	"go.mongodb.org/mongo-driver/bson/bsonrw"
	"go.mongodb.org/mongo-driver/bson/bsontype"
	"google.golang.org/protobuf/reflect/protoreflect"

	"github.com/anirudhraja/protobson/schema"
)

// Element names of the Any document.
const (
	anyTypeURLKey    = "typeUrl"
	anyTypeURLAltKey = "type_url"
	anyValueKey      = "value"
)

// wellKnownField returns the field called name on md, failing with
// ErrInvalidWellKnown when it is missing or of another kind.
func wellKnownField(md protoreflect.MessageDescriptor, name protoreflect.Name, kind protoreflect.Kind) (protoreflect.FieldDescriptor, error) {
	fd := md.Fields().ByName(name)
	if fd == nil {
		return nil, newFieldError(ErrInvalidWellKnown, "%s has no field %q", md.FullName(), name)
	}
	if fd.Kind() != kind {
		return nil, newFieldError(ErrInvalidWellKnown, "%s.%s is %v, want %v", md.FullName(), name, fd.Kind(), kind)
	}
	return fd, nil
}

// wrapperField returns the single "value" field of a wrapper type.
func wrapperField(md protoreflect.MessageDescriptor) (protoreflect.FieldDescriptor, error) {
	fd := md.Fields().ByName("value")
	if fd == nil || fd.IsList() || fd.IsMap() {
		return nil, newFieldError(ErrInvalidWellKnown, "%s has no singular value field", md.FullName())
	}
	return fd, nil
}

// ENCODER METHODS

// encodeWellKnown writes the bespoke form of a well-known type.
func (e *Encoder) encodeWellKnown(vw bsonrw.ValueWriter, m protoreflect.Message, wk schema.WellKnown) error {
	md := m.Descriptor()
	switch {
	case wk == schema.WellKnownAny:
		return e.encodeAny(vw, m)
	case wk.IsWrapper():
		fd, err := wrapperField(md)
		if err != nil {
			return err
		}
		return e.encodeSingle(vw, fd, m.Get(fd))
	case wk == schema.WellKnownFieldMask:
		fd, err := wellKnownField(md, "paths", protoreflect.StringKind)
		if err != nil {
			return err
		}
		list := m.Get(fd).List()
		paths := make([]string, list.Len())
		for i := range paths {
			paths[i] = list.Get(i).String()
		}
		return vw.WriteString(formatFieldMask(paths))
	case wk == schema.WellKnownStruct:
		fd, err := wellKnownField(md, "fields", protoreflect.MessageKind)
		if err != nil {
			return err
		}
		if !fd.IsMap() {
			return newFieldError(ErrInvalidWellKnown, "%s.fields is not a map", md.FullName())
		}
		return NewMapEncoder(e).EncodeMap(vw, fd, m.Get(fd).Map())
	case wk == schema.WellKnownValue:
		return e.encodeValue(vw, m)
	case wk == schema.WellKnownListValue:
		fd, err := wellKnownField(md, "values", protoreflect.MessageKind)
		if err != nil {
			return err
		}
		if !fd.IsList() {
			return newFieldError(ErrInvalidWellKnown, "%s.values is not repeated", md.FullName())
		}
		return e.encodeList(vw, fd, m.Get(fd).List())
	default:
		return newFieldError(ErrInvalidWellKnown, "no handler for %s", md.FullName())
	}
}

// encodeAny writes {typeUrl, value}, or {} for the zero Any.
func (e *Encoder) encodeAny(vw bsonrw.ValueWriter, m protoreflect.Message) error {
	md := m.Descriptor()
	urlFd, err := wellKnownField(md, "type_url", protoreflect.StringKind)
	if err != nil {
		return err
	}
	valueFd, err := wellKnownField(md, "value", protoreflect.BytesKind)
	if err != nil {
		return err
	}

	dw, err := vw.WriteDocument()
	if err != nil {
		return err
	}
	if !m.Has(urlFd) && !m.Has(valueFd) {
		return dw.WriteDocumentEnd()
	}
	evw, err := dw.WriteDocumentElement(anyTypeURLKey)
	if err != nil {
		return err
	}
	if err := evw.WriteString(m.Get(urlFd).String()); err != nil {
		return err
	}
	evw, err = dw.WriteDocumentElement(anyValueKey)
	if err != nil {
		return err
	}
	if err := evw.WriteBinary(m.Get(valueFd).Bytes()); err != nil {
		return err
	}
	return dw.WriteDocumentEnd()
}

// encodeValue writes the one populated alternative of a Value in place, or
// null when none is set.
func (e *Encoder) encodeValue(vw bsonrw.ValueWriter, m protoreflect.Message) error {
	var set []protoreflect.FieldDescriptor
	fields := m.Descriptor().Fields()
	for i := 0; i < fields.Len(); i++ {
		if fd := fields.Get(i); m.Has(fd) {
			set = append(set, fd)
		}
	}
	switch len(set) {
	case 0:
		return vw.WriteNull()
	case 1:
		return e.encodeSingle(vw, set[0], m.Get(set[0]))
	default:
		return newFieldError(ErrMultipleValueKinds, "%d alternatives set", len(set))
	}
}

// DECODER METHODS

// decodeWellKnown reads the bespoke form of a well-known type into m.
func (d *Decoder) decodeWellKnown(vr bsonrw.ValueReader, m protoreflect.Message, wk schema.WellKnown) error {
	md := m.Descriptor()
	switch {
	case wk == schema.WellKnownAny:
		return d.decodeAny(vr, m)
	case wk.IsWrapper():
		fd, err := wrapperField(md)
		if err != nil {
			return err
		}
		v, err := d.decodeSingle(vr, fd, func() protoreflect.Value { return m.NewField(fd) })
		if err != nil {
			return err
		}
		m.Set(fd, v)
		return nil
	case wk == schema.WellKnownFieldMask:
		fd, err := wellKnownField(md, "paths", protoreflect.StringKind)
		if err != nil {
			return err
		}
		if err := expectType(vr, bsontype.String); err != nil {
			return err
		}
		s, err := vr.ReadString()
		if err != nil {
			return err
		}
		list := m.Mutable(fd).List()
		for _, p := range parseFieldMask(s) {
			list.Append(protoreflect.ValueOfString(p))
		}
		return nil
	case wk == schema.WellKnownStruct:
		fd, err := wellKnownField(md, "fields", protoreflect.MessageKind)
		if err != nil {
			return err
		}
		if !fd.IsMap() {
			return newFieldError(ErrInvalidWellKnown, "%s.fields is not a map", md.FullName())
		}
		return NewMapDecoder(d).DecodeMap(vr, m, fd)
	case wk == schema.WellKnownValue:
		return d.decodeValue(vr, m)
	case wk == schema.WellKnownListValue:
		fd, err := wellKnownField(md, "values", protoreflect.MessageKind)
		if err != nil {
			return err
		}
		if !fd.IsList() {
			return newFieldError(ErrInvalidWellKnown, "%s.values is not repeated", md.FullName())
		}
		return d.mergeList(vr, m, fd)
	default:
		return newFieldError(ErrInvalidWellKnown, "no handler for %s", md.FullName())
	}
}

// decodeAny reads {typeUrl, value}. The declared name type_url is accepted too,
// other names are skipped.
func (d *Decoder) decodeAny(vr bsonrw.ValueReader, m protoreflect.Message) error {
	md := m.Descriptor()
	urlFd, err := wellKnownField(md, "type_url", protoreflect.StringKind)
	if err != nil {
		return err
	}
	valueFd, err := wellKnownField(md, "value", protoreflect.BytesKind)
	if err != nil {
		return err
	}
	if err := expectType(vr, bsontype.EmbeddedDocument); err != nil {
		return err
	}
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
		var fd protoreflect.FieldDescriptor
		switch name {
		case anyTypeURLKey, anyTypeURLAltKey:
			fd = urlFd
		case anyValueKey:
			fd = valueFd
		default:
			if err := evr.Skip(); err != nil {
				return err
			}
			continue
		}
		v, err := d.decodeSingle(evr, fd, nil)
		if err != nil {
			return wrapWithField(err, "decode", name)
		}
		m.Set(fd, v)
	}
}

// decodeValue picks the Value alternative from the token type.
func (d *Decoder) decodeValue(vr bsonrw.ValueReader, m protoreflect.Message) error {
	var name protoreflect.Name
	switch vr.Type() {
	case bsontype.Null:
		name = "null_value"
	case bsontype.Double, bsontype.Int32, bsontype.Int64:
		name = "number_value"
	case bsontype.String:
		name = "string_value"
	case bsontype.Boolean:
		name = "bool_value"
	case bsontype.EmbeddedDocument:
		name = "struct_value"
	case bsontype.Array:
		name = "list_value"
	default:
		return newFieldError(ErrUnexpectedToken, "%s cannot be a %s", vr.Type(), m.Descriptor().FullName())
	}
	fd := m.Descriptor().Fields().ByName(name)
	if fd == nil {
		return newFieldError(ErrInvalidWellKnown, "%s has no field %q", m.Descriptor().FullName(), name)
	}
	v, err := d.decodeSingle(vr, fd, func() protoreflect.Value { return m.NewField(fd) })
	if err != nil {
		return err
	}
	m.Set(fd, v)
	return nil
}
