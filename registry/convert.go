package registry

import (
	"fmt"
	"strconv"
	"strings"

	protoparserparser "github.com/yoheimuta/go-protoparser/v4/parser"
	"google.golang.org/protobuf/proto"
	"google.golang.org/protobuf/types/descriptorpb"
)

const (
	syntaxProto2 = "proto2"
	syntaxProto3 = "proto3"
)

var scalarTypes = map[string]descriptorpb.FieldDescriptorProto_Type{
	"double":   descriptorpb.FieldDescriptorProto_TYPE_DOUBLE,
	"float":    descriptorpb.FieldDescriptorProto_TYPE_FLOAT,
	"int64":    descriptorpb.FieldDescriptorProto_TYPE_INT64,
	"uint64":   descriptorpb.FieldDescriptorProto_TYPE_UINT64,
	"int32":    descriptorpb.FieldDescriptorProto_TYPE_INT32,
	"fixed64":  descriptorpb.FieldDescriptorProto_TYPE_FIXED64,
	"fixed32":  descriptorpb.FieldDescriptorProto_TYPE_FIXED32,
	"bool":     descriptorpb.FieldDescriptorProto_TYPE_BOOL,
	"string":   descriptorpb.FieldDescriptorProto_TYPE_STRING,
	"bytes":    descriptorpb.FieldDescriptorProto_TYPE_BYTES,
	"uint32":   descriptorpb.FieldDescriptorProto_TYPE_UINT32,
	"sfixed32": descriptorpb.FieldDescriptorProto_TYPE_SFIXED32,
	"sfixed64": descriptorpb.FieldDescriptorProto_TYPE_SFIXED64,
	"sint32":   descriptorpb.FieldDescriptorProto_TYPE_SINT32,
	"sint64":   descriptorpb.FieldDescriptorProto_TYPE_SINT64,
}

// newFileDescriptorProto converts a parsed file into its descriptor form. Type
// references to messages and enums are left unresolved; see resolveTypes.
func newFileDescriptorProto(name string, parsed *protoparserparser.Proto) (*descriptorpb.FileDescriptorProto, error) {
	syntax := syntaxProto2
	if parsed.Syntax != nil {
		syntax = strings.Trim(parsed.Syntax.ProtobufVersion, `"'`)
	}
	if syntax != syntaxProto2 && syntax != syntaxProto3 {
		return nil, fmt.Errorf("unsupported syntax %q", syntax)
	}

	fdp := &descriptorpb.FileDescriptorProto{
		Name:   proto.String(name),
		Syntax: proto.String(syntax),
	}
	c := &converter{syntax: syntax}
	for _, body := range parsed.ProtoBody {
		switch b := body.(type) {
		case *protoparserparser.Package:
			fdp.Package = proto.String(b.Name)
		case *protoparserparser.Import:
			idx := int32(len(fdp.Dependency))
			fdp.Dependency = append(fdp.Dependency, strings.Trim(b.Location, `"`))
			switch b.Modifier {
			case protoparserparser.ImportModifierPublic:
				fdp.PublicDependency = append(fdp.PublicDependency, idx)
			case protoparserparser.ImportModifierWeak:
				fdp.WeakDependency = append(fdp.WeakDependency, idx)
			}
		}
	}
	for _, body := range parsed.ProtoBody {
		switch b := body.(type) {
		case *protoparserparser.Message:
			msg, err := c.message(fdp.GetPackage(), b)
			if err != nil {
				return nil, err
			}
			fdp.MessageType = append(fdp.MessageType, msg)
		case *protoparserparser.Enum:
			enum, err := c.enum(b)
			if err != nil {
				return nil, err
			}
			fdp.EnumType = append(fdp.EnumType, enum)
		}
	}
	return fdp, nil
}

type converter struct {
	syntax string
}

// message converts m, declared in scope, including its nested declarations.
func (c *converter) message(scope string, m *protoparserparser.Message) (*descriptorpb.DescriptorProto, error) {
	fullName := joinName(scope, m.MessageName)
	msg := &descriptorpb.DescriptorProto{Name: proto.String(m.MessageName)}

	// synthetic oneofs of proto3 optional fields go after the declared ones
	realOneofs := 0
	for _, body := range m.MessageBody {
		if _, ok := body.(*protoparserparser.Oneof); ok {
			realOneofs++
		}
	}
	var synthetic []*descriptorpb.OneofDescriptorProto

	for _, body := range m.MessageBody {
		switch b := body.(type) {
		case *protoparserparser.Field:
			fd, err := c.field(b.FieldName, b.FieldNumber, b.Type, fieldLabel(b), b.FieldOptions)
			if err != nil {
				return nil, fmt.Errorf("%s.%s: %w", fullName, b.FieldName, err)
			}
			if b.IsOptional && c.syntax == syntaxProto3 {
				fd.Proto3Optional = proto.Bool(true)
				fd.OneofIndex = proto.Int32(int32(realOneofs + len(synthetic)))
				synthetic = append(synthetic, &descriptorpb.OneofDescriptorProto{Name: proto.String("_" + b.FieldName)})
			}
			msg.Field = append(msg.Field, fd)
		case *protoparserparser.MapField:
			entry, err := c.mapEntry(b)
			if err != nil {
				return nil, fmt.Errorf("%s.%s: %w", fullName, b.MapName, err)
			}
			msg.NestedType = append(msg.NestedType, entry)
			fd, err := c.field(b.MapName, b.FieldNumber, "."+joinName(fullName, entry.GetName()),
				descriptorpb.FieldDescriptorProto_LABEL_REPEATED, b.FieldOptions)
			if err != nil {
				return nil, fmt.Errorf("%s.%s: %w", fullName, b.MapName, err)
			}
			fd.Type = descriptorpb.FieldDescriptorProto_TYPE_MESSAGE.Enum()
			msg.Field = append(msg.Field, fd)
		case *protoparserparser.Oneof:
			idx := proto.Int32(int32(len(msg.OneofDecl)))
			msg.OneofDecl = append(msg.OneofDecl, &descriptorpb.OneofDescriptorProto{Name: proto.String(b.OneofName)})
			for _, of := range b.OneofFields {
				fd, err := c.field(of.FieldName, of.FieldNumber, of.Type,
					descriptorpb.FieldDescriptorProto_LABEL_OPTIONAL, of.FieldOptions)
				if err != nil {
					return nil, fmt.Errorf("%s.%s: %w", fullName, of.FieldName, err)
				}
				fd.OneofIndex = idx
				msg.Field = append(msg.Field, fd)
			}
		case *protoparserparser.Message:
			nested, err := c.message(fullName, b)
			if err != nil {
				return nil, err
			}
			msg.NestedType = append(msg.NestedType, nested)
		case *protoparserparser.Enum:
			enum, err := c.enum(b)
			if err != nil {
				return nil, err
			}
			msg.EnumType = append(msg.EnumType, enum)
		case *protoparserparser.GroupField:
			return nil, fmt.Errorf("%s.%s: groups are not supported", fullName, b.GroupName)
		}
	}
	msg.OneofDecl = append(msg.OneofDecl, synthetic...)
	return msg, nil
}

// mapEntry builds the synthetic entry message of a map field.
func (c *converter) mapEntry(m *protoparserparser.MapField) (*descriptorpb.DescriptorProto, error) {
	opt := descriptorpb.FieldDescriptorProto_LABEL_OPTIONAL
	key, err := c.field("key", "1", m.KeyType, opt, nil)
	if err != nil {
		return nil, err
	}
	if key.Type == nil {
		return nil, fmt.Errorf("map key type %s is not a scalar", m.KeyType)
	}
	value, err := c.field("value", "2", m.Type, opt, nil)
	if err != nil {
		return nil, err
	}
	return &descriptorpb.DescriptorProto{
		Name:    proto.String(mapEntryName(m.MapName)),
		Field:   []*descriptorpb.FieldDescriptorProto{key, value},
		Options: &descriptorpb.MessageOptions{MapEntry: proto.Bool(true)},
	}, nil
}

// field builds a field descriptor. Scalar types are set directly; any other
// type name is kept in TypeName for resolveTypes.
func (c *converter) field(name, number, typeName string, label descriptorpb.FieldDescriptorProto_Label, options []*protoparserparser.FieldOption) (*descriptorpb.FieldDescriptorProto, error) {
	n, err := strconv.ParseInt(number, 0, 32)
	if err != nil {
		return nil, fmt.Errorf("invalid field number %q", number)
	}
	fd := &descriptorpb.FieldDescriptorProto{
		Name:   proto.String(name),
		Number: proto.Int32(int32(n)),
		Label:  label.Enum(),
	}
	if t, ok := scalarTypes[typeName]; ok {
		fd.Type = t.Enum()
	} else {
		fd.TypeName = proto.String(typeName)
	}

	for _, opt := range options {
		value := unquote(opt.Constant)
		switch opt.OptionName {
		case "json_name":
			fd.JsonName = proto.String(value)
		case "default":
			fd.DefaultValue = proto.String(value)
		case "packed":
			if fd.Options == nil {
				fd.Options = &descriptorpb.FieldOptions{}
			}
			fd.Options.Packed = proto.Bool(value == "true")
		case "deprecated":
			if fd.Options == nil {
				fd.Options = &descriptorpb.FieldOptions{}
			}
			fd.Options.Deprecated = proto.Bool(value == "true")
		}
	}
	return fd, nil
}

func (c *converter) enum(e *protoparserparser.Enum) (*descriptorpb.EnumDescriptorProto, error) {
	enum := &descriptorpb.EnumDescriptorProto{Name: proto.String(e.EnumName)}
	for _, body := range e.EnumBody {
		switch b := body.(type) {
		case *protoparserparser.EnumField:
			n, err := strconv.ParseInt(b.Number, 0, 32)
			if err != nil {
				return nil, fmt.Errorf("%s.%s: invalid enum number %q", e.EnumName, b.Ident, b.Number)
			}
			enum.Value = append(enum.Value, &descriptorpb.EnumValueDescriptorProto{
				Name:   proto.String(b.Ident),
				Number: proto.Int32(int32(n)),
			})
		case *protoparserparser.Option:
			if b.OptionName == "allow_alias" {
				enum.Options = &descriptorpb.EnumOptions{AllowAlias: proto.Bool(unquote(b.Constant) == "true")}
			}
		}
	}
	return enum, nil
}

func fieldLabel(f *protoparserparser.Field) descriptorpb.FieldDescriptorProto_Label {
	switch {
	case f.IsRepeated:
		return descriptorpb.FieldDescriptorProto_LABEL_REPEATED
	case f.IsRequired:
		return descriptorpb.FieldDescriptorProto_LABEL_REQUIRED
	default:
		return descriptorpb.FieldDescriptorProto_LABEL_OPTIONAL
	}
}

// mapEntryName returns the entry message name protoc generates for a map
// field: "string_map" becomes "StringMapEntry".
func mapEntryName(fieldName string) string {
	var b strings.Builder
	upperNext := true
	for _, c := range fieldName {
		switch {
		case c == '_':
			upperNext = true
		case upperNext && 'a' <= c && c <= 'z':
			b.WriteRune(c - 'a' + 'A')
			upperNext = false
		default:
			b.WriteRune(c)
			upperNext = false
		}
	}
	b.WriteString("Entry")
	return b.String()
}

func joinName(scope, name string) string {
	if scope == "" {
		return name
	}
	return scope + "." + name
}

func unquote(s string) string {
	if len(s) >= 2 && (s[0] == '"' || s[0] == '\'') && s[len(s)-1] == s[0] {
		return s[1 : len(s)-1]
	}
	return s
}
