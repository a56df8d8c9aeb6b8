package registry

import (
	"fmt"

	"google.golang.org/protobuf/proto"
	"google.golang.org/protobuf/reflect/protoreflect"
	"google.golang.org/protobuf/reflect/protoregistry"
	"google.golang.org/protobuf/types/descriptorpb"

	// linked so google/protobuf imports resolve from GlobalFiles
	_ "google.golang.org/protobuf/types/known/anypb"
	_ "google.golang.org/protobuf/types/known/apipb"
	_ "google.golang.org/protobuf/types/known/durationpb"
	_ "google.golang.org/protobuf/types/known/emptypb"
	_ "google.golang.org/protobuf/types/known/fieldmaskpb"
	_ "google.golang.org/protobuf/types/known/sourcecontextpb"
	_ "google.golang.org/protobuf/types/known/structpb"
	_ "google.golang.org/protobuf/types/known/timestamppb"
	_ "google.golang.org/protobuf/types/known/typepb"
	_ "google.golang.org/protobuf/types/known/wrapperspb"
)

// chainResolver looks up the registry's own files first and falls back to the
// descriptors linked into the binary.
type chainResolver struct {
	local *protoregistry.Files
}

func (c *chainResolver) FindFileByPath(path string) (protoreflect.FileDescriptor, error) {
	if fd, err := c.local.FindFileByPath(path); err == nil {
		return fd, nil
	}
	return protoregistry.GlobalFiles.FindFileByPath(path)
}

func (c *chainResolver) FindDescriptorByName(name protoreflect.FullName) (protoreflect.Descriptor, error) {
	if d, err := c.local.FindDescriptorByName(name); err == nil {
		return d, nil
	}
	return protoregistry.GlobalFiles.FindDescriptorByName(name)
}

// collectEntities returns the messages and enums visible from fdp: its own
// declarations plus those of its direct and publicly re-exported imports.
func collectEntities(fdp *descriptorpb.FileDescriptorProto, deps []protoreflect.FileDescriptor) entityKinds {
	entities := make(entityKinds)

	var addProto func(scope string, msgs []*descriptorpb.DescriptorProto, enums []*descriptorpb.EnumDescriptorProto)
	addProto = func(scope string, msgs []*descriptorpb.DescriptorProto, enums []*descriptorpb.EnumDescriptorProto) {
		for _, e := range enums {
			entities[joinName(scope, e.GetName())] = descriptorpb.FieldDescriptorProto_TYPE_ENUM
		}
		for _, m := range msgs {
			name := joinName(scope, m.GetName())
			entities[name] = descriptorpb.FieldDescriptorProto_TYPE_MESSAGE
			addProto(name, m.NestedType, m.EnumType)
		}
	}
	addProto(fdp.GetPackage(), fdp.MessageType, fdp.EnumType)

	var addDescriptors func(msgs protoreflect.MessageDescriptors, enums protoreflect.EnumDescriptors)
	addDescriptors = func(msgs protoreflect.MessageDescriptors, enums protoreflect.EnumDescriptors) {
		for i := 0; i < enums.Len(); i++ {
			entities[string(enums.Get(i).FullName())] = descriptorpb.FieldDescriptorProto_TYPE_ENUM
		}
		for i := 0; i < msgs.Len(); i++ {
			md := msgs.Get(i)
			entities[string(md.FullName())] = descriptorpb.FieldDescriptorProto_TYPE_MESSAGE
			addDescriptors(md.Messages(), md.Enums())
		}
	}
	seen := make(map[string]struct{})
	var addFile func(fd protoreflect.FileDescriptor)
	addFile = func(fd protoreflect.FileDescriptor) {
		if _, ok := seen[fd.Path()]; ok {
			return
		}
		seen[fd.Path()] = struct{}{}
		addDescriptors(fd.Messages(), fd.Enums())
		imports := fd.Imports()
		for i := 0; i < imports.Len(); i++ {
			if imp := imports.Get(i); imp.IsPublic {
				addFile(imp.FileDescriptor)
			}
		}
	}
	for _, fd := range deps {
		addFile(fd)
	}
	return entities
}

// resolveTypes qualifies every message or enum type reference in fdp using
// protobuf scoping: innermost enclosing scope first, then outwards.
func resolveTypes(fdp *descriptorpb.FileDescriptorProto, entities entityKinds) error {
	var walk func(scope string, msgs []*descriptorpb.DescriptorProto) error
	walk = func(scope string, msgs []*descriptorpb.DescriptorProto) error {
		for _, m := range msgs {
			fullName := joinName(scope, m.GetName())
			for _, f := range m.Field {
				if f.Type != nil {
					continue
				}
				name, err := referencedType(f.GetTypeName(), fullName, entities)
				if err != nil {
					return fmt.Errorf("field %s.%s: %w", fullName, f.GetName(), err)
				}
				f.TypeName = proto.String("." + name)
				f.Type = entities[name].Enum()
			}
			if err := walk(fullName, m.NestedType); err != nil {
				return err
			}
		}
		return nil
	}
	return walk(fdp.GetPackage(), fdp.MessageType)
}

// typeResolver finds types among the registry's dynamic types first and the
// linked types second, so Any values of well-known types resolve too.
type typeResolver struct {
	local *protoregistry.Types
}

// Resolver is what protojson and prototext need to resolve Any and extensions.
type Resolver interface {
	protoregistry.MessageTypeResolver
	protoregistry.ExtensionTypeResolver
}

// Resolver returns a type resolver covering the loaded types and every type
// linked into the binary.
func (r *Registry) Resolver() Resolver {
	return &typeResolver{local: r.types}
}

func (t *typeResolver) FindMessageByName(name protoreflect.FullName) (protoreflect.MessageType, error) {
	if mt, err := t.local.FindMessageByName(name); err == nil {
		return mt, nil
	}
	return protoregistry.GlobalTypes.FindMessageByName(name)
}

func (t *typeResolver) FindMessageByURL(url string) (protoreflect.MessageType, error) {
	if mt, err := t.local.FindMessageByURL(url); err == nil {
		return mt, nil
	}
	return protoregistry.GlobalTypes.FindMessageByURL(url)
}

func (t *typeResolver) FindExtensionByName(field protoreflect.FullName) (protoreflect.ExtensionType, error) {
	if xt, err := t.local.FindExtensionByName(field); err == nil {
		return xt, nil
	}
	return protoregistry.GlobalTypes.FindExtensionByName(field)
}

func (t *typeResolver) FindExtensionByNumber(message protoreflect.FullName, field protoreflect.FieldNumber) (protoreflect.ExtensionType, error) {
	if xt, err := t.local.FindExtensionByNumber(message, field); err == nil {
		return xt, nil
	}
	return protoregistry.GlobalTypes.FindExtensionByNumber(message, field)
}
