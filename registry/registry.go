package registry

import (
	"errors"
	"fmt"
	"log/slog"
	"sort"
	"strings"

	protoparserparser "github.com/yoheimuta/go-protoparser/v4/parser"
	"google.golang.org/protobuf/reflect/protodesc"
	"google.golang.org/protobuf/reflect/protoreflect"
	"google.golang.org/protobuf/reflect/protoregistry"
	"google.golang.org/protobuf/types/dynamicpb"
)

// Registry allows us to store the schema of the protobuf messages. We look this up when we need to decode or encode a message.
// A Registry is not safe for concurrent LoadSchema calls; lookups after loading are.
type Registry struct {
	ProtoDirectories []string

	logger          *slog.Logger
	parsedProtoBody map[string]*protoparserparser.Proto // file path -> parsed body
	protoEntities   map[string]*protoFileEntity         // file path -> import graph node
	files           *protoregistry.Files
	types           *protoregistry.Types
	messages        map[string]protoreflect.MessageDescriptor // fully qualified name -> message
	enums           map[string]protoreflect.EnumDescriptor    // fully qualified name -> enum
}

// protoFileEntity is one node of the import graph.
type protoFileEntity struct {
	name    string   // path relative to its proto directory, as imported
	imports []string // file paths of imports found on disk
}

// Option configures a Registry.
type Option func(*Registry)

// WithLogger sets the logger used while loading schemas.
func WithLogger(logger *slog.Logger) Option {
	return func(r *Registry) {
		r.logger = logger
	}
}

// NewRegistry creates a registry that looks up .proto files under protoDirectories.
func NewRegistry(protoDirectories []string, opts ...Option) *Registry {
	r := &Registry{
		ProtoDirectories: protoDirectories,
		parsedProtoBody:  make(map[string]*protoparserparser.Proto),
		protoEntities:    make(map[string]*protoFileEntity),
		files:            new(protoregistry.Files),
		types:            new(protoregistry.Types),
		messages:         make(map[string]protoreflect.MessageDescriptor),
		enums:            make(map[string]protoreflect.EnumDescriptor),
	}
	for _, opt := range opts {
		opt(r)
	}
	if r.logger == nil {
		r.logger = slog.Default()
	}
	return r
}

// LoadSchema loads protoFile, given relative to one of the proto directories,
// together with everything it imports. Files already loaded are kept as they are.
func (r *Registry) LoadSchema(protoFile string) error {
	paths, err := r.collectImports(protoFile)
	if err != nil {
		return err
	}
	r.logger.Debug("resolved proto imports", "file", protoFile, "files", len(paths))

	built := make(map[string]struct{}, len(paths))
	var build func(path string) error
	build = func(path string) error {
		if _, ok := built[path]; ok {
			return nil
		}
		built[path] = struct{}{}
		entity := r.protoEntities[path]
		for _, dep := range entity.imports {
			if err := build(dep); err != nil {
				return err
			}
		}
		return r.buildFile(path, entity)
	}
	// the first path is the requested file; building it pulls in its imports first
	if err := build(paths[0]); err != nil {
		return fmt.Errorf("failed to load %s: %w", protoFile, err)
	}
	return nil
}

// buildFile converts one parsed file into a descriptor and registers it.
func (r *Registry) buildFile(path string, entity *protoFileEntity) error {
	if _, err := r.files.FindFileByPath(entity.name); err == nil {
		return nil
	}

	fdp, err := newFileDescriptorProto(entity.name, r.parsedProtoBody[path])
	if err != nil {
		return fmt.Errorf("%s: %w", entity.name, err)
	}
	resolver := &chainResolver{local: r.files}
	deps := make([]protoreflect.FileDescriptor, 0, len(fdp.Dependency))
	for _, dep := range fdp.Dependency {
		fd, err := resolver.FindFileByPath(dep)
		if err != nil {
			return fmt.Errorf("%s: import %q: %w", entity.name, dep, err)
		}
		deps = append(deps, fd)
	}
	if err := resolveTypes(fdp, collectEntities(fdp, deps)); err != nil {
		return fmt.Errorf("%s: %w", entity.name, err)
	}

	fd, err := protodesc.NewFile(fdp, resolver)
	if err != nil {
		return fmt.Errorf("%s: invalid schema: %w", entity.name, err)
	}
	if err := r.files.RegisterFile(fd); err != nil {
		return fmt.Errorf("%s: %w", entity.name, err)
	}
	if err := r.registerTypes(fd.Messages(), fd.Enums()); err != nil {
		return fmt.Errorf("%s: %w", entity.name, err)
	}
	r.logger.Debug("registered proto file",
		"file", entity.name,
		"package", fd.Package(),
		"messages", fd.Messages().Len(),
		"enums", fd.Enums().Len(),
	)
	return nil
}

// registerTypes records every message and enum, nested ones included. Map
// entry messages are registered as types but not listed.
func (r *Registry) registerTypes(messages protoreflect.MessageDescriptors, enums protoreflect.EnumDescriptors) error {
	for i := 0; i < enums.Len(); i++ {
		ed := enums.Get(i)
		if err := r.types.RegisterEnum(dynamicpb.NewEnumType(ed)); err != nil {
			return err
		}
		r.enums[string(ed.FullName())] = ed
	}
	for i := 0; i < messages.Len(); i++ {
		md := messages.Get(i)
		if err := r.types.RegisterMessage(dynamicpb.NewMessageType(md)); err != nil {
			return err
		}
		if !md.IsMapEntry() {
			r.messages[string(md.FullName())] = md
		}
		if err := r.registerTypes(md.Messages(), md.Enums()); err != nil {
			return err
		}
	}
	return nil
}

// GetMessage retrieves a message descriptor by its full name, or by a unique
// dotted suffix of it ("User" or "v1.User" for "acme.v1.User").
func (r *Registry) GetMessage(name string) (protoreflect.MessageDescriptor, error) {
	if md, ok := r.messages[name]; ok {
		return md, nil
	}
	full, err := matchSuffix(name, r.ListMessages())
	if err != nil {
		return nil, fmt.Errorf("message %w", err)
	}
	return r.messages[full], nil
}

// GetEnum retrieves an enum descriptor the same way GetMessage does.
func (r *Registry) GetEnum(name string) (protoreflect.EnumDescriptor, error) {
	if ed, ok := r.enums[name]; ok {
		return ed, nil
	}
	full, err := matchSuffix(name, r.ListEnums())
	if err != nil {
		return nil, fmt.Errorf("enum %w", err)
	}
	return r.enums[full], nil
}

// NewMessage returns an empty dynamic message of the named type.
func (r *Registry) NewMessage(name string) (*dynamicpb.Message, error) {
	md, err := r.GetMessage(name)
	if err != nil {
		return nil, err
	}
	return dynamicpb.NewMessage(md), nil
}

// ListMessages returns all registered message names, sorted
func (r *Registry) ListMessages() []string {
	names := make([]string, 0, len(r.messages))
	for name := range r.messages {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// ListEnums returns all registered enum names, sorted
func (r *Registry) ListEnums() []string {
	names := make([]string, 0, len(r.enums))
	for name := range r.enums {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// Files returns the loaded file descriptors.
func (r *Registry) Files() *protoregistry.Files {
	return r.files
}

// Types returns dynamic types for every loaded message and enum. It can be used
// as a resolver by protojson and prototext.
func (r *Registry) Types() *protoregistry.Types {
	return r.types
}

// ErrNotFound is returned when no loaded type matches a lookup.
var ErrNotFound = errors.New("not found")

// matchSuffix finds the single name in sorted that equals name or ends in "."+name.
func matchSuffix(name string, sorted []string) (string, error) {
	var matches []string
	for _, full := range sorted {
		if strings.HasSuffix(full, "."+name) {
			matches = append(matches, full)
		}
	}
	switch len(matches) {
	case 0:
		return "", fmt.Errorf("%w: %s", ErrNotFound, name)
	case 1:
		return matches[0], nil
	default:
		return "", fmt.Errorf("%s is ambiguous: %s", name, strings.Join(matches, ", "))
	}
}
