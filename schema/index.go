package schema

import (
	"sort"
	"sync"

	"google.golang.org/protobuf/reflect/protoreflect"
)

// Fields is the name and order index of one message type. It is built once and
// never modified afterwards, so it can be shared between goroutines.
type Fields struct {
	byName  map[string]protoreflect.FieldDescriptor
	ordered []protoreflect.FieldDescriptor
}

// ByName resolves a document field name. Both the declared name ("user_name")
// and the JSON name ("userName") resolve to the same field.
func (f *Fields) ByName(name string) (protoreflect.FieldDescriptor, bool) {
	fd, ok := f.byName[name]
	return fd, ok
}

// Ordered returns the fields in ascending field number order. Callers must not
// modify the returned slice.
func (f *Fields) Ordered() []protoreflect.FieldDescriptor {
	return f.ordered
}

// Len returns the number of distinct names the index resolves.
func (f *Fields) Len() int {
	return len(f.byName)
}

// Index memoizes Fields per message descriptor.
//
// Two goroutines that miss on the same descriptor both build its Fields; the
// first one stored wins and the other result is dropped. Both are computed from
// the same immutable descriptor, so they are identical.
type Index struct {
	cache sync.Map // protoreflect.MessageDescriptor -> *Fields
}

// DefaultIndex is shared by encoders and decoders that are not given one.
var DefaultIndex = &Index{}

// NewIndex creates an empty index.
func NewIndex() *Index {
	return &Index{}
}

// Lookup returns the Fields of md, building them on first use.
func (x *Index) Lookup(md protoreflect.MessageDescriptor) *Fields {
	if cached, ok := x.cache.Load(md); ok {
		return cached.(*Fields)
	}
	actual, _ := x.cache.LoadOrStore(md, buildFields(md))
	return actual.(*Fields)
}

// Resolve is a shorthand for Lookup(md).ByName(name).
func (x *Index) Resolve(md protoreflect.MessageDescriptor, name string) (protoreflect.FieldDescriptor, bool) {
	return x.Lookup(md).ByName(name)
}

func buildFields(md protoreflect.MessageDescriptor) *Fields {
	fds := md.Fields()
	f := &Fields{
		byName:  make(map[string]protoreflect.FieldDescriptor, fds.Len()*2),
		ordered: make([]protoreflect.FieldDescriptor, 0, fds.Len()),
	}
	for i := 0; i < fds.Len(); i++ {
		fd := fds.Get(i)
		f.byName[string(fd.Name())] = fd
		f.ordered = append(f.ordered, fd)
	}
	// declared names win over a colliding JSON name of another field
	for _, fd := range f.ordered {
		if _, taken := f.byName[fd.JSONName()]; !taken {
			f.byName[fd.JSONName()] = fd
		}
	}
	sort.Slice(f.ordered, func(i, j int) bool {
		return f.ordered[i].Number() < f.ordered[j].Number()
	})
	return f
}
