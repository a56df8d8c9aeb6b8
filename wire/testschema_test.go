package wire

import (
	"sync"
	"testing"

	"github.com/stretchr/testify/require"
	"google.golang.org/protobuf/encoding/protojson"
	"google.golang.org/protobuf/encoding/prototext"
	"google.golang.org/protobuf/reflect/protodesc"
	"google.golang.org/protobuf/reflect/protoreflect"
	"google.golang.org/protobuf/reflect/protoregistry"
	"google.golang.org/protobuf/types/descriptorpb"
	"google.golang.org/protobuf/types/dynamicpb"

	// linked so the imports below resolve from GlobalFiles
	_ "google.golang.org/protobuf/types/known/anypb"
	_ "google.golang.org/protobuf/types/known/fieldmaskpb"
	_ "google.golang.org/protobuf/types/known/structpb"
	_ "google.golang.org/protobuf/types/known/wrapperspb"
)

const sampleFileText = `
name: "protobson/test/sample.proto"
package: "protobson.test"
syntax: "proto3"
dependency: "google/protobuf/any.proto"
dependency: "google/protobuf/struct.proto"
dependency: "google/protobuf/wrappers.proto"
dependency: "google/protobuf/field_mask.proto"
enum_type: {
  name: "Color"
  value: { name: "COLOR_UNSPECIFIED" number: 0 }
  value: { name: "RED" number: 1 }
  value: { name: "GREEN" number: 2 }
}
message_type: {
  name: "Sample"
  field: { name: "hello" number: 1 label: LABEL_OPTIONAL type: TYPE_STRING }
  field: { name: "tags" number: 2 label: LABEL_REPEATED type: TYPE_STRING }
  field: { name: "counts" number: 3 label: LABEL_REPEATED type: TYPE_MESSAGE type_name: ".protobson.test.Sample.CountsEntry" }
  field: { name: "ratio" number: 4 label: LABEL_OPTIONAL type: TYPE_MESSAGE type_name: ".google.protobuf.DoubleValue" }
  field: { name: "payload" number: 5 label: LABEL_OPTIONAL type: TYPE_MESSAGE type_name: ".google.protobuf.Any" }
  field: { name: "i32" number: 6 label: LABEL_OPTIONAL type: TYPE_INT32 }
  field: { name: "i64" number: 7 label: LABEL_OPTIONAL type: TYPE_INT64 }
  field: { name: "u32" number: 8 label: LABEL_OPTIONAL type: TYPE_UINT32 }
  field: { name: "u64" number: 9 label: LABEL_OPTIONAL type: TYPE_UINT64 }
  field: { name: "s32" number: 10 label: LABEL_OPTIONAL type: TYPE_SINT32 }
  field: { name: "f64" number: 11 label: LABEL_OPTIONAL type: TYPE_FIXED64 }
  field: { name: "f" number: 12 label: LABEL_OPTIONAL type: TYPE_FLOAT }
  field: { name: "d" number: 13 label: LABEL_OPTIONAL type: TYPE_DOUBLE }
  field: { name: "flag" number: 14 label: LABEL_OPTIONAL type: TYPE_BOOL }
  field: { name: "blob" number: 15 label: LABEL_OPTIONAL type: TYPE_BYTES }
  field: { name: "color" number: 16 label: LABEL_OPTIONAL type: TYPE_ENUM type_name: ".protobson.test.Color" }
  field: { name: "child" number: 17 label: LABEL_OPTIONAL type: TYPE_MESSAGE type_name: ".protobson.test.Sample" }
  field: { name: "name" number: 18 label: LABEL_OPTIONAL type: TYPE_STRING oneof_index: 0 }
  field: { name: "code" number: 19 label: LABEL_OPTIONAL type: TYPE_INT32 oneof_index: 0 }
  field: { name: "children" number: 20 label: LABEL_REPEATED type: TYPE_MESSAGE type_name: ".protobson.test.Sample.ChildrenEntry" }
  field: { name: "attrs" number: 21 label: LABEL_OPTIONAL type: TYPE_MESSAGE type_name: ".google.protobuf.Struct" }
  field: { name: "dyn" number: 22 label: LABEL_OPTIONAL type: TYPE_MESSAGE type_name: ".google.protobuf.Value" }
  field: { name: "items" number: 23 label: LABEL_OPTIONAL type: TYPE_MESSAGE type_name: ".google.protobuf.ListValue" }
  field: { name: "mask" number: 24 label: LABEL_OPTIONAL type: TYPE_MESSAGE type_name: ".google.protobuf.FieldMask" }
  field: { name: "colors" number: 25 label: LABEL_REPEATED type: TYPE_ENUM type_name: ".protobson.test.Color" }
  field: { name: "user_name" number: 26 label: LABEL_OPTIONAL type: TYPE_STRING }
  field: { name: "flags" number: 27 label: LABEL_REPEATED type: TYPE_MESSAGE type_name: ".protobson.test.Sample.FlagsEntry" }
  field: { name: "by_id" number: 28 label: LABEL_REPEATED type: TYPE_MESSAGE type_name: ".protobson.test.Sample.ByIdEntry" }
  field: { name: "nothing" number: 29 label: LABEL_OPTIONAL type: TYPE_ENUM type_name: ".google.protobuf.NullValue" }
  nested_type: {
    name: "CountsEntry"
    field: { name: "key" number: 1 label: LABEL_OPTIONAL type: TYPE_STRING }
    field: { name: "value" number: 2 label: LABEL_OPTIONAL type: TYPE_INT32 }
    options: { map_entry: true }
  }
  nested_type: {
    name: "ChildrenEntry"
    field: { name: "key" number: 1 label: LABEL_OPTIONAL type: TYPE_INT64 }
    field: { name: "value" number: 2 label: LABEL_OPTIONAL type: TYPE_MESSAGE type_name: ".protobson.test.Sample" }
    options: { map_entry: true }
  }
  nested_type: {
    name: "FlagsEntry"
    field: { name: "key" number: 1 label: LABEL_OPTIONAL type: TYPE_BOOL }
    field: { name: "value" number: 2 label: LABEL_OPTIONAL type: TYPE_STRING }
    options: { map_entry: true }
  }
  nested_type: {
    name: "ByIdEntry"
    field: { name: "key" number: 1 label: LABEL_OPTIONAL type: TYPE_UINT32 }
    field: { name: "value" number: 2 label: LABEL_OPTIONAL type: TYPE_STRING }
    options: { map_entry: true }
  }
  oneof_decl: { name: "choice" }
}
message_type: { name: "Empty" }
`

// fakeWellKnownText declares messages that borrow well-known full names but
// not their shapes.
const fakeWellKnownText = `
name: "fake/wkt.proto"
package: "google.protobuf"
syntax: "proto3"
message_type: {
  name: "Any"
  field: { name: "type_url" number: 1 label: LABEL_OPTIONAL type: TYPE_STRING }
}
message_type: {
  name: "Value"
  field: { name: "number_value" number: 2 label: LABEL_OPTIONAL type: TYPE_DOUBLE }
  field: { name: "string_value" number: 3 label: LABEL_OPTIONAL type: TYPE_STRING }
}
message_type: {
  name: "Holder"
  field: { name: "any" number: 1 label: LABEL_OPTIONAL type: TYPE_MESSAGE type_name: ".google.protobuf.Any" }
  field: { name: "value" number: 2 label: LABEL_OPTIONAL type: TYPE_MESSAGE type_name: ".google.protobuf.Value" }
}
`

var (
	sampleOnce sync.Once
	sampleFile protoreflect.FileDescriptor
	sampleErr  error
)

func buildFile(text string, resolver protodesc.Resolver) (protoreflect.FileDescriptor, error) {
	fdp := &descriptorpb.FileDescriptorProto{}
	if err := prototext.Unmarshal([]byte(text), fdp); err != nil {
		return nil, err
	}
	return protodesc.NewFile(fdp, resolver)
}

func sampleDescriptor(t testing.TB, name protoreflect.Name) protoreflect.MessageDescriptor {
	t.Helper()
	sampleOnce.Do(func() {
		sampleFile, sampleErr = buildFile(sampleFileText, protoregistry.GlobalFiles)
	})
	require.NoError(t, sampleErr)
	md := sampleFile.Messages().ByName(name)
	require.NotNil(t, md, "message %s", name)
	return md
}

func fakeWellKnownDescriptor(t *testing.T, name protoreflect.Name) protoreflect.MessageDescriptor {
	t.Helper()
	fd, err := buildFile(fakeWellKnownText, new(protoregistry.Files))
	require.NoError(t, err)
	md := fd.Messages().ByName(name)
	require.NotNil(t, md)
	return md
}

// newSample returns a dynamic Sample populated from its protojson form.
func newSample(t testing.TB, js string) *dynamicpb.Message {
	t.Helper()
	msg := dynamicpb.NewMessage(sampleDescriptor(t, "Sample"))
	if js != "" {
		require.NoError(t, protojson.Unmarshal([]byte(js), msg))
	}
	return msg
}

func field(m protoreflect.Message, name protoreflect.Name) protoreflect.FieldDescriptor {
	return m.Descriptor().Fields().ByName(name)
}
