package wire

import (
	"math"
	"testing"

	"github.com/google/go-cmp/cmp"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/bson/bsonrw"
	"go.mongodb.org/mongo-driver/bson/primitive"
	"google.golang.org/protobuf/proto"
	"google.golang.org/protobuf/reflect/protoreflect"
	"google.golang.org/protobuf/testing/protocmp"
	"google.golang.org/protobuf/types/dynamicpb"
	"google.golang.org/protobuf/types/known/anypb"
	"google.golang.org/protobuf/types/known/emptypb"
	"google.golang.org/protobuf/types/known/wrapperspb"
)

func mustBSON(t *testing.T, doc bson.D) []byte {
	t.Helper()
	data, err := bson.Marshal(doc)
	require.NoError(t, err)
	return data
}

func decodeSample(t *testing.T, data []byte) (*dynamicpb.Message, error) {
	t.Helper()
	msg := newSample(t, "")
	return msg, NewDecoder().Unmarshal(data, msg)
}

func assertProtoEqual(t *testing.T, want, got proto.Message) {
	t.Helper()
	if diff := cmp.Diff(want, got, protocmp.Transform()); diff != "" {
		t.Errorf("message mismatch (-want +got):\n%s", diff)
	}
}

// optionGrid is every combination of the two rendering flags.
var optionGrid = []struct {
	name string
	opts Options
}{
	{"sparse/json names", Options{}},
	{"sparse/declared names", Options{PreserveOriginalFieldNames: true}},
	{"defaults/json names", Options{IncludeDefaultValueFields: true}},
	{"defaults/declared names", Options{IncludeDefaultValueFields: true, PreserveOriginalFieldNames: true}},
}

func TestRoundTrip(t *testing.T) {
	packed, err := anypb.New(&emptypb.Empty{})
	require.NoError(t, err)

	tests := []struct {
		name  string
		json  string
		setup func(m *dynamicpb.Message)
	}{
		{name: "empty message", json: ``},
		{name: "string field", json: `{"hello":"world"}`},
		{name: "repeated string", json: `{"tags":["a","b","c"]}`},
		{name: "map", json: `{"counts":{"test":12345}}`},
		{name: "wrapper", json: `{"ratio":1.0}`},
		{name: "numbers", json: `{"i32":-7,"i64":"-9223372036854775808","u32":4294967295,"u64":"18446744073709551615","s32":-3,"f64":"18446744073709551615","f":1.5,"d":-2.25,"flag":true,"blob":"AQID"}`},
		{name: "infinities", json: `{"f":"-Infinity","d":"Infinity"}`},
		{name: "enums", json: `{"color":"GREEN","colors":["RED","GREEN"]}`},
		{name: "nested", json: `{"child":{"hello":"inner","child":{"tags":["deep"]}}}`},
		{name: "oneof", json: `{"name":"n"}`},
		{name: "map of messages", json: `{"children":{"-5":{"hello":"neg"},"3":{"ratio":2.5}}}`},
		{name: "bool and uint keys", json: `{"flags":{"true":"on"},"byId":{"4294967295":"max"}}`},
		{name: "struct", json: `{"attrs":{"name":"x","n":1.5,"ok":true,"none":null,"list":[1,"two"],"obj":{"k":"v"}}}`},
		{name: "value", json: `{"dyn":{"nested":[true]}}`},
		{name: "list value", json: `{"items":[false,{"a":2},"s",null]}`},
		{name: "field mask", json: `{"mask":"userName,profile.displayName"}`},
		{name: "snake case field", json: `{"userName":"ada"}`},
		{
			name: "any",
			setup: func(m *dynamicpb.Message) {
				m.Set(field(m, "payload"), protoreflect.ValueOfMessage(packed.ProtoReflect()))
			},
		},
	}

	for _, grid := range optionGrid {
		for _, tt := range tests {
			t.Run(grid.name+"/"+tt.name, func(t *testing.T) {
				want := newSample(t, tt.json)
				if tt.setup != nil {
					tt.setup(want)
				}

				data, err := NewEncoder(grid.opts).Marshal(want)
				require.NoError(t, err)

				got, err := decodeSample(t, data)
				require.NoError(t, err)
				assertProtoEqual(t, want, got)
			})
		}
	}
}

func TestRoundTrip_NaN(t *testing.T) {
	for _, grid := range optionGrid {
		t.Run(grid.name, func(t *testing.T) {
			want := newSample(t, `{"f":"NaN","d":"NaN"}`)
			data, err := NewEncoder(grid.opts).Marshal(want)
			require.NoError(t, err)

			got, err := decodeSample(t, data)
			require.NoError(t, err)
			assert.True(t, math.IsNaN(got.Get(field(got, "f")).Float()))
			assert.True(t, math.IsNaN(got.Get(field(got, "d")).Float()))
		})
	}
}

func TestDecode_ZeroAny(t *testing.T) {
	got, err := decodeSample(t, mustBSON(t, bson.D{{Key: "payload", Value: bson.D{}}}))
	require.NoError(t, err)

	fd := field(got, "payload")
	require.True(t, got.Has(fd))
	anyMsg := got.Get(fd).Message()
	assert.False(t, anyMsg.Has(fd.Message().Fields().ByName("type_url")))
	assert.False(t, anyMsg.Has(fd.Message().Fields().ByName("value")))
}

func TestDecode_AnyDeclaredName(t *testing.T) {
	got, err := decodeSample(t, mustBSON(t, bson.D{{Key: "payload", Value: bson.D{
		{Key: "type_url", Value: "type.googleapis.com/google.protobuf.Empty"},
		{Key: "value", Value: primitive.Binary{Data: []byte{}}},
		{Key: "extra", Value: int32(1)},
	}}}))
	require.NoError(t, err)

	anyMsg := got.Get(field(got, "payload")).Message()
	assert.Equal(t, "type.googleapis.com/google.protobuf.Empty", anyMsg.Get(anyMsg.Descriptor().Fields().ByName("type_url")).String())
}

func TestDecode_BothNames(t *testing.T) {
	for _, name := range []string{"userName", "user_name"} {
		got, err := decodeSample(t, mustBSON(t, bson.D{{Key: name, Value: "ada"}}))
		require.NoError(t, err)
		assert.Equal(t, "ada", got.Get(field(got, "user_name")).String(), name)
	}
}

func TestDecode_UnknownFieldsSkipped(t *testing.T) {
	got, err := decodeSample(t, mustBSON(t, bson.D{
		{Key: "bogus", Value: bson.D{{Key: "a", Value: int32(1)}}},
		{Key: "hello", Value: "kept"},
		{Key: "other", Value: bson.A{int32(1), "two"}},
	}))
	require.NoError(t, err)
	assertProtoEqual(t, newSample(t, `{"hello":"kept"}`), got)
}

func TestDecode_LastWriteWins(t *testing.T) {
	got, err := decodeSample(t, mustBSON(t, bson.D{
		{Key: "hello", Value: "first"},
		{Key: "hello", Value: "second"},
		{Key: "counts", Value: bson.D{{Key: "k", Value: int32(1)}, {Key: "k", Value: int32(2)}}},
		{Key: "name", Value: "alt"},
		{Key: "code", Value: int32(9)},
	}))
	require.NoError(t, err)
	assertProtoEqual(t, newSample(t, `{"hello":"second","counts":{"k":2},"code":9}`), got)
}

func TestDecode_RepeatedAccumulates(t *testing.T) {
	got, err := decodeSample(t, mustBSON(t, bson.D{
		{Key: "tags", Value: bson.A{"a"}},
		{Key: "tags", Value: bson.A{"b"}},
		{Key: "counts", Value: bson.D{{Key: "x", Value: int32(1)}}},
		{Key: "counts", Value: bson.D{{Key: "y", Value: int32(2)}}},
	}))
	require.NoError(t, err)
	assertProtoEqual(t, newSample(t, `{"tags":["a","b"],"counts":{"x":1,"y":2}}`), got)
}

func TestDecode_LenientNumbers(t *testing.T) {
	got, err := decodeSample(t, mustBSON(t, bson.D{
		{Key: "i32", Value: int64(12)},
		{Key: "i64", Value: int32(-4)},
		{Key: "u32", Value: int32(-1)},
		{Key: "f", Value: int32(3)},
		{Key: "d", Value: int64(1) << 40},
	}))
	require.NoError(t, err)
	assertProtoEqual(t, newSample(t, `{"i32":12,"i64":"-4","u32":4294967295,"f":3,"d":1099511627776}`), got)
}

func TestDecode_NaN(t *testing.T) {
	got, err := decodeSample(t, mustBSON(t, bson.D{{Key: "d", Value: math.NaN()}}))
	require.NoError(t, err)
	assert.True(t, math.IsNaN(got.Get(field(got, "d")).Float()))
}

func TestDecode_Nulls(t *testing.T) {
	start := newSample(t, `{"child":{"hello":"x"},"hello":"y"}`)
	data := mustBSON(t, bson.D{
		{Key: "child", Value: nil},
		{Key: "hello", Value: nil},
		{Key: "dyn", Value: nil},
		{Key: "nothing", Value: nil},
	})
	require.NoError(t, NewDecoder().Unmarshal(data, start))

	assert.False(t, start.Has(field(start, "child")))
	assert.False(t, start.Has(field(start, "hello")))

	dyn := start.Get(field(start, "dyn")).Message()
	nullFd := dyn.Descriptor().Fields().ByName("null_value")
	assert.True(t, dyn.Has(nullFd))
	assert.Equal(t, protoreflect.EnumNumber(0), start.Get(field(start, "nothing")).Enum())
}

func TestDecode_Errors(t *testing.T) {
	tests := []struct {
		name     string
		doc      bson.D
		sentinel error
		path     string
	}{
		{
			name:     "repeated field given a string",
			doc:      bson.D{{Key: "tags", Value: "a"}},
			sentinel: ErrContainerMismatch,
			path:     "tags",
		},
		{
			name:     "map field given an array",
			doc:      bson.D{{Key: "counts", Value: bson.A{int32(1)}}},
			sentinel: ErrContainerMismatch,
			path:     "counts",
		},
		{
			name:     "unknown enum name",
			doc:      bson.D{{Key: "child", Value: bson.D{{Key: "color", Value: "PURPLE"}}}},
			sentinel: ErrUnknownEnumName,
			path:     "child.color",
		},
		{
			name:     "numeric enum",
			doc:      bson.D{{Key: "colors", Value: bson.A{"RED", int32(7)}}},
			sentinel: ErrUnexpectedToken,
			path:     "colors.1",
		},
		{
			name:     "int32 overflow",
			doc:      bson.D{{Key: "i32", Value: int64(math.MaxInt32) + 1}},
			sentinel: ErrUnexpectedToken,
			path:     "i32",
		},
		{
			name:     "negative uint32 as int64",
			doc:      bson.D{{Key: "u32", Value: int64(-1)}},
			sentinel: ErrUnexpectedToken,
			path:     "u32",
		},
		{
			name:     "string given a number",
			doc:      bson.D{{Key: "hello", Value: int32(1)}},
			sentinel: ErrUnexpectedToken,
			path:     "hello",
		},
		{
			name:     "bad int map key",
			doc:      bson.D{{Key: "children", Value: bson.D{{Key: "abc", Value: bson.D{}}}}},
			sentinel: ErrInvalidMapKey,
			path:     "children.abc",
		},
		{
			name:     "bad bool map key",
			doc:      bson.D{{Key: "flags", Value: bson.D{{Key: "yes", Value: "v"}}}},
			sentinel: ErrInvalidMapKey,
			path:     "flags.yes",
		},
		{
			name:     "field mask given a document",
			doc:      bson.D{{Key: "mask", Value: bson.D{}}},
			sentinel: ErrUnexpectedToken,
			path:     "mask",
		},
		{
			name:     "value given binary",
			doc:      bson.D{{Key: "dyn", Value: []byte{1}}},
			sentinel: ErrUnexpectedToken,
			path:     "dyn",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := decodeSample(t, mustBSON(t, tt.doc))
			require.Error(t, err)
			assert.ErrorIs(t, err, tt.sentinel)

			var fe *FieldError
			require.ErrorAs(t, err, &fe)
			assert.Equal(t, "decode", fe.Op)
			assert.Equal(t, tt.path, fe.Path())
		})
	}
}

func TestDecode_TopLevelValues(t *testing.T) {
	raw := bson.Raw(mustBSON(t, bson.D{{Key: "v", Value: 1.5}}))
	rv := raw.Lookup("v")

	t.Run("wrapper", func(t *testing.T) {
		got := &wrapperspb.DoubleValue{}
		require.NoError(t, NewDecoder().Decode(bsonrw.NewBSONValueReader(rv.Type, rv.Value), got.ProtoReflect()))
		assert.Equal(t, 1.5, got.GetValue())
	})

	t.Run("scalar against a generic message", func(t *testing.T) {
		msg := newSample(t, "")
		err := NewDecoder().Decode(bsonrw.NewBSONValueReader(rv.Type, rv.Value), msg)
		assert.ErrorIs(t, err, ErrUnexpectedToken)
	})
}

func TestDecode_ArrayAsMessage(t *testing.T) {
	raw := bson.Raw(mustBSON(t, bson.D{{Key: "v", Value: bson.A{"x", int32(2)}}}))
	rv := raw.Lookup("v")

	msg := newSample(t, "")
	require.NoError(t, NewDecoder().Decode(bsonrw.NewBSONValueReader(rv.Type, rv.Value), msg))
	assertProtoEqual(t, newSample(t, ""), msg)
}

func TestUnmarshalExtJSON(t *testing.T) {
	msg := newSample(t, "")
	err := NewDecoder().UnmarshalExtJSON([]byte(`{"hello":"world","i64":{"$numberLong":"5"},"blob":{"$binary":{"base64":"AQI=","subType":"00"}}}`), msg, false)
	require.NoError(t, err)
	assertProtoEqual(t, newSample(t, `{"hello":"world","i64":"5","blob":"AQI="}`), msg)
}

func TestDecodeMessage(t *testing.T) {
	md := sampleDescriptor(t, "Sample")
	got, err := DecodeMessage(mustBSON(t, bson.D{{Key: "hello", Value: "world"}}), md)
	require.NoError(t, err)
	assertProtoEqual(t, newSample(t, `{"hello":"world"}`), got)
}

func TestUnmarshal_ResetsTarget(t *testing.T) {
	msg := newSample(t, `{"hello":"old","tags":["a"],"counts":{"x":1}}`)
	data := mustBSON(t, bson.D{
		{Key: "tags", Value: bson.A{"b"}},
		{Key: "counts", Value: bson.D{{Key: "y", Value: int32(2)}}},
	})

	require.NoError(t, NewDecoder().Unmarshal(data, msg))
	assertProtoEqual(t, newSample(t, `{"tags":["b"],"counts":{"y":2}}`), msg)
}

func TestDecode_Merges(t *testing.T) {
	msg := newSample(t, `{"hello":"old","tags":["a"]}`)
	raw := bson.Raw(mustBSON(t, bson.D{{Key: "tags", Value: bson.A{"b"}}}))

	require.NoError(t, NewDecoder().Decode(bsonrw.NewBSONDocumentReader(raw), msg))
	assertProtoEqual(t, newSample(t, `{"hello":"old","tags":["a","b"]}`), msg)
}

func TestNoDescriptor(t *testing.T) {
	var zero dynamicpb.Message
	data := mustBSON(t, bson.D{{Key: "hello", Value: "x"}})

	err := NewDecoder().Unmarshal(data, &zero)
	assert.ErrorIs(t, err, ErrNoDescriptor)
	err = NewDecoder().Decode(bsonrw.NewBSONDocumentReader(data), &zero)
	assert.ErrorIs(t, err, ErrNoDescriptor)
	_, err = NewEncoder(DefaultOptions()).Marshal(&zero)
	assert.ErrorIs(t, err, ErrNoDescriptor)
}
