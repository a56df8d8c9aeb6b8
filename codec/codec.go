// Package codec plugs the protobuf document encoding into the MongoDB driver's
// codec registry, so proto messages can be stored as fields of ordinary structs.
package codec

import (
	"fmt"
	"reflect"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/bson/bsoncodec"
	"go.mongodb.org/mongo-driver/bson/bsonrw"
	"go.mongodb.org/mongo-driver/bson/bsontype"
	"google.golang.org/protobuf/proto"
	"google.golang.org/protobuf/types/dynamicpb"

	"github.com/anirudhraja/protobson/wire"
)

var (
	tProtoMessage   = reflect.TypeOf((*proto.Message)(nil)).Elem()
	tDynamicMessage = reflect.TypeOf((*dynamicpb.Message)(nil))
)

// MessageCodec is a ValueEncoder and ValueDecoder for pointer types that
// implement proto.Message.
type MessageCodec struct {
	encoder *wire.Encoder
	decoder *wire.Decoder
}

var (
	_ bsoncodec.ValueEncoder = (*MessageCodec)(nil)
	_ bsoncodec.ValueDecoder = (*MessageCodec)(nil)
)

// NewMessageCodec creates a codec that renders messages with opts.
func NewMessageCodec(opts wire.Options) *MessageCodec {
	return &MessageCodec{
		encoder: wire.NewEncoder(opts),
		decoder: wire.NewDecoder(),
	}
}

// EncodeValue writes a message, or null for a nil pointer.
func (c *MessageCodec) EncodeValue(_ bsoncodec.EncodeContext, vw bsonrw.ValueWriter, val reflect.Value) error {
	if !val.IsValid() || val.Kind() != reflect.Ptr || !val.Type().Implements(tProtoMessage) {
		return bsoncodec.ValueEncoderError{Name: "MessageCodec.EncodeValue", Types: []reflect.Type{tProtoMessage}, Received: val}
	}
	if val.IsNil() {
		return vw.WriteNull()
	}
	return c.encoder.Encode(vw, val.Interface().(proto.Message).ProtoReflect())
}

// DecodeValue reads a message into a fresh instance of the target's type and
// stores it in val, so nothing of a previous value survives. A null value sets
// the target to nil. A *dynamicpb.Message target must already carry a
// descriptor, since its type cannot be known otherwise.
func (c *MessageCodec) DecodeValue(_ bsoncodec.DecodeContext, vr bsonrw.ValueReader, val reflect.Value) error {
	if !val.CanSet() || val.Kind() != reflect.Ptr || !val.Type().Implements(tProtoMessage) {
		return bsoncodec.ValueDecoderError{Name: "MessageCodec.DecodeValue", Types: []reflect.Type{tProtoMessage}, Received: val}
	}
	if vr.Type() == bsontype.Null {
		val.Set(reflect.Zero(val.Type()))
		return vr.ReadNull()
	}
	msg, err := freshMessage(val)
	if err != nil {
		return err
	}
	if err := c.decoder.Decode(vr, msg.ProtoReflect()); err != nil {
		return err
	}
	val.Set(reflect.ValueOf(msg))
	return nil
}

// freshMessage returns an empty message of the type held by val.
func freshMessage(val reflect.Value) (proto.Message, error) {
	if val.IsNil() {
		if val.Type() == tDynamicMessage {
			return nil, fmt.Errorf("cannot decode into a nil %s: %w", tDynamicMessage, wire.ErrNoDescriptor)
		}
		return reflect.New(val.Type().Elem()).Interface().(proto.Message), nil
	}
	m := val.Interface().(proto.Message).ProtoReflect()
	if m.Descriptor() == nil {
		// the driver allocates nil pointer fields before decoding into them
		return nil, fmt.Errorf("cannot decode into %s: allocate it with dynamicpb.NewMessage first: %w", val.Type(), wire.ErrNoDescriptor)
	}
	return m.New().Interface(), nil
}

// Register adds the message codec to reg for every type implementing proto.Message.
func Register(reg *bsoncodec.Registry, opts wire.Options) {
	mc := NewMessageCodec(opts)
	reg.RegisterInterfaceEncoder(tProtoMessage, mc)
	reg.RegisterInterfaceDecoder(tProtoMessage, mc)
}

// NewRegistry returns the driver's default registry with the message codec added.
func NewRegistry(opts wire.Options) *bsoncodec.Registry {
	reg := bson.NewRegistry()
	Register(reg, opts)
	return reg
}
