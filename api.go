package protobson

import (
	"fmt"

	json "github.com/goccy/go-json"
	"google.golang.org/protobuf/encoding/protojson"
	"google.golang.org/protobuf/proto"
	"google.golang.org/protobuf/types/dynamicpb"

	"github.com/anirudhraja/protobson/registry"
	"github.com/anirudhraja/protobson/wire"
)

// ===== SCHEMA-AWARE API =====

// Protobson stores protobuf messages as BSON documents using schemas loaded at
// runtime, without generated code.
type Protobson interface {
	// LoadSchemaFromFile loads a .proto file, relative to one of the proto
	// directories, with its imports.
	LoadSchemaFromFile(protoFile string) error
	// NewMessage returns an empty message of the named type.
	NewMessage(messageType string) (*dynamicpb.Message, error)
	// Marshal encodes any message, generated or dynamic, as a BSON document.
	Marshal(msg proto.Message) ([]byte, error)
	// Unmarshal decodes a BSON document into a new message of the named type.
	Unmarshal(data []byte, messageType string) (*dynamicpb.Message, error)
	// UnmarshalInto resets msg and decodes a BSON document into it.
	UnmarshalInto(data []byte, msg proto.Message) error
	// MarshalMap encodes a generic map, in protobuf JSON shape, as a BSON document.
	MarshalMap(data map[string]interface{}, messageType string) ([]byte, error)
	// ParseMap decodes a BSON document into a generic map in protobuf JSON shape.
	ParseMap(data []byte, messageType string) (map[string]interface{}, error)

	// ===== REGISTRY ACCESS =====
	GetRegistry() *registry.Registry
	ListMessages() []string
	ListEnums() []string
}

type protobson struct {
	registry *registry.Registry
	opts     wire.Options
	encoder  *wire.Encoder
	decoder  *wire.Decoder
}

// NewProtobson creates a Protobson that finds schemas under protoDirs and
// renders documents according to opts.
func NewProtobson(protoDirs []string, opts wire.Options, regOpts ...registry.Option) Protobson {
	return &protobson{
		registry: registry.NewRegistry(protoDirs, regOpts...),
		opts:     opts,
		encoder:  wire.NewEncoder(opts),
		decoder:  wire.NewDecoder(),
	}
}

func (p *protobson) LoadSchemaFromFile(protoFile string) error {
	return p.registry.LoadSchema(protoFile)
}

func (p *protobson) NewMessage(messageType string) (*dynamicpb.Message, error) {
	msg, err := p.registry.NewMessage(messageType)
	if err != nil {
		return nil, fmt.Errorf("message type not found: %w", err)
	}
	return msg, nil
}

func (p *protobson) Marshal(msg proto.Message) ([]byte, error) {
	return p.encoder.Marshal(msg)
}

func (p *protobson) Unmarshal(data []byte, messageType string) (*dynamicpb.Message, error) {
	msg, err := p.NewMessage(messageType)
	if err != nil {
		return nil, err
	}
	if err := p.decoder.Unmarshal(data, msg); err != nil {
		return nil, err
	}
	return msg, nil
}

func (p *protobson) UnmarshalInto(data []byte, msg proto.Message) error {
	return p.decoder.Unmarshal(data, msg)
}

func (p *protobson) MarshalMap(data map[string]interface{}, messageType string) ([]byte, error) {
	msg, err := p.NewMessage(messageType)
	if err != nil {
		return nil, err
	}
	js, err := json.Marshal(data)
	if err != nil {
		return nil, fmt.Errorf("failed to marshal map: %w", err)
	}
	if err := (protojson.UnmarshalOptions{Resolver: p.registry.Resolver()}).Unmarshal(js, msg); err != nil {
		return nil, fmt.Errorf("map does not match %s: %w", messageType, err)
	}
	return p.Marshal(msg)
}

func (p *protobson) ParseMap(data []byte, messageType string) (map[string]interface{}, error) {
	msg, err := p.Unmarshal(data, messageType)
	if err != nil {
		return nil, err
	}
	js, err := protojson.MarshalOptions{
		Resolver:        p.registry.Resolver(),
		UseProtoNames:   p.opts.PreserveOriginalFieldNames,
		EmitUnpopulated: p.opts.IncludeDefaultValueFields,
	}.Marshal(msg)
	if err != nil {
		return nil, fmt.Errorf("failed to render %s: %w", messageType, err)
	}
	result := make(map[string]interface{})
	if err := json.Unmarshal(js, &result); err != nil {
		return nil, fmt.Errorf("failed to unmarshal map: %w", err)
	}
	return result, nil
}

func (p *protobson) GetRegistry() *registry.Registry { return p.registry }
func (p *protobson) ListMessages() []string          { return p.registry.ListMessages() }
func (p *protobson) ListEnums() []string             { return p.registry.ListEnums() }
