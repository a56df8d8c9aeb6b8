// Command sampleapp loads a schema, builds a message from protobuf JSON and
// shows the BSON document it is stored as, decoded back again.
package main

import (
	"bytes"
	"fmt"
	"log/slog"
	"os"

	json "github.com/goccy/go-json"
	"github.com/spf13/pflag"
	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/bson/bsonrw"
	"google.golang.org/protobuf/encoding/protojson"
	"google.golang.org/protobuf/types/dynamicpb"

	"github.com/anirudhraja/protobson"
	"github.com/anirudhraja/protobson/codec"
	"github.com/anirudhraja/protobson/registry"
	"github.com/anirudhraja/protobson/wire"
)

// envelope is how the sample stores an order next to plain Go fields.
type envelope struct {
	ID   string             `bson:"_id"`
	Type string             `bson:"type"`
	Body *dynamicpb.Message `bson:"body"`
}

func main() {
	if err := run(); err != nil {
		fmt.Fprintf(os.Stderr, "error: %v\n", err)
		os.Exit(1)
	}
}

func run() error {
	var protoDirs []string
	var protoFile, messageType, inputPath, optionsPath string
	var canonical, verbose bool

	flagSet := pflag.NewFlagSet("sampleapp", pflag.ContinueOnError)
	flagSet.StringSliceVar(&protoDirs, "proto-dir", []string{"sampleapp/testdata"}, "directories searched for .proto files")
	flagSet.StringVar(&protoFile, "file", "shop.proto", "schema file to load, relative to a proto directory")
	flagSet.StringVar(&messageType, "type", "shop.Order", "message type of the input")
	flagSet.StringVar(&inputPath, "input", "sampleapp/testdata/order.json", "protobuf JSON input")
	flagSet.StringVar(&optionsPath, "options", "", "YAML file with rendering options")
	flagSet.BoolVar(&canonical, "canonical", false, "print canonical Extended JSON")
	flagSet.BoolVarP(&verbose, "verbose", "v", false, "log schema loading")
	if err := flagSet.Parse(os.Args[1:]); err != nil {
		if err == pflag.ErrHelp {
			return nil
		}
		return err
	}

	level := slog.LevelWarn
	if verbose {
		level = slog.LevelDebug
	}
	logger := slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: level}))

	opts := wire.DefaultOptions()
	if optionsPath != "" {
		loaded, err := wire.LoadOptionsFile(optionsPath)
		if err != nil {
			return err
		}
		opts = loaded
	}
	opts = opts.WithEnv()
	logger.Info("rendering options",
		"include_defaults", opts.IncludeDefaultValueFields,
		"preserve_names", opts.PreserveOriginalFieldNames)

	pb := protobson.NewProtobson(protoDirs, opts, registry.WithLogger(logger))
	if err := pb.LoadSchemaFromFile(protoFile); err != nil {
		return fmt.Errorf("cannot load %s: %w", protoFile, err)
	}
	fmt.Printf("messages: %v\nenums: %v\n\n", pb.ListMessages(), pb.ListEnums())

	input, err := os.ReadFile(inputPath)
	if err != nil {
		return err
	}
	var fields map[string]interface{}
	if err := json.Unmarshal(input, &fields); err != nil {
		return fmt.Errorf("cannot parse %s: %w", inputPath, err)
	}

	data, err := pb.MarshalMap(fields, messageType)
	if err != nil {
		return err
	}
	fmt.Printf("bson: %d bytes\n%s\n\n", len(data), bson.Raw(data))

	msg, err := pb.Unmarshal(data, messageType)
	if err != nil {
		return err
	}
	extJSON, err := wire.NewEncoder(opts).MarshalExtJSON(msg, canonical)
	if err != nil {
		return err
	}
	fmt.Printf("extended json:\n%s\n\n", extJSON)

	resolver := pb.GetRegistry().Resolver()
	text, err := protojson.MarshalOptions{Resolver: resolver, Multiline: true}.Marshal(msg)
	if err != nil {
		return err
	}
	fmt.Printf("decoded:\n%s\n\n", text)

	stored, err := storeEnvelope(opts, envelope{ID: "ord-1001", Type: messageType, Body: msg})
	if err != nil {
		return err
	}
	fmt.Printf("envelope:\n%s\n", stored)
	return nil
}

// storeEnvelope encodes env with the message codec registered, the way a
// collection would store it.
func storeEnvelope(opts wire.Options, env envelope) (bson.Raw, error) {
	var buf bytes.Buffer
	vw, err := bsonrw.NewBSONValueWriter(&buf)
	if err != nil {
		return nil, err
	}
	enc, err := bson.NewEncoder(vw)
	if err != nil {
		return nil, err
	}
	if err := enc.SetRegistry(codec.NewRegistry(opts)); err != nil {
		return nil, err
	}
	if err := enc.Encode(env); err != nil {
		return nil, fmt.Errorf("cannot encode envelope: %w", err)
	}
	return bson.Raw(buf.Bytes()), nil
}
