package wire

import (
	"errors"
	"fmt"
	"io"
	"os"
	"strconv"

	"gopkg.in/yaml.v3"
)

// Options controls how messages are rendered as documents.
type Options struct {
	// IncludeDefaultValueFields: when true, singular scalar, enum, repeated and
	// map fields are written even when they hold their default value. Unset
	// message fields and unset oneof members are never forced.
	IncludeDefaultValueFields bool `yaml:"include_default_value_fields"`

	// PreserveOriginalFieldNames: when true, documents use the declared field
	// names ("user_name"). When false, the lowerCamelCase JSON names ("userName").
	PreserveOriginalFieldNames bool `yaml:"preserve_original_field_names"`
}

// Environment toggles read by WithEnv.
const (
	EnvIncludeDefaults = "PROTOBSON_INCLUDE_DEFAULTS"
	EnvPreserveNames   = "PROTOBSON_PRESERVE_NAMES"
)

// DefaultOptions returns the default rendering: defaults included, JSON names.
func DefaultOptions() Options {
	return Options{
		IncludeDefaultValueFields:  true,
		PreserveOriginalFieldNames: false,
	}
}

// LoadOptions reads YAML options from r. Keys missing from the input keep
// their default value; an empty input yields DefaultOptions.
func LoadOptions(r io.Reader) (Options, error) {
	opts := DefaultOptions()
	if err := yaml.NewDecoder(r).Decode(&opts); err != nil && !errors.Is(err, io.EOF) {
		return DefaultOptions(), fmt.Errorf("failed to parse options: %w", err)
	}
	return opts, nil
}

// LoadOptionsFile reads YAML options from path.
func LoadOptionsFile(path string) (Options, error) {
	f, err := os.Open(path)
	if err != nil {
		return DefaultOptions(), fmt.Errorf("failed to open options file: %w", err)
	}
	defer f.Close()
	return LoadOptions(f)
}

// WithEnv returns o with the environment toggles applied. Unset or unparsable
// variables leave the corresponding option untouched.
func (o Options) WithEnv() Options {
	if v, ok := lookupBool(EnvIncludeDefaults); ok {
		o.IncludeDefaultValueFields = v
	}
	if v, ok := lookupBool(EnvPreserveNames); ok {
		o.PreserveOriginalFieldNames = v
	}
	return o
}

func lookupBool(key string) (bool, bool) {
	raw, ok := os.LookupEnv(key)
	if !ok {
		return false, false
	}
	v, err := strconv.ParseBool(raw)
	if err != nil {
		return false, false
	}
	return v, true
}
