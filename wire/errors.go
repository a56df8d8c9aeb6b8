package wire

import (
	"errors"
	"fmt"
	"strings"
)

var (
	// ErrContainerMismatch is returned when a map field is not a document or a
	// repeated field is not an array.
	ErrContainerMismatch = errors.New("container kind mismatch")
	// ErrUnknownEnumName is returned when an enum string names no declared value.
	ErrUnknownEnumName = errors.New("unknown enum value name")
	// ErrInvalidMapKey is returned when a document key cannot be parsed as the
	// map's key kind, or the key kind cannot be a map key.
	ErrInvalidMapKey = errors.New("invalid map key")
	// ErrUnexpectedToken is returned when the token under the reader does not
	// match the kind the schema expects.
	ErrUnexpectedToken = errors.New("unexpected token")
	// ErrInvalidWellKnown is returned when a well-known type's descriptor does
	// not have the shape its bespoke form needs.
	ErrInvalidWellKnown = errors.New("invalid well-known type")
	// ErrMultipleValueKinds is returned when a google.protobuf.Value has more
	// than one alternative set.
	ErrMultipleValueKinds = errors.New("value has more than one kind set")
	// ErrUnsupportedKind means a descriptor reported a field kind the codec does
	// not know. It indicates a corrupt schema.
	ErrUnsupportedKind = errors.New("unsupported field kind")
	// ErrNoDescriptor is returned for a message value with no descriptor, such
	// as a zero dynamicpb.Message.
	ErrNoDescriptor = errors.New("message has no descriptor")
)

// FieldError represents an encoding/decoding error with a field path.
type FieldError struct {
	Op        string   // "encode" or "decode"
	FieldPath []string // e.g., ["profile", "address", "postalCode"]
	Err       error    // underlying error
}

// Error implements the error interface.
func (e *FieldError) Error() string {
	if len(e.FieldPath) == 0 {
		return fmt.Sprintf("%s: %v", e.Op, e.Err)
	}

	return fmt.Sprintf("%s error at path %s: %v", e.Op, strings.Join(e.FieldPath, "."), e.Err)
}

// Unwrap returns the underlying error.
func (e *FieldError) Unwrap() error {
	return e.Err
}

// Is matches a *FieldError target of the same Op. A target with an empty Op
// matches any FieldError.
func (e *FieldError) Is(target error) bool {
	t, ok := target.(*FieldError)
	return ok && (t.Op == "" || t.Op == e.Op)
}

// Path returns the dotted field path.
func (e *FieldError) Path() string {
	return strings.Join(e.FieldPath, ".")
}

// newFieldError creates a path-less error wrapping sentinel with a formatted detail.
func newFieldError(sentinel error, format string, args ...interface{}) error {
	return fmt.Errorf("%w: %s", sentinel, fmt.Sprintf(format, args...))
}

// wrapWithField prepends fieldName to the path of err.
func wrapWithField(err error, op, fieldName string) error {
	if err == nil {
		return nil
	}

	var fe *FieldError
	if errors.As(err, &fe) {
		return &FieldError{
			Op:        fe.Op,
			FieldPath: append([]string{fieldName}, fe.FieldPath...),
			Err:       fe.Err,
		}
	}

	return &FieldError{
		Op:        op,
		FieldPath: []string{fieldName},
		Err:       err,
	}
}

// asFieldError makes sure a top-level failure is a *FieldError.
func asFieldError(err error, op string) error {
	if err == nil {
		return nil
	}
	var fe *FieldError
	if errors.As(err, &fe) {
		return err
	}
	return &FieldError{Op: op, Err: err}
}
