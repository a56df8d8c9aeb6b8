package wire

import (
	"math"
	"strings"

	"go.mongodb.org/mongo-driver/bson/bsonrw"
	"go.mongodb.org/mongo-driver/bson/bsontype"
)

// toLowerCamel turns a snake_case path segment into lowerCamelCase:
// "user_name" -> "userName". Dots are kept, so nested paths convert per segment.
func toLowerCamel(s string) string {
	var b strings.Builder
	b.Grow(len(s))
	upper := false
	for i := 0; i < len(s); i++ {
		c := s[i]
		switch {
		case c == '_':
			upper = b.Len() > 0
		case upper && 'a' <= c && c <= 'z':
			b.WriteByte(c - 'a' + 'A')
			upper = false
		case b.Len() == 0 && 'A' <= c && c <= 'Z':
			b.WriteByte(c - 'A' + 'a')
		default:
			b.WriteByte(c)
			upper = false
		}
	}
	return b.String()
}

// camelToSnake is the inverse of toLowerCamel: "child.userName" -> "child.user_name".
func camelToSnake(s string) string {
	var b strings.Builder
	b.Grow(len(s) + 4)
	for i := 0; i < len(s); i++ {
		c := s[i]
		if 'A' <= c && c <= 'Z' {
			if i > 0 && s[i-1] != '.' {
				b.WriteByte('_')
			}
			c += 'a' - 'A'
		}
		b.WriteByte(c)
	}
	return b.String()
}

// formatFieldMask renders snake_case paths as a comma-joined lowerCamel list.
func formatFieldMask(paths []string) string {
	camel := make([]string, len(paths))
	for i, p := range paths {
		camel[i] = toLowerCamel(p)
	}
	return strings.Join(camel, ",")
}

// parseFieldMask splits a comma-joined lowerCamel list into snake_case paths.
// Empty segments are dropped.
func parseFieldMask(s string) []string {
	if strings.TrimSpace(s) == "" {
		return []string{}
	}
	parts := strings.Split(s, ",")
	out := make([]string, 0, len(parts))
	for _, p := range parts {
		p = strings.TrimSpace(p)
		if p == "" {
			continue
		}
		out = append(out, camelToSnake(p))
	}
	return out
}

// readInteger reads an int32 or int64 token as int64.
func readInteger(vr bsonrw.ValueReader) (int64, error) {
	switch vr.Type() {
	case bsontype.Int32:
		v, err := vr.ReadInt32()
		return int64(v), err
	case bsontype.Int64:
		return vr.ReadInt64()
	default:
		return 0, newFieldError(ErrUnexpectedToken, "expected integer, got %s", vr.Type())
	}
}

// readInt32 reads an integer token that must fit in 32 signed bits.
func readInt32(vr bsonrw.ValueReader) (int32, error) {
	v, err := readInteger(vr)
	if err != nil {
		return 0, err
	}
	if v < math.MinInt32 || v > math.MaxInt32 {
		return 0, newFieldError(ErrUnexpectedToken, "value %d overflows int32", v)
	}
	return int32(v), nil
}

// readUint32 reads an integer token that must fit in 32 unsigned bits.
// Negative int32 tokens are accepted as their two's-complement bit pattern.
func readUint32(vr bsonrw.ValueReader) (uint32, error) {
	if vr.Type() == bsontype.Int32 {
		v, err := vr.ReadInt32()
		return uint32(v), err
	}
	v, err := readInteger(vr)
	if err != nil {
		return 0, err
	}
	if v < 0 || v > math.MaxUint32 {
		return 0, newFieldError(ErrUnexpectedToken, "value %d overflows uint32", v)
	}
	return uint32(v), nil
}

// readDouble reads a double token, widening integer tokens.
func readDouble(vr bsonrw.ValueReader) (float64, error) {
	switch vr.Type() {
	case bsontype.Double:
		return vr.ReadDouble()
	case bsontype.Int32, bsontype.Int64:
		v, err := readInteger(vr)
		return float64(v), err
	default:
		return 0, newFieldError(ErrUnexpectedToken, "expected number, got %s", vr.Type())
	}
}

// expectType fails unless the reader is positioned on t.
func expectType(vr bsonrw.ValueReader, t bsontype.Type) error {
	if vr.Type() != t {
		return newFieldError(ErrUnexpectedToken, "expected %s, got %s", t, vr.Type())
	}
	return nil
}

// normalizeFloat maps every NaN payload onto the canonical NaN and keeps the
// sign of infinities.
func normalizeFloat(f float64) float64 {
	switch {
	case math.IsNaN(f):
		return math.NaN()
	case math.IsInf(f, 1):
		return math.Inf(1)
	case math.IsInf(f, -1):
		return math.Inf(-1)
	}
	return f
}
