package schema

import (
	"google.golang.org/protobuf/reflect/protoreflect"
)

// WellKnown identifies a message type whose document form differs from the
// generic field-by-field shape.
type WellKnown string

const (
	WellKnownNone WellKnown = ""

	WellKnownAny WellKnown = "google.protobuf.Any"

	WellKnownDoubleValue WellKnown = "google.protobuf.DoubleValue"
	WellKnownFloatValue  WellKnown = "google.protobuf.FloatValue"
	WellKnownInt64Value  WellKnown = "google.protobuf.Int64Value"
	WellKnownUInt64Value WellKnown = "google.protobuf.UInt64Value"
	WellKnownInt32Value  WellKnown = "google.protobuf.Int32Value"
	WellKnownUInt32Value WellKnown = "google.protobuf.UInt32Value"
	WellKnownBoolValue   WellKnown = "google.protobuf.BoolValue"
	WellKnownStringValue WellKnown = "google.protobuf.StringValue"
	WellKnownBytesValue  WellKnown = "google.protobuf.BytesValue"

	WellKnownFieldMask WellKnown = "google.protobuf.FieldMask"
	WellKnownStruct    WellKnown = "google.protobuf.Struct"
	WellKnownValue     WellKnown = "google.protobuf.Value"
	WellKnownListValue WellKnown = "google.protobuf.ListValue"
)

// NullValueEnum is the enum that always encodes as a null token.
const NullValueEnum protoreflect.FullName = "google.protobuf.NullValue"

var wellKnownTypes = map[protoreflect.FullName]WellKnown{
	protoreflect.FullName(WellKnownAny):         WellKnownAny,
	protoreflect.FullName(WellKnownDoubleValue): WellKnownDoubleValue,
	protoreflect.FullName(WellKnownFloatValue):  WellKnownFloatValue,
	protoreflect.FullName(WellKnownInt64Value):  WellKnownInt64Value,
	protoreflect.FullName(WellKnownUInt64Value): WellKnownUInt64Value,
	protoreflect.FullName(WellKnownInt32Value):  WellKnownInt32Value,
	protoreflect.FullName(WellKnownUInt32Value): WellKnownUInt32Value,
	protoreflect.FullName(WellKnownBoolValue):   WellKnownBoolValue,
	protoreflect.FullName(WellKnownStringValue): WellKnownStringValue,
	protoreflect.FullName(WellKnownBytesValue):  WellKnownBytesValue,
	protoreflect.FullName(WellKnownFieldMask):   WellKnownFieldMask,
	protoreflect.FullName(WellKnownStruct):      WellKnownStruct,
	protoreflect.FullName(WellKnownValue):       WellKnownValue,
	protoreflect.FullName(WellKnownListValue):   WellKnownListValue,
}

// WellKnownOf returns the well-known type of md, or WellKnownNone when md is
// encoded generically.
func WellKnownOf(md protoreflect.MessageDescriptor) WellKnown {
	if md == nil {
		return WellKnownNone
	}
	return wellKnownTypes[md.FullName()]
}

// IsWrapper reports whether w is one of the nine scalar wrapper types.
func (w WellKnown) IsWrapper() bool {
	switch w {
	case WellKnownDoubleValue, WellKnownFloatValue,
		WellKnownInt64Value, WellKnownUInt64Value,
		WellKnownInt32Value, WellKnownUInt32Value,
		WellKnownBoolValue, WellKnownStringValue, WellKnownBytesValue:
		return true
	}
	return false
}

// IsNullValue reports whether ed is google.protobuf.NullValue.
func IsNullValue(ed protoreflect.EnumDescriptor) bool {
	return ed != nil && ed.FullName() == NullValueEnum
}
