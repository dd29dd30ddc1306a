package state

import (
	"encoding/json"
	"fmt"
	"strconv"
)

// FlagKind identifies which variant a FlagValue holds.
type FlagKind uint8

const (
	FlagInvalid FlagKind = iota
	FlagString
	FlagNumber
	FlagBool
)

// FlagValue is a story flag: a string, a number or a boolean.
// The zero value is invalid and is never stored.
type FlagValue struct {
	kind FlagKind
	str  string
	num  float64
	b    bool
}

func StringFlag(s string) FlagValue { return FlagValue{kind: FlagString, str: s} }

func NumberFlag(n float64) FlagValue { return FlagValue{kind: FlagNumber, num: n} }

func BoolFlag(b bool) FlagValue { return FlagValue{kind: FlagBool, b: b} }

func (f FlagValue) Kind() FlagKind { return f.kind }

func (f FlagValue) IsValid() bool { return f.kind != FlagInvalid }

// AsString returns the string variant.
func (f FlagValue) AsString() (string, bool) { return f.str, f.kind == FlagString }

// AsNumber returns the number variant.
func (f FlagValue) AsNumber() (float64, bool) { return f.num, f.kind == FlagNumber }

// AsBool returns the boolean variant.
func (f FlagValue) AsBool() (bool, bool) { return f.b, f.kind == FlagBool }

// Equal compares kind and value.
func (f FlagValue) Equal(other FlagValue) bool {
	if f.kind != other.kind {
		return false
	}
	switch f.kind {
	case FlagString:
		return f.str == other.str
	case FlagNumber:
		return f.num == other.num
	case FlagBool:
		return f.b == other.b
	}
	return true
}

// String renders the value for prompts and summaries.
func (f FlagValue) String() string {
	switch f.kind {
	case FlagString:
		return strconv.Quote(f.str)
	case FlagNumber:
		return strconv.FormatFloat(f.num, 'f', -1, 64)
	case FlagBool:
		return strconv.FormatBool(f.b)
	}
	return "null"
}

func (f FlagValue) MarshalJSON() ([]byte, error) {
	switch f.kind {
	case FlagString:
		return json.Marshal(f.str)
	case FlagNumber:
		return json.Marshal(f.num)
	case FlagBool:
		return json.Marshal(f.b)
	}
	return []byte("null"), nil
}

func (f *FlagValue) UnmarshalJSON(data []byte) error {
	var raw any
	if err := json.Unmarshal(data, &raw); err != nil {
		return err
	}
	switch v := raw.(type) {
	case nil:
		*f = FlagValue{}
	case string:
		*f = StringFlag(v)
	case float64:
		*f = NumberFlag(v)
	case bool:
		*f = BoolFlag(v)
	default:
		return fmt.Errorf("flag value must be a string, number or boolean, got %T", raw)
	}
	return nil
}
