package record

import (
	"strconv"
	"strings"
	"time"
)

// Kind identifies the dynamic type held by a Value.
type Kind uint8

const (
	// KindNull is a missing value.
	KindNull Kind = iota
	// KindString is free text or an identifier.
	KindString
	// KindNumber is a float64.
	KindNumber
	// KindBool is a boolean, typically a helper column.
	KindBool
	// KindTime is a parsed date or timestamp.
	KindTime
	// KindList is an ordered list of strings, used by trigger output columns.
	KindList
)

// String returns the kind name.
func (k Kind) String() string {
	switch k {
	case KindNull:
		return "null"
	case KindString:
		return "string"
	case KindNumber:
		return "number"
	case KindBool:
		return "bool"
	case KindTime:
		return "time"
	case KindList:
		return "list"
	default:
		return "unknown"
	}
}

// Value is a single cell. The zero Value is null.
type Value struct {
	kind Kind
	str  string
	num  float64
	b    bool
	t    time.Time
	list []string
}

// Null returns a null value.
func Null() Value { return Value{} }

// String returns a string value.
func String(s string) Value { return Value{kind: KindString, str: s} }

// Number returns a numeric value.
func Number(f float64) Value { return Value{kind: KindNumber, num: f} }

// Bool returns a boolean value.
func Bool(b bool) Value { return Value{kind: KindBool, b: b} }

// Time returns a time value.
func Time(t time.Time) Value { return Value{kind: KindTime, t: t} }

// List returns a list value holding a copy of items.
func List(items []string) Value {
	cp := make([]string, len(items))
	copy(cp, items)
	return Value{kind: KindList, list: cp}
}

// Kind returns the dynamic type of v.
func (v Value) Kind() Kind { return v.kind }

// IsNull reports whether v is missing.
func (v Value) IsNull() bool { return v.kind == KindNull }

// Text renders v as text. Null renders as the empty string, whole numbers
// without a decimal point, and midnight timestamps as a bare date.
func (v Value) Text() string {
	switch v.kind {
	case KindString:
		return v.str
	case KindNumber:
		return strconv.FormatFloat(v.num, 'f', -1, 64)
	case KindBool:
		return strconv.FormatBool(v.b)
	case KindTime:
		if v.t.Hour() == 0 && v.t.Minute() == 0 && v.t.Second() == 0 && v.t.Nanosecond() == 0 {
			return v.t.Format(time.DateOnly)
		}
		return v.t.Format(time.DateTime)
	case KindList:
		return strings.Join(v.list, ", ")
	default:
		return ""
	}
}

// Float returns v as a number. Strings are parsed after trimming; other kinds
// and unparsable text report false.
func (v Value) Float() (float64, bool) {
	switch v.kind {
	case KindNumber:
		return v.num, true
	case KindString:
		f, err := strconv.ParseFloat(strings.TrimSpace(v.str), 64)
		if err != nil {
			return 0, false
		}
		return f, true
	default:
		return 0, false
	}
}

// Truth returns the boolean held by v.
func (v Value) Truth() (bool, bool) {
	if v.kind != KindBool {
		return false, false
	}
	return v.b, true
}

// Moment returns the time held by v.
func (v Value) Moment() (time.Time, bool) {
	if v.kind != KindTime {
		return time.Time{}, false
	}
	return v.t, true
}

// Items returns a copy of the list held by v, or nil for other kinds.
func (v Value) Items() []string {
	if v.kind != KindList {
		return nil
	}
	cp := make([]string, len(v.list))
	copy(cp, v.list)
	return cp
}

// Equal reports whether v and o hold the same kind and value.
func (v Value) Equal(o Value) bool {
	if v.kind != o.kind {
		return false
	}
	switch v.kind {
	case KindNull:
		return true
	case KindString:
		return v.str == o.str
	case KindNumber:
		return v.num == o.num
	case KindBool:
		return v.b == o.b
	case KindTime:
		return v.t.Equal(o.t)
	case KindList:
		if len(v.list) != len(o.list) {
			return false
		}
		for i := range v.list {
			if v.list[i] != o.list[i] {
				return false
			}
		}
		return true
	}
	return false
}

// Blank reports whether v is null or whitespace-only text.
func (v Value) Blank() bool {
	if v.kind == KindNull {
		return true
	}
	if v.kind == KindString {
		return strings.TrimSpace(v.str) == ""
	}
	return false
}
