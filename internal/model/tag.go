package model

import (
	"encoding/json"
	"fmt"
	"strconv"
	"strings"

	"golang.org/x/text/unicode/norm"
)

// TagType is the declared kind of a tag value. The value itself is always
// stored as text.
type TagType int

const (
	TagNone    TagType = 0
	TagString  TagType = 1
	TagInteger TagType = 2
	TagFloat   TagType = 3
)

// Valid reports whether t is one of the four recognized kinds.
func (t TagType) Valid() bool {
	return t >= TagNone && t <= TagFloat
}

func (t TagType) String() string {
	switch t {
	case TagNone:
		return "NONE"
	case TagString:
		return "STRING"
	case TagInteger:
		return "INTEGER"
	case TagFloat:
		return "FLOAT"
	default:
		return fmt.Sprintf("TagType(%d)", int(t))
	}
}

// ParseTagType accepts the names used by the CLI and import manifests.
// Empty input means TagString.
func ParseTagType(s string) (TagType, error) {
	switch strings.ToUpper(strings.TrimSpace(s)) {
	case "", "STRING", "STR":
		return TagString, nil
	case "NONE":
		return TagNone, nil
	case "INTEGER", "INT":
		return TagInteger, nil
	case "FLOAT":
		return TagFloat, nil
	}
	return 0, NewInvalidArgument(fmt.Sprintf("unknown tag type %q", s))
}

// Tag is a typed key/value attribute of a record. Multiple tags with the
// same key may exist on one record.
type Tag struct {
	ID       int64   `json:"id"`
	RecordID int64   `json:"record_id"`
	Key      string  `json:"key"`
	Value    string  `json:"value"`
	Type     TagType `json:"type"`
}

// TagText returns the textual form used to store and compare tag values.
//
// Numbers use their shortest plain decimal form with no exponent, so 10,
// 10.0 and "10" are equal while "10.0" is not, and 1234567.0 is "1234567".
// Strings are NFC normalized.
func TagText(v any) string {
	switch val := v.(type) {
	case nil:
		return ""
	case string:
		return norm.NFC.String(val)
	case []byte:
		return norm.NFC.String(string(val))
	case int:
		return strconv.Itoa(val)
	case int32:
		return strconv.FormatInt(int64(val), 10)
	case int64:
		return strconv.FormatInt(val, 10)
	case uint:
		return strconv.FormatUint(uint64(val), 10)
	case uint64:
		return strconv.FormatUint(val, 10)
	case float32:
		return strconv.FormatFloat(float64(val), 'f', -1, 32)
	case float64:
		return strconv.FormatFloat(val, 'f', -1, 64)
	case json.Number:
		if n, err := val.Int64(); err == nil {
			return strconv.FormatInt(n, 10)
		}
		if f, err := val.Float64(); err == nil {
			return strconv.FormatFloat(f, 'f', -1, 64)
		}
		return string(val)
	case bool:
		return strconv.FormatBool(val)
	case fmt.Stringer:
		return norm.NFC.String(val.String())
	default:
		return norm.NFC.String(fmt.Sprint(val))
	}
}

// TagKey normalizes a tag key.
func TagKey(k string) string {
	return norm.NFC.String(k)
}
