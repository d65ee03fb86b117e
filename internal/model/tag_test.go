package model

import (
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseTagType(t *testing.T) {
	tests := []struct {
		input string
		want  TagType
	}{
		{"", TagString},
		{"STRING", TagString},
		{"str", TagString},
		{"Integer", TagInteger},
		{"INT", TagInteger},
		{"float", TagFloat},
		{" NONE ", TagNone},
	}

	for _, tt := range tests {
		t.Run(tt.input, func(t *testing.T) {
			got, err := ParseTagType(tt.input)
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}

	_, err := ParseTagType("decimal")
	require.Error(t, err)
	assert.True(t, IsInvalidArgument(err))
}

func TestTagTypeString(t *testing.T) {
	assert.Equal(t, "NONE", TagNone.String())
	assert.Equal(t, "STRING", TagString.String())
	assert.Equal(t, "INTEGER", TagInteger.String())
	assert.Equal(t, "FLOAT", TagFloat.String())
	assert.Equal(t, "TagType(9)", TagType(9).String())
	assert.True(t, TagFloat.Valid())
	assert.False(t, TagType(4).Valid())
	assert.False(t, TagType(-1).Valid())
}

func TestTagText(t *testing.T) {
	tests := []struct {
		name  string
		input any
		want  string
	}{
		{"nil", nil, ""},
		{"string", "ornl", "ornl"},
		{"int", 10, "10"},
		{"int64", int64(10), "10"},
		{"uint", uint(7), "7"},
		{"float", 0.5, "0.5"},
		{"integral float", 10.0, "10"},
		{"float32", float32(1.25), "1.25"},
		{"large float", 1234567.0, "1234567"},
		{"large fractional float", 1234567.5, "1234567.5"},
		{"tiny float", 0.00001, "0.00001"},
		{"float32 large", float32(2e7), "20000000"},
		{"json exponent", json.Number("1e6"), "1000000"},
		{"json decimal", json.Number("0.25"), "0.25"},
		{"json integer", json.Number("42"), "42"},
		{"bool", false, "false"},
		{"bytes", []byte("raw"), "raw"},
		{"nfc", "cafe\u0301", "caf\u00e9"},
		{"named string", KindData, "data"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, TagText(tt.input))
		})
	}
}

func TestTagText_NumbersCompareTextually(t *testing.T) {
	assert.Equal(t, TagText(10), TagText("10"))
	assert.NotEqual(t, TagText("10.0"), TagText(10))
}

func TestTagKey(t *testing.T) {
	assert.Equal(t, "caf\u00e9", TagKey("cafe\u0301"))
}
