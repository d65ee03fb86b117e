package action

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/roach88/braid/internal/model"
)

func TestSubstitute(t *testing.T) {
	vars := map[string]string{"name": "X", "site": "ornl", "empty": ""}

	tests := []struct {
		name string
		tmpl string
		want string
	}{
		{"no placeholders", "echo", "echo"},
		{"single", "{name}", "X"},
		{"embedded", "/data/{site}/{name}.h5", "/data/ornl/X.h5"},
		{"repeated", "{name}-{name}", "X-X"},
		{"empty value", "[{empty}]", "[]"},
		{"escaped braces", "{{name}} is {name}", "{name} is X"},
		{"escaped closing only", "a}}b", "a}b"},
		{"json-ish literal", `{{"k": "{site}"}}`, `{"k": "ornl"}`},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := Substitute(tt.tmpl, vars)
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestSubstitute_Errors(t *testing.T) {
	vars := map[string]string{"name": "X"}

	tests := []struct {
		name    string
		tmpl    string
		wantKey string
	}{
		{"unresolved", "{missing}", "missing"},
		{"unterminated", "{name", ""},
		{"nested open", "{na{me}", ""},
		{"empty key", "{}", ""},
		{"lone close", "name}", ""},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := Substitute(tt.tmpl, vars)
			require.Error(t, err)
			assert.True(t, model.IsTemplate(err), "got %v", err)

			var me *model.Error
			require.ErrorAs(t, err, &me)
			if tt.wantKey != "" {
				assert.Equal(t, tt.wantKey, me.Details["key"])
			}
		})
	}
}

func TestSubstituteValue_Deep(t *testing.T) {
	vars := map[string]string{"name": "X", "site": "ornl"}
	params := model.Object{
		"args": model.Array{model.String("{name}"), model.Int(3), model.String("--site={site}")},
		"meta": model.Object{
			"{name}": model.String("{site}"),
			"flag":   model.Bool(true),
		},
		"none": model.Null{},
	}

	got, err := SubstituteValue(params, vars)
	require.NoError(t, err)
	assert.Equal(t, model.Object{
		"args": model.Array{model.String("X"), model.Int(3), model.String("--site=ornl")},
		"meta": model.Object{
			"{name}": model.String("ornl"),
			"flag":   model.Bool(true),
		},
		"none": model.Null{},
	}, got, "keys are not substituted")

	_, err = SubstituteValue(model.Array{model.Object{"x": model.String("{nope}")}}, vars)
	assert.True(t, model.IsTemplate(err))
}
