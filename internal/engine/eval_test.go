package engine

import (
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/AaronLay10/SentientPlay/internal/value"
)

func TestEvalCondition(t *testing.T) {
	vars := map[string]value.Value{
		"alive": value.Bool(true),
		"score": value.Number(3),
		"name":  value.String("bob"),
		"zero":  value.Number(0),
	}
	lookup := func(name string) (value.Value, bool) {
		v, ok := vars[name]
		return v, ok
	}

	cases := []struct {
		expr string
		want bool
	}{
		{"", true},
		{"alive", true},
		{"!alive", false},
		{"zero", false},
		{"missing", false},
		{"true", true},
		{"false", false},
		{"score == 3", true},
		{"score == '3'", true},
		{"score != 3", false},
		{"score > 2 && alive", true},
		{"score >= 4 || name == 'bob'", true},
		{`name == "bob"`, true},
		{"name == 'a && b'", false},
		{"score < 10", true},
		{"score <= 2", false},
		{"name > 1", false},
		{"'x' == 'x'", true},
		{"missing == null", true},
	}
	for _, tc := range cases {
		assert.Equal(t, tc.want, EvalCondition(tc.expr, lookup), tc.expr)
	}
}
