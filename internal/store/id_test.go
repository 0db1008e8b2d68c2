package store

import (
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestID(t *testing.T) {
	cases := []struct {
		in   any
		want string
		ok   bool
	}{
		{"a1", "a1", true},
		{"", "", false},
		{float64(1), "1", true},
		{float64(2.5), "2.5", true},
		{int(3), "3", true},
		{int64(4), "4", true},
		{json.Number("5"), "5", true},
		{true, "", false},
		{nil, "", false},
		{[]any{"a1"}, "", false},
	}
	for _, tc := range cases {
		got, ok := ID(tc.in)
		require.Equalf(t, tc.ok, ok, "input %#v", tc.in)
		require.Equalf(t, tc.want, got, "input %#v", tc.in)
	}
}
