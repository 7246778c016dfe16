package trace

import (
	"errors"
	"regexp"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

func TestSample(t *testing.T) {
	ts := time.Date(2026, 3, 14, 9, 26, 53, 0, time.UTC)
	n := 3

	tests := []struct {
		name string
		in   any
		want string
	}{
		{"nil", nil, "null"},
		{"string", "hello", `"hello"`},
		{"bool", true, "true"},
		{"int", 42, "42"},
		{"float", 2.5, "2.5"},
		{"time", ts, "[time 2026-03-14T09:26:53Z]"},
		{"regexp", regexp.MustCompile(`\d+`), `[pattern \d+]`},
		{"error", errors.New("boom"), "[error boom]"},
		{"func", func() {}, "[fn]"},
		{"slice", []int{1, 2, 3}, "[array:3]"},
		{"array", [2]string{"a", "b"}, "[array:2]"},
		{"small map", map[string]int{"b": 1, "a": 2}, "{a, b}"},
		{"large map", map[string]int{"a": 1, "b": 2, "c": 3, "d": 4}, "{a, b, c, …}"},
		{"pointer deref", &n, "3"},
		{"nil pointer", (*int)(nil), "null"},
		{"struct", struct{ X int }{X: 1}, "[]"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			require.Equal(t, tt.want, Sample(tt.in))
		})
	}
}

func TestSampleNamedStruct(t *testing.T) {
	type Payload struct{ Body string }
	require.Equal(t, "[Payload]", Sample(Payload{Body: "x"}))
}

func TestSampleTruncatesLongStrings(t *testing.T) {
	got := Sample(strings.Repeat("a", 200))
	require.Equal(t, `"`+strings.Repeat("a", 120)+`…"`, got)
}
