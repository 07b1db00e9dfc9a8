package structured

import (
	"errors"
	"reflect"
	"testing"
)

func collect(t *testing.T, delimiter string, deltas []string) []string {
	t.Helper()
	var out []string
	f := NewStreamFilter(delimiter, func(s string) error {
		out = append(out, s)
		return nil
	})
	for _, d := range deltas {
		if err := f.Write(d); err != nil {
			t.Fatalf("Write(%q) error = %v", d, err)
		}
	}
	if err := f.Flush(); err != nil {
		t.Fatalf("Flush() error = %v", err)
	}
	return out
}

func TestStreamFilter(t *testing.T) {
	tests := []struct {
		name   string
		deltas []string
		want   []string
	}{
		{
			name:   "reasoning hidden",
			deltas: []string{"<think>", "hmm", "</think>", "\n\nHello", " world"},
			want:   []string{"Hello", " world"},
		},
		{
			name:   "delimiter split across deltas",
			deltas: []string{"plan</th", "ink>Answer", "!"},
			want:   []string{"Answer", "!"},
		},
		{
			name:   "remainder in same delta",
			deltas: []string{"x</think> A", "B"},
			want:   []string{"A", "B"},
		},
		{
			name:   "no delimiter flushed at end",
			deltas: []string{"Hello", " there", "\n"},
			want:   []string{"Hello there"},
		},
		{
			name:   "empty stream",
			deltas: nil,
			want:   nil,
		},
		{
			name:   "only reasoning",
			deltas: []string{"thinking", "</think>", "  "},
			want:   nil,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := collect(t, DefaultReasoningDelimiter, tt.deltas)
			if !reflect.DeepEqual(got, tt.want) {
				t.Errorf("got %q, want %q", got, tt.want)
			}
		})
	}
}

func TestStreamFilter_NoDelimiterConfigured(t *testing.T) {
	got := collect(t, "", []string{"a", "", "b"})
	want := []string{"a", "b"}
	if !reflect.DeepEqual(got, want) {
		t.Errorf("got %q, want %q", got, want)
	}
}

func TestStreamFilter_EmitError(t *testing.T) {
	boom := errors.New("client gone")
	f := NewStreamFilter("", func(string) error { return boom })
	if err := f.Write("x"); !errors.Is(err, boom) {
		t.Errorf("Write() error = %v, want %v", err, boom)
	}
}
