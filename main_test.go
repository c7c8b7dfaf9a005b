package main

import (
	"bytes"
	"errors"
	"strings"
	"testing"

	"github.com/AbNAt-Cell/NoteTaker/segment"
)

func TestForEachChunk(t *testing.T) {
	var sizes []int
	err := forEachChunk(strings.NewReader("abcdefgh"), 3, func(b []byte) error {
		sizes = append(sizes, len(b))
		return nil
	})
	if err != nil {
		t.Fatal(err)
	}
	expected := []int{3, 3, 2}
	if len(sizes) != len(expected) {
		t.Fatalf("sizes = %v, want %v", sizes, expected)
	}
	for i := range expected {
		if sizes[i] != expected[i] {
			t.Errorf("sizes = %v, want %v", sizes, expected)
		}
	}
}

func TestForEachChunkStopsOnError(t *testing.T) {
	stop := errors.New("stop")
	calls := 0
	err := forEachChunk(strings.NewReader("abcdef"), 2, func([]byte) error {
		calls++
		return stop
	})
	if !errors.Is(err, stop) || calls != 1 {
		t.Errorf("err = %v, calls = %d", err, calls)
	}
}

func TestPrintSummary(t *testing.T) {
	var buf bytes.Buffer
	printSummary(&buf, []segment.Segment{
		{Start: "0.000", End: "1.000", Speaker: "Speaker 0", Text: "first line"},
	})
	if !strings.Contains(buf.String(), "first line") || !strings.Contains(buf.String(), "Speaker 0") {
		t.Errorf("summary = %q", buf.String())
	}

	buf.Reset()
	printSummary(&buf, nil)
	if buf.String() != "No segments.\n" {
		t.Errorf("empty summary = %q", buf.String())
	}
}
