package cfgparser

import (
	"reflect"
	"strings"
	"testing"
)

type event struct {
	action string // "directive", "open", "close", "error"
	name   string
	params []string
	line   int
	kind   ErrorKind
}

// recorder captures scanner commits without building a tree.
type recorder struct {
	events []event
}

func (r *recorder) commitDirective(name string, params []string, line int) error {
	r.events = append(r.events, event{action: "directive", name: name, params: params, line: line})
	return nil
}

func (r *recorder) openBlock(name string, params []string, line int) error {
	r.events = append(r.events, event{action: "open", name: name, params: params, line: line})
	return nil
}

func (r *recorder) closeBlock(name string, line int) {
	r.events = append(r.events, event{action: "close", name: name, line: line})
}

func (r *recorder) report(kind ErrorKind, line int, format string, args ...any) {
	r.events = append(r.events, event{action: "error", kind: kind, line: line})
}

func scanAll(t *testing.T, input string) []event {
	t.Helper()
	r := &recorder{}
	s := newScanner(r)
	if err := s.feed([]byte(input), true); err != nil {
		t.Fatalf("feed(%q) returned %v", input, err)
	}
	return r.events
}

func TestScanDirectives(t *testing.T) {
	tests := []struct {
		name  string
		input string
		want  []event
	}{
		{
			name:  "bare parameters",
			input: "Foo bar baz\n",
			want: []event{
				{action: "directive", name: "Foo", params: []string{"bar", "baz"}, line: 1},
			},
		},
		{
			name:  "no parameters",
			input: "Foo\n",
			want: []event{
				{action: "directive", name: "Foo", line: 1},
			},
		},
		{
			name:  "quoted and escaped parameters",
			input: "Foo \"hello world\" bar\\ baz\n",
			want: []event{
				{action: "directive", name: "Foo", params: []string{"hello world", "bar baz"}, line: 1},
			},
		},
		{
			name:  "escaped quote inside quotes",
			input: "Foo \"a \\\"b\\\" c\"\n",
			want: []event{
				{action: "directive", name: "Foo", params: []string{`a "b" c`}, line: 1},
			},
		},
		{
			name:  "empty quoted parameter",
			input: "Foo \"\"\n",
			want: []event{
				{action: "directive", name: "Foo", params: []string{""}, line: 1},
			},
		},
		{
			name:  "comment line skipped",
			input: "# a comment\nFoo\n",
			want: []event{
				{action: "directive", name: "Foo", line: 2},
			},
		},
		{
			name:  "continuation between parameters",
			input: "Foo bar \\\n baz\n",
			want: []event{
				{action: "directive", name: "Foo", params: []string{"bar", "baz"}, line: 2},
			},
		},
		{
			name:  "continuation inside a parameter",
			input: "Foo ba\\\nr\n",
			want: []event{
				{action: "directive", name: "Foo", params: []string{"bar"}, line: 2},
			},
		},
		{
			name:  "crlf line endings",
			input: "Foo bar\r\nBaz\r\n",
			want: []event{
				{action: "directive", name: "Foo", params: []string{"bar"}, line: 1},
				{action: "directive", name: "Baz", line: 2},
			},
		},
		{
			name:  "missing final newline still commits",
			input: "Foo bar",
			want: []event{
				{action: "directive", name: "Foo", params: []string{"bar"}, line: 1},
			},
		},
		{
			name:  "raw newline inside quotes",
			input: "Foo \"a\nb\"\n",
			want: []event{
				{action: "directive", name: "Foo", params: []string{"a\nb"}, line: 2},
			},
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := scanAll(t, tt.input)
			if !reflect.DeepEqual(got, tt.want) {
				t.Errorf("events = %+v, want %+v", got, tt.want)
			}
		})
	}
}

func TestScanBlocks(t *testing.T) {
	tests := []struct {
		name  string
		input string
		want  []event
	}{
		{
			name:  "block with parameter",
			input: "<Site a>\nFoo\n</Site>\n",
			want: []event{
				{action: "open", name: "Site", params: []string{"a"}, line: 1},
				{action: "directive", name: "Foo", line: 2},
				{action: "close", name: "Site", line: 3},
			},
		},
		{
			name:  "block without parameters",
			input: "<Main>\n</Main>\n",
			want: []event{
				{action: "open", name: "Main", line: 1},
				{action: "close", name: "Main", line: 2},
			},
		},
		{
			name:  "quoted block parameter",
			input: "<Site \"main site\">\n</Site>\n",
			want: []event{
				{action: "open", name: "Site", params: []string{"main site"}, line: 1},
				{action: "close", name: "Site", line: 2},
			},
		},
		{
			name:  "space before closing angle",
			input: "<Site a >\n</Site >\n",
			want: []event{
				{action: "open", name: "Site", params: []string{"a"}, line: 1},
				{action: "close", name: "Site", line: 2},
			},
		},
		{
			name:  "nested blocks",
			input: "<Site a>\n<Location />\nFoo\n</Location>\n</Site>\n",
			want: []event{
				{action: "open", name: "Site", params: []string{"a"}, line: 1},
				{action: "open", name: "Location", params: []string{"/"}, line: 2},
				{action: "directive", name: "Foo", line: 3},
				{action: "close", name: "Location", line: 4},
				{action: "close", name: "Site", line: 5},
			},
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := scanAll(t, tt.input)
			if !reflect.DeepEqual(got, tt.want) {
				t.Errorf("events = %+v, want %+v", got, tt.want)
			}
		})
	}
}

// TestScanChunkSplits feeds the same input split at every possible
// boundary and expects identical events to a single-buffer feed.
func TestScanChunkSplits(t *testing.T) {
	input := "Foo \"hello world\" bar\\ baz\n<Site a>\nQuux 1 2\n</Site>\n"
	want := scanAll(t, input)

	for split := 0; split <= len(input); split++ {
		r := &recorder{}
		s := newScanner(r)
		if err := s.feed([]byte(input[:split]), false); err != nil {
			t.Fatalf("split %d: first feed returned %v", split, err)
		}
		if err := s.feed([]byte(input[split:]), true); err != nil {
			t.Fatalf("split %d: second feed returned %v", split, err)
		}
		if !reflect.DeepEqual(r.events, want) {
			t.Errorf("split %d: events = %+v, want %+v", split, r.events, want)
		}
	}
}

func TestScanErrorsAndRecovery(t *testing.T) {
	tests := []struct {
		name  string
		input string
		want  []event
	}{
		{
			name:  "unterminated quote at end of input",
			input: "Foo \"never closed",
			want: []event{
				{action: "error", kind: ErrSyntax, line: 1},
			},
		},
		{
			name:  "unterminated block tag at end of input",
			input: "<Site a",
			want: []event{
				{action: "error", kind: ErrStructural, line: 1},
			},
		},
		{
			name:  "newline inside block tag",
			input: "<Site a\nFoo\n",
			want: []event{
				{action: "error", kind: ErrSyntax, line: 1},
				{action: "directive", name: "Foo", line: 2},
			},
		},
		{
			name:  "stray closing angle resyncs to next line",
			input: "Foo bar> baz\nQuux\n",
			want: []event{
				{action: "error", kind: ErrSyntax, line: 1},
				{action: "directive", name: "Quux", line: 2},
			},
		},
		{
			name:  "quote in directive name",
			input: "\"Foo\" bar\nQuux\n",
			want: []event{
				{action: "error", kind: ErrSyntax, line: 1},
				{action: "directive", name: "Quux", line: 2},
			},
		},
		{
			name:  "text after closing quote",
			input: "Foo \"a\"b\nQuux\n",
			want: []event{
				{action: "error", kind: ErrSyntax, line: 1},
				{action: "directive", name: "Quux", line: 2},
			},
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := scanAll(t, tt.input)
			if !reflect.DeepEqual(got, tt.want) {
				t.Errorf("events = %+v, want %+v", got, tt.want)
			}
		})
	}
}

func TestScanTokenOverflow(t *testing.T) {
	r := &recorder{}
	s := newScanner(r)
	input := "Foo " + strings.Repeat("x", maxTokenSize+1) + "\n"

	err := s.feed([]byte(input), true)
	if err == nil {
		t.Fatal("feed with oversized token returned nil error")
	}
	ce, ok := err.(*Error)
	if !ok {
		t.Fatalf("feed returned %T, want *Error", err)
	}
	if got, want := ce.Kind, ErrResource; got != want {
		t.Errorf("error kind = %v, want %v", got, want)
	}
	if len(r.events) != 0 {
		t.Errorf("events = %+v, want none", r.events)
	}
}
