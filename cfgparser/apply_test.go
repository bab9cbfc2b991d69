package cfgparser

import (
	"errors"
	"fmt"
	"reflect"
	"testing"
)

// replayDispatcher records dispatch calls and fails on demand.
type replayDispatcher struct {
	calls   []string
	failOn  string
	failErr error
}

func (d *replayDispatcher) ProcessDirective(name string, params []string) error {
	d.calls = append(d.calls, fmt.Sprintf("directive %s %v", name, params))
	if name == d.failOn {
		return d.failErr
	}
	return nil
}

func (d *replayDispatcher) StartBlock(name string, params []string) error {
	d.calls = append(d.calls, fmt.Sprintf("start %s %v", name, params))
	if "start "+name == d.failOn {
		return d.failErr
	}
	return nil
}

func (d *replayDispatcher) EndBlock(name string) error {
	d.calls = append(d.calls, "end "+name)
	return nil
}

func TestApplyOrder(t *testing.T) {
	p := New()
	input := "Foo 1\n<Site a>\nBar 2\n<Location />\nBaz 3\n</Location>\n</Site>\nQuux\n"
	if err := p.ParseBuffer("test.conf", []byte(input)); err != nil {
		t.Fatalf("ParseBuffer returned %v", err)
	}

	d := &replayDispatcher{}
	if err := p.Apply(d); err != nil {
		t.Fatalf("Apply returned %v", err)
	}

	want := []string{
		"directive Foo [1]",
		"start Site [a]",
		"directive Bar [2]",
		"start Location [/]",
		"directive Baz [3]",
		"end Location",
		"end Site",
		"directive Quux []",
	}
	if !reflect.DeepEqual(d.calls, want) {
		t.Errorf("calls = %v, want %v", d.calls, want)
	}
}

// Parse directives run during the parse and must not be dispatched
// again, while the file subtree an include produced is still walked.
func TestApplySkipsParseDirectives(t *testing.T) {
	dir := t.TempDir()
	writeFile(t, dir, "sub.conf", "FromSub x\n")
	main := writeFile(t, dir, "main.conf", "Before 1\nInclude sub.conf\nAfter 2\n")

	p := New()
	if err := p.ParseFile(main); err != nil {
		t.Fatalf("ParseFile returned %v", err)
	}

	d := &replayDispatcher{}
	if err := p.Apply(d); err != nil {
		t.Fatalf("Apply returned %v", err)
	}

	want := []string{
		"directive Before [1]",
		"directive FromSub [x]",
		"directive After [2]",
	}
	if !reflect.DeepEqual(d.calls, want) {
		t.Errorf("calls = %v, want %v", d.calls, want)
	}
}

func TestApplyContinuesAfterHandlerError(t *testing.T) {
	p := New()
	if err := p.ParseBuffer("test.conf", []byte("Bad 1\nGood 2\n")); err != nil {
		t.Fatalf("ParseBuffer returned %v", err)
	}

	d := &replayDispatcher{failOn: "Bad", failErr: errors.New("handler refused")}
	err := p.Apply(d)
	if got, want := errKind(t, err), ErrDispatch; got != want {
		t.Errorf("error kind = %v, want %v", got, want)
	}
	if !errors.Is(err, d.failErr) {
		t.Errorf("error %v does not wrap the handler error", err)
	}

	want := []string{"directive Bad [1]", "directive Good [2]"}
	if !reflect.DeepEqual(d.calls, want) {
		t.Errorf("calls = %v, want %v", d.calls, want)
	}
}

func TestApplyKeepsClassifiedErrorKind(t *testing.T) {
	p := New()
	if err := p.ParseBuffer("test.conf", []byte("Mystery 1\n")); err != nil {
		t.Fatalf("ParseBuffer returned %v", err)
	}

	d := &replayDispatcher{
		failOn:  "Mystery",
		failErr: &Error{Kind: ErrUnknownDirective, Msg: `unknown directive "Mystery"`},
	}
	err := p.Apply(d)
	if got, want := errKind(t, err), ErrUnknownDirective; got != want {
		t.Errorf("error kind = %v, want %v", got, want)
	}
	ce := err.(*Error)
	if got, want := ce.File, "test.conf"; got != want {
		t.Errorf("error file = %q, want %q", got, want)
	}
	if got, want := ce.Line, 1; got != want {
		t.Errorf("error line = %d, want %d", got, want)
	}
}

// A failed block start is non-fatal: the body is still walked and
// the end call still happens, so every problem surfaces in one pass.
func TestApplyContinuesAfterStartBlockFailure(t *testing.T) {
	p := New()
	input := "<Site a>\nInner 1\n</Site>\nOutside 2\n"
	if err := p.ParseBuffer("test.conf", []byte(input)); err != nil {
		t.Fatalf("ParseBuffer returned %v", err)
	}

	d := &replayDispatcher{failOn: "start Site", failErr: errors.New("no such site")}
	if err := p.Apply(d); err == nil {
		t.Fatal("Apply returned nil, want error")
	}

	want := []string{
		"start Site [a]",
		"directive Inner [1]",
		"end Site",
		"directive Outside [2]",
	}
	if !reflect.DeepEqual(d.calls, want) {
		t.Errorf("calls = %v, want %v", d.calls, want)
	}
}
