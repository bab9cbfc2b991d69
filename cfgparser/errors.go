package cfgparser

import "fmt"

// ErrorKind classifies configuration errors.
type ErrorKind int

const (
	// ErrIO is an open/read/stat failure on a configuration file.
	ErrIO ErrorKind = iota
	// ErrSyntax means the scanner rejected input at a location.
	ErrSyntax
	// ErrStructural covers mismatched block close names, dangling
	// blocks at end of input, empty directive names and parameter
	// count mismatches.
	ErrStructural
	// ErrResource is a token-buffer or nesting-stack overflow.
	ErrResource
	// ErrIncludeCycle means an ancestor include site matched the
	// current one.
	ErrIncludeCycle
	// ErrUnknownDirective is a dispatcher lookup miss.
	ErrUnknownDirective
	// ErrDispatch means a directive handler itself returned failure.
	ErrDispatch
)

var errorKindNames = map[ErrorKind]string{
	ErrIO:               "io error",
	ErrSyntax:           "syntax error",
	ErrStructural:       "structural error",
	ErrResource:         "resource error",
	ErrIncludeCycle:     "include cycle",
	ErrUnknownDirective: "unknown directive",
	ErrDispatch:         "dispatch error",
}

func (k ErrorKind) String() string {
	if name, ok := errorKindNames[k]; ok {
		return name
	}
	return "unknown error"
}

// Error is a configuration error with source attribution. File and
// Line name the position of the parser cursor at the time the error
// was reported.
type Error struct {
	Kind ErrorKind
	File string
	Line int
	Msg  string
	Err  error
}

func (e *Error) Error() string {
	loc := e.File
	if e.Line > 0 {
		loc = fmt.Sprintf("%s:%d", e.File, e.Line)
	}
	switch {
	case loc != "" && e.Err != nil:
		return fmt.Sprintf("%s: %s: %s: %v", loc, e.Kind, e.Msg, e.Err)
	case loc != "":
		return fmt.Sprintf("%s: %s: %s", loc, e.Kind, e.Msg)
	case e.Err != nil:
		return fmt.Sprintf("%s: %s: %v", e.Kind, e.Msg, e.Err)
	default:
		return fmt.Sprintf("%s: %s", e.Kind, e.Msg)
	}
}

func (e *Error) Unwrap() error {
	return e.Err
}

// Diagnostic is a collected, non-fatal report of a configuration
// error, kept for surfaces (such as the language server) that need
// the full list rather than only the first failure.
type Diagnostic struct {
	Kind    ErrorKind
	File    string
	Line    int
	Message string
}

func (d Diagnostic) String() string {
	return fmt.Sprintf("%s:%d: %s: %s", d.File, d.Line, d.Kind, d.Message)
}
