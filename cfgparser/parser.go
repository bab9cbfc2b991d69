package cfgparser

import (
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"

	"github.com/google/uuid"
	"github.com/tliron/commonlog"
)

// chunkSize is the read-buffer size for streaming configuration
// files through the scanner.
const chunkSize = 8192

var log = commonlog.GetLogger("bastion.cfgparser")

// Parser is a single configuration parse session. It owns the parse
// tree rooted at a synthetic root node and accumulates diagnostics
// across the whole session: recoverable errors are collected and the
// parse continues, so one bad line does not hide every later one.
//
// A Parser is not safe for concurrent use. Create one per parse.
type Parser struct {
	id   uuid.UUID
	root *Node
	curr *Node // cursor: the node new children attach to
	cwd  string
	scan *scanner

	depth    int // combined block and include nesting
	diags    []Diagnostic
	firstErr error

	noIncludes bool
}

// Option configures a Parser.
type Option func(*Parser)

// WithoutIncludes disables include execution. Include and
// IncludeIfExists lines still become ParseDirective nodes but no
// files are opened. Buffer-based surfaces use this to analyze a
// single document in isolation.
func WithoutIncludes() Option {
	return func(p *Parser) {
		p.noIncludes = true
	}
}

// New creates a parse session with an empty tree.
func New(opts ...Option) *Parser {
	p := &Parser{
		id:   uuid.New(),
		root: newNode(KindRoot, "[root]", "", 0),
	}
	p.curr = p.root
	for _, opt := range opts {
		opt(p)
	}
	return p
}

// Root returns the session's parse tree.
func (p *Parser) Root() *Node {
	return p.root
}

// Diagnostics returns every error collected so far, in report order.
func (p *Parser) Diagnostics() []Diagnostic {
	return p.diags
}

// Err returns the first error of the session, or nil.
func (p *Parser) Err() error {
	return p.firstErr
}

// ParseFile parses the configuration file at path, executing include
// directives as they are committed. The tree gains a file node under
// the root even when errors occur; the returned error is the first
// one reported during the session.
func (p *Parser) ParseFile(path string) error {
	log.Debugf("session %s: parsing %q", p.id, path)
	if err := p.parseFileAt(path, p.root); err != nil {
		p.fail(err)
	}
	return p.firstErr
}

// ParseBuffer parses in-memory configuration text under the given
// name. The name is used for error attribution and as the base for
// resolving relative include targets.
func (p *Parser) ParseBuffer(name string, data []byte) error {
	fileNode := newNode(KindFile, "[file]", name, 1)
	p.root.AddChild(fileNode)

	prevCwd, prevCurr, prevScan := p.cwd, p.curr, p.scan
	p.cwd = filepath.Dir(name)
	p.curr = fileNode
	p.scan = newScanner(p)

	err := p.feedAll(data)
	p.closeDangling(fileNode)

	p.cwd, p.curr, p.scan = prevCwd, prevCurr, prevScan
	if err != nil {
		p.fail(err)
	}
	return p.firstErr
}

// parseFileAt opens and streams one file, attaching its file node to
// attach. It is reentrant: include execution calls back into it with
// the current cursor saved on the Go stack, each nested file getting
// a fresh scanner while sharing the session's nesting budget.
func (p *Parser) parseFileAt(path string, attach *Node) error {
	if p.depth >= maxNestDepth {
		return &Error{
			Kind: ErrResource,
			File: path,
			Msg:  fmt.Sprintf("nesting exceeds %d levels", maxNestDepth),
		}
	}

	f, err := os.Open(path)
	if err != nil {
		return &Error{Kind: ErrIO, File: path, Msg: "cannot open configuration file", Err: err}
	}
	defer f.Close()

	fileNode := newNode(KindFile, "[file]", path, 1)
	attach.AddChild(fileNode)

	prevCwd, prevCurr, prevScan := p.cwd, p.curr, p.scan
	p.cwd = filepath.Dir(path)
	p.curr = fileNode
	p.scan = newScanner(p)
	p.depth++

	ferr := p.stream(f)
	p.closeDangling(fileNode)

	p.depth--
	p.cwd, p.curr, p.scan = prevCwd, prevCurr, prevScan

	if ferr != nil {
		if ce, ok := ferr.(*Error); ok && ce.File == "" {
			ce.File = path
		}
		return ferr
	}
	return nil
}

func (p *Parser) stream(r io.Reader) error {
	buf := make([]byte, chunkSize)
	for {
		n, err := r.Read(buf)
		if n > 0 {
			if ferr := p.scan.feed(buf[:n], false); ferr != nil {
				return ferr
			}
		}
		if err == io.EOF {
			return p.scan.feed(nil, true)
		}
		if err != nil {
			return &Error{Kind: ErrIO, Line: p.scan.line, Msg: "read failed", Err: err}
		}
	}
}

func (p *Parser) feedAll(data []byte) error {
	for off := 0; off < len(data); off += chunkSize {
		end := off + chunkSize
		if end > len(data) {
			end = len(data)
		}
		if err := p.scan.feed(data[off:end], false); err != nil {
			return err
		}
	}
	return p.scan.feed(nil, true)
}

// closeDangling reports every block still open when a file's input
// ends and unwinds the cursor back to the file node.
func (p *Parser) closeDangling(fileNode *Node) {
	for p.curr != nil && p.curr != fileNode {
		if p.curr.Kind == KindBlock {
			p.report(ErrStructural, p.scan.line,
				"block <%s> opened at %s:%d is never closed",
				p.curr.Name, p.curr.File, p.curr.Line)
			p.depth--
		}
		p.curr = p.curr.Parent
	}
	p.curr = fileNode
}

// commitDirective attaches a directive node at the cursor. Names in
// the parse-time table (Include, IncludeIfExists, LogLevel) are
// executed immediately and their nodes reclassified so a later apply
// pass does not dispatch them again.
func (p *Parser) commitDirective(name string, params []string, line int) error {
	if name == "" {
		p.report(ErrStructural, line, "directive name is empty")
		return nil
	}
	node := newNode(KindDirective, name, p.curr.File, line)
	node.Params = params
	p.curr.AddChild(node)

	if exec, ok := parseDirectives[strings.ToLower(name)]; ok {
		node.Kind = KindParseDirective
		return exec(p, node)
	}
	return nil
}

func (p *Parser) openBlock(name string, params []string, line int) error {
	if name == "" {
		p.report(ErrStructural, line, "block name is empty")
		return nil
	}
	if p.depth >= maxNestDepth {
		return &Error{
			Kind: ErrResource,
			File: p.curr.File,
			Line: line,
			Msg:  fmt.Sprintf("nesting exceeds %d levels", maxNestDepth),
		}
	}
	node := newNode(KindBlock, name, p.curr.File, line)
	node.Params = params
	p.curr.AddChild(node)
	p.curr = node
	p.depth++
	return nil
}

// closeBlock pops the cursor for a matching close tag. A mismatched
// name is reported and the open block is discarded from the tree so
// no later pass sees a half-formed block.
func (p *Parser) closeBlock(name string, line int) {
	if p.curr.Kind != KindBlock {
		p.report(ErrStructural, line, "closing tag </%s> without a matching open block", name)
		return
	}
	open := p.curr
	p.curr = open.Parent
	p.depth--
	if open.Name != name {
		p.report(ErrStructural, line,
			"closing tag </%s> does not match block <%s> opened at %s:%d",
			name, open.Name, open.File, open.Line)
		p.dropChild(p.curr, open)
	}
}

func (p *Parser) dropChild(parent, child *Node) {
	for i, c := range parent.Children {
		if c == child {
			parent.Children = append(parent.Children[:i], parent.Children[i+1:]...)
			child.Parent = nil
			return
		}
	}
}

// report collects a recoverable error, logs it and latches it as the
// session error if it is the first.
func (p *Parser) report(kind ErrorKind, line int, format string, args ...any) {
	msg := fmt.Sprintf(format, args...)
	d := Diagnostic{Kind: kind, File: p.curr.File, Line: line, Message: msg}
	p.diags = append(p.diags, d)
	log.Errorf("session %s: %s", p.id, d)
	if p.firstErr == nil {
		p.firstErr = &Error{Kind: kind, File: d.File, Line: line, Msg: msg}
	}
}

// fail records a fatal error that already aborted its feed.
func (p *Parser) fail(err error) {
	log.Errorf("session %s: %v", p.id, err)
	if ce, ok := err.(*Error); ok {
		p.diags = append(p.diags, Diagnostic{
			Kind: ce.Kind, File: ce.File, Line: ce.Line, Message: ce.Error(),
		})
	}
	if p.firstErr == nil {
		p.firstErr = err
	}
}
