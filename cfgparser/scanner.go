package cfgparser

import "fmt"

const (
	// maxTokenSize bounds a single token. Exceeding it is a fatal
	// resource error, never a silent truncation.
	maxTokenSize = 8192

	// maxNestDepth bounds combined block and include nesting.
	maxNestDepth = 1024
)

// builder receives the scanner's commit actions. The parser session
// implements it to grow the parse tree; tests substitute recorders.
type builder interface {
	// commitDirective and openBlock return non-nil only for fatal
	// errors that must abort the current feed call.
	commitDirective(name string, params []string, line int) error
	openBlock(name string, params []string, line int) error
	closeBlock(name string, line int)
	report(kind ErrorKind, line int, format string, args ...any)
}

type scanState int

const (
	stateMain scanState = iota
	stateComment
	stateDirName
	stateParams
	stateToken
	stateAngle
	stateBlockName
	stateBlockParams
	stateEndBlockName
	stateEndBlockGap
	stateSkipLine
)

type tokenCtx int

const (
	ctxDirective tokenCtx = iota
	ctxBlock
)

// scanner is the incremental tokenizer for the configuration
// language. It is fed byte buffers of any size and keeps every piece
// of in-progress state (automaton state, partial token bytes, quote
// and escape flags, pending directive name and parameters) in its own
// fields, so a token split across feed calls resumes correctly.
//
// All committed strings are copied out of the transient input buffer;
// the scanner never retains a reference into data passed to feed.
type scanner struct {
	b     builder
	state scanState
	line  int

	buf     []byte // in-progress token, survives chunk boundaries
	quoted  bool   // token started with a double quote
	closed  bool   // quoted token saw its closing quote
	escaped bool   // next byte is escaped

	ctx    tokenCtx // what the pending name/params belong to
	name   string   // pending directive or block name
	params []string // pending parameter list
}

func newScanner(b builder) *scanner {
	return &scanner{b: b, state: stateMain, line: 1}
}

// feed consumes data against the persistent scanner state. With
// final set it also flushes end-of-input actions: a pending directive
// commits as if terminated by end-of-line, while unterminated quotes
// and block tags are reported. Recoverable errors are reported
// through the builder and scanning resumes at the next line; only
// resource exhaustion aborts the call.
func (s *scanner) feed(data []byte, final bool) error {
	for i := 0; i < len(data); i++ {
		if err := s.step(data[i]); err != nil {
			return err
		}
	}
	if final {
		return s.finish()
	}
	return nil
}

func (s *scanner) step(c byte) error {
	switch s.state {
	case stateMain:
		switch c {
		case ' ', '\t', '\r':
		case '\n':
			s.line++
		case '#':
			s.state = stateComment
		case '<':
			s.ctx = ctxBlock
			s.state = stateAngle
		case '>':
			s.failAt(c, "unexpected '>' outside a block tag")
		case '"':
			s.failAt(c, "directive names cannot be quoted")
		case '\\':
			s.ctx = ctxDirective
			s.state = stateDirName
			s.escaped = true
			return s.appendToken(c)
		default:
			s.ctx = ctxDirective
			s.state = stateDirName
			return s.appendToken(c)
		}

	case stateComment, stateSkipLine:
		if c == '\n' {
			s.line++
			s.state = stateMain
		}

	case stateDirName:
		return s.stepName(c)

	case stateParams, stateBlockParams:
		return s.stepParams(c)

	case stateToken:
		return s.stepToken(c)

	case stateAngle:
		switch c {
		case '/':
			s.state = stateEndBlockName
		case ' ', '\t', '\r', '\n', '<', '>', '"', '#':
			s.failAt(c, "malformed block tag")
		default:
			s.state = stateBlockName
			return s.appendToken(c)
		}

	case stateBlockName:
		return s.stepBlockName(c)

	case stateEndBlockName:
		return s.stepEndBlockName(c)

	case stateEndBlockGap:
		switch c {
		case ' ', '\t', '\r':
		case '>':
			return s.closePendingBlock()
		default:
			s.failAt(c, "unexpected %q after closing block name", string(c))
		}
	}
	return nil
}

// stepName accumulates a directive name at the start of a line.
func (s *scanner) stepName(c byte) error {
	if s.escaped {
		return s.stepEscape(c)
	}
	switch c {
	case '\\':
		s.escaped = true
		return s.appendToken(c)
	case ' ', '\t', '\r':
		s.name = resolveToken(s.buf)
		s.resetToken()
		s.params = nil
		s.state = stateParams
	case '\n':
		s.name = resolveToken(s.buf)
		s.resetToken()
		s.params = nil
		return s.endDirectiveLine()
	case '<', '>', '"', '#':
		s.failAt(c, "unexpected %q in directive name", string(c))
	default:
		return s.appendToken(c)
	}
	return nil
}

// stepParams runs between parameters of a directive line or a block
// tag, where whitespace separates tokens.
func (s *scanner) stepParams(c byte) error {
	block := s.state == stateBlockParams
	switch c {
	case ' ', '\t', '\r':
	case '\n':
		if block {
			s.failAt(c, "newline inside <%s> block tag", s.name)
			return nil
		}
		return s.endDirectiveLine()
	case '>':
		if block {
			return s.openPendingBlock()
		}
		s.failAt(c, "unexpected '>' outside a block tag")
	case '<':
		s.failAt(c, "unexpected '<' in parameter list")
	case '#':
		s.failAt(c, "unexpected '#' in parameter list")
	case '"':
		s.quoted = true
		s.state = stateToken
		return s.appendToken(c)
	case '\\':
		s.escaped = true
		s.state = stateToken
		return s.appendToken(c)
	default:
		s.state = stateToken
		return s.appendToken(c)
	}
	return nil
}

// stepToken accumulates a single bare or quoted parameter.
func (s *scanner) stepToken(c byte) error {
	if s.escaped {
		return s.stepEscape(c)
	}
	if s.quoted && !s.closed {
		switch c {
		case '\\':
			s.escaped = true
		case '"':
			s.closed = true
		case '\n':
			s.line++
		}
		return s.appendToken(c)
	}
	switch c {
	case ' ', '\t', '\r':
		s.commitParam()
		if s.ctx == ctxBlock {
			s.state = stateBlockParams
		} else {
			s.state = stateParams
		}
	case '\n':
		if s.ctx == ctxBlock {
			s.failAt(c, "newline inside <%s> block tag", s.name)
			return nil
		}
		s.commitParam()
		return s.endDirectiveLine()
	case '>':
		if s.ctx == ctxBlock {
			s.commitParam()
			return s.openPendingBlock()
		}
		s.failAt(c, "unexpected '>' outside a block tag")
	case '\\':
		if s.closed {
			s.failAt(c, "unexpected character after closing quote")
			return nil
		}
		s.escaped = true
		return s.appendToken(c)
	case '"', '<', '#':
		s.failAt(c, "unexpected %q in parameter", string(c))
	default:
		if s.closed {
			s.failAt(c, "unexpected character after closing quote")
			return nil
		}
		return s.appendToken(c)
	}
	return nil
}

// stepBlockName accumulates a block name directly after '<'.
func (s *scanner) stepBlockName(c byte) error {
	if s.escaped {
		return s.stepEscape(c)
	}
	switch c {
	case '\\':
		s.escaped = true
		return s.appendToken(c)
	case ' ', '\t', '\r':
		s.name = resolveToken(s.buf)
		s.resetToken()
		s.params = nil
		s.state = stateBlockParams
	case '>':
		s.name = resolveToken(s.buf)
		s.resetToken()
		s.params = nil
		return s.openPendingBlock()
	case '\n':
		s.failAt(c, "newline inside block tag")
	case '<', '"', '#':
		s.failAt(c, "unexpected %q in block name", string(c))
	default:
		return s.appendToken(c)
	}
	return nil
}

// stepEndBlockName accumulates the name in a '</Name>' closing tag.
func (s *scanner) stepEndBlockName(c byte) error {
	switch c {
	case ' ', '\t', '\r':
		if len(s.buf) > 0 {
			s.state = stateEndBlockGap
		}
	case '>':
		return s.closePendingBlock()
	case '\n':
		s.failAt(c, "newline inside closing block tag")
	case '<', '"', '#', '\\':
		s.failAt(c, "unexpected %q in closing block tag", string(c))
	default:
		return s.appendToken(c)
	}
	return nil
}

// stepEscape consumes the byte following a backslash inside a token.
// A backslash immediately before end-of-line is a line continuation:
// both characters are dropped, the line counter still advances and
// the token continues on the next line.
func (s *scanner) stepEscape(c byte) error {
	switch c {
	case '\r':
		// keep the escape pending so \<CR><LF> is a continuation too
		return nil
	case '\n':
		s.buf = s.buf[:len(s.buf)-1] // drop the backslash
		s.escaped = false
		s.line++
		if len(s.buf) == 0 && !s.quoted {
			// nothing accumulated yet: fall back to the separator state
			switch s.state {
			case stateDirName:
				s.state = stateMain
			case stateToken:
				if s.ctx == ctxBlock {
					s.state = stateBlockParams
				} else {
					s.state = stateParams
				}
			}
		}
		return nil
	default:
		s.escaped = false
		return s.appendToken(c)
	}
}

func (s *scanner) finish() error {
	switch s.state {
	case stateMain, stateComment, stateSkipLine:
		return nil

	case stateDirName:
		// end of input acts as end-of-line for a pending directive
		s.name = resolveToken(s.buf)
		s.resetToken()
		s.params = nil
		return s.commitPending()

	case stateParams:
		return s.commitPending()

	case stateToken:
		if s.ctx == ctxBlock {
			s.b.report(ErrStructural, s.line, "unterminated <%s> block tag at end of input", s.name)
			s.resetLine()
			s.state = stateMain
			return nil
		}
		if s.quoted && !s.closed {
			s.b.report(ErrSyntax, s.line, "unterminated quoted parameter at end of input")
			s.resetLine()
			s.state = stateMain
			return nil
		}
		s.commitParam()
		return s.commitPending()

	case stateAngle, stateBlockName, stateBlockParams:
		s.b.report(ErrStructural, s.line, "unterminated block tag at end of input")
		s.resetLine()
		s.state = stateMain

	case stateEndBlockName, stateEndBlockGap:
		s.b.report(ErrStructural, s.line, "unterminated closing block tag at end of input")
		s.resetLine()
		s.state = stateMain
	}
	return nil
}

func (s *scanner) commitPending() error {
	err := s.b.commitDirective(s.name, s.params, s.line)
	s.name = ""
	s.params = nil
	s.state = stateMain
	return err
}

func (s *scanner) endDirectiveLine() error {
	err := s.b.commitDirective(s.name, s.params, s.line)
	s.name = ""
	s.params = nil
	s.line++
	s.state = stateMain
	return err
}

func (s *scanner) openPendingBlock() error {
	err := s.b.openBlock(s.name, s.params, s.line)
	s.name = ""
	s.params = nil
	s.ctx = ctxDirective
	s.state = stateMain
	return err
}

func (s *scanner) closePendingBlock() error {
	name := resolveToken(s.buf)
	s.resetToken()
	s.state = stateMain
	if name == "" {
		s.b.report(ErrStructural, s.line, "closing block tag has no name")
		return nil
	}
	s.b.closeBlock(name, s.line)
	return nil
}

func (s *scanner) commitParam() {
	s.params = append(s.params, resolveToken(s.buf))
	s.resetToken()
}

func (s *scanner) appendToken(c byte) error {
	if len(s.buf) >= maxTokenSize {
		return &Error{
			Kind: ErrResource,
			Line: s.line,
			Msg:  fmt.Sprintf("token exceeds %d bytes", maxTokenSize),
		}
	}
	s.buf = append(s.buf, c)
	return nil
}

func (s *scanner) resetToken() {
	s.buf = s.buf[:0]
	s.quoted = false
	s.closed = false
	s.escaped = false
}

func (s *scanner) resetLine() {
	s.resetToken()
	s.name = ""
	s.params = nil
	s.ctx = ctxDirective
}

// failAt reports a syntax error and resynchronizes at the next
// end-of-line. If the offending byte is itself the end-of-line the
// scanner returns to the main state immediately.
func (s *scanner) failAt(c byte, format string, args ...any) {
	s.b.report(ErrSyntax, s.line, format, args...)
	s.resetLine()
	if c == '\n' {
		s.line++
		s.state = stateMain
	} else {
		s.state = stateSkipLine
	}
}

// resolveToken copies the token buffer into a session-owned string,
// stripping one pair of wrapping double quotes and resolving \X
// escape sequences. Escape resolution happens here, at commit time,
// never during scanning.
func resolveToken(buf []byte) string {
	if len(buf) >= 2 && buf[0] == '"' && buf[len(buf)-1] == '"' {
		buf = buf[1 : len(buf)-1]
	}
	out := make([]byte, 0, len(buf))
	for i := 0; i < len(buf); i++ {
		if buf[i] == '\\' && i+1 < len(buf) {
			i++
		}
		out = append(out, buf[i])
	}
	return string(out)
}
