package cfgparser

import "fmt"

// Dispatcher receives the contents of a parse tree in source order.
// Implementations route directives to their handlers and track block
// scope; the directive package provides the standard one.
type Dispatcher interface {
	ProcessDirective(name string, params []string) error
	StartBlock(name string, params []string) error
	EndBlock(name string) error
}

// Apply walks the session's parse tree depth-first in source order
// and feeds every directive and block to d. Parse directives were
// already executed while parsing and are not dispatched again, but
// the file subtrees they included are walked in place.
//
// A handler failure is recorded and the walk continues, so every
// failing line of a configuration surfaces in one pass. The returned
// error is the first of the whole session: an error latched while
// parsing is reported here too, even when every handler succeeds.
// Callers wanting apply-only failures should check Err before
// applying.
func (p *Parser) Apply(d Dispatcher) error {
	p.applyNode(p.root, d)
	return p.firstErr
}

func (p *Parser) applyNode(n *Node, d Dispatcher) {
	switch n.Kind {
	case KindRoot, KindFile, KindParseDirective:
		for _, c := range n.Children {
			p.applyNode(c, d)
		}

	case KindDirective:
		if err := d.ProcessDirective(n.Name, n.Params); err != nil {
			p.dispatchError(n, err)
		}

	case KindBlock:
		// a failed start is recorded but the body and the end call
		// still run, so sibling and nested errors surface in the
		// same pass
		if err := d.StartBlock(n.Name, n.Params); err != nil {
			p.dispatchError(n, err)
		}
		for _, c := range n.Children {
			p.applyNode(c, d)
		}
		if err := d.EndBlock(n.Name); err != nil {
			p.dispatchError(n, err)
		}
	}
}

// dispatchError records a handler failure against the node's source
// location. Errors the handler already classified keep their kind;
// anything else becomes a dispatch error.
func (p *Parser) dispatchError(n *Node, err error) {
	ce, ok := err.(*Error)
	if ok {
		if ce.File == "" {
			ce.File = n.File
			ce.Line = n.Line
		}
	} else {
		ce = &Error{
			Kind: ErrDispatch,
			File: n.File,
			Line: n.Line,
			Msg:  fmt.Sprintf("directive %q failed", n.Name),
			Err:  err,
		}
	}
	p.diags = append(p.diags, Diagnostic{Kind: ce.Kind, File: ce.File, Line: ce.Line, Message: ce.Msg})
	log.Errorf("session %s: %v", p.id, ce)
	if p.firstErr == nil {
		p.firstErr = ce
	}
}
