package cfgparser

import (
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"

	"github.com/tliron/commonlog"
)

// parseDirectives maps lowercased names to directives executed as
// soon as their line commits, during the parse itself. Their nodes
// are reclassified to KindParseDirective so an apply pass skips them.
var parseDirectives = map[string]func(*Parser, *Node) error{
	"include": func(p *Parser, n *Node) error {
		return p.include(n, true)
	},
	"includeifexists": func(p *Parser, n *Node) error {
		return p.include(n, false)
	},
	"loglevel": (*Parser).logLevel,
}

// include resolves the target relative to the directory of the file
// being parsed and recursively parses it, attaching the included
// file's subtree under the include node itself. With required unset
// a missing target is skipped silently.
func (p *Parser) include(node *Node, required bool) error {
	if len(node.Params) != 1 {
		p.report(ErrStructural, node.Line, "%s takes one parameter, not %d", node.Name, len(node.Params))
		return nil
	}
	if p.noIncludes {
		log.Debugf("session %s: include execution disabled, skipping %q", p.id, node.Params[0])
		return nil
	}

	target := node.Params[0]
	if !filepath.IsAbs(target) {
		target = filepath.Join(p.cwd, target)
	}
	target = filepath.Clean(target)

	// An include site is identified by its own position. Seeing the
	// same site again on the ancestor chain means the chain loops.
	for anc := node.Parent; anc != nil; anc = anc.Parent {
		if anc.Kind == KindParseDirective && anc.File == node.File && anc.Line == node.Line {
			p.report(ErrIncludeCycle, node.Line,
				"%s %q is part of an include cycle: %s", node.Name, node.Params[0], includeChain(node))
			return nil
		}
	}

	// the optional form swallows every access failure, not just a
	// missing file
	info, err := os.Stat(target)
	switch {
	case err != nil && !required:
		log.Noticef("session %s: optional include %q not accessible, skipping: %v", p.id, target, err)
		return nil
	case err != nil:
		p.report(ErrIO, node.Line, "cannot include %q: %v", target, err)
		return nil
	case !info.Mode().IsRegular() && !required:
		log.Noticef("session %s: optional include %q is not a regular file, skipping", p.id, target)
		return nil
	case !info.Mode().IsRegular():
		p.report(ErrIO, node.Line, "include target %q is not a regular file", target)
		return nil
	}

	log.Infof("session %s: including %q from %s:%d", p.id, target, node.File, node.Line)
	if err := p.parseFileAt(target, node); err != nil {
		if ce, ok := err.(*Error); ok && ce.Kind == ErrResource {
			return err
		}
		if !required {
			log.Noticef("session %s: optional include %q cannot be read, skipping: %v", p.id, target, err)
			return nil
		}
		p.fail(err)
	}
	return nil
}

// includeChain renders every include site on the ancestor chain,
// outermost first, for cycle diagnostics.
func includeChain(node *Node) string {
	var sites []string
	for n := node; n != nil; n = n.Parent {
		if n.Kind == KindParseDirective {
			sites = append(sites, fmt.Sprintf("%s:%d", n.File, n.Line))
		}
	}
	for i, j := 0, len(sites)-1; i < j; i, j = i+1, j-1 {
		sites[i], sites[j] = sites[j], sites[i]
	}
	return strings.Join(sites, " -> ")
}

// logLevelVerbosity maps configuration log level names onto logger
// verbosity. Higher verbosity admits more detail.
var logLevelVerbosity = map[string]int{
	"emergency": 0,
	"alert":     0,
	"critical":  0,
	"error":     0,
	"warning":   1,
	"notice":    1,
	"info":      2,
	"debug":     3,
	"debug2":    3,
	"debug3":    4,
	"trace":     4,
}

// logLevel adjusts logging verbosity for the remainder of the parse
// and everything after it. Accepts a level name or a bare number.
func (p *Parser) logLevel(node *Node) error {
	if len(node.Params) != 1 {
		p.report(ErrStructural, node.Line, "LogLevel takes one parameter, not %d", len(node.Params))
		return nil
	}
	arg := strings.ToLower(node.Params[0])
	verbosity, ok := logLevelVerbosity[arg]
	if !ok {
		n, err := strconv.Atoi(arg)
		if err != nil || n < 0 {
			p.report(ErrStructural, node.Line, "unknown log level %q", node.Params[0])
			return nil
		}
		verbosity = n
	}
	commonlog.Configure(verbosity, nil)
	log.Infof("session %s: log level set to %s", p.id, node.Params[0])
	return nil
}
