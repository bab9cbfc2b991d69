// Package directive routes parsed configuration directives to typed
// handlers. A Registry implements cfgparser.Dispatcher: it owns the
// directive table, checks parameter arity per handler shape and
// tracks block scope during an apply pass.
package directive

import (
	"fmt"
	"strings"

	"github.com/tliron/commonlog"

	"github.com/bastionwaf/bastion/cfgparser"
)

var log = commonlog.GetLogger("bastion.directive")

// Type describes a directive's parameter shape.
type Type int

const (
	// OnOff takes a single boolean parameter.
	OnOff Type = iota
	// Param1 takes exactly one parameter.
	Param1
	// Param2 takes exactly two parameters.
	Param2
	// List takes one or more parameters.
	List
	// Flags takes one or more +name/-name flag adjustments.
	Flags
	// Block is a block directive with exactly one parameter.
	Block
)

var typeNames = map[Type]string{
	OnOff:  "OnOff",
	Param1: "Param1",
	Param2: "Param2",
	List:   "List",
	Flags:  "Flags",
	Block:  "Block",
}

func (t Type) String() string {
	if name, ok := typeNames[t]; ok {
		return name
	}
	return "Unknown"
}

// FlagValue names one bit a Flags directive can toggle.
type FlagValue struct {
	Name  string
	Value uint64
}

// Handler binds a directive name to its shape and callbacks. The
// callback matching Type must be set; the rest are ignored.
type Handler struct {
	Name string
	Type Type

	OnOffFn  func(name string, value bool) error
	Param1Fn func(name, p1 string) error
	Param2Fn func(name, p1, p2 string) error
	ListFn   func(name string, params []string) error

	// FlagsFn receives the resulting flag bits and a mask of the
	// bits the directive line touched. A leading unprefixed flag
	// replaces the whole set, so the mask is then all ones.
	FlagsFn    func(name string, flags, mask uint64) error
	FlagValues []FlagValue

	BlockStartFn func(name, p1 string) error
	BlockEndFn   func(name string) error
}

func (h *Handler) flagValue(name string) (uint64, bool) {
	for _, fv := range h.FlagValues {
		if strings.EqualFold(fv.Name, name) {
			return fv.Value, true
		}
	}
	return 0, false
}

// Registry is a directive table plus the block scope of one apply
// pass. Register everything first, then hand it to Parser.Apply; a
// Registry must not be shared between concurrent applies.
type Registry struct {
	handlers map[string]*Handler
	blocks   []string
}

func NewRegistry() *Registry {
	return &Registry{handlers: map[string]*Handler{}}
}

// Register adds a handler. Directive names are case-sensitive (the
// parse-time Include/IncludeIfExists/LogLevel set is the only
// case-insensitive one, and lives in the parser); registering a name
// twice is an error.
func (r *Registry) Register(h *Handler) error {
	if h.Name == "" {
		return fmt.Errorf("directive handler has no name")
	}
	if _, exists := r.handlers[h.Name]; exists {
		return fmt.Errorf("directive %q is already registered", h.Name)
	}
	r.handlers[h.Name] = h
	return nil
}

// MustRegister is Register for static tables; it panics on conflict.
func (r *Registry) MustRegister(h *Handler) {
	if err := r.Register(h); err != nil {
		panic(err)
	}
}

// Lookup returns the handler for a directive name.
func (r *Registry) Lookup(name string) (*Handler, bool) {
	h, ok := r.handlers[name]
	return h, ok
}

// ProcessDirective dispatches one simple directive.
func (r *Registry) ProcessDirective(name string, params []string) error {
	h, ok := r.Lookup(name)
	if !ok {
		return &cfgparser.Error{
			Kind: cfgparser.ErrUnknownDirective,
			Msg:  fmt.Sprintf("unknown directive %q", name),
		}
	}
	log.Debugf("dispatching %s directive %q with %d parameters", h.Type, h.Name, len(params))

	switch h.Type {
	case OnOff:
		if len(params) != 1 {
			return arityError(h, "one parameter", len(params))
		}
		value, err := parseOnOff(params[0])
		if err != nil {
			return &cfgparser.Error{
				Kind: cfgparser.ErrStructural,
				Msg:  fmt.Sprintf("directive %q: %v", h.Name, err),
			}
		}
		return h.OnOffFn(h.Name, value)

	case Param1:
		if len(params) != 1 {
			return arityError(h, "one parameter", len(params))
		}
		return h.Param1Fn(h.Name, params[0])

	case Param2:
		if len(params) != 2 {
			return arityError(h, "two parameters", len(params))
		}
		return h.Param2Fn(h.Name, params[0], params[1])

	case List:
		if len(params) < 1 {
			return arityError(h, "one or more parameters", len(params))
		}
		return h.ListFn(h.Name, params)

	case Flags:
		if len(params) < 1 {
			return arityError(h, "one or more parameters", len(params))
		}
		flags, mask, err := h.flagMask(params)
		if err != nil {
			return &cfgparser.Error{
				Kind: cfgparser.ErrStructural,
				Msg:  fmt.Sprintf("directive %q: %v", h.Name, err),
			}
		}
		return h.FlagsFn(h.Name, flags, mask)

	case Block:
		return &cfgparser.Error{
			Kind: cfgparser.ErrStructural,
			Msg:  fmt.Sprintf("%q is a block directive and needs <%s ...> syntax", h.Name, h.Name),
		}
	}
	return &cfgparser.Error{
		Kind: cfgparser.ErrDispatch,
		Msg:  fmt.Sprintf("directive %q has unsupported type %d", h.Name, h.Type),
	}
}

// StartBlock opens a block directive. The scope stack is pushed
// before the handler runs: the apply pass always pairs a StartBlock
// with an EndBlock, even when the start failed, so the stack must
// stay balanced on every path.
func (r *Registry) StartBlock(name string, params []string) error {
	r.blocks = append(r.blocks, name)

	h, ok := r.Lookup(name)
	if !ok {
		return &cfgparser.Error{
			Kind: cfgparser.ErrUnknownDirective,
			Msg:  fmt.Sprintf("unknown block directive %q", name),
		}
	}
	if h.Type != Block {
		return &cfgparser.Error{
			Kind: cfgparser.ErrStructural,
			Msg:  fmt.Sprintf("%q is not a block directive", h.Name),
		}
	}
	if len(params) != 1 {
		return arityError(h, "one parameter", len(params))
	}
	return h.BlockStartFn(h.Name, params[0])
}

// EndBlock closes the innermost open block.
func (r *Registry) EndBlock(name string) error {
	if len(r.blocks) == 0 || r.blocks[len(r.blocks)-1] != name {
		return &cfgparser.Error{
			Kind: cfgparser.ErrStructural,
			Msg:  fmt.Sprintf("closing block %q does not match the open block", name),
		}
	}
	r.blocks = r.blocks[:len(r.blocks)-1]

	h, ok := r.Lookup(name)
	if !ok || h.Type != Block {
		return &cfgparser.Error{
			Kind: cfgparser.ErrUnknownDirective,
			Msg:  fmt.Sprintf("unknown block directive %q", name),
		}
	}
	if h.BlockEndFn == nil {
		return nil
	}
	return h.BlockEndFn(h.Name)
}

// flagMask folds a flag parameter list into (flags, mask). A leading
// unprefixed flag replaces the whole set; later parameters adjust it
// with + and - prefixes.
func (h *Handler) flagMask(params []string) (flags, mask uint64, err error) {
	for i, p := range params {
		op, name := byte(0), p
		if len(p) > 0 && (p[0] == '+' || p[0] == '-') {
			op, name = p[0], p[1:]
		}
		val, ok := h.flagValue(name)
		if !ok {
			return 0, 0, fmt.Errorf("unknown flag %q", name)
		}
		switch {
		case op == '-':
			flags &^= val
			mask |= val
		case op == '+':
			flags |= val
			mask |= val
		case i == 0:
			flags = val
			mask = ^uint64(0)
		default:
			flags |= val
			mask |= val
		}
	}
	return flags, mask, nil
}

func parseOnOff(s string) (bool, error) {
	switch strings.ToLower(s) {
	case "on", "yes", "true":
		return true, nil
	case "off", "no", "false":
		return false, nil
	}
	return false, fmt.Errorf("invalid boolean %q (expected On or Off)", s)
}

func arityError(h *Handler, want string, got int) error {
	return &cfgparser.Error{
		Kind: cfgparser.ErrStructural,
		Msg:  fmt.Sprintf("%s directive %q takes %s, not %d", h.Type, h.Name, want, got),
	}
}
