package cfgparser

import "strconv"

// NodeKind identifies what a parse-tree node represents.
type NodeKind int

const (
	KindRoot NodeKind = iota
	KindFile
	KindDirective
	KindParseDirective
	KindBlock
)

var nodeKindNames = map[NodeKind]string{
	KindRoot:           "Root",
	KindFile:           "File",
	KindDirective:      "Directive",
	KindParseDirective: "ParseDirective",
	KindBlock:          "Block",
}

func (k NodeKind) String() string {
	if name, ok := nodeKindNames[k]; ok {
		return name
	}
	return "Unknown"
}

// Node is a node in the configuration parse tree. Directive and
// ParseDirective nodes carry the directive name and its parameters;
// Block nodes additionally own the nodes parsed between their open
// and close tags. Root and File nodes are synthetic and use the
// names "[root]" and "[file]".
//
// File and Line name the source location the node was committed at
// and never change after creation.
type Node struct {
	Kind     NodeKind
	Name     string
	Params   []string
	Children []*Node
	Parent   *Node
	File     string
	Line     int
}

func newNode(kind NodeKind, name, file string, line int) *Node {
	return &Node{
		Kind: kind,
		Name: name,
		File: file,
		Line: line,
	}
}

// AddChild appends child and sets its parent back-reference. A node
// has exactly one parent; children are owned exclusively.
func (n *Node) AddChild(child *Node) {
	if child != nil {
		child.Parent = n
		n.Children = append(n.Children, child)
	}
}

// FirstChildOfKind returns the first direct child of the given kind.
func (n *Node) FirstChildOfKind(kind NodeKind) *Node {
	for _, child := range n.Children {
		if child.Kind == kind {
			return child
		}
	}
	return nil
}

func (n *Node) String() string {
	return n.stringIndent(0, false)
}

// StringWithPositions renders the tree with file:line attribution.
func (n *Node) StringWithPositions() string {
	return n.stringIndent(0, true)
}

func (n *Node) stringIndent(indent int, showPositions bool) string {
	prefix := ""
	for i := 0; i < indent; i++ {
		prefix += "  "
	}

	result := prefix + n.Kind.String() + " " + n.Name
	for _, p := range n.Params {
		result += " " + quoteParam(p)
	}
	if showPositions {
		result += " [" + n.File + ":" + strconv.Itoa(n.Line) + "]"
	}
	result += "\n"

	for _, child := range n.Children {
		result += child.stringIndent(indent+1, showPositions)
	}
	return result
}

func quoteParam(p string) string {
	for i := 0; i < len(p); i++ {
		switch p[i] {
		case ' ', '\t', '"', '<', '>', '#', '\\':
			quoted := `"`
			for j := 0; j < len(p); j++ {
				if p[j] == '"' || p[j] == '\\' {
					quoted += `\`
				}
				quoted += string(p[j])
			}
			return quoted + `"`
		}
	}
	return p
}
