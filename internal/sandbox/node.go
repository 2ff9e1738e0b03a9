package sandbox

// Node is one painted element or text run. The root node has no tag and only children.
type Node struct {
	Tag      string
	Text     string
	Attrs    []Attr
	Style    []Decl
	Children []*Node
}

type Attr struct {
	Name  string
	Value string
}

// Decl is a CSS declaration with the property already in kebab-case.
type Decl struct {
	Property string
	Value    string
}

func (n *Node) IsText() bool {
	return n.Tag == "" && n.Children == nil && n.Text != ""
}

// Result is either a tree or a captured failure, never both.
type Result struct {
	Tree *Node
	Err  *Error
}

func (r Result) Failed() bool {
	return r.Err != nil
}

// HTML paints the tree. A failed result paints nothing.
func (r Result) HTML() string {
	if r.Tree == nil {
		return ""
	}
	return Paint(r.Tree)
}
