package page

import (
	"fmt"
	"strings"

	"golang.org/x/net/html"
)

// Op is a single reversible page mutation. The engine applies each op to
// its in-memory mirror and hands the same op to the host adapter, which
// replays it on the live page. Every op kind has an inverse (remove-class,
// remove-by-class, unwrap) so a full cleanup is always possible.
type Op struct {
	Kind  string   `json:"kind"`
	Path  NodePath `json:"path,omitempty"`
	Class string   `json:"class,omitempty"`
	Text  string   `json:"text,omitempty"`
	Start int      `json:"start,omitempty"`
	End   int      `json:"end,omitempty"`
}

// Op kinds understood by Apply and by host adapters.
const (
	OpAddClass      = "add-class"       // add Class to element at Path
	OpRemoveClass   = "remove-class"    // remove Class from element at Path
	OpAppendTag     = "append-tag"      // append <span class=Class>Text</span> to element at Path
	OpRemoveByClass = "remove-by-class" // remove every element carrying Class
	OpWrapText      = "wrap-text"       // wrap [Start,End) of text node at Path in <span class=Class>
	OpUnwrap        = "unwrap"          // unwrap every element carrying Class, re-merging text
	OpScroll        = "scroll"          // bring element at Path into view (host-only, mirror no-op)
)

// Apply executes an op against the in-memory tree.
func (d *Document) Apply(op Op) error {
	switch op.Kind {
	case OpAddClass:
		n := op.Path.Resolve(d.root)
		if n == nil {
			return fmt.Errorf("page: %s: stale path %s", op.Kind, op.Path)
		}
		AddClass(n, op.Class)
	case OpRemoveClass:
		n := op.Path.Resolve(d.root)
		if n == nil {
			return fmt.Errorf("page: %s: stale path %s", op.Kind, op.Path)
		}
		RemoveClass(n, op.Class)
	case OpAppendTag:
		n := op.Path.Resolve(d.root)
		if n == nil {
			return fmt.Errorf("page: %s: stale path %s", op.Kind, op.Path)
		}
		AppendTag(n, op.Class, op.Text)
	case OpRemoveByClass:
		RemoveByClass(d.root, op.Class)
	case OpWrapText:
		n := op.Path.Resolve(d.root)
		if n == nil || n.Type != html.TextNode {
			return fmt.Errorf("page: %s: stale path %s", op.Kind, op.Path)
		}
		if _, err := WrapText(n, op.Start, op.End, op.Class); err != nil {
			return err
		}
	case OpUnwrap:
		UnwrapAll(d.root, op.Class)
	case OpScroll:
		// Visual concern only; nothing to mirror.
	default:
		return fmt.Errorf("page: unknown op kind %q", op.Kind)
	}
	return nil
}

// AddClass adds a class to an element if not already present.
func AddClass(n *html.Node, class string) {
	if class == "" || HasClass(n, class) {
		return
	}
	cur := GetAttr(n, "class")
	if cur == "" {
		SetAttr(n, "class", class)
		return
	}
	SetAttr(n, "class", cur+" "+class)
}

// RemoveClass removes a class from an element.
func RemoveClass(n *html.Node, class string) {
	fields := strings.Fields(GetAttr(n, "class"))
	var kept []string
	for _, c := range fields {
		if c != class {
			kept = append(kept, c)
		}
	}
	SetAttr(n, "class", strings.Join(kept, " "))
}

// AppendTag appends a small inline <span> element as the last child of n.
func AppendTag(n *html.Node, class, text string) *html.Node {
	tag := &html.Node{
		Type: html.ElementNode,
		Data: "span",
		Attr: []html.Attribute{{Key: "class", Val: class}},
	}
	tag.AppendChild(&html.Node{Type: html.TextNode, Data: text})
	n.AppendChild(tag)
	return tag
}

// RemoveByClass removes every element in the tree carrying the class.
// Adjacent text siblings left behind are merged so repeated annotation
// cycles do not fragment text nodes.
func RemoveByClass(root *html.Node, class string) {
	for _, n := range elementsByClass(root, class) {
		parent := n.Parent
		if parent == nil {
			continue
		}
		parent.RemoveChild(n)
		mergeTextChildren(parent)
	}
}

// WrapText splits the text node at [start,end) byte offsets into up to
// three parts and wraps the middle in a marker element. Returns the
// marker. The split is the only mutation; callers locate first, then
// wrap once (two-phase, so walk positions are never invalidated
// mid-traversal).
func WrapText(textNode *html.Node, start, end int, class string) (*html.Node, error) {
	if textNode.Type != html.TextNode {
		return nil, fmt.Errorf("page: wrap target is not a text node")
	}
	s := textNode.Data
	if start < 0 || end > len(s) || start >= end {
		return nil, fmt.Errorf("page: wrap range [%d,%d) out of bounds for %d bytes", start, end, len(s))
	}
	parent := textNode.Parent
	if parent == nil {
		return nil, fmt.Errorf("page: wrap target is detached")
	}

	before, match, after := s[:start], s[start:end], s[end:]

	marker := &html.Node{
		Type: html.ElementNode,
		Data: "span",
		Attr: []html.Attribute{{Key: "class", Val: class}},
	}
	marker.AppendChild(&html.Node{Type: html.TextNode, Data: match})

	next := textNode.NextSibling
	parent.RemoveChild(textNode)
	if before != "" {
		parent.InsertBefore(&html.Node{Type: html.TextNode, Data: before}, next)
	}
	parent.InsertBefore(marker, next)
	if after != "" {
		parent.InsertBefore(&html.Node{Type: html.TextNode, Data: after}, next)
	}
	return marker, nil
}

// UnwrapAll removes every marker element carrying the class, splicing its
// text back into the parent and re-merging adjacent text nodes, so the
// text content is reconstituted as a single node with no residual wrapper.
func UnwrapAll(root *html.Node, class string) {
	for _, marker := range elementsByClass(root, class) {
		parent := marker.Parent
		if parent == nil {
			continue
		}
		text := CollectRawText(marker)
		parent.InsertBefore(&html.Node{Type: html.TextNode, Data: text}, marker)
		parent.RemoveChild(marker)
		mergeTextChildren(parent)
	}
}

// CollectRawText gathers text without trimming or joining, preserving the
// exact bytes that were wrapped.
func CollectRawText(n *html.Node) string {
	var sb strings.Builder
	var walk func(*html.Node)
	walk = func(n *html.Node) {
		if n.Type == html.TextNode {
			sb.WriteString(n.Data)
		}
		for c := n.FirstChild; c != nil; c = c.NextSibling {
			walk(c)
		}
	}
	walk(n)
	return sb.String()
}

func elementsByClass(root *html.Node, class string) []*html.Node {
	var results []*html.Node
	var walk func(*html.Node)
	walk = func(n *html.Node) {
		if n.Type == html.ElementNode && HasClass(n, class) {
			results = append(results, n)
			return // nested hits are removed with their ancestor
		}
		for c := n.FirstChild; c != nil; c = c.NextSibling {
			walk(c)
		}
	}
	walk(root)
	return results
}

// mergeTextChildren collapses runs of adjacent text-node children into one.
func mergeTextChildren(n *html.Node) {
	c := n.FirstChild
	for c != nil {
		next := c.NextSibling
		if c.Type == html.TextNode && next != nil && next.Type == html.TextNode {
			c.Data += next.Data
			n.RemoveChild(next)
			continue // retry same node against the new sibling
		}
		c = next
	}
}
