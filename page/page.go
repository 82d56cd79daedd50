// Package page models the product page as a mutable HTML tree.
//
// The engine keeps an in-memory mirror of the live page. Everything that
// reads or mutates page structure goes through this package: selector
// queries, bullet extraction, and the reversible annotation ops that are
// replayed onto the live page by a host adapter.
package page

import (
	"fmt"
	"io"
	"strings"

	"golang.org/x/net/html"
	"golang.org/x/net/html/atom"
)

// InjectedClassPrefix marks every element this engine adds to the page.
// Walkers skip subtrees carrying a class with this prefix so the overlay
// never matches or annotates its own UI.
const InjectedClassPrefix = "rl-"

// Document wraps a parsed HTML tree.
type Document struct {
	root *html.Node
}

// Parse reads an HTML document from r.
func Parse(r io.Reader) (*Document, error) {
	root, err := html.Parse(r)
	if err != nil {
		return nil, fmt.Errorf("page: parse: %w", err)
	}
	return &Document{root: root}, nil
}

// ParseString parses an HTML document from a string.
func ParseString(s string) (*Document, error) {
	return Parse(strings.NewReader(s))
}

// Root returns the document root node.
func (d *Document) Root() *html.Node { return d.root }

// Render serialises the document back to HTML.
func (d *Document) Render() (string, error) {
	var sb strings.Builder
	if err := html.Render(&sb, d.root); err != nil {
		return "", fmt.Errorf("page: render: %w", err)
	}
	return sb.String(), nil
}

// Select returns all nodes matching a simple CSS selector.
// Supported forms: tag, .class, #id, tag.class, tag#id, tag[attr],
// tag[attr=val], and descendant combinations separated by spaces.
func (d *Document) Select(selector string) []*html.Node {
	return selectAll(d.root, selector)
}

// First returns the first node matching selector, or nil.
func (d *Document) First(selector string) *html.Node {
	matches := selectAll(d.root, selector)
	if len(matches) == 0 {
		return nil
	}
	return matches[0]
}

// Text returns the collected text of the first node matching selector,
// whitespace-normalised. Empty string if nothing matches.
func (d *Document) Text(selector string) string {
	n := d.First(selector)
	if n == nil {
		return ""
	}
	return CollectText(n)
}

// TotalText returns all visible text in the document, ignoring element
// boundaries. Injected overlay elements are excluded, so the value is
// stable across annotate/clear and marker wrap/unwrap cycles.
func (d *Document) TotalText() string {
	var sb strings.Builder
	var walk func(*html.Node)
	walk = func(n *html.Node) {
		if n.Type == html.ElementNode {
			switch n.DataAtom {
			case atom.Script, atom.Style, atom.Noscript:
				return
			}
		}
		if n.Type == html.TextNode {
			sb.WriteString(n.Data)
		}
		for c := n.FirstChild; c != nil; c = c.NextSibling {
			walk(c)
		}
	}
	walk(d.root)
	return sb.String()
}

// CollectText gathers the text content of a subtree, trimming and joining
// fragments with single spaces.
func CollectText(n *html.Node) string {
	var parts []string
	var walk func(*html.Node)
	walk = func(n *html.Node) {
		if n.Type == html.ElementNode {
			switch n.DataAtom {
			case atom.Script, atom.Style, atom.Noscript:
				return
			}
		}
		if n.Type == html.TextNode {
			if t := strings.TrimSpace(n.Data); t != "" {
				parts = append(parts, t)
			}
		}
		for c := n.FirstChild; c != nil; c = c.NextSibling {
			walk(c)
		}
	}
	walk(n)
	return strings.Join(parts, " ")
}

// GetAttr returns the value of an attribute on a node.
func GetAttr(n *html.Node, key string) string {
	for _, attr := range n.Attr {
		if attr.Key == key {
			return attr.Val
		}
	}
	return ""
}

// SetAttr sets or replaces an attribute on a node.
func SetAttr(n *html.Node, key, val string) {
	for i := range n.Attr {
		if n.Attr[i].Key == key {
			n.Attr[i].Val = val
			return
		}
	}
	n.Attr = append(n.Attr, html.Attribute{Key: key, Val: val})
}

// HasClass reports whether a node carries the given class.
func HasClass(n *html.Node, class string) bool {
	for _, c := range strings.Fields(GetAttr(n, "class")) {
		if c == class {
			return true
		}
	}
	return false
}

// Injected reports whether n or any ancestor is an overlay-injected
// element (class prefixed with InjectedClassPrefix).
func Injected(n *html.Node) bool {
	for p := n; p != nil; p = p.Parent {
		if p.Type != html.ElementNode {
			continue
		}
		for _, c := range strings.Fields(GetAttr(p, "class")) {
			if strings.HasPrefix(c, InjectedClassPrefix) {
				return true
			}
		}
	}
	return false
}

// NodePath addresses a node by child indices from the document root.
// Paths count all child nodes (elements and text alike) so text nodes are
// addressable; they match DOM childNodes indexing on the live page.
type NodePath []int

// PathOf computes the path of n relative to root. Returns nil if n is not
// a descendant of root.
func PathOf(root, n *html.Node) NodePath {
	var rev []int
	for cur := n; cur != root; cur = cur.Parent {
		if cur.Parent == nil {
			return nil
		}
		idx := 0
		for sib := cur.Parent.FirstChild; sib != cur; sib = sib.NextSibling {
			idx++
		}
		rev = append(rev, idx)
	}
	path := make(NodePath, len(rev))
	for i, v := range rev {
		path[len(rev)-1-i] = v
	}
	return path
}

// Resolve walks the path down from root. Returns nil if the path no
// longer addresses a node.
func (p NodePath) Resolve(root *html.Node) *html.Node {
	cur := root
	for _, idx := range p {
		c := cur.FirstChild
		for i := 0; i < idx && c != nil; i++ {
			c = c.NextSibling
		}
		if c == nil {
			return nil
		}
		cur = c
	}
	return cur
}

// String renders the path as a slash-joined index list, e.g. "1/0/3".
func (p NodePath) String() string {
	if len(p) == 0 {
		return "/"
	}
	var sb strings.Builder
	for _, idx := range p {
		fmt.Fprintf(&sb, "/%d", idx)
	}
	return sb.String()
}
