// Package locate finds a literal text fragment inside a scoped region of
// the page tree and applies a temporary visual marker to it.
//
// The search is two-phase: the tree is walked fully (no mutation) until a
// match is found, then a single wrap mutation is applied. Walk positions
// are therefore never invalidated by the mutation they lead to.
package locate

import (
	"log/slog"
	"strings"
	"sync"
	"time"
	"unicode"
	"unicode/utf8"

	"golang.org/x/net/html"
	"golang.org/x/net/html/atom"

	"github.com/marchfour/regionlens/page"
)

const (
	// MinQueryLen rejects short queries that would match all over the page.
	MinQueryLen = 3

	// MarkerClass is the class of the injected marker element.
	MarkerClass = "rl-marker"

	// DefaultDwell is how long a marker stays before it is removed and
	// the wrapped text reconstituted.
	DefaultDwell = 8 * time.Second
)

// OpSink receives the ops the locator applies to the mirror, for replay
// on the live page.
type OpSink func(ops ...page.Op)

// Options configures a Locator.
type Options struct {
	Dwell  time.Duration
	Sink   OpSink
	Logger *slog.Logger

	// Locker guards tree mutation. The coordinator shares its own lock
	// here so marker expiry never interleaves with annotation of the
	// same tree. Defaults to a private mutex.
	Locker sync.Locker
}

// Locator searches the page mirror and manages the single marker.
// At most one marker exists at any time; a new search always removes the
// previous one first. Safe for concurrent use.
type Locator struct {
	mu     sync.Locker
	doc    *page.Document
	marker *html.Node
	timer  *time.Timer
	dwell  time.Duration
	sink   OpSink
	logger *slog.Logger
}

// New creates a Locator over a page mirror.
func New(doc *page.Document, opts Options) *Locator {
	if opts.Dwell <= 0 {
		opts.Dwell = DefaultDwell
	}
	if opts.Logger == nil {
		opts.Logger = slog.Default()
	}
	if opts.Sink == nil {
		opts.Sink = func(...page.Op) {}
	}
	if opts.Locker == nil {
		opts.Locker = &sync.Mutex{}
	}
	return &Locator{
		mu:     opts.Locker,
		doc:    doc,
		dwell:  opts.Dwell,
		sink:   opts.Sink,
		logger: opts.Logger,
	}
}

// SetDocument swaps in a fresh page mirror (navigation). Any pending
// marker state belongs to the old tree and is dropped.
func (l *Locator) SetDocument(doc *page.Document) {
	l.mu.Lock()
	defer l.mu.Unlock()
	if l.timer != nil {
		l.timer.Stop()
		l.timer = nil
	}
	l.marker = nil
	l.doc = doc
}

// Locate searches for query inside the given scopes, strictly in scope
// order, and marks the first match. An empty scope selector means the
// whole document. Returns false without walking when the trimmed query is
// shorter than MinQueryLen runes, or when no scope yields a match.
func (l *Locator) Locate(query string, scopes []string) bool {
	l.mu.Lock()
	defer l.mu.Unlock()

	l.clearLocked()

	q := strings.TrimSpace(query)
	if utf8.RuneCountInString(q) < MinQueryLen {
		return false
	}
	if len(scopes) == 0 {
		scopes = []string{""}
	}

	root := l.doc.Root()
	for _, sel := range scopes {
		var scopeNodes []*html.Node
		if sel == "" {
			scopeNodes = []*html.Node{root}
		} else {
			scopeNodes = l.doc.Select(sel)
		}
		for _, scope := range scopeNodes {
			node, start, end := findInScope(scope, q)
			if node == nil {
				continue
			}
			l.mark(root, node, start, end)
			return true
		}
	}
	return false
}

// Clear removes the current marker immediately, restoring the wrapped text.
func (l *Locator) Clear() {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.clearLocked()
}

// mark wraps [start,end) of the matched text node and arms the dwell timer.
func (l *Locator) mark(root, node *html.Node, start, end int) {
	wrapOp := page.Op{
		Kind:  page.OpWrapText,
		Path:  page.PathOf(root, node),
		Start: start,
		End:   end,
		Class: MarkerClass,
		Text:  node.Data[start:end],
	}
	marker, err := page.WrapText(node, start, end, MarkerClass)
	if err != nil {
		l.logger.Warn("locate: wrap failed", "error", err)
		return
	}
	l.marker = marker

	scrollOp := page.Op{Kind: page.OpScroll, Path: page.PathOf(root, marker)}
	l.sink(wrapOp, scrollOp)

	l.timer = time.AfterFunc(l.dwell, l.expire)
}

func (l *Locator) expire() {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.clearLocked()
}

func (l *Locator) clearLocked() {
	if l.timer != nil {
		l.timer.Stop()
		l.timer = nil
	}
	if l.marker == nil {
		return
	}
	page.UnwrapAll(l.doc.Root(), MarkerClass)
	l.marker = nil
	l.sink(page.Op{Kind: page.OpUnwrap, Class: MarkerClass})
}

// findInScope walks text nodes in document order and returns the first
// one containing the query (case-insensitive), with the byte range of the
// match. Script/style subtrees and overlay-injected UI are skipped. The
// query must fall inside a single text node: fragments spanning element
// boundaries are never found.
func findInScope(scope *html.Node, query string) (node *html.Node, start, end int) {
	var walk func(*html.Node) bool
	walk = func(n *html.Node) bool {
		if n.Type == html.ElementNode {
			switch n.DataAtom {
			case atom.Script, atom.Style, atom.Noscript:
				return false
			}
			if page.Injected(n) {
				return false
			}
		}
		if n.Type == html.TextNode {
			if s, e := indexFold(n.Data, query); s >= 0 {
				node, start, end = n, s, e
				return true
			}
		}
		for c := n.FirstChild; c != nil; c = c.NextSibling {
			if walk(c) {
				return true
			}
		}
		return false
	}
	walk(scope)
	return node, start, end
}

// indexFold finds the first match of query in s under Unicode simple
// case folding and returns byte offsets valid in s. Unlike an Index over
// a ToLower copy, offsets stay correct when folding changes rune widths
// (Kelvin sign, dotted capital I).
func indexFold(s, query string) (int, int) {
	for i := 0; i < len(s); {
		if n, ok := foldPrefix(s[i:], query); ok {
			return i, i + n
		}
		_, size := utf8.DecodeRuneInString(s[i:])
		i += size
	}
	return -1, -1
}

// foldPrefix reports whether s starts with query, fold-insensitively,
// and returns the byte length of the matched prefix of s.
func foldPrefix(s, query string) (int, bool) {
	n := 0
	for _, qr := range query {
		sr, size := utf8.DecodeRuneInString(s[n:])
		if size == 0 || !runeEqualFold(sr, qr) {
			return 0, false
		}
		n += size
	}
	return n, true
}

// runeEqualFold walks the SimpleFold orbit of a looking for b, the same
// relation strings.EqualFold uses.
func runeEqualFold(a, b rune) bool {
	if a == b {
		return true
	}
	for r := unicode.SimpleFold(a); r != a; r = unicode.SimpleFold(r) {
		if r == b {
			return true
		}
	}
	return false
}
