package page

import (
	"strings"
	"testing"

	"golang.org/x/net/html"
)

const productHTML = `<!DOCTYPE html>
<html><head><title>Acme Widget - Amazon</title></head><body>
<span id="productTitle"> Acme Widget Pro 3000 </span>
<div id="feature-bullets"><ul>
  <li><span>Battery lasts 10 hours and charges fast over USB-C</span></li>
  <li><span>Waterproof up to 2 meters for swimming</span></li>
  <li><span>› See more product details</span></li>
  <li><span>tiny</span></li>
  <li><span>Includes travel case and cleaning cloth</span></li>
</ul></div>
<div id="productDescription"><p>Long <b>battery</b> life.</p></div>
</body></html>`

func parse(t *testing.T, s string) *Document {
	t.Helper()
	d, err := ParseString(s)
	if err != nil {
		t.Fatal(err)
	}
	return d
}

func TestBullets(t *testing.T) {
	d := parse(t, productHTML)
	bullets := d.Bullets(nil)
	if len(bullets) != 3 {
		t.Fatalf("expected 3 content bullets, got %d: %+v", len(bullets), bullets)
	}
	want := []string{
		"Battery lasts 10 hours and charges fast over USB-C",
		"Waterproof up to 2 meters for swimming",
		"Includes travel case and cleaning cloth",
	}
	for i, b := range bullets {
		if b.Index != i {
			t.Errorf("bullet %d: index %d", i, b.Index)
		}
		if b.Text != want[i] {
			t.Errorf("bullet %d: text %q, want %q", i, b.Text, want[i])
		}
		if got := b.Path.Resolve(d.Root()); got != b.Node {
			t.Errorf("bullet %d: path %s does not resolve to its node", i, b.Path)
		}
	}
}

func TestBulletsNoContainer(t *testing.T) {
	d := parse(t, `<html><body><p>no bullets here</p></body></html>`)
	if got := d.Bullets(nil); got != nil {
		t.Fatalf("expected nil, got %+v", got)
	}
}

func TestBulletsSkipInjected(t *testing.T) {
	d := parse(t, `<html><body><div id="feature-bullets"><ul>
	<li>Battery lasts 10 hours and charges fast</li>
	<li class="rl-injected-row">Looks like a bullet but is ours</li>
	</ul></div></body></html>`)
	bullets := d.Bullets(nil)
	if len(bullets) != 1 {
		t.Fatalf("expected injected row skipped, got %d bullets", len(bullets))
	}
}

func TestTrivial(t *testing.T) {
	cases := []struct {
		in   string
		want bool
	}{
		{"Battery lasts 10 hours", false},
		{"short", true},
		{"   ", true},
		{"› See more product details", true},
		{"exactly 10", false},
	}
	for _, c := range cases {
		if got := Trivial(c.in); got != c.want {
			t.Errorf("Trivial(%q) = %v, want %v", c.in, got, c.want)
		}
	}
}

func TestASINFromURL(t *testing.T) {
	cases := []struct {
		in, want string
	}{
		{"https://www.amazon.com/dp/B0ABCDEF12", "B0ABCDEF12"},
		{"https://www.amazon.com/dp/B0ABCDEF12?th=1", "B0ABCDEF12"},
		{"https://www.amazon.com/Acme-Widget/dp/B0ABCDEF12/ref=sr_1_1", "B0ABCDEF12"},
		{"https://www.amazon.de/gp/product/B0ABCDEF12", "B0ABCDEF12"},
		{"https://www.amazon.com/dp/short", ""},
		{"https://www.amazon.com/s?k=widgets", ""},
	}
	for _, c := range cases {
		if got := ASINFromURL(c.in); got != c.want {
			t.Errorf("ASINFromURL(%q) = %q, want %q", c.in, got, c.want)
		}
	}
}

func TestIdentityFromURL(t *testing.T) {
	a := IdentityFromURL("https://www.amazon.com/dp/B0ABCDEF12?th=1&psc=1")
	b := IdentityFromURL("https://www.amazon.com/dp/B0ABCDEF12")
	if a != b {
		t.Fatalf("query must not change identity: %q vs %q", a, b)
	}
	c := IdentityFromURL("https://www.amazon.com/dp/B0OTHER9999")
	if a == c {
		t.Fatal("different paths must differ in identity")
	}
}

func TestRegionFromURL(t *testing.T) {
	cases := []struct {
		in, want string
	}{
		{"https://www.amazon.de/dp/B0ABCDEF12", "DE"},
		{"https://www.amazon.co.uk/dp/B0ABCDEF12", "UK"},
		{"https://www.amazon.co.jp/dp/B0ABCDEF12", "JP"},
		{"https://www.amazon.com/dp/B0ABCDEF12", "US"},
		{"https://shop.example.com/dp/B0ABCDEF12", "US"},
	}
	for _, c := range cases {
		if got := RegionFromURL(c.in); got != c.want {
			t.Errorf("RegionFromURL(%q) = %q, want %q", c.in, got, c.want)
		}
	}
}

func TestInfo(t *testing.T) {
	d := parse(t, productHTML)
	info := d.Info("https://www.amazon.com/dp/B0ABCDEF12")
	if info.ASIN != "B0ABCDEF12" {
		t.Errorf("asin %q", info.ASIN)
	}
	if info.Title != "Acme Widget Pro 3000" {
		t.Errorf("title %q", info.Title)
	}
	if info.Region != "US" {
		t.Errorf("region %q", info.Region)
	}
	if info.Description != "Long battery life." {
		t.Errorf("description %q", info.Description)
	}
}

func TestInfoFallbacks(t *testing.T) {
	d := parse(t, `<html><head><title>Fallback Title</title></head><body>
	<input name="ASIN" value="B0FALLBACK0"></body></html>`)
	info := d.Info("https://www.amazon.com/s?k=widgets")
	if info.ASIN != "B0FALLBACK0" {
		t.Errorf("expected hidden-input asin, got %q", info.ASIN)
	}
	if info.Title != "Fallback Title" {
		t.Errorf("expected document title fallback, got %q", info.Title)
	}
}

func TestAddRemoveClassOps(t *testing.T) {
	d := parse(t, productHTML)
	bullets := d.Bullets(nil)
	target := bullets[0]

	if err := d.Apply(Op{Kind: OpAddClass, Path: target.Path, Class: "rl-status-ok"}); err != nil {
		t.Fatal(err)
	}
	if !HasClass(target.Node, "rl-status-ok") {
		t.Fatal("class not added")
	}
	if err := d.Apply(Op{Kind: OpRemoveClass, Path: target.Path, Class: "rl-status-ok"}); err != nil {
		t.Fatal(err)
	}
	if HasClass(target.Node, "rl-status-ok") {
		t.Fatal("class not removed")
	}
}

func TestAppendAndRemoveTag(t *testing.T) {
	d := parse(t, productHTML)
	before := d.TotalText()
	bullets := d.Bullets(nil)

	if err := d.Apply(Op{Kind: OpAppendTag, Path: bullets[0].Path, Class: "rl-region-tag", Text: "Differs from DE"}); err != nil {
		t.Fatal(err)
	}
	if d.Text(".rl-region-tag") != "Differs from DE" {
		t.Fatal("tag not appended")
	}

	if err := d.Apply(Op{Kind: OpRemoveByClass, Class: "rl-region-tag"}); err != nil {
		t.Fatal(err)
	}
	if d.First(".rl-region-tag") != nil {
		t.Fatal("tag not removed")
	}
	if got := d.TotalText(); got != before {
		t.Fatalf("text changed after cleanup:\n%q\n%q", got, before)
	}
}

func TestWrapUnwrapRestoresText(t *testing.T) {
	d := parse(t, `<html><body><p id="d">Battery lasts 10 hours and charges fast.</p></body></html>`)
	before := d.TotalText()

	p := d.First("#d")
	textNode := p.FirstChild
	if textNode == nil || textNode.Type != html.TextNode {
		t.Fatal("no text node")
	}
	start := strings.Index(textNode.Data, "lasts 10 hours")
	end := start + len("lasts 10 hours")

	path := PathOf(d.Root(), textNode)
	if err := d.Apply(Op{Kind: OpWrapText, Path: path, Class: "rl-marker", Start: start, End: end}); err != nil {
		t.Fatal(err)
	}
	if d.Text(".rl-marker") != "lasts 10 hours" {
		t.Fatalf("marker text %q", d.Text(".rl-marker"))
	}
	// Wrapping must not change the visible text.
	if got := d.TotalText(); got != before {
		t.Fatalf("wrap changed text:\n%q\n%q", got, before)
	}

	if err := d.Apply(Op{Kind: OpUnwrap, Class: "rl-marker"}); err != nil {
		t.Fatal(err)
	}
	if d.First(".rl-marker") != nil {
		t.Fatal("marker not removed")
	}
	if got := d.TotalText(); got != before {
		t.Fatalf("unwrap changed text:\n%q\n%q", got, before)
	}
	// The split text must be merged back into a single node.
	if p.FirstChild == nil || p.FirstChild.NextSibling != nil {
		t.Fatal("text nodes not re-merged after unwrap")
	}
	if p.FirstChild.Data != "Battery lasts 10 hours and charges fast." {
		t.Fatalf("merged text %q", p.FirstChild.Data)
	}
}

func TestWrapAtTextEdges(t *testing.T) {
	d := parse(t, `<html><body><p id="d">edge case text</p></body></html>`)
	textNode := d.First("#d").FirstChild
	path := PathOf(d.Root(), textNode)

	// Wrap from offset 0: no before-node.
	if err := d.Apply(Op{Kind: OpWrapText, Path: path, Class: "rl-marker", Start: 0, End: 4}); err != nil {
		t.Fatal(err)
	}
	if d.Text(".rl-marker") != "edge" {
		t.Fatalf("marker %q", d.Text(".rl-marker"))
	}
	d.Apply(Op{Kind: OpUnwrap, Class: "rl-marker"})

	// Wrap to the end: no after-node.
	textNode = d.First("#d").FirstChild
	path = PathOf(d.Root(), textNode)
	n := len(textNode.Data)
	if err := d.Apply(Op{Kind: OpWrapText, Path: path, Class: "rl-marker", Start: n - 4, End: n}); err != nil {
		t.Fatal(err)
	}
	if d.Text(".rl-marker") != "text" {
		t.Fatalf("marker %q", d.Text(".rl-marker"))
	}
}

func TestWrapRejectsBadRange(t *testing.T) {
	d := parse(t, `<html><body><p id="d">short</p></body></html>`)
	textNode := d.First("#d").FirstChild
	path := PathOf(d.Root(), textNode)

	for _, op := range []Op{
		{Kind: OpWrapText, Path: path, Class: "rl-marker", Start: 2, End: 2},
		{Kind: OpWrapText, Path: path, Class: "rl-marker", Start: -1, End: 3},
		{Kind: OpWrapText, Path: path, Class: "rl-marker", Start: 0, End: 99},
	} {
		if err := d.Apply(op); err == nil {
			t.Errorf("expected error for range [%d,%d)", op.Start, op.End)
		}
	}
}

func TestApplyStalePath(t *testing.T) {
	d := parse(t, productHTML)
	stale := NodePath{9, 9, 9}
	if err := d.Apply(Op{Kind: OpAddClass, Path: stale, Class: "rl-x"}); err == nil {
		t.Fatal("expected error for stale path")
	}
}

func TestInjectedAncestors(t *testing.T) {
	d := parse(t, `<html><body><div class="rl-region-tag"><span id="inner">ours</span></div>
	<span id="outer">page</span></body></html>`)
	if !Injected(d.First("#inner")) {
		t.Fatal("descendant of injected element must be injected")
	}
	if Injected(d.First("#outer")) {
		t.Fatal("page element wrongly treated as injected")
	}
}

func TestDescriptionHTML(t *testing.T) {
	d := parse(t, productHTML)
	got := d.DescriptionHTML()
	if !strings.Contains(got, "<b>battery</b>") {
		t.Fatalf("expected inner markup, got %q", got)
	}
}
