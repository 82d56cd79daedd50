package page

import (
	"net/url"
	"regexp"
	"strings"

	"golang.org/x/net/html"
)

// Bullet extraction constants. The trivial-text filter must be applied
// before indexing: bullet indices are the join key between classification
// results and page elements, so both sides have to see the same list.
const (
	// MinBulletLen is the minimum trimmed length for a bullet to count
	// as content.
	MinBulletLen = 10

	// NonContentPrefix marks navigation-style bullets ("› See more ...")
	// that carry no product content.
	NonContentPrefix = "›" // ›
)

// DefaultBulletSelectors are tried in order until one yields bullets.
var DefaultBulletSelectors = []string{
	"#feature-bullets li",
	"#featurebullets_feature_div li",
	"div#productOverview li",
}

// Bullet is one content bullet extracted from the page, addressable both
// by position (the classification join key) and by node path (the
// annotation target).
type Bullet struct {
	Index int
	Text  string
	Path  NodePath
	Node  *html.Node
}

// Trivial reports whether a bullet text is excluded from indexing.
func Trivial(text string) bool {
	t := strings.TrimSpace(text)
	if len(t) < MinBulletLen {
		return true
	}
	return strings.HasPrefix(t, NonContentPrefix)
}

// Bullets extracts the indexed bullet list from the first selector that
// matches anything. Trivial bullets are dropped before indexing. A page
// without a bullet container yields nil, which callers treat as "nothing
// to annotate", not an error.
func (d *Document) Bullets(selectors []string) []Bullet {
	if len(selectors) == 0 {
		selectors = DefaultBulletSelectors
	}
	for _, sel := range selectors {
		nodes := d.Select(sel)
		if len(nodes) == 0 {
			continue
		}
		var bullets []Bullet
		for _, n := range nodes {
			if Injected(n) {
				continue
			}
			text := CollectText(n)
			if Trivial(text) {
				continue
			}
			bullets = append(bullets, Bullet{
				Index: len(bullets),
				Text:  text,
				Path:  PathOf(d.root, n),
				Node:  n,
			})
		}
		if len(bullets) > 0 {
			return bullets
		}
	}
	return nil
}

// ProductInfo is the page metadata sent along with a check request.
type ProductInfo struct {
	ASIN        string
	Title       string
	Description string
	Region      string
}

// asinPattern matches the fixed-length alphanumeric product identifier.
var asinPattern = regexp.MustCompile(`/(?:dp|gp/product|product)/([A-Z0-9]{10})(?:[/?]|$)`)

// ASINFromURL extracts the content identifier from a location URL.
// Empty string when the location does not identify a product.
func ASINFromURL(rawURL string) string {
	m := asinPattern.FindStringSubmatch(rawURL)
	if m == nil {
		return ""
	}
	return m[1]
}

// IdentityFromURL derives the page identity from a location URL: host plus
// path, with query and fragment dropped. Two locations with the same
// identity are the same logical page.
func IdentityFromURL(rawURL string) string {
	u, err := url.Parse(rawURL)
	if err != nil {
		return rawURL
	}
	return u.Host + strings.TrimSuffix(u.Path, "/")
}

// hostRegions maps marketplace hosts to region codes.
var hostRegions = map[string]string{
	"www.amazon.com":    "US",
	"www.amazon.in":     "IN",
	"www.amazon.de":     "DE",
	"www.amazon.co.uk":  "UK",
	"www.amazon.co.jp":  "JP",
	"www.amazon.fr":     "FR",
	"www.amazon.ca":     "CA",
	"www.amazon.com.au": "AU",
	"www.amazon.es":     "ES",
}

// RegionFromURL resolves the marketplace region for a location URL.
// Unknown hosts fall back to "US".
func RegionFromURL(rawURL string) string {
	u, err := url.Parse(rawURL)
	if err != nil {
		return "US"
	}
	if r, ok := hostRegions[u.Host]; ok {
		return r
	}
	return "US"
}

// Info reads the product metadata from known page elements. Each reader
// degrades to an empty field when its container is absent.
func (d *Document) Info(locationURL string) ProductInfo {
	info := ProductInfo{
		ASIN:   ASINFromURL(locationURL),
		Region: RegionFromURL(locationURL),
	}

	if info.ASIN == "" {
		// Some templates carry the identifier on a hidden input instead.
		if n := d.First("input[name=ASIN]"); n != nil {
			info.ASIN = GetAttr(n, "value")
		}
	}

	info.Title = d.Text("#productTitle")
	if info.Title == "" {
		if n := d.First("title"); n != nil {
			info.Title = CollectText(n)
		}
	}

	info.Description = d.Text("#productDescription")
	return info
}

// DescriptionHTML returns the raw inner HTML of the description container,
// or empty when absent. Used for the markdown snapshot in the check log.
func (d *Document) DescriptionHTML() string {
	n := d.First("#productDescription")
	if n == nil {
		return ""
	}
	var sb strings.Builder
	for c := n.FirstChild; c != nil; c = c.NextSibling {
		html.Render(&sb, c)
	}
	return sb.String()
}
