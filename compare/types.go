// Package compare is the client for the multi-region description
// consistency service. The service computes all similarity scores,
// sentence alignments and issues; this package only transports and
// validates its output.
package compare

import "fmt"

// Risk levels reported by the service.
const (
	RiskLow    = "LOW"
	RiskMedium = "MEDIUM"
	RiskHigh   = "HIGH"
)

// Result is the full response of a consistency check for one product.
type Result struct {
	ASIN              string         `json:"asin"`
	RiskLevel         string         `json:"risk_level"`
	AverageSimilarity float64        `json:"average_similarity"`
	MinSimilarity     *float64       `json:"min_similarity,omitempty"`
	MaxSimilarity     *float64       `json:"max_similarity,omitempty"`
	Confidence        string         `json:"confidence,omitempty"`
	Comparisons       []Comparison   `json:"comparisons"`
	RegionsAnalyzed   []string       `json:"regions_analyzed,omitempty"`
	TitleAnalysis     *TitleAnalysis `json:"title_analysis,omitempty"`
}

// Comparison is one region-pair record.
type Comparison struct {
	Region1         string         `json:"region_1"`
	Region2         string         `json:"region_2"`
	SimilarityScore float64        `json:"similarity_score"`
	Confidence      string         `json:"confidence,omitempty"`
	SentenceDetail  SentenceDetail `json:"sentence_detail"`
	Issues          []Issue        `json:"issues,omitempty"`
}

// SentenceDetail partitions the two descriptions' sentences: aligned
// pairs plus the leftovers unique to each side. Every sentence belongs to
// exactly one partition.
type SentenceDetail struct {
	Matched []MatchedPair `json:"matched"`
	OnlyIn1 []string      `json:"only_in_1"`
	OnlyIn2 []string      `json:"only_in_2"`
}

// MatchedPair is an aligned sentence pair with its similarity in [0,1].
type MatchedPair struct {
	Sentence1  string  `json:"sentence_1"`
	Sentence2  string  `json:"sentence_2"`
	Similarity float64 `json:"similarity"`
}

// Issue is a severity-ranked, human-readable inconsistency report.
type Issue struct {
	Type        string   `json:"type"`
	Severity    string   `json:"severity"`
	Title       string   `json:"title"`
	Description string   `json:"description"`
	Regions     []string `json:"regions,omitempty"`
}

// TitleAnalysis flags title mismatches across regions. Carried through
// for status output; the overlay does not interpret it.
type TitleAnalysis struct {
	IsMismatch bool              `json:"is_mismatch"`
	Titles     map[string]string `json:"titles,omitempty"`
}

// Validate checks the required response fields. A response failing
// validation is treated like a network failure: discarded, not cached,
// not rendered.
func (r *Result) Validate() error {
	if r.ASIN == "" {
		return fmt.Errorf("compare: response missing asin")
	}
	switch r.RiskLevel {
	case RiskLow, RiskMedium, RiskHigh:
	default:
		return fmt.Errorf("compare: response has invalid risk_level %q", r.RiskLevel)
	}
	if r.Comparisons == nil {
		return fmt.Errorf("compare: response missing comparisons")
	}
	return nil
}

// PageSide reports which side of the comparison belongs to the given
// region: 1, 2, or 0 when the pair does not include it.
func (c *Comparison) PageSide(region string) int {
	switch region {
	case c.Region1:
		return 1
	case c.Region2:
		return 2
	}
	return 0
}

// OtherRegion returns the region opposite the given one in the pair, or
// empty when the pair does not include it.
func (c *Comparison) OtherRegion(region string) string {
	switch region {
	case c.Region1:
		return c.Region2
	case c.Region2:
		return c.Region1
	}
	return ""
}
