// Package classify assigns each page bullet a consistency status by
// fuzzy-matching the service's sentence-level report against the bullet
// texts. It reconciles two independently produced text sources: the
// service sentence-splits the raw description, the page renders bullets,
// and the two rarely agree byte-for-byte.
package classify

import (
	"fmt"
	"sort"
	"strings"

	"github.com/marchfour/regionlens/compare"
	"github.com/marchfour/regionlens/page"
)

// State is the consistency status of one bullet.
type State string

const (
	StateOK       State = "ok"       // consistent across compared regions
	StateModified State = "modified" // aligned but below the similarity bar
	StateMissing  State = "missing"  // absent from at least one other region
)

// Status is the classification record for one bullet index.
type Status struct {
	State   State
	Regions map[string]struct{}
	Detail  string
}

// RegionList returns the sorted region codes of the record.
func (s *Status) RegionList() []string {
	regions := make([]string, 0, len(s.Regions))
	for r := range s.Regions {
		regions = append(regions, r)
	}
	sort.Strings(regions)
	return regions
}

// Classify maps each bullet index to a status. Bullets are expected in
// page order; trivial bullets never receive a record. An empty or
// all-trivial bullet list yields an empty map (no highlighting), and a
// result with no comparisons yields nil.
func Classify(bullets []string, result *compare.Result, pageRegion string) map[int]*Status {
	if result == nil || len(result.Comparisons) == 0 {
		return nil
	}

	statuses := make(map[int]*Status)
	content := 0
	for _, b := range bullets {
		if !page.Trivial(b) {
			content++
		}
	}
	if content == 0 {
		return statuses
	}

	for i := range result.Comparisons {
		c := &result.Comparisons[i]
		side := c.PageSide(pageRegion)
		if side == 0 {
			continue
		}
		other := c.OtherRegion(pageRegion)

		// Aligned pairs below the similarity bar: the page-side sentence
		// marks its bullet as modified relative to the other region.
		for _, pair := range c.SentenceDetail.Matched {
			if pair.Similarity >= SimilarEnough {
				continue
			}
			sentence := pair.Sentence1
			if side == 2 {
				sentence = pair.Sentence2
			}
			attribute(statuses, bullets, sentence, StateModified, other)
		}

		// Page-side leftovers have no counterpart in the other region.
		orphans := c.SentenceDetail.OnlyIn1
		if side == 2 {
			orphans = c.SentenceDetail.OnlyIn2
		}
		for _, sentence := range orphans {
			attribute(statuses, bullets, sentence, StateMissing, other)
		}
	}

	for i, b := range bullets {
		if page.Trivial(b) {
			continue
		}
		if statuses[i] == nil {
			statuses[i] = &Status{State: StateOK}
		}
	}
	return statuses
}

// attribute fuzzy-matches a reported sentence against every bullet and
// records the state on each accepted match. Repeated matches against the
// same bullet accumulate into the region set of the existing record; a
// modified record is never downgraded to missing.
func attribute(statuses map[int]*Status, bullets []string, sentence string, state State, otherRegion string) {
	if strings.TrimSpace(sentence) == "" {
		return
	}
	for i, bullet := range bullets {
		if page.Trivial(bullet) {
			continue
		}
		if Score(bullet, sentence) <= RelatedBullet {
			continue
		}

		existing := statuses[i]
		if existing == nil {
			existing = &Status{State: state, Regions: map[string]struct{}{}}
			statuses[i] = existing
		} else if existing.State == StateMissing && state == StateModified {
			existing.State = StateModified
		}
		if existing.Regions == nil {
			existing.Regions = map[string]struct{}{}
		}
		if otherRegion != "" {
			existing.Regions[otherRegion] = struct{}{}
		}
		existing.Detail = detailText(existing.State, existing.RegionList())
	}
}

// detailText regenerates the human-readable detail from the current state
// and region set.
func detailText(state State, regions []string) string {
	joined := strings.Join(regions, ", ")
	switch state {
	case StateModified:
		return fmt.Sprintf("Differs from %s", joined)
	case StateMissing:
		return fmt.Sprintf("Not present in %s", joined)
	}
	return ""
}
