package claims

import (
	"fmt"
	"regexp"
	"strings"

	"aegis-hq/firewall/pkg/firewall"
)

// Config controls claim extraction.
type Config struct {
	// MinWords is the minimum number of words for a fragment to count as a claim.
	// Default: 3
	MinWords int

	// HedgeTerms are extra words or phrases that mark a claim as speculative.
	HedgeTerms []string

	// OpinionTerms are extra words or phrases that mark a claim as an opinion.
	OpinionTerms []string

	// FactualPatterns are extra regular expressions that mark a claim as factual.
	FactualPatterns []string
}

// DefaultConfig returns the default extraction configuration.
func DefaultConfig() *Config {
	return &Config{
		MinWords: 3,
	}
}

var defaultHedges = []string{
	"might", "could", "would", "possibly", "perhaps", "probably",
	"likely", "unlikely", "maybe", "seems", "seem", "appears", "appear",
	"potentially", "presumably", "expected to", "forecast", "predict",
	"predicted", "chance", "odds", "suggests", "speculate", "uncertain",
}

var defaultOpinions = []string{
	"i think", "i believe", "i feel", "in my opinion", "in my view",
	"personally", "should", "ought to", "best", "worst", "better", "worse",
	"terrible", "awful", "amazing", "beautiful", "ugly", "elegant",
	"good idea", "bad idea", "recommend", "prefer", "favorite", "overrated",
	"underrated", "love", "hate",
}

var defaultFactual = []string{
	`\b(?:was|were|is|are|has|have|had)\s+(?:been\s+)?(?:founded|created|established|invented|discovered|made|built|born|released|launched|located|written)\b`,
	`\b(?:in|on|at|during|since)\s+\d{4}\b`,
	`\b(?:founded|created|established|invented|discovered|born)\s+(?:in|on|at|by)\b`,
	`\b(?:makes|produces|manufactures|sells|owns|employs|contains)\b`,
	`\b(?:according to|based on|as stated in|as reported by)\b`,
	`\b(?:is|are|was|were)\b`,
	`\d`,
}

// modalMay matches "may" as a modal verb. Capitalized mid-sentence "May" is
// the month, as is "May" followed by a day or year.
var modalMay = regexp.MustCompile(`\bmay\b|^May\b`)

var monthDate = regexp.MustCompile(`^\s+\d`)

// datedClaim marks a creation or release event with a year. It is factual
// even when the sentence also carries evaluative language.
var datedClaim = regexp.MustCompile(`(?i)\b(?:founded|created|established|invented|discovered|born|released|launched|built|written|published)\b.*\b\d{4}\b`)

// strongFactual marks the factual patterns that raise certainty.
var strongFactual = regexp.MustCompile(`(?i)\d|\b(?:founded|created|established|invented|discovered|born|according to)\b`)

var sentenceSplit = regexp.MustCompile(`[.!?]+(?:\s+|$)|\n+`)

// Extractor splits output text into classified claims. It is safe for
// concurrent use; all state is compiled once at construction.
type Extractor struct {
	minWords int
	hedge    *regexp.Regexp
	opinion  *regexp.Regexp
	factual  []*regexp.Regexp
}

// NewExtractor compiles an extractor from the given configuration.
func NewExtractor(cfg *Config) (*Extractor, error) {
	if cfg == nil {
		cfg = DefaultConfig()
	}
	minWords := cfg.MinWords
	if minWords <= 0 {
		minWords = 3
	}

	e := &Extractor{
		minWords: minWords,
		hedge:    termRegexp(append(append([]string{}, defaultHedges...), cfg.HedgeTerms...)),
		opinion:  termRegexp(append(append([]string{}, defaultOpinions...), cfg.OpinionTerms...)),
	}

	for _, p := range append(append([]string{}, defaultFactual...), cfg.FactualPatterns...) {
		re, err := regexp.Compile(`(?i)` + p)
		if err != nil {
			return nil, fmt.Errorf("invalid factual pattern %q: %w", p, err)
		}
		e.factual = append(e.factual, re)
	}

	return e, nil
}

// MustNewExtractor is like NewExtractor but panics on an invalid pattern.
func MustNewExtractor(cfg *Config) *Extractor {
	e, err := NewExtractor(cfg)
	if err != nil {
		panic(err)
	}
	return e
}

// termRegexp builds one case-insensitive alternation with word boundaries.
func termRegexp(terms []string) *regexp.Regexp {
	quoted := make([]string, 0, len(terms))
	for _, t := range terms {
		t = strings.TrimSpace(t)
		if t == "" {
			continue
		}
		quoted = append(quoted, regexp.QuoteMeta(strings.ToLower(t)))
	}
	return regexp.MustCompile(`(?i)\b(?:` + strings.Join(quoted, "|") + `)\b`)
}

// Extract returns the claims found in text, in order of appearance.
// Empty or claim-free text yields an empty slice.
func (e *Extractor) Extract(text string) []firewall.Claim {
	claims := make([]firewall.Claim, 0)
	for _, fragment := range sentenceSplit.Split(text, -1) {
		fragment = strings.TrimSpace(fragment)
		if len(strings.Fields(fragment)) < e.minWords {
			continue
		}
		claims = append(claims, e.Classify(fragment))
	}
	return claims
}

// Classify classifies a single sentence.
func (e *Extractor) Classify(sentence string) firewall.Claim {
	if hedges := len(e.hedge.FindAllString(sentence, -1)) + countModalMay(sentence); hedges > 0 {
		certainty := 0.5 - 0.1*float64(hedges-1)
		if certainty < 0.1 {
			certainty = 0.1
		}
		return firewall.Claim{Text: sentence, Kind: firewall.ClaimSpeculative, Certainty: round2(certainty)}
	}

	if datedClaim.MatchString(sentence) {
		return firewall.Claim{Text: sentence, Kind: firewall.ClaimFactual, Certainty: 0.9}
	}

	if e.opinion.MatchString(sentence) {
		return firewall.Claim{Text: sentence, Kind: firewall.ClaimOpinion, Certainty: 0.5}
	}

	for _, re := range e.factual {
		if re.MatchString(sentence) {
			certainty := 0.75
			if strongFactual.MatchString(sentence) {
				certainty = 0.9
			}
			return firewall.Claim{Text: sentence, Kind: firewall.ClaimFactual, Certainty: certainty}
		}
	}

	// Non-assertive text that is neither hedged nor evaluative cannot be
	// verified either way.
	return firewall.Claim{Text: sentence, Kind: firewall.ClaimOpinion, Certainty: 0.3}
}

func countModalMay(sentence string) int {
	n := 0
	for _, loc := range modalMay.FindAllStringIndex(sentence, -1) {
		if !monthDate.MatchString(sentence[loc[1]:]) {
			n++
		}
	}
	return n
}

// CountKind returns the number of claims of the given kind.
func CountKind(claims []firewall.Claim, kind firewall.ClaimKind) int {
	n := 0
	for _, c := range claims {
		if c.Kind == kind {
			n++
		}
	}
	return n
}

func round2(f float64) float64 {
	return float64(int(f*100+0.5)) / 100
}
