package rules

import (
	"fmt"
	"regexp"
	"strings"

	"aegis-hq/firewall/pkg/firewall"
)

// Safety categories.
const (
	CategoryContradiction     = "contradiction"
	CategoryUnsafeInstruction = "unsafe_instruction"
	CategoryDisallowedContent = "disallowed_content"
	CategoryActionScoped      = "action_scoped"
)

const maxExcerpt = 80

// PatternConfig declares one pattern rule. Actions limits the rule to the
// given intended actions; empty means every action.
type PatternConfig struct {
	Name     string   `yaml:"name" json:"name"`
	Category string   `yaml:"category" json:"category"`
	Pattern  string   `yaml:"pattern" json:"pattern"`
	Actions  []string `yaml:"actions,omitempty" json:"actions,omitempty"`
}

// SafetyConfig configures the safety rule set.
type SafetyConfig struct {
	// DisableBuiltin drops the built-in pattern rules, keeping only Custom.
	DisableBuiltin bool

	// DetectContradictions enables the negation contradiction check.
	// Default: true
	DetectContradictions bool

	// Custom are additional pattern rules, matched case-insensitively.
	Custom []PatternConfig
}

// DefaultSafetyConfig returns the default safety configuration.
func DefaultSafetyConfig() SafetyConfig {
	return SafetyConfig{DetectContradictions: true}
}

// BuiltinPatterns returns the built-in pattern rules.
func BuiltinPatterns() []PatternConfig {
	return []PatternConfig{
		// Unsafe instructions.
		{Name: "safety_bypass", Category: CategoryUnsafeInstruction,
			Pattern: `\b(?:bypass|disable|circumvent|turn\s+off|override)\s+(?:the\s+|all\s+|any\s+)?(?:safety|security|firewall|guardrails?|content\s+filters?|authentication|audit\s+log(?:ging)?)\b`},
		{Name: "prompt_override", Category: CategoryUnsafeInstruction,
			Pattern: `\bignore\s+(?:all\s+)?(?:previous|prior|above)\s+(?:instructions|rules)\b`},
		{Name: "destructive_shell", Category: CategoryUnsafeInstruction,
			Pattern: `\brm\s+-rf\b|\bmkfs(?:\.\w+)?\s|\bformat\s+[a-z]:`},
		{Name: "destructive_sql", Category: CategoryUnsafeInstruction,
			Pattern: `\b(?:drop|truncate)\s+(?:table|database|schema)\b|\bdelete\s+from\s+\w+\s*(?:;|$)`},
		{Name: "privilege_escalation", Category: CategoryUnsafeInstruction,
			Pattern: `\bsudo\s+\S+|\bchmod\s+777\b`},
		{Name: "credential_assignment", Category: CategoryUnsafeInstruction,
			Pattern: `\b(?:password|passwd|secret|api[_-]?key|token)\s*=\s*["']`},
		{Name: "script_injection", Category: CategoryUnsafeInstruction,
			Pattern: `<script[^>]*>`},
		{Name: "dynamic_evaluation", Category: CategoryUnsafeInstruction,
			Pattern: `\b(?:eval|exec)\s*\(`},

		// Disallowed content.
		{Name: "weapons_instructions", Category: CategoryDisallowedContent,
			Pattern: `\bhow\s+to\s+(?:make|build|synthesi[sz]e|assemble)\s+(?:a\s+|an\s+)?(?:bomb|explosives?|nerve\s+agent|bioweapon|chemical\s+weapon)\b`},
		{Name: "self_harm_instructions", Category: CategoryDisallowedContent,
			Pattern: `\b(?:ways?|how)\s+to\s+(?:kill|harm|hurt)\s+(?:yourself|myself|oneself)\b`},
		{Name: "malware_authoring", Category: CategoryDisallowedContent,
			Pattern: `\b(?:write|create|build|deploy)\s+(?:a\s+|some\s+)?(?:ransomware|keylogger|malware|botnet)\b`},

		// Action-scoped rules.
		{Name: "large_transfer", Category: CategoryActionScoped, Actions: []string{"trade"},
			Pattern: `\$\s*\d{6,}|\$\s*\d{1,3}(?:,\d{3}){2,}`},
		{Name: "transfer_instruction", Category: CategoryActionScoped, Actions: []string{"trade"},
			Pattern: `\b(?:transfer|send|move)\s+\$\d+`},
		{Name: "system_module_access", Category: CategoryActionScoped, Actions: []string{"execute_code"},
			Pattern: `\b(?:system|os|subprocess|shell)\s*\.`},
		{Name: "process_termination", Category: CategoryActionScoped, Actions: []string{"execute_code"},
			Pattern: `\b(?:kill|terminate|destroy)\s+(?:all\s+)?(?:process(?:es)?|instances?|servers?|containers?)\b`},
	}
}

type patternRule struct {
	name     string
	category string
	re       *regexp.Regexp
	actions  map[firewall.Action]struct{}
}

func (r patternRule) appliesTo(action firewall.Action) bool {
	if len(r.actions) == 0 {
		return true
	}
	_, ok := r.actions[action]
	return ok
}

// SafetyRules detects unsafe or contradictory content. It is independent of
// the policy mode and safe for concurrent use.
type SafetyRules struct {
	patterns       []patternRule
	contradictions bool
}

// NewSafetyRules compiles the configured rules.
func NewSafetyRules(cfg SafetyConfig) (*SafetyRules, error) {
	var patterns []PatternConfig
	if !cfg.DisableBuiltin {
		patterns = append(patterns, BuiltinPatterns()...)
	}
	patterns = append(patterns, cfg.Custom...)

	s := &SafetyRules{contradictions: cfg.DetectContradictions}
	seen := make(map[string]struct{}, len(patterns))
	for _, pc := range patterns {
		if pc.Name == "" {
			return nil, fmt.Errorf("safety rule with pattern %q has no name", pc.Pattern)
		}
		if _, dup := seen[pc.Name]; dup {
			return nil, fmt.Errorf("duplicate safety rule %q", pc.Name)
		}
		seen[pc.Name] = struct{}{}

		re, err := regexp.Compile(`(?i)` + pc.Pattern)
		if err != nil {
			return nil, fmt.Errorf("safety rule %q: invalid pattern: %w", pc.Name, err)
		}
		rule := patternRule{name: pc.Name, category: pc.Category, re: re}
		if rule.category == "" {
			rule.category = CategoryUnsafeInstruction
		}
		if len(pc.Actions) > 0 {
			rule.actions = make(map[firewall.Action]struct{}, len(pc.Actions))
			for _, a := range pc.Actions {
				rule.actions[firewall.NormalizeAction(a)] = struct{}{}
			}
		}
		s.patterns = append(s.patterns, rule)
	}
	return s, nil
}

// MustNewSafetyRules is like NewSafetyRules but panics on error.
func MustNewSafetyRules(cfg SafetyConfig) *SafetyRules {
	s, err := NewSafetyRules(cfg)
	if err != nil {
		panic(err)
	}
	return s
}

// Rules returns the names of the active pattern rules in match order.
func (s *SafetyRules) Rules() []string {
	out := make([]string, len(s.patterns))
	for i, p := range s.patterns {
		out[i] = p.name
	}
	return out
}

// Check runs every rule against the request. All matches are reported, in
// rule order, followed by any contradiction.
func (s *SafetyRules) Check(req *firewall.Request, claims []firewall.Claim) firewall.SafetyResult {
	var res firewall.SafetyResult

	for _, p := range s.patterns {
		if !p.appliesTo(req.Action) {
			continue
		}
		loc := p.re.FindStringIndex(req.OutputText)
		if loc == nil {
			continue
		}
		res.Matches = append(res.Matches, firewall.SafetyMatch{
			Rule:     p.name,
			Category: p.category,
			Excerpt:  excerpt(req.OutputText[loc[0]:loc[1]]),
		})
	}

	if s.contradictions {
		if a, b, ok := findContradiction(claims); ok {
			res.Matches = append(res.Matches, firewall.SafetyMatch{
				Rule:     "negation_contradiction",
				Category: CategoryContradiction,
				Excerpt:  excerpt(a + " / " + b),
			})
		}
	}

	res.Triggered = len(res.Matches) > 0
	return res
}

var (
	wordRE      = regexp.MustCompile(`[a-z0-9$%']+`)
	negationSet = map[string]struct{}{"not": {}, "no": {}, "never": {}}
	contraction = strings.NewReplacer(
		"can't", "can not", "won't", "will not", "n't", " not",
	)
)

// findContradiction returns the first pair of non-opinion claims that are
// identical except for negation.
func findContradiction(claims []firewall.Claim) (string, string, bool) {
	type seenClaim struct {
		text    string
		negated bool
	}
	seen := make(map[string]seenClaim)
	for _, c := range claims {
		if c.Kind == firewall.ClaimOpinion {
			continue
		}
		key, negated := normalizeNegation(c.Text)
		if key == "" {
			continue
		}
		if prev, ok := seen[key]; ok {
			if prev.negated != negated {
				return prev.text, c.Text, true
			}
			continue
		}
		seen[key] = seenClaim{text: c.Text, negated: negated}
	}
	return "", "", false
}

// normalizeNegation strips negation words and reports whether an odd number
// of them was present.
func normalizeNegation(text string) (string, bool) {
	words := wordRE.FindAllString(contraction.Replace(strings.ToLower(text)), -1)
	kept := words[:0]
	count := 0
	for _, w := range words {
		if _, neg := negationSet[w]; neg {
			count++
			continue
		}
		kept = append(kept, w)
	}
	return strings.Join(kept, " "), count%2 == 1
}

func excerpt(s string) string {
	s = strings.TrimSpace(s)
	if len(s) <= maxExcerpt {
		return s
	}
	return s[:maxExcerpt] + "..."
}
