package service

import (
	"sync"
	"time"

	"aegis-hq/firewall/pkg/firewall"
)

// Counters tracks verdict totals for the running process.
type Counters struct {
	mu sync.Mutex

	since               time.Time
	total               int64
	allowed             int64
	blocked             int64
	humanReviews        int64
	evidenceRequired    int64
	hallucinationBlocks int64
	byVerdict           map[firewall.Verdict]int64
	byAction            map[firewall.Action]int64
}

// CounterSnapshot is a point-in-time copy of Counters with derived rates.
type CounterSnapshot struct {
	Since               time.Time        `json:"since"`
	Total               int64            `json:"total_requests"`
	Allowed             int64            `json:"allowed_requests"`
	Blocked             int64            `json:"blocked_requests"`
	HumanReviews        int64            `json:"human_reviews"`
	EvidenceRequired    int64            `json:"evidence_required"`
	HallucinationBlocks int64            `json:"hallucination_blocks"`
	ByVerdict           map[string]int64 `json:"by_verdict"`
	ByAction            map[string]int64 `json:"by_action"`

	AllowRate            float64 `json:"allow_rate"`
	BlockRate            float64 `json:"block_rate"`
	HumanReviewRate      float64 `json:"human_review_rate"`
	EvidenceRequiredRate float64 `json:"evidence_required_rate"`
	HallucinationRate    float64 `json:"hallucination_rate"`
}

// NewCounters returns zeroed counters starting at now.
func NewCounters(now time.Time) *Counters {
	c := &Counters{}
	c.reset(now)
	return c
}

func (c *Counters) reset(now time.Time) {
	c.since = now.UTC()
	c.total, c.allowed, c.blocked = 0, 0, 0
	c.humanReviews, c.evidenceRequired, c.hallucinationBlocks = 0, 0, 0
	c.byVerdict = make(map[firewall.Verdict]int64)
	c.byAction = make(map[firewall.Action]int64)
}

// Record counts one completed evaluation.
func (c *Counters) Record(action firewall.Action, verdict firewall.Verdict, hallucination bool) {
	c.mu.Lock()
	defer c.mu.Unlock()

	c.total++
	c.byVerdict[verdict]++
	c.byAction[action]++

	switch verdict {
	case firewall.VerdictAllow:
		c.allowed++
	case firewall.VerdictBlock:
		c.blocked++
		if hallucination {
			c.hallucinationBlocks++
		}
	case firewall.VerdictRequireHumanReview:
		c.humanReviews++
	case firewall.VerdictRequireEvidence:
		c.evidenceRequired++
	}
}

// Snapshot returns the current totals and rates.
func (c *Counters) Snapshot() CounterSnapshot {
	c.mu.Lock()
	defer c.mu.Unlock()

	s := CounterSnapshot{
		Since:               c.since,
		Total:               c.total,
		Allowed:             c.allowed,
		Blocked:             c.blocked,
		HumanReviews:        c.humanReviews,
		EvidenceRequired:    c.evidenceRequired,
		HallucinationBlocks: c.hallucinationBlocks,
		ByVerdict:           make(map[string]int64, len(c.byVerdict)),
		ByAction:            make(map[string]int64, len(c.byAction)),
	}
	for v, n := range c.byVerdict {
		s.ByVerdict[string(v)] = n
	}
	for a, n := range c.byAction {
		s.ByAction[string(a)] = n
	}
	if c.total > 0 {
		total := float64(c.total)
		s.AllowRate = float64(c.allowed) / total
		s.BlockRate = float64(c.blocked) / total
		s.HumanReviewRate = float64(c.humanReviews) / total
		s.EvidenceRequiredRate = float64(c.evidenceRequired) / total
		s.HallucinationRate = float64(c.hallucinationBlocks) / total
	}
	return s
}

// Reset zeroes every counter.
func (c *Counters) Reset(now time.Time) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.reset(now)
}
