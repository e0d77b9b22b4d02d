package learning

import (
	"context"
	"fmt"
	"log/slog"
	"sort"
	"sync"
	"sync/atomic"
	"time"

	"github.com/golang/groupcache/lru"
	"golang.org/x/time/rate"

	"aegis-hq/firewall/pkg/firewall"
	"aegis-hq/firewall/pkg/policy"
)

// Config configures the threshold learner.
type Config struct {
	// Enabled turns threshold adjustment on. Outcomes are still recorded
	// when disabled.
	// Default: true
	Enabled bool

	// Sensitivity is the false positive rate above which a check relaxes.
	// Default: 0.2
	Sensitivity float64

	// FalseNegativeSensitivity is the false negative rate above which a
	// check tightens.
	// Default: 0.1
	FalseNegativeSensitivity float64

	// MinFalsePositives is the sample floor before relaxing.
	// Default: 10
	MinFalsePositives int

	// MinFalseNegatives is the sample floor before tightening.
	// Default: 5
	MinFalseNegatives int

	// Step is the size of one threshold move.
	// Default: 0.05
	Step float64

	// AdjustmentInterval is the minimum spacing between adjustments.
	// Default: 1 minute
	AdjustmentInterval time.Duration

	// TrackedEvaluations bounds how many evaluations are remembered for
	// outcome matching.
	// Default: 10000
	TrackedEvaluations int

	// QueueSize is the outcome queue capacity.
	// Default: 1024
	QueueSize int

	// HistorySize is how many recent adjustments Stats reports.
	// Default: 20
	HistorySize int
}

// DefaultConfig returns the default learner configuration.
func DefaultConfig() Config {
	return Config{
		Enabled:                  true,
		Sensitivity:              0.2,
		FalseNegativeSensitivity: 0.1,
		MinFalsePositives:        10,
		MinFalseNegatives:        5,
		Step:                     0.05,
		AdjustmentInterval:       time.Minute,
		TrackedEvaluations:       10000,
		QueueSize:                1024,
		HistorySize:              20,
	}
}

// Validate checks the configuration.
func (c Config) Validate() error {
	if c.Sensitivity < 0 || c.Sensitivity > 1 {
		return fmt.Errorf("sensitivity must be within [0,1], got %v", c.Sensitivity)
	}
	if c.FalseNegativeSensitivity < 0 || c.FalseNegativeSensitivity > 1 {
		return fmt.Errorf("false_negative_sensitivity must be within [0,1], got %v", c.FalseNegativeSensitivity)
	}
	if c.Step <= 0 || c.Step > 0.5 {
		return fmt.Errorf("step must be within (0,0.5], got %v", c.Step)
	}
	if c.MinFalsePositives < 1 || c.MinFalseNegatives < 1 {
		return fmt.Errorf("min_false_positives and min_false_negatives must be at least 1")
	}
	if c.AdjustmentInterval < 0 {
		return fmt.Errorf("adjustment_interval must be non-negative")
	}
	return nil
}

func (c *Config) applyDefaults() {
	d := DefaultConfig()
	if c.Step == 0 {
		c.Step = d.Step
	}
	if c.MinFalsePositives == 0 {
		c.MinFalsePositives = d.MinFalsePositives
	}
	if c.MinFalseNegatives == 0 {
		c.MinFalseNegatives = d.MinFalseNegatives
	}
	if c.TrackedEvaluations <= 0 {
		c.TrackedEvaluations = d.TrackedEvaluations
	}
	if c.QueueSize <= 0 {
		c.QueueSize = d.QueueSize
	}
	if c.HistorySize <= 0 {
		c.HistorySize = d.HistorySize
	}
}

type counterKey struct {
	mode  policy.Mode
	check Check
}

type counter struct {
	reports int
	fp      int
	fn      int
}

// Learner adjusts policy thresholds from human outcome reports. Observe is
// called on the evaluation path and only records a small entry; all
// processing happens on a single worker goroutine.
type Learner struct {
	config  Config
	store   *policy.Store
	persist Store
	limiter *rate.Limiter
	logger  *slog.Logger

	// OnAdjust is called after each installed adjustment. Set before Start.
	OnAdjust func(Adjustment)
	// OnOutcome is called after each processed outcome. Set before Start.
	OnOutcome func(OutcomeRecord)

	mu       sync.Mutex
	tracked  *lru.Cache
	counters map[counterKey]*counter
	history  []Adjustment
	stats    Stats

	// sendMu guards queue against sends after close.
	sendMu    sync.RWMutex
	closed    bool
	queue     chan Outcome
	done      chan struct{}
	startOnce sync.Once
	started   atomic.Bool

	now func() time.Time
}

// New creates a learner that installs thresholds into store and persists
// outcomes and adjustments to persist (nil keeps them in memory only).
func New(config Config, store *policy.Store, persist Store) (*Learner, error) {
	config.applyDefaults()
	if err := config.Validate(); err != nil {
		return nil, err
	}
	if persist == nil {
		persist = NewMemoryStore()
	}

	limit := rate.Inf
	if config.AdjustmentInterval > 0 {
		limit = rate.Every(config.AdjustmentInterval)
	}

	return &Learner{
		config:   config,
		store:    store,
		persist:  persist,
		limiter:  rate.NewLimiter(limit, 1),
		logger:   slog.Default().With("component", "learning.learner"),
		tracked:  lru.New(config.TrackedEvaluations),
		counters: make(map[counterKey]*counter),
		queue:    make(chan Outcome, config.QueueSize),
		done:     make(chan struct{}),
		now:      time.Now,
	}, nil
}

// Start launches the worker. It stops when ctx is cancelled or Close is
// called.
func (l *Learner) Start(ctx context.Context) {
	l.startOnce.Do(func() {
		l.started.Store(true)
		go l.run(ctx)
	})
}

// Restore re-applies the most recent persisted adjustment of every mode to
// the policy store.
func (l *Learner) Restore(ctx context.Context) error {
	adjustments, err := l.persist.Adjustments(ctx, 0)
	if err != nil {
		return err
	}
	latest := make(map[policy.Mode]Adjustment)
	for _, a := range adjustments {
		if prev, ok := latest[a.Mode]; !ok || !a.Timestamp.Before(prev.Timestamp) {
			latest[a.Mode] = a
		}
	}
	for mode, a := range latest {
		if a.Direction == DirectionReset {
			continue
		}
		if _, err := l.store.ApplyThresholds(mode, a.New); err != nil {
			l.logger.Warn("Skipping stored thresholds", "mode", mode, "error", err)
			continue
		}
		l.logger.Info("Restored learned thresholds", "mode", mode)
	}

	l.mu.Lock()
	l.history = tail(adjustments, l.config.HistorySize)
	l.stats.AdjustmentCount = int64(len(adjustments))
	l.mu.Unlock()
	return nil
}

// Observe remembers a completed evaluation for later outcome matching.
func (l *Learner) Observe(evaluationID string, result *firewall.VerdictResult) {
	t := tracked{
		mode:         policy.ParseMode(result.Details.Mode),
		verdict:      result.Verdict,
		rule:         result.Details.DecisiveRule,
		factual:      result.Details.FactualClaimCount,
		validSources: result.Details.Evidence.ValidSources,
	}
	l.mu.Lock()
	l.tracked.Add(evaluationID, t)
	l.mu.Unlock()
}

// Report validates an outcome and queues it for processing. It blocks only
// while the queue is full.
func (l *Learner) Report(ctx context.Context, o Outcome) error {
	if o.EvaluationID == "" {
		return firewall.NewValidationError("evaluation_id", o.EvaluationID, "evaluation_id is required")
	}
	if _, ok := ParseDecision(o.HumanDecision); !ok {
		return firewall.NewValidationError("human_decision", o.HumanDecision, "must be allow or block")
	}

	l.mu.Lock()
	_, known := l.tracked.Get(o.EvaluationID)
	l.mu.Unlock()

	if !known {
		if o.OriginalVerdict == "" || o.Mode == "" {
			return fmt.Errorf("%w: %s", ErrUnknownEvaluation, o.EvaluationID)
		}
		if _, ok := firewall.ParseVerdict(string(o.OriginalVerdict)); !ok {
			return firewall.NewValidationError("original_verdict", o.OriginalVerdict, "unknown verdict")
		}
		if _, err := l.store.Lookup(policy.ParseMode(o.Mode)); err != nil {
			return firewall.NewValidationError("mode", o.Mode, "unknown policy mode")
		}
	}

	l.sendMu.RLock()
	defer l.sendMu.RUnlock()
	if l.closed {
		return ErrLearnerClosed
	}
	select {
	case l.queue <- o:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// Close stops the worker after the queued outcomes are processed and closes
// the persistence store.
func (l *Learner) Close() error {
	l.sendMu.Lock()
	if l.closed {
		l.sendMu.Unlock()
		return nil
	}
	l.closed = true
	close(l.queue)
	l.sendMu.Unlock()

	// Prevent a later Start.
	l.startOnce.Do(func() {})
	if l.started.Load() {
		<-l.done
	}
	return l.persist.Close()
}

func (l *Learner) run(ctx context.Context) {
	defer close(l.done)
	for {
		select {
		case <-ctx.Done():
			return
		case o, ok := <-l.queue:
			if !ok {
				return
			}
			l.process(ctx, o)
		}
	}
}

// Process handles one outcome synchronously. The worker calls it for every
// queued report; it is exported for tools that replay outcomes.
func (l *Learner) Process(ctx context.Context, o Outcome) (*OutcomeRecord, *Adjustment, error) {
	decision, ok := ParseDecision(o.HumanDecision)
	if !ok {
		return nil, nil, firewall.NewValidationError("human_decision", o.HumanDecision, "must be allow or block")
	}

	l.mu.Lock()
	v, known := l.tracked.Get(o.EvaluationID)
	l.mu.Unlock()

	var t tracked
	if known {
		t = v.(tracked)
	} else {
		if o.OriginalVerdict == "" || o.Mode == "" {
			return nil, nil, fmt.Errorf("%w: %s", ErrUnknownEvaluation, o.EvaluationID)
		}
		t = tracked{mode: policy.ParseMode(o.Mode), verdict: o.OriginalVerdict, rule: o.DecisiveRule}
	}

	rec := OutcomeRecord{
		EvaluationID:    o.EvaluationID,
		Mode:            t.mode,
		OriginalVerdict: t.verdict,
		DecisiveRule:    t.rule,
		HumanDecision:   decision,
		Check:           attribute(t),
		Classification:  Classify(t.verdict, decision),
		Timestamp:       l.now().UTC(),
	}
	if err := l.persist.RecordOutcome(ctx, rec); err != nil {
		l.logger.Error("Failed to persist outcome", "evaluation_id", rec.EvaluationID, "error", err)
	}

	adj := l.count(rec)
	if adj != nil {
		if err := l.persist.RecordAdjustment(ctx, *adj); err != nil {
			l.logger.Error("Failed to persist adjustment", "mode", adj.Mode, "error", err)
		}
		if l.OnAdjust != nil {
			l.OnAdjust(*adj)
		}
	}
	if l.OnOutcome != nil {
		l.OnOutcome(rec)
	}
	return &rec, adj, nil
}

func (l *Learner) process(ctx context.Context, o Outcome) {
	if _, _, err := l.Process(ctx, o); err != nil {
		l.mu.Lock()
		l.stats.Dropped++
		l.mu.Unlock()
		l.logger.Warn("Outcome dropped", "evaluation_id", o.EvaluationID, "error", err)
	}
}

// count folds the outcome into the counters and installs an adjustment when
// the check crosses its sensitivity.
func (l *Learner) count(rec OutcomeRecord) *Adjustment {
	l.mu.Lock()
	defer l.mu.Unlock()

	l.stats.Reports++
	switch rec.Classification {
	case FalsePositive:
		l.stats.FalsePositives++
	case FalseNegative:
		l.stats.FalseNegatives++
	default:
		l.stats.Confirmed++
	}

	key := counterKey{mode: rec.Mode, check: rec.Check}
	c := l.counters[key]
	if c == nil {
		c = &counter{}
		l.counters[key] = c
	}
	c.reports++
	switch rec.Classification {
	case FalsePositive:
		c.fp++
	case FalseNegative:
		c.fn++
	}

	if !l.config.Enabled || !rec.Check.Tunable() {
		return nil
	}

	var delta float64
	var direction, reason string
	switch {
	case c.fp >= l.config.MinFalsePositives && rate01(c.fp, c.reports) > l.config.Sensitivity:
		delta, direction = l.config.Step, DirectionRelax
		reason = fmt.Sprintf("false positive rate %.2f over %d reports exceeds %.2f",
			rate01(c.fp, c.reports), c.reports, l.config.Sensitivity)
	case c.fn >= l.config.MinFalseNegatives && rate01(c.fn, c.reports) > l.config.FalseNegativeSensitivity:
		delta, direction = -l.config.Step, DirectionTighten
		reason = fmt.Sprintf("false negative rate %.2f over %d reports exceeds %.2f",
			rate01(c.fn, c.reports), c.reports, l.config.FalseNegativeSensitivity)
	default:
		return nil
	}

	current, err := l.store.Lookup(rec.Mode)
	if err != nil {
		l.logger.Warn("Cannot adjust unknown mode", "mode", rec.Mode, "error", err)
		return nil
	}
	next, ok := step(current.Thresholds, rec.Check, delta, l.store.Bounds())
	if !ok {
		l.logger.Debug("Threshold at bound, no adjustment", "mode", rec.Mode, "check", rec.Check, "direction", direction)
		return nil
	}
	if !l.limiter.AllowN(l.now(), 1) {
		l.stats.RateLimited++
		l.logger.Debug("Threshold adjustment rate limited", "mode", rec.Mode, "check", rec.Check)
		return nil
	}
	if _, err := l.store.ApplyThresholds(rec.Mode, next); err != nil {
		l.logger.Error("Threshold adjustment rejected", "mode", rec.Mode, "check", rec.Check, "error", err)
		return nil
	}

	delete(l.counters, key)
	adj := Adjustment{
		Mode:      rec.Mode,
		Check:     rec.Check,
		Direction: direction,
		Old:       current.Thresholds,
		New:       next,
		Reason:    reason,
		Timestamp: l.now().UTC(),
	}
	l.history = tail(append(l.history, adj), l.config.HistorySize)
	l.stats.AdjustmentCount++
	l.logger.Info("Threshold adjusted",
		"mode", adj.Mode,
		"check", adj.Check,
		"direction", direction,
		"reason", reason,
	)
	return &adj
}

// ResetThresholds discards the learned thresholds of a mode and its pending
// outcome counters. The reset is persisted so that Restore does not bring
// the old thresholds back.
func (l *Learner) ResetThresholds(ctx context.Context, mode policy.Mode) (*policy.Config, error) {
	l.mu.Lock()
	before, err := l.store.Lookup(mode)
	if err != nil {
		l.mu.Unlock()
		return nil, err
	}
	cfg, err := l.store.ResetThresholds(before.Mode)
	if err != nil {
		l.mu.Unlock()
		return nil, err
	}
	for k := range l.counters {
		if k.mode == cfg.Mode {
			delete(l.counters, k)
		}
	}
	adj := Adjustment{
		Mode:      cfg.Mode,
		Direction: DirectionReset,
		Old:       before.Thresholds,
		New:       cfg.Thresholds,
		Reason:    "learned thresholds discarded",
		Timestamp: l.now().UTC(),
	}
	l.history = tail(append(l.history, adj), l.config.HistorySize)
	l.stats.AdjustmentCount++
	l.mu.Unlock()

	l.logger.Info("Learned thresholds reset", "mode", cfg.Mode, "tuned_before", before.Tuned)
	if err := l.persist.RecordAdjustment(ctx, adj); err != nil {
		return cfg, err
	}
	if l.OnAdjust != nil {
		l.OnAdjust(adj)
	}
	return cfg, nil
}

// Stats returns a snapshot of learner state.
func (l *Learner) Stats() Stats {
	active := l.store.Snapshot()

	l.mu.Lock()
	defer l.mu.Unlock()

	out := l.stats
	out.Enabled = l.config.Enabled
	out.Tracked = l.tracked.Len()
	out.ActiveMode = active.Mode
	out.Thresholds = active.Thresholds
	out.Tuned = active.Tuned
	out.Adjustments = append([]Adjustment(nil), l.history...)
	out.Checks = make([]CheckStats, 0, len(l.counters))
	for k, c := range l.counters {
		out.Checks = append(out.Checks, CheckStats{
			Mode:              k.mode,
			Check:             k.check,
			Reports:           c.reports,
			FalsePositives:    c.fp,
			FalseNegatives:    c.fn,
			FalsePositiveRate: rate01(c.fp, c.reports),
			FalseNegativeRate: rate01(c.fn, c.reports),
			Tunable:           k.check.Tunable(),
		})
	}
	sort.Slice(out.Checks, func(i, j int) bool {
		if out.Checks[i].Mode != out.Checks[j].Mode {
			return out.Checks[i].Mode < out.Checks[j].Mode
		}
		return out.Checks[i].Check < out.Checks[j].Check
	})
	return out
}

func rate01(n, total int) float64 {
	if total == 0 {
		return 0
	}
	return float64(n) / float64(total)
}

func tail(a []Adjustment, n int) []Adjustment {
	if len(a) <= n {
		return a
	}
	return append([]Adjustment(nil), a[len(a)-n:]...)
}
