package policy

import (
	"log/slog"
	"sync"
	"sync/atomic"
)

// Store holds the active policy configuration. Readers load an immutable
// snapshot without locking; writers are serialized and always install a new
// snapshot, never modify the current one.
type Store struct {
	current atomic.Pointer[Config]

	mu        sync.Mutex
	catalog   *Catalog
	bounds    ThresholdBounds
	tuned     map[Mode]Thresholds
	listeners []func(*Config)
	logger    *slog.Logger
}

// NewStore creates a store with the given catalog and initial mode. A nil
// catalog means the built-in catalog.
func NewStore(catalog *Catalog, mode Mode, bounds ThresholdBounds) (*Store, error) {
	if catalog == nil {
		catalog = BuiltinCatalog()
	}
	if err := catalog.Validate(bounds); err != nil {
		return nil, err
	}
	s := &Store{
		catalog: catalog,
		bounds:  bounds,
		tuned:   make(map[Mode]Thresholds),
		logger:  slog.Default().With("component", "policy.store"),
	}
	cfg, err := s.compose(mode)
	if err != nil {
		return nil, err
	}
	s.current.Store(cfg)
	return s, nil
}

// Snapshot returns the active configuration. The result is shared and must
// not be modified.
func (s *Store) Snapshot() *Config {
	return s.current.Load()
}

// Get returns a copy of the active configuration.
func (s *Store) Get() Config {
	return *s.current.Load().Clone()
}

// Bounds returns the threshold bounds the store enforces.
func (s *Store) Bounds() ThresholdBounds {
	return s.bounds
}

// SetMode replaces the active configuration with the named mode, including
// any learned thresholds for that mode. On error the active configuration is
// unchanged.
func (s *Store) SetMode(mode Mode) (*Config, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	cfg, err := s.compose(ParseMode(string(mode)))
	if err != nil {
		return nil, err
	}
	prev := s.current.Swap(cfg)
	s.logger.Info("Policy mode changed",
		"from", prev.Mode,
		"to", cfg.Mode,
		"version", cfg.Version,
	)
	s.notify(cfg)
	return cfg, nil
}

// ApplyThresholds records learned thresholds for a mode. When the mode is
// active a new snapshot is installed.
func (s *Store) ApplyThresholds(mode Mode, t Thresholds) (*Config, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	base, ok := s.catalog.Get(mode)
	if !ok {
		return nil, NewConfigurationErrorf(mode, "mode", "unknown policy mode %q", mode)
	}
	candidate := base.Clone()
	candidate.Thresholds = t
	candidate.Tuned = true
	candidate.seal()
	if err := candidate.validate(s.bounds); err != nil {
		return nil, err
	}

	s.tuned[mode] = t
	if s.current.Load().Mode != mode {
		return candidate, nil
	}
	s.current.Store(candidate)
	s.logger.Info("Policy thresholds adjusted",
		"mode", mode,
		"evidence_confidence", t.EvidenceConfidence,
		"risk_medium", t.RiskMedium,
		"risk_high", t.RiskHigh,
		"version", candidate.Version,
	)
	s.notify(candidate)
	return candidate, nil
}

// ResetThresholds discards learned thresholds for a mode.
func (s *Store) ResetThresholds(mode Mode) (*Config, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.catalog.Get(mode); !ok {
		return nil, NewConfigurationErrorf(mode, "mode", "unknown policy mode %q", mode)
	}
	delete(s.tuned, mode)
	cfg, err := s.compose(mode)
	if err != nil {
		return nil, err
	}
	if s.current.Load().Mode == mode {
		s.current.Store(cfg)
		s.notify(cfg)
	}
	return cfg, nil
}

// ReplaceCatalog installs a new catalog, typically from a reloaded policy
// pack. The active mode must still exist. Learned thresholds that no longer
// validate against the new definitions are dropped.
func (s *Store) ReplaceCatalog(catalog *Catalog) error {
	if err := catalog.Validate(s.bounds); err != nil {
		return err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	active := s.current.Load().Mode
	if _, ok := catalog.Get(active); !ok {
		return NewConfigurationErrorf(active, "mode", "active mode %q missing from new catalog", active)
	}

	prev := s.catalog
	s.catalog = catalog
	for mode := range s.tuned {
		if _, err := s.compose(mode); err != nil {
			s.logger.Warn("Dropping learned thresholds", "mode", mode, "error", err)
			delete(s.tuned, mode)
		}
	}
	cfg, err := s.compose(active)
	if err != nil {
		s.catalog = prev
		return err
	}
	s.current.Store(cfg)
	s.logger.Info("Policy catalog replaced",
		"modes", len(catalog.modes),
		"active", active,
		"version", cfg.Version,
	)
	s.notify(cfg)
	return nil
}

// Lookup returns the effective configuration of a mode without activating it.
func (s *Store) Lookup(mode Mode) (*Config, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.compose(ParseMode(string(mode)))
}

// Modes returns the effective configuration of every mode, sorted by name.
func (s *Store) Modes() []*Config {
	s.mu.Lock()
	defer s.mu.Unlock()

	out := make([]*Config, 0, len(s.catalog.modes))
	for _, m := range s.catalog.Modes() {
		if cfg, err := s.compose(m); err == nil {
			out = append(out, cfg)
		}
	}
	return out
}

// OnChange registers fn to be called with each newly installed snapshot.
// Callbacks run synchronously under the writer lock and must not call back
// into the store's write methods.
func (s *Store) OnChange(fn func(*Config)) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.listeners = append(s.listeners, fn)
}

func (s *Store) notify(cfg *Config) {
	for _, fn := range s.listeners {
		fn(cfg)
	}
}

// compose builds the effective configuration for a mode. Caller holds mu or
// is the constructor.
func (s *Store) compose(mode Mode) (*Config, error) {
	base, ok := s.catalog.Get(mode)
	if !ok {
		return nil, NewConfigurationErrorf(mode, "mode", "unknown policy mode %q", mode)
	}
	t, ok := s.tuned[mode]
	if !ok {
		return base, nil
	}
	cfg := base.Clone()
	cfg.Thresholds = t
	cfg.Tuned = true
	cfg.seal()
	if err := cfg.validate(s.bounds); err != nil {
		return nil, err
	}
	return cfg, nil
}
