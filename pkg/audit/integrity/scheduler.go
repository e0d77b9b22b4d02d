// Package integrity runs periodic audit chain verification and archive
// exports on cron schedules.
package integrity

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/robfig/cron/v3"

	"aegis-hq/firewall/pkg/audit"
	"aegis-hq/firewall/pkg/audit/export"
)

// Config configures the integrity scheduler.
type Config struct {
	// VerifySchedule is a standard cron expression for full chain
	// verification. Empty disables verification.
	// Default: "*/15 * * * *"
	VerifySchedule string

	// ArchiveSchedule is a standard cron expression for archive exports.
	// Empty disables archiving.
	ArchiveSchedule string

	// ArchiveDir receives JSONL archive segments.
	ArchiveDir string
}

// DefaultConfig returns the default integrity configuration.
func DefaultConfig() Config {
	return Config{VerifySchedule: "*/15 * * * *"}
}

// Validate checks the cron expressions.
func (c Config) Validate() error {
	for name, expr := range map[string]string{"verify_schedule": c.VerifySchedule, "archive_schedule": c.ArchiveSchedule} {
		if expr == "" {
			continue
		}
		if _, err := cron.ParseStandard(expr); err != nil {
			return fmt.Errorf("invalid cron schedule %s %q: %w", name, expr, err)
		}
	}
	if c.ArchiveSchedule != "" && c.ArchiveDir == "" {
		return fmt.Errorf("archive_dir is required when archive_schedule is set")
	}
	return nil
}

// Scheduler verifies and archives the audit chain on a schedule.
type Scheduler struct {
	storage audit.Storage
	config  Config
	cron    *cron.Cron
	logger  *slog.Logger

	// OnVerify is called after every verification run. Set before Start.
	OnVerify func(report *audit.VerifyReport, err error)

	mu           sync.Mutex
	running      bool
	lastReport   *audit.VerifyReport
	lastArchived int64
}

// NewScheduler creates a scheduler over storage.
func NewScheduler(storage audit.Storage, config Config) (*Scheduler, error) {
	if err := config.Validate(); err != nil {
		return nil, err
	}
	s := &Scheduler{
		storage: storage,
		config:  config,
		cron:    cron.New(),
		logger:  slog.Default().With("component", "audit.integrity"),
	}
	if config.ArchiveDir != "" {
		last, err := lastArchivedSequence(config.ArchiveDir)
		if err != nil {
			return nil, err
		}
		s.lastArchived = last
	}
	return s, nil
}

// Start schedules the configured jobs. With no schedules configured it does
// nothing. The scheduler stops when ctx is cancelled.
func (s *Scheduler) Start(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.config.VerifySchedule == "" && s.config.ArchiveSchedule == "" {
		s.logger.Info("Integrity schedules not configured, skipping scheduler")
		return nil
	}

	if s.config.VerifySchedule != "" {
		if _, err := s.cron.AddFunc(s.config.VerifySchedule, func() { s.runVerify(ctx) }); err != nil {
			return fmt.Errorf("failed to schedule verification: %w", err)
		}
	}
	if s.config.ArchiveSchedule != "" {
		if _, err := s.cron.AddFunc(s.config.ArchiveSchedule, func() { s.runArchive(ctx) }); err != nil {
			return fmt.Errorf("failed to schedule archiving: %w", err)
		}
	}

	s.cron.Start()
	s.running = true
	s.logger.Info("Integrity scheduler started",
		"verify_schedule", s.config.VerifySchedule,
		"archive_schedule", s.config.ArchiveSchedule,
	)

	go func() {
		<-ctx.Done()
		s.Stop()
	}()
	return nil
}

// Stop stops the scheduler and waits for any running job to complete.
func (s *Scheduler) Stop() {
	s.mu.Lock()
	if !s.running {
		s.mu.Unlock()
		return
	}
	s.running = false
	s.mu.Unlock()

	// Running jobs take mu, so wait without holding it.
	<-s.cron.Stop().Done()
	s.logger.Info("Integrity scheduler stopped")
}

// IsRunning returns true if the scheduler is running.
func (s *Scheduler) IsRunning() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.running
}

// NextRun returns the earliest next scheduled job time.
func (s *Scheduler) NextRun() *time.Time {
	entries := s.cron.Entries()
	if len(entries) == 0 {
		return nil
	}
	next := entries[0].Next
	for _, e := range entries[1:] {
		if e.Next.Before(next) {
			next = e.Next
		}
	}
	return &next
}

// LastReport returns the most recent verification report, or nil.
func (s *Scheduler) LastReport() *audit.VerifyReport {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.lastReport
}

// VerifyNow runs a verification immediately.
func (s *Scheduler) VerifyNow(ctx context.Context) (*audit.VerifyReport, error) {
	report, err := audit.Verify(ctx, s.storage)
	if err == nil {
		s.mu.Lock()
		s.lastReport = report
		s.mu.Unlock()
	}
	if s.OnVerify != nil {
		s.OnVerify(report, err)
	}
	return report, err
}

func (s *Scheduler) runVerify(ctx context.Context) {
	report, err := s.VerifyNow(ctx)
	switch {
	case err != nil:
		s.logger.Error("Scheduled chain verification failed", "error", err)
	case !report.Valid:
		s.logger.Error("Audit chain broken",
			"broken_at", report.BrokenAt,
			"reason", report.Reason,
			"checked", report.Checked,
		)
	default:
		s.logger.Info("Audit chain verified", "checked", report.Checked)
	}
}

// ArchiveNow writes every record after the last archived sequence to a new
// JSONL segment and returns its path, or "" when there is nothing new.
func (s *Scheduler) ArchiveNow(ctx context.Context) (string, error) {
	if s.config.ArchiveDir == "" {
		return "", fmt.Errorf("archive_dir not configured")
	}
	s.mu.Lock()
	after := s.lastArchived
	s.mu.Unlock()

	records, err := s.storage.Query(ctx, &audit.Query{AfterSequence: after, Order: "asc"})
	if err != nil {
		return "", err
	}
	if len(records) == 0 {
		return "", nil
	}

	if err := os.MkdirAll(s.config.ArchiveDir, 0o750); err != nil {
		return "", err
	}
	first, last := records[0].Sequence, records[len(records)-1].Sequence
	path := filepath.Join(s.config.ArchiveDir, segmentName(first, last))
	tmp := path + ".tmp"

	f, err := os.OpenFile(tmp, os.O_CREATE|os.O_WRONLY|os.O_TRUNC, 0o640)
	if err != nil {
		return "", err
	}
	if err := export.NewJSONLExporter().Export(ctx, records, f); err != nil {
		f.Close()
		os.Remove(tmp)
		return "", err
	}
	if err := f.Close(); err != nil {
		os.Remove(tmp)
		return "", err
	}
	if err := os.Rename(tmp, path); err != nil {
		return "", err
	}

	s.mu.Lock()
	s.lastArchived = last
	s.mu.Unlock()
	return path, nil
}

func (s *Scheduler) runArchive(ctx context.Context) {
	path, err := s.ArchiveNow(ctx)
	if err != nil {
		s.logger.Error("Scheduled audit archive failed", "error", err)
		return
	}
	if path == "" {
		s.logger.Debug("No new audit records to archive")
		return
	}
	s.logger.Info("Audit archive written", "path", path)
}

func segmentName(first, last int64) string {
	return fmt.Sprintf("audit-%012d-%012d.jsonl", first, last)
}

func lastArchivedSequence(dir string) (int64, error) {
	entries, err := os.ReadDir(dir)
	if os.IsNotExist(err) {
		return 0, nil
	}
	if err != nil {
		return 0, err
	}
	var max int64
	for _, e := range entries {
		name := e.Name()
		if !strings.HasPrefix(name, "audit-") || !strings.HasSuffix(name, ".jsonl") {
			continue
		}
		parts := strings.Split(strings.TrimSuffix(strings.TrimPrefix(name, "audit-"), ".jsonl"), "-")
		if len(parts) != 2 {
			continue
		}
		last, err := strconv.ParseInt(parts[1], 10, 64)
		if err != nil {
			continue
		}
		if last > max {
			max = last
		}
	}
	return max, nil
}
