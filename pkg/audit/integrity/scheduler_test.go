package integrity

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"testing"
	"time"

	"aegis-hq/firewall/pkg/audit"
	"aegis-hq/firewall/pkg/audit/export"
	"aegis-hq/firewall/pkg/audit/storage"
	"aegis-hq/firewall/pkg/firewall"
)

func fill(t *testing.T, s audit.Storage, from, to int) {
	t.Helper()
	ctx := context.Background()
	for i := from; i <= to; i++ {
		last, _ := s.Last(ctx)
		prevSeq, prevHash := int64(0), audit.GenesisHash
		if last != nil {
			prevSeq, prevHash = last.Sequence, last.Hash
		}
		r := &audit.Record{
			EvaluationID: fmt.Sprintf("eval-%d", i),
			Timestamp:    time.Date(2026, 5, 1, 0, 0, i, 0, time.UTC),
			Mode:         "GENERAL_AI",
			Action:       "answer",
			Result:       firewall.VerdictResult{Verdict: firewall.VerdictAllow, FailedChecks: []string{}},
		}
		if err := audit.Seal(r, prevSeq, prevHash); err != nil {
			t.Fatal(err)
		}
		if err := s.Append(ctx, r); err != nil {
			t.Fatal(err)
		}
	}
}

func TestScheduler_Start(t *testing.T) {
	tests := []struct {
		name        string
		config      Config
		wantRunning bool
		wantError   bool
	}{
		{"verify only", Config{VerifySchedule: "*/15 * * * *"}, true, false},
		{"archive", Config{ArchiveSchedule: "0 3 * * *", ArchiveDir: "archive"}, true, false},
		{"nothing scheduled", Config{}, false, false},
		{"invalid cron", Config{VerifySchedule: "invalid cron"}, false, true},
		{"archive without dir", Config{ArchiveSchedule: "0 3 * * *"}, false, true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := tt.config
			if cfg.ArchiveDir != "" {
				cfg.ArchiveDir = filepath.Join(t.TempDir(), cfg.ArchiveDir)
			}
			s, err := NewScheduler(storage.NewMemoryStorage(), cfg)
			if tt.wantError {
				if err == nil {
					t.Fatal("NewScheduler() succeeded, want error")
				}
				return
			}
			if err != nil {
				t.Fatalf("NewScheduler() failed: %v", err)
			}

			ctx, cancel := context.WithCancel(context.Background())
			defer cancel()
			if err := s.Start(ctx); err != nil {
				t.Fatalf("Start() failed: %v", err)
			}
			if s.IsRunning() != tt.wantRunning {
				t.Errorf("IsRunning() = %v, want %v", s.IsRunning(), tt.wantRunning)
			}
			if tt.wantRunning && s.NextRun() == nil {
				t.Error("NextRun() = nil")
			}
			s.Stop()
			if s.IsRunning() {
				t.Error("still running after Stop()")
			}
		})
	}
}

func TestScheduler_VerifyNow(t *testing.T) {
	store := storage.NewMemoryStorage()
	fill(t, store, 1, 5)

	s, err := NewScheduler(store, DefaultConfig())
	if err != nil {
		t.Fatal(err)
	}
	var called bool
	s.OnVerify = func(r *audit.VerifyReport, err error) { called = err == nil && r.Valid }

	report, err := s.VerifyNow(context.Background())
	if err != nil {
		t.Fatalf("VerifyNow() failed: %v", err)
	}
	if !report.Valid || report.Checked != 5 {
		t.Errorf("report = %+v", report)
	}
	if !called {
		t.Error("OnVerify not called with a valid report")
	}
	if s.LastReport() != report {
		t.Error("LastReport() not updated")
	}
}

func TestScheduler_ArchiveNow(t *testing.T) {
	ctx := context.Background()
	dir := t.TempDir()
	store := storage.NewMemoryStorage()
	fill(t, store, 1, 3)

	s, err := NewScheduler(store, Config{ArchiveDir: dir})
	if err != nil {
		t.Fatal(err)
	}

	path, err := s.ArchiveNow(ctx)
	if err != nil {
		t.Fatalf("ArchiveNow() failed: %v", err)
	}
	if filepath.Base(path) != segmentName(1, 3) {
		t.Errorf("segment = %s", path)
	}

	if path, err := s.ArchiveNow(ctx); err != nil || path != "" {
		t.Errorf("second ArchiveNow() = %q, %v; want nothing new", path, err)
	}

	fill(t, store, 4, 6)

	// A new scheduler resumes after the last segment on disk.
	s2, err := NewScheduler(store, Config{ArchiveDir: dir})
	if err != nil {
		t.Fatal(err)
	}
	path2, err := s2.ArchiveNow(ctx)
	if err != nil {
		t.Fatal(err)
	}
	if filepath.Base(path2) != segmentName(4, 6) {
		t.Errorf("second segment = %s", path2)
	}

	// Concatenated segments verify as one chain.
	var all []*audit.Record
	for _, p := range []string{path, path2} {
		f, err := os.Open(p)
		if err != nil {
			t.Fatal(err)
		}
		recs, err := export.ReadJSONL(f)
		f.Close()
		if err != nil {
			t.Fatal(err)
		}
		all = append(all, recs...)
	}
	if report := audit.VerifyRecords(all); !report.Valid || report.Checked != 6 {
		t.Errorf("archive verify = %+v", report)
	}
}
