package audit

import (
	"errors"
	"fmt"
	"testing"
	"time"

	"aegis-hq/firewall/pkg/firewall"
)

func chain(t *testing.T, n int) []*Record {
	t.Helper()
	var out []*Record
	prevSeq, prevHash := int64(0), GenesisHash
	for i := 1; i <= n; i++ {
		r := &Record{
			EvaluationID: fmt.Sprintf("eval-%d", i),
			Timestamp:    time.Date(2026, 1, 1, 0, 0, i, 0, time.UTC),
			Mode:         "GENERAL_AI",
			Action:       "answer",
			Confidence:   0.5,
			Result: firewall.VerdictResult{
				Verdict:      firewall.VerdictAllow,
				RiskScore:    0.125,
				FailedChecks: []string{},
			},
		}
		if err := Seal(r, prevSeq, prevHash); err != nil {
			t.Fatalf("Seal() failed: %v", err)
		}
		prevSeq, prevHash = r.Sequence, r.Hash
		out = append(out, r)
	}
	return out
}

func TestComputeHash_Deterministic(t *testing.T) {
	records := chain(t, 1)
	r := records[0]

	again, err := ComputeHash(r)
	if err != nil {
		t.Fatal(err)
	}
	if again != r.Hash {
		t.Errorf("ComputeHash() = %s, want %s", again, r.Hash)
	}
	if len(r.Hash) != 64 {
		t.Errorf("hash length = %d, want 64", len(r.Hash))
	}
	if r.PrevHash != GenesisHash || r.Sequence != 1 {
		t.Errorf("first record = seq %d prev %s", r.Sequence, r.PrevHash)
	}

	// The stored hash itself is excluded from the hashed content.
	r2 := *r
	r2.Hash = "something else"
	h2, _ := ComputeHash(&r2)
	if h2 != r.Hash {
		t.Error("hash depends on the Hash field")
	}
}

func TestVerifyRecords(t *testing.T) {
	tests := []struct {
		name      string
		tamper    func([]*Record) []*Record
		wantValid bool
		wantAt    int64
	}{
		{
			name:      "intact",
			tamper:    func(rs []*Record) []*Record { return rs },
			wantValid: true,
		},
		{
			name: "edited verdict",
			tamper: func(rs []*Record) []*Record {
				rs[2].Result.Verdict = firewall.VerdictBlock
				return rs
			},
			wantAt: 3,
		},
		{
			name: "deleted record",
			tamper: func(rs []*Record) []*Record {
				return append(rs[:1], rs[2:]...)
			},
			wantAt: 2,
		},
		{
			name: "reordered",
			tamper: func(rs []*Record) []*Record {
				rs[1], rs[2] = rs[2], rs[1]
				return rs
			},
			wantAt: 2,
		},
		{
			name: "rehashed edit",
			tamper: func(rs []*Record) []*Record {
				rs[1].Confidence = 0.99
				rs[1].Hash, _ = ComputeHash(rs[1])
				return rs
			},
			wantAt: 3,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			report := VerifyRecords(tt.tamper(chain(t, 4)))
			if report.Valid != tt.wantValid {
				t.Fatalf("Valid = %v, want %v (%+v)", report.Valid, tt.wantValid, report)
			}
			if tt.wantValid {
				if report.Err() != nil || report.Checked != 4 {
					t.Errorf("report = %+v", report)
				}
				return
			}
			if report.BrokenAt != tt.wantAt {
				t.Errorf("BrokenAt = %d, want %d (%s)", report.BrokenAt, tt.wantAt, report.Reason)
			}
			var chainErr *ChainError
			if !errors.As(report.Err(), &chainErr) || chainErr.Sequence != tt.wantAt {
				t.Errorf("Err() = %v", report.Err())
			}
		})
	}
}

func TestQuery_Validate(t *testing.T) {
	now := time.Now()
	earlier := now.Add(-time.Hour)
	badRisk := 1.5

	tests := []struct {
		name      string
		query     Query
		wantField string
	}{
		{"empty", Query{}, ""},
		{"negative limit", Query{Limit: -1}, "limit"},
		{"limit too large", Query{Limit: MaxQueryLimit + 1}, "limit"},
		{"negative offset", Query{Offset: -1}, "offset"},
		{"inverted range", Query{StartTime: &now, EndTime: &earlier}, "start_time"},
		{"bad order", Query{Order: "sideways"}, "order"},
		{"bad verdict", Query{Verdict: "MAYBE"}, "verdict"},
		{"bad risk", Query{MinRisk: &badRisk}, "min_risk"},
		{"lowercase verdict", Query{Verdict: "block", Order: "ASC"}, ""},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			q := tt.query
			err := q.Validate()
			if tt.wantField == "" {
				if err != nil {
					t.Fatalf("Validate() error = %v", err)
				}
				return
			}
			var qe *QueryError
			if !errors.As(err, &qe) || qe.Field != tt.wantField {
				t.Errorf("Validate() error = %v, want field %s", err, tt.wantField)
			}
		})
	}

	q := Query{Verdict: "block", Order: "ASC", Action: " Trade "}
	if err := q.Validate(); err != nil {
		t.Fatal(err)
	}
	if q.Verdict != "BLOCK" || q.Order != "asc" || q.Action != "trade" {
		t.Errorf("normalized query = %+v", q)
	}
}

func TestStats_Add(t *testing.T) {
	s := NewStats()
	for _, r := range chain(t, 3) {
		s.Add(r)
	}
	if s.Total != 3 || s.ByVerdict["ALLOW"] != 3 || s.AvgRisk != 0.125 {
		t.Errorf("stats = %+v", s)
	}
	if !s.FirstTimestamp.Before(*s.LastTimestamp) {
		t.Errorf("timestamps = %v, %v", s.FirstTimestamp, s.LastTimestamp)
	}
}
