package audit

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"strings"

	"github.com/gowebpki/jcs"
)

// GenesisHash is the PrevHash of the first record in a chain.
var GenesisHash = strings.Repeat("0", 64)

// ComputeHash returns sha256(PrevHash || JCS(record without Hash)) as hex.
func ComputeHash(r *Record) (string, error) {
	tmp := *r
	tmp.Hash = ""
	data, err := json.Marshal(&tmp)
	if err != nil {
		return "", fmt.Errorf("marshal record: %w", err)
	}
	canonical, err := jcs.Transform(data)
	if err != nil {
		return "", fmt.Errorf("canonicalize record: %w", err)
	}
	h := sha256.New()
	h.Write([]byte(r.PrevHash))
	h.Write(canonical)
	return hex.EncodeToString(h.Sum(nil)), nil
}

// Seal links r after the record with sequence prevSeq and hash prevHash and
// stamps its hash.
func Seal(r *Record, prevSeq int64, prevHash string) error {
	r.Sequence = prevSeq + 1
	r.PrevHash = prevHash
	r.Timestamp = r.Timestamp.UTC()
	hash, err := ComputeHash(r)
	if err != nil {
		return err
	}
	r.Hash = hash
	return nil
}

// VerifyReport is the outcome of a chain verification.
type VerifyReport struct {
	Valid    bool   `json:"valid"`
	Checked  int64  `json:"checked"`
	LastHash string `json:"last_hash,omitempty"`

	// BrokenAt is the first sequence that failed verification.
	BrokenAt int64  `json:"broken_at,omitempty"`
	Reason   string `json:"reason,omitempty"`
}

// Err returns a *ChainError for an invalid report, nil otherwise.
func (r *VerifyReport) Err() error {
	if r.Valid {
		return nil
	}
	return &ChainError{Sequence: r.BrokenAt, Reason: r.Reason}
}

// Verifier checks records one at a time in sequence order.
type Verifier struct {
	report VerifyReport
	seq    int64
	prev   string
}

// NewVerifier starts a verification at the genesis record.
func NewVerifier() *Verifier {
	return &Verifier{prev: GenesisHash, report: VerifyReport{Valid: true}}
}

// Check verifies the next record. It returns false once the chain is broken.
func (v *Verifier) Check(r *Record) bool {
	if !v.report.Valid {
		return false
	}
	fail := func(reason string) bool {
		v.report.Valid = false
		v.report.BrokenAt = r.Sequence
		v.report.Reason = reason
		return false
	}

	if r.Sequence != v.seq+1 {
		if r.Sequence > v.seq+1 {
			v.report.Valid = false
			v.report.BrokenAt = v.seq + 1
			v.report.Reason = fmt.Sprintf("missing record(s) before sequence %d", r.Sequence)
			return false
		}
		return fail(fmt.Sprintf("sequence %d out of order after %d", r.Sequence, v.seq))
	}
	if r.PrevHash != v.prev {
		return fail("previous hash does not match")
	}
	hash, err := ComputeHash(r)
	if err != nil {
		return fail(err.Error())
	}
	if hash != r.Hash {
		return fail("record hash does not match its content")
	}

	v.seq = r.Sequence
	v.prev = r.Hash
	v.report.Checked++
	v.report.LastHash = r.Hash
	return true
}

// Report returns the verification result so far.
func (v *Verifier) Report() *VerifyReport {
	out := v.report
	return &out
}

// Verify walks the whole chain stored in s. Storage failures are returned as
// errors; a broken chain is reported in the VerifyReport.
func Verify(ctx context.Context, s Storage) (*VerifyReport, error) {
	records, errCh, err := s.QueryStream(ctx, &Query{Order: "asc"})
	if err != nil {
		return nil, err
	}

	v := NewVerifier()
	for r := range records {
		if !v.Check(r) {
			// Drain so the producer can exit.
			for range records {
			}
			break
		}
	}
	if err := <-errCh; err != nil {
		return nil, err
	}
	return v.Report(), nil
}

// VerifyRecords checks an in-memory slice ordered by sequence.
func VerifyRecords(records []*Record) *VerifyReport {
	v := NewVerifier()
	for _, r := range records {
		if !v.Check(r) {
			break
		}
	}
	return v.Report()
}
