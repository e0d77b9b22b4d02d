package health

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"aegis-hq/firewall/pkg/audit"
	"aegis-hq/firewall/pkg/policy"
)

// PolicyCheck reports unhealthy when the store has no active snapshot.
func PolicyCheck(store *policy.Store) CheckFunc {
	return func(ctx context.Context) error {
		if store == nil || store.Snapshot() == nil {
			return errors.New("no active policy snapshot")
		}
		return nil
	}
}

// PingCheck reports unhealthy when the database does not answer a ping.
func PingCheck(db *sql.DB) CheckFunc {
	return func(ctx context.Context) error {
		if db == nil {
			return errors.New("database not open")
		}
		return db.PingContext(ctx)
	}
}

// BacklogCheck reports unhealthy when pending exceeds max. A max of 0
// disables the limit.
func BacklogCheck(pending func() int, max int) CheckFunc {
	return func(ctx context.Context) error {
		if n := pending(); max > 0 && n > max {
			return fmt.Errorf("%d records pending (limit %d)", n, max)
		}
		return nil
	}
}

// ChainCheck reports unhealthy when the most recent audit chain
// verification found a break. No report yet counts as healthy.
func ChainCheck(last func() *audit.VerifyReport) CheckFunc {
	return func(ctx context.Context) error {
		report := last()
		if report == nil {
			return nil
		}
		return report.Err()
	}
}
