package dbopen

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"

	"modernc.org/sqlite"
	sqlite3 "modernc.org/sqlite/lib"
)

// Retry is the policy for writes that hit a busy database. The wait before
// attempt n+1 is n*Step.
type Retry struct {
	Attempts int
	Step     time.Duration
}

// DefaultRetry is used by RunTx and Exec: three attempts, 100 then 200 ms apart.
var DefaultRetry = Retry{Attempts: 3, Step: 100 * time.Millisecond}

// IsBusy reports whether err means another connection holds the lock.
// Driver errors are matched on their result code, anything else on the
// message.
func IsBusy(err error) bool {
	if err == nil {
		return false
	}
	var se *sqlite.Error
	if errors.As(err, &se) {
		switch se.Code() & 0xff {
		case sqlite3.SQLITE_BUSY, sqlite3.SQLITE_LOCKED:
			return true
		}
		return false
	}
	msg := err.Error()
	return strings.Contains(msg, "SQLITE_BUSY") ||
		strings.Contains(msg, "database is locked") ||
		strings.Contains(msg, "table is locked")
}

// Do calls fn until it succeeds, fails with a non-busy error or runs out of
// attempts.
func (r Retry) Do(ctx context.Context, fn func() error) error {
	attempts := max(r.Attempts, 1)
	for n := 1; ; n++ {
		err := fn()
		if err == nil || !IsBusy(err) || n == attempts {
			return err
		}
		t := time.NewTimer(time.Duration(n) * r.Step)
		select {
		case <-ctx.Done():
			t.Stop()
			return fmt.Errorf("dbopen: busy, gave up after %d attempts: %w", n, ctx.Err())
		case <-t.C:
		}
	}
}

// RunTx runs fn in a transaction under DefaultRetry. fn may run more than
// once; a failed attempt is rolled back.
func RunTx(ctx context.Context, db *sql.DB, fn func(*sql.Tx) error) error {
	return DefaultRetry.Do(ctx, func() error {
		tx, err := db.BeginTx(ctx, nil)
		if err != nil {
			return fmt.Errorf("dbopen: begin tx: %w", err)
		}
		if err := fn(tx); err != nil {
			tx.Rollback()
			return err
		}
		if err := tx.Commit(); err != nil {
			return fmt.Errorf("dbopen: commit: %w", err)
		}
		return nil
	})
}

// Exec runs one statement under DefaultRetry.
func Exec(ctx context.Context, db *sql.DB, query string, args ...any) (sql.Result, error) {
	var res sql.Result
	err := DefaultRetry.Do(ctx, func() error {
		var err error
		res, err = db.ExecContext(ctx, query, args...)
		return err
	})
	return res, err
}
