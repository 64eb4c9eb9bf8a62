package sqlite

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/example/ispwatch/internal/core/runguard"
	"github.com/example/ispwatch/internal/ports/secondary"
)

// LivenessFunc reports whether pid is running on this host; known is false
// when it cannot tell.
type LivenessFunc func(pid int) (alive bool, known bool)

// RunLockRepository implements secondary.RunLockRepository with SQLite.
type RunLockRepository struct {
	db    *sql.DB
	alive LivenessFunc
}

// NewRunLockRepository creates a new SQLite run lock repository.
// alive may be nil, in which case locks only expire by age.
func NewRunLockRepository(db *sql.DB, alive LivenessFunc) *RunLockRepository {
	return &RunLockRepository{db: db, alive: alive}
}

// TryAcquire performs check-and-acquire in one transaction. With the
// connection's immediate transaction mode, the write lock is taken at BEGIN,
// so two processes cannot both observe a free lock.
func (r *RunLockRepository) TryAcquire(ctx context.Context, req secondary.AcquireRequest) (*secondary.AcquireResult, error) {
	if req.Name == "" || req.Token == "" {
		return nil, fmt.Errorf("lock name and token must be provided")
	}

	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return nil, storeErr("acquire run lock", err)
	}
	defer tx.Rollback()

	filed, err := hasFiled(ctx, tx, req.Period)
	if err != nil {
		return nil, err
	}

	existing, err := getLock(ctx, tx, req.Name)
	if err != nil {
		return nil, err
	}

	actx := runguard.AdmissionContext{
		Period:         req.Period,
		PeriodHasFiled: filed,
		Now:            req.Now,
		StaleAfter:     req.StaleAfter,
	}
	if existing != nil {
		actx.Existing = &runguard.Lock{
			Token:      existing.Token,
			PID:        existing.PID,
			Host:       existing.Host,
			Period:     existing.Period,
			AcquiredAt: existing.AcquiredAt,
		}
		actx.OwnerLiveness = r.liveness(existing, req.Host)
	}

	decision := runguard.Decide(actx)
	if !decision.Allowed {
		return &secondary.AcquireResult{
			Admitted: false,
			Reason:   string(decision.Reason),
			Message:  decision.Message,
		}, nil
	}

	result := &secondary.AcquireResult{Admitted: true}
	if decision.ReclaimStale {
		if _, err := tx.ExecContext(ctx, "DELETE FROM run_locks WHERE name = ? AND token = ?", existing.Name, existing.Token); err != nil {
			return nil, storeErr("reclaim stale run lock", err)
		}
		result.Reclaimed = existing
		result.StaleReason = decision.StaleReason
	}

	_, err = tx.ExecContext(ctx,
		"INSERT INTO run_locks (name, token, pid, host, period, acquired_at) VALUES (?, ?, ?, ?, ?, ?)",
		req.Name, req.Token, req.PID, req.Host, req.Period, formatTime(req.Now),
	)
	if err != nil {
		return nil, storeErr("acquire run lock", err)
	}

	if err := tx.Commit(); err != nil {
		return nil, storeErr("acquire run lock", err)
	}
	return result, nil
}

// Release deletes the lock only if token still owns it. Releasing a lock that
// was reclaimed by another run is a no-op.
func (r *RunLockRepository) Release(ctx context.Context, name, token string) error {
	if _, err := r.db.ExecContext(ctx, "DELETE FROM run_locks WHERE name = ? AND token = ?", name, token); err != nil {
		return storeErr("release run lock", err)
	}
	return nil
}

// Get returns the current lock row, or nil.
func (r *RunLockRepository) Get(ctx context.Context, name string) (*secondary.RunLockRecord, error) {
	return getLock(ctx, r.db, name)
}

func (r *RunLockRepository) liveness(lock *secondary.RunLockRecord, localHost string) runguard.OwnerLiveness {
	if r.alive == nil || lock.Host != localHost {
		return runguard.OwnerUnknown
	}
	alive, known := r.alive(lock.PID)
	switch {
	case !known:
		return runguard.OwnerUnknown
	case alive:
		return runguard.OwnerAlive
	default:
		return runguard.OwnerDead
	}
}

func getLock(ctx context.Context, q queryer, name string) (*secondary.RunLockRecord, error) {
	var (
		lock       secondary.RunLockRecord
		acquiredAt string
	)
	err := q.QueryRowContext(ctx,
		"SELECT name, token, pid, host, period, acquired_at FROM run_locks WHERE name = ?", name,
	).Scan(&lock.Name, &lock.Token, &lock.PID, &lock.Host, &lock.Period, &acquiredAt)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, storeErr("read run lock", err)
	}
	if lock.AcquiredAt, err = parseTime(acquiredAt); err != nil {
		return nil, err
	}
	return &lock, nil
}

// Ensure RunLockRepository implements the interface
var _ secondary.RunLockRepository = (*RunLockRepository)(nil)
