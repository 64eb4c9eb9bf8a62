package app

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/example/ispwatch/internal/core/runguard"
	"github.com/example/ispwatch/internal/ports/secondary"
)

// LockName is the single cross-process lock every filing run takes.
const LockName = "filing"

// Admission is the result of asking the guard to start a filing run.
type Admission struct {
	Admitted  bool
	Reason    runguard.DenyReason
	Message   string
	Period    string
	Token     string
	Reclaimed *secondary.RunLockRecord
}

// RunGuardImpl serializes filing runs across processes through the run lock.
type RunGuardImpl struct {
	repo       secondary.RunLockRepository
	staleAfter time.Duration
	host       string
	pid        int
	now        func() time.Time
	newToken   func() string
	logger     *zap.Logger
}

// NewRunGuard creates a new run guard owned by pid on host.
func NewRunGuard(repo secondary.RunLockRepository, staleAfter time.Duration, host string, pid int, logger *zap.Logger) *RunGuardImpl {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &RunGuardImpl{
		repo:       repo,
		staleAfter: staleAfter,
		host:       host,
		pid:        pid,
		now:        time.Now,
		newToken:   uuid.NewString,
		logger:     logger,
	}
}

// TryAcquire asks to start a filing run for period.
func (g *RunGuardImpl) TryAcquire(ctx context.Context, period string) (*Admission, error) {
	token := g.newToken()
	result, err := g.repo.TryAcquire(ctx, secondary.AcquireRequest{
		Name:       LockName,
		Token:      token,
		PID:        g.pid,
		Host:       g.host,
		Period:     period,
		Now:        g.now().UTC(),
		StaleAfter: g.staleAfter,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to acquire run lock: %w", err)
	}

	if result.Reclaimed != nil {
		g.logger.Warn("reclaimed stale run lock",
			zap.String("period", result.Reclaimed.Period),
			zap.Int("pid", result.Reclaimed.PID),
			zap.String("host", result.Reclaimed.Host),
			zap.Time("acquired_at", result.Reclaimed.AcquiredAt),
			zap.String("reason", result.StaleReason),
		)
	}

	adm := &Admission{
		Admitted:  result.Admitted,
		Reason:    runguard.DenyReason(result.Reason),
		Message:   result.Message,
		Period:    period,
		Reclaimed: result.Reclaimed,
	}
	if !adm.Admitted {
		g.logger.Info("filing run declined", zap.String("period", period), zap.String("reason", result.Reason),
			zap.String("detail", result.Message))
		return adm, nil
	}

	adm.Token = token
	g.logger.Debug("run lock acquired", zap.String("period", period), zap.String("token", token))
	return adm, nil
}

// Release gives the lock back. It ignores cancellation of ctx so a deferred
// call still runs after a signal.
func (g *RunGuardImpl) Release(ctx context.Context, adm *Admission) error {
	if adm == nil || !adm.Admitted {
		return nil
	}
	ctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), 10*time.Second)
	defer cancel()

	if err := g.repo.Release(ctx, LockName, adm.Token); err != nil {
		g.logger.Error("failed to release run lock", zap.String("period", adm.Period), zap.Error(err))
		return fmt.Errorf("failed to release run lock: %w", err)
	}
	g.logger.Debug("run lock released", zap.String("period", adm.Period))
	return nil
}
