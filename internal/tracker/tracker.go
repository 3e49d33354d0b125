// Package tracker polls asynchronous import operations until they finish.
package tracker

import (
	"context"
	"errors"
	"fmt"
	"time"

	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"docqa/internal/domain"
)

// Observer receives outcomes as they become final. It is called from
// several goroutines.
type Observer interface {
	OnOutcome(domain.Outcome)
}

// ObserverFunc adapts a function to Observer.
type ObserverFunc func(domain.Outcome)

func (f ObserverFunc) OnOutcome(o domain.Outcome) { f(o) }

// Config controls polling.
type Config struct {
	PollInterval     time.Duration
	OperationTimeout time.Duration
	Concurrency      int
}

// Tracker waits for import operations.
type Tracker struct {
	index    domain.IndexService
	cfg      Config
	log      *zap.Logger
	observer Observer
}

// New creates a tracker. Zero config fields fall back to one second polling,
// a ten minute timeout and eight concurrent operations.
func New(index domain.IndexService, cfg Config, log *zap.Logger) *Tracker {
	if cfg.PollInterval <= 0 {
		cfg.PollInterval = time.Second
	}
	if cfg.OperationTimeout <= 0 {
		cfg.OperationTimeout = 10 * time.Minute
	}
	if cfg.Concurrency <= 0 {
		cfg.Concurrency = 8
	}
	return &Tracker{index: index, cfg: cfg, log: log}
}

// WithObserver sets the observer notified of every outcome.
func (t *Tracker) WithObserver(o Observer) *Tracker {
	t.observer = o
	return t
}

// Wait polls every submission to a terminal state and returns one outcome
// per submission, in submission order.
func (t *Tracker) Wait(ctx context.Context, subs []domain.Submission) []domain.Outcome {
	out := make([]domain.Outcome, len(subs))

	g := new(errgroup.Group)
	g.SetLimit(t.cfg.Concurrency)
	for i, sub := range subs {
		g.Go(func() error {
			out[i] = t.track(ctx, sub)
			if t.observer != nil {
				t.observer.OnOutcome(out[i])
			}
			return nil
		})
	}
	_ = g.Wait()
	return out
}

func (t *Tracker) track(ctx context.Context, sub domain.Submission) domain.Outcome {
	res := domain.Outcome{
		DisplayName:   sub.File.Name,
		Path:          sub.File.RelPath,
		OperationName: sub.Operation.Name,
	}
	log := t.log.With(zap.String("name", sub.File.Name), zap.String("operation", sub.Operation.Name))

	opCtx, cancel := context.WithTimeout(ctx, t.cfg.OperationTimeout)
	defer cancel()

	op, err := t.poll(opCtx, sub.Operation)
	switch {
	case err == nil && op.Error != nil:
		log.Error("import failed", zap.Error(op.Error))
		return fail(res, domain.FailureImport, op.Error.Error())
	case err == nil:
		log.Info("import completed")
		res.Status = domain.StatusSucceeded
		return res
	case ctx.Err() != nil:
		log.Warn("tracking canceled")
		return fail(res, domain.FailureCanceled, ctx.Err().Error())
	case errors.Is(err, context.DeadlineExceeded):
		log.Error("import timed out", zap.Duration("timeout", t.cfg.OperationTimeout))
		return fail(res, domain.FailureTimeout, fmt.Sprintf("not done after %s", t.cfg.OperationTimeout))
	default:
		log.Error("polling failed", zap.Error(err))
		return fail(res, domain.FailurePoll, err.Error())
	}
}

func (t *Tracker) poll(ctx context.Context, op domain.Operation) (domain.Operation, error) {
	ticker := time.NewTicker(t.cfg.PollInterval)
	defer ticker.Stop()
	for polls := 0; !op.Done; polls++ {
		select {
		case <-ctx.Done():
			return op, ctx.Err()
		case <-ticker.C:
		}
		next, err := t.index.GetOperation(ctx, op.Name)
		if err != nil {
			if ctxErr := ctx.Err(); ctxErr != nil {
				return op, ctxErr
			}
			return op, err
		}
		op = next
		t.log.Debug("polled operation", zap.String("operation", op.Name), zap.Int("poll", polls+1), zap.Bool("done", op.Done))
	}
	return op, nil
}

func fail(o domain.Outcome, kind domain.FailureKind, reason string) domain.Outcome {
	o.Status = domain.StatusFailed
	o.Kind = kind
	o.Reason = reason
	return o
}
