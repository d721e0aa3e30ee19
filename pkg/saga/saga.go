// Package saga sequential steps with compensating actions.
//
// A saga splits one business operation into local transactions. When a step
// fails, the compensations of the steps that already completed run in
// reverse order. Both actions and compensations must be idempotent.
//
// Order placement uses it as:
//
//	s := saga.NewSaga(10*time.Second, log)
//	s.AddStep("persist-order-and-deduct", placeInTx, cancelAndRelease)
//	s.AddStep("publish-order-placed", publish, nil)
//	err := s.Execute(ctx)
package saga

import (
	"context"
	"fmt"
	"time"

	"go.uber.org/zap"

	"github.com/xiebiao/freshmart/pkg/metrics"
)

// Step one saga step; Compensate may be nil for the last step
type Step struct {
	Name       string
	Action     func(ctx context.Context) error
	Compensate func(ctx context.Context) error
}

// Saga one saga execution; not reusable across goroutines
type Saga struct {
	steps    []Step
	executed []Step
	timeout  time.Duration
	log      *zap.Logger

	// CompensationErrors failures collected by the last compensation run
	CompensationErrors []error
}

// NewSaga creates a saga; timeout <= 0 disables the overall deadline
func NewSaga(timeout time.Duration, log *zap.Logger) *Saga {
	if log == nil {
		log = zap.NewNop()
	}
	return &Saga{
		steps:   make([]Step, 0),
		timeout: timeout,
		log:     log,
	}
}

// AddStep appends a step. Steps run in insertion order and compensate in reverse.
// A compensation only depends on its own action's result.
func (s *Saga) AddStep(name string, action, compensate func(ctx context.Context) error) {
	s.steps = append(s.steps, Step{
		Name:       name,
		Action:     action,
		Compensate: compensate,
	})
}

// Execute runs every step; on failure or timeout it compensates the
// completed steps and returns the step error
func (s *Saga) Execute(ctx context.Context) (err error) {
	start := time.Now()
	compensated := false
	defer func() {
		metrics.RecordSaga(err, time.Since(start), compensated)
	}()

	if s.timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, s.timeout)
		defer cancel()
	}

	for i, step := range s.steps {
		select {
		case <-ctx.Done():
			// the caller's deadline is gone, compensations get their own
			compensated = s.compensate(context.WithoutCancel(ctx))
			return fmt.Errorf("saga timed out before step [%d:%s]: %w", i, step.Name, ctx.Err())
		default:
		}

		if step.Action != nil {
			if err := step.Action(ctx); err != nil {
				s.log.Warn("saga step failed, compensating",
					zap.String("step", step.Name),
					zap.Int("completed_steps", len(s.executed)),
					zap.Error(err))
				compensated = s.compensate(context.WithoutCancel(ctx))
				return fmt.Errorf("saga step [%d:%s] failed: %w", i, step.Name, err)
			}
		}

		s.executed = append(s.executed, step)
	}

	return nil
}

// compensate runs compensations in reverse order. A failing compensation is
// logged and the rest still run. Reports whether anything was compensated.
func (s *Saga) compensate(ctx context.Context) bool {
	ran := false
	for i := len(s.executed) - 1; i >= 0; i-- {
		step := s.executed[i]
		if step.Compensate == nil {
			continue
		}

		ran = true
		if err := step.Compensate(ctx); err != nil {
			s.CompensationErrors = append(s.CompensationErrors, err)
			s.log.Error("saga compensation failed, manual intervention required",
				zap.String("step", step.Name),
				zap.Error(err))
		}
	}

	s.executed = nil
	return ran
}
