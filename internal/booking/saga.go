package booking

import (
	"context"
	"fmt"

	"go.uber.org/zap"
)

// sagaStep is one forward action of a multi-step booking, paired with the
// action that undoes it. compensate may be nil for steps that need no undo.
type sagaStep struct {
	name       string
	run        func(ctx context.Context) error
	compensate func(ctx context.Context) error
}

// runSaga executes steps in order. When a step fails, the compensations of
// every completed step run in reverse order and the step's error is
// returned. A compensation that itself fails is escalated as
// ErrCompensationFailed, because it leaves state that only manual
// reconciliation can repair.
func runSaga(ctx context.Context, log *zap.Logger, steps []sagaStep) error {
	var done []sagaStep

	for _, step := range steps {
		if err := step.run(ctx); err != nil {
			return compensate(ctx, log, done, step.name, err)
		}
		done = append(done, step)
	}

	return nil
}

func compensate(ctx context.Context, log *zap.Logger, done []sagaStep, failedStep string, cause error) error {
	for i := len(done) - 1; i >= 0; i-- {
		step := done[i]
		if step.compensate == nil {
			continue
		}
		if err := step.compensate(ctx); err != nil {
			log.Error("saga compensation failed, manual reconciliation required",
				zap.String("failed_step", failedStep),
				zap.String("compensation_step", step.name),
				zap.Error(err),
			)
			return fmt.Errorf("%w: undoing %q after %q failed: %v (cause: %v)",
				ErrCompensationFailed, step.name, failedStep, err, cause)
		}
		log.Info("saga step compensated",
			zap.String("failed_step", failedStep),
			zap.String("compensation_step", step.name),
		)
	}

	return cause
}
