package aggregate

import (
	"context"
	"sync/atomic"
	"time"

	"github.com/rs/zerolog"
	"golang.org/x/sync/errgroup"
)

// Executor runs a single operation of an included build.
type Executor interface {
	RunOperation(ctx context.Context, build, op string) error
}

// ExecutorFunc adapts a plain function to Executor
type ExecutorFunc func(ctx context.Context, build, op string) error

func (f ExecutorFunc) RunOperation(ctx context.Context, build, op string) error {
	return f(ctx, build, op)
}

// Scheduler decides how the dependencies of a composite are executed.
//
// With Parallelism <= 1 dependencies run one after another in declaration order.
// Otherwise up to Parallelism dependencies run at the same time and no order is guaranteed.
// Unless Continue is set, no new dependency is started after the first failure; the ones
// that are already running are allowed to finish.
type Scheduler struct {
	Parallelism int
	Continue    bool
	// Observer, if set, is called once for every finished or skipped dependency.
	// It may be called from several goroutines at once.
	Observer func(Result)
}

// Sequential is the default policy: one dependency at a time, stop at the first failure.
var Sequential = Scheduler{Parallelism: 1}

func (s Scheduler) limit() int {
	if s.Parallelism < 1 {
		return 1
	}
	return s.Parallelism
}

// Schedule runs every task through exec and returns the results in the order of tasks.
func (s Scheduler) Schedule(ctx context.Context, tasks []TaskPath, exec Executor) []Result {
	logger := zerolog.Ctx(ctx)
	results := make([]Result, len(tasks))

	var stopped atomic.Bool
	group := new(errgroup.Group)
	group.SetLimit(s.limit())

	for idx, task := range tasks {
		idx, task := idx, task
		group.Go(func() error {
			result := Result{Task: task}

			switch {
			case ctx.Err() != nil:
				result.Err = ctx.Err()
			case stopped.Load() && !s.Continue:
				logger.Debug().Str("task", task.String()).Msg("not started because a previous dependency failed")
			default:
				logger.Debug().Str("task", task.String()).Msg("starting")
				start := time.Now()
				err := exec.RunOperation(ctx, task.Build, task.Op)
				result.Duration = time.Since(start)

				if err != nil {
					stopped.Store(true)
					result.Status = StatusFailed
					result.Err = err
				} else {
					result.Status = StatusSucceeded
				}
			}

			results[idx] = result
			if s.Observer != nil {
				s.Observer(result)
			}

			// errors are collected in results
			return nil
		})
	}

	group.Wait()
	return results
}
