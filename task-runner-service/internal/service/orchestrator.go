package service

import (
	"context"
	"errors"
	"fmt"

	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"
)

// Job is a long-running loop that returns once ctx ends.
type Job struct {
	Name string
	Run  func(ctx context.Context) error
}

// Orchestrator runs the background jobs of the task runner side by side.
// A job failing stops the others.
type Orchestrator struct {
	jobs   []Job
	logger *zap.Logger
}

func NewOrchestrator(logger *zap.Logger, jobs ...Job) *Orchestrator {
	return &Orchestrator{jobs: jobs, logger: logger}
}

func (o *Orchestrator) Add(name string, run func(ctx context.Context) error) {
	o.jobs = append(o.jobs, Job{Name: name, Run: run})
}

func (o *Orchestrator) Run(ctx context.Context) error {
	g, ctx := errgroup.WithContext(ctx)
	for _, job := range o.jobs {
		g.Go(func() error {
			o.logger.Info("job started", zap.String("job", job.Name))
			err := job.Run(ctx)
			if err != nil && !errors.Is(err, context.Canceled) {
				o.logger.Error("job failed", zap.String("job", job.Name), zap.Error(err))
				return fmt.Errorf("%s: %w", job.Name, err)
			}
			o.logger.Info("job stopped", zap.String("job", job.Name))
			return nil
		})
	}
	return g.Wait()
}
