// Package jobs runs background maintenance on a gocron scheduler.
package jobs

import (
	"context"
	"fmt"
	"time"

	"github.com/go-co-op/gocron"
	"go.uber.org/zap"
)

// Task is a named job run at a fixed interval.
type Task struct {
	Name        string
	Description string
	Every       time.Duration
	Handler     func(ctx context.Context) error
}

// Scheduler manages the registered tasks.
type Scheduler struct {
	scheduler *gocron.Scheduler
	log       *zap.Logger
	ctx       context.Context
	cancel    context.CancelFunc
	tasks     map[string]Task
}

// NewScheduler creates a scheduler running in UTC.
func NewScheduler(log *zap.Logger) *Scheduler {
	ctx, cancel := context.WithCancel(context.Background())
	return &Scheduler{
		scheduler: gocron.NewScheduler(time.UTC),
		log:       log,
		ctx:       ctx,
		cancel:    cancel,
		tasks:     map[string]Task{},
	}
}

// Register schedules task. Runs of one task never overlap.
func (s *Scheduler) Register(task Task) error {
	if _, exists := s.tasks[task.Name]; exists {
		return fmt.Errorf("task %q already registered", task.Name)
	}
	if task.Every <= 0 {
		return fmt.Errorf("task %q: interval must be positive", task.Name)
	}

	_, err := s.scheduler.Every(task.Every).SingletonMode().Tag(task.Name).Do(func() {
		s.run(task)
	})
	if err != nil {
		return fmt.Errorf("schedule task %q: %w", task.Name, err)
	}
	s.tasks[task.Name] = task
	s.log.Info("registered task", zap.String("task", task.Name), zap.Duration("every", task.Every))
	return nil
}

func (s *Scheduler) run(task Task) {
	start := time.Now()
	if err := task.Handler(s.ctx); err != nil {
		s.log.Error("task failed", zap.String("task", task.Name), zap.Error(err))
		return
	}
	s.log.Debug("task completed", zap.String("task", task.Name), zap.Duration("took", time.Since(start)))
}

// RunNow runs a registered task synchronously.
func (s *Scheduler) RunNow(name string) error {
	task, ok := s.tasks[name]
	if !ok {
		return fmt.Errorf("task %q not found", name)
	}
	return task.Handler(s.ctx)
}

// Start begins running the scheduler.
func (s *Scheduler) Start() {
	s.log.Info("starting scheduler", zap.Int("tasks", len(s.tasks)))
	s.scheduler.StartAsync()
}

// Stop halts all scheduled jobs and cancels in-flight handlers.
func (s *Scheduler) Stop() {
	s.scheduler.Stop()
	s.cancel()
}
