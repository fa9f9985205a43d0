package worker

import (
	"context"
	"fmt"
	"sync"
	"time"

	"go.uber.org/zap"
)

// Task is one run of a periodic job
type Task func(ctx context.Context) error

// Stats describes a periodic worker's history
type Stats struct {
	Runs      int
	Failures  int
	LastRun   time.Time
	LastError error
}

// Periodic runs a task on a fixed interval until stopped
type Periodic struct {
	name     string
	interval time.Duration
	timeout  time.Duration
	task     Task
	logger   *zap.Logger

	mu      sync.Mutex
	running bool
	cancel  context.CancelFunc
	done    chan struct{}
	stats   Stats
}

// NewPeriodic creates a worker running task every interval. Each run gets
// its own timeout, defaulting to the interval.
func NewPeriodic(name string, interval, timeout time.Duration, task Task, logger *zap.Logger) *Periodic {
	if timeout <= 0 {
		timeout = interval
	}
	return &Periodic{
		name:     name,
		interval: interval,
		timeout:  timeout,
		task:     task,
		logger:   logger,
	}
}

// Name returns the worker name
func (p *Periodic) Name() string { return p.name }

// Start launches the polling loop
func (p *Periodic) Start(ctx context.Context) error {
	if p.interval <= 0 {
		return fmt.Errorf("%s: interval must be positive", p.name)
	}

	p.mu.Lock()
	defer p.mu.Unlock()
	if p.running {
		return fmt.Errorf("%s: %w", p.name, ErrAlreadyRunning)
	}

	var loopCtx context.Context
	loopCtx, p.cancel = context.WithCancel(ctx)
	p.done = make(chan struct{})
	p.running = true

	go p.loop(loopCtx, p.done)

	p.logger.Info("Worker started",
		zap.String("worker", p.name),
		zap.Duration("interval", p.interval))
	return nil
}

// Stop cancels the loop and waits for an in-flight run to return
func (p *Periodic) Stop() error {
	p.mu.Lock()
	if !p.running {
		p.mu.Unlock()
		return nil
	}
	p.running = false
	cancel, done := p.cancel, p.done
	p.mu.Unlock()

	cancel()
	<-done

	stats := p.Stats()
	p.logger.Info("Worker stopped",
		zap.String("worker", p.name),
		zap.Int("runs", stats.Runs),
		zap.Int("failures", stats.Failures))
	return nil
}

// Stats returns a snapshot of the run history
func (p *Periodic) Stats() Stats {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.stats
}

func (p *Periodic) loop(ctx context.Context, done chan struct{}) {
	defer close(done)

	ticker := time.NewTicker(p.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			p.runOnce(ctx)
		}
	}
}

// RunOnce executes the task immediately, outside the ticker
func (p *Periodic) RunOnce(ctx context.Context) error {
	return p.runOnce(ctx)
}

func (p *Periodic) runOnce(ctx context.Context) error {
	runCtx, cancel := context.WithTimeout(ctx, p.timeout)
	defer cancel()

	err := p.task(runCtx)

	p.mu.Lock()
	p.stats.Runs++
	p.stats.LastRun = time.Now()
	p.stats.LastError = err
	if err != nil {
		p.stats.Failures++
	}
	p.mu.Unlock()

	if err != nil {
		p.logger.Error("Worker run failed",
			zap.String("worker", p.name),
			zap.Error(err))
	}
	return err
}
