// Package dispatch runs background jobs (inbound message processing,
// interaction logging, notification sends) on a bounded in-process worker
// pool. There is no durable queue: a crash loses queued work, which is
// acceptable because notification dedupe re-converges and state-mutating
// events arrive through the retried ERP webhook instead.
package dispatch

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"
)

// Job is one unit of background work.
type Job struct {
	Name string
	Run  func(ctx context.Context)
}

// Defaults.
const (
	DefaultWorkerCount = 4
	DefaultQueueSize   = 256
	DefaultJobTimeout  = 120 * time.Second
)

// Dispatcher owns the worker pool.
type Dispatcher struct {
	jobs       chan Job
	jobTimeout time.Duration

	stopOnce sync.Once
	stopped  chan struct{}
	wg       sync.WaitGroup

	mu        sync.Mutex
	started   bool
	processed int
	dropped   int

	logger *slog.Logger
}

// Health is the dispatcher's health snapshot.
type Health struct {
	QueueDepth int `json:"queue_depth"`
	Processed  int `json:"processed"`
	Dropped    int `json:"dropped"`
}

// New creates a dispatcher. Zero arguments take the defaults.
func New(workerCount, queueSize int, jobTimeout time.Duration) *Dispatcher {
	if workerCount <= 0 {
		workerCount = DefaultWorkerCount
	}
	if queueSize <= 0 {
		queueSize = DefaultQueueSize
	}
	if jobTimeout <= 0 {
		jobTimeout = DefaultJobTimeout
	}
	d := &Dispatcher{
		jobs:       make(chan Job, queueSize),
		jobTimeout: jobTimeout,
		stopped:    make(chan struct{}),
		logger:     slog.Default().With("component", "dispatcher"),
	}
	d.startWorkers(workerCount)
	return d
}

func (d *Dispatcher) startWorkers(count int) {
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.started {
		return
	}
	d.started = true

	d.logger.Info("Starting dispatcher", "workers", count, "queue_size", cap(d.jobs))
	for i := 0; i < count; i++ {
		d.wg.Add(1)
		go d.run(fmt.Sprintf("worker-%d", i))
	}
}

func (d *Dispatcher) run(id string) {
	defer d.wg.Done()
	log := d.logger.With("worker_id", id)

	for {
		select {
		case <-d.stopped:
			return
		case job, ok := <-d.jobs:
			if !ok {
				return
			}
			d.process(log, job)
		}
	}
}

func (d *Dispatcher) process(log *slog.Logger, job Job) {
	defer func() {
		if rec := recover(); rec != nil {
			log.Error("Background job panicked", "job", job.Name, "panic", rec)
		}
	}()

	ctx, cancel := context.WithTimeout(context.Background(), d.jobTimeout)
	defer cancel()

	start := time.Now()
	job.Run(ctx)

	d.mu.Lock()
	d.processed++
	d.mu.Unlock()
	log.Debug("Background job done", "job", job.Name, "elapsed", time.Since(start))
}

// Enqueue submits a job without blocking the caller. A full queue drops the
// job with a loud log line.
func (d *Dispatcher) Enqueue(name string, run func(ctx context.Context)) bool {
	select {
	case <-d.stopped:
		d.logger.Warn("Dispatcher stopped, dropping job", "job", name)
		return false
	default:
	}

	select {
	case d.jobs <- Job{Name: name, Run: run}:
		return true
	default:
		d.mu.Lock()
		d.dropped++
		d.mu.Unlock()
		d.logger.Error("Dispatch queue full, dropping job", "job", name)
		return false
	}
}

// Stop drains nothing: in-flight jobs finish, queued jobs are abandoned.
func (d *Dispatcher) Stop() {
	d.stopOnce.Do(func() { close(d.stopped) })
	d.wg.Wait()
	d.logger.Info("Dispatcher stopped")
}

// Health returns the current snapshot.
func (d *Dispatcher) Health() Health {
	d.mu.Lock()
	defer d.mu.Unlock()
	return Health{QueueDepth: len(d.jobs), Processed: d.processed, Dropped: d.dropped}
}
