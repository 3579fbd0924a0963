package slack

import (
	"context"
	"errors"
	"log/slog"
	"sync"
	"time"
)

var ErrQueueFull = errors.New("thread queue is full")

const (
	DefaultMaxConcurrency = 3
	DefaultTaskTimeout    = 10 * time.Minute

	threadQueueSize = 16
	workerIdle      = 2 * time.Minute
)

type DispatcherOptions struct {
	MaxConcurrency int
	TaskTimeout    time.Duration
	Logger         *slog.Logger
}

// Dispatcher runs events of the same thread one after another and events of
// different threads in parallel, bounded by MaxConcurrency.
type Dispatcher struct {
	handle  func(ctx context.Context, ev Event) error
	sem     chan struct{}
	timeout time.Duration
	log     *slog.Logger

	mu      sync.Mutex
	workers map[string]chan Event
	wg      sync.WaitGroup
}

func NewDispatcher(handle func(ctx context.Context, ev Event) error, opts DispatcherOptions) *Dispatcher {
	if opts.MaxConcurrency <= 0 {
		opts.MaxConcurrency = DefaultMaxConcurrency
	}
	if opts.TaskTimeout <= 0 {
		opts.TaskTimeout = DefaultTaskTimeout
	}
	log := opts.Logger
	if log == nil {
		log = slog.Default()
	}
	return &Dispatcher{
		handle:  handle,
		sem:     make(chan struct{}, opts.MaxConcurrency),
		timeout: opts.TaskTimeout,
		log:     log,
		workers: map[string]chan Event{},
	}
}

// Enqueue hands ev to its thread's worker, starting one if needed. It never
// blocks; a full thread queue drops the event.
func (d *Dispatcher) Enqueue(ctx context.Context, ev Event) error {
	key := ev.conversationKey()
	d.mu.Lock()
	defer d.mu.Unlock()
	jobs, ok := d.workers[key]
	if !ok {
		jobs = make(chan Event, threadQueueSize)
		d.workers[key] = jobs
		d.wg.Add(1)
		go d.run(ctx, key, jobs)
	}
	select {
	case jobs <- ev:
		return nil
	default:
		d.log.Warn("slack_thread_queue_full", "channel_id", ev.ChannelID, "thread_ts", ev.ReplyThreadTS())
		return ErrQueueFull
	}
}

func (d *Dispatcher) run(ctx context.Context, key string, jobs chan Event) {
	defer d.wg.Done()
	idle := time.NewTimer(workerIdle)
	defer idle.Stop()
	for {
		select {
		case ev := <-jobs:
			d.process(ctx, ev)
			if !idle.Stop() {
				select {
				case <-idle.C:
				default:
				}
			}
			idle.Reset(workerIdle)
		case <-idle.C:
			d.mu.Lock()
			if len(jobs) == 0 {
				delete(d.workers, key)
				d.mu.Unlock()
				return
			}
			d.mu.Unlock()
			idle.Reset(workerIdle)
		case <-ctx.Done():
			d.mu.Lock()
			delete(d.workers, key)
			d.mu.Unlock()
			return
		}
	}
}

func (d *Dispatcher) process(ctx context.Context, ev Event) {
	select {
	case d.sem <- struct{}{}:
	case <-ctx.Done():
		return
	}
	defer func() { <-d.sem }()
	taskCtx, cancel := context.WithTimeout(ctx, d.timeout)
	defer cancel()
	defer func() {
		if p := recover(); p != nil {
			d.log.Error("slack_task_panic", "channel_id", ev.ChannelID, "panic", p)
		}
	}()
	if err := d.handle(taskCtx, ev); err != nil {
		d.log.Debug("slack_task_error", "channel_id", ev.ChannelID, "error", err.Error())
	}
}

// Wait blocks until every worker has exited. Workers exit when the context
// passed to Enqueue is canceled or after being idle.
func (d *Dispatcher) Wait() {
	d.wg.Wait()
}
