package slack

import (
	"context"
	"log/slog"
	"strings"
	"sync"
	"time"
)

const (
	defaultStatusQueue  = 16
	statusCallTimeout   = 10 * time.Second
	statusFlushDeadline = 5 * time.Second
)

type statusSetter interface {
	SetThreadStatus(ctx context.Context, channelID, threadTS, status string) error
}

// StatusReporter delivers status lines to one thread in emission order. A
// single goroutine drains a bounded queue; lines reported while the queue is
// full are dropped, and delivery errors are only logged.
type StatusReporter struct {
	api       statusSetter
	channelID string
	threadTS  string
	log       *slog.Logger

	mu     sync.Mutex
	closed bool
	queue  chan string
	done   chan struct{}
}

func NewStatusReporter(api statusSetter, channelID, threadTS string, log *slog.Logger, size int) *StatusReporter {
	if size <= 0 {
		size = defaultStatusQueue
	}
	if log == nil {
		log = slog.Default()
	}
	r := &StatusReporter{
		api:       api,
		channelID: channelID,
		threadTS:  threadTS,
		log:       log,
		queue:     make(chan string, size),
		done:      make(chan struct{}),
	}
	go r.loop()
	return r
}

func (r *StatusReporter) ReportStatus(text string) {
	text = strings.TrimSpace(text)
	if text == "" {
		return
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.closed {
		return
	}
	select {
	case r.queue <- text:
	default:
		r.log.Debug("slack_status_dropped", "channel_id", r.channelID, "thread_ts", r.threadTS, "status", text)
	}
}

func (r *StatusReporter) loop() {
	defer close(r.done)
	for text := range r.queue {
		ctx, cancel := context.WithTimeout(context.Background(), statusCallTimeout)
		err := r.api.SetThreadStatus(ctx, r.channelID, r.threadTS, text)
		cancel()
		if err != nil {
			r.log.Warn("slack_status_error", "channel_id", r.channelID, "thread_ts", r.threadTS, "error", err.Error())
		}
	}
}

// Close stops accepting lines and waits, up to a short deadline, for queued
// lines to be delivered.
func (r *StatusReporter) Close() {
	r.mu.Lock()
	if !r.closed {
		r.closed = true
		close(r.queue)
	}
	r.mu.Unlock()
	select {
	case <-r.done:
	case <-time.After(statusFlushDeadline):
		r.log.Warn("slack_status_flush_timeout", "channel_id", r.channelID, "thread_ts", r.threadTS)
	}
}
