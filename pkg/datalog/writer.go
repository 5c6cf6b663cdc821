// Package datalog writes received data, start list summaries and live race info to
// daily files.
package datalog

import (
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"sync/atomic"
	"time"

	"github.com/mpapenbr/weblynx-service-go/log"
	"github.com/mpapenbr/weblynx-service-go/pkg/model"
)

const (
	rawDataPrefix   = "received_data"
	liveInfoPrefix  = "live_race_info"
	defaultQueueLen = 256
	maxAttempts     = 3
	retryDelay      = 50 * time.Millisecond
)

type (
	Option func(*RawLogger)

	// RawLogger appends received chunks and start list summaries to
	// <dir>/received_data.YYYY-MM-DD.log. Entries are written by a single goroutine.
	// If the queue is full, entries are dropped.
	RawLogger struct {
		dir     string
		now     func() time.Time
		queue   chan entry
		dropped atomic.Int64
		failed  atomic.Int64
		done    chan struct{}
		once    sync.Once
		log     *log.Logger
	}

	entry struct {
		ts     time.Time
		render func(ts time.Time) string
	}
)

func WithClock(now func() time.Time) Option {
	return func(l *RawLogger) {
		l.now = now
	}
}

func WithQueueLength(n int) Option {
	return func(l *RawLogger) {
		if n > 0 {
			l.queue = make(chan entry, n)
		}
	}
}

func NewRawLogger(dir string, opts ...Option) *RawLogger {
	ret := &RawLogger{
		dir:   dir,
		now:   time.Now,
		queue: make(chan entry, defaultQueueLen),
		done:  make(chan struct{}),
		log:   log.Default().Named("datalog"),
	}
	for _, opt := range opts {
		opt(ret)
	}
	go ret.run()
	return ret
}

// LogRawBytes enqueues a hex dump of data. It never blocks.
func (l *RawLogger) LogRawBytes(data []byte, label string) {
	c := append([]byte(nil), data...)
	l.enqueue(func(ts time.Time) string { return formatRawEntry(c, label, ts) })
}

// LogStartListSummary enqueues a summary table of a start list. It never blocks.
func (l *RawLogger) LogStartListSummary(ev *model.RaceEvent, racers []*model.Racer, label string) {
	l.enqueue(func(ts time.Time) string { return formatStartListSummary(ev, racers, label, ts) })
}

// Dropped returns the number of entries discarded because of a full queue.
func (l *RawLogger) Dropped() int64 {
	return l.dropped.Load()
}

// Failed returns the number of entries which could not be written.
func (l *RawLogger) Failed() int64 {
	return l.failed.Load()
}

// Close writes the pending entries and stops the writer.
func (l *RawLogger) Close() {
	l.once.Do(func() {
		close(l.queue)
	})
	<-l.done
}

func (l *RawLogger) enqueue(render func(time.Time) string) {
	defer func() {
		// send on closed queue after Close
		if r := recover(); r != nil {
			l.dropped.Add(1)
		}
	}()
	select {
	case l.queue <- entry{ts: l.now(), render: render}:
	default:
		l.dropped.Add(1)
	}
}

func (l *RawLogger) run() {
	defer close(l.done)
	for e := range l.queue {
		path := DailyFile(l.dir, rawDataPrefix, "log", e.ts)
		if err := appendWithRetry(path, e.render(e.ts)); err != nil {
			l.failed.Add(1)
			l.log.Error("could not write data log", log.String("file", path), log.ErrorField(err))
		}
	}
}

// DailyFile returns <dir>/<prefix>.YYYY-MM-DD.<ext> for the local date of ts.
func DailyFile(dir, prefix, ext string, ts time.Time) string {
	return filepath.Join(dir, fmt.Sprintf("%s.%s.%s", prefix, ts.Local().Format(time.DateOnly), ext))
}

func appendWithRetry(path, content string) error {
	var err error
	for attempt := 1; attempt <= maxAttempts; attempt++ {
		if err = appendFile(path, content); err == nil {
			return nil
		}
		if attempt < maxAttempts {
			time.Sleep(time.Duration(attempt) * retryDelay)
		}
	}
	return fmt.Errorf("after %d attempts: %w", maxAttempts, err)
}

func appendFile(path, content string) error {
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return err
	}
	f, err := os.OpenFile(path, os.O_APPEND|os.O_CREATE|os.O_WRONLY, 0o644)
	if err != nil {
		return err
	}
	if _, err = f.WriteString(content); err != nil {
		_ = f.Close()
		return err
	}
	return f.Close()
}
