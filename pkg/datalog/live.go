package datalog

import (
	"context"
	"time"

	"github.com/mpapenbr/weblynx-service-go/log"
	"github.com/mpapenbr/weblynx-service-go/pkg/model"
)

const DefaultLiveInterval = 5 * time.Second

type (
	// LiveWriter keeps the latest race state received on updates and appends it to
	// <dir>/live_race_info.YYYY-MM-DD.txt in a fixed interval.
	LiveWriter struct {
		dir      string
		interval time.Duration
		now      func() time.Time
		updates  <-chan *model.RaceData
		latest   *model.RaceData
		log      *log.Logger
	}
	LiveOption func(*LiveWriter)
)

func WithLiveInterval(d time.Duration) LiveOption {
	return func(w *LiveWriter) {
		if d > 0 {
			w.interval = d
		}
	}
}

func WithLiveClock(now func() time.Time) LiveOption {
	return func(w *LiveWriter) {
		w.now = now
	}
}

// WithInitialState sets the state written until the first update arrives.
func WithInitialState(rd *model.RaceData) LiveOption {
	return func(w *LiveWriter) {
		w.latest = rd
	}
}

func NewLiveWriter(dir string, updates <-chan *model.RaceData, opts ...LiveOption) *LiveWriter {
	ret := &LiveWriter{
		dir:      dir,
		interval: DefaultLiveInterval,
		now:      time.Now,
		updates:  updates,
		log:      log.Default().Named("datalog.live"),
	}
	for _, opt := range opts {
		opt(ret)
	}
	return ret
}

// Run writes the live info until ctx is done or the updates channel is closed.
func (w *LiveWriter) Run(ctx context.Context) {
	w.log.Info("live race file writer started", log.String("dir", w.dir))
	ticker := time.NewTicker(w.interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			w.log.Info("live race file writer stopped")
			return
		case rd, ok := <-w.updates:
			if !ok {
				w.log.Info("live race file writer stopped, no more updates")
				return
			}
			w.latest = rd
		case <-ticker.C:
			w.WriteOnce()
		}
	}
}

// WriteOnce appends the latest state to the live info file.
func (w *LiveWriter) WriteOnce() {
	if w.latest == nil {
		return
	}
	ts := w.now()
	path := DailyFile(w.dir, liveInfoPrefix, "txt", ts)
	if err := appendWithRetry(path, formatLiveInfo(w.latest, ts)); err != nil {
		w.log.Error("could not write live race info", log.String("file", path), log.ErrorField(err))
	}
}
