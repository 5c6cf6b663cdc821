// Package race owns the state of the current race and applies timing messages to it.
package race

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/shopspring/decimal"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"

	"github.com/mpapenbr/weblynx-service-go/log"
	"github.com/mpapenbr/weblynx-service-go/pkg/config"
	"github.com/mpapenbr/weblynx-service-go/pkg/lynx/decode"
	"github.com/mpapenbr/weblynx-service-go/pkg/lynx/message"
	"github.com/mpapenbr/weblynx-service-go/pkg/model"
)

var ErrInvalidTransition = errors.New("transition not allowed in current race status")

type (
	// RawDataLogger receives every chunk before it is decoded.
	// Implementations must not block.
	RawDataLogger interface {
		LogRawBytes(data []byte, label string)
	}
	// StartListLogger receives each complete start list.
	// Implementations must not block.
	StartListLogger interface {
		LogStartListSummary(ev *model.RaceEvent, racers []*model.Racer, label string)
	}

	Option func(*Manager)

	// Manager applies messages to the race state.
	// After each processed message a snapshot is sent to the publish channels.
	// These channels must be consumed, a blocked channel blocks the processing.
	Manager struct {
		mu            sync.Mutex
		race          *model.RaceData
		parser        *message.Parser
		settings      config.LapCounterSettings
		now           func() time.Time
		publish       []chan<- *model.RaceData
		rawLogger     RawDataLogger
		summaryLogger StartListLogger
		printMessage  bool
		log           *log.Logger
		msgCounter    metric.Int64Counter
	}
)

func WithParser(p *message.Parser) Option {
	return func(m *Manager) {
		m.parser = p
	}
}

func WithClock(now func() time.Time) Option {
	return func(m *Manager) {
		m.now = now
	}
}

func WithLapCounterSettings(s config.LapCounterSettings) Option {
	return func(m *Manager) {
		m.settings = s
	}
}

func WithPublishChannels(ch ...chan<- *model.RaceData) Option {
	return func(m *Manager) {
		m.publish = append(m.publish, ch...)
	}
}

func WithRawDataLogger(l RawDataLogger) Option {
	return func(m *Manager) {
		m.rawLogger = l
	}
}

func WithStartListLogger(l StartListLogger) Option {
	return func(m *Manager) {
		m.summaryLogger = l
	}
}

// WithPrintMessage logs each decoded message on debug level
func WithPrintMessage(b bool) Option {
	return func(m *Manager) {
		m.printMessage = b
	}
}

func WithLogger(l *log.Logger) Option {
	return func(m *Manager) {
		m.log = l
	}
}

func NewManager(opts ...Option) *Manager {
	ret := &Manager{
		settings: config.DefaultLapCounterSettings(),
		now:      time.Now,
		log:      log.Default().Named("race"),
	}
	for _, opt := range opts {
		opt(ret)
	}
	if ret.parser == nil {
		ret.parser = message.NewParser(
			message.WithClock(ret.now),
			message.WithLogger(ret.log.Named("parser")))
	}
	ret.race = model.NewRaceData(ret.now())
	ret.setupMetrics()
	return ret
}

func (m *Manager) setupMetrics() {
	var err error
	meter := otel.GetMeterProvider().Meter("weblynx.race")
	m.msgCounter, err = meter.Int64Counter("weblynx.race.messages",
		metric.WithDescription("Number of processed messages"),
		metric.WithUnit("{count}"))
	if err != nil {
		m.log.Error("failed to register metric", log.ErrorField(err))
	}
}

// ProcessChunk handles a raw chunk received on the connection identified by label.
func (m *Manager) ProcessChunk(data []byte, label string) {
	if m.rawLogger != nil {
		m.rawLogger.LogRawBytes(data, label)
	}
	text, enc, ok := decode.Text(data)
	if !ok {
		m.log.Warn("received undecodable data",
			log.String("conn", label),
			log.Int("length", len(data)))
		return
	}
	m.ProcessText(text, label, enc)
}

// ProcessText handles decoded text received on the connection identified by label.
func (m *Manager) ProcessText(text, label string, enc decode.Encoding) {
	if m.printMessage {
		m.log.Debug("received text", log.String("conn", label), log.String("text", text))
	}
	msg, ok := m.parser.Process(text, label)
	if !ok {
		return
	}
	if msg.Kind != model.MTRunningTime {
		m.log.Info("processing message",
			log.Stringer("kind", msg.Kind),
			log.String("conn", label),
			log.Stringer("encoding", enc))
		m.log.Debug("markers", log.Strings("found", message.MarkerSummary(msg.Text)))
	}
	m.Apply(msg, label)
}

// Apply applies a classified message to the race state and publishes the result.
func (m *Manager) Apply(msg message.Message, label string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if !m.apply(msg, label) {
		return
	}
	m.race.LastUpdated = m.now()
	if m.msgCounter != nil {
		m.msgCounter.Add(context.Background(), 1,
			metric.WithAttributes(attribute.String("kind", msg.Kind.String())))
	}
	m.notify()
}

// Pause switches a running race to paused.
func (m *Manager) Pause() error {
	return m.control(model.MTManualPause)
}

// Resume switches a paused race back to running.
func (m *Manager) Resume() error {
	return m.control(model.MTManualResume)
}

func (m *Manager) control(kind model.MessageType) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := nextStatus(m.race.Status, kind); !ok {
		return ErrInvalidTransition
	}
	m.apply(message.Message{Kind: kind}, "manual")
	m.race.LastUpdated = m.now()
	m.notify()
	return nil
}

// Reset discards the current race.
func (m *Manager) Reset() {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.race = model.NewRaceData(m.now())
	m.log.Info("race state reset")
	m.notify()
}

// Snapshot returns a copy of the current race state.
func (m *Manager) Snapshot() *model.RaceData {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.race.Clone()
}

func (m *Manager) LapCounterSettings() config.LapCounterSettings {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.settings
}

func (m *Manager) SetLapCounterSettings(s config.LapCounterSettings) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.settings = s
	m.log.Info("lap counter settings changed",
		log.Int("delayedDisplaySeconds", s.DelayedDisplaySeconds),
		log.Bool("halfLapMode", s.HalfLapModeEnabled))
}

func (m *Manager) BufferStatus() map[string]message.BufferStatus {
	return m.parser.BufferStatus()
}

// needs m.mu
func (m *Manager) notify() {
	if len(m.publish) == 0 {
		return
	}
	snapshot := m.race.Clone()
	for _, ch := range m.publish {
		ch <- snapshot
	}
}

// returns false if the message could not be applied at all.
// needs m.mu
//
//nolint:nonamedreturns // needed for recover
func (m *Manager) apply(msg message.Message, label string) (applied bool) {
	defer func() {
		if r := recover(); r != nil {
			m.log.Error("error processing message",
				log.Stringer("kind", msg.Kind),
				log.String("conn", label),
				log.Any("panic", r))
			applied = false
		}
	}()
	now := m.now()
	switch msg.Kind {
	case model.MTRunningTime:
		rt := m.parser.ParseRunningTime(msg.Text)
		if rt == nil {
			break
		}
		m.race.CurrentTime = rt
		m.transition(msg.Kind, now)
	case model.MTStartList:
		m.applyStartList(msg.Text, label, now)
	case model.MTStarted:
		m.transition(msg.Kind, now)
		m.applyStarted(m.parser.ParseStarted(msg.Text), now)
	case model.MTResults:
		racers := m.parser.ParseResults(msg.Text)
		m.applyResults(racers)
		if len(racers) > 0 {
			m.transition(msg.Kind, now)
		}
	case model.MTAnnouncement:
		m.race.Announcement = m.parser.ParseAnnouncement(msg.Text)
		m.log.Info("announcement changed", log.String("text", m.race.Announcement))
	case model.MTManualPause, model.MTManualResume:
		m.transition(msg.Kind, now)
	default:
		m.log.Warn("unknown message", log.String("conn", label), log.String("text", msg.Text))
	}
	return true
}

func (m *Manager) transition(kind model.MessageType, now time.Time) {
	from := m.race.Status
	t, ok := nextStatus(from, kind)
	if !ok {
		return
	}
	m.race.Status = t.to
	if from != t.to {
		m.log.Info("race status changed",
			log.Stringer("from", from),
			log.Stringer("to", t.to),
			log.Stringer("trigger", kind))
	}
	if t.raceStart {
		m.raceStarted(now)
	}
}

func (m *Manager) applyStartList(text, label string, now time.Time) {
	m.race = model.NewRaceData(now)
	m.race.Event = m.parser.ParseHeader(text)
	racers := m.parser.ParseStartList(text)
	for _, r := range racers {
		r.InitializeDelayedLapCount(now)
	}
	m.race.Racers = racers
	if len(racers) == 0 {
		m.log.Warn("no racers in start list", log.String("conn", label))
	}
	if ev := m.race.Event; ev != nil {
		m.log.Info("new race loaded",
			log.String("event", ev.EventName),
			log.String("eventNumber", ev.EventNumber),
			log.Int("round", ev.RoundNumber),
			log.Int("heat", ev.HeatNumber),
			log.Int("racers", len(racers)))
	} else {
		m.log.Info("new race loaded without event", log.Int("racers", len(racers)))
	}
	if m.summaryLogger != nil {
		c := m.race.Clone()
		m.summaryLogger.LogStartListSummary(c.Event, c.Racers, label)
	}
}

func (m *Manager) applyStarted(racers []*model.Racer, now time.Time) {
	lapsOnly := message.IsLapCountOnlyUpdate(racers)
	for _, r := range racers {
		existing := m.race.RacerByLane(r.Lane)
		if existing == nil {
			r.InitializeDelayedLapCount(now)
			m.race.Racers = append(m.race.Racers, r)
			continue
		}
		existing.Place = r.Place
		existing.ReactionTime = r.ReactionTime
		existing.CumulativeSplitTime = r.CumulativeSplitTime
		existing.LastSplitTime = r.LastSplitTime
		existing.BestSplitTime = r.BestSplitTime
		existing.UpdateLapsRemaining(r.LapsRemaining, lapsOnly, now)
		existing.Speed = r.Speed
		existing.Pace = r.Pace
	}
}

func (m *Manager) applyResults(racers []*model.Racer) {
	for _, r := range racers {
		existing := m.race.RacerByLane(r.Lane)
		if existing == nil {
			m.race.Racers = append(m.race.Racers, r)
			continue
		}
		existing.Place = r.Place
		existing.FinalTime = r.FinalTime
		existing.DeltaTime = r.DeltaTime
		existing.ReactionTime = r.ReactionTime
		existing.HasFinished = r.HasFinished
	}
}

// In half lap races the timing device handles the lap counts after the start.
// In whole lap races the lap count before the start is kept for one delay window.
func (m *Manager) raceStarted(now time.Time) {
	if !m.settings.HalfLapModeEnabled {
		return
	}
	if m.race.HasHalfLapLaps() {
		for _, r := range m.race.Racers {
			r.HoldLapCount(r.DelayedLapsRemaining, now)
		}
		return
	}
	one := decimal.NewFromInt(1)
	for _, r := range m.race.Racers {
		r.HoldLapCount(r.LapsRemaining.Add(one), now)
	}
}
