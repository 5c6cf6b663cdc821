package message

import (
	"regexp"
	"strings"
	"sync"
	"time"

	"github.com/mpapenbr/weblynx-service-go/log"
	"github.com/mpapenbr/weblynx-service-go/pkg/model"
)

// DefaultBufferTimeout is the max age of an incomplete start list
const DefaultBufferTimeout = 5 * time.Second

var continuationLine = regexp.MustCompile(`^\d+\s+\d+\s+`)

type (
	Option func(*Parser)

	// Parser classifies decoded text and reassembles start lists
	// which were split across multiple chunks of the same connection.
	Parser struct {
		mu      sync.Mutex
		buffers map[string]*pending
		timeout time.Duration
		now     func() time.Time
		log     *log.Logger
	}

	pending struct {
		text    strings.Builder
		updated time.Time
	}

	// BufferStatus describes a start list waiting for completion
	BufferStatus struct {
		Length      int
		LastUpdated time.Time
	}
)

func WithClock(now func() time.Time) Option {
	return func(p *Parser) {
		p.now = now
	}
}

func WithBufferTimeout(d time.Duration) Option {
	return func(p *Parser) {
		p.timeout = d
	}
}

func WithLogger(l *log.Logger) Option {
	return func(p *Parser) {
		p.log = l
	}
}

func NewParser(opts ...Option) *Parser {
	ret := &Parser{
		buffers: make(map[string]*pending),
		timeout: DefaultBufferTimeout,
		now:     time.Now,
		log:     log.Default().Named("lynx.message"),
	}
	for _, opt := range opts {
		opt(ret)
	}
	return ret
}

// Process classifies text received on the connection identified by key.
// ok is false if text was buffered as part of an incomplete start list
// or dropped. In that case the caller must not process anything.
func (p *Parser) Process(text, key string) (msg Message, ok bool) {
	p.mu.Lock()
	defer p.mu.Unlock()

	p.purgeExpired()

	if isContinuation(text) {
		if buf, found := p.buffers[key]; found {
			buf.text.WriteString(text)
			buf.updated = p.now()
			complete := buf.text.String()
			if IsCompleteStartList(complete) {
				delete(p.buffers, key)
				p.log.Info("completed buffered start list",
					log.String("conn", key),
					log.Int("length", len(complete)))
				return Message{Kind: model.MTStartList, Text: complete}, true
			}
			p.log.Debug("appended start list continuation",
				log.String("conn", key),
				log.Int("length", buf.text.Len()))
			return Message{}, false
		}
		p.log.Warn("start list continuation without buffer, dropping",
			log.String("conn", key),
			log.Int("length", len(text)))
		return Message{}, false
	}

	if strings.Contains(text, MarkerStartListHeader) {
		if IsCompleteStartList(text) {
			delete(p.buffers, key)
			return Message{Kind: model.MTStartList, Text: text}, true
		}
		buf := &pending{updated: p.now()}
		buf.text.WriteString(text)
		p.buffers[key] = buf
		p.log.Info("buffering incomplete start list",
			log.String("conn", key),
			log.Int("length", len(text)))
		return Message{}, false
	}

	return Message{Kind: DetectMessageType(text), Text: text}, true
}

// BufferStatus returns the pending start lists per connection key.
func (p *Parser) BufferStatus() map[string]BufferStatus {
	p.mu.Lock()
	defer p.mu.Unlock()
	ret := make(map[string]BufferStatus, len(p.buffers))
	for k, v := range p.buffers {
		ret[k] = BufferStatus{Length: v.text.Len(), LastUpdated: v.updated}
	}
	return ret
}

// needs p.mu
func (p *Parser) purgeExpired() {
	now := p.now()
	for k, v := range p.buffers {
		if now.Sub(v.updated) > p.timeout {
			p.log.Warn("discarding expired start list buffer",
				log.String("conn", k),
				log.Int("length", v.text.Len()))
			delete(p.buffers, k)
		}
	}
}

// A continuation carries racer lines or the trailer. Messages with a racer
// section of their own are no continuation. A running time or announcement
// may share the chunk with the end of a start list.
func isContinuation(text string) bool {
	if hasRacerSectionHeader(text) {
		return false
	}
	for _, line := range splitLines(text) {
		trimmed := strings.TrimSpace(line)
		if continuationLine.MatchString(trimmed) || strings.Contains(trimmed, MarkerTrailer) {
			return true
		}
	}
	return false
}

func splitLines(text string) []string {
	return strings.FieldsFunc(text, func(r rune) bool { return r == '\n' || r == '\r' })
}
