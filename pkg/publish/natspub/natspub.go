// Package natspub publishes race updates to a nats subject.
package natspub

import (
	"context"
	"encoding/json"

	"github.com/mpapenbr/weblynx-service-go/log"
	"github.com/mpapenbr/weblynx-service-go/pkg/model"
)

type (
	// Conn is the part of *nats.Conn used here
	Conn interface {
		Publish(subj string, data []byte) error
	}
	// Converter creates the payload object for a race update
	Converter func(rd *model.RaceData) any

	Option    func(*Publisher)
	Publisher struct {
		conn    Conn
		subject string
		convert Converter
		log     *log.Logger
	}
)

func WithConverter(c Converter) Option {
	return func(p *Publisher) {
		p.convert = c
	}
}

func NewPublisher(conn Conn, subject string, opts ...Option) *Publisher {
	ret := &Publisher{
		conn:    conn,
		subject: subject,
		convert: func(rd *model.RaceData) any { return rd },
		log:     log.Default().Named("publish.nats"),
	}
	for _, opt := range opts {
		opt(ret)
	}
	return ret
}

// Run publishes every update until ctx is done or updates is closed.
func (p *Publisher) Run(ctx context.Context, updates <-chan *model.RaceData) {
	p.log.Info("publishing race updates", log.String("subject", p.subject))
	for {
		select {
		case <-ctx.Done():
			return
		case rd, ok := <-updates:
			if !ok {
				return
			}
			if err := p.Publish(rd); err != nil {
				p.log.Warn("could not publish race update", log.ErrorField(err))
			}
		}
	}
}

func (p *Publisher) Publish(rd *model.RaceData) error {
	data, err := json.Marshal(p.convert(rd))
	if err != nil {
		return err
	}
	return p.conn.Publish(p.subject, data)
}
