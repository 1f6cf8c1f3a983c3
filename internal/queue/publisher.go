package queue

import (
	"context"
	"fmt"
	"sync"

	amqp "github.com/rabbitmq/amqp091-go"
	"go.uber.org/zap"

	"github.com/iliyamo/auction-settlement/internal/dispatch"
)

// Publisher is a dispatch.Sink that publishes tasks to SideEffectQueue.  It
// keeps one connection open and redials on the next publish after a failure.
type Publisher struct {
	url string
	log *zap.Logger

	mu   sync.Mutex
	conn *amqp.Connection
	ch   *amqp.Channel
}

var _ dispatch.Sink = (*Publisher)(nil)

// NewPublisher returns a Publisher for url.  The connection is opened on
// first use.
func NewPublisher(url string, log *zap.Logger) *Publisher {
	if log == nil {
		log = zap.NewNop()
	}
	return &Publisher{url: url, log: log.Named("queue.publisher")}
}

// Deliver publishes t.  Errors are returned to the dispatcher, which logs
// and drops the task.
func (p *Publisher) Deliver(ctx context.Context, t dispatch.Task) error {
	msg, err := Encode(t)
	if err != nil {
		return err
	}

	p.mu.Lock()
	defer p.mu.Unlock()
	if err := p.ensureLocked(); err != nil {
		return err
	}
	if err := p.ch.PublishWithContext(ctx,
		"",              // default exchange
		SideEffectQueue, // routing key = queue name
		false,           // mandatory
		false,           // immediate
		msg,
	); err != nil {
		p.resetLocked()
		return fmt.Errorf("publish task %s: %w", t.ID, err)
	}
	return nil
}

func (p *Publisher) ensureLocked() error {
	if p.ch != nil && !p.ch.IsClosed() {
		return nil
	}
	p.resetLocked()
	conn, err := amqp.Dial(p.url)
	if err != nil {
		return fmt.Errorf("rabbitmq dial: %w", err)
	}
	ch, err := conn.Channel()
	if err != nil {
		_ = conn.Close()
		return fmt.Errorf("rabbitmq channel: %w", err)
	}
	if err := declare(ch); err != nil {
		_ = ch.Close()
		_ = conn.Close()
		return fmt.Errorf("queue declare: %w", err)
	}
	p.conn, p.ch = conn, ch
	p.log.Info("connected to broker", zap.String("queue", SideEffectQueue))
	return nil
}

func (p *Publisher) resetLocked() {
	if p.ch != nil {
		_ = p.ch.Close()
	}
	if p.conn != nil {
		_ = p.conn.Close()
	}
	p.ch, p.conn = nil, nil
}

// Close drops the broker connection.
func (p *Publisher) Close() {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.resetLocked()
}
