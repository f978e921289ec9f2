package queue

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"time"

	amqp "github.com/rabbitmq/amqp091-go"
)

const (
	dialTimeout    = 2 * time.Second
	publishTimeout = 5 * time.Second
	// redialDelay is how long the publisher waits after a failed dial before
	// trying the broker again; events sent in between are dropped.
	redialDelay = 10 * time.Second

	DefaultPublishBuffer = 256
)

// ErrPublishBufferFull is returned by Publish when the send loop is behind.
var ErrPublishBufferFull = errors.New("token event buffer full")

var errBrokerDown = errors.New("broker unreachable, waiting to redial")

func dialConfig() amqp.Config {
	return amqp.Config{
		Heartbeat: 10 * time.Second,
		Locale:    "en_US",
		Dial:      amqp.DefaultDial(dialTimeout),
	}
}

// Publisher sends TokenEvents to TokenQueueName. Publish only enqueues; Run
// owns the single broker connection and redials it lazily after a failure,
// so a broker outage never delays the request that produced the event.
type Publisher struct {
	URL string
	Log *slog.Logger

	events  chan TokenEvent
	conn    *amqp.Connection
	ch      *amqp.Channel
	retryAt time.Time
	now     func() time.Time
}

func NewPublisher(url string, buffer int, log *slog.Logger) *Publisher {
	if buffer <= 0 {
		buffer = DefaultPublishBuffer
	}
	return &Publisher{URL: url, Log: log, events: make(chan TokenEvent, buffer), now: time.Now}
}

// Publish enqueues ev without blocking. A full buffer drops the event.
func (p *Publisher) Publish(_ context.Context, ev TokenEvent) error {
	select {
	case p.events <- ev:
		return nil
	default:
		p.Log.Warn("token event dropped", "type", ev.Type, "token", ev.TokenPrefix, "err", ErrPublishBufferFull)
		return ErrPublishBufferFull
	}
}

// Run sends queued events until ctx is done, then closes the connection.
func (p *Publisher) Run(ctx context.Context) error {
	defer p.close()
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case ev := <-p.events:
			if err := p.send(ctx, ev); err != nil {
				p.Log.Warn("token event not published", "type", ev.Type, "token", ev.TokenPrefix, "err", err)
			}
		}
	}
}

func (p *Publisher) send(ctx context.Context, ev TokenEvent) error {
	body, err := json.Marshal(ev)
	if err != nil {
		return fmt.Errorf("marshal: %w", err)
	}
	ch, err := p.channel()
	if err != nil {
		return err
	}

	pubCtx, cancel := context.WithTimeout(ctx, publishTimeout)
	defer cancel()
	err = ch.PublishWithContext(pubCtx, "", TokenQueueName, false, false, amqp.Publishing{
		ContentType:  "application/json",
		DeliveryMode: amqp.Persistent,
		Timestamp:    p.now().UTC(),
		Body:         body,
	})
	if err != nil {
		p.close()
		return fmt.Errorf("publish: %w", err)
	}
	return nil
}

// channel returns the open channel, dialing when there is none. After a
// failed dial it refuses to redial until redialDelay has passed.
func (p *Publisher) channel() (*amqp.Channel, error) {
	if p.ch != nil && !p.ch.IsClosed() {
		return p.ch, nil
	}
	p.close()
	if p.now().Before(p.retryAt) {
		return nil, errBrokerDown
	}

	conn, err := amqp.DialConfig(p.URL, dialConfig())
	if err != nil {
		p.retryAt = p.now().Add(redialDelay)
		return nil, fmt.Errorf("dial: %w", err)
	}
	ch, err := conn.Channel()
	if err != nil {
		_ = conn.Close()
		p.retryAt = p.now().Add(redialDelay)
		return nil, fmt.Errorf("channel open: %w", err)
	}
	if _, err := ch.QueueDeclare(TokenQueueName, true, false, false, false, nil); err != nil {
		_ = conn.Close()
		p.retryAt = p.now().Add(redialDelay)
		return nil, fmt.Errorf("queue declare: %w", err)
	}
	p.conn, p.ch = conn, ch
	return ch, nil
}

func (p *Publisher) close() {
	if p.ch != nil {
		_ = p.ch.Close()
		p.ch = nil
	}
	if p.conn != nil {
		_ = p.conn.Close()
		p.conn = nil
	}
}
