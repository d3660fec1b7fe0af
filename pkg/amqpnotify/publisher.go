// Package amqpnotify publishes tracker widget events to a RabbitMQ exchange.
package amqpnotify

import (
	"context"
	"encoding/json"
	"sync"
	"time"

	"github.com/cenkalti/backoff"
	"github.com/google/uuid"
	"github.com/pkg/errors"
	amqp "github.com/rabbitmq/amqp091-go"
	"github.com/sirupsen/logrus"

	"github.com/goliatone/go-scptracker/components/tracker"
)

const (
	defaultExchange     = "scptracker.events"
	defaultExchangeType = "topic"
	defaultMaxRetries   = 5
	routingKeyPrefix    = "widget."

	durable          = true
	deleteWhenUnused = false
	internal         = false
	noWait           = false
	mandatory        = false
	immediate        = false
)

// ErrNotConnected is returned when publishing before Start or after Close.
var ErrNotConnected = errors.New("amqpnotify: not connected")

// Channel is the subset of *amqp.Channel used by the publisher.
type Channel interface {
	ExchangeDeclare(name, kind string, durable, autoDelete, internal, noWait bool, args amqp.Table) error
	PublishWithContext(ctx context.Context, exchange, key string, mandatory, immediate bool, msg amqp.Publishing) error
	Close() error
}

// Connection is the subset of *amqp.Connection used by the publisher.
type Connection interface {
	Channel() (Channel, error)
	NotifyClose(receiver chan *amqp.Error) chan *amqp.Error
	IsClosed() bool
	Close() error
}

// Dialer opens a broker connection.
type Dialer func(url string) (Connection, error)

// Config configures a Publisher.
type Config struct {
	URL          string
	Exchange     string
	ExchangeType string
	MaxRetries   int
	Logger       *logrus.Entry
	Dial         Dialer
	// Backoff builds the retry policy for each connect attempt.
	Backoff func() backoff.BackOff
}

// Publisher implements tracker.NotificationsClient over AMQP 0-9-1.
type Publisher struct {
	cfg Config
	log *logrus.Entry

	mu      sync.RWMutex
	conn    Connection
	channel Channel
	closed  bool
	now     func() time.Time
}

var _ tracker.NotificationsClient = (*Publisher)(nil)

// New builds a publisher. Call Start before publishing.
func New(cfg Config) *Publisher {
	if cfg.Exchange == "" {
		cfg.Exchange = defaultExchange
	}
	if cfg.ExchangeType == "" {
		cfg.ExchangeType = defaultExchangeType
	}
	if cfg.MaxRetries <= 0 {
		cfg.MaxRetries = defaultMaxRetries
	}
	if cfg.Dial == nil {
		cfg.Dial = DialAMQP
	}
	if cfg.Backoff == nil {
		cfg.Backoff = func() backoff.BackOff { return backoff.NewExponentialBackOff() }
	}
	log := cfg.Logger
	if log == nil {
		discard := logrus.New()
		discard.SetLevel(logrus.PanicLevel)
		log = logrus.NewEntry(discard)
	}
	return &Publisher{cfg: cfg, log: log, now: time.Now}
}

// Start connects with retries and watches the connection for closure.
func (p *Publisher) Start(ctx context.Context) error {
	policy := backoff.WithContext(
		backoff.WithMaxRetries(p.cfg.Backoff(), uint64(p.cfg.MaxRetries)),
		ctx,
	)
	attempt := 0
	connect := func() error {
		attempt++
		err := p.connect()
		if err != nil {
			p.log.WithError(err).WithField("attempt", attempt).Warn("amqp connect failed")
		}
		return err
	}
	if err := backoff.Retry(connect, policy); err != nil {
		return errors.Wrap(err, "amqpnotify: connect")
	}
	p.log.WithField("exchange", p.cfg.Exchange).Info("amqp publisher connected")
	return nil
}

func (p *Publisher) connect() error {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.closed {
		return backoff.Permanent(ErrNotConnected)
	}

	conn, err := p.cfg.Dial(p.cfg.URL)
	if err != nil {
		return errors.Wrap(err, "dial")
	}
	channel, err := conn.Channel()
	if err != nil {
		conn.Close()
		return errors.Wrap(err, "open channel")
	}
	err = channel.ExchangeDeclare(
		p.cfg.Exchange,
		p.cfg.ExchangeType,
		durable,
		deleteWhenUnused,
		internal,
		noWait,
		nil, // arguments
	)
	if err != nil {
		channel.Close()
		conn.Close()
		return errors.Wrap(err, "declare exchange")
	}

	p.conn = conn
	p.channel = channel
	go p.notifyWhenClosed(conn)
	return nil
}

func (p *Publisher) notifyWhenClosed(conn Connection) {
	reason, ok := <-conn.NotifyClose(make(chan *amqp.Error, 1))
	if !ok || reason == nil {
		return
	}

	p.mu.Lock()
	if p.closed || p.conn != conn {
		p.mu.Unlock()
		return
	}
	p.conn = nil
	p.channel = nil
	p.mu.Unlock()

	p.log.WithField("reason", reason.Error()).Warn("amqp connection closed, reconnecting")
	if err := p.Start(context.Background()); err != nil {
		p.log.WithError(err).Error("amqp reconnect failed")
	}
}

// PublishWidgetEvent sends event as JSON with routing key "widget.<reason>".
func (p *Publisher) PublishWidgetEvent(ctx context.Context, event tracker.WidgetEvent) error {
	body, err := json.Marshal(event)
	if err != nil {
		return errors.Wrap(err, "amqpnotify: encode event")
	}

	p.mu.RLock()
	channel := p.channel
	p.mu.RUnlock()
	if channel == nil {
		return ErrNotConnected
	}

	msg := amqp.Publishing{
		ContentType:  "application/json",
		DeliveryMode: amqp.Persistent,
		MessageId:    uuid.NewString(),
		Timestamp:    p.now().UTC(),
		Body:         body,
	}
	if err := channel.PublishWithContext(ctx, p.cfg.Exchange, RoutingKey(event), mandatory, immediate, msg); err != nil {
		return errors.Wrapf(err, "amqpnotify: publish %s", event.Reason)
	}
	return nil
}

// Close stops reconnecting and releases the channel and connection.
func (p *Publisher) Close() error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.closed = true
	var err error
	if p.channel != nil {
		err = p.channel.Close()
		p.channel = nil
	}
	if p.conn != nil && !p.conn.IsClosed() {
		if cerr := p.conn.Close(); err == nil {
			err = cerr
		}
	}
	p.conn = nil
	return err
}

// RoutingKey derives the routing key of an event.
func RoutingKey(event tracker.WidgetEvent) string {
	reason := event.Reason
	if reason == "" {
		reason = "unknown"
	}
	return routingKeyPrefix + reason
}

// DialAMQP dials a real broker.
func DialAMQP(url string) (Connection, error) {
	conn, err := amqp.Dial(url)
	if err != nil {
		return nil, err
	}
	return amqpConnection{conn}, nil
}

type amqpConnection struct {
	*amqp.Connection
}

func (c amqpConnection) Channel() (Channel, error) {
	return c.Connection.Channel()
}
