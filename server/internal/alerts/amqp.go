package alerts

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"
	"time"

	"github.com/streadway/amqp"
)

// amqpChannel is the subset of *amqp.Channel the publisher uses.
type amqpChannel interface {
	ExchangeDeclare(name, kind string, durable, autoDelete, internal, noWait bool, args amqp.Table) error
	Publish(exchange, key string, mandatory, immediate bool, msg amqp.Publishing) error
	Close() error
}

// amqpDialFunc opens a channel to the broker. The returned close func
// releases the underlying connection.
type amqpDialFunc func(url string) (amqpChannel, func() error, error)

// AMQPPublisher publishes alert events to a topic exchange with routing key
// "alerts.<event>.<alert type>". The broker connection is opened lazily and
// reopened after a publish failure.
type AMQPPublisher struct {
	url      string
	exchange string
	dial     amqpDialFunc

	mu        sync.Mutex
	ch        amqpChannel
	closeConn func() error
}

// NewAMQPPublisher returns a publisher for exchange on the broker at url.
func NewAMQPPublisher(url, exchange string) *AMQPPublisher {
	return &AMQPPublisher{url: url, exchange: exchange, dial: dialAMQP}
}

func dialAMQP(url string) (amqpChannel, func() error, error) {
	conn, err := amqp.Dial(url)
	if err != nil {
		return nil, nil, err
	}
	ch, err := conn.Channel()
	if err != nil {
		conn.Close()
		return nil, nil, err
	}
	return ch, conn.Close, nil
}

func (p *AMQPPublisher) Name() string { return "amqp:" + p.exchange }

// RoutingKey returns the topic routing key for ev.
func RoutingKey(ev Event) string {
	return fmt.Sprintf("alerts.%s.%s", ev.Kind, ev.Alert.Type)
}

// Notify publishes ev as a persistent JSON message.
func (p *AMQPPublisher) Notify(ctx context.Context, ev Event) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	body, err := json.Marshal(ev)
	if err != nil {
		return fmt.Errorf("encode event: %w", err)
	}

	p.mu.Lock()
	defer p.mu.Unlock()

	if err := p.connectLocked(); err != nil {
		return err
	}
	err = p.ch.Publish(p.exchange, RoutingKey(ev), false, false, amqp.Publishing{
		ContentType:  "application/json",
		DeliveryMode: amqp.Persistent,
		Timestamp:    time.Now().UTC(),
		Body:         body,
	})
	if err != nil {
		p.resetLocked()
		return fmt.Errorf("amqp publish: %w", err)
	}
	return nil
}

func (p *AMQPPublisher) connectLocked() error {
	if p.ch != nil {
		return nil
	}
	ch, closeConn, err := p.dial(p.url)
	if err != nil {
		return fmt.Errorf("amqp dial: %w", err)
	}
	if err := ch.ExchangeDeclare(p.exchange, "topic", true, false, false, false, nil); err != nil {
		ch.Close()
		if closeConn != nil {
			closeConn()
		}
		return fmt.Errorf("amqp declare exchange %q: %w", p.exchange, err)
	}
	p.ch, p.closeConn = ch, closeConn
	return nil
}

func (p *AMQPPublisher) resetLocked() {
	if p.ch != nil {
		p.ch.Close()
	}
	if p.closeConn != nil {
		p.closeConn()
	}
	p.ch, p.closeConn = nil, nil
}

// Close releases the broker connection.
func (p *AMQPPublisher) Close() error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.resetLocked()
	return nil
}
