package messaging

import (
	"context"
	"fmt"
	"sort"
	"strings"
	"sync"
	"time"

	amqp "github.com/rabbitmq/amqp091-go"
	"github.com/stockscan/stockscan-backend/pkg/config"
	"github.com/stockscan/stockscan-backend/pkg/logger"
)

// RabbitMQ owns one connection and channel. Exchanges declared through it are
// remembered and declared again after a reconnect.
type RabbitMQ struct {
	conn      *amqp.Connection
	channel   *amqp.Channel
	config    *config.RabbitMQConfig
	logger    *logger.Logger
	exchanges map[string]struct{}
	mu        sync.RWMutex
	closed    bool
}

// New dials RabbitMQ
func New(cfg *config.RabbitMQConfig, log *logger.Logger) (*RabbitMQ, error) {
	rmq := &RabbitMQ{
		config:    cfg,
		logger:    log.WithComponent("rabbitmq"),
		exchanges: make(map[string]struct{}),
	}

	if err := rmq.connect(); err != nil {
		return nil, err
	}

	return rmq, nil
}

// connect must be called with mu held or before the value is shared
func (r *RabbitMQ) connect() error {
	conn, err := amqp.Dial(r.config.URL)
	if err != nil {
		return fmt.Errorf("failed to connect to RabbitMQ: %w", err)
	}

	ch, err := conn.Channel()
	if err != nil {
		conn.Close()
		return fmt.Errorf("failed to open channel: %w", err)
	}

	for name := range r.exchanges {
		if err := declareTopic(ch, name); err != nil {
			ch.Close()
			conn.Close()
			return fmt.Errorf("failed to redeclare exchange %s: %w", name, err)
		}
	}

	if r.conn != nil && !r.conn.IsClosed() {
		r.conn.Close()
	}
	r.conn, r.channel = conn, ch

	r.logger.Info().Int("exchanges", len(r.exchanges)).Msg("connected to RabbitMQ")
	return nil
}

// Channel returns the current channel
func (r *RabbitMQ) Channel() *amqp.Channel {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.channel
}

// Close closes the connection for good; Reconnect fails afterwards
func (r *RabbitMQ) Close() error {
	r.mu.Lock()
	defer r.mu.Unlock()

	r.closed = true

	if r.channel != nil {
		if err := r.channel.Close(); err != nil {
			r.logger.Warn().Err(err).Msg("failed to close channel")
		}
	}

	if r.conn != nil {
		if err := r.conn.Close(); err != nil {
			return fmt.Errorf("failed to close connection: %w", err)
		}
	}

	r.logger.Info().Msg("RabbitMQ connection closed")
	return nil
}

// Health reports the connection state and the declared exchanges
func (r *RabbitMQ) Health() map[string]string {
	r.mu.RLock()
	defer r.mu.RUnlock()

	names := make([]string, 0, len(r.exchanges))
	for name := range r.exchanges {
		names = append(names, name)
	}
	sort.Strings(names)

	status := map[string]string{
		"status":    "up",
		"exchanges": strings.Join(names, ","),
	}

	if r.conn == nil || r.conn.IsClosed() {
		status["status"] = "down"
		status["error"] = "connection closed"
	}

	return status
}

// DeclareExchange declares a durable topic exchange and remembers it
func (r *RabbitMQ) DeclareExchange(name string) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if err := declareTopic(r.channel, name); err != nil {
		return err
	}
	r.exchanges[name] = struct{}{}
	return nil
}

func declareTopic(ch *amqp.Channel, name string) error {
	return ch.ExchangeDeclare(
		name,    // name
		"topic", // type
		true,    // durable
		false,   // auto-deleted
		false,   // internal
		false,   // no-wait
		nil,     // arguments
	)
}

// Reconnect dials again up to MaxRetries times, waiting ReconnectDelay
// between attempts, and redeclares known exchanges.
func (r *RabbitMQ) Reconnect(ctx context.Context) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if r.closed {
		return fmt.Errorf("connection is permanently closed")
	}

	for i := 0; i < r.config.MaxRetries; i++ {
		r.logger.Info().Int("attempt", i+1).Msg("attempting to reconnect to RabbitMQ")

		err := r.connect()
		if err == nil {
			return nil
		}
		r.logger.Warn().Err(err).Msg("reconnection attempt failed")

		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-time.After(r.config.ReconnectDelay):
		}
	}

	return fmt.Errorf("failed to reconnect after %d attempts", r.config.MaxRetries)
}
