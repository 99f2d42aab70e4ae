// Package mqtt feeds broker messages into the INBOUND mappings subscribed to them.
package mqtt

import (
	"context"
	"errors"
	"fmt"
	"slices"
	"sync"
	"time"

	paho "github.com/eclipse/paho.mqtt.golang"

	"github.com/sophialabs/mapforge/internal/infrastructure/ports"
	"github.com/sophialabs/mapforge/internal/infrastructure/usecases"
)

const subscribeTimeout = 10 * time.Second

// ErrStopped is returned by Resubscribe after Stop.
var ErrStopped = errors.New("consumer stopped")

// Options tune the consumer.
type Options struct {
	// Workers process messages concurrently. Messages of one topic may be reordered.
	Workers int
	// QueueSize bounds messages waiting for a worker. A full queue blocks the broker callback.
	QueueSize int
	Qos       byte
}

type message struct {
	topic   string
	payload []byte
}

// Consumer subscribes to the topics of the current mapping index and hands every
// message to a worker pool.
type Consumer struct {
	client paho.Client
	route  *usecases.RouteMessageUseCase
	logger ports.Logger
	opts   Options

	queue  chan message
	ctx    context.Context
	cancel context.CancelFunc
	wg     sync.WaitGroup

	mu         sync.Mutex
	subscribed []string
	started    bool
}

// NewConsumer creates a consumer. Call Start before Resubscribe.
func NewConsumer(client paho.Client, route *usecases.RouteMessageUseCase, logger ports.Logger, opts Options) *Consumer {
	if opts.Workers < 1 {
		opts.Workers = 1
	}
	if opts.QueueSize < 1 {
		opts.QueueSize = 100
	}
	return &Consumer{
		client: client,
		route:  route,
		logger: logger,
		opts:   opts,
		queue:  make(chan message, opts.QueueSize),
	}
}

// Start launches the workers. They run until ctx ends or Stop is called.
func (c *Consumer) Start(ctx context.Context) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.started {
		return
	}
	c.started = true
	c.ctx, c.cancel = context.WithCancel(ctx)
	for range c.opts.Workers {
		c.wg.Add(1)
		go c.work()
	}
	c.logger.Info("mqtt consumer started", "workers", c.opts.Workers)
}

func (c *Consumer) work() {
	defer c.wg.Done()
	for {
		select {
		case <-c.ctx.Done():
			return
		case msg := <-c.queue:
			results := c.route.Inbound(c.ctx, msg.topic, msg.payload)
			c.logger.Debug("message processed", "topic", msg.topic, "mappings", len(results))
		}
	}
}

// Resubscribe aligns the broker subscriptions with the topics of the current index.
// It is called after every (re)connect and index rebuild.
func (c *Consumer) Resubscribe() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if !c.started {
		return errors.New("consumer not started")
	}
	if c.ctx.Err() != nil {
		return ErrStopped
	}

	want := c.route.Index().Topics()
	var stale []string
	for _, t := range c.subscribed {
		if !slices.Contains(want, t) {
			stale = append(stale, t)
		}
	}
	if len(stale) > 0 {
		if err := wait(c.client.Unsubscribe(stale...)); err != nil {
			c.logger.Warn("mqtt unsubscribe failed", "topics", stale, "error", err)
		}
	}

	if len(want) > 0 {
		filters := make(map[string]byte, len(want))
		for _, t := range want {
			filters[t] = c.opts.Qos
		}
		if err := wait(c.client.SubscribeMultiple(filters, c.handle)); err != nil {
			return fmt.Errorf("subscribe to %d topics: %w", len(want), err)
		}
	}
	c.subscribed = want
	c.logger.Info("mqtt subscriptions updated", "topics", len(want), "removed", len(stale))
	return nil
}

// Subscriptions returns the topics currently subscribed.
func (c *Consumer) Subscriptions() []string {
	c.mu.Lock()
	defer c.mu.Unlock()
	return slices.Clone(c.subscribed)
}

func (c *Consumer) handle(_ paho.Client, msg paho.Message) {
	m := message{topic: msg.Topic(), payload: slices.Clone(msg.Payload())}
	select {
	case c.queue <- m:
	case <-c.ctx.Done():
		c.logger.Debug("message dropped on shutdown", "topic", m.topic)
	}
}

// Stop stops the workers and waits for running messages to finish.
func (c *Consumer) Stop() {
	c.mu.Lock()
	if !c.started {
		c.mu.Unlock()
		return
	}
	c.cancel()
	c.mu.Unlock()
	c.wg.Wait()
	c.logger.Info("mqtt consumer stopped")
}

func wait(token paho.Token) error {
	if !token.WaitTimeout(subscribeTimeout) {
		return errors.New("mqtt operation timed out")
	}
	return token.Error()
}
