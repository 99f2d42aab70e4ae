package testutil

import (
	"sync"
	"time"

	mqtt "github.com/eclipse/paho.mqtt.golang"
)

// Token is an already completed mqtt.Token. A nil Blocked channel means done.
type Token struct {
	Err     error
	Blocked chan struct{}
}

func (t *Token) done() <-chan struct{} {
	if t.Blocked != nil {
		return t.Blocked
	}
	c := make(chan struct{})
	close(c)
	return c
}

func (t *Token) Wait() bool { <-t.done(); return true }

func (t *Token) WaitTimeout(d time.Duration) bool {
	select {
	case <-t.done():
		return true
	case <-time.After(d):
		return false
	}
}

func (t *Token) Done() <-chan struct{} { return t.done() }
func (t *Token) Error() error          { return t.Err }

// Published is one message handed to FakeMQTTClient.Publish.
type Published struct {
	Topic    string
	Qos      byte
	Retained bool
	Payload  []byte
}

var _ mqtt.Client = (*FakeMQTTClient)(nil)

// FakeMQTTClient records publishes and subscriptions in memory.
type FakeMQTTClient struct {
	PublishToken   *Token
	SubscribeToken *Token

	mu            sync.Mutex
	published     []Published
	subscriptions map[string]mqtt.MessageHandler
	connected     bool
}

func (c *FakeMQTTClient) IsConnected() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.connected
}

func (c *FakeMQTTClient) IsConnectionOpen() bool { return c.IsConnected() }

func (c *FakeMQTTClient) Connect() mqtt.Token {
	c.mu.Lock()
	c.connected = true
	c.mu.Unlock()
	return &Token{}
}

func (c *FakeMQTTClient) Disconnect(uint) {
	c.mu.Lock()
	c.connected = false
	c.mu.Unlock()
}

func (c *FakeMQTTClient) Publish(topic string, qos byte, retained bool, payload interface{}) mqtt.Token {
	var b []byte
	switch p := payload.(type) {
	case []byte:
		b = p
	case string:
		b = []byte(p)
	}
	c.mu.Lock()
	c.published = append(c.published, Published{Topic: topic, Qos: qos, Retained: retained, Payload: b})
	c.mu.Unlock()
	if c.PublishToken != nil {
		return c.PublishToken
	}
	return &Token{}
}

func (c *FakeMQTTClient) Subscribe(topic string, qos byte, callback mqtt.MessageHandler) mqtt.Token {
	return c.SubscribeMultiple(map[string]byte{topic: qos}, callback)
}

func (c *FakeMQTTClient) SubscribeMultiple(filters map[string]byte, callback mqtt.MessageHandler) mqtt.Token {
	if c.SubscribeToken != nil && c.SubscribeToken.Err != nil {
		return c.SubscribeToken
	}
	c.mu.Lock()
	if c.subscriptions == nil {
		c.subscriptions = make(map[string]mqtt.MessageHandler)
	}
	for f := range filters {
		c.subscriptions[f] = callback
	}
	c.mu.Unlock()
	return &Token{}
}

func (c *FakeMQTTClient) Unsubscribe(topics ...string) mqtt.Token {
	c.mu.Lock()
	for _, t := range topics {
		delete(c.subscriptions, t)
	}
	c.mu.Unlock()
	return &Token{}
}

func (c *FakeMQTTClient) AddRoute(string, mqtt.MessageHandler) {}

func (c *FakeMQTTClient) OptionsReader() mqtt.ClientOptionsReader {
	return mqtt.ClientOptionsReader{}
}

// Published returns a copy of everything published so far.
func (c *FakeMQTTClient) Published() []Published {
	c.mu.Lock()
	defer c.mu.Unlock()
	return append([]Published(nil), c.published...)
}

// Subscriptions returns the active topic filters.
func (c *FakeMQTTClient) Subscriptions() []string {
	c.mu.Lock()
	defer c.mu.Unlock()
	out := make([]string, 0, len(c.subscriptions))
	for f := range c.subscriptions {
		out = append(out, f)
	}
	return out
}

// Deliver hands a message to the handler subscribed with exactly filter.
// It reports whether such a subscription exists.
func (c *FakeMQTTClient) Deliver(filter, topic string, payload []byte) bool {
	c.mu.Lock()
	h, ok := c.subscriptions[filter]
	c.mu.Unlock()
	if !ok {
		return false
	}
	h(c, &Message{TopicName: topic, Body: payload})
	return true
}

var _ mqtt.Message = (*Message)(nil)

// Message is an in-memory mqtt.Message.
type Message struct {
	TopicName string
	Body      []byte
	QosLevel  byte
}

func (m *Message) Duplicate() bool   { return false }
func (m *Message) Qos() byte         { return m.QosLevel }
func (m *Message) Retained() bool    { return false }
func (m *Message) Topic() string     { return m.TopicName }
func (m *Message) MessageID() uint16 { return 0 }
func (m *Message) Payload() []byte   { return m.Body }
func (m *Message) Ack()              {}
