// Package transport delivers built requests to the broker or the platform.
package transport

import (
	"context"
	"errors"
	"fmt"
	"time"

	mqtt "github.com/eclipse/paho.mqtt.golang"

	"github.com/sophialabs/mapforge/internal/domain/jsonval"
	"github.com/sophialabs/mapforge/internal/domain/processing"
	"github.com/sophialabs/mapforge/internal/infrastructure/ports"
)

// DefaultTokenTimeout bounds how long a publish waits for the broker.
const DefaultTokenTimeout = 10 * time.Second

// ErrTimeout is returned when the broker does not confirm in time.
var ErrTimeout = errors.New("mqtt operation timed out")

// MQTTConfig describes the broker connection.
type MQTTConfig struct {
	BrokerURL string
	ClientID  string
	Username  string
	Password  string
	// OnConnect runs after every (re)connect, e.g. to restore subscriptions.
	OnConnect func(mqtt.Client)
}

// NewMQTTClient connects to the broker with automatic reconnects.
func NewMQTTClient(cfg MQTTConfig, logger ports.Logger) (mqtt.Client, error) {
	if cfg.BrokerURL == "" {
		return nil, errors.New("mqtt broker url is empty")
	}
	opts := mqtt.NewClientOptions().
		AddBroker(cfg.BrokerURL).
		SetClientID(cfg.ClientID).
		SetCleanSession(true).
		SetAutoReconnect(true).
		SetConnectRetry(true).
		SetConnectRetryInterval(5 * time.Second).
		SetOrderMatters(false).
		SetConnectionLostHandler(func(_ mqtt.Client, err error) {
			logger.Warn("mqtt connection lost", "broker", cfg.BrokerURL, "error", err)
		}).
		SetOnConnectHandler(func(c mqtt.Client) {
			logger.Info("mqtt connected", "broker", cfg.BrokerURL, "client_id", cfg.ClientID)
			if cfg.OnConnect != nil {
				cfg.OnConnect(c)
			}
		})
	if cfg.Username != "" {
		opts.SetUsername(cfg.Username)
		opts.SetPassword(cfg.Password)
	}

	client := mqtt.NewClient(opts)
	if err := wait(client.Connect(), DefaultTokenTimeout); err != nil {
		return nil, fmt.Errorf("connect to %s: %w", cfg.BrokerURL, err)
	}
	return client, nil
}

func wait(token mqtt.Token, timeout time.Duration) error {
	if !token.WaitTimeout(timeout) {
		return ErrTimeout
	}
	return token.Error()
}

var _ ports.Sender = (*MQTTPublisher)(nil)

// MQTTPublisher sends PUBLISH requests of OUTBOUND mappings to the broker.
type MQTTPublisher struct {
	client  mqtt.Client
	timeout time.Duration
}

// NewMQTTPublisher wraps a connected client. A zero timeout uses DefaultTokenTimeout.
func NewMQTTPublisher(client mqtt.Client, timeout time.Duration) *MQTTPublisher {
	if timeout <= 0 {
		timeout = DefaultTokenTimeout
	}
	return &MQTTPublisher{client: client, timeout: timeout}
}

// Send publishes the request body to req.Topic with the mapping's QoS.
func (p *MQTTPublisher) Send(ctx context.Context, req *processing.Request) (*jsonval.Value, error) {
	if req.Method != processing.MethodPublish {
		return nil, fmt.Errorf("method %s cannot be published", req.Method)
	}
	if req.Topic == "" {
		return nil, errors.New("publish without a topic")
	}
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	body, err := req.Body.MarshalJSON()
	if err != nil {
		return nil, fmt.Errorf("encode publish body: %w", err)
	}

	token := p.client.Publish(req.Topic, req.Qos.Level(), false, body)
	select {
	case <-token.Done():
		if err := token.Error(); err != nil {
			return nil, fmt.Errorf("publish %s: %w", req.Topic, err)
		}
	case <-ctx.Done():
		return nil, ctx.Err()
	case <-time.After(p.timeout):
		return nil, fmt.Errorf("publish %s: %w", req.Topic, ErrTimeout)
	}
	return jsonval.Null(), nil
}
