package wiring

import (
	"context"
	"fmt"
	"os"
	"sync"
	"sync/atomic"
	"time"

	paho "github.com/eclipse/paho.mqtt.golang"

	"github.com/sophialabs/mapforge/internal/domain/processing"
	"github.com/sophialabs/mapforge/internal/domain/trace"
	inboundhttp "github.com/sophialabs/mapforge/internal/infrastructure/inbound/http"
	inboundmqtt "github.com/sophialabs/mapforge/internal/infrastructure/inbound/mqtt"
	"github.com/sophialabs/mapforge/internal/infrastructure/outbound/clock"
	"github.com/sophialabs/mapforge/internal/infrastructure/outbound/expression"
	"github.com/sophialabs/mapforge/internal/infrastructure/outbound/filesystem"
	"github.com/sophialabs/mapforge/internal/infrastructure/outbound/identity"
	"github.com/sophialabs/mapforge/internal/infrastructure/outbound/platform"
	"github.com/sophialabs/mapforge/internal/infrastructure/outbound/ratelimit"
	"github.com/sophialabs/mapforge/internal/infrastructure/outbound/sandbox"
	"github.com/sophialabs/mapforge/internal/infrastructure/outbound/template"
	"github.com/sophialabs/mapforge/internal/infrastructure/outbound/transport"
	"github.com/sophialabs/mapforge/internal/infrastructure/ports"
	"github.com/sophialabs/mapforge/internal/infrastructure/services"
	"github.com/sophialabs/mapforge/internal/infrastructure/usecases"
)

const expressionCacheSize = 256

// Params holds the subset of configuration needed to construct infrastructure components.
type Params struct {
	RootDir        string
	TraceSize      int
	RateLimiterTTL time.Duration
	Logger         ports.Logger
	Engine         string // "" = jsonata, "expr"

	// Platform is optional. Without a BaseURL identities are answered from
	// memory and REST requests fail.
	Platform   platform.Config
	SendLimits platform.SendLimits

	// MQTT is optional. Without a BrokerURL (or MQTTClient) there is no
	// consumer and PUBLISH requests fail.
	MQTT       transport.MQTTConfig
	MQTTClient paho.Client // overrides MQTT, used by tests
	Workers    int
	QueueSize  int
}

// Container owns the construction and lifecycle of all infrastructure components.
type Container struct {
	logger    ports.Logger
	server    *inboundhttp.Server
	consumer  *inboundmqtt.Consumer
	client    paho.Client
	loadUC    *usecases.LoadMappingsUseCase
	processUC *usecases.ProcessMessageUseCase
	routeUC   *usecases.RouteMessageUseCase
	buckets   *ratelimit.Buckets
	identity  *identity.CachedResolver
	traceBuf  *trace.RingBuffer
	closeOnce sync.Once
}

// New constructs all infrastructure components. Fallible operations (store,
// evaluator, broker connection) run before goroutine-starting operations
// (rate limiter sweeper) to avoid goroutine leaks on early failure.
func New(p Params) (*Container, error) {
	if _, err := os.Stat(p.RootDir); err != nil {
		return nil, fmt.Errorf("failed to access root directory: %w", err)
	}

	repo, err := filesystem.NewYAMLStore(p.RootDir)
	if err != nil {
		return nil, fmt.Errorf("failed to create store: %w", err)
	}
	svcCfg, err := repo.ServiceConfiguration(context.Background())
	if err != nil {
		return nil, fmt.Errorf("failed to load service configuration: %w", err)
	}

	evaluator, err := expression.New(p.Engine, expressionCacheSize)
	if err != nil {
		return nil, err
	}

	c := &Container{logger: p.Logger}

	// The consumer does not exist yet when the client connects; reconnects
	// after Start restore its subscriptions.
	var live atomic.Pointer[inboundmqtt.Consumer]
	mqttCfg := p.MQTT
	mqttCfg.OnConnect = func(paho.Client) {
		consumer := live.Load()
		if consumer == nil {
			return
		}
		if err := consumer.Resubscribe(); err != nil {
			p.Logger.Debug("resubscribe after connect skipped", "error", err)
		}
	}
	c.client = p.MQTTClient
	if c.client == nil && p.MQTT.BrokerURL != "" {
		if c.client, err = transport.NewMQTTClient(mqttCfg, p.Logger); err != nil {
			return nil, fmt.Errorf("failed to connect to broker: %w", err)
		}
	}

	// Start background goroutine only after all fallible ops succeed.
	c.buckets = ratelimit.NewBuckets(p.RateLimiterTTL)

	clk := clock.New()
	c.traceBuf = trace.NewRingBuffer(p.TraceSize)

	var (
		resolver processing.IdentityResolver
		rest     ports.Sender
		broker   ports.Sender
	)
	if p.Platform.BaseURL != "" {
		client := platform.NewClient(p.Platform)
		c.identity = identity.NewCachedResolver(platform.NewIdentityAPI(client), svcCfg.InventoryCacheSize)
		resolver = c.identity
		rest = platform.NewSender(client, c.buckets, p.SendLimits).WithIdentityCache(c.identity)
	} else {
		p.Logger.Warn("no platform configured, identities are resolved from memory only")
		resolver = identity.NewStaticResolver()
	}
	if c.client != nil {
		broker = transport.NewMQTTPublisher(c.client, 0)
	}

	extractor := processing.NewExtractor(evaluator, sandbox.NewRunner(), svcCfg.Budget())
	builder := processing.NewBuilder(resolver, svcCfg.Budget())

	c.loadUC = usecases.NewLoadMappingsUseCase(repo, p.Logger)
	c.processUC = usecases.NewProcessMessageUseCase(extractor, builder, transport.NewRouter(rest, broker), clk, p.Logger, c.traceBuf)
	c.processUC.SetServiceConfiguration(svcCfg)
	c.routeUC = usecases.NewRouteMessageUseCase(c.processUC, p.Logger)

	c.server = inboundhttp.NewServer(inboundhttp.UseCases{
		Load:    c.loadUC,
		Save:    usecases.NewSaveMappingUseCase(repo, clk, p.Logger),
		Delete:  usecases.NewDeleteMappingUseCase(repo, p.Logger),
		Process: c.processUC,
		Batch:   usecases.NewProcessBatchUseCase(c.processUC, p.Workers),
		Route:   c.routeUC,
		Render:  usecases.NewRenderTemplateUseCase(repo, template.NewCodeTemplateRenderer(clk)),
	}, repo, c.traceBuf, p.Logger)

	if c.client != nil {
		c.consumer = inboundmqtt.NewConsumer(c.client, c.routeUC, p.Logger, inboundmqtt.Options{
			Workers:   p.Workers,
			QueueSize: p.QueueSize,
			Qos:       1,
		})
		live.Store(c.consumer)
		c.server.OnRebuild(func(*services.MappingIndex) {
			if err := c.consumer.Resubscribe(); err != nil {
				p.Logger.Error("failed to update mqtt subscriptions", "error", err)
			}
		})
	}

	return c, nil
}

// Close releases resources held by the container. It is idempotent.
func (c *Container) Close() {
	c.closeOnce.Do(func() {
		if c.consumer != nil {
			c.consumer.Stop()
		}
		if c.client != nil {
			c.client.Disconnect(250)
		}
		c.buckets.Close()
	})
}

// Logger returns the logger passed at construction time.
func (c *Container) Logger() ports.Logger {
	return c.logger
}

// Server returns the HTTP API server.
func (c *Container) Server() *inboundhttp.Server {
	return c.server
}

// Consumer returns the MQTT consumer, or nil without a broker.
func (c *Container) Consumer() *inboundmqtt.Consumer {
	return c.consumer
}

// LoadMappingsUseCase returns the use case for loading and validating mappings.
func (c *Container) LoadMappingsUseCase() *usecases.LoadMappingsUseCase {
	return c.loadUC
}

// RouteMessageUseCase returns the use case dispatching messages to matching mappings.
func (c *Container) RouteMessageUseCase() *usecases.RouteMessageUseCase {
	return c.routeUC
}

// IdentityCache returns the platform identity cache, or nil without a platform.
func (c *Container) IdentityCache() *identity.CachedResolver {
	return c.identity
}

// TraceBuf returns the trace ring buffer.
func (c *Container) TraceBuf() *trace.RingBuffer {
	return c.traceBuf
}
