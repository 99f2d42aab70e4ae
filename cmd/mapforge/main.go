package main

import (
	"context"
	"flag"
	"fmt"
	"os"

	"github.com/sophialabs/mapforge/internal/app"
)

func main() {
	cfg := app.DefaultConfig()
	flag.StringVar(&cfg.RootDir, "root", cfg.RootDir, "root directory of the mapping store")
	flag.IntVar(&cfg.Port, "port", cfg.Port, "HTTP server port")
	flag.IntVar(&cfg.TraceSize, "trace-size", cfg.TraceSize, "number of trace entries to keep")
	flag.StringVar(&cfg.LogLevel, "log-level", cfg.LogLevel, "log level (debug, info, warn, error)")
	flag.StringVar(&cfg.LogFormat, "log-format", cfg.LogFormat, "log format (text, json)")
	flag.StringVar(&cfg.Engine, "engine", cfg.Engine, "expression engine for substitutions (jsonata, expr)")

	flag.StringVar(&cfg.PlatformURL, "platform-url", cfg.PlatformURL, "platform base URL, empty for offline mode")
	flag.StringVar(&cfg.PlatformTenant, "platform-tenant", cfg.PlatformTenant, "platform tenant")
	flag.StringVar(&cfg.PlatformUser, "platform-user", cfg.PlatformUser, "platform user")
	flag.StringVar(&cfg.PlatformPassword, "platform-password", os.Getenv("MAPFORGE_PLATFORM_PASSWORD"), "platform password (default $MAPFORGE_PLATFORM_PASSWORD)")
	flag.Float64Var(&cfg.SendRate, "send-rate", cfg.SendRate, "requests per second per target API, 0 = unlimited")
	flag.IntVar(&cfg.SendBurst, "send-burst", cfg.SendBurst, "burst size of the send rate limit")

	flag.StringVar(&cfg.BrokerURL, "broker", cfg.BrokerURL, "MQTT broker URL, e.g. tcp://localhost:1883; empty disables the consumer")
	flag.StringVar(&cfg.BrokerClientID, "client-id", cfg.BrokerClientID, "MQTT client id")
	flag.StringVar(&cfg.BrokerUser, "broker-user", cfg.BrokerUser, "MQTT user")
	flag.StringVar(&cfg.BrokerPassword, "broker-password", os.Getenv("MAPFORGE_BROKER_PASSWORD"), "MQTT password (default $MAPFORGE_BROKER_PASSWORD)")
	flag.IntVar(&cfg.Workers, "workers", cfg.Workers, "concurrent message workers")
	flag.IntVar(&cfg.QueueSize, "queue-size", cfg.QueueSize, "messages buffered for the workers")
	flag.Parse()

	a, err := app.New(cfg)
	if err != nil {
		fmt.Fprintf(os.Stderr, "failed to initialize: %v\n", err)
		os.Exit(1)
	}

	if err := a.Run(context.Background()); err != nil {
		fmt.Fprintf(os.Stderr, "error: %v\n", err)
		os.Exit(1)
	}
}
