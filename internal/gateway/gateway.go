// Package gateway wires the sensor link, the pollers, the cache and the reporter
// into one running process.
package gateway

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/sirupsen/logrus"
	"github.com/srg/thpgw/internal/cache"
	"github.com/srg/thpgw/internal/device"
	"github.com/srg/thpgw/internal/httpapi"
	"github.com/srg/thpgw/internal/link"
	"github.com/srg/thpgw/internal/outbox"
	"github.com/srg/thpgw/internal/poller"
	"github.com/srg/thpgw/internal/report"
	"github.com/srg/thpgw/internal/sensor"
	"github.com/srg/thpgw/pkg/config"
	"golang.org/x/sync/errgroup"
)

// Status is a point-in-time view of the whole gateway
type Status struct {
	Link     link.Stats     `json:"link"`
	Polling  bool           `json:"polling"`
	Readings []cache.Entry  `json:"readings"`
	Pollers  []poller.Stats `json:"pollers"`
	Reporter report.Stats   `json:"reporter"`
}

// Gateway owns every long-running component
type Gateway struct {
	cfg    *config.Config
	logger *logrus.Logger

	link     *link.Link
	cache    *cache.Cache
	pollers  *poller.Set
	reporter *report.Reporter
	outbox   *outbox.Outbox
	mqtt     *report.MQTTSink
	api      *httpapi.Server

	mu      sync.Mutex
	runCtx  context.Context
	polling bool
}

// New builds the gateway from cfg. central is borrowed; the caller closes it.
func New(cfg *config.Config, central device.Central, logger *logrus.Logger) (*Gateway, error) {
	if logger == nil {
		logger = cfg.NewLogger()
	}
	pollCfg, err := PollerConfig(cfg)
	if err != nil {
		return nil, err
	}

	g := &Gateway{
		cfg:    cfg,
		logger: logger,
		cache:  cache.New(cfg.Poll.StaleAfter),
	}
	g.link = link.New(LinkConfig(cfg), central, logger)
	g.pollers = poller.NewSet(pollCfg, g.link, g.cache, logger)

	var sinks []report.Sink
	if cfg.Report.HTTP.URL != "" {
		sinks = append(sinks, report.NewHTTPSink(cfg.Report.HTTP.URL, cfg.Report.HTTP.Method, cfg.Report.HTTP.Timeout, logger))
	}
	if cfg.Report.MQTT.Broker != "" {
		g.mqtt = report.NewMQTTSink(report.MQTTConfig{
			Broker:   cfg.Report.MQTT.Broker,
			Port:     cfg.Report.MQTT.Port,
			ClientID: cfg.Report.MQTT.ClientID,
			Topic:    cfg.Report.MQTT.Topic,
			Username: cfg.Report.MQTT.Username,
			Password: cfg.Report.MQTT.Password,
			Retained: cfg.Report.MQTT.Retained,
		}, logger)
		sinks = append(sinks, g.mqtt)
	}
	if len(sinks) == 0 {
		return nil, errors.New("no report sink configured")
	}

	if cfg.Report.Outbox.Path != "" {
		g.outbox, err = outbox.Open(cfg.Report.Outbox.Path, cfg.Report.Outbox.MaxItems, logger)
		if err != nil {
			return nil, err
		}
	}

	g.reporter = report.New(report.Config{
		Interval:      cfg.Report.Interval,
		QueueSize:     cfg.Report.QueueSize,
		MaxElapsed:    cfg.Report.MaxElapsed,
		RetryInterval: cfg.Report.RetryInterval,
		SkipEmpty:     cfg.Report.SkipEmpty,
	}, g.cache, sinks, g.outbox, logger)

	if cfg.API.Listen != "" {
		g.api = httpapi.NewServer(cfg.API.Listen, controller{g}, logger)
	}
	return g, nil
}

// LinkConfig maps the sensor section onto a link configuration
func LinkConfig(cfg *config.Config) link.Config {
	return link.Config{
		Name:        cfg.Sensor.Name,
		Address:     cfg.Sensor.Address,
		ServiceUUID: cfg.Sensor.ServiceUUID,
		CharacteristicUUIDs: map[sensor.Kind]string{
			sensor.Temperature: cfg.Sensor.TemperatureUUID,
			sensor.Humidity:    cfg.Sensor.HumidityUUID,
			sensor.Pressure:    cfg.Sensor.PressureUUID,
		},
		ScanDelay:                cfg.Sensor.ScanDelay,
		ScanTimeout:              cfg.Sensor.ScanTimeout,
		ConnectTimeout:           cfg.Sensor.ConnectTimeout,
		DegradedAfter:            cfg.Sensor.DegradedAfter,
		ReconnectInitialInterval: cfg.Sensor.ReconnectInitial,
		ReconnectMaxInterval:     cfg.Sensor.ReconnectMax,
	}
}

// PollerConfig maps the poll section onto a poller configuration
func PollerConfig(cfg *config.Config) (poller.Config, error) {
	trigger, err := cfg.TriggerBytes()
	if err != nil {
		return poller.Config{}, fmt.Errorf("invalid trigger: %w", err)
	}
	return poller.Config{
		Interval:      cfg.Poll.Interval,
		Trigger:       trigger,
		OpTimeout:     cfg.Poll.OpTimeout,
		Retries:       cfg.Poll.Retries,
		RetryInterval: cfg.Poll.RetryInterval,
	}, nil
}

func (g *Gateway) Link() *link.Link { return g.link }
func (g *Gateway) Cache() *cache.Cache { return g.cache }
func (g *Gateway) Pollers() *poller.Set { return g.pollers }
func (g *Gateway) Reporter() *report.Reporter { return g.reporter }

// Run drives the link, the delivery workers and the control API until ctx is cancelled
// or one of them fails. Polling starts immediately when autostart is configured.
func (g *Gateway) Run(ctx context.Context) error {
	eg, ctx := errgroup.WithContext(ctx)

	g.mu.Lock()
	g.runCtx = ctx
	g.mu.Unlock()

	g.logger.WithFields(logrus.Fields{
		"sensor":          g.cfg.Sensor.Name,
		"poll_interval":   g.cfg.Poll.Interval,
		"report_interval": g.reporter.Interval(),
	}).Info("Gateway starting")

	if g.mqtt != nil {
		g.mqtt.Start()
	}
	eg.Go(func() error { return g.link.Run(ctx) })
	eg.Go(func() error { return g.reporter.Run(ctx) })
	if g.api != nil {
		eg.Go(func() error { return g.api.Run(ctx) })
	}

	if g.cfg.Poll.Autostart {
		g.StartPolling()
	}

	err := eg.Wait()
	g.StopPolling()
	if cerr := g.Close(); cerr != nil && err == nil {
		err = cerr
	}

	g.mu.Lock()
	g.runCtx = nil
	g.mu.Unlock()

	g.logger.Info("Gateway stopped")
	return err
}

// StartPolling starts the sensor pollers and the report timer together.
// Returns false when polling was already on.
func (g *Gateway) StartPolling() bool {
	g.mu.Lock()
	defer g.mu.Unlock()

	if g.polling {
		return false
	}
	ctx := g.runCtx
	if ctx == nil {
		ctx = context.Background()
	}
	g.pollers.Start(ctx)
	g.reporter.Start(ctx)
	g.polling = true
	g.logger.Info("Polling enabled")
	return true
}

// StopPolling stops the pollers and the report timer and clears the cache.
// Returns false when polling was already off.
func (g *Gateway) StopPolling() bool {
	g.mu.Lock()
	defer g.mu.Unlock()

	if !g.polling {
		return false
	}
	g.pollers.Stop()
	g.reporter.Stop()
	g.cache.Reset()
	g.polling = false
	g.logger.Info("Polling disabled, cache cleared")
	return true
}

// SetPolling switches polling on or off and returns whether anything changed
func (g *Gateway) SetPolling(enabled bool) bool {
	if enabled {
		return g.StartPolling()
	}
	return g.StopPolling()
}

// Polling reports whether the pollers and the report timer are on
func (g *Gateway) Polling() bool {
	g.mu.Lock()
	defer g.mu.Unlock()
	return g.polling
}

// Status collects the state of every component
func (g *Gateway) Status() Status {
	return Status{
		Link:     g.link.Stats(),
		Polling:  g.Polling(),
		Readings: g.cache.Snapshot(time.Now()),
		Pollers:  g.pollers.Stats(),
		Reporter: g.reporter.Stats(),
	}
}

// Close releases the outbox and the broker connection
func (g *Gateway) Close() error {
	if g.mqtt != nil {
		g.mqtt.Close()
	}
	if g.outbox != nil {
		return g.outbox.Close()
	}
	return nil
}

// controller adapts the gateway to the control API
type controller struct {
	g *Gateway
}

func (c controller) Status() any { return c.g.Status() }
func (c controller) SetPolling(enabled bool) bool { return c.g.SetPolling(enabled) }
