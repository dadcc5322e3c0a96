package report

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	mqtt "github.com/eclipse/paho.mqtt.golang"
	"github.com/sirupsen/logrus"
)

// MQTTConfig describes the broker connection of an MQTTSink
type MQTTConfig struct {
	Broker         string
	Port           int
	ClientID       string
	Topic          string
	Username       string
	Password       string
	PublishTimeout time.Duration
	Retained       bool
}

// ErrBrokerUnavailable is returned while the broker connection is being established or restored
var ErrBrokerUnavailable = errors.New("mqtt broker not connected")

// MQTTSink publishes reports with QoS 1
type MQTTSink struct {
	cfg    MQTTConfig
	client mqtt.Client
	logger *logrus.Logger

	mu      sync.Mutex
	connect mqtt.Token
}

// NewMQTTSink builds the paho client; nothing is dialled until Start or the first Deliver
func NewMQTTSink(cfg MQTTConfig, logger *logrus.Logger) *MQTTSink {
	if logger == nil {
		logger = logrus.New()
	}
	if cfg.PublishTimeout <= 0 {
		cfg.PublishTimeout = 5 * time.Second
	}
	s := &MQTTSink{cfg: cfg, logger: logger}

	opts := mqtt.NewClientOptions()
	opts.AddBroker(fmt.Sprintf("tcp://%s:%d", cfg.Broker, cfg.Port))
	opts.SetClientID(cfg.ClientID)
	if cfg.Username != "" {
		opts.SetUsername(cfg.Username)
		opts.SetPassword(cfg.Password)
	}
	opts.SetCleanSession(true)
	opts.SetAutoReconnect(true)
	opts.SetConnectRetry(true)
	opts.SetConnectRetryInterval(5 * time.Second)
	opts.SetMaxReconnectInterval(60 * time.Second)
	opts.SetKeepAlive(30 * time.Second)
	opts.SetPingTimeout(10 * time.Second)

	opts.SetOnConnectHandler(func(_ mqtt.Client) {
		logger.WithFields(logrus.Fields{
			"broker": cfg.Broker,
			"port":   cfg.Port,
		}).Info("MQTT connected")
	})
	opts.SetConnectionLostHandler(func(_ mqtt.Client, err error) {
		logger.WithError(err).Warn("MQTT connection lost")
	})

	s.client = mqtt.NewClient(opts)
	return s
}

// newMQTTSinkWithClient is used by tests to inject a client
func newMQTTSinkWithClient(cfg MQTTConfig, client mqtt.Client, logger *logrus.Logger) *MQTTSink {
	if cfg.PublishTimeout <= 0 {
		cfg.PublishTimeout = 5 * time.Second
	}
	return &MQTTSink{cfg: cfg, client: client, logger: logger}
}

func (s *MQTTSink) Name() string {
	return "mqtt"
}

// Start begins connecting to the broker in the background. The client is dialled
// once; connect retry and auto-reconnect keep it alive afterwards.
func (s *MQTTSink) Start() {
	_ = s.connected()
}

// connected never blocks. It returns ErrBrokerUnavailable until the first
// connection completes and while the client is reconnecting.
func (s *MQTTSink) connected() error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.connect == nil {
		s.logger.WithField("broker", s.cfg.Broker).Debug("Connecting to MQTT broker...")
		s.connect = s.client.Connect()
	}
	select {
	case <-s.connect.Done():
	default:
		return ErrBrokerUnavailable
	}
	if err := s.connect.Error(); err != nil {
		// dial again on the next call
		s.connect = nil
		return fmt.Errorf("mqtt connect: %w", err)
	}
	if !s.client.IsConnected() {
		return ErrBrokerUnavailable
	}
	return nil
}

// Deliver publishes payload, waiting at most PublishTimeout for the broker's ack
func (s *MQTTSink) Deliver(ctx context.Context, payload []byte) error {
	if err := s.connected(); err != nil {
		return err
	}

	ctx, cancel := context.WithTimeout(ctx, s.cfg.PublishTimeout)
	defer cancel()

	token := s.client.Publish(s.cfg.Topic, 1, s.cfg.Retained, payload)
	select {
	case <-token.Done():
	case <-ctx.Done():
		return fmt.Errorf("publish to %s: %w", s.cfg.Topic, ctx.Err())
	}
	if err := token.Error(); err != nil {
		return fmt.Errorf("publish report: %w", err)
	}

	s.logger.WithField("topic", s.cfg.Topic).Debug("Report published over MQTT")
	return nil
}

// IsConnected returns whether the broker connection is up
func (s *MQTTSink) IsConnected() bool {
	return s.client.IsConnected()
}

// Close disconnects from the broker. Safe to call multiple times.
func (s *MQTTSink) Close() {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.connect == nil {
		return
	}
	s.client.Disconnect(250)
	s.connect = nil
}
