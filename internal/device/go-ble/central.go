package goble

import (
	"context"
	"fmt"
	"strings"
	"sync"

	"github.com/sirupsen/logrus"
	"github.com/srg/thpgw/internal/device"
)

// Central implements device.Central on top of go-ble.
// The platform adapter is opened on first use and reused: an HCI socket can only be opened once.
type Central struct {
	logger *logrus.Logger

	mu      sync.Mutex
	adapter Adapter
}

// NewCentral creates a Central; no hardware is touched until the first Scan or Connect
func NewCentral(logger *logrus.Logger) *Central {
	if logger == nil {
		logger = logrus.New()
	}
	return &Central{logger: logger}
}

func (c *Central) getAdapter() (Adapter, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.adapter != nil {
		return c.adapter, nil
	}
	a, err := AdapterFactory()
	if err != nil {
		return nil, fmt.Errorf("failed to create BLE device: %w", err)
	}
	c.adapter = a
	return a, nil
}

// Scan blocks until ctx is done, delivering every advertisement to handler
func (c *Central) Scan(ctx context.Context, allowDup bool, handler func(device.Advertisement)) error {
	a, err := c.getAdapter()
	if err != nil {
		return err
	}
	c.logger.WithField("allow_duplicates", allowDup).Debug("Scanning...")
	return a.Scan(ctx, allowDup, handler)
}

// Connect dials address. The returned connection has no services until Discover.
func (c *Central) Connect(ctx context.Context, address string, opts *device.ConnectOptions) (device.Connection, error) {
	if strings.TrimSpace(address) == "" {
		return nil, fmt.Errorf("device address is empty")
	}

	timeout := device.DefaultConnectTimeout
	if opts != nil && opts.ConnectTimeout > 0 {
		timeout = opts.ConnectTimeout
	}

	a, err := c.getAdapter()
	if err != nil {
		return nil, err
	}

	c.logger.WithFields(logrus.Fields{
		"address": address,
		"timeout": timeout,
	}).Info("Connecting to BLE device...")

	connCtx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	client, err := a.Dial(connCtx, address)
	if err != nil {
		return nil, fmt.Errorf("failed to connect to device with address %q: %w", address, err)
	}

	conn := newBLEConnection(address, client, c.logger)
	conn.monitor()

	c.logger.WithField("address", address).Info("BLE device connected successfully")
	return conn, nil
}

// Close stops the platform adapter if it was opened
func (c *Central) Close() error {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.adapter == nil {
		return nil
	}
	err := c.adapter.Stop()
	c.adapter = nil
	return err
}
