package goble

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/go-ble/ble"
	"github.com/sirupsen/logrus"
	"github.com/srg/thpgw/internal/device"
	"github.com/srg/thpgw/internal/groutine"
)

// BLEConnection represents a live GATT client connection to one peripheral
type BLEConnection struct {
	address string
	client  GATTClient
	logger  *logrus.Logger

	// GATT operations are serialized: the peripheral handles one ATT request at a time
	opMutex sync.Mutex

	connMutex sync.RWMutex
	services  map[string]*BLEService

	done      chan struct{}
	closeOnce sync.Once
	err       error
}

func newBLEConnection(address string, client GATTClient, logger *logrus.Logger) *BLEConnection {
	return &BLEConnection{
		address:  address,
		client:   client,
		logger:   logger,
		services: make(map[string]*BLEService),
		done:     make(chan struct{}),
	}
}

// populate builds the service/characteristic tree from a discovered profile
func (c *BLEConnection) populate(profile *ble.Profile) {
	c.connMutex.Lock()
	defer c.connMutex.Unlock()

	for _, bleSvc := range profile.Services {
		svcUUID := device.NormalizeUUID(bleSvc.UUID.String())
		svc, ok := c.services[svcUUID]
		if !ok {
			svc = &BLEService{
				uuid:            svcUUID,
				Characteristics: make(map[string]*BLECharacteristic),
			}
			c.services[svcUUID] = svc
		}

		for _, bleChar := range bleSvc.Characteristics {
			char := newCharacteristic(bleChar, c)
			svc.Characteristics[char.uuid] = char
			c.logger.WithFields(logrus.Fields{
				"service_uuid": svcUUID,
				"char_uuid":    char.uuid,
				"properties":   char.properties,
			}).Debug("Found characteristic")
		}
	}
}

// monitor watches the client's Disconnected() channel when the backend provides one
func (c *BLEConnection) monitor() {
	dc, ok := c.client.(interface{ Disconnected() <-chan struct{} })
	if !ok {
		c.logger.Debug("Client does not expose Disconnected(), link loss is detected on I/O errors only")
		return
	}

	groutine.Go(context.Background(), "ble-connection-monitor", func(context.Context) {
		select {
		case <-dc.Disconnected():
			c.logger.WithField("address", c.address).Warn("Peripheral dropped the connection")
			c.close(device.ErrNotConnected)
		case <-c.done:
		}
	})
}

func (c *BLEConnection) close(cause error) bool {
	closed := false
	c.closeOnce.Do(func() {
		c.connMutex.Lock()
		c.err = cause
		c.connMutex.Unlock()
		close(c.done)
		closed = true
	})
	return closed
}

// Discover fetches the GATT profile and builds the service tree, bounded by ctx
// and DefaultDiscoverTimeout.
func (c *BLEConnection) Discover(ctx context.Context) error {
	c.logger.WithField("address", c.address).Debug("Discovering services and characteristics...")

	var profile *ble.Profile
	err := c.do(ctx, DefaultDiscoverTimeout, func(client GATTClient) error {
		var err error
		profile, err = client.DiscoverProfile(true)
		return err
	})
	if err != nil {
		if derr := c.Disconnect(); derr != nil {
			c.logger.WithError(derr).Warn("Failed to cancel connection after profile discovery failure")
		}
		return fmt.Errorf("failed to discover profile: %w", err)
	}

	c.populate(profile)
	c.logger.WithFields(logrus.Fields{
		"address":  c.address,
		"services": len(profile.Services),
	}).Info("GATT profile discovered")
	return nil
}

// do runs op against the client under the operation lock, bounded by timeout and ctx.
// The op keeps running in the background after a timeout; the lock is held until it returns.
func (c *BLEConnection) do(ctx context.Context, timeout time.Duration, op func(GATTClient) error) error {
	select {
	case <-c.done:
		return device.ErrNotConnected
	default:
	}

	result := make(chan error, 1)
	groutine.Go(context.Background(), "ble-gatt-op", func(context.Context) {
		c.opMutex.Lock()
		defer c.opMutex.Unlock()
		result <- NormalizeError(op(c.client))
	})

	select {
	case err := <-result:
		if device.IsConnectionState(err, device.NotConnected) {
			c.close(device.ErrNotConnected)
		}
		return err
	case <-time.After(timeout):
		return fmt.Errorf("operation timed out after %v: %w", timeout, device.ErrTimeout)
	case <-ctx.Done():
		return ctx.Err()
	case <-c.done:
		return device.ErrNotConnected
	}
}

func (c *BLEConnection) Address() string {
	return c.address
}

// Services returns all discovered services sorted by UUID
func (c *BLEConnection) Services() []device.Service {
	c.connMutex.RLock()
	defer c.connMutex.RUnlock()

	result := make([]device.Service, 0, len(c.services))
	for _, v := range c.services {
		result = append(result, v)
	}
	sort.Slice(result, func(i, j int) bool {
		return result[i].UUID() < result[j].UUID()
	})
	return result
}

// GetService retrieves a service by UUID in any accepted textual form.
// Returns a NotFoundError if the service is not found.
func (c *BLEConnection) GetService(uuid string) (device.Service, error) {
	c.connMutex.RLock()
	defer c.connMutex.RUnlock()

	svc, ok := c.services[device.NormalizeUUID(uuid)]
	if !ok {
		return nil, &device.NotFoundError{Resource: "service", UUIDs: []string{uuid}}
	}
	return svc, nil
}

// GetCharacteristic retrieves a characteristic by service and characteristic UUID.
// Returns a NotFoundError if the service or characteristic is not found.
func (c *BLEConnection) GetCharacteristic(service, uuid string) (device.Characteristic, error) {
	c.connMutex.RLock()
	defer c.connMutex.RUnlock()

	svc, ok := c.services[device.NormalizeUUID(service)]
	if !ok {
		return nil, &device.NotFoundError{Resource: "service", UUIDs: []string{service}}
	}

	char, ok := svc.Characteristics[device.NormalizeUUID(uuid)]
	if !ok {
		return nil, &device.NotFoundError{Resource: "characteristic", UUIDs: []string{service, uuid}}
	}
	return char, nil
}

func (c *BLEConnection) Done() <-chan struct{} {
	return c.done
}

func (c *BLEConnection) Err() error {
	c.connMutex.RLock()
	defer c.connMutex.RUnlock()
	return c.err
}

// Disconnect tears down the link. Calling it more than once is a no-op.
func (c *BLEConnection) Disconnect() error {
	if !c.close(context.Canceled) {
		c.logger.Debug("Disconnect called but already disconnected")
		return nil
	}

	c.logger.WithField("address", c.address).Info("Disconnecting BLE device...")
	if err := c.client.CancelConnection(); err != nil {
		err = NormalizeError(err)
		if errors.Is(err, device.ErrNotConnected) {
			return nil
		}
		return fmt.Errorf("failed to disconnect: %w", err)
	}
	return nil
}
