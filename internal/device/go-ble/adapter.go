package goble

import (
	"context"

	"github.com/go-ble/ble"
	"github.com/srg/thpgw/internal/device"
)

// GATTClient is the subset of ble.Client used by a BLEConnection.
// ble.Client satisfies it; tests provide mocks.
type GATTClient interface {
	DiscoverProfile(force bool) (*ble.Profile, error)
	ReadCharacteristic(c *ble.Characteristic) ([]byte, error)
	WriteCharacteristic(c *ble.Characteristic, value []byte, noRsp bool) error
	CancelConnection() error
}

// Adapter is the local HCI/CoreBluetooth device as seen by the Central.
type Adapter interface {
	Scan(ctx context.Context, allowDup bool, handler func(device.Advertisement)) error
	Dial(ctx context.Context, address string) (GATTClient, error)
	Stop() error
}

// AdapterFactory creates the platform Adapter (can be overridden in tests)
//
//nolint:revive // AdapterFactory name is intentional for test mocking
var AdapterFactory = func() (Adapter, error) {
	dev, err := newDefaultDevice()
	if err != nil {
		return nil, NormalizeError(err)
	}
	return NewDeviceAdapter(dev), nil
}

// deviceAdapter wraps ble.Device to implement the Adapter interface
type deviceAdapter struct {
	dev ble.Device
}

// NewDeviceAdapter wraps a go-ble device.
func NewDeviceAdapter(dev ble.Device) Adapter {
	return &deviceAdapter{dev: dev}
}

// Scan wraps the raw ble.Device.Scan to convert ble.Advertisement to the device.Advertisement
func (a *deviceAdapter) Scan(ctx context.Context, allowDup bool, handler func(device.Advertisement)) error {
	bleHandler := func(adv ble.Advertisement) {
		handler(NewBLEAdvertisement(adv))
	}
	return NormalizeError(a.dev.Scan(ctx, allowDup, bleHandler))
}

func (a *deviceAdapter) Dial(ctx context.Context, address string) (GATTClient, error) {
	client, err := a.dev.Dial(ctx, ble.NewAddr(address))
	if err != nil {
		return nil, NormalizeError(err)
	}
	return client, nil
}

func (a *deviceAdapter) Stop() error {
	return a.dev.Stop()
}
