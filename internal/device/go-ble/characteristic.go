package goble

import (
	"context"
	"fmt"
	"time"

	"github.com/go-ble/ble"
	"github.com/srg/thpgw/internal/device"
)

const (
	// DefaultReadTimeout is the default timeout for characteristic read operations.
	// This prevents indefinite blocking if a device becomes unresponsive during a read.
	DefaultReadTimeout = 5 * time.Second

	// DefaultWriteTimeout is the default timeout for characteristic write operations.
	DefaultWriteTimeout = 5 * time.Second

	// DefaultDiscoverTimeout bounds GATT profile discovery.
	DefaultDiscoverTimeout = 10 * time.Second

	// DefaultBLEWriteChunkSize is the maximum number of bytes to write in a single BLE operation.
	// BLE 4.0/4.1 defines ATT_MTU of 23 bytes (20 bytes payload after ATT header overhead).
	DefaultBLEWriteChunkSize = 20

	// DefaultBLEWriteDelay is the delay between consecutive write chunks.
	DefaultBLEWriteDelay = 10 * time.Millisecond
)

// BLECharacteristic is a discovered GATT characteristic bound to a live connection
type BLECharacteristic struct {
	uuid       string
	properties device.Properties
	BLEChar    *ble.Characteristic
	connection *BLEConnection
}

func newCharacteristic(c *ble.Characteristic, conn *BLEConnection) *BLECharacteristic {
	return &BLECharacteristic{
		uuid:       device.NormalizeUUID(c.UUID.String()),
		properties: NewProperties(c.Property),
		BLEChar:    c,
		connection: conn,
	}
}

func (c *BLECharacteristic) UUID() string {
	return c.uuid
}

func (c *BLECharacteristic) GetProperties() device.Properties {
	return c.properties
}

// Read reads the current value of the characteristic from the device with the specified timeout.
// A zero timeout uses DefaultReadTimeout.
func (c *BLECharacteristic) Read(timeout time.Duration) ([]byte, error) {
	if timeout <= 0 {
		timeout = DefaultReadTimeout
	}
	if !c.properties.Read() {
		return nil, fmt.Errorf("characteristic %s does not support read: %w", c.uuid, device.ErrUnsupported)
	}

	var data []byte
	err := c.connection.do(context.Background(), timeout, func(client GATTClient) error {
		var err error
		data, err = client.ReadCharacteristic(c.BLEChar)
		return err
	})
	if err != nil {
		return nil, fmt.Errorf("failed to read characteristic %s: %w", c.uuid, err)
	}
	return data, nil
}

// Write writes data to the characteristic, in DefaultBLEWriteChunkSize chunks.
// withResponse selects an ATT Write Request over a Write Command.
// A zero timeout uses DefaultWriteTimeout; it bounds the whole write.
func (c *BLECharacteristic) Write(data []byte, withResponse bool, timeout time.Duration) error {
	if timeout <= 0 {
		timeout = DefaultWriteTimeout
	}

	canWrite := c.properties.Write()
	canWriteNoResponse := c.properties.WriteWithoutResponse()
	if withResponse && !canWrite {
		return fmt.Errorf("characteristic %s does not support write with response: %w", c.uuid, device.ErrUnsupported)
	}
	if !withResponse && !canWriteNoResponse {
		return fmt.Errorf("characteristic %s does not support write without response: %w", c.uuid, device.ErrUnsupported)
	}

	err := c.connection.do(context.Background(), timeout, func(client GATTClient) error {
		remaining := data
		for len(remaining) > 0 {
			n := len(remaining)
			if n > DefaultBLEWriteChunkSize {
				n = DefaultBLEWriteChunkSize
			}
			if err := client.WriteCharacteristic(c.BLEChar, remaining[:n], !withResponse); err != nil {
				return err
			}
			remaining = remaining[n:]
			if len(remaining) > 0 {
				time.Sleep(DefaultBLEWriteDelay)
			}
		}
		return nil
	})
	if err != nil {
		return fmt.Errorf("failed to write characteristic %s: %w", c.uuid, err)
	}
	return nil
}
