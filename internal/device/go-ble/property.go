package goble

import (
	"strings"

	"github.com/go-ble/ble"
	"github.com/srg/thpgw/internal/device"
)

// BLEProperties wraps ble.Property bit flags.
// It implements the device.Properties interface.
type BLEProperties struct {
	value ble.Property
}

// NewProperties creates a Properties instance from ble.Property bit flags.
func NewProperties(p ble.Property) device.Properties {
	return &BLEProperties{value: p}
}

func (p *BLEProperties) Read() bool                 { return p.value&ble.CharRead != 0 }
func (p *BLEProperties) Write() bool                { return p.value&ble.CharWrite != 0 }
func (p *BLEProperties) WriteWithoutResponse() bool { return p.value&ble.CharWriteNR != 0 }
func (p *BLEProperties) Notify() bool               { return p.value&ble.CharNotify != 0 }

// String returns a comma-separated list of the set properties, e.g. "read,write".
func (p *BLEProperties) String() string {
	var names []string
	if p.Read() {
		names = append(names, "read")
	}
	if p.Write() {
		names = append(names, "write")
	}
	if p.WriteWithoutResponse() {
		names = append(names, "write-without-response")
	}
	if p.Notify() {
		names = append(names, "notify")
	}
	return strings.Join(names, ",")
}
