// Package device provides the Bluetooth Low Energy (BLE) central abstractions
// the gateway is built on.
//
// This package defines the transport-neutral contract for:
//   - Scanning for peripheral advertisements
//   - Connecting to a peripheral and discovering its GATT profile
//   - Characteristic write (with or without response) and read with timeouts
//   - Link-loss signalling through Connection.Done
//   - Structured errors shared by every backend (NotFoundError, ConnectionError)
//
// The go-ble backend lives in the go-ble subpackage.
package device
