package device

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"
)

// NotFoundError represents an error when a GATT resource is not found
type NotFoundError struct {
	Resource string   // "service", "characteristic"
	UUIDs    []string // One or more UUIDs (e.g., [serviceUUID] or [serviceUUID, charUUID])
}

func (e *NotFoundError) Error() string {
	if len(e.UUIDs) == 0 {
		return fmt.Sprintf("%s not found", e.Resource)
	}
	if len(e.UUIDs) == 1 {
		return fmt.Sprintf("%s %q not found", e.Resource, e.UUIDs[0])
	}
	// characteristic is in service
	return fmt.Sprintf("%s %q not found in service %q", e.Resource, e.UUIDs[len(e.UUIDs)-1], e.UUIDs[0])
}

// ConnectionState represents the specific kind of connection state failure
type ConnectionState string

const (
	NotConnected     ConnectionState = "not_connected"
	AlreadyConnected ConnectionState = "already_connected"
	NotInitialized   ConnectionState = "not_initialized"
	BluetoothOff     ConnectionState = "bluetooth_off"
)

// ConnectionError represents any connection-related problem
type ConnectionError struct {
	State ConnectionState
	Msg   string
}

// Error implements the error interface
func (e *ConnectionError) Error() string {
	if e == nil {
		return "<nil>"
	}
	if e.Msg == "" {
		return string(e.State)
	}
	return fmt.Sprintf("%s: %s", e.State, e.Msg)
}

// Is allows errors.Is to compare ConnectionError values by State
func (e *ConnectionError) Is(target error) bool {
	if e == nil {
		return false
	}
	t, ok := target.(*ConnectionError)
	if !ok {
		return false
	}
	return e.State == t.State
}

// Predefined sentinel errors for connection states
var (
	ErrNotConnected     = &ConnectionError{State: NotConnected}
	ErrAlreadyConnected = &ConnectionError{State: AlreadyConnected}
	ErrNotInitialized   = &ConnectionError{State: NotInitialized}
	ErrBluetoothOff     = &ConnectionError{State: BluetoothOff, Msg: "Bluetooth is turned off - please enable Bluetooth and retry"}
)

// Operation errors
var (
	ErrTimeout     = errors.New("timeout")
	ErrUnsupported = errors.New("unsupported")
)

// IsConnectionState reports whether err is a ConnectionError with the given state
func IsConnectionState(err error, state ConnectionState) bool {
	var cerr *ConnectionError
	if errors.As(err, &cerr) {
		return cerr.State == state
	}
	return false
}

// Advertisement is a single advertising report seen during a scan
type Advertisement interface {
	LocalName() string
	Addr() string
	RSSI() int
	Connectable() bool
	Services() []string
	ManufacturerData() []byte
}

// Central is the local BLE adapter acting in the central role
type Central interface {
	// Scan blocks, delivering advertisements to handler, until ctx is done.
	Scan(ctx context.Context, allowDup bool, handler func(Advertisement)) error
	// Connect dials the peripheral. The GATT profile is fetched by Connection.Discover.
	Connect(ctx context.Context, address string, opts *ConnectOptions) (Connection, error)
	// Close releases the adapter.
	Close() error
}

// Connection represents a live GATT client connection
type Connection interface {
	Address() string
	// Discover fetches the GATT profile; services and characteristics are empty until it succeeds.
	// A failed discovery disconnects.
	Discover(ctx context.Context) error
	Services() []Service
	GetService(uuid string) (Service, error)
	GetCharacteristic(service, uuid string) (Characteristic, error)
	Disconnect() error

	// Done is closed once the link is gone, either by Disconnect or because
	// the peripheral dropped it. Err reports the cause.
	Done() <-chan struct{}
	Err() error
}

// Service represents a GATT service
type Service interface {
	UUID() string
	GetCharacteristics() []Characteristic
}

// Properties reports what a characteristic supports
type Properties interface {
	Read() bool
	Write() bool
	WriteWithoutResponse() bool
	Notify() bool
}

// CharacteristicReader provides read operations
type CharacteristicReader interface {
	Read(timeout time.Duration) ([]byte, error)
}

// CharacteristicWriter provides write operations
type CharacteristicWriter interface {
	Write(data []byte, withResponse bool, timeout time.Duration) error
}

// Characteristic combines info + operations
type Characteristic interface {
	UUID() string
	GetProperties() Properties
	CharacteristicReader
	CharacteristicWriter
}

// ConnectOptions defines BLE connection options
type ConnectOptions struct {
	ConnectTimeout time.Duration
}

// DefaultConnectTimeout is used when ConnectOptions is nil or has no timeout
const DefaultConnectTimeout = 30 * time.Second

// MatchesName reports whether the advertised local name contains want.
// An empty want never matches.
func MatchesName(adv Advertisement, want string) bool {
	if want == "" || adv == nil {
		return false
	}
	return strings.Contains(adv.LocalName(), want)
}

// MatchesAddress reports whether the advertisement comes from address, ignoring case.
func MatchesAddress(adv Advertisement, address string) bool {
	if address == "" || adv == nil {
		return false
	}
	return strings.EqualFold(adv.Addr(), address)
}
