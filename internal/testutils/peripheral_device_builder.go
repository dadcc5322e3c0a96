package testutils

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"sync"

	blelib "github.com/go-ble/ble"
	"github.com/srg/thpgw/internal/device"
	goble "github.com/srg/thpgw/internal/device/go-ble"
	"github.com/srg/thpgw/internal/testutils/mocks"
	"github.com/stretchr/testify/mock"
)

// createMockUUID creates a ble.UUID from a string for testing
func createMockUUID(name string) blelib.UUID {
	// Parse as proper UUID - will panic if invalid, which is fine for tests
	return blelib.MustParse(name)
}

// CharacteristicConfig represents a BLE characteristic configuration for mocking
type CharacteristicConfig struct {
	UUID       string `json:"uuid"`
	Properties string `json:"properties,omitempty"` // e.g., "read,write,notify"
	Value      []byte `json:"value,omitempty"`
}

// ServiceConfig represents a BLE service configuration for mocking
type ServiceConfig struct {
	UUID            string                 `json:"uuid"`
	Characteristics []CharacteristicConfig `json:"characteristics,omitempty"`
}

// DeviceProfileConfig represents the complete device profile for mocking
type DeviceProfileConfig struct {
	Services []ServiceConfig `json:"services"`
}

// WriteRecord is one GATT write observed by the mock peripheral
type WriteRecord struct {
	UUID         string
	Data         []byte
	WithResponse bool
}

// PeripheralDeviceBuilder builds a mocked go-ble adapter with one peripheral behind it.
// Characteristic values stay mutable after Build: tests change them with SetValue
// and drop the link with DropConnection.
type PeripheralDeviceBuilder struct {
	profile            DeviceProfileConfig
	scanAdvertisements []device.Advertisement

	mu           sync.Mutex
	values       map[string][]byte
	readErrors   map[string]error
	writeErrors  map[string]error
	writes       []WriteRecord
	reads        map[string]int
	dialErr      error
	discoverErr  error
	dials        int
	disconnected chan struct{}
}

// NewPeripheralDeviceBuilder creates a new peripheral device builder
func NewPeripheralDeviceBuilder() *PeripheralDeviceBuilder {
	return &PeripheralDeviceBuilder{
		profile: DeviceProfileConfig{
			Services: []ServiceConfig{},
		},
		values:      make(map[string][]byte),
		readErrors:  make(map[string]error),
		writeErrors: make(map[string]error),
		reads:       make(map[string]int),
	}
}

// WithService adds a service to the device profile
func (b *PeripheralDeviceBuilder) WithService(uuid string) *PeripheralDeviceBuilder {
	b.profile.Services = append(b.profile.Services, ServiceConfig{
		UUID:            uuid,
		Characteristics: []CharacteristicConfig{},
	})
	return b
}

// WithCharacteristic adds a characteristic to the last added service
func (b *PeripheralDeviceBuilder) WithCharacteristic(uuid, properties string, value []byte) *PeripheralDeviceBuilder {
	if len(b.profile.Services) == 0 {
		panic("WithCharacteristic: no service added yet, call WithService first")
	}

	lastServiceIdx := len(b.profile.Services) - 1
	b.profile.Services[lastServiceIdx].Characteristics = append(
		b.profile.Services[lastServiceIdx].Characteristics, CharacteristicConfig{
			UUID:       uuid,
			Properties: properties,
			Value:      value,
		})
	return b
}

// FromJSON fills the device profile from JSON
func (b *PeripheralDeviceBuilder) FromJSON(jsonStrFmt string, args ...interface{}) *PeripheralDeviceBuilder {
	jsonStr := fmt.Sprintf(jsonStrFmt, args...)

	var config DeviceProfileConfig
	if err := json.Unmarshal([]byte(jsonStr), &config); err != nil {
		panic(fmt.Sprintf("PeripheralDeviceBuilder.FromJSON: failed to unmarshal: %v", err))
	}

	b.profile = config
	return b
}

// WithScanAdvertisements returns an AdvertisementArrayBuilder that will return this PeripheralDeviceBuilder on Build()
func (b *PeripheralDeviceBuilder) WithScanAdvertisements() *AdvertisementArrayBuilder[*PeripheralDeviceBuilder] {
	arrayBuilder := NewAdvertisementArrayBuilder[*PeripheralDeviceBuilder]()
	arrayBuilder.parent = b
	arrayBuilder.buildFunc = func(parent *PeripheralDeviceBuilder, ads []device.Advertisement) *PeripheralDeviceBuilder {
		parent.scanAdvertisements = append(parent.scanAdvertisements, ads...)
		return parent
	}
	return arrayBuilder
}

// WithDialError makes every Dial fail with err
func (b *PeripheralDeviceBuilder) WithDialError(err error) *PeripheralDeviceBuilder {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.dialErr = err
	return b
}

// WithDiscoverError makes profile discovery fail with err
func (b *PeripheralDeviceBuilder) WithDiscoverError(err error) *PeripheralDeviceBuilder {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.discoverErr = err
	return b
}

// WithReadError makes reads of the characteristic fail with err; nil clears it
func (b *PeripheralDeviceBuilder) WithReadError(charUUID string, err error) *PeripheralDeviceBuilder {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.readErrors[device.NormalizeUUID(charUUID)] = err
	return b
}

// WithWriteError makes writes to the characteristic fail with err; nil clears it
func (b *PeripheralDeviceBuilder) WithWriteError(charUUID string, err error) *PeripheralDeviceBuilder {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.writeErrors[device.NormalizeUUID(charUUID)] = err
	return b
}

// SetValue replaces the value returned by subsequent reads of the characteristic
func (b *PeripheralDeviceBuilder) SetValue(charUUID string, value []byte) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.values[device.NormalizeUUID(charUUID)] = append([]byte(nil), value...)
}

// Writes returns every write observed so far
func (b *PeripheralDeviceBuilder) Writes() []WriteRecord {
	b.mu.Lock()
	defer b.mu.Unlock()
	return append([]WriteRecord(nil), b.writes...)
}

// Reads returns how many times the characteristic was read
func (b *PeripheralDeviceBuilder) Reads(charUUID string) int {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.reads[device.NormalizeUUID(charUUID)]
}

// Dials returns how many connections were attempted
func (b *PeripheralDeviceBuilder) Dials() int {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.dials
}

// DropConnection simulates the peripheral going away on the current connection
func (b *PeripheralDeviceBuilder) DropConnection() {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.disconnected != nil {
		close(b.disconnected)
		b.disconnected = nil
	}
}

// GetServices returns the configured services
func (b *PeripheralDeviceBuilder) GetServices() []ServiceConfig {
	return b.profile.Services
}

// parseCharacteristicProperties converts a comma-separated property string to ble.Property flags
func parseCharacteristicProperties(props string) blelib.Property {
	if strings.TrimSpace(props) == "" {
		return blelib.CharRead | blelib.CharWrite | blelib.CharNotify // default
	}

	var property blelib.Property
	for _, p := range strings.Split(props, ",") {
		switch strings.TrimSpace(p) {
		case "read":
			property |= blelib.CharRead
		case "write":
			property |= blelib.CharWrite
		case "write-without-response", "writenr":
			property |= blelib.CharWriteNR
		case "notify":
			property |= blelib.CharNotify
		case "indicate":
			property |= blelib.CharIndicate
		default:
			panic(fmt.Sprintf("parseCharacteristicProperties: unknown property %q", p))
		}
	}
	return property
}

// Profile builds the ble.Profile returned by DiscoverProfile
func (b *PeripheralDeviceBuilder) Profile() *blelib.Profile {
	var bleServices []*blelib.Service
	for _, svcConfig := range b.profile.Services {
		bleService := &blelib.Service{
			UUID: createMockUUID(svcConfig.UUID),
		}

		for _, charConfig := range svcConfig.Characteristics {
			bleService.Characteristics = append(bleService.Characteristics, &blelib.Characteristic{
				UUID:     createMockUUID(charConfig.UUID),
				Property: parseCharacteristicProperties(charConfig.Properties),
				Value:    charConfig.Value,
			})
		}
		bleServices = append(bleServices, bleService)
	}
	return &blelib.Profile{Services: bleServices}
}

// PeripheralClient is the mocked GATT client handed out by Dial.
// It exposes Disconnected() like the darwin client does.
type PeripheralClient struct {
	*mocks.MockGATTClient
	disconnected chan struct{}
}

func (c *PeripheralClient) Disconnected() <-chan struct{} {
	return c.disconnected
}

func (b *PeripheralDeviceBuilder) newClient() *PeripheralClient {
	profile := b.Profile()
	for _, svc := range profile.Services {
		for _, char := range svc.Characteristics {
			key := device.NormalizeUUID(char.UUID.String())
			if _, ok := b.values[key]; !ok {
				b.values[key] = char.Value
			}
		}
	}

	disconnected := make(chan struct{})
	b.disconnected = disconnected
	client := &PeripheralClient{MockGATTClient: &mocks.MockGATTClient{}, disconnected: disconnected}

	discoverErr := b.discoverErr
	client.On("DiscoverProfile", true).Return(func(bool) (*blelib.Profile, error) {
		if discoverErr != nil {
			return nil, discoverErr
		}
		return profile, nil
	}).Maybe()

	client.On("ReadCharacteristic", mock.Anything).Return(func(c *blelib.Characteristic) ([]byte, error) {
		key := device.NormalizeUUID(c.UUID.String())
		b.mu.Lock()
		defer b.mu.Unlock()
		select {
		case <-disconnected:
			return nil, fmt.Errorf("device not connected")
		default:
		}
		b.reads[key]++
		if err := b.readErrors[key]; err != nil {
			return nil, err
		}
		return append([]byte(nil), b.values[key]...), nil
	}).Maybe()

	client.On("WriteCharacteristic", mock.Anything, mock.Anything, mock.Anything).Return(func(c *blelib.Characteristic, value []byte, noRsp bool) error {
		key := device.NormalizeUUID(c.UUID.String())
		b.mu.Lock()
		defer b.mu.Unlock()
		select {
		case <-disconnected:
			return fmt.Errorf("device not connected")
		default:
		}
		if err := b.writeErrors[key]; err != nil {
			return err
		}
		b.writes = append(b.writes, WriteRecord{UUID: key, Data: append([]byte(nil), value...), WithResponse: !noRsp})
		return nil
	}).Maybe()

	client.On("CancelConnection").Return(nil).Maybe()
	return client
}

// Build creates a mocked goble.Adapter that scans the configured advertisements
// and dials the configured profile
func (b *PeripheralDeviceBuilder) Build() goble.Adapter {
	adapter := &mocks.MockAdapter{}

	adapter.On("Scan", mock.Anything, mock.Anything, mock.Anything).Return(
		func(ctx context.Context, _ bool, handler func(device.Advertisement)) error {
			for _, adv := range b.scanAdvertisements {
				if ctx.Err() != nil {
					break
				}
				handler(adv)
			}
			<-ctx.Done()
			return ctx.Err()
		}).Maybe()

	adapter.On("Dial", mock.Anything, mock.Anything).Return(
		func(ctx context.Context, _ string) (goble.GATTClient, error) {
			b.mu.Lock()
			defer b.mu.Unlock()
			b.dials++
			if b.dialErr != nil {
				return nil, b.dialErr
			}
			if err := ctx.Err(); err != nil {
				return nil, err
			}
			return b.newClient(), nil
		}).Maybe()

	adapter.On("Stop").Return(nil).Maybe()
	return adapter
}
