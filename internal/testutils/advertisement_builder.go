package testutils

import (
	"encoding/json"
	"fmt"

	"github.com/srg/thpgw/internal/device"
)

// Advertisement is a static device.Advertisement used as scan data in tests
type Advertisement struct {
	Name          string   `json:"name"`
	Address       string   `json:"address"`
	Rssi          int      `json:"rssi"`
	IsConnectable bool     `json:"connectable"`
	ServiceUUIDs  []string `json:"services"`
	Manufacturer  []byte   `json:"manufacturerData"`
}

func (a *Advertisement) LocalName() string        { return a.Name }
func (a *Advertisement) Addr() string             { return a.Address }
func (a *Advertisement) RSSI() int                { return a.Rssi }
func (a *Advertisement) Connectable() bool        { return a.IsConnectable }
func (a *Advertisement) ManufacturerData() []byte { return a.Manufacturer }

func (a *Advertisement) Services() []string {
	return device.NormalizeUUIDs(a.ServiceUUIDs)
}

// AdvertisementBuilder builds advertisements for testing.
// It provides a fluent API for configuring scan results.
type AdvertisementBuilder struct {
	adv Advertisement
}

// NewAdvertisementBuilder creates a new AdvertisementBuilder with default values.
// The builder starts with connectable=true and RSSI -50.
func NewAdvertisementBuilder() *AdvertisementBuilder {
	return &AdvertisementBuilder{
		adv: Advertisement{IsConnectable: true, Rssi: -50},
	}
}

// WithName sets the local name for the advertisement.
func (b *AdvertisementBuilder) WithName(name string) *AdvertisementBuilder {
	b.adv.Name = name
	return b
}

// WithAddress sets the device address for the advertisement.
func (b *AdvertisementBuilder) WithAddress(addr string) *AdvertisementBuilder {
	b.adv.Address = addr
	return b
}

// WithRSSI sets the signal strength for the advertisement.
func (b *AdvertisementBuilder) WithRSSI(rssi int) *AdvertisementBuilder {
	b.adv.Rssi = rssi
	return b
}

// WithServices adds service UUIDs to the advertisement.
// UUIDs can be in short form (e.g., "180D") or full form.
func (b *AdvertisementBuilder) WithServices(uuids ...string) *AdvertisementBuilder {
	b.adv.ServiceUUIDs = append(b.adv.ServiceUUIDs, uuids...)
	return b
}

// WithManufacturerData sets the manufacturer-specific data.
func (b *AdvertisementBuilder) WithManufacturerData(data []byte) *AdvertisementBuilder {
	b.adv.Manufacturer = data
	return b
}

// WithConnectable sets whether the device accepts connections.
func (b *AdvertisementBuilder) WithConnectable(c bool) *AdvertisementBuilder {
	b.adv.IsConnectable = c
	return b
}

// FromJSON fills builder fields from a JSON string with format support.
// Fields absent from the JSON keep their current values.
// Panics on invalid JSON as this is intended for test data setup.
func (b *AdvertisementBuilder) FromJSON(jsonStrFmt string, args ...interface{}) *AdvertisementBuilder {
	jsonStr := fmt.Sprintf(jsonStrFmt, args...)
	if err := json.Unmarshal([]byte(jsonStr), &b.adv); err != nil {
		panic(fmt.Sprintf("AdvertisementBuilder.FromJSON: failed to unmarshal: %v", err))
	}
	return b
}

// Build returns a copy of the configured advertisement.
func (b *AdvertisementBuilder) Build() device.Advertisement {
	adv := b.adv
	adv.ServiceUUIDs = append([]string(nil), b.adv.ServiceUUIDs...)
	return &adv
}

// AdvertisementArrayBuilder builds arrays of advertisements with generic parent support.
//
// Type Parameter:
//
//	T: The type to return from Build(). Common values:
//	  - []device.Advertisement for standalone usage
//	  - *PeripheralDeviceBuilder for integration with device builders
//
// Example:
//
//	peripheral := NewPeripheralDeviceBuilder().
//	    WithScanAdvertisements().
//	        WithNewAdvertisement().WithName("SensorPush HTP.xw 69D").WithAddress("AA:BB:CC:DD:EE:FF").Build().
//	        Build(). // Returns *PeripheralDeviceBuilder
//	    WithService("180D")
type AdvertisementArrayBuilder[T any] struct {
	advertisements []device.Advertisement
	parent         T
	buildFunc      func(T, []device.Advertisement) T
}

// NewAdvertisementArrayBuilder creates a new array builder with the specified generic type.
func NewAdvertisementArrayBuilder[T any]() *AdvertisementArrayBuilder[T] {
	return &AdvertisementArrayBuilder[T]{
		advertisements: make([]device.Advertisement, 0),
	}
}

// WithAdvertisements adds pre-existing Advertisements to the array and returns the array builder for chaining.
func (ab *AdvertisementArrayBuilder[T]) WithAdvertisements(ads ...device.Advertisement) *AdvertisementArrayBuilder[T] {
	ab.advertisements = append(ab.advertisements, ads...)
	return ab
}

// WithNewAdvertisement returns an AdvertisementBuilder whose Build() appends to this array
// and hands back the array builder.
func (ab *AdvertisementArrayBuilder[T]) WithNewAdvertisement() *AdvertisementArrayBuilderItem[T] {
	return &AdvertisementArrayBuilderItem[T]{
		AdvertisementBuilder: NewAdvertisementBuilder(),
		parent:               ab,
	}
}

// Build returns the parent if it exists and has a buildFunc, otherwise returns the array
func (ab *AdvertisementArrayBuilder[T]) Build() T {
	if ab.buildFunc != nil {
		return ab.buildFunc(ab.parent, ab.advertisements)
	}
	var result interface{} = ab.advertisements
	return result.(T)
}

// AdvertisementArrayBuilderItem wraps AdvertisementBuilder to provide array functionality.
type AdvertisementArrayBuilderItem[T any] struct {
	*AdvertisementBuilder
	parent *AdvertisementArrayBuilder[T]
}

// Build adds the advertisement to the parent array and returns the array builder
func (abi *AdvertisementArrayBuilderItem[T]) Build() *AdvertisementArrayBuilder[T] {
	abi.parent.advertisements = append(abi.parent.advertisements, abi.AdvertisementBuilder.Build())
	return abi.parent
}
