package testutils

import (
	"time"

	"github.com/sirupsen/logrus"
	goble "github.com/srg/thpgw/internal/device/go-ble"
	"github.com/stretchr/testify/suite"
)

// MockBLEPeripheralSuite provides a reusable test suite with mock BLE peripheral support.
//
// The suite swaps goble.AdapterFactory for the lifetime of each test, so any
// goble.Central created inside the test talks to the configured mock peripheral.
//
// Basic usage (sensor peripheral with default values):
//
//	type LinkSuite struct {
//	    testutils.MockBLEPeripheralSuite
//	}
//
//	func TestLinkSuite(t *testing.T) {
//	    suite.Run(t, new(LinkSuite))
//	}
//
// Custom profile usage:
//
//	func (s *ReadSuite) SetupTest() {
//	    s.WithPeripheral().
//	        WithService("180F").
//	        WithCharacteristic("2A19", "read", []byte{80})
//
//	    s.MockBLEPeripheralSuite.SetupTest() // Call parent last to apply configuration
//	}
type MockBLEPeripheralSuite struct {
	suite.Suite

	Helper *TestHelper
	Logger *logrus.Logger

	OriginalAdapterFactory func() (goble.Adapter, error)
	TestTimeout            time.Duration

	// PeripheralBuilder configures the device behind the mocked adapter
	PeripheralBuilder *PeripheralDeviceBuilder
}

// SetupSuite initializes the shared helpers. Called once before all tests in the suite.
func (s *MockBLEPeripheralSuite) SetupSuite() {
	s.Helper = NewTestHelper(s.T())
	s.Logger = s.Helper.Logger
	s.TestTimeout = 5 * time.Second
	s.OriginalAdapterFactory = goble.AdapterFactory

	s.T().Cleanup(func() {
		if s.OriginalAdapterFactory != nil {
			goble.AdapterFactory = s.OriginalAdapterFactory
		}
	})
}

// SetupTest installs the mocked adapter factory before each test.
func (s *MockBLEPeripheralSuite) SetupTest() {
	// testify re-uses the suite struct, bind the helper to the current test
	s.Helper.T = s.T()

	if s.PeripheralBuilder == nil {
		s.PeripheralBuilder = CreateSensorPeripheral()
	}

	builder := s.PeripheralBuilder
	goble.AdapterFactory = func() (goble.Adapter, error) {
		return builder.Build(), nil
	}
}

// TearDownTest restores the adapter factory and resets the peripheral configuration.
func (s *MockBLEPeripheralSuite) TearDownTest() {
	if s.OriginalAdapterFactory != nil {
		goble.AdapterFactory = s.OriginalAdapterFactory
	}
	s.PeripheralBuilder = nil
}

// WithPeripheral returns the peripheral builder for fluent configuration.
// Call it before MockBLEPeripheralSuite.SetupTest.
func (s *MockBLEPeripheralSuite) WithPeripheral() *PeripheralDeviceBuilder {
	if s.PeripheralBuilder == nil {
		s.PeripheralBuilder = NewPeripheralDeviceBuilder()
	}
	return s.PeripheralBuilder
}

// NewCentral returns a goble.Central bound to the mocked adapter
func (s *MockBLEPeripheralSuite) NewCentral() *goble.Central {
	central := goble.NewCentral(s.Logger)
	s.T().Cleanup(func() { _ = central.Close() })
	return central
}
