package testutils

import (
	"io"
	"os"
	"testing"
	"time"

	"github.com/sirupsen/logrus"
	"github.com/srg/thpgw/internal/sensor"
)

type TestHelper struct {
	T      *testing.T
	Logger *logrus.Logger
}

// NewTestHelper creates a test helper with a debug-level logger.
// Set THPGW_TEST_QUIET to discard log output.
func NewTestHelper(t *testing.T) *TestHelper {
	logger := logrus.New()
	logger.SetLevel(logrus.DebugLevel) // enable debug logs to track execution flow
	if quietLogs() {
		logger.SetOutput(io.Discard)
	}
	return &TestHelper{
		T:      t,
		Logger: logger,
	}
}

// Eventually polls cond every 10ms until it holds or timeout expires
func (h *TestHelper) Eventually(cond func() bool, timeout time.Duration, msg string) {
	h.T.Helper()
	deadline := time.Now().Add(timeout)
	for time.Now().Before(deadline) {
		if cond() {
			return
		}
		time.Sleep(10 * time.Millisecond)
	}
	h.T.Fatalf("condition not met within %v: %s", timeout, msg)
}

func CreateMockAdvertisement(name, address string, rssi int) *AdvertisementBuilder {
	return NewAdvertisementBuilder().WithName(name).WithAddress(address).WithRSSI(rssi)
}

func CreateMockAdvertisementFromJSON(jsonStrFmt string, args ...interface{}) *AdvertisementBuilder {
	return NewAdvertisementBuilder().FromJSON(jsonStrFmt, args...)
}

func CreateMockPeripheralDevice() *PeripheralDeviceBuilder {
	return NewPeripheralDeviceBuilder()
}

func CreateMockPeripheralDeviceFromJSON(jsonStrFmt string, args ...interface{}) *PeripheralDeviceBuilder {
	return NewPeripheralDeviceBuilder().FromJSON(jsonStrFmt, args...)
}

// Sensor peripheral defaults used across suites
const (
	SensorName    = "SensorPush HTP.xw 69D"
	SensorAddress = "AA:BB:CC:DD:EE:FF"
)

// CreateSensorPeripheral returns a peripheral exposing the sensor service with
// temperature 23.45, humidity 41.00 and pressure 1013.25, advertising as SensorName.
func CreateSensorPeripheral() *PeripheralDeviceBuilder {
	return NewPeripheralDeviceBuilder().
		WithScanAdvertisements().
		WithAdvertisements(NewAdvertisementBuilder().WithName("Other Device").WithAddress("11:22:33:44:55:66").Build()).
		WithAdvertisements(NewAdvertisementBuilder().WithName(SensorName).WithAddress(SensorAddress).WithRSSI(-61).Build()).
		Build().
		WithService(sensor.DefaultServiceUUID).
		WithCharacteristic(sensor.DefaultUUID(sensor.Temperature), "read,write", []byte{0x29, 0x09, 0x00, 0x00}).
		WithCharacteristic(sensor.DefaultUUID(sensor.Humidity), "read,write", []byte{0x04, 0x10, 0x00, 0x00}).
		WithCharacteristic(sensor.DefaultUUID(sensor.Pressure), "read,write", []byte{0xCD, 0x8B, 0x01, 0x00})
}

func quietLogs() bool {
	_, ok := os.LookupEnv("THPGW_TEST_QUIET")
	return ok
}
