package sensor

import (
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDecode(t *testing.T) {
	tests := []struct {
		name     string
		kind     Kind
		payload  []byte
		expected float64
	}{
		{name: "temperature", kind: Temperature, payload: []byte{0x29, 0x09, 0x00, 0x00}, expected: 23.45},
		{name: "humidity", kind: Humidity, payload: []byte{0x04, 0x10, 0x00, 0x00}, expected: 41.0},
		{name: "pressure", kind: Pressure, payload: []byte{0xCD, 0x8B, 0x01, 0x00}, expected: 1013.25},
		{name: "negative temperature", kind: Temperature, payload: []byte{0x0C, 0xFE, 0xFF, 0xFF}, expected: -5.0},
		{name: "humidity is unsigned", kind: Humidity, payload: []byte{0xFF, 0xFF, 0xFF, 0xFF}, expected: 42949672.95},
		{name: "short payload", kind: Pressure, payload: []byte{0x64}, expected: 1.0},
		{name: "two-byte temperature is not sign extended", kind: Temperature, payload: []byte{0xFF, 0xFF}, expected: 655.35},
		{name: "bytes past the fourth are ignored", kind: Humidity, payload: []byte{0x10, 0x27, 0x00, 0x00, 0xAA, 0xBB}, expected: 100.0},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			r, err := Decode(tt.kind, tt.payload)
			require.NoError(t, err)
			assert.Equal(t, tt.kind, r.Kind)
			assert.InDelta(t, tt.expected, r.Value, 1e-9)
			assert.Equal(t, tt.payload, r.Raw, "raw payload MUST be preserved")
		})
	}
}

func TestDecodeErrors(t *testing.T) {
	_, err := Decode(Temperature, nil)
	assert.ErrorIs(t, err, ErrEmptyPayload, "nil payload MUST be ErrEmptyPayload")

	_, err = Decode(Humidity, []byte{})
	assert.ErrorIs(t, err, ErrEmptyPayload, "empty payload MUST be ErrEmptyPayload")

	_, err = Decode(Kind(7), []byte{1})
	assert.Error(t, err, "unknown kind MUST fail")
}

func TestDecodeCopiesPayload(t *testing.T) {
	payload := []byte{0x01, 0x00}
	r, err := Decode(Pressure, payload)
	require.NoError(t, err)

	payload[0] = 0xFF
	assert.Equal(t, byte(0x01), r.Raw[0], "Reading MUST NOT alias the caller's buffer")
}

func TestFormatValue(t *testing.T) {
	tests := map[float64]string{
		23.45:   "23.45",
		21:      "21.0",
		0:       "0.0",
		-4.5:    "-4.5",
		1013.25: "1013.25",
		0.01:    "0.01",
	}
	for in, want := range tests {
		assert.Equal(t, want, FormatValue(in), "FormatValue(%v)", in)
	}
}

func TestKind(t *testing.T) {
	assert.Equal(t, []Kind{Temperature, Humidity, Pressure}, Kinds())
	assert.Equal(t, "Temperature", Temperature.Label())
	assert.Equal(t, "pressure", Pressure.String())
	assert.False(t, Kind(3).Valid())

	k, err := ParseKind("HUMIDITY")
	require.NoError(t, err)
	assert.Equal(t, Humidity, k)

	_, err = ParseKind("altitude")
	assert.Error(t, err)

	data, err := json.Marshal(map[string]Kind{"kind": Pressure})
	require.NoError(t, err)
	assert.JSONEq(t, `{"kind":"pressure"}`, string(data))

	var decoded struct{ Kind Kind }
	require.NoError(t, json.Unmarshal([]byte(`{"Kind":"temperature"}`), &decoded))
	assert.Equal(t, Temperature, decoded.Kind)
}

func TestDefaultUUID(t *testing.T) {
	assert.Equal(t, DefaultTemperatureUUID, DefaultUUID(Temperature))
	assert.Equal(t, DefaultHumidityUUID, DefaultUUID(Humidity))
	assert.Equal(t, DefaultPressureUUID, DefaultUUID(Pressure))
	assert.Empty(t, DefaultUUID(Kind(9)))
}

func TestDefaultTrigger(t *testing.T) {
	assert.Equal(t, []byte{0x01, 0x00, 0x00, 0x00}, DefaultTrigger())
}
