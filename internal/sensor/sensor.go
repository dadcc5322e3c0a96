// Package sensor defines the three SensorPush measurements, their GATT
// identifiers and the payload decoding shared by polling and one-shot reads.
package sensor

import (
	"encoding/binary"
	"errors"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/srg/thpgw/internal/hexcodec"
)

// Kind identifies one of the measured quantities
type Kind int

const (
	Temperature Kind = iota
	Humidity
	Pressure
)

// Default GATT layout of the SensorPush HT.w / HTP.xw
const (
	DefaultServiceUUID = "EF090000-11D6-42BA-93B8-9DD7EC090AB0"

	DefaultTemperatureUUID = "EF090080-11D6-42BA-93B8-9DD7EC090AA9"
	DefaultHumidityUUID    = "EF090081-11D6-42BA-93B8-9DD7EC090AA9"
	DefaultPressureUUID    = "EF090082-11D6-42BA-93B8-9DD7EC090AA9"

	// DefaultTriggerHex is written (with response) before each read to make the sensor sample
	DefaultTriggerHex = "01000000"

	// DefaultDeviceName is matched as a substring of the advertised local name
	DefaultDeviceName = "SensorPush HTP.xw 69D"
)

// Scale converts the integer payload to the physical value
const Scale = 100.0

// ErrEmptyPayload is returned when a characteristic read yields no bytes
var ErrEmptyPayload = errors.New("empty sensor payload")

var kinds = []Kind{Temperature, Humidity, Pressure}

// Kinds returns all kinds in report order
func Kinds() []Kind {
	return append([]Kind(nil), kinds...)
}

func (k Kind) String() string {
	switch k {
	case Temperature:
		return "temperature"
	case Humidity:
		return "humidity"
	case Pressure:
		return "pressure"
	default:
		return fmt.Sprintf("kind(%d)", int(k))
	}
}

// Label is the key used in the report payload
func (k Kind) Label() string {
	switch k {
	case Temperature:
		return "Temperature"
	case Humidity:
		return "Humidity"
	case Pressure:
		return "Pressure"
	default:
		return k.String()
	}
}

// Valid reports whether k is one of the defined kinds
func (k Kind) Valid() bool {
	return k >= Temperature && k <= Pressure
}

func (k Kind) MarshalText() ([]byte, error) {
	if !k.Valid() {
		return nil, fmt.Errorf("invalid sensor kind %d", int(k))
	}
	return []byte(k.String()), nil
}

func (k *Kind) UnmarshalText(text []byte) error {
	parsed, err := ParseKind(string(text))
	if err != nil {
		return err
	}
	*k = parsed
	return nil
}

// ParseKind accepts the lower-case name or the report label, case-insensitively
func ParseKind(s string) (Kind, error) {
	for _, k := range kinds {
		if strings.EqualFold(s, k.String()) {
			return k, nil
		}
	}
	return 0, fmt.Errorf("unknown sensor kind %q (want temperature, humidity or pressure)", s)
}

// DefaultUUID returns the factory characteristic UUID for kind
func DefaultUUID(k Kind) string {
	switch k {
	case Temperature:
		return DefaultTemperatureUUID
	case Humidity:
		return DefaultHumidityUUID
	case Pressure:
		return DefaultPressureUUID
	default:
		return ""
	}
}

// DefaultTrigger returns the decoded DefaultTriggerHex
func DefaultTrigger() []byte {
	return hexcodec.MustDecode(DefaultTriggerHex)
}

// Reading is one decoded sample
type Reading struct {
	Kind      Kind
	Value     float64
	Raw       []byte
	SampledAt time.Time
}

// Decode converts a characteristic payload into a Reading.
// The payload is a little-endian integer of up to four bytes; further bytes are ignored.
// Temperature is signed, humidity and pressure are unsigned. The value is scaled by 1/100.
// A full four-byte temperature is read as int32, so sub-zero readings decode as
// negative values rather than as large unsigned ones; shorter payloads are unsigned.
func Decode(k Kind, payload []byte) (Reading, error) {
	if !k.Valid() {
		return Reading{}, fmt.Errorf("invalid sensor kind %d", int(k))
	}
	if len(payload) == 0 {
		return Reading{}, fmt.Errorf("%s: %w", k, ErrEmptyPayload)
	}

	var buf [4]byte
	copy(buf[:], payload)
	raw := binary.LittleEndian.Uint32(buf[:])

	var value float64
	if k == Temperature && len(payload) >= 4 {
		value = float64(int32(raw)) / Scale
	} else {
		value = float64(raw) / Scale
	}

	return Reading{
		Kind:  k,
		Value: value,
		Raw:   append([]byte(nil), payload...),
	}, nil
}

// FormatValue renders v with the shortest exact decimal form that always carries
// a fractional part: 23.45, 21.0, -4.5.
func FormatValue(v float64) string {
	s := strconv.FormatFloat(v, 'f', -1, 64)
	if !strings.ContainsAny(s, ".") {
		s += ".0"
	}
	return s
}

func (r Reading) String() string {
	return fmt.Sprintf("%s=%s", r.Kind, FormatValue(r.Value))
}
