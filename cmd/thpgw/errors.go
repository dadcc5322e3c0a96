package main

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/srg/thpgw/internal/device"
	"github.com/srg/thpgw/internal/hexcodec"
	"github.com/srg/thpgw/internal/link"
)

// Command-level errors
var (
	// ErrSensorNotFound is returned when no advertisement matched the configured sensor in time
	ErrSensorNotFound = errors.New("sensor not found")
)

// FormatUserError turns internal errors into a one-line message for the terminal
func FormatUserError(err error) string {
	if err == nil {
		return ""
	}

	var nf *device.NotFoundError
	switch {
	case errors.Is(err, ErrSensorNotFound):
		return fmt.Sprintf("%v; check that the sensor is powered and in range", err)
	case errors.As(err, &nf):
		return fmt.Sprintf("%s %s not found on the sensor; check the configured UUIDs", nf.Resource, strings.Join(nf.UUIDs, "/"))
	case errors.Is(err, device.ErrNotConnected):
		return "sensor disconnected"
	case errors.Is(err, device.ErrTimeout), errors.Is(err, context.DeadlineExceeded):
		return fmt.Sprintf("operation timed out (%v)", err)
	case errors.Is(err, link.ErrNotReady):
		return "sensor link is not ready yet"
	case errors.Is(err, hexcodec.ErrInvalidHex):
		return fmt.Sprintf("invalid hex value: %v", err)
	case strings.Contains(err.Error(), "permission denied"), strings.Contains(err.Error(), "operation not permitted"):
		return fmt.Sprintf("%v; BLE access needs CAP_NET_ADMIN/CAP_NET_RAW or root on Linux", err)
	default:
		return err.Error()
	}
}
