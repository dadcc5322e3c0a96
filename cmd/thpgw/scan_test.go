package main

import (
	"strings"
	"testing"
	"time"

	"github.com/srg/thpgw/internal/testutils"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/stretchr/testify/suite"
)

type ScanCommandTestSuite struct {
	CommandTestSuite
}

func (s *ScanCommandTestSuite) TestScanListsPeripheralsWithSensorFirst() {
	// GOAL: Verify scan prints a table with the configured sensor marked and listed first
	//
	// TEST SCENARIO: Mock advertises "Other Device" and the sensor → table has both, sensor row starts with '*'

	out, _, err := s.ExecuteCommand("scan", "--duration", "200ms", "--color", "never", "--config", s.WriteConfig(fastConfig))
	s.Require().NoError(err)

	lines := strings.Split(strings.TrimSpace(out), "\n")
	s.Require().Len(lines, 3, "header plus two peripherals")
	s.Contains(lines[0], "NAME")
	s.True(strings.HasPrefix(lines[1], "*"), "sensor MUST be marked and sorted first")
	s.Contains(lines[1], testutils.SensorName)
	s.Contains(lines[1], testutils.SensorAddress)
	s.Contains(lines[2], "Other Device")
	s.NotContains(out, "\x1b[", "--color never MUST NOT emit escape codes")
}

func (s *ScanCommandTestSuite) TestScanRejectsBadFlags() {
	_, _, err := s.ExecuteCommand("scan", "--duration", "0s")
	s.ErrorContains(err, "invalid duration")

	_, _, err = s.ExecuteCommand("scan", "--color", "sometimes")
	s.ErrorContains(err, "invalid color mode")
}

func TestScanCommandTestSuite(t *testing.T) {
	suite.Run(t, new(ScanCommandTestSuite))
}

func TestWriteScanTableColors(t *testing.T) {
	entries := []*scanEntry{
		{adv: testutils.CreateMockAdvertisement("Other Device", "11:22:33:44:55:66", -40).Build(), lastSeen: time.Now()},
		{adv: testutils.CreateMockAdvertisement(testutils.SensorName, testutils.SensorAddress, -70).Build(), lastSeen: time.Now(), sensor: true},
	}

	var plain, colored strings.Builder
	require.NoError(t, writeScanTable(&plain, entries, false))
	require.NoError(t, writeScanTable(&colored, entries, true))

	assert.NotContains(t, plain.String(), "\x1b[", "plain output MUST NOT contain escape codes")
	assert.Contains(t, colored.String(), "\x1b[", "colored output MUST contain escape codes")

	first := strings.Split(plain.String(), "\n")[1]
	assert.True(t, strings.HasPrefix(first, "*"), "sensor MUST sort before stronger peripherals, got %q", first)
}

func TestWriteScanTableEmpty(t *testing.T) {
	var out strings.Builder
	require.NoError(t, writeScanTable(&out, nil, false))
	assert.Equal(t, "No devices discovered\n", out.String())
}
