package main

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/suite"
)

type ReadCommandTestSuite struct {
	CommandTestSuite
}

func (s *ReadCommandTestSuite) TestReadPrintsAllKinds() {
	// GOAL: Verify read connects once and prints every decoded value
	//
	// TEST SCENARIO: Mock sensor → read → Temperature 23.45, Humidity 41.0, Pressure 1013.25

	out, _, err := s.ExecuteCommand("read", "--config", s.WriteConfig(fastConfig), "--timeout", "5s")
	s.Require().NoError(err)

	lines := strings.Split(strings.TrimSpace(out), "\n")
	s.Require().Len(lines, 3)
	s.Equal([]string{"Temperature", "23.45"}, strings.Fields(lines[0]))
	s.Equal([]string{"Humidity", "41.0"}, strings.Fields(lines[1]))
	s.Equal([]string{"Pressure", "1013.25"}, strings.Fields(lines[2]))

	writes := s.PeripheralBuilder.Writes()
	s.Len(writes, 3, "every kind MUST be triggered once")
}

func (s *ReadCommandTestSuite) TestReadSingleKindWithHex() {
	out, _, err := s.ExecuteCommand("read", "--config", s.WriteConfig(fastConfig), "--kind", "pressure", "--hex")
	s.Require().NoError(err)
	s.Equal([]string{"Pressure", "1013.25", "CD8B0100"}, strings.Fields(strings.TrimSpace(out)))
}

func (s *ReadCommandTestSuite) TestReadJSON() {
	out, _, err := s.ExecuteCommand("read", "--config", s.WriteConfig(fastConfig), "--json", "--kind", "temperature")
	s.Require().NoError(err)
	s.Equal(`{"Temperature":"23.45","Humidity":"","Pressure":""}`, strings.TrimSpace(out),
		"kinds not read MUST be empty strings")
}

func (s *ReadCommandTestSuite) TestReadRejectsBadInput() {
	_, _, err := s.ExecuteCommand("read", "--kind", "voltage")
	s.Error(err)

	_, _, err = s.ExecuteCommand("read", "--json", "--hex")
	s.ErrorContains(err, "mutually exclusive")
}

func (s *ReadCommandTestSuite) TestReadTimesOutWithoutSensor() {
	// GOAL: Verify read gives up with a sensor-not-found error when nothing matches
	//
	// TEST SCENARIO: Configure a name nobody advertises → short timeout → ErrSensorNotFound

	cfg := s.WriteConfig(fastConfig + "  name: Nonexistent Sensor\n")
	_, _, err := s.ExecuteCommand("read", "--config", cfg, "--timeout", "300ms")
	s.ErrorIs(err, ErrSensorNotFound)
	s.Contains(FormatUserError(err), "powered and in range")
}

func TestReadCommandTestSuite(t *testing.T) {
	suite.Run(t, new(ReadCommandTestSuite))
}
