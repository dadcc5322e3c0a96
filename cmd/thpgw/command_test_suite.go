package main

import (
	"bytes"
	"os"
	"path/filepath"

	"github.com/srg/thpgw/internal/testutils"
)

// CommandTestSuite extends MockBLEPeripheralSuite with command testing utilities.
// All cmd/thpgw test suites should embed this instead of MockBLEPeripheralSuite.
type CommandTestSuite struct {
	testutils.MockBLEPeripheralSuite
}

// ExecuteCommand runs a fresh root command with args and returns stdout and stderr separately.
func (s *CommandTestSuite) ExecuteCommand(args ...string) (string, string, error) {
	stdout, stderr := new(bytes.Buffer), new(bytes.Buffer)
	root := newRootCmd()
	root.SetOut(stdout)
	root.SetErr(stderr)
	root.SetArgs(args)
	err := root.Execute()
	return stdout.String(), stderr.String(), err
}

// WriteConfig writes yaml to a temporary config file and returns its path.
func (s *CommandTestSuite) WriteConfig(yaml string) string {
	path := filepath.Join(s.T().TempDir(), "thpgw.yaml")
	s.Require().NoError(os.WriteFile(path, []byte(yaml), 0o600), "config write MUST succeed")
	return path
}

// fastConfig skips the post-start scan delay and bounds the connect time
const fastConfig = `
log_level: error
sensor:
  scan_delay: 10ms
  connect_timeout: 2s
  reconnect_initial: 10ms
  reconnect_max: 50ms
`
