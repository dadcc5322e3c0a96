package gateway

import (
	"context"
	"io"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/srg/thpgw/internal/httpapi"
	"github.com/srg/thpgw/internal/link"
	"github.com/srg/thpgw/internal/sensor"
	"github.com/srg/thpgw/internal/testutils"
	"github.com/srg/thpgw/pkg/config"
	"github.com/stretchr/testify/suite"
)

// endpoint records every report PUT to it
type endpoint struct {
	*httptest.Server

	mu      sync.Mutex
	methods []string
	bodies  []string
}

func newEndpoint() *endpoint {
	e := &endpoint{}
	e.Server = httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		body, _ := io.ReadAll(r.Body)
		e.mu.Lock()
		e.methods = append(e.methods, r.Method)
		e.bodies = append(e.bodies, string(body))
		e.mu.Unlock()
		w.WriteHeader(http.StatusNoContent)
	}))
	return e
}

func (e *endpoint) received() ([]string, []string) {
	e.mu.Lock()
	defer e.mu.Unlock()
	return append([]string(nil), e.methods...), append([]string(nil), e.bodies...)
}

type GatewayTestSuite struct {
	testutils.MockBLEPeripheralSuite

	endpoint *endpoint
	cfg      *config.Config
	gw       *Gateway
	cancel   context.CancelFunc
	done     chan error
}

func (s *GatewayTestSuite) SetupTest() {
	s.MockBLEPeripheralSuite.SetupTest()

	s.endpoint = newEndpoint()
	s.cfg = config.DefaultConfig()
	s.cfg.Sensor.ScanDelay = 10 * time.Millisecond
	s.cfg.Sensor.ConnectTimeout = time.Second
	s.cfg.Sensor.ReconnectInitial = 10 * time.Millisecond
	s.cfg.Sensor.ReconnectMax = 50 * time.Millisecond
	s.cfg.Poll.Interval = 30 * time.Millisecond
	s.cfg.Poll.RetryInterval = 5 * time.Millisecond
	s.cfg.Report.HTTP.URL = s.endpoint.URL + "/Sensor_THP/SensorPush"
	s.cfg.Report.RetryInterval = 10 * time.Millisecond
}

func (s *GatewayTestSuite) TearDownTest() {
	s.stop()
	s.endpoint.Close()
	s.MockBLEPeripheralSuite.TearDownTest()
}

func (s *GatewayTestSuite) start() {
	gw, err := New(s.cfg, s.NewCentral(), s.Logger)
	s.Require().NoError(err)
	s.gw = gw

	ctx, cancel := context.WithCancel(context.Background())
	s.cancel = cancel
	s.done = make(chan error, 1)
	go func() { s.done <- gw.Run(ctx) }()
}

func (s *GatewayTestSuite) stop() {
	if s.cancel == nil {
		return
	}
	s.cancel()
	select {
	case err := <-s.done:
		s.NoError(err, "Run MUST return nil on cancellation")
	case <-time.After(s.TestTimeout):
		s.Fail("gateway did not stop")
	}
	s.cancel = nil
}

func (s *GatewayTestSuite) waitForReadings() {
	s.Helper.Eventually(func() bool { return s.gw.Cache().Len() == 3 }, s.TestTimeout, "all three readings cached")
}

func (s *GatewayTestSuite) TestPollsAndReports() {
	// GOAL: Verify the gateway connects, polls every sensor kind and PUTs the ordered report
	//
	// TEST SCENARIO: Run with autostart → link ready → cache filled → report enqueued → endpoint receives JSON

	s.start()
	s.waitForReadings()
	s.True(s.gw.Polling())

	for k, want := range map[sensor.Kind]string{
		sensor.Temperature: "23.45",
		sensor.Humidity:    "41.0",
		sensor.Pressure:    "1013.25",
	} {
		e, ok := s.gw.Cache().Get(k)
		s.Require().True(ok)
		s.Equal(want, e.Value, "%s MUST decode from the peripheral payload", k)
	}

	writes := s.PeripheralBuilder.Writes()
	s.Require().NotEmpty(writes, "every poll MUST write the trigger first")
	s.Equal([]byte{0x01, 0x00, 0x00, 0x00}, writes[0].Data)
	s.True(writes[0].WithResponse, "trigger MUST be written with response")

	s.True(s.gw.Reporter().Enqueue())
	s.Helper.Eventually(func() bool {
		_, bodies := s.endpoint.received()
		return len(bodies) > 0
	}, s.TestTimeout, "report delivered")

	methods, bodies := s.endpoint.received()
	s.Equal(http.MethodPut, methods[0])
	s.Equal(`{"Temperature":"23.45","Humidity":"41.0","Pressure":"1013.25"}`, bodies[0])
}

func (s *GatewayTestSuite) TestStopPollingClearsCache() {
	// GOAL: Verify stopping polling halts the timers and clears cached readings
	//
	// TEST SCENARIO: Readings cached → StopPolling → cache empty, no new writes → StartPolling → readings return

	s.start()
	s.waitForReadings()

	s.True(s.gw.StopPolling())
	s.False(s.gw.StopPolling(), "second stop MUST be a no-op")
	s.False(s.gw.Polling())
	s.Zero(s.gw.Cache().Len(), "stop MUST clear the cache")
	s.False(s.gw.Reporter().Running(), "stop MUST halt the report timer")

	writes := len(s.PeripheralBuilder.Writes())
	time.Sleep(5 * s.cfg.Poll.Interval)
	s.Equal(writes, len(s.PeripheralBuilder.Writes()), "stopped pollers MUST NOT touch the peripheral")

	s.True(s.gw.StartPolling())
	s.False(s.gw.StartPolling(), "second start MUST be a no-op")
	s.waitForReadings()
}

func (s *GatewayTestSuite) TestNoAutostart() {
	// GOAL: Verify polling stays off until enabled when autostart is disabled
	//
	// TEST SCENARIO: autostart=false → link ready, cache empty → SetPolling(true) → readings arrive

	s.cfg.Poll.Autostart = false
	s.start()

	s.Helper.Eventually(func() bool { return s.gw.Link().State() == link.Ready }, s.TestTimeout, "link ready")
	time.Sleep(5 * s.cfg.Poll.Interval)
	s.False(s.gw.Polling())
	s.Zero(s.gw.Cache().Len())

	s.True(s.gw.SetPolling(true))
	s.waitForReadings()
}

func (s *GatewayTestSuite) TestControlAPI() {
	// GOAL: Verify the control API reports status and toggles polling
	//
	// TEST SCENARIO: GET /status → ready and polling → PUT /polling false → polling off and cache cleared

	s.start()
	s.waitForReadings()

	api := httptest.NewServer(httpapi.NewServer("", controller{s.gw}, s.Logger).Handler())
	defer api.Close()

	resp, err := http.Get(api.URL + "/status")
	s.Require().NoError(err)
	body, err := io.ReadAll(resp.Body)
	resp.Body.Close()
	s.Require().NoError(err)

	testutils.NewJSONAsserter(s.T()).Assert(string(body), `{
		"link": {"state": "ready", "address": "AA:BB:CC:DD:EE:FF", "connects": 1},
		"polling": true,
		"readings": [
			{"kind": "temperature", "value": "23.45", "stale": false},
			{"kind": "humidity", "value": "41.0", "stale": false},
			{"kind": "pressure", "value": "1013.25", "stale": false}
		],
		"pollers": "<<PRESENCE>>",
		"reporter": {"sinks": {"http": "<<PRESENCE>>"}}
	}`)

	req, err := http.NewRequest(http.MethodPut, api.URL+"/polling", strings.NewReader(`{"enabled":false}`))
	s.Require().NoError(err)
	resp, err = http.DefaultClient.Do(req)
	s.Require().NoError(err)
	resp.Body.Close()

	s.Equal(http.StatusOK, resp.StatusCode)
	s.False(s.gw.Polling())
	s.Zero(s.gw.Cache().Len())
}

func (s *GatewayTestSuite) TestFailedReportsGoToOutbox() {
	// GOAL: Verify reports that cannot be delivered are persisted when an outbox is configured
	//
	// TEST SCENARIO: Endpoint down → report enqueued → backlog of 1 in the outbox

	s.cfg.Report.Outbox.Path = filepath.Join(s.T().TempDir(), "outbox.db")
	s.cfg.Report.MaxElapsed = 50 * time.Millisecond
	s.endpoint.Close()

	s.start()
	s.waitForReadings()

	s.True(s.gw.Reporter().Enqueue())
	s.Helper.Eventually(func() bool {
		return s.gw.Status().Reporter.Backlog == 1
	}, s.TestTimeout, "report persisted")
	s.Equal(uint64(1), s.gw.Status().Reporter.Sinks["http"].Failed)
}

func (s *GatewayTestSuite) TestNewRejectsBadTrigger() {
	s.cfg.Poll.Trigger = "zz"
	_, err := New(s.cfg, s.NewCentral(), s.Logger)
	s.Error(err)
}

func TestGatewayTestSuite(t *testing.T) {
	suite.Run(t, new(GatewayTestSuite))
}
