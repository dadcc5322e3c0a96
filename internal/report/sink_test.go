package report

import (
	"context"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"
	"time"

	mqtt "github.com/eclipse/paho.mqtt.golang"
	"github.com/sirupsen/logrus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestHTTPSinkPutsJSON(t *testing.T) {
	var gotMethod, gotPath, gotType, gotBody string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		body, _ := io.ReadAll(r.Body)
		gotMethod, gotPath, gotType, gotBody = r.Method, r.URL.Path, r.Header.Get("Content-Type"), string(body)
		w.WriteHeader(http.StatusOK)
	}))
	defer srv.Close()

	sink := NewHTTPSink(srv.URL+"/Sensor_THP/SensorPush", "", time.Second, logrus.New())
	require.NoError(t, sink.Deliver(context.Background(), []byte(`{"Temperature":"23.45"}`)))

	assert.Equal(t, http.MethodPut, gotMethod, "default method MUST be PUT")
	assert.Equal(t, "/Sensor_THP/SensorPush", gotPath)
	assert.Equal(t, "application/json", gotType)
	assert.Equal(t, `{"Temperature":"23.45"}`, gotBody)
	assert.Equal(t, "http", sink.Name())
}

func TestHTTPSinkNon2xxIsError(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "boom", http.StatusBadGateway)
	}))
	defer srv.Close()

	err := NewHTTPSink(srv.URL, http.MethodPost, time.Second, nil).Deliver(context.Background(), []byte(`{}`))
	var se *StatusError
	require.ErrorAs(t, err, &se)
	assert.Equal(t, http.StatusBadGateway, se.Code)
	assert.Contains(t, se.Error(), "boom")
}

func TestHTTPSinkUnreachable(t *testing.T) {
	srv := httptest.NewServer(http.NotFoundHandler())
	url := srv.URL
	srv.Close()

	err := NewHTTPSink(url, "", 200*time.Millisecond, nil).Deliver(context.Background(), []byte(`{}`))
	assert.Error(t, err)
}

// fakeToken completes immediately with err
type fakeToken struct {
	err  error
	done chan struct{}
}

func newFakeToken(err error) *fakeToken {
	t := &fakeToken{err: err, done: make(chan struct{})}
	close(t.done)
	return t
}

func (t *fakeToken) Wait() bool                     { return true }
func (t *fakeToken) WaitTimeout(time.Duration) bool { return true }
func (t *fakeToken) Done() <-chan struct{}          { return t.done }
func (t *fakeToken) Error() error                   { return t.err }

// pendingToken never completes, like a paho connect token while the broker is unreachable
type pendingToken struct {
	done chan struct{}
}

func (t *pendingToken) Wait() bool                     { <-t.done; return true }
func (t *pendingToken) WaitTimeout(time.Duration) bool { return false }
func (t *pendingToken) Done() <-chan struct{}          { return t.done }
func (t *pendingToken) Error() error                   { return nil }

// fakeMQTTClient records publishes; unimplemented methods panic via the nil embedded interface
type fakeMQTTClient struct {
	mqtt.Client

	mu             sync.Mutex
	connected      bool
	connects       int
	pendingConnect bool
	connectErr     error
	publishErr     error
	published  []string
	topics     []string
	qos        []byte
}

func (c *fakeMQTTClient) IsConnected() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.connected
}

func (c *fakeMQTTClient) Connect() mqtt.Token {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.connects++
	if c.pendingConnect {
		return &pendingToken{done: make(chan struct{})}
	}
	if c.connectErr == nil {
		c.connected = true
	}
	return newFakeToken(c.connectErr)
}

func (c *fakeMQTTClient) connectCalls() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.connects
}

func (c *fakeMQTTClient) Disconnect(uint) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.connected = false
}

func (c *fakeMQTTClient) Publish(topic string, qos byte, _ bool, payload interface{}) mqtt.Token {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.publishErr == nil {
		c.published = append(c.published, string(payload.([]byte)))
		c.topics = append(c.topics, topic)
		c.qos = append(c.qos, qos)
	}
	return newFakeToken(c.publishErr)
}

func TestMQTTSinkConnectsAndPublishes(t *testing.T) {
	client := &fakeMQTTClient{}
	sink := newMQTTSinkWithClient(MQTTConfig{Topic: "sensors/thp"}, client, logrus.New())

	require.NoError(t, sink.Deliver(context.Background(), []byte(`{"Humidity":"41.0"}`)))
	assert.True(t, sink.IsConnected(), "Deliver MUST connect on demand")
	assert.Equal(t, []string{`{"Humidity":"41.0"}`}, client.published)
	assert.Equal(t, []string{"sensors/thp"}, client.topics)
	assert.Equal(t, []byte{1}, client.qos, "reports MUST be published with QoS 1")
	assert.Equal(t, "mqtt", sink.Name())

	sink.Close()
	assert.False(t, sink.IsConnected())
}

func TestMQTTSinkErrors(t *testing.T) {
	client := &fakeMQTTClient{connectErr: errors.New("not authorized")}
	sink := newMQTTSinkWithClient(MQTTConfig{Topic: "t"}, client, logrus.New())
	assert.ErrorContains(t, sink.Deliver(context.Background(), []byte(`{}`)), "not authorized")
	assert.ErrorContains(t, sink.Deliver(context.Background(), []byte(`{}`)), "not authorized")
	assert.Equal(t, 2, client.connectCalls(), "a failed connect MUST be dialled again on the next delivery")

	client = &fakeMQTTClient{publishErr: errors.New("queue full")}
	sink = newMQTTSinkWithClient(MQTTConfig{Topic: "t"}, client, logrus.New())
	assert.ErrorContains(t, sink.Deliver(context.Background(), []byte(`{}`)), "queue full")
}

func TestNewMQTTSinkDoesNotDial(t *testing.T) {
	sink := NewMQTTSink(MQTTConfig{Broker: "127.0.0.1", Port: 1, ClientID: "thpgw-test", Topic: "t"}, nil)
	assert.False(t, sink.IsConnected())
	assert.Equal(t, 5*time.Second, sink.cfg.PublishTimeout)
}

func TestMQTTSinkUnreachableBrokerFailsFast(t *testing.T) {
	client := &fakeMQTTClient{pendingConnect: true}
	sink := newMQTTSinkWithClient(MQTTConfig{Topic: "t"}, client, logrus.New())

	sink.Start()
	start := time.Now()
	for i := 0; i < 3; i++ {
		err := sink.Deliver(context.Background(), []byte(`{}`))
		assert.ErrorIs(t, err, ErrBrokerUnavailable)
	}
	assert.Less(t, time.Since(start), time.Second, "Deliver MUST NOT wait for the broker")
	assert.Equal(t, 1, client.connectCalls(), "Connect MUST be called once while it is still in progress")
	assert.Empty(t, client.published)
}
