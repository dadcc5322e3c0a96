// Package link owns the BLE connection to the sensor: it scans, connects,
// resolves the sensor characteristics and reconnects with backoff when the
// link is lost.
package link

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"github.com/cenkalti/backoff/v4"
	"github.com/sirupsen/logrus"
	"github.com/srg/thpgw/internal/device"
	"github.com/srg/thpgw/internal/sensor"
)

// Config describes the peripheral and the reconnect policy
type Config struct {
	// Name is matched as a substring of the advertised local name
	Name string
	// Address, when set, also matches by exact address
	Address string

	ServiceUUID         string
	CharacteristicUUIDs map[sensor.Kind]string

	ScanDelay      time.Duration
	ScanTimeout    time.Duration // 0 scans until found
	ConnectTimeout time.Duration

	// DegradedAfter consecutive operation failures move ready to degraded
	DegradedAfter int
	// ReconnectAfter consecutive failures drop a degraded link and reconnect.
	// Defaults to twice DegradedAfter.
	ReconnectAfter int

	ReconnectInitialInterval time.Duration
	ReconnectMaxInterval     time.Duration
}

// Stats is a point-in-time view of the link
type Stats struct {
	State       State     `json:"state"`
	Address     string    `json:"address,omitempty"`
	Connects    uint64    `json:"connects"`
	Reconnects  uint64    `json:"reconnects"`
	Failures    int       `json:"consecutive_failures"`
	ConnectedAt time.Time `json:"connected_at,omitempty"`
	LastError   string    `json:"last_error,omitempty"`
}

// Link is the persistent connection state machine
type Link struct {
	cfg     Config
	central device.Central
	logger  *logrus.Logger
	now     func() time.Time

	running atomic.Bool
	lost    chan error

	mu          sync.RWMutex
	state       State
	conn        device.Connection
	chars       map[sensor.Kind]device.Characteristic
	failures    int
	stats       Stats
	subscribers map[int]func(Transition)
	nextSubID   int
}

// New creates a link in the disconnected state
func New(cfg Config, central device.Central, logger *logrus.Logger) *Link {
	if logger == nil {
		logger = logrus.New()
	}
	if cfg.ServiceUUID == "" {
		cfg.ServiceUUID = sensor.DefaultServiceUUID
	}
	if cfg.CharacteristicUUIDs == nil {
		cfg.CharacteristicUUIDs = make(map[sensor.Kind]string, 3)
		for _, k := range sensor.Kinds() {
			cfg.CharacteristicUUIDs[k] = sensor.DefaultUUID(k)
		}
	}
	if cfg.DegradedAfter <= 0 {
		cfg.DegradedAfter = 3
	}
	if cfg.ReconnectAfter <= cfg.DegradedAfter {
		cfg.ReconnectAfter = 2 * cfg.DegradedAfter
	}
	if cfg.ReconnectInitialInterval <= 0 {
		cfg.ReconnectInitialInterval = time.Second
	}
	if cfg.ReconnectMaxInterval <= 0 {
		cfg.ReconnectMaxInterval = 30 * time.Second
	}

	return &Link{
		cfg:         cfg,
		central:     central,
		logger:      logger,
		now:         time.Now,
		lost:        make(chan error, 1),
		state:       Disconnected,
		subscribers: make(map[int]func(Transition)),
	}
}

// State returns the current state
func (l *Link) State() State {
	l.mu.RLock()
	defer l.mu.RUnlock()
	return l.state
}

// Stats returns a copy of the link statistics
func (l *Link) Stats() Stats {
	l.mu.RLock()
	defer l.mu.RUnlock()
	s := l.stats
	s.State = l.state
	s.Failures = l.failures
	return s
}

// Subscribe registers fn for every state change and returns a function that removes it.
// fn runs on the goroutine that caused the transition and must not block.
func (l *Link) Subscribe(fn func(Transition)) (unsubscribe func()) {
	l.mu.Lock()
	defer l.mu.Unlock()

	id := l.nextSubID
	l.nextSubID++
	l.subscribers[id] = fn

	return func() {
		l.mu.Lock()
		defer l.mu.Unlock()
		delete(l.subscribers, id)
	}
}

// transition moves to `to`, notifying subscribers. Same-state moves are no-ops.
func (l *Link) transition(to State, cause error) error {
	l.mu.Lock()
	from := l.state
	if from == to {
		l.mu.Unlock()
		return nil
	}
	if !CanTransition(from, to) {
		l.mu.Unlock()
		err := fmt.Errorf("%w: %s -> %s", ErrInvalidTransition, from, to)
		l.logger.WithError(err).Error("Rejected link state change")
		return err
	}

	l.state = to
	if cause != nil {
		l.stats.LastError = cause.Error()
	}
	t := Transition{From: from, To: to, At: l.now(), Err: cause}
	subs := make([]func(Transition), 0, len(l.subscribers))
	for _, fn := range l.subscribers {
		subs = append(subs, fn)
	}
	l.mu.Unlock()

	entry := l.logger.WithFields(logrus.Fields{"from": from, "to": to})
	if cause != nil {
		entry = entry.WithError(cause)
	}
	entry.Info("Link state changed")

	for _, fn := range subs {
		fn(t)
	}
	return nil
}

// Characteristic returns the resolved handle for kind
func (l *Link) Characteristic(k sensor.Kind) (device.Characteristic, error) {
	l.mu.RLock()
	defer l.mu.RUnlock()

	if !l.state.Usable() {
		return nil, fmt.Errorf("%w (state %s)", ErrNotReady, l.state)
	}
	c, ok := l.chars[k]
	if !ok {
		return nil, &device.NotFoundError{Resource: "characteristic", UUIDs: []string{l.cfg.ServiceUUID, l.cfg.CharacteristicUUIDs[k]}}
	}
	return c, nil
}

// ReportSuccess records a successful GATT operation
func (l *Link) ReportSuccess() {
	l.mu.Lock()
	l.failures = 0
	degraded := l.state == Degraded
	l.mu.Unlock()

	if degraded {
		_ = l.transition(Ready, nil)
	}
}

// ReportFailure records a failed GATT operation. A lost connection triggers a reconnect;
// other failures degrade the link and, if they keep coming, drop it for a reconnect.
func (l *Link) ReportFailure(err error) {
	if err == nil {
		return
	}
	if errors.Is(err, device.ErrNotConnected) {
		l.drop(err)
		return
	}

	l.mu.Lock()
	l.failures++
	l.stats.LastError = err.Error()
	failures := l.failures
	degrade := l.state == Ready && failures >= l.cfg.DegradedAfter
	escalate := l.state == Degraded && failures >= l.cfg.ReconnectAfter
	l.mu.Unlock()

	switch {
	case degrade:
		_ = l.transition(Degraded, err)
	case escalate:
		l.logger.WithFields(logrus.Fields{
			"failures": failures,
			"error":    err,
		}).Warn("Link still failing while degraded, dropping connection")
		l.drop(fmt.Errorf("%d consecutive failures: %w", failures, err))
	}
}

// drop asks the running session to tear the connection down
func (l *Link) drop(cause error) {
	select {
	case l.lost <- cause:
	default:
	}
}

// WaitReady blocks until the link is usable or ctx is done
func (l *Link) WaitReady(ctx context.Context) error {
	ready := make(chan struct{}, 1)
	unsubscribe := l.Subscribe(func(t Transition) {
		if t.To.Usable() {
			select {
			case ready <- struct{}{}:
			default:
			}
		}
	})
	defer unsubscribe()

	if l.State().Usable() {
		return nil
	}
	select {
	case <-ready:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// Run drives the link until ctx is cancelled, reconnecting with exponential backoff.
// It returns nil on cancellation.
func (l *Link) Run(ctx context.Context) error {
	if !l.running.CompareAndSwap(false, true) {
		return errors.New("link is already running")
	}
	defer l.running.Store(false)
	defer func() { _ = l.transition(Disconnected, nil) }()

	if err := sleepCtx(ctx, l.cfg.ScanDelay); err != nil {
		return nil
	}

	bo := backoff.NewExponentialBackOff()
	bo.InitialInterval = l.cfg.ReconnectInitialInterval
	bo.MaxInterval = l.cfg.ReconnectMaxInterval
	bo.MaxElapsedTime = 0
	bo.Reset()

	for {
		err := l.session(ctx, bo)
		if ctx.Err() != nil {
			return nil
		}

		if terr := l.transition(Reconnecting, err); terr != nil {
			return terr
		}
		l.mu.Lock()
		l.stats.Reconnects++
		l.mu.Unlock()

		wait := bo.NextBackOff()
		l.logger.WithFields(logrus.Fields{
			"error": err,
			"retry": wait,
		}).Warn("Link lost, reconnecting")
		if sleepCtx(ctx, wait) != nil {
			return nil
		}
	}
}

// session performs one scan-connect-discover cycle and then waits for the link to end
func (l *Link) session(ctx context.Context, bo backoff.BackOff) error {
	if err := l.transition(Scanning, nil); err != nil {
		return err
	}
	address, err := l.scan(ctx)
	if err != nil {
		return err
	}

	if err := l.transition(Connecting, nil); err != nil {
		return err
	}
	conn, err := l.central.Connect(ctx, address, &device.ConnectOptions{ConnectTimeout: l.cfg.ConnectTimeout})
	if err != nil {
		return err
	}

	if err := l.transition(Discovering, nil); err != nil {
		_ = conn.Disconnect()
		return err
	}
	if err := conn.Discover(ctx); err != nil {
		return err
	}
	chars, err := l.resolve(conn)
	if err != nil {
		_ = conn.Disconnect()
		return err
	}

	l.mu.Lock()
	l.conn = conn
	l.chars = chars
	l.failures = 0
	l.stats.Connects++
	l.stats.Address = address
	l.stats.ConnectedAt = l.now()
	l.mu.Unlock()
	defer l.release()

	// drop stale loss reports from the previous connection
	select {
	case <-l.lost:
	default:
	}

	if err := l.transition(Ready, nil); err != nil {
		_ = conn.Disconnect()
		return err
	}
	bo.Reset()

	select {
	case <-ctx.Done():
		if err := conn.Disconnect(); err != nil {
			l.logger.WithError(err).Warn("Disconnect failed")
		}
		return ctx.Err()
	case <-conn.Done():
		if cause := conn.Err(); cause != nil && !errors.Is(cause, context.Canceled) {
			return cause
		}
		return device.ErrNotConnected
	case cause := <-l.lost:
		_ = conn.Disconnect()
		return cause
	}
}

func (l *Link) release() {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.conn = nil
	l.chars = nil
}

// scan returns the address of the first matching advertisement
func (l *Link) scan(ctx context.Context) (string, error) {
	scanCtx, cancel := context.WithCancel(ctx)
	defer cancel()
	if l.cfg.ScanTimeout > 0 {
		scanCtx, cancel = context.WithTimeout(scanCtx, l.cfg.ScanTimeout)
		defer cancel()
	}

	l.logger.WithFields(logrus.Fields{
		"name":    l.cfg.Name,
		"address": l.cfg.Address,
	}).Info("Scanning for sensor...")

	found := make(chan string, 1)
	handler := func(adv device.Advertisement) {
		if !device.MatchesName(adv, l.cfg.Name) && !device.MatchesAddress(adv, l.cfg.Address) {
			return
		}
		select {
		case found <- adv.Addr():
			l.logger.WithFields(logrus.Fields{
				"name":    adv.LocalName(),
				"address": adv.Addr(),
				"rssi":    adv.RSSI(),
			}).Info("Sensor found")
			cancel()
		default:
		}
	}

	scanErr := l.central.Scan(scanCtx, false, handler)

	select {
	case addr := <-found:
		return addr, nil
	default:
	}
	if err := ctx.Err(); err != nil {
		return "", err
	}
	if scanErr != nil && !errors.Is(scanErr, context.Canceled) && !errors.Is(scanErr, context.DeadlineExceeded) {
		return "", fmt.Errorf("scan failed: %w", scanErr)
	}
	return "", fmt.Errorf("sensor %q not found within %v: %w", l.cfg.Name, l.cfg.ScanTimeout, device.ErrTimeout)
}

// resolve finds the service and the sensor characteristics on conn.
// Kinds whose characteristic is missing are skipped; at least one must resolve.
func (l *Link) resolve(conn device.Connection) (map[sensor.Kind]device.Characteristic, error) {
	l.logProfile(conn)
	if _, err := conn.GetService(l.cfg.ServiceUUID); err != nil {
		return nil, err
	}

	chars := make(map[sensor.Kind]device.Characteristic, len(l.cfg.CharacteristicUUIDs))
	for _, k := range sensor.Kinds() {
		uuid, ok := l.cfg.CharacteristicUUIDs[k]
		if !ok || uuid == "" {
			continue
		}
		c, err := conn.GetCharacteristic(l.cfg.ServiceUUID, uuid)
		if err != nil {
			l.logger.WithFields(logrus.Fields{
				"kind":  k,
				"uuid":  uuid,
				"error": err,
			}).Warn("Sensor characteristic not found")
			continue
		}
		chars[k] = c
		l.logger.WithFields(logrus.Fields{
			"kind":       k,
			"uuid":       c.UUID(),
			"properties": c.GetProperties(),
		}).Debug("Resolved sensor characteristic")
	}

	if len(chars) == 0 {
		return nil, &device.NotFoundError{Resource: "sensor characteristics", UUIDs: []string{l.cfg.ServiceUUID}}
	}
	return chars, nil
}

// logProfile lists the discovered services and characteristics
func (l *Link) logProfile(conn device.Connection) {
	services := conn.Services()
	uuids := make([]string, 0, len(services))
	for _, svc := range services {
		uuids = append(uuids, svc.UUID())
		for _, c := range svc.GetCharacteristics() {
			l.logger.WithFields(logrus.Fields{
				"service": svc.UUID(),
				"uuid":    c.UUID(),
			}).Trace("Discovered characteristic")
		}
	}
	l.logger.WithFields(logrus.Fields{
		"address":  conn.Address(),
		"services": uuids,
	}).Debug("Peripheral profile")
}

func sleepCtx(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return ctx.Err()
	}
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-t.C:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}
