// Package poller runs the per-sensor write-trigger/read timers.
package poller

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/cenkalti/backoff/v4"
	"github.com/sirupsen/logrus"
	"github.com/srg/thpgw/internal/cache"
	"github.com/srg/thpgw/internal/device"
	"github.com/srg/thpgw/internal/groutine"
	"github.com/srg/thpgw/internal/hexcodec"
	"github.com/srg/thpgw/internal/link"
	"github.com/srg/thpgw/internal/sensor"
)

// Link is the part of link.Link the pollers depend on
type Link interface {
	State() link.State
	Characteristic(k sensor.Kind) (device.Characteristic, error)
	ReportSuccess()
	ReportFailure(err error)
}

// Config controls every poller in a Set
type Config struct {
	Interval      time.Duration
	Trigger       []byte // written with response before each read; empty skips the write
	OpTimeout     time.Duration
	Retries       int
	RetryInterval time.Duration
}

// Stats counts poll outcomes for one kind
type Stats struct {
	Kind      sensor.Kind `json:"kind"`
	Polls     uint64      `json:"polls"`
	Successes uint64      `json:"successes"`
	Failures  uint64      `json:"failures"`
	Skipped   uint64      `json:"skipped"`
	LastError string      `json:"last_error,omitempty"`
	LastPoll  time.Time   `json:"last_poll,omitempty"`
}

// Poller samples one sensor kind
type Poller struct {
	kind   sensor.Kind
	cfg    Config
	link   Link
	cache  *cache.Cache
	logger *logrus.Logger
	now    func() time.Time

	mu    sync.Mutex
	stats Stats
}

func newPoller(k sensor.Kind, cfg Config, l Link, c *cache.Cache, logger *logrus.Logger) *Poller {
	return &Poller{
		kind:   k,
		cfg:    cfg,
		link:   l,
		cache:  c,
		logger: logger,
		now:    time.Now,
		stats:  Stats{Kind: k},
	}
}

// Kind returns the sensor kind this poller samples
func (p *Poller) Kind() sensor.Kind {
	return p.kind
}

// Stats returns a copy of the poll counters
func (p *Poller) Stats() Stats {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.stats
}

func (p *Poller) run(ctx context.Context) {
	ticker := time.NewTicker(p.cfg.Interval)
	defer ticker.Stop()

	p.logger.WithFields(logrus.Fields{
		"kind":      p.kind,
		"interval":  p.cfg.Interval,
		"goroutine": groutine.Name(ctx),
	}).Debug("Poller started")

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			p.tick(ctx)
		}
	}
}

func (p *Poller) tick(ctx context.Context) {
	if !p.link.State().Usable() {
		p.mu.Lock()
		p.stats.Skipped++
		p.mu.Unlock()
		p.logger.WithFields(logrus.Fields{
			"kind":  p.kind,
			"state": p.link.State(),
		}).Debug("Link not usable, skipping poll")
		return
	}

	r, err := p.PollOnce(ctx)
	if err != nil {
		if ctx.Err() == nil {
			p.logger.WithFields(logrus.Fields{
				"kind":  p.kind,
				"error": err,
			}).Warn("Sensor poll failed")
		}
		return
	}
	p.logger.WithFields(logrus.Fields{
		"kind":  p.kind,
		"value": sensor.FormatValue(r.Value),
		"raw":   hexcodec.Encode(r.Raw),
	}).Debug("Sensor sampled")
}

// PollOnce triggers, reads and decodes one sample, stores it in the cache and
// reports the outcome to the link. Transport failures are retried with backoff;
// decode failures are not.
func (p *Poller) PollOnce(ctx context.Context) (sensor.Reading, error) {
	p.mu.Lock()
	p.stats.Polls++
	p.stats.LastPoll = p.now()
	p.mu.Unlock()

	r, err := p.poll(ctx)

	p.mu.Lock()
	if err != nil {
		p.stats.Failures++
		p.stats.LastError = err.Error()
	} else {
		p.stats.Successes++
		p.stats.LastError = ""
	}
	p.mu.Unlock()

	switch {
	case err == nil:
		p.link.ReportSuccess()
	case errors.Is(err, link.ErrNotReady), errors.Is(err, context.Canceled), errors.Is(err, context.DeadlineExceeded):
		// not an operation failure
	default:
		p.link.ReportFailure(err)
	}
	return r, err
}

func (p *Poller) poll(ctx context.Context) (sensor.Reading, error) {
	char, err := p.link.Characteristic(p.kind)
	if err != nil {
		return sensor.Reading{}, err
	}

	op := func() (sensor.Reading, error) {
		if err := ctx.Err(); err != nil {
			return sensor.Reading{}, backoff.Permanent(err)
		}
		if len(p.cfg.Trigger) > 0 {
			if err := char.Write(p.cfg.Trigger, true, p.cfg.OpTimeout); err != nil {
				return sensor.Reading{}, classify(fmt.Errorf("trigger %s: %w", p.kind, err))
			}
		}
		data, err := char.Read(p.cfg.OpTimeout)
		if err != nil {
			return sensor.Reading{}, classify(fmt.Errorf("read %s: %w", p.kind, err))
		}
		r, err := sensor.Decode(p.kind, data)
		if err != nil {
			return sensor.Reading{}, backoff.Permanent(err)
		}
		return r, nil
	}

	notify := func(err error, wait time.Duration) {
		p.logger.WithFields(logrus.Fields{
			"kind":  p.kind,
			"error": err,
			"retry": wait,
		}).Debug("Retrying sensor poll")
	}

	r, err := backoff.RetryNotifyWithData(op, p.backOff(ctx), notify)
	if err != nil {
		return sensor.Reading{}, err
	}

	r.SampledAt = p.now()
	if !p.cache.Update(r) {
		p.logger.WithField("kind", p.kind).Debug("Newer sample already cached")
	}
	return r, nil
}

func (p *Poller) backOff(ctx context.Context) backoff.BackOff {
	exp := backoff.NewExponentialBackOff()
	exp.InitialInterval = p.cfg.RetryInterval
	exp.MaxInterval = p.cfg.Interval
	exp.MaxElapsedTime = 0
	exp.Reset()

	var bo backoff.BackOff = exp
	if p.cfg.Retries >= 0 {
		bo = backoff.WithMaxRetries(exp, uint64(p.cfg.Retries))
	}
	return backoff.WithContext(bo, ctx)
}

// classify stops retrying once the connection is gone
func classify(err error) error {
	if errors.Is(err, device.ErrNotConnected) {
		return backoff.Permanent(err)
	}
	return err
}

// Set runs the pollers of every kind together
type Set struct {
	logger  *logrus.Logger
	pollers []*Poller

	mu      sync.Mutex
	running bool
	cancel  context.CancelFunc
	wg      sync.WaitGroup
}

// NewSet creates one poller per kind; all kinds when none are given
func NewSet(cfg Config, l Link, c *cache.Cache, logger *logrus.Logger, kinds ...sensor.Kind) *Set {
	if logger == nil {
		logger = logrus.New()
	}
	if cfg.Interval <= 0 {
		cfg.Interval = 4500 * time.Millisecond
	}
	if cfg.OpTimeout <= 0 {
		cfg.OpTimeout = 2 * time.Second
	}
	if cfg.RetryInterval <= 0 {
		cfg.RetryInterval = 200 * time.Millisecond
	}
	if len(kinds) == 0 {
		kinds = sensor.Kinds()
	}

	s := &Set{logger: logger}
	for _, k := range kinds {
		s.pollers = append(s.pollers, newPoller(k, cfg, l, c, logger))
	}
	return s
}

// Start launches every poller. Starting a running Set is a no-op and returns false.
func (s *Set) Start(ctx context.Context) bool {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.running {
		s.logger.Debug("Pollers already running")
		return false
	}

	ctx, cancel := context.WithCancel(ctx)
	s.cancel = cancel
	s.running = true

	for _, p := range s.pollers {
		p := p
		s.wg.Add(1)
		groutine.Go(ctx, "poller-"+p.kind.String(), func(ctx context.Context) {
			defer s.wg.Done()
			p.run(ctx)
		})
	}
	s.logger.WithField("pollers", len(s.pollers)).Info("Sensor polling started")
	return true
}

// Stop halts every poller and waits for in-flight polls. Idempotent; returns whether it was running.
func (s *Set) Stop() bool {
	s.mu.Lock()
	if !s.running {
		s.mu.Unlock()
		return false
	}
	s.running = false
	cancel := s.cancel
	s.cancel = nil
	s.mu.Unlock()

	cancel()
	s.wg.Wait()
	s.logger.Info("Sensor polling stopped")
	return true
}

// Running reports whether the pollers are active
func (s *Set) Running() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.running
}

// Poller returns the poller for kind
func (s *Set) Poller(k sensor.Kind) (*Poller, bool) {
	for _, p := range s.pollers {
		if p.kind == k {
			return p, true
		}
	}
	return nil, false
}

// PollOnce samples kind immediately, independent of the timers
func (s *Set) PollOnce(ctx context.Context, k sensor.Kind) (sensor.Reading, error) {
	p, ok := s.Poller(k)
	if !ok {
		return sensor.Reading{}, fmt.Errorf("no poller for %s", k)
	}
	return p.PollOnce(ctx)
}

// Stats returns the counters of every poller in kind order
func (s *Set) Stats() []Stats {
	out := make([]Stats, 0, len(s.pollers))
	for _, p := range s.pollers {
		out = append(out, p.Stats())
	}
	return out
}
