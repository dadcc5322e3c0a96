// Package report turns cache snapshots into reports on a timer and delivers
// them to the configured sinks.
package report

import (
	"context"
	"encoding/json"
	"errors"
	"sync"
	"time"

	"github.com/cenkalti/backoff/v4"
	"github.com/sirupsen/logrus"
	"github.com/srg/thpgw/internal/cache"
	"github.com/srg/thpgw/internal/groutine"
	"github.com/srg/thpgw/internal/outbox"
	"github.com/srg/thpgw/internal/ringchan"
)

// MinInterval is the shortest allowed report interval
const MinInterval = 5 * time.Second

// drainTimeout bounds the delivery of queued reports after Run is cancelled
const drainTimeout = 2 * time.Second

// Config controls the report timer and delivery
type Config struct {
	Interval time.Duration
	// QueueSize bounds the report queue and each sink's queue
	QueueSize int
	// MaxElapsed bounds the retries of one delivery to one sink
	MaxElapsed    time.Duration
	RetryInterval time.Duration
	SkipEmpty     bool
	// RedeliverBatch is how many outbox items are read at a time
	RedeliverBatch int
}

// SinkStats counts deliveries to one sink
type SinkStats struct {
	Sent        uint64    `json:"sent"`
	Failed      uint64    `json:"failed"`
	Dropped     uint64    `json:"dropped"`
	Redelivered uint64    `json:"redelivered"`
	Queued      int       `json:"queued"`
	LastSuccess time.Time `json:"last_success,omitempty"`
	LastError   string    `json:"last_error,omitempty"`
}

// Stats is a point-in-time view of the reporter
type Stats struct {
	Enqueued  uint64               `json:"enqueued"`
	Dropped   uint64               `json:"dropped"`
	Skipped   uint64               `json:"skipped"`
	Queued    int                  `json:"queued"`
	QueueSize int                  `json:"queue_size"`
	Backlog   int                  `json:"outbox_backlog"`
	Sinks     map[string]SinkStats `json:"sinks"`
}

// sinkWorker delivers encoded reports to one sink, so a slow sink never holds up another
type sinkWorker struct {
	sink  Sink
	queue *ringchan.RingChannel[[]byte]
}

// Reporter owns the report timer, the outbound queue and the per-sink delivery workers
type Reporter struct {
	cfg     Config
	cache   *cache.Cache
	workers []*sinkWorker
	outbox  *outbox.Outbox
	logger  *logrus.Logger
	now     func() time.Time

	queue *ringchan.RingChannel[Report]

	statsMu sync.Mutex
	stats   Stats

	timerMu sync.Mutex
	running bool
	cancel  context.CancelFunc
	wg      sync.WaitGroup
}

// New creates a reporter. box may be nil to disable the outbox.
func New(cfg Config, c *cache.Cache, sinks []Sink, box *outbox.Outbox, logger *logrus.Logger) *Reporter {
	if logger == nil {
		logger = logrus.New()
	}
	if cfg.Interval < MinInterval {
		cfg.Interval = MinInterval
	}
	if cfg.QueueSize <= 0 {
		cfg.QueueSize = 16
	}
	if cfg.MaxElapsed <= 0 {
		cfg.MaxElapsed = cfg.Interval
	}
	if cfg.RetryInterval <= 0 {
		cfg.RetryInterval = 500 * time.Millisecond
	}
	if cfg.RedeliverBatch <= 0 {
		cfg.RedeliverBatch = 10
	}

	r := &Reporter{
		cfg:    cfg,
		cache:  c,
		outbox: box,
		logger: logger,
		now:    time.Now,
		queue:  ringchan.New[Report](cfg.QueueSize),
		stats:  Stats{Sinks: make(map[string]SinkStats, len(sinks))},
	}
	for _, s := range sinks {
		r.workers = append(r.workers, &sinkWorker{sink: s, queue: ringchan.New[[]byte](cfg.QueueSize)})
		r.stats.Sinks[s.Name()] = SinkStats{}
	}
	return r
}

// Interval returns the effective report interval
func (r *Reporter) Interval() time.Duration {
	return r.cfg.Interval
}

// Start launches the report timer. Starting a running timer is a no-op and returns false.
func (r *Reporter) Start(ctx context.Context) bool {
	r.timerMu.Lock()
	defer r.timerMu.Unlock()

	if r.running {
		return false
	}
	ctx, cancel := context.WithCancel(ctx)
	r.cancel = cancel
	r.running = true

	r.wg.Add(1)
	groutine.Go(ctx, "report-timer", func(ctx context.Context) {
		defer r.wg.Done()
		ticker := time.NewTicker(r.cfg.Interval)
		defer ticker.Stop()
		for {
			select {
			case <-ctx.Done():
				return
			case <-ticker.C:
				r.Enqueue()
			}
		}
	})
	r.logger.WithField("interval", r.cfg.Interval).Info("Report timer started")
	return true
}

// Stop halts the report timer. Idempotent; returns whether it was running.
func (r *Reporter) Stop() bool {
	r.timerMu.Lock()
	if !r.running {
		r.timerMu.Unlock()
		return false
	}
	r.running = false
	cancel := r.cancel
	r.cancel = nil
	r.timerMu.Unlock()

	cancel()
	r.wg.Wait()
	r.logger.Info("Report timer stopped")
	return true
}

// Running reports whether the report timer is active
func (r *Reporter) Running() bool {
	r.timerMu.Lock()
	defer r.timerMu.Unlock()
	return r.running
}

// Enqueue snapshots the cache into a report and queues it for delivery.
// Returns false when the report was skipped as empty or the queue is closed.
func (r *Reporter) Enqueue() bool {
	rep := Build(r.cache.Snapshot(r.now()), r.now())
	if r.cfg.SkipEmpty && rep.Empty() {
		r.statsMu.Lock()
		r.stats.Skipped++
		r.statsMu.Unlock()
		r.logger.Debug("No readings yet, skipping report")
		return false
	}

	accepted, dropped := r.queue.Send(rep)
	r.statsMu.Lock()
	if accepted {
		r.stats.Enqueued++
	}
	if dropped {
		r.stats.Dropped++
	}
	r.statsMu.Unlock()

	if dropped {
		r.logger.Warn("Report queue full, dropped oldest report")
	}
	return accepted
}

// Run fans queued reports out to the sink workers until ctx is cancelled.
// Reports already queued are then delivered within a short grace period.
func (r *Reporter) Run(ctx context.Context) error {
	var wg sync.WaitGroup
	for _, w := range r.workers {
		wg.Add(1)
		groutine.Go(ctx, "report-"+w.sink.Name(), func(ctx context.Context) {
			defer wg.Done()
			r.work(ctx, w)
		})
	}
	defer func() {
		for _, w := range r.workers {
			w.queue.Close()
		}
		wg.Wait()
	}()

	for {
		select {
		case <-ctx.Done():
			r.queue.Close()
			for rep := range r.queue.C() {
				r.dispatch(rep)
			}
			return nil
		case rep, ok := <-r.queue.C():
			if !ok {
				return nil
			}
			r.dispatch(rep)
		}
	}
}

// dispatch encodes rep once and hands it to every sink worker
func (r *Reporter) dispatch(rep Report) {
	payload, err := json.Marshal(rep)
	if err != nil {
		r.logger.WithError(err).Error("Failed to encode report")
		return
	}
	for _, w := range r.workers {
		if _, dropped := w.queue.Send(payload); dropped {
			r.statsMu.Lock()
			s := r.stats.Sinks[w.sink.Name()]
			s.Dropped++
			r.stats.Sinks[w.sink.Name()] = s
			r.statsMu.Unlock()
			r.logger.WithField("sink", w.sink.Name()).Warn("Sink queue full, dropped oldest report")
		}
	}
}

// work delivers w's queue until it is closed. Once ctx is done the remaining
// items get drainTimeout; whatever fails then goes to the outbox.
func (r *Reporter) work(ctx context.Context, w *sinkWorker) {
	deliverCtx := ctx
	draining := false
	for payload := range w.queue.C() {
		if !draining && ctx.Err() != nil {
			var cancel context.CancelFunc
			deliverCtx, cancel = context.WithTimeout(context.WithoutCancel(ctx), drainTimeout)
			defer cancel()
			draining = true
		}
		r.deliver(deliverCtx, w.sink, payload)
	}
}

// deliver ships one payload to sink. The sink's outbox backlog goes first, oldest
// first, so the receiver always ends on the newest report.
func (r *Reporter) deliver(ctx context.Context, sink Sink, payload []byte) {
	err := r.redeliver(ctx, sink)
	if err == nil {
		err = r.deliverWithRetry(ctx, sink, payload)
	}
	if err != nil {
		r.recordFailure(sink, err)
		r.logger.WithFields(logrus.Fields{
			"sink":  sink.Name(),
			"error": err,
		}).Warn("Report delivery failed")
		r.persist(ctx, sink, payload)
		return
	}

	r.recordSuccess(sink)
	r.logger.WithFields(logrus.Fields{
		"sink":    sink.Name(),
		"payload": string(payload),
	}).Info("Report delivered")
}

// permanent reports whether a delivery error can never succeed on retry
func permanent(err error) bool {
	var se *StatusError
	return errors.As(err, &se) && se.Code >= 400 && se.Code < 500 && se.Code != 408 && se.Code != 429
}

func (r *Reporter) deliverWithRetry(ctx context.Context, sink Sink, payload []byte) error {
	exp := backoff.NewExponentialBackOff()
	exp.InitialInterval = r.cfg.RetryInterval
	exp.MaxElapsedTime = r.cfg.MaxElapsed
	exp.Reset()

	op := func() error {
		err := sink.Deliver(ctx, payload)
		if permanent(err) {
			return backoff.Permanent(err)
		}
		return err
	}
	notify := func(err error, wait time.Duration) {
		r.logger.WithFields(logrus.Fields{
			"sink":  sink.Name(),
			"error": err,
			"retry": wait,
		}).Debug("Retrying report delivery")
	}
	return backoff.RetryNotify(op, backoff.WithContext(exp, ctx), notify)
}

func (r *Reporter) persist(ctx context.Context, sink Sink, payload []byte) {
	if r.outbox == nil {
		return
	}
	if _, err := r.outbox.Put(context.WithoutCancel(ctx), sink.Name(), payload); err != nil {
		r.logger.WithError(err).Error("Failed to persist report to outbox")
	}
}

// redeliver empties the sink's backlog oldest first. It returns the first
// transient failure; items the sink rejects permanently are discarded.
func (r *Reporter) redeliver(ctx context.Context, sink Sink) error {
	if r.outbox == nil {
		return nil
	}
	if err := ctx.Err(); err != nil {
		return err
	}

	for {
		items, err := r.outbox.Pending(ctx, sink.Name(), r.cfg.RedeliverBatch)
		if err != nil {
			r.logger.WithError(err).Error("Failed to read outbox")
			return nil
		}
		if len(items) == 0 {
			return nil
		}

		for _, it := range items {
			fields := logrus.Fields{
				"sink": sink.Name(),
				"id":   it.ID,
				"age":  r.now().Sub(it.CreatedAt).Round(time.Second),
			}
			err := r.deliverWithRetry(ctx, sink, it.Payload)
			switch {
			case err == nil:
				r.statsMu.Lock()
				s := r.stats.Sinks[sink.Name()]
				s.Redelivered++
				r.stats.Sinks[sink.Name()] = s
				r.statsMu.Unlock()
				r.logger.WithFields(fields).Info("Redelivered report from outbox")
			case permanent(err):
				r.logger.WithFields(fields).WithError(err).Warn("Sink rejected report from outbox, discarding it")
			default:
				if aerr := r.outbox.Attempted(context.WithoutCancel(ctx), it.ID); aerr != nil {
					r.logger.WithError(aerr).Error("Failed to record outbox attempt")
				}
				r.logger.WithFields(fields).WithError(err).Debug("Outbox redelivery failed")
				return err
			}
			if err := r.outbox.Ack(ctx, it.ID); err != nil {
				r.logger.WithError(err).Error("Failed to ack outbox item")
				return nil
			}
		}
	}
}

func (r *Reporter) recordSuccess(sink Sink) {
	r.statsMu.Lock()
	defer r.statsMu.Unlock()
	s := r.stats.Sinks[sink.Name()]
	s.Sent++
	s.LastSuccess = r.now()
	r.stats.Sinks[sink.Name()] = s
}

func (r *Reporter) recordFailure(sink Sink, err error) {
	r.statsMu.Lock()
	defer r.statsMu.Unlock()
	s := r.stats.Sinks[sink.Name()]
	s.Failed++
	s.LastError = err.Error()
	r.stats.Sinks[sink.Name()] = s
}

// Stats returns a copy of the delivery counters
func (r *Reporter) Stats() Stats {
	r.statsMu.Lock()
	out := r.stats
	out.Sinks = make(map[string]SinkStats, len(r.stats.Sinks))
	for k, v := range r.stats.Sinks {
		out.Sinks[k] = v
	}
	r.statsMu.Unlock()

	out.Queued = r.queue.Len()
	out.QueueSize = r.queue.Cap()
	for _, w := range r.workers {
		s := out.Sinks[w.sink.Name()]
		s.Queued = w.queue.Len()
		out.Sinks[w.sink.Name()] = s
	}
	if r.outbox != nil {
		n, err := r.outbox.Len(context.Background(), "")
		if err == nil {
			out.Backlog = n
		}
	}
	return out
}
