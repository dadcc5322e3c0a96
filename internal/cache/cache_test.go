package cache

import (
	"sync"
	"testing"
	"time"

	"github.com/srg/thpgw/internal/sensor"
	"github.com/stretchr/testify/suite"
)

type CacheTestSuite struct {
	suite.Suite
	cache *Cache
	clock time.Time
}

func (s *CacheTestSuite) SetupTest() {
	s.clock = time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	s.cache = New(15 * time.Second)
	s.cache.now = func() time.Time { return s.clock }
}

func (s *CacheTestSuite) reading(k sensor.Kind, v float64, at time.Time) sensor.Reading {
	return sensor.Reading{Kind: k, Value: v, SampledAt: at}
}

func (s *CacheTestSuite) TestUpdateAndGet() {
	// GOAL: Verify a stored reading is returned with its formatted value and counters
	//
	// TEST SCENARIO: Update temperature twice → Get returns the latest value and Updates=2

	s.True(s.cache.Update(s.reading(sensor.Temperature, 23.45, s.clock)))
	s.True(s.cache.Update(s.reading(sensor.Temperature, 21, s.clock.Add(time.Second))))

	e, ok := s.cache.Get(sensor.Temperature)
	s.Require().True(ok, "temperature MUST be cached")
	s.Equal("21.0", e.Value)
	s.Equal(uint64(2), e.Updates)
	s.Equal(s.clock.Add(time.Second), e.SampledAt)
	s.False(e.Stale)

	_, ok = s.cache.Get(sensor.Pressure)
	s.False(ok, "pressure MUST NOT be cached yet")
}

func (s *CacheTestSuite) TestOutOfOrderSampleIsDiscarded() {
	// GOAL: Verify the cache never regresses to an older sample
	//
	// TEST SCENARIO: Store a sample at t+2s, then one at t+1s → second update rejected, value unchanged

	s.True(s.cache.Update(s.reading(sensor.Humidity, 40, s.clock.Add(2*time.Second))))
	s.False(s.cache.Update(s.reading(sensor.Humidity, 39, s.clock.Add(time.Second))), "older sample MUST be rejected")

	e, ok := s.cache.Get(sensor.Humidity)
	s.Require().True(ok)
	s.Equal("40.0", e.Value)
	s.Equal(uint64(1), e.Updates)

	s.True(s.cache.Update(s.reading(sensor.Humidity, 41, s.clock.Add(2*time.Second))), "equal timestamp MUST be applied")
}

func (s *CacheTestSuite) TestZeroSampledAtIsStamped() {
	// GOAL: Verify readings without a sample time are stamped with the cache clock
	//
	// TEST SCENARIO: Update with zero SampledAt → entry SampledAt equals now

	s.True(s.cache.Update(sensor.Reading{Kind: sensor.Pressure, Value: 1013.25}))
	e, ok := s.cache.Get(sensor.Pressure)
	s.Require().True(ok)
	s.Equal(s.clock, e.SampledAt)
	s.Equal(s.clock, e.UpdatedAt)
}

func (s *CacheTestSuite) TestInvalidKindIsIgnored() {
	s.False(s.cache.Update(sensor.Reading{Kind: sensor.Kind(5), Value: 1}))
	s.Equal(0, s.cache.Len())
}

func (s *CacheTestSuite) TestSnapshotOrderAndStaleness() {
	// GOAL: Verify Snapshot returns entries in kind order and flags stale ones
	//
	// TEST SCENARIO: Pressure sampled 20s ago, temperature now → ordered [temperature, pressure], pressure stale

	s.cache.Update(s.reading(sensor.Pressure, 1000, s.clock.Add(-20*time.Second)))
	s.cache.Update(s.reading(sensor.Temperature, 20, s.clock))

	snap := s.cache.Snapshot(s.clock)
	s.Require().Len(snap, 2)
	s.Equal(sensor.Temperature, snap[0].Kind)
	s.False(snap[0].Stale)
	s.Equal(sensor.Pressure, snap[1].Kind)
	s.True(snap[1].Stale, "pressure older than StaleAfter MUST be stale")
}

func (s *CacheTestSuite) TestStalenessDisabled() {
	c := New(0)
	c.Update(sensor.Reading{Kind: sensor.Humidity, Value: 1, SampledAt: time.Unix(0, 0)})

	snap := c.Snapshot(time.Now())
	s.Require().Len(snap, 1)
	s.False(snap[0].Stale, "StaleAfter=0 MUST disable staleness")
	s.Zero(c.StaleAfter())
}

func (s *CacheTestSuite) TestReset() {
	for _, k := range sensor.Kinds() {
		s.cache.Update(s.reading(k, 1, s.clock))
	}
	s.Equal(3, s.cache.Len())

	s.cache.Reset()
	s.Equal(0, s.cache.Len())
	s.Empty(s.cache.Snapshot(s.clock))
}

func (s *CacheTestSuite) TestConcurrentUpdates() {
	// GOAL: Verify concurrent writers keep the newest sample
	//
	// TEST SCENARIO: 50 goroutines write increasing timestamps → final entry holds the maximum

	var wg sync.WaitGroup
	for i := 0; i < 50; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			s.cache.Update(s.reading(sensor.Temperature, float64(i), s.clock.Add(time.Duration(i)*time.Millisecond)))
		}(i)
	}
	wg.Wait()

	e, ok := s.cache.Get(sensor.Temperature)
	s.Require().True(ok)
	s.Equal("49.0", e.Value, "newest sample MUST win")
}

func TestCacheTestSuite(t *testing.T) {
	suite.Run(t, new(CacheTestSuite))
}
