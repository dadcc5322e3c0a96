package ringchan

import (
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestSendDropsOldest(t *testing.T) {
	rc := New[int](3)

	dropped := 0
	for i := 0; i < 10; i++ {
		accepted, d := rc.Send(i)
		require.True(t, accepted)
		if d {
			dropped++
		}
	}

	assert.Equal(t, 7, dropped, "MUST report one drop per overflowing send")
	assert.Equal(t, 3, rc.Len())
	assert.Equal(t, 3, rc.Cap())

	rc.Close()
	var got []int
	for v := range rc.C() {
		got = append(got, v)
	}
	assert.Equal(t, []int{7, 8, 9}, got, "only the newest values MUST survive")
}

func TestCloseIsIdempotentAndStopsProducers(t *testing.T) {
	rc := New[int](2)
	rc.Send(1)
	rc.Close()
	rc.Close()

	accepted, dropped := rc.Send(2)
	assert.False(t, accepted, "Send after Close MUST be rejected")
	assert.False(t, dropped)

	v, ok := <-rc.C()
	assert.True(t, ok, "buffered values MUST remain readable after Close")
	assert.Equal(t, 1, v)
	_, ok = <-rc.C()
	assert.False(t, ok)
}

func TestConcurrentProducersNeverBlock(t *testing.T) {
	rc := New[int](4)

	var wg sync.WaitGroup
	for p := 0; p < 8; p++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for i := 0; i < 100; i++ {
				rc.Send(i)
			}
		}()
	}
	wg.Wait()

	assert.Equal(t, 4, rc.Len())
}

func TestNewPanicsOnZeroCapacity(t *testing.T) {
	assert.Panics(t, func() { New[int](0) })
}
