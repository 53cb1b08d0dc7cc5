package depcache_test

import (
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/forgekit/assetpipe/pkg/depcache"
	"github.com/stretchr/testify/assert"
)

func TestAllScheduledWritersRun(t *testing.T) {
	c := depcache.New()
	f := depcache.Fingerprint([]byte("source.png"))

	var order []int
	var mu sync.Mutex
	var wg sync.WaitGroup

	for i := 0; i < 5; i++ {
		i := i
		wg.Add(1)
		go func() {
			defer wg.Done()
			c.ScheduleWrite(f, func() {
				time.Sleep(time.Millisecond)
				mu.Lock()
				order = append(order, i)
				mu.Unlock()
			})
		}()
	}
	wg.Wait()

	mu.Lock()
	defer mu.Unlock()
	assert.Len(t, order, 5)
}

func TestWritesNeverOverlapOnSameFingerprint(t *testing.T) {
	c := depcache.New()
	f := depcache.Fingerprint([]byte("source.png"))

	var concurrent atomic.Int32
	var maxSeen atomic.Int32
	var wg sync.WaitGroup

	for i := 0; i < 8; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			c.ScheduleWrite(f, func() {
				n := concurrent.Add(1)
				for {
					max := maxSeen.Load()
					if n <= max || maxSeen.CompareAndSwap(max, n) {
						break
					}
				}
				time.Sleep(time.Millisecond)
				concurrent.Add(-1)
			})
		}()
	}
	wg.Wait()

	assert.Equal(t, int32(1), maxSeen.Load())
}

func TestReadsRunConcurrently(t *testing.T) {
	c := depcache.New()
	f := depcache.Fingerprint([]byte("a.png"))

	var concurrent atomic.Int32
	var maxSeen atomic.Int32
	var wg sync.WaitGroup

	for i := 0; i < 4; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			c.ScheduleRead(f, func() {
				n := concurrent.Add(1)
				for {
					max := maxSeen.Load()
					if n <= max || maxSeen.CompareAndSwap(max, n) {
						break
					}
				}
				time.Sleep(5 * time.Millisecond)
				concurrent.Add(-1)
			})
		}()
	}
	wg.Wait()

	assert.Greater(t, maxSeen.Load(), int32(1))
}

func TestWaitAllBlocksUntilDrained(t *testing.T) {
	c := depcache.New()
	f := depcache.Fingerprint([]byte("x"))

	var ran atomic.Bool
	var wg sync.WaitGroup
	wg.Add(1)
	go func() {
		defer wg.Done()
		c.ScheduleWrite(f, func() {
			time.Sleep(10 * time.Millisecond)
			ran.Store(true)
		})
	}()

	time.Sleep(time.Millisecond)
	c.WaitAll()
	assert.True(t, ran.Load())
	wg.Wait()
}

func TestTrimDropsEmptyEntries(t *testing.T) {
	c := depcache.New()
	f := depcache.Fingerprint([]byte("y"))
	c.ScheduleWrite(f, func() {})
	c.Trim()
	c.WaitWrite(f) // should return immediately, entry recreated empty
}
