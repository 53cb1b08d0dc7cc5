// Package depcache implements the dependency cache (C8): per-fingerprint
// write/read wait-groups that serialize writers, run readers concurrently,
// and guarantee a reader scheduled after a writer observes its completion.
//
// Grounded on the source engine's JobDependencyCache, which protects its
// wait-handle map with a single recursive mutex and pool-allocates its wait
// groups. Go's sync.WaitGroup forbids Add racing with an in-flight Wait, so
// each group here is reimplemented as a Gate: a counter plus condition
// variable that supports exactly the Add-while-waiting pattern the original
// job system relies on.
package depcache

import (
	"hash/fnv"
	"sync"
)

// Gate is a cooperative wait-group variant that tolerates new work being
// added (Add) concurrently with goroutines blocked in Wait.
type Gate struct {
	mu      sync.Mutex
	cond    *sync.Cond
	pending int
}

// NewGate returns an empty, idle Gate.
func NewGate() *Gate {
	g := &Gate{}
	g.cond = sync.NewCond(&g.mu)
	return g
}

// Add registers one more pending job on the gate.
func (g *Gate) Add() {
	g.mu.Lock()
	g.pending++
	g.mu.Unlock()
}

// Done marks one pending job complete, waking any waiters once the gate
// empties.
func (g *Gate) Done() {
	g.mu.Lock()
	g.pending--
	if g.pending <= 0 {
		g.pending = 0
		g.cond.Broadcast()
	}
	g.mu.Unlock()
}

// Wait blocks until the gate has no pending jobs, including ones added
// after Wait was called.
func (g *Gate) Wait() {
	g.mu.Lock()
	for g.pending > 0 {
		g.cond.Wait()
	}
	g.mu.Unlock()
}

// Empty reports whether the gate currently has no pending jobs.
func (g *Gate) Empty() bool {
	g.mu.Lock()
	defer g.mu.Unlock()
	return g.pending == 0
}

type waitHandle struct {
	writeGate *Gate
	readGate  *Gate

	// writeAdmit serializes the "wait until both gates are empty, then
	// register" sequence in ScheduleWrite. Without it, two concurrent
	// writers on the same fingerprint can both observe empty gates before
	// either calls writeGate.Add, and both end up running job() at once.
	writeAdmit sync.Mutex
}

// Cache is the dependency cache: a map from 32-bit fingerprint to a
// write/read Gate pair, guarded by a single mutex (the recursive-mutex
// equivalent, since Go goroutines never need to reacquire a lock they
// already hold the way the original's RecursiveMutex allows).
type Cache struct {
	mu      sync.Mutex
	handles map[uint32]*waitHandle
	allJobs *Gate
}

// New creates an empty dependency cache.
func New() *Cache {
	return &Cache{
		handles: make(map[uint32]*waitHandle),
		allJobs: NewGate(),
	}
}

// Fingerprint hashes a stable key (source URI, GUID bytes, ...) to the
// 32-bit fingerprint used to key the cache.
func Fingerprint(key []byte) uint32 {
	h := fnv.New32a()
	_, _ = h.Write(key)
	return h.Sum32()
}

func (c *Cache) handle(f uint32) *waitHandle {
	c.mu.Lock()
	defer c.mu.Unlock()
	h, ok := c.handles[f]
	if !ok {
		h = &waitHandle{writeGate: NewGate(), readGate: NewGate()}
		c.handles[f] = h
	}
	return h
}

// ScheduleWrite runs job once it's safe to do so: after every previously
// scheduled writer and reader on fingerprint f has completed, and after no
// new reader can start until job finishes. Blocks the calling goroutine
// until those earlier jobs are done, then runs job synchronously on the
// caller (callers typically invoke ScheduleWrite from inside a jobpool
// worker so this doesn't block a dedicated waiting thread).
func (c *Cache) ScheduleWrite(f uint32, job func()) {
	h := c.handle(f)

	// The wait-then-add admission must be atomic per fingerprint: holding
	// writeAdmit across it is what gives writers on the same fingerprint a
	// total order, matching spec.md's "at most one in-flight compile per
	// source" guarantee.
	h.writeAdmit.Lock()
	h.writeGate.Wait()
	h.readGate.Wait()
	h.writeGate.Add()
	h.writeAdmit.Unlock()

	c.allJobs.Add()
	defer func() {
		h.writeGate.Done()
		c.allJobs.Done()
	}()

	job()
}

// ScheduleRead runs job once every writer scheduled before it on
// fingerprint f has completed. Multiple reads may run concurrently.
func (c *Cache) ScheduleRead(f uint32, job func()) {
	h := c.handle(f)

	h.writeGate.Wait()

	h.readGate.Add()
	c.allJobs.Add()
	defer func() {
		h.readGate.Done()
		c.allJobs.Done()
	}()

	job()
}

// WaitWrite blocks until all in-flight and queued writers on f finish.
func (c *Cache) WaitWrite(f uint32) { c.handle(f).writeGate.Wait() }

// WaitRead blocks until all in-flight readers on f finish.
func (c *Cache) WaitRead(f uint32) { c.handle(f).readGate.Wait() }

// WaitAll blocks until every job scheduled on the cache, across every
// fingerprint, has completed.
func (c *Cache) WaitAll() { c.allJobs.Wait() }

// Trim drops cache entries whose write and read gates are both empty,
// bounding memory growth across the cache's lifetime.
func (c *Cache) Trim() {
	c.mu.Lock()
	defer c.mu.Unlock()
	for f, h := range c.handles {
		if h.writeGate.Empty() && h.readGate.Empty() {
			delete(c.handles, f)
		}
	}
}
