package lock

import (
	"sync"
	"sync/atomic"
	"time"
)

// DeadlockDetector maintains a wait-for graph of "waiter waits on resource
// held by X" edges and periodically scans it for cycles. Cycle-resolution
// policy (abort-youngest, abort-lowest-token, ...) is the host's choice;
// the detector only reports the cycle via OnDeadlock, mirroring the
// callback-on-state-change shape circuitbreaker.Config uses for its own
// state transitions.
type DeadlockDetector[K comparable] struct {
	mu    sync.Mutex
	edges map[K]map[K]struct{}

	checkInterval time.Duration
	onDeadlock    func(cycle []K)

	running atomic.Bool
	done    chan struct{}
}

// NewDeadlockDetector constructs a detector. onDeadlock may be nil, in
// which case detected cycles are simply dropped (callers relying on
// DetectDeadlock directly don't need the callback).
func NewDeadlockDetector[K comparable](checkInterval time.Duration, onDeadlock func(cycle []K)) *DeadlockDetector[K] {
	return &DeadlockDetector[K]{
		edges:         make(map[K]map[K]struct{}),
		checkInterval: checkInterval,
		onDeadlock:    onDeadlock,
	}
}

// AddWait records that waiter is waiting on waitingFor.
func (d *DeadlockDetector[K]) AddWait(waiter, waitingFor K) {
	d.mu.Lock()
	defer d.mu.Unlock()
	set, ok := d.edges[waiter]
	if !ok {
		set = make(map[K]struct{})
		d.edges[waiter] = set
	}
	set[waitingFor] = struct{}{}
}

// RemoveWait clears every edge originating from waiter.
func (d *DeadlockDetector[K]) RemoveWait(waiter K) {
	d.mu.Lock()
	defer d.mu.Unlock()
	delete(d.edges, waiter)
}

// DetectDeadlock runs a DFS over the wait-for graph and returns the first
// cycle found. Determinism is not promised when multiple cycles coexist.
func (d *DeadlockDetector[K]) DetectDeadlock() ([]K, bool) {
	d.mu.Lock()
	graph := make(map[K]map[K]struct{}, len(d.edges))
	for k, v := range d.edges {
		inner := make(map[K]struct{}, len(v))
		for n := range v {
			inner[n] = struct{}{}
		}
		graph[k] = inner
	}
	d.mu.Unlock()

	visited := make(map[K]bool)
	onStack := make(map[K]bool)
	var stack []K

	var dfs func(node K) ([]K, bool)
	dfs = func(node K) ([]K, bool) {
		visited[node] = true
		onStack[node] = true
		stack = append(stack, node)

		for next := range graph[node] {
			if onStack[next] {
				// Found the cycle: the suffix of stack from next's first
				// occurrence to the end.
				for i, n := range stack {
					if n == next {
						cycle := append([]K(nil), stack[i:]...)
						return cycle, true
					}
				}
			}
			if !visited[next] {
				if cycle, found := dfs(next); found {
					return cycle, true
				}
			}
		}

		onStack[node] = false
		stack = stack[:len(stack)-1]
		return nil, false
	}

	for node := range graph {
		if !visited[node] {
			if cycle, found := dfs(node); found {
				return cycle, true
			}
		}
	}
	return nil, false
}

// Start begins the periodic background scan. It is idempotent: calling
// Start while already running is a no-op.
func (d *DeadlockDetector[K]) Start() {
	if !d.running.CompareAndSwap(false, true) {
		return
	}
	d.done = make(chan struct{})

	ticker := time.NewTicker(d.checkInterval)
	go func() {
		defer ticker.Stop()
		for {
			select {
			case <-d.done:
				return
			case <-ticker.C:
				if !d.running.Load() {
					return
				}
				if cycle, found := d.DetectDeadlock(); found && d.onDeadlock != nil {
					d.onDeadlock(cycle)
				}
			}
		}
	}()
}

// Stop flips the running flag and closes done, so the background goroutine
// exits without waiting for its next tick. Stop does not wait for a scan
// already in progress to finish.
func (d *DeadlockDetector[K]) Stop() {
	if d.running.CompareAndSwap(true, false) {
		close(d.done)
	}
}
