package mesh

import (
	"io"
	"log"
	"sync"
	"sync/atomic"

	"cubetonic.app/internal/world"
)

// Table is the renderable mesh set, one entry per block. Reads are safe from
// any goroutine; writes go through a Reconciler.
type Table struct {
	mu        sync.RWMutex
	entries   map[world.BlockPos]Result
	triangles int
}

func newTable() *Table {
	return &Table{entries: map[world.BlockPos]Result{}}
}

func (t *Table) Get(pos world.BlockPos) (Result, bool) {
	t.mu.RLock()
	defer t.mu.RUnlock()
	r, ok := t.entries[pos]
	return r, ok
}

func (t *Table) Len() int {
	t.mu.RLock()
	defer t.mu.RUnlock()
	return len(t.entries)
}

// Triangles is the sum over all entries.
func (t *Table) Triangles() int {
	t.mu.RLock()
	defer t.mu.RUnlock()
	return t.triangles
}

// Range calls fn for every entry until fn returns false. fn must not call
// back into the table.
func (t *Table) Range(fn func(world.BlockPos, Result) bool) {
	t.mu.RLock()
	defer t.mu.RUnlock()
	for pos, r := range t.entries {
		if !fn(pos, r) {
			return
		}
	}
}

// Reconciler applies results in any arrival order. For each block the table
// keeps the result with the greatest stamp seen so far.
type Reconciler struct {
	table  *Table
	rel    Releaser
	logger *log.Logger
	debug  bool

	accepted atomic.Uint64
	stale    atomic.Uint64
}

// NewReconciler returns a reconciler over a fresh table. rel may be nil.
func NewReconciler(rel Releaser, logger *log.Logger, debug bool) *Reconciler {
	if logger == nil {
		logger = log.New(io.Discard, "", 0)
	}
	return &Reconciler{table: newTable(), rel: rel, logger: logger, debug: debug}
}

func (r *Reconciler) Table() *Table { return r.table }

// Accept stores res unless the table already holds a result for the same
// block with an equal or greater stamp. It reports whether res was stored.
func (r *Reconciler) Accept(res Result) bool {
	t := r.table
	t.mu.Lock()
	old, ok := t.entries[res.Pos]
	if ok && res.Stamp <= old.Stamp {
		t.mu.Unlock()
		r.stale.Add(1)
		r.release(res)
		if r.debug {
			r.logger.Printf("mesh %s: stale result %d <= %d dropped", res.Pos, res.Stamp, old.Stamp)
		}
		return false
	}
	t.entries[res.Pos] = res
	t.triangles += res.Triangles
	if ok {
		t.triangles -= old.Triangles
	}
	t.mu.Unlock()

	r.accepted.Add(1)
	if ok {
		r.release(old)
	}
	return true
}

// Counts returns how many results were stored and how many were stale. It
// may be called from any goroutine.
func (r *Reconciler) Counts() (accepted, stale uint64) {
	return r.accepted.Load(), r.stale.Load()
}

func (r *Reconciler) release(res Result) {
	if r.rel != nil && res.Buffers != nil {
		r.rel.Release(*res.Buffers)
	}
}

// Mailbox hands results from the connection goroutine to the consumer.
// Push and Drain never block.
type Mailbox struct {
	mu      sync.Mutex
	pending []Result
}

func (m *Mailbox) Push(r Result) {
	m.mu.Lock()
	m.pending = append(m.pending, r)
	m.mu.Unlock()
}

// Drain appends every pending result to dst in push order and returns it.
func (m *Mailbox) Drain(dst []Result) []Result {
	m.mu.Lock()
	defer m.mu.Unlock()
	dst = append(dst, m.pending...)
	clear(m.pending)
	m.pending = m.pending[:0]
	return dst
}

func (m *Mailbox) Len() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.pending)
}
