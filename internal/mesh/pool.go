package mesh

import (
	"fmt"
	"io"
	"log"
	"runtime"
	"sync"
	"sync/atomic"
	"time"

	"github.com/dustin/go-humanize"

	"cubetonic.app/internal/world"
)

type Config struct {
	// Workers defaults to runtime.NumCPU().
	Workers int
	// Debug logs per-job latency and sizes.
	Debug  bool
	Logger *log.Logger
}

// SnapshotFunc builds the neighborhood for a job. It runs on the submitting
// goroutine, which must be the owner of the world store.
type SnapshotFunc func() (*world.Snapshot, bool)

// Result is the outcome of one job. Buffers is nil iff Triangles is zero.
type Result struct {
	Pos       world.BlockPos
	Triangles int
	Buffers   *Buffers
	// Stamp orders submissions; a larger stamp was submitted later.
	Stamp     uint64
	Submitted time.Time
}

func (r Result) Empty() bool { return r.Buffers == nil }

type job struct {
	pos       world.BlockPos
	snap      *world.Snapshot
	stamp     uint64
	submitted time.Time
}

type Stats struct {
	Submitted uint64
	FastEmpty uint64
	LateEmpty uint64
	Uploaded  uint64
	Failed    uint64
	Queued    int
}

// Pool runs mesh jobs on a fixed set of workers. Every accepted Submit yields
// exactly one Result on Results(), in completion order.
//
// Neither Submit nor the workers ever wait for the consumer: jobs and results
// sit in unbounded queues, and a single forwarder feeds the results channel.
type Pool struct {
	cfg    Config
	defs   NodeDefs
	tex    TextureLookup
	up     Uploader
	logger *log.Logger

	stamp atomic.Uint64

	mu      sync.Mutex
	jobCond *sync.Cond
	jobs    []job
	closed  bool

	outMu   sync.Mutex
	outCond *sync.Cond
	out     []Result
	outDone bool

	results chan Result
	abort   chan struct{}
	fwdDone chan struct{}
	wg      sync.WaitGroup
	once    sync.Once

	submitted atomic.Uint64
	fastEmpty atomic.Uint64
	lateEmpty atomic.Uint64
	uploaded  atomic.Uint64
	failed    atomic.Uint64
}

// NewPool starts the workers. defs and tex must not change afterwards; they
// are read concurrently by every worker.
func NewPool(cfg Config, defs NodeDefs, tex TextureLookup, up Uploader) (*Pool, error) {
	if defs == nil {
		return nil, fmt.Errorf("mesh pool: nil node definitions")
	}
	if up == nil {
		return nil, fmt.Errorf("mesh pool: nil uploader")
	}
	if cfg.Workers <= 0 {
		cfg.Workers = runtime.NumCPU()
	}
	logger := cfg.Logger
	if logger == nil {
		logger = log.New(io.Discard, "", 0)
	}
	p := &Pool{
		cfg:     cfg,
		defs:    defs,
		tex:     tex,
		up:      up,
		logger:  logger,
		results: make(chan Result, 256),
		abort:   make(chan struct{}),
		fwdDone: make(chan struct{}),
	}
	p.jobCond = sync.NewCond(&p.mu)
	p.outCond = sync.NewCond(&p.outMu)

	for i := 0; i < cfg.Workers; i++ {
		p.wg.Add(1)
		go func() {
			defer p.wg.Done()
			p.worker()
		}()
	}
	go p.forward()
	return p, nil
}

func (p *Pool) Workers() int { return p.cfg.Workers }

// Results delivers one Result per accepted job. It is closed after Close.
func (p *Pool) Results() <-chan Result { return p.results }

// Submit stamps a job for pos. A vacuum center short-circuits to an empty
// result without building a snapshot. It returns the stamp, or 0 once the
// pool is closed.
func (p *Pool) Submit(pos world.BlockPos, center *world.Block, snapshot SnapshotFunc) uint64 {
	p.mu.Lock()
	closed := p.closed
	p.mu.Unlock()
	if closed {
		return 0
	}

	stamp := p.stamp.Add(1)
	now := time.Now()
	p.submitted.Add(1)

	if center != nil && center.IsVacuum() {
		p.fastEmpty.Add(1)
		p.emit(Result{Pos: pos, Stamp: stamp, Submitted: now})
		return stamp
	}
	snap, ok := snapshot()
	if !ok {
		p.fastEmpty.Add(1)
		p.emit(Result{Pos: pos, Stamp: stamp, Submitted: now})
		return stamp
	}

	p.mu.Lock()
	if p.closed {
		p.mu.Unlock()
		return 0
	}
	p.jobs = append(p.jobs, job{pos: pos, snap: snap, stamp: stamp, submitted: now})
	p.mu.Unlock()
	p.jobCond.Signal()
	return stamp
}

func (p *Pool) Stats() Stats {
	p.mu.Lock()
	queued := len(p.jobs)
	p.mu.Unlock()
	return Stats{
		Submitted: p.submitted.Load(),
		FastEmpty: p.fastEmpty.Load(),
		LateEmpty: p.lateEmpty.Load(),
		Uploaded:  p.uploaded.Load(),
		Failed:    p.failed.Load(),
		Queued:    queued,
	}
}

// Close lets queued jobs finish, then closes Results. Results the consumer
// has not received by then, queued or already buffered in the channel, are
// dropped and their buffers released.
func (p *Pool) Close() {
	p.once.Do(func() {
		p.mu.Lock()
		p.closed = true
		p.mu.Unlock()
		p.jobCond.Broadcast()
		p.wg.Wait()

		p.outMu.Lock()
		p.outDone = true
		p.outMu.Unlock()
		p.outCond.Broadcast()
		close(p.abort)
		<-p.fwdDone

		// Whatever is still buffered in the channel was never received.
		n := 0
		for r := range p.results {
			p.release(r)
			n++
		}
		if n > 0 {
			p.logger.Printf("mesh pool closed with %d unreceived results", n)
		}
	})
}

func (p *Pool) next() (job, bool) {
	p.mu.Lock()
	defer p.mu.Unlock()
	for len(p.jobs) == 0 && !p.closed {
		p.jobCond.Wait()
	}
	if len(p.jobs) == 0 {
		return job{}, false
	}
	j := p.jobs[0]
	p.jobs[0] = job{}
	p.jobs = p.jobs[1:]
	return j, true
}

func (p *Pool) worker() {
	for {
		j, ok := p.next()
		if !ok {
			return
		}
		p.emit(p.run(j))
	}
}

func (p *Pool) run(j job) (res Result) {
	res = Result{Pos: j.pos, Stamp: j.stamp, Submitted: j.submitted}
	defer func() {
		if r := recover(); r != nil {
			p.failed.Add(1)
			p.logger.Printf("mesh %s: panic: %v", j.pos, r)
			res = Result{Pos: j.pos, Stamp: j.stamp, Submitted: j.submitted}
		}
	}()

	m := Generate(j.snap, p.defs, p.tex)
	if m.Empty() {
		p.lateEmpty.Add(1)
		return res
	}
	vb, ib := VertexBytes(m.Vertices), IndexBytes(m.Indices)
	bufs, err := p.up.Upload(vb, ib)
	if err != nil {
		p.failed.Add(1)
		p.logger.Printf("mesh %s: upload: %v", j.pos, err)
		return res
	}
	p.uploaded.Add(1)
	res.Triangles = m.Triangles()
	res.Buffers = &bufs
	if p.cfg.Debug {
		p.logger.Printf("mesh %s: %d tris %s in %s", j.pos, res.Triangles,
			humanize.Bytes(uint64(len(vb)+len(ib))), time.Since(j.submitted).Round(time.Microsecond))
	}
	return res
}

func (p *Pool) emit(r Result) {
	p.outMu.Lock()
	p.out = append(p.out, r)
	p.outMu.Unlock()
	p.outCond.Signal()
}

func (p *Pool) forward() {
	defer close(p.fwdDone)
	defer close(p.results)
	for {
		p.outMu.Lock()
		for len(p.out) == 0 && !p.outDone {
			p.outCond.Wait()
		}
		if len(p.out) == 0 {
			p.outMu.Unlock()
			return
		}
		r := p.out[0]
		p.out[0] = Result{}
		p.out = p.out[1:]
		p.outMu.Unlock()

		select {
		case p.results <- r:
		case <-p.abort:
			p.drop(r)
			return
		}
	}
}

// drop releases everything still queued after an aborted shutdown.
func (p *Pool) drop(first Result) {
	p.outMu.Lock()
	rest := p.out
	p.out = nil
	p.outMu.Unlock()
	n := 0
	for _, r := range append([]Result{first}, rest...) {
		p.release(r)
		n++
	}
	p.logger.Printf("mesh pool closed with %d undelivered results", n)
}

func (p *Pool) release(r Result) {
	if r.Buffers == nil {
		return
	}
	if rel, ok := p.up.(Releaser); ok {
		rel.Release(*r.Buffers)
	}
}
