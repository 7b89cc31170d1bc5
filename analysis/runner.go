package analysis

import (
	"sync"
	"sync/atomic"
	"time"

	"github.com/mastercactapus/gsend/logging"
)

// A Result is an analysis tagged with the generation it was submitted as.
type Result struct {
	Generation uint64
	Analysis   *Analysis
}

// Runner analyzes programs in the background. Only the most recently
// submitted program is current; results of older submissions are stale.
type Runner struct {
	gen     uint64
	results chan Result

	closeOnce sync.Once
	closeCh   chan struct{}
}

var log = logging.NewLogger("analysis")

// NewRunner creates a Runner.
func NewRunner() *Runner {
	return &Runner{
		results: make(chan Result, 1),
		closeCh: make(chan struct{}),
	}
}

// Results delivers finished analyses. Stale results may still arrive and
// must be checked with Accept.
func (r *Runner) Results() <-chan Result { return r.results }

// Current returns the live generation.
func (r *Runner) Current() uint64 { return atomic.LoadUint64(&r.gen) }

// Invalidate makes every outstanding analysis stale and returns the new
// generation.
func (r *Runner) Invalidate() uint64 { return atomic.AddUint64(&r.gen, 1) }

// Accept reports whether res belongs to the live generation.
func (r *Runner) Accept(res Result) bool { return res.Generation == r.Current() }

// Submit starts analyzing a program and returns its generation. Text and
// cfg are only read.
func (r *Runner) Submit(name, text string, cfg Config) uint64 {
	gen := r.Invalidate()
	go r.run(gen, name, text, cfg)
	return gen
}

func (r *Runner) run(gen uint64, name, text string, cfg Config) {
	start := time.Now()
	a := Analyze(text, cfg)
	a.Name = name
	a.Size = int64(len(text))

	l := log.WithField("generation", gen).WithField("name", name)
	if gen != r.Current() {
		l.Debug("discarding stale analysis")
		return
	}
	l.WithField("lines", a.TotalLines).
		WithField("invalid", len(a.InvalidLines)).
		WithField("elapsed", time.Since(start)).
		Debug("analysis complete")

	select {
	case r.results <- Result{Generation: gen, Analysis: a}:
	case <-r.closeCh:
	}
}

// Close releases goroutines waiting to deliver results.
func (r *Runner) Close() {
	r.closeOnce.Do(func() { close(r.closeCh) })
}
