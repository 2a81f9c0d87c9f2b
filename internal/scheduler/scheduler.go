// Package scheduler fans independent patient simulations out over a
// bounded worker pool and streams results back as they complete.
//
// Each unit of work is one patient's entire lifetime: CPU-bound, owning
// all of its mutable state, never waiting on a sibling. Failures are
// patient-scoped and travel the same stream as successes; cancellation
// is cooperative and abandons in-flight patients at their next tick
// boundary. Results carry the patient index, so downstream naming stays
// index-stable even though completion order is not.
package scheduler

import (
	"context"
	"errors"
	"log/slog"
	"runtime"
	"sync"
	"sync/atomic"
	"time"

	"github.com/cohortgen/cohortgen/internal/engine"
	"github.com/cohortgen/cohortgen/internal/person"
	"github.com/cohortgen/cohortgen/internal/record"
)

// Result is one patient's outcome: a completed record or a failure.
type Result struct {
	Index  int
	Person *person.Person
	Record *record.Record

	// Err is nil on success. engine.AsSimError yields the structured
	// failure descriptor (kind, module, state, simulated time, index).
	Err error
}

// Failed reports whether the patient's simulation failed.
func (r Result) Failed() bool {
	return r.Err != nil
}

// Options configures a Pool.
type Options struct {
	// Workers is the concurrency ceiling; non-positive means GOMAXPROCS.
	Workers int

	// Metrics receives scheduler counters; nil disables instrumentation.
	Metrics *Metrics

	// Log receives progress lines; nil means slog.Default.
	Log *slog.Logger
}

// Pool runs patient simulations for one generator.
type Pool struct {
	gen     *engine.Generator
	workers int
	metrics *Metrics
	log     *slog.Logger

	started   time.Time
	elapsed   atomic.Int64
	completed atomic.Int64
	failed    atomic.Int64
	abandoned atomic.Int64
}

// New builds a pool over a configured generator.
func New(gen *engine.Generator, opts Options) *Pool {
	workers := opts.Workers
	if workers <= 0 {
		workers = runtime.GOMAXPROCS(0)
	}
	log := opts.Log
	if log == nil {
		log = slog.Default()
	}
	return &Pool{
		gen:     gen,
		workers: workers,
		metrics: opts.Metrics,
		log:     log,
	}
}

// Workers reports the concurrency ceiling.
func (p *Pool) Workers() int {
	return p.workers
}

// Run simulates patients 0..population-1 and streams their results.
// The channel is unbuffered so peak memory is bounded by the number of
// workers, not the population; it closes once every patient has either
// finished or been abandoned. A non-positive population is a run-fatal
// misconfiguration.
func (p *Pool) Run(ctx context.Context, population int) (<-chan Result, error) {
	if population <= 0 {
		return nil, &engine.ConfigError{Field: "population", Message: "population must be positive"}
	}

	p.started = time.Now()
	indices := make(chan int)
	results := make(chan Result)

	go func() {
		defer close(indices)
		for i := 0; i < population; i++ {
			select {
			case indices <- i:
			case <-ctx.Done():
				return
			}
		}
	}()

	var wg sync.WaitGroup
	for w := 0; w < p.workers; w++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			p.work(ctx, indices, results, population)
		}()
	}

	go func() {
		wg.Wait()
		p.elapsed.Store(int64(time.Since(p.started)))
		close(results)
	}()

	return results, nil
}

// work drains the index feed until it closes or the context ends.
func (p *Pool) work(ctx context.Context, indices <-chan int, results chan<- Result, population int) {
	for index := range indices {
		start := time.Now()
		patient, rec, err := p.gen.Patient(ctx, index)

		if err != nil && (errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded)) {
			p.abandoned.Add(1)
			p.log.Debug("patient abandoned at tick boundary", "index", index)
			continue
		}

		res := Result{Index: index, Person: patient, Record: rec, Err: err}
		if err != nil {
			p.failed.Add(1)
			p.observeFailure(err)
			p.log.Warn("patient simulation failed", "index", index, "error", err)
		} else {
			p.completed.Add(1)
			p.observeSuccess(rec, time.Since(start))
		}
		p.logProgress(population)

		select {
		case results <- res:
		case <-ctx.Done():
			// The consumer is gone; the result is already counted.
			return
		}
	}
}

func (p *Pool) observeSuccess(rec *record.Record, took time.Duration) {
	if p.metrics == nil {
		return
	}
	p.metrics.PatientsCompleted.Inc()
	p.metrics.EventsEmitted.Add(float64(rec.Len()))
	p.metrics.SimulationSeconds.Observe(took.Seconds())
}

func (p *Pool) observeFailure(err error) {
	if p.metrics == nil {
		return
	}
	kind := "unknown"
	if se, ok := engine.AsSimError(err); ok {
		kind = string(se.Kind)
	}
	p.metrics.PatientsFailed.WithLabelValues(kind).Inc()
}

// logProgress emits a line roughly every tenth of the population.
func (p *Pool) logProgress(population int) {
	done := p.completed.Load() + p.failed.Load()
	decile := int64(population / 10)
	if decile == 0 {
		return
	}
	if done%decile == 0 {
		p.log.Info("generation progress",
			"done", done,
			"population", population,
			"failed", p.failed.Load())
	}
}

// Summary reports run accounting. It is stable once the result channel
// has closed.
type Summary struct {
	Completed int64
	Failed    int64
	Abandoned int64
	Elapsed   time.Duration
}

// Summary returns the pool's accounting so far.
func (p *Pool) Summary() Summary {
	return Summary{
		Completed: p.completed.Load(),
		Failed:    p.failed.Load(),
		Abandoned: p.abandoned.Load(),
		Elapsed:   time.Duration(p.elapsed.Load()),
	}
}
