// Package fetchqueue schedules outbound calls to marketplace data providers.
// Calls are de-duplicated by key, dispatched highest priority first, capped at
// a small number in flight and retried with exponential backoff.
package fetchqueue

import (
	"container/heap"
	"context"
	"errors"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"

	"github.com/sethvargo/go-retry"
	"golang.org/x/sync/singleflight"
	"golang.org/x/time/rate"

	"github.com/alanyoungcy/marketledger/internal/domain"
)

// Dispatch priorities. Orders drive time-sensitive views so they go first.
const (
	PriorityTariffs  = 10
	PriorityProducts = 50
	PriorityOrders   = 100
)

// Task is one outbound call.
type Task func(ctx context.Context) (any, error)

// Result is delivered to every caller attached to a key.
type Result struct {
	Value  any
	Err    error
	Shared bool
}

// Config tunes the queue.
type Config struct {
	MaxConcurrency int
	MaxRetries     int
	BaseDelay      time.Duration
	MaxDelay       time.Duration
	// RatePerSecond limits task attempts across the queue. Zero disables it.
	RatePerSecond float64
	RateBurst     int
}

// DefaultConfig returns the settings used when nothing is configured.
func DefaultConfig() Config {
	return Config{
		MaxConcurrency: 3,
		MaxRetries:     3,
		BaseDelay:      500 * time.Millisecond,
		MaxDelay:       10 * time.Second,
	}
}

// Stats are cumulative counters, mainly for tests and logging.
type Stats struct {
	Submitted    int64
	Deduplicated int64
	Executed     int64
	Attempts     int64
	Failed       int64
}

// Queue is safe for concurrent use. Tasks only start running once Run has been
// called.
type Queue struct {
	cfg     Config
	group   singleflight.Group
	limiter *rate.Limiter
	logger  *slog.Logger

	mu      sync.Mutex
	waiting taskHeap
	stopped error
	wake    chan struct{}
	slots   chan struct{}

	// seq numbers submissions so equal priorities dispatch in Submit order.
	seq atomic.Uint64

	submitted    atomic.Int64
	deduplicated atomic.Int64
	executed     atomic.Int64
	attempts     atomic.Int64
	failed       atomic.Int64
}

// New creates a Queue. Zero fields in cfg fall back to DefaultConfig.
func New(cfg Config, logger *slog.Logger) *Queue {
	def := DefaultConfig()
	if cfg.MaxConcurrency <= 0 {
		cfg.MaxConcurrency = def.MaxConcurrency
	}
	if cfg.MaxRetries < 0 {
		cfg.MaxRetries = 0
	}
	if cfg.BaseDelay <= 0 {
		cfg.BaseDelay = def.BaseDelay
	}
	if cfg.MaxDelay <= 0 {
		cfg.MaxDelay = def.MaxDelay
	}

	q := &Queue{
		cfg:    cfg,
		logger: logger.With(slog.String("component", "fetch_queue")),
		wake:   make(chan struct{}, 1),
		slots:  make(chan struct{}, cfg.MaxConcurrency),
	}
	if cfg.RatePerSecond > 0 {
		burst := cfg.RateBurst
		if burst <= 0 {
			burst = 1
		}
		q.limiter = rate.NewLimiter(rate.Limit(cfg.RatePerSecond), burst)
	}
	return q
}

// Submit schedules task under key. If a task with the same key is waiting or
// running, the caller is attached to it instead and no second call is made.
// The returned channel receives exactly one Result.
func (q *Queue) Submit(key string, priority int, task Task) <-chan Result {
	q.submitted.Add(1)
	seq := q.seq.Add(1)

	out := make(chan Result, 1)
	owner := false
	ch := q.group.DoChan(key, func() (any, error) {
		owner = true
		return q.enqueueAndWait(key, priority, seq, task)
	})

	go func() {
		res := <-ch
		if res.Shared && !owner {
			q.deduplicated.Add(1)
		}
		out <- Result{Value: res.Val, Err: res.Err, Shared: res.Shared}
	}()
	return out
}

// Do submits task and waits for its result or for ctx to end. Leaving early
// does not cancel the task; other attached callers still get the result.
func Do[T any](ctx context.Context, q *Queue, key string, priority int, task func(ctx context.Context) (T, error)) (T, error) {
	var zero T
	ch := q.Submit(key, priority, func(ctx context.Context) (any, error) {
		return task(ctx)
	})
	select {
	case <-ctx.Done():
		return zero, ctx.Err()
	case res := <-ch:
		if res.Err != nil {
			return zero, res.Err
		}
		v, _ := res.Value.(T)
		return v, nil
	}
}

// Stats returns a snapshot of the queue counters.
func (q *Queue) Stats() Stats {
	return Stats{
		Submitted:    q.submitted.Load(),
		Deduplicated: q.deduplicated.Load(),
		Executed:     q.executed.Load(),
		Attempts:     q.attempts.Load(),
		Failed:       q.failed.Load(),
	}
}

// Pending returns the number of tasks waiting for a slot.
func (q *Queue) Pending() int {
	q.mu.Lock()
	defer q.mu.Unlock()
	return q.waiting.Len()
}

// Run dispatches waiting tasks until ctx is cancelled. Tasks still waiting at
// that point fail with the context error.
func (q *Queue) Run(ctx context.Context) error {
	q.logger.InfoContext(ctx, "fetch queue started",
		slog.Int("max_concurrency", q.cfg.MaxConcurrency),
		slog.Int("max_retries", q.cfg.MaxRetries),
	)

	var running sync.WaitGroup
	defer running.Wait()

	for {
		// Take a slot first so the choice of task is made as late as possible.
		select {
		case <-ctx.Done():
			q.drain(ctx.Err())
			return ctx.Err()
		case q.slots <- struct{}{}:
		}

		it, err := q.next(ctx)
		if err != nil {
			<-q.slots
			q.drain(err)
			return err
		}

		running.Add(1)
		go func() {
			defer running.Done()
			defer func() { <-q.slots }()
			q.execute(ctx, it)
		}()
	}
}

func (q *Queue) enqueueAndWait(key string, priority int, seq uint64, task Task) (any, error) {
	it := &item{
		key:      key,
		priority: priority,
		seq:      seq,
		task:     task,
		done:     make(chan struct{}),
	}

	q.mu.Lock()
	if q.stopped != nil {
		q.mu.Unlock()
		return nil, &domain.FetchError{Key: key, Err: q.stopped}
	}
	heap.Push(&q.waiting, it)
	q.mu.Unlock()

	select {
	case q.wake <- struct{}{}:
	default:
	}

	<-it.done
	return it.val, it.err
}

// next blocks until a task is waiting and pops the highest-priority one.
func (q *Queue) next(ctx context.Context) (*item, error) {
	for {
		q.mu.Lock()
		if q.waiting.Len() > 0 {
			it := heap.Pop(&q.waiting).(*item)
			q.mu.Unlock()
			return it, nil
		}
		q.mu.Unlock()

		select {
		case <-ctx.Done():
			return nil, ctx.Err()
		case <-q.wake:
		}
	}
}

func (q *Queue) drain(err error) {
	q.mu.Lock()
	defer q.mu.Unlock()
	q.stopped = err
	for q.waiting.Len() > 0 {
		it := heap.Pop(&q.waiting).(*item)
		it.err = &domain.FetchError{Key: it.key, Err: err}
		close(it.done)
	}
}

func (q *Queue) execute(ctx context.Context, it *item) {
	defer close(it.done)
	q.executed.Add(1)

	backoff := retry.WithCappedDuration(q.cfg.MaxDelay, retry.NewExponential(q.cfg.BaseDelay))
	backoff = retry.WithMaxRetries(uint64(q.cfg.MaxRetries), backoff)

	attempts := 0
	err := retry.Do(ctx, backoff, func(ctx context.Context) error {
		if q.limiter != nil {
			if err := q.limiter.Wait(ctx); err != nil {
				return err
			}
		}
		attempts++
		q.attempts.Add(1)

		val, err := it.task(ctx)
		if err == nil {
			it.val = val
			return nil
		}
		if !transient(err) {
			return err
		}
		q.logger.DebugContext(ctx, "fetch attempt failed",
			slog.String("key", it.key),
			slog.Int("attempt", attempts),
			slog.String("error", err.Error()),
		)
		return retry.RetryableError(err)
	})
	if err != nil {
		q.failed.Add(1)
		q.logger.WarnContext(ctx, "fetch failed",
			slog.String("key", it.key),
			slog.Int("attempts", attempts),
			slog.String("error", err.Error()),
		)
		it.err = &domain.FetchError{Key: it.key, Attempts: attempts, Err: err}
	}
}

// transient reports whether err is worth another attempt.
func transient(err error) bool {
	switch {
	case errors.Is(err, context.Canceled), errors.Is(err, context.DeadlineExceeded):
		return false
	case errors.Is(err, domain.ErrUnsupported), errors.Is(err, domain.ErrUnauthorized):
		return false
	}
	return true
}

type item struct {
	key      string
	priority int
	seq      uint64
	task     Task
	val      any
	err      error
	done     chan struct{}
}

// taskHeap orders by priority descending, then submission order.
type taskHeap []*item

func (h taskHeap) Len() int { return len(h) }

func (h taskHeap) Less(i, j int) bool {
	if h[i].priority != h[j].priority {
		return h[i].priority > h[j].priority
	}
	return h[i].seq < h[j].seq
}

func (h taskHeap) Swap(i, j int) { h[i], h[j] = h[j], h[i] }

func (h *taskHeap) Push(x any) { *h = append(*h, x.(*item)) }

func (h *taskHeap) Pop() any {
	old := *h
	n := len(old)
	it := old[n-1]
	old[n-1] = nil
	*h = old[:n-1]
	return it
}
