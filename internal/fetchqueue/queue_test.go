package fetchqueue

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/alanyoungcy/marketledger/internal/domain"
)

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func startQueue(t *testing.T, cfg Config) *Queue {
	t.Helper()
	q := New(cfg, testLogger())
	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	go func() {
		_ = q.Run(ctx)
		close(done)
	}()
	t.Cleanup(func() {
		cancel()
		<-done
	})
	return q
}

func waitFor(t *testing.T, what string, cond func() bool) {
	t.Helper()
	deadline := time.Now().Add(2 * time.Second)
	for !cond() {
		if time.Now().After(deadline) {
			t.Fatalf("timed out waiting for %s", what)
		}
		time.Sleep(time.Millisecond)
	}
}

func TestSubmitDeduplicatesByKey(t *testing.T) {
	q := startQueue(t, Config{MaxConcurrency: 2, BaseDelay: time.Millisecond})

	var calls atomic.Int32
	release := make(chan struct{})
	started := make(chan struct{})
	task := func(ctx context.Context) (any, error) {
		if calls.Add(1) == 1 {
			close(started)
		}
		<-release
		return "products", nil
	}

	first := q.Submit("products:yandex", PriorityProducts, task)
	<-started
	second := q.Submit("products:yandex", PriorityProducts, task)
	waitFor(t, "second caller to attach", func() bool { return q.Stats().Submitted == 2 })
	close(release)

	r1, r2 := <-first, <-second
	if r1.Err != nil || r2.Err != nil {
		t.Fatalf("unexpected errors: %v, %v", r1.Err, r2.Err)
	}
	if r1.Value != "products" || r2.Value != "products" {
		t.Errorf("expected both callers to see the same value, got %v and %v", r1.Value, r2.Value)
	}
	if got := calls.Load(); got != 1 {
		t.Errorf("expected 1 provider call, got %d", got)
	}
	if got := q.Stats().Deduplicated; got != 1 {
		t.Errorf("expected 1 deduplicated submission, got %d", got)
	}
}

func TestSubmitRunsAgainAfterCompletion(t *testing.T) {
	q := startQueue(t, Config{MaxConcurrency: 1})

	var calls atomic.Int32
	task := func(ctx context.Context) (int32, error) { return calls.Add(1), nil }

	ctx := context.Background()
	if _, err := Do(ctx, q, "orders:uzum", PriorityOrders, task); err != nil {
		t.Fatal(err)
	}
	v, err := Do(ctx, q, "orders:uzum", PriorityOrders, task)
	if err != nil {
		t.Fatal(err)
	}
	if v != 2 {
		t.Errorf("expected second Do to execute again, got value %d", v)
	}
}

func TestPriorityOrderingAndFIFOTies(t *testing.T) {
	q := startQueue(t, Config{MaxConcurrency: 1})

	started := make(chan struct{})
	release := make(chan struct{})
	blocker := q.Submit("blocker", PriorityProducts, func(ctx context.Context) (any, error) {
		close(started)
		<-release
		return nil, nil
	})
	<-started

	var mu sync.Mutex
	var order []string
	record := func(name string) Task {
		return func(ctx context.Context) (any, error) {
			mu.Lock()
			order = append(order, name)
			mu.Unlock()
			return nil, nil
		}
	}

	results := []<-chan Result{
		q.Submit("tariffs", PriorityTariffs, record("tariffs")),
		q.Submit("products-a", PriorityProducts, record("products-a")),
		q.Submit("orders", PriorityOrders, record("orders")),
		q.Submit("products-b", PriorityProducts, record("products-b")),
	}
	waitFor(t, "all tasks to be queued", func() bool { return q.Pending() == 4 })
	close(release)

	<-blocker
	for _, ch := range results {
		<-ch
	}

	want := []string{"orders", "products-a", "products-b", "tariffs"}
	if fmt.Sprint(order) != fmt.Sprint(want) {
		t.Errorf("dispatch order = %v, want %v", order, want)
	}
}

func TestEqualPriorityKeepsSubmitOrder(t *testing.T) {
	q := startQueue(t, Config{MaxConcurrency: 1})

	started := make(chan struct{})
	release := make(chan struct{})
	blocker := q.Submit("blocker", PriorityProducts, func(ctx context.Context) (any, error) {
		close(started)
		<-release
		return nil, nil
	})
	<-started

	var mu sync.Mutex
	var order []string
	var want []string
	var results []<-chan Result
	for i := range 20 {
		name := fmt.Sprintf("products-%02d", i)
		want = append(want, name)
		results = append(results, q.Submit(name, PriorityProducts, func(ctx context.Context) (any, error) {
			mu.Lock()
			order = append(order, name)
			mu.Unlock()
			return nil, nil
		}))
	}
	waitFor(t, "all tasks to be queued", func() bool { return q.Pending() == 20 })
	close(release)

	<-blocker
	for _, ch := range results {
		<-ch
	}

	if fmt.Sprint(order) != fmt.Sprint(want) {
		t.Errorf("dispatch order = %v, want %v", order, want)
	}
}

func TestBoundedConcurrency(t *testing.T) {
	q := startQueue(t, Config{MaxConcurrency: 2})

	var active, peak atomic.Int32
	task := func(ctx context.Context) (any, error) {
		n := active.Add(1)
		for {
			p := peak.Load()
			if n <= p || peak.CompareAndSwap(p, n) {
				break
			}
		}
		time.Sleep(5 * time.Millisecond)
		active.Add(-1)
		return nil, nil
	}

	var chans []<-chan Result
	for i := 0; i < 8; i++ {
		chans = append(chans, q.Submit(fmt.Sprintf("k%d", i), PriorityProducts, task))
	}
	for _, ch := range chans {
		<-ch
	}

	if got := peak.Load(); got > 2 {
		t.Errorf("expected at most 2 tasks in flight, saw %d", got)
	}
}

func TestRetryRecoversFromTransientFailure(t *testing.T) {
	q := startQueue(t, Config{MaxConcurrency: 1, MaxRetries: 3, BaseDelay: time.Millisecond})

	var calls atomic.Int32
	v, err := Do(context.Background(), q, "flaky", PriorityOrders, func(ctx context.Context) (string, error) {
		if calls.Add(1) < 3 {
			return "", errors.New("connection reset")
		}
		return "ok", nil
	})
	if err != nil {
		t.Fatalf("expected success after retries, got %v", err)
	}
	if v != "ok" {
		t.Errorf("expected value ok, got %q", v)
	}
	if got := q.Stats().Attempts; got != 3 {
		t.Errorf("expected 3 attempts, got %d", got)
	}
}

func TestRetryExhaustionReachesEveryCaller(t *testing.T) {
	q := startQueue(t, Config{MaxConcurrency: 1, MaxRetries: 2, BaseDelay: time.Millisecond})

	started := make(chan struct{})
	var once sync.Once
	var calls atomic.Int32
	task := func(ctx context.Context) (any, error) {
		calls.Add(1)
		once.Do(func() { close(started) })
		time.Sleep(2 * time.Millisecond)
		return nil, errors.New("upstream 502")
	}

	a := q.Submit("orders:ozon", PriorityOrders, task)
	<-started
	b := q.Submit("orders:ozon", PriorityOrders, task)

	for _, ch := range []<-chan Result{a, b} {
		res := <-ch
		if !errors.Is(res.Err, domain.ErrFetchFailed) {
			t.Fatalf("expected ErrFetchFailed, got %v", res.Err)
		}
		var fe *domain.FetchError
		if !errors.As(res.Err, &fe) {
			t.Fatalf("expected *domain.FetchError, got %T", res.Err)
		}
		if fe.Attempts != 3 {
			t.Errorf("expected 3 attempts, got %d", fe.Attempts)
		}
	}
	if got := calls.Load(); got != 3 {
		t.Errorf("expected 3 provider calls in total, got %d", got)
	}
}

func TestUnsupportedIsNotRetried(t *testing.T) {
	q := startQueue(t, Config{MaxConcurrency: 1, MaxRetries: 5, BaseDelay: time.Millisecond})

	_, err := Do(context.Background(), q, "tariffs:ozon", PriorityTariffs, func(ctx context.Context) (any, error) {
		return nil, fmt.Errorf("gateway: tariffs: %w", domain.ErrUnsupported)
	})
	if !errors.Is(err, domain.ErrUnsupported) {
		t.Fatalf("expected ErrUnsupported to be preserved, got %v", err)
	}
	if got := q.Stats().Attempts; got != 1 {
		t.Errorf("expected a single attempt, got %d", got)
	}
}

func TestStoppedQueueFailsNewSubmissions(t *testing.T) {
	q := New(Config{MaxConcurrency: 1}, testLogger())
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	_ = q.Run(ctx)

	res := <-q.Submit("late", PriorityProducts, func(ctx context.Context) (any, error) { return nil, nil })
	if !errors.Is(res.Err, domain.ErrFetchFailed) {
		t.Errorf("expected ErrFetchFailed after stop, got %v", res.Err)
	}
}
