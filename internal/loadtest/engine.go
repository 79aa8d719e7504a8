// Package loadtest runs bounded-concurrency, rate-paced HTTP load tests
// against a container and streams progress snapshots while they run
// (SPEC_FULL.md §4.2).
package loadtest

import (
	"context"
	"fmt"
	"math"
	"net/http"
	"sync"
	"time"

	"github.com/google/uuid"
	"golang.org/x/time/rate"

	"classroomd/internal/apperr"
	"classroomd/internal/enum"
	"classroomd/internal/logger"
	"classroomd/internal/store"

	"go.uber.org/zap"
)

const (
	requestTimeout  = 5 * time.Second
	drainTimeout    = 2 * time.Second
	snapshotCadence = 2 * time.Second
)

// MetricSampler reports instantaneous cpu%/mem% for a running container,
// shared with the autoscaler's sampling contract.
type MetricSampler interface {
	Sample(ctx context.Context, engineHandle string) (cpuPct, memPct float64, err error)
}

// Engine launches and tracks load-test Tasks.
type Engine struct {
	store   store.Store
	sampler MetricSampler

	mu    sync.Mutex
	tasks map[uuid.UUID]*Task
}

func New(st store.Store, sampler MetricSampler) *Engine {
	return &Engine{store: st, sampler: sampler, tasks: make(map[uuid.UUID]*Task)}
}

// Start validates the target container is running, creates the LoadTest
// record, and launches its dispatcher+sampler goroutines.
func (e *Engine) Start(ctx context.Context, owner string, containerID uuid.UUID, targetURL string, totalRequests, concurrency, durationSeconds int) (*store.LoadTest, error) {
	container, err := e.store.GetContainer(ctx, containerID)
	if err != nil {
		return nil, err
	}
	if container.Status != enum.ContainerRunning {
		return nil, apperr.InvalidInput("Engine.Start", "container is not running")
	}

	if targetURL == "" {
		port := 80
		if container.Port != nil {
			port = *container.Port
		}
		targetURL = fmt.Sprintf("http://localhost:%d/", port)
	}

	lt := &store.LoadTest{
		ID:              uuid.New(),
		Owner:           owner,
		ContainerID:     containerID,
		TargetURL:       targetURL,
		TotalRequests:   totalRequests,
		Concurrency:     concurrency,
		DurationSeconds: durationSeconds,
		Status:          enum.LoadTestPending,
		CreatedAt:       time.Now(),
	}
	if err := e.store.CreateLoadTest(ctx, lt); err != nil {
		return nil, err
	}

	taskCtx, cancel := context.WithCancel(context.Background())
	task := &Task{
		id:         lt.ID,
		owner:      owner,
		container:  container,
		targetURL:  targetURL,
		total:      totalRequests,
		concurrent: concurrency,
		duration:   time.Duration(durationSeconds) * time.Second,
		store:      e.store,
		sampler:    e.sampler,
		cancel:     cancel,
		done:       make(chan struct{}),
		snapshots:  make(chan Snapshot, 16),
	}

	e.mu.Lock()
	e.tasks[lt.ID] = task
	e.mu.Unlock()

	go func() {
		task.run(taskCtx)
		e.mu.Lock()
		delete(e.tasks, lt.ID)
		e.mu.Unlock()
	}()

	return lt, nil
}

// Cancel signals the running test to stop early; it is a no-op if the
// test is not currently running (already finished, or never started in
// this process).
func (e *Engine) Cancel(testID uuid.UUID) {
	e.mu.Lock()
	task, ok := e.tasks[testID]
	e.mu.Unlock()
	if ok {
		task.cancel()
	}
}

// Snapshots returns the channel of live progress snapshots for testID, or
// nil if the test is not currently running in this process — callers
// (the SSE handler) use this to stream progress.
func (e *Engine) Snapshots(testID uuid.UUID) <-chan Snapshot {
	e.mu.Lock()
	defer e.mu.Unlock()
	task, ok := e.tasks[testID]
	if !ok {
		return nil
	}
	return task.snapshots
}

// Task is one in-flight load test run.
type Task struct {
	id         uuid.UUID
	owner      string
	container  *store.Container
	targetURL  string
	total      int
	concurrent int
	duration   time.Duration

	store   store.Store
	sampler MetricSampler

	cancel    context.CancelFunc
	done      chan struct{}
	snapshots chan Snapshot

	mu         sync.Mutex
	sent       int
	completed  int
	failed     int
	active     int
	latencies  []float64
	peakCPU    float64
	peakMemory float64
}

// Snapshot is one progress sample, also the SSE wire payload.
type Snapshot struct {
	TestID         uuid.UUID `json:"test_id"`
	Timestamp      time.Time `json:"timestamp"`
	CPUPercent     float64   `json:"cpu_percent"`
	MemoryMB       float64   `json:"memory_mb"`
	Completed      int       `json:"completed"`
	Failed         int       `json:"failed"`
	ActiveRequests int       `json:"active_requests"`
}

func (t *Task) run(ctx context.Context) {
	defer close(t.done)
	defer close(t.snapshots)

	lctx := logger.WithComponent(ctx, "loadtest")
	log := logger.GetLogger(lctx)

	now := time.Now()
	t.updateStatus(ctx, enum.LoadTestRunning, &now, nil, "")

	var wg sync.WaitGroup
	sampleDone := make(chan struct{})
	wg.Add(1)
	go func() {
		defer wg.Done()
		t.sampleLoop(ctx, sampleDone)
	}()

	status := t.dispatchLoop(ctx, log)

	close(sampleDone)
	wg.Wait()

	t.drain()
	t.finalize(ctx, status)
}

// dispatchLoop implements the token-interval model from SPEC_FULL.md
// §4.2: wake every Δ = D/N, fire one request if elapsed < D and
// sent < N, respecting the concurrency semaphore without batching missed
// ticks.
func (t *Task) dispatchLoop(ctx context.Context, log *zap.Logger) enum.LoadTestStatus {
	if t.total <= 0 || t.duration <= 0 {
		return enum.LoadTestCompleted
	}
	interval := t.duration / time.Duration(t.total)
	limiter := rate.NewLimiter(rate.Every(interval), 1)
	sem := make(chan struct{}, t.concurrent)

	deadline := time.Now().Add(t.duration)
	client := &http.Client{Timeout: requestTimeout}

	var wg sync.WaitGroup
	for {
		if ctx.Err() != nil {
			wg.Wait()
			return enum.LoadTestCancelled
		}
		if time.Now().After(deadline) {
			break
		}
		t.mu.Lock()
		sentSoFar := t.sent
		t.mu.Unlock()
		if sentSoFar >= t.total {
			break
		}

		if err := limiter.Wait(ctx); err != nil {
			if ctx.Err() != nil {
				wg.Wait()
				return enum.LoadTestCancelled
			}
			break
		}

		select {
		case sem <- struct{}{}:
		case <-ctx.Done():
			wg.Wait()
			return enum.LoadTestCancelled
		}

		t.mu.Lock()
		t.sent++
		t.active++
		t.mu.Unlock()

		wg.Add(1)
		go func() {
			defer wg.Done()
			defer func() { <-sem }()
			t.doRequest(ctx, client, log)
		}()
	}
	// In-flight requests are left to drain(), which bounds the wait.
	return enum.LoadTestCompleted
}

func (t *Task) doRequest(ctx context.Context, client *http.Client, log *zap.Logger) {
	reqCtx, cancel := context.WithTimeout(ctx, requestTimeout)
	defer cancel()

	start := time.Now()
	req, err := http.NewRequestWithContext(reqCtx, http.MethodGet, t.targetURL, nil)
	if err != nil {
		t.recordResult(false, 0)
		return
	}
	resp, err := client.Do(req)
	latencyMS := float64(time.Since(start).Microseconds()) / 1000.0
	if err != nil {
		log.Debug("load test request failed", zap.String("test_id", t.id.String()), zap.Error(err))
		t.recordResult(false, 0)
		return
	}
	defer resp.Body.Close()
	t.recordResult(resp.StatusCode < 400, latencyMS)
}

func (t *Task) recordResult(success bool, latencyMS float64) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.active--
	if success {
		t.completed++
		t.latencies = append(t.latencies, latencyMS)
	} else {
		t.failed++
	}
}

// sampleLoop is the sole writer of live progress, per SPEC_FULL.md §4.2.
func (t *Task) sampleLoop(ctx context.Context, stop <-chan struct{}) {
	ticker := time.NewTicker(snapshotCadence)
	defer ticker.Stop()

	for {
		select {
		case <-stop:
			return
		case <-ctx.Done():
			return
		case <-ticker.C:
			t.takeSnapshot(ctx)
		}
	}
}

func (t *Task) takeSnapshot(ctx context.Context) {
	cpuPct, memPct := t.sampleMetrics(ctx)
	memMB := memPct / 100 * float64(t.container.MemoryLimitMB)

	t.mu.Lock()
	if cpuPct > t.peakCPU {
		t.peakCPU = cpuPct
	}
	if memMB > t.peakMemory {
		t.peakMemory = memMB
	}
	snap := Snapshot{
		TestID:         t.id,
		Timestamp:      time.Now(),
		CPUPercent:     cpuPct,
		MemoryMB:       memMB,
		Completed:      t.completed,
		Failed:         t.failed,
		ActiveRequests: t.active,
	}
	t.mu.Unlock()

	metric := &store.LoadTestMetric{
		ID:             uuid.New(),
		TestID:         t.id,
		Timestamp:      snap.Timestamp,
		CPUPercent:     snap.CPUPercent,
		MemoryMB:       snap.MemoryMB,
		Completed:      snap.Completed,
		Failed:         snap.Failed,
		ActiveRequests: snap.ActiveRequests,
	}
	_ = t.store.CreateLoadTestMetric(ctx, metric) // best effort; a missed sample is not fatal

	select {
	case t.snapshots <- snap:
	default: // a slow SSE consumer never blocks sampling
	}
}

// sampleMetrics reads real driver stats for a running container. Simulated
// containers, containers without an engine handle, and engines built
// without a sampler get zero values; no values are synthesized. Driver
// errors also yield a zero-valued snapshot rather than failing the test
// (SPEC_FULL.md §4.2).
func (t *Task) sampleMetrics(ctx context.Context) (cpuPct, memPct float64) {
	if t.container.DeploymentType == enum.DeploymentSimulated || t.container.EngineHandle == nil || t.sampler == nil {
		return 0, 0
	}
	cpuPct, memPct, err := t.sampler.Sample(ctx, *t.container.EngineHandle)
	if err != nil {
		return 0, 0
	}
	return cpuPct, memPct
}

// drain waits up to drainTimeout for in-flight requests to settle;
// anything still active afterward is abandoned without crediting
// success (SPEC_FULL.md §4.2).
func (t *Task) drain() {
	deadline := time.Now().Add(drainTimeout)
	for time.Now().Before(deadline) {
		t.mu.Lock()
		active := t.active
		t.mu.Unlock()
		if active == 0 {
			return
		}
		time.Sleep(50 * time.Millisecond)
	}
}

func (t *Task) finalize(ctx context.Context, status enum.LoadTestStatus) {
	t.mu.Lock()
	avg, min, max := aggregateLatencies(t.latencies)
	peakCPU, peakMem := t.peakCPU, t.peakMemory
	sent, completed, failed := t.sent, t.completed, t.failed
	t.mu.Unlock()

	now := time.Now()
	lt, err := t.store.GetLoadTest(ctx, t.id)
	if err != nil {
		return
	}
	lt.Status = status
	lt.RequestsSent = sent
	lt.RequestsDone = completed
	lt.RequestsFailed = failed
	lt.AvgResponseMS = avg
	lt.MinResponseMS = min
	lt.MaxResponseMS = max
	lt.PeakCPU = peakCPU
	lt.PeakMemory = peakMem
	lt.CompletedAt = &now
	_ = t.store.UpdateLoadTest(ctx, lt)
}

func (t *Task) updateStatus(ctx context.Context, status enum.LoadTestStatus, startedAt, completedAt *time.Time, errMsg string) {
	lt, err := t.store.GetLoadTest(ctx, t.id)
	if err != nil {
		return
	}
	lt.Status = status
	if startedAt != nil {
		lt.StartedAt = startedAt
	}
	if completedAt != nil {
		lt.CompletedAt = completedAt
	}
	lt.ErrorMessage = errMsg
	_ = t.store.UpdateLoadTest(ctx, lt)
}

func aggregateLatencies(latencies []float64) (avg, min, max float64) {
	if len(latencies) == 0 {
		return 0, 0, 0
	}
	min, max = math.MaxFloat64, 0
	var sum float64
	for _, v := range latencies {
		sum += v
		if v < min {
			min = v
		}
		if v > max {
			max = v
		}
	}
	return sum / float64(len(latencies)), min, max
}
