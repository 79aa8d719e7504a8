// Package billing meters container resource usage and turns it into
// cost figures. It runs a background harvester that samples running
// containers every tick and persists a ResourceUsage row, exposes a
// real-time billing query over recorded usage, and computes stateless
// cost simulations for hypothetical workloads.
package billing

import (
	"context"
	"encoding/json"
	"fmt"
	"math"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"

	"classroomd/internal/apperr"
	"classroomd/internal/enum"
	"classroomd/internal/logger"
	"classroomd/internal/store"
)

// hoursPerMonth is the fixed month length the storage-cost term divides
// by, per the documented cost formula. Never derived from calendar math.
const hoursPerMonth = 730.0

// Sampler reports a running container's live resource consumption. The
// container driver satisfies this through its textual stats parser.
type Sampler interface {
	Sample(ctx context.Context, engineHandle string) (cpuPct, memPct, storageGB float64, err error)
}

// pricingCache is the subset of *redis.Client the engine needs, narrowed
// so tests can swap in a stub without dragging in a real connection.
type pricingCache interface {
	Get(ctx context.Context, key string) *redis.StringCmd
	Set(ctx context.Context, key string, value interface{}, ttl time.Duration) *redis.StatusCmd
}

// defaultRates is the hardcoded fallback table used both to seed
// PricingModel rows at startup and to answer queries when a provider is
// absent from the store.
var defaultRates = map[enum.Provider]store.PricingModel{
	enum.ProviderAWS: {
		Provider: enum.ProviderAWS, CPUPerHour: 0.05, MemoryPerGBHour: 0.01, StoragePerGBMonth: 0.08,
	},
	enum.ProviderGCP: {
		Provider: enum.ProviderGCP, CPUPerHour: 0.045, MemoryPerGBHour: 0.009, StoragePerGBMonth: 0.07,
	},
	enum.ProviderAzure: {
		Provider: enum.ProviderAzure, CPUPerHour: 0.052, MemoryPerGBHour: 0.0105, StoragePerGBMonth: 0.075,
	},
}

// Engine owns the harvester loop and answers billing queries. Containers
// in this system carry resources in millicores/MB; the engine converts
// to cores/GB at the boundary since the cost formula is defined in
// those units.
type Engine struct {
	store    store.Store
	sampler  Sampler
	cache    pricingCache
	cacheTTL time.Duration
	interval time.Duration

	stopCh chan struct{}
	doneCh chan struct{}
}

// New builds an Engine. cache may be nil, in which case pricing lookups
// always go straight to the store.
func New(st store.Store, sampler Sampler, cache pricingCache, cacheTTL, interval time.Duration) *Engine {
	return &Engine{
		store:    st,
		sampler:  sampler,
		cache:    cache,
		cacheTTL: cacheTTL,
		interval: interval,
		stopCh:   make(chan struct{}),
		doneCh:   make(chan struct{}),
	}
}

// Start launches the harvester loop in the background.
func (e *Engine) Start(ctx context.Context) {
	go e.loop(ctx)
}

// Stop signals the harvester loop to exit and waits for it to finish its
// current tick.
func (e *Engine) Stop() {
	close(e.stopCh)
	<-e.doneCh
}

func (e *Engine) loop(ctx context.Context) {
	defer close(e.doneCh)
	ticker := time.NewTicker(e.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-e.stopCh:
			return
		case <-ticker.C:
			e.Harvest(ctx)
		}
	}
}

// Harvest runs one collection tick: enumerate running containers with an
// engine handle, sample each, persist a ResourceUsage row. A fresh
// context-scoped operation is used per tick and failures on individual
// containers never abort the sweep.
func (e *Engine) Harvest(ctx context.Context) {
	log := logger.GetLogger(ctx)

	containers, err := e.store.ListRunningContainersWithHandle(ctx)
	if err != nil {
		log.Error("billing: failed to list running containers", zap.Error(err))
		return
	}

	for _, c := range containers {
		if err := e.harvestOne(ctx, c); err != nil {
			log.Warn("billing: failed to harvest container usage",
				zap.String("container_id", c.ID.String()), zap.Error(err))
		}
	}
}

func (e *Engine) harvestOne(ctx context.Context, c *store.Container) error {
	if c.EngineHandle == nil {
		return nil
	}

	cpuPct, memPct, storageGB, err := e.sampler.Sample(ctx, *c.EngineHandle)
	if err != nil {
		return err
	}

	cpuCores := float64(c.CPULimitMillicores) / 1000.0 * (cpuPct / 100.0)
	memGB := float64(c.MemoryLimitMB) / 1024.0 * (memPct / 100.0)

	usage := &store.ResourceUsage{
		ID:             uuid.New(),
		ContainerID:    c.ID,
		Timestamp:      time.Now(),
		CPUPercent:     cpuPct,
		CPUCoresUsed:   cpuCores,
		MemoryMB:       float64(c.MemoryLimitMB) * (memPct / 100.0),
		MemoryGB:       memGB,
		StorageGB:      storageGB,
	}
	return e.store.RecordUsage(ctx, usage)
}

// CostBreakdown is the result of applying the cost formula to a window
// of resource consumption.
type CostBreakdown struct {
	Provider    enum.Provider `json:"provider"`
	CPUCost     float64       `json:"cpu_cost"`
	MemoryCost  float64       `json:"memory_cost"`
	StorageCost float64       `json:"storage_cost"`
	TotalCost   float64       `json:"total_cost"`
	CPURate     string        `json:"cpu_rate"`
	MemoryRate  string        `json:"memory_rate"`
	StorageRate string        `json:"storage_rate"`
}

// computeCost applies the documented cost formula, rounding every term
// to 4 decimal places.
func computeCost(provider enum.Provider, rates store.PricingModel, cpuCores, memGB, storageGB, hours float64) CostBreakdown {
	cpuCost := round4(cpuCores * hours * rates.CPUPerHour)
	memCost := round4(memGB * hours * rates.MemoryPerGBHour)
	storageCost := round4(storageGB * (hours / hoursPerMonth) * rates.StoragePerGBMonth)

	return CostBreakdown{
		Provider:    provider,
		CPUCost:     cpuCost,
		MemoryCost:  memCost,
		StorageCost: storageCost,
		TotalCost:   round4(cpuCost + memCost + storageCost),
		CPURate:     fmt.Sprintf("$%.4f/core-hour", rates.CPUPerHour),
		MemoryRate:  fmt.Sprintf("$%.4f/GB-hour", rates.MemoryPerGBHour),
		StorageRate: fmt.Sprintf("$%.4f/GB-month", rates.StoragePerGBMonth),
	}
}

func round4(v float64) float64 {
	return math.Round(v*10000) / 10000
}

// RealTimeBilling computes a cost breakdown for a container by averaging
// its recorded usage over [now-hours, now] and pricing it against the
// given provider's rates.
func (e *Engine) RealTimeBilling(ctx context.Context, containerID uuid.UUID, hours float64, provider enum.Provider) (*CostBreakdown, error) {
	end := time.Now()
	start := end.Add(-time.Duration(hours * float64(time.Hour)))

	samples, err := e.store.ListUsage(ctx, containerID, start, end)
	if err != nil {
		return nil, apperr.Internal("Billing.RealTimeBilling", err)
	}
	if len(samples) == 0 {
		return nil, apperr.NotFound("Billing.RealTimeBilling", "no usage samples recorded in the requested window")
	}

	var cpuSum, memSum float64
	var storageGB float64
	var latest time.Time
	for _, s := range samples {
		cpuSum += s.CPUCoresUsed
		memSum += s.MemoryGB
		if s.Timestamp.After(latest) {
			latest = s.Timestamp
			storageGB = s.StorageGB
		}
	}
	avgCPU := cpuSum / float64(len(samples))
	avgMem := memSum / float64(len(samples))

	rates, err := e.ratesFor(ctx, provider)
	if err != nil {
		return nil, err
	}

	result := computeCost(provider, rates, avgCPU, avgMem, storageGB, hours)
	return &result, nil
}

// Simulate applies the cost formula to a hypothetical workload with no
// store interaction beyond a pricing lookup.
func (e *Engine) Simulate(ctx context.Context, cpuCores, memGB, storageGB, hours float64, provider enum.Provider) (*CostBreakdown, error) {
	rates, err := e.ratesFor(ctx, provider)
	if err != nil {
		return nil, err
	}
	result := computeCost(provider, rates, cpuCores, memGB, storageGB, hours)
	return &result, nil
}

// ratesFor resolves a provider's pricing, preferring a warm Redis cache,
// falling back to the store, and finally to the hardcoded default table
// when the provider has no PricingModel row. Redis errors degrade
// silently to a store read — a cache outage never blocks billing.
func (e *Engine) ratesFor(ctx context.Context, provider enum.Provider) (store.PricingModel, error) {
	log := logger.GetLogger(ctx)

	if e.cache != nil {
		if rates, ok := e.readCache(ctx, provider); ok {
			return rates, nil
		}
	}

	rates, err := e.store.GetPricingModel(ctx, provider)
	if err != nil {
		if apperr.KindOf(err) != apperr.KindNotFound {
			log.Warn("billing: pricing lookup failed, using default rate table", zap.Error(err))
		}
		fallback, ok := defaultRates[provider]
		if !ok {
			return store.PricingModel{}, apperr.InvalidInput("Billing.ratesFor", "unknown provider: "+string(provider))
		}
		return fallback, nil
	}

	if e.cache != nil {
		e.writeCache(ctx, provider, *rates)
	}
	return *rates, nil
}

func cacheKey(provider enum.Provider) string {
	return "classroomd:pricing:" + string(provider)
}

func (e *Engine) readCache(ctx context.Context, provider enum.Provider) (store.PricingModel, bool) {
	log := logger.GetLogger(ctx)
	raw, err := e.cache.Get(ctx, cacheKey(provider)).Result()
	if err != nil {
		if err != redis.Nil {
			log.Debug("billing: pricing cache read failed, falling back to store", zap.Error(err))
		}
		return store.PricingModel{}, false
	}
	var rates store.PricingModel
	if err := json.Unmarshal([]byte(raw), &rates); err != nil {
		return store.PricingModel{}, false
	}
	return rates, true
}

func (e *Engine) writeCache(ctx context.Context, provider enum.Provider, rates store.PricingModel) {
	log := logger.GetLogger(ctx)
	data, err := json.Marshal(rates)
	if err != nil {
		return
	}
	if err := e.cache.Set(ctx, cacheKey(provider), data, e.cacheTTL).Err(); err != nil {
		log.Debug("billing: pricing cache write failed", zap.Error(err))
	}
}

// SeedDefaultRates inserts the hardcoded default rate for every provider
// that has no PricingModel row yet. Each insert is idempotent by
// provider key, so this is safe to call on every process start.
func (e *Engine) SeedDefaultRates(ctx context.Context) error {
	existing, err := e.store.ListPricingModels(ctx)
	if err != nil {
		return apperr.Internal("Billing.SeedDefaultRates", err)
	}

	have := make(map[enum.Provider]bool, len(existing))
	for _, p := range existing {
		have[p.Provider] = true
	}

	for _, provider := range []enum.Provider{enum.ProviderAWS, enum.ProviderGCP, enum.ProviderAzure} {
		if have[provider] {
			continue
		}
		rates := defaultRates[provider]
		if err := e.store.UpsertPricingModel(ctx, &rates); err != nil {
			return apperr.Internal("Billing.SeedDefaultRates", err)
		}
	}
	return nil
}
