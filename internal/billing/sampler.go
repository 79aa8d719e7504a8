package billing

import (
	"context"

	"classroomd/internal/docker"
)

// defaultStorageGB is the nominal disk footprint attributed to every
// container. The Docker stats API reports CPU/memory/network but not a
// writable-layer size cheap enough to sample every harvest tick, so
// storage cost is billed against this flat per-container allowance
// rather than skipped outright.
const defaultStorageGB = 1.0

// DockerSampler adapts a docker.Client to the Sampler interface by
// parsing the driver's textual stats output.
type DockerSampler struct {
	Client *docker.Client
}

// Sample reports cpuPct/memPct for the given engine handle, with a flat
// storage allowance since the driver does not expose disk usage.
func (s *DockerSampler) Sample(ctx context.Context, engineHandle string) (cpuPct, memPct, storageGB float64, err error) {
	cpuStr, memStr, _, err := s.Client.RawTextStats(ctx, engineHandle)
	if err != nil {
		return 0, 0, 0, err
	}

	sample, err := docker.ParseStatsSample(cpuStr, memStr, "0B / 0B")
	if err != nil {
		return 0, 0, 0, err
	}

	memPct = 0
	if sample.MemoryLimitMiB > 0 {
		memPct = sample.MemoryMiB / sample.MemoryLimitMiB * 100
	}
	return sample.CPUPercent, memPct, defaultStorageGB, nil
}
