package autoscaler

import (
	"context"

	"classroomd/internal/docker"
)

// DockerSampler adapts the container driver's textual stats to the
// engine-handle sampling surface (driverSampler) the engine uses for
// non-simulated containers.
type DockerSampler struct {
	Client *docker.Client
}

func (s *DockerSampler) Sample(ctx context.Context, engineHandle string) (cpuPct, memPct float64, err error) {
	cpuStr, memStr, _, err := s.Client.RawTextStats(ctx, engineHandle)
	if err != nil {
		return 0, 0, err
	}
	sample, err := docker.ParseStatsSample(cpuStr, memStr, "0B / 0B")
	if err != nil {
		return 0, 0, err
	}
	if sample.MemoryLimitMiB == 0 {
		return sample.CPUPercent, 0, nil
	}
	return sample.CPUPercent, sample.MemoryMiB / sample.MemoryLimitMiB * 100.0, nil
}
