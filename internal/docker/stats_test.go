package docker

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestParseStatsSample(t *testing.T) {
	tests := []struct {
		name        string
		cpuPct      string
		memUsage    string
		netIO       string
		wantCPU     float64
		wantMem     float64
		wantMemLim  float64
		wantRx      int64
		wantTx      int64
	}{
		{
			name:       "MiB memory, B network",
			cpuPct:     "12.34%",
			memUsage:   "45.09MiB / 512MiB",
			netIO:      "648B / 1.2kB",
			wantCPU:    12.34,
			wantMem:    45.09,
			wantMemLim: 512,
			wantRx:     648,
			wantTx:     1200,
		},
		{
			name:       "MB/kB mixture",
			cpuPct:     "0.00%",
			memUsage:   "1.2MB / 500kB",
			netIO:      "1.2MB / 500kB",
			wantCPU:    0,
			wantMem:    1.2 * 1000000 / 1048576,
			wantMemLim: 500.0 * 1000 / 1048576,
			wantRx:     1200000,
			wantTx:     500000,
		},
		{
			name:       "GiB/GB mixture",
			cpuPct:     "250.00%",
			memUsage:   "1.5GiB / 2GB",
			netIO:      "2.1GB / 1GiB",
			wantCPU:    250,
			wantMem:    1.5 * 1024,
			wantMemLim: 2000000000.0 / 1048576,
			wantRx:     2100000000,
			wantTx:     1073741824,
		},
		{
			name:       "unparseable fields yield zero",
			cpuPct:     "n/a",
			memUsage:   "unavailable",
			netIO:      "unavailable",
			wantCPU:    0,
			wantMem:    0,
			wantMemLim: 0,
			wantRx:     0,
			wantTx:     0,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			sample, err := ParseStatsSample(tt.cpuPct, tt.memUsage, tt.netIO)
			assert.NoError(t, err)
			assert.InDelta(t, tt.wantCPU, sample.CPUPercent, 0.001)
			assert.InDelta(t, tt.wantMem, sample.MemoryMiB, 0.001)
			assert.InDelta(t, tt.wantMemLim, sample.MemoryLimitMiB, 0.001)
			assert.Equal(t, tt.wantRx, sample.NetworkRxBytes)
			assert.Equal(t, tt.wantTx, sample.NetworkTxBytes)
		})
	}
}

func TestParseStatsSampleMalformedPair(t *testing.T) {
	sample, err := ParseStatsSample("5.00%", "no-slash-here", "also-no-slash")
	assert.NoError(t, err)
	assert.Equal(t, 5.0, sample.CPUPercent)
	assert.Zero(t, sample.MemoryMiB)
	assert.Zero(t, sample.NetworkRxBytes)
}
