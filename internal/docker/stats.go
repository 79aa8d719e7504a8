package docker

import (
	"fmt"
	"strconv"
	"strings"
)

// StatsSample is one normalized container resource sample.
type StatsSample struct {
	CPUPercent  float64
	MemoryMiB   float64
	MemoryLimitMiB float64
	NetworkRxBytes int64
	NetworkTxBytes int64
}

// ParseStatsSample normalizes the three human-readable fields the engine
// prints for `docker stats` — a CPU percentage, a "used / limit" memory
// pair, and a "rx / tx" network I/O pair — into StatsSample. It is a pure
// function with no Docker SDK dependency, so it can be exercised directly
// by table-driven tests over every unit mixture spec.md §4.4 names
// (B/kB/kiB/MB/MiB/GB/GiB). Parse failures on any one field yield a
// zero value for that field rather than an error, matching spec.md §4.4
// ("Parse failures yield zero-valued fields, never exceptions").
func ParseStatsSample(cpuPct, memUsage, netIO string) (StatsSample, error) {
	var sample StatsSample
	sample.CPUPercent = parsePercent(cpuPct)

	used, limit, ok := splitPair(memUsage, "/")
	if ok {
		sample.MemoryMiB = parseMemoryMiB(used)
		sample.MemoryLimitMiB = parseMemoryMiB(limit)
	}

	rx, tx, ok := splitPair(netIO, "/")
	if ok {
		sample.NetworkRxBytes = parseByteCount(rx)
		sample.NetworkTxBytes = parseByteCount(tx)
	}

	return sample, nil
}

func splitPair(s, sep string) (a, b string, ok bool) {
	parts := strings.SplitN(s, sep, 2)
	if len(parts) != 2 {
		return "", "", false
	}
	return strings.TrimSpace(parts[0]), strings.TrimSpace(parts[1]), true
}

func parsePercent(s string) float64 {
	s = strings.TrimSpace(strings.TrimSuffix(strings.TrimSpace(s), "%"))
	v, err := strconv.ParseFloat(s, 64)
	if err != nil {
		return 0
	}
	return v
}

// memoryUnitMiB converts one memory unit's byte count into the factor needed
// to reach MiB (1 MiB = 1048576 B). kB/MB/GB use the SI (1000-based)
// convention; kiB/MiB/GiB use the binary (1024-based) convention, the
// same distinction `docker stats` itself renders.
var memoryUnitMiB = map[string]float64{
	"b":   1.0 / 1048576.0,
	"kb":  1000.0 / 1048576.0,
	"kib": 1024.0 / 1048576.0,
	"mb":  1000000.0 / 1048576.0,
	"mib": 1.0,
	"gb":  1000000000.0 / 1048576.0,
	"gib": 1024.0,
}

func parseMemoryMiB(s string) float64 {
	num, unit, ok := splitNumberUnit(s)
	if !ok {
		return 0
	}
	factor, ok := memoryUnitMiB[strings.ToLower(unit)]
	if !ok {
		return 0
	}
	return num * factor
}

var byteUnitBytes = map[string]float64{
	"b":   1,
	"kb":  1000,
	"kib": 1024,
	"mb":  1000000,
	"mib": 1048576,
	"gb":  1000000000,
	"gib": 1073741824,
}

func parseByteCount(s string) int64 {
	num, unit, ok := splitNumberUnit(s)
	if !ok {
		return 0
	}
	factor, ok := byteUnitBytes[strings.ToLower(unit)]
	if !ok {
		return 0
	}
	return int64(num * factor)
}

// splitNumberUnit splits "45.09MiB" into (45.09, "MiB"). Returns ok=false
// if s has no parseable leading number.
func splitNumberUnit(s string) (float64, string, bool) {
	s = strings.TrimSpace(s)
	i := 0
	for i < len(s) && (s[i] == '.' || s[i] == '-' || (s[i] >= '0' && s[i] <= '9')) {
		i++
	}
	if i == 0 {
		return 0, "", false
	}
	num, err := strconv.ParseFloat(s[:i], 64)
	if err != nil {
		return 0, "", false
	}
	return num, strings.TrimSpace(s[i:]), true
}

// String renders a sample back as a short debug line, never used by the
// engine itself but convenient in logs.
func (s StatsSample) String() string {
	return fmt.Sprintf("cpu=%.2f%% mem=%.2f/%.2fMiB rx=%dB tx=%dB",
		s.CPUPercent, s.MemoryMiB, s.MemoryLimitMiB, s.NetworkRxBytes, s.NetworkTxBytes)
}
