// Package docker is a thin adapter over a local Docker engine: image and
// container lifecycle operations plus a pure textual stats parser. It is
// the only place in the module that imports github.com/docker/docker.
package docker

import (
	"bytes"
	"context"
	"encoding/base64"
	"encoding/json"
	"fmt"
	"io"
	"strings"
	"time"

	dockertypes "github.com/docker/docker/api/types"
	"github.com/docker/docker/api/types/container"
	"github.com/docker/docker/api/types/image"
	"github.com/docker/docker/api/types/network"
	"github.com/docker/docker/api/types/registry"
	"github.com/docker/docker/client"
	"github.com/docker/go-connections/nat"

	"classroomd/internal/apperr"
	"classroomd/internal/enum"
)

const (
	labelManaged = "classroomd.managed"
	labelOwner   = "classroomd.owner"
	labelName    = "classroomd.name"

	defaultStopTimeout = 10 * time.Second
	defaultNetwork     = "classroomd-network"
)

// AuthConfig carries registry credentials for Pull.
type AuthConfig struct {
	Username      string
	Password      string
	ServerAddress string
}

// RunSpec describes a container to create and start.
type RunSpec struct {
	Owner       string
	Name        string
	Image       string
	HostPort    int
	GuestPort   int
	CPUCores    float64
	MemoryMB    int
	Env         map[string]string
	RestartPolicy string // "", "always", "unless-stopped", "on-failure"
}

// Status is the point-in-time state of one container, as reported by
// Inspect.
type Status struct {
	Handle      string
	Running     bool
	Healthy     bool
	IPAddress   string
	HostPort    int
	CreatedAt   time.Time
	StartedAt   *time.Time
	StoppedAt   *time.Time
	ExitCode    int
	Error       string
}

// Health describes the local engine's availability, per SPEC_FULL.md §4.4.
type Health struct {
	Available     bool
	CLIInstalled  bool
	EngineRunning bool
	Version       string
	ErrorKind     enum.DriverErrorKind
	Message       string
}

// Client wraps the Docker SDK client with the narrow surface the driver
// needs, grounded on volaticloud/internal/runner's DockerRuntime.
type Client struct {
	cli *client.Client
}

// New builds a Client talking to host (empty string uses the SDK default,
// normally DOCKER_HOST or the local socket).
func New(host string) (*Client, error) {
	opts := []client.Opt{client.WithAPIVersionNegotiation()}
	if host != "" {
		opts = append(opts, client.WithHost(host))
	} else {
		opts = append(opts, client.FromEnv)
	}
	cli, err := client.NewClientWithOpts(opts...)
	if err != nil {
		return nil, fmt.Errorf("docker: new client: %w", err)
	}
	return &Client{cli: cli}, nil
}

func (c *Client) Close() error { return c.cli.Close() }

// Status classifies engine availability by pinging the daemon. It never
// returns an error: an unreachable engine is reported as an unhealthy
// Health value, following spec.md §4.4 "Callers query a health record...
// before mutating operations."
func (c *Client) Status(ctx context.Context) Health {
	ping, err := c.cli.Ping(ctx)
	if err != nil {
		return Health{
			Available:    false,
			CLIInstalled: true,
			ErrorKind:    classifyPingError(err),
			Message:      err.Error(),
		}
	}
	return Health{
		Available:     true,
		CLIInstalled:  true,
		EngineRunning: true,
		Version:       ping.APIVersion,
	}
}

// classifyPingError maps a Ping failure to one of the four error_kind
// values spec.md §4.4 defines, following the teacher's
// RuntimeError/retryable-flag classification in runner/types.go.
func classifyPingError(err error) enum.DriverErrorKind {
	msg := strings.ToLower(err.Error())
	switch {
	case client.IsErrConnectionFailed(err):
		return enum.DriverErrorConnectionFailed
	case strings.Contains(msg, "no such file or directory"), strings.Contains(msg, "cannot find the file"):
		return enum.DriverErrorNotInstalled
	case strings.Contains(msg, "pipe/docker_engine"), strings.Contains(msg, "connection refused"):
		return enum.DriverErrorDaemonNotRunning
	default:
		return enum.DriverErrorUnknown
	}
}

// ListLocalImages returns every locally cached image reference.
func (c *Client) ListLocalImages(ctx context.Context) ([]string, error) {
	images, err := c.cli.ImageList(ctx, image.ListOptions{})
	if err != nil {
		return nil, apperr.DriverFailure("Client.ListLocalImages", "listing local images failed", err)
	}
	var refs []string
	for _, img := range images {
		refs = append(refs, img.RepoTags...)
	}
	return refs, nil
}

// ImageExistsLocally reports whether ref is already pulled.
func (c *Client) ImageExistsLocally(ctx context.Context, ref string) (bool, error) {
	_, _, err := c.cli.ImageInspectWithRaw(ctx, ref)
	if err == nil {
		return true, nil
	}
	if client.IsErrNotFound(err) {
		return false, nil
	}
	return false, apperr.DriverFailure("Client.ImageExistsLocally", "inspecting image failed", err)
}

// Pull fetches ref from its registry, consuming the full progress stream
// so the pull is known complete on return.
func (c *Client) Pull(ctx context.Context, ref string, auth *AuthConfig) error {
	var authStr string
	if auth != nil {
		authJSON, err := json.Marshal(registry.AuthConfig{
			Username:      auth.Username,
			Password:      auth.Password,
			ServerAddress: auth.ServerAddress,
		})
		if err != nil {
			return apperr.Internal("Client.Pull", err)
		}
		authStr = base64.URLEncoding.EncodeToString(authJSON)
	}
	out, err := c.cli.ImagePull(ctx, ref, image.PullOptions{RegistryAuth: authStr})
	if err != nil {
		return apperr.DriverFailure("Client.Pull", fmt.Sprintf("pulling %s failed", ref), err)
	}
	defer out.Close()
	if _, err := io.Copy(io.Discard, out); err != nil {
		return apperr.DriverFailure("Client.Pull", fmt.Sprintf("pulling %s failed", ref), err)
	}
	return nil
}

// Build runs a context-directory image build producing tag.
func (c *Client) Build(ctx context.Context, buildCtx io.Reader, dockerfile, tag string) error {
	resp, err := c.cli.ImageBuild(ctx, buildCtx, dockertypes.ImageBuildOptions{
		Dockerfile: dockerfile,
		Tags:       []string{tag},
		Remove:     true,
	})
	if err != nil {
		return apperr.DriverFailure("Client.Build", fmt.Sprintf("building %s failed", tag), err)
	}
	defer resp.Body.Close()
	if _, err := io.Copy(io.Discard, resp.Body); err != nil {
		return apperr.DriverFailure("Client.Build", fmt.Sprintf("building %s failed", tag), err)
	}
	return nil
}

func (c *Client) ensureNetwork(ctx context.Context) error {
	nets, err := c.cli.NetworkList(ctx, network.ListOptions{})
	if err != nil {
		return err
	}
	for _, n := range nets {
		if n.Name == defaultNetwork {
			return nil
		}
	}
	_, err = c.cli.NetworkCreate(ctx, defaultNetwork, network.CreateOptions{
		Driver: "bridge",
		Labels: map[string]string{labelManaged: "true"},
	})
	return err
}

// Run ensures spec.Image exists locally, creates a container from spec,
// starts it, and returns the engine handle (container ID).
func (c *Client) Run(ctx context.Context, spec RunSpec) (string, error) {
	if err := c.ensureNetwork(ctx); err != nil {
		return "", apperr.DriverFailure("Client.Run", "ensuring network failed", err)
	}

	exists, err := c.ImageExistsLocally(ctx, spec.Image)
	if err != nil {
		return "", err
	}
	if !exists {
		if err := c.Pull(ctx, spec.Image, nil); err != nil {
			return "", err
		}
	}

	guestPort := spec.GuestPort
	if guestPort == 0 {
		guestPort = 8080
	}
	portKey := nat.Port(fmt.Sprintf("%d/tcp", guestPort))

	cfg := &container.Config{
		Image:        spec.Image,
		Env:          envSlice(spec.Env),
		ExposedPorts: nat.PortSet{portKey: struct{}{}},
		Labels: map[string]string{
			labelManaged: "true",
			labelOwner:   spec.Owner,
			labelName:    spec.Name,
		},
	}

	hostPort := "0"
	if spec.HostPort > 0 {
		hostPort = fmt.Sprintf("%d", spec.HostPort)
	}
	hostCfg := &container.HostConfig{
		RestartPolicy: container.RestartPolicy{Name: restartPolicyName(spec.RestartPolicy)},
		PortBindings: nat.PortMap{
			portKey: []nat.PortBinding{{HostIP: "0.0.0.0", HostPort: hostPort}},
		},
	}
	if spec.MemoryMB > 0 {
		hostCfg.Memory = int64(spec.MemoryMB) * 1024 * 1024
	}
	if spec.CPUCores > 0 {
		period := int64(100000)
		hostCfg.CPUPeriod = period
		hostCfg.CPUQuota = int64(spec.CPUCores * float64(period))
	}

	netCfg := &network.NetworkingConfig{
		EndpointsConfig: map[string]*network.EndpointSettings{defaultNetwork: {}},
	}

	resp, err := c.cli.ContainerCreate(ctx, cfg, hostCfg, netCfg, nil, containerName(spec.Owner, spec.Name))
	if err != nil {
		return "", apperr.DriverFailure("Client.Run", "creating container failed", err)
	}
	if err := c.cli.ContainerStart(ctx, resp.ID, container.StartOptions{}); err != nil {
		_ = c.cli.ContainerRemove(ctx, resp.ID, container.RemoveOptions{Force: true})
		return "", apperr.DriverFailure("Client.Run", "starting container failed", err)
	}
	return resp.ID, nil
}

func restartPolicyName(p string) container.RestartPolicyMode {
	switch p {
	case "always":
		return container.RestartPolicyAlways
	case "on-failure":
		return container.RestartPolicyOnFailure
	case "unless-stopped":
		return container.RestartPolicyUnlessStopped
	default:
		return container.RestartPolicyUnlessStopped
	}
}

func containerName(owner, name string) string {
	return fmt.Sprintf("classroomd-%s-%s", owner, name)
}

func envSlice(env map[string]string) []string {
	out := make([]string, 0, len(env))
	for k, v := range env {
		out = append(out, k+"="+v)
	}
	return out
}

// Start starts a previously stopped container.
func (c *Client) Start(ctx context.Context, handle string) error {
	if err := c.cli.ContainerStart(ctx, handle, container.StartOptions{}); err != nil {
		return apperr.DriverFailure("Client.Start", "starting container failed", err)
	}
	return nil
}

// Stop stops a running container within the default grace period.
func (c *Client) Stop(ctx context.Context, handle string) error {
	timeout := int(defaultStopTimeout.Seconds())
	if err := c.cli.ContainerStop(ctx, handle, container.StopOptions{Timeout: &timeout}); err != nil {
		return apperr.DriverFailure("Client.Stop", "stopping container failed", err)
	}
	return nil
}

// Remove force-removes a container and its volumes.
func (c *Client) Remove(ctx context.Context, handle string) error {
	err := c.cli.ContainerRemove(ctx, handle, container.RemoveOptions{Force: true, RemoveVolumes: true})
	if err != nil {
		return apperr.DriverFailure("Client.Remove", "removing container failed", err)
	}
	return nil
}

// Inspect reports the current Status of handle.
func (c *Client) Inspect(ctx context.Context, handle string) (*Status, error) {
	inspect, err := c.cli.ContainerInspect(ctx, handle)
	if err != nil {
		if client.IsErrNotFound(err) {
			return nil, apperr.NotFound("Client.Inspect", "container not found")
		}
		return nil, apperr.DriverFailure("Client.Inspect", "inspecting container failed", err)
	}

	st := &Status{Handle: handle}
	if inspect.State != nil {
		st.Running = inspect.State.Running
		st.Healthy = inspect.State.Running && (inspect.State.Health == nil || inspect.State.Health.Status == "healthy")
		st.ExitCode = inspect.State.ExitCode
		if inspect.State.ExitCode != 0 {
			st.Error = inspect.State.Error
		}
		if t, err := time.Parse(time.RFC3339Nano, inspect.State.StartedAt); err == nil && !t.IsZero() {
			st.StartedAt = &t
		}
		if inspect.State.FinishedAt != "" && inspect.State.FinishedAt != "0001-01-01T00:00:00Z" {
			if t, err := time.Parse(time.RFC3339Nano, inspect.State.FinishedAt); err == nil {
				st.StoppedAt = &t
			}
		}
	}
	if t, err := time.Parse(time.RFC3339Nano, inspect.Created); err == nil {
		st.CreatedAt = t
	}
	for _, n := range inspect.NetworkSettings.Networks {
		st.IPAddress = n.IPAddress
		break
	}
	for _, bindings := range inspect.NetworkSettings.Ports {
		if len(bindings) > 0 {
			if port, err := nat.ParsePort(bindings[0].HostPort); err == nil {
				st.HostPort = port
				break
			}
		}
	}
	return st, nil
}

// Logs returns the last tail lines (0 for all available) from handle.
func (c *Client) Logs(ctx context.Context, handle string, tail int) (io.ReadCloser, error) {
	opts := container.LogsOptions{ShowStdout: true, ShowStderr: true, Timestamps: true}
	if tail > 0 {
		opts.Tail = fmt.Sprintf("%d", tail)
	}
	logs, err := c.cli.ContainerLogs(ctx, handle, opts)
	if err != nil {
		return nil, apperr.DriverFailure("Client.Logs", "reading logs failed", err)
	}
	return logs, nil
}

// RawTextStats returns the three human-readable fields ParseStatsSample
// expects: CPU percent, memory usage string, network I/O string. The
// Docker SDK itself only exposes structured JSON stats; this method
// reformats one sample into the same strings `docker stats` prints, so
// the rest of the driver can exercise the textual parser spec.md §4.4
// requires.
func (c *Client) RawTextStats(ctx context.Context, handle string) (cpuPct, memUsage, netIO string, err error) {
	resp, err := c.cli.ContainerStats(ctx, handle, false)
	if err != nil {
		return "", "", "", apperr.DriverFailure("Client.RawTextStats", "reading stats failed", err)
	}
	defer resp.Body.Close()

	var body bytes.Buffer
	if _, err := body.ReadFrom(resp.Body); err != nil {
		return "", "", "", apperr.DriverFailure("Client.RawTextStats", "reading stats failed", err)
	}
	var raw container.StatsResponse
	if err := json.Unmarshal(body.Bytes(), &raw); err != nil {
		return "", "", "", apperr.DriverFailure("Client.RawTextStats", "decoding stats failed", err)
	}

	var cpuPercent float64
	cpuDelta := float64(raw.CPUStats.CPUUsage.TotalUsage - raw.PreCPUStats.CPUUsage.TotalUsage)
	systemDelta := float64(raw.CPUStats.SystemUsage - raw.PreCPUStats.SystemUsage)
	if systemDelta > 0 {
		online := len(raw.CPUStats.CPUUsage.PercpuUsage)
		if online == 0 {
			online = 1
		}
		cpuPercent = (cpuDelta / systemDelta) * float64(online) * 100.0
	}

	cpuPct = fmt.Sprintf("%.2f%%", cpuPercent)
	memUsage = fmt.Sprintf("%sMiB / %sMiB", formatMiB(raw.MemoryStats.Usage), formatMiB(raw.MemoryStats.Limit))
	netIO = fmt.Sprintf("%sB / %sB", formatBytes(sumRx(raw.Networks)), formatBytes(sumTx(raw.Networks)))
	return cpuPct, memUsage, netIO, nil
}

func formatMiB(bytes uint64) string {
	return fmt.Sprintf("%.2f", float64(bytes)/1048576.0)
}

func formatBytes(n uint64) string {
	return fmt.Sprintf("%d", n)
}

func sumRx(nets map[string]container.NetworkStats) uint64 {
	var total uint64
	for _, n := range nets {
		total += n.RxBytes
	}
	return total
}

func sumTx(nets map[string]container.NetworkStats) uint64 {
	var total uint64
	for _, n := range nets {
		total += n.TxBytes
	}
	return total
}

// ClassifyEnumStatus maps an engine Status to the domain's enum.ContainerStatus.
func ClassifyEnumStatus(st *Status) enum.ContainerStatus {
	switch {
	case st.Running:
		return enum.ContainerRunning
	case st.ExitCode != 0:
		return enum.ContainerError
	default:
		return enum.ContainerStopped
	}
}
