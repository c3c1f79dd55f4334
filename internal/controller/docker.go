package controller

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net"
	"strconv"
	"sync"

	"github.com/ahmadhassan44/random-walk/internal/logging"
	"github.com/ahmadhassan44/random-walk/pkg/config"
	"github.com/docker/docker/api/types/container"
	"github.com/docker/docker/client"
)

// hostGateway is how walker containers reach a controller on the host.
const hostGateway = "host.docker.internal"

// DockerLauncher runs every walker in its own container.
type DockerLauncher struct {
	cli    *client.Client
	image  string
	logger *slog.Logger

	mu         sync.Mutex
	containers map[int]string // walker id -> container id
}

// NewDockerLauncher initializes the Docker client
func NewDockerLauncher(image string, logger *slog.Logger) (*DockerLauncher, error) {
	cli, err := client.NewClientWithOpts(client.FromEnv, client.WithAPIVersionNegotiation())
	if err != nil {
		return nil, err
	}

	return &DockerLauncher{
		cli:        cli,
		image:      image,
		logger:     logging.Component(logger, "docker-launcher"),
		containers: make(map[int]string),
	}, nil
}

// CheckConnectivity verifies we can talk to the Docker Daemon
func (d *DockerLauncher) CheckConnectivity(ctx context.Context) error {
	info, err := d.cli.Info(ctx)
	if err != nil {
		return fmt.Errorf("cannot connect to Docker daemon: %w", err)
	}
	d.logger.Info("docker daemon connected", "name", info.Name, "cpus", info.NCPU)
	return nil
}

func (d *DockerLauncher) Launch(ctx context.Context, spec LaunchSpec) error {
	for _, id := range spec.IDs {
		if _, err := d.StartWalker(ctx, spec, id); err != nil {
			return err
		}
	}
	return nil
}

// StartWalker creates and starts the container for walker id
func (d *DockerLauncher) StartWalker(ctx context.Context, spec LaunchSpec, id int) (string, error) {
	d.mu.Lock()
	defer d.mu.Unlock()

	if current, busy := d.containers[id]; busy {
		return "", fmt.Errorf("walker %d is already running in container %s", id, current)
	}

	cfg, hostCfg := walkerContainer(d.image, spec, id)
	resp, err := d.cli.ContainerCreate(ctx, cfg, hostCfg, nil, nil, "")
	if err != nil {
		return "", fmt.Errorf("create walker %d: %w", id, err)
	}
	// Track before starting so Cleanup removes it even if start fails.
	d.containers[id] = resp.ID

	if err := d.cli.ContainerStart(ctx, resp.ID, container.StartOptions{}); err != nil {
		return "", fmt.Errorf("start walker %d: %w", id, err)
	}

	d.logger.Debug("walker container started", "walker_id", id, "container", shortID(resp.ID))
	return resp.ID, nil
}

// Wait blocks until every walker container has stopped and checks exit codes.
func (d *DockerLauncher) Wait() error {
	ctx := context.Background()
	var errs []error
	for id, containerID := range d.snapshot() {
		statusCh, errCh := d.cli.ContainerWait(ctx, containerID, container.WaitConditionNotRunning)
		select {
		case err := <-errCh:
			errs = append(errs, fmt.Errorf("wait walker %d: %w", id, err))
		case status := <-statusCh:
			if status.StatusCode != 0 {
				errs = append(errs, fmt.Errorf("walker %d exited with status %d", id, status.StatusCode))
			}
		}
	}
	return errors.Join(errs...)
}

// Cleanup force-removes every container this launcher created.
func (d *DockerLauncher) Cleanup(ctx context.Context) error {
	var errs []error
	for id, containerID := range d.snapshot() {
		if err := d.cli.ContainerRemove(ctx, containerID, container.RemoveOptions{Force: true}); err != nil {
			errs = append(errs, fmt.Errorf("remove walker %d: %w", id, err))
			continue
		}
		d.mu.Lock()
		delete(d.containers, id)
		d.mu.Unlock()
	}
	return errors.Join(errs...)
}

func (d *DockerLauncher) Close() error {
	return d.cli.Close()
}

func (d *DockerLauncher) snapshot() map[int]string {
	d.mu.Lock()
	defer d.mu.Unlock()
	out := make(map[int]string, len(d.containers))
	for id, containerID := range d.containers {
		out[id] = containerID
	}
	return out
}

// walkerContainer builds the container for walker id. The image's entrypoint
// is the walker binary.
func walkerContainer(image string, spec LaunchSpec, id int) (*container.Config, *container.HostConfig) {
	inside := spec
	if spec.Transport == config.TransportHTTP || spec.Transport == config.TransportRedis {
		inside.SignalAddr = containerAddr(spec.SignalAddr)
	}

	cfg := &container.Config{
		Image: image,
		Cmd:   walkerArgs(inside, id),
		Env:   []string{"WALKER_ID=" + strconv.Itoa(id)},
		Labels: map[string]string{
			"random-walk.run-id":    spec.RunID,
			"random-walk.walker-id": strconv.Itoa(id),
		},
	}

	hostCfg := &container.HostConfig{
		ExtraHosts: []string{hostGateway + ":host-gateway"},
	}
	return cfg, hostCfg
}

// containerAddr rewrites loopback and wildcard hosts to the host gateway.
func containerAddr(addr string) string {
	host, port, err := net.SplitHostPort(addr)
	if err != nil {
		return addr
	}
	switch host {
	case "", "localhost", "0.0.0.0", "::":
		return net.JoinHostPort(hostGateway, port)
	}
	if ip := net.ParseIP(host); ip != nil && ip.IsLoopback() {
		return net.JoinHostPort(hostGateway, port)
	}
	return addr
}

func shortID(id string) string {
	if len(id) > 12 {
		return id[:12]
	}
	return id
}
