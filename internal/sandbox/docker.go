package sandbox

import (
	"context"
	"fmt"
	"io"
	"os"
	"strings"
	"time"

	"github.com/docker/docker/api/types"
	"github.com/docker/docker/api/types/container"
	"github.com/docker/docker/api/types/image"
	"github.com/docker/docker/api/types/network"
	"github.com/docker/docker/client"
	"github.com/docker/docker/pkg/stdcopy"
	"github.com/docker/go-units"
	specs "github.com/opencontainers/image-spec/specs-go/v1"
	"github.com/rs/zerolog"

	"github.com/itstheanurag/snipexec/internal/metrics"
)

const (
	containerWorkdir = "/sandbox"
	defaultImage     = "snipexec/runtime:latest"
	defaultPidsLimit = 64
)

type dockerClient interface {
	ImagePull(ctx context.Context, ref string, options image.PullOptions) (io.ReadCloser, error)
	ContainerCreate(ctx context.Context, config *container.Config, hostConfig *container.HostConfig, networkingConfig *network.NetworkingConfig, platform *specs.Platform, containerName string) (container.CreateResponse, error)
	ContainerAttach(ctx context.Context, containerID string, options container.AttachOptions) (types.HijackedResponse, error)
	ContainerStart(ctx context.Context, containerID string, options container.StartOptions) error
	ContainerWait(ctx context.Context, containerID string, condition container.WaitCondition) (<-chan container.WaitResponse, <-chan error)
	ContainerKill(ctx context.Context, containerID, signal string) error
	ContainerRemove(ctx context.Context, containerID string, options container.RemoveOptions) error
	Close() error
}

var _ dockerClient = (*client.Client)(nil)

// DockerSandbox runs each program in a throwaway container. The workspace is
// bind-mounted as the working directory; build artifacts come from the host.
type DockerSandbox struct {
	cli       dockerClient
	image     string
	pidsLimit int64
	user      string
	logger    *zerolog.Logger
}

func NewDockerSandbox(img string, pidsLimit int64, logger *zerolog.Logger) (*DockerSandbox, error) {
	cli, err := client.NewClientWithOpts(client.FromEnv, client.WithAPIVersionNegotiation())
	if err != nil {
		return nil, fmt.Errorf("create docker client: %w", err)
	}
	return newDockerSandbox(cli, img, pidsLimit, logger), nil
}

func newDockerSandbox(cli dockerClient, img string, pidsLimit int64, logger *zerolog.Logger) *DockerSandbox {
	if img == "" {
		img = defaultImage
	}
	if pidsLimit <= 0 {
		pidsLimit = defaultPidsLimit
	}
	return &DockerSandbox{
		cli:       cli,
		image:     img,
		pidsLimit: pidsLimit,
		// Match the workspace owner so the 0700 directory is readable.
		user:   fmt.Sprintf("%d:%d", os.Getuid(), os.Getgid()),
		logger: logger,
	}
}

func (s *DockerSandbox) Name() string { return KindDocker }

func (s *DockerSandbox) GuestDir(string) string { return containerWorkdir }

func (s *DockerSandbox) Close() error { return s.cli.Close() }

func (s *DockerSandbox) Run(ctx context.Context, cfg RunConfig) (*Result, error) {
	created := time.Now()
	resp, err := s.cli.ContainerCreate(ctx, s.containerConfig(cfg), s.hostConfig(cfg), nil, nil, "")
	if err != nil {
		return nil, fmt.Errorf("failed to create container: %w", err)
	}
	defer func() {
		if err := s.cli.ContainerRemove(context.Background(), resp.ID, container.RemoveOptions{Force: true}); err != nil {
			s.logger.Warn().Err(err).Str("container", resp.ID).Msg("failed to remove container")
		}
	}()

	attach, err := s.cli.ContainerAttach(ctx, resp.ID, container.AttachOptions{
		Stream: true,
		Stdin:  true,
		Stdout: true,
		Stderr: true,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to attach container: %w", err)
	}
	defer attach.Close()

	if err := s.cli.ContainerStart(ctx, resp.ID, container.StartOptions{}); err != nil {
		return nil, fmt.Errorf("failed to start container: %w", err)
	}
	metrics.ContainerCreationTime.Observe(float64(time.Since(created).Milliseconds()))
	s.logger.Debug().Str("container", resp.ID).Strs("cmd", cfg.Command).Msg("container started")

	start := time.Now()
	go func() {
		_, _ = io.Copy(attach.Conn, strings.NewReader(cfg.Stdin))
		_ = attach.CloseWrite()
	}()

	var stdout, stderr lockedBuffer
	copied := make(chan error, 1)
	go func() {
		_, err := stdcopy.StdCopy(&stdout, &stderr, attach.Reader)
		copied <- err
	}()

	result := func(code int) *Result {
		return &Result{
			Stdout:   stdout.Bytes(),
			Stderr:   stderr.Bytes(),
			ExitCode: code,
			Duration: time.Since(start),
		}
	}

	statusCh, errCh := s.cli.ContainerWait(ctx, resp.ID, container.WaitConditionNotRunning)
	select {
	case status := <-statusCh:
		// Let the log stream drain before reading the buffers.
		select {
		case <-copied:
		case <-time.After(cfg.Grace):
		}
		return result(int(status.StatusCode)), nil
	case err := <-errCh:
		if ctx.Err() == nil {
			return nil, fmt.Errorf("failed to wait for container: %w", err)
		}
	case <-ctx.Done():
	}

	s.kill(resp.ID)
	res := result(-1)
	res.Killed = true
	return res, nil
}

func (s *DockerSandbox) kill(id string) {
	if err := s.cli.ContainerKill(context.Background(), id, "KILL"); err != nil {
		s.logger.Debug().Err(err).Str("container", id).Msg("kill container")
	}
}

func (s *DockerSandbox) containerConfig(cfg RunConfig) *container.Config {
	return &container.Config{
		Image:           s.image,
		Cmd:             cfg.Command,
		WorkingDir:      containerWorkdir,
		User:            s.user,
		Env:             []string{"HOME=" + containerWorkdir, "LANG=C.UTF-8"},
		Tty:             false,
		AttachStdin:     true,
		AttachStdout:    true,
		AttachStderr:    true,
		OpenStdin:       true,
		StdinOnce:       true,
		NetworkDisabled: true,
	}
}

func (s *DockerSandbox) hostConfig(cfg RunConfig) *container.HostConfig {
	pidsLimit := s.pidsLimit
	hc := &container.HostConfig{
		Binds:          []string{cfg.Dir + ":" + containerWorkdir},
		NetworkMode:    "none",
		ReadonlyRootfs: true,
		SecurityOpt:    []string{"no-new-privileges"},
		CapDrop:        []string{"ALL"},
		Tmpfs: map[string]string{
			"/tmp": "rw,noexec,nosuid,size=16m,mode=1777",
		},
		Resources: container.Resources{
			CPUQuota:  100000, // 1 CPU
			PidsLimit: &pidsLimit,
		},
	}
	if cfg.MemoryLimitKb > 0 {
		mem := int64(cfg.MemoryLimitKb) * 1024
		hc.Resources.Memory = mem
		hc.Resources.MemorySwap = mem // no swap
	}
	if cfg.FileSizeLimitKb > 0 {
		fsize := int64(cfg.FileSizeLimitKb) * 1024
		hc.Resources.Ulimits = []*units.Ulimit{{Name: "fsize", Soft: fsize, Hard: fsize}}
	}
	return hc
}

// EnsureImage pulls the runtime image. Pulling an image that is already
// present only refreshes its metadata.
func (s *DockerSandbox) EnsureImage(ctx context.Context) error {
	s.logger.Info().Str("image", s.image).Msg("pulling docker image")
	reader, err := s.cli.ImagePull(ctx, s.image, image.PullOptions{})
	if err != nil {
		return fmt.Errorf("failed to pull image %s: %w", s.image, err)
	}
	defer reader.Close()

	// The pull only completes once the progress stream is consumed.
	if _, err := io.Copy(io.Discard, reader); err != nil {
		return fmt.Errorf("failed to pull image %s: %w", s.image, err)
	}
	s.logger.Info().Str("image", s.image).Msg("docker image ready")
	return nil
}
