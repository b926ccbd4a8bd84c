// Package sandbox runs untrusted generated code inside isolated,
// resource-capped Docker containers.
package sandbox

import (
	"bytes"
	"context"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/containerd/errdefs"
	"github.com/docker/docker/api/types/container"
	"github.com/docker/docker/api/types/mount"
	"github.com/docker/docker/client"
	"github.com/docker/docker/pkg/stdcopy"
	"github.com/google/uuid"

	"github.com/masimlabs/masim/internal/config"
)

const (
	sandboxUser = "runner"
	workingDir  = "/sandbox"
	mediaDir    = "/sandbox/media"
	sceneName   = "Main"
	outputFile  = "output.mp4"

	// runLabel marks containers created by this runner so the reaper can
	// find leftovers after a crash.
	runLabel = "masim.run"
)

// Result captures one sandbox run. Stdout and Stderr are kept separate.
// OutputPath is "" when the run produced no artifact, regardless of exit
// code: success is determined by file existence, not by the process exiting
// zero.
type Result struct {
	Stdout     string
	Stderr     string
	ExitCode   int
	OutputPath string
}

// Runner executes one code artifact to completion or failure.
//
// A non-zero exit is reported through Result, not through the error return;
// the error return is reserved for infrastructure failures (daemon
// unreachable, mount failure, timeout).
type Runner interface {
	Run(ctx context.Context, code string, outputDir string) (Result, error)
	Ping(ctx context.Context) error
}

// DockerRunner implements Runner using the Docker API.
type DockerRunner struct {
	cli *client.Client
	cfg config.SandboxConfig
}

// NewDockerRunner creates a Docker-backed sandbox runner and verifies the
// daemon is reachable.
func NewDockerRunner(cfg config.SandboxConfig) (*DockerRunner, error) {
	cli, err := client.NewClientWithOpts(client.FromEnv, client.WithAPIVersionNegotiation())
	if err != nil {
		return nil, fmt.Errorf("create docker client: %w", err)
	}
	r := &DockerRunner{cli: cli, cfg: cfg}
	if err := r.Ping(context.Background()); err != nil {
		return nil, fmt.Errorf("docker daemon unreachable: %w", err)
	}
	slog.Info("Sandbox runner initialized", "image", cfg.Image, "memory_mb", cfg.MemoryLimitMB)
	return r, nil
}

// Ping verifies the Docker daemon is reachable.
func (r *DockerRunner) Ping(ctx context.Context) error {
	_, err := r.cli.Ping(ctx)
	return err
}

// Client returns the underlying Docker client.
func (r *DockerRunner) Client() *client.Client {
	return r.cli
}

// OutputFilePath returns the deterministic artifact path the renderer writes
// for the given script name under outputDir.
func OutputFilePath(outputDir, scriptName string) string {
	stem := strings.TrimSuffix(scriptName, filepath.Ext(scriptName))
	return filepath.Join(outputDir, "videos", stem, "1080p60", outputFile)
}

// Run executes the code artifact inside an isolated container: the script is
// mounted read-only, outputDir is mounted read-write at the media path, the
// process runs as a non-root user under a hard memory ceiling, and the
// container is always removed afterwards.
func (r *DockerRunner) Run(ctx context.Context, code string, outputDir string) (Result, error) {
	if r.cfg.RunTimeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, r.cfg.RunTimeout)
		defer cancel()
	}

	if err := os.MkdirAll(outputDir, 0755); err != nil {
		return Result{}, fmt.Errorf("create output directory: %w", err)
	}
	absOutputDir, err := filepath.Abs(outputDir)
	if err != nil {
		return Result{}, fmt.Errorf("resolve output directory: %w", err)
	}

	scriptName := fmt.Sprintf("scene_%s.py", strings.ReplaceAll(uuid.New().String(), "-", ""))
	scriptPath := filepath.Join(os.TempDir(), scriptName)
	if err := os.WriteFile(scriptPath, []byte(code), 0644); err != nil {
		return Result{}, fmt.Errorf("write code artifact: %w", err)
	}
	defer func() {
		if rmErr := os.Remove(scriptPath); rmErr != nil {
			slog.Warn("Failed to remove code artifact", "path", scriptPath, "error", rmErr)
		}
	}()

	containerCfg := &container.Config{
		Image:      r.cfg.Image,
		User:       sandboxUser,
		WorkingDir: workingDir,
		Cmd:        []string{"uv", "run", "manim", "-o", outputFile, "-qh", scriptName, sceneName},
		Env:        []string{"PYTHONUNBUFFERED=1"},
		Labels:     map[string]string{runLabel: "1"},
	}
	hostCfg := &container.HostConfig{
		Mounts: []mount.Mount{
			{
				Type:     mount.TypeBind,
				Source:   scriptPath,
				Target:   workingDir + "/" + scriptName,
				ReadOnly: true,
			},
			{
				Type:   mount.TypeBind,
				Source: absOutputDir,
				Target: mediaDir,
			},
		},
		Resources: container.Resources{
			Memory: r.cfg.MemoryLimitMB * 1024 * 1024,
		},
	}

	resp, err := r.cli.ContainerCreate(ctx, containerCfg, hostCfg, nil, nil, "")
	if err != nil {
		return Result{}, fmt.Errorf("create sandbox container: %w", err)
	}
	// Always reclaim the execution environment, success or failure.
	defer r.remove(resp.ID)

	if err := r.cli.ContainerStart(ctx, resp.ID, container.StartOptions{}); err != nil {
		return Result{}, fmt.Errorf("start sandbox container: %w", err)
	}

	exitCode, err := r.wait(ctx, resp.ID)
	if err != nil {
		return Result{}, err
	}

	stdout, stderr, err := r.logs(ctx, resp.ID)
	if err != nil {
		return Result{}, err
	}

	result := Result{
		Stdout:   stdout,
		Stderr:   stderr,
		ExitCode: exitCode,
	}
	if exitCode == 0 {
		artifact := OutputFilePath(absOutputDir, scriptName)
		if _, statErr := os.Stat(artifact); statErr == nil {
			result.OutputPath = artifact
			slog.Info("Sandbox run produced artifact", "path", artifact)
		} else {
			// Ran but produced nothing; the analyzer still evaluates it.
			slog.Warn("Sandbox run exited 0 without artifact", "expected", artifact)
		}
	}
	return result, nil
}

func (r *DockerRunner) wait(ctx context.Context, containerID string) (int, error) {
	waitCh, errCh := r.cli.ContainerWait(ctx, containerID, container.WaitConditionNotRunning)
	select {
	case status := <-waitCh:
		if status.Error != nil {
			return 0, fmt.Errorf("sandbox wait: %s", status.Error.Message)
		}
		return int(status.StatusCode), nil
	case err := <-errCh:
		return 0, fmt.Errorf("wait for sandbox container: %w", err)
	case <-ctx.Done():
		return 0, fmt.Errorf("sandbox run timed out: %w", ctx.Err())
	}
}

func (r *DockerRunner) logs(ctx context.Context, containerID string) (string, string, error) {
	reader, err := r.cli.ContainerLogs(ctx, containerID, container.LogsOptions{
		ShowStdout: true,
		ShowStderr: true,
	})
	if err != nil {
		return "", "", fmt.Errorf("read sandbox logs: %w", err)
	}
	defer reader.Close()

	var stdout, stderr bytes.Buffer
	if _, err := stdcopy.StdCopy(&stdout, &stderr, reader); err != nil {
		return "", "", fmt.Errorf("demux sandbox logs: %w", err)
	}
	return stdout.String(), stderr.String(), nil
}

// remove force-removes the run container. Removal happens on a fresh context
// so that a timed-out run still gets cleaned up.
func (r *DockerRunner) remove(containerID string) {
	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	err := r.cli.ContainerRemove(ctx, containerID, container.RemoveOptions{Force: true})
	if err != nil && !errdefs.IsNotFound(err) {
		slog.Warn("Failed to remove sandbox container", "container_id", containerID, "error", err)
	}
}
