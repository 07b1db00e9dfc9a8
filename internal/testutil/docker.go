package testutil

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/docker/docker/api/types/container"
	"github.com/docker/docker/api/types/filters"
	"github.com/docker/docker/client"
	"github.com/google/uuid"
)

// CleanupLabel marks engine containers created by tests.
const CleanupLabel = "llmserve-test"

// TestingT is the part of testing.T the Docker helpers need.
type TestingT interface {
	Name() string
	Cleanup(func())
	Logf(format string, args ...any)
	Skipf(format string, args ...any)
	Helper()
}

// DockerClient returns a client for the local daemon and removes the test's
// labelled containers when the test ends. The test is skipped when no daemon
// answers a ping.
func DockerClient(t TestingT) *client.Client {
	t.Helper()

	cli, err := client.NewClientWithOpts(client.FromEnv, client.WithAPIVersionNegotiation())
	if err != nil {
		t.Skipf("docker client unavailable: %v", err)
	}

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if _, err := cli.Ping(ctx); err != nil {
		_ = cli.Close()
		t.Skipf("docker is not running: %v", err)
	}

	t.Cleanup(func() {
		ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
		defer cancel()
		label := fmt.Sprintf("%s=%s", CleanupLabel, t.Name())
		if err := removeLabelled(ctx, cli, label, t.Logf); err != nil {
			t.Logf("container cleanup: %v", err)
		}
		_ = cli.Close()
	})

	return cli
}

// UniqueContainerName returns llmserve-test-<prefix>-<test>-<suffix>.
func UniqueContainerName(t TestingT, prefix string) string {
	t.Helper()
	return fmt.Sprintf("llmserve-test-%s-%s-%s", prefix, sanitizeName(t.Name()), uuid.NewString()[:8])
}

// ContainerLabels returns the labels DockerClient's cleanup looks for.
func ContainerLabels(t TestingT) map[string]string {
	return map[string]string{CleanupLabel: t.Name()}
}

func removeLabelled(ctx context.Context, cli *client.Client, label string, logf func(string, ...any)) error {
	args := filters.NewArgs()
	args.Add("label", label)

	containers, err := cli.ContainerList(ctx, container.ListOptions{All: true, Filters: args})
	if err != nil {
		return fmt.Errorf("list containers: %w", err)
	}

	for _, c := range containers {
		if err := cli.ContainerRemove(ctx, c.ID, container.RemoveOptions{Force: true}); err != nil {
			return fmt.Errorf("remove container %s: %w", c.ID[:12], err)
		}
		logf("removed test container %v", c.Names)
	}
	return nil
}

// sanitizeName keeps alphanumerics and maps separators to '-', capped at 30 bytes.
func sanitizeName(name string) string {
	s := strings.Map(func(r rune) rune {
		switch {
		case r >= 'a' && r <= 'z', r >= 'A' && r <= 'Z', r >= '0' && r <= '9':
			return r
		case r == '/' || r == '_' || r == '-':
			return '-'
		default:
			return -1
		}
	}, name)
	if len(s) > 30 {
		s = s[:30]
	}
	return s
}
