package release

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"os"
	"os/exec"
	"strconv"
	"strings"
	"time"

	"github.com/go-kit/kit/log"
	"github.com/pkg/errors"
	"k8s.io/helm/pkg/chartutil"
)

// Cluster is what the Helm driver needs to know of the cluster
// directly, rather than through helm.
type Cluster interface {
	Ping() error
	WaitForRollout(ctx context.Context, namespace, name string, timeout time.Duration) error
}

// runner runs a command, returning its standard output.
type runner func(ctx context.Context, name string, args ...string) ([]byte, error)

// Helm drives the helm executable.
type Helm struct {
	exe string
	// namespace used for operations not given one explicitly
	namespace string
	cluster   Cluster
	logger    log.Logger
	run       runner
}

// NewHelm returns a driver using the helm found on $PATH.
func NewHelm(cluster Cluster, namespace string, logger log.Logger) *Helm {
	if logger == nil {
		logger = log.NewNopLogger()
	}
	h := &Helm{
		exe:       "helm",
		namespace: namespace,
		cluster:   cluster,
		logger:    logger,
	}
	h.run = h.doCommand
	return h
}

func (h *Helm) doCommand(ctx context.Context, name string, args ...string) ([]byte, error) {
	cmd := exec.CommandContext(ctx, name, args...)
	stderr := &bytes.Buffer{}
	cmd.Stderr = stderr
	stdout := &bytes.Buffer{}
	cmd.Stdout = stdout

	begin := time.Now()
	err := cmd.Run()
	if err != nil {
		msg := strings.TrimSpace(stderr.String())
		if msg == "" {
			msg = err.Error()
		}
		err = errors.Wrap(errors.New(msg), "running "+name)
	}

	h.logger.Log("cmd", name+" "+strings.Join(args, " "), "took", time.Since(begin), "err", err, "output", strings.TrimSpace(stdout.String()))
	return stdout.Bytes(), err
}

func (h *Helm) CheckAvailable(ctx context.Context) error {
	out, err := h.run(ctx, h.exe, "version", "--short")
	if err != nil {
		return errors.Wrap(ErrUnavailable, err.Error())
	}
	h.logger.Log("helm", strings.TrimSpace(string(out)))
	return nil
}

func (h *Helm) CheckClusterAccess(ctx context.Context) error {
	if h.cluster == nil {
		return errors.New("no cluster configured")
	}
	return h.cluster.Ping()
}

// CheckChartPath accepts a chart directory or a packaged chart.
func (h *Helm) CheckChartPath(path string) error {
	fi, err := os.Stat(path)
	if err != nil {
		return ChartInvalidError(path, errors.Wrap(ErrChartInvalid, err.Error()))
	}
	if fi.IsDir() {
		if ok, err := chartutil.IsChartDir(path); !ok {
			if err == nil {
				err = errors.New("not a chart directory")
			}
			return ChartInvalidError(path, errors.Wrap(ErrChartInvalid, err.Error()))
		}
		return nil
	}
	if _, err := chartutil.Load(path); err != nil {
		return ChartInvalidError(path, errors.Wrap(ErrChartInvalid, err.Error()))
	}
	return nil
}

func timeoutArg(timeout time.Duration) string {
	return fmt.Sprintf("%ds", int(timeout.Seconds()))
}

func (h *Helm) Deploy(ctx context.Context, chart, release, namespace, tag string, timeout time.Duration) error {
	_, err := h.run(ctx, h.exe, "upgrade", "--install", release, chart,
		"--namespace", namespace,
		"--set", "image.tag="+tag,
		"--wait",
		"--timeout", timeoutArg(timeout),
		"--atomic")
	if err != nil {
		return ReleaseFailedError(release, err)
	}
	return nil
}

func (h *Helm) Rollback(ctx context.Context, release string, revision int) error {
	args := []string{"rollback", release}
	if revision > 0 {
		args = append(args, strconv.Itoa(revision))
	}
	if h.namespace != "" {
		args = append(args, "--namespace", h.namespace)
	}
	_, err := h.run(ctx, h.exe, args...)
	return errors.Wrapf(err, "rolling back %s", release)
}

// RolloutStatus waits on the deployment named after the release,
// which is how charts conventionally name it.
func (h *Helm) RolloutStatus(ctx context.Context, release, namespace string, timeout time.Duration) error {
	if h.cluster == nil {
		return errors.New("no cluster configured")
	}
	return h.cluster.WaitForRollout(ctx, namespace, release, timeout)
}

type historyEntry struct {
	Revision   int    `json:"revision"`
	Status     string `json:"status"`
	Chart      string `json:"chart"`
	AppVersion string `json:"app_version"`
}

// Current describes the deployed revision of release, or returns
// ErrNoRelease if it has never been installed.
func (h *Helm) Current(ctx context.Context, release, namespace string) (Snapshot, error) {
	out, err := h.run(ctx, h.exe, "history", release, "--namespace", namespace, "--max", "1", "--output", "json")
	if err != nil {
		if strings.Contains(err.Error(), "not found") {
			return Snapshot{}, errors.Wrap(ErrNoRelease, release)
		}
		return Snapshot{}, errors.Wrapf(err, "reading history of %s", release)
	}
	var history []historyEntry
	if err := json.Unmarshal(out, &history); err != nil {
		return Snapshot{}, errors.Wrap(err, "parsing helm history")
	}
	if len(history) == 0 {
		return Snapshot{}, errors.Wrap(ErrNoRelease, release)
	}
	current := history[len(history)-1]

	out, err = h.run(ctx, h.exe, "get", "values", release, "--namespace", namespace, "--output", "json")
	if err != nil {
		return Snapshot{}, errors.Wrapf(err, "reading values of %s", release)
	}
	var values struct {
		Image struct {
			Tag string `json:"tag"`
		} `json:"image"`
	}
	if err := json.Unmarshal(out, &values); err != nil {
		return Snapshot{}, errors.Wrap(err, "parsing helm values")
	}

	return Snapshot{
		Release:   release,
		Namespace: namespace,
		Chart:     current.Chart,
		Tag:       values.Image.Tag,
		Revision:  current.Revision,
		Status:    current.Status,
	}, nil
}

var _ Client = &Helm{}
