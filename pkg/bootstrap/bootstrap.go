// Package bootstrap prepares a host to run promotions: it installs
// the container engine, helm and kubectl, and lets the invoking user
// talk to the engine.
package bootstrap

import (
	"bytes"
	"context"
	"fmt"
	"os"
	"os/exec"
	"strings"
	"time"

	"github.com/go-kit/kit/log"
	"github.com/pkg/errors"
)

const (
	HelmVersion    = "v3.12.0"
	KubectlVersion = "v1.27.0"
)

// Packages are installed with apt-get.
var Packages = []string{"docker.io", "curl", "jq", "ca-certificates"}

// Command is one program invocation. Privileged commands are run
// through sudo unless we are already root.
type Command struct {
	Args       []string
	Privileged bool
}

func (c Command) String() string {
	return strings.Join(c.Args, " ")
}

// Step is a named group of commands.
type Step struct {
	Name string
	// Provides is a program which, if already on $PATH, means the step
	// can be skipped.
	Provides string
	// Optional steps log their failure rather than stopping setup.
	Optional bool
	Commands []Command
}

type runner func(ctx context.Context, name string, args ...string) error

type Bootstrap struct {
	User     string
	Root     bool
	DryRun   bool
	Logger   log.Logger
	LookPath func(string) (string, error)
	run      runner
}

func New(logger log.Logger, dryRun bool) *Bootstrap {
	b := &Bootstrap{
		User:     CurrentUser(),
		Root:     os.Geteuid() == 0,
		DryRun:   dryRun,
		Logger:   logger,
		LookPath: exec.LookPath,
	}
	b.run = b.doCommand
	return b
}

// CurrentUser is who gets added to the docker group. Under sudo, that
// is whoever ran sudo.
func CurrentUser() string {
	for _, env := range []string{"SUDO_USER", "USER", "USERNAME"} {
		if u := os.Getenv(env); u != "" && u != "root" {
			return u
		}
	}
	return "runner"
}

// Steps lists what Setup does, in order.
func (b *Bootstrap) Steps() []Step {
	helmURL := fmt.Sprintf("https://get.helm.sh/helm-%s-linux-amd64.tar.gz", HelmVersion)
	kubectlURL := fmt.Sprintf("https://dl.k8s.io/release/%s/bin/linux/amd64/kubectl", KubectlVersion)
	return []Step{
		{
			Name: "packages",
			Commands: []Command{
				{Args: []string{"apt-get", "update"}, Privileged: true},
				{Args: append([]string{"apt-get", "install", "-y"}, Packages...), Privileged: true},
			},
		},
		{
			Name:     "docker-group",
			Optional: true,
			Commands: []Command{
				{Args: []string{"usermod", "-aG", "docker", b.User}, Privileged: true},
			},
		},
		{
			Name:     "helm",
			Provides: "helm",
			Commands: []Command{
				{Args: []string{"curl", "-fsSL", "-o", "/tmp/helm.tar.gz", helmURL}},
				{Args: []string{"tar", "-zxf", "/tmp/helm.tar.gz", "-C", "/tmp", "--strip-components=1", "linux-amd64/helm"}},
				{Args: []string{"install", "-m", "0755", "/tmp/helm", "/usr/local/bin/helm"}, Privileged: true},
			},
		},
		{
			Name:     "kubectl",
			Provides: "kubectl",
			Commands: []Command{
				{Args: []string{"curl", "-fsSL", "-o", "/tmp/kubectl", kubectlURL}},
				{Args: []string{"install", "-o", "root", "-g", "root", "-m", "0755", "/tmp/kubectl", "/usr/local/bin/kubectl"}, Privileged: true},
			},
		},
	}
}

// Setup runs every step. In a dry run, it logs the commands it would
// run instead.
func (b *Bootstrap) Setup(ctx context.Context) error {
	if !b.Root && !b.DryRun {
		b.Logger.Log("info", "setup needs sudo; you may be asked for your password")
	}
	for _, step := range b.Steps() {
		logger := log.With(b.Logger, "step", step.Name)
		if step.Provides != "" {
			if path, err := b.LookPath(step.Provides); err == nil {
				logger.Log("skipped", "already installed", "path", path)
				continue
			}
		}
		if err := b.runStep(ctx, logger, step); err != nil {
			if step.Optional {
				logger.Log("warning", err, "help", "you may need to do this by hand, then log in again")
				continue
			}
			return errors.Wrapf(err, "setup step %s", step.Name)
		}
		logger.Log("done", step.Name)
	}
	return nil
}

func (b *Bootstrap) runStep(ctx context.Context, logger log.Logger, step Step) error {
	for _, c := range step.Commands {
		args := c.Args
		if c.Privileged && !b.Root {
			args = append([]string{"sudo"}, args...)
		}
		if b.DryRun {
			logger.Log("dry-run", strings.Join(args, " "))
			continue
		}
		if err := b.run(ctx, args[0], args[1:]...); err != nil {
			return err
		}
	}
	return nil
}

func (b *Bootstrap) doCommand(ctx context.Context, name string, args ...string) error {
	cmd := exec.CommandContext(ctx, name, args...)
	stderr := &bytes.Buffer{}
	cmd.Stderr = stderr
	// sudo may need to ask for a password
	cmd.Stdin = os.Stdin

	begin := time.Now()
	err := cmd.Run()
	if err != nil {
		msg := strings.TrimSpace(stderr.String())
		if msg == "" {
			msg = err.Error()
		}
		err = errors.Wrap(errors.New(msg), "running "+name)
	}
	b.Logger.Log("cmd", name+" "+strings.Join(args, " "), "took", time.Since(begin), "err", err)
	return err
}
