package release

import (
	"context"
	"fmt"
	"io/ioutil"
	"os"
	"path/filepath"
	"time"

	"github.com/pkg/errors"
	"gopkg.in/yaml.v2"
)

// Snapshot records what a release looked like, so it can be put back.
type Snapshot struct {
	Release   string `yaml:"release"`
	Namespace string `yaml:"namespace"`
	// Chart is the chart name and version as Helm reports it.
	Chart string `yaml:"chart,omitempty"`
	// ChartPath is where to find the chart to re-apply.
	ChartPath string    `yaml:"chartPath"`
	Tag       string    `yaml:"tag"`
	Revision  int       `yaml:"revision"`
	Status    string    `yaml:"status,omitempty"`
	Taken     time.Time `yaml:"taken"`
}

// Filename is the name Save gives the snapshot.
func (s Snapshot) Filename() string {
	return fmt.Sprintf("%s-%s-r%d-%s.yaml", s.Namespace, s.Release, s.Revision, s.Taken.UTC().Format("20060102T150405Z"))
}

// Save writes the snapshot into dir, returning the file's path.
func (s Snapshot) Save(dir string) (string, error) {
	if err := os.MkdirAll(dir, 0755); err != nil {
		return "", errors.Wrap(err, "creating backup directory")
	}
	bs, err := yaml.Marshal(s)
	if err != nil {
		return "", errors.Wrap(err, "encoding snapshot")
	}
	path := filepath.Join(dir, s.Filename())
	if err := ioutil.WriteFile(path, bs, 0644); err != nil {
		return "", errors.Wrap(err, "writing snapshot")
	}
	return path, nil
}

func LoadSnapshot(path string) (Snapshot, error) {
	var s Snapshot
	bs, err := ioutil.ReadFile(path)
	if err != nil {
		return s, errors.Wrap(err, "reading snapshot")
	}
	if err := yaml.Unmarshal(bs, &s); err != nil {
		return s, errors.Wrapf(err, "parsing snapshot %s", path)
	}
	if s.Release == "" || s.ChartPath == "" || s.Tag == "" {
		return s, errors.Errorf("snapshot %s is missing its release, chart path or tag", path)
	}
	return s, nil
}

// Restore re-applies a snapshot through client.
func Restore(ctx context.Context, client Client, s Snapshot, timeout time.Duration) error {
	if err := client.CheckChartPath(s.ChartPath); err != nil {
		return err
	}
	return client.Deploy(ctx, s.ChartPath, s.Release, s.Namespace, s.Tag, timeout)
}
