package health

import (
	"context"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/pkg/errors"

	"github.com/fluxcd/imagepromote/pkg/cluster"
	"github.com/fluxcd/imagepromote/pkg/cluster/kubernetes"
	"github.com/fluxcd/imagepromote/pkg/config"
	"github.com/fluxcd/imagepromote/pkg/http/httperror"
)

// checkTimeout bounds each of the cluster checks.
const checkTimeout = 30 * time.Second

// Cluster is what the checks need to know about the cluster.
// *kubernetes.Cluster implements it.
type Cluster interface {
	Workload(ctx context.Context, namespace, name string) (cluster.Workload, error)
	Pods(ctx context.Context, namespace, selector string) ([]cluster.Pod, error)
	Service(ctx context.Context, namespace, name string) (cluster.Service, error)
	VolumeClaims(ctx context.Context, namespace, release string) ([]cluster.VolumeClaim, error)
	PodUsage(ctx context.Context, namespace, selector string) (cluster.Usage, error)
}

// Checker runs the six checks against one release.
type Checker struct {
	Cluster   Cluster
	HTTP      *http.Client
	Release   string
	Namespace string
	Config    config.MonitorConfig
}

func NewChecker(c Cluster, release, namespace string, cfg config.MonitorConfig) *Checker {
	return &Checker{
		Cluster:   c,
		HTTP:      &http.Client{Timeout: cfg.ProbeTimeout},
		Release:   release,
		Namespace: namespace,
		Config:    cfg,
	}
}

// probe carries what earlier checks learnt to the later ones.
type probe struct {
	workload cluster.Workload
	missing  bool
}

// selector picks out the release's pods; if the deployment couldn't
// be read, fall back to the chart's instance label.
func (p *probe) selector(release string) string {
	if p.workload.Selector != "" {
		return p.workload.Selector
	}
	return kubernetes.InstanceLabel + "=" + release
}

type check struct {
	name string
	run  func(c *Checker, ctx context.Context, p *probe) error
}

var checks = []check{
	{CheckDeployment, (*Checker).checkDeployment},
	{CheckPods, (*Checker).checkPods},
	{CheckService, (*Checker).checkService},
	{CheckApplication, (*Checker).checkApplication},
	{CheckResources, (*Checker).checkResources},
	{CheckStorage, (*Checker).checkStorage},
}

// passed is returned by checks that pass with something to say.
type passed string

func (p passed) Error() string { return string(p) }

// Evaluate runs every check, in order, and classifies the results.
// It doesn't touch any monitor state.
func (c *Checker) Evaluate(ctx context.Context, now time.Time) Snapshot {
	s := Snapshot{
		Time:      now,
		Release:   c.Release,
		Namespace: c.Namespace,
	}
	var p probe
	for _, chk := range checks {
		r := Result{Name: chk.name, Status: OK}
		err := chk.run(c, ctx, &p)
		switch err := err.(type) {
		case nil:
		case passed:
			r.Message = string(err)
		default:
			r.Status = Failed
			r.Message = err.Error()
		}
		if r.Passed() {
			s.Passed++
		}
		s.Results = append(s.Results, r)
	}
	s.Total = len(s.Results)
	s.DeploymentMissing = p.missing
	s.Classification = Classify(s.Results, p.missing)
	return s
}

func (c *Checker) checkDeployment(ctx context.Context, p *probe) error {
	ctx, cancel := context.WithTimeout(ctx, checkTimeout)
	defer cancel()
	w, err := c.Cluster.Workload(ctx, c.Namespace, c.Release)
	if errors.Is(err, cluster.ErrNotFound) {
		p.missing = true
		return errors.Errorf("deployment %s/%s not found", c.Namespace, c.Release)
	}
	if err != nil {
		return err
	}
	p.workload = w
	r := w.Rollout
	if r.Ready < r.Desired || r.Available == 0 {
		return errors.Errorf("%d/%d replicas ready, %d available", r.Ready, r.Desired, r.Available)
	}
	return passed(fmt.Sprintf("%d/%d replicas ready", r.Ready, r.Desired))
}

func (c *Checker) checkPods(ctx context.Context, p *probe) error {
	ctx, cancel := context.WithTimeout(ctx, checkTimeout)
	defer cancel()
	pods, err := c.Cluster.Pods(ctx, c.Namespace, p.selector(c.Release))
	if err != nil {
		return err
	}
	if len(pods) == 0 {
		return errors.New("no pods found")
	}
	var bad []string
	for _, pod := range pods {
		if pod.Phase != "Running" || !pod.Ready {
			bad = append(bad, fmt.Sprintf("%s (%s)", pod.Name, pod.Phase))
		}
	}
	if len(bad) > 0 {
		return errors.Errorf("%d/%d pods not running and ready: %s", len(bad), len(pods), strings.Join(bad, ", "))
	}
	return passed(fmt.Sprintf("%d pods running and ready", len(pods)))
}

func (c *Checker) checkService(ctx context.Context, p *probe) error {
	ctx, cancel := context.WithTimeout(ctx, checkTimeout)
	defer cancel()
	svc, err := c.Cluster.Service(ctx, c.Namespace, c.Release)
	if err != nil {
		return err
	}
	if svc.ReadyEndpoints == 0 {
		return errors.Errorf("service %s has no ready endpoints", svc.Name)
	}
	return passed(fmt.Sprintf("%d ready endpoints", svc.ReadyEndpoints))
}

// ApplicationURL is where the application probe sends its request.
func (c *Checker) ApplicationURL() string {
	base := c.Config.AppURL
	if base == "" {
		base = fmt.Sprintf("http://%s.%s.svc.cluster.local", c.Release, c.Namespace)
	}
	path := c.Config.HealthPath
	if path == "" {
		path = config.DefaultHealthPath
	}
	return strings.TrimSuffix(base, "/") + "/" + strings.TrimPrefix(path, "/")
}

func (c *Checker) checkApplication(ctx context.Context, p *probe) error {
	timeout := c.Config.ProbeTimeout
	if timeout <= 0 {
		timeout = config.DefaultProbeTimeout
	}
	ctx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	url := c.ApplicationURL()
	req, err := http.NewRequest("GET", url, nil)
	if err != nil {
		return errors.Wrap(err, "constructing probe request")
	}
	client := c.HTTP
	if client == nil {
		client = http.DefaultClient
	}
	res, err := client.Do(req.WithContext(ctx))
	if err != nil {
		return errors.Wrapf(err, "probing %s", url)
	}
	defer res.Body.Close()
	if err := httperror.FromResponse(res); err != nil {
		return err
	}
	return passed(fmt.Sprintf("%s returned %d", url, res.StatusCode))
}

func (c *Checker) checkResources(ctx context.Context, p *probe) error {
	ctx, cancel := context.WithTimeout(ctx, checkTimeout)
	defer cancel()
	usage, err := c.Cluster.PodUsage(ctx, c.Namespace, p.selector(c.Release))
	if errors.Is(err, kubernetes.ErrNoMetrics) {
		return passed("no pod metrics available; skipped")
	}
	if err != nil {
		return err
	}
	var over []string
	if c.Config.CPUCeiling > 0 && usage.CPUMillis >= c.Config.CPUCeiling {
		over = append(over, fmt.Sprintf("cpu %dm >= %dm", usage.CPUMillis, c.Config.CPUCeiling))
	}
	if c.Config.MemoryCeiling > 0 && usage.MemoryMiB >= c.Config.MemoryCeiling {
		over = append(over, fmt.Sprintf("memory %dMi >= %dMi", usage.MemoryMiB, c.Config.MemoryCeiling))
	}
	if len(over) > 0 {
		return errors.Errorf("average per pod over ceiling: %s", strings.Join(over, ", "))
	}
	return passed(fmt.Sprintf("average per pod cpu %dm, memory %dMi", usage.CPUMillis, usage.MemoryMiB))
}

func (c *Checker) checkStorage(ctx context.Context, p *probe) error {
	ctx, cancel := context.WithTimeout(ctx, checkTimeout)
	defer cancel()
	claims, err := c.Cluster.VolumeClaims(ctx, c.Namespace, c.Release)
	if err != nil {
		return err
	}
	if len(claims) == 0 {
		return passed("no volume claims")
	}
	var unbound []string
	for _, claim := range claims {
		if !claim.Bound() {
			unbound = append(unbound, fmt.Sprintf("%s (%s)", claim.Name, claim.Phase))
		}
	}
	if len(unbound) > 0 {
		return errors.Errorf("volume claims not bound: %s", strings.Join(unbound, ", "))
	}
	return passed(fmt.Sprintf("%d volume claims bound", len(claims)))
}
