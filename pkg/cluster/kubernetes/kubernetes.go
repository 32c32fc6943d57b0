package kubernetes

import (
	"context"

	"github.com/go-kit/kit/log"
	"github.com/pkg/errors"
	apiv1 "k8s.io/api/core/v1"
	apierrors "k8s.io/apimachinery/pkg/api/errors"
	meta_v1 "k8s.io/apimachinery/pkg/apis/meta/v1"
	k8sclient "k8s.io/client-go/kubernetes"
	"k8s.io/client-go/rest"
	"k8s.io/client-go/tools/clientcmd"
	metricsclient "k8s.io/metrics/pkg/client/clientset/versioned"

	"github.com/fluxcd/imagepromote/pkg/cluster"
)

// InstanceLabel is put on everything a chart creates for a release,
// by Helm convention. Volume claims are found by it.
const InstanceLabel = "app.kubernetes.io/instance"

// legacyReleaseLabel is used by older charts instead.
const legacyReleaseLabel = "release"

// Cluster is a handle to a Kubernetes API server, for reading the
// state of a release.
type Cluster struct {
	client  k8sclient.Interface
	metrics metricsclient.Interface
	logger  log.Logger
	// Host is the API server address, for logging.
	Host string
}

// NewCluster returns a usable cluster. The metrics client may be nil,
// in which case resource usage cannot be read.
func NewCluster(client k8sclient.Interface, metrics metricsclient.Interface, logger log.Logger) *Cluster {
	if logger == nil {
		logger = log.NewNopLogger()
	}
	return &Cluster{client: client, metrics: metrics, logger: logger}
}

// RESTConfig loads client configuration from the kubeconfig given,
// or the usual places ($KUBECONFIG, ~/.kube/config) when it is empty,
// falling back to the in-cluster service account.
func RESTConfig(kubeconfig string) (*rest.Config, error) {
	loadingRules := clientcmd.NewDefaultClientConfigLoadingRules()
	if kubeconfig != "" {
		loadingRules.ExplicitPath = kubeconfig
	}
	kubeConfig := clientcmd.NewNonInteractiveDeferredLoadingClientConfig(loadingRules, &clientcmd.ConfigOverrides{})
	config, err := kubeConfig.ClientConfig()
	if err == nil {
		return config, nil
	}
	if inCluster, inErr := rest.InClusterConfig(); inErr == nil {
		return inCluster, nil
	}
	return nil, errors.Wrap(err, "loading kubeconfig")
}

// NewClusterFromConfig builds the clients from a REST config.
func NewClusterFromConfig(config *rest.Config, logger log.Logger) (*Cluster, error) {
	client, err := k8sclient.NewForConfig(config)
	if err != nil {
		return nil, errors.Wrap(err, "creating Kubernetes client")
	}
	metrics, err := metricsclient.NewForConfig(config)
	if err != nil {
		return nil, errors.Wrap(err, "creating metrics client")
	}
	c := NewCluster(client, metrics, logger)
	c.Host = config.Host
	return c, nil
}

// Ping checks that the API server answers and we are allowed to ask
// it things.
func (c *Cluster) Ping() error {
	v, err := c.client.Discovery().ServerVersion()
	if err != nil {
		return errors.Wrap(err, "contacting Kubernetes API server")
	}
	c.logger.Log("host", c.Host, "server_version", v.GitVersion)
	return nil
}

// Workload reads the deployment called name.
func (c *Cluster) Workload(ctx context.Context, namespace, name string) (cluster.Workload, error) {
	if err := ctx.Err(); err != nil {
		return cluster.Workload{}, err
	}
	deployment, err := c.client.AppsV1().Deployments(namespace).Get(name, meta_v1.GetOptions{})
	if err != nil {
		if apierrors.IsNotFound(err) {
			return cluster.Workload{}, ObjectMissingError("deployment/"+name, errors.Wrap(cluster.ErrNotFound, err.Error()))
		}
		return cluster.Workload{}, errors.Wrapf(err, "getting deployment %s/%s", namespace, name)
	}
	return makeDeploymentWorkload(deployment)
}

// Pods lists the pods matching selector.
func (c *Cluster) Pods(ctx context.Context, namespace, selector string) ([]cluster.Pod, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	pods, err := c.client.CoreV1().Pods(namespace).List(meta_v1.ListOptions{LabelSelector: selector})
	if err != nil {
		return nil, errors.Wrapf(err, "listing pods in %s", namespace)
	}
	var res []cluster.Pod
	for _, p := range pods.Items {
		res = append(res, cluster.Pod{
			Name:  p.Name,
			Phase: string(p.Status.Phase),
			Ready: podReady(&p),
		})
	}
	return res, nil
}

func podReady(p *apiv1.Pod) bool {
	for _, cond := range p.Status.Conditions {
		if cond.Type == apiv1.PodReady {
			return cond.Status == apiv1.ConditionTrue
		}
	}
	return false
}

// Service reads the service called name, counting the ready
// addresses in its endpoints.
func (c *Cluster) Service(ctx context.Context, namespace, name string) (cluster.Service, error) {
	if err := ctx.Err(); err != nil {
		return cluster.Service{}, err
	}
	if _, err := c.client.CoreV1().Services(namespace).Get(name, meta_v1.GetOptions{}); err != nil {
		if apierrors.IsNotFound(err) {
			return cluster.Service{}, ObjectMissingError("service/"+name, errors.Wrap(cluster.ErrNotFound, err.Error()))
		}
		return cluster.Service{}, errors.Wrapf(err, "getting service %s/%s", namespace, name)
	}
	res := cluster.Service{Name: name}
	endpoints, err := c.client.CoreV1().Endpoints(namespace).Get(name, meta_v1.GetOptions{})
	if apierrors.IsNotFound(err) {
		return res, nil
	}
	if err != nil {
		return res, errors.Wrapf(err, "getting endpoints %s/%s", namespace, name)
	}
	for _, subset := range endpoints.Subsets {
		res.ReadyEndpoints += len(subset.Addresses)
	}
	return res, nil
}

// VolumeClaims lists the persistent volume claims belonging to a
// release.
func (c *Cluster) VolumeClaims(ctx context.Context, namespace, release string) ([]cluster.VolumeClaim, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	var res []cluster.VolumeClaim
	seen := map[string]bool{}
	for _, label := range []string{InstanceLabel, legacyReleaseLabel} {
		pvcs, err := c.client.CoreV1().PersistentVolumeClaims(namespace).List(meta_v1.ListOptions{
			LabelSelector: label + "=" + release,
		})
		if err != nil {
			return nil, errors.Wrapf(err, "listing persistent volume claims in %s", namespace)
		}
		for _, pvc := range pvcs.Items {
			if seen[pvc.Name] {
				continue
			}
			seen[pvc.Name] = true
			res = append(res, cluster.VolumeClaim{Name: pvc.Name, Phase: string(pvc.Status.Phase)})
		}
	}
	return res, nil
}
